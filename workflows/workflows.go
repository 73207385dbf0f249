// Copyright (c) 2024 The Bioarchive Project and its Contributors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package workflows

import (
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/bioarchive/mss/schemas"
)

// A workflow is a named declarative configuration enumerating which object
// types may appear in a submission, which are required, and which external
// registrations fire on publish. Workflows are loaded once at startup from
// the embedded documents directory and are immutable for the life of the
// process.

//go:embed documents/*.yaml
var workflowFS embed.FS

// This error type is returned when a workflow is sought but not found.
type NotFoundError struct {
	Workflow string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("The workflow '%s' was not found", e.Workflow)
}

// a rule for one schema type within a workflow step
type SchemaRule struct {
	Name     string `yaml:"name" json:"name" validate:"required"`
	Required bool   `yaml:"required" json:"required,omitempty"`
	// nil means multiple objects are allowed
	AllowMultipleObjects *bool    `yaml:"allowMultipleObjects" json:"allowMultipleObjects,omitempty"`
	Requires             []string `yaml:"requires" json:"requires,omitempty"`
	RequiresOr           []string `yaml:"requires_or" json:"requires_or,omitempty"`
}

// one step of a workflow, grouping related schema types
type Step struct {
	Title   string       `yaml:"title" json:"title"`
	Schemas []SchemaRule `yaml:"schemas" json:"schemas" validate:"required,dive"`
}

// a publish-endpoint record driving the publish orchestrator
type PublishEndpoint struct {
	Endpoint        string   `yaml:"endpoint" json:"endpoint" validate:"required,oneof=datacite rems discovery"`
	Service         string   `yaml:"service" json:"service" validate:"required"`
	RequiredSchemas []string `yaml:"requiredSchemas" json:"requiredSchemas,omitempty"`
	// schemas whose objects this endpoint registers (DOI-bearing types etc.)
	Schemas []string `yaml:"schemas" json:"schemas,omitempty"`
}

// a loaded workflow document
type Workflow struct {
	Name        string            `yaml:"name" json:"name" validate:"required"`
	Description string            `yaml:"description" json:"description"`
	Steps       []Step            `yaml:"steps" json:"steps" validate:"required,dive"`
	Publish     []PublishEndpoint `yaml:"publish" json:"publish" validate:"dive"`
}

// registry state, populated on first use
var (
	initOnce sync.Once
	initErr  error
	loaded   map[string]*Workflow
)

func load() error {
	initOnce.Do(func() {
		loaded = make(map[string]*Workflow)
		entries, err := workflowFS.ReadDir("documents")
		if err != nil {
			initErr = err
			return
		}
		validate := validator.New()
		for _, entry := range entries {
			data, err := workflowFS.ReadFile("documents/" + entry.Name())
			if err != nil {
				initErr = err
				return
			}
			var workflow Workflow
			if err = yaml.Unmarshal(data, &workflow); err != nil {
				initErr = fmt.Errorf("couldn't parse workflow %s: %w", entry.Name(), err)
				return
			}
			if err = validate.Struct(workflow); err != nil {
				initErr = fmt.Errorf("invalid workflow %s: %w", entry.Name(), err)
				return
			}
			for name := range workflow.Schemas() {
				if !schemas.IsKnown(name) {
					initErr = fmt.Errorf("workflow %s references unknown schema %s",
						workflow.Name, name)
					return
				}
			}
			loaded[workflow.Name] = &workflow
		}
	})
	return initErr
}

// returns the workflow with the given name
func Get(name string) (*Workflow, error) {
	if err := load(); err != nil {
		return nil, err
	}
	workflow, ok := loaded[name]
	if !ok {
		return nil, NotFoundError{Workflow: name}
	}
	return workflow, nil
}

// returns the descriptions of all loaded workflows, keyed by name
func List() (map[string]string, error) {
	if err := load(); err != nil {
		return nil, err
	}
	descriptions := make(map[string]string, len(loaded))
	for name, workflow := range loaded {
		descriptions[name] = workflow.Description
	}
	return descriptions, nil
}

// returns the set of all schema types referenced by the workflow
func (w *Workflow) Schemas() map[string]struct{} {
	all := make(map[string]struct{})
	for _, step := range w.Steps {
		for _, rule := range step.Schemas {
			all[rule.Name] = struct{}{}
			for _, name := range rule.Requires {
				all[name] = struct{}{}
			}
			for _, name := range rule.RequiresOr {
				all[name] = struct{}{}
			}
		}
	}
	for _, endpoint := range w.Publish {
		for _, name := range endpoint.RequiredSchemas {
			all[name] = struct{}{}
		}
		for _, name := range endpoint.Schemas {
			all[name] = struct{}{}
		}
	}
	return all
}

// Returns the schema types a submission must carry before it can publish:
// schemas marked required, schemas named in a required schema's requires or
// requires_or lists, and schemas required by any publish endpoint.
func (w *Workflow) RequiredSchemas() map[string]struct{} {
	required := make(map[string]struct{})
	for _, step := range w.Steps {
		for _, rule := range step.Schemas {
			if !rule.Required {
				continue
			}
			required[rule.Name] = struct{}{}
			for _, name := range rule.Requires {
				required[name] = struct{}{}
			}
			for _, name := range rule.RequiresOr {
				required[name] = struct{}{}
			}
		}
	}
	for _, endpoint := range w.Publish {
		for _, name := range endpoint.RequiredSchemas {
			required[name] = struct{}{}
		}
	}
	return required
}

// returns the schema types of which a submission may hold at most one object
func (w *Workflow) SingleInstanceSchemas() map[string]struct{} {
	single := make(map[string]struct{})
	for _, step := range w.Steps {
		for _, rule := range step.Schemas {
			if rule.AllowMultipleObjects != nil && !*rule.AllowMultipleObjects {
				single[rule.Name] = struct{}{}
			}
		}
	}
	return single
}

// returns the names of the workflow's publish endpoints
func (w *Workflow) PublishEndpoints() []string {
	names := make([]string, 0, len(w.Publish))
	for _, endpoint := range w.Publish {
		names = append(names, endpoint.Endpoint)
	}
	return names
}

// returns the publish-endpoint record with the given name, or nil
func (w *Workflow) PublishEndpoint(name string) *PublishEndpoint {
	for i := range w.Publish {
		if w.Publish[i].Endpoint == name {
			return &w.Publish[i]
		}
	}
	return nil
}

// the per-endpoint configuration triples driving the publish orchestrator
type PublishConfig struct {
	DataCite  *PublishEndpoint
	Rems      *PublishEndpoint
	Discovery *PublishEndpoint
}

func (w *Workflow) PublishConfiguration() PublishConfig {
	return PublishConfig{
		DataCite:  w.PublishEndpoint("datacite"),
		Rems:      w.PublishEndpoint("rems"),
		Discovery: w.PublishEndpoint("discovery"),
	}
}

// This error type reports why a submission does not satisfy its workflow.
type UnsatisfiedError struct {
	// required schema types with no object
	MissingSchemas []string
	// single-instance schema types with more than one object
	SingleInstanceViolations []string
	// present schema types whose requires/requires_or dependencies are unmet
	UnmetDependencies []string
}

func (e UnsatisfiedError) Error() string {
	var parts []string
	if len(e.MissingSchemas) > 0 {
		parts = append(parts, fmt.Sprintf("missing required schemas: %s",
			strings.Join(e.MissingSchemas, ", ")))
	}
	if len(e.SingleInstanceViolations) > 0 {
		parts = append(parts, fmt.Sprintf("multiple objects for single-instance schemas: %s",
			strings.Join(e.SingleInstanceViolations, ", ")))
	}
	if len(e.UnmetDependencies) > 0 {
		parts = append(parts, fmt.Sprintf("unmet schema dependencies for: %s",
			strings.Join(e.UnmetDependencies, ", ")))
	}
	return "Submission does not satisfy its workflow: " + strings.Join(parts, "; ")
}

// Reports whether a submission with the given per-type object counts
// satisfies this workflow. Returns nil when satisfied, or an
// UnsatisfiedError naming every violation.
func (w *Workflow) SatisfiedBy(counts map[string]int) error {
	var unsatisfied UnsatisfiedError

	for name := range w.RequiredSchemas() {
		if counts[name] == 0 {
			unsatisfied.MissingSchemas = append(unsatisfied.MissingSchemas, name)
		}
	}
	for name := range w.SingleInstanceSchemas() {
		if counts[name] > 1 {
			unsatisfied.SingleInstanceViolations =
				append(unsatisfied.SingleInstanceViolations, name)
		}
	}
	for _, step := range w.Steps {
		for _, rule := range step.Schemas {
			if counts[rule.Name] == 0 {
				continue
			}
			for _, dependency := range rule.Requires {
				if counts[dependency] == 0 {
					unsatisfied.UnmetDependencies =
						append(unsatisfied.UnmetDependencies, rule.Name)
				}
			}
			if len(rule.RequiresOr) > 0 {
				met := false
				for _, dependency := range rule.RequiresOr {
					if counts[dependency] > 0 {
						met = true
					}
				}
				if !met {
					unsatisfied.UnmetDependencies =
						append(unsatisfied.UnmetDependencies, rule.Name)
				}
			}
		}
	}

	if len(unsatisfied.MissingSchemas) == 0 &&
		len(unsatisfied.SingleInstanceViolations) == 0 &&
		len(unsatisfied.UnmetDependencies) == 0 {
		return nil
	}
	sort.Strings(unsatisfied.MissingSchemas)
	sort.Strings(unsatisfied.SingleInstanceViolations)
	sort.Strings(unsatisfied.UnmetDependencies)
	return unsatisfied
}
