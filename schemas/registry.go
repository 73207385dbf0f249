package schemas

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// The schema registry holds the versioned schema artifacts for every known
// metadata object type. It is populated once from the embedded schemas
// directory and is read-only afterwards, so it is safe to share without
// locks.

//go:embed json/*.json
var schemaFS embed.FS

// This error type is returned when a schema is sought but not found.
type NotFoundError struct {
	Schema string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("The schema '%s' was not found", e.Schema)
}

// a description of a registered schema, served by GET /schemas
type Description struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// the XML shape of a schema type: the expected root element and whether one
// XML file may expand to several logical objects
type XMLProfile struct {
	// root element of a valid XML serialization (e.g. STUDY_SET)
	RootElement string
	// element wrapping each logical object within the root
	ObjectElement string
	// set for Bigpicture types, whose stored XML gets the minted accession
	// injected as an attribute on the object element
	Bigpicture bool
}

// per-type XML profiles; types absent from this map accept JSON only
var xmlProfiles = map[string]XMLProfile{
	"study":      {RootElement: "STUDY_SET", ObjectElement: "STUDY"},
	"sample":     {RootElement: "SAMPLE_SET", ObjectElement: "SAMPLE"},
	"experiment": {RootElement: "EXPERIMENT_SET", ObjectElement: "EXPERIMENT"},
	"run":        {RootElement: "RUN_SET", ObjectElement: "RUN"},
	"analysis":   {RootElement: "ANALYSIS_SET", ObjectElement: "ANALYSIS"},
	"dataset":    {RootElement: "DATASET_SET", ObjectElement: "DATASET"},
	"policy":     {RootElement: "POLICY_SET", ObjectElement: "POLICY"},
	"dac":        {RootElement: "DAC_SET", ObjectElement: "DAC"},
	"bpdataset":  {RootElement: "DATASET_SET", ObjectElement: "DATASET", Bigpicture: true},
	"bpsample":   {RootElement: "SAMPLE_SET", ObjectElement: "SAMPLE", Bigpicture: true},
	"bpimage":    {RootElement: "IMAGE_SET", ObjectElement: "IMAGE", Bigpicture: true},
	"bpobservation": {RootElement: "OBSERVATION_SET", ObjectElement: "OBSERVATION",
		Bigpicture: true},
}

// registry state, populated on first use
var (
	initOnce sync.Once
	initErr  error
	raw      map[string]json.RawMessage
	compiled map[string]*jsonschema.Schema
)

func load() error {
	initOnce.Do(func() {
		raw = make(map[string]json.RawMessage)
		compiled = make(map[string]*jsonschema.Schema)
		entries, err := schemaFS.ReadDir("json")
		if err != nil {
			initErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft7
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			name := entry.Name()[:len(entry.Name())-len(".json")]
			data, err := schemaFS.ReadFile("json/" + entry.Name())
			if err != nil {
				initErr = err
				return
			}
			raw[name] = json.RawMessage(data)
			if err = compiler.AddResource(name+".json", bytes.NewReader(data)); err != nil {
				initErr = fmt.Errorf("couldn't register schema %s: %w", name, err)
				return
			}
			names = append(names, name)
		}
		for _, name := range names {
			schema, err := compiler.Compile(name + ".json")
			if err != nil {
				initErr = fmt.Errorf("couldn't compile schema %s: %w", name, err)
				return
			}
			compiled[name] = schema
		}
	})
	return initErr
}

// returns the compiled JSON Schema for the given schema type
func GetJSONSchema(name string) (*jsonschema.Schema, error) {
	if err := load(); err != nil {
		return nil, err
	}
	schema, ok := compiled[name]
	if !ok {
		return nil, NotFoundError{Schema: name}
	}
	return schema, nil
}

// returns the raw JSON Schema document for the given schema type
func GetRawSchema(name string) (json.RawMessage, error) {
	if err := load(); err != nil {
		return nil, err
	}
	data, ok := raw[name]
	if !ok {
		return nil, NotFoundError{Schema: name}
	}
	return data, nil
}

// returns the XML profile for the given schema type; types without a profile
// accept JSON payloads only
func GetXMLProfile(name string) (XMLProfile, error) {
	if err := load(); err != nil {
		return XMLProfile{}, err
	}
	if _, ok := raw[name]; !ok {
		return XMLProfile{}, NotFoundError{Schema: name}
	}
	profile, ok := xmlProfiles[name]
	if !ok {
		return XMLProfile{}, NotFoundError{Schema: name}
	}
	return profile, nil
}

// reports whether the given schema type is known to the registry
func IsKnown(name string) bool {
	if err := load(); err != nil {
		return false
	}
	_, ok := raw[name]
	return ok
}

// lists descriptions of all registered schemas, sorted by name
func List() ([]Description, error) {
	if err := load(); err != nil {
		return nil, err
	}
	descriptions := make([]Description, 0, len(raw))
	for name, data := range raw {
		var doc struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		}
		json.Unmarshal(data, &doc)
		descriptions = append(descriptions, Description{
			Name:        name,
			Title:       doc.Title,
			Description: doc.Description,
		})
	}
	sort.Slice(descriptions, func(i, j int) bool {
		return descriptions[i].Name < descriptions[j].Name
	})
	return descriptions, nil
}
