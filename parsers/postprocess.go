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

package parsers

import (
	"fmt"
	"strconv"

	"github.com/bioarchive/mss/core"
	"github.com/bioarchive/mss/schemas"
)

// Schema-type-specific post-processors massage the canonicalized XML content
// into the shape the JSON Schemas expect. A post-processor may return either
// a single object or several (one XML file can hold many logical objects).

type postprocessor func(profile schemas.XMLProfile, content map[string]any) ([]ParsedObject, error)

var postprocessors = map[string]postprocessor{
	"study":     processStudies,
	"sample":    processSamples,
	"run":       processWithFileList,
	"analysis":  processWithFileList,
	"bpimage":   processWithFileList,
	"dataset":   processDatasets,
	"bpdataset": processDatasets,
	"bpsample":  processBigpictureSamples,
}

// the default post-processor: fan out the object elements as-is
func defaultPostprocess(profile schemas.XMLProfile, content map[string]any) ([]ParsedObject, error) {
	documents := asDocuments(content[canonicalKey(profile.ObjectElement)])
	if len(documents) == 0 {
		return nil, fmt.Errorf("no %s elements found", profile.ObjectElement)
	}
	parsed := make([]ParsedObject, len(documents))
	for i, document := range documents {
		parsed[i] = ParsedObject{
			Document:     document,
			Element:      profile.ObjectElement,
			ElementIndex: i,
		}
	}
	return parsed, nil
}

// flattens STUDY_TYPE's existing_study_type attribute into a plain string
func processStudies(profile schemas.XMLProfile, content map[string]any) ([]ParsedObject, error) {
	parsed, err := defaultPostprocess(profile, content)
	if err != nil {
		return nil, err
	}
	for _, object := range parsed {
		descriptor, ok := object.Document["descriptor"].(map[string]any)
		if !ok {
			continue
		}
		if studyType, ok := descriptor["studyType"].(map[string]any); ok {
			if existing, ok := studyType["existingStudyType"].(string); ok {
				descriptor["studyType"] = existing
			}
		}
	}
	return parsed, nil
}

// casts sampleName.taxonId to a number, as the Sample schema requires
func processSamples(profile schemas.XMLProfile, content map[string]any) ([]ParsedObject, error) {
	parsed, err := defaultPostprocess(profile, content)
	if err != nil {
		return nil, err
	}
	for _, object := range parsed {
		sampleName, ok := object.Document["sampleName"].(map[string]any)
		if !ok {
			continue
		}
		if taxonId, ok := sampleName["taxonId"].(string); ok {
			if value, err := strconv.Atoi(taxonId); err == nil {
				sampleName["taxonId"] = value
			}
		}
	}
	return parsed, nil
}

// lifts the FILES/FILE wrapper into a plain files array
func processWithFileList(profile schemas.XMLProfile, content map[string]any) ([]ParsedObject, error) {
	parsed, err := defaultPostprocess(profile, content)
	if err != nil {
		return nil, err
	}
	for _, object := range parsed {
		normalizeWrappedList(object.Document, "files", "file")
	}
	return parsed, nil
}

// normalizes dataset reference lists (RUN_REF, ANALYSIS_REF, IMAGE_REF may
// appear once or many times)
func processDatasets(profile schemas.XMLProfile, content map[string]any) ([]ParsedObject, error) {
	parsed, err := defaultPostprocess(profile, content)
	if err != nil {
		return nil, err
	}
	for _, object := range parsed {
		for _, field := range []string{"runRef", "analysisRef", "imageRef"} {
			if value, ok := object.Document[field]; ok {
				object.Document[field] = asAnyList(value)
			}
		}
	}
	return parsed, nil
}

// Bigpicture sample sets carry heterogeneous children (BIOLOGICAL_BEING,
// CASE, SPECIMEN, BLOCK, SLIDE); each becomes its own logical object tagged
// with its sample type. Cross-references between them (case -> biological
// being, specimen -> extractedFrom) stay refname strings; they are resolved
// post-hoc, never in memory.
func processBigpictureSamples(profile schemas.XMLProfile, content map[string]any) ([]ParsedObject, error) {
	sampleElements := []struct {
		element    string
		sampleType string
	}{
		{"BIOLOGICAL_BEING", "biologicalBeing"},
		{"CASE", "case"},
		{"SPECIMEN", "specimen"},
		{"BLOCK", "block"},
		{"SLIDE", "slide"},
	}
	var parsed []ParsedObject
	for _, kind := range sampleElements {
		for i, document := range asDocuments(content[canonicalKey(kind.element)]) {
			payload := core.CopyDocument(document)
			flattenRefnames(payload)
			alias := core.StringField(payload, "alias")
			delete(payload, "alias")
			object := core.Document{
				"alias":        alias,
				"sampleType":   kind.sampleType,
				kind.sampleType: payload,
			}
			parsed = append(parsed, ParsedObject{
				Document:     object,
				Element:      kind.element,
				ElementIndex: i,
			})
		}
	}
	if len(parsed) == 0 {
		return nil, fmt.Errorf("no sample elements found")
	}
	return parsed, nil
}

// replaces {refname: "x"} reference maps with their refname strings
func flattenRefnames(document map[string]any) {
	for key, value := range document {
		if reference, ok := value.(map[string]any); ok {
			if refname, ok := reference["refname"].(string); ok && len(reference) == 1 {
				document[key] = refname
				continue
			}
			flattenRefnames(reference)
		}
	}
}

// lifts document[field][wrapper] (one or many) into document[field] as a list
func normalizeWrappedList(document map[string]any, field, wrapper string) {
	wrapped, ok := document[field].(map[string]any)
	if !ok {
		return
	}
	inner, ok := wrapped[wrapper]
	if !ok {
		return
	}
	document[field] = asAnyList(inner)
}

// returns the value as a list whether it held one element or many
func asAnyList(value any) []any {
	if list, ok := value.([]any); ok {
		return list
	}
	return []any{value}
}
