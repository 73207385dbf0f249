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
	"strings"

	"github.com/clbanning/mxj/v2"

	"github.com/bioarchive/mss/core"
	"github.com/bioarchive/mss/schemas"
	"github.com/bioarchive/mss/validation"
)

// The XML parser converts a validated XML payload of a known schema type to
// its canonical JSON form. One input may expand to multiple logical objects
// (e.g. several samples inside one SAMPLE_SET).

// This error type is returned when an XML payload cannot be converted.
type ParseError struct {
	Schema, Message string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("Couldn't parse %s XML: %s", e.Schema, e.Message)
}

// one logical object produced by parsing an XML payload
type ParsedObject struct {
	// the canonical JSON document
	Document core.Document
	// the XML element this object came from, and its ordinal among elements
	// of that name within the original text; used for Bigpicture accession
	// injection
	Element      string
	ElementIndex int
}

// Converts XML of the given schema type to canonical JSON. The payload must
// already have passed validation.ValidateXML. Returns one entry per logical
// object found in the payload.
func Parse(schemaType string, text []byte) ([]ParsedObject, error) {
	profile, err := schemas.GetXMLProfile(schemaType)
	if err != nil {
		return nil, err
	}

	// values stay strings here; post-processors cast the few numeric fields
	// (casting everything mangles aliases and checksums that look numeric)
	decoded, err := mxj.NewMapXml(text)
	if err != nil {
		return nil, ParseError{Schema: schemaType, Message: err.Error()}
	}
	canonical, ok := canonicalize(map[string]any(decoded)).(map[string]any)
	if !ok || len(canonical) == 0 {
		return nil, ParseError{Schema: schemaType, Message: "empty document"}
	}

	// elevate the single root element payload to top level
	rootKey := canonicalKey(profile.RootElement)
	objectKey := canonicalKey(profile.ObjectElement)
	content, ok := canonical[rootKey].(map[string]any)
	if !ok {
		// a bare object element without the set wrapper is accepted too
		if object, isObject := canonical[objectKey].(map[string]any); isObject {
			content = map[string]any{objectKey: object}
		} else {
			return nil, ParseError{
				Schema:  schemaType,
				Message: fmt.Sprintf("expected root element %s", profile.RootElement),
			}
		}
	}

	process := postprocessors[schemaType]
	if process == nil {
		process = defaultPostprocess
	}
	parsed, err := process(profile, content)
	if err != nil {
		return nil, ParseError{Schema: schemaType, Message: err.Error()}
	}

	// the canonical form must satisfy the type's JSON Schema
	for _, object := range parsed {
		if err := validation.ValidateJSON(schemaType, object.Document); err != nil {
			return nil, err
		}
	}
	return parsed, nil
}

// converts an element or attribute name to its canonical JSON key:
// attribute-prefix stripped, snake/SNAKE converted to camelCase
func canonicalKey(name string) string {
	name = strings.TrimPrefix(name, "-")
	name = strings.TrimPrefix(name, "#")
	parts := strings.Split(strings.ToLower(name), "_")
	var builder strings.Builder
	for i, part := range parts {
		if part == "" {
			continue
		}
		if i == 0 || builder.Len() == 0 {
			builder.WriteString(part)
		} else {
			builder.WriteString(strings.ToUpper(part[:1]))
			builder.WriteString(part[1:])
		}
	}
	return builder.String()
}

// recursively rewrites keys to canonical form and prunes empty values
func canonicalize(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		result := make(map[string]any)
		for key, element := range typed {
			canonical := canonicalize(element)
			if isEmpty(canonical) {
				continue
			}
			result[canonicalKey(key)] = canonical
		}
		return result
	case []any:
		result := make([]any, 0, len(typed))
		for _, element := range typed {
			canonical := canonicalize(element)
			if isEmpty(canonical) {
				continue
			}
			result = append(result, canonical)
		}
		return result
	default:
		return value
	}
}

func isEmpty(value any) bool {
	switch typed := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(typed) == ""
	case map[string]any:
		return len(typed) == 0
	case []any:
		return len(typed) == 0
	}
	return false
}

// returns the value as a list of documents whether it held one or many
func asDocuments(value any) []core.Document {
	switch typed := value.(type) {
	case map[string]any:
		return []core.Document{typed}
	case []any:
		documents := make([]core.Document, 0, len(typed))
		for _, element := range typed {
			if document, ok := element.(map[string]any); ok {
				documents = append(documents, document)
			}
		}
		return documents
	}
	return nil
}

// Injects a freshly minted accession identifier as an attribute on the n-th
// occurrence of the given object element within the original XML text. Used
// for Bigpicture types before the XML is stored.
func InjectAccession(text []byte, objectElement string, index int, accession string) ([]byte, error) {
	source := string(text)
	needle := "<" + objectElement
	occurrence := 0
	for position := 0; ; {
		next := strings.Index(source[position:], needle)
		if next < 0 {
			return nil, fmt.Errorf("element %s (occurrence %d) not found", objectElement, index+1)
		}
		position += next + len(needle)
		// require a delimiter so IMAGE doesn't match IMAGE_SET
		if position < len(source) {
			switch source[position] {
			case ' ', '>', '/', '\t', '\n':
			default:
				continue
			}
		}
		if occurrence == index {
			injected := source[:position] +
				fmt.Sprintf(" accession=%q", accession) + source[position:]
			return []byte(injected), nil
		}
		occurrence++
	}
}
