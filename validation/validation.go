package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bioarchive/mss/core"
	"github.com/bioarchive/mss/schemas"
)

// This error type is returned when a JSON payload fails schema validation.
// An empty InstancePath means the document shape itself is invalid; a
// non-empty path names the offending field.
type Error struct {
	Reason       string `json:"reason"`
	InstancePath string `json:"instance"`
}

func (e Error) Error() string {
	if e.InstancePath == "" {
		return fmt.Sprintf("Invalid document: %s", e.Reason)
	}
	return fmt.Sprintf("Invalid field %s: %s", e.InstancePath, e.Reason)
}

// Validates a JSON document against the named schema. Property defaults
// declared by the schema are applied to the document in place before
// structural validation.
func ValidateJSON(schemaType string, doc core.Document) error {
	schema, err := schemas.GetJSONSchema(schemaType)
	if err != nil {
		return err
	}
	raw, err := schemas.GetRawSchema(schemaType)
	if err != nil {
		return err
	}

	var schemaDoc map[string]any
	if err := json.Unmarshal(raw, &schemaDoc); err != nil {
		return err
	}
	applyDefaults(schemaDoc, doc)

	// the validator requires a generic representation, which a decoded
	// document already is
	if err := schema.Validate(map[string]any(doc)); err != nil {
		var validationErr *jsonschema.ValidationError
		if ok := asValidationError(err, &validationErr); ok {
			leaf := leafCause(validationErr)
			return Error{
				Reason:       leaf.Message,
				InstancePath: leaf.InstanceLocation,
			}
		}
		return err
	}
	return nil
}

func asValidationError(err error, target **jsonschema.ValidationError) bool {
	if ve, ok := err.(*jsonschema.ValidationError); ok {
		*target = ve
		return true
	}
	return false
}

// walks to the most specific cause of a validation failure
func leafCause(err *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(err.Causes) > 0 {
		err = err.Causes[0]
	}
	return err
}

// Applies the schema's property defaults to an instance in place: absent
// fields with a declared default are filled in, and nested objects and array
// elements are visited recursively.
func applyDefaults(schemaDoc map[string]any, instance map[string]any) {
	properties, ok := schemaDoc["properties"].(map[string]any)
	if !ok {
		return
	}
	for name, raw := range properties {
		property, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if value, present := instance[name]; present {
			switch typed := value.(type) {
			case map[string]any:
				applyDefaults(property, typed)
			case []any:
				items, ok := property["items"].(map[string]any)
				if !ok {
					continue
				}
				for _, element := range typed {
					if elementMap, ok := element.(map[string]any); ok {
						applyDefaults(items, elementMap)
					}
				}
			}
		} else if defaultValue, has := property["default"]; has {
			instance[name] = defaultValue
		}
	}
}

// the result of XML validation
type XMLReport struct {
	Valid  bool    `json:"valid"`
	Detail *Detail `json:"detail,omitempty"`
}

// detail for a single XML validation failure, carrying the source line of
// the offending element
type Detail struct {
	Reason   string `json:"reason"`
	Instance string `json:"instance"`
	Line     int    `json:"line"`
}

// Validates an XML payload against the named schema type: the text must be
// well-formed and its root element must match the schema's XML profile.
// Structural validation of the content happens after canonical conversion
// (see the parsers package).
func ValidateXML(schemaType string, text []byte) (XMLReport, error) {
	profile, err := schemas.GetXMLProfile(schemaType)
	if err != nil {
		return XMLReport{}, err
	}

	root, line, err := wellFormedRoot(text)
	if err != nil {
		return XMLReport{
			Valid: false,
			Detail: &Detail{
				Reason:   err.Error(),
				Instance: root,
				Line:     line,
			},
		}, nil
	}
	if root != profile.RootElement && root != profile.ObjectElement {
		lines := NewLineIndex(text)
		return XMLReport{
			Valid: false,
			Detail: &Detail{
				Reason: fmt.Sprintf("Unexpected root element %s (expected %s)",
					root, profile.RootElement),
				Instance: root,
				Line:     lines.Locate(root),
			},
		}, nil
	}
	return XMLReport{Valid: true}, nil
}

// A LineIndex attributes errors to source lines by locating element tags in
// the original text, consuming the first unused occurrence per lookup.
type LineIndex struct {
	lines []string
	used  map[string]int
}

func NewLineIndex(text []byte) *LineIndex {
	return &LineIndex{
		lines: strings.Split(string(text), "\n"),
		used:  make(map[string]int),
	}
}

// returns the 1-based line of the first unused occurrence of the given tag,
// or 0 if the tag does not occur (again)
func (index *LineIndex) Locate(tag string) int {
	if tag == "" {
		return 0
	}
	needle := "<" + tag
	occurrence := 0
	for i, line := range index.lines {
		for column := 0; ; {
			next := strings.Index(line[column:], needle)
			if next < 0 {
				break
			}
			column += next + len(needle)
			// require a delimiter so <RUN> doesn't match <RUN_SET>
			if column < len(line) {
				switch line[column] {
				case ' ', '>', '/', '\t':
				default:
					continue
				}
			}
			if occurrence == index.used[tag] {
				index.used[tag]++
				return i + 1
			}
			occurrence++
		}
	}
	return 0
}
