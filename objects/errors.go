package objects

import (
	"fmt"
	"strings"
)

// indicates a second object of a single-instance schema type
type SingleInstanceError struct {
	ObjectType   string
	SubmissionId string
}

func (e SingleInstanceError) Error() string {
	return fmt.Sprintf("Submission %s already holds a %s object and the workflow allows only one.",
		e.SubmissionId, e.ObjectType)
}

// indicates a payload carrying keys that only the service may write
type ForbiddenKeysError struct {
	Keys []string
}

func (e ForbiddenKeysError) Error() string {
	return fmt.Sprintf("The payload may not carry the keys: %s", strings.Join(e.Keys, ", "))
}

// indicates an attempt to modify objects of a published submission
type PublishedError struct {
	SubmissionId string
}

func (e PublishedError) Error() string {
	return fmt.Sprintf("Submission %s is published; its objects can no longer be modified.",
		e.SubmissionId)
}

// indicates an XML payload that failed schema validation
type InvalidXMLError struct {
	Reason string
	Line   int
}

func (e InvalidXMLError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("Invalid XML (line %d): %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("Invalid XML: %s", e.Reason)
}

// indicates a read in XML format of an object that has no stored XML
type NoXMLError struct {
	Id string
}

func (e NoXMLError) Error() string {
	return fmt.Sprintf("Object %s was not submitted as XML.", e.Id)
}

// indicates a replacement file that does not describe exactly one object
type NotSingularError struct {
	ObjectType string
	Count      int
}

func (e NotSingularError) Error() string {
	return fmt.Sprintf("A replacement %s document must describe exactly one object, got %d.",
		e.ObjectType, e.Count)
}

// indicates a partial update in a format that cannot be patched
type UnsupportedMediaError struct {
	Format string
}

func (e UnsupportedMediaError) Error() string {
	return fmt.Sprintf("Partial updates are not supported for %s payloads.", e.Format)
}
