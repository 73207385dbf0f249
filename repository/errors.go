package repository

import (
	"fmt"
)

// This error type is returned when an entity is sought but not found.
type NotFoundError struct {
	Kind, Id string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("The %s '%s' was not found", e.Kind, e.Id)
}

// indicates that an entity with the same identifying fields already exists
type DuplicateError struct {
	Kind, Name string
}

func (e DuplicateError) Error() string {
	return fmt.Sprintf("A %s named '%s' already exists", e.Kind, e.Name)
}

// indicates an attempt to move a file's ingest status against its partial
// order (added -> verified -> ready, failed from any non-terminal state)
type IngestTransitionError struct {
	FileId, From, To string
}

func (e IngestTransitionError) Error() string {
	return fmt.Sprintf("File '%s' cannot move from ingest status '%s' to '%s'",
		e.FileId, e.From, e.To)
}
