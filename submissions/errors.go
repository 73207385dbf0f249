package submissions

import (
	"fmt"
)

// indicates an attempt to mutate a submission after publication
type PublishedError struct {
	Id string
}

func (e PublishedError) Error() string {
	return fmt.Sprintf("Submission %s is published and can no longer be modified.", e.Id)
}

// indicates a document update that tries to change an immutable field
type ImmutableFieldError struct {
	Field string
}

func (e ImmutableFieldError) Error() string {
	return fmt.Sprintf("The %s of a submission cannot be changed.", e.Field)
}

// indicates a document update that drops a preserved sub-document
type MissingBlockError struct {
	Block string
}

func (e MissingBlockError) Error() string {
	return fmt.Sprintf("A submission update may not remove its %s block.", e.Block)
}

// indicates a patch operation outside the allowed paths
type ForbiddenPatchError struct {
	Path string
}

func (e ForbiddenPatchError) Error() string {
	return fmt.Sprintf("Patching %s is not allowed.", e.Path)
}

// indicates a malformed or inapplicable patch document
type BadPatchError struct {
	Message string
}

func (e BadPatchError) Error() string {
	return fmt.Sprintf("Invalid patch: %s", e.Message)
}

// indicates a create payload missing a mandatory field
type BadDocumentError struct {
	Message string
}

func (e BadDocumentError) Error() string {
	return fmt.Sprintf("Invalid submission document: %s", e.Message)
}

// indicates a caller who is not a member of the submission's project
type OwnershipError struct {
	UserId       string
	SubmissionId string
}

func (e OwnershipError) Error() string {
	return fmt.Sprintf("User %s does not own submission %s.", e.UserId, e.SubmissionId)
}
