package submissions

import (
	"context"
	"encoding/json"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/bioarchive/mss/core"
	"github.com/bioarchive/mss/workflows"
)

// The submission service enforces submission-level invariants on top of the
// repository: forbidden and immutable fields, preserved sub-documents, the
// published-state guard and project ownership.

// fields managed by the repository that clients may not supply or patch
var managedFields = []string{
	"submissionId", "dateCreated", "lastModified", "datePublished",
	"dateIngested", "published", "ingested",
}

// the persistence operations the service needs
type Repository interface {
	AddSubmission(ctx context.Context, s *core.Submission) error
	GetSubmission(ctx context.Context, id string) (*core.Submission, error)
	GetSubmissionByIdOrName(ctx context.Context, projectId, token string) (*core.Submission, error)
	ListSubmissions(ctx context.Context, filter core.SubmissionFilter,
		page core.Page) ([]core.Submission, int, error)
	UpdateSubmission(ctx context.Context, id string, mutate func(s *core.Submission) error) error
	DeleteSubmission(ctx context.Context, id string) (bool, error)
	UserOwnsSubmission(ctx context.Context, userId, submissionId string) (bool, error)
}

type Service struct {
	store Repository
}

func NewService(store Repository) *Service {
	return &Service{store: store}
}

// Creates a submission from a client-supplied document: managed fields are
// stripped, the structured columns are copied out, and the rest is stored
// in the submission's document.
func (service *Service) Create(ctx context.Context, document core.Document) (*core.Submission, error) {
	document = core.CopyDocument(document)
	core.StripFields(document, managedFields...)

	submission := &core.Submission{
		Name:         core.StringField(document, "name"),
		ProjectId:    core.StringField(document, "projectId"),
		WorkflowName: core.StringField(document, "workflow"),
		Folder:       core.StringField(document, "linkedFolder"),
		Title:        core.StringField(document, "title"),
		Description:  core.StringField(document, "description"),
	}
	if submission.Name == "" {
		return nil, BadDocumentError{Message: "a name is required"}
	}
	if submission.ProjectId == "" {
		return nil, BadDocumentError{Message: "a projectId is required"}
	}
	if _, err := workflows.Get(submission.WorkflowName); err != nil {
		return nil, err
	}

	core.StripFields(document, "name", "projectId", "workflow", "linkedFolder")
	submission.Document = document
	if err := service.store.AddSubmission(ctx, submission); err != nil {
		return nil, err
	}
	return submission, nil
}

// retrieves a submission by accession or (project, name)
func (service *Service) Get(ctx context.Context, projectId, token string) (*core.Submission, error) {
	return service.store.GetSubmissionByIdOrName(ctx, projectId, token)
}

// lists submissions matching the filter, with the total match count
func (service *Service) List(ctx context.Context, filter core.SubmissionFilter,
	page core.Page) ([]core.Submission, int, error) {
	return service.store.ListSubmissions(ctx, filter, page)
}

// the stored document merged with the repository-managed fields
func Document(s *core.Submission) core.Document {
	document := core.CopyDocument(s.Document)
	document["submissionId"] = s.Id
	document["name"] = s.Name
	document["projectId"] = s.ProjectId
	document["workflow"] = s.WorkflowName
	if s.Folder != "" {
		document["linkedFolder"] = s.Folder
	}
	if s.Title != "" {
		document["title"] = s.Title
	}
	if s.Description != "" {
		document["description"] = s.Description
	}
	document["published"] = s.Published
	document["ingested"] = s.Ingested
	document["dateCreated"] = s.CreatedAt
	document["lastModified"] = s.ModifiedAt
	if s.PublishedAt != nil {
		document["datePublished"] = *s.PublishedAt
	}
	if s.IngestedAt != nil {
		document["dateIngested"] = *s.IngestedAt
	}
	return document
}

// retrieves a submission's merged document
func (service *Service) GetDocument(ctx context.Context, id string) (core.Document, error) {
	submission, err := service.store.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	return Document(submission), nil
}

// applies a field update under the published-state guard
func (service *Service) update(ctx context.Context, id string,
	mutate func(s *core.Submission) error) (*core.Submission, error) {

	var updated *core.Submission
	err := service.store.UpdateSubmission(ctx, id, func(s *core.Submission) error {
		if s.Published {
			return PublishedError{Id: s.Id}
		}
		if err := mutate(s); err != nil {
			return err
		}
		updated = s
		return nil
	})
	return updated, err
}

func (service *Service) UpdateName(ctx context.Context, id, name string) (*core.Submission, error) {
	return service.update(ctx, id, func(s *core.Submission) error {
		if name == "" {
			return BadDocumentError{Message: "a name is required"}
		}
		s.Name = name
		return nil
	})
}

func (service *Service) UpdateDescription(ctx context.Context, id, description string) (*core.Submission, error) {
	return service.update(ctx, id, func(s *core.Submission) error {
		s.Description = description
		return nil
	})
}

// The linked folder may be set once; changing it afterwards is refused.
func (service *Service) UpdateFolder(ctx context.Context, id, folder string) (*core.Submission, error) {
	return service.update(ctx, id, func(s *core.Submission) error {
		if s.Folder != "" && s.Folder != folder {
			return ImmutableFieldError{Field: "linked folder"}
		}
		s.Folder = folder
		return nil
	})
}

func (service *Service) UpdateDOIInfo(ctx context.Context, id string, doiInfo core.Document) (*core.Submission, error) {
	return service.update(ctx, id, func(s *core.Submission) error {
		s.Document["doiInfo"] = doiInfo
		return nil
	})
}

func (service *Service) UpdateRems(ctx context.Context, id string, rems core.Document) (*core.Submission, error) {
	return service.update(ctx, id, func(s *core.Submission) error {
		s.Document["rems"] = rems
		return nil
	})
}

// Replaces a submission's document wholesale. Immutable fields must keep
// their values and preserved sub-documents may not be dropped.
func (service *Service) UpdateDocument(ctx context.Context, id string,
	document core.Document) (*core.Submission, error) {

	return service.update(ctx, id, func(s *core.Submission) error {
		document := core.CopyDocument(document)
		core.StripFields(document, managedFields...)

		if workflow := core.StringField(document, "workflow"); workflow != "" &&
			workflow != s.WorkflowName {
			return ImmutableFieldError{Field: "workflow"}
		}
		if projectId := core.StringField(document, "projectId"); projectId != "" &&
			projectId != s.ProjectId {
			return ImmutableFieldError{Field: "project"}
		}
		folder := core.StringField(document, "linkedFolder")
		if s.Folder != "" && folder != "" && folder != s.Folder {
			return ImmutableFieldError{Field: "linked folder"}
		}
		for _, block := range []string{"doiInfo", "rems"} {
			if _, preserved := s.Document[block]; preserved {
				if _, present := document[block]; !present {
					return MissingBlockError{Block: block}
				}
			}
		}

		if name := core.StringField(document, "name"); name != "" {
			s.Name = name
		}
		if folder != "" {
			s.Folder = folder
		}
		s.Title = core.StringField(document, "title")
		s.Description = core.StringField(document, "description")
		core.StripFields(document, "name", "projectId", "workflow", "linkedFolder")
		s.Document = document
		return nil
	})
}

// patch paths accepted on a submission; anything else is refused
func allowedPatchPath(path string) bool {
	switch path {
	case "/name", "/description", "/doiInfo", "/rems",
		"/metadataObjects/-", "/drafts/-":
		return true
	}
	return strings.HasPrefix(path, "/doiInfo/") || strings.HasPrefix(path, "/rems/")
}

// Applies a JSON-patch document to a submission, restricted to the allowed
// paths.
func (service *Service) Patch(ctx context.Context, id string, patchData []byte) (*core.Submission, error) {
	patch, err := jsonpatch.DecodePatch(patchData)
	if err != nil {
		return nil, BadPatchError{Message: err.Error()}
	}
	for _, operation := range patch {
		path, err := operation.Path()
		if err != nil {
			return nil, BadPatchError{Message: err.Error()}
		}
		if !allowedPatchPath(path) {
			return nil, ForbiddenPatchError{Path: path}
		}
	}

	return service.update(ctx, id, func(s *core.Submission) error {
		document := core.CopyDocument(s.Document)
		document["name"] = s.Name
		document["description"] = s.Description
		// appends target these arrays even when nothing was stored yet
		if document["metadataObjects"] == nil {
			document["metadataObjects"] = []any{}
		}
		if document["drafts"] == nil {
			document["drafts"] = []any{}
		}

		data, err := json.Marshal(document)
		if err != nil {
			return err
		}
		patched, err := patch.Apply(data)
		if err != nil {
			return BadPatchError{Message: err.Error()}
		}
		var next core.Document
		if err := json.Unmarshal(patched, &next); err != nil {
			return err
		}

		if name := core.StringField(next, "name"); name != "" {
			s.Name = name
		}
		s.Description = core.StringField(next, "description")
		core.StripFields(next, "name", "description")
		s.Document = next
		return nil
	})
}

// deletes a submission; published submissions cannot be deleted
func (service *Service) Delete(ctx context.Context, id string) error {
	submission, err := service.store.GetSubmission(ctx, id)
	if err != nil {
		return err
	}
	if submission.Published {
		return PublishedError{Id: id}
	}
	_, err = service.store.DeleteSubmission(ctx, id)
	return err
}

// checks that a user belongs to the submission's owning project
func (service *Service) CheckOwnership(ctx context.Context, userId, submissionId string) error {
	owns, err := service.store.UserOwnsSubmission(ctx, userId, submissionId)
	if err != nil {
		return err
	}
	if !owns {
		return OwnershipError{UserId: userId, SubmissionId: submissionId}
	}
	return nil
}

// raises a conflict when the submission is already published
func (service *Service) CheckNotPublished(ctx context.Context, id string) error {
	submission, err := service.store.GetSubmission(ctx, id)
	if err != nil {
		return err
	}
	if submission.Published {
		return PublishedError{Id: id}
	}
	return nil
}
