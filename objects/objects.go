package objects

import (
	"context"
	"sort"

	"github.com/bioarchive/mss/accession"
	"github.com/bioarchive/mss/core"
	"github.com/bioarchive/mss/parsers"
	"github.com/bioarchive/mss/schemas"
	"github.com/bioarchive/mss/validation"
	"github.com/bioarchive/mss/workflows"
)

// The object service accepts JSON or XML payloads, routes them through the
// validator and parser, attaches accession identifiers and enforces the
// workflow's single-instance rules on top of the repository.

// keys only the service may write into a stored document
var forbiddenKeys = []string{
	"accessionId", "publishDate", "dateCreated", "metaxIdentifier", "doi",
}

// the persistence operations the service needs
type Repository interface {
	AddObject(ctx context.Context, o *core.MetadataObject) error
	GetObject(ctx context.Context, id string) (*core.MetadataObject, error)
	ListObjects(ctx context.Context, filter core.ObjectFilter) ([]core.MetadataObject, error)
	CountObjectsByType(ctx context.Context, submissionId string) (map[string]int, error)
	UpdateObject(ctx context.Context, id string, mutate func(o *core.MetadataObject) error) error
	DeleteObject(ctx context.Context, id string) (bool, error)
	GetSubmission(ctx context.Context, id string) (*core.Submission, error)
}

type Service struct {
	store  Repository
	minter *accession.Minter
}

func NewService(store Repository) *Service {
	return &Service{store: store, minter: accession.NewMinter()}
}

// checks that the payload does not carry service-managed keys
func checkForbiddenKeys(document core.Document) error {
	var present []string
	for _, key := range forbiddenKeys {
		if _, found := document[key]; found {
			present = append(present, key)
		}
	}
	if len(present) > 0 {
		sort.Strings(present)
		return ForbiddenKeysError{Keys: present}
	}
	return nil
}

// loads the submission and refuses the operation once it is published
func (service *Service) mutableSubmission(ctx context.Context, submissionId string) (*core.Submission, error) {
	submission, err := service.store.GetSubmission(ctx, submissionId)
	if err != nil {
		return nil, err
	}
	if submission.Published {
		return nil, PublishedError{SubmissionId: submission.Id}
	}
	return submission, nil
}

// enforces the workflow's single-instance rule before adding one object
func checkSingleInstance(workflow *workflows.Workflow, submissionId, objectType string,
	counts map[string]int) error {

	if _, single := workflow.SingleInstanceSchemas()[objectType]; single &&
		counts[objectType] >= 1 {
		return SingleInstanceError{ObjectType: objectType, SubmissionId: submissionId}
	}
	return nil
}

// derives the searchable columns from a stored document
func extractMetadata(o *core.MetadataObject) {
	o.Name = core.StringField(o.Document, "alias")
	o.Title = core.StringField(o.Document, "title")
	o.Description = core.StringField(o.Document, "description")
	if descriptor, ok := o.Document["descriptor"].(map[string]any); ok {
		if o.Title == "" {
			o.Title = core.StringField(descriptor, "studyTitle")
		}
		if o.Description == "" {
			o.Description = core.StringField(descriptor, "studyAbstract")
		}
	}
}

// Adds one object from a JSON payload: the document is validated against
// the schema type, the single-instance rule is enforced, and a fresh
// accession is attached.
func (service *Service) AddJSON(ctx context.Context, submissionId, objectType string,
	payload core.Document) (*core.MetadataObject, error) {

	submission, err := service.mutableSubmission(ctx, submissionId)
	if err != nil {
		return nil, err
	}
	workflow, err := workflows.Get(submission.WorkflowName)
	if err != nil {
		return nil, err
	}

	payload = core.CopyDocument(payload)
	if err := checkForbiddenKeys(payload); err != nil {
		return nil, err
	}
	if err := validation.ValidateJSON(objectType, payload); err != nil {
		return nil, err
	}

	counts, err := service.store.CountObjectsByType(ctx, submissionId)
	if err != nil {
		return nil, err
	}
	if err := checkSingleInstance(workflow, submissionId, objectType, counts); err != nil {
		return nil, err
	}

	id, err := service.minter.New()
	if err != nil {
		return nil, err
	}
	object := &core.MetadataObject{
		Id:           id,
		SubmissionId: submissionId,
		ProjectId:    submission.ProjectId,
		ObjectType:   objectType,
		Document:     payload,
	}
	extractMetadata(object)
	if err := service.store.AddObject(ctx, object); err != nil {
		return nil, err
	}
	return object, nil
}

// Adds objects from an XML payload. One file may describe several logical
// objects; each gets its own accession. Objects are persisted in document
// order, so a single-instance violation partway through leaves the earlier
// objects in place. For Bigpicture types the minted accession is injected
// into the stored XML as an attribute on the object's element.
func (service *Service) AddXML(ctx context.Context, submissionId, objectType string,
	text []byte) ([]core.MetadataObject, error) {

	submission, err := service.mutableSubmission(ctx, submissionId)
	if err != nil {
		return nil, err
	}
	workflow, err := workflows.Get(submission.WorkflowName)
	if err != nil {
		return nil, err
	}
	profile, err := schemas.GetXMLProfile(objectType)
	if err != nil {
		return nil, err
	}

	report, err := validation.ValidateXML(objectType, text)
	if err != nil {
		return nil, err
	}
	if !report.Valid {
		return nil, InvalidXMLError{Reason: report.Detail.Reason, Line: report.Detail.Line}
	}
	parsed, err := parsers.Parse(objectType, text)
	if err != nil {
		return nil, err
	}

	counts, err := service.store.CountObjectsByType(ctx, submissionId)
	if err != nil {
		return nil, err
	}

	added := make([]core.MetadataObject, 0, len(parsed))
	for _, item := range parsed {
		if err := checkSingleInstance(workflow, submissionId, objectType, counts); err != nil {
			return added, err
		}
		id, err := service.minter.New()
		if err != nil {
			return added, err
		}
		stored := text
		if profile.Bigpicture {
			stored, err = parsers.InjectAccession(text, item.Element, item.ElementIndex, id)
			if err != nil {
				return added, err
			}
		}
		object := &core.MetadataObject{
			Id:           id,
			SubmissionId: submissionId,
			ProjectId:    submission.ProjectId,
			ObjectType:   objectType,
			Document:     item.Document,
			XMLDocument:  string(stored),
		}
		extractMetadata(object)
		if err := service.store.AddObject(ctx, object); err != nil {
			return added, err
		}
		counts[objectType]++
		added = append(added, *object)
	}
	return added, nil
}

// retrieves an object by its accession identifier
func (service *Service) Get(ctx context.Context, id string) (*core.MetadataObject, error) {
	return service.store.GetObject(ctx, id)
}

// the stored document merged with the service-managed fields
func Document(o *core.MetadataObject) core.Document {
	document := core.CopyDocument(o.Document)
	document["accessionId"] = o.Id
	document["schema"] = o.ObjectType
	document["dateCreated"] = o.CreatedAt
	document["lastModified"] = o.ModifiedAt
	return document
}

// Reads an object back in the requested format. XML reads return the
// original serialization and fail for JSON-sourced objects.
func (service *Service) Read(ctx context.Context, id, format string) (core.Document, string, error) {
	object, err := service.store.GetObject(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if format == "xml" {
		if object.XMLDocument == "" {
			return nil, "", NoXMLError{Id: id}
		}
		return nil, object.XMLDocument, nil
	}
	return Document(object), "", nil
}

// lists objects matching the filter
func (service *Service) List(ctx context.Context, filter core.ObjectFilter) ([]core.MetadataObject, error) {
	return service.store.ListObjects(ctx, filter)
}

// Replaces an object's document wholesale from a JSON payload. The stored
// XML no longer reflects the document, so it is dropped.
func (service *Service) ReplaceJSON(ctx context.Context, id string, payload core.Document) (*core.MetadataObject, error) {
	payload = core.CopyDocument(payload)
	if err := checkForbiddenKeys(payload); err != nil {
		return nil, err
	}

	var replaced *core.MetadataObject
	err := service.store.UpdateObject(ctx, id, func(o *core.MetadataObject) error {
		if _, err := service.mutableSubmission(ctx, o.SubmissionId); err != nil {
			return err
		}
		if err := validation.ValidateJSON(o.ObjectType, payload); err != nil {
			return err
		}
		o.Document = payload
		o.XMLDocument = ""
		extractMetadata(o)
		replaced = o
		return nil
	})
	return replaced, err
}

// Replaces an object from an XML payload, which must describe exactly one
// object. The existing accession is retained and re-injected for
// Bigpicture types.
func (service *Service) ReplaceXML(ctx context.Context, id string, text []byte) (*core.MetadataObject, error) {
	var replaced *core.MetadataObject
	err := service.store.UpdateObject(ctx, id, func(o *core.MetadataObject) error {
		if _, err := service.mutableSubmission(ctx, o.SubmissionId); err != nil {
			return err
		}
		report, err := validation.ValidateXML(o.ObjectType, text)
		if err != nil {
			return err
		}
		if !report.Valid {
			return InvalidXMLError{Reason: report.Detail.Reason, Line: report.Detail.Line}
		}
		parsed, err := parsers.Parse(o.ObjectType, text)
		if err != nil {
			return err
		}
		if len(parsed) != 1 {
			return NotSingularError{ObjectType: o.ObjectType, Count: len(parsed)}
		}
		profile, err := schemas.GetXMLProfile(o.ObjectType)
		if err != nil {
			return err
		}
		stored := text
		if profile.Bigpicture {
			stored, err = parsers.InjectAccession(text, parsed[0].Element,
				parsed[0].ElementIndex, o.Id)
			if err != nil {
				return err
			}
		}
		o.Document = parsed[0].Document
		o.XMLDocument = string(stored)
		extractMetadata(o)
		replaced = o
		return nil
	})
	return replaced, err
}

// Applies a partial JSON update by merging the given fields over the
// stored document. Nested objects merge recursively; everything else is
// replaced.
func (service *Service) Update(ctx context.Context, id string, partial core.Document) (*core.MetadataObject, error) {
	partial = core.CopyDocument(partial)
	if err := checkForbiddenKeys(partial); err != nil {
		return nil, err
	}

	var updated *core.MetadataObject
	err := service.store.UpdateObject(ctx, id, func(o *core.MetadataObject) error {
		if _, err := service.mutableSubmission(ctx, o.SubmissionId); err != nil {
			return err
		}
		merged := mergeDocuments(core.CopyDocument(o.Document), partial)
		if err := validation.ValidateJSON(o.ObjectType, merged); err != nil {
			return err
		}
		o.Document = merged
		extractMetadata(o)
		updated = o
		return nil
	})
	return updated, err
}

// deletes an object; objects of published submissions cannot be deleted
func (service *Service) Delete(ctx context.Context, id string) error {
	object, err := service.store.GetObject(ctx, id)
	if err != nil {
		return err
	}
	if _, err := service.mutableSubmission(ctx, object.SubmissionId); err != nil {
		return err
	}
	_, err = service.store.DeleteObject(ctx, id)
	return err
}

func mergeDocuments(base, overlay core.Document) core.Document {
	for key, value := range overlay {
		if next, ok := value.(map[string]any); ok {
			if existing, ok := base[key].(map[string]any); ok {
				base[key] = mergeDocuments(existing, next)
				continue
			}
		}
		base[key] = value
	}
	return base
}
