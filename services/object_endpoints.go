package services

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/bioarchive/mss/config"
	"github.com/bioarchive/mss/core"
	objectsvc "github.com/bioarchive/mss/objects"
	"github.com/bioarchive/mss/repository"
)

// loads an object and checks that the caller may touch it
func (service *metadataService) resolveObject(ctx context.Context,
	user caller, schema, id string) (*core.MetadataObject, error) {

	object, err := service.objects.Get(ctx, id)
	if err != nil {
		return nil, apiError(err)
	}
	if object.ObjectType != schema {
		return nil, apiError(repository.NotFoundError{Kind: "metadata object", Id: id})
	}
	if err := service.checkProject(user, object.ProjectId); err != nil {
		return nil, err
	}
	return object, nil
}

// checks that the caller may add objects to the given submission
func (service *metadataService) checkSubmissionAccess(ctx context.Context,
	user caller, submissionId string) error {

	submission, err := service.store.GetSubmission(ctx, submissionId)
	if err != nil {
		return apiError(err)
	}
	return service.checkProject(user, submission.ProjectId)
}

type CreateObjectsOutput struct {
	Body   []AccessionResponse `doc:"the accession identifiers of the created objects, in document order"`
	Status int
}

// Handler method for creating metadata objects. JSON bodies carry a single
// object; multipart bodies carry XML parts, each named by its schema type,
// and may fan out to several objects per part.
func (service *metadataService) createObjects(ctx context.Context,
	input *struct {
		Authorization string `header:"authorization" doc:"Authorization header with a session token"`
		ApiKey        string `header:"x-api-key" doc:"API key issued by this service"`
		ContentType   string `header:"content-type" doc:"application/json or multipart/form-data"`
		Schema        string `path:"schema" example:"study" doc:"the schema type of the payload"`
		SubmissionId  string `query:"submissionId" required:"true" doc:"the submission the objects belong to"`
		RawBody       []byte `doc:"the object payload"`
	}) (*CreateObjectsOutput, error) {

	user, err := service.authorize(ctx, input.Authorization, input.ApiKey)
	if err != nil {
		return nil, err
	}
	if err := service.checkSubmissionAccess(ctx, user, input.SubmissionId); err != nil {
		return nil, err
	}

	mediaType, params, err := mime.ParseMediaType(input.ContentType)
	if err != nil {
		return nil, huma.Error400BadRequest("The Content-Type header could not be parsed")
	}

	var accessions []AccessionResponse
	switch {
	case mediaType == "application/json":
		var payload core.Document
		if err := json.Unmarshal(input.RawBody, &payload); err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		object, err := service.objects.AddJSON(ctx, input.SubmissionId, input.Schema, payload)
		if err != nil {
			return nil, apiError(err)
		}
		accessions = []AccessionResponse{{AccessionId: object.Id}}

	case mediaType == "multipart/form-data":
		accessions, err = service.addXMLParts(ctx, input.SubmissionId, input.Schema,
			params["boundary"], input.RawBody)
		if err != nil {
			return nil, err
		}

	case strings.HasPrefix(mediaType, "multipart/"):
		// nested multipart containers are refused outright
		return nil, apiError(objectsvc.UnsupportedMediaError{Format: mediaType})

	default:
		return nil, apiError(objectsvc.UnsupportedMediaError{Format: mediaType})
	}

	return &CreateObjectsOutput{Body: accessions, Status: http.StatusCreated}, nil
}

// Feeds each XML part of a multipart upload through the object service. A
// part's form name selects its schema type and must match the request path.
func (service *metadataService) addXMLParts(ctx context.Context,
	submissionId, schema, boundary string, body []byte) ([]AccessionResponse, error) {

	if boundary == "" {
		return nil, huma.Error400BadRequest("The multipart payload has no boundary")
	}
	limit := config.Service.MaxXMLPayloadSize
	if int64(len(body)) > limit {
		return nil, huma.NewError(http.StatusRequestEntityTooLarge,
			"The XML payload exceeds the accepted size")
	}

	accessions := make([]AccessionResponse, 0)
	reader := multipart.NewReader(bytes.NewReader(body), boundary)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}

		partType, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if strings.HasPrefix(partType, "multipart/") {
			return nil, apiError(objectsvc.UnsupportedMediaError{Format: partType})
		}
		if partType != "text/xml" && partType != "application/xml" {
			return nil, apiError(objectsvc.UnsupportedMediaError{Format: partType})
		}
		if name := part.FormName(); name != "" && name != schema {
			return nil, huma.Error400BadRequest(
				"A part is named " + name + " but the request is for " + schema + " objects")
		}

		text, err := io.ReadAll(io.LimitReader(part, limit+1))
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		if int64(len(text)) > limit {
			return nil, huma.NewError(http.StatusRequestEntityTooLarge,
				"The XML payload exceeds the accepted size")
		}

		added, err := service.objects.AddXML(ctx, submissionId, schema, text)
		for _, object := range added {
			accessions = append(accessions, AccessionResponse{AccessionId: object.Id})
		}
		if err != nil {
			return nil, apiError(err)
		}
	}
	if len(accessions) == 0 {
		return nil, huma.Error400BadRequest("The multipart payload carries no XML parts")
	}
	return accessions, nil
}

type AccessionOutput struct {
	Body AccessionResponse `doc:"the accession identifier of the object"`
}

type ObjectListOutput struct {
	Body []core.Document `doc:"the matching objects' merged documents"`
}

// Handler method for the cross-type object listing. The object_type
// parameter takes a comma-separated list whose order becomes the primary
// sort key, with dateCreated ascending within each type.
func (service *metadataService) listSubmissionObjects(ctx context.Context,
	input *struct {
		Authorization string `header:"authorization" doc:"Authorization header with a session token"`
		ApiKey        string `header:"x-api-key" doc:"API key issued by this service"`
		SubmissionId  string `query:"submissionId" required:"true" doc:"the submission to list objects of"`
		ObjectType    string `query:"object_type" doc:"comma-separated schema types, in listing order"`
		Name          string `query:"name" doc:"restrict to objects with this alias"`
	}) (*ObjectListOutput, error) {

	user, err := service.authorize(ctx, input.Authorization, input.ApiKey)
	if err != nil {
		return nil, err
	}
	if err := service.checkSubmissionAccess(ctx, user, input.SubmissionId); err != nil {
		return nil, err
	}

	var objectTypes []string
	for _, name := range strings.Split(input.ObjectType, ",") {
		if name = strings.TrimSpace(name); name != "" {
			objectTypes = append(objectTypes, name)
		}
	}
	matches, err := service.objects.List(ctx, core.ObjectFilter{
		SubmissionId: input.SubmissionId,
		ObjectTypes:  objectTypes,
		Name:         input.Name,
	})
	if err != nil {
		return nil, apiError(err)
	}
	documents := make([]core.Document, 0, len(matches))
	for i := range matches {
		documents = append(documents, objectsvc.Document(&matches[i]))
	}
	return &ObjectListOutput{Body: documents}, nil
}

// handler method for listing a submission's objects of one schema type
func (service *metadataService) listObjects(ctx context.Context,
	input *struct {
		Authorization string `header:"authorization" doc:"Authorization header with a session token"`
		ApiKey        string `header:"x-api-key" doc:"API key issued by this service"`
		Schema        string `path:"schema" example:"study" doc:"the schema type to list"`
		SubmissionId  string `query:"submissionId" required:"true" doc:"the submission to list objects of"`
		Name          string `query:"name" doc:"restrict to objects with this alias"`
	}) (*ObjectListOutput, error) {

	user, err := service.authorize(ctx, input.Authorization, input.ApiKey)
	if err != nil {
		return nil, err
	}
	if err := service.checkSubmissionAccess(ctx, user, input.SubmissionId); err != nil {
		return nil, err
	}

	matches, err := service.objects.List(ctx, core.ObjectFilter{
		SubmissionId: input.SubmissionId,
		ObjectTypes:  []string{input.Schema},
		Name:         input.Name,
	})
	if err != nil {
		return nil, apiError(err)
	}
	documents := make([]core.Document, 0, len(matches))
	for i := range matches {
		documents = append(documents, objectsvc.Document(&matches[i]))
	}
	return &ObjectListOutput{Body: documents}, nil
}

type ObjectOutput struct {
	Body        []byte `doc:"the object in the requested format"`
	ContentType string `header:"Content-Type"`
}

// Handler method for reading one object back. The default representation is
// the merged JSON document; format=xml returns the original serialization
// and fails for JSON-sourced objects.
func (service *metadataService) getObject(ctx context.Context,
	input *struct {
		Authorization string `header:"authorization" doc:"Authorization header with a session token"`
		ApiKey        string `header:"x-api-key" doc:"API key issued by this service"`
		Schema        string `path:"schema" example:"study" doc:"the schema type of the object"`
		Id            string `path:"id" doc:"the accession identifier of the object"`
		Format        string `query:"format" enum:",json,xml" doc:"the representation to return"`
	}) (*ObjectOutput, error) {

	user, err := service.authorize(ctx, input.Authorization, input.ApiKey)
	if err != nil {
		return nil, err
	}
	if _, err := service.resolveObject(ctx, user, input.Schema, input.Id); err != nil {
		return nil, err
	}

	document, xmlText, err := service.objects.Read(ctx, input.Id, input.Format)
	if err != nil {
		return nil, apiError(err)
	}
	if input.Format == "xml" {
		return &ObjectOutput{Body: []byte(xmlText), ContentType: "text/xml"}, nil
	}
	encoded, err := json.Marshal(document)
	if err != nil {
		return nil, apiError(err)
	}
	return &ObjectOutput{Body: encoded, ContentType: "application/json"}, nil
}

type ObjectDocumentOutput struct {
	Body core.Document `doc:"the object's merged document"`
}

// Handler method for replacing an object wholesale. JSON replacements drop
// any stored XML; XML replacements must describe exactly one object.
func (service *metadataService) replaceObject(ctx context.Context,
	input *struct {
		Authorization string `header:"authorization" doc:"Authorization header with a session token"`
		ApiKey        string `header:"x-api-key" doc:"API key issued by this service"`
		ContentType   string `header:"content-type" doc:"application/json or text/xml"`
		Schema        string `path:"schema" example:"study" doc:"the schema type of the object"`
		Id            string `path:"id" doc:"the accession identifier of the object"`
		RawBody       []byte `doc:"the replacement payload"`
	}) (*AccessionOutput, error) {

	user, err := service.authorize(ctx, input.Authorization, input.ApiKey)
	if err != nil {
		return nil, err
	}
	if _, err := service.resolveObject(ctx, user, input.Schema, input.Id); err != nil {
		return nil, err
	}

	mediaType, _, err := mime.ParseMediaType(input.ContentType)
	if err != nil {
		return nil, huma.Error400BadRequest("The Content-Type header could not be parsed")
	}
	var replaced *core.MetadataObject
	switch mediaType {
	case "application/json":
		var payload core.Document
		if err := json.Unmarshal(input.RawBody, &payload); err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		replaced, err = service.objects.ReplaceJSON(ctx, input.Id, payload)
	case "text/xml", "application/xml":
		replaced, err = service.objects.ReplaceXML(ctx, input.Id, input.RawBody)
	default:
		return nil, apiError(objectsvc.UnsupportedMediaError{Format: mediaType})
	}
	if err != nil {
		return nil, apiError(err)
	}
	return &AccessionOutput{Body: AccessionResponse{AccessionId: replaced.Id}}, nil
}

// Handler method for partially updating an object. Only JSON merges are
// supported; XML payloads must use PUT.
func (service *metadataService) updateObject(ctx context.Context,
	input *struct {
		Authorization string `header:"authorization" doc:"Authorization header with a session token"`
		ApiKey        string `header:"x-api-key" doc:"API key issued by this service"`
		ContentType   string `header:"content-type" doc:"application/json"`
		Schema        string `path:"schema" example:"study" doc:"the schema type of the object"`
		Id            string `path:"id" doc:"the accession identifier of the object"`
		RawBody       []byte `doc:"the fields to merge over the stored document"`
	}) (*ObjectDocumentOutput, error) {

	user, err := service.authorize(ctx, input.Authorization, input.ApiKey)
	if err != nil {
		return nil, err
	}
	if _, err := service.resolveObject(ctx, user, input.Schema, input.Id); err != nil {
		return nil, err
	}

	mediaType, _, err := mime.ParseMediaType(input.ContentType)
	if err != nil {
		return nil, huma.Error400BadRequest("The Content-Type header could not be parsed")
	}
	if mediaType != "application/json" {
		return nil, apiError(objectsvc.UnsupportedMediaError{Format: mediaType})
	}
	var partial core.Document
	if err := json.Unmarshal(input.RawBody, &partial); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}

	updated, err := service.objects.Update(ctx, input.Id, partial)
	if err != nil {
		return nil, apiError(err)
	}
	return &ObjectDocumentOutput{Body: objectsvc.Document(updated)}, nil
}

type ObjectDeletionOutput struct {
	Status int
}

// handler method for deleting an object of an unpublished submission
func (service *metadataService) deleteObject(ctx context.Context,
	input *struct {
		Authorization string `header:"authorization" doc:"Authorization header with a session token"`
		ApiKey        string `header:"x-api-key" doc:"API key issued by this service"`
		Schema        string `path:"schema" example:"study" doc:"the schema type of the object"`
		Id            string `path:"id" doc:"the accession identifier of the object"`
	}) (*ObjectDeletionOutput, error) {

	user, err := service.authorize(ctx, input.Authorization, input.ApiKey)
	if err != nil {
		return nil, err
	}
	if _, err := service.resolveObject(ctx, user, input.Schema, input.Id); err != nil {
		return nil, err
	}
	if err := service.objects.Delete(ctx, input.Id); err != nil {
		return nil, apiError(err)
	}
	return &ObjectDeletionOutput{Status: http.StatusNoContent}, nil
}
