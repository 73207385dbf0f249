package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/bioarchive/mss/config"
	"github.com/bioarchive/mss/core"
	"github.com/bioarchive/mss/manifests"
	"github.com/bioarchive/mss/submissions"
)

const defaultPageSize = 10

type SubmissionIdOutput struct {
	Body   SubmissionIdResponse `doc:"the accession identifier of the submission"`
	Status int
}

// handler method for creating a submission from a client-supplied document
func (service *metadataService) createSubmission(ctx context.Context,
	input *struct {
		Authorization string        `header:"authorization" doc:"Authorization header with a session token"`
		ApiKey        string        `header:"x-api-key" doc:"API key issued by this service"`
		Body          core.Document `doc:"the submission document, including name, projectId and workflow"`
	}) (*SubmissionIdOutput, error) {

	user, err := service.authorize(ctx, input.Authorization, input.ApiKey)
	if err != nil {
		return nil, err
	}
	if projectId := core.StringField(input.Body, "projectId"); projectId != "" {
		if err := service.checkProject(user, projectId); err != nil {
			return nil, err
		}
	}

	submission, err := service.submissions.Create(ctx, input.Body)
	if err != nil {
		return nil, apiError(err)
	}
	slog.Info(fmt.Sprintf("Created submission %s in project %s",
		submission.Id, submission.ProjectId))
	return &SubmissionIdOutput{
		Body:   SubmissionIdResponse{SubmissionId: submission.Id},
		Status: http.StatusCreated,
	}, nil
}

type SubmissionListOutput struct {
	Body SubmissionListResponse `doc:"one page of matching submissions"`
	Link string                 `header:"Link" doc:"RFC 5988 pagination links"`
}

// handler method for the paginated submission listing
func (service *metadataService) listSubmissions(ctx context.Context,
	input *struct {
		Authorization string `header:"authorization" doc:"Authorization header with a session token"`
		ApiKey        string `header:"x-api-key" doc:"API key issued by this service"`
		ProjectId     string `query:"projectId" doc:"the owning project"`
		Name          string `query:"name" doc:"a substring of the submission name"`
		Published     string `query:"published" enum:",true,false" doc:"filter on the published flag"`
		CreatedStart  string `query:"date_created_start" doc:"YYYY-MM-DD"`
		CreatedEnd    string `query:"date_created_end" doc:"YYYY-MM-DD"`
		ModifiedStart string `query:"date_modified_start" doc:"YYYY-MM-DD"`
		ModifiedEnd   string `query:"date_modified_end" doc:"YYYY-MM-DD"`
		Sort          string `query:"sort" enum:",dateCreated,lastModified" doc:"sort order, newest first"`
		Page          int    `query:"page" minimum:"0" doc:"1-based page number"`
		PerPage       int    `query:"per_page" minimum:"0" maximum:"100" doc:"page size"`
	}) (*SubmissionListOutput, error) {

	user, err := service.authorize(ctx, input.Authorization, input.ApiKey)
	if err != nil {
		return nil, err
	}
	if input.ProjectId == "" {
		return nil, huma.Error400BadRequest("A projectId parameter is required")
	}
	if err := service.checkProject(user, input.ProjectId); err != nil {
		return nil, err
	}

	filter := core.SubmissionFilter{
		ProjectId: input.ProjectId,
		Name:      input.Name,
		Sort:      core.SortOrder(input.Sort),
	}
	switch input.Published {
	case "":
	case "true", "false":
		published := input.Published == "true"
		filter.Published = &published
	}
	filter.CreatedStart, filter.CreatedEnd, err = dateRange(input.CreatedStart, input.CreatedEnd)
	if err != nil {
		return nil, err
	}
	filter.ModifiedStart, filter.ModifiedEnd, err = dateRange(input.ModifiedStart, input.ModifiedEnd)
	if err != nil {
		return nil, err
	}

	page := core.Page{Number: input.Page, Size: input.PerPage}
	if page.Number < 1 {
		page.Number = 1
	}
	if page.Size < 1 {
		page.Size = defaultPageSize
	}

	matches, total, err := service.submissions.List(ctx, filter, page)
	if err != nil {
		return nil, apiError(err)
	}
	documents := make([]core.Document, 0, len(matches))
	for i := range matches {
		documents = append(documents, submissions.Document(&matches[i]))
	}
	pageInfo := core.NewPageInfo(page, total)
	return &SubmissionListOutput{
		Body: SubmissionListResponse{Page: pageInfo, Submissions: documents},
		Link: linkHeader(config.Service.BaseURL, "/v1/submissions", page, pageInfo.TotalPages),
	}, nil
}

type SubmissionDocumentOutput struct {
	Body core.Document `doc:"the submission's merged document"`
}

// looks up a submission by accession, or by name within a given project
func (service *metadataService) resolveSubmission(ctx context.Context,
	user caller, projectId, token string) (*core.Submission, error) {

	submission, err := service.submissions.Get(ctx, projectId, token)
	if err != nil {
		return nil, apiError(err)
	}
	if err := service.checkProject(user, submission.ProjectId); err != nil {
		return nil, err
	}
	return submission, nil
}

// handler method for fetching one submission's document
func (service *metadataService) getSubmission(ctx context.Context,
	input *struct {
		Authorization string `header:"authorization" doc:"Authorization header with a session token"`
		ApiKey        string `header:"x-api-key" doc:"API key issued by this service"`
		Id            string `path:"id" doc:"the submission accession, or its name with projectId"`
		ProjectId     string `query:"projectId" doc:"the owning project, for lookups by name"`
	}) (*SubmissionDocumentOutput, error) {

	user, err := service.authorize(ctx, input.Authorization, input.ApiKey)
	if err != nil {
		return nil, err
	}
	submission, err := service.resolveSubmission(ctx, user, input.ProjectId, input.Id)
	if err != nil {
		return nil, err
	}
	return &SubmissionDocumentOutput{Body: submissions.Document(submission)}, nil
}

// handler method for replacing a submission's document wholesale
func (service *metadataService) replaceSubmission(ctx context.Context,
	input *struct {
		Authorization string        `header:"authorization" doc:"Authorization header with a session token"`
		ApiKey        string        `header:"x-api-key" doc:"API key issued by this service"`
		Id            string        `path:"id" doc:"the submission accession"`
		Body          core.Document `doc:"the replacement document"`
	}) (*SubmissionDocumentOutput, error) {

	user, err := service.authorize(ctx, input.Authorization, input.ApiKey)
	if err != nil {
		return nil, err
	}
	if _, err := service.resolveSubmission(ctx, user, "", input.Id); err != nil {
		return nil, err
	}
	updated, err := service.submissions.UpdateDocument(ctx, input.Id, input.Body)
	if err != nil {
		return nil, apiError(err)
	}
	return &SubmissionDocumentOutput{Body: submissions.Document(updated)}, nil
}

// handler method for patching a submission with a JSON-patch document
func (service *metadataService) patchSubmission(ctx context.Context,
	input *struct {
		Authorization string `header:"authorization" doc:"Authorization header with a session token"`
		ApiKey        string `header:"x-api-key" doc:"API key issued by this service"`
		Id            string `path:"id" doc:"the submission accession"`
		RawBody       []byte `doc:"a JSON-patch document restricted to the allowed paths" contentType:"application/json-patch+json"`
	}) (*SubmissionDocumentOutput, error) {

	user, err := service.authorize(ctx, input.Authorization, input.ApiKey)
	if err != nil {
		return nil, err
	}
	if _, err := service.resolveSubmission(ctx, user, "", input.Id); err != nil {
		return nil, err
	}
	updated, err := service.submissions.Patch(ctx, input.Id, input.RawBody)
	if err != nil {
		return nil, apiError(err)
	}
	return &SubmissionDocumentOutput{Body: submissions.Document(updated)}, nil
}

type SubmissionDeletionOutput struct {
	Status int
}

// handler method for deleting an unpublished submission
func (service *metadataService) deleteSubmission(ctx context.Context,
	input *struct {
		Authorization string `header:"authorization" doc:"Authorization header with a session token"`
		ApiKey        string `header:"x-api-key" doc:"API key issued by this service"`
		Id            string `path:"id" doc:"the submission accession"`
	}) (*SubmissionDeletionOutput, error) {

	user, err := service.authorize(ctx, input.Authorization, input.ApiKey)
	if err != nil {
		return nil, err
	}
	if _, err := service.resolveSubmission(ctx, user, "", input.Id); err != nil {
		return nil, err
	}
	if err := service.submissions.Delete(ctx, input.Id); err != nil {
		return nil, apiError(err)
	}
	return &SubmissionDeletionOutput{Status: http.StatusNoContent}, nil
}

type ManifestOutput struct {
	Body   []core.File `doc:"the file records created from the manifest"`
	Status int
}

// handler method for attaching a frictionless datapackage file manifest
func (service *metadataService) uploadManifest(ctx context.Context,
	input *struct {
		Authorization string `header:"authorization" doc:"Authorization header with a session token"`
		ApiKey        string `header:"x-api-key" doc:"API key issued by this service"`
		Id            string `path:"id" doc:"the submission accession"`
		RawBody       []byte `doc:"a datapackage descriptor listing the submission's files" contentType:"application/json"`
	}) (*ManifestOutput, error) {

	user, err := service.authorize(ctx, input.Authorization, input.ApiKey)
	if err != nil {
		return nil, err
	}
	submission, err := service.resolveSubmission(ctx, user, "", input.Id)
	if err != nil {
		return nil, err
	}
	if err := service.submissions.CheckNotPublished(ctx, submission.Id); err != nil {
		return nil, apiError(err)
	}

	files, err := manifests.Parse(submission.Id, input.RawBody)
	if err != nil {
		return nil, apiError(err)
	}
	for i := range files {
		if err := service.store.AddFile(ctx, &files[i]); err != nil {
			return nil, apiError(err)
		}
	}
	slog.Info(fmt.Sprintf("Attached %d files to submission %s",
		len(files), submission.Id))
	return &ManifestOutput{Body: files, Status: http.StatusCreated}, nil
}

// Handler method for publishing a submission. The request gets the longer
// publish deadline; external registrations run inside it.
func (service *metadataService) publishSubmission(ctx context.Context,
	input *struct {
		Authorization string `header:"authorization" doc:"Authorization header with a session token"`
		ApiKey        string `header:"x-api-key" doc:"API key issued by this service"`
		Id            string `path:"id" doc:"the submission accession"`
	}) (*SubmissionIdOutput, error) {

	user, err := service.authorize(ctx, input.Authorization, input.ApiKey)
	if err != nil {
		return nil, err
	}
	submission, err := service.resolveSubmission(ctx, user, "", input.Id)
	if err != nil {
		return nil, err
	}

	publishCtx, cancel := context.WithTimeout(ctx, config.Service.PublishTimeout)
	defer cancel()
	if err := service.orchestrator.Publish(publishCtx, submission.Id, user.UserName); err != nil {
		return nil, apiError(err)
	}
	slog.Info(fmt.Sprintf("Published submission %s", submission.Id))
	return &SubmissionIdOutput{
		Body:   SubmissionIdResponse{SubmissionId: submission.Id},
		Status: http.StatusOK,
	}, nil
}

type FilesOutput struct {
	Body []core.File `doc:"the matching file records"`
}

// handler method for listing a project's files with their ingest status
func (service *metadataService) listFiles(ctx context.Context,
	input *struct {
		Authorization string `header:"authorization" doc:"Authorization header with a session token"`
		ApiKey        string `header:"x-api-key" doc:"API key issued by this service"`
		ProjectId     string `query:"projectId" doc:"the owning project"`
		SubmissionId  string `query:"submissionId" doc:"restrict to one submission"`
	}) (*FilesOutput, error) {

	user, err := service.authorize(ctx, input.Authorization, input.ApiKey)
	if err != nil {
		return nil, err
	}
	if input.ProjectId == "" {
		return nil, huma.Error400BadRequest("A projectId parameter is required")
	}
	if err := service.checkProject(user, input.ProjectId); err != nil {
		return nil, err
	}

	files, err := service.store.ListFiles(ctx, core.FileFilter{
		ProjectId:    input.ProjectId,
		SubmissionId: input.SubmissionId,
	})
	if err != nil {
		return nil, apiError(err)
	}
	return &FilesOutput{Body: files}, nil
}
