package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bioarchive/mss/config"
	"github.com/bioarchive/mss/core"
)

// The archive pipeline reports file progress back through the ingest-status
// callback, and a background sweep marks a submission ingested once every
// file of a published submission has reached the ready state.

type FileStatusOutput struct {
	Body core.File `doc:"the file record after the transition"`
}

// Handler method for the ingest-status callback. Transitions follow the
// partial order added -> verified -> ready, with failed reachable from any
// non-terminal state.
func (service *metadataService) updateFileStatus(ctx context.Context,
	input *struct {
		Authorization string `header:"authorization" doc:"Authorization header with a session token"`
		ApiKey        string `header:"x-api-key" doc:"API key issued by this service"`
		Id            string `path:"id" doc:"the accession identifier of the file"`
		Body          struct {
			IngestStatus string `json:"ingestStatus" enum:"verified,ready,failed" doc:"the state the file has reached"`
			IngestError  string `json:"ingestError,omitempty" doc:"the error detail for failed transitions"`
			ErrorType    string `json:"errorType,omitempty" doc:"the pipeline's error classification"`
		}
	}) (*FileStatusOutput, error) {

	user, err := service.authorize(ctx, input.Authorization, input.ApiKey)
	if err != nil {
		return nil, err
	}
	file, err := service.store.GetFile(ctx, input.Id)
	if err != nil {
		return nil, apiError(err)
	}
	submission, err := service.store.GetSubmission(ctx, file.SubmissionId)
	if err != nil {
		return nil, apiError(err)
	}
	if err := service.checkProject(user, submission.ProjectId); err != nil {
		return nil, err
	}

	status := core.IngestStatus(input.Body.IngestStatus)
	if err := service.store.SetFileIngestStatus(ctx, input.Id, status,
		input.Body.IngestError, input.Body.ErrorType); err != nil {
		return nil, apiError(err)
	}
	if status == core.IngestStatusReady {
		if err := service.reconcileIngestState(ctx, file.SubmissionId); err != nil {
			slog.Error(fmt.Sprintf("Couldn't reconcile ingest state of %s: %s",
				file.SubmissionId, err.Error()))
		}
	}

	updated, err := service.store.GetFile(ctx, input.Id)
	if err != nil {
		return nil, apiError(err)
	}
	return &FileStatusOutput{Body: *updated}, nil
}

// marks a published submission ingested once all of its files are ready
func (service *metadataService) reconcileIngestState(ctx context.Context,
	submissionId string) error {

	files, err := service.store.ListFiles(ctx, core.FileFilter{SubmissionId: submissionId})
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return nil
	}
	for _, file := range files {
		if file.IngestStatus != core.IngestStatusReady {
			return nil
		}
	}

	return service.store.UpdateSubmission(ctx, submissionId, func(s *core.Submission) error {
		if !s.Published || s.Ingested {
			return nil
		}
		now := time.Now().UTC()
		s.Ingested = true
		s.IngestedAt = &now
		slog.Info(fmt.Sprintf("Submission %s is fully ingested", s.Id))
		return nil
	})
}

// Sweeps published submissions whose ingestion has not completed, catching
// status transitions whose callbacks were missed. Runs until the context is
// canceled.
func (service *metadataService) runIngestSweep(ctx context.Context) {
	ticker := time.NewTicker(config.Service.PollingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			service.sweepIngestState(ctx)
		}
	}
}

func (service *metadataService) sweepIngestState(ctx context.Context) {
	published, notIngested := true, false
	pending, _, err := service.store.ListSubmissions(ctx, core.SubmissionFilter{
		Published: &published,
		Ingested:  &notIngested,
	}, core.Page{})
	if err != nil {
		slog.Error(fmt.Sprintf("Ingest sweep failed: %s", err.Error()))
		return
	}
	for i := range pending {
		if err := service.reconcileIngestState(ctx, pending[i].Id); err != nil {
			slog.Error(fmt.Sprintf("Couldn't reconcile ingest state of %s: %s",
				pending[i].Id, err.Error()))
		}
	}
}
