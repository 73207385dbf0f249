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

package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bioarchive/mss/config"
	"github.com/bioarchive/mss/core"
	"github.com/bioarchive/mss/external"
	"github.com/bioarchive/mss/journal"
	"github.com/bioarchive/mss/workflows"
)

// The publish orchestrator drives a submission through its workflow's
// external registrations: DOI minting, catalog records, access-management
// resources, then the atomic cut-over that marks the submission published.
// External identifiers are recorded incrementally with update-if-null
// semantics, so a re-invocation on a partially registered submission resumes
// from the first missing identifier.

// the persistence operations the orchestrator needs
type Repository interface {
	GetSubmission(ctx context.Context, id string) (*core.Submission, error)
	UpdateSubmission(ctx context.Context, id string, mutate func(s *core.Submission) error) error
	CountObjectsByType(ctx context.Context, submissionId string) (map[string]int, error)
	ListObjects(ctx context.Context, filter core.ObjectFilter) ([]core.MetadataObject, error)
	UpdateObject(ctx context.Context, id string, mutate func(o *core.MetadataObject) error) error
	UpsertRegistration(ctx context.Context, r *core.Registration) error
	ListRegistrations(ctx context.Context, submissionId string) ([]core.Registration, error)
	DeleteRegistrations(ctx context.Context, submissionId string) (bool, error)
	ListUnreconciledSubmissions(ctx context.Context) ([]string, error)
	ListFiles(ctx context.Context, filter core.FileFilter) ([]core.File, error)
	AssignFileToObject(ctx context.Context, fileId, objectId string) error
	Transact(ctx context.Context, fn func(ctx context.Context) error) error
}

// a DOI registrar with per-record metadata updates and draft deletion
type DOIRegistrar interface {
	CreateDraft(ctx context.Context, suffix string) (string, string, error)
	Update(ctx context.Context, doi string, attributes map[string]any) error
	DeleteDraft(ctx context.Context, doi string) error
	HealthCheck(ctx context.Context) error
}

// a persistent-identifier service minting DOIs on our behalf; drafts cannot
// be deleted once minted
type PIDRegistrar interface {
	CreateDraftDOI(ctx context.Context) (string, string, error)
	Publish(ctx context.Context, attributes map[string]any) error
	HealthCheck(ctx context.Context) error
}

// the discovery catalog
type Catalog interface {
	CreateDraft(ctx context.Context, organization, user string,
		researchDataset map[string]any) (string, error)
	BulkUpdate(ctx context.Context, datasets []map[string]any) error
	Publish(ctx context.Context, identifier string) (string, error)
	DeleteDraft(ctx context.Context, identifier string) error
	HealthCheck(ctx context.Context) error
}

// the access-management service
type AccessManager interface {
	ValidateWorkflowLicenses(ctx context.Context, organization string,
		workflowId int, licenseIds []int) error
	CreateResource(ctx context.Context, doi, organization string,
		licenseIds []int) (int, error)
	CreateCatalogueItem(ctx context.Context, resourceId, workflowId int,
		organization string, localizations map[string]any) (int, error)
	CatalogueItemURL(itemId int) string
	HealthCheck(ctx context.Context) error
}

// the ingestion admin service
type IngestAdmin interface {
	AssignAccession(ctx context.Context, user string, file *core.File) error
	IngestFile(ctx context.Context, user, path string) error
	HealthCheck(ctx context.Context) error
}

type Orchestrator struct {
	store    Repository
	datacite DOIRegistrar
	pid      PIDRegistrar
	catalog  Catalog
	access   AccessManager
	admin    IngestAdmin
	now      func() time.Time
}

// constructs an orchestrator wired to the configured external services
func NewOrchestrator(store Repository) *Orchestrator {
	return &Orchestrator{
		store:    store,
		datacite: external.NewDataCite(),
		pid:      external.NewPID(),
		catalog:  external.NewMetax(),
		access:   external.NewRems(),
		admin:    external.NewAdmin(),
		now:      time.Now,
	}
}

// Publishes a submission: pre-flight checks, the workflow's external
// registrations in order, then the atomic cut-over. Publishing an already
// published submission is a no-op. A permanent upstream rejection triggers
// compensation (draft deletion); a transient failure leaves the recorded
// identifiers in place for a later resume.
func (o *Orchestrator) Publish(ctx context.Context, submissionId, user string) error {
	submission, err := o.store.GetSubmission(ctx, submissionId)
	if err != nil {
		return err
	}
	if submission.Published {
		return nil
	}
	workflow, err := workflows.Get(submission.WorkflowName)
	if err != nil {
		return err
	}
	counts, err := o.store.CountObjectsByType(ctx, submissionId)
	if err != nil {
		return err
	}
	if err := workflow.SatisfiedBy(counts); err != nil {
		return err
	}
	endpoints := workflow.PublishConfiguration()
	if err := o.preflight(ctx, endpoints); err != nil {
		return err
	}

	started := o.now().UTC()
	registrations, err := o.execute(ctx, submission, endpoints, user)
	o.journalAttempt(submission, registrations, started, err)
	if err == nil {
		o.triggerIngest(ctx, submission, registrations, user)
		return nil
	}
	if isPermanent(err) {
		o.compensate(ctx, submission, endpoints, registrations)
	}
	return err
}

// checks that every service the workflow publishes to is reachable
func (o *Orchestrator) preflight(ctx context.Context, endpoints workflows.PublishConfig) error {
	if endpoints.DataCite != nil {
		var err error
		if endpoints.DataCite.Service == "pid" {
			err = o.pid.HealthCheck(ctx)
		} else {
			err = o.datacite.HealthCheck(ctx)
		}
		if err != nil {
			return UnhealthyServiceError{Service: endpoints.DataCite.Service, Err: err}
		}
	}
	if endpoints.Discovery != nil {
		if err := o.catalog.HealthCheck(ctx); err != nil {
			return UnhealthyServiceError{Service: endpoints.Discovery.Service, Err: err}
		}
	}
	if endpoints.Rems != nil {
		if err := o.access.HealthCheck(ctx); err != nil {
			return UnhealthyServiceError{Service: endpoints.Rems.Service, Err: err}
		}
	}
	return nil
}

// Runs the registration steps in order and returns the registrations
// accumulated so far, whether or not a step failed. Identifiers already
// recorded by an earlier attempt are reused, never re-minted.
func (o *Orchestrator) execute(ctx context.Context, submission *core.Submission,
	endpoints workflows.PublishConfig, user string) ([]*core.Registration, error) {

	registrations, err := o.gather(ctx, submission, endpoints)
	if err != nil {
		return registrations, err
	}

	if endpoints.DataCite != nil {
		if err := o.registerDOIs(ctx, submission, endpoints.DataCite, registrations); err != nil {
			return registrations, err
		}
	}
	if endpoints.Discovery != nil {
		if err := o.registerCatalog(ctx, submission, registrations, user); err != nil {
			return registrations, err
		}
	}
	if endpoints.Rems != nil {
		if err := o.registerAccess(ctx, submission, registrations); err != nil {
			return registrations, err
		}
	}
	return registrations, o.cutOver(ctx, submission.Id, registrations)
}

// Collects the objects the workflow registers externally, seeded with any
// registrations a previous attempt already recorded.
func (o *Orchestrator) gather(ctx context.Context, submission *core.Submission,
	endpoints workflows.PublishConfig) ([]*core.Registration, error) {

	types := make([]string, 0)
	seen := make(map[string]struct{})
	for _, endpoint := range []*workflows.PublishEndpoint{
		endpoints.DataCite, endpoints.Discovery, endpoints.Rems,
	} {
		if endpoint == nil {
			continue
		}
		for _, name := range endpoint.Schemas {
			if _, dup := seen[name]; !dup {
				seen[name] = struct{}{}
				types = append(types, name)
			}
		}
	}

	objects, err := o.store.ListObjects(ctx, core.ObjectFilter{
		SubmissionId: submission.Id,
		ObjectTypes:  types,
	})
	if err != nil {
		return nil, err
	}
	recorded, err := o.store.ListRegistrations(ctx, submission.Id)
	if err != nil {
		return nil, err
	}
	byObject := make(map[string]*core.Registration, len(recorded))
	for i := range recorded {
		byObject[recorded[i].ObjectId] = &recorded[i]
	}

	registrations := make([]*core.Registration, 0, len(objects))
	for _, object := range objects {
		registration, resumed := byObject[object.Id]
		if !resumed {
			registration = &core.Registration{
				SubmissionId: submission.Id,
				ObjectId:     object.Id,
				ObjectType:   object.ObjectType,
			}
		}
		registration.Title = object.Title
		registration.Description = object.Description
		registrations = append(registrations, registration)
	}
	return registrations, nil
}

// Mints a DOI for every registration lacking one, attaches it to the object
// and pushes the submission's DOI metadata to the registrar.
func (o *Orchestrator) registerDOIs(ctx context.Context, submission *core.Submission,
	endpoint *workflows.PublishEndpoint, registrations []*core.Registration) error {

	for _, registration := range registrations {
		if registration.DOI == "" {
			var doi, landingURL string
			var err error
			if endpoint.Service == "pid" {
				doi, landingURL, err = o.pid.CreateDraftDOI(ctx)
			} else {
				doi, landingURL, err = o.datacite.CreateDraft(ctx,
					strings.ToLower(registration.ObjectId))
			}
			if err != nil {
				return err
			}
			registration.DOI = doi
			registration.DataCiteURL = landingURL
			if err := o.store.UpsertRegistration(ctx, registration); err != nil {
				return err
			}
		}
		err := o.store.UpdateObject(ctx, registration.ObjectId, func(object *core.MetadataObject) error {
			if core.StringField(object.Document, "doi") == "" {
				object.Document["doi"] = registration.DOI
			}
			return nil
		})
		if err != nil {
			return err
		}

		attributes := doiAttributes(submission, registration, o.now().UTC())
		if endpoint.Service == "pid" {
			err = o.pid.Publish(ctx, attributes)
		} else {
			err = o.datacite.Update(ctx, registration.DOI, attributes)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// the DOI metadata payload: the submission's doiInfo block merged with the
// per-object title and description
func doiAttributes(submission *core.Submission, registration *core.Registration,
	now time.Time) map[string]any {

	attributes := make(map[string]any)
	if doiInfo, ok := submission.Document["doiInfo"].(map[string]any); ok {
		for key, value := range doiInfo {
			attributes[key] = value
		}
	}
	attributes["doi"] = registration.DOI
	attributes["prefix"] = strings.SplitN(registration.DOI, "/", 2)[0]
	attributes["publicationYear"] = now.Year()
	if registration.DataCiteURL != "" {
		attributes["url"] = registration.DataCiteURL
	}
	if registration.Title != "" {
		attributes["titles"] = []map[string]any{{"title": registration.Title}}
	}
	if registration.Description != "" {
		attributes["descriptions"] = []map[string]any{{
			"description":     registration.Description,
			"descriptionType": "Abstract",
		}}
	}
	return attributes
}

// Files a draft catalog record per registration, refreshes all drafts with
// the final DOI metadata in one bulk call, then promotes each draft.
func (o *Orchestrator) registerCatalog(ctx context.Context, submission *core.Submission,
	registrations []*core.Registration, user string) error {

	if user == "" {
		user = config.Metax.User
	}
	doiInfo, _ := submission.Document["doiInfo"].(map[string]any)

	updates := make([]map[string]any, 0, len(registrations))
	for _, registration := range registrations {
		if registration.DOI == "" {
			return MissingDOIError{ObjectId: registration.ObjectId}
		}
		dataset := external.ResearchDataset(doiInfo, registration.Title,
			registration.Description)
		dataset["preferred_identifier"] = registration.DOI

		if registration.MetaxId == "" {
			identifier, err := o.catalog.CreateDraft(ctx, submission.ProjectId,
				user, dataset)
			if err != nil {
				return err
			}
			registration.MetaxId = identifier
			if err := o.store.UpsertRegistration(ctx, registration); err != nil {
				return err
			}
		}
		updates = append(updates, map[string]any{
			"identifier":       registration.MetaxId,
			"research_dataset": dataset,
		})
	}

	if err := o.catalog.BulkUpdate(ctx, updates); err != nil {
		return err
	}
	for _, registration := range registrations {
		preferred, err := o.catalog.Publish(ctx, registration.MetaxId)
		if err != nil {
			return err
		}
		slog.Debug(fmt.Sprintf("Published catalog record %s as %s",
			registration.MetaxId, preferred))
	}
	return nil
}

// Creates an access-management resource and catalogue item per registration
// after checking that the submission's rems block names a usable workflow
// and licenses.
func (o *Orchestrator) registerAccess(ctx context.Context, submission *core.Submission,
	registrations []*core.Registration) error {

	rems, err := remsSettings(submission)
	if err != nil {
		return err
	}
	if err := o.access.ValidateWorkflowLicenses(ctx, rems.organization,
		rems.workflowId, rems.licenses); err != nil {
		return err
	}

	for _, registration := range registrations {
		if registration.DOI == "" {
			return MissingDOIError{ObjectId: registration.ObjectId}
		}
		if registration.RemsResourceId == "" {
			resourceId, err := o.access.CreateResource(ctx, registration.DOI,
				rems.organization, rems.licenses)
			if err != nil {
				return err
			}
			registration.RemsResourceId = strconv.Itoa(resourceId)
			if err := o.store.UpsertRegistration(ctx, registration); err != nil {
				return err
			}
		}
		if registration.RemsCatalogueId == "" {
			resourceId, err := strconv.Atoi(registration.RemsResourceId)
			if err != nil {
				return RemsConfigError{Message: fmt.Sprintf(
					"recorded resource id %q is not numeric", registration.RemsResourceId)}
			}
			localizations := map[string]any{
				"en": map[string]any{"title": registration.Title},
			}
			itemId, err := o.access.CreateCatalogueItem(ctx, resourceId,
				rems.workflowId, rems.organization, localizations)
			if err != nil {
				return err
			}
			registration.RemsCatalogueId = strconv.Itoa(itemId)
			registration.RemsURL = o.access.CatalogueItemURL(itemId)
			if err := o.store.UpsertRegistration(ctx, registration); err != nil {
				return err
			}
		}
	}
	return nil
}

// the submission's access-management settings
type remsBlock struct {
	organization string
	workflowId   int
	licenses     []int
}

func remsSettings(submission *core.Submission) (remsBlock, error) {
	block, ok := submission.Document["rems"].(map[string]any)
	if !ok {
		return remsBlock{}, RemsConfigError{Message: "no rems block on the submission"}
	}
	settings := remsBlock{
		organization: core.StringField(block, "organizationId"),
	}
	if settings.organization == "" {
		return remsBlock{}, RemsConfigError{Message: "no organizationId in the rems block"}
	}
	workflowId, ok := intValue(block["workflowId"])
	if !ok {
		return remsBlock{}, RemsConfigError{Message: "no workflowId in the rems block"}
	}
	settings.workflowId = workflowId
	if raw, present := block["licenses"].([]any); present {
		for _, value := range raw {
			licenseId, ok := intValue(value)
			if !ok {
				return remsBlock{}, RemsConfigError{Message: "a license id is not numeric"}
			}
			settings.licenses = append(settings.licenses, licenseId)
		}
	}
	return settings, nil
}

// decoded JSON numbers arrive as float64
func intValue(value any) (int, bool) {
	switch typed := value.(type) {
	case float64:
		return int(typed), true
	case int:
		return typed, true
	}
	return 0, false
}

// The atomic cut-over: the registration rows and the published flag are
// committed in one transaction, after every external step has succeeded.
func (o *Orchestrator) cutOver(ctx context.Context, submissionId string,
	registrations []*core.Registration) error {

	return o.store.Transact(ctx, func(ctx context.Context) error {
		for _, registration := range registrations {
			if err := o.store.UpsertRegistration(ctx, registration); err != nil {
				return err
			}
		}
		return o.store.UpdateSubmission(ctx, submissionId, func(s *core.Submission) error {
			now := o.now().UTC()
			s.Published = true
			s.PublishedAt = &now
			return nil
		})
	})
}

// Deletes the DOI and catalog drafts recorded for a submission whose publish
// was rejected for good, then drops its registration rows. Minted PID DOIs
// and access-management resources have no delete; they are reported as
// orphans and left for operational cleanup.
func (o *Orchestrator) compensate(ctx context.Context, submission *core.Submission,
	endpoints workflows.PublishConfig, registrations []*core.Registration) {

	var orphans []string
	for _, registration := range registrations {
		if registration.MetaxId != "" {
			if err := o.catalog.DeleteDraft(ctx, registration.MetaxId); err != nil {
				slog.Warn(fmt.Sprintf("Couldn't delete catalog draft %s: %s",
					registration.MetaxId, err.Error()))
				orphans = append(orphans, "catalog draft "+registration.MetaxId)
			}
		}
		if registration.DOI != "" {
			if endpoints.DataCite != nil && endpoints.DataCite.Service != "pid" {
				if err := o.datacite.DeleteDraft(ctx, registration.DOI); err != nil {
					slog.Warn(fmt.Sprintf("Couldn't delete DOI draft %s: %s",
						registration.DOI, err.Error()))
					orphans = append(orphans, "DOI draft "+registration.DOI)
				}
			} else {
				orphans = append(orphans, "DOI "+registration.DOI)
			}
		}
		if registration.RemsResourceId != "" {
			orphans = append(orphans, "access resource "+registration.RemsResourceId)
		}
	}
	if len(orphans) > 0 {
		slog.Warn(fmt.Sprintf("Publish compensation for submission %s left orphans: %s",
			submission.Id, strings.Join(orphans, ", ")))
	}
	if _, err := o.store.DeleteRegistrations(ctx, submission.Id); err != nil {
		slog.Error(fmt.Sprintf("Couldn't delete registrations for submission %s: %s",
			submission.Id, err.Error()))
	}
}

// upstream rejections of our data are permanent; everything else is worth a
// later resume
func isPermanent(err error) bool {
	var clientErr external.ClientError
	if errors.As(err, &clientErr) {
		return true
	}
	var remsErr RemsConfigError
	if errors.As(err, &remsErr) {
		return true
	}
	var doiErr MissingDOIError
	return errors.As(err, &doiErr)
}

// Triggers ingestion of the submission's files after the cut-over. Files
// not yet tied to an object are assigned to the first registered one.
// Failures here do not unpublish the submission; ingest status advances via
// the admin service's out-of-band pipeline.
func (o *Orchestrator) triggerIngest(ctx context.Context, submission *core.Submission,
	registrations []*core.Registration, user string) {

	files, err := o.store.ListFiles(ctx, core.FileFilter{SubmissionId: submission.Id})
	if err != nil {
		slog.Error(fmt.Sprintf("Couldn't list files of submission %s: %s",
			submission.Id, err.Error()))
		return
	}
	for _, file := range files {
		if file.IngestStatus != core.IngestStatusAdded {
			continue
		}
		if file.ObjectId == "" && len(registrations) > 0 {
			file.ObjectId = registrations[0].ObjectId
			if err := o.store.AssignFileToObject(ctx, file.Id, file.ObjectId); err != nil {
				slog.Warn(fmt.Sprintf("Couldn't assign file %s to object %s: %s",
					file.Id, file.ObjectId, err.Error()))
				continue
			}
		}
		if err := o.admin.AssignAccession(ctx, user, &file); err != nil {
			slog.Warn(fmt.Sprintf("Couldn't assign an accession to file %s: %s",
				file.Path, err.Error()))
			continue
		}
		if err := o.admin.IngestFile(ctx, user, file.Path); err != nil {
			slog.Warn(fmt.Sprintf("Couldn't trigger ingestion of file %s: %s",
				file.Path, err.Error()))
		}
	}
}

// writes one publish-attempt record to the local journal
func (o *Orchestrator) journalAttempt(submission *core.Submission,
	registrations []*core.Registration, started time.Time, attemptErr error) {

	if !journal.IsOpen() {
		return
	}
	record := journal.Record{
		Id:           uuid.New(),
		SubmissionId: submission.Id,
		ProjectId:    submission.ProjectId,
		Workflow:     submission.WorkflowName,
		StartTime:    started,
		StopTime:     o.now().UTC(),
		Status:       "succeeded",
	}
	for _, registration := range registrations {
		if registration.DOI != "" {
			record.DOI = registration.DOI
			break
		}
	}
	if attemptErr != nil {
		record.Status = "failed"
		record.Detail = attemptErr.Error()
		if isPermanent(attemptErr) {
			record.Status = "compensated"
		}
	}
	if err := journal.RecordAttempt(record); err != nil {
		slog.Warn(fmt.Sprintf("Couldn't record the publish attempt: %s", err.Error()))
	}
}

// health probes for the readiness endpoint
func (o *Orchestrator) DataCiteHealth(ctx context.Context) error {
	return o.datacite.HealthCheck(ctx)
}

func (o *Orchestrator) CatalogHealth(ctx context.Context) error {
	return o.catalog.HealthCheck(ctx)
}

func (o *Orchestrator) AccessHealth(ctx context.Context) error {
	return o.access.HealthCheck(ctx)
}

func (o *Orchestrator) AdminHealth(ctx context.Context) error {
	return o.admin.HealthCheck(ctx)
}

// Re-drives submissions whose registration rows exist without the published
// flag, the signature of a crash between external success and the cut-over.
// Each is resumed; identifiers already recorded are reused. Called once at
// service start.
func (o *Orchestrator) Recover(ctx context.Context) error {
	ids, err := o.store.ListUnreconciledSubmissions(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		slog.Info(fmt.Sprintf("Resuming interrupted publish of submission %s...", id))
		if err := o.Publish(ctx, id, ""); err != nil {
			slog.Error(fmt.Sprintf("Couldn't resume publishing submission %s: %s",
				id, err.Error()))
		}
	}
	return nil
}
