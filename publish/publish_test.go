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
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioarchive/mss/core"
	"github.com/bioarchive/mss/external"
	"github.com/bioarchive/mss/repository"
	"github.com/bioarchive/mss/workflows"
)

// an in-memory stand-in for the repository
type fakeStore struct {
	submissions   map[string]*core.Submission
	objects       map[string]*core.MetadataObject
	registrations map[string]*core.Registration
	files         map[string]*core.File
	unreconciled  []string
	deletedRegs   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		submissions:   make(map[string]*core.Submission),
		objects:       make(map[string]*core.MetadataObject),
		registrations: make(map[string]*core.Registration),
		files:         make(map[string]*core.File),
	}
}

func (store *fakeStore) GetSubmission(ctx context.Context, id string) (*core.Submission, error) {
	s, found := store.submissions[id]
	if !found {
		return nil, repository.NotFoundError{Kind: "submission", Id: id}
	}
	copy := *s
	return &copy, nil
}

func (store *fakeStore) UpdateSubmission(ctx context.Context, id string,
	mutate func(s *core.Submission) error) error {

	s, found := store.submissions[id]
	if !found {
		return repository.NotFoundError{Kind: "submission", Id: id}
	}
	return mutate(s)
}

func (store *fakeStore) CountObjectsByType(ctx context.Context, submissionId string) (map[string]int, error) {
	counts := make(map[string]int)
	for _, o := range store.objects {
		if o.SubmissionId == submissionId {
			counts[o.ObjectType]++
		}
	}
	return counts, nil
}

func (store *fakeStore) ListObjects(ctx context.Context, filter core.ObjectFilter) ([]core.MetadataObject, error) {
	wanted := make(map[string]bool)
	for _, name := range filter.ObjectTypes {
		wanted[name] = true
	}
	matches := make([]core.MetadataObject, 0)
	for _, o := range store.objects {
		if o.SubmissionId == filter.SubmissionId && wanted[o.ObjectType] {
			matches = append(matches, *o)
		}
	}
	return matches, nil
}

func (store *fakeStore) UpdateObject(ctx context.Context, id string,
	mutate func(o *core.MetadataObject) error) error {

	o, found := store.objects[id]
	if !found {
		return repository.NotFoundError{Kind: "object", Id: id}
	}
	return mutate(o)
}

// mirrors the production update-if-null semantics
func (store *fakeStore) UpsertRegistration(ctx context.Context, r *core.Registration) error {
	existing, found := store.registrations[r.ObjectId]
	if !found {
		copy := *r
		store.registrations[r.ObjectId] = &copy
		return nil
	}
	if existing.DOI == "" {
		existing.DOI = r.DOI
	}
	if existing.MetaxId == "" {
		existing.MetaxId = r.MetaxId
	}
	if existing.DataCiteURL == "" {
		existing.DataCiteURL = r.DataCiteURL
	}
	if existing.RemsURL == "" {
		existing.RemsURL = r.RemsURL
	}
	if existing.RemsResourceId == "" {
		existing.RemsResourceId = r.RemsResourceId
	}
	if existing.RemsCatalogueId == "" {
		existing.RemsCatalogueId = r.RemsCatalogueId
	}
	existing.Title = r.Title
	existing.Description = r.Description
	return nil
}

func (store *fakeStore) ListRegistrations(ctx context.Context, submissionId string) ([]core.Registration, error) {
	matches := make([]core.Registration, 0)
	for _, r := range store.registrations {
		if r.SubmissionId == submissionId {
			matches = append(matches, *r)
		}
	}
	return matches, nil
}

func (store *fakeStore) DeleteRegistrations(ctx context.Context, submissionId string) (bool, error) {
	store.deletedRegs = true
	for objectId, r := range store.registrations {
		if r.SubmissionId == submissionId {
			delete(store.registrations, objectId)
		}
	}
	return true, nil
}

func (store *fakeStore) ListUnreconciledSubmissions(ctx context.Context) ([]string, error) {
	return store.unreconciled, nil
}

func (store *fakeStore) ListFiles(ctx context.Context, filter core.FileFilter) ([]core.File, error) {
	matches := make([]core.File, 0)
	for _, f := range store.files {
		if f.SubmissionId == filter.SubmissionId {
			matches = append(matches, *f)
		}
	}
	return matches, nil
}

func (store *fakeStore) AssignFileToObject(ctx context.Context, fileId, objectId string) error {
	store.files[fileId].ObjectId = objectId
	return nil
}

func (store *fakeStore) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fake external services

type fakeDOI struct {
	drafts  int
	updates int
	deleted []string
	err     error
}

func (d *fakeDOI) CreateDraft(ctx context.Context, suffix string) (string, string, error) {
	if d.err != nil {
		return "", "", d.err
	}
	d.drafts++
	doi := "10.80869/" + suffix
	return doi, "https://discovery.example/" + doi, nil
}

func (d *fakeDOI) Update(ctx context.Context, doi string, attributes map[string]any) error {
	d.updates++
	return d.err
}

func (d *fakeDOI) DeleteDraft(ctx context.Context, doi string) error {
	d.deleted = append(d.deleted, doi)
	return nil
}

func (d *fakeDOI) HealthCheck(ctx context.Context) error { return d.err }

type fakePID struct {
	minted int
}

func (p *fakePID) CreateDraftDOI(ctx context.Context) (string, string, error) {
	p.minted++
	return "10.80869/pid-" + strconv.Itoa(p.minted), "https://discovery.example/pid", nil
}

func (p *fakePID) Publish(ctx context.Context, attributes map[string]any) error { return nil }
func (p *fakePID) HealthCheck(ctx context.Context) error                        { return nil }

type fakeCatalog struct {
	drafts    int
	bulks     int
	published []string
	deleted   []string
	draftErr  error
}

func (c *fakeCatalog) CreateDraft(ctx context.Context, organization, user string,
	researchDataset map[string]any) (string, error) {

	if c.draftErr != nil {
		return "", c.draftErr
	}
	c.drafts++
	return "metax-" + strconv.Itoa(c.drafts), nil
}

func (c *fakeCatalog) BulkUpdate(ctx context.Context, datasets []map[string]any) error {
	c.bulks++
	return nil
}

func (c *fakeCatalog) Publish(ctx context.Context, identifier string) (string, error) {
	c.published = append(c.published, identifier)
	return "urn:" + identifier, nil
}

func (c *fakeCatalog) DeleteDraft(ctx context.Context, identifier string) error {
	c.deleted = append(c.deleted, identifier)
	return nil
}

func (c *fakeCatalog) HealthCheck(ctx context.Context) error { return nil }

type fakeAccess struct {
	resources   int
	items       int
	validateErr error
}

func (a *fakeAccess) ValidateWorkflowLicenses(ctx context.Context, organization string,
	workflowId int, licenseIds []int) error {
	return a.validateErr
}

func (a *fakeAccess) CreateResource(ctx context.Context, doi, organization string,
	licenseIds []int) (int, error) {
	a.resources++
	return a.resources, nil
}

func (a *fakeAccess) CreateCatalogueItem(ctx context.Context, resourceId, workflowId int,
	organization string, localizations map[string]any) (int, error) {
	a.items++
	return 100 + a.items, nil
}

func (a *fakeAccess) CatalogueItemURL(itemId int) string {
	return "https://rems.example/application?items=" + strconv.Itoa(itemId)
}

func (a *fakeAccess) HealthCheck(ctx context.Context) error { return nil }

type fakeAdmin struct {
	accessions []string
	ingested   []string
}

func (a *fakeAdmin) AssignAccession(ctx context.Context, user string, file *core.File) error {
	a.accessions = append(a.accessions, file.Path)
	return nil
}

func (a *fakeAdmin) IngestFile(ctx context.Context, user, path string) error {
	a.ingested = append(a.ingested, path)
	return nil
}

func (a *fakeAdmin) HealthCheck(ctx context.Context) error { return nil }

// a fully wired orchestrator over fakes
type harness struct {
	store        *fakeStore
	datacite     *fakeDOI
	pid          *fakePID
	catalog      *fakeCatalog
	access       *fakeAccess
	admin        *fakeAdmin
	orchestrator *Orchestrator
}

func newHarness() *harness {
	h := &harness{
		store:    newFakeStore(),
		datacite: &fakeDOI{},
		pid:      &fakePID{},
		catalog:  &fakeCatalog{},
		access:   &fakeAccess{},
		admin:    &fakeAdmin{},
	}
	h.orchestrator = &Orchestrator{
		store:    h.store,
		datacite: h.datacite,
		pid:      h.pid,
		catalog:  h.catalog,
		access:   h.access,
		admin:    h.admin,
		now:      time.Now,
	}
	return h
}

// seeds a satisfied sdsx submission with one dataset object
func (h *harness) seedSdsx() string {
	h.store.submissions["S1"] = &core.Submission{
		Id:           "S1",
		Name:         "Mock submission",
		ProjectId:    "PRJ1",
		WorkflowName: "sdsx",
		Document: core.Document{
			"doiInfo": map[string]any{
				"creators": []any{map[string]any{
					"givenName": "Ada", "familyName": "Lovelace",
				}},
			},
			"rems": map[string]any{
				"organizationId": "CSC",
				"workflowId":     float64(3),
				"licenses":       []any{float64(7)},
			},
		},
	}
	for i, objectType := range []string{"study", "dac", "policy", "dataset"} {
		id := "OBJ" + strconv.Itoa(i)
		h.store.objects[id] = &core.MetadataObject{
			Id:           id,
			SubmissionId: "S1",
			ProjectId:    "PRJ1",
			ObjectType:   objectType,
			Title:        "Mock " + objectType,
			Description:  "About the " + objectType,
			Document:     core.Document{},
		}
	}
	return "S1"
}

// tests the full happy path: DOI, catalog and access registrations, the
// cut-over and the ingest trigger
func TestPublishSdsx(t *testing.T) {
	h := newHarness()
	id := h.seedSdsx()
	h.store.files["F1"] = &core.File{
		Id:           "F1",
		SubmissionId: id,
		Path:         "inbox/reads.c4gh",
		IngestStatus: core.IngestStatusAdded,
	}

	err := h.orchestrator.Publish(context.Background(), id, "tester")
	require.NoError(t, err)

	submission := h.store.submissions[id]
	assert.True(t, submission.Published)
	require.NotNil(t, submission.PublishedAt)

	// one registration for the single dataset object
	assert.Equal(t, 1, h.datacite.drafts)
	assert.Equal(t, 1, h.datacite.updates)
	assert.Equal(t, 1, h.catalog.drafts)
	assert.Equal(t, 1, h.catalog.bulks)
	assert.Len(t, h.catalog.published, 1)
	assert.Equal(t, 1, h.access.resources)
	assert.Equal(t, 1, h.access.items)

	registration := h.store.registrations["OBJ3"]
	require.NotNil(t, registration)
	assert.Equal(t, "10.80869/obj3", registration.DOI)
	assert.Equal(t, "metax-1", registration.MetaxId)
	assert.Equal(t, "1", registration.RemsResourceId)
	assert.Equal(t, "101", registration.RemsCatalogueId)
	assert.Equal(t, "https://rems.example/application?items=101", registration.RemsURL)

	// the DOI lands on the object's document
	assert.Equal(t, "10.80869/obj3", h.store.objects["OBJ3"].Document["doi"])

	// files got accessions and an ingest trigger
	assert.Equal(t, []string{"inbox/reads.c4gh"}, h.admin.accessions)
	assert.Equal(t, []string{"inbox/reads.c4gh"}, h.admin.ingested)
	assert.Equal(t, "OBJ3", h.store.files["F1"].ObjectId)
}

// tests that publishing an already published submission is a no-op
func TestPublishIsIdempotentAfterSuccess(t *testing.T) {
	h := newHarness()
	id := h.seedSdsx()
	require.NoError(t, h.orchestrator.Publish(context.Background(), id, "tester"))

	err := h.orchestrator.Publish(context.Background(), id, "tester")
	require.NoError(t, err)
	assert.Equal(t, 1, h.datacite.drafts)
	assert.Equal(t, 1, h.catalog.drafts)
}

// tests that an unsatisfied workflow blocks publishing with no side effects
func TestPublishUnsatisfiedWorkflow(t *testing.T) {
	h := newHarness()
	id := h.seedSdsx()
	delete(h.store.objects, "OBJ3") // drop the required dataset

	err := h.orchestrator.Publish(context.Background(), id, "tester")
	assert.IsType(t, workflows.UnsatisfiedError{}, err)
	assert.Zero(t, h.datacite.drafts)
	assert.False(t, h.store.submissions[id].Published)
}

// tests that a failing pre-flight health check blocks publishing
func TestPublishPreflightFailure(t *testing.T) {
	h := newHarness()
	id := h.seedSdsx()
	h.datacite.err = external.UnavailableError{Service: "datacite"}

	err := h.orchestrator.Publish(context.Background(), id, "tester")
	var unhealthy UnhealthyServiceError
	require.ErrorAs(t, err, &unhealthy)
	assert.Equal(t, "datacite", unhealthy.Service)
	assert.Zero(t, h.datacite.drafts)
}

// tests that identifiers recorded by an earlier attempt are reused
func TestPublishResumesRecordedIdentifiers(t *testing.T) {
	h := newHarness()
	id := h.seedSdsx()
	h.store.registrations["OBJ3"] = &core.Registration{
		SubmissionId: id,
		ObjectId:     "OBJ3",
		ObjectType:   "dataset",
		DOI:          "10.80869/recorded",
		MetaxId:      "metax-recorded",
	}

	err := h.orchestrator.Publish(context.Background(), id, "tester")
	require.NoError(t, err)

	// nothing re-minted, but metadata still pushed and drafts promoted
	assert.Zero(t, h.datacite.drafts)
	assert.Equal(t, 1, h.datacite.updates)
	assert.Zero(t, h.catalog.drafts)
	assert.Equal(t, []string{"metax-recorded"}, h.catalog.published)
	assert.Equal(t, "10.80869/recorded", h.store.registrations["OBJ3"].DOI)
	assert.True(t, h.store.submissions[id].Published)
}

// tests that a permanent upstream rejection deletes the drafts and the
// registration rows
func TestPublishCompensatesOnPermanentFailure(t *testing.T) {
	h := newHarness()
	id := h.seedSdsx()
	h.access.validateErr = external.ClientError{
		Service: "rems",
		Status:  http.StatusBadRequest,
		Message: "workflow 3 not found",
	}

	err := h.orchestrator.Publish(context.Background(), id, "tester")
	var clientErr external.ClientError
	require.ErrorAs(t, err, &clientErr)

	assert.Equal(t, []string{"10.80869/obj3"}, h.datacite.deleted)
	assert.Equal(t, []string{"metax-1"}, h.catalog.deleted)
	assert.True(t, h.store.deletedRegs)
	assert.Empty(t, h.store.registrations)
	assert.False(t, h.store.submissions[id].Published)
}

// tests that a transient failure keeps the recorded identifiers for resume
func TestPublishKeepsRegistrationsOnTransientFailure(t *testing.T) {
	h := newHarness()
	id := h.seedSdsx()
	h.catalog.draftErr = external.ServerError{
		Service: "metax",
		Status:  http.StatusServiceUnavailable,
		Message: "upstream maintenance",
	}

	err := h.orchestrator.Publish(context.Background(), id, "tester")
	var serverErr external.ServerError
	require.ErrorAs(t, err, &serverErr)

	assert.False(t, h.store.deletedRegs)
	registration := h.store.registrations["OBJ3"]
	require.NotNil(t, registration)
	assert.Equal(t, "10.80869/obj3", registration.DOI)
	assert.False(t, h.store.submissions[id].Published)
}

// tests the rems block guards
func TestPublishRemsConfig(t *testing.T) {
	h := newHarness()
	id := h.seedSdsx()
	delete(h.store.submissions[id].Document, "rems")

	err := h.orchestrator.Publish(context.Background(), id, "tester")
	var remsErr RemsConfigError
	require.ErrorAs(t, err, &remsErr)
	// a broken rems block is permanent; drafts are compensated
	assert.Equal(t, []string{"10.80869/obj3"}, h.datacite.deleted)
}

// tests the startup recovery scan
func TestRecoverResumesUnreconciled(t *testing.T) {
	h := newHarness()
	id := h.seedSdsx()
	h.store.registrations["OBJ3"] = &core.Registration{
		SubmissionId: id,
		ObjectId:     "OBJ3",
		ObjectType:   "dataset",
		DOI:          "10.80869/recorded",
		MetaxId:      "metax-recorded",
	}
	h.store.unreconciled = []string{id}

	require.NoError(t, h.orchestrator.Recover(context.Background()))
	assert.True(t, h.store.submissions[id].Published)
	assert.Zero(t, h.datacite.drafts)
}
