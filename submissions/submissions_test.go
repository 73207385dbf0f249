package submissions

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioarchive/mss/core"
	"github.com/bioarchive/mss/repository"
	"github.com/bioarchive/mss/workflows"
)

// an in-memory stand-in for the repository
type fakeStore struct {
	submissions map[string]*core.Submission
	nextId      int
	owns        bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{submissions: make(map[string]*core.Submission), owns: true}
}

func (store *fakeStore) AddSubmission(ctx context.Context, s *core.Submission) error {
	for _, existing := range store.submissions {
		if existing.ProjectId == s.ProjectId && existing.Name == s.Name {
			return repository.DuplicateError{Kind: "submission", Name: s.Name}
		}
	}
	store.nextId++
	s.Id = fmt.Sprintf("01FAKE%020d", store.nextId)
	s.CreatedAt = time.Now().UTC()
	s.ModifiedAt = s.CreatedAt
	copy := *s
	store.submissions[s.Id] = &copy
	return nil
}

func (store *fakeStore) GetSubmission(ctx context.Context, id string) (*core.Submission, error) {
	s, found := store.submissions[id]
	if !found {
		return nil, repository.NotFoundError{Kind: "submission", Id: id}
	}
	copy := *s
	return &copy, nil
}

func (store *fakeStore) GetSubmissionByIdOrName(ctx context.Context, projectId, token string) (*core.Submission, error) {
	if s, found := store.submissions[token]; found {
		copy := *s
		return &copy, nil
	}
	for _, s := range store.submissions {
		if s.ProjectId == projectId && s.Name == token {
			copy := *s
			return &copy, nil
		}
	}
	return nil, repository.NotFoundError{Kind: "submission", Id: token}
}

func (store *fakeStore) ListSubmissions(ctx context.Context, filter core.SubmissionFilter,
	page core.Page) ([]core.Submission, int, error) {

	matches := make([]core.Submission, 0)
	for _, s := range store.submissions {
		if filter.ProjectId == "" || s.ProjectId == filter.ProjectId {
			matches = append(matches, *s)
		}
	}
	return matches, len(matches), nil
}

func (store *fakeStore) UpdateSubmission(ctx context.Context, id string,
	mutate func(s *core.Submission) error) error {

	s, found := store.submissions[id]
	if !found {
		return repository.NotFoundError{Kind: "submission", Id: id}
	}
	copy := *s
	if err := mutate(&copy); err != nil {
		return err
	}
	copy.ModifiedAt = time.Now().UTC()
	store.submissions[id] = &copy
	return nil
}

func (store *fakeStore) DeleteSubmission(ctx context.Context, id string) (bool, error) {
	_, found := store.submissions[id]
	delete(store.submissions, id)
	return found, nil
}

func (store *fakeStore) UserOwnsSubmission(ctx context.Context, userId, submissionId string) (bool, error) {
	return store.owns, nil
}

func testDocument() core.Document {
	return core.Document{
		"name":      "Mock submission",
		"projectId": "PRJ1",
		"workflow":  "sdsx",
		"doiInfo":   map[string]any{"creators": []any{}},
		// managed fields clients must not control
		"submissionId": "FORGED",
		"published":    true,
		"dateCreated":  "2020-01-01T00:00:00Z",
	}
}

// tests that creating a submission strips managed fields and copies the
// structured columns
func TestCreateSubmission(t *testing.T) {
	store := newFakeStore()
	service := NewService(store)

	submission, err := service.Create(context.Background(), testDocument())
	require.NoError(t, err)

	assert.NotEqual(t, "FORGED", submission.Id)
	assert.Equal(t, "Mock submission", submission.Name)
	assert.Equal(t, "PRJ1", submission.ProjectId)
	assert.Equal(t, "sdsx", submission.WorkflowName)
	assert.False(t, submission.Published)
	// the structured columns are not duplicated in the document
	assert.NotContains(t, submission.Document, "name")
	assert.NotContains(t, submission.Document, "workflow")
	assert.Contains(t, submission.Document, "doiInfo")
}

// tests mandatory create fields
func TestCreateSubmissionValidation(t *testing.T) {
	service := NewService(newFakeStore())
	ctx := context.Background()

	document := testDocument()
	delete(document, "name")
	_, err := service.Create(ctx, document)
	assert.IsType(t, BadDocumentError{}, err)

	document = testDocument()
	delete(document, "projectId")
	_, err = service.Create(ctx, document)
	assert.IsType(t, BadDocumentError{}, err)

	document = testDocument()
	document["workflow"] = "NoSuchWorkflow"
	_, err = service.Create(ctx, document)
	assert.IsType(t, workflows.NotFoundError{}, err)
}

// tests that the merged document carries the repository-managed fields
func TestGetDocument(t *testing.T) {
	store := newFakeStore()
	service := NewService(store)
	ctx := context.Background()

	submission, err := service.Create(ctx, testDocument())
	require.NoError(t, err)

	document, err := service.GetDocument(ctx, submission.Id)
	require.NoError(t, err)
	assert.Equal(t, submission.Id, document["submissionId"])
	assert.Equal(t, "Mock submission", document["name"])
	assert.Equal(t, "sdsx", document["workflow"])
	assert.Equal(t, false, document["published"])
	assert.Contains(t, document, "dateCreated")
}

// tests that the linked folder can be set once but not changed
func TestUpdateFolderImmutable(t *testing.T) {
	store := newFakeStore()
	service := NewService(store)
	ctx := context.Background()

	submission, err := service.Create(ctx, testDocument())
	require.NoError(t, err)

	_, err = service.UpdateFolder(ctx, submission.Id, "folder-a")
	require.NoError(t, err)

	_, err = service.UpdateFolder(ctx, submission.Id, "folder-b")
	assert.IsType(t, ImmutableFieldError{}, err)
}

// tests the whole-document update guards
func TestUpdateDocumentGuards(t *testing.T) {
	store := newFakeStore()
	service := NewService(store)
	ctx := context.Background()

	submission, err := service.Create(ctx, testDocument())
	require.NoError(t, err)

	// workflow is immutable
	next := Document(submission)
	next["workflow"] = "bigpicture"
	_, err = service.UpdateDocument(ctx, submission.Id, next)
	assert.IsType(t, ImmutableFieldError{}, err)

	// the doiInfo block may not be dropped
	next = Document(submission)
	delete(next, "doiInfo")
	_, err = service.UpdateDocument(ctx, submission.Id, next)
	assert.IsType(t, MissingBlockError{}, err)

	// re-submitting the merged document unchanged is a no-op
	updated, err := service.UpdateDocument(ctx, submission.Id, Document(submission))
	require.NoError(t, err)
	assert.Equal(t, submission.Name, updated.Name)
	assert.Equal(t, submission.WorkflowName, updated.WorkflowName)
}

// tests the narrowed JSON-patch surface
func TestPatchSubmission(t *testing.T) {
	store := newFakeStore()
	service := NewService(store)
	ctx := context.Background()

	submission, err := service.Create(ctx, testDocument())
	require.NoError(t, err)

	updated, err := service.Patch(ctx, submission.Id, []byte(`[
		{"op": "replace", "path": "/name", "value": "Renamed"},
		{"op": "add", "path": "/metadataObjects/-",
			"value": {"accessionId": "X1", "schema": "study"}}
	]`))
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	objects, ok := updated.Document["metadataObjects"].([]any)
	require.True(t, ok)
	assert.Len(t, objects, 1)

	// paths outside the allowed set are refused
	_, err = service.Patch(ctx, submission.Id, []byte(`[
		{"op": "replace", "path": "/projectId", "value": "PRJ2"}
	]`))
	assert.IsType(t, ForbiddenPatchError{}, err)

	// malformed patches are refused
	_, err = service.Patch(ctx, submission.Id, []byte(`{"not": "a patch"}`))
	assert.IsType(t, BadPatchError{}, err)
}

// tests that published submissions refuse every mutation
func TestPublishedSubmissionImmutable(t *testing.T) {
	store := newFakeStore()
	service := NewService(store)
	ctx := context.Background()

	submission, err := service.Create(ctx, testDocument())
	require.NoError(t, err)
	store.submissions[submission.Id].Published = true

	_, err = service.UpdateName(ctx, submission.Id, "Renamed")
	assert.IsType(t, PublishedError{}, err)

	_, err = service.Patch(ctx, submission.Id,
		[]byte(`[{"op": "replace", "path": "/name", "value": "Renamed"}]`))
	assert.IsType(t, PublishedError{}, err)

	err = service.Delete(ctx, submission.Id)
	assert.IsType(t, PublishedError{}, err)

	err = service.CheckNotPublished(ctx, submission.Id)
	assert.IsType(t, PublishedError{}, err)
}

// tests the ownership check
func TestCheckOwnership(t *testing.T) {
	store := newFakeStore()
	service := NewService(store)
	ctx := context.Background()

	submission, err := service.Create(ctx, testDocument())
	require.NoError(t, err)

	assert.NoError(t, service.CheckOwnership(ctx, "U1", submission.Id))

	store.owns = false
	err = service.CheckOwnership(ctx, "U1", submission.Id)
	assert.IsType(t, OwnershipError{}, err)
}
