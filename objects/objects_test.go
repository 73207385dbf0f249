package objects

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioarchive/mss/accession"
	"github.com/bioarchive/mss/core"
	"github.com/bioarchive/mss/repository"
	"github.com/bioarchive/mss/validation"
)

// an in-memory stand-in for the repository
type fakeStore struct {
	submissions map[string]*core.Submission
	objects     map[string]*core.MetadataObject
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		submissions: make(map[string]*core.Submission),
		objects:     make(map[string]*core.MetadataObject),
	}
}

func (store *fakeStore) addSubmission(id, workflow string, published bool) {
	store.submissions[id] = &core.Submission{
		Id:           id,
		ProjectId:    "PRJ1",
		WorkflowName: workflow,
		Published:    published,
	}
}

func (store *fakeStore) AddObject(ctx context.Context, o *core.MetadataObject) error {
	o.CreatedAt = time.Now().UTC()
	o.ModifiedAt = o.CreatedAt
	copy := *o
	store.objects[o.Id] = &copy
	return nil
}

func (store *fakeStore) GetObject(ctx context.Context, id string) (*core.MetadataObject, error) {
	o, found := store.objects[id]
	if !found {
		return nil, repository.NotFoundError{Kind: "object", Id: id}
	}
	copy := *o
	return &copy, nil
}

func (store *fakeStore) ListObjects(ctx context.Context, filter core.ObjectFilter) ([]core.MetadataObject, error) {
	matches := make([]core.MetadataObject, 0)
	for _, o := range store.objects {
		if filter.SubmissionId == "" || o.SubmissionId == filter.SubmissionId {
			matches = append(matches, *o)
		}
	}
	return matches, nil
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

func (store *fakeStore) UpdateObject(ctx context.Context, id string,
	mutate func(o *core.MetadataObject) error) error {

	o, found := store.objects[id]
	if !found {
		return repository.NotFoundError{Kind: "object", Id: id}
	}
	copy := *o
	if err := mutate(&copy); err != nil {
		return err
	}
	copy.ModifiedAt = time.Now().UTC()
	store.objects[id] = &copy
	return nil
}

func (store *fakeStore) DeleteObject(ctx context.Context, id string) (bool, error) {
	_, found := store.objects[id]
	delete(store.objects, id)
	return found, nil
}

func (store *fakeStore) GetSubmission(ctx context.Context, id string) (*core.Submission, error) {
	s, found := store.submissions[id]
	if !found {
		return nil, repository.NotFoundError{Kind: "submission", Id: id}
	}
	copy := *s
	return &copy, nil
}

func studyPayload() core.Document {
	return core.Document{
		"alias": "study-1",
		"descriptor": map[string]any{
			"studyTitle": "Arabidopsis epigenome maps",
			"studyType":  "Other",
		},
	}
}

const sampleSetXML = `<SAMPLE_SET>
  <SAMPLE alias="sample-1">
    <TITLE>First sample</TITLE>
    <SAMPLE_NAME><TAXON_ID>3702</TAXON_ID></SAMPLE_NAME>
  </SAMPLE>
  <SAMPLE alias="sample-2">
    <SAMPLE_NAME><TAXON_ID>9606</TAXON_ID></SAMPLE_NAME>
  </SAMPLE>
</SAMPLE_SET>`

const datasetSetXML = `<DATASET_SET>
  <DATASET alias="ds-1">
    <TITLE>Slide collection</TITLE>
  </DATASET>
  <DATASET alias="ds-2">
    <TITLE>Second collection</TITLE>
  </DATASET>
</DATASET_SET>`

// tests that a JSON add mints an accession and extracts the columns
func TestAddJSONObject(t *testing.T) {
	store := newFakeStore()
	store.addSubmission("S1", "sdsx", false)
	service := NewService(store)

	object, err := service.AddJSON(context.Background(), "S1", "study", studyPayload())
	require.NoError(t, err)

	assert.True(t, accession.IsValid(object.Id))
	assert.Equal(t, "study-1", object.Name)
	assert.Equal(t, "Arabidopsis epigenome maps", object.Title)
	assert.Equal(t, "PRJ1", object.ProjectId)
	assert.Empty(t, object.XMLDocument)
}

// tests that service-managed keys are refused on add
func TestAddJSONForbiddenKeys(t *testing.T) {
	store := newFakeStore()
	store.addSubmission("S1", "sdsx", false)
	service := NewService(store)

	payload := studyPayload()
	payload["accessionId"] = "FORGED"
	payload["doi"] = "10.1/fake"
	_, err := service.AddJSON(context.Background(), "S1", "study", payload)
	require.IsType(t, ForbiddenKeysError{}, err)
	assert.Equal(t, []string{"accessionId", "doi"}, err.(ForbiddenKeysError).Keys)
}

// tests that an invalid payload is refused before anything is stored
func TestAddJSONInvalidPayload(t *testing.T) {
	store := newFakeStore()
	store.addSubmission("S1", "sdsx", false)
	service := NewService(store)

	_, err := service.AddJSON(context.Background(), "S1", "study",
		core.Document{"alias": "study-1"})
	assert.IsType(t, validation.Error{}, err)
	assert.Empty(t, store.objects)
}

// tests the workflow's single-instance rule on JSON adds
func TestAddJSONSingleInstance(t *testing.T) {
	store := newFakeStore()
	store.addSubmission("S1", "sdsx", false)
	service := NewService(store)
	ctx := context.Background()

	_, err := service.AddJSON(ctx, "S1", "study", studyPayload())
	require.NoError(t, err)

	_, err = service.AddJSON(ctx, "S1", "study", studyPayload())
	assert.IsType(t, SingleInstanceError{}, err)
}

// tests that one XML file fans out to one object per element, each with
// its own accession and the original serialization attached
func TestAddXMLFansOut(t *testing.T) {
	store := newFakeStore()
	store.addSubmission("S1", "sdsx", false)
	service := NewService(store)

	added, err := service.AddXML(context.Background(), "S1", "sample", []byte(sampleSetXML))
	require.NoError(t, err)
	require.Len(t, added, 2)

	assert.NotEqual(t, added[0].Id, added[1].Id)
	assert.Equal(t, "sample-1", added[0].Name)
	assert.Equal(t, "sample-2", added[1].Name)
	for _, object := range added {
		assert.True(t, accession.IsValid(object.Id))
		assert.Equal(t, sampleSetXML, object.XMLDocument)
	}
}

// tests that a single-instance violation partway through an XML file
// persists the earlier objects and refuses the rest
func TestAddXMLSingleInstanceKeepsFirst(t *testing.T) {
	store := newFakeStore()
	store.addSubmission("S1", "bigpicture", false)
	service := NewService(store)

	added, err := service.AddXML(context.Background(), "S1", "bpdataset", []byte(datasetSetXML))
	assert.IsType(t, SingleInstanceError{}, err)
	require.Len(t, added, 1)
	assert.Equal(t, "ds-1", added[0].Name)
	assert.Len(t, store.objects, 1)
}

// tests that Bigpicture XML gets the minted accession injected on the
// object's element
func TestAddXMLInjectsBigpictureAccession(t *testing.T) {
	store := newFakeStore()
	store.addSubmission("S1", "bigpicture", false)
	service := NewService(store)

	xml := `<DATASET_SET><DATASET alias="ds-1"><TITLE>One</TITLE></DATASET></DATASET_SET>`
	added, err := service.AddXML(context.Background(), "S1", "bpdataset", []byte(xml))
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Contains(t, added[0].XMLDocument, `accession="`+added[0].Id+`"`)
}

// tests that malformed XML is reported with the offending line
func TestAddXMLMalformed(t *testing.T) {
	store := newFakeStore()
	store.addSubmission("S1", "sdsx", false)
	service := NewService(store)

	_, err := service.AddXML(context.Background(), "S1", "sample",
		[]byte("<SAMPLE_SET>\n  <SAMPLE>\n</SAMPLE_SET>"))
	require.IsType(t, InvalidXMLError{}, err)
	assert.Greater(t, err.(InvalidXMLError).Line, 0)
}

// tests that a JSON replacement drops the stored XML
func TestReplaceJSONClearsXML(t *testing.T) {
	store := newFakeStore()
	store.addSubmission("S1", "sdsx", false)
	service := NewService(store)
	ctx := context.Background()

	added, err := service.AddXML(ctx, "S1", "sample", []byte(sampleSetXML))
	require.NoError(t, err)
	require.Len(t, added, 2)

	replaced, err := service.ReplaceJSON(ctx, added[0].Id, core.Document{
		"alias":      "sample-1b",
		"sampleName": map[string]any{"taxonId": 3702},
	})
	require.NoError(t, err)
	assert.Equal(t, "sample-1b", replaced.Name)
	assert.Empty(t, replaced.XMLDocument)

	_, _, err = service.Read(ctx, added[0].Id, "xml")
	assert.IsType(t, NoXMLError{}, err)
}

// tests that an XML replacement must describe exactly one object
func TestReplaceXMLRequiresSingular(t *testing.T) {
	store := newFakeStore()
	store.addSubmission("S1", "sdsx", false)
	service := NewService(store)
	ctx := context.Background()

	object, err := service.AddJSON(ctx, "S1", "study", studyPayload())
	require.NoError(t, err)

	singular := `<STUDY_SET><STUDY alias="study-1b"><DESCRIPTOR>
		<STUDY_TITLE>Updated title</STUDY_TITLE>
		<STUDY_TYPE existing_study_type="Other"/>
	</DESCRIPTOR></STUDY></STUDY_SET>`
	replaced, err := service.ReplaceXML(ctx, object.Id, []byte(singular))
	require.NoError(t, err)
	assert.Equal(t, object.Id, replaced.Id)
	assert.Equal(t, "study-1b", replaced.Name)
	assert.Equal(t, "Updated title", replaced.Title)

	plural := `<STUDY_SET>
		<STUDY alias="a"><DESCRIPTOR><STUDY_TITLE>A</STUDY_TITLE>
			<STUDY_TYPE existing_study_type="Other"/></DESCRIPTOR></STUDY>
		<STUDY alias="b"><DESCRIPTOR><STUDY_TITLE>B</STUDY_TITLE>
			<STUDY_TYPE existing_study_type="Other"/></DESCRIPTOR></STUDY>
	</STUDY_SET>`
	_, err = service.ReplaceXML(ctx, object.Id, []byte(plural))
	assert.IsType(t, NotSingularError{}, err)
}

// tests the recursive merge of a partial JSON update
func TestUpdateMergesDocument(t *testing.T) {
	store := newFakeStore()
	store.addSubmission("S1", "sdsx", false)
	service := NewService(store)
	ctx := context.Background()

	object, err := service.AddJSON(ctx, "S1", "study", studyPayload())
	require.NoError(t, err)

	updated, err := service.Update(ctx, object.Id, core.Document{
		"descriptor": map[string]any{"studyAbstract": "Deep sequencing of epigenomes."},
	})
	require.NoError(t, err)
	descriptor := updated.Document["descriptor"].(map[string]any)
	assert.Equal(t, "Arabidopsis epigenome maps", descriptor["studyTitle"])
	assert.Equal(t, "Deep sequencing of epigenomes.", descriptor["studyAbstract"])
	assert.Equal(t, "Deep sequencing of epigenomes.", updated.Description)
}

// tests the merged read-back document
func TestReadDocument(t *testing.T) {
	store := newFakeStore()
	store.addSubmission("S1", "sdsx", false)
	service := NewService(store)
	ctx := context.Background()

	object, err := service.AddJSON(ctx, "S1", "study", studyPayload())
	require.NoError(t, err)

	document, _, err := service.Read(ctx, object.Id, "json")
	require.NoError(t, err)
	assert.Equal(t, object.Id, document["accessionId"])
	assert.Equal(t, "study", document["schema"])
	assert.Contains(t, document, "dateCreated")
}

// tests that objects of a published submission refuse every mutation
func TestPublishedObjectsImmutable(t *testing.T) {
	store := newFakeStore()
	store.addSubmission("S1", "sdsx", false)
	service := NewService(store)
	ctx := context.Background()

	object, err := service.AddJSON(ctx, "S1", "study", studyPayload())
	require.NoError(t, err)
	store.submissions["S1"].Published = true

	_, err = service.AddJSON(ctx, "S1", "sample", core.Document{"alias": "s"})
	assert.IsType(t, PublishedError{}, err)

	_, err = service.ReplaceJSON(ctx, object.Id, studyPayload())
	assert.IsType(t, PublishedError{}, err)

	_, err = service.Update(ctx, object.Id, core.Document{"alias": "renamed"})
	assert.IsType(t, PublishedError{}, err)

	err = service.Delete(ctx, object.Id)
	assert.IsType(t, PublishedError{}, err)
}

// tests object deletion
func TestDeleteObject(t *testing.T) {
	store := newFakeStore()
	store.addSubmission("S1", "sdsx", false)
	service := NewService(store)
	ctx := context.Background()

	object, err := service.AddJSON(ctx, "S1", "study", studyPayload())
	require.NoError(t, err)

	require.NoError(t, service.Delete(ctx, object.Id))
	_, err = service.Get(ctx, object.Id)
	assert.IsType(t, repository.NotFoundError{}, err)
}
