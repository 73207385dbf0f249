package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// tests that every embedded schema compiles and is listed
func TestListCoversAllEmbeddedSchemas(t *testing.T) {
	descriptions, err := List()
	assert.Nil(t, err)
	names := make(map[string]bool)
	for _, d := range descriptions {
		names[d.Name] = true
		assert.NotEmpty(t, d.Title)
	}
	for _, expected := range []string{"study", "sample", "experiment", "run",
		"analysis", "dataset", "policy", "dac", "submission",
		"bpdataset", "bpsample", "bpimage", "bpobservation"} {
		assert.True(t, names[expected], "schema %s not listed", expected)
	}
}

// tests retrieval of a compiled schema
func TestGetJSONSchema(t *testing.T) {
	schema, err := GetJSONSchema("study")
	assert.Nil(t, err)
	assert.NotNil(t, schema)
}

// tests that unknown schema names yield a NotFoundError
func TestGetUnknownSchema(t *testing.T) {
	_, err := GetJSONSchema("nope")
	assert.NotNil(t, err)
	assert.IsType(t, NotFoundError{}, err)

	_, err = GetRawSchema("nope")
	assert.IsType(t, NotFoundError{}, err)

	_, err = GetXMLProfile("nope")
	assert.IsType(t, NotFoundError{}, err)
}

// tests XML profiles, including the Bigpicture accession-injection flag
func TestXMLProfiles(t *testing.T) {
	profile, err := GetXMLProfile("study")
	assert.Nil(t, err)
	assert.Equal(t, "STUDY_SET", profile.RootElement)
	assert.Equal(t, "STUDY", profile.ObjectElement)
	assert.False(t, profile.Bigpicture)

	profile, err = GetXMLProfile("bpdataset")
	assert.Nil(t, err)
	assert.True(t, profile.Bigpicture)

	// the submission document is JSON-only
	_, err = GetXMLProfile("submission")
	assert.NotNil(t, err)
}
