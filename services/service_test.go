package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"

	"github.com/bioarchive/mss/core"
	"github.com/bioarchive/mss/external"
	"github.com/bioarchive/mss/objects"
	"github.com/bioarchive/mss/repository"
	"github.com/bioarchive/mss/submissions"
	"github.com/bioarchive/mss/validation"
	"github.com/bioarchive/mss/workflows"
)

func TestDateRange(t *testing.T) {
	from, to, err := dateRange("2026-03-01", "2026-03-05")
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 3, 5, 23, 59, 59, 0, time.UTC), to)
}

func TestDateRangeOpenEnded(t *testing.T) {
	from, to, err := dateRange("2026-03-01", "")
	assert.NoError(t, err)
	assert.False(t, from.IsZero())
	assert.True(t, to.IsZero())

	from, to, err = dateRange("", "2026-03-05")
	assert.NoError(t, err)
	assert.True(t, from.IsZero())
	assert.False(t, to.IsZero())
}

func TestDateRangeRejectsBadDates(t *testing.T) {
	_, _, err := dateRange("03/01/2026", "")
	assert.Error(t, err)
	var statusErr huma.StatusError
	assert.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 400, statusErr.GetStatus())

	_, _, err = dateRange("", "yesterday")
	assert.Error(t, err)
}

func TestLinkHeaderFirstPage(t *testing.T) {
	header := linkHeader("http://localhost:5430", "/v1/submissions",
		core.Page{Number: 1, Size: 10}, 4)
	assert.Contains(t, header,
		`<http://localhost:5430/v1/submissions?page=1&per_page=10>; rel="first"`)
	assert.Contains(t, header,
		`<http://localhost:5430/v1/submissions?page=2&per_page=10>; rel="next"`)
	assert.Contains(t, header,
		`<http://localhost:5430/v1/submissions?page=4&per_page=10>; rel="last"`)
	assert.NotContains(t, header, `rel="prev"`)
}

func TestLinkHeaderMiddlePage(t *testing.T) {
	header := linkHeader("http://localhost:5430", "/v1/submissions",
		core.Page{Number: 3, Size: 5}, 4)
	assert.Contains(t, header,
		`<http://localhost:5430/v1/submissions?page=2&per_page=5>; rel="prev"`)
	assert.Contains(t, header,
		`<http://localhost:5430/v1/submissions?page=4&per_page=5>; rel="next"`)
}

func TestLinkHeaderLastPage(t *testing.T) {
	header := linkHeader("http://localhost:5430", "/v1/submissions",
		core.Page{Number: 4, Size: 5}, 4)
	assert.NotContains(t, header, `rel="next"`)
	assert.Contains(t, header,
		`<http://localhost:5430/v1/submissions?page=4&per_page=5>; rel="last"`)
}

func TestApiErrorStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{validation.Error{Reason: "missing field"}, 400},
		{objects.InvalidXMLError{Reason: "bad element", Line: 3}, 400},
		{submissions.BadPatchError{Message: "not a patch"}, 400},
		{objects.ForbiddenKeysError{Keys: []string{"doi"}}, 400},
		{submissions.ImmutableFieldError{Field: "workflow"}, 400},
		{objects.NoXMLError{Id: "obj"}, 400},
		{repository.NotFoundError{Kind: "submission", Id: "missing"}, 404},
		{workflows.NotFoundError{Workflow: "nope"}, 404},
		{repository.DuplicateError{Kind: "submission", Name: "twice"}, 409},
		{objects.SingleInstanceError{ObjectType: "study", SubmissionId: "s"}, 409},
		{submissions.PublishedError{Id: "s"}, 409},
		{workflows.UnsatisfiedError{MissingSchemas: []string{"dac"}}, 409},
		{objects.UnsupportedMediaError{Format: "text/csv"}, 415},
		{external.ServerError{Service: "datacite", Status: 500}, 502},
		{external.TimeoutError{Service: "metax"}, 504},
		{context.DeadlineExceeded, 504},
		{errors.New("surprise"), 500},
	}
	for _, testCase := range cases {
		t.Run(fmt.Sprintf("%T", testCase.err), func(t *testing.T) {
			mapped := apiError(testCase.err)
			var statusErr huma.StatusError
			assert.True(t, errors.As(mapped, &statusErr))
			assert.Equal(t, testCase.status, statusErr.GetStatus())
		})
	}
}

func TestApiErrorPassesThroughStatusErrors(t *testing.T) {
	original := huma.Error403Forbidden("not yours")
	assert.Equal(t, original, apiError(original))
}

// Replacing an object answers with the accession identifier, not the merged
// document; partial updates answer with the document.
func TestObjectWriteResponseModels(t *testing.T) {
	replace := reflect.TypeOf((*metadataService).replaceObject)
	assert.Equal(t, reflect.TypeOf(&AccessionOutput{}), replace.Out(0))

	update := reflect.TypeOf((*metadataService).updateObject)
	assert.Equal(t, reflect.TypeOf(&ObjectDocumentOutput{}), update.Out(0))
}
