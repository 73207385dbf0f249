package workflows

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tests that the embedded workflows load and are listed
func TestListWorkflows(t *testing.T) {
	descriptions, err := List()
	require.Nil(t, err)
	assert.Contains(t, descriptions, "sdsx")
	assert.Contains(t, descriptions, "bigpicture")
	assert.NotEmpty(t, descriptions["sdsx"])
}

// tests lookup of an unknown workflow
func TestGetUnknownWorkflow(t *testing.T) {
	_, err := Get("nope")
	assert.IsType(t, NotFoundError{}, err)
}

// tests the referenced-schema set of a workflow
func TestWorkflowSchemas(t *testing.T) {
	workflow, err := Get("sdsx")
	require.Nil(t, err)
	all := workflow.Schemas()
	for _, name := range []string{"study", "sample", "experiment", "run",
		"analysis", "dataset", "policy", "dac"} {
		assert.Contains(t, all, name)
	}
}

// tests the required-schema computation: required rules plus their
// dependencies plus publish requiredSchemas
func TestRequiredSchemas(t *testing.T) {
	workflow, err := Get("sdsx")
	require.Nil(t, err)
	required := workflow.RequiredSchemas()
	for _, name := range []string{"study", "dac", "policy", "dataset"} {
		assert.Contains(t, required, name)
	}
	assert.NotContains(t, required, "sample")
	assert.NotContains(t, required, "run")

	// requires_or members of a required schema count as required
	bigpicture, err := Get("bigpicture")
	require.Nil(t, err)
	required = bigpicture.RequiredSchemas()
	assert.Contains(t, required, "bpdataset")
	assert.Contains(t, required, "bpimage") // required by bpdataset
}

// tests single-instance schema detection
func TestSingleInstanceSchemas(t *testing.T) {
	workflow, err := Get("bigpicture")
	require.Nil(t, err)
	single := workflow.SingleInstanceSchemas()
	assert.Contains(t, single, "bpdataset")
	assert.NotContains(t, single, "bpsample")
}

// tests the publish-endpoint surface
func TestPublishEndpoints(t *testing.T) {
	workflow, err := Get("sdsx")
	require.Nil(t, err)
	assert.ElementsMatch(t, []string{"datacite", "discovery", "rems"},
		workflow.PublishEndpoints())

	publishConfig := workflow.PublishConfiguration()
	require.NotNil(t, publishConfig.DataCite)
	assert.Equal(t, "datacite", publishConfig.DataCite.Service)
	assert.Equal(t, []string{"dataset"}, publishConfig.DataCite.Schemas)
	require.NotNil(t, publishConfig.Discovery)
	assert.Equal(t, "metax", publishConfig.Discovery.Service)
}

// tests workflow satisfaction: missing required schemas are named
func TestSatisfiedByReportsMissingSchemas(t *testing.T) {
	workflow, err := Get("sdsx")
	require.Nil(t, err)

	err = workflow.SatisfiedBy(map[string]int{"study": 1})
	require.NotNil(t, err)
	unsatisfied, ok := err.(UnsatisfiedError)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"dac", "policy", "dataset"},
		unsatisfied.MissingSchemas)
	assert.Contains(t, err.Error(), "dataset")
}

// tests workflow satisfaction: a complete submission passes
func TestSatisfiedByAcceptsCompleteSubmission(t *testing.T) {
	workflow, err := Get("sdsx")
	require.Nil(t, err)
	err = workflow.SatisfiedBy(map[string]int{
		"study": 1, "dac": 1, "policy": 1, "dataset": 2,
	})
	assert.Nil(t, err)
}

// tests single-instance violations
func TestSatisfiedByReportsSingleInstanceViolation(t *testing.T) {
	workflow, err := Get("bigpicture")
	require.Nil(t, err)
	err = workflow.SatisfiedBy(map[string]int{
		"bpdataset": 2, "bpimage": 1, "bpsample": 1,
	})
	require.NotNil(t, err)
	unsatisfied := err.(UnsatisfiedError)
	assert.Equal(t, []string{"bpdataset"}, unsatisfied.SingleInstanceViolations)
}

// tests requires and requires_or dependency checks on present schemas
func TestSatisfiedByChecksDependencies(t *testing.T) {
	workflow, err := Get("sdsx")
	require.Nil(t, err)

	// an experiment without a sample violates its requires list
	err = workflow.SatisfiedBy(map[string]int{
		"study": 1, "dac": 1, "policy": 1, "dataset": 1, "experiment": 1,
	})
	require.NotNil(t, err)
	unsatisfied := err.(UnsatisfiedError)
	assert.Contains(t, unsatisfied.UnmetDependencies, "experiment")

	// a bpobservation needs at least one of bpsample/bpimage
	bigpicture, err := Get("bigpicture")
	require.Nil(t, err)
	err = bigpicture.SatisfiedBy(map[string]int{
		"bpdataset": 1, "bpimage": 1, "bpsample": 1, "bpobservation": 1,
	})
	assert.Nil(t, err)
}
