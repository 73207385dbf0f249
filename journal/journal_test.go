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

// These tests must be run serially, since the journal is coordinated by a
// single instance.

package journal

import (
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/bioarchive/mss/config"
	"github.com/bioarchive/mss/msstest"
)

// runs all tests serially
func TestRunner(t *testing.T) {
	tester := SerialTests{Test: t}
	tester.TestInitAndFinalize()
	tester.TestRecordSucceededAttempt()
	tester.TestRecordFailedAttempt()
	tester.TestRejectsInvalidStatus()
	tester.TestFetchAttemptsByTimeRange()
}

// This runs setup, runs all tests, and does breakdown.
func TestMain(m *testing.M) {
	var status int
	setup()
	status = m.Run()
	breakdown()
	os.Exit(status)
}

// this function gets called at the beginning of a test session
func setup() {
	msstest.EnableDebugLogging()

	log.Print("Creating testing directory...\n")
	var err error
	TESTING_DIR, err = os.MkdirTemp(os.TempDir(), "metadata-submission-tests-")
	if err != nil {
		log.Panicf("Couldn't create testing directory: %s", err)
	}

	myConfig := strings.ReplaceAll(journalConfig, "TESTING_DIR", TESTING_DIR)
	err = config.Init([]byte(myConfig))
	if err != nil {
		log.Panicf("Couldn't initialize configuration: %s", err)
	}
}

// this function gets called after all tests have been run
func breakdown() {
	if IsOpen() {
		Finalize()
	}
	if TESTING_DIR != "" {
		log.Printf("Deleting testing directory %s...\n", TESTING_DIR)
		os.RemoveAll(TESTING_DIR)
	}
}

// To run the tests serially, we attach them to a SerialTests type and
// have them run by a single test runner.
type SerialTests struct{ Test *testing.T }

func (t *SerialTests) TestInitAndFinalize() {
	assert := assert.New(t.Test)

	assert.False(IsOpen())
	err := Init()
	assert.Nil(err)
	assert.True(IsOpen())
	err = Finalize()
	assert.Nil(err)
	assert.False(IsOpen())
}

func (t *SerialTests) TestRecordSucceededAttempt() {
	assert := assert.New(t.Test)

	err := Init()
	assert.Nil(err)

	now := time.Now().UTC().Truncate(time.Second)
	record := Record{
		Id:           uuid.New(),
		SubmissionId: "01JANE0000000000000000TEST",
		ProjectId:    "PRJ1",
		Workflow:     "sdsx",
		DOI:          "10.80869/abc-123",
		StartTime:    now.Add(-time.Minute),
		StopTime:     now,
		Status:       "succeeded",
	}
	err = RecordAttempt(record)
	assert.Nil(err)

	record1, err := Attempt(record.Id)
	assert.Nil(err)
	assert.Equal(record.Id, record1.Id)
	assert.Equal(record.SubmissionId, record1.SubmissionId)
	assert.Equal(record.ProjectId, record1.ProjectId)
	assert.Equal(record.Workflow, record1.Workflow)
	assert.Equal(record.DOI, record1.DOI)
	assert.Equal(record.Status, record1.Status)
	assert.Equal(record.StartTime, record1.StartTime)
	assert.Equal(record.StopTime, record1.StopTime)

	err = Finalize()
	assert.Nil(err)
}

func (t *SerialTests) TestRecordFailedAttempt() {
	assert := assert.New(t.Test)

	err := Init()
	assert.Nil(err)

	now := time.Now().UTC().Truncate(time.Second)
	record := Record{
		Id:           uuid.New(),
		SubmissionId: "01JANE0000000000000000FAIL",
		ProjectId:    "PRJ1",
		Workflow:     "bigpicture",
		StartTime:    now.Add(-time.Minute),
		StopTime:     now,
		Status:       "failed",
		Detail:       "catalog registration failed; DOI draft deleted",
	}
	err = RecordAttempt(record)
	assert.Nil(err)

	record1, err := Attempt(record.Id)
	assert.Nil(err)
	assert.Equal(record.Status, record1.Status)
	assert.Equal(record.Detail, record1.Detail)

	err = Finalize()
	assert.Nil(err)
}

func (t *SerialTests) TestRejectsInvalidStatus() {
	assert := assert.New(t.Test)

	err := Init()
	assert.Nil(err)

	err = RecordAttempt(Record{Id: uuid.New(), Status: "exploded"})
	assert.NotNil(err)
	assert.IsType(NewRecordError{}, err)

	err = Finalize()
	assert.Nil(err)
}

func (t *SerialTests) TestFetchAttemptsByTimeRange() {
	assert := assert.New(t.Test)

	err := Init()
	assert.Nil(err)

	base := time.Now().UTC().Truncate(time.Second).Add(24 * time.Hour)
	for i := 0; i < 3; i++ {
		err = RecordAttempt(Record{
			Id:           uuid.New(),
			SubmissionId: "01JANE0000000000000000LIST",
			ProjectId:    "PRJ1",
			Workflow:     "sdsx",
			StartTime:    base.Add(time.Duration(i) * time.Minute),
			StopTime:     base.Add(time.Duration(i)*time.Minute + 30*time.Second),
			Status:       "failed",
		})
		assert.Nil(err)
	}

	// only the first two attempts start within the range
	records, err := Attempts(base, base.Add(time.Minute))
	assert.Nil(err)
	assert.Len(records, 2)
	for _, record := range records {
		assert.Equal("01JANE0000000000000000LIST", record.SubmissionId)
	}

	err = Finalize()
	assert.Nil(err)
}

// temporary testing directory
var TESTING_DIR string

// configuration
const journalConfig string = `
database:
  journalFile: TESTING_DIR/publish_journal.db
`
