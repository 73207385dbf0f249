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

package journal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bioarchive/mss/config"
)

// This is the publish journal, which logs the outcome of every publication
// attempt to a local SQLite file. The journal is an audit trail kept outside
// the primary database so operators can reconstruct what the orchestrator
// did even when the primary database is the thing being debugged.

// a record storing the outcome of one publication attempt
type Record struct {
	// UUID associated with the attempt
	Id uuid.UUID `json:"id"`
	// the submission being published and its owning project
	SubmissionId string `json:"submission_id"`
	ProjectId    string `json:"project_id"`
	// name of the workflow governing the publication
	Workflow string `json:"workflow"`
	// the DOI minted for the submission, if one was reached
	DOI string `json:"doi,omitempty"`
	// times at which the attempt started and at which it finished
	StartTime time.Time `json:"start_time"`
	StopTime  time.Time `json:"stop_time"`
	// outcome of the attempt ("succeeded", "failed", or "compensated")
	Status string `json:"status"`
	// failure detail, including the step reached and any orphaned artifacts
	Detail string `json:"detail,omitempty"`
}

// Initializes the publish journal. When no journal file is configured the
// journal stays closed and recording becomes a no-op for callers that check
// IsOpen first.
func Init() error {
	if config.Database.JournalFile == "" {
		return nil
	}
	if !IsOpen() {
		go publishJournalProcess()
		time.Sleep(100 * time.Millisecond)
	}
	return nil
}

// saves and closes the publish journal (if it's been opened)
func Finalize() error {
	if IsOpen() {
		channels_.Input.Shutdown <- struct{}{}
		closeChannels()
	}
	return nil
}

// returns true if the journal is open for writing, false if not
func IsOpen() bool {
	if channels_.Open { // has Init() been called?
		channels_.Input.CheckIfOpen <- struct{}{}
		select {
		case isOpen := <-channels_.Output.IsOpen:
			return isOpen
		case <-time.After(1 * time.Second): // after a second, we assume the goroutine has crashed
			closeChannels()
			return false
		}
	}
	return false
}

// records a finished publication attempt
func RecordAttempt(record Record) error {
	switch record.Status {
	case "succeeded", "failed", "compensated":
		// pass-through (see below)
	default:
		return NewRecordError{
			Id:      record.Id,
			Message: fmt.Sprintf("Invalid status: %s", record.Status),
		}
	}

	if !IsOpen() {
		return NotOpenError{}
	}

	channels_.Input.CreateRecord <- record
	return <-channels_.Output.Error
}

// retrieves the record of a single publication attempt by its ID
func Attempt(id uuid.UUID) (Record, error) {
	if !IsOpen() {
		return Record{}, NotOpenError{}
	}
	channels_.Input.FetchRecord <- id
	select {
	case record := <-channels_.Output.Record:
		return record, nil
	case err := <-channels_.Output.Error:
		return Record{}, err
	}
}

// retrieves records for attempts that started within the time range with the
// given (inclusive) bounds
func Attempts(start, stop time.Time) ([]Record, error) {
	if !IsOpen() {
		return nil, NotOpenError{}
	}
	channels_.Input.FetchRecords <- TimeRange{Start: start, Stop: stop}
	select {
	case records := <-channels_.Output.Records:
		return records, nil
	case err := <-channels_.Output.Error:
		return nil, err
	}
}

//-----------
// Internals
//-----------

// The publish journal gets its own goroutine so it doesn't bring down the
// entire service if it crashes. Here we define "input" channels (main
// process -> goroutine) and "output" channels (goroutine -> main process)
// for passing data back and forth. The single goroutine also serializes all
// access to the SQLite connection.

type TimeRange struct {
	Start, Stop time.Time
}

var channels_ struct {
	Open  bool // true if channels are open, false if not
	Input struct {
		CreateRecord chan Record    // for creating new records
		CheckIfOpen  chan struct{}  // for checking to see whether the database is open
		FetchRecord  chan uuid.UUID // for fetching a single record by ID
		FetchRecords chan TimeRange // for fetching records within a time range
		Shutdown     chan struct{}  // for shutting down the database
	}

	Output struct {
		Record  chan Record   // for returning a single record
		Records chan []Record // for returning records
		Error   chan error    // for returning errors
		IsOpen  chan bool     // for answering queries about whether the database is open
	}
}

const journalSchema = `
CREATE TABLE IF NOT EXISTS publish_attempts (
	id TEXT PRIMARY KEY,
	submission_id TEXT NOT NULL,
	project_id TEXT NOT NULL,
	workflow TEXT NOT NULL,
	doi TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	start_time TEXT NOT NULL,
	stop_time TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS publish_attempts_start ON publish_attempts(start_time);
`

func publishJournalProcess() {

	// open the database, creating the schema if necessary
	conn, err := sqlite.OpenConn(config.Database.JournalFile,
		sqlite.OpenReadWrite|sqlite.OpenCreate|sqlite.OpenWAL)
	if err != nil {
		channels_.Output.Error <- CantOpenError{Message: err.Error()}
		return
	}
	if err := sqlitex.ExecuteScript(conn, journalSchema, nil); err != nil {
		conn.Close()
		channels_.Output.Error <- CantOpenError{Message: err.Error()}
		return
	}

	openChannels()

	// handle requests
	running := true
	for running {
		select {

		case <-channels_.Input.CheckIfOpen:
			channels_.Output.IsOpen <- true // always true if this goroutine is running!

		case record := <-channels_.Input.CreateRecord:
			channels_.Output.Error <- createRecord(conn, record)

		case id := <-channels_.Input.FetchRecord:
			record, err := fetchRecord(conn, id)
			if err != nil {
				channels_.Output.Error <- err
			} else {
				channels_.Output.Record <- record
			}

		case timeRange := <-channels_.Input.FetchRecords:
			records, err := fetchRecords(conn, timeRange.Start, timeRange.Stop)
			if err != nil {
				channels_.Output.Error <- err
			} else {
				channels_.Output.Records <- records
			}

		case <-channels_.Input.Shutdown:
			if err := conn.Close(); err != nil {
				channels_.Output.Error <- CantCloseError{Message: err.Error()}
			}
			running = false
		}
	}
}

func openChannels() {
	channels_.Open = true
	channels_.Input.CreateRecord = make(chan Record)
	channels_.Input.CheckIfOpen = make(chan struct{})
	channels_.Input.FetchRecord = make(chan uuid.UUID)
	channels_.Input.FetchRecords = make(chan TimeRange)
	channels_.Input.Shutdown = make(chan struct{})
	channels_.Output.Record = make(chan Record)
	channels_.Output.Records = make(chan []Record)
	channels_.Output.Error = make(chan error)
	channels_.Output.IsOpen = make(chan bool)
}

func closeChannels() {
	channels_.Open = false
	close(channels_.Input.CreateRecord)
	close(channels_.Input.CheckIfOpen)
	close(channels_.Input.FetchRecord)
	close(channels_.Input.FetchRecords)
	close(channels_.Input.Shutdown)
	close(channels_.Output.Record)
	close(channels_.Output.Records)
	close(channels_.Output.Error)
	close(channels_.Output.IsOpen)
}

func createRecord(conn *sqlite.Conn, record Record) error {
	err := sqlitex.Execute(conn,
		`INSERT INTO publish_attempts (id, submission_id, project_id, workflow,
			doi, status, detail, start_time, stop_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				record.Id.String(), record.SubmissionId, record.ProjectId,
				record.Workflow, record.DOI, record.Status, record.Detail,
				record.StartTime.UTC().Format(time.RFC3339),
				record.StopTime.UTC().Format(time.RFC3339),
			},
		})
	if err != nil {
		return NewRecordError{Id: record.Id, Message: err.Error()}
	}
	return nil
}

const recordColumns = `id, submission_id, project_id, workflow, doi, status,
	detail, start_time, stop_time`

func scanRecord(stmt *sqlite.Stmt) (Record, error) {
	var record Record
	var err error
	if record.Id, err = uuid.Parse(stmt.ColumnText(0)); err != nil {
		return record, err
	}
	record.SubmissionId = stmt.ColumnText(1)
	record.ProjectId = stmt.ColumnText(2)
	record.Workflow = stmt.ColumnText(3)
	record.DOI = stmt.ColumnText(4)
	record.Status = stmt.ColumnText(5)
	record.Detail = stmt.ColumnText(6)
	if record.StartTime, err = time.Parse(time.RFC3339, stmt.ColumnText(7)); err != nil {
		return record, err
	}
	record.StopTime, err = time.Parse(time.RFC3339, stmt.ColumnText(8))
	return record, err
}

func fetchRecord(conn *sqlite.Conn, id uuid.UUID) (Record, error) {
	var record Record
	found := false
	err := sqlitex.Execute(conn,
		`SELECT `+recordColumns+` FROM publish_attempts WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				var err error
				record, err = scanRecord(stmt)
				found = err == nil
				return err
			},
		})
	if err != nil {
		return record, err
	}
	if !found {
		return record, RecordNotFoundError{Id: id}
	}
	return record, nil
}

func fetchRecords(conn *sqlite.Conn, start, stop time.Time) ([]Record, error) {
	records := make([]Record, 0)
	err := sqlitex.Execute(conn,
		`SELECT `+recordColumns+` FROM publish_attempts
		 WHERE start_time >= ? AND start_time <= ? ORDER BY start_time`,
		&sqlitex.ExecOptions{
			Args: []any{
				start.UTC().Format(time.RFC3339),
				stop.UTC().Format(time.RFC3339),
			},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				record, err := scanRecord(stmt)
				if err != nil {
					return err
				}
				records = append(records, record)
				return nil
			},
		})
	return records, err
}
