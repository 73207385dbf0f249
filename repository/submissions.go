package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bioarchive/mss/accession"
	"github.com/bioarchive/mss/core"
)

const submissionColumns = `submission_id, name, project_id, workflow, folder,
	title, description, document, is_published, is_ingested, published_at,
	ingested_at, created_at, modified_at`

func scanSubmission(row pgx.Row) (*core.Submission, error) {
	var s core.Submission
	err := row.Scan(&s.Id, &s.Name, &s.ProjectId, &s.WorkflowName, &s.Folder,
		&s.Title, &s.Description, &s.Document, &s.Published, &s.Ingested,
		&s.PublishedAt, &s.IngestedAt, &s.CreatedAt, &s.ModifiedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Adds a submission, minting its accession identifier and stamping its
// timestamps. A (project, name) collision yields a DuplicateError.
func (store *Store) AddSubmission(ctx context.Context, s *core.Submission) error {
	if s.Id == "" {
		id, err := store.mintAccession()
		if err != nil {
			return err
		}
		s.Id = id
	}
	now := store.now().UTC()
	s.CreatedAt = now
	s.ModifiedAt = now
	if s.Document == nil {
		s.Document = core.Document{}
	}
	_, err := store.db(ctx).Exec(ctx,
		`INSERT INTO submissions (submission_id, name, project_id, workflow,
			folder, title, description, document, created_at, modified_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.Id, s.Name, s.ProjectId, s.WorkflowName, s.Folder, s.Title,
		s.Description, s.Document, s.CreatedAt, s.ModifiedAt)
	if isUniqueViolation(err, "submissions_project_name_key") {
		return DuplicateError{Kind: "submission", Name: s.Name}
	}
	return err
}

// retrieves a submission by its accession identifier
func (store *Store) GetSubmission(ctx context.Context, id string) (*core.Submission, error) {
	row := store.db(ctx).QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE submission_id = $1`, id)
	s, err := scanSubmission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NotFoundError{Kind: "submission", Id: id}
	}
	return s, err
}

// retrieves a submission by its name within a project
func (store *Store) GetSubmissionByName(ctx context.Context, projectId, name string) (*core.Submission, error) {
	row := store.db(ctx).QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE project_id = $1 AND name = $2`, projectId, name)
	s, err := scanSubmission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NotFoundError{Kind: "submission", Id: name}
	}
	return s, err
}

// retrieves a submission by accession if the token has accession shape,
// falling back to the (project, name) lookup
func (store *Store) GetSubmissionByIdOrName(ctx context.Context, projectId, token string) (*core.Submission, error) {
	if accession.IsValid(token) {
		return store.GetSubmission(ctx, token)
	}
	return store.GetSubmissionByName(ctx, projectId, token)
}

// Builds the WHERE clause and arguments for a submission listing. Every
// predicate maps onto an indexed column; the only substring match is on the
// name.
func submissionListQuery(filter core.SubmissionFilter) (string, []any) {
	clauses := []string{}
	args := []any{}
	arg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.ProjectId != "" {
		clauses = append(clauses, "project_id = "+arg(filter.ProjectId))
	}
	if filter.Name != "" {
		clauses = append(clauses, "name ILIKE "+arg("%"+filter.Name+"%"))
	}
	if filter.Published != nil {
		clauses = append(clauses, "is_published = "+arg(*filter.Published))
	}
	if filter.Ingested != nil {
		clauses = append(clauses, "is_ingested = "+arg(*filter.Ingested))
	}
	if !filter.CreatedStart.IsZero() {
		clauses = append(clauses, "created_at >= "+arg(filter.CreatedStart))
	}
	if !filter.CreatedEnd.IsZero() {
		clauses = append(clauses, "created_at <= "+arg(filter.CreatedEnd))
	}
	if !filter.ModifiedStart.IsZero() {
		clauses = append(clauses, "modified_at >= "+arg(filter.ModifiedStart))
	}
	if !filter.ModifiedEnd.IsZero() {
		clauses = append(clauses, "modified_at <= "+arg(filter.ModifiedEnd))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	return where, args
}

// the ORDER BY clause for a submission listing
func submissionListOrder(sort core.SortOrder) string {
	if sort == core.SortByModifiedDesc {
		return " ORDER BY modified_at DESC"
	}
	return " ORDER BY created_at DESC"
}

// Lists submissions matching the filter, returning the requested page and
// the total number of matches.
func (store *Store) ListSubmissions(ctx context.Context, filter core.SubmissionFilter,
	page core.Page) ([]core.Submission, int, error) {

	where, args := submissionListQuery(filter)

	var total int
	err := store.db(ctx).QueryRow(ctx,
		"SELECT count(*) FROM submissions"+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	sql := "SELECT " + submissionColumns + " FROM submissions" + where +
		submissionListOrder(filter.Sort)
	if page.Size > 0 {
		sql += fmt.Sprintf(" LIMIT %d OFFSET %d", page.Size, (page.Number-1)*page.Size)
	}
	rows, err := store.db(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	submissions := make([]core.Submission, 0)
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, err
		}
		submissions = append(submissions, *s)
	}
	return submissions, total, rows.Err()
}

// Applies a mutator to a submission inside a transaction: the caller
// receives the live entity with its row locked, and the row is flushed when
// the mutator returns.
func (store *Store) UpdateSubmission(ctx context.Context, id string,
	mutate func(s *core.Submission) error) error {

	return store.Transact(ctx, func(ctx context.Context) error {
		row := store.db(ctx).QueryRow(ctx,
			`SELECT `+submissionColumns+` FROM submissions
			 WHERE submission_id = $1 FOR UPDATE`, id)
		s, err := scanSubmission(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return NotFoundError{Kind: "submission", Id: id}
		}
		if err != nil {
			return err
		}
		if err = mutate(s); err != nil {
			return err
		}
		s.ModifiedAt = store.now().UTC()
		_, err = store.db(ctx).Exec(ctx,
			`UPDATE submissions SET name = $2, folder = $3, title = $4,
				description = $5, document = $6, is_published = $7,
				is_ingested = $8, published_at = $9, ingested_at = $10,
				modified_at = $11
			 WHERE submission_id = $1`,
			s.Id, s.Name, s.Folder, s.Title, s.Description, s.Document,
			s.Published, s.Ingested, s.PublishedAt, s.IngestedAt, s.ModifiedAt)
		if isUniqueViolation(err, "submissions_project_name_key") {
			return DuplicateError{Kind: "submission", Name: s.Name}
		}
		return err
	})
}

// deletes a submission (objects, files and registrations cascade), returning
// whether a row was removed
func (store *Store) DeleteSubmission(ctx context.Context, id string) (bool, error) {
	tag, err := store.db(ctx).Exec(ctx,
		`DELETE FROM submissions WHERE submission_id = $1`, id)
	return tag.RowsAffected() > 0, err
}

// deletes a submission by accession or (project, name)
func (store *Store) DeleteSubmissionByIdOrName(ctx context.Context, projectId, token string) (bool, error) {
	if accession.IsValid(token) {
		return store.DeleteSubmission(ctx, token)
	}
	tag, err := store.db(ctx).Exec(ctx,
		`DELETE FROM submissions WHERE project_id = $1 AND name = $2`,
		projectId, token)
	return tag.RowsAffected() > 0, err
}

// Lists submissions that have registration rows but are not yet marked
// published: the publish orchestrator's startup recovery scan.
func (store *Store) ListUnreconciledSubmissions(ctx context.Context) ([]string, error) {
	rows, err := store.db(ctx).Query(ctx,
		`SELECT DISTINCT r.submission_id FROM registrations r
		 JOIN submissions s ON s.submission_id = r.submission_id
		 WHERE s.is_published = false`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
