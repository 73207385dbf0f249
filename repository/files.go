package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bioarchive/mss/core"
)

const fileColumns = `file_id, submission_id, COALESCE(object_id, ''), path,
	bytes, unencrypted_checksum, encrypted_checksum, checksum_method,
	ingest_status, ingest_error, ingest_error_type, ingest_error_count,
	created_at, modified_at`

const prefixedFileColumns = `f.file_id, f.submission_id,
	COALESCE(f.object_id, ''), f.path, f.bytes, f.unencrypted_checksum,
	f.encrypted_checksum, f.checksum_method, f.ingest_status, f.ingest_error,
	f.ingest_error_type, f.ingest_error_count, f.created_at, f.modified_at`

func scanFile(row pgx.Row) (*core.File, error) {
	var f core.File
	err := row.Scan(&f.Id, &f.SubmissionId, &f.ObjectId, &f.Path, &f.Bytes,
		&f.UnencryptedChecksum, &f.EncryptedChecksum, &f.ChecksumMethod,
		&f.IngestStatus, &f.IngestError, &f.IngestErrorType,
		&f.IngestErrorCount, &f.CreatedAt, &f.ModifiedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Adds a file to a submission. A (submission, path) collision yields a
// DuplicateError.
func (store *Store) AddFile(ctx context.Context, f *core.File) error {
	if f.Id == "" {
		id, err := store.mintAccession()
		if err != nil {
			return err
		}
		f.Id = id
	}
	if f.IngestStatus == "" {
		f.IngestStatus = core.IngestStatusAdded
	}
	now := store.now().UTC()
	f.CreatedAt = now
	f.ModifiedAt = now
	var objectId any
	if f.ObjectId != "" {
		objectId = f.ObjectId
	}
	_, err := store.db(ctx).Exec(ctx,
		`INSERT INTO files (file_id, submission_id, object_id, path, bytes,
			unencrypted_checksum, encrypted_checksum, checksum_method,
			ingest_status, created_at, modified_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		f.Id, f.SubmissionId, objectId, f.Path, f.Bytes,
		f.UnencryptedChecksum, f.EncryptedChecksum, f.ChecksumMethod,
		f.IngestStatus, f.CreatedAt, f.ModifiedAt)
	if isUniqueViolation(err, "files_submission_path_key") {
		return DuplicateError{Kind: "file", Name: f.Path}
	}
	return err
}

// retrieves a file by its accession identifier
func (store *Store) GetFile(ctx context.Context, id string) (*core.File, error) {
	row := store.db(ctx).QueryRow(ctx,
		`SELECT `+fileColumns+` FROM files WHERE file_id = $1`, id)
	f, err := scanFile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NotFoundError{Kind: "file", Id: id}
	}
	return f, err
}

// retrieves a file by its path within a submission
func (store *Store) GetFileByPath(ctx context.Context, submissionId, path string) (*core.File, error) {
	row := store.db(ctx).QueryRow(ctx,
		`SELECT `+fileColumns+` FROM files
		 WHERE submission_id = $1 AND path = $2`, submissionId, path)
	f, err := scanFile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NotFoundError{Kind: "file", Id: path}
	}
	return f, err
}

// lists files matching the filter, ordered by path
func (store *Store) ListFiles(ctx context.Context, filter core.FileFilter) ([]core.File, error) {
	clauses := []string{}
	args := []any{}
	arg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.SubmissionId != "" {
		clauses = append(clauses, "f.submission_id = "+arg(filter.SubmissionId))
	}
	if filter.ProjectId != "" {
		clauses = append(clauses, "s.project_id = "+arg(filter.ProjectId))
	}
	if filter.IngestStatus != "" {
		clauses = append(clauses, "f.ingest_status = "+arg(string(filter.IngestStatus)))
	}
	sql := `SELECT ` + prefixedFileColumns + ` FROM files f
		 JOIN submissions s ON s.submission_id = f.submission_id`
	if len(clauses) > 0 {
		sql += " WHERE " + strings.Join(clauses, " AND ")
	}
	sql += " ORDER BY f.path"

	rows, err := store.db(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := make([]core.File, 0)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *f)
	}
	return files, rows.Err()
}

// Advances a file's ingest status, enforcing the partial order
// added -> verified -> ready with failed reachable from any non-terminal
// state. A failure carries its error detail and bumps the error count.
func (store *Store) SetFileIngestStatus(ctx context.Context, id string,
	status core.IngestStatus, ingestError, errorType string) error {

	return store.Transact(ctx, func(ctx context.Context) error {
		row := store.db(ctx).QueryRow(ctx,
			`SELECT `+fileColumns+` FROM files WHERE file_id = $1 FOR UPDATE`, id)
		f, err := scanFile(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return NotFoundError{Kind: "file", Id: id}
		}
		if err != nil {
			return err
		}
		if !f.IngestStatus.CanAdvanceTo(status) {
			return IngestTransitionError{
				FileId: id,
				From:   string(f.IngestStatus),
				To:     string(status),
			}
		}
		errorCount := f.IngestErrorCount
		if status == core.IngestStatusFailed {
			errorCount++
		}
		_, err = store.db(ctx).Exec(ctx,
			`UPDATE files SET ingest_status = $2, ingest_error = $3,
				ingest_error_type = $4, ingest_error_count = $5,
				modified_at = $6
			 WHERE file_id = $1`,
			id, status, ingestError, errorType, errorCount, store.now().UTC())
		return err
	})
}

// associates a file with a metadata object (e.g. a dataset)
func (store *Store) AssignFileToObject(ctx context.Context, fileId, objectId string) error {
	tag, err := store.db(ctx).Exec(ctx,
		`UPDATE files SET object_id = $2, modified_at = $3 WHERE file_id = $1`,
		fileId, objectId, store.now().UTC())
	if err == nil && tag.RowsAffected() == 0 {
		return NotFoundError{Kind: "file", Id: fileId}
	}
	return err
}

// deletes a file, returning whether a row was removed
func (store *Store) DeleteFile(ctx context.Context, id string) (bool, error) {
	tag, err := store.db(ctx).Exec(ctx,
		`DELETE FROM files WHERE file_id = $1`, id)
	return tag.RowsAffected() > 0, err
}
