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

const objectColumns = `object_id, submission_id, project_id, object_type,
	COALESCE(name, ''), title, description, document,
	COALESCE(xml_document::text, ''), created_at, modified_at`

func scanObject(row pgx.Row) (*core.MetadataObject, error) {
	var o core.MetadataObject
	err := row.Scan(&o.Id, &o.SubmissionId, &o.ProjectId, &o.ObjectType,
		&o.Name, &o.Title, &o.Description, &o.Document, &o.XMLDocument,
		&o.CreatedAt, &o.ModifiedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// nullable name column: empty names are stored as NULL so the partial
// unique index only applies to named objects
func nullableName(name string) any {
	if name == "" {
		return nil
	}
	return name
}

// Adds a metadata object, minting its accession identifier. A
// (project, type, name) collision yields a DuplicateError.
func (store *Store) AddObject(ctx context.Context, o *core.MetadataObject) error {
	if o.Id == "" {
		id, err := store.mintAccession()
		if err != nil {
			return err
		}
		o.Id = id
	}
	now := store.now().UTC()
	o.CreatedAt = now
	o.ModifiedAt = now
	if o.Document == nil {
		o.Document = core.Document{}
	}
	var xml any
	if o.XMLDocument != "" {
		xml = o.XMLDocument
	}
	_, err := store.db(ctx).Exec(ctx,
		`INSERT INTO objects (object_id, submission_id, project_id,
			object_type, name, title, description, document, xml_document,
			created_at, modified_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		o.Id, o.SubmissionId, o.ProjectId, o.ObjectType, nullableName(o.Name),
		o.Title, o.Description, o.Document, xml, o.CreatedAt, o.ModifiedAt)
	if isUniqueViolation(err, "objects_project_type_name_key") {
		return DuplicateError{Kind: o.ObjectType, Name: o.Name}
	}
	return err
}

// retrieves an object by its accession identifier
func (store *Store) GetObject(ctx context.Context, id string) (*core.MetadataObject, error) {
	row := store.db(ctx).QueryRow(ctx,
		`SELECT `+objectColumns+` FROM objects WHERE object_id = $1`, id)
	o, err := scanObject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NotFoundError{Kind: "object", Id: id}
	}
	return o, err
}

// retrieves an object by its name within a project, optionally constrained
// to a type
func (store *Store) GetObjectByName(ctx context.Context, projectId, name, objectType string) (*core.MetadataObject, error) {
	sql := `SELECT ` + objectColumns + ` FROM objects
		 WHERE project_id = $1 AND name = $2`
	args := []any{projectId, name}
	if objectType != "" {
		sql += " AND object_type = $3"
		args = append(args, objectType)
	}
	row := store.db(ctx).QueryRow(ctx, sql, args...)
	o, err := scanObject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NotFoundError{Kind: "object", Id: name}
	}
	return o, err
}

// retrieves an object by accession if the token has accession shape, else by
// name
func (store *Store) GetObjectByIdOrName(ctx context.Context, projectId, token, objectType string) (*core.MetadataObject, error) {
	if accession.IsValid(token) {
		return store.GetObject(ctx, token)
	}
	return store.GetObjectByName(ctx, projectId, token, objectType)
}

// builds the WHERE and ORDER BY clauses for an object listing
func objectListQuery(filter core.ObjectFilter) (string, []any) {
	clauses := []string{}
	args := []any{}
	arg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.SubmissionId != "" {
		clauses = append(clauses, "submission_id = "+arg(filter.SubmissionId))
	}
	if len(filter.ObjectTypes) > 0 {
		clauses = append(clauses, "object_type = ANY("+arg(filter.ObjectTypes)+")")
	}
	if filter.ObjectId != "" {
		clauses = append(clauses, "object_id = "+arg(filter.ObjectId))
	}
	if filter.Name != "" {
		clauses = append(clauses, "name = "+arg(filter.Name))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	// the given type order is the primary sort key, then insertion order
	order := " ORDER BY created_at ASC"
	if len(filter.ObjectTypes) > 0 {
		order = fmt.Sprintf(" ORDER BY array_position(%s::text[], object_type), created_at ASC",
			arg(filter.ObjectTypes))
	}
	return where + order, args
}

// lists objects matching the filter
func (store *Store) ListObjects(ctx context.Context, filter core.ObjectFilter) ([]core.MetadataObject, error) {
	clauses, args := objectListQuery(filter)
	rows, err := store.db(ctx).Query(ctx,
		"SELECT "+objectColumns+" FROM objects"+clauses, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	objects := make([]core.MetadataObject, 0)
	for rows.Next() {
		o, err := scanObject(rows)
		if err != nil {
			return nil, err
		}
		objects = append(objects, *o)
	}
	return objects, rows.Err()
}

// returns the number of objects of each type within a submission
func (store *Store) CountObjectsByType(ctx context.Context, submissionId string) (map[string]int, error) {
	rows, err := store.db(ctx).Query(ctx,
		`SELECT object_type, count(*) FROM objects
		 WHERE submission_id = $1 GROUP BY object_type`, submissionId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var objectType string
		var count int
		if err := rows.Scan(&objectType, &count); err != nil {
			return nil, err
		}
		counts[objectType] = count
	}
	return counts, rows.Err()
}

// applies a mutator to an object inside a transaction, as for submissions
func (store *Store) UpdateObject(ctx context.Context, id string,
	mutate func(o *core.MetadataObject) error) error {

	return store.Transact(ctx, func(ctx context.Context) error {
		row := store.db(ctx).QueryRow(ctx,
			`SELECT `+objectColumns+` FROM objects
			 WHERE object_id = $1 FOR UPDATE`, id)
		o, err := scanObject(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return NotFoundError{Kind: "object", Id: id}
		}
		if err != nil {
			return err
		}
		if err = mutate(o); err != nil {
			return err
		}
		o.ModifiedAt = store.now().UTC()
		var xml any
		if o.XMLDocument != "" {
			xml = o.XMLDocument
		}
		_, err = store.db(ctx).Exec(ctx,
			`UPDATE objects SET name = $2, title = $3, description = $4,
				document = $5, xml_document = $6, modified_at = $7
			 WHERE object_id = $1`,
			o.Id, nullableName(o.Name), o.Title, o.Description, o.Document,
			xml, o.ModifiedAt)
		if isUniqueViolation(err, "objects_project_type_name_key") {
			return DuplicateError{Kind: o.ObjectType, Name: o.Name}
		}
		return err
	})
}

// deletes an object (its files and registrations cascade), returning whether
// a row was removed
func (store *Store) DeleteObject(ctx context.Context, id string) (bool, error) {
	tag, err := store.db(ctx).Exec(ctx,
		`DELETE FROM objects WHERE object_id = $1`, id)
	return tag.RowsAffected() > 0, err
}
