package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/bioarchive/mss/core"
)

const registrationColumns = `submission_id, COALESCE(object_id, ''),
	object_type, title, description, doi, metax_id, datacite_url, rems_url,
	rems_resource_id, rems_catalogue_id, created_at, modified_at`

func scanRegistration(row pgx.Row) (*core.Registration, error) {
	var r core.Registration
	err := row.Scan(&r.SubmissionId, &r.ObjectId, &r.ObjectType, &r.Title,
		&r.Description, &r.DOI, &r.MetaxId, &r.DataCiteURL, &r.RemsURL,
		&r.RemsResourceId, &r.RemsCatalogueId, &r.CreatedAt, &r.ModifiedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Inserts or refreshes a registration row. External identifier fields use
// update-if-null semantics: a field already recorded is never overwritten,
// which makes re-running the publish orchestrator safe.
func (store *Store) UpsertRegistration(ctx context.Context, r *core.Registration) error {
	now := store.now().UTC()
	var objectId any
	if r.ObjectId != "" {
		objectId = r.ObjectId
	}
	_, err := store.db(ctx).Exec(ctx,
		`INSERT INTO registrations (submission_id, object_id, object_type,
			title, description, doi, metax_id, datacite_url, rems_url,
			rems_resource_id, rems_catalogue_id, created_at, modified_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		 ON CONFLICT (submission_id, COALESCE(object_id, '')) DO UPDATE SET
			doi = CASE WHEN registrations.doi = '' THEN excluded.doi
				ELSE registrations.doi END,
			metax_id = CASE WHEN registrations.metax_id = '' THEN excluded.metax_id
				ELSE registrations.metax_id END,
			datacite_url = CASE WHEN registrations.datacite_url = '' THEN excluded.datacite_url
				ELSE registrations.datacite_url END,
			rems_url = CASE WHEN registrations.rems_url = '' THEN excluded.rems_url
				ELSE registrations.rems_url END,
			rems_resource_id = CASE WHEN registrations.rems_resource_id = '' THEN excluded.rems_resource_id
				ELSE registrations.rems_resource_id END,
			rems_catalogue_id = CASE WHEN registrations.rems_catalogue_id = '' THEN excluded.rems_catalogue_id
				ELSE registrations.rems_catalogue_id END,
			title = excluded.title,
			description = excluded.description,
			modified_at = excluded.modified_at`,
		r.SubmissionId, objectId, r.ObjectType, r.Title, r.Description,
		r.DOI, r.MetaxId, r.DataCiteURL, r.RemsURL, r.RemsResourceId,
		r.RemsCatalogueId, now)
	return err
}

// lists the registrations recorded for a submission
func (store *Store) ListRegistrations(ctx context.Context, submissionId string) ([]core.Registration, error) {
	rows, err := store.db(ctx).Query(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE submission_id = $1 ORDER BY created_at`, submissionId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	registrations := make([]core.Registration, 0)
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		registrations = append(registrations, *r)
	}
	return registrations, rows.Err()
}

// removes all registrations recorded for a submission (publish roll-back)
func (store *Store) DeleteRegistrations(ctx context.Context, submissionId string) (bool, error) {
	tag, err := store.db(ctx).Exec(ctx,
		`DELETE FROM registrations WHERE submission_id = $1`, submissionId)
	return tag.RowsAffected() > 0, err
}
