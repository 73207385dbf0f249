package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/bioarchive/mss/core"
)

// Registers a project the first time its external identifier is observed in
// an identity-provider claim, returning the stored project either way.
func (store *Store) EnsureProject(ctx context.Context, externalId string) (*core.Project, error) {
	row := store.db(ctx).QueryRow(ctx,
		`SELECT project_id, external_id, templates, created_at
		 FROM projects WHERE external_id = $1`, externalId)
	var p core.Project
	err := row.Scan(&p.Id, &p.ExternalId, &p.Templates, &p.CreatedAt)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	id, err := store.mintAccession()
	if err != nil {
		return nil, err
	}
	p = core.Project{Id: id, ExternalId: externalId, CreatedAt: store.now().UTC()}
	_, err = store.db(ctx).Exec(ctx,
		`INSERT INTO projects (project_id, external_id, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (external_id) DO NOTHING`, p.Id, p.ExternalId, p.CreatedAt)
	if err != nil {
		return nil, err
	}
	// a concurrent login may have won the insert race
	return store.GetProjectByExternalId(ctx, externalId)
}

// retrieves a project by its external identifier
func (store *Store) GetProjectByExternalId(ctx context.Context, externalId string) (*core.Project, error) {
	row := store.db(ctx).QueryRow(ctx,
		`SELECT project_id, external_id, templates, created_at
		 FROM projects WHERE external_id = $1`, externalId)
	var p core.Project
	err := row.Scan(&p.Id, &p.ExternalId, &p.Templates, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NotFoundError{Kind: "project", Id: externalId}
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// retrieves a project by its accession identifier
func (store *Store) GetProject(ctx context.Context, id string) (*core.Project, error) {
	row := store.db(ctx).QueryRow(ctx,
		`SELECT project_id, external_id, templates, created_at
		 FROM projects WHERE project_id = $1`, id)
	var p core.Project
	err := row.Scan(&p.Id, &p.ExternalId, &p.Templates, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NotFoundError{Kind: "project", Id: id}
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Creates or refreshes a user on login. The project membership list mirrors
// the identity-provider claims at that moment.
func (store *Store) UpsertUser(ctx context.Context, externalId, name string,
	projectIds []string) (*core.User, error) {

	var user *core.User
	err := store.Transact(ctx, func(ctx context.Context) error {
		now := store.now().UTC()
		row := store.db(ctx).QueryRow(ctx,
			`SELECT user_id, created_at FROM users WHERE external_id = $1`,
			externalId)
		var id string
		var createdAt = now
		err := row.Scan(&id, &createdAt)
		if errors.Is(err, pgx.ErrNoRows) {
			if id, err = store.mintAccession(); err != nil {
				return err
			}
			_, err = store.db(ctx).Exec(ctx,
				`INSERT INTO users (user_id, external_id, name, created_at,
					modified_at)
				 VALUES ($1, $2, $3, $4, $4)`, id, externalId, name, now)
		} else if err == nil {
			_, err = store.db(ctx).Exec(ctx,
				`UPDATE users SET name = $2, modified_at = $3 WHERE user_id = $1`,
				id, name, now)
		}
		if err != nil {
			return err
		}

		// membership reflects the claims: replace the whole list
		if _, err = store.db(ctx).Exec(ctx,
			`DELETE FROM user_projects WHERE user_id = $1`, id); err != nil {
			return err
		}
		for _, projectId := range projectIds {
			if _, err = store.db(ctx).Exec(ctx,
				`INSERT INTO user_projects (user_id, project_id) VALUES ($1, $2)`,
				id, projectId); err != nil {
				return err
			}
		}
		user = &core.User{
			Id:         id,
			ExternalId: externalId,
			Name:       name,
			Projects:   projectIds,
			CreatedAt:  createdAt,
			ModifiedAt: now,
		}
		return nil
	})
	return user, err
}

// retrieves a user with their project membership
func (store *Store) GetUser(ctx context.Context, id string) (*core.User, error) {
	row := store.db(ctx).QueryRow(ctx,
		`SELECT user_id, external_id, name, created_at, modified_at
		 FROM users WHERE user_id = $1`, id)
	var u core.User
	err := row.Scan(&u.Id, &u.ExternalId, &u.Name, &u.CreatedAt, &u.ModifiedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NotFoundError{Kind: "user", Id: id}
	}
	if err != nil {
		return nil, err
	}

	rows, err := store.db(ctx).Query(ctx,
		`SELECT project_id FROM user_projects WHERE user_id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var projectId string
		if err := rows.Scan(&projectId); err != nil {
			return nil, err
		}
		u.Projects = append(u.Projects, projectId)
	}
	return &u, rows.Err()
}

// deletes a user, returning whether a row was removed
func (store *Store) DeleteUser(ctx context.Context, id string) (bool, error) {
	tag, err := store.db(ctx).Exec(ctx,
		`DELETE FROM users WHERE user_id = $1`, id)
	return tag.RowsAffected() > 0, err
}

// reports whether a user belongs to the given project
func (store *Store) UserInProject(ctx context.Context, userId, projectId string) (bool, error) {
	var exists bool
	err := store.db(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_projects
		 WHERE user_id = $1 AND project_id = $2)`, userId, projectId).Scan(&exists)
	return exists, err
}

// reports whether a user owns a submission through project membership
func (store *Store) UserOwnsSubmission(ctx context.Context, userId, submissionId string) (bool, error) {
	var exists bool
	err := store.db(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM submissions s
		 JOIN user_projects up ON up.project_id = s.project_id
		 WHERE up.user_id = $1 AND s.submission_id = $2)`,
		userId, submissionId).Scan(&exists)
	return exists, err
}
