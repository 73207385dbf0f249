package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/bioarchive/mss/core"
)

// Stores an API key record. A (user, key name) collision yields a
// DuplicateError.
func (store *Store) AddApiKey(ctx context.Context, key *core.ApiKey) error {
	if key.Id == "" {
		id, err := store.mintAccession()
		if err != nil {
			return err
		}
		key.Id = id
	}
	key.CreatedAt = store.now().UTC()
	_, err := store.db(ctx).Exec(ctx,
		`INSERT INTO api_keys (key_id, user_id, user_key_id, api_key_hash,
			salt, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		key.Id, key.UserId, key.UserKeyId, key.Hash, key.Salt, key.CreatedAt)
	if isUniqueViolation(err, "api_keys_user_key_key") {
		return DuplicateError{Kind: "API key", Name: key.UserKeyId}
	}
	return err
}

// Stores the salted hash of a minted key token. The token embeds the key
// id, so the hash can only be computed after the row exists.
func (store *Store) SetApiKeyHash(ctx context.Context, keyId, hash string) error {
	tag, err := store.db(ctx).Exec(ctx,
		`UPDATE api_keys SET api_key_hash = $2 WHERE key_id = $1`, keyId, hash)
	if err == nil && tag.RowsAffected() == 0 {
		return NotFoundError{Kind: "API key", Id: keyId}
	}
	return err
}

// retrieves an API key record by its identifier
func (store *Store) GetApiKey(ctx context.Context, keyId string) (*core.ApiKey, error) {
	row := store.db(ctx).QueryRow(ctx,
		`SELECT key_id, user_id, user_key_id, api_key_hash, salt, created_at
		 FROM api_keys WHERE key_id = $1`, keyId)
	var key core.ApiKey
	err := row.Scan(&key.Id, &key.UserId, &key.UserKeyId, &key.Hash,
		&key.Salt, &key.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NotFoundError{Kind: "API key", Id: keyId}
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// lists a user's API keys (without hash material)
func (store *Store) ListApiKeys(ctx context.Context, userId string) ([]core.ApiKey, error) {
	rows, err := store.db(ctx).Query(ctx,
		`SELECT key_id, user_id, user_key_id, created_at FROM api_keys
		 WHERE user_id = $1 ORDER BY created_at`, userId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]core.ApiKey, 0)
	for rows.Next() {
		var key core.ApiKey
		if err := rows.Scan(&key.Id, &key.UserId, &key.UserKeyId,
			&key.CreatedAt); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// deletes a user's API key by its user-facing name, returning whether a row
// was removed
func (store *Store) DeleteApiKey(ctx context.Context, userId, userKeyId string) (bool, error) {
	tag, err := store.db(ctx).Exec(ctx,
		`DELETE FROM api_keys WHERE user_id = $1 AND user_key_id = $2`,
		userId, userKeyId)
	return tag.RowsAffected() > 0, err
}
