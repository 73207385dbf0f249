package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/bioarchive/mss/accession"
)

// The repository is a thin port over Postgres. All database work for one
// request runs inside one transaction with read-committed isolation; the
// transaction's session is shared through the request context, so nested
// repository calls within a Transact scope reuse it.

// A Store provides access to the persisted entities.
type Store struct {
	pool   *pgxpool.Pool
	minter *accession.Minter
	now    func() time.Time
}

// creates a store connected to the given Postgres URL, applying any pending
// schema migrations
func New(ctx context.Context, url string) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err = migrate(url); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{
		pool:   pool,
		minter: accession.NewMinter(),
		now:    time.Now,
	}, nil
}

// creates a store with an injected clock and accession minter (tests)
func NewWithSources(pool *pgxpool.Pool, minter *accession.Minter, now func() time.Time) *Store {
	return &Store{pool: pool, minter: minter, now: now}
}

// applies pending migrations through goose's database/sql path
func migrate(url string) error {
	config, err := pgx.ParseConfig(url)
	if err != nil {
		return err
	}
	db := stdlib.OpenDB(*config)
	defer db.Close()
	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

// closes the store's connection pool
func (store *Store) Close() {
	store.pool.Close()
}

// verifies database connectivity
func (store *Store) HealthCheck(ctx context.Context) error {
	return store.pool.Ping(ctx)
}

// the subset of pgx shared by pools and transactions
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txContextKey struct{}

// returns the transaction bound to the context, or the pool when the call is
// outside any transactional scope
func (store *Store) db(ctx context.Context) querier {
	if tx, ok := ctx.Value(txContextKey{}).(pgx.Tx); ok {
		return tx
	}
	return store.pool
}

// how many times transient connection failures are retried before the error
// surfaces
const maxAttempts = 5

// Runs fn inside a read-committed transaction whose session is shared via
// the context. Transient connection failures before any progress are
// retried with the usual back-off shape.
func (store *Store) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txContextKey{}).(pgx.Tx); ok {
		// already inside a transactional scope
		return fn(ctx)
	}

	delay := 500 * time.Millisecond
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = store.transactOnce(ctx, fn)
		if err == nil || !isTransient(err) {
			return err
		}
		slog.Warn(fmt.Sprintf("Transient database error (attempt %d/%d): %s",
			attempt, maxAttempts, err.Error()))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return err
}

func (store *Store) transactOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	txCtx := context.WithValue(ctx, txContextKey{}, tx)
	if err = fn(txCtx); err != nil {
		tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// reports whether an error is a transient connection failure worth retrying
func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	return pgconn.SafeToRetry(err)
}

// reports whether an error is a violation of the named unique constraint
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
	}
	return false
}

// Mints an accession identifier for a new row. A collision with an existing
// row surfaces as a unique violation on insert.
func (store *Store) mintAccession() (string, error) {
	return store.minter.New()
}
