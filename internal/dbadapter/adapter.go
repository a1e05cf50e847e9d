// Package dbadapter exposes a thin, polymorphic capability set over a pooled
// SQL connection — query/exec/tx/advisory-lock/end — so business-logic
// packages never import pgx directly (spec §4.1, §9).
package dbadapter

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Rows is the minimal row-iteration surface callers need.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Adapter is the capability set the engine is built against. pgxAdapter
// is the production implementation; tests use Fake (fake.go).
type Adapter interface {
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	WithAdvisoryLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
	Ping(ctx context.Context) error
	End()
}

// Tx is the capability set available inside WithTx.
type Tx interface {
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
}

type pgxAdapter struct {
	pool *pgxpool.Pool
}

// New wraps an existing pgxpool.Pool as an Adapter.
func New(pool *pgxpool.Pool) Adapter {
	return &pgxAdapter{pool: pool}
}

type pgxRows struct {
	pgx.Rows
}

func (r pgxRows) Scan(dest ...any) error { return r.Rows.Scan(dest...) }

func (a *pgxAdapter) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	rows, err := a.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(err)
	}
	return pgxRows{rows}, nil
}

func (a *pgxAdapter) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return a.pool.QueryRow(ctx, sql, args...)
}

func (a *pgxAdapter) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := a.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, classify(err)
	}
	return tag.RowsAffected(), nil
}

type pgxTx struct {
	tx pgx.Tx
}

func (t pgxTx) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(err)
	}
	return pgxRows{rows}, nil
}

func (t pgxTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return t.tx.QueryRow(ctx, sql, args...)
}

func (t pgxTx) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, classify(err)
	}
	return tag.RowsAffected(), nil
}

func (a *pgxAdapter) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return classify(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := fn(pgxTx{tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(err)
	}
	committed = true
	return nil
}

// WithAdvisoryLock runs fn while holding a transaction-scoped Postgres
// advisory lock keyed by the hash of key. The lock is released automatically
// when the transaction ends (spec §4.7, §5).
func (a *pgxAdapter) WithAdvisoryLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lockKey := int64(hashKey(key))
	return a.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey); err != nil {
			return fmt.Errorf("acquiring advisory lock: %w", err)
		}
		return fn(ctx)
	})
}

func (a *pgxAdapter) Ping(ctx context.Context) error {
	return a.pool.Ping(ctx)
}

func (a *pgxAdapter) End() {
	a.pool.Close()
}

func hashKey(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32()
}

// PgErrorCode extracts the SQLSTATE from err, if it is a *pgconn.PgError.
func PgErrorCode(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if ok := asPgError(err, &pgErr); ok {
		return pgErr.Code, true
	}
	return "", false
}

func asPgError(err error, target **pgconn.PgError) bool {
	for err != nil {
		if pe, ok := err.(*pgconn.PgError); ok {
			*target = pe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// classify wraps driver errors with a stable prefix; the typed taxonomy in
// syncerr is applied by callers who know the operational context (e.g. a
// unique-violation on _sync_run means ConcurrentRun, but only syncrun knows
// that).
func classify(err error) error {
	return fmt.Errorf("db: %w", err)
}

// ExclusionViolation is the SQLSTATE Postgres returns for an exclusion
// constraint violation (used by _sync_run's at-most-one-open-run guard).
const ExclusionViolation = "23P01"

// UniqueViolation is the SQLSTATE Postgres returns for a unique constraint
// violation.
const UniqueViolation = "23505"
