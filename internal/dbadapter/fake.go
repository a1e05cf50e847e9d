package dbadapter

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
)

// Fake is an in-memory Adapter used by the store, projector, and syncrun unit
// tests to run without a live Postgres instance — grounded on the corpus's
// general preference for interface-level fakes over mocking frameworks. It
// is intentionally minimal: it records which advisory-lock keys are held and
// the SQL text of every Exec and Query call, but does not interpret SQL.
type Fake struct {
	mu      sync.Mutex
	locks   map[string]bool
	Execs   []string
	Queries []string
}

// NewFake creates an empty Fake adapter.
func NewFake() *Fake {
	return &Fake{locks: make(map[string]bool)}
}

func (f *Fake) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	f.mu.Lock()
	f.Queries = append(f.Queries, sql)
	f.mu.Unlock()
	return emptyRows{}, nil
}

func (f *Fake) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return noRow{}
}

func (f *Fake) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	f.mu.Lock()
	f.Execs = append(f.Execs, sql)
	f.mu.Unlock()
	return 1, nil
}

func (f *Fake) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return fn(fakeTx{f})
}

func (f *Fake) WithAdvisoryLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	f.locks[key] = true
	f.mu.Unlock()
	return fn(ctx)
}

func (f *Fake) Ping(ctx context.Context) error { return nil }
func (f *Fake) End()                           {}

type fakeTx struct{ f *Fake }

func (t fakeTx) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	return t.f.Query(ctx, sql, args...)
}
func (t fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return t.f.QueryRow(ctx, sql, args...)
}
func (t fakeTx) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	return t.f.Exec(ctx, sql, args...)
}

type emptyRows struct{}

func (emptyRows) Next() bool         { return false }
func (emptyRows) Scan(dest ...any) error { return nil }
func (emptyRows) Err() error         { return nil }
func (emptyRows) Close()             {}

type noRow struct{}

func (noRow) Scan(dest ...any) error { return nil }
