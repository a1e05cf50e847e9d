// Package platform holds infrastructure glue: the Postgres pool, the Redis
// client, and the migration runner. The migration runner wraps
// golang-migrate/migrate/v4 the same way the teacher's
// internal/platform/migrate.go does (database/postgres driver, schema
// selected via the documented search_path query parameter), swapping the
// teacher's file:// source for the iofs source driver so every migration
// ships embedded in the binary instead of read from disk at runtime.
package platform

import (
	"context"
	"embed"
	"fmt"
	"net/url"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// RunMigrations creates schema (if named) and applies every embedded
// migration to it. golang-migrate owns its own version ledger
// (schema_migrations, created inside schema via search_path) rather than the
// named per-migration ledger this engine used to hand-roll (spec §4.2:
// "numbered prefixes impose total order" — golang-migrate's own sequential
// version numbering satisfies this directly).
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, databaseURL, schema string) error {
	if err := ensureSchema(ctx, pool, schema); err != nil {
		return err
	}

	sourceDriver, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, withSearchPath(databaseURL, schema))
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	if schema == "" {
		return nil
	}
	if _, err := pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", quoteIdent(schema))); err != nil {
		return fmt.Errorf("creating schema %s: %w", schema, err)
	}
	return nil
}

// withSearchPath appends schema to databaseURL's search_path, the way the
// golang-migrate postgres driver documents scoping a migration run (and its
// own schema_migrations ledger) to a non-public schema: "search_path" is not
// a libpq keyword libpq rejects — unrecognized connection parameters are
// forwarded to the server as the equivalent run-time (GUC) setting, so
// search_path=<schema> takes effect for the migration session same as SET
// search_path would.
func withSearchPath(databaseURL, schema string) string {
	if schema == "" {
		return databaseURL
	}
	sep := "?"
	if strings.Contains(databaseURL, "?") {
		sep = "&"
	}
	return databaseURL + sep + "search_path=" + url.QueryEscape(schema)
}

// quoteIdent does minimal identifier quoting for schema names, which are
// operator-controlled configuration, not user input — but we still guard
// against accidental SQL injection via a stray quote in configuration.
func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
