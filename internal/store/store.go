// Package store is the one place that knows actual SQL shapes for the
// tables described in spec §3. Every other component (projectors, backfill,
// webhook pipeline, managed-webhook lifecycle, sync-run coordinator) goes
// through Store rather than building SQL itself, so the (account_id, id)
// upsert idiom and the schema-qualification rule stay in a single file.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tx-stripe/stripe-sync-engine/internal/dbadapter"
	"github.com/tx-stripe/stripe-sync-engine/internal/syncerr"
)

// Store wraps a dbadapter.Adapter with the engine's table vocabulary.
type Store struct {
	db     dbadapter.Adapter
	schema string
}

// New creates a Store. schema may be empty, meaning "no schema prefix"
// (spec §6).
func New(db dbadapter.Adapter, schema string) *Store {
	return &Store{db: db, schema: schema}
}

// DB exposes the underlying adapter for components that need raw
// transactional or advisory-lock access (e.g. managedwebhook).
func (s *Store) DB() dbadapter.Adapter { return s.db }

// table schema-qualifies a bare table name.
func (s *Store) table(name string) string {
	if s.schema == "" {
		return name
	}
	return fmt.Sprintf("%s.%s", s.schema, name)
}

// UpsertAccount inserts or refreshes an accounts row. Called by the account
// resolver on a cold resolve; webhooks use UpsertStubAccount (spec §3 Lifecycle).
func (s *Store) UpsertAccount(ctx context.Context, id string, cols map[string]any, raw json.RawMessage) error {
	return s.upsertRow(ctx, "accounts", "", id, cols, raw)
}

// UpsertStubAccount inserts an id-only accounts row if absent, leaving an
// existing row untouched (spec §4.8: stub accounts observed from webhooks).
func (s *Store) UpsertStubAccount(ctx context.Context, id string) error {
	sql := fmt.Sprintf(`INSERT INTO %s (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, s.table("accounts"))
	_, err := s.db.Exec(ctx, sql, id)
	return err
}

// UpsertMirrorRow upserts one provider object into table, keyed by
// (account_id, id). cols are the kind-specific projected columns (excluding
// account_id/id/raw/last_synced_at/updated_at, which this method manages).
// created is never overwritten on conflict (spec §4.4).
func (s *Store) UpsertMirrorRow(ctx context.Context, table, accountID, id string, cols map[string]any, raw json.RawMessage) error {
	return s.upsertRow(ctx, table, accountID, id, cols, raw)
}

func (s *Store) upsertRow(ctx context.Context, table, accountID, id string, cols map[string]any, raw json.RawMessage) error {
	keys := make([]string, 0, len(cols))
	for k := range cols {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var insertCols, placeholders, updateSet []string
	args := make([]any, 0, len(keys)+3)
	n := 1

	hasAccountCol := accountID != "" || table != "accounts"
	if hasAccountCol {
		insertCols = append(insertCols, "account_id")
		placeholders = append(placeholders, fmt.Sprintf("$%d", n))
		args = append(args, accountID)
		n++
	}

	insertCols = append(insertCols, "id")
	placeholders = append(placeholders, fmt.Sprintf("$%d", n))
	args = append(args, id)
	n++

	for _, k := range keys {
		insertCols = append(insertCols, k)
		placeholders = append(placeholders, fmt.Sprintf("$%d", n))
		args = append(args, cols[k])
		n++
		if k != "created" {
			updateSet = append(updateSet, fmt.Sprintf("%s = EXCLUDED.%s", k, k))
		}
	}

	if raw != nil {
		insertCols = append(insertCols, "raw")
		placeholders = append(placeholders, fmt.Sprintf("$%d", n))
		args = append(args, raw)
		n++
		updateSet = append(updateSet, "raw = EXCLUDED.raw")
	}

	insertCols = append(insertCols, "last_synced_at", "updated_at")
	placeholders = append(placeholders, "now()", "now()")
	updateSet = append(updateSet, "last_synced_at = now()", "updated_at = now()")

	conflictTarget := "(id)"
	if hasAccountCol {
		conflictTarget = "(account_id, id)"
	}

	sql := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT %s DO UPDATE SET %s`,
		s.table(table),
		strings.Join(insertCols, ", "),
		strings.Join(placeholders, ", "),
		conflictTarget,
		strings.Join(updateSet, ", "),
	)

	_, err := s.db.Exec(ctx, sql, args...)
	return err
}

// UpsertStub inserts an (account_id, id)-only mirror row if absent, so a
// reference to a not-yet-mirrored parent points at an existing row (spec
// §4.4 "Ordering"); the mirror tables declare no foreign keys between each
// other, only to accounts. A stub is marked implicitly by every other column
// being NULL/default; no separate flag is stored.
func (s *Store) UpsertStub(ctx context.Context, table, accountID, id string) error {
	sql := fmt.Sprintf(
		`INSERT INTO %s (account_id, id) VALUES ($1, $2) ON CONFLICT (account_id, id) DO NOTHING`,
		s.table(table),
	)
	_, err := s.db.Exec(ctx, sql, accountID, id)
	return err
}

// Tombstone marks a mirror row deleted without removing it (spec §3 Mirror
// Row, Non-goals: no cascading delete of child rows).
func (s *Store) Tombstone(ctx context.Context, table, accountID, id string) error {
	sql := fmt.Sprintf(
		`UPDATE %s SET deleted = true, last_synced_at = now(), updated_at = now() WHERE account_id = $1 AND id = $2`,
		s.table(table),
	)
	_, err := s.db.Exec(ctx, sql, accountID, id)
	return err
}

// --- Sync cursor (_sync_status) ---

// GetCursor returns the last synced object id for (resource, accountID), or
// nil if the resource has never been synced (spec §3 I1).
func (s *Store) GetCursor(ctx context.Context, resource, accountID string) (*string, error) {
	sql := fmt.Sprintf(
		`SELECT last_synced_object_id FROM %s WHERE resource = $1 AND account_id = $2`,
		s.table("_sync_status"),
	)
	var cursor *string
	err := s.db.QueryRow(ctx, sql, resource, accountID).Scan(&cursor)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cursor, nil
}

// SetCursor advances the cursor for (resource, accountID). Cursor values
// must be monotonically non-decreasing within a run (spec §4.5, P4); this
// method does not itself enforce that — callers only ever pass the newest
// page's last object id, which is monotonic by construction of
// starting_after pagination.
func (s *Store) SetCursor(ctx context.Context, resource, accountID, cursor string) error {
	sql := fmt.Sprintf(`
		INSERT INTO %s (resource, account_id, last_synced_object_id, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (resource, account_id)
		DO UPDATE SET last_synced_object_id = EXCLUDED.last_synced_object_id, updated_at = now()
	`, s.table("_sync_status"))
	_, err := s.db.Exec(ctx, sql, resource, accountID, cursor)
	return err
}

// ResetCursor clears the cursor for one (resource, account) (spec §3
// Lifecycle). DeleteAccountRows does not call it; it deletes the account's
// _sync_status rows itself.
func (s *Store) ResetCursor(ctx context.Context, resource, accountID string) error {
	sql := fmt.Sprintf(
		`DELETE FROM %s WHERE resource = $1 AND account_id = $2`,
		s.table("_sync_status"),
	)
	_, err := s.db.Exec(ctx, sql, resource, accountID)
	return err
}

// --- Sync run / object run (_sync_run, _sync_obj_run) ---

// Run mirrors one _sync_run row.
type Run struct {
	ID            string
	AccountID     string
	StartedAt     time.Time
	CompletedAt   *time.Time
	ClosedAt      *time.Time
	MaxConcurrent int
	TriggeredBy   string
}

// OpenRun inserts a new _sync_run row. The exclusion constraint on
// (account_id WHERE closed_at IS NULL) enforces spec §3 I4; a violation is
// translated to syncerr.ConcurrentRun.
func (s *Store) OpenRun(ctx context.Context, accountID string, maxConcurrent int, triggeredBy string) (string, error) {
	sql := fmt.Sprintf(`
		INSERT INTO %s (account_id, max_concurrent, triggered_by)
		VALUES ($1, $2, $3)
		RETURNING id
	`, s.table("_sync_run"))

	var id string
	err := s.db.QueryRow(ctx, sql, accountID, maxConcurrent, triggeredBy).Scan(&id)
	if err != nil {
		if code, ok := dbadapter.PgErrorCode(err); ok && code == dbadapter.ExclusionViolation {
			return "", &syncerr.ConcurrentRun{AccountID: accountID}
		}
		return "", err
	}
	return id, nil
}

// CloseRun marks a run closed (spec §3 Lifecycle: "closed when every
// object-kind reports done").
func (s *Store) CloseRun(ctx context.Context, runID string) error {
	sql := fmt.Sprintf(
		`UPDATE %s SET closed_at = now(), completed_at = now() WHERE id = $1`,
		s.table("_sync_run"),
	)
	_, err := s.db.Exec(ctx, sql, runID)
	return err
}

// GetOpenRun returns the currently open run for accountID, if any.
func (s *Store) GetOpenRun(ctx context.Context, accountID string) (*Run, error) {
	sql := fmt.Sprintf(`
		SELECT id, account_id, started_at, completed_at, closed_at, max_concurrent, triggered_by
		FROM %s WHERE account_id = $1 AND closed_at IS NULL
	`, s.table("_sync_run"))

	var r Run
	err := s.db.QueryRow(ctx, sql, accountID).Scan(
		&r.ID, &r.AccountID, &r.StartedAt, &r.CompletedAt, &r.ClosedAt, &r.MaxConcurrent, &r.TriggeredBy,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// RecordObjectRun upserts the per-(run, kind) bookkeeping row (spec §4.5
// "Run bookkeeping").
func (s *Store) RecordObjectRun(ctx context.Context, runID, kind, status string, processedCount int, errMsg string) error {
	var errVal any
	if errMsg != "" {
		errVal = errMsg
	}

	var timestampCol string
	switch status {
	case "running":
		timestampCol = "started_at = COALESCE(started_at, now())"
	case "done", "error":
		timestampCol = "completed_at = now()"
	default:
		timestampCol = "started_at = started_at"
	}

	sql := fmt.Sprintf(`
		INSERT INTO %s (run_id, kind, status, processed_count, error_message, started_at)
		VALUES ($1, $2, $3, $4, $5, CASE WHEN $3 = 'running' THEN now() ELSE NULL END)
		ON CONFLICT (run_id, kind) DO UPDATE SET
			status = EXCLUDED.status,
			processed_count = EXCLUDED.processed_count,
			error_message = EXCLUDED.error_message,
			%s
	`, s.table("_sync_obj_run"), timestampCol)

	_, err := s.db.Exec(ctx, sql, runID, kind, status, processedCount, errVal)
	return err
}

// --- Managed webhooks (_managed_webhooks) ---

// ManagedWebhook mirrors one _managed_webhooks row.
type ManagedWebhook struct {
	ID            string
	AccountID     string
	URL           string
	EnabledEvents []string
	CreatedAt     time.Time
}

// FindManagedWebhooksByURL lists local rows for (accountID, url).
func (s *Store) FindManagedWebhooksByURL(ctx context.Context, accountID, url string) ([]ManagedWebhook, error) {
	sql := fmt.Sprintf(`
		SELECT id, account_id, url, enabled_events, created_at
		FROM %s WHERE account_id = $1 AND url = $2
	`, s.table("_managed_webhooks"))

	rows, err := s.db.Query(ctx, sql, accountID, url)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ManagedWebhook
	for rows.Next() {
		var w ManagedWebhook
		if err := rows.Scan(&w.ID, &w.AccountID, &w.URL, &w.EnabledEvents, &w.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ListManagedWebhooks lists every local row for accountID (spec §6
// listManagedWebhooks).
func (s *Store) ListManagedWebhooks(ctx context.Context, accountID string) ([]ManagedWebhook, error) {
	sql := fmt.Sprintf(`
		SELECT id, account_id, url, enabled_events, created_at
		FROM %s WHERE account_id = $1 ORDER BY created_at
	`, s.table("_managed_webhooks"))

	rows, err := s.db.Query(ctx, sql, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ManagedWebhook
	for rows.Next() {
		var w ManagedWebhook
		if err := rows.Scan(&w.ID, &w.AccountID, &w.URL, &w.EnabledEvents, &w.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// InsertManagedWebhook inserts a local row. The (account_id, url) unique
// constraint plus the caller's advisory lock give race-freedom (spec §4.7,
// P6).
func (s *Store) InsertManagedWebhook(ctx context.Context, w ManagedWebhook) error {
	sql := fmt.Sprintf(`
		INSERT INTO %s (id, account_id, url, enabled_events)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, url) DO UPDATE SET id = EXCLUDED.id, enabled_events = EXCLUDED.enabled_events
	`, s.table("_managed_webhooks"))
	_, err := s.db.Exec(ctx, sql, w.ID, w.AccountID, w.URL, w.EnabledEvents)
	return err
}

// DeleteManagedWebhookRow deletes a local row by id. Tolerates not-found.
func (s *Store) DeleteManagedWebhookRow(ctx context.Context, id string) error {
	sql := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table("_managed_webhooks"))
	_, err := s.db.Exec(ctx, sql, id)
	return err
}

// --- Dashboard ---

// DashboardRow mirrors one row of the sync_dashboard view (spec §4.9).
type DashboardRow struct {
	RunID       string
	AccountID   string
	StartedAt   time.Time
	CompletedAt *time.Time
	ClosedAt    *time.Time
	TriggeredBy string
	Status      string
}

// GetDashboard returns the most recent runs for accountID, newest first
// (spec §6 sync_dashboard read endpoint).
func (s *Store) GetDashboard(ctx context.Context, accountID string, limit int) ([]DashboardRow, error) {
	sql := fmt.Sprintf(`
		SELECT run_id, account_id, started_at, completed_at, closed_at, triggered_by, status
		FROM %s WHERE account_id = $1 ORDER BY started_at DESC LIMIT $2
	`, s.table("sync_dashboard"))

	rows, err := s.db.Query(ctx, sql, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DashboardRow
	for rows.Next() {
		var d DashboardRow
		if err := rows.Scan(&d.RunID, &d.AccountID, &d.StartedAt, &d.CompletedAt, &d.ClosedAt, &d.TriggeredBy, &d.Status); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// --- Audit log ---

// InsertAuditEntry records an admin-triggered action (SPEC_FULL §4.8).
func (s *Store) InsertAuditEntry(ctx context.Context, accountID, action string, detail json.RawMessage) error {
	sql := fmt.Sprintf(
		`INSERT INTO %s (account_id, action, detail) VALUES ($1, $2, $3)`,
		s.table("_admin_audit_log"),
	)
	_, err := s.db.Exec(ctx, sql, accountID, action, detail)
	return err
}

// --- Account deletion ---

// MirrorTables lists every table dangerouslyDeleteAccount must sweep,
// children before parents so foreign keys never block a delete executed
// table-by-table.
var MirrorTables = []string{
	"checkout_sessions",
	"subscription_schedules",
	"early_fraud_warnings",
	"credit_notes",
	"disputes",
	"refunds",
	"payment_intents",
	"charges",
	"invoices",
	"subscriptions",
	"setup_intents",
	"payment_methods",
	"tax_ids",
	"customers",
	"plans",
	"prices",
	"products",
}

// DeleteAccountRows deletes every mirror row, cursor, and run for accountID.
// When useTransaction is true the whole sweep is one transaction (spec §6,
// P7: either every row with account_id=A is removed, or none are).
func (s *Store) DeleteAccountRows(ctx context.Context, accountID string, dryRun, useTransaction bool) (map[string]int64, error) {
	if dryRun {
		return s.countAccountRows(ctx, accountID)
	}

	if useTransaction {
		var counts map[string]int64
		err := s.db.WithTx(ctx, func(tx dbadapter.Tx) error {
			c, err := s.deleteAccountRowsTx(ctx, tx, accountID)
			counts = c
			return err
		})
		return counts, err
	}

	return s.deleteAccountRowsNonTx(ctx, accountID)
}

func (s *Store) countAccountRows(ctx context.Context, accountID string) (map[string]int64, error) {
	counts := make(map[string]int64, len(MirrorTables)+3)
	tables := append(append([]string{}, MirrorTables...), "_sync_status", "_sync_run", "accounts")
	for _, t := range tables {
		col := "account_id"
		if t == "accounts" {
			col = "id"
		}
		sql := fmt.Sprintf(`SELECT count(*) FROM %s WHERE %s = $1`, s.table(t), col)
		var n int64
		if err := s.db.QueryRow(ctx, sql, accountID).Scan(&n); err != nil {
			return nil, err
		}
		counts[t] = n
	}
	return counts, nil
}

func (s *Store) deleteAccountRowsTx(ctx context.Context, tx dbadapter.Tx, accountID string) (map[string]int64, error) {
	counts := make(map[string]int64, len(MirrorTables)+3)
	for _, t := range MirrorTables {
		n, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE account_id = $1`, s.table(t)), accountID)
		if err != nil {
			return nil, fmt.Errorf("deleting from %s: %w", t, err)
		}
		counts[t] = n
	}
	for _, t := range []string{"_sync_obj_run", "_sync_run", "_sync_status"} {
		extra := ""
		if t == "_sync_obj_run" {
			extra = fmt.Sprintf(` WHERE run_id IN (SELECT id FROM %s WHERE account_id = $1)`, s.table("_sync_run"))
		} else {
			extra = ` WHERE account_id = $1`
		}
		n, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s%s`, s.table(t), extra), accountID)
		if err != nil {
			return nil, fmt.Errorf("deleting from %s: %w", t, err)
		}
		counts[t] = n
	}
	n, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table("accounts")), accountID)
	if err != nil {
		return nil, fmt.Errorf("deleting account row: %w", err)
	}
	counts["accounts"] = n
	return counts, nil
}

// deleteAccountRowsNonTx sweeps the same tables as deleteAccountRowsTx, in the
// same order, just without wrapping them in one transaction: useTransaction
// only controls atomicity (spec §6, P7), not which rows are in scope, so a
// caller that opts out of the transaction still gets every row deleted, one
// statement at a time.
func (s *Store) deleteAccountRowsNonTx(ctx context.Context, accountID string) (map[string]int64, error) {
	counts := make(map[string]int64, len(MirrorTables)+4)
	for _, t := range MirrorTables {
		n, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE account_id = $1`, s.table(t)), accountID)
		if err != nil {
			return counts, fmt.Errorf("deleting from %s: %w", t, err)
		}
		counts[t] = n
	}
	for _, t := range []string{"_sync_obj_run", "_sync_run", "_sync_status"} {
		extra := ""
		if t == "_sync_obj_run" {
			extra = fmt.Sprintf(` WHERE run_id IN (SELECT id FROM %s WHERE account_id = $1)`, s.table("_sync_run"))
		} else {
			extra = ` WHERE account_id = $1`
		}
		n, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s%s`, s.table(t), extra), accountID)
		if err != nil {
			return counts, fmt.Errorf("deleting from %s: %w", t, err)
		}
		counts[t] = n
	}
	n, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table("accounts")), accountID)
	if err != nil {
		return counts, fmt.Errorf("deleting account row: %w", err)
	}
	counts["accounts"] = n
	return counts, nil
}
