package store

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/tx-stripe/stripe-sync-engine/internal/dbadapter"
)

func TestTable_SchemaQualification(t *testing.T) {
	withSchema := New(dbadapter.NewFake(), "stripe")
	if got := withSchema.table("products"); got != "stripe.products" {
		t.Errorf("table(products) = %q, want stripe.products", got)
	}

	noSchema := New(dbadapter.NewFake(), "")
	if got := noSchema.table("products"); got != "products" {
		t.Errorf("table(products) = %q, want products (no prefix)", got)
	}
}

func TestUpsertAccount(t *testing.T) {
	fake := dbadapter.NewFake()
	s := New(fake, "")

	err := s.UpsertAccount(context.Background(), "acct_1", map[string]any{"email": "a@example.com"}, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("UpsertAccount() error = %v", err)
	}
	if len(fake.Execs) != 1 {
		t.Fatalf("Execs = %d, want 1", len(fake.Execs))
	}
	sql := fake.Execs[0]
	if !strings.Contains(sql, "INSERT INTO accounts") {
		t.Errorf("sql = %q, want insert into accounts", sql)
	}
	if !strings.Contains(sql, "ON CONFLICT (id) DO UPDATE") {
		t.Errorf("sql = %q, want id-only conflict target (no account_id column on accounts)", sql)
	}
	if strings.Contains(sql, "created = EXCLUDED.created") {
		t.Errorf("sql = %q, should not reference a created column that wasn't passed", sql)
	}
}

func TestUpsertMirrorRow_NeverOverwritesCreatedOnConflict(t *testing.T) {
	fake := dbadapter.NewFake()
	s := New(fake, "")

	err := s.UpsertMirrorRow(context.Background(), "products", "acct_1", "prod_1", map[string]any{
		"name":    "Widget",
		"created": "2024-01-01",
	}, json.RawMessage(`{"id":"prod_1"}`))
	if err != nil {
		t.Fatalf("UpsertMirrorRow() error = %v", err)
	}

	sql := fake.Execs[0]
	if strings.Contains(sql, "created = EXCLUDED.created") {
		t.Errorf("sql = %q, must never overwrite created on conflict", sql)
	}
	if !strings.Contains(sql, "name = EXCLUDED.name") {
		t.Errorf("sql = %q, want name in the update set", sql)
	}
	if !strings.Contains(sql, "ON CONFLICT (account_id, id) DO UPDATE") {
		t.Errorf("sql = %q, want (account_id, id) conflict target", sql)
	}
}

func TestUpsertStub(t *testing.T) {
	fake := dbadapter.NewFake()
	s := New(fake, "")

	if err := s.UpsertStub(context.Background(), "products", "acct_1", "prod_1"); err != nil {
		t.Fatalf("UpsertStub() error = %v", err)
	}
	sql := fake.Execs[0]
	if !strings.Contains(sql, "INSERT INTO products") || !strings.Contains(sql, "DO NOTHING") {
		t.Errorf("sql = %q, want a no-op-on-conflict stub insert", sql)
	}
}

func TestTombstone(t *testing.T) {
	fake := dbadapter.NewFake()
	s := New(fake, "")

	if err := s.Tombstone(context.Background(), "customers", "acct_1", "cus_1"); err != nil {
		t.Fatalf("Tombstone() error = %v", err)
	}
	sql := fake.Execs[0]
	if !strings.Contains(sql, "UPDATE customers") || !strings.Contains(sql, "SET deleted = true") {
		t.Errorf("sql = %q, want an UPDATE ... SET deleted = true", sql)
	}
}

func TestSetCursorAndResetCursor(t *testing.T) {
	fake := dbadapter.NewFake()
	s := New(fake, "")

	if err := s.SetCursor(context.Background(), "products", "acct_1", "prod_99"); err != nil {
		t.Fatalf("SetCursor() error = %v", err)
	}
	if !strings.Contains(fake.Execs[0], "INSERT INTO _sync_status") {
		t.Errorf("sql = %q, want insert into _sync_status", fake.Execs[0])
	}

	if err := s.ResetCursor(context.Background(), "products", "acct_1"); err != nil {
		t.Fatalf("ResetCursor() error = %v", err)
	}
	if !strings.Contains(fake.Execs[1], "DELETE FROM _sync_status") {
		t.Errorf("sql = %q, want delete from _sync_status", fake.Execs[1])
	}
}

func TestRecordObjectRun_TimestampColumnVariesByStatus(t *testing.T) {
	cases := []struct {
		status string
		want   string
	}{
		{"running", "started_at = COALESCE(started_at, now())"},
		{"done", "completed_at = now()"},
		{"error", "completed_at = now()"},
	}
	for _, tc := range cases {
		fake := dbadapter.NewFake()
		s := New(fake, "")
		if err := s.RecordObjectRun(context.Background(), "run_1", "products", tc.status, 10, ""); err != nil {
			t.Fatalf("RecordObjectRun(%s) error = %v", tc.status, err)
		}
		if !strings.Contains(fake.Execs[0], tc.want) {
			t.Errorf("status %s: sql = %q, want it to contain %q", tc.status, fake.Execs[0], tc.want)
		}
	}
}

func TestInsertManagedWebhook(t *testing.T) {
	fake := dbadapter.NewFake()
	s := New(fake, "")

	w := ManagedWebhook{ID: "we_1", AccountID: "acct_1", URL: "https://example.com/webhook", EnabledEvents: []string{"*"}}
	if err := s.InsertManagedWebhook(context.Background(), w); err != nil {
		t.Fatalf("InsertManagedWebhook() error = %v", err)
	}
	if !strings.Contains(fake.Execs[0], "ON CONFLICT (account_id, url) DO UPDATE") {
		t.Errorf("sql = %q, want (account_id, url) conflict target", fake.Execs[0])
	}
}

func TestInsertAuditEntry(t *testing.T) {
	fake := dbadapter.NewFake()
	s := New(fake, "")

	if err := s.InsertAuditEntry(context.Background(), "acct_1", "process_until_done", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("InsertAuditEntry() error = %v", err)
	}
	if !strings.Contains(fake.Execs[0], "INSERT INTO _admin_audit_log") {
		t.Errorf("sql = %q, want insert into _admin_audit_log", fake.Execs[0])
	}
}

func TestListManagedWebhooks_RecordsQuery(t *testing.T) {
	fake := dbadapter.NewFake()
	s := New(fake, "")

	out, err := s.ListManagedWebhooks(context.Background(), "acct_1")
	if err != nil {
		t.Fatalf("ListManagedWebhooks() error = %v", err)
	}
	if len(out) != 0 {
		t.Errorf("out = %v, want empty (fake returns no rows)", out)
	}
	if len(fake.Queries) != 1 || !strings.Contains(fake.Queries[0], "_managed_webhooks") {
		t.Errorf("Queries = %v, want one query against _managed_webhooks", fake.Queries)
	}
}

func TestGetDashboard_RecordsQuery(t *testing.T) {
	fake := dbadapter.NewFake()
	s := New(fake, "")

	out, err := s.GetDashboard(context.Background(), "acct_1", 25)
	if err != nil {
		t.Fatalf("GetDashboard() error = %v", err)
	}
	if len(out) != 0 {
		t.Errorf("out = %v, want empty (fake returns no rows)", out)
	}
	if len(fake.Queries) != 1 || !strings.Contains(fake.Queries[0], "sync_dashboard") {
		t.Errorf("Queries = %v, want one query against sync_dashboard", fake.Queries)
	}
}

func TestDeleteAccountRows_NonTransactional_SweepsEveryTable(t *testing.T) {
	fake := dbadapter.NewFake()
	s := New(fake, "")

	counts, err := s.DeleteAccountRows(context.Background(), "acct_1", false, false)
	if err != nil {
		t.Fatalf("DeleteAccountRows() error = %v", err)
	}
	for _, table := range append(append([]string{}, MirrorTables...), "_sync_obj_run", "_sync_run", "_sync_status", "accounts") {
		if _, ok := counts[table]; !ok {
			t.Errorf("counts missing entry for table %q", table)
		}
	}
	wantExecs := len(MirrorTables) + 4 // + _sync_obj_run, _sync_run, _sync_status, accounts
	if len(fake.Execs) != wantExecs {
		t.Errorf("Execs = %d, want %d (useTransaction=false changes atomicity, not scope)", len(fake.Execs), wantExecs)
	}
}

func TestDeleteAccountRows_Transactional_SweepsEveryTable(t *testing.T) {
	fake := dbadapter.NewFake()
	s := New(fake, "")

	counts, err := s.DeleteAccountRows(context.Background(), "acct_1", false, true)
	if err != nil {
		t.Fatalf("DeleteAccountRows() error = %v", err)
	}
	for _, table := range []string{"_sync_obj_run", "_sync_run", "_sync_status", "accounts"} {
		if _, ok := counts[table]; !ok {
			t.Errorf("counts missing entry for table %q", table)
		}
	}
	wantExecs := len(MirrorTables) + 4 // + _sync_obj_run, _sync_run, _sync_status, accounts
	if len(fake.Execs) != wantExecs {
		t.Errorf("Execs = %d, want %d", len(fake.Execs), wantExecs)
	}
}

func TestDeleteAccountRows_DryRun_IssuesNoWrites(t *testing.T) {
	fake := dbadapter.NewFake()
	s := New(fake, "")

	counts, err := s.DeleteAccountRows(context.Background(), "acct_1", true, false)
	if err != nil {
		t.Fatalf("DeleteAccountRows(dryRun) error = %v", err)
	}
	if len(fake.Execs) != 0 {
		t.Errorf("Execs = %v, want none for a dry run", fake.Execs)
	}
	// countAccountRows uses QueryRow (uncounted by Fake), so assert on its
	// result shape instead: one count per mirror table plus run/status/account
	// bookkeeping tables.
	wantTables := len(MirrorTables) + 3
	if len(counts) != wantTables {
		t.Errorf("counts has %d entries, want %d", len(counts), wantTables)
	}
}

func TestMirrorTables_ChildrenBeforeParents(t *testing.T) {
	index := make(map[string]int, len(MirrorTables))
	for i, t := range MirrorTables {
		index[t] = i
	}
	// prices/plans reference products; products must be deleted last so a
	// non-transactional sweep run against a real schema never trips a
	// foreign key even though this engine otherwise treats parent/child
	// ordering as application-level only (spec §4.4 "Ordering").
	if index["prices"] >= index["products"] {
		t.Errorf("prices (index %d) must come before products (index %d)", index["prices"], index["products"])
	}
	if index["plans"] >= index["products"] {
		t.Errorf("plans (index %d) must come before products (index %d)", index["plans"], index["products"])
	}
}
