package projector

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/tx-stripe/stripe-sync-engine/internal/dbadapter"
	"github.com/tx-stripe/stripe-sync-engine/internal/store"
)

func TestObj_Str(t *testing.T) {
	o := obj{"name": "Widget", "nullable": nil, "wrong_type": 5}
	if v := o.str("name"); v != "Widget" {
		t.Errorf("str(name) = %v, want Widget", v)
	}
	if v := o.str("nullable"); v != nil {
		t.Errorf("str(nullable) = %v, want nil", v)
	}
	if v := o.str("wrong_type"); v != nil {
		t.Errorf("str(wrong_type) = %v, want nil", v)
	}
	if v := o.str("missing"); v != nil {
		t.Errorf("str(missing) = %v, want nil", v)
	}
}

func TestObj_Ref(t *testing.T) {
	o := obj{
		"bare_id":  "prod_123",
		"expanded": map[string]any{"id": "prod_456", "object": "product"},
		"nullable": nil,
	}
	if v := o.ref("bare_id"); v != "prod_123" {
		t.Errorf("ref(bare_id) = %v, want prod_123", v)
	}
	if v := o.ref("expanded"); v != "prod_456" {
		t.Errorf("ref(expanded) = %v, want prod_456", v)
	}
	if v := o.ref("nullable"); v != nil {
		t.Errorf("ref(nullable) = %v, want nil", v)
	}
}

func TestObj_Number(t *testing.T) {
	o := obj{"amount": float64(1999)}
	v := o.number("amount")
	n, ok := v.(int64)
	if !ok || n != 1999 {
		t.Errorf("number(amount) = %v, want int64(1999)", v)
	}
}

func TestObj_UnixTime(t *testing.T) {
	o := obj{"created": float64(1700000000)}
	v := o.unixTime("created")
	ts, ok := v.(time.Time)
	if !ok {
		t.Fatalf("unixTime(created) = %v, want time.Time", v)
	}
	want := time.Unix(1700000000, 0).UTC()
	if !ts.Equal(want) {
		t.Errorf("unixTime(created) = %v, want %v", ts, want)
	}
}

func TestObj_Metadata_DefaultsToEmptyObject(t *testing.T) {
	o := obj{}
	v := o.metadata()
	raw, ok := v.(json.RawMessage)
	if !ok || string(raw) != "{}" {
		t.Errorf("metadata() = %v, want {}", v)
	}
}

func TestObj_ID(t *testing.T) {
	o := obj{"id": "cus_abc"}
	if o.id() != "cus_abc" {
		t.Errorf("id() = %q, want cus_abc", o.id())
	}
}

func TestRegistry_Project_UnsupportedKind(t *testing.T) {
	r := New(store.New(dbadapter.NewFake(), ""), false)
	err := r.Project(context.Background(), "not_a_kind", "acct_1", json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected error for unsupported kind")
	}
}

func TestRegistry_ProjectProduct_UpsertsIntoProductsTable(t *testing.T) {
	fake := dbadapter.NewFake()
	r := New(store.New(fake, ""), false)

	raw := json.RawMessage(`{"id":"prod_1","object":"product","name":"Widget","active":true,"created":1700000000}`)
	if err := r.Project(context.Background(), "products", "acct_1", raw); err != nil {
		t.Fatalf("Project() error = %v", err)
	}

	if len(fake.Execs) != 1 {
		t.Fatalf("Execs = %d, want 1", len(fake.Execs))
	}
	if !strings.Contains(fake.Execs[0], "INSERT INTO products") {
		t.Errorf("Exec SQL = %q, want it to insert into products", fake.Execs[0])
	}
}

func TestRegistry_ProjectPrice_StubsParentProduct(t *testing.T) {
	fake := dbadapter.NewFake()
	r := New(store.New(fake, ""), false)

	raw := json.RawMessage(`{"id":"price_1","object":"price","product":"prod_1","active":true,"currency":"usd","unit_amount":500,"type":"recurring"}`)
	if err := r.Project(context.Background(), "prices", "acct_1", raw); err != nil {
		t.Fatalf("Project() error = %v", err)
	}

	if len(fake.Execs) != 2 {
		t.Fatalf("Execs = %d, want 2 (stub product + price upsert)", len(fake.Execs))
	}
	if !strings.Contains(fake.Execs[0], "INSERT INTO products") {
		t.Errorf("first exec = %q, want a products stub insert", fake.Execs[0])
	}
	if !strings.Contains(fake.Execs[1], "INSERT INTO prices") {
		t.Errorf("second exec = %q, want a prices upsert", fake.Execs[1])
	}
}

func TestRegistry_Tombstone(t *testing.T) {
	fake := dbadapter.NewFake()
	r := New(store.New(fake, ""), false)

	if err := r.Tombstone(context.Background(), "products", "acct_1", "prod_1"); err != nil {
		t.Fatalf("Tombstone() error = %v", err)
	}
	if len(fake.Execs) != 1 || !strings.Contains(fake.Execs[0], "SET deleted = true") {
		t.Errorf("Execs = %v, want one UPDATE ... SET deleted = true", fake.Execs)
	}
}

func TestSupportedKinds_MatchesRegistry(t *testing.T) {
	r := New(store.New(dbadapter.NewFake(), ""), false)
	for _, kind := range SupportedKinds {
		if _, ok := r.fns[kind]; !ok {
			t.Errorf("SupportedKinds contains %q, which has no registered projector", kind)
		}
	}
	if len(SupportedKinds) != len(r.fns) {
		t.Errorf("SupportedKinds has %d entries, registry has %d projectors", len(SupportedKinds), len(r.fns))
	}
}
