package notify

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/tx-stripe/stripe-sync-engine/internal/backfill"
)

func TestNew_DisabledWithoutToken(t *testing.T) {
	n := New("", "#ops", slog.Default())
	if n.IsEnabled() {
		t.Error("IsEnabled() = true, want false when botToken is empty")
	}
}

func TestNew_DisabledWithoutChannel(t *testing.T) {
	n := New("xoxb-fake", "", slog.Default())
	if n.IsEnabled() {
		t.Error("IsEnabled() = true, want false when channel is empty")
	}
}

func TestFailedKinds(t *testing.T) {
	results := backfill.ProcessUntilDoneResult{
		"products":  {Synced: 5},
		"customers": {Synced: 2, Errors: 1},
	}
	failed := failedKinds(results)
	if len(failed) != 1 || failed[0] != "customers" {
		t.Errorf("failedKinds() = %v, want [customers]", failed)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate(short) = %q, want %q", got, "short")
	}
	if got := truncate(strings.Repeat("a", 20), 5); got != strings.Repeat("a", 5)+"…" {
		t.Errorf("truncate(long) = %q", got)
	}
}

func TestPostRunSummary_NoopWhenDisabled(t *testing.T) {
	n := New("", "", slog.Default())
	err := n.PostRunSummary(context.Background(), "acct_123", backfill.ProcessUntilDoneResult{"products": {Synced: 1}})
	if err != nil {
		t.Errorf("PostRunSummary() error = %v, want nil when disabled", err)
	}
}
