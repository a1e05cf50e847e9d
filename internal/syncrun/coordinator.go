// Package syncrun coordinates per-account backfill runs (spec §4.9 Sync-Run
// Coordinator, C9): opening a run, recording per-kind progress, and closing
// it once every kind reports done. The at-most-one-open-run-per-account
// invariant (P3) is enforced in Postgres by an exclusion constraint; this
// package's job is to translate that into syncerr.ConcurrentRun and keep
// the dashboard gauge honest.
package syncrun

import (
	"context"

	"github.com/tx-stripe/stripe-sync-engine/internal/store"
	"github.com/tx-stripe/stripe-sync-engine/internal/telemetry"
)

// Coordinator opens, tracks, and closes sync runs.
type Coordinator struct {
	store *store.Store
}

// New creates a Coordinator over store.
func New(s *store.Store) *Coordinator {
	return &Coordinator{store: s}
}

// Open starts a new run for accountID. Returns *syncerr.ConcurrentRun if one
// is already open (spec P3).
func (c *Coordinator) Open(ctx context.Context, accountID string, maxConcurrent int, triggeredBy string) (string, error) {
	id, err := c.store.OpenRun(ctx, accountID, maxConcurrent, triggeredBy)
	if err != nil {
		return "", err
	}
	telemetry.OpenRunsGauge.Inc()
	return id, nil
}

// RecordKindStarted marks kind as running within runID.
func (c *Coordinator) RecordKindStarted(ctx context.Context, runID, kind string) error {
	return c.store.RecordObjectRun(ctx, runID, kind, "running", 0, "")
}

// RecordKindProgress updates the processed-count for kind without changing
// its status.
func (c *Coordinator) RecordKindProgress(ctx context.Context, runID, kind string, processedCount int) error {
	return c.store.RecordObjectRun(ctx, runID, kind, "running", processedCount, "")
}

// RecordKindDone marks kind complete within runID.
func (c *Coordinator) RecordKindDone(ctx context.Context, runID, kind string, processedCount int) error {
	return c.store.RecordObjectRun(ctx, runID, kind, "done", processedCount, "")
}

// RecordKindError marks kind failed within runID, without closing the run:
// other kinds may still be in flight (spec §4.9 "independent per-kind
// progress").
func (c *Coordinator) RecordKindError(ctx context.Context, runID, kind string, processedCount int, errMsg string) error {
	return c.store.RecordObjectRun(ctx, runID, kind, "error", processedCount, errMsg)
}

// Close closes runID once every kind has reported done or error (spec §4.9
// "Lifecycle").
func (c *Coordinator) Close(ctx context.Context, runID string) error {
	if err := c.store.CloseRun(ctx, runID); err != nil {
		return err
	}
	telemetry.OpenRunsGauge.Dec()
	return nil
}

// GetOpenRun returns the open run for accountID, if any, so a caller can
// resume or decline to start a second one (spec §4.9 resumability).
func (c *Coordinator) GetOpenRun(ctx context.Context, accountID string) (*store.Run, error) {
	return c.store.GetOpenRun(ctx, accountID)
}
