// Package backfill drives paginated historical sync of every supported
// object kind (spec §4.5 Backfill Engine, C5). processNext claims one page
// at a time; processUntilDone drives every kind to completion under a
// single sync run, bounded by maxConcurrent via errgroup.
package backfill

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tx-stripe/stripe-sync-engine/internal/projector"
	"github.com/tx-stripe/stripe-sync-engine/internal/store"
	"github.com/tx-stripe/stripe-sync-engine/internal/stripeclient"
	"github.com/tx-stripe/stripe-sync-engine/internal/syncerr"
	"github.com/tx-stripe/stripe-sync-engine/internal/syncrun"
	"github.com/tx-stripe/stripe-sync-engine/internal/telemetry"
)

// lister fetches one page of a given kind. Kept as a function type rather
// than a method-value map so the dependency-ordered kind list in
// SupportedKinds stays the single source of truth for iteration order.
type lister func(ctx context.Context, c *stripeclient.Client, p stripeclient.ListPageParams) (stripeclient.ObjectPage, error)

var listers = map[string]lister{
	"products":               func(ctx context.Context, c *stripeclient.Client, p stripeclient.ListPageParams) (stripeclient.ObjectPage, error) { return c.ListProducts(ctx, p) },
	"prices":                 func(ctx context.Context, c *stripeclient.Client, p stripeclient.ListPageParams) (stripeclient.ObjectPage, error) { return c.ListPrices(ctx, p) },
	"plans":                  func(ctx context.Context, c *stripeclient.Client, p stripeclient.ListPageParams) (stripeclient.ObjectPage, error) { return c.ListPlans(ctx, p) },
	"customers":              func(ctx context.Context, c *stripeclient.Client, p stripeclient.ListPageParams) (stripeclient.ObjectPage, error) { return c.ListCustomers(ctx, p) },
	"tax_ids":                func(ctx context.Context, c *stripeclient.Client, p stripeclient.ListPageParams) (stripeclient.ObjectPage, error) { return c.ListTaxIDs(ctx, p) },
	"payment_methods":        func(ctx context.Context, c *stripeclient.Client, p stripeclient.ListPageParams) (stripeclient.ObjectPage, error) { return c.ListPaymentMethods(ctx, p) },
	"setup_intents":          func(ctx context.Context, c *stripeclient.Client, p stripeclient.ListPageParams) (stripeclient.ObjectPage, error) { return c.ListSetupIntents(ctx, p) },
	"subscriptions":          func(ctx context.Context, c *stripeclient.Client, p stripeclient.ListPageParams) (stripeclient.ObjectPage, error) { return c.ListSubscriptions(ctx, p) },
	"subscription_schedules": func(ctx context.Context, c *stripeclient.Client, p stripeclient.ListPageParams) (stripeclient.ObjectPage, error) { return c.ListSubscriptionSchedules(ctx, p) },
	"invoices":               func(ctx context.Context, c *stripeclient.Client, p stripeclient.ListPageParams) (stripeclient.ObjectPage, error) { return c.ListInvoices(ctx, p) },
	"charges":                func(ctx context.Context, c *stripeclient.Client, p stripeclient.ListPageParams) (stripeclient.ObjectPage, error) { return c.ListCharges(ctx, p) },
	"payment_intents":        func(ctx context.Context, c *stripeclient.Client, p stripeclient.ListPageParams) (stripeclient.ObjectPage, error) { return c.ListPaymentIntents(ctx, p) },
	"refunds":                func(ctx context.Context, c *stripeclient.Client, p stripeclient.ListPageParams) (stripeclient.ObjectPage, error) { return c.ListRefunds(ctx, p) },
	"disputes":               func(ctx context.Context, c *stripeclient.Client, p stripeclient.ListPageParams) (stripeclient.ObjectPage, error) { return c.ListDisputes(ctx, p) },
	"credit_notes":           func(ctx context.Context, c *stripeclient.Client, p stripeclient.ListPageParams) (stripeclient.ObjectPage, error) { return c.ListCreditNotes(ctx, p) },
	"early_fraud_warnings":   func(ctx context.Context, c *stripeclient.Client, p stripeclient.ListPageParams) (stripeclient.ObjectPage, error) { return c.ListEarlyFraudWarnings(ctx, p) },
	"checkout_sessions":      func(ctx context.Context, c *stripeclient.Client, p stripeclient.ListPageParams) (stripeclient.ObjectPage, error) { return c.ListCheckoutSessions(ctx, p) },
}

// PageResult is the outcome of one processNext call.
type PageResult struct {
	HasMore   bool
	Processed int
}

// KindResult is the outcome of driving one kind to completion.
type KindResult struct {
	Synced int
	Errors int
}

// Engine runs backfill for one account.
type Engine struct {
	store         *store.Store
	stripe        *stripeclient.Client
	projectors    *projector.Registry
	coordinator   *syncrun.Coordinator
	maxConcurrent int
	pageSize      int64
}

// Config configures a new Engine.
type Config struct {
	MaxConcurrent int
	PageSize      int64
}

// New creates a backfill Engine.
func New(s *store.Store, sc *stripeclient.Client, p *projector.Registry, coord *syncrun.Coordinator, cfg Config) *Engine {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &Engine{store: s, stripe: sc, projectors: p, coordinator: coord, maxConcurrent: cfg.MaxConcurrent, pageSize: cfg.PageSize}
}

// ProcessNext claims and processes the next page of kind for accountID
// (spec §4.5).
func (e *Engine) ProcessNext(ctx context.Context, accountID, kind string) (PageResult, error) {
	list, ok := listers[kind]
	if !ok {
		return PageResult{}, fmt.Errorf("backfill: unsupported kind %q", kind)
	}

	cursor, err := e.store.GetCursor(ctx, kind, accountID)
	if err != nil {
		return PageResult{}, fmt.Errorf("backfill: reading cursor: %w", err)
	}

	params := stripeclient.ListPageParams{Limit: e.pageSize}
	if cursor != nil {
		params.StartingAfter = *cursor
	}

	page, err := list(ctx, e.stripe, params)
	if err != nil {
		return PageResult{}, err
	}

	for _, o := range page.Objects {
		if err := e.projectors.Project(ctx, kind, accountID, o.JSON); err != nil {
			return PageResult{}, &syncerr.ProjectionError{Kind: kind, ID: o.ID, Err: err}
		}
	}
	telemetry.PagesProcessedTotal.WithLabelValues(kind).Inc()

	if len(page.Objects) > 0 {
		last := page.Objects[len(page.Objects)-1]
		if err := e.store.SetCursor(ctx, kind, accountID, last.ID); err != nil {
			return PageResult{}, fmt.Errorf("backfill: advancing cursor: %w", err)
		}
	}

	return PageResult{HasMore: page.HasMore, Processed: len(page.Objects)}, nil
}

// ProcessKindUntilDone drives kind to completion for accountID.
func (e *Engine) ProcessKindUntilDone(ctx context.Context, accountID, kind string) KindResult {
	var result KindResult
	for {
		page, err := e.ProcessNext(ctx, accountID, kind)
		if err != nil {
			result.Errors++
			return result
		}
		result.Synced += page.Processed
		if !page.HasMore {
			return result
		}
	}
}

// ProcessUntilDoneResult is the per-kind outcome map returned by
// ProcessUntilDone (spec §6 processUntilDone).
type ProcessUntilDoneResult map[string]KindResult

// ProcessUntilDone drives every supported kind to completion for accountID,
// in dependency order, up to maxConcurrent concurrently, under one sync run
// (spec §4.5 "Run bookkeeping"). Returns *syncerr.ConcurrentRun if another
// run is already open for this account.
func (e *Engine) ProcessUntilDone(ctx context.Context, accountID string, triggeredBy string) (ProcessUntilDoneResult, error) {
	runID, err := e.coordinator.Open(ctx, accountID, e.maxConcurrent, triggeredBy)
	if err != nil {
		return nil, err
	}

	results := make(ProcessUntilDoneResult, len(projector.SupportedKinds))
	var mu sync.Mutex

	// A plain (non-WithContext) group: one kind's failure records an error
	// row for that kind but must not cancel the others (spec §4.5 "drive
	// each to terminal").
	var g errgroup.Group
	g.SetLimit(e.maxConcurrent)

	for _, kind := range projector.SupportedKinds {
		kind := kind
		g.Go(func() error {
			if err := e.coordinator.RecordKindStarted(ctx, runID, kind); err != nil {
				return err
			}

			result := e.ProcessKindUntilDone(ctx, accountID, kind)

			mu.Lock()
			results[kind] = result
			mu.Unlock()

			if result.Errors > 0 {
				return e.coordinator.RecordKindError(ctx, runID, kind, result.Synced, "projection or provider error")
			}
			return e.coordinator.RecordKindDone(ctx, runID, kind, result.Synced)
		})
	}

	runErr := g.Wait()

	if closeErr := e.coordinator.Close(ctx, runID); closeErr != nil && runErr == nil {
		runErr = closeErr
	}

	return results, runErr
}
