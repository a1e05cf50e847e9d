// Package syncengine is the public facade over the sync engine (spec §6
// External Interfaces): it composes the database adapter, provider client,
// projectors, backfill engine, webhook pipeline, managed-webhook lifecycle,
// sync-run coordinator, and account resolver into the handful of
// operations callers need, the way the teacher's internal/app composition
// root wires its own components.
package syncengine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/tx-stripe/stripe-sync-engine/internal/account"
	"github.com/tx-stripe/stripe-sync-engine/internal/backfill"
	"github.com/tx-stripe/stripe-sync-engine/internal/dbadapter"
	"github.com/tx-stripe/stripe-sync-engine/internal/managedwebhook"
	"github.com/tx-stripe/stripe-sync-engine/internal/notify"
	"github.com/tx-stripe/stripe-sync-engine/internal/projector"
	"github.com/tx-stripe/stripe-sync-engine/internal/store"
	"github.com/tx-stripe/stripe-sync-engine/internal/stripeclient"
	"github.com/tx-stripe/stripe-sync-engine/internal/syncerr"
	"github.com/tx-stripe/stripe-sync-engine/internal/syncrun"
	"github.com/tx-stripe/stripe-sync-engine/internal/webhook"
)

// Config configures a new Engine.
type Config struct {
	Schema                  string
	StripeSecretKey         string
	StripeAPIVersion        string
	WebhookSecret           string
	AutoExpandLists         bool
	BackfillRelatedEntities bool
	MaxConcurrent           int
	PageSize                int

	// Ops notifications (optional — empty SlackBotToken disables posting).
	SlackBotToken string
	SlackChannel  string
}

// Engine is the sync engine's public API surface.
type Engine struct {
	db       dbadapter.Adapter
	store    *store.Store
	stripe   *stripeclient.Client
	account  *account.Resolver
	backfill *backfill.Engine
	webhook  *webhook.Pipeline
	managed  *managedwebhook.Lifecycle
	run      *syncrun.Coordinator
	notifier *notify.Notifier
	logger   *slog.Logger
}

// New wires every component from a pgx pool, optional Redis client, and
// config. redisClient may be nil.
func New(pool *pgxpool.Pool, redisClient *redis.Client, cfg Config, logger *slog.Logger) *Engine {
	db := dbadapter.New(pool)
	s := store.New(db, cfg.Schema)
	sc := stripeclient.New(cfg.StripeSecretKey, cfg.StripeAPIVersion)
	resolver := account.New(sc, redisClient, s)
	projectors := projector.New(s, cfg.AutoExpandLists)
	coord := syncrun.New(s)
	bf := backfill.New(s, sc, projectors, coord, backfill.Config{
		MaxConcurrent: cfg.MaxConcurrent,
		PageSize:      int64(cfg.PageSize),
	})
	wh := webhook.New(s, sc, projectors, cfg.WebhookSecret)
	mw := managedwebhook.New(db, s, sc)
	notifier := notify.New(cfg.SlackBotToken, cfg.SlackChannel, logger)

	return &Engine{
		db:       db,
		store:    s,
		stripe:   sc,
		account:  resolver,
		backfill: bf,
		webhook:  wh,
		managed:  mw,
		run:      coord,
		notifier: notifier,
		logger:   logger,
	}
}

// Store exposes the shared store for components (e.g. the admin API) that
// need direct read access to dashboard/audit data.
func (e *Engine) Store() *store.Store { return e.store }

// DB exposes the adapter for readiness checks.
func (e *Engine) DB() dbadapter.Adapter { return e.db }

// AccountID resolves and caches the account id owned by this engine's
// credentials (spec §4.8).
func (e *Engine) AccountID(ctx context.Context) (string, error) {
	return e.account.Resolve(ctx)
}

// ProcessWebhook verifies and projects one webhook delivery (spec §6
// processWebhook).
func (e *Engine) ProcessWebhook(ctx context.Context, rawBody []byte, sigHeader string) error {
	accountID, err := e.AccountID(ctx)
	if err != nil {
		return err
	}
	if err := e.webhook.Process(ctx, accountID, rawBody, sigHeader); err != nil {
		if notifyErr := e.notifier.PostWebhookFailure(ctx, accountID, projectionKind(err), err); notifyErr != nil {
			e.logger.Warn("posting webhook failure to slack", "error", notifyErr)
		}
		return err
	}
	return nil
}

// projectionKind extracts the object kind from a *syncerr.ProjectionError
// for inclusion in failure notifications, falling back to "unknown" for
// errors raised before a kind was known (e.g. signature verification).
func projectionKind(err error) string {
	var pe *syncerr.ProjectionError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return "unknown"
}

// ProcessNext claims and processes the next page of kind (spec §6
// processNext).
func (e *Engine) ProcessNext(ctx context.Context, kind string) (backfill.PageResult, error) {
	accountID, err := e.AccountID(ctx)
	if err != nil {
		return backfill.PageResult{}, err
	}
	return e.backfill.ProcessNext(ctx, accountID, kind)
}

// ProcessUntilDone drives every supported kind to completion (spec §6
// processUntilDone).
func (e *Engine) ProcessUntilDone(ctx context.Context, triggeredBy string) (backfill.ProcessUntilDoneResult, error) {
	accountID, err := e.AccountID(ctx)
	if err != nil {
		return nil, err
	}
	results, err := e.backfill.ProcessUntilDone(ctx, accountID, triggeredBy)
	if err == nil {
		if notifyErr := e.notifier.PostRunSummary(ctx, accountID, results); notifyErr != nil {
			e.logger.Warn("posting run summary to slack", "error", notifyErr)
		}
	}
	return results, err
}

// FindOrCreateManagedWebhook implements spec §6
// findOrCreateManagedWebhook.
func (e *Engine) FindOrCreateManagedWebhook(ctx context.Context, baseURL string, enabledEvents []string) (managedwebhook.Webhook, error) {
	accountID, err := e.AccountID(ctx)
	if err != nil {
		return managedwebhook.Webhook{}, err
	}
	return e.managed.FindOrCreate(ctx, accountID, baseURL, enabledEvents)
}

// DeleteManagedWebhook implements spec §6 deleteManagedWebhook.
func (e *Engine) DeleteManagedWebhook(ctx context.Context, id string) error {
	return e.managed.Delete(ctx, id)
}

// ListManagedWebhooks implements spec §6 listManagedWebhooks.
func (e *Engine) ListManagedWebhooks(ctx context.Context) ([]managedwebhook.Webhook, error) {
	accountID, err := e.AccountID(ctx)
	if err != nil {
		return nil, err
	}
	return e.managed.List(ctx, accountID)
}

// GetSupportedSyncObjects implements spec §6 getSupportedSyncObjects.
func (e *Engine) GetSupportedSyncObjects() []string {
	return append([]string(nil), projector.SupportedKinds...)
}

// Dashboard returns the most recent sync runs for this engine's account
// (spec §6 sync_dashboard read endpoint).
func (e *Engine) Dashboard(ctx context.Context, limit int) ([]store.DashboardRow, error) {
	accountID, err := e.AccountID(ctx)
	if err != nil {
		return nil, err
	}
	return e.store.GetDashboard(ctx, accountID, limit)
}

// DeletedRows is the per-table row count returned by
// DangerouslyDeleteAccount.
type DeletedRows map[string]int64

// DangerouslyDeleteAccount implements spec §6 dangerouslyDeleteAccount.
func (e *Engine) DangerouslyDeleteAccount(ctx context.Context, accountID string, dryRun, useTransaction bool) (DeletedRows, error) {
	counts, err := e.store.DeleteAccountRows(ctx, accountID, dryRun, useTransaction)
	return DeletedRows(counts), err
}

// Close releases the underlying database pool.
func (e *Engine) Close() {
	e.db.End()
}
