// Package managedwebhook implements the managed-webhook lifecycle (spec
// §4.7 Managed-Webhook Lifecycle, C7): idempotent, race-free
// find-or-create, orphan and legacy-endpoint reconciliation, and deletion.
package managedwebhook

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v83"

	"github.com/tx-stripe/stripe-sync-engine/internal/dbadapter"
	"github.com/tx-stripe/stripe-sync-engine/internal/store"
	"github.com/tx-stripe/stripe-sync-engine/internal/stripeclient"
	"github.com/tx-stripe/stripe-sync-engine/internal/syncerr"
	"github.com/tx-stripe/stripe-sync-engine/internal/telemetry"
)

// managedByTag is written into every managed endpoint's metadata to
// distinguish engine-owned endpoints from ones an operator created by hand
// (spec §4.7 step 3).
const managedByTag = "stripe-sync"

// legacyDescriptionPrefixes catches endpoints created by predecessor
// tooling that used a description instead of metadata to mark ownership
// (spec §4.7 step 5, backward-compatible matches).
var legacyDescriptionPrefixes = []string{
	"stripe-sync-cli development webhook",
	"stripe sync development",
}

// Lifecycle manages the set of webhook endpoints this engine owns.
type Lifecycle struct {
	db     dbadapter.Adapter
	store  *store.Store
	stripe *stripeclient.Client
}

// New creates a Lifecycle.
func New(db dbadapter.Adapter, s *store.Store, sc *stripeclient.Client) *Lifecycle {
	return &Lifecycle{db: db, store: s, stripe: sc}
}

// Webhook is the value returned to callers of FindOrCreate and List.
type Webhook struct {
	ID            string
	URL           string
	EnabledEvents []string
}

// FindOrCreate implements spec §4.7 steps 1-6 under an advisory lock keyed
// on (accountID, baseURL), giving race-freedom across concurrent callers
// (P6).
func (l *Lifecycle) FindOrCreate(ctx context.Context, accountID, baseURL string, enabledEvents []string) (Webhook, error) {
	if len(enabledEvents) == 0 {
		enabledEvents = []string{"*"}
	}

	var result Webhook
	lockKey := fmt.Sprintf("managed_webhook:%s:%s", accountID, baseURL)

	err := l.db.WithAdvisoryLock(ctx, lockKey, func(ctx context.Context) error {
		local, err := l.store.FindManagedWebhooksByURL(ctx, accountID, baseURL)
		if err != nil {
			return err
		}

		for _, row := range local {
			endpoint, err := l.stripe.GetWebhookEndpoint(ctx, row.ID)
			if isNotFoundErr(err) {
				if err := l.store.DeleteManagedWebhookRow(ctx, row.ID); err != nil {
					return err
				}
				telemetry.ManagedWebhookActionsTotal.WithLabelValues("orphan_delete").Inc()
				continue
			}
			if err != nil {
				return err
			}

			if endpoint.URL != baseURL || !isManaged(endpoint) {
				if delErr := l.stripe.DeleteWebhookEndpoint(ctx, endpoint.ID); delErr != nil && !isNotFoundErr(delErr) {
					return delErr
				}
				if err := l.store.DeleteManagedWebhookRow(ctx, row.ID); err != nil {
					return err
				}
				telemetry.ManagedWebhookActionsTotal.WithLabelValues("legacy_delete").Inc()
				continue
			}

			result = Webhook{ID: endpoint.ID, URL: endpoint.URL, EnabledEvents: stripeEventList(endpoint.EnabledEvents)}
			return nil
		}

		if err := l.cleanupCrossOrphans(ctx, accountID, baseURL); err != nil {
			return err
		}

		endpoint, err := l.stripe.CreateWebhookEndpoint(ctx, baseURL, enabledEvents)
		if err != nil {
			return err
		}

		if err := l.store.InsertManagedWebhook(ctx, store.ManagedWebhook{
			ID:            endpoint.ID,
			AccountID:     accountID,
			URL:           endpoint.URL,
			EnabledEvents: stripeEventList(endpoint.EnabledEvents),
		}); err != nil {
			return err
		}
		telemetry.ManagedWebhookActionsTotal.WithLabelValues("create").Inc()

		result = Webhook{ID: endpoint.ID, URL: endpoint.URL, EnabledEvents: stripeEventList(endpoint.EnabledEvents)}
		return nil
	})

	return result, err
}

// cleanupCrossOrphans scans every provider endpoint for ones this engine
// owns (by metadata tag or legacy description) that are not mirrored
// locally, and removes them (spec §4.7 step 5).
func (l *Lifecycle) cleanupCrossOrphans(ctx context.Context, accountID, baseURL string) error {
	endpoints, err := l.stripe.ListWebhookEndpoints(ctx)
	if err != nil {
		return err
	}

	local, err := l.store.ListManagedWebhooks(ctx, accountID)
	if err != nil {
		return err
	}
	localIDs := make(map[string]bool, len(local))
	for _, row := range local {
		localIDs[row.ID] = true
	}

	for _, ep := range endpoints {
		if localIDs[ep.ID] {
			continue
		}
		if ep.URL != baseURL {
			continue
		}
		if !isManaged(ep) && !isLegacyManaged(ep) {
			continue
		}
		if err := l.stripe.DeleteWebhookEndpoint(ctx, ep.ID); err != nil && !isNotFoundErr(err) {
			return err
		}
		telemetry.ManagedWebhookActionsTotal.WithLabelValues("cross_orphan_delete").Inc()
	}
	return nil
}

// Delete implements deleteManagedWebhook (spec §4.7): deletes the provider
// endpoint then the local row, tolerating not-found on either side.
func (l *Lifecycle) Delete(ctx context.Context, id string) error {
	if err := l.stripe.DeleteWebhookEndpoint(ctx, id); err != nil && !isNotFoundErr(err) {
		return err
	}
	return l.store.DeleteManagedWebhookRow(ctx, id)
}

// List returns every managed webhook row for accountID (spec §6
// listManagedWebhooks).
func (l *Lifecycle) List(ctx context.Context, accountID string) ([]Webhook, error) {
	rows, err := l.store.ListManagedWebhooks(ctx, accountID)
	if err != nil {
		return nil, err
	}
	out := make([]Webhook, 0, len(rows))
	for _, r := range rows {
		out = append(out, Webhook{ID: r.ID, URL: r.URL, EnabledEvents: r.EnabledEvents})
	}
	return out, nil
}

func isManaged(ep *stripe.WebhookEndpoint) bool {
	return ep.Metadata != nil && ep.Metadata["managed_by"] == managedByTag
}

func isLegacyManaged(ep *stripe.WebhookEndpoint) bool {
	desc := strings.ToLower(strings.TrimSpace(ep.Description))
	for _, prefix := range legacyDescriptionPrefixes {
		if strings.HasPrefix(desc, prefix) {
			return true
		}
	}
	return strings.HasPrefix(desc, "stripe sync")
}

func isNotFoundErr(err error) bool {
	return syncerr.IsNotFound(err)
}

func stripeEventList(events []string) []string {
	if events == nil {
		return []string{}
	}
	return events
}
