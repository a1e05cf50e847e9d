// Package webhook implements the inbound webhook pipeline (spec §4.6
// Webhook Pipeline, C6): verify signature, resolve account, dispatch by
// event type to a (kind, action) pair, and project. Redelivery safety comes
// from the projector's upsert idempotency, not a separate dedup table
// (spec §4.6 "Idempotency").
package webhook

import (
	"context"
	"encoding/json"

	"github.com/tx-stripe/stripe-sync-engine/internal/projector"
	"github.com/tx-stripe/stripe-sync-engine/internal/store"
	"github.com/tx-stripe/stripe-sync-engine/internal/stripeclient"
	"github.com/tx-stripe/stripe-sync-engine/internal/syncerr"
	"github.com/tx-stripe/stripe-sync-engine/internal/telemetry"
)

// action is what to do with the event's data object once its kind is
// known.
type action int

const (
	actionUpsert action = iota
	actionTombstone
)

// route maps an event type to the mirror table it affects and what to do.
type route struct {
	kind   string
	action action
}

// routes is the event-type dispatch table (spec §4.6 step 4). Event types
// not present here are acknowledged and ignored — the engine only mirrors
// the object kinds in spec §6.
var routes = map[string]route{
	"product.created":                        {"products", actionUpsert},
	"product.updated":                        {"products", actionUpsert},
	"product.deleted":                        {"products", actionTombstone},
	"price.created":                          {"prices", actionUpsert},
	"price.updated":                          {"prices", actionUpsert},
	"price.deleted":                          {"prices", actionTombstone},
	"plan.created":                           {"plans", actionUpsert},
	"plan.updated":                           {"plans", actionUpsert},
	"plan.deleted":                           {"plans", actionTombstone},
	"customer.created":                       {"customers", actionUpsert},
	"customer.updated":                       {"customers", actionUpsert},
	"customer.deleted":                       {"customers", actionTombstone},
	"customer.tax_id.created":                {"tax_ids", actionUpsert},
	"customer.tax_id.updated":                {"tax_ids", actionUpsert},
	"customer.tax_id.deleted":                {"tax_ids", actionTombstone},
	"payment_method.attached":                {"payment_methods", actionUpsert},
	"payment_method.updated":                 {"payment_methods", actionUpsert},
	"payment_method.detached":                {"payment_methods", actionTombstone},
	"setup_intent.created":                   {"setup_intents", actionUpsert},
	"setup_intent.succeeded":                 {"setup_intents", actionUpsert},
	"setup_intent.setup_failed":              {"setup_intents", actionUpsert},
	"customer.subscription.created":          {"subscriptions", actionUpsert},
	"customer.subscription.updated":          {"subscriptions", actionUpsert},
	"customer.subscription.deleted":          {"subscriptions", actionTombstone},
	"subscription_schedule.created":          {"subscription_schedules", actionUpsert},
	"subscription_schedule.updated":          {"subscription_schedules", actionUpsert},
	"subscription_schedule.canceled":         {"subscription_schedules", actionUpsert},
	"subscription_schedule.released":         {"subscription_schedules", actionUpsert},
	"invoice.created":                        {"invoices", actionUpsert},
	"invoice.updated":                        {"invoices", actionUpsert},
	"invoice.finalized":                      {"invoices", actionUpsert},
	"invoice.paid":                           {"invoices", actionUpsert},
	"invoice.payment_failed":                 {"invoices", actionUpsert},
	"invoice.deleted":                        {"invoices", actionTombstone},
	"charge.succeeded":                       {"charges", actionUpsert},
	"charge.updated":                         {"charges", actionUpsert},
	"charge.refunded":                        {"charges", actionUpsert},
	"payment_intent.created":                 {"payment_intents", actionUpsert},
	"payment_intent.succeeded":               {"payment_intents", actionUpsert},
	"payment_intent.payment_failed":          {"payment_intents", actionUpsert},
	"payment_intent.canceled":                {"payment_intents", actionUpsert},
	"refund.created":                         {"refunds", actionUpsert},
	"refund.updated":                         {"refunds", actionUpsert},
	"charge.dispute.created":                 {"disputes", actionUpsert},
	"charge.dispute.updated":                 {"disputes", actionUpsert},
	"charge.dispute.closed":                  {"disputes", actionUpsert},
	"credit_note.created":                    {"credit_notes", actionUpsert},
	"credit_note.updated":                    {"credit_notes", actionUpsert},
	"credit_note.voided":                     {"credit_notes", actionUpsert},
	"radar.early_fraud_warning.created":      {"early_fraud_warnings", actionUpsert},
	"radar.early_fraud_warning.updated":      {"early_fraud_warnings", actionUpsert},
	"checkout.session.completed":             {"checkout_sessions", actionUpsert},
	"checkout.session.expired":               {"checkout_sessions", actionUpsert},
	"checkout.session.async_payment_succeeded": {"checkout_sessions", actionUpsert},
	"checkout.session.async_payment_failed":  {"checkout_sessions", actionUpsert},
}

// Pipeline processes inbound webhook deliveries.
type Pipeline struct {
	store      *store.Store
	stripe     *stripeclient.Client
	projectors *projector.Registry
	secret     string
}

// New creates a Pipeline. secret is the configured webhook signing secret.
func New(s *store.Store, sc *stripeclient.Client, p *projector.Registry, secret string) *Pipeline {
	return &Pipeline{store: s, stripe: sc, projectors: p, secret: secret}
}

// dataObject is the minimal shape every event's data.object carries, enough
// to resolve the object id before handing the full raw bytes to a
// projector.
type dataObject struct {
	ID string `json:"id"`
}

// Process runs spec §4.6 steps 1-6 for one webhook delivery. instanceAccountID
// is the id of the account this engine instance is configured against; it
// is used unless the event carries a distinct event.account (platform/Connect
// delivery).
func (p *Pipeline) Process(ctx context.Context, instanceAccountID string, rawBody []byte, sigHeader string) error {
	event, err := p.stripe.ConstructEvent(rawBody, sigHeader, p.secret)
	if err != nil {
		return err
	}

	accountID := instanceAccountID
	if event.Account != "" {
		accountID = event.Account
	}
	if err := p.store.UpsertStubAccount(ctx, accountID); err != nil {
		return &syncerr.ProjectionError{Kind: "accounts", ID: accountID, Err: err}
	}

	r, ok := routes[string(event.Type)]
	if !ok {
		telemetry.WebhookEventsTotal.WithLabelValues(string(event.Type), "ignored").Inc()
		return nil
	}

	var obj dataObject
	if err := json.Unmarshal(event.Data.Raw, &obj); err != nil {
		telemetry.WebhookEventsTotal.WithLabelValues(string(event.Type), "error").Inc()
		return &syncerr.ProjectionError{Kind: r.kind, Err: err}
	}

	switch r.action {
	case actionTombstone:
		if err := p.projectors.Tombstone(ctx, r.kind, accountID, obj.ID); err != nil {
			telemetry.WebhookEventsTotal.WithLabelValues(string(event.Type), "error").Inc()
			return &syncerr.ProjectionError{Kind: r.kind, ID: obj.ID, Err: err}
		}
	default:
		if err := p.projectors.Project(ctx, r.kind, accountID, event.Data.Raw); err != nil {
			telemetry.WebhookEventsTotal.WithLabelValues(string(event.Type), "error").Inc()
			return &syncerr.ProjectionError{Kind: r.kind, ID: obj.ID, Err: err}
		}
	}

	telemetry.WebhookEventsTotal.WithLabelValues(string(event.Type), "processed").Inc()
	return nil
}

// SupportedEventTypes lists every event type this pipeline dispatches,
// primarily useful when registering a managed webhook endpoint with a
// minimal enabled_events set instead of "*".
func SupportedEventTypes() []string {
	types := make([]string, 0, len(routes))
	for t := range routes {
		types = append(types, t)
	}
	return types
}
