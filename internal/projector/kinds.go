package projector

import (
	"context"
	"encoding/json"
)

// projectProduct projects a Stripe product (spec §6 kind=products).
func (r *Registry) projectProduct(ctx context.Context, accountID string, raw json.RawMessage) error {
	o, err := decode(raw)
	if err != nil {
		return err
	}
	cols := map[string]any{
		"object":        "product",
		"name":          o.str("name"),
		"active":        o.boolean("active"),
		"description":   o.str("description"),
		"default_price": o.ref("default_price"),
		"metadata":      o.metadata(),
		"created":       o.unixTime("created"),
	}
	return r.store.UpsertMirrorRow(ctx, "products", accountID, o.id(), cols, raw)
}

// projectPrice projects a Stripe price (spec §6 kind=prices). Prices always
// reference a product; a stub product row is created first so the
// application-level parent/child ordering invariant holds even though no
// DB-level foreign key enforces it (spec §4.4 "Ordering").
func (r *Registry) projectPrice(ctx context.Context, accountID string, raw json.RawMessage) error {
	o, err := decode(raw)
	if err != nil {
		return err
	}
	if productID, ok := o.ref("product").(string); ok && productID != "" {
		if err := r.store.UpsertStub(ctx, "products", accountID, productID); err != nil {
			return err
		}
	}

	var recurringInterval any
	if rec, ok := o["recurring"].(map[string]any); ok {
		if iv, ok := rec["interval"].(string); ok {
			recurringInterval = iv
		}
	}

	cols := map[string]any{
		"object":             "price",
		"product":            o.ref("product"),
		"active":             o.boolean("active"),
		"currency":           o.str("currency"),
		"unit_amount":        o.number("unit_amount"),
		"type":               o.str("type"),
		"recurring_interval": recurringInterval,
		"metadata":           o.metadata(),
		"created":            o.unixTime("created"),
	}
	return r.store.UpsertMirrorRow(ctx, "prices", accountID, o.id(), cols, raw)
}

// projectPlan projects a legacy Stripe plan (spec §6 kind=plans).
func (r *Registry) projectPlan(ctx context.Context, accountID string, raw json.RawMessage) error {
	o, err := decode(raw)
	if err != nil {
		return err
	}
	if productID, ok := o.ref("product").(string); ok && productID != "" {
		if err := r.store.UpsertStub(ctx, "products", accountID, productID); err != nil {
			return err
		}
	}
	cols := map[string]any{
		"object":   "plan",
		"product":  o.ref("product"),
		"active":   o.boolean("active"),
		"currency": o.str("currency"),
		"amount":   o.number("amount"),
		"interval": o.str("interval"),
		"metadata": o.metadata(),
		"created":  o.unixTime("created"),
	}
	return r.store.UpsertMirrorRow(ctx, "plans", accountID, o.id(), cols, raw)
}

// projectCustomer projects a Stripe customer (spec §6 kind=customers).
func (r *Registry) projectCustomer(ctx context.Context, accountID string, raw json.RawMessage) error {
	o, err := decode(raw)
	if err != nil {
		return err
	}
	cols := map[string]any{
		"object":                 "customer",
		"email":                  o.str("email"),
		"name":                   o.str("name"),
		"default_payment_method": o.ref("default_source"),
		"metadata":               o.metadata(),
		"created":                o.unixTime("created"),
	}
	return r.store.UpsertMirrorRow(ctx, "customers", accountID, o.id(), cols, raw)
}

// projectTaxID projects a Stripe tax id (spec §6 kind=tax_ids). Its parent
// customer gets a stub row first (spec §4.4 "Ordering").
func (r *Registry) projectTaxID(ctx context.Context, accountID string, raw json.RawMessage) error {
	o, err := decode(raw)
	if err != nil {
		return err
	}
	if customerID, ok := o.ref("customer").(string); ok && customerID != "" {
		if err := r.store.UpsertStub(ctx, "customers", accountID, customerID); err != nil {
			return err
		}
	}
	cols := map[string]any{
		"object":   "tax_id",
		"customer": o.ref("customer"),
		"type":     o.str("type"),
		"value":    o.str("value"),
		"country":  o.str("country"),
		"metadata": o.metadata(),
		"created":  o.unixTime("created"),
	}
	return r.store.UpsertMirrorRow(ctx, "tax_ids", accountID, o.id(), cols, raw)
}

// projectPaymentMethod projects a Stripe payment method (spec §6
// kind=payment_methods).
func (r *Registry) projectPaymentMethod(ctx context.Context, accountID string, raw json.RawMessage) error {
	o, err := decode(raw)
	if err != nil {
		return err
	}
	if customerID, ok := o.ref("customer").(string); ok && customerID != "" {
		if err := r.store.UpsertStub(ctx, "customers", accountID, customerID); err != nil {
			return err
		}
	}

	var cardBrand, cardLast4 any
	if card, ok := o["card"].(map[string]any); ok {
		if b, ok := card["brand"].(string); ok {
			cardBrand = b
		}
		if l, ok := card["last4"].(string); ok {
			cardLast4 = l
		}
	}

	cols := map[string]any{
		"object":     "payment_method",
		"customer":   o.ref("customer"),
		"type":       o.str("type"),
		"card_brand": cardBrand,
		"card_last4": cardLast4,
		"metadata":   o.metadata(),
		"created":    o.unixTime("created"),
	}
	return r.store.UpsertMirrorRow(ctx, "payment_methods", accountID, o.id(), cols, raw)
}

// projectSetupIntent projects a Stripe setup intent (spec §6
// kind=setup_intents).
func (r *Registry) projectSetupIntent(ctx context.Context, accountID string, raw json.RawMessage) error {
	o, err := decode(raw)
	if err != nil {
		return err
	}
	if customerID, ok := o.ref("customer").(string); ok && customerID != "" {
		if err := r.store.UpsertStub(ctx, "customers", accountID, customerID); err != nil {
			return err
		}
	}
	cols := map[string]any{
		"object":         "setup_intent",
		"customer":       o.ref("customer"),
		"payment_method": o.ref("payment_method"),
		"status":         o.str("status"),
		"usage":          o.str("usage"),
		"metadata":       o.metadata(),
		"created":        o.unixTime("created"),
	}
	return r.store.UpsertMirrorRow(ctx, "setup_intents", accountID, o.id(), cols, raw)
}

// projectSubscription projects a Stripe subscription (spec §6
// kind=subscriptions).
func (r *Registry) projectSubscription(ctx context.Context, accountID string, raw json.RawMessage) error {
	o, err := decode(raw)
	if err != nil {
		return err
	}
	if customerID, ok := o.ref("customer").(string); ok && customerID != "" {
		if err := r.store.UpsertStub(ctx, "customers", accountID, customerID); err != nil {
			return err
		}
	}
	cols := map[string]any{
		"object":                 "subscription",
		"customer":               o.ref("customer"),
		"status":                 o.str("status"),
		"currency":               o.str("currency"),
		"current_period_start":   o.unixTime("current_period_start"),
		"current_period_end":     o.unixTime("current_period_end"),
		"cancel_at_period_end":   o.boolean("cancel_at_period_end"),
		"default_payment_method": o.ref("default_payment_method"),
		"metadata":               o.metadata(),
		"created":                o.unixTime("created"),
	}
	if err := r.store.UpsertMirrorRow(ctx, "subscriptions", accountID, o.id(), cols, raw); err != nil {
		return err
	}

	if r.autoExpandLists {
		if items, ok := o["items"].(map[string]any); ok {
			if data, ok := items["data"].([]any); ok {
				for _, it := range data {
					itemObj, ok := it.(map[string]any)
					if !ok {
						continue
					}
					if priceObj, ok := itemObj["price"].(map[string]any); ok {
						b, err := json.Marshal(priceObj)
						if err != nil {
							continue
						}
						if err := r.projectPrice(ctx, accountID, b); err != nil {
							return err
						}
					}
				}
			}
		}
	}
	return nil
}

// projectSubscriptionSchedule projects a Stripe subscription schedule
// (spec §6 kind=subscription_schedules).
func (r *Registry) projectSubscriptionSchedule(ctx context.Context, accountID string, raw json.RawMessage) error {
	o, err := decode(raw)
	if err != nil {
		return err
	}
	if customerID, ok := o.ref("customer").(string); ok && customerID != "" {
		if err := r.store.UpsertStub(ctx, "customers", accountID, customerID); err != nil {
			return err
		}
	}
	cols := map[string]any{
		"object":       "subscription_schedule",
		"customer":     o.ref("customer"),
		"subscription": o.ref("subscription"),
		"status":       o.str("status"),
		"metadata":     o.metadata(),
		"created":      o.unixTime("created"),
	}
	return r.store.UpsertMirrorRow(ctx, "subscription_schedules", accountID, o.id(), cols, raw)
}

// projectInvoice projects a Stripe invoice (spec §6 kind=invoices).
func (r *Registry) projectInvoice(ctx context.Context, accountID string, raw json.RawMessage) error {
	o, err := decode(raw)
	if err != nil {
		return err
	}
	if customerID, ok := o.ref("customer").(string); ok && customerID != "" {
		if err := r.store.UpsertStub(ctx, "customers", accountID, customerID); err != nil {
			return err
		}
	}
	cols := map[string]any{
		"object":       "invoice",
		"customer":     o.ref("customer"),
		"subscription": o.ref("subscription"),
		"status":       o.str("status"),
		"currency":     o.str("currency"),
		"total":        o.number("total"),
		"amount_paid":  o.number("amount_paid"),
		"amount_due":   o.number("amount_due"),
		"metadata":     o.metadata(),
		"created":      o.unixTime("created"),
	}
	return r.store.UpsertMirrorRow(ctx, "invoices", accountID, o.id(), cols, raw)
}

// projectCharge projects a Stripe charge (spec §6 kind=charges).
func (r *Registry) projectCharge(ctx context.Context, accountID string, raw json.RawMessage) error {
	o, err := decode(raw)
	if err != nil {
		return err
	}
	if customerID, ok := o.ref("customer").(string); ok && customerID != "" {
		if err := r.store.UpsertStub(ctx, "customers", accountID, customerID); err != nil {
			return err
		}
	}
	cols := map[string]any{
		"object":          "charge",
		"customer":        o.ref("customer"),
		"payment_intent":  o.ref("payment_intent"),
		"invoice":         o.ref("invoice"),
		"status":          o.str("status"),
		"currency":        o.str("currency"),
		"amount":          o.number("amount"),
		"amount_refunded": o.number("amount_refunded"),
		"paid":            o.boolean("paid"),
		"refunded":        o.boolean("refunded"),
		"metadata":        o.metadata(),
		"created":         o.unixTime("created"),
	}
	return r.store.UpsertMirrorRow(ctx, "charges", accountID, o.id(), cols, raw)
}

// projectPaymentIntent projects a Stripe payment intent (spec §6
// kind=payment_intents).
func (r *Registry) projectPaymentIntent(ctx context.Context, accountID string, raw json.RawMessage) error {
	o, err := decode(raw)
	if err != nil {
		return err
	}
	if customerID, ok := o.ref("customer").(string); ok && customerID != "" {
		if err := r.store.UpsertStub(ctx, "customers", accountID, customerID); err != nil {
			return err
		}
	}
	cols := map[string]any{
		"object":          "payment_intent",
		"customer":        o.ref("customer"),
		"status":          o.str("status"),
		"currency":        o.str("currency"),
		"amount":          o.number("amount"),
		"amount_received": o.number("amount_received"),
		"payment_method":  o.ref("payment_method"),
		"metadata":        o.metadata(),
		"created":         o.unixTime("created"),
	}
	return r.store.UpsertMirrorRow(ctx, "payment_intents", accountID, o.id(), cols, raw)
}

// projectRefund projects a Stripe refund (spec §6 kind=refunds).
func (r *Registry) projectRefund(ctx context.Context, accountID string, raw json.RawMessage) error {
	o, err := decode(raw)
	if err != nil {
		return err
	}
	cols := map[string]any{
		"object":         "refund",
		"charge":         o.ref("charge"),
		"payment_intent": o.ref("payment_intent"),
		"status":         o.str("status"),
		"currency":       o.str("currency"),
		"amount":         o.number("amount"),
		"reason":         o.str("reason"),
		"metadata":       o.metadata(),
		"created":        o.unixTime("created"),
	}
	return r.store.UpsertMirrorRow(ctx, "refunds", accountID, o.id(), cols, raw)
}

// projectDispute projects a Stripe dispute (spec §6 kind=disputes).
func (r *Registry) projectDispute(ctx context.Context, accountID string, raw json.RawMessage) error {
	o, err := decode(raw)
	if err != nil {
		return err
	}
	cols := map[string]any{
		"object":         "dispute",
		"charge":         o.ref("charge"),
		"payment_intent": o.ref("payment_intent"),
		"status":         o.str("status"),
		"reason":         o.str("reason"),
		"currency":       o.str("currency"),
		"amount":         o.number("amount"),
		"metadata":       o.metadata(),
		"created":        o.unixTime("created"),
	}
	return r.store.UpsertMirrorRow(ctx, "disputes", accountID, o.id(), cols, raw)
}

// projectCreditNote projects a Stripe credit note (spec §6
// kind=credit_notes).
func (r *Registry) projectCreditNote(ctx context.Context, accountID string, raw json.RawMessage) error {
	o, err := decode(raw)
	if err != nil {
		return err
	}
	if customerID, ok := o.ref("customer").(string); ok && customerID != "" {
		if err := r.store.UpsertStub(ctx, "customers", accountID, customerID); err != nil {
			return err
		}
	}
	cols := map[string]any{
		"object":   "credit_note",
		"customer": o.ref("customer"),
		"invoice":  o.ref("invoice"),
		"status":   o.str("status"),
		"currency": o.str("currency"),
		"total":    o.number("total"),
		"metadata": o.metadata(),
		"created":  o.unixTime("created"),
	}
	return r.store.UpsertMirrorRow(ctx, "credit_notes", accountID, o.id(), cols, raw)
}

// projectEarlyFraudWarning projects a Stripe radar early fraud warning
// (spec §6 kind=early_fraud_warnings).
func (r *Registry) projectEarlyFraudWarning(ctx context.Context, accountID string, raw json.RawMessage) error {
	o, err := decode(raw)
	if err != nil {
		return err
	}
	cols := map[string]any{
		"object":         "radar.early_fraud_warning",
		"charge":         o.ref("charge"),
		"payment_intent": o.ref("payment_intent"),
		"fraud_type":     o.str("fraud_type"),
		"actionable":     o.boolean("actionable"),
		"metadata":       o.metadata(),
		"created":        o.unixTime("created"),
	}
	return r.store.UpsertMirrorRow(ctx, "early_fraud_warnings", accountID, o.id(), cols, raw)
}

// projectCheckoutSession projects a Stripe checkout session (spec §6
// kind=checkout_sessions).
func (r *Registry) projectCheckoutSession(ctx context.Context, accountID string, raw json.RawMessage) error {
	o, err := decode(raw)
	if err != nil {
		return err
	}
	if customerID, ok := o.ref("customer").(string); ok && customerID != "" {
		if err := r.store.UpsertStub(ctx, "customers", accountID, customerID); err != nil {
			return err
		}
	}
	cols := map[string]any{
		"object":         "checkout.session",
		"customer":       o.ref("customer"),
		"subscription":   o.ref("subscription"),
		"payment_intent": o.ref("payment_intent"),
		"status":         o.str("status"),
		"mode":           o.str("mode"),
		"currency":       o.str("currency"),
		"amount_total":   o.number("amount_total"),
		"metadata":       o.metadata(),
		"created":        o.unixTime("created"),
	}
	return r.store.UpsertMirrorRow(ctx, "checkout_sessions", accountID, o.id(), cols, raw)
}
