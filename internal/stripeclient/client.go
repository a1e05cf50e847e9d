// Package stripeclient wraps stripe-go with the engine's retry policy and
// typed error taxonomy (spec §4.3 Provider Client), so every other component
// talks to Stripe through one seam instead of importing stripe-go directly.
package stripeclient

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/account"
	"github.com/stripe/stripe-go/v83/webhook"
	"github.com/stripe/stripe-go/v83/webhookendpoint"

	"github.com/tx-stripe/stripe-sync-engine/internal/syncerr"
	"github.com/tx-stripe/stripe-sync-engine/internal/telemetry"
)

// Client is the provider client capability set (spec §4.3). It holds no
// mutable state beyond the secret key installed into the stripe-go package
// globals at construction time, matching stripe-go's package-function API.
type Client struct {
	maxRetries uint
}

// New constructs a Client, installing secretKey and apiVersion as the
// process-wide stripe-go credentials.
func New(secretKey, apiVersion string) *Client {
	stripe.Key = secretKey
	if apiVersion != "" {
		stripe.APIVersion = apiVersion
	}
	return &Client{maxRetries: 5}
}

// GetAccount resolves the account owning this API key (spec §4.8 Account
// Resolver).
func (c *Client) GetAccount(ctx context.Context) (*stripe.Account, error) {
	var out *stripe.Account
	err := c.withRetry(ctx, "account.get", func() error {
		acct, err := account.GetByID(ctx, "", nil)
		if err != nil {
			return err
		}
		out = acct
		return nil
	})
	return out, err
}

// ConstructEvent verifies a webhook's signature and parses its payload
// (spec §4.6, P5). Returns a *syncerr.SignatureError on verification
// failure.
func (c *Client) ConstructEvent(payload []byte, sigHeader, secret string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, secret)
	if err != nil {
		return stripe.Event{}, &syncerr.SignatureError{Err: err}
	}
	return event, nil
}

// CreateWebhookEndpoint registers a managed webhook endpoint (spec §4.7).
func (c *Client) CreateWebhookEndpoint(ctx context.Context, url string, events []string) (*stripe.WebhookEndpoint, error) {
	var out *stripe.WebhookEndpoint
	err := c.withRetry(ctx, "webhookendpoint.create", func() error {
		params := &stripe.WebhookEndpointParams{
			URL:           stripe.String(url),
			EnabledEvents: stripe.StringSlice(events),
		}
		we, err := webhookendpoint.New(ctx, params)
		if err != nil {
			return err
		}
		out = we
		return nil
	})
	return out, err
}

// GetWebhookEndpoint retrieves a managed webhook endpoint by id.
func (c *Client) GetWebhookEndpoint(ctx context.Context, id string) (*stripe.WebhookEndpoint, error) {
	var out *stripe.WebhookEndpoint
	err := c.withRetry(ctx, "webhookendpoint.get", func() error {
		we, err := webhookendpoint.Get(ctx, id, nil)
		if err != nil {
			return err
		}
		out = we
		return nil
	})
	return out, err
}

// ListWebhookEndpoints lists every webhook endpoint registered against this
// account, managed or not; callers filter (spec §4.7 reconciliation).
func (c *Client) ListWebhookEndpoints(ctx context.Context) ([]*stripe.WebhookEndpoint, error) {
	var out []*stripe.WebhookEndpoint
	err := c.withRetry(ctx, "webhookendpoint.list", func() error {
		out = nil
		iter := webhookendpoint.List(ctx, &stripe.WebhookEndpointListParams{})
		for iter.Next() {
			out = append(out, iter.WebhookEndpoint())
		}
		return iter.Err()
	})
	return out, err
}

// DeleteWebhookEndpoint removes a managed webhook endpoint by id.
func (c *Client) DeleteWebhookEndpoint(ctx context.Context, id string) error {
	return c.withRetry(ctx, "webhookendpoint.delete", func() error {
		_, err := webhookendpoint.Del(ctx, id, nil)
		return err
	})
}

// withRetry runs op under the engine's provider retry policy: exponential
// backoff from 500ms, capped at 30s, at most maxRetries attempts (spec §5
// Concurrency & Resource Model).
func (c *Client) withRetry(ctx context.Context, operation string, op func() error) error {
	start := time.Now()
	defer func() {
		telemetry.ProviderCallDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op()
		if err == nil {
			return struct{}{}, nil
		}

		classified := classify(err)

		var rl *syncerr.RateLimited
		if errors.As(classified, &rl) {
			telemetry.ProviderRetriesTotal.WithLabelValues("rate_limited").Inc()
			return struct{}{}, classified
		}

		var te *syncerr.TransientError
		if errors.As(classified, &te) {
			telemetry.ProviderRetriesTotal.WithLabelValues("transient").Inc()
			return struct{}{}, classified
		}

		// Anything else (auth, not-found, bad-request) is permanent.
		return struct{}{}, backoff.Permanent(classified)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.maxRetries))

	// A rate limit that outlasts every retry surfaces as a TransientError.
	var rl *syncerr.RateLimited
	if errors.As(err, &rl) {
		return &syncerr.TransientError{Op: operation, Err: err}
	}
	return err
}

// classify maps a stripe-go error into the engine's typed taxonomy
// (spec §7).
func classify(err error) error {
	if err == nil {
		return nil
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.HTTPStatusCode {
		case 401, 403:
			return &syncerr.AuthError{Err: err}
		case 404:
			return &syncerr.NotFound{Kind: string(stripeErr.Type), ID: ""}
		case 429:
			return &syncerr.RateLimited{RetryAfterSeconds: 1}
		case 500, 502, 503, 504:
			return &syncerr.TransientError{Op: "stripe_api", Err: err}
		}
		return err
	}

	// Network-level failures (timeouts, connection resets) are transient.
	return &syncerr.TransientError{Op: "stripe_api", Err: err}
}
