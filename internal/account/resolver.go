// Package account resolves and caches the Stripe account id owned by the
// configured API key (spec §4.8 Account Resolver, C8). Every other
// component needs this id up front to key rows by (account_id, id); a
// single GET is cheap but not free, so this package memoizes it.
package account

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v83"

	"github.com/tx-stripe/stripe-sync-engine/internal/store"
	"github.com/tx-stripe/stripe-sync-engine/internal/stripeclient"
)

// resolverTTL bounds how long a Redis-cached account id is trusted before a
// fresh lookup happens, so a key rotation onto a different account is
// eventually observed without requiring a process restart.
const resolverTTL = 24 * time.Hour

// Resolver resolves and caches the current account id.
type Resolver struct {
	stripe   *stripeclient.Client
	redis    *redis.Client
	store    *store.Store
	cacheKey string

	mu       sync.Mutex
	memo     string
	memoized bool
}

// New creates a Resolver. redisClient may be nil, in which case caching is
// purely in-process (spec §4.8: "in-process cache; Redis optional").
func New(stripeClient *stripeclient.Client, redisClient *redis.Client, s *store.Store) *Resolver {
	// stripeclient.New installs the secret as stripe.Key; keying the cache on
	// a fingerprint of it keeps processes with different secrets apart.
	sum := sha256.Sum256([]byte(stripe.Key))
	return &Resolver{
		stripe:   stripeClient,
		redis:    redisClient,
		store:    s,
		cacheKey: "stripe-sync:account-id:" + hex.EncodeToString(sum[:8]),
	}
}

// Resolve returns the account id, consulting the in-process memo, then
// Redis (if configured), then the provider, in that order of increasing
// cost. On a cold resolve (provider round trip), it also upserts the full
// accounts row so every mirror table and _sync_run/_sync_status insert that
// follows has a row to satisfy their account_id foreign key against — the
// webhook path stubs this same row id-only (webhook.go), but nothing else
// ever populates it before first use.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.memoized {
		id := r.memo
		r.mu.Unlock()
		return id, nil
	}
	r.mu.Unlock()

	if r.redis != nil {
		if id, err := r.redis.Get(ctx, r.cacheKey).Result(); err == nil && id != "" {
			r.setMemo(id)
			return id, nil
		}
	}

	acct, err := r.stripe.GetAccount(ctx)
	if err != nil {
		return "", err
	}

	if err := r.upsertAccount(ctx, acct); err != nil {
		return "", err
	}

	r.setMemo(acct.ID)
	if r.redis != nil {
		r.redis.Set(ctx, r.cacheKey, acct.ID, resolverTTL)
	}
	return acct.ID, nil
}

func (r *Resolver) upsertAccount(ctx context.Context, acct *stripe.Account) error {
	raw, err := json.Marshal(acct)
	if err != nil {
		return err
	}
	businessName := ""
	if acct.BusinessProfile != nil {
		businessName = acct.BusinessProfile.Name
	}
	cols := map[string]any{
		"object":           "account",
		"email":            acct.Email,
		"business_name":    businessName,
		"default_currency": string(acct.DefaultCurrency),
		"country":          acct.Country,
		"metadata":         metadataJSON(acct.Metadata),
		"created":          time.Unix(acct.Created, 0).UTC(),
	}
	return r.store.UpsertAccount(ctx, acct.ID, cols, raw)
}

func metadataJSON(m map[string]string) json.RawMessage {
	if len(m) == 0 {
		return json.RawMessage(`{}`)
	}
	b, err := json.Marshal(m)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

func (r *Resolver) setMemo(id string) {
	r.mu.Lock()
	r.memo = id
	r.memoized = true
	r.mu.Unlock()
}
