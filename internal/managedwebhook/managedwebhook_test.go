package managedwebhook

import (
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v83"

	"github.com/tx-stripe/stripe-sync-engine/internal/syncerr"
)

func TestIsManaged(t *testing.T) {
	cases := []struct {
		name string
		ep   *stripe.WebhookEndpoint
		want bool
	}{
		{"tagged", &stripe.WebhookEndpoint{Metadata: map[string]string{"managed_by": managedByTag}}, true},
		{"untagged metadata", &stripe.WebhookEndpoint{Metadata: map[string]string{"managed_by": "something-else"}}, false},
		{"nil metadata", &stripe.WebhookEndpoint{}, false},
	}
	for _, tc := range cases {
		if got := isManaged(tc.ep); got != tc.want {
			t.Errorf("%s: isManaged() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIsLegacyManaged(t *testing.T) {
	cases := []struct {
		name string
		desc string
		want bool
	}{
		{"exact legacy cli prefix", "stripe-sync-cli development webhook", true},
		{"exact legacy sync prefix", "stripe sync development", true},
		{"case-insensitive, padded", "  STRIPE SYNC development (local)  ", true},
		{"generic stripe sync prefix", "stripe sync anything else", true},
		{"unrelated description", "my hand-rolled webhook", false},
		{"empty description", "", false},
	}
	for _, tc := range cases {
		ep := &stripe.WebhookEndpoint{Description: tc.desc}
		if got := isLegacyManaged(ep); got != tc.want {
			t.Errorf("%s: isLegacyManaged(%q) = %v, want %v", tc.name, tc.desc, got, tc.want)
		}
	}
}

func TestIsNotFoundErr(t *testing.T) {
	if isNotFoundErr(&syncerr.NotFound{Kind: "webhook_endpoint", ID: "we_1"}) != true {
		t.Error("isNotFoundErr(NotFound) = false, want true")
	}
	if isNotFoundErr(errors.New("boom")) != false {
		t.Error("isNotFoundErr(plain error) = true, want false")
	}
	if isNotFoundErr(nil) != false {
		t.Error("isNotFoundErr(nil) = true, want false")
	}
}

func TestStripeEventList(t *testing.T) {
	if got := stripeEventList(nil); got == nil || len(got) != 0 {
		t.Errorf("stripeEventList(nil) = %v, want empty non-nil slice", got)
	}
	in := []string{"invoice.paid", "charge.succeeded"}
	if got := stripeEventList(in); len(got) != 2 {
		t.Errorf("stripeEventList(in) = %v, want it passed through unchanged", got)
	}
}
