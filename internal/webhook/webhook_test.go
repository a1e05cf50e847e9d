package webhook

import (
	"testing"

	"github.com/tx-stripe/stripe-sync-engine/internal/projector"
)

func TestRoutes_EveryKindIsProjectable(t *testing.T) {
	supported := make(map[string]bool, len(projector.SupportedKinds))
	for _, k := range projector.SupportedKinds {
		supported[k] = true
	}
	for eventType, r := range routes {
		if !supported[r.kind] {
			t.Errorf("event %q routes to kind %q, which projector.SupportedKinds does not list", eventType, r.kind)
		}
	}
}

func TestRoutes_DeletedEventsAlwaysTombstone(t *testing.T) {
	for eventType, r := range routes {
		if hasSuffix(eventType, ".deleted") && r.action != actionTombstone {
			t.Errorf("event %q ends in .deleted but routes to actionUpsert, not actionTombstone", eventType)
		}
	}
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func TestSupportedEventTypes_MatchesRouteTable(t *testing.T) {
	types := SupportedEventTypes()
	if len(types) != len(routes) {
		t.Fatalf("SupportedEventTypes() returned %d types, routes has %d entries", len(types), len(routes))
	}
	seen := make(map[string]bool, len(types))
	for _, et := range types {
		if _, ok := routes[et]; !ok {
			t.Errorf("SupportedEventTypes() returned %q, which is not in routes", et)
		}
		seen[et] = true
	}
	for et := range routes {
		if !seen[et] {
			t.Errorf("routes has %q, missing from SupportedEventTypes()", et)
		}
	}
}

func TestRoutes_NoEmptyKinds(t *testing.T) {
	for eventType, r := range routes {
		if r.kind == "" {
			t.Errorf("event %q has an empty kind", eventType)
		}
	}
}
