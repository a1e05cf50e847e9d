package adminapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireAPIKey guards the admin route group with a single static key
// (SPEC_FULL §4.6: one configured operator, not the multi-tenant,
// DB-backed, role/expiry key store a platform-facing API would need).
// The key may arrive as "Authorization: Bearer <key>" or "X-API-Key: <key>".
func requireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := extractAPIKey(r)
			if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
				RespondError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid admin API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractAPIKey(r *http.Request) string {
	if v := r.Header.Get("X-API-Key"); v != "" {
		return v
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
