package adminapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireAPIKey(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mw := requireAPIKey("secret-key")(ok)

	tests := []struct {
		name       string
		header     func(r *http.Request)
		wantStatus int
	}{
		{"missing key", func(r *http.Request) {}, http.StatusUnauthorized},
		{"wrong key", func(r *http.Request) { r.Header.Set("X-API-Key", "wrong") }, http.StatusUnauthorized},
		{"x-api-key header", func(r *http.Request) { r.Header.Set("X-API-Key", "secret-key") }, http.StatusOK},
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer secret-key") }, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/admin/v1/sync-objects", nil)
			tt.header(r)
			w := httptest.NewRecorder()
			mw.ServeHTTP(w, r)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
