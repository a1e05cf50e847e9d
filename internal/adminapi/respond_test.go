package adminapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type testPayload struct {
	BaseURL string `json:"base_url" validate:"required,url"`
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		errMsg  string
	}{
		{name: "valid JSON", body: `{"base_url":"https://example.com/webhook"}`, wantErr: false},
		{name: "empty body", body: "", wantErr: true, errMsg: "request body is empty"},
		{name: "invalid JSON", body: `{invalid}`, wantErr: true, errMsg: "invalid JSON"},
		{name: "unknown field", body: `{"base_url":"https://example.com","unknown":"x"}`, wantErr: true, errMsg: "invalid JSON"},
		{name: "trailing data", body: `{"base_url":"https://example.com"}{"extra":true}`, wantErr: true, errMsg: "request body must contain a single JSON object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var p testPayload
			err := Decode(r, &p)
			if (err != nil) != tt.wantErr {
				t.Errorf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && err != nil && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Decode() error = %q, want substring %q", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	errs := Validate(&testPayload{BaseURL: "not-a-url"})
	if len(errs) == 0 {
		t.Fatal("expected validation errors for invalid url")
	}
	if errs[0].Field != "base_url" {
		t.Errorf("Field = %q, want %q", errs[0].Field, "base_url")
	}

	if errs := Validate(&testPayload{BaseURL: "https://example.com/hook"}); len(errs) != 0 {
		t.Errorf("expected no validation errors, got %v", errs)
	}
}

func TestRespondError(t *testing.T) {
	w := httptest.NewRecorder()
	RespondError(w, http.StatusNotFound, "not_found", "account not found")

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if !strings.Contains(w.Body.String(), "not_found") {
		t.Errorf("body = %q, want to contain %q", w.Body.String(), "not_found")
	}
}
