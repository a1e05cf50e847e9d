package adminapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tx-stripe/stripe-sync-engine/internal/syncerr"
)

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		RespondError(w, http.StatusBadRequest, "bad_request", "reading request body")
		return
	}

	if err := s.engine.ProcessWebhook(r.Context(), body, r.Header.Get("Stripe-Signature")); err != nil {
		s.writeEngineError(w, r, "processing webhook", err)
		return
	}
	Respond(w, http.StatusOK, map[string]bool{"received": true})
}

func (s *Server) handleGetSupportedSyncObjects(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string][]string{"kinds": s.engine.GetSupportedSyncObjects()})
}

type processNextRequest struct {
	Kind string `json:"kind" validate:"required"`
}

func (s *Server) handleProcessNext(w http.ResponseWriter, r *http.Request) {
	var req processNextRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	result, err := s.engine.ProcessNext(r.Context(), req.Kind)
	if err != nil {
		s.writeEngineError(w, r, "processing next page", err)
		return
	}
	Respond(w, http.StatusOK, result)
}

type processUntilDoneRequest struct {
	TriggeredBy string `json:"triggered_by"`
}

func (s *Server) handleProcessUntilDone(w http.ResponseWriter, r *http.Request) {
	var req processUntilDoneRequest
	if err := Decode(r, &req); err != nil && err.Error() != "request body is empty" {
		RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.TriggeredBy == "" {
		req.TriggeredBy = "manual"
	}

	results, err := s.engine.ProcessUntilDone(r.Context(), req.TriggeredBy)
	if err != nil {
		s.writeEngineError(w, r, "running backfill", err)
		return
	}

	s.auditLog(r, "process_until_done", map[string]string{"triggered_by": req.TriggeredBy})
	Respond(w, http.StatusOK, results)
}

func (s *Server) handleListManagedWebhooks(w http.ResponseWriter, r *http.Request) {
	hooks, err := s.engine.ListManagedWebhooks(r.Context())
	if err != nil {
		s.writeEngineError(w, r, "listing managed webhooks", err)
		return
	}
	Respond(w, http.StatusOK, map[string]any{"webhooks": hooks})
}

type findOrCreateWebhookRequest struct {
	BaseURL       string   `json:"base_url" validate:"required,url"`
	EnabledEvents []string `json:"enabled_events"`
}

func (s *Server) handleFindOrCreateManagedWebhook(w http.ResponseWriter, r *http.Request) {
	var req findOrCreateWebhookRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	hook, err := s.engine.FindOrCreateManagedWebhook(r.Context(), req.BaseURL, req.EnabledEvents)
	if err != nil {
		s.writeEngineError(w, r, "finding or creating managed webhook", err)
		return
	}

	s.auditLog(r, "find_or_create_managed_webhook", map[string]string{"base_url": req.BaseURL, "webhook_id": hook.ID})
	Respond(w, http.StatusOK, hook)
}

func (s *Server) handleDeleteManagedWebhook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.DeleteManagedWebhook(r.Context(), id); err != nil {
		s.writeEngineError(w, r, "deleting managed webhook", err)
		return
	}
	s.auditLog(r, "delete_managed_webhook", map[string]string{"webhook_id": id})
	Respond(w, http.StatusNoContent, nil)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	limit := 25
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	rows, err := s.engine.Dashboard(r.Context(), limit)
	if err != nil {
		s.writeEngineError(w, r, "reading sync dashboard", err)
		return
	}
	Respond(w, http.StatusOK, map[string]any{"runs": rows})
}

type deleteAccountRequest struct {
	DryRun         bool `json:"dry_run"`
	UseTransaction bool `json:"use_transaction"`
}

func (s *Server) handleDangerouslyDeleteAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")

	var req deleteAccountRequest
	if err := Decode(r, &req); err != nil && err.Error() != "request body is empty" {
		RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	// Default to a transactional sweep: callers must explicitly opt into
	// the non-transactional, lower-lock-contention mode (spec §6,
	// dangerouslyDeleteAccount).
	if !req.UseTransaction && r.URL.Query().Get("use_transaction") != "false" {
		req.UseTransaction = true
	}

	counts, err := s.engine.DangerouslyDeleteAccount(r.Context(), accountID, req.DryRun, req.UseTransaction)
	if err != nil {
		s.writeEngineError(w, r, "deleting account", err)
		return
	}

	detail, _ := json.Marshal(map[string]any{"account_id": accountID, "dry_run": req.DryRun, "row_counts": counts})
	s.auditLogRaw(r, accountID, "dangerously_delete_account", detail)

	Respond(w, http.StatusOK, map[string]any{"account_id": accountID, "dry_run": req.DryRun, "row_counts": counts})
}

// writeEngineError maps engine errors to the appropriate HTTP status,
// following the typed taxonomy in syncerr (spec §7).
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case syncerr.IsNotFound(err):
		RespondError(w, http.StatusNotFound, "not_found", err.Error())
	case syncerr.IsConcurrentRun(err):
		RespondError(w, http.StatusConflict, "concurrent_run", err.Error())
	case strings.Contains(err.Error(), "unsupported kind"):
		RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
	default:
		s.logger.Error(op, "error", err, "request_id", RequestIDFromContext(r.Context()))
		RespondError(w, http.StatusInternalServerError, "internal_error", op+" failed")
	}
}

func (s *Server) auditLog(r *http.Request, action string, detail map[string]string) {
	b, err := json.Marshal(detail)
	if err != nil {
		return
	}
	s.auditLogRaw(r, "", action, b)
}

func (s *Server) auditLogRaw(r *http.Request, accountID, action string, detail json.RawMessage) {
	if s.audit == nil {
		return
	}
	s.audit.LogFromRequest(r, accountID, action, detail)
}
