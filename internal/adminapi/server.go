// Package adminapi is the operator-facing HTTP surface (SPEC_FULL §3.4,
// §4.6): unauthenticated health/metrics endpoints, a raw webhook receiver
// (authenticated by Stripe signature rather than the admin key), and an
// admin key-gated /admin/v1 route group exposing the sync engine's
// operations, built the way the teacher's internal/httpserver package
// wires its own chi server.
package adminapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tx-stripe/stripe-sync-engine/internal/audit"
	"github.com/tx-stripe/stripe-sync-engine/pkg/syncengine"
)

// Server holds the admin HTTP server's dependencies.
type Server struct {
	Router    *chi.Mux
	engine    *syncengine.Engine
	logger    *slog.Logger
	audit     *audit.Writer
	startedAt time.Time
}

// NewServer builds the admin HTTP server: global middleware, unauthenticated
// health/metrics/webhook endpoints, and the admin key-gated /admin/v1 group.
func NewServer(engine *syncengine.Engine, logger *slog.Logger, auditWriter *audit.Writer, metricsReg *prometheus.Registry, adminAPIKey string, corsOrigins []string) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		engine:    engine,
		logger:    logger,
		audit:     auditWriter,
		startedAt: time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID", "Stripe-Signature"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/readyz", s.handleReadyz)
	s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	// Raw provider webhook delivery. Authenticated by Stripe-Signature, not
	// the admin key (spec §4.6 step 1).
	s.Router.Post("/webhook", s.handleWebhook)

	s.Router.Route("/admin/v1", func(r chi.Router) {
		r.Use(requireAPIKey(adminAPIKey))

		r.Get("/sync-objects", s.handleGetSupportedSyncObjects)
		r.Post("/sync/next", s.handleProcessNext)
		r.Post("/sync/run", s.handleProcessUntilDone)

		r.Get("/webhooks", s.handleListManagedWebhooks)
		r.Post("/webhooks", s.handleFindOrCreateManagedWebhook)
		r.Delete("/webhooks/{id}", s.handleDeleteManagedWebhook)

		r.Get("/dashboard", s.handleDashboard)

		r.Post("/accounts/{id}/delete", s.handleDangerouslyDeleteAccount)
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DB().Ping(r.Context()); err != nil {
		s.logger.Error("readiness check: database ping failed", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "database not ready")
		return
	}
	Respond(w, http.StatusOK, map[string]string{"status": "ready"})
}
