// Package api exposes the HTTP surface: signal and target submission,
// case review, and importer configuration. Submission endpoints return
// 202 and hand the heavy work to the workflow package.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/signal-service/internal/store"
	"github.com/sells-group/signal-service/internal/workflow"
)

// Server carries the dependencies shared by every handler.
type Server struct {
	store     store.Store
	enricher  *workflow.Enricher
	analyzer  *workflow.Analyzer
	publisher *workflow.Publisher
	log       *zap.Logger

	// base is the lifetime of async work kicked off by handlers. Request
	// contexts die with the connection; enrichment and analysis must not.
	base context.Context
}

// NewServer wires the handlers. The base context bounds background
// enrichment and analysis started from requests.
func NewServer(base context.Context, st store.Store, enricher *workflow.Enricher, analyzer *workflow.Analyzer, publisher *workflow.Publisher) *Server {
	return &Server{
		store:     st,
		enricher:  enricher,
		analyzer:  analyzer,
		publisher: publisher,
		log:       zap.L(),
		base:      base,
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/signals", func(r chi.Router) {
		r.Post("/", s.handleCreateSignal)
		r.Get("/", s.handleListSignals)
		r.Get("/{id}", s.handleGetSignal)
	})

	r.Route("/targets", func(r chi.Router) {
		r.Post("/", s.handleCreateTarget)
		r.Get("/{id}", s.handleGetTarget)
	})

	r.Route("/cases", func(r chi.Router) {
		r.Get("/", s.handleListCases)
		r.Get("/{id}", s.handleGetCase)
		r.Patch("/{id}", s.handlePatchCase)
		r.Post("/{id}/reviews", s.handleCreateReview)
		r.Delete("/{id}/reviews/{reviewID}", s.handleDeleteReview)
		r.Post("/{id}/reviews/{reviewID}/publish", s.handlePublishReview)
	})

	r.Route("/importers", func(r chi.Router) {
		r.Get("/", s.handleListImporterConfigs)
		r.Put("/{source}", s.handleUpsertImporterConfig)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes v with the given status. Encoding failures are logged;
// the status line has already gone out by then.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encoding response failed", zap.Error(err))
	}
}

// writeError writes the JSON error envelope.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
