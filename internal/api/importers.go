package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/signal-service/internal/model"
)

// redactedConfig is an ImporterConfig safe to return to clients: the
// credential token never leaves the store.
type redactedConfig struct {
	Type             model.SourceType  `json:"type"`
	State            model.ConfigState `json:"state"`
	DiagnosticsState model.ConfigState `json:"diagnostics_state"`
	Identifier       string            `json:"identifier,omitempty"`
	HasToken         bool              `json:"has_token"`
}

func redactConfig(cfg model.ImporterConfig) redactedConfig {
	return redactedConfig{
		Type:             cfg.Type,
		State:            cfg.State,
		DiagnosticsState: cfg.DiagnosticsState,
		Identifier:       cfg.Credential.Identifier,
		HasToken:         cfg.Credential.Token != "",
	}
}

func (s *Server) handleListImporterConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.store.ListImporterConfigs(r.Context())
	if err != nil {
		s.log.Error("listing importer configs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list importer configs")
		return
	}

	out := make([]redactedConfig, 0, len(configs))
	for _, cfg := range configs {
		out = append(out, redactConfig(cfg))
	}
	writeJSON(w, http.StatusOK, map[string]any{"importers": out})
}

// handleUpsertImporterConfig creates or replaces the configuration for one
// source.
func (s *Server) handleUpsertImporterConfig(w http.ResponseWriter, r *http.Request) {
	source := model.SourceType(chi.URLParam(r, "source"))
	if source != model.SourceTypeFeedAPI && source != model.SourceTypeFeedFile {
		writeError(w, http.StatusBadRequest, "unknown source type")
		return
	}

	var cfg model.ImporterConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cfg.Type = source
	if cfg.State == "" {
		cfg.State = model.ConfigStateInactive
	}
	if cfg.DiagnosticsState == "" {
		cfg.DiagnosticsState = model.ConfigStateInactive
	}

	if err := s.store.UpsertImporterConfigs(r.Context(), []model.ImporterConfig{cfg}); err != nil {
		s.log.Error("saving importer config failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not save importer config")
		return
	}
	writeJSON(w, http.StatusOK, redactConfig(cfg))
}
