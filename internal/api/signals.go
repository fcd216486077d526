package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/signal-service/internal/model"
	"github.com/sells-group/signal-service/internal/store"
)

// handleCreateSignal registers a signal. A signal whose primary content is
// already known is merged into the existing record instead of duplicated,
// the same way importer runs fold feed items in. URL-only signals get hash
// enrichment in the background.
func (s *Server) handleCreateSignal(w http.ResponseWriter, r *http.Request) {
	var sig model.Signal
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(sig.Content) == 0 || sig.Content[0].Value == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if len(sig.Sources) == 0 {
		sig.Sources = []model.Source{{Name: model.SourceUserReport}}
	}

	existing, err := s.store.GetSignalByContent(r.Context(), sig.PrimaryContent())
	switch {
	case err == nil:
		existing.Merge(&sig)
		if err := s.store.UpdateSignal(r.Context(), *existing); err != nil {
			s.log.Error("merging signal failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not save signal")
			return
		}
		writeJSON(w, http.StatusOK, existing)
		return
	case errors.Is(err, store.ErrNotFound):
	default:
		s.log.Error("looking up signal failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not save signal")
		return
	}

	created, err := s.store.CreateSignal(r.Context(), sig)
	if err != nil {
		s.log.Error("creating signal failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not save signal")
		return
	}

	go func() {
		if err := s.enricher.ProcessNewSignals(s.base, []string{created.ID}); err != nil {
			s.log.Error("signal enrichment failed",
				zap.String("signal_id", created.ID), zap.Error(err))
		}
	}()

	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListSignals(w http.ResponseWriter, r *http.Request) {
	filter := store.SignalFilter{
		ContentType: model.ContentType(r.URL.Query().Get("content_type")),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	signals, err := s.store.ListSignals(r.Context(), filter)
	if err != nil {
		s.log.Error("listing signals failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list signals")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"signals": signals})
}

func (s *Server) handleGetSignal(w http.ResponseWriter, r *http.Request) {
	sig, err := s.store.GetSignal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "signal not found")
			return
		}
		s.log.Error("getting signal failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not get signal")
		return
	}
	writeJSON(w, http.StatusOK, sig)
}
