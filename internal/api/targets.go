package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/signal-service/internal/model"
	"github.com/sells-group/signal-service/internal/store"
)

// handleCreateTarget submits platform content for analysis. The target is
// persisted immediately and the analysis workflow runs in the background;
// the response is the bare target, before any analyzer output.
func (s *Server) handleCreateTarget(w http.ResponseWriter, r *http.Request) {
	var tgt model.Target
	if err := json.NewDecoder(r.Body).Decode(&tgt); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if tgt.FeatureSet.Image == nil && tgt.FeatureSet.Text == nil {
		writeError(w, http.StatusBadRequest, "feature_set must carry an image or text feature")
		return
	}
	if tgt.FeatureSet.Image != nil && len(tgt.FeatureSet.Image.Data) == 0 {
		writeError(w, http.StatusBadRequest, "image feature requires data")
		return
	}
	if tgt.FeatureSet.Text != nil && tgt.FeatureSet.Text.Data == "" {
		writeError(w, http.StatusBadRequest, "text feature requires data")
		return
	}

	created, err := s.store.CreateTarget(r.Context(), tgt)
	if err != nil {
		s.log.Error("creating target failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not save target")
		return
	}

	go func() {
		if _, err := s.analyzer.AnalyzeTarget(s.base, created); err != nil {
			s.log.Error("target analysis failed",
				zap.String("target_id", created.ID), zap.Error(err))
		}
	}()

	writeJSON(w, http.StatusAccepted, created)
}

func (s *Server) handleGetTarget(w http.ResponseWriter, r *http.Request) {
	tgt, err := s.store.GetTarget(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "target not found")
			return
		}
		s.log.Error("getting target failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not get target")
		return
	}
	writeJSON(w, http.StatusOK, tgt)
}
