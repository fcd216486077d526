package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/signal-service/internal/model"
	"github.com/sells-group/signal-service/internal/store"
)

// handleCreateReview records a draft decision on a case and schedules its
// publication after the grace period. Drafting a review resolves the case.
func (s *Server) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Decision model.Decision `json:"decision"`
		User     string         `json:"user"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Decision != model.DecisionApprove && req.Decision != model.DecisionBlock {
		writeError(w, http.StatusBadRequest, "decision must be APPROVE or BLOCK")
		return
	}

	c, err := s.store.GetCase(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "case not found")
			return
		}
		s.log.Error("getting case failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not create review")
		return
	}

	now := time.Now().UTC()
	review := model.Review{
		ID:             uuid.NewString(),
		CreateTime:     now,
		UpdateTime:     now,
		State:          model.ReviewStateDraft,
		Decision:       req.Decision,
		User:           req.User,
		DeliveryStatus: model.DeliveryPending,
	}
	c.ReviewHistory = append(c.ReviewHistory, review)
	c.DeriveState()

	if err := s.store.UpdateCase(r.Context(), *c); err != nil {
		s.log.Error("saving review failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not create review")
		return
	}

	s.publisher.Schedule(s.base, c.ID, review.ID)
	writeJSON(w, http.StatusCreated, review)
}

// handleDeleteReview withdraws a draft review. Published reviews are
// immutable; deleting one is a conflict.
func (s *Server) handleDeleteReview(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetCase(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "case not found")
			return
		}
		s.log.Error("getting case failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not delete review")
		return
	}

	reviewID := chi.URLParam(r, "reviewID")
	review := c.ReviewByID(reviewID)
	if review == nil {
		writeError(w, http.StatusNotFound, "review not found")
		return
	}
	if review.State != model.ReviewStateDraft {
		writeError(w, http.StatusConflict, "only draft reviews can be deleted")
		return
	}

	kept := c.ReviewHistory[:0]
	for _, rv := range c.ReviewHistory {
		if rv.ID != reviewID {
			kept = append(kept, rv)
		}
	}
	c.ReviewHistory = kept
	c.DeriveState()

	if err := s.store.UpdateCase(r.Context(), *c); err != nil {
		s.log.Error("deleting review failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not delete review")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePublishReview publishes a draft immediately, skipping the grace
// period.
func (s *Server) handlePublishReview(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "id")
	reviewID := chi.URLParam(r, "reviewID")

	c, err := s.store.GetCase(r.Context(), caseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "case not found")
			return
		}
		s.log.Error("getting case failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not publish review")
		return
	}
	if c.ReviewByID(reviewID) == nil {
		writeError(w, http.StatusNotFound, "review not found")
		return
	}

	if err := s.publisher.Publish(r.Context(), caseID, reviewID); err != nil {
		s.log.Error("publishing review failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not publish review")
		return
	}

	c, err = s.store.GetCase(r.Context(), caseID)
	if err != nil {
		s.log.Error("re-reading case failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not publish review")
		return
	}
	writeJSON(w, http.StatusOK, c.ReviewByID(reviewID))
}
