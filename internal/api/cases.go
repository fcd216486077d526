package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/signal-service/internal/cursor"
	"github.com/sells-group/signal-service/internal/model"
	"github.com/sells-group/signal-service/internal/store"
)

const defaultPageSize = 20

// caseListResponse is one keyset page of cases. A token is present only
// when the corresponding neighbouring page exists.
type caseListResponse struct {
	Cases               []model.Case `json:"cases"`
	NextCursorToken     string       `json:"next_cursor_token,omitempty"`
	PreviousCursorToken string       `json:"previous_cursor_token,omitempty"`
}

// handleListCases pages through cases in (priority DESC, id ASC) order.
// Exactly one of next_cursor/previous_cursor may be supplied; the page is
// fetched with one extra row to decide whether a further page exists.
func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	qp := r.URL.Query()

	pageSize := defaultPageSize
	if v := qp.Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "page_size must be between 1 and 100")
			return
		}
		pageSize = n
	}

	nextTok, prevTok := qp.Get("next_cursor"), qp.Get("previous_cursor")
	if nextTok != "" && prevTok != "" {
		writeError(w, http.StatusBadRequest, "supply only one of next_cursor and previous_cursor")
		return
	}

	q := store.CaseQuery{
		State:    model.CaseState(qp.Get("state")),
		SignalID: qp.Get("signal_id"),
		Limit:    pageSize + 1,
		Backward: prevTok != "",
	}
	if tok := nextTok + prevTok; tok != "" {
		c, err := cursor.Decode(tok)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid cursor token")
			return
		}
		q.Boundary = &store.CaseBoundary{ID: c.TokenID, Priority: c.TokenPriority}
	}

	rows, err := s.store.ListCases(r.Context(), q)
	if err != nil {
		s.log.Error("listing cases failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list cases")
		return
	}

	resp := paginate(rows, pageSize, q.Boundary != nil, q.Backward)
	writeJSON(w, http.StatusOK, resp)
}

// paginate trims the over-fetched row set down to one page and derives the
// cursor tokens. Rows arrive in presentation order; when paging backward
// the extra row, if any, is at the front.
func paginate(rows []model.Case, pageSize int, anchored, backward bool) caseListResponse {
	hasMore := len(rows) > pageSize

	page := rows
	if hasMore {
		if backward {
			page = rows[len(rows)-pageSize:]
		} else {
			page = rows[:pageSize]
		}
	}

	resp := caseListResponse{Cases: page}
	if len(page) == 0 {
		resp.Cases = []model.Case{}
		return resp
	}

	first, last := page[0], page[len(page)-1]
	// The boundary row itself proves a neighbouring page in the direction
	// we came from; the extra row proves one in the direction we're going.
	if (!backward && hasMore) || (backward && anchored) {
		resp.NextCursorToken = cursor.Encode(cursor.Cursor{
			TokenID:       last.ID,
			TokenPriority: last.CachedPriority,
		})
	}
	if (!backward && anchored) || (backward && hasMore) {
		resp.PreviousCursorToken = cursor.Encode(cursor.Cursor{
			TokenID:       first.ID,
			TokenPriority: first.CachedPriority,
		})
	}
	return resp
}

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetCase(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "case not found")
			return
		}
		s.log.Error("getting case failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not get case")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handlePatchCase updates the mutable case fields: notes and state.
func (s *Server) handlePatchCase(w http.ResponseWriter, r *http.Request) {
	var patch struct {
		Notes *string          `json:"notes"`
		State *model.CaseState `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := s.store.GetCase(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "case not found")
			return
		}
		s.log.Error("getting case failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not update case")
		return
	}

	if patch.Notes != nil {
		c.Notes = *patch.Notes
	}
	if patch.State != nil {
		switch *patch.State {
		case model.CaseStateActive, model.CaseStateResolved:
			c.State = *patch.State
		default:
			writeError(w, http.StatusBadRequest, "state must be ACTIVE or RESOLVED")
			return
		}
	}

	if err := s.store.UpdateCase(r.Context(), *c); err != nil {
		s.log.Error("updating case failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not update case")
		return
	}
	writeJSON(w, http.StatusOK, c)
}
