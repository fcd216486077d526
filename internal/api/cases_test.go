package api

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/signal-service/internal/model"
)

// seedCases creates cases with the given priorities and deterministic ids,
// so the presentation order (priority DESC, id ASC) is known in advance.
func seedCases(t *testing.T, env *testEnv, priorities []int) []model.Case {
	t.Helper()
	ctx := context.Background()
	out := make([]model.Case, 0, len(priorities))
	for i, p := range priorities {
		c, err := env.store.CreateCase(ctx, model.Case{
			ID:             fmt.Sprintf("case-%02d", i),
			SignalIDs:      []string{fmt.Sprintf("sig-%02d", i)},
			State:          model.CaseStateActive,
			CachedPriority: p,
		})
		require.NoError(t, err)
		out = append(out, *c)
	}
	return out
}

func TestListCases_KeysetPagination(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil, 0)
	seedCases(t, env, []int{6, 5, 5, 3, 1})
	// Presentation order: case-00(6), case-01(5), case-02(5), case-03(3), case-04(1).

	resp := env.do(t, http.MethodGet, "/cases?page_size=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page1 := decode[caseListResponse](t, resp)
	require.Len(t, page1.Cases, 2)
	assert.Equal(t, "case-00", page1.Cases[0].ID)
	assert.Equal(t, "case-01", page1.Cases[1].ID)
	assert.NotEmpty(t, page1.NextCursorToken)
	assert.Empty(t, page1.PreviousCursorToken)

	resp = env.do(t, http.MethodGet, "/cases?page_size=2&next_cursor="+page1.NextCursorToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page2 := decode[caseListResponse](t, resp)
	require.Len(t, page2.Cases, 2)
	assert.Equal(t, "case-02", page2.Cases[0].ID)
	assert.Equal(t, "case-03", page2.Cases[1].ID)
	assert.NotEmpty(t, page2.NextCursorToken)
	assert.NotEmpty(t, page2.PreviousCursorToken)

	// Previous from page 2 reproduces page 1, with no further previous.
	resp = env.do(t, http.MethodGet, "/cases?page_size=2&previous_cursor="+page2.PreviousCursorToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	back := decode[caseListResponse](t, resp)
	require.Len(t, back.Cases, 2)
	assert.Equal(t, "case-00", back.Cases[0].ID)
	assert.Equal(t, "case-01", back.Cases[1].ID)
	assert.Empty(t, back.PreviousCursorToken)
	assert.NotEmpty(t, back.NextCursorToken)

	// Last page emits no next token.
	resp = env.do(t, http.MethodGet, "/cases?page_size=2&next_cursor="+page2.NextCursorToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page3 := decode[caseListResponse](t, resp)
	require.Len(t, page3.Cases, 1)
	assert.Equal(t, "case-04", page3.Cases[0].ID)
	assert.Empty(t, page3.NextCursorToken)
	assert.NotEmpty(t, page3.PreviousCursorToken)
}

func TestListCases_BothCursorsRejected(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil, 0)

	resp := env.do(t, http.MethodGet, "/cases?next_cursor=abc&previous_cursor=def", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/cases?next_cursor=%25not-base64", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListCases_Filters(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil, 0)
	cases := seedCases(t, env, []int{5, 3})
	ctx := context.Background()

	resolved := cases[1]
	resolved.State = model.CaseStateResolved
	require.NoError(t, env.store.UpdateCase(ctx, resolved))

	resp := env.do(t, http.MethodGet, "/cases?state=ACTIVE", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[caseListResponse](t, resp)
	require.Len(t, body.Cases, 1)
	assert.Equal(t, cases[0].ID, body.Cases[0].ID)

	resp = env.do(t, http.MethodGet, "/cases?signal_id=sig-01", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decode[caseListResponse](t, resp)
	require.Len(t, body.Cases, 1)
	assert.Equal(t, cases[1].ID, body.Cases[0].ID)
}

func TestPatchCase(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil, 0)
	cases := seedCases(t, env, []int{5})

	resp := env.do(t, http.MethodPatch, "/cases/"+cases[0].ID, map[string]any{
		"notes": "seen before, known campaign",
		"state": "RESOLVED",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[model.Case](t, resp)
	assert.Equal(t, "seen before, known campaign", updated.Notes)
	assert.Equal(t, model.CaseStateResolved, updated.State)

	resp = env.do(t, http.MethodPatch, "/cases/"+cases[0].ID, map[string]any{"state": "BOGUS"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPatch, "/cases/missing", map[string]any{"notes": "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReviewLifecycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil, 0)
	cases := seedCases(t, env, []int{5})
	ctx := context.Background()

	resp := env.do(t, http.MethodPost, "/cases/"+cases[0].ID+"/reviews", map[string]any{
		"decision": "BLOCK",
		"user":     "mod-7",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	review := decode[model.Review](t, resp)
	assert.Equal(t, model.ReviewStateDraft, review.State)
	assert.Equal(t, model.DecisionBlock, review.Decision)
	assert.Equal(t, model.DeliveryPending, review.DeliveryStatus)

	// Drafting a review resolves the case.
	c, err := env.store.GetCase(ctx, cases[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.CaseStateResolved, c.State)

	// The zero publish delay publishes and delivers in the background.
	require.Eventually(t, func() bool {
		c, err := env.store.GetCase(ctx, cases[0].ID)
		if err != nil {
			return false
		}
		rv := c.ReviewByID(review.ID)
		return rv != nil && rv.State == model.ReviewStatePublished &&
			rv.DeliveryStatus == model.DeliveryAccepted
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, env.deliverer.count())
}

func TestCreateReview_InvalidDecision(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil, 0)
	cases := seedCases(t, env, []int{5})

	resp := env.do(t, http.MethodPost, "/cases/"+cases[0].ID+"/reviews", map[string]any{
		"decision": "MAYBE",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteReview(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil, 0)
	cases := seedCases(t, env, []int{5})
	ctx := context.Background()

	now := time.Now().UTC()
	c, err := env.store.GetCase(ctx, cases[0].ID)
	require.NoError(t, err)
	c.ReviewHistory = []model.Review{
		{ID: "rev-published", CreateTime: now, State: model.ReviewStatePublished, Decision: model.DecisionBlock, DeliveryStatus: model.DeliveryAccepted},
		{ID: "rev-draft", CreateTime: now, State: model.ReviewStateDraft, Decision: model.DecisionApprove, DeliveryStatus: model.DeliveryPending},
	}
	c.DeriveState()
	require.NoError(t, env.store.UpdateCase(ctx, *c))

	// Published reviews are immutable.
	resp := env.do(t, http.MethodDelete, "/cases/"+c.ID+"/reviews/rev-published", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/cases/"+c.ID+"/reviews/rev-draft", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	c, err = env.store.GetCase(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, c.ReviewHistory, 1)
	assert.Equal(t, "rev-published", c.ReviewHistory[0].ID)

	resp = env.do(t, http.MethodDelete, "/cases/"+c.ID+"/reviews/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPublishReview_Immediate(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil, 0)
	cases := seedCases(t, env, []int{5})
	ctx := context.Background()

	c, err := env.store.GetCase(ctx, cases[0].ID)
	require.NoError(t, err)
	c.ReviewHistory = []model.Review{{
		ID:             "rev-1",
		CreateTime:     time.Now().UTC(),
		State:          model.ReviewStateDraft,
		Decision:       model.DecisionBlock,
		DeliveryStatus: model.DeliveryPending,
	}}
	c.DeriveState()
	require.NoError(t, env.store.UpdateCase(ctx, *c))

	resp := env.do(t, http.MethodPost, "/cases/"+c.ID+"/reviews/rev-1/publish", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	review := decode[model.Review](t, resp)
	assert.Equal(t, model.ReviewStatePublished, review.State)
	assert.Equal(t, model.DeliveryAccepted, review.DeliveryStatus)
	assert.Equal(t, 1, env.deliverer.count())
}

func TestImporterConfigs(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil, 0)

	resp := env.do(t, http.MethodPut, "/importers/FEED_API", map[string]any{
		"state":             "ACTIVE",
		"diagnostics_state": "ACTIVE",
		"credential":        map[string]string{"identifier": "group-9", "token": "secret-token"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	saved := decode[redactedConfig](t, resp)
	assert.Equal(t, model.SourceTypeFeedAPI, saved.Type)
	assert.Equal(t, "group-9", saved.Identifier)
	assert.True(t, saved.HasToken)

	resp = env.do(t, http.MethodGet, "/importers", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Importers []redactedConfig `json:"importers"`
	}](t, resp)
	require.Len(t, body.Importers, 1)
	// The token itself never appears in responses.
	assert.Equal(t, model.ConfigStateActive, body.Importers[0].State)

	resp = env.do(t, http.MethodPut, "/importers/BOGUS", map[string]any{"state": "ACTIVE"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
