package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/signal-service/internal/model"
	"github.com/sells-group/signal-service/internal/resilience"
)

func testFeedAPIConfig() model.ImporterConfig {
	return model.ImporterConfig{
		Type:  model.SourceTypeFeedAPI,
		State: model.ConfigStateActive,
		Credential: model.Credential{
			Identifier: "group-42",
			Token:      "secret-token",
		},
	}
}

func fastFeedAPI(cfg model.ImporterConfig, baseURL string) *FeedAPI {
	return NewFeedAPI(cfg,
		WithFeedAPIBaseURL(baseURL),
		WithFeedAPILimiter(rate.NewLimiter(rate.Inf, 1)),
		WithFeedAPIRetry(resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
		}))
}

func TestFeedAPI_Pages_FollowsPagination(t *testing.T) {
	t.Parallel()

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token secret-token", r.Header.Get("Authorization"))
		assert.Equal(t, "group-42", r.Header.Get("X-Group-ID"))

		switch r.URL.Path {
		case "/feed":
			json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{
					{"id": "u1", "url": "https://bad.example/1", "url_status": "ACTIVE", "confidence": 0.9},
					{"id": "u2", "url": "https://bad.example/2", "deleted": true},
				},
				"next": srv.URL + "/feed?page=2",
			})
		default:
			json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{
					{"id": "u3", "url": "https://bad.example/3", "organisations": []string{"org-a"}},
				},
				"next": "",
			})
		}
	}))
	t.Cleanup(srv.Close)

	imp := fastFeedAPI(testFeedAPIConfig(), srv.URL)

	var pages []*Page
	for page, err := range imp.Pages(context.Background(), "") {
		require.NoError(t, err)
		pages = append(pages, page)
	}

	require.Len(t, pages, 2)
	assert.Equal(t, srv.URL+"/feed", pages[0].Token)
	assert.Equal(t, srv.URL+"/feed?page=2", pages[1].Token)

	require.Len(t, pages[0].Items, 2)
	first := pages[0].Items[0]
	assert.Equal(t, ActionUpsert, first.Action)
	assert.Equal(t, "https://bad.example/1", first.Signal.PrimaryContent())
	require.Len(t, first.Signal.Sources, 1)
	assert.Equal(t, model.SourceTCAP, first.Signal.Sources[0].Name)
	assert.Equal(t, "u1", first.Signal.Sources[0].SourceSignalID)
	assert.Equal(t, "group-42", first.Signal.Sources[0].Author)
	require.NotNil(t, first.Signal.ContentStatus)
	assert.Equal(t, model.StatusActive, first.Signal.ContentStatus.MostRecentStatus)
	require.NotNil(t, first.Signal.ContentFeatures)
	assert.InDelta(t, 0.9, first.Signal.ContentFeatures.Confidence, 1e-9)

	assert.Equal(t, ActionDelete, pages[0].Items[1].Action)

	require.Len(t, pages[1].Items, 1)
	assert.Equal(t, []string{"org-a"}, pages[1].Items[0].Signal.ContentFeatures.AssociatedEntities)
}

func TestFeedAPI_Pages_ResumesAtToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"id": "u9", "url": "https://bad.example/9"}},
			"next":    "",
		})
	}))
	t.Cleanup(srv.Close)

	imp := fastFeedAPI(testFeedAPIConfig(), srv.URL)

	var pages []*Page
	for page, err := range imp.Pages(context.Background(), srv.URL+"/feed?page=2") {
		require.NoError(t, err)
		pages = append(pages, page)
	}
	require.Len(t, pages, 1)
	assert.Equal(t, srv.URL+"/feed?page=2", pages[0].Token)
}

func TestFeedAPI_Pages_RetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"id": "u1", "url": "https://bad.example/1"}},
			"next":    "",
		})
	}))
	t.Cleanup(srv.Close)

	imp := fastFeedAPI(testFeedAPIConfig(), srv.URL)

	var pages []*Page
	for page, err := range imp.Pages(context.Background(), "") {
		require.NoError(t, err)
		pages = append(pages, page)
	}
	require.Len(t, pages, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFeedAPI_Pages_PermanentStatusEndsStream(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	imp := fastFeedAPI(testFeedAPIConfig(), srv.URL)

	var pageErr error
	for _, err := range imp.Pages(context.Background(), "") {
		pageErr = err
	}
	assert.ErrorIs(t, pageErr, ErrSourceResponse)
}

func TestFeedAPI_PreCheck(t *testing.T) {
	t.Parallel()

	t.Run("missing credential", func(t *testing.T) {
		t.Parallel()
		imp := NewFeedAPI(model.ImporterConfig{Type: model.SourceTypeFeedAPI})
		assert.ErrorIs(t, imp.PreCheck(context.Background()), ErrPreCheck)
	})

	t.Run("rejected credential", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		t.Cleanup(srv.Close)

		imp := fastFeedAPI(testFeedAPIConfig(), srv.URL)
		assert.ErrorIs(t, imp.PreCheck(context.Background()), ErrPreCheck)
	})

	t.Run("accepted", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"results": []any{}, "next": ""})
		}))
		t.Cleanup(srv.Close)

		imp := fastFeedAPI(testFeedAPIConfig(), srv.URL)
		assert.NoError(t, imp.PreCheck(context.Background()))
	})
}

func TestFeedAPI_SendDecisions(t *testing.T) {
	t.Parallel()

	var got struct {
		Decisions []struct {
			ID       string `json:"id"`
			Decision string `json:"decision"`
		} `json:"decisions"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/decisions", r.URL.Path)
		assert.Equal(t, "Token secret-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	imp := fastFeedAPI(testFeedAPIConfig(), srv.URL)
	err := imp.SendDecisions(context.Background(), []Decision{
		{SourceSignalID: "u1", Verdict: model.DecisionBlock},
		{SourceSignalID: "u2", Verdict: model.DecisionApprove},
	})
	require.NoError(t, err)

	require.Len(t, got.Decisions, 2)
	assert.Equal(t, "u1", got.Decisions[0].ID)
	assert.Equal(t, "REMOVE", got.Decisions[0].Decision)
	assert.Equal(t, "APPROVE", got.Decisions[1].Decision)
}

func TestFeedAPI_SendDecisions_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, "bad payload")
	}))
	t.Cleanup(srv.Close)

	imp := fastFeedAPI(testFeedAPIConfig(), srv.URL)
	err := imp.SendDecisions(context.Background(), []Decision{{SourceSignalID: "u1", Verdict: model.DecisionApprove}})
	assert.ErrorIs(t, err, ErrSourceResponse)
}
