package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/signal-service/internal/model"
	"github.com/sells-group/signal-service/internal/resilience"
	"github.com/sells-group/signal-service/internal/store"
	"github.com/sells-group/signal-service/internal/workflow"
	"github.com/sells-group/signal-service/pkg/perspective"
	"github.com/sells-group/signal-service/pkg/translate"
	"github.com/sells-group/signal-service/pkg/visionapi"
)

func gradientPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 0, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fakeVision struct{}

func (fakeVision) DetectText(ctx context.Context, image []byte) (*visionapi.TextAnnotation, error) {
	return &visionapi.TextAnnotation{}, nil
}

func (fakeVision) SafeSearch(ctx context.Context, image []byte) (*visionapi.SafeSearchAnnotation, error) {
	return &visionapi.SafeSearchAnnotation{}, nil
}

type fakeTranslator struct{}

func (fakeTranslator) Translate(ctx context.Context, req translate.Request) (*translate.Result, error) {
	return &translate.Result{Text: req.Text, DetectedSource: "en"}, nil
}

type fakeToxicity struct {
	threat float64
}

func (f *fakeToxicity) AnalyzeComment(ctx context.Context, req perspective.AnalyzeRequest) (*perspective.AnalyzeResponse, error) {
	return &perspective.AnalyzeResponse{
		AttributeScores: map[perspective.Attribute]perspective.AttributeScore{
			perspective.AttributeThreat: {SummaryScore: perspective.Score{Value: f.threat}},
		},
	}, nil
}

type fakeDeliverer struct {
	mu    sync.Mutex
	calls int
}

func (d *fakeDeliverer) Deliver(ctx context.Context, c model.Case, review model.Review, target *model.Target) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return nil
}

func (d *fakeDeliverer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type testEnv struct {
	store     store.Store
	deliverer *fakeDeliverer
	srv       *httptest.Server
}

func newTestEnv(t *testing.T, fetch workflow.Fetcher, threat float64) *testEnv {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	opts := workflow.DefaultOptions()
	opts.IndexRetry = resilience.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}

	enricher := workflow.NewEnricher(st, fetch, "api-test")
	analyzer := workflow.NewAnalyzer(st, fakeVision{}, fakeTranslator{}, &fakeToxicity{threat: threat}, "api-test", opts)
	deliverer := &fakeDeliverer{}
	publisher := workflow.NewPublisher(st, deliverer, 0, resilience.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	})

	server := NewServer(context.Background(), st, enricher, analyzer, publisher)
	srv := httptest.NewServer(server.Router())
	t.Cleanup(srv.Close)

	return &testEnv{store: st, deliverer: deliverer, srv: srv}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil, 0)

	resp := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateSignal_RequiresContent(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil, 0)

	resp := env.do(t, http.MethodPost, "/signals", model.Signal{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decode[map[string]string](t, resp)
	assert.Equal(t, "content is required", body["error"])
}

func TestCreateSignal_CreatesAndEnriches(t *testing.T) {
	t.Parallel()

	img := gradientPNG(t)
	fetch := func(ctx context.Context, url string) ([]byte, error) {
		return img, nil
	}
	env := newTestEnv(t, fetch, 0)

	resp := env.do(t, http.MethodPost, "/signals", model.Signal{
		Content: []model.Content{{Value: "https://bad.example/a.png", ContentType: model.ContentTypeURL}},
		Sources: []model.Source{{Name: model.SourceTCAP}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[model.Signal](t, resp)
	require.NotEmpty(t, created.ID)

	// Hash enrichment runs in the background.
	require.Eventually(t, func() bool {
		sig, err := env.store.GetSignal(context.Background(), created.ID)
		return err == nil && len(sig.Content) == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCreateSignal_MergesByContent(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil, 0)
	ctx := context.Background()

	existing, err := env.store.CreateSignal(ctx, model.Signal{
		Content: []model.Content{
			{Value: "https://bad.example/a", ContentType: model.ContentTypeURL},
			{Value: "00ff", ContentType: model.ContentTypeHashDCT},
		},
		Sources: []model.Source{{Name: model.SourceTCAP}},
	})
	require.NoError(t, err)

	resp := env.do(t, http.MethodPost, "/signals", model.Signal{
		Content: []model.Content{{Value: "https://bad.example/a", ContentType: model.ContentTypeURL}},
		Sources: []model.Source{{Name: model.SourceUserReport, Author: "mod-7"}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	merged := decode[model.Signal](t, resp)
	assert.Equal(t, existing.ID, merged.ID)
	require.Len(t, merged.Sources, 2)
	assert.Equal(t, model.SourceUserReport, merged.Sources[1].Name)

	// No duplicate record was created.
	signals, err := env.store.ListSignals(ctx, store.SignalFilter{})
	require.NoError(t, err)
	assert.Len(t, signals, 1)
}

func TestGetSignal(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil, 0)

	sig, err := env.store.CreateSignal(context.Background(), model.Signal{
		Content: []model.Content{{Value: "https://bad.example/a", ContentType: model.ContentTypeURL}},
		Sources: []model.Source{{Name: model.SourceTCAP}},
	})
	require.NoError(t, err)

	resp := env.do(t, http.MethodGet, "/signals/"+sig.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[model.Signal](t, resp)
	assert.Equal(t, sig.ID, got.ID)

	resp = env.do(t, http.MethodGet, "/signals/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListSignals_FiltersByContentType(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := env.store.CreateSignal(ctx, model.Signal{
			Content: []model.Content{{Value: fmt.Sprintf("https://bad.example/%d", i), ContentType: model.ContentTypeURL}},
			Sources: []model.Source{{Name: model.SourceTCAP}},
		})
		require.NoError(t, err)
	}

	resp := env.do(t, http.MethodGet, "/signals?content_type=URL&limit=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Signals []model.Signal `json:"signals"`
	}](t, resp)
	assert.Len(t, body.Signals, 2)

	resp = env.do(t, http.MethodGet, "/signals?limit=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateTarget_RunsAnalysis(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil, 0.95)

	resp := env.do(t, http.MethodPost, "/targets", model.Target{
		ClientContext: "post-42",
		FeatureSet: model.FeatureSet{
			Text: &model.TextFeature{Data: "i will hurt you"},
		},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	created := decode[model.Target](t, resp)
	require.NotEmpty(t, created.ID)

	// The toxicity fake scores over threshold, so analysis opens a case.
	require.Eventually(t, func() bool {
		cases, err := env.store.ListCases(context.Background(), store.CaseQuery{Limit: 10})
		return err == nil && len(cases) == 1 && cases[0].TargetID == created.ID
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCreateTarget_Validation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil, 0)

	resp := env.do(t, http.MethodPost, "/targets", model.Target{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/targets", model.Target{
		FeatureSet: model.FeatureSet{Image: &model.ImageFeature{}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	raw, err := http.Post(env.srv.URL+"/targets", "application/json", strings.NewReader("not json"))
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}
