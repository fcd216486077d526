package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/signal-service/internal/importer"
	"github.com/sells-group/signal-service/internal/index"
	"github.com/sells-group/signal-service/internal/model"
	"github.com/sells-group/signal-service/internal/store"
)

func newTestScheduler(t *testing.T, st store.Store) *Scheduler {
	t.Helper()
	enricher := NewEnricher(st, func(ctx context.Context, url string) ([]byte, error) {
		return gradientPNG(t), nil
	}, "w1")
	return NewScheduler(st, importer.NewRunner(st), enricher,
		[]model.SourceType{model.SourceTypeFeedAPI}, DefaultIntervals(), 50, "w1")
}

func TestScheduler_Rebuild(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	img := gradientPNG(t)
	enricher := NewEnricher(st, func(ctx context.Context, url string) ([]byte, error) {
		return img, nil
	}, "w1")
	sig := createURLSignal(t, st, "https://bad.example/img.png")
	require.NoError(t, enricher.ProcessNewSignals(ctx, []string{sig.ID}))

	s := newTestScheduler(t, st)
	require.NoError(t, s.Rebuild(ctx))

	ix, err := index.Load(ctx, st, index.FamilyDCT)
	require.NoError(t, err)

	enriched, err := st.GetSignal(ctx, sig.ID)
	require.NoError(t, err)
	matches, err := ix.Query(enriched.Content[1].Value)
	require.NoError(t, err)

	var ids []string
	for m := range matches {
		ids = append(ids, m.SignalIDs...)
	}
	assert.Equal(t, []string{sig.ID}, ids)
}

func TestScheduler_RunImport_SkipsDisabledSource(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertImporterConfigs(ctx, []model.ImporterConfig{
		{Type: model.SourceTypeFeedAPI, State: model.ConfigStateInactive},
	}))

	s := newTestScheduler(t, st)
	s.RunImport(ctx, model.SourceTypeFeedAPI)

	// The skip releases the lock and opens no job.
	token, err := st.LatestSuccessfulToken(ctx, model.SourceTypeFeedAPI)
	require.NoError(t, err)
	assert.Empty(t, token)

	held, err := st.AcquireLock(ctx, "import:FEED_API", "other", time.Hour)
	require.NoError(t, err)
	assert.True(t, held)
}

func TestScheduler_RunImport_SkipsWhenLockHeld(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	held, err := st.AcquireLock(ctx, "import:FEED_API", "another-worker", time.Hour)
	require.NoError(t, err)
	require.True(t, held)

	s := newTestScheduler(t, st)
	// Must return without touching the other worker's lock.
	s.RunImport(ctx, model.SourceTypeFeedAPI)

	stillHeld, err := st.AcquireLock(ctx, "import:FEED_API", "w1", time.Hour)
	require.NoError(t, err)
	assert.False(t, stillHeld)
}

func TestScheduler_RecoverClearsStaleState(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	// A crashed worker left an open job and an expired lock behind.
	_, err := st.CreateJob(ctx, model.Job{
		Type:   model.JobTypeSignalImport,
		Source: model.SourceTypeFeedAPI,
		Status: model.JobInProgress,
	})
	require.NoError(t, err)

	held, err := st.AcquireLock(ctx, "import:FEED_API", "dead-worker", time.Nanosecond)
	require.NoError(t, err)
	require.True(t, held)
	time.Sleep(10 * time.Millisecond)

	s := newTestScheduler(t, st)
	require.NoError(t, s.recover(ctx))

	held, err = st.AcquireLock(ctx, "import:FEED_API", "w1", time.Hour)
	require.NoError(t, err)
	assert.True(t, held)
}
