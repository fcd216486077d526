package workflow

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/signal-service/internal/model"
	"github.com/sells-group/signal-service/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "workflow.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func createURLSignal(t *testing.T, st store.Store, url string, sources ...model.SourceName) *model.Signal {
	t.Helper()
	if len(sources) == 0 {
		sources = []model.SourceName{model.SourceTCAP}
	}
	srcs := make([]model.Source, 0, len(sources))
	for _, name := range sources {
		srcs = append(srcs, model.Source{Name: name})
	}
	sig, err := st.CreateSignal(context.Background(), model.Signal{
		Content: []model.Content{{Value: url, ContentType: model.ContentTypeURL}},
		Sources: srcs,
	})
	require.NoError(t, err)
	return sig
}

func createTarget(t *testing.T, st store.Store) *model.Target {
	t.Helper()
	target, err := st.CreateTarget(context.Background(), model.Target{
		ClientContext: "ctx-1",
		FeatureSet:    model.FeatureSet{Text: &model.TextFeature{Data: "hello"}},
	})
	require.NoError(t, err)
	return target
}

func TestReduceCase_EmptyMatchesCreateNothing(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	c, err := ReduceCase(context.Background(), st, "w1", "target-1", nil)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestReduceCase_CreatesCaseForTarget(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	sig := createURLSignal(t, st, "https://bad.example/a", model.SourceTCAP, model.SourceGIFCT)
	target := createTarget(t, st)

	c, err := ReduceCase(ctx, st, "w1", target.ID, []string{sig.ID})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, target.ID, c.TargetID)
	assert.Equal(t, model.CaseStateActive, c.State)
	assert.Equal(t, []string{sig.ID}, c.SignalIDs)

	// Two corroborating sources score HIGH confidence.
	assert.Equal(t, 3, c.CachedConfidence)
	assert.Equal(t, 3, c.CachedPriority)
}

func TestReduceCase_UnionsIntoActiveCase(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	sigA := createURLSignal(t, st, "https://bad.example/a")
	sigB := createURLSignal(t, st, "https://bad.example/b")
	target := createTarget(t, st)

	first, err := ReduceCase(ctx, st, "w1", target.ID, []string{sigA.ID})
	require.NoError(t, err)

	second, err := ReduceCase(ctx, st, "w1", target.ID, []string{sigA.ID, sigB.ID})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.ElementsMatch(t, []string{sigA.ID, sigB.ID}, second.SignalIDs)

	cases, err := st.ListCases(ctx, store.CaseQuery{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, cases, 1)
}

func TestReduceCase_ResolvedCaseGetsFreshCase(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	sig := createURLSignal(t, st, "https://bad.example/a")
	target := createTarget(t, st)

	first, err := ReduceCase(ctx, st, "w1", target.ID, []string{sig.ID})
	require.NoError(t, err)

	first.State = model.CaseStateResolved
	require.NoError(t, st.UpdateCase(ctx, *first))

	second, err := ReduceCase(ctx, st, "w1", target.ID, []string{sig.ID})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, model.CaseStateActive, second.State)
}

func TestReduceCase_MatchWithoutTarget(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	sig := createURLSignal(t, st, "https://bad.example/orphan")

	c, err := ReduceCase(ctx, st, "w1", "", []string{sig.ID})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Empty(t, c.TargetID)
	assert.Equal(t, model.CaseStateActive, c.State)
}

func TestReduceCase_ReleasesLock(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	sig := createURLSignal(t, st, "https://bad.example/a")
	target := createTarget(t, st)

	_, err := ReduceCase(ctx, st, "w1", target.ID, []string{sig.ID})
	require.NoError(t, err)

	// The per-target lock must be free again for the next reduction.
	held, err := st.AcquireLock(ctx, "case:target:"+target.ID, "w2", caseLockTTL)
	require.NoError(t, err)
	assert.True(t, held)
}
