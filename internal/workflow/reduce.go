package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/signal-service/internal/model"
	"github.com/sells-group/signal-service/internal/prioritize"
	"github.com/sells-group/signal-service/internal/store"
)

// caseLockTTL bounds how long the per-target case lock can be held; well
// past any single reduction, short enough that a crashed worker frees the
// target quickly.
const caseLockTTL = time.Minute

// ReduceCase folds a set of matched signal IDs into the target's single
// ACTIVE case, creating one when none exists. The read-modify-write runs
// under a per-target lock so two concurrent submissions for the same
// target cannot produce duplicate active cases. An empty match set never
// creates a case.
//
// An empty targetID records a match without target: a signal worth review
// even though no platform content was submitted. Those always open a
// fresh case.
func ReduceCase(ctx context.Context, st store.Store, holder, targetID string, signalIDs []string) (*model.Case, error) {
	if len(signalIDs) == 0 {
		return nil, nil
	}

	if targetID == "" {
		return createCase(ctx, st, "", signalIDs)
	}

	lockName := "case:target:" + targetID
	held, err := st.AcquireLock(ctx, lockName, holder, caseLockTTL)
	if err != nil {
		return nil, err
	}
	if !held {
		// Another worker is reducing this target right now; wait our turn
		// rather than racing it.
		if err := waitForLock(ctx, st, lockName, holder); err != nil {
			return nil, err
		}
	}
	defer func() {
		if rerr := st.ReleaseLock(ctx, lockName, holder); rerr != nil {
			zap.L().Warn("releasing case lock failed",
				zap.String("lock", lockName),
				zap.Error(rerr))
		}
	}()

	existing, err := st.ActiveCaseForTarget(ctx, targetID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if existing == nil {
		return createCase(ctx, st, targetID, signalIDs)
	}

	changed := false
	for _, id := range signalIDs {
		if !containsString(existing.SignalIDs, id) {
			existing.SignalIDs = append(existing.SignalIDs, id)
			changed = true
		}
	}
	if !changed {
		return existing, nil
	}

	if err := rescore(ctx, st, existing); err != nil {
		return nil, err
	}
	if err := st.UpdateCase(ctx, *existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func createCase(ctx context.Context, st store.Store, targetID string, signalIDs []string) (*model.Case, error) {
	c := model.Case{
		SignalIDs: signalIDs,
		TargetID:  targetID,
		State:     model.CaseStateActive,
	}
	if err := rescore(ctx, st, &c); err != nil {
		return nil, err
	}
	created, err := st.CreateCase(ctx, c)
	if err != nil {
		return nil, err
	}
	zap.L().Info("case opened",
		zap.String("case_id", created.ID),
		zap.String("target_id", targetID),
		zap.Int("signals", len(signalIDs)))
	return created, nil
}

// rescore refreshes the case's denormalized priority fields from its
// signals.
func rescore(ctx context.Context, st store.Store, c *model.Case) error {
	signals, err := st.GetSignalsByIDs(ctx, c.SignalIDs)
	if err != nil {
		return eris.Wrap(err, "workflow: rescore case")
	}
	prioritize.Apply(c, signals)
	return nil
}

func waitForLock(ctx context.Context, st store.Store, name, holder string) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			held, err := st.AcquireLock(ctx, name, holder, caseLockTTL)
			if err != nil {
				return err
			}
			if held {
				return nil
			}
		}
	}
}

func containsString(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
