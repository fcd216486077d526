package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/signal-service/internal/importer"
	"github.com/sells-group/signal-service/internal/index"
	"github.com/sells-group/signal-service/internal/model"
	"github.com/sells-group/signal-service/internal/store"
)

// importLockTTL is the expiry on the per-source import lock. Longer than
// any sane run, so overlapping schedule ticks skip instead of queueing,
// but bounded so a dead worker cannot block its source forever.
const importLockTTL = time.Hour

// Intervals sets how often the recurring jobs fire.
type Intervals struct {
	Import      time.Duration
	Reindex     time.Duration
	Diagnostics time.Duration

	// DiagnosticsWindow is how far back each diagnostics export looks.
	DiagnosticsWindow time.Duration
}

// DefaultIntervals matches the service's standing schedule.
func DefaultIntervals() Intervals {
	return Intervals{
		Import:            30 * time.Minute,
		Reindex:           time.Hour,
		Diagnostics:       24 * time.Hour,
		DiagnosticsWindow: 24 * time.Hour,
	}
}

// Scheduler owns the recurring jobs: per-source imports, index rebuilds,
// and diagnostics export. Sources run independently; a failure in one
// never disturbs the others.
type Scheduler struct {
	store     store.Store
	runner    *importer.Runner
	enricher  *Enricher
	sources   []model.SourceType
	intervals Intervals
	chunkSize int
	holder    string
	log       *zap.Logger
}

// NewScheduler wires the recurring jobs. Holder names this worker in
// store locks.
func NewScheduler(st store.Store, runner *importer.Runner, enricher *Enricher, sources []model.SourceType, intervals Intervals, chunkSize int, holder string) *Scheduler {
	return &Scheduler{
		store:     st,
		runner:    runner,
		enricher:  enricher,
		sources:   sources,
		intervals: intervals,
		chunkSize: chunkSize,
		holder:    holder,
		log:       zap.L(),
	}
}

// Start recovers from any previous worker's crash, then runs the
// schedule until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.recover(ctx); err != nil {
		return err
	}

	grp, gctx := errgroup.WithContext(ctx)
	for _, source := range s.sources {
		grp.Go(func() error {
			s.every(gctx, s.intervals.Import, func() {
				s.RunImport(gctx, source)
			})
			return nil
		})
		grp.Go(func() error {
			s.every(gctx, s.intervals.Diagnostics, func() {
				s.RunDiagnostics(gctx, source, s.intervals.DiagnosticsWindow)
			})
			return nil
		})
	}
	grp.Go(func() error {
		s.every(gctx, s.intervals.Reindex, func() {
			if err := s.Rebuild(gctx); err != nil {
				s.log.Error("index rebuild failed", zap.Error(err))
			}
		})
		return nil
	})
	return grp.Wait()
}

// recover marks jobs orphaned by a crashed worker and clears stale
// locks so a previous crash cannot deadlock the schedule.
func (s *Scheduler) recover(ctx context.Context) error {
	orphaned, err := s.store.MarkOrphanedJobs(ctx)
	if err != nil {
		return eris.Wrap(err, "workflow: mark orphaned jobs")
	}
	if orphaned > 0 {
		s.log.Warn("marked orphaned jobs from a previous worker", zap.Int("count", orphaned))
	}
	cleared, err := s.store.ClearExpiredLocks(ctx)
	if err != nil {
		return eris.Wrap(err, "workflow: clear expired locks")
	}
	if cleared > 0 {
		s.log.Warn("cleared stale locks from a previous worker", zap.Int("count", cleared))
	}
	return nil
}

func (s *Scheduler) every(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// RunImport performs one import run for a source under the per-source
// lock. A held lock or disabled source skips the run; only real run
// failures are errors.
func (s *Scheduler) RunImport(ctx context.Context, source model.SourceType) {
	lockName := "import:" + string(source)
	held, err := s.store.AcquireLock(ctx, lockName, s.holder, importLockTTL)
	if err != nil {
		s.log.Error("acquiring import lock failed",
			zap.String("source", string(source)), zap.Error(err))
		return
	}
	if !held {
		s.log.Info("import already running elsewhere, skipping",
			zap.String("source", string(source)))
		return
	}
	defer func() {
		if rerr := s.store.ReleaseLock(ctx, lockName, s.holder); rerr != nil {
			s.log.Warn("releasing import lock failed",
				zap.String("source", string(source)), zap.Error(rerr))
		}
	}()

	imp, err := importer.Load(ctx, s.store, source)
	if err != nil {
		if errors.Is(err, importer.ErrImporterLoad) {
			s.log.Warn("importer not runnable, skipping",
				zap.String("source", string(source)), zap.Error(err))
			return
		}
		s.log.Error("loading importer failed",
			zap.String("source", string(source)), zap.Error(err))
		return
	}

	_, err = s.runner.Run(ctx, imp, s.chunkSize, func(ids []string) error {
		return s.enricher.ProcessNewSignals(ctx, ids)
	})
	if err != nil {
		s.log.Error("import run failed",
			zap.String("source", string(source)), zap.Error(err))
	}
}

// RunDiagnostics exports the window's review decisions back to a source,
// when that source has diagnostics enabled.
func (s *Scheduler) RunDiagnostics(ctx context.Context, source model.SourceType, window time.Duration) {
	cfg, err := s.store.GetImporterConfig(ctx, source)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Error("loading importer config failed",
				zap.String("source", string(source)), zap.Error(err))
		}
		return
	}
	if cfg.DiagnosticsState != model.ConfigStateActive {
		return
	}

	imp, err := importer.Load(ctx, s.store, source)
	if err != nil {
		if !errors.Is(err, importer.ErrImporterLoad) {
			s.log.Error("loading importer failed",
				zap.String("source", string(source)), zap.Error(err))
		}
		return
	}

	end := time.Now().UTC()
	if err := s.runner.SendDiagnostics(ctx, imp, end.Add(-window), end); err != nil {
		s.log.Error("diagnostics export failed",
			zap.String("source", string(source)), zap.Error(err))
	}
}

// Rebuild reconstructs every index family from the full signal set and
// swaps the snapshots. Readers keep the previous snapshot until the new
// one lands.
func (s *Scheduler) Rebuild(ctx context.Context) error {
	signals, err := s.store.ListSignals(ctx, store.SignalFilter{})
	if err != nil {
		return eris.Wrap(err, "workflow: list signals for rebuild")
	}

	for _, family := range []index.Family{index.FamilyDCT, index.FamilyMD5} {
		ix := index.New(family)
		ix.Build(signals)
		if err := ix.Save(ctx, s.store); err != nil {
			return eris.Wrapf(err, "workflow: save %s index", family)
		}
	}
	s.log.Info("similarity indexes rebuilt", zap.Int("signals", len(signals)))
	return nil
}
