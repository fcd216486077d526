package importer

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/signal-service/internal/chunk"
	"github.com/sells-group/signal-service/internal/model"
	"github.com/sells-group/signal-service/internal/resilience"
	"github.com/sells-group/signal-service/internal/store"
)

// decisionBatchSize is how many review decisions go upstream per request.
const decisionBatchSize = 10

// Runner executes importer runs inside a Job and applies fetched signals
// to the store.
type Runner struct {
	store store.Store
	log   *zap.Logger

	// softLimit ends a run early with partial results instead of failing
	// it. Zero means no limit.
	softLimit time.Duration

	retry resilience.RetryConfig
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithSoftTimeLimit bounds a run's wall time; when exceeded the run stops
// after the current page and the job still closes SUCCESS.
func WithSoftTimeLimit(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.softLimit = d
	}
}

// WithRetryConfig overrides the retry policy used for diagnostics
// delivery.
func WithRetryConfig(cfg resilience.RetryConfig) RunnerOption {
	return func(r *Runner) {
		r.retry = cfg
	}
}

// NewRunner creates a Runner backed by the given store.
func NewRunner(st store.Store, opts ...RunnerOption) *Runner {
	r := &Runner{
		store: st,
		log:   zap.L(),
		retry: resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run performs one full importer run: pre-check, open a Job, fetch and
// apply every page, and emit chunks of newly inserted signal IDs through
// sink as they fill. The Job is closed on every path; an uncaught error
// marks it FAILURE, clean completion (including a soft-limit stop)
// SUCCESS.
func (r *Runner) Run(ctx context.Context, imp Importer, chunkSize int, sink func(insertedIDs []string) error) (*model.Job, error) {
	if chunkSize <= 0 {
		chunkSize = 50
	}

	if err := imp.PreCheck(ctx); err != nil {
		return nil, eris.Wrapf(err, "importer: %s pre-check", imp.Source())
	}

	resume, err := r.store.LatestSuccessfulToken(ctx, imp.Source())
	if err != nil {
		return nil, err
	}

	job, err := r.store.CreateJob(ctx, model.Job{
		Type:                            model.JobTypeSignalImport,
		Source:                          imp.Source(),
		Status:                          model.JobInProgress,
		ContinuationToken:               resume,
		LastSuccessfulContinuationToken: resume,
	})
	if err != nil {
		return nil, err
	}

	// The job record must reach a resting state no matter how the run
	// ends. End() turns a still-in-progress status into UNKNOWN so the
	// orphan is visible.
	defer func() {
		job.End()
		if uerr := r.store.UpdateJob(ctx, *job); uerr != nil {
			r.log.Error("closing job failed",
				zap.String("job_id", job.ID),
				zap.String("source", string(imp.Source())),
				zap.Error(uerr))
		}
	}()

	runErr := r.applyPages(ctx, imp, job, resume, chunkSize, sink)
	if runErr != nil {
		job.Status = model.JobFailure
		r.log.Error("importer run failed",
			zap.String("job_id", job.ID),
			zap.String("source", string(imp.Source())),
			zap.Error(runErr))
		return job, runErr
	}

	job.Status = model.JobSuccess
	r.log.Info("importer run finished",
		zap.String("job_id", job.ID),
		zap.String("source", string(imp.Source())),
		zap.Int("imported", job.ImportSize),
		zap.Int("updated", job.UpdateSize),
		zap.Int("deleted", job.DeleteSize))
	return job, nil
}

func (r *Runner) applyPages(ctx context.Context, imp Importer, job *model.Job, resume string, chunkSize int, sink func([]string) error) error {
	var softDeadline time.Time
	if r.softLimit > 0 {
		softDeadline = time.Now().Add(r.softLimit)
	}

	var pending []string
	flush := func() error {
		if len(pending) == 0 || sink == nil {
			return nil
		}
		if err := sink(pending); err != nil {
			return eris.Wrap(err, "importer: emit chunk")
		}
		pending = nil
		return nil
	}

	prevToken := resume
	first := true
	for page, err := range imp.Pages(ctx, resume) {
		if err != nil {
			return err
		}

		// The previous page is fully applied once the next page arrives;
		// promote its token. The current page's token stays one step
		// behind in last_successful, so a crash mid-page replays the
		// whole page on the next run. Merge idempotence makes the replay
		// safe.
		if !first {
			job.LastSuccessfulContinuationToken = prevToken
		}
		job.ContinuationToken = page.Token
		if err := r.store.UpdateJob(ctx, *job); err != nil {
			return err
		}

		for _, item := range page.Items {
			insertedID, err := r.apply(ctx, imp, job, item)
			if err != nil {
				return err
			}
			if insertedID != "" {
				pending = append(pending, insertedID)
				if len(pending) >= chunkSize {
					if err := flush(); err != nil {
						return err
					}
				}
			}
		}

		prevToken = page.Token
		first = false

		if !softDeadline.IsZero() && time.Now().After(softDeadline) {
			r.log.Warn("importer run hit soft time limit, stopping with partial results",
				zap.String("job_id", job.ID),
				zap.String("source", string(imp.Source())))
			break
		}
	}

	return flush()
}

// apply performs one fetched item against the store. It returns the new
// signal ID when the item produced an insert, "" otherwise.
func (r *Runner) apply(ctx context.Context, imp Importer, job *model.Job, item Item) (string, error) {
	key := item.Signal.PrimaryContent()
	if key == "" {
		r.log.Warn("skipping signal without content",
			zap.String("source", string(imp.Source())))
		return "", nil
	}

	existing, err := r.store.GetSignalByContent(ctx, key)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	switch item.Action {
	case ActionDelete:
		if existing == nil {
			// Nothing to redact; the feed retracted something we never had.
			r.log.Info("delete for unknown signal",
				zap.String("source", string(imp.Source())))
			return "", nil
		}
		if err := existing.Redact(imp.SignalSource()); err != nil {
			return "", err
		}
		if err := r.store.UpdateSignal(ctx, *existing); err != nil {
			return "", err
		}
		job.DeleteSize++
		return "", nil

	default:
		if existing == nil {
			created, err := r.store.CreateSignal(ctx, item.Signal)
			if err != nil {
				return "", err
			}
			job.ImportSize++
			return created.ID, nil
		}
		if existing.Equal(&item.Signal) {
			// Re-imported unchanged; nothing to write.
			return "", nil
		}
		merged := item.Signal
		merged.Merge(existing)
		if err := r.store.UpdateSignal(ctx, merged); err != nil {
			return "", err
		}
		job.UpdateSize++
		return "", nil
	}
}

// SendDiagnostics reports review decisions made in [start, end) back to
// the importer's source. Delivery is best-effort: each batch is retried
// with backoff, then logged and dropped.
func (r *Runner) SendDiagnostics(ctx context.Context, imp Importer, start, end time.Time) error {
	cases, err := r.store.CasesReviewedBetween(ctx, start, end)
	if err != nil {
		return err
	}

	var decisions []Decision
	for _, c := range cases {
		// The newest published review updated inside the window carries
		// the decision, even when a fresh draft has been opened since.
		review := publishedReviewBetween(&c, start, end)
		if review == nil {
			continue
		}

		signals, err := r.store.GetSignalsByIDs(ctx, c.SignalIDs)
		if err != nil {
			return err
		}
		for _, sig := range signals {
			for _, src := range sig.Sources {
				if src.Name == imp.SignalSource() && src.SourceSignalID != "" && !src.IsRedacted {
					decisions = append(decisions, Decision{
						SourceSignalID: src.SourceSignalID,
						Verdict:        review.Decision,
					})
				}
			}
		}
	}

	if len(decisions) == 0 {
		return nil
	}

	cfg := r.retry
	cfg.OnRetry = resilience.LogRetries(string(imp.Source()), "send decisions")
	for _, batch := range chunk.Slice(decisions, decisionBatchSize) {
		err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
			return imp.SendDecisions(ctx, batch)
		})
		if err != nil {
			r.log.Warn("dropping decision batch after retries",
				zap.String("source", string(imp.Source())),
				zap.Int("batch_size", len(batch)),
				zap.Error(err))
		}
	}
	return nil
}

// publishedReviewBetween returns the newest published review with a
// decision whose update time falls in [start, end), or nil.
func publishedReviewBetween(c *model.Case, start, end time.Time) *model.Review {
	for i := len(c.ReviewHistory) - 1; i >= 0; i-- {
		rv := &c.ReviewHistory[i]
		if rv.State != model.ReviewStatePublished || rv.Decision == "" {
			continue
		}
		if rv.UpdateTime.Before(start) || !rv.UpdateTime.Before(end) {
			continue
		}
		return rv
	}
	return nil
}
