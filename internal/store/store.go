// Package store persists signals, cases, targets, jobs and importer
// bookkeeping behind a driver-agnostic interface. Documents are stored as
// JSON with a handful of denormalized columns for lookup and ordering;
// Postgres backs production, SQLite backs local runs and tests.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sells-group/signal-service/internal/model"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("store: not found")

// SignalFilter specifies criteria for listing signals.
type SignalFilter struct {
	ContentType model.ContentType `json:"content_type,omitempty"`
	Limit       int               `json:"limit,omitempty"`
	Offset      int               `json:"offset,omitempty"`
}

// CaseQuery specifies criteria for listing cases. Results are ordered by
// (priority DESC, id ASC); Boundary and Backward drive keyset pagination.
type CaseQuery struct {
	State    model.CaseState `json:"state,omitempty"`
	SignalID string          `json:"signal_id,omitempty"`
	Limit    int             `json:"limit,omitempty"`

	// Boundary is the keyset anchor row. With Backward false the query
	// returns rows strictly after the boundary in presentation order;
	// with Backward true, rows strictly before it. Rows always come back
	// in presentation order regardless of direction.
	Boundary *CaseBoundary `json:"boundary,omitempty"`
	Backward bool          `json:"backward,omitempty"`
}

// CaseBoundary anchors a keyset page at one (priority, id) position.
type CaseBoundary struct {
	ID       string `json:"id"`
	Priority int    `json:"priority"`
}

// Store defines the persistence interface for the signal service.
type Store interface {
	// Signals
	CreateSignal(ctx context.Context, sig model.Signal) (*model.Signal, error)
	UpdateSignal(ctx context.Context, sig model.Signal) error
	GetSignal(ctx context.Context, id string) (*model.Signal, error)
	GetSignalByContent(ctx context.Context, value string) (*model.Signal, error)
	GetSignalsByIDs(ctx context.Context, ids []string) ([]model.Signal, error)
	ListSignals(ctx context.Context, filter SignalFilter) ([]model.Signal, error)

	// Cases
	CreateCase(ctx context.Context, c model.Case) (*model.Case, error)
	UpdateCase(ctx context.Context, c model.Case) error
	GetCase(ctx context.Context, id string) (*model.Case, error)
	ListCases(ctx context.Context, q CaseQuery) ([]model.Case, error)
	ActiveCaseForTarget(ctx context.Context, targetID string) (*model.Case, error)
	CasesReviewedBetween(ctx context.Context, start, end time.Time) ([]model.Case, error)

	// Targets
	CreateTarget(ctx context.Context, tgt model.Target) (*model.Target, error)
	UpdateTarget(ctx context.Context, tgt model.Target) error
	GetTarget(ctx context.Context, id string) (*model.Target, error)

	// Jobs
	CreateJob(ctx context.Context, job model.Job) (*model.Job, error)
	UpdateJob(ctx context.Context, job model.Job) error
	LatestSuccessfulToken(ctx context.Context, source model.SourceType) (string, error)
	MarkOrphanedJobs(ctx context.Context) (int, error)

	// Importer configs
	UpsertImporterConfigs(ctx context.Context, configs []model.ImporterConfig) error
	GetImporterConfig(ctx context.Context, source model.SourceType) (*model.ImporterConfig, error)
	ListImporterConfigs(ctx context.Context) ([]model.ImporterConfig, error)

	// Index snapshots
	SaveIndexSnapshot(ctx context.Context, name string, blob []byte) error
	LoadIndexSnapshot(ctx context.Context, name string) ([]byte, error)

	// Locks. AcquireLock returns false without error when a live lock is
	// held by someone else; ClearExpiredLocks is called on worker start so
	// a crashed holder cannot deadlock its source forever.
	AcquireLock(ctx context.Context, name, holder string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, holder string) error
	ClearExpiredLocks(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
