// Package importer pulls known-bad content signals from partner feeds into
// the signal store. Each source implements the Importer contract; the
// Runner wraps a run in a Job, applies fetched signals with merge
// semantics, and tracks continuation tokens so a crashed run replays at
// most one page.
package importer

import (
	"context"
	"errors"
	"iter"

	"github.com/sells-group/signal-service/internal/model"
)

var (
	// ErrPreCheck marks invalid credentials or configuration, fatal for
	// the run and surfaced to the caller.
	ErrPreCheck = errors.New("importer: pre-check failed")

	// ErrSourceResponse marks a transient upstream failure. Fetches are
	// retried with bounded backoff before this becomes fatal for the run.
	ErrSourceResponse = errors.New("importer: bad source response")

	// ErrImporterLoad marks a disabled or unconfigured importer. Runs are
	// skipped with a warning, not failed.
	ErrImporterLoad = errors.New("importer: not loadable")
)

// Action says what to do with a fetched signal.
type Action int

const (
	// ActionUpsert inserts the signal or merges it into an existing one
	// with the same primary content.
	ActionUpsert Action = iota

	// ActionDelete redacts this source from the existing signal, if any.
	ActionDelete
)

// Item is one fetched signal plus the action the feed asks for.
type Item struct {
	Signal model.Signal
	Action Action
}

// Page is one feed page. Token resumes the feed at this page; an empty
// token means the feed's first page. The runner records the token on the
// job while the page is being applied.
type Page struct {
	Items []Item
	Token string
}

// Decision reports a moderator verdict back to the source that supplied
// the signal, keyed by the source's own signal identifier.
type Decision struct {
	SourceSignalID string         `json:"id"`
	Verdict        model.Decision `json:"decision"`
}

// Importer is the contract a concrete source adapter fulfills.
type Importer interface {
	// Source names the configured source this importer serves.
	Source() model.SourceType

	// SignalSource is the provenance name stamped on imported signals.
	SignalSource() model.SourceName

	// PreCheck validates credentials and configuration before a run. A
	// failure wraps ErrPreCheck.
	PreCheck(ctx context.Context) error

	// Pages streams feed pages starting at the resume token (empty =
	// first page). The sequence is lazy; fetch failures surface as the
	// second element and end the stream.
	Pages(ctx context.Context, resume string) iter.Seq2[*Page, error]

	// SendDecisions reports one batch of review decisions upstream.
	SendDecisions(ctx context.Context, decisions []Decision) error
}
