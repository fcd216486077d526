package model

import "time"

// JobStatus is the terminal or in-flight state of an importer run.
type JobStatus string

const (
	JobInProgress JobStatus = "IN_PROGRESS"
	JobSuccess    JobStatus = "SUCCESS"
	JobFailure    JobStatus = "FAILURE"
	// JobUnknown marks a job whose importer went away without closing it
	// cleanly. Orphaned jobs are surfaced rather than silently dropped.
	JobUnknown JobStatus = "UNKNOWN"
)

// JobType distinguishes kinds of bookkeeping jobs.
type JobType string

const (
	JobTypeSignalImport JobType = "SIGNAL_IMPORT"
	JobTypeUnknown      JobType = "UNKNOWN"
)

// SourceType names a configured importer source.
type SourceType string

const (
	SourceTypeFeedAPI  SourceType = "FEED_API"
	SourceTypeFeedFile SourceType = "FEED_FILE"
	SourceTypeUnknown  SourceType = "UNKNOWN"
)

// Job records one importer run: what it touched and where in the upstream
// feed it got to. ContinuationToken points at the page currently being
// applied; LastSuccessfulContinuationToken is promoted one page behind, so
// a crashed run replays at most one fully-or-partially applied page.
type Job struct {
	ID         string     `json:"id"`
	Status     JobStatus  `json:"status"`
	Type       JobType    `json:"type"`
	Source     SourceType `json:"source"`
	StartTime  time.Time  `json:"start_time"`
	ImportSize int        `json:"import_size"`
	UpdateSize int        `json:"update_size"`
	DeleteSize int        `json:"delete_size"`

	ContinuationToken               string `json:"continuation_token,omitempty"`
	LastSuccessfulContinuationToken string `json:"last_successful_continuation_token,omitempty"`
}

// End closes the job. A job still IN_PROGRESS at close time was never moved
// to a resting state, which means something unexpected happened; it is
// marked UNKNOWN for orphan detection.
func (j *Job) End() {
	if j.Status == JobInProgress {
		j.Status = JobUnknown
	}
}
