package model

import "time"

// CaseState describes whether a case still needs review work.
type CaseState string

const (
	CaseStateActive   CaseState = "ACTIVE"
	CaseStateResolved CaseState = "RESOLVED"
)

// ReviewState describes the lifecycle of a single review.
type ReviewState string

const (
	ReviewStateUnknown   ReviewState = "UNKNOWN"
	ReviewStateDraft     ReviewState = "DRAFT"
	ReviewStatePublished ReviewState = "PUBLISHED"
)

// Decision is the moderator's verdict on a case.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionBlock   Decision = "BLOCK"
)

// DeliveryStatus tracks whether the decision reached the action receiver.
type DeliveryStatus string

const (
	DeliveryPending  DeliveryStatus = "PENDING"
	DeliveryAccepted DeliveryStatus = "ACCEPTED"
	DeliveryFailed   DeliveryStatus = "FAILED"
)

// Review is a single moderation decision on a case. Reviews are created as
// drafts and published asynchronously after a grace period; published
// reviews cannot be deleted.
type Review struct {
	ID             string         `json:"id"`
	CreateTime     time.Time      `json:"create_time"`
	UpdateTime     time.Time      `json:"update_time"`
	State          ReviewState    `json:"state"`
	Decision       Decision       `json:"decision,omitempty"`
	User           string         `json:"user,omitempty"`
	DeliveryStatus DeliveryStatus `json:"delivery_status"`
}

// Case groups the signals that flagged one piece of submitted content and
// carries the review work done on it. A case without a target represents a
// "match without target": a URL signal we want reviewed even though the
// platform never submitted matching content.
type Case struct {
	ID            string    `json:"id"`
	SignalIDs     []string  `json:"signal_ids"`
	TargetID      string    `json:"target_id,omitempty"`
	CreateTime    time.Time `json:"create_time"`
	State         CaseState `json:"state"`
	ReviewHistory []Review  `json:"review_history,omitempty"`
	Notes         string    `json:"notes,omitempty"`

	// Denormalized scores, recomputed on every save. Only database ordering
	// queries should read these; use prioritize.Score for live values.
	CachedConfidence int `json:"confidence"`
	CachedSeverity   int `json:"severity"`
	CachedPriority   int `json:"priority"`
}

// LatestReview returns the most recent review, or nil if none exist.
func (c *Case) LatestReview() *Review {
	if len(c.ReviewHistory) == 0 {
		return nil
	}
	return &c.ReviewHistory[len(c.ReviewHistory)-1]
}

// ReviewByID looks up a review in the case history.
func (c *Case) ReviewByID(id string) *Review {
	for i := range c.ReviewHistory {
		if c.ReviewHistory[i].ID == id {
			return &c.ReviewHistory[i]
		}
	}
	return nil
}

// DeriveState recomputes the case state from its review history: a case is
// resolved exactly when its latest review is a draft or published.
func (c *Case) DeriveState() {
	latest := c.LatestReview()
	if latest != nil && (latest.State == ReviewStateDraft || latest.State == ReviewStatePublished) {
		c.State = CaseStateResolved
		return
	}
	c.State = CaseStateActive
}
