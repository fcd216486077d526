package model

import (
	"reflect"
	"time"

	"github.com/rotisserie/eris"
)

// RedactedValue replaces a signal's content once every source has been
// redacted.
const RedactedValue = "[REDACTED]"

// ErrSourceNotFound is returned by Signal.Redact when the named source does
// not exist on the signal.
var ErrSourceNotFound = eris.New("model: source not found")

// ContentType classifies a single content item on a signal.
type ContentType string

const (
	ContentTypeURL     ContentType = "URL"
	ContentTypeHashDCT ContentType = "HASH_DCT"
	ContentTypeHashMD5 ContentType = "HASH_MD5"
	ContentTypeAPI     ContentType = "API"
	ContentTypeUnknown ContentType = "UNKNOWN"
)

// SourceName identifies which feed or analyzer contributed a signal.
type SourceName string

const (
	SourceUnknown     SourceName = "UNKNOWN"
	SourceTCAP        SourceName = "TCAP"
	SourceGIFCT       SourceName = "GIFCT"
	SourceUserReport  SourceName = "USER_REPORT"
	SourceSafeSearch  SourceName = "SAFE_SEARCH"
	SourcePerspective SourceName = "PERSPECTIVE"
)

// Flag is a tri-state answer. The zero value means the question was never
// answered.
type Flag string

const (
	FlagYes    Flag = "YES"
	FlagNo     Flag = "NO"
	FlagUnsure Flag = "UNSURE"
)

// ContentStatusValue describes the last observed state of the content
// behind a signal.
type ContentStatusValue string

const (
	StatusUnknown            ContentStatusValue = "UNKNOWN"
	StatusActive             ContentStatusValue = "ACTIVE"
	StatusRemovedByUser      ContentStatusValue = "REMOVED_BY_USER"
	StatusRemovedByModerator ContentStatusValue = "REMOVED_BY_MODERATOR"
	StatusUnavailable        ContentStatusValue = "UNAVAILABLE"
)

// Verifier identifies who last checked the content status.
type Verifier string

const (
	VerifierUnknown  Verifier = "UNKNOWN"
	VerifierTCAP     Verifier = "TCAP"
	VerifierInternal Verifier = "INTERNAL"
)

// Content is a single (value, type) pair on a signal: a URL, a hash digest,
// or an API reference.
type Content struct {
	Value       string      `json:"value"`
	ContentType ContentType `json:"content_type"`
}

// Source records the provenance of a signal: which feed reported it, when,
// and under what upstream identifier.
type Source struct {
	Name           SourceName `json:"name"`
	Author         string     `json:"author,omitempty"`
	SourceSignalID string     `json:"source_signal_id,omitempty"`
	ReportDate     *time.Time `json:"report_date,omitempty"`
	IsRedacted     bool       `json:"is_redacted"`
}

// ContentStatus describes the most recent verification of the content.
type ContentStatus struct {
	LastCheckedDate  *time.Time         `json:"last_checked_date,omitempty"`
	MostRecentStatus ContentStatusValue `json:"most_recent_status"`
	Verifier         Verifier           `json:"verifier"`
}

// Before reports whether s was checked strictly earlier than other. Times
// without a location are treated as UTC; an unset date sorts as oldest.
func (s ContentStatus) Before(other ContentStatus) bool {
	if other.LastCheckedDate == nil {
		return false
	}
	if s.LastCheckedDate == nil {
		return true
	}
	return normalizeUTC(*s.LastCheckedDate).Before(normalizeUTC(*other.LastCheckedDate))
}

func normalizeUTC(t time.Time) time.Time {
	if t.Location() == nil {
		return t.UTC()
	}
	return t.In(time.UTC)
}

// ContentFeatures holds descriptive attributes of a signal's content. Zero
// values mean the attribute was never provided.
type ContentFeatures struct {
	Description          string   `json:"description,omitempty"`
	Trust                float64  `json:"trust,omitempty"`
	Confidence           float64  `json:"confidence,omitempty"`
	AssociatedEntities   []string `json:"associated_entities,omitempty"`
	ContainsPII          Flag     `json:"contains_pii,omitempty"`
	IsViolentOrGraphic   Flag     `json:"is_violent_or_graphic,omitempty"`
	IsIllegalInCountries []string `json:"is_illegal_in_countries,omitempty"`
	Tags                 []string `json:"tags,omitempty"`
}

// Signal is one piece of known-bad content: its values, where it came from,
// and what we know about it. The ID is store-assigned; every other field is
// part of the signal's structural identity.
type Signal struct {
	ID              string           `json:"id,omitempty"`
	Content         []Content        `json:"content"`
	Sources         []Source         `json:"sources"`
	ContentFeatures *ContentFeatures `json:"content_features,omitempty"`
	ContentStatus   *ContentStatus   `json:"content_status,omitempty"`
}

// PrimaryContent returns the first content value. Freshly imported signals
// carry exactly one content item, which is used as the lookup key.
func (s *Signal) PrimaryContent() string {
	if len(s.Content) == 0 {
		return ""
	}
	return s.Content[0].Value
}

// IsURLOnly reports whether the signal consists of a single URL content
// item, which makes it a candidate for hash enrichment.
func (s *Signal) IsURLOnly() bool {
	return len(s.Content) == 1 && s.Content[0].ContentType == ContentTypeURL
}

// IsRedacted reports whether every source on the signal has been redacted.
func (s *Signal) IsRedacted() bool {
	for _, src := range s.Sources {
		if !src.IsRedacted {
			return false
		}
	}
	return true
}

// Equal compares two signals structurally, ignoring the store-assigned ID.
func (s *Signal) Equal(other *Signal) bool {
	if other == nil {
		return false
	}
	a, b := *s, *other
	a.ID, b.ID = "", ""
	return reflect.DeepEqual(a, b)
}

// Redact marks the named source as redacted. Once all sources are redacted
// the signal's content collapses to the redaction sentinel. Partial
// redaction never alters content.
func (s *Signal) Redact(name SourceName) error {
	found := false
	for i := range s.Sources {
		if s.Sources[i].Name == name {
			s.Sources[i].IsRedacted = true
			found = true
			break
		}
	}
	if !found {
		return eris.Wrapf(ErrSourceNotFound, "no source named %q", name)
	}
	if s.IsRedacted() {
		s.Content = []Content{{Value: RedactedValue, ContentType: ContentTypeUnknown}}
	}
	return nil
}

// Merge folds other into s in place, defaulting to s on conflict. Known
// sources only gain attributes they were missing; unknown sources are
// appended. The content status is replaced only by a descriptive, strictly
// more recent one. Feature attributes are adopted only where s has none.
func (s *Signal) Merge(other *Signal) {
	if other == nil {
		return
	}
	if s.ID == "" {
		s.ID = other.ID
	}

	for _, src := range other.Sources {
		existing := s.sourceByName(src.Name)
		if existing == nil {
			s.Sources = append(s.Sources, src)
			continue
		}
		if existing.Author == "" {
			existing.Author = src.Author
		}
		if existing.SourceSignalID == "" {
			existing.SourceSignalID = src.SourceSignalID
		}
		if existing.ReportDate == nil {
			existing.ReportDate = src.ReportDate
		}
	}

	if shouldReplaceStatus(s.ContentStatus, other.ContentStatus) {
		status := *other.ContentStatus
		s.ContentStatus = &status
	}

	if other.ContentFeatures != nil {
		if s.ContentFeatures == nil {
			s.ContentFeatures = &ContentFeatures{}
		}
		mergeFeatures(s.ContentFeatures, other.ContentFeatures)
	}
}

func (s *Signal) sourceByName(name SourceName) *Source {
	for i := range s.Sources {
		if s.Sources[i].Name == name {
			return &s.Sources[i]
		}
	}
	return nil
}

func shouldReplaceStatus(current, incoming *ContentStatus) bool {
	// The incoming status must be descriptive.
	if incoming == nil || incoming.MostRecentStatus == StatusUnknown || incoming.MostRecentStatus == "" {
		return false
	}
	if current == nil {
		return true
	}
	return current.Before(*incoming)
}

func mergeFeatures(dst, src *ContentFeatures) {
	if dst.Description == "" {
		dst.Description = src.Description
	}
	if dst.Trust == 0 {
		dst.Trust = src.Trust
	}
	if dst.Confidence == 0 {
		dst.Confidence = src.Confidence
	}
	if len(dst.AssociatedEntities) == 0 {
		dst.AssociatedEntities = src.AssociatedEntities
	}
	if dst.ContainsPII == "" {
		dst.ContainsPII = src.ContainsPII
	}
	if dst.IsViolentOrGraphic == "" {
		dst.IsViolentOrGraphic = src.IsViolentOrGraphic
	}
	if len(dst.IsIllegalInCountries) == 0 {
		dst.IsIllegalInCountries = src.IsIllegalInCountries
	}
	if len(dst.Tags) == 0 {
		dst.Tags = src.Tags
	}
}
