// Package prioritize computes the confidence, severity, and priority scores
// used to rank case review work.
package prioritize

import "github.com/sells-group/signal-service/internal/model"

// Feature score per level.
const (
	scoreLow    = 1
	scoreMedium = 2
	scoreHigh   = 3
)

// MaxSeverity boosts signals carrying a max-severity tag above every
// combination of ordinary feature scores.
const MaxSeverity = scoreHigh*2 + 1

// MaxPriority is the highest priority any case can reach.
const MaxPriority = MaxSeverity + scoreHigh

// UnscoredPriority marks cases for which no priority could be calculated.
// The distinct numeric value lets unscored cases be ordered alongside and
// after real scores in a priority-descending listing.
const UnscoredPriority = -1

// Priority level lower bounds: LOW [1,2], MEDIUM [3,4], HIGH [5+].
const (
	priorityHighMin   = 5
	priorityMediumMin = 3
)

// Level buckets a numeric score for display and filtering.
type Level string

const (
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

// trustedSources corroborate a signal on their own.
var trustedSources = map[model.SourceName]bool{
	model.SourceTCAP: true,
}

var maxSeverityTags = map[string]bool{
	"media_priority_s3": true,
}

var highSeverityTags = map[string]bool{
	"cat:am":                true,
	"cat:irf":               true,
	"media_priority_crisis": true,
}

var mediumSeverityTags = map[string]bool{
	"media_priority_s0": true,
	"media_priority_s1": true,
	"media_priority_s2": true,
}

// Confidence scores how likely the case's content is to actually be
// violating, in [0, 3], taking the maximum across the given signals. The
// second return is false when there are no signals to score.
func Confidence(signals []model.Signal) (int, bool) {
	if len(signals) == 0 {
		return 0, false
	}
	best := 0
	for i := range signals {
		if c := signalConfidence(&signals[i]); c > best {
			best = c
		}
	}
	return best, true
}

func signalConfidence(sig *model.Signal) int {
	var trust, declared float64
	if sig.ContentFeatures != nil {
		trust = sig.ContentFeatures.Trust
		declared = sig.ContentFeatures.Confidence
	}

	names := map[model.SourceName]bool{}
	trusted := false
	for _, src := range sig.Sources {
		names[src.Name] = true
		if trustedSources[src.Name] {
			trusted = true
		}
	}

	switch {
	case len(names) > 1 || trusted || trust > 0.7:
		return scoreHigh
	case (trust > 0.5 && trust <= 0.7) || declared >= 0.5:
		return scoreMedium
	case declared > 0.1:
		return scoreLow
	}
	return 0
}

// Severity scores how quickly action is required, in [0, 7], taking the
// maximum across the given signals. The second return is false when there
// are no signals to score.
func Severity(signals []model.Signal) (int, bool) {
	if len(signals) == 0 {
		return 0, false
	}
	best := 0
	for i := range signals {
		if s := signalSeverity(&signals[i]); s > best {
			best = s
		}
	}
	return best, true
}

func signalSeverity(sig *model.Signal) int {
	features := sig.ContentFeatures
	if features == nil {
		return 0
	}
	switch {
	case hasAnyTag(features.Tags, maxSeverityTags):
		return MaxSeverity
	case len(features.AssociatedEntities) > 1 ||
		features.IsViolentOrGraphic == model.FlagYes ||
		hasAnyTag(features.Tags, highSeverityTags):
		return scoreHigh
	case features.ContainsPII == model.FlagYes || hasAnyTag(features.Tags, mediumSeverityTags):
		return scoreMedium
	case features.ContainsPII == model.FlagUnsure || features.IsViolentOrGraphic == model.FlagUnsure:
		return scoreLow
	}
	return 0
}

func hasAnyTag(tags []string, set map[string]bool) bool {
	for _, tag := range tags {
		if set[tag] {
			return true
		}
	}
	return false
}

// Priority combines confidence and severity. When neither carries any
// score the case is unscored and gets the sentinel value.
func Priority(confidence, severity int) int {
	if confidence == 0 && severity == 0 {
		return UnscoredPriority
	}
	return confidence + severity
}

// Apply recomputes the case's denormalized score fields from its signals.
// Callers must invoke this before every case save so that database
// ordering stays consistent with live scores.
func Apply(c *model.Case, signals []model.Signal) {
	confidence, _ := Confidence(signals)
	severity, _ := Severity(signals)
	c.CachedConfidence = confidence
	c.CachedSeverity = severity
	c.CachedPriority = Priority(confidence, severity)
}

// ConfidenceLevel buckets a confidence score.
func ConfidenceLevel(confidence int) Level {
	switch {
	case confidence >= scoreHigh:
		return LevelHigh
	case confidence == scoreMedium:
		return LevelMedium
	}
	return LevelLow
}

// SeverityLevel buckets a severity score.
func SeverityLevel(severity int) Level {
	switch {
	case severity >= scoreHigh:
		return LevelHigh
	case severity >= scoreMedium:
		return LevelMedium
	}
	return LevelLow
}

// PriorityLevel buckets a priority score. The second return is false for
// unscored cases, which have no level.
func PriorityLevel(priority int) (Level, bool) {
	if priority == UnscoredPriority {
		return "", false
	}
	switch {
	case priority >= priorityHighMin:
		return LevelHigh, true
	case priority >= priorityMediumMin:
		return LevelMedium, true
	}
	return LevelLow, true
}
