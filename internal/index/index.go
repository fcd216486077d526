// Package index provides in-memory similarity indices over signal content
// hashes, rebuilt wholesale on a schedule and persisted as opaque
// snapshots. Readers always load a fully-built snapshot; builders never
// mutate one in place.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/signal-service/internal/hashing"
	"github.com/sells-group/signal-service/internal/model"
	"github.com/sells-group/signal-service/internal/store"
)

var (
	// ErrIndexNotFound is returned by Load when no snapshot has been
	// persisted for the family yet (e.g., before the first rebuild).
	ErrIndexNotFound = errors.New("index: snapshot not found")

	// ErrNotBuilt is returned when querying or saving an index that has
	// not been built or loaded.
	ErrNotBuilt = errors.New("index: not built")
)

// Family identifies a hash family. Each family has its own snapshot and
// its own distance semantics.
type Family string

const (
	// FamilyDCT indexes 256-bit perceptual hashes matched by hamming
	// distance.
	FamilyDCT Family = "dct"

	// FamilyMD5 indexes exact cryptographic digests (distance 0 only).
	FamilyMD5 Family = "md5"
)

// dctThreshold is the maximum hamming distance considered a match for the
// perceptual family.
const dctThreshold = 31

func (f Family) contentType() model.ContentType {
	switch f {
	case FamilyDCT:
		return model.ContentTypeHashDCT
	case FamilyMD5:
		return model.ContentTypeHashMD5
	default:
		return model.ContentTypeUnknown
	}
}

// Match is one index hit: a stored hash value, the signals that carry it,
// and its distance from the queried value.
type Match struct {
	Value     string
	Distance  int
	SignalIDs []string
}

// SnapshotStore is the slice of the persistence layer the index needs.
type SnapshotStore interface {
	SaveIndexSnapshot(ctx context.Context, name string, blob []byte) error
	LoadIndexSnapshot(ctx context.Context, name string) ([]byte, error)
}

// Index maps content hash values of one family to the signal IDs that
// carry them.
type Index struct {
	family  Family
	entries map[string][]string
	built   bool
}

// New returns an empty, unbuilt index for the given family.
func New(family Family) *Index {
	return &Index{family: family}
}

// Family returns the hash family this index serves.
func (ix *Index) Family() Family {
	return ix.family
}

// Build populates the index from the content items of the given signals,
// keeping only items whose content type matches the index family. Build
// replaces any previous contents.
func (ix *Index) Build(signals []model.Signal) {
	want := ix.family.contentType()
	entries := make(map[string][]string)
	for _, sig := range signals {
		for _, c := range sig.Content {
			if c.ContentType != want || c.Value == "" || sig.ID == "" {
				continue
			}
			if !containsString(entries[c.Value], sig.ID) {
				entries[c.Value] = append(entries[c.Value], sig.ID)
			}
		}
	}
	ix.entries = entries
	ix.built = true
}

// Query returns matches for value, nearest-first. The sequence is lazy and
// finite; an empty sequence (not an error) means nothing is within the
// family's distance threshold.
func (ix *Index) Query(value string) (iter.Seq[Match], error) {
	if !ix.built {
		return nil, ErrNotBuilt
	}

	switch ix.family {
	case FamilyMD5:
		return ix.queryExact(value), nil
	case FamilyDCT:
		return ix.queryNearest(value)
	default:
		return nil, eris.Errorf("index: unknown family %q", ix.family)
	}
}

func (ix *Index) queryExact(value string) iter.Seq[Match] {
	return func(yield func(Match) bool) {
		ids, ok := ix.entries[value]
		if !ok {
			return
		}
		yield(Match{Value: value, Distance: 0, SignalIDs: ids})
	}
}

func (ix *Index) queryNearest(value string) (iter.Seq[Match], error) {
	q, err := hashing.Parse(value)
	if err != nil {
		return nil, eris.Wrap(err, "index: query value")
	}

	// Linear scan. The signal corpus is small enough that a full pass is
	// cheaper than maintaining a metric tree across rebuilds.
	matches := make([]Match, 0)
	for stored, ids := range ix.entries {
		h, err := hashing.Parse(stored)
		if err != nil {
			continue
		}
		if d := hashing.Distance(q, h); d <= dctThreshold {
			matches = append(matches, Match{Value: stored, Distance: d, SignalIDs: ids})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Value < matches[j].Value
	})

	return func(yield func(Match) bool) {
		for _, m := range matches {
			if !yield(m) {
				return
			}
		}
	}, nil
}

// snapshot is the persisted wire form of a built index.
type snapshot struct {
	Family  Family              `json:"family"`
	Entries map[string][]string `json:"entries"`
}

// Save persists the built index as a snapshot keyed by its family name.
func (ix *Index) Save(ctx context.Context, s SnapshotStore) error {
	if !ix.built {
		return ErrNotBuilt
	}
	blob, err := json.Marshal(snapshot{Family: ix.family, Entries: ix.entries})
	if err != nil {
		return eris.Wrap(err, "index: marshal snapshot")
	}
	if err := s.SaveIndexSnapshot(ctx, string(ix.family), blob); err != nil {
		return eris.Wrapf(err, "index: save snapshot %q", ix.family)
	}
	return nil
}

// Load restores the most recently saved index for the family. It returns
// ErrIndexNotFound when no snapshot exists yet.
func Load(ctx context.Context, s SnapshotStore, family Family) (*Index, error) {
	blob, err := s.LoadIndexSnapshot(ctx, string(family))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrIndexNotFound
		}
		return nil, eris.Wrapf(err, "index: load snapshot %q", family)
	}

	var snap snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return nil, eris.Wrapf(err, "index: unmarshal snapshot %q", family)
	}
	if snap.Entries == nil {
		snap.Entries = make(map[string][]string)
	}
	return &Index{family: family, entries: snap.Entries, built: true}, nil
}

func containsString(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
