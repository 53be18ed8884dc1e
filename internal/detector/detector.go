// Package detector holds the read-only rule sets that turn a record
// snapshot into scored issue candidates. Detectors never touch storage and
// iterate in id order so that identical snapshots yield identical output.
package detector

import (
	"sort"

	"github.com/heartmarshall/treecleaner/internal/domain"
)

// Config carries the tunables that are not fixed scoring constants.
type Config struct {
	MediaSizeBump float64
}

// DefaultConfig returns the production tunables.
func DefaultConfig() Config {
	return Config{MediaSizeBump: DefaultMediaSizeBump}
}

// Detector is one independent rule set.
type Detector interface {
	Name() string
	Detect(snap *domain.Snapshot) []domain.Candidate
}

// All returns every detector in scan order. dates may be nil, in which case
// a fresh Dates detector without a parse cache is used.
func All(cfg Config, dates *Dates) []Detector {
	if dates == nil {
		dates = NewDates(nil)
	}
	return []Detector{
		PersonDuplicates{},
		FamilyDuplicates{},
		MediaDuplicates{SizeBump: cfg.MediaSizeBump},
		Places{},
		dates,
		Integrity{},
	}
}

func sortedIDs(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func ordered(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}

func intPtr(v int) *int { return &v }

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
