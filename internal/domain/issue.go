package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Issue is one detected data-quality problem. Issues are never deleted.
type Issue struct {
	ID          uuid.UUID
	IssueType   IssueType
	Severity    Severity
	EntityType  EntityType
	EntityIDs   []int64
	DedupKey    string
	Status      IssueStatus
	Confidence  float64
	ImpactScore float64
	Explanation Explanation
	DetectedAt  time.Time
	ResolvedAt  *time.Time
	UpdatedAt   time.Time
}

// Candidate is an issue as produced by a detector, before it is matched
// against stored issues.
type Candidate struct {
	IssueType   IssueType
	Severity    Severity
	EntityType  EntityType
	EntityIDs   []int64
	DedupKey    string
	Confidence  float64
	ImpactScore float64
	Explanation Explanation
}

// SameFindings reports whether the stored issue already carries the
// candidate's scoring and explanation.
func (i *Issue) SameFindings(c Candidate) bool {
	if i.Severity != c.Severity || i.Confidence != c.Confidence || i.ImpactScore != c.ImpactScore {
		return false
	}
	if len(i.EntityIDs) != len(c.EntityIDs) {
		return false
	}
	for k := range i.EntityIDs {
		if i.EntityIDs[k] != c.EntityIDs[k] {
			return false
		}
	}
	a, errA := EncodeExplanation(i.Explanation)
	b, errB := EncodeExplanation(c.Explanation)
	return errA == nil && errB == nil && string(a) == string(b)
}

// PairKey builds the dedup key for an unordered pair of records.
func PairKey(t IssueType, a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%s:%d:%d", t, a, b)
}

// IDsKey builds the dedup key for an unordered id set.
func IDsKey(t IssueType, ids ...int64) string {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return string(t) + ":" + strings.Join(parts, ":")
}

// IssueFilter narrows ListIssues. Zero values mean "any".
type IssueFilter struct {
	Type   IssueType
	Status IssueStatus
	Limit  int
	Offset int
}

// ScanResult summarizes one scan. It is returned to the caller and never
// retained by the engine.
type ScanResult struct {
	Incremental bool
	Counts      map[IssueType]int
	Created     int
	Updated     int
	Reopened    int
	Resolved    int
	StartedAt   time.Time
	Duration    time.Duration
}

// Summary is the dashboard view over stored issues and record dates.
type Summary struct {
	DataQualityScore           float64
	StandardizedDatesPct       float64
	UnresolvedDuplicates       int
	PlaceClusters              int
	IntegrityWarnings          int
	StandardizationSuggestions int
}

// DateStats counts non-empty raw dates and how many of them already carry a
// canonical value.
type DateStats struct {
	Total        int
	Standardized int
}

// StandardizedPct returns the share of standardized dates as a percentage.
// With no dates at all the tree counts as fully standardized.
func (s DateStats) StandardizedPct() float64 {
	if s.Total == 0 {
		return 100
	}
	return float64(s.Standardized) / float64(s.Total) * 100
}
