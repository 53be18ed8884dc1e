package scan

import (
	"context"
	"fmt"
	"math"

	"github.com/heartmarshall/treecleaner/internal/domain"
)

// Summary score weights. The components sum to 1 and the score is scaled to 0..100.
const (
	weightDates      = 0.4
	weightDuplicates = 0.3
	weightPlaces     = 0.2
	weightIntegrity  = 0.1
)

// Summary builds the dashboard view from open issue counts and date coverage.
func (s *Service) Summary(ctx context.Context) (domain.Summary, error) {
	var (
		open  map[domain.IssueType]int
		stats domain.DateStats
	)
	err := s.tx.RunReadOnly(ctx, func(txCtx context.Context) error {
		var err error
		open, err = s.issues.CountOpenByType(txCtx)
		if err != nil {
			return fmt.Errorf("count open issues: %w", err)
		}
		stats, err = s.snapshots.DateStats(txCtx)
		if err != nil {
			return fmt.Errorf("date stats: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Summary{}, err
	}
	return buildSummary(open, stats), nil
}

func buildSummary(open map[domain.IssueType]int, stats domain.DateStats) domain.Summary {
	var sum domain.Summary
	for t, n := range open {
		switch {
		case t.IsDuplicate():
			sum.UnresolvedDuplicates += n
		case t.IsIntegrity():
			sum.IntegrityWarnings += n
		}
	}
	sum.PlaceClusters = open[domain.IssuePlaceCluster]
	sum.StandardizationSuggestions = open[domain.IssuePlaceCluster] +
		open[domain.IssuePlaceSimilarity] +
		open[domain.IssueDateNormalization]

	sum.StandardizedDatesPct = round1(stats.StandardizedPct())
	score := weightDates*(sum.StandardizedDatesPct/100) +
		weightDuplicates/(1+float64(sum.UnresolvedDuplicates)) +
		weightPlaces/(1+float64(sum.PlaceClusters)) +
		weightIntegrity/(1+float64(sum.IntegrityWarnings))
	sum.DataQualityScore = round1(score * 100)
	return sum
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
