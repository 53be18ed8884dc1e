package detector

import (
	"sort"

	"github.com/heartmarshall/treecleaner/internal/domain"
	"github.com/heartmarshall/treecleaner/internal/similarity"
)

// Duplicate-person scoring weights.
const (
	PersonNameFloor       = 0.68
	PersonEmitThreshold   = 0.55
	PersonBirthYearBonus  = 0.25
	PersonDeathYearBonus  = 0.10
	PersonBirthPlaceBonus = 0.15
	PersonYearTolerance   = 1
)

// PersonDuplicates flags pairs of persons in the same surname bucket.
type PersonDuplicates struct{}

func (PersonDuplicates) Name() string { return "duplicate_person" }

// PersonPairScore is the breakdown of one scored pair.
type PersonPairScore struct {
	NameSimilarity  float64
	BirthDelta      *int
	DeathDelta      *int
	BirthPlaceMatch bool
	Score           float64
}

// ScorePersons scores a pair. ok is false when the name floor rejects it.
// The pair is ordered by id first, so ScorePersons(a,b) == ScorePersons(b,a).
func ScorePersons(a, b *domain.Person) (PersonPairScore, bool) {
	if b.ID < a.ID {
		a, b = b, a
	}

	var s PersonPairScore
	s.NameSimilarity = similarity.NameSimilarity(a.FullName(), b.FullName())
	if s.NameSimilarity < PersonNameFloor {
		return s, false
	}
	s.Score = s.NameSimilarity

	if d, ok := similarity.YearDelta(a.BirthDateValue(), b.BirthDateValue()); ok {
		s.BirthDelta = intPtr(d)
		if d <= PersonYearTolerance {
			s.Score += PersonBirthYearBonus
		}
	}
	if d, ok := similarity.YearDelta(a.DeathDateValue(), b.DeathDateValue()); ok {
		s.DeathDelta = intPtr(d)
		if d <= PersonYearTolerance {
			s.Score += PersonDeathYearBonus
		}
	}

	pa, pb := similarity.TokenNormalize(a.BirthPlace), similarity.TokenNormalize(b.BirthPlace)
	if pa != "" && pa == pb {
		s.BirthPlaceMatch = true
		s.Score += PersonBirthPlaceBonus
	}
	return s, true
}

func (PersonDuplicates) Detect(snap *domain.Snapshot) []domain.Candidate {
	buckets := make(map[string][]*domain.Person)
	for i := range snap.Persons {
		p := &snap.Persons[i]
		key := similarity.NormalizeName(p.Surname)
		if key == "" {
			continue
		}
		buckets[key] = append(buckets[key], p)
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []domain.Candidate
	for _, k := range keys {
		bucket := buckets[k]
		sort.Slice(bucket, func(i, j int) bool { return bucket[i].ID < bucket[j].ID })
		for i := 0; i < len(bucket); i++ {
			for j := i + 1; j < len(bucket); j++ {
				a, b := bucket[i], bucket[j]
				s, ok := ScorePersons(a, b)
				if !ok || s.Score < PersonEmitThreshold {
					continue
				}
				out = append(out, domain.Candidate{
					IssueType:   domain.IssueDuplicatePerson,
					Severity:    domain.SeverityWarning,
					EntityType:  domain.EntityPerson,
					EntityIDs:   []int64{a.ID, b.ID},
					DedupKey:    domain.PairKey(domain.IssueDuplicatePerson, a.ID, b.ID),
					Confidence:  clamp01(s.Score),
					ImpactScore: 1,
					Explanation: domain.DuplicatePersonExplanation{
						Names:           [2]string{a.FullName(), b.FullName()},
						NameSimilarity:  s.NameSimilarity,
						BirthDates:      [2]string{a.BirthDateValue(), b.BirthDateValue()},
						BirthDelta:      s.BirthDelta,
						DeathDelta:      s.DeathDelta,
						BirthPlaces:     [2]string{a.BirthPlace, b.BirthPlace},
						BirthPlaceMatch: s.BirthPlaceMatch,
						Score:           s.Score,
					},
				})
			}
		}
	}
	return out
}
