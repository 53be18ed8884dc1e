package detector

import (
	"sort"
	"strings"

	"github.com/heartmarshall/treecleaner/internal/domain"
	"github.com/heartmarshall/treecleaner/internal/similarity"
)

// Duplicate-family scoring weights.
const (
	FamilySpouseWeight       = 0.6
	FamilyDateWeight         = 0.2
	FamilyPlaceWeight        = 0.2
	FamilyDuplicateThreshold = 0.75
	FamilySwapThreshold      = 0.70
	FamilyPlaceSimilarFloor  = 0.8
)

// FamilyDuplicates flags family pairs whose spouses, marriage date and
// marriage place corroborate each other, in direct or swapped roles.
type FamilyDuplicates struct{}

func (FamilyDuplicates) Name() string { return "duplicate_family" }

// FamilyPairScore is the breakdown of one scored family pair.
type FamilyPairScore struct {
	SpouseSimilarity float64
	DateAgreement    float64
	PlaceAgreement   float64
	Swapped          bool
	Score            float64
}

// ScoreFamilies scores a pair of families in both role orientations and
// keeps the stronger one.
func ScoreFamilies(f, g *domain.Family, persons map[int64]*domain.Person) FamilyPairScore {
	if g.ID < f.ID {
		f, g = g, f
	}
	lookup := func(id *int64) *domain.Person {
		if id == nil {
			return nil
		}
		return persons[*id]
	}
	fh, fw := lookup(f.HusbandID), lookup(f.WifeID)
	gh, gw := lookup(g.HusbandID), lookup(g.WifeID)

	direct := spouseSimilarity([][2]*domain.Person{{fh, gh}, {fw, gw}})
	swapped := spouseSimilarity([][2]*domain.Person{{fh, gw}, {fw, gh}})

	s := FamilyPairScore{
		SpouseSimilarity: direct,
		DateAgreement:    dateAgreement(f.MarriageDateValue(), g.MarriageDateValue()),
		PlaceAgreement:   placeAgreement(f.MarriagePlace, g.MarriagePlace),
	}
	if swapped > direct {
		s.SpouseSimilarity = swapped
		s.Swapped = true
	}
	s.Score = FamilySpouseWeight*s.SpouseSimilarity + FamilyDateWeight*s.DateAgreement + FamilyPlaceWeight*s.PlaceAgreement
	return s
}

// spouseSimilarity averages name similarity over the comparable pairs.
// Identical person ids count as a perfect match.
func spouseSimilarity(pairs [][2]*domain.Person) float64 {
	var sum float64
	var n int
	for _, p := range pairs {
		if p[0] == nil || p[1] == nil {
			continue
		}
		n++
		if p[0].ID == p[1].ID {
			sum++
			continue
		}
		sum += similarity.NameSimilarity(p[0].FullName(), p[1].FullName())
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func dateAgreement(a, b string) float64 {
	if a != "" && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) {
		return 1
	}
	d, ok := similarity.YearDelta(a, b)
	switch {
	case !ok:
		return 0
	case d == 0:
		return 1
	case d <= 2:
		return 0.5
	}
	return 0
}

func placeAgreement(a, b string) float64 {
	ka, kb := similarity.TokenNormalize(a), similarity.TokenNormalize(b)
	if ka == "" || kb == "" {
		return 0
	}
	if ka == kb {
		return 1
	}
	if similarity.EditSimilarity(ka, kb) >= FamilyPlaceSimilarFloor {
		return 0.5
	}
	return 0
}

// familyBucketKey is the sorted set of spouse surnames; swapped roles land
// in the same bucket.
func familyBucketKey(f *domain.Family, persons map[int64]*domain.Person) string {
	var names []string
	for _, id := range f.SpouseIDs() {
		if p, ok := persons[id]; ok {
			if n := similarity.NormalizeName(p.Surname); n != "" {
				names = append(names, n)
			}
		}
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

func (FamilyDuplicates) Detect(snap *domain.Snapshot) []domain.Candidate {
	persons := snap.PersonIndex()

	buckets := make(map[string][]*domain.Family)
	for i := range snap.Families {
		f := &snap.Families[i]
		key := familyBucketKey(f, persons)
		if key == "" {
			continue
		}
		buckets[key] = append(buckets[key], f)
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
				f, g := bucket[i], bucket[j]
				s := ScoreFamilies(f, g, persons)

				issueType := domain.IssueDuplicateFamily
				threshold := FamilyDuplicateThreshold
				if s.Swapped {
					issueType = domain.IssueDuplicateFamilySpouseSwap
					threshold = FamilySwapThreshold
				}
				if s.Score < threshold {
					continue
				}

				out = append(out, domain.Candidate{
					IssueType:   issueType,
					Severity:    domain.SeverityWarning,
					EntityType:  domain.EntityFamily,
					EntityIDs:   []int64{f.ID, g.ID},
					DedupKey:    domain.PairKey(issueType, f.ID, g.ID),
					Confidence:  clamp01(s.Score),
					ImpactScore: float64(1 + len(f.ChildIDs) + len(g.ChildIDs)),
					Explanation: domain.DuplicateFamilyExplanation{
						SpouseNames:      [2][2]string{spouseNames(f, persons), spouseNames(g, persons)},
						MarriageDates:    [2]string{f.MarriageDateValue(), g.MarriageDateValue()},
						MarriagePlaces:   [2]string{f.MarriagePlace, g.MarriagePlace},
						SpouseSimilarity: s.SpouseSimilarity,
						DateAgreement:    s.DateAgreement,
						PlaceAgreement:   s.PlaceAgreement,
						Swapped:          s.Swapped,
						Score:            s.Score,
					},
				})
			}
		}
	}
	return out
}

func spouseNames(f *domain.Family, persons map[int64]*domain.Person) [2]string {
	var names [2]string
	if f.HusbandID != nil {
		if p, ok := persons[*f.HusbandID]; ok {
			names[0] = p.FullName()
		}
	}
	if f.WifeID != nil {
		if p, ok := persons[*f.WifeID]; ok {
			names[1] = p.FullName()
		}
	}
	return names
}
