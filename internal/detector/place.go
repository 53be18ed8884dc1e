package detector

import (
	"sort"
	"strings"

	"github.com/heartmarshall/treecleaner/internal/domain"
	"github.com/heartmarshall/treecleaner/internal/similarity"
)

const (
	PlaceClusterConfidence = 0.65
	PlaceSimilarityFloor   = 0.8
)

// Places clusters free-text place spellings by token key and pairs up
// clusters whose literal spellings are near-identical.
type Places struct{}

func (Places) Name() string { return "place" }

type placeCluster struct {
	key    string
	counts map[string]int
	total  int
}

func (c *placeCluster) variants() []domain.PlaceVariantCount {
	out := make([]domain.PlaceVariantCount, 0, len(c.counts))
	for v, n := range c.counts {
		out = append(out, domain.PlaceVariantCount{Value: v, Count: n})
	}
	sortVariants(out)
	return out
}

func (c *placeCluster) values() []string {
	out := make([]string, 0, len(c.counts))
	for v := range c.counts {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// sortVariants orders by count descending, then value ascending; the head
// is the canonical suggestion.
func sortVariants(vs []domain.PlaceVariantCount) {
	sort.Slice(vs, func(i, j int) bool {
		if vs[i].Count != vs[j].Count {
			return vs[i].Count > vs[j].Count
		}
		return vs[i].Value < vs[j].Value
	})
}

// PlaceValues gathers every non-empty place literal the detector reads.
func PlaceValues(snap *domain.Snapshot) []string {
	var out []string
	add := func(v string) {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	for i := range snap.Persons {
		add(snap.Persons[i].BirthPlace)
		add(snap.Persons[i].DeathPlace)
	}
	for i := range snap.Events {
		add(snap.Events[i].PlaceRaw)
	}
	for i := range snap.Families {
		add(snap.Families[i].MarriagePlace)
	}
	return out
}

func (Places) Detect(snap *domain.Snapshot) []domain.Candidate {
	clusters := make(map[string]*placeCluster)
	for _, v := range PlaceValues(snap) {
		key := similarity.TokenNormalize(v)
		if key == "" {
			continue
		}
		c, ok := clusters[key]
		if !ok {
			c = &placeCluster{key: key, counts: make(map[string]int)}
			clusters[key] = c
		}
		c.counts[v]++
		c.total++
	}

	keys := make([]string, 0, len(clusters))
	for k := range clusters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	registered := registeredPlaces(snap.Places)

	var out []domain.Candidate
	for _, k := range keys {
		c := clusters[k]
		if len(c.counts) < 2 {
			continue
		}
		vs := c.variants()
		out = append(out, domain.Candidate{
			IssueType:   domain.IssuePlaceCluster,
			Severity:    domain.SeverityInfo,
			EntityType:  domain.EntityPlace,
			EntityIDs:   []int64{},
			DedupKey:    string(domain.IssuePlaceCluster) + ":" + k,
			Confidence:  PlaceClusterConfidence,
			ImpactScore: float64(c.total),
			Explanation: domain.PlaceExplanation{
				Keys:                []string{k},
				Variants:            vs,
				CanonicalSuggestion: vs[0].Value,
				RegisteredCanonical: registered.lookup(vs),
			},
		})
	}

	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			a, b := clusters[keys[i]], clusters[keys[j]]
			pair, sim := closestVariants(a, b)
			if sim < PlaceSimilarityFloor {
				continue
			}
			vs := append(a.variants(), b.variants()...)
			sortVariants(vs)
			out = append(out, domain.Candidate{
				IssueType:   domain.IssuePlaceSimilarity,
				Severity:    domain.SeverityInfo,
				EntityType:  domain.EntityPlace,
				EntityIDs:   []int64{},
				DedupKey:    string(domain.IssuePlaceSimilarity) + ":" + a.key + "|" + b.key,
				Confidence:  sim,
				ImpactScore: float64(a.total + b.total),
				Explanation: domain.PlaceExplanation{
					Keys:                []string{a.key, b.key},
					Variants:            vs,
					CanonicalSuggestion: vs[0].Value,
					Similarity:          sim,
					Pair:                pair[:],
					RegisteredCanonical: registered.lookup(vs),
				},
			})
		}
	}
	return out
}

// closestVariants compares the literal spellings of two clusters, ignoring
// case, and returns the most similar cross-cluster pair. Ties keep the pair
// found first in value order.
func closestVariants(a, b *placeCluster) (pair [2]string, sim float64) {
	av, bv := a.values(), b.values()
	for _, va := range av {
		la := strings.ToLower(va)
		for _, vb := range bv {
			lb := strings.ToLower(vb)
			if !lengthsCompatible(la, lb) {
				continue
			}
			if s := similarity.EditSimilarity(la, lb); s > sim {
				pair, sim = [2]string{va, vb}, s
			}
		}
	}
	return pair, sim
}

// lengthsCompatible discards pairs whose rune lengths alone rule out
// reaching PlaceSimilarityFloor.
func lengthsCompatible(a, b string) bool {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := max(la, lb)
	diff := la - lb
	if diff < 0 {
		diff = -diff
	}
	if longest == 0 {
		return false
	}
	return 1-float64(diff)/float64(longest) >= PlaceSimilarityFloor
}

type placeRegistry map[string]string

func registeredPlaces(places []domain.Place) placeRegistry {
	reg := make(placeRegistry)
	for _, p := range places {
		reg[strings.ToLower(strings.TrimSpace(p.CanonicalName))] = p.CanonicalName
		for _, v := range p.Variants {
			reg[strings.ToLower(strings.TrimSpace(v))] = p.CanonicalName
		}
	}
	return reg
}

func (r placeRegistry) lookup(vs []domain.PlaceVariantCount) string {
	for _, v := range vs {
		if c, ok := r[strings.ToLower(v.Value)]; ok {
			return c
		}
	}
	return ""
}
