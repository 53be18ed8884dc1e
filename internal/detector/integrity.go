package detector

import (
	"fmt"
	"sort"
	"strings"

	"github.com/heartmarshall/treecleaner/internal/domain"
	"github.com/heartmarshall/treecleaner/internal/similarity"
)

// Integrity rule constants.
const (
	MinParentAgeYears   = 12
	MinMarriageAgeYears = 12

	TimelineConfidence    = 0.95
	OrphanConfidence      = 0.9
	ParentAgeConfidence   = 0.85
	ParentDeathConfidence = 0.8
	MarriageConfidence    = 0.85
	PlaceholderConfidence = 0.8
	PlaceholderImpact     = 0.2
)

// placeholderNames are compared after lower-casing and trimming.
var placeholderNames = map[string]struct{}{
	"unknown": {}, "unk": {}, "n/a": {}, "na": {}, "none": {}, "nn": {},
	"n.n.": {}, "?": {}, "??": {}, "???": {}, "-": {}, "[unknown]": {},
	"(unknown)": {}, "no name": {}, "noname": {}, "unnamed": {},
}

// IsPlaceholderName reports whether s is a placeholder token.
func IsPlaceholderName(s string) bool {
	_, ok := placeholderNames[strings.Join(strings.Fields(strings.ToLower(s)), " ")]
	return ok
}

// Integrity runs independent timeline and relationship rules.
type Integrity struct{}

func (Integrity) Name() string { return "integrity" }

func (Integrity) Detect(snap *domain.Snapshot) []domain.Candidate {
	persons := snap.PersonIndex()

	var out []domain.Candidate
	out = append(out, timelineRule(snap)...)
	out = append(out, orphanEventRule(snap)...)
	out = append(out, orphanFamilyRule(snap)...)
	out = append(out, parentChildRules(snap, persons)...)
	out = append(out, marriageRules(snap, persons)...)
	out = append(out, placeholderRule(snap)...)
	return out
}

func yearOf(s string) *int {
	if y, ok := similarity.ExtractYear(s); ok {
		return intPtr(y)
	}
	return nil
}

func singleKey(t domain.IssueType, ids ...int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return string(t) + ":" + strings.Join(parts, ":")
}

func timelineRule(snap *domain.Snapshot) []domain.Candidate {
	var out []domain.Candidate
	for i := range snap.Persons {
		p := &snap.Persons[i]
		birth, death := yearOf(p.BirthDateValue()), yearOf(p.DeathDateValue())
		if birth == nil || death == nil || *death >= *birth {
			continue
		}
		out = append(out, domain.Candidate{
			IssueType:   domain.IssueImpossibleTimeline,
			Severity:    domain.SeverityError,
			EntityType:  domain.EntityPerson,
			EntityIDs:   []int64{p.ID},
			DedupKey:    singleKey(domain.IssueImpossibleTimeline, p.ID),
			Confidence:  TimelineConfidence,
			ImpactScore: 1,
			Explanation: domain.IntegrityExplanation{
				Rule:       "death_before_birth",
				Message:    fmt.Sprintf("%s died in %d before being born in %d", p.FullName(), *death, *birth),
				PersonName: p.FullName(),
				BirthYear:  birth,
				DeathYear:  death,
			},
		})
	}
	return out
}

func orphanEventRule(snap *domain.Snapshot) []domain.Candidate {
	var out []domain.Candidate
	for i := range snap.Events {
		e := &snap.Events[i]
		if e.PersonID != nil || e.FamilyID != nil {
			continue
		}
		out = append(out, domain.Candidate{
			IssueType:   domain.IssueOrphanEvent,
			Severity:    domain.SeverityError,
			EntityType:  domain.EntityEvent,
			EntityIDs:   []int64{e.ID},
			DedupKey:    singleKey(domain.IssueOrphanEvent, e.ID),
			Confidence:  OrphanConfidence,
			ImpactScore: 1,
			Explanation: domain.IntegrityExplanation{
				Rule:      "event_without_owner",
				Message:   fmt.Sprintf("%s event %d references neither a person nor a family", e.EventType, e.ID),
				EventType: string(e.EventType),
			},
		})
	}
	return out
}

func orphanFamilyRule(snap *domain.Snapshot) []domain.Candidate {
	var out []domain.Candidate
	for i := range snap.Families {
		f := &snap.Families[i]
		if f.HusbandID != nil || f.WifeID != nil || len(f.ChildIDs) > 0 {
			continue
		}
		out = append(out, domain.Candidate{
			IssueType:   domain.IssueOrphanFamily,
			Severity:    domain.SeverityWarning,
			EntityType:  domain.EntityFamily,
			EntityIDs:   []int64{f.ID},
			DedupKey:    singleKey(domain.IssueOrphanFamily, f.ID),
			Confidence:  OrphanConfidence,
			ImpactScore: 1,
			Explanation: domain.IntegrityExplanation{
				Rule:    "family_without_members",
				Message: fmt.Sprintf("family %d has no spouses and no children", f.ID),
			},
		})
	}
	return out
}

type parentChild struct{ parent, child int64 }

// parentChildPairs merges family-derived and direct relationships.
func parentChildPairs(snap *domain.Snapshot) []parentChild {
	seen := make(map[parentChild]struct{})
	for i := range snap.Families {
		f := &snap.Families[i]
		for _, parent := range f.SpouseIDs() {
			for _, child := range f.ChildIDs {
				seen[parentChild{parent, child}] = struct{}{}
			}
		}
	}
	for _, r := range snap.Relationships {
		seen[parentChild{r.ParentID, r.ChildID}] = struct{}{}
	}
	out := make([]parentChild, 0, len(seen))
	for pc := range seen {
		if pc.parent != pc.child {
			out = append(out, pc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].parent != out[j].parent {
			return out[i].parent < out[j].parent
		}
		return out[i].child < out[j].child
	})
	return out
}

func parentChildRules(snap *domain.Snapshot, persons map[int64]*domain.Person) []domain.Candidate {
	var out []domain.Candidate
	for _, pc := range parentChildPairs(snap) {
		parent, okP := persons[pc.parent]
		child, okC := persons[pc.child]
		if !okP || !okC {
			continue
		}
		childBirth := yearOf(child.BirthDateValue())
		if childBirth == nil {
			continue
		}

		if parentBirth := yearOf(parent.BirthDateValue()); parentBirth != nil && *childBirth-*parentBirth < MinParentAgeYears {
			out = append(out, domain.Candidate{
				IssueType:   domain.IssueParentChildAge,
				Severity:    domain.SeverityWarning,
				EntityType:  domain.EntityPerson,
				EntityIDs:   []int64{parent.ID, child.ID},
				DedupKey:    singleKey(domain.IssueParentChildAge, parent.ID, child.ID),
				Confidence:  ParentAgeConfidence,
				ImpactScore: 1,
				Explanation: domain.IntegrityExplanation{
					Rule:        "parent_too_young",
					Message:     fmt.Sprintf("%s (b. %d) is recorded as parent of %s (b. %d)", parent.FullName(), *parentBirth, child.FullName(), *childBirth),
					PersonName:  parent.FullName(),
					RelatedName: child.FullName(),
					BirthYear:   parentBirth,
					OtherYear:   childBirth,
				},
			})
		}

		if parentDeath := yearOf(parent.DeathDateValue()); parentDeath != nil && *parentDeath < *childBirth {
			out = append(out, domain.Candidate{
				IssueType:   domain.IssueParentChildDeath,
				Severity:    domain.SeverityWarning,
				EntityType:  domain.EntityPerson,
				EntityIDs:   []int64{parent.ID, child.ID},
				DedupKey:    singleKey(domain.IssueParentChildDeath, parent.ID, child.ID),
				Confidence:  ParentDeathConfidence,
				ImpactScore: 1,
				Explanation: domain.IntegrityExplanation{
					Rule:        "parent_died_before_birth",
					Message:     fmt.Sprintf("%s died in %d before child %s was born in %d", parent.FullName(), *parentDeath, child.FullName(), *childBirth),
					PersonName:  parent.FullName(),
					RelatedName: child.FullName(),
					DeathYear:   parentDeath,
					OtherYear:   childBirth,
				},
			})
		}
	}
	return out
}

// marriageYear prefers the family's own marriage date and falls back to a
// marriage event attached to the family.
func marriageYears(snap *domain.Snapshot) map[int64]int {
	years := make(map[int64]int)
	for i := range snap.Events {
		e := &snap.Events[i]
		if e.EventType != domain.EventMarriage || e.FamilyID == nil {
			continue
		}
		if y := yearOf(e.DateValue()); y != nil {
			if prev, ok := years[*e.FamilyID]; !ok || *y < prev {
				years[*e.FamilyID] = *y
			}
		}
	}
	for i := range snap.Families {
		f := &snap.Families[i]
		if y := yearOf(f.MarriageDateValue()); y != nil {
			years[f.ID] = *y
		}
	}
	return years
}

func marriageRules(snap *domain.Snapshot, persons map[int64]*domain.Person) []domain.Candidate {
	years := marriageYears(snap)

	var out []domain.Candidate
	for i := range snap.Families {
		f := &snap.Families[i]
		married, ok := years[f.ID]
		if !ok {
			continue
		}
		for _, sid := range f.SpouseIDs() {
			spouse, ok := persons[sid]
			if !ok {
				continue
			}
			if birth := yearOf(spouse.BirthDateValue()); birth != nil && married-*birth < MinMarriageAgeYears {
				out = append(out, domain.Candidate{
					IssueType:   domain.IssueMarriageTooEarly,
					Severity:    domain.SeverityWarning,
					EntityType:  domain.EntityFamily,
					EntityIDs:   []int64{f.ID, spouse.ID},
					DedupKey:    singleKey(domain.IssueMarriageTooEarly, f.ID, spouse.ID),
					Confidence:  MarriageConfidence,
					ImpactScore: 1,
					Explanation: domain.IntegrityExplanation{
						Rule:       "married_under_age",
						Message:    fmt.Sprintf("%s (b. %d) married in %d", spouse.FullName(), *birth, married),
						PersonName: spouse.FullName(),
						BirthYear:  birth,
						OtherYear:  intPtr(married),
					},
				})
			}
			if death := yearOf(spouse.DeathDateValue()); death != nil && married > *death {
				out = append(out, domain.Candidate{
					IssueType:   domain.IssueMarriageAfterDeath,
					Severity:    domain.SeverityError,
					EntityType:  domain.EntityFamily,
					EntityIDs:   []int64{f.ID, spouse.ID},
					DedupKey:    singleKey(domain.IssueMarriageAfterDeath, f.ID, spouse.ID),
					Confidence:  MarriageConfidence,
					ImpactScore: 1,
					Explanation: domain.IntegrityExplanation{
						Rule:       "married_after_death",
						Message:    fmt.Sprintf("%s (d. %d) married in %d", spouse.FullName(), *death, married),
						PersonName: spouse.FullName(),
						DeathYear:  death,
						OtherYear:  intPtr(married),
					},
				})
			}
		}
	}
	return out
}

func placeholderRule(snap *domain.Snapshot) []domain.Candidate {
	var out []domain.Candidate
	for i := range snap.Persons {
		p := &snap.Persons[i]
		token := ""
		switch {
		case IsPlaceholderName(p.Given):
			token = p.Given
		case IsPlaceholderName(p.Surname):
			token = p.Surname
		default:
			continue
		}
		out = append(out, domain.Candidate{
			IssueType:   domain.IssuePlaceholderName,
			Severity:    domain.SeverityWarning,
			EntityType:  domain.EntityPerson,
			EntityIDs:   []int64{p.ID},
			DedupKey:    singleKey(domain.IssuePlaceholderName, p.ID),
			Confidence:  PlaceholderConfidence,
			ImpactScore: PlaceholderImpact,
			Explanation: domain.IntegrityExplanation{
				Rule:       "placeholder_name",
				Message:    fmt.Sprintf("person %d has placeholder name %q", p.ID, p.FullName()),
				PersonName: p.FullName(),
				Token:      token,
			},
		})
	}
	return out
}
