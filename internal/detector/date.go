package detector

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/heartmarshall/treecleaner/internal/dateparse"
	"github.com/heartmarshall/treecleaner/internal/domain"
)

// Reasons recorded in DateExplanation.Reason.
const (
	DateReasonUnparseable  = "unparseable"
	DateReasonAmbiguous    = "ambiguous"
	DateReasonQualified    = "qualified"
	DateReasonRange        = "range"
	DateReasonNormalizable = "normalizable"
)

// ParseKey identifies one observed raw value.
type ParseKey struct {
	Field domain.FieldRef
	Raw   string
}

// Dates parses every raw date field. Previously stored observations can be
// supplied to skip re-parsing unchanged raw values; the output is the same
// either way. Observations made during Detect are available afterwards.
type Dates struct {
	known map[ParseKey]dateparse.Result

	mu           sync.Mutex
	observations []domain.DateNormalizationRecord
	reused       int
}

// NewDates builds a Dates detector seeded with stored observations.
func NewDates(known []domain.DateNormalizationRecord) *Dates {
	d := &Dates{known: make(map[ParseKey]dateparse.Result, len(known))}
	for _, r := range known {
		if r.SupersededAt != nil {
			continue
		}
		d.known[ParseKey{Field: r.Key(), Raw: r.Raw}] = dateparse.Result{
			Normalized: r.Normalized,
			Precision:  r.Precision,
			Qualifier:  r.Qualifier,
			Confidence: r.Confidence,
			Ambiguous:  r.Ambiguous,
		}
	}
	return d
}

func (*Dates) Name() string { return "date_normalization" }

// Observations returns the parse records made by the last Detect call.
func (d *Dates) Observations() []domain.DateNormalizationRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.DateNormalizationRecord(nil), d.observations...)
}

// Reused reports how many parses the last Detect call served from stored records.
func (d *Dates) Reused() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reused
}

type dateValue struct {
	field     domain.DateField
	id        int64
	raw       string
	canonical string
}

func collectDates(snap *domain.Snapshot) []dateValue {
	var out []dateValue
	add := func(entity domain.EntityType, field string, id int64, raw, canonical string) {
		if strings.TrimSpace(raw) == "" {
			return
		}
		df, _ := domain.LookupDateField(entity, field)
		out = append(out, dateValue{field: df, id: id, raw: raw, canonical: canonical})
	}
	for i := range snap.Persons {
		p := &snap.Persons[i]
		add(domain.EntityPerson, "birth_date", p.ID, p.BirthDate, p.BirthDateCanonical)
		add(domain.EntityPerson, "death_date", p.ID, p.DeathDate, p.DeathDateCanonical)
	}
	for i := range snap.Events {
		e := &snap.Events[i]
		add(domain.EntityEvent, "date", e.ID, e.DateRaw, e.DateCanonical)
	}
	for i := range snap.Families {
		f := &snap.Families[i]
		add(domain.EntityFamily, "marriage_date", f.ID, f.MarriageDate, f.MarriageDateCanonical)
	}
	return out
}

func (d *Dates) Detect(snap *domain.Snapshot) []domain.Candidate {
	now := time.Now().UTC()
	values := collectDates(snap)

	observations := make([]domain.DateNormalizationRecord, 0, len(values))
	reused := 0
	var out []domain.Candidate

	for _, v := range values {
		ref := domain.FieldRef{EntityType: v.field.EntityType, EntityID: v.id, Field: v.field.Field}
		res, ok := d.known[ParseKey{Field: ref, Raw: v.raw}]
		if ok {
			reused++
		} else {
			res = dateparse.Parse(v.raw)
		}
		observations = append(observations, domain.DateNormalizationRecord{
			EntityType: ref.EntityType,
			EntityID:   ref.EntityID,
			Field:      ref.Field,
			Raw:        v.raw,
			Normalized: res.Normalized,
			Precision:  res.Precision,
			Qualifier:  res.Qualifier,
			Confidence: res.Confidence,
			Ambiguous:  res.Ambiguous,
			ObservedAt: now,
		})

		reason := dateReason(res, v.canonical)
		if reason == "" {
			continue
		}
		out = append(out, domain.Candidate{
			IssueType:   domain.IssueDateNormalization,
			Severity:    dateSeverity(v.field.EntityType, res.Ambiguous),
			EntityType:  v.field.EntityType,
			EntityIDs:   []int64{v.id},
			DedupKey:    fmt.Sprintf("%s:%s:%d:%s", domain.IssueDateNormalization, v.field.EntityType, v.id, v.field.Field),
			Confidence:  res.Confidence,
			ImpactScore: 1,
			Explanation: domain.DateExplanation{
				OwnerType:  v.field.EntityType,
				OwnerID:    v.id,
				Field:      v.field.Field,
				Raw:        v.raw,
				Canonical:  v.canonical,
				Normalized: res.Normalized,
				Precision:  res.Precision,
				Qualifier:  res.Qualifier,
				Confidence: res.Confidence,
				Ambiguous:  res.Ambiguous,
				Reason:     reason,
			},
		})
	}

	d.mu.Lock()
	d.observations = observations
	d.reused = reused
	d.mu.Unlock()
	return out
}

// dateReason says why a parsed value needs review, or "" when the canonical
// field already holds the normalized value.
func dateReason(res dateparse.Result, canonical string) string {
	switch {
	case res.Precision == domain.PrecisionUnknown:
		return DateReasonUnparseable
	case res.Ambiguous:
		return DateReasonAmbiguous
	case res.Qualifier.IsSet():
		return DateReasonQualified
	case res.Precision == domain.PrecisionRange:
		return DateReasonRange
	case res.Normalized != strings.TrimSpace(canonical):
		return DateReasonNormalizable
	}
	return ""
}

// dateSeverity: ambiguity on a person is an error, on anything else it is
// informational.
func dateSeverity(owner domain.EntityType, ambiguous bool) domain.Severity {
	switch {
	case owner == domain.EntityPerson && ambiguous:
		return domain.SeverityError
	case owner == domain.EntityPerson:
		return domain.SeverityWarning
	}
	return domain.SeverityInfo
}
