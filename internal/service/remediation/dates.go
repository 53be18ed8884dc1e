package remediation

import (
	"context"
	"fmt"
	"time"

	"github.com/heartmarshall/treecleaner/internal/dateparse"
	"github.com/heartmarshall/treecleaner/internal/domain"
)

var errDatesUnchanged = fmt.Errorf("every date already carries its canonical value: %w", domain.ErrConflict)

// dateItem is a request item that passed validation.
type dateItem struct {
	domain.DateNormalizationItem
	column     domain.DateField
	parsed     dateparse.Result
	normalized string
}

// NormalizeDates writes canonical values for the listed raw dates. Each raw
// value is re-parsed here; if any item is qualified, ambiguous, a range or
// unparseable the whole request is rejected before anything is written. A
// raw value that no longer matches the record is a conflict.
func (s *Service) NormalizeDates(ctx context.Context, input NormalizeDatesInput) (*ActionResult, error) {
	items, errs := s.validateDateItems(input.Items)
	errs = validateIssueIDs(input.IssueIDs, errs)
	errs = validateOperator(input.AppliedBy, errs)
	if err := validationResult(errs); err != nil {
		return nil, err
	}
	p := domain.NormalizeDatesPayload{Items: input.Items, IssueIDs: input.IssueIDs}
	return s.apply(ctx, domain.ActionNormalizeDates, p, p.IssueIDs, input.AppliedBy, s.normalizeDatesStep(items))
}

func (s *Service) checkDateItems(items []domain.DateNormalizationItem) ([]dateItem, error) {
	out, errs := s.validateDateItems(items)
	if err := validationResult(errs); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) validateDateItems(items []domain.DateNormalizationItem) ([]dateItem, []domain.FieldError) {
	var errs []domain.FieldError
	if len(items) == 0 {
		errs = append(errs, domain.FieldError{Field: "items", Message: "required"})
	}
	if limit := s.cfg.MaxNormalizeItems; limit > 0 && len(items) > limit {
		errs = append(errs, domain.FieldError{Field: "items", Message: fmt.Sprintf("max %d items", limit)})
	}

	out := make([]dateItem, 0, len(items))
	seen := make(map[domain.FieldRef]bool, len(items))
	for i, item := range items {
		field := fmt.Sprintf("items[%d]", i)
		column, ok := domain.LookupDateField(item.EntityType, item.Field)
		if !ok {
			errs = append(errs, domain.FieldError{Field: field + ".field", Message: fmt.Sprintf("%s has no date field %q", item.EntityType, item.Field)})
			continue
		}
		if item.EntityID <= 0 {
			errs = append(errs, domain.FieldError{Field: field + ".entity_id", Message: "required"})
		}
		key := domain.FieldRef{EntityType: item.EntityType, EntityID: item.EntityID, Field: item.Field}
		if seen[key] {
			errs = append(errs, domain.FieldError{Field: field, Message: "duplicate item"})
		}
		seen[key] = true

		parsed := dateparse.Parse(item.Raw)
		if msg := blockReason(parsed); msg != "" {
			errs = append(errs, domain.FieldError{Field: field + ".raw", Message: msg})
			continue
		}
		normalized := parsed.Normalized
		if item.Normalized != "" && item.Normalized != parsed.Normalized {
			if msg := blockReason(dateparse.Parse(item.Normalized)); msg != "" {
				errs = append(errs, domain.FieldError{Field: field + ".normalized", Message: msg})
				continue
			}
			normalized = item.Normalized
		}
		out = append(out, dateItem{DateNormalizationItem: item, column: column, parsed: parsed, normalized: normalized})
	}
	return out, errs
}

// blockReason explains why a parse result cannot be written as a canonical date.
func blockReason(r dateparse.Result) string {
	switch {
	case r.Normalized == "" || r.Precision == domain.PrecisionUnknown:
		return "unparseable date"
	case r.Qualifier.IsSet():
		return fmt.Sprintf("qualified date (%s) needs manual review", r.Qualifier)
	case r.Ambiguous:
		return "ambiguous date needs manual review"
	case r.Precision == domain.PrecisionRange:
		return "date ranges cannot be normalized"
	}
	return ""
}

func (s *Service) normalizeDatesStep(items []dateItem) forwardFunc {
	return func(ctx context.Context, now time.Time, res *ActionResult) (any, error) {
		undo := domain.FieldChangesUndo{Changes: []domain.FieldChange{}}
		observed := make([]domain.DateNormalizationRecord, 0, len(items))

		for _, item := range items {
			rawRef := domain.FieldRef{EntityType: item.EntityType, EntityID: item.EntityID, Field: item.column.Raw}
			raw, err := s.fields.Get(ctx, rawRef)
			if err != nil {
				return nil, fmt.Errorf("get %s: %w", rawRef, err)
			}
			if raw != item.Raw {
				return nil, fmt.Errorf("%s is now %q, not %q: %w", rawRef, raw, item.Raw, domain.ErrConflict)
			}

			canonRef := domain.FieldRef{EntityType: item.EntityType, EntityID: item.EntityID, Field: item.column.Canonical}
			before, err := s.fields.Get(ctx, canonRef)
			if err != nil {
				return nil, fmt.Errorf("get %s: %w", canonRef, err)
			}
			observed = append(observed, domain.DateNormalizationRecord{
				EntityType: item.EntityType,
				EntityID:   item.EntityID,
				Field:      item.Field,
				Raw:        item.Raw,
				Normalized: item.normalized,
				Precision:  item.parsed.Precision,
				Qualifier:  item.parsed.Qualifier,
				Confidence: item.parsed.Confidence,
				Ambiguous:  item.parsed.Ambiguous,
				ObservedAt: now,
			})
			if before == item.normalized {
				continue
			}
			if err := s.fields.Set(ctx, canonRef, item.normalized); err != nil {
				return nil, fmt.Errorf("set %s: %w", canonRef, err)
			}
			undo.Changes = append(undo.Changes, domain.FieldChange{Ref: canonRef, Before: before, After: item.normalized})
		}
		if len(undo.Changes) == 0 {
			return nil, errDatesUnchanged
		}

		if _, err := s.dateNorms.Record(ctx, observed, now); err != nil {
			return nil, fmt.Errorf("record date observations: %w", err)
		}
		res.Changes = undo.Changes
		return undo, nil
	}
}
