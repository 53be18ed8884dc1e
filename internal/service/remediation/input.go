package remediation

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/heartmarshall/treecleaner/internal/domain"
)

const maxPlaceLength = 500

func validateOperator(user string, errs []domain.FieldError) []domain.FieldError {
	if strings.TrimSpace(user) == "" {
		errs = append(errs, domain.FieldError{Field: "applied_by", Message: "required"})
	}
	return errs
}

func validateIssueIDs(ids []uuid.UUID, errs []domain.FieldError) []domain.FieldError {
	for i, id := range ids {
		if id == uuid.Nil {
			errs = append(errs, domain.FieldError{Field: fmt.Sprintf("issue_ids[%d]", i), Message: "required"})
		}
	}
	return errs
}

func validationResult(errs []domain.FieldError) error {
	if len(errs) > 0 {
		return &domain.ValidationError{Errors: errs}
	}
	return nil
}

// MergeInput merges record FromID into IntoID. With FillMissing, empty
// fields of the surviving record are filled from the merged one.
type MergeInput struct {
	FromID      int64
	IntoID      int64
	FillMissing bool
	IssueIDs    []uuid.UUID
	AppliedBy   string
}

// Validate checks all fields and collects all errors.
func (i MergeInput) Validate() error {
	var errs []domain.FieldError
	if i.FromID <= 0 {
		errs = append(errs, domain.FieldError{Field: "from_id", Message: "required"})
	}
	if i.IntoID <= 0 {
		errs = append(errs, domain.FieldError{Field: "into_id", Message: "required"})
	}
	if i.FromID > 0 && i.FromID == i.IntoID {
		errs = append(errs, domain.FieldError{Field: "into_id", Message: "must differ from from_id"})
	}
	errs = validateIssueIDs(i.IssueIDs, errs)
	errs = validateOperator(i.AppliedBy, errs)
	return validationResult(errs)
}

// DedupeMediaLinksInput keeps KeepID and removes the other links.
type DedupeMediaLinksInput struct {
	LinkIDs   []int64
	KeepID    int64
	IssueIDs  []uuid.UUID
	AppliedBy string
}

// Validate checks all fields and collects all errors.
func (i DedupeMediaLinksInput) Validate() error {
	var errs []domain.FieldError
	if len(i.LinkIDs) < 2 {
		errs = append(errs, domain.FieldError{Field: "link_ids", Message: "at least two links required"})
	}
	seen := make(map[int64]bool, len(i.LinkIDs))
	for k, id := range i.LinkIDs {
		if id <= 0 {
			errs = append(errs, domain.FieldError{Field: fmt.Sprintf("link_ids[%d]", k), Message: "required"})
		}
		if seen[id] {
			errs = append(errs, domain.FieldError{Field: fmt.Sprintf("link_ids[%d]", k), Message: "duplicate"})
		}
		seen[id] = true
	}
	if !seen[i.KeepID] {
		errs = append(errs, domain.FieldError{Field: "keep_id", Message: "must be one of link_ids"})
	}
	errs = validateIssueIDs(i.IssueIDs, errs)
	errs = validateOperator(i.AppliedBy, errs)
	return validationResult(errs)
}

// NormalizePlacesInput rewrites every place field equal to a variant to
// Canonical. SaveRule also stores the mapping as an approved rule.
type NormalizePlacesInput struct {
	Canonical string
	Variants  []string
	SaveRule  bool
	IssueIDs  []uuid.UUID
	AppliedBy string
}

// Validate checks all fields and collects all errors.
func (i NormalizePlacesInput) Validate(maxItems int) error {
	errs := validatePlaces(i.Canonical, i.Variants, maxItems)
	errs = validateIssueIDs(i.IssueIDs, errs)
	errs = validateOperator(i.AppliedBy, errs)
	return validationResult(errs)
}

func validatePlaces(canonical string, variants []string, maxItems int) []domain.FieldError {
	var errs []domain.FieldError
	canonical = strings.TrimSpace(canonical)
	if canonical == "" {
		errs = append(errs, domain.FieldError{Field: "canonical", Message: "required"})
	}
	if len(canonical) > maxPlaceLength {
		errs = append(errs, domain.FieldError{Field: "canonical", Message: "max 500 characters"})
	}
	if len(variants) == 0 {
		errs = append(errs, domain.FieldError{Field: "variants", Message: "required"})
	}
	if maxItems > 0 && len(variants) > maxItems {
		errs = append(errs, domain.FieldError{Field: "variants", Message: fmt.Sprintf("max %d variants", maxItems)})
	}
	for k, v := range variants {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, domain.FieldError{Field: fmt.Sprintf("variants[%d]", k), Message: "required"})
		}
	}
	return errs
}

// NormalizeDatesInput writes canonical values for raw dates.
type NormalizeDatesInput struct {
	Items     []domain.DateNormalizationItem
	IssueIDs  []uuid.UUID
	AppliedBy string
}

// SaveRuleInput stores a place rule awaiting approval.
type SaveRuleInput struct {
	Canonical string
	Variants  []string
}

// Validate checks all fields and collects all errors.
func (i SaveRuleInput) Validate(maxItems int) error {
	return validationResult(validatePlaces(i.Canonical, i.Variants, maxItems))
}

func trimmedVariants(variants []string) []string {
	out := make([]string, 0, len(variants))
	seen := make(map[string]bool, len(variants))
	for _, v := range variants {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
