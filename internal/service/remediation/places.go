package remediation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/treecleaner/internal/domain"
)

// errNothingToNormalize is returned when no place field holds a variant
// that differs from the canonical spelling.
var errNothingToNormalize = fmt.Errorf("no place values to normalize: %w", domain.ErrConflict)

// NormalizePlaces rewrites every person, event and family place field whose
// trimmed value equals one of the variants to the canonical spelling.
func (s *Service) NormalizePlaces(ctx context.Context, input NormalizePlacesInput) (*ActionResult, error) {
	if err := input.Validate(s.cfg.MaxNormalizeItems); err != nil {
		return nil, err
	}
	p := &domain.NormalizePlacesPayload{
		Canonical: strings.TrimSpace(input.Canonical),
		Variants:  trimmedVariants(input.Variants),
		SaveRule:  input.SaveRule,
		IssueIDs:  input.IssueIDs,
	}
	return s.apply(ctx, domain.ActionNormalizePlaces, p, p.IssueIDs, input.AppliedBy, s.normalizePlacesStep(p))
}

// normalizePlacesStep stores the rule id it creates back into p, so the
// logged payload names the rule and a re-apply does not create another.
// Each attempt starts from the rule id p carried when the step was built;
// an id allocated by a rolled-back attempt is discarded.
func (s *Service) normalizePlacesStep(p *domain.NormalizePlacesPayload) forwardFunc {
	given := p.RuleID
	return func(ctx context.Context, now time.Time, res *ActionResult) (any, error) {
		p.RuleID = given
		values, err := s.fields.FindPlaceValues(ctx, p.Variants)
		if err != nil {
			return nil, fmt.Errorf("find place values: %w", err)
		}

		undo := domain.FieldChangesUndo{Changes: []domain.FieldChange{}}
		for _, fv := range values {
			if fv.Value == p.Canonical {
				continue
			}
			if err := s.fields.Set(ctx, fv.Ref, p.Canonical); err != nil {
				return nil, fmt.Errorf("set %s: %w", fv.Ref, err)
			}
			undo.Changes = append(undo.Changes, domain.FieldChange{Ref: fv.Ref, Before: fv.Value, After: p.Canonical})
		}
		if len(undo.Changes) == 0 {
			return nil, errNothingToNormalize
		}

		if p.SaveRule && p.RuleID == nil {
			rule := &domain.PlaceNormalizationRule{
				ID:        uuid.New(),
				Canonical: p.Canonical,
				Variants:  p.Variants,
				Approved:  true,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := s.rules.Create(ctx, rule); err != nil {
				return nil, fmt.Errorf("save place rule: %w", err)
			}
			p.RuleID = &rule.ID
			res.Rule = rule
		}

		res.Changes = undo.Changes
		return undo, nil
	}
}

// ---------------------------------------------------------------------------
// Place normalization rules
// ---------------------------------------------------------------------------

// SaveRule stores a canonical spelling for a set of variants. The rule must
// be approved before it can be applied or replayed.
func (s *Service) SaveRule(ctx context.Context, input SaveRuleInput) (*domain.PlaceNormalizationRule, error) {
	if err := input.Validate(s.cfg.MaxNormalizeItems); err != nil {
		return nil, err
	}
	now := s.now()
	rule := &domain.PlaceNormalizationRule{
		ID:        uuid.New(),
		Canonical: strings.TrimSpace(input.Canonical),
		Variants:  trimmedVariants(input.Variants),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, fmt.Errorf("save place rule: %w", err)
	}

	s.log.InfoContext(ctx, "place rule saved",
		slog.String("rule_id", rule.ID.String()),
		slog.String("canonical", rule.Canonical),
		slog.Int("variants", len(rule.Variants)),
	)
	return rule, nil
}

// ApproveRule sets whether a rule may be applied.
func (s *Service) ApproveRule(ctx context.Context, id uuid.UUID, approved bool, operator string) (*domain.PlaceNormalizationRule, error) {
	if id == uuid.Nil {
		return nil, domain.NewValidationError("rule_id", "required")
	}

	var rule *domain.PlaceNormalizationRule
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.rules.SetApproved(txCtx, id, approved, s.now()); err != nil {
			return fmt.Errorf("approve place rule: %w", err)
		}
		var err error
		rule, err = s.rules.GetByID(txCtx, id)
		if err != nil {
			return fmt.Errorf("get place rule: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "place rule approval changed",
		slog.String("rule_id", id.String()),
		slog.Bool("approved", approved),
		slog.String("operator", operator),
	)
	return rule, nil
}

// ListRules returns every stored rule.
func (s *Service) ListRules(ctx context.Context) ([]domain.PlaceNormalizationRule, error) {
	rules, err := s.rules.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list place rules: %w", err)
	}
	return rules, nil
}

// ApplyRule runs normalizePlaces for an approved rule.
func (s *Service) ApplyRule(ctx context.Context, id uuid.UUID, issueIDs []uuid.UUID, user string) (*ActionResult, error) {
	var errs []domain.FieldError
	if id == uuid.Nil {
		errs = append(errs, domain.FieldError{Field: "rule_id", Message: "required"})
	}
	errs = validateIssueIDs(issueIDs, errs)
	if err := validationResult(validateOperator(user, errs)); err != nil {
		return nil, err
	}

	rule, err := s.rules.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get place rule: %w", err)
	}
	return s.applyRule(ctx, rule, issueIDs, user)
}

func (s *Service) applyRule(ctx context.Context, rule *domain.PlaceNormalizationRule, issueIDs []uuid.UUID, user string) (*ActionResult, error) {
	if !rule.Approved {
		return nil, fmt.Errorf("place rule %s is not approved: %w", rule.ID, domain.ErrConflict)
	}
	p := &domain.NormalizePlacesPayload{
		Canonical: rule.Canonical,
		Variants:  rule.Variants,
		RuleID:    &rule.ID,
		IssueIDs:  issueIDs,
	}
	res, err := s.apply(ctx, domain.ActionNormalizePlaces, p, issueIDs, user, s.normalizePlacesStep(p))
	if err != nil {
		return nil, err
	}
	res.Rule = rule
	return res, nil
}

// ReplayApprovedRules applies every approved rule that still matches a
// place value, each as its own undoable action. Rules with nothing left to
// rewrite are skipped.
func (s *Service) ReplayApprovedRules(ctx context.Context, user string) ([]*ActionResult, error) {
	if err := validationResult(validateOperator(user, nil)); err != nil {
		return nil, err
	}
	rules, err := s.rules.ListApproved(ctx)
	if err != nil {
		return nil, fmt.Errorf("list approved place rules: %w", err)
	}

	var out []*ActionResult
	for i := range rules {
		res, err := s.applyRule(ctx, &rules[i], nil, user)
		if errors.Is(err, errNothingToNormalize) {
			continue
		}
		if err != nil {
			return out, fmt.Errorf("replay place rule %s: %w", rules[i].ID, err)
		}
		out = append(out, res)
	}

	s.log.InfoContext(ctx, "place rules replayed",
		slog.Int("approved_rules", len(rules)),
		slog.Int("applied", len(out)),
		slog.String("applied_by", user),
	)
	return out, nil
}
