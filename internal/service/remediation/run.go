package remediation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/treecleaner/internal/domain"
)

// forwardFunc performs an action inside the transaction and returns the data
// its revert needs.
type forwardFunc func(ctx context.Context, now time.Time, res *ActionResult) (any, error)

// apply runs fn, resolves the named issues and appends the log entry, all in
// one transaction. payload is marshalled after fn so that fn may fill in
// ids it allocated. The transaction may run more than once, so res is reset
// on every attempt.
func (s *Service) apply(
	ctx context.Context,
	actionType domain.ActionType,
	payload any,
	issueIDs []uuid.UUID,
	user string,
	fn forwardFunc,
) (*ActionResult, error) {
	start := time.Now()
	res := &ActionResult{ActionType: actionType}

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		*res = ActionResult{ActionType: actionType}
		now := s.now()
		data, err := fn(txCtx, now, res)
		if err != nil {
			return err
		}
		resolved, err := s.issues.Resolve(txCtx, issueIDs, now)
		if err != nil {
			return fmt.Errorf("resolve issues: %w", err)
		}

		rawPayload, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		plan, err := revertPlan(actionType, rawPayload, data, resolved)
		if err != nil {
			return err
		}

		entry := &domain.ActionLogEntry{
			ID:               uuid.New(),
			ActionType:       actionType,
			Payload:          rawPayload,
			UndoPayload:      plan,
			AppliedBy:        user,
			CreatedAt:        now,
			ResolvedIssueIDs: resolved,
		}
		if err := s.actions.Create(txCtx, entry); err != nil {
			return fmt.Errorf("create action log entry: %w", err)
		}
		res.ActionID = entry.ID
		res.ResolvedIssueIDs = resolved
		return nil
	})
	observeAction(actionType, start, err)
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "action applied",
		slog.String("action_id", res.ActionID.String()),
		slog.String("action_type", string(actionType)),
		slog.String("applied_by", user),
		slog.Int("resolved_issues", len(res.ResolvedIssueIDs)),
	)
	return res, nil
}

func revertPlan(actionType domain.ActionType, payload json.RawMessage, data any, resolved []uuid.UUID) (json.RawMessage, error) {
	rawData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal undo data: %w", err)
	}
	plan, err := json.Marshal(domain.UndoPlan{
		Op:         domain.UndoOpRevert,
		ActionType: actionType,
		Payload:    payload,
		Data:       rawData,
		IssueIDs:   resolved,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal undo plan: %w", err)
	}
	return plan, nil
}

// ---------------------------------------------------------------------------
// Undo
// ---------------------------------------------------------------------------

// Undo applies the undo plan of an action log entry. Reverting an action
// restores every record it touched and reopens the issues it resolved;
// undoing an undo re-applies the original action. Either way a new undo
// entry is appended, and the undone entry is stamped with its id. An entry
// can be undone once.
func (s *Service) Undo(ctx context.Context, actionID uuid.UUID, user string) (*ActionResult, error) {
	var errs []domain.FieldError
	if actionID == uuid.Nil {
		errs = append(errs, domain.FieldError{Field: "action_id", Message: "required"})
	}
	if err := validationResult(validateOperator(user, errs)); err != nil {
		return nil, err
	}

	start := time.Now()
	res := &ActionResult{ActionType: domain.ActionUndo}
	var op domain.UndoOp

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		*res = ActionResult{ActionType: domain.ActionUndo}
		now := s.now()
		target, err := s.actions.GetByIDForUpdate(txCtx, actionID)
		if err != nil {
			return fmt.Errorf("get action %s: %w", actionID, err)
		}
		if target.RevertedBy != nil {
			return fmt.Errorf("action %s already undone by %s: %w", actionID, target.RevertedBy, domain.ErrConflict)
		}

		var plan domain.UndoPlan
		if err := json.Unmarshal(target.UndoPayload, &plan); err != nil {
			return fmt.Errorf("decode undo plan of %s: %w", actionID, err)
		}
		op = plan.Op

		inverse, err := s.applyPlan(txCtx, plan, now, res)
		if err != nil {
			return err
		}

		payload, err := json.Marshal(domain.UndoPayload{ActionID: actionID})
		if err != nil {
			return fmt.Errorf("marshal undo payload: %w", err)
		}
		entry := &domain.ActionLogEntry{
			ID:               uuid.New(),
			ActionType:       domain.ActionUndo,
			Payload:          payload,
			UndoPayload:      inverse,
			AppliedBy:        user,
			CreatedAt:        now,
			ResolvedIssueIDs: res.ResolvedIssueIDs,
		}
		if err := s.actions.Create(txCtx, entry); err != nil {
			return fmt.Errorf("create undo entry: %w", err)
		}
		if err := s.actions.MarkReverted(txCtx, actionID, entry.ID); err != nil {
			return fmt.Errorf("mark %s reverted: %w", actionID, err)
		}
		res.ActionID = entry.ID
		return nil
	})
	observeAction(domain.ActionUndo, start, err)
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "action undone",
		slog.String("action_id", res.ActionID.String()),
		slog.String("undone_action_id", actionID.String()),
		slog.String("op", string(op)),
		slog.String("applied_by", user),
	)
	return res, nil
}

// applyPlan executes plan and returns the plan that reverses it.
func (s *Service) applyPlan(ctx context.Context, plan domain.UndoPlan, now time.Time, res *ActionResult) (json.RawMessage, error) {
	switch plan.Op {
	case domain.UndoOpRevert:
		if err := s.revert(ctx, plan, now, res); err != nil {
			return nil, err
		}
		if err := s.issues.Reopen(ctx, plan.IssueIDs, now); err != nil {
			return nil, fmt.Errorf("reopen issues: %w", err)
		}
		res.ReopenedIssueIDs = plan.IssueIDs
		inverse, err := json.Marshal(domain.UndoPlan{
			Op:         domain.UndoOpReapply,
			ActionType: plan.ActionType,
			Payload:    plan.Payload,
			IssueIDs:   plan.IssueIDs,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal undo plan: %w", err)
		}
		return inverse, nil

	case domain.UndoOpReapply:
		fn, err := s.forward(plan.ActionType, plan.Payload)
		if err != nil {
			return nil, err
		}
		data, err := fn(ctx, now, res)
		if err != nil {
			return nil, err
		}
		resolved, err := s.issues.Resolve(ctx, plan.IssueIDs, now)
		if err != nil {
			return nil, fmt.Errorf("resolve issues: %w", err)
		}
		res.ResolvedIssueIDs = resolved
		return revertPlan(plan.ActionType, plan.Payload, data, resolved)
	}
	return nil, fmt.Errorf("unknown undo op %q", plan.Op)
}

// forward rebuilds the forward step of a logged action from its payload.
func (s *Service) forward(actionType domain.ActionType, raw json.RawMessage) (forwardFunc, error) {
	switch actionType {
	case domain.ActionMergePeople:
		var p domain.MergePeoplePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", actionType, err)
		}
		return s.mergePeopleStep(p), nil
	case domain.ActionMergeFamilies:
		var p domain.MergeFamiliesPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", actionType, err)
		}
		return s.mergeFamiliesStep(p), nil
	case domain.ActionDedupeMediaLinks:
		var p domain.DedupeMediaLinksPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", actionType, err)
		}
		return s.dedupeLinksStep(p), nil
	case domain.ActionMergeMediaAssets:
		var p domain.MergeMediaAssetsPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", actionType, err)
		}
		return s.mergeAssetsStep(p), nil
	case domain.ActionNormalizePlaces:
		var p domain.NormalizePlacesPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", actionType, err)
		}
		return s.normalizePlacesStep(&p), nil
	case domain.ActionNormalizeDates:
		var p domain.NormalizeDatesPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", actionType, err)
		}
		items, err := s.checkDateItems(p.Items)
		if err != nil {
			return nil, err
		}
		return s.normalizeDatesStep(items), nil
	}
	return nil, fmt.Errorf("action type %q cannot be re-applied: %w", actionType, domain.ErrValidation)
}

// revert reverses a logged action using the data captured when it ran.
func (s *Service) revert(ctx context.Context, plan domain.UndoPlan, now time.Time, res *ActionResult) error {
	decode := func(v any) error {
		if err := json.Unmarshal(plan.Data, v); err != nil {
			return fmt.Errorf("decode %s undo data: %w", plan.ActionType, err)
		}
		return nil
	}

	switch plan.ActionType {
	case domain.ActionMergePeople:
		var d domain.MergePeopleUndo
		if err := decode(&d); err != nil {
			return err
		}
		return s.revertMergePeople(ctx, d, res)
	case domain.ActionMergeFamilies:
		var d domain.MergeFamiliesUndo
		if err := decode(&d); err != nil {
			return err
		}
		return s.revertMergeFamilies(ctx, d, res)
	case domain.ActionDedupeMediaLinks:
		var d domain.DedupeMediaLinksUndo
		if err := decode(&d); err != nil {
			return err
		}
		return s.revertDedupeLinks(ctx, d, res)
	case domain.ActionMergeMediaAssets:
		var d domain.MergeMediaAssetsUndo
		if err := decode(&d); err != nil {
			return err
		}
		return s.revertMergeAssets(ctx, d, res)
	case domain.ActionNormalizePlaces, domain.ActionNormalizeDates:
		var d domain.FieldChangesUndo
		if err := decode(&d); err != nil {
			return err
		}
		return s.revertFieldChanges(ctx, d, res)
	}
	return fmt.Errorf("action type %q cannot be reverted: %w", plan.ActionType, domain.ErrValidation)
}

// revertFieldChanges restores every changed column, newest change first. A
// column edited since the action ran makes the revert fail.
func (s *Service) revertFieldChanges(ctx context.Context, d domain.FieldChangesUndo, res *ActionResult) error {
	for i := len(d.Changes) - 1; i >= 0; i-- {
		c := d.Changes[i]
		cur, err := s.fields.Get(ctx, c.Ref)
		if err != nil {
			return fmt.Errorf("get %s: %w", c.Ref, err)
		}
		if cur != c.After {
			return fmt.Errorf("%s changed since the action ran: %w", c.Ref, domain.ErrConflict)
		}
		if err := s.fields.Set(ctx, c.Ref, c.Before); err != nil {
			return fmt.Errorf("restore %s: %w", c.Ref, err)
		}
		res.Changes = append(res.Changes, domain.FieldChange{Ref: c.Ref, Before: c.After, After: c.Before})
	}
	return nil
}
