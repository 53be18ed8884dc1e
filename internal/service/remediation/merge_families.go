package remediation

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/heartmarshall/treecleaner/internal/domain"
)

// MergeFamilies folds family FromID into IntoID: events, notes, media links
// and children move to the survivor and the merged family is deleted.
func (s *Service) MergeFamilies(ctx context.Context, input MergeInput) (*ActionResult, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	p := domain.MergeFamiliesPayload{
		FromID:      input.FromID,
		IntoID:      input.IntoID,
		FillMissing: input.FillMissing,
		IssueIDs:    input.IssueIDs,
	}
	return s.apply(ctx, domain.ActionMergeFamilies, p, p.IssueIDs, input.AppliedBy, s.mergeFamiliesStep(p))
}

func (s *Service) mergeFamiliesStep(p domain.MergeFamiliesPayload) forwardFunc {
	return func(ctx context.Context, now time.Time, res *ActionResult) (any, error) {
		from, into, err := s.lockFamilies(ctx, p.FromID, p.IntoID)
		if err != nil {
			return nil, err
		}

		refs, err := s.refs.ListRefs(ctx, domain.EntityFamily, from.ID)
		if err != nil {
			return nil, fmt.Errorf("list refs of family %d: %w", from.ID, err)
		}
		if err := s.checkRefLimit(len(refs)); err != nil {
			return nil, err
		}

		undo := domain.MergeFamiliesUndo{IntoBefore: *into, From: *from}
		if p.FillMissing {
			fillFamily(into, from)
		}
		into.UpdatedAt = now
		if err := s.families.Update(ctx, into); err != nil {
			return nil, fmt.Errorf("update family %d: %w", into.ID, err)
		}

		undo.MovedRefs, undo.DroppedRefs, err = s.moveRefs(ctx, refs, into.ID)
		if err != nil {
			return nil, err
		}
		if err := s.families.Delete(ctx, from.ID); err != nil {
			return nil, fmt.Errorf("delete family %d: %w", from.ID, err)
		}

		into.ChildIDs = mergeChildIDs(into.ChildIDs, undo.MovedRefs)
		undo.IntoAfter = *into
		res.Family = into
		return undo, nil
	}
}

func (s *Service) revertMergeFamilies(ctx context.Context, d domain.MergeFamiliesUndo, res *ActionResult) error {
	into, err := s.families.GetByIDForUpdate(ctx, d.IntoAfter.ID)
	if err != nil {
		return fmt.Errorf("get family %d: %w", d.IntoAfter.ID, err)
	}
	if !sameFamily(*into, d.IntoAfter) {
		return fmt.Errorf("family %d changed since the merge: %w", into.ID, domain.ErrConflict)
	}

	from := d.From
	if err := s.families.Insert(ctx, &from); err != nil {
		return fmt.Errorf("restore family %d: %w", from.ID, err)
	}
	if err := s.restoreRefs(ctx, d.MovedRefs, d.DroppedRefs, from.ID); err != nil {
		return err
	}
	before := d.IntoBefore
	if err := s.families.Update(ctx, &before); err != nil {
		return fmt.Errorf("restore family %d: %w", before.ID, err)
	}

	res.Family = &before
	return nil
}

func (s *Service) lockFamilies(ctx context.Context, fromID, intoID int64) (from, into *domain.Family, err error) {
	for _, id := range lockOrder(fromID, intoID) {
		f, err := s.families.GetByIDForUpdate(ctx, id)
		if err != nil {
			return nil, nil, fmt.Errorf("get family %d: %w", id, err)
		}
		if id == fromID {
			from = f
		} else {
			into = f
		}
	}
	return from, into, nil
}

// fillFamily copies missing spouses and marriage details from src.
func fillFamily(dst, src *domain.Family) {
	if dst.HusbandID == nil && src.HusbandID != nil && !equalID(dst.WifeID, src.HusbandID) {
		dst.HusbandID = src.HusbandID
	}
	if dst.WifeID == nil && src.WifeID != nil && !equalID(dst.HusbandID, src.WifeID) {
		dst.WifeID = src.WifeID
	}
	if dst.MarriagePlace == "" {
		dst.MarriagePlace = src.MarriagePlace
	}
	if dst.MarriageDate == "" {
		dst.MarriageDate, dst.MarriageDateCanonical = src.MarriageDate, src.MarriageDateCanonical
	}
}

// mergeChildIDs adds the children moved onto the family, keeping ids ascending.
func mergeChildIDs(ids []int64, moved []domain.Ref) []int64 {
	set := make(map[int64]bool, len(ids))
	out := append([]int64(nil), ids...)
	for _, id := range ids {
		set[id] = true
	}
	for _, ref := range moved {
		if ref.Kind == domain.RefChildOfFamily && !set[ref.RowID] {
			set[ref.RowID] = true
			out = append(out, ref.RowID)
		}
	}
	slices.Sort(out)
	return out
}

func equalID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// sameFamily compares the stored columns and children, ignoring timestamps.
func sameFamily(a, b domain.Family) bool {
	if a.ID != b.ID || a.Xref != b.Xref ||
		a.MarriageDate != b.MarriageDate || a.MarriagePlace != b.MarriagePlace ||
		a.MarriageDateCanonical != b.MarriageDateCanonical ||
		!equalID(a.HusbandID, b.HusbandID) || !equalID(a.WifeID, b.WifeID) {
		return false
	}
	if len(a.ChildIDs) != len(b.ChildIDs) {
		return false
	}
	for i := range a.ChildIDs {
		if a.ChildIDs[i] != b.ChildIDs[i] {
			return false
		}
	}
	return true
}
