package remediation

import (
	"context"
	"fmt"
	"time"

	"github.com/heartmarshall/treecleaner/internal/domain"
)

// MergePeople folds person FromID into IntoID. Every reference to the merged
// person moves to the survivor; join rows that would duplicate an existing
// row (or make a person their own parent) are dropped and remembered for
// undo. The merged person is then deleted.
func (s *Service) MergePeople(ctx context.Context, input MergeInput) (*ActionResult, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	p := domain.MergePeoplePayload{
		FromID:      input.FromID,
		IntoID:      input.IntoID,
		FillMissing: input.FillMissing,
		IssueIDs:    input.IssueIDs,
	}
	return s.apply(ctx, domain.ActionMergePeople, p, p.IssueIDs, input.AppliedBy, s.mergePeopleStep(p))
}

func (s *Service) mergePeopleStep(p domain.MergePeoplePayload) forwardFunc {
	return func(ctx context.Context, now time.Time, res *ActionResult) (any, error) {
		from, into, err := s.lockPersons(ctx, p.FromID, p.IntoID)
		if err != nil {
			return nil, err
		}

		refs, err := s.refs.ListRefs(ctx, domain.EntityPerson, from.ID)
		if err != nil {
			return nil, fmt.Errorf("list refs of person %d: %w", from.ID, err)
		}
		if err := s.checkRefLimit(len(refs)); err != nil {
			return nil, err
		}

		undo := domain.MergePeopleUndo{IntoBefore: *into, From: *from}
		if p.FillMissing {
			fillPerson(into, from)
		}
		into.UpdatedAt = now
		if err := s.persons.Update(ctx, into); err != nil {
			return nil, fmt.Errorf("update person %d: %w", into.ID, err)
		}
		undo.IntoAfter = *into

		undo.MovedRefs, undo.DroppedRefs, err = s.moveRefs(ctx, refs, into.ID)
		if err != nil {
			return nil, err
		}
		if err := s.persons.Delete(ctx, from.ID); err != nil {
			return nil, fmt.Errorf("delete person %d: %w", from.ID, err)
		}

		res.Person = into
		return undo, nil
	}
}

func (s *Service) revertMergePeople(ctx context.Context, d domain.MergePeopleUndo, res *ActionResult) error {
	into, err := s.persons.GetByIDForUpdate(ctx, d.IntoAfter.ID)
	if err != nil {
		return fmt.Errorf("get person %d: %w", d.IntoAfter.ID, err)
	}
	if !samePerson(*into, d.IntoAfter) {
		return fmt.Errorf("person %d changed since the merge: %w", into.ID, domain.ErrConflict)
	}

	from := d.From
	if err := s.persons.Insert(ctx, &from); err != nil {
		return fmt.Errorf("restore person %d: %w", from.ID, err)
	}
	if err := s.restoreRefs(ctx, d.MovedRefs, d.DroppedRefs, from.ID); err != nil {
		return err
	}
	before := d.IntoBefore
	if err := s.persons.Update(ctx, &before); err != nil {
		return fmt.Errorf("restore person %d: %w", before.ID, err)
	}

	res.Person = &before
	return nil
}

// lockPersons locks both persons in id order.
func (s *Service) lockPersons(ctx context.Context, fromID, intoID int64) (from, into *domain.Person, err error) {
	for _, id := range lockOrder(fromID, intoID) {
		p, err := s.persons.GetByIDForUpdate(ctx, id)
		if err != nil {
			return nil, nil, fmt.Errorf("get person %d: %w", id, err)
		}
		if id == fromID {
			from = p
		} else {
			into = p
		}
	}
	return from, into, nil
}

// fillPerson copies into every empty field of dst the value from src. A date
// travels with its canonical form.
func fillPerson(dst, src *domain.Person) {
	fill := func(d *string, v string) {
		if *d == "" {
			*d = v
		}
	}
	fill(&dst.Given, src.Given)
	fill(&dst.Surname, src.Surname)
	fill(&dst.Sex, src.Sex)
	fill(&dst.BirthPlace, src.BirthPlace)
	fill(&dst.DeathPlace, src.DeathPlace)
	if dst.BirthDate == "" {
		dst.BirthDate, dst.BirthDateCanonical = src.BirthDate, src.BirthDateCanonical
	}
	if dst.DeathDate == "" {
		dst.DeathDate, dst.DeathDateCanonical = src.DeathDate, src.DeathDateCanonical
	}
}

// samePerson compares the stored columns, ignoring timestamps.
func samePerson(a, b domain.Person) bool {
	a.CreatedAt, a.UpdatedAt = b.CreatedAt, b.UpdatedAt
	return a == b
}
