package remediation

import (
	"context"
	"fmt"

	"github.com/heartmarshall/treecleaner/internal/domain"
)

func lockOrder(a, b int64) []int64 {
	if a < b {
		return []int64{a, b}
	}
	return []int64{b, a}
}

func (s *Service) checkRefLimit(n int) error {
	if s.cfg.MaxMergeRefs > 0 && n > s.cfg.MaxMergeRefs {
		return domain.NewValidationError("from_id",
			fmt.Sprintf("%d references exceed the limit of %d", n, s.cfg.MaxMergeRefs))
	}
	return nil
}

// moveRefs repoints refs to into. Moved refs are returned as they point
// afterwards, dropped ones as they pointed before.
func (s *Service) moveRefs(ctx context.Context, refs []domain.Ref, into int64) (moved, dropped []domain.Ref, err error) {
	moved, dropped = []domain.Ref{}, []domain.Ref{}
	for _, ref := range refs {
		ok, err := s.refs.Repoint(ctx, ref, into)
		if err != nil {
			return nil, nil, fmt.Errorf("repoint %s: %w", ref, err)
		}
		if ok {
			moved = append(moved, ref.Retarget(into))
		} else {
			dropped = append(dropped, ref)
		}
	}
	return moved, dropped, nil
}

// restoreRefs points moved refs back at from and re-creates dropped join rows.
func (s *Service) restoreRefs(ctx context.Context, moved, dropped []domain.Ref, from int64) error {
	for _, ref := range moved {
		ok, err := s.refs.Repoint(ctx, ref, from)
		if err != nil {
			return fmt.Errorf("restore %s: %w", ref, err)
		}
		if !ok {
			return fmt.Errorf("restore %s: row already exists: %w", ref, domain.ErrConflict)
		}
	}
	for _, ref := range dropped {
		if err := s.refs.Insert(ctx, ref); err != nil {
			return fmt.Errorf("re-create %s: %w", ref, err)
		}
	}
	return nil
}
