package issue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/treecleaner/internal/domain"
)

// IgnoreIssue marks an open issue as ignored. Later scans keep it ignored.
// Ignoring an ignored issue is a no-op; a resolved issue cannot be ignored.
func (s *Service) IgnoreIssue(ctx context.Context, id uuid.UUID, operator string) (*domain.Issue, error) {
	return s.transition(ctx, id, operator, domain.IssueStatusIgnored)
}

// ReopenIssue returns an ignored issue to open. Resolved issues reopen only
// through undo or a scan that finds the problem again.
func (s *Service) ReopenIssue(ctx context.Context, id uuid.UUID, operator string) (*domain.Issue, error) {
	return s.transition(ctx, id, operator, domain.IssueStatusOpen)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, operator string, to domain.IssueStatus) (*domain.Issue, error) {
	if id == uuid.Nil {
		return nil, domain.NewValidationError("issue_id", "required")
	}

	var (
		is      *domain.Issue
		changed bool
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		is, err = s.issues.GetByIDForUpdate(txCtx, id)
		if err != nil {
			return fmt.Errorf("get issue: %w", err)
		}
		if is.Status == to {
			return nil
		}
		if is.Status == domain.IssueStatusResolved {
			return fmt.Errorf("issue %s is resolved: %w", id, domain.ErrConflict)
		}
		is.Status = to
		is.UpdatedAt = time.Now().UTC()
		if err := s.issues.Update(txCtx, is); err != nil {
			return fmt.Errorf("update issue: %w", err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.log.InfoContext(ctx, "issue status changed",
			slog.String("issue_id", id.String()),
			slog.String("status", string(to)),
			slog.String("operator", operator),
		)
	}
	return is, nil
}
