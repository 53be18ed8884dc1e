// Package issue exposes stored issues and the action log to operators and
// handles triage transitions that do not touch records.
package issue

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/heartmarshall/treecleaner/internal/domain"
)

type issueRepo interface {
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Issue, error)
	List(ctx context.Context, f domain.IssueFilter) ([]domain.Issue, int, error)
	Update(ctx context.Context, is *domain.Issue) error
}

type actionRepo interface {
	List(ctx context.Context, limit, offset int) ([]domain.ActionLogEntry, int, error)
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

const (
	DefaultPerPage = 50
	MaxPerPage     = 500
)

// Service provides issue queries and triage.
type Service struct {
	issues  issueRepo
	actions actionRepo
	tx      txManager
	log     *slog.Logger
}

// NewService creates a new issue service.
func NewService(log *slog.Logger, issues issueRepo, actions actionRepo, tx txManager) *Service {
	return &Service{
		issues:  issues,
		actions: actions,
		tx:      tx,
		log:     log.With("service", "issue"),
	}
}
