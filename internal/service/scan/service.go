// Package scan runs the detectors over a consistent snapshot of the record
// store and reconciles their output with the stored issues.
package scan

import (
	"context"
	"log/slog"
	"time"

	"github.com/heartmarshall/treecleaner/internal/detector"
	"github.com/heartmarshall/treecleaner/internal/domain"
)

type snapshotLoader interface {
	Load(ctx context.Context) (*domain.Snapshot, error)
	DateStats(ctx context.Context) (domain.DateStats, error)
}

type issueRepo interface {
	ListAllForUpdate(ctx context.Context) ([]domain.Issue, error)
	Create(ctx context.Context, is *domain.Issue) error
	Update(ctx context.Context, is *domain.Issue) error
	CountOpenByType(ctx context.Context) (map[domain.IssueType]int, error)
}

type dateNormRepo interface {
	ListCurrent(ctx context.Context) ([]domain.DateNormalizationRecord, error)
	Record(ctx context.Context, recs []domain.DateNormalizationRecord, at time.Time) (int, error)
}

// changeStamp is a counter bumped by every logged action.
type changeStamp interface {
	Version(ctx context.Context) (int64, error)
	VersionForUpdate(ctx context.Context) (int64, error)
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	RunReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service orchestrates scans and builds the summary view.
type Service struct {
	snapshots snapshotLoader
	issues    issueRepo
	dates     dateNormRepo
	changes   changeStamp
	tx        txManager
	cfg       detector.Config
	log       *slog.Logger
	now       func() time.Time
}

// NewService creates a new scan service.
func NewService(
	log *slog.Logger,
	snapshots snapshotLoader,
	issues issueRepo,
	dates dateNormRepo,
	changes changeStamp,
	tx txManager,
	cfg detector.Config,
) *Service {
	return &Service{
		snapshots: snapshots,
		issues:    issues,
		dates:     dates,
		changes:   changes,
		tx:        tx,
		cfg:       cfg,
		log:       log.With("service", "scan"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}
