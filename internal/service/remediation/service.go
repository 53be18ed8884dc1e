// Package remediation applies operator-approved fixes to the record store.
// Every action runs in one transaction together with its action log entry,
// and every entry carries the plan that reverses it.
package remediation

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/treecleaner/internal/domain"
)

type personRepo interface {
	GetByIDForUpdate(ctx context.Context, id int64) (*domain.Person, error)
	Insert(ctx context.Context, p *domain.Person) error
	Update(ctx context.Context, p *domain.Person) error
	Delete(ctx context.Context, id int64) error
}

type familyRepo interface {
	GetByIDForUpdate(ctx context.Context, id int64) (*domain.Family, error)
	Insert(ctx context.Context, f *domain.Family) error
	Update(ctx context.Context, f *domain.Family) error
	Delete(ctx context.Context, id int64) error
}

type mediaRepo interface {
	GetAssetForUpdate(ctx context.Context, id int64) (*domain.MediaAsset, error)
	InsertAsset(ctx context.Context, a *domain.MediaAsset) error
	DeleteAsset(ctx context.Context, id int64) error
	GetLinksForUpdate(ctx context.Context, ids []int64) ([]domain.MediaLink, error)
	InsertLink(ctx context.Context, l *domain.MediaLink) error
	DeleteLink(ctx context.Context, id int64) error
}

type refRepo interface {
	ListRefs(ctx context.Context, target domain.EntityType, id int64) ([]domain.Ref, error)
	Repoint(ctx context.Context, ref domain.Ref, to int64) (bool, error)
	Insert(ctx context.Context, ref domain.Ref) error
}

type fieldRepo interface {
	Get(ctx context.Context, ref domain.FieldRef) (string, error)
	Set(ctx context.Context, ref domain.FieldRef, value string) error
	FindPlaceValues(ctx context.Context, variants []string) ([]domain.FieldValue, error)
}

type issueRepo interface {
	Resolve(ctx context.Context, ids []uuid.UUID, at time.Time) ([]uuid.UUID, error)
	Reopen(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

type actionRepo interface {
	Create(ctx context.Context, e *domain.ActionLogEntry) error
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.ActionLogEntry, error)
	MarkReverted(ctx context.Context, id, by uuid.UUID) error
}

type ruleRepo interface {
	Create(ctx context.Context, rule *domain.PlaceNormalizationRule) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PlaceNormalizationRule, error)
	SetApproved(ctx context.Context, id uuid.UUID, approved bool, at time.Time) error
	List(ctx context.Context) ([]domain.PlaceNormalizationRule, error)
	ListApproved(ctx context.Context) ([]domain.PlaceNormalizationRule, error)
}

type dateNormRepo interface {
	Record(ctx context.Context, recs []domain.DateNormalizationRecord, at time.Time) (int, error)
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Repos groups the stores the service writes through.
type Repos struct {
	Persons   personRepo
	Families  familyRepo
	Media     mediaRepo
	Refs      refRepo
	Fields    fieldRepo
	Issues    issueRepo
	Actions   actionRepo
	Rules     ruleRepo
	DateNorms dateNormRepo
}

// Config holds the request limits.
type Config struct {
	MaxMergeRefs      int
	MaxNormalizeItems int
}

// DefaultConfig returns the production limits.
func DefaultConfig() Config {
	return Config{MaxMergeRefs: 10000, MaxNormalizeItems: 1000}
}

// Service applies and undoes remediation actions.
type Service struct {
	persons   personRepo
	families  familyRepo
	media     mediaRepo
	refs      refRepo
	fields    fieldRepo
	issues    issueRepo
	actions   actionRepo
	rules     ruleRepo
	dateNorms dateNormRepo
	tx        txManager
	cfg       Config
	log       *slog.Logger
	now       func() time.Time
}

// NewService creates a new remediation service.
func NewService(log *slog.Logger, repos Repos, tx txManager, cfg Config) *Service {
	return &Service{
		persons:   repos.Persons,
		families:  repos.Families,
		media:     repos.Media,
		refs:      repos.Refs,
		fields:    repos.Fields,
		issues:    repos.Issues,
		actions:   repos.Actions,
		rules:     repos.Rules,
		dateNorms: repos.DateNorms,
		tx:        tx,
		cfg:       cfg,
		log:       log.With("service", "remediation"),
		now:       microNow,
	}
}

// microNow keeps timestamps at the precision PostgreSQL stores, so values
// written to undo payloads compare equal after a round trip.
func microNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// ActionResult describes one committed action. Only the entity fields the
// action touched are set.
type ActionResult struct {
	ActionID         uuid.UUID
	ActionType       domain.ActionType
	ResolvedIssueIDs []uuid.UUID
	ReopenedIssueIDs []uuid.UUID

	Person  *domain.Person
	Family  *domain.Family
	Asset   *domain.MediaAsset
	Link    *domain.MediaLink
	Changes []domain.FieldChange
	Rule    *domain.PlaceNormalizationRule
}
