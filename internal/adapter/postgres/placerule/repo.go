// Package placerule implements the approved place normalization rule store
// using PostgreSQL.
package placerule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/heartmarshall/treecleaner/internal/adapter/postgres"
	"github.com/heartmarshall/treecleaner/internal/domain"
)

// Repo provides place rule persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new place rule repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// ---------------------------------------------------------------------------
// SQL constants
// ---------------------------------------------------------------------------

const ruleColumns = `id, canonical, variants, approved, created_at, updated_at`

const createSQL = `
INSERT INTO dq_place_rules (` + ruleColumns + `)
VALUES ($1, $2, $3, $4, $5, $6)`

const getByIDSQL = `
SELECT ` + ruleColumns + `
FROM dq_place_rules
WHERE id = $1`

const setApprovedSQL = `
UPDATE dq_place_rules
SET approved = $2, updated_at = $3
WHERE id = $1`

const listSQL = `
SELECT ` + ruleColumns + `
FROM dq_place_rules
ORDER BY created_at, id`

const listApprovedSQL = `
SELECT ` + ruleColumns + `
FROM dq_place_rules
WHERE approved
ORDER BY created_at, id`

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// Create inserts a rule.
func (r *Repo) Create(ctx context.Context, rule *domain.PlaceNormalizationRule) error {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	_, err := querier.Exec(ctx, createSQL,
		rule.ID, rule.Canonical, rule.Variants, rule.Approved, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return postgres.MapError(err, "place rule", rule.ID)
	}
	return nil
}

// GetByID returns a rule by primary key.
func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PlaceNormalizationRule, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	rule, err := scanRule(querier.QueryRow(ctx, getByIDSQL, id))
	if err != nil {
		return nil, postgres.MapError(err, "place rule", id)
	}
	return rule, nil
}

// SetApproved flips the approval flag of a rule.
func (r *Repo) SetApproved(ctx context.Context, id uuid.UUID, approved bool, at time.Time) error {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	tag, err := querier.Exec(ctx, setApprovedSQL, id, approved, at)
	if err != nil {
		return postgres.MapError(err, "place rule", id)
	}
	if tag.RowsAffected() == 0 {
		return postgres.MapError(pgx.ErrNoRows, "place rule", id)
	}
	return nil
}

// List returns every rule in creation order.
func (r *Repo) List(ctx context.Context) ([]domain.PlaceNormalizationRule, error) {
	return r.list(ctx, listSQL)
}

// ListApproved returns the approved rules in creation order.
func (r *Repo) ListApproved(ctx context.Context) ([]domain.PlaceNormalizationRule, error) {
	return r.list(ctx, listApprovedSQL)
}

func (r *Repo) list(ctx context.Context, sql string) ([]domain.PlaceNormalizationRule, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := querier.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("list place rules: %w", err)
	}
	defer rows.Close()

	var out []domain.PlaceNormalizationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan place rule: %w", err)
		}
		out = append(out, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("place rule rows: %w", err)
	}
	return out, nil
}

func scanRule(row pgx.Row) (*domain.PlaceNormalizationRule, error) {
	var rule domain.PlaceNormalizationRule
	if err := row.Scan(
		&rule.ID, &rule.Canonical, &rule.Variants, &rule.Approved, &rule.CreatedAt, &rule.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &rule, nil
}
