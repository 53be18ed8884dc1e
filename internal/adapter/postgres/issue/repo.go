// Package issue implements the Issue store using PostgreSQL. Issues are never
// deleted; only their status and findings change.
package issue

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/heartmarshall/treecleaner/internal/adapter/postgres"
	"github.com/heartmarshall/treecleaner/internal/domain"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Repo provides issue persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new issue repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// ---------------------------------------------------------------------------
// SQL constants
// ---------------------------------------------------------------------------

const issueColumns = `id, issue_type, severity, entity_type, entity_ids, dedup_key, status,
	confidence, impact_score, explanation, detected_at, resolved_at, updated_at`

const getByIDSQL = `
SELECT ` + issueColumns + `
FROM dq_issues
WHERE id = $1`

const getByIDForUpdateSQL = getByIDSQL + `
FOR UPDATE`

const listAllForUpdateSQL = `
SELECT ` + issueColumns + `
FROM dq_issues
ORDER BY dedup_key
FOR UPDATE`

const createSQL = `
INSERT INTO dq_issues (` + issueColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

const updateSQL = `
UPDATE dq_issues
SET severity = $2, entity_type = $3, entity_ids = $4, status = $5, confidence = $6,
	impact_score = $7, explanation = $8, resolved_at = $9, updated_at = $10
WHERE id = $1`

const countExistingSQL = `SELECT count(*) FROM dq_issues WHERE id = ANY($1)`

const resolveSQL = `
UPDATE dq_issues
SET status = 'resolved', resolved_at = $2, updated_at = $2
WHERE id = ANY($1) AND status = 'open'
RETURNING id`

const reopenSQL = `
UPDATE dq_issues
SET status = 'open', resolved_at = NULL, updated_at = $2
WHERE id = ANY($1) AND status = 'resolved'`

const countOpenByTypeSQL = `
SELECT issue_type, count(*)
FROM dq_issues
WHERE status = 'open'
GROUP BY issue_type`

// ---------------------------------------------------------------------------
// Read operations
// ---------------------------------------------------------------------------

// GetByID returns an issue by primary key.
func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Issue, error) {
	return r.get(ctx, postgres.QuerierFromCtx(ctx, r.pool), getByIDSQL, id)
}

// GetByIDForUpdate returns an issue and locks its row.
func (r *Repo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Issue, error) {
	querier, err := postgres.LockingQuerier(ctx)
	if err != nil {
		return nil, err
	}
	return r.get(ctx, querier, getByIDForUpdateSQL, id)
}

func (r *Repo) get(ctx context.Context, querier postgres.Querier, sql string, id uuid.UUID) (*domain.Issue, error) {
	is, err := scanIssue(querier.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, postgres.MapError(err, "issue", id)
	}
	return is, nil
}

// List returns a page of issues matching the filter plus the total match count.
// Order: most recently detected first, then id.
func (r *Repo) List(ctx context.Context, f domain.IssueFilter) ([]domain.Issue, int, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	where := squirrel.Eq{}
	if f.Type != "" {
		where["issue_type"] = string(f.Type)
	}
	if f.Status != "" {
		where["status"] = string(f.Status)
	}

	countSQL, countArgs, err := builder().Select("count(*)").From("dq_issues").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count issues: %w", err)
	}
	var total int
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count issues: %w", err)
	}

	limit := f.Limit
	switch {
	case limit <= 0:
		limit = defaultLimit
	case limit > maxLimit:
		limit = maxLimit
	}
	offset := max(f.Offset, 0)

	pageSQL, pageArgs, err := builder().
		Select(issueColumns).
		From("dq_issues").
		Where(where).
		OrderBy("detected_at DESC", "id").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list issues: %w", err)
	}

	rows, err := querier.Query(ctx, pageSQL, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list issues: %w", err)
	}
	issues, err := collectIssues(rows)
	if err != nil {
		return nil, 0, err
	}
	return issues, total, nil
}

// ListAllForUpdate returns every issue ordered by dedup key and locks them all.
// Scans use it to reconcile candidates against stored issues.
func (r *Repo) ListAllForUpdate(ctx context.Context) ([]domain.Issue, error) {
	querier, err := postgres.LockingQuerier(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := querier.Query(ctx, listAllForUpdateSQL)
	if err != nil {
		return nil, fmt.Errorf("list all issues: %w", err)
	}
	return collectIssues(rows)
}

// CountOpenByType returns the number of open issues per type.
func (r *Repo) CountOpenByType(ctx context.Context) (map[domain.IssueType]int, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := querier.Query(ctx, countOpenByTypeSQL)
	if err != nil {
		return nil, fmt.Errorf("count open issues: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.IssueType]int)
	for rows.Next() {
		var (
			t string
			n int
		)
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scan open issue count: %w", err)
		}
		out[domain.IssueType(t)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count open issues rows: %w", err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Write operations
// ---------------------------------------------------------------------------

// Create inserts a new issue. A duplicate dedup key yields domain.ErrAlreadyExists.
func (r *Repo) Create(ctx context.Context, is *domain.Issue) error {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	expl, err := domain.EncodeExplanation(is.Explanation)
	if err != nil {
		return fmt.Errorf("encode explanation: %w", err)
	}
	_, err = querier.Exec(ctx, createSQL,
		is.ID, string(is.IssueType), string(is.Severity), string(is.EntityType), is.EntityIDs,
		is.DedupKey, string(is.Status), is.Confidence, is.ImpactScore, expl,
		is.DetectedAt, is.ResolvedAt, is.UpdatedAt,
	)
	if err != nil {
		return postgres.MapError(err, "issue", is.DedupKey)
	}
	return nil
}

// Update overwrites the findings and status of an issue.
func (r *Repo) Update(ctx context.Context, is *domain.Issue) error {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	expl, err := domain.EncodeExplanation(is.Explanation)
	if err != nil {
		return fmt.Errorf("encode explanation: %w", err)
	}
	tag, err := querier.Exec(ctx, updateSQL,
		is.ID, string(is.Severity), string(is.EntityType), is.EntityIDs, string(is.Status),
		is.Confidence, is.ImpactScore, expl, is.ResolvedAt, is.UpdatedAt,
	)
	if err != nil {
		return postgres.MapError(err, "issue", is.ID)
	}
	if tag.RowsAffected() == 0 {
		return postgres.MapError(pgx.ErrNoRows, "issue", is.ID)
	}
	return nil
}

// Resolve marks the open issues among ids as resolved and returns the ids it
// changed. Every id must exist.
func (r *Repo) Resolve(ctx context.Context, ids []uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	if err := r.requireAll(ctx, querier, ids); err != nil {
		return nil, err
	}

	rows, err := querier.Query(ctx, resolveSQL, ids, at)
	if err != nil {
		return nil, fmt.Errorf("resolve issues: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan resolved issue: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("resolve issues rows: %w", err)
	}
	return out, nil
}

// Reopen moves resolved issues among ids back to open. Ignored issues stay ignored.
func (r *Repo) Reopen(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	if _, err := querier.Exec(ctx, reopenSQL, ids, at); err != nil {
		return fmt.Errorf("reopen issues: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (r *Repo) requireAll(ctx context.Context, querier postgres.Querier, ids []uuid.UUID) error {
	unique := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		unique[id] = struct{}{}
	}
	var n int
	if err := querier.QueryRow(ctx, countExistingSQL, ids).Scan(&n); err != nil {
		return fmt.Errorf("count issues: %w", err)
	}
	if n != len(unique) {
		return fmt.Errorf("issue ids %v: %w", ids, domain.ErrNotFound)
	}
	return nil
}

func scanIssue(row pgx.Row) (*domain.Issue, error) {
	var (
		is                              domain.Issue
		issueType, severity, entityType string
		status                          string
		expl                            []byte
	)
	err := row.Scan(
		&is.ID, &issueType, &severity, &entityType, &is.EntityIDs, &is.DedupKey, &status,
		&is.Confidence, &is.ImpactScore, &expl, &is.DetectedAt, &is.ResolvedAt, &is.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	is.IssueType = domain.IssueType(issueType)
	is.Severity = domain.Severity(severity)
	is.EntityType = domain.EntityType(entityType)
	is.Status = domain.IssueStatus(status)

	is.Explanation, err = domain.DecodeExplanation(is.IssueType, expl)
	if err != nil {
		return nil, err
	}
	return &is, nil
}

func collectIssues(rows pgx.Rows) ([]domain.Issue, error) {
	defer rows.Close()

	var out []domain.Issue
	for rows.Next() {
		is, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		out = append(out, *is)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("issue rows: %w", err)
	}
	return out, nil
}
