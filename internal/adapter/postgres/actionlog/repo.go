// Package actionlog implements the append-only remediation log using PostgreSQL.
package actionlog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/heartmarshall/treecleaner/internal/adapter/postgres"
	"github.com/heartmarshall/treecleaner/internal/domain"
)

// Repo provides action log persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new action log repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// ---------------------------------------------------------------------------
// SQL constants
// ---------------------------------------------------------------------------

const entryColumns = `id, action_type, payload, undo_payload, applied_by, created_at, reverted_by, resolved_issue_ids`

// createSQL bumps the change stamp in the same statement, so the stamp row
// stays locked until the action commits.
const createSQL = `
WITH stamp AS (
    UPDATE dq_change_stamp SET version = version + 1
)
INSERT INTO dq_action_log (` + entryColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

const versionSQL = `SELECT version FROM dq_change_stamp`

const versionForUpdateSQL = versionSQL + `
FOR UPDATE`

const getByIDSQL = `
SELECT ` + entryColumns + `
FROM dq_action_log
WHERE id = $1`

const getByIDForUpdateSQL = getByIDSQL + `
FOR UPDATE`

const markRevertedSQL = `
UPDATE dq_action_log
SET reverted_by = $2
WHERE id = $1 AND reverted_by IS NULL`

const countSQL = `SELECT count(*) FROM dq_action_log`

const listSQL = `
SELECT ` + entryColumns + `
FROM dq_action_log
ORDER BY created_at DESC, id
LIMIT $1 OFFSET $2`

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// Create appends an entry.
func (r *Repo) Create(ctx context.Context, e *domain.ActionLogEntry) error {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	issueIDs := e.ResolvedIssueIDs
	if issueIDs == nil {
		issueIDs = []uuid.UUID{}
	}
	_, err := querier.Exec(ctx, createSQL,
		e.ID, string(e.ActionType), []byte(e.Payload), []byte(e.UndoPayload),
		e.AppliedBy, e.CreatedAt, e.RevertedBy, issueIDs,
	)
	if err != nil {
		return postgres.MapError(err, "action", e.ID)
	}
	return nil
}

// Version returns the change stamp, which every Create increments.
func (r *Repo) Version(ctx context.Context) (int64, error) {
	return r.version(ctx, postgres.QuerierFromCtx(ctx, r.pool), versionSQL)
}

// VersionForUpdate returns the change stamp and locks it until the
// transaction ends, which holds back actions that have not logged yet.
func (r *Repo) VersionForUpdate(ctx context.Context) (int64, error) {
	querier, err := postgres.LockingQuerier(ctx)
	if err != nil {
		return 0, err
	}
	return r.version(ctx, querier, versionForUpdateSQL)
}

func (r *Repo) version(ctx context.Context, querier postgres.Querier, sql string) (int64, error) {
	var v int64
	if err := querier.QueryRow(ctx, sql).Scan(&v); err != nil {
		return 0, fmt.Errorf("read change stamp: %w", err)
	}
	return v, nil
}

// GetByID returns an entry by primary key.
func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ActionLogEntry, error) {
	return r.get(ctx, postgres.QuerierFromCtx(ctx, r.pool), getByIDSQL, id)
}

// GetByIDForUpdate returns an entry and locks its row so concurrent undos serialize.
func (r *Repo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.ActionLogEntry, error) {
	querier, err := postgres.LockingQuerier(ctx)
	if err != nil {
		return nil, err
	}
	return r.get(ctx, querier, getByIDForUpdateSQL, id)
}

func (r *Repo) get(ctx context.Context, querier postgres.Querier, sql string, id uuid.UUID) (*domain.ActionLogEntry, error) {
	e, err := scanEntry(querier.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, postgres.MapError(err, "action", id)
	}
	return e, nil
}

// MarkReverted stamps the entry as undone by another entry. An entry that is
// already reverted yields domain.ErrConflict.
func (r *Repo) MarkReverted(ctx context.Context, id, by uuid.UUID) error {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	tag, err := querier.Exec(ctx, markRevertedSQL, id, by)
	if err != nil {
		return postgres.MapError(err, "action", id)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("action %s: already reverted or missing: %w", id, domain.ErrConflict)
	}
	return nil
}

// List returns a page of entries, newest first, and the total count.
func (r *Repo) List(ctx context.Context, limit, offset int) ([]domain.ActionLogEntry, int, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	var total int
	if err := querier.QueryRow(ctx, countSQL).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count actions: %w", err)
	}

	rows, err := querier.Query(ctx, listSQL, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var out []domain.ActionLogEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan action: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("action rows: %w", err)
	}
	return out, total, nil
}

func scanEntry(row pgx.Row) (*domain.ActionLogEntry, error) {
	var (
		e                    domain.ActionLogEntry
		actionType           string
		payload, undoPayload []byte
	)
	if err := row.Scan(
		&e.ID, &actionType, &payload, &undoPayload, &e.AppliedBy, &e.CreatedAt, &e.RevertedBy, &e.ResolvedIssueIDs,
	); err != nil {
		return nil, err
	}
	e.ActionType = domain.ActionType(actionType)
	e.Payload = payload
	e.UndoPayload = undoPayload
	return &e, nil
}
