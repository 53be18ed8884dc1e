// Package datenorm stores per-field date parse observations using PostgreSQL.
// Raw values are never rewritten: a changed raw value supersedes the older row.
package datenorm

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/heartmarshall/treecleaner/internal/adapter/postgres"
	"github.com/heartmarshall/treecleaner/internal/domain"
)

// Repo provides date normalization persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new date normalization repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// ---------------------------------------------------------------------------
// SQL constants
// ---------------------------------------------------------------------------

const recordColumns = `entity_type, entity_id, field, raw, normalized, precision, qualifier,
	confidence, ambiguous, observed_at, superseded_at`

const listCurrentSQL = `
SELECT ` + recordColumns + `
FROM dq_date_normalizations
WHERE superseded_at IS NULL
ORDER BY entity_type, entity_id, field`

const listForFieldSQL = `
SELECT ` + recordColumns + `
FROM dq_date_normalizations
WHERE entity_type = $1 AND entity_id = $2 AND field = $3
ORDER BY observed_at, raw`

const supersedeSQL = `
UPDATE dq_date_normalizations
SET superseded_at = $5
WHERE entity_type = $1 AND entity_id = $2 AND field = $3 AND raw <> $4
	AND superseded_at IS NULL`

const upsertSQL = `
INSERT INTO dq_date_normalizations (` + recordColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL)
ON CONFLICT (entity_type, entity_id, field, raw) DO UPDATE
SET normalized = EXCLUDED.normalized,
	precision = EXCLUDED.precision,
	qualifier = EXCLUDED.qualifier,
	confidence = EXCLUDED.confidence,
	ambiguous = EXCLUDED.ambiguous,
	observed_at = EXCLUDED.observed_at,
	superseded_at = NULL`

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// ListCurrent returns every observation that has not been superseded.
func (r *Repo) ListCurrent(ctx context.Context) ([]domain.DateNormalizationRecord, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := querier.Query(ctx, listCurrentSQL)
	if err != nil {
		return nil, fmt.Errorf("list date normalizations: %w", err)
	}
	return collect(rows)
}

// ListForField returns the full history of one field, oldest first.
func (r *Repo) ListForField(ctx context.Context, ref domain.FieldRef) ([]domain.DateNormalizationRecord, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := querier.Query(ctx, listForFieldSQL, string(ref.EntityType), ref.EntityID, ref.Field)
	if err != nil {
		return nil, fmt.Errorf("list date history %s: %w", ref, err)
	}
	return collect(rows)
}

// Record stores the given observations. For each field any current row with a
// different raw value is superseded at the given time. Returns the number of
// rows written.
func (r *Repo) Record(ctx context.Context, recs []domain.DateNormalizationRecord, at time.Time) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, rec := range recs {
		batch.Queue(supersedeSQL, string(rec.EntityType), rec.EntityID, rec.Field, rec.Raw, at)
		batch.Queue(upsertSQL,
			string(rec.EntityType), rec.EntityID, rec.Field, rec.Raw, rec.Normalized,
			string(rec.Precision), string(rec.Qualifier), rec.Confidence, rec.Ambiguous, rec.ObservedAt,
		)
	}

	querier := postgres.QuerierFromCtx(ctx, r.pool)
	results := querier.SendBatch(ctx, batch)
	defer results.Close()

	var written int
	for i := range batch.Len() {
		tag, err := results.Exec()
		if err != nil {
			return written, fmt.Errorf("record date normalizations: %w", err)
		}
		// Odd statements are the upserts.
		if i%2 == 1 {
			written += int(tag.RowsAffected())
		}
	}
	return written, nil
}

func collect(rows pgx.Rows) ([]domain.DateNormalizationRecord, error) {
	defer rows.Close()

	var out []domain.DateNormalizationRecord
	for rows.Next() {
		var (
			rec                         domain.DateNormalizationRecord
			entityType, prec, qualifier string
		)
		if err := rows.Scan(
			&entityType, &rec.EntityID, &rec.Field, &rec.Raw, &rec.Normalized, &prec, &qualifier,
			&rec.Confidence, &rec.Ambiguous, &rec.ObservedAt, &rec.SupersededAt,
		); err != nil {
			return nil, fmt.Errorf("scan date normalization: %w", err)
		}
		rec.EntityType = domain.EntityType(entityType)
		rec.Precision = domain.DatePrecision(prec)
		rec.Qualifier = domain.DateQualifier(qualifier)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("date normalization rows: %w", err)
	}
	return out, nil
}
