// Package family implements the Family repository using PostgreSQL.
// Child ids are read from family_children; writes here never touch that
// table, which is maintained through the ref repository.
package family

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/heartmarshall/treecleaner/internal/adapter/postgres"
	"github.com/heartmarshall/treecleaner/internal/domain"
)

// Repo provides family persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new family repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// ---------------------------------------------------------------------------
// SQL constants
// ---------------------------------------------------------------------------

const familyColumns = `f.id, f.xref, f.husband_id, f.wife_id, f.marriage_date, f.marriage_place,
	f.marriage_date_canonical, f.created_at, f.updated_at,
	ARRAY(SELECT fc.child_id FROM family_children fc WHERE fc.family_id = f.id ORDER BY fc.child_id)`

const getByIDSQL = `
SELECT ` + familyColumns + `
FROM families f
WHERE f.id = $1`

const getByIDForUpdateSQL = getByIDSQL + `
FOR UPDATE OF f`

const listAllSQL = `
SELECT ` + familyColumns + `
FROM families f
ORDER BY f.id`

const insertSQL = `
INSERT INTO families (id, xref, husband_id, wife_id, marriage_date, marriage_place,
	marriage_date_canonical, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

const updateSQL = `
UPDATE families
SET xref = $2, husband_id = $3, wife_id = $4, marriage_date = $5, marriage_place = $6,
	marriage_date_canonical = $7, updated_at = $8
WHERE id = $1`

const deleteSQL = `DELETE FROM families WHERE id = $1`

// ---------------------------------------------------------------------------
// Read operations
// ---------------------------------------------------------------------------

// GetByID returns a family with its child ids.
func (r *Repo) GetByID(ctx context.Context, id int64) (*domain.Family, error) {
	return r.get(ctx, postgres.QuerierFromCtx(ctx, r.pool), getByIDSQL, id)
}

// GetByIDForUpdate returns a family and locks its row.
func (r *Repo) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Family, error) {
	querier, err := postgres.LockingQuerier(ctx)
	if err != nil {
		return nil, err
	}
	return r.get(ctx, querier, getByIDForUpdateSQL, id)
}

func (r *Repo) get(ctx context.Context, querier postgres.Querier, sql string, id int64) (*domain.Family, error) {
	f, err := scanFamily(querier.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, postgres.MapError(err, "family", id)
	}
	return f, nil
}

// ListAll returns every family ordered by id.
func (r *Repo) ListAll(ctx context.Context) ([]domain.Family, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := querier.Query(ctx, listAllSQL)
	if err != nil {
		return nil, fmt.Errorf("list families: %w", err)
	}
	defer rows.Close()

	var out []domain.Family
	for rows.Next() {
		f, err := scanFamily(rows)
		if err != nil {
			return nil, fmt.Errorf("scan family: %w", err)
		}
		out = append(out, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list families rows: %w", err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Write operations
// ---------------------------------------------------------------------------

// Insert stores f under its own id. ChildIDs are ignored.
func (r *Repo) Insert(ctx context.Context, f *domain.Family) error {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	_, err := querier.Exec(ctx, insertSQL,
		f.ID, f.Xref, f.HusbandID, f.WifeID, f.MarriageDate, f.MarriagePlace,
		f.MarriageDateCanonical, f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		return postgres.MapError(err, "family", f.ID)
	}
	return nil
}

// Update overwrites the family row. ChildIDs are ignored.
func (r *Repo) Update(ctx context.Context, f *domain.Family) error {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	tag, err := querier.Exec(ctx, updateSQL,
		f.ID, f.Xref, f.HusbandID, f.WifeID, f.MarriageDate, f.MarriagePlace,
		f.MarriageDateCanonical, f.UpdatedAt,
	)
	if err != nil {
		return postgres.MapError(err, "family", f.ID)
	}
	if tag.RowsAffected() == 0 {
		return postgres.MapError(pgx.ErrNoRows, "family", f.ID)
	}
	return nil
}

// Delete removes a family row.
func (r *Repo) Delete(ctx context.Context, id int64) error {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	tag, err := querier.Exec(ctx, deleteSQL, id)
	if err != nil {
		return postgres.MapError(err, "family", id)
	}
	if tag.RowsAffected() == 0 {
		return postgres.MapError(pgx.ErrNoRows, "family", id)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func scanFamily(row pgx.Row) (*domain.Family, error) {
	var f domain.Family
	err := row.Scan(
		&f.ID, &f.Xref, &f.HusbandID, &f.WifeID, &f.MarriageDate, &f.MarriagePlace,
		&f.MarriageDateCanonical, &f.CreatedAt, &f.UpdatedAt, &f.ChildIDs,
	)
	if err != nil {
		return nil, err
	}
	if len(f.ChildIDs) == 0 {
		f.ChildIDs = nil
	}
	return &f, nil
}
