// Package person implements the Person repository using PostgreSQL.
package person

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/heartmarshall/treecleaner/internal/adapter/postgres"
	"github.com/heartmarshall/treecleaner/internal/domain"
)

// Repo provides person persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new person repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// ---------------------------------------------------------------------------
// SQL constants
// ---------------------------------------------------------------------------

const personColumns = `id, xref, given, surname, sex, birth_date, birth_place, death_date, death_place,
	birth_date_canonical, death_date_canonical, created_at, updated_at`

const getByIDSQL = `
SELECT ` + personColumns + `
FROM persons
WHERE id = $1`

const getByIDForUpdateSQL = getByIDSQL + `
FOR UPDATE`

const listAllSQL = `
SELECT ` + personColumns + `
FROM persons
ORDER BY id`

// insertSQL keeps the explicit id: undo restores a merged-away person under
// its original id.
const insertSQL = `
INSERT INTO persons (` + personColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

const updateSQL = `
UPDATE persons
SET xref = $2, given = $3, surname = $4, sex = $5,
	birth_date = $6, birth_place = $7, death_date = $8, death_place = $9,
	birth_date_canonical = $10, death_date_canonical = $11, updated_at = $12
WHERE id = $1`

const deleteSQL = `DELETE FROM persons WHERE id = $1`

// ---------------------------------------------------------------------------
// Read operations
// ---------------------------------------------------------------------------

// GetByID returns a person by primary key.
func (r *Repo) GetByID(ctx context.Context, id int64) (*domain.Person, error) {
	return r.get(ctx, postgres.QuerierFromCtx(ctx, r.pool), getByIDSQL, id)
}

// GetByIDForUpdate returns a person and locks its row for the rest of the transaction.
func (r *Repo) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Person, error) {
	querier, err := postgres.LockingQuerier(ctx)
	if err != nil {
		return nil, err
	}
	return r.get(ctx, querier, getByIDForUpdateSQL, id)
}

func (r *Repo) get(ctx context.Context, querier postgres.Querier, sql string, id int64) (*domain.Person, error) {
	p, err := scanPerson(querier.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, postgres.MapError(err, "person", id)
	}
	return p, nil
}

// ListAll returns every person ordered by id.
func (r *Repo) ListAll(ctx context.Context) ([]domain.Person, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := querier.Query(ctx, listAllSQL)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()

	var out []domain.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list persons rows: %w", err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Write operations
// ---------------------------------------------------------------------------

// Insert stores p under its own id.
func (r *Repo) Insert(ctx context.Context, p *domain.Person) error {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	_, err := querier.Exec(ctx, insertSQL,
		p.ID, p.Xref, p.Given, p.Surname, p.Sex,
		p.BirthDate, p.BirthPlace, p.DeathDate, p.DeathPlace,
		p.BirthDateCanonical, p.DeathDateCanonical, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return postgres.MapError(err, "person", p.ID)
	}
	return nil
}

// Update overwrites every mutable column of p.
func (r *Repo) Update(ctx context.Context, p *domain.Person) error {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	tag, err := querier.Exec(ctx, updateSQL,
		p.ID, p.Xref, p.Given, p.Surname, p.Sex,
		p.BirthDate, p.BirthPlace, p.DeathDate, p.DeathPlace,
		p.BirthDateCanonical, p.DeathDateCanonical, p.UpdatedAt,
	)
	if err != nil {
		return postgres.MapError(err, "person", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return postgres.MapError(pgx.ErrNoRows, "person", p.ID)
	}
	return nil
}

// Delete removes a person. Remaining references make it fail with
// domain.ErrIntegrityViolation.
func (r *Repo) Delete(ctx context.Context, id int64) error {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	tag, err := querier.Exec(ctx, deleteSQL, id)
	if err != nil {
		return postgres.MapError(err, "person", id)
	}
	if tag.RowsAffected() == 0 {
		return postgres.MapError(pgx.ErrNoRows, "person", id)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func scanPerson(row pgx.Row) (*domain.Person, error) {
	var p domain.Person
	err := row.Scan(
		&p.ID, &p.Xref, &p.Given, &p.Surname, &p.Sex,
		&p.BirthDate, &p.BirthPlace, &p.DeathDate, &p.DeathPlace,
		&p.BirthDateCanonical, &p.DeathDateCanonical, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
