// Package field reads and writes single text columns of record rows. Only the
// place and date columns the normalization actions touch are addressable.
package field

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/heartmarshall/treecleaner/internal/adapter/postgres"
	"github.com/heartmarshall/treecleaner/internal/domain"
)

// Repo provides column access backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new field repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

var tables = map[domain.EntityType]string{
	domain.EntityPerson: "persons",
	domain.EntityFamily: "families",
	domain.EntityEvent:  "events",
}

// writable lists the addressable columns per entity.
var writable = func() map[domain.EntityType]map[string]bool {
	m := make(map[domain.EntityType]map[string]bool)
	add := func(e domain.EntityType, col string) {
		if m[e] == nil {
			m[e] = make(map[string]bool)
		}
		m[e][col] = true
	}
	for _, f := range domain.PlaceFields {
		add(f.EntityType, f.Field)
	}
	for _, f := range domain.DateFields {
		add(f.EntityType, f.Raw)
		add(f.EntityType, f.Canonical)
	}
	return m
}()

func resolve(ref domain.FieldRef) (string, error) {
	table, ok := tables[ref.EntityType]
	if !ok || !writable[ref.EntityType][ref.Field] {
		return "", domain.NewValidationError("field", fmt.Sprintf("%s.%s is not addressable", ref.EntityType, ref.Field))
	}
	return table, nil
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// Get returns the column value and locks the row.
func (r *Repo) Get(ctx context.Context, ref domain.FieldRef) (string, error) {
	table, err := resolve(ref)
	if err != nil {
		return "", err
	}
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	sql := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 FOR UPDATE`, ref.Field, table)
	var v string
	if err := querier.QueryRow(ctx, sql, ref.EntityID).Scan(&v); err != nil {
		return "", postgres.MapError(err, string(ref.EntityType), ref.EntityID)
	}
	return v, nil
}

// Set overwrites the column value.
func (r *Repo) Set(ctx context.Context, ref domain.FieldRef, value string) error {
	table, err := resolve(ref)
	if err != nil {
		return err
	}
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	sql := fmt.Sprintf(`UPDATE %s SET %s = $2 WHERE id = $1`, table, ref.Field)
	tag, err := querier.Exec(ctx, sql, ref.EntityID, value)
	if err != nil {
		return postgres.MapError(err, string(ref.EntityType), ref.EntityID)
	}
	if tag.RowsAffected() == 0 {
		return postgres.MapError(pgx.ErrNoRows, string(ref.EntityType), ref.EntityID)
	}
	return nil
}

// FindPlaceValues returns, locked and ordered, every place column whose
// trimmed value equals one of the variants.
func (r *Repo) FindPlaceValues(ctx context.Context, variants []string) ([]domain.FieldValue, error) {
	if len(variants) == 0 {
		return nil, nil
	}
	trimmed := make([]string, len(variants))
	for i, v := range variants {
		trimmed[i] = strings.TrimSpace(v)
	}
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	var out []domain.FieldValue
	for _, f := range domain.PlaceFields {
		table := tables[f.EntityType]
		sql := fmt.Sprintf(`SELECT id, %s FROM %s WHERE btrim(%s) = ANY($1) ORDER BY id FOR UPDATE`, f.Field, table, f.Field)

		rows, err := querier.Query(ctx, sql, trimmed)
		if err != nil {
			return nil, fmt.Errorf("find %s.%s values: %w", table, f.Field, err)
		}
		for rows.Next() {
			fv := domain.FieldValue{Ref: domain.FieldRef{EntityType: f.EntityType, Field: f.Field}}
			if err := rows.Scan(&fv.Ref.EntityID, &fv.Value); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan %s.%s: %w", table, f.Field, err)
			}
			out = append(out, fv)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("find %s.%s rows: %w", table, f.Field, err)
		}
	}
	return out, nil
}
