// Package snapshot loads every record the detectors read in one pass.
package snapshot

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/heartmarshall/treecleaner/internal/adapter/postgres"
	"github.com/heartmarshall/treecleaner/internal/adapter/postgres/family"
	"github.com/heartmarshall/treecleaner/internal/adapter/postgres/media"
	"github.com/heartmarshall/treecleaner/internal/adapter/postgres/person"
	"github.com/heartmarshall/treecleaner/internal/domain"
)

// Repo reads a full snapshot. Callers wrap Load in a read-only transaction
// to get a consistent view.
type Repo struct {
	pool     *pgxpool.Pool
	persons  *person.Repo
	families *family.Repo
	media    *media.Repo
}

// New creates a new snapshot loader.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{
		pool:     pool,
		persons:  person.New(pool),
		families: family.New(pool),
		media:    media.New(pool),
	}
}

// ---------------------------------------------------------------------------
// SQL constants
// ---------------------------------------------------------------------------

const listRelationshipsSQL = `
SELECT parent_id, child_id, rel_type
FROM relationships
ORDER BY parent_id, child_id`

const listEventsSQL = `
SELECT id, event_type, person_id, family_id, date_raw, place_raw, date_canonical,
	place_id, description, created_at
FROM events
ORDER BY id`

const listPlacesSQL = `
SELECT p.id, p.canonical_name,
	ARRAY(SELECT v.variant FROM place_variants v WHERE v.place_id = p.id ORDER BY v.variant)
FROM places p
ORDER BY p.id`

const dateStatsSQL = `
SELECT count(*) FILTER (WHERE btrim(raw) <> ''),
	count(*) FILTER (WHERE btrim(raw) <> '' AND btrim(canonical) <> '')
FROM (
	SELECT birth_date AS raw, birth_date_canonical AS canonical FROM persons
	UNION ALL SELECT death_date, death_date_canonical FROM persons
	UNION ALL SELECT date_raw, date_canonical FROM events
	UNION ALL SELECT marriage_date, marriage_date_canonical FROM families
) d`

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// Load reads persons, families, relationships, events, places and media.
func (r *Repo) Load(ctx context.Context) (*domain.Snapshot, error) {
	var (
		snap domain.Snapshot
		err  error
	)
	if snap.Persons, err = r.persons.ListAll(ctx); err != nil {
		return nil, err
	}
	if snap.Families, err = r.families.ListAll(ctx); err != nil {
		return nil, err
	}
	if snap.Relationships, err = r.listRelationships(ctx); err != nil {
		return nil, err
	}
	if snap.Events, err = r.listEvents(ctx); err != nil {
		return nil, err
	}
	if snap.Places, err = r.listPlaces(ctx); err != nil {
		return nil, err
	}
	if snap.MediaAssets, err = r.media.ListAssets(ctx); err != nil {
		return nil, err
	}
	if snap.MediaLinks, err = r.media.ListLinks(ctx); err != nil {
		return nil, err
	}
	return &snap, nil
}

// DateStats counts non-empty raw dates across every date column.
func (r *Repo) DateStats(ctx context.Context) (domain.DateStats, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	var s domain.DateStats
	if err := querier.QueryRow(ctx, dateStatsSQL).Scan(&s.Total, &s.Standardized); err != nil {
		return domain.DateStats{}, fmt.Errorf("date stats: %w", err)
	}
	return s, nil
}

func (r *Repo) listRelationships(ctx context.Context) ([]domain.Relationship, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := querier.Query(ctx, listRelationshipsSQL)
	if err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}
	defer rows.Close()

	var out []domain.Relationship
	for rows.Next() {
		var rel domain.Relationship
		if err := rows.Scan(&rel.ParentID, &rel.ChildID, &rel.RelType); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		out = append(out, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("relationship rows: %w", err)
	}
	return out, nil
}

func (r *Repo) listEvents(ctx context.Context) ([]domain.Event, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := querier.Query(ctx, listEventsSQL)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var (
			e         domain.Event
			eventType string
		)
		if err := rows.Scan(
			&e.ID, &eventType, &e.PersonID, &e.FamilyID, &e.DateRaw, &e.PlaceRaw, &e.DateCanonical,
			&e.PlaceID, &e.Description, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.EventType = domain.EventType(eventType)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("event rows: %w", err)
	}
	return out, nil
}

func (r *Repo) listPlaces(ctx context.Context) ([]domain.Place, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := querier.Query(ctx, listPlacesSQL)
	if err != nil {
		return nil, fmt.Errorf("list places: %w", err)
	}
	defer rows.Close()

	var out []domain.Place
	for rows.Next() {
		var p domain.Place
		if err := rows.Scan(&p.ID, &p.CanonicalName, &p.Variants); err != nil {
			return nil, fmt.Errorf("scan place: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("place rows: %w", err)
	}
	return out, nil
}
