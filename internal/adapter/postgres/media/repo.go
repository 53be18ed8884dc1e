// Package media implements the media asset and media link repositories using PostgreSQL.
package media

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/heartmarshall/treecleaner/internal/adapter/postgres"
	"github.com/heartmarshall/treecleaner/internal/domain"
)

// Repo provides media persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new media repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// ---------------------------------------------------------------------------
// SQL constants
// ---------------------------------------------------------------------------

const assetColumns = `id, path, sha256, original_filename, mime_type, size_bytes, status, created_at`

const linkColumns = `id, asset_id, person_id, family_id, description, created_at`

const getAssetForUpdateSQL = `
SELECT ` + assetColumns + `
FROM media_assets
WHERE id = $1
FOR UPDATE`

const listAssetsSQL = `
SELECT ` + assetColumns + `
FROM media_assets
ORDER BY id`

const insertAssetSQL = `
INSERT INTO media_assets (` + assetColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

const deleteAssetSQL = `DELETE FROM media_assets WHERE id = $1`

const listLinksSQL = `
SELECT ` + linkColumns + `
FROM media_links
ORDER BY id`

const getLinksForUpdateSQL = `
SELECT ` + linkColumns + `
FROM media_links
WHERE id = ANY($1)
ORDER BY id
FOR UPDATE`

const insertLinkSQL = `
INSERT INTO media_links (` + linkColumns + `)
VALUES ($1, $2, $3, $4, $5, $6)`

const deleteLinkSQL = `DELETE FROM media_links WHERE id = $1`

// ---------------------------------------------------------------------------
// Assets
// ---------------------------------------------------------------------------

// GetAssetForUpdate returns an asset and locks its row.
func (r *Repo) GetAssetForUpdate(ctx context.Context, id int64) (*domain.MediaAsset, error) {
	querier, err := postgres.LockingQuerier(ctx)
	if err != nil {
		return nil, err
	}

	a, err := scanAsset(querier.QueryRow(ctx, getAssetForUpdateSQL, id))
	if err != nil {
		return nil, postgres.MapError(err, "media asset", id)
	}
	return a, nil
}

// ListAssets returns every asset ordered by id.
func (r *Repo) ListAssets(ctx context.Context) ([]domain.MediaAsset, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := querier.Query(ctx, listAssetsSQL)
	if err != nil {
		return nil, fmt.Errorf("list media assets: %w", err)
	}
	defer rows.Close()

	var out []domain.MediaAsset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media asset: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list media assets rows: %w", err)
	}
	return out, nil
}

// InsertAsset stores a under its own id.
func (r *Repo) InsertAsset(ctx context.Context, a *domain.MediaAsset) error {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	_, err := querier.Exec(ctx, insertAssetSQL,
		a.ID, a.Path, a.SHA256, a.OriginalFilename, a.MimeType, a.SizeBytes, a.Status, a.CreatedAt,
	)
	if err != nil {
		return postgres.MapError(err, "media asset", a.ID)
	}
	return nil
}

// DeleteAsset removes an asset row.
func (r *Repo) DeleteAsset(ctx context.Context, id int64) error {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	tag, err := querier.Exec(ctx, deleteAssetSQL, id)
	if err != nil {
		return postgres.MapError(err, "media asset", id)
	}
	if tag.RowsAffected() == 0 {
		return postgres.MapError(pgx.ErrNoRows, "media asset", id)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Links
// ---------------------------------------------------------------------------

// ListLinks returns every link ordered by id.
func (r *Repo) ListLinks(ctx context.Context) ([]domain.MediaLink, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := querier.Query(ctx, listLinksSQL)
	if err != nil {
		return nil, fmt.Errorf("list media links: %w", err)
	}
	return collectLinks(rows)
}

// GetLinksForUpdate returns the requested links ordered by id and locks them.
// Missing ids are simply absent from the result.
func (r *Repo) GetLinksForUpdate(ctx context.Context, ids []int64) ([]domain.MediaLink, error) {
	querier, err := postgres.LockingQuerier(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := querier.Query(ctx, getLinksForUpdateSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("get media links: %w", err)
	}
	return collectLinks(rows)
}

// InsertLink stores l under its own id.
func (r *Repo) InsertLink(ctx context.Context, l *domain.MediaLink) error {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	_, err := querier.Exec(ctx, insertLinkSQL,
		l.ID, l.AssetID, l.PersonID, l.FamilyID, l.Description, l.CreatedAt,
	)
	if err != nil {
		return postgres.MapError(err, "media link", l.ID)
	}
	return nil
}

// DeleteLink removes a link row.
func (r *Repo) DeleteLink(ctx context.Context, id int64) error {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	tag, err := querier.Exec(ctx, deleteLinkSQL, id)
	if err != nil {
		return postgres.MapError(err, "media link", id)
	}
	if tag.RowsAffected() == 0 {
		return postgres.MapError(pgx.ErrNoRows, "media link", id)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func scanAsset(row pgx.Row) (*domain.MediaAsset, error) {
	var a domain.MediaAsset
	err := row.Scan(&a.ID, &a.Path, &a.SHA256, &a.OriginalFilename, &a.MimeType, &a.SizeBytes, &a.Status, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func collectLinks(rows pgx.Rows) ([]domain.MediaLink, error) {
	defer rows.Close()

	var out []domain.MediaLink
	for rows.Next() {
		var l domain.MediaLink
		if err := rows.Scan(&l.ID, &l.AssetID, &l.PersonID, &l.FamilyID, &l.Description, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan media link: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("media link rows: %w", err)
	}
	return out, nil
}
