// Package ref finds and rewrites every row that points at a person, family
// or media asset. Merges move references with Repoint; undo moves them back
// and re-creates the join rows a merge had to drop.
package ref

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/heartmarshall/treecleaner/internal/adapter/postgres"
	"github.com/heartmarshall/treecleaner/internal/domain"
)

// Repo provides reference rewriting backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new ref repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// ---------------------------------------------------------------------------
// Reference catalogue
// ---------------------------------------------------------------------------

// column describes a foreign-key column on a row with its own primary key.
type column struct {
	table string
	name  string
}

var columns = map[domain.RefKind]column{
	domain.RefEventPerson:     {"events", "person_id"},
	domain.RefEventFamily:     {"events", "family_id"},
	domain.RefNotePerson:      {"notes", "person_id"},
	domain.RefNoteFamily:      {"notes", "family_id"},
	domain.RefMediaLinkPerson: {"media_links", "person_id"},
	domain.RefMediaLinkFamily: {"media_links", "family_id"},
	domain.RefMediaLinkAsset:  {"media_links", "asset_id"},
	domain.RefFamilyHusband:   {"families", "husband_id"},
	domain.RefFamilyWife:      {"families", "wife_id"},
}

// lister returns (kind, row id, rel_type) triples for one target id.
type lister struct {
	kind domain.RefKind
	sql  string
}

func columnLister(kind domain.RefKind) lister {
	c := columns[kind]
	return lister{
		kind: kind,
		sql:  fmt.Sprintf(`SELECT id, '' FROM %s WHERE %s = $1 ORDER BY id FOR UPDATE`, c.table, c.name),
	}
}

var listers = map[domain.EntityType][]lister{
	domain.EntityPerson: {
		columnLister(domain.RefEventPerson),
		columnLister(domain.RefNotePerson),
		columnLister(domain.RefMediaLinkPerson),
		columnLister(domain.RefFamilyHusband),
		columnLister(domain.RefFamilyWife),
		{domain.RefFamilyChild, `SELECT family_id, '' FROM family_children WHERE child_id = $1 ORDER BY family_id FOR UPDATE`},
		{domain.RefRelationshipParent, `SELECT child_id, rel_type FROM relationships WHERE parent_id = $1 ORDER BY child_id FOR UPDATE`},
		{domain.RefRelationshipChild, `SELECT parent_id, rel_type FROM relationships WHERE child_id = $1 ORDER BY parent_id FOR UPDATE`},
	},
	domain.EntityFamily: {
		columnLister(domain.RefEventFamily),
		columnLister(domain.RefNoteFamily),
		columnLister(domain.RefMediaLinkFamily),
		{domain.RefChildOfFamily, `SELECT child_id, '' FROM family_children WHERE family_id = $1 ORDER BY child_id FOR UPDATE`},
	},
	domain.EntityMediaAsset: {
		columnLister(domain.RefMediaLinkAsset),
	},
}

// ---------------------------------------------------------------------------
// SQL constants (join rows)
// ---------------------------------------------------------------------------

const deleteFamilyChildSQL = `DELETE FROM family_children WHERE family_id = $1 AND child_id = $2`

const insertFamilyChildSQL = `
INSERT INTO family_children (family_id, child_id) VALUES ($1, $2)
ON CONFLICT DO NOTHING`

const deleteRelationshipSQL = `DELETE FROM relationships WHERE parent_id = $1 AND child_id = $2`

const insertRelationshipSQL = `
INSERT INTO relationships (parent_id, child_id, rel_type) VALUES ($1, $2, $3)
ON CONFLICT DO NOTHING`

// ---------------------------------------------------------------------------
// Read operations
// ---------------------------------------------------------------------------

// ListRefs returns every reference to the target record, locking the
// referring rows. Order is deterministic: catalogue order, then row id.
func (r *Repo) ListRefs(ctx context.Context, target domain.EntityType, id int64) ([]domain.Ref, error) {
	ls, ok := listers[target]
	if !ok {
		return nil, domain.NewValidationError("entity_type", fmt.Sprintf("%s records have no references", target))
	}
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	var out []domain.Ref
	for _, l := range ls {
		rows, err := querier.Query(ctx, l.sql, id)
		if err != nil {
			return nil, fmt.Errorf("list %s refs: %w", l.kind, err)
		}
		for rows.Next() {
			ref := domain.Ref{Kind: l.kind, Target: id}
			if err := rows.Scan(&ref.RowID, &ref.RelType); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan %s ref: %w", l.kind, err)
			}
			out = append(out, ref)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("list %s refs rows: %w", l.kind, err)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Write operations
// ---------------------------------------------------------------------------

// Repoint moves ref to the record to. Column references always move. A
// join row is deleted and re-inserted; when the new row already exists, or a
// relationship would point at itself, the old row is gone and moved is false.
// A reference that no longer exists yields domain.ErrConflict.
func (r *Repo) Repoint(ctx context.Context, ref domain.Ref, to int64) (moved bool, err error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	if c, ok := columns[ref.Kind]; ok {
		sql := fmt.Sprintf(`UPDATE %s SET %s = $1 WHERE id = $2 AND %s = $3`, c.table, c.name, c.name)
		tag, err := querier.Exec(ctx, sql, to, ref.RowID, ref.Target)
		if err != nil {
			return false, postgres.MapError(err, string(ref.Kind), ref.RowID)
		}
		if tag.RowsAffected() == 0 {
			return false, fmt.Errorf("%s: %w", ref, domain.ErrConflict)
		}
		return true, nil
	}

	del, ins, insArgs := joinStatements(ref, to)
	if del == nil {
		return false, fmt.Errorf("unknown ref kind %q: %w", ref.Kind, domain.ErrValidation)
	}

	tag, err := querier.Exec(ctx, del.sql, del.args...)
	if err != nil {
		return false, postgres.MapError(err, string(ref.Kind), ref.RowID)
	}
	if tag.RowsAffected() == 0 {
		return false, fmt.Errorf("%s: %w", ref, domain.ErrConflict)
	}

	if ins == "" {
		return false, nil
	}
	tag, err = querier.Exec(ctx, ins, insArgs...)
	if err != nil {
		return false, postgres.MapError(err, string(ref.Kind), ref.RowID)
	}
	return tag.RowsAffected() == 1, nil
}

// Insert re-creates a dropped join row exactly as ref describes it.
func (r *Repo) Insert(ctx context.Context, ref domain.Ref) error {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	var (
		sql  string
		args []any
	)
	switch ref.Kind {
	case domain.RefFamilyChild:
		sql, args = insertFamilyChildSQL, []any{ref.RowID, ref.Target}
	case domain.RefChildOfFamily:
		sql, args = insertFamilyChildSQL, []any{ref.Target, ref.RowID}
	case domain.RefRelationshipParent:
		sql, args = insertRelationshipSQL, []any{ref.Target, ref.RowID, relType(ref)}
	case domain.RefRelationshipChild:
		sql, args = insertRelationshipSQL, []any{ref.RowID, ref.Target, relType(ref)}
	default:
		return fmt.Errorf("insert %s: only join rows can be re-created: %w", ref.Kind, domain.ErrValidation)
	}

	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, string(ref.Kind), ref.RowID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s already exists: %w", ref, domain.ErrConflict)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type statement struct {
	sql  string
	args []any
}

// joinStatements returns the delete for the current row and the insert for
// the repointed one. The insert is empty when the new row would be a
// self-referencing relationship.
func joinStatements(ref domain.Ref, to int64) (*statement, string, []any) {
	switch ref.Kind {
	case domain.RefFamilyChild:
		return &statement{deleteFamilyChildSQL, []any{ref.RowID, ref.Target}},
			insertFamilyChildSQL, []any{ref.RowID, to}
	case domain.RefChildOfFamily:
		return &statement{deleteFamilyChildSQL, []any{ref.Target, ref.RowID}},
			insertFamilyChildSQL, []any{to, ref.RowID}
	case domain.RefRelationshipParent:
		del := &statement{deleteRelationshipSQL, []any{ref.Target, ref.RowID}}
		if to == ref.RowID {
			return del, "", nil
		}
		return del, insertRelationshipSQL, []any{to, ref.RowID, relType(ref)}
	case domain.RefRelationshipChild:
		del := &statement{deleteRelationshipSQL, []any{ref.RowID, ref.Target}}
		if to == ref.RowID {
			return del, "", nil
		}
		return del, insertRelationshipSQL, []any{ref.RowID, to, relType(ref)}
	}
	return nil, "", nil
}

func relType(ref domain.Ref) string {
	if ref.RelType == "" {
		return "biological"
	}
	return ref.RelType
}
