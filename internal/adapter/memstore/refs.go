package memstore

import (
	"context"
	"fmt"
	"slices"

	"github.com/heartmarshall/treecleaner/internal/domain"
)

// Refs is the reference rewriting view of a Store.
type Refs struct{ s *Store }

// Refs returns the reference repository.
func (s *Store) Refs() Refs { return Refs{s} }

// refCatalogue lists reference kinds per target type in the order ListRefs
// reports them.
var refCatalogue = map[domain.EntityType][]domain.RefKind{
	domain.EntityPerson: {
		domain.RefEventPerson, domain.RefNotePerson, domain.RefMediaLinkPerson,
		domain.RefFamilyHusband, domain.RefFamilyWife, domain.RefFamilyChild,
		domain.RefRelationshipParent, domain.RefRelationshipChild,
	},
	domain.EntityFamily: {
		domain.RefEventFamily, domain.RefNoteFamily, domain.RefMediaLinkFamily, domain.RefChildOfFamily,
	},
	domain.EntityMediaAsset: {
		domain.RefMediaLinkAsset,
	},
}

// slot is a settable foreign-key column on a copied row.
type slot struct {
	get   func() (int64, bool)
	set   func(int64)
	store func()
}

func ptrSlot(p **int64, store func()) slot {
	return slot{
		get: func() (int64, bool) {
			if *p == nil {
				return 0, false
			}
			return **p, true
		},
		set:   func(v int64) { *p = &v },
		store: store,
	}
}

// columnSlot finds the row a column reference lives on.
func columnSlot(st *state, kind domain.RefKind, rowID int64) (slot, bool) {
	switch kind {
	case domain.RefEventPerson, domain.RefEventFamily:
		e, ok := st.events[rowID]
		if !ok {
			return slot{}, false
		}
		store := func() { st.events[rowID] = e }
		if kind == domain.RefEventPerson {
			return ptrSlot(&e.PersonID, store), true
		}
		return ptrSlot(&e.FamilyID, store), true
	case domain.RefNotePerson, domain.RefNoteFamily:
		n, ok := st.notes[rowID]
		if !ok {
			return slot{}, false
		}
		store := func() { st.notes[rowID] = n }
		if kind == domain.RefNotePerson {
			return ptrSlot(&n.PersonID, store), true
		}
		return ptrSlot(&n.FamilyID, store), true
	case domain.RefMediaLinkPerson, domain.RefMediaLinkFamily, domain.RefMediaLinkAsset:
		l, ok := st.links[rowID]
		if !ok {
			return slot{}, false
		}
		store := func() { st.links[rowID] = l }
		switch kind {
		case domain.RefMediaLinkPerson:
			return ptrSlot(&l.PersonID, store), true
		case domain.RefMediaLinkFamily:
			return ptrSlot(&l.FamilyID, store), true
		}
		return slot{
			get:   func() (int64, bool) { return l.AssetID, true },
			set:   func(v int64) { l.AssetID = v },
			store: store,
		}, true
	case domain.RefFamilyHusband, domain.RefFamilyWife:
		f, ok := st.families[rowID]
		if !ok {
			return slot{}, false
		}
		store := func() { st.families[rowID] = f }
		if kind == domain.RefFamilyHusband {
			return ptrSlot(&f.HusbandID, store), true
		}
		return ptrSlot(&f.WifeID, store), true
	}
	return slot{}, false
}

func rowIDs(st *state, kind domain.RefKind) []int64 {
	switch kind {
	case domain.RefEventPerson, domain.RefEventFamily:
		return keys(st.events)
	case domain.RefNotePerson, domain.RefNoteFamily:
		return keys(st.notes)
	case domain.RefMediaLinkPerson, domain.RefMediaLinkFamily, domain.RefMediaLinkAsset:
		return keys(st.links)
	case domain.RefFamilyHusband, domain.RefFamilyWife:
		return keys(st.families)
	}
	return nil
}

// ListRefs returns every reference to the target record in catalogue order,
// then by row id.
func (r Refs) ListRefs(ctx context.Context, target domain.EntityType, id int64) ([]domain.Ref, error) {
	kinds, ok := refCatalogue[target]
	if !ok {
		return nil, domain.NewValidationError("entity_type", fmt.Sprintf("%s records have no references", target))
	}

	var out []domain.Ref
	err := r.s.read(ctx, func(st *state) error {
		for _, kind := range kinds {
			if !kind.IsJoinRow() {
				for _, row := range rowIDs(st, kind) {
					sl, _ := columnSlot(st, kind, row)
					if v, ok := sl.get(); ok && v == id {
						out = append(out, domain.Ref{Kind: kind, RowID: row, Target: id})
					}
				}
				continue
			}
			out = append(out, joinRefs(st, kind, id)...)
		}
		return nil
	})
	return out, err
}

func joinRefs(st *state, kind domain.RefKind, id int64) []domain.Ref {
	var out []domain.Ref
	switch kind {
	case domain.RefFamilyChild:
		for k := range st.children {
			if k[1] == id {
				out = append(out, domain.Ref{Kind: kind, RowID: k[0], Target: id})
			}
		}
	case domain.RefChildOfFamily:
		for k := range st.children {
			if k[0] == id {
				out = append(out, domain.Ref{Kind: kind, RowID: k[1], Target: id})
			}
		}
	case domain.RefRelationshipParent:
		for k, t := range st.relationships {
			if k[0] == id {
				out = append(out, domain.Ref{Kind: kind, RowID: k[1], Target: id, RelType: t})
			}
		}
	case domain.RefRelationshipChild:
		for k, t := range st.relationships {
			if k[1] == id {
				out = append(out, domain.Ref{Kind: kind, RowID: k[0], Target: id, RelType: t})
			}
		}
	}
	slices.SortFunc(out, func(a, b domain.Ref) int { return cmpInt(a.RowID, b.RowID) })
	return out
}

func targetExists(st *state, t domain.EntityType, id int64) bool {
	switch t {
	case domain.EntityPerson:
		_, ok := st.persons[id]
		return ok
	case domain.EntityFamily:
		_, ok := st.families[id]
		return ok
	case domain.EntityMediaAsset:
		_, ok := st.assets[id]
		return ok
	}
	return false
}

// joinKey returns the map key a join-table ref occupies and whether it lives
// in the relationships table.
func joinKey(kind domain.RefKind, rowID, target int64) (pair, bool) {
	switch kind {
	case domain.RefFamilyChild:
		return pair{rowID, target}, false
	case domain.RefChildOfFamily:
		return pair{target, rowID}, false
	case domain.RefRelationshipParent:
		return pair{target, rowID}, true
	default:
		return pair{rowID, target}, true
	}
}

// Repoint moves ref to the record to. See the PostgreSQL repository for the
// join-row collision rules, which this mirrors.
func (r Refs) Repoint(ctx context.Context, ref domain.Ref, to int64) (bool, error) {
	var moved bool
	err := r.s.write(ctx, func(st *state) error {
		if !targetExists(st, ref.Kind.TargetType(), to) {
			return missingParent(string(ref.Kind.TargetType()), to)
		}

		if !ref.Kind.IsJoinRow() {
			sl, ok := columnSlot(st, ref.Kind, ref.RowID)
			if !ok {
				return fmt.Errorf("%s: %w", ref, domain.ErrConflict)
			}
			if v, ok := sl.get(); !ok || v != ref.Target {
				return fmt.Errorf("%s: %w", ref, domain.ErrConflict)
			}
			sl.set(to)
			sl.store()
			if ref.Kind == domain.RefFamilyHusband || ref.Kind == domain.RefFamilyWife {
				f := st.families[ref.RowID]
				if err := checkSpouses(st, &f); err != nil {
					return err
				}
			}
			moved = true
			return nil
		}

		oldKey, isRel := joinKey(ref.Kind, ref.RowID, ref.Target)
		newKey, _ := joinKey(ref.Kind, ref.RowID, to)
		if isRel {
			relType, ok := st.relationships[oldKey]
			if !ok {
				return fmt.Errorf("%s: %w", ref, domain.ErrConflict)
			}
			delete(st.relationships, oldKey)
			if newKey[0] == newKey[1] {
				return nil
			}
			if _, exists := st.relationships[newKey]; !exists {
				st.relationships[newKey] = relType
				moved = true
			}
			return nil
		}

		if _, ok := st.children[oldKey]; !ok {
			return fmt.Errorf("%s: %w", ref, domain.ErrConflict)
		}
		delete(st.children, oldKey)
		if _, exists := st.children[newKey]; !exists {
			st.children[newKey] = struct{}{}
			moved = true
		}
		return nil
	})
	return moved, err
}

// Insert re-creates a dropped join row exactly as ref describes it.
func (r Refs) Insert(ctx context.Context, ref domain.Ref) error {
	if !ref.Kind.IsJoinRow() {
		return fmt.Errorf("insert %s: only join rows can be re-created: %w", ref.Kind, domain.ErrValidation)
	}
	return r.s.write(ctx, func(st *state) error {
		key, isRel := joinKey(ref.Kind, ref.RowID, ref.Target)
		if isRel {
			if _, exists := st.relationships[key]; exists {
				return fmt.Errorf("%s already exists: %w", ref, domain.ErrConflict)
			}
			st.relationships[key] = relTypeOrDefault(ref.RelType)
			return nil
		}
		if _, exists := st.children[key]; exists {
			return fmt.Errorf("%s already exists: %w", ref, domain.ErrConflict)
		}
		st.children[key] = struct{}{}
		return nil
	})
}
