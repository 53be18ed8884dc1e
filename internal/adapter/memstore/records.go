package memstore

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/heartmarshall/treecleaner/internal/domain"
)

// ---------------------------------------------------------------------------
// Persons
// ---------------------------------------------------------------------------

// Persons is the person repository view of a Store.
type Persons struct{ s *Store }

// Persons returns the person repository.
func (s *Store) Persons() Persons { return Persons{s} }

func (r Persons) GetByID(ctx context.Context, id int64) (*domain.Person, error) {
	var out *domain.Person
	err := r.s.read(ctx, func(st *state) error {
		p, ok := st.persons[id]
		if !ok {
			return notFound("person", id)
		}
		out = &p
		return nil
	})
	return out, err
}

func (r Persons) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Person, error) {
	return r.GetByID(ctx, id)
}

func (r Persons) ListAll(ctx context.Context) ([]domain.Person, error) {
	var out []domain.Person
	err := r.s.read(ctx, func(st *state) error {
		out = sortedValues(st.persons, func(p domain.Person) int64 { return p.ID })
		return nil
	})
	return out, err
}

func (r Persons) Insert(ctx context.Context, p *domain.Person) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.persons[p.ID]; ok {
			return alreadyExists("person", p.ID)
		}
		st.persons[p.ID] = *p
		return nil
	})
}

func (r Persons) Update(ctx context.Context, p *domain.Person) error {
	return r.s.write(ctx, func(st *state) error {
		prev, ok := st.persons[p.ID]
		if !ok {
			return notFound("person", p.ID)
		}
		next := *p
		next.CreatedAt = prev.CreatedAt
		st.persons[p.ID] = next
		return nil
	})
}

func (r Persons) Delete(ctx context.Context, id int64) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.persons[id]; !ok {
			return notFound("person", id)
		}
		if by := personReferrer(st, id); by != "" {
			return stillReferenced("person", id, by)
		}
		delete(st.persons, id)
		return nil
	})
}

func personReferrer(st *state, id int64) string {
	for _, e := range st.events {
		if e.PersonID != nil && *e.PersonID == id {
			return "events"
		}
	}
	for _, n := range st.notes {
		if n.PersonID != nil && *n.PersonID == id {
			return "notes"
		}
	}
	for _, l := range st.links {
		if l.PersonID != nil && *l.PersonID == id {
			return "media_links"
		}
	}
	for _, f := range st.families {
		if (f.HusbandID != nil && *f.HusbandID == id) || (f.WifeID != nil && *f.WifeID == id) {
			return "families"
		}
	}
	for k := range st.children {
		if k[1] == id {
			return "family_children"
		}
	}
	for k := range st.relationships {
		if k[0] == id || k[1] == id {
			return "relationships"
		}
	}
	return ""
}

// ---------------------------------------------------------------------------
// Families
// ---------------------------------------------------------------------------

// Families is the family repository view of a Store.
type Families struct{ s *Store }

// Families returns the family repository.
func (s *Store) Families() Families { return Families{s} }

func familyWithChildren(st *state, f domain.Family) domain.Family {
	var kids []int64
	for k := range st.children {
		if k[0] == f.ID {
			kids = append(kids, k[1])
		}
	}
	slices.Sort(kids)
	f.ChildIDs = kids
	return f
}

func (r Families) GetByID(ctx context.Context, id int64) (*domain.Family, error) {
	var out *domain.Family
	err := r.s.read(ctx, func(st *state) error {
		f, ok := st.families[id]
		if !ok {
			return notFound("family", id)
		}
		f = familyWithChildren(st, f)
		out = &f
		return nil
	})
	return out, err
}

func (r Families) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Family, error) {
	return r.GetByID(ctx, id)
}

func (r Families) ListAll(ctx context.Context) ([]domain.Family, error) {
	var out []domain.Family
	err := r.s.read(ctx, func(st *state) error {
		out = sortedValues(st.families, func(f domain.Family) int64 { return f.ID })
		for i := range out {
			out[i] = familyWithChildren(st, out[i])
		}
		return nil
	})
	return out, err
}

func checkSpouses(st *state, f *domain.Family) error {
	if f.HusbandID != nil && f.WifeID != nil && *f.HusbandID == *f.WifeID {
		return fmt.Errorf("family %d: husband and wife are the same person: %w", f.ID, domain.ErrIntegrityViolation)
	}
	for _, id := range f.SpouseIDs() {
		if _, ok := st.persons[id]; !ok {
			return missingParent("person", id)
		}
	}
	return nil
}

// Insert stores f under its own id. ChildIDs are ignored; children are
// family_children rows handled through the ref repository.
func (r Families) Insert(ctx context.Context, f *domain.Family) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.families[f.ID]; ok {
			return alreadyExists("family", f.ID)
		}
		if err := checkSpouses(st, f); err != nil {
			return err
		}
		next := *f
		next.ChildIDs = nil
		st.families[f.ID] = next
		return nil
	})
}

func (r Families) Update(ctx context.Context, f *domain.Family) error {
	return r.s.write(ctx, func(st *state) error {
		prev, ok := st.families[f.ID]
		if !ok {
			return notFound("family", f.ID)
		}
		if err := checkSpouses(st, f); err != nil {
			return err
		}
		next := *f
		next.ChildIDs = nil
		next.CreatedAt = prev.CreatedAt
		st.families[f.ID] = next
		return nil
	})
}

func (r Families) Delete(ctx context.Context, id int64) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.families[id]; !ok {
			return notFound("family", id)
		}
		if by := familyReferrer(st, id); by != "" {
			return stillReferenced("family", id, by)
		}
		delete(st.families, id)
		return nil
	})
}

func familyReferrer(st *state, id int64) string {
	for _, e := range st.events {
		if e.FamilyID != nil && *e.FamilyID == id {
			return "events"
		}
	}
	for _, n := range st.notes {
		if n.FamilyID != nil && *n.FamilyID == id {
			return "notes"
		}
	}
	for _, l := range st.links {
		if l.FamilyID != nil && *l.FamilyID == id {
			return "media_links"
		}
	}
	for k := range st.children {
		if k[0] == id {
			return "family_children"
		}
	}
	return ""
}

// ---------------------------------------------------------------------------
// Media
// ---------------------------------------------------------------------------

// Media is the media asset and link repository view of a Store.
type Media struct{ s *Store }

// Media returns the media repository.
func (s *Store) Media() Media { return Media{s} }

func (r Media) GetAssetForUpdate(ctx context.Context, id int64) (*domain.MediaAsset, error) {
	var out *domain.MediaAsset
	err := r.s.read(ctx, func(st *state) error {
		a, ok := st.assets[id]
		if !ok {
			return notFound("media asset", id)
		}
		out = &a
		return nil
	})
	return out, err
}

func (r Media) ListAssets(ctx context.Context) ([]domain.MediaAsset, error) {
	var out []domain.MediaAsset
	err := r.s.read(ctx, func(st *state) error {
		out = sortedValues(st.assets, func(a domain.MediaAsset) int64 { return a.ID })
		return nil
	})
	return out, err
}

func (r Media) InsertAsset(ctx context.Context, a *domain.MediaAsset) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.assets[a.ID]; ok {
			return alreadyExists("media asset", a.ID)
		}
		st.assets[a.ID] = *a
		return nil
	})
}

func (r Media) DeleteAsset(ctx context.Context, id int64) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.assets[id]; !ok {
			return notFound("media asset", id)
		}
		for _, l := range st.links {
			if l.AssetID == id {
				return stillReferenced("media asset", id, "media_links")
			}
		}
		delete(st.assets, id)
		return nil
	})
}

func (r Media) ListLinks(ctx context.Context) ([]domain.MediaLink, error) {
	var out []domain.MediaLink
	err := r.s.read(ctx, func(st *state) error {
		out = sortedValues(st.links, func(l domain.MediaLink) int64 { return l.ID })
		return nil
	})
	return out, err
}

// GetLinksForUpdate returns the requested links ordered by id. Missing ids
// are simply absent from the result.
func (r Media) GetLinksForUpdate(ctx context.Context, ids []int64) ([]domain.MediaLink, error) {
	var out []domain.MediaLink
	err := r.s.read(ctx, func(st *state) error {
		seen := make(map[int64]bool, len(ids))
		for _, id := range ids {
			if l, ok := st.links[id]; ok && !seen[id] {
				seen[id] = true
				out = append(out, l)
			}
		}
		slices.SortFunc(out, func(a, b domain.MediaLink) int { return cmpInt(a.ID, b.ID) })
		return nil
	})
	return out, err
}

func (r Media) InsertLink(ctx context.Context, l *domain.MediaLink) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.links[l.ID]; ok {
			return alreadyExists("media link", l.ID)
		}
		if _, ok := st.assets[l.AssetID]; !ok {
			return missingParent("media asset", l.AssetID)
		}
		if l.PersonID != nil {
			if _, ok := st.persons[*l.PersonID]; !ok {
				return missingParent("person", *l.PersonID)
			}
		}
		if l.FamilyID != nil {
			if _, ok := st.families[*l.FamilyID]; !ok {
				return missingParent("family", *l.FamilyID)
			}
		}
		st.links[l.ID] = *l
		return nil
	})
}

func (r Media) DeleteLink(ctx context.Context, id int64) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.links[id]; !ok {
			return notFound("media link", id)
		}
		delete(st.links, id)
		return nil
	})
}

// ---------------------------------------------------------------------------
// Fields
// ---------------------------------------------------------------------------

// Fields is the scalar column repository view of a Store.
type Fields struct{ s *Store }

// Fields returns the field repository.
func (s *Store) Fields() Fields { return Fields{s} }

// column returns a pointer to the addressed string field of a record copy
// together with a function that stores the copy back.
func column(st *state, ref domain.FieldRef) (*string, func(), error) {
	switch ref.EntityType {
	case domain.EntityPerson:
		p, ok := st.persons[ref.EntityID]
		if !ok {
			return nil, nil, notFound("person", ref.EntityID)
		}
		cols := map[string]*string{
			"birth_place": &p.BirthPlace, "death_place": &p.DeathPlace,
			"birth_date": &p.BirthDate, "death_date": &p.DeathDate,
			"birth_date_canonical": &p.BirthDateCanonical, "death_date_canonical": &p.DeathDateCanonical,
		}
		if c, ok := cols[ref.Field]; ok {
			return c, func() { st.persons[p.ID] = p }, nil
		}
	case domain.EntityFamily:
		f, ok := st.families[ref.EntityID]
		if !ok {
			return nil, nil, notFound("family", ref.EntityID)
		}
		cols := map[string]*string{
			"marriage_place": &f.MarriagePlace, "marriage_date": &f.MarriageDate,
			"marriage_date_canonical": &f.MarriageDateCanonical,
		}
		if c, ok := cols[ref.Field]; ok {
			return c, func() { st.families[f.ID] = f }, nil
		}
	case domain.EntityEvent:
		e, ok := st.events[ref.EntityID]
		if !ok {
			return nil, nil, notFound("event", ref.EntityID)
		}
		cols := map[string]*string{
			"place_raw": &e.PlaceRaw, "date_raw": &e.DateRaw, "date_canonical": &e.DateCanonical,
		}
		if c, ok := cols[ref.Field]; ok {
			return c, func() { st.events[e.ID] = e }, nil
		}
	}
	return nil, nil, domain.NewValidationError("field", fmt.Sprintf("%s.%s is not addressable", ref.EntityType, ref.Field))
}

func (r Fields) Get(ctx context.Context, ref domain.FieldRef) (string, error) {
	var out string
	err := r.s.read(ctx, func(st *state) error {
		c, _, err := column(st, ref)
		if err != nil {
			return err
		}
		out = *c
		return nil
	})
	return out, err
}

func (r Fields) Set(ctx context.Context, ref domain.FieldRef, value string) error {
	return r.s.write(ctx, func(st *state) error {
		c, store, err := column(st, ref)
		if err != nil {
			return err
		}
		*c = value
		store()
		return nil
	})
}

// FindPlaceValues returns every place column whose trimmed value equals one
// of the variants, in place-field order and then by record id.
func (r Fields) FindPlaceValues(ctx context.Context, variants []string) ([]domain.FieldValue, error) {
	if len(variants) == 0 {
		return nil, nil
	}
	want := make(map[string]bool, len(variants))
	for _, v := range variants {
		want[strings.TrimSpace(v)] = true
	}

	var out []domain.FieldValue
	err := r.s.read(ctx, func(st *state) error {
		for _, f := range domain.PlaceFields {
			var ids []int64
			switch f.EntityType {
			case domain.EntityPerson:
				ids = keys(st.persons)
			case domain.EntityFamily:
				ids = keys(st.families)
			case domain.EntityEvent:
				ids = keys(st.events)
			}
			for _, id := range ids {
				ref := domain.FieldRef{EntityType: f.EntityType, EntityID: id, Field: f.Field}
				c, _, err := column(st, ref)
				if err != nil {
					return err
				}
				if want[strings.TrimSpace(*c)] {
					out = append(out, domain.FieldValue{Ref: ref, Value: *c})
				}
			}
		}
		return nil
	})
	return out, err
}

func keys[V any](m map[int64]V) []int64 {
	out := make([]int64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// ---------------------------------------------------------------------------
// Snapshot
// ---------------------------------------------------------------------------

// Snapshots is the snapshot loader view of a Store.
type Snapshots struct{ s *Store }

// Snapshots returns the snapshot loader.
func (s *Store) Snapshots() Snapshots { return Snapshots{s} }

func (r Snapshots) Load(ctx context.Context) (*domain.Snapshot, error) {
	var out *domain.Snapshot
	err := r.s.read(ctx, func(st *state) error {
		out = snapshotOf(st)
		return nil
	})
	return out, err
}

func (r Snapshots) DateStats(ctx context.Context) (domain.DateStats, error) {
	var out domain.DateStats
	err := r.s.read(ctx, func(st *state) error {
		count := func(raw, canonical string) {
			if strings.TrimSpace(raw) == "" {
				return
			}
			out.Total++
			if strings.TrimSpace(canonical) != "" {
				out.Standardized++
			}
		}
		for _, p := range st.persons {
			count(p.BirthDate, p.BirthDateCanonical)
			count(p.DeathDate, p.DeathDateCanonical)
		}
		for _, e := range st.events {
			count(e.DateRaw, e.DateCanonical)
		}
		for _, f := range st.families {
			count(f.MarriageDate, f.MarriageDateCanonical)
		}
		return nil
	})
	return out, err
}

func snapshotOf(st *state) *domain.Snapshot {
	snap := &domain.Snapshot{
		Persons:     sortedValues(st.persons, func(p domain.Person) int64 { return p.ID }),
		Families:    sortedValues(st.families, func(f domain.Family) int64 { return f.ID }),
		Events:      sortedValues(st.events, func(e domain.Event) int64 { return e.ID }),
		Places:      sortedValues(st.places, func(p domain.Place) int64 { return p.ID }),
		MediaAssets: sortedValues(st.assets, func(a domain.MediaAsset) int64 { return a.ID }),
		MediaLinks:  sortedValues(st.links, func(l domain.MediaLink) int64 { return l.ID }),
	}
	for i := range snap.Families {
		snap.Families[i] = familyWithChildren(st, snap.Families[i])
	}
	for i := range snap.Places {
		snap.Places[i].Variants = slices.Clone(snap.Places[i].Variants)
	}
	for k, t := range st.relationships {
		snap.Relationships = append(snap.Relationships, domain.Relationship{ParentID: k[0], ChildID: k[1], RelType: t})
	}
	slices.SortFunc(snap.Relationships, func(a, b domain.Relationship) int {
		if c := cmpInt(a.ParentID, b.ParentID); c != 0 {
			return c
		}
		return cmpInt(a.ChildID, b.ChildID)
	})
	return snap
}
