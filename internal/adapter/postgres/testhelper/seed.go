package testhelper

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartmarshall/treecleaner/internal/domain"
)

// uniqueSuffix returns a short unique string for generating non-conflicting test data.
func uniqueSuffix() string {
	return uuid.New().String()[:8]
}

// PersonOpt customizes a seeded person.
type PersonOpt func(*domain.Person)

// WithBirth sets the raw birth date and place.
func WithBirth(date, place string) PersonOpt {
	return func(p *domain.Person) { p.BirthDate, p.BirthPlace = date, place }
}

// WithDeath sets the raw death date and place.
func WithDeath(date, place string) PersonOpt {
	return func(p *domain.Person) { p.DeathDate, p.DeathPlace = date, place }
}

// SeedPerson inserts a person whose surname carries a unique suffix so that
// parallel tests never share a surname bucket.
func SeedPerson(t *testing.T, pool *pgxpool.Pool, given string, opts ...PersonOpt) domain.Person {
	t.Helper()

	p := domain.Person{
		Xref:    "@I" + uniqueSuffix() + "@",
		Given:   given,
		Surname: "Test" + uniqueSuffix(),
	}
	for _, o := range opts {
		o(&p)
	}

	err := pool.QueryRow(context.Background(),
		`INSERT INTO persons (xref, given, surname, sex, birth_date, birth_place, death_date, death_place)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		p.Xref, p.Given, p.Surname, p.Sex, p.BirthDate, p.BirthPlace, p.DeathDate, p.DeathPlace,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		t.Fatalf("testhelper: SeedPerson: %v", err)
	}
	return p
}

// SeedFamily inserts a family with the given spouses (0 for none) and children.
func SeedFamily(t *testing.T, pool *pgxpool.Pool, husbandID, wifeID int64, childIDs ...int64) domain.Family {
	t.Helper()
	ctx := context.Background()

	f := domain.Family{Xref: "@F" + uniqueSuffix() + "@", ChildIDs: childIDs}
	if husbandID != 0 {
		f.HusbandID = &husbandID
	}
	if wifeID != 0 {
		f.WifeID = &wifeID
	}

	err := pool.QueryRow(ctx,
		`INSERT INTO families (xref, husband_id, wife_id) VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		f.Xref, f.HusbandID, f.WifeID,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		t.Fatalf("testhelper: SeedFamily: %v", err)
	}

	for _, c := range childIDs {
		if _, err := pool.Exec(ctx,
			`INSERT INTO family_children (family_id, child_id) VALUES ($1, $2)`, f.ID, c,
		); err != nil {
			t.Fatalf("testhelper: SeedFamily child %d: %v", c, err)
		}
	}
	return f
}

// SeedRelationship inserts a direct parent-child row.
func SeedRelationship(t *testing.T, pool *pgxpool.Pool, parentID, childID int64) {
	t.Helper()

	if _, err := pool.Exec(context.Background(),
		`INSERT INTO relationships (parent_id, child_id, rel_type) VALUES ($1, $2, 'biological')`,
		parentID, childID,
	); err != nil {
		t.Fatalf("testhelper: SeedRelationship: %v", err)
	}
}

// SeedEvent inserts an event owned by a person and/or family (nil for none).
func SeedEvent(t *testing.T, pool *pgxpool.Pool, eventType domain.EventType, personID, familyID *int64, date, place string) domain.Event {
	t.Helper()

	e := domain.Event{EventType: eventType, PersonID: personID, FamilyID: familyID, DateRaw: date, PlaceRaw: place}
	err := pool.QueryRow(context.Background(),
		`INSERT INTO events (event_type, person_id, family_id, date_raw, place_raw)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		string(eventType), personID, familyID, date, place,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		t.Fatalf("testhelper: SeedEvent: %v", err)
	}
	return e
}

// SeedNote inserts a note attached to a person.
func SeedNote(t *testing.T, pool *pgxpool.Pool, personID int64, text string) int64 {
	t.Helper()

	var id int64
	if err := pool.QueryRow(context.Background(),
		`INSERT INTO notes (person_id, text) VALUES ($1, $2) RETURNING id`, personID, text,
	).Scan(&id); err != nil {
		t.Fatalf("testhelper: SeedNote: %v", err)
	}
	return id
}

// SeedMediaAsset inserts an asset with the given original filename.
func SeedMediaAsset(t *testing.T, pool *pgxpool.Pool, filename string, size int64) domain.MediaAsset {
	t.Helper()

	a := domain.MediaAsset{
		Path:             "media/" + uniqueSuffix() + "/" + filename,
		OriginalFilename: filename,
		MimeType:         "image/jpeg",
		SizeBytes:        &size,
		Status:           "active",
	}
	err := pool.QueryRow(context.Background(),
		`INSERT INTO media_assets (path, original_filename, mime_type, size_bytes, status)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		a.Path, a.OriginalFilename, a.MimeType, a.SizeBytes, a.Status,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		t.Fatalf("testhelper: SeedMediaAsset: %v", err)
	}
	return a
}

// SeedMediaLink links an asset to a person and/or family.
func SeedMediaLink(t *testing.T, pool *pgxpool.Pool, assetID int64, personID, familyID *int64) domain.MediaLink {
	t.Helper()

	l := domain.MediaLink{AssetID: assetID, PersonID: personID, FamilyID: familyID}
	err := pool.QueryRow(context.Background(),
		`INSERT INTO media_links (asset_id, person_id, family_id) VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		assetID, personID, familyID,
	).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		t.Fatalf("testhelper: SeedMediaLink: %v", err)
	}
	return l
}

// SeedPlace registers a canonical place with variants.
func SeedPlace(t *testing.T, pool *pgxpool.Pool, canonical string, variants ...string) domain.Place {
	t.Helper()
	ctx := context.Background()

	p := domain.Place{CanonicalName: canonical + " " + uniqueSuffix()}
	if err := pool.QueryRow(ctx,
		`INSERT INTO places (canonical_name) VALUES ($1) RETURNING id`, p.CanonicalName,
	).Scan(&p.ID); err != nil {
		t.Fatalf("testhelper: SeedPlace: %v", err)
	}
	for _, v := range variants {
		v = v + " " + uniqueSuffix()
		if _, err := pool.Exec(ctx,
			`INSERT INTO place_variants (place_id, variant) VALUES ($1, $2)`, p.ID, v,
		); err != nil {
			t.Fatalf("testhelper: SeedPlace variant: %v", err)
		}
		p.Variants = append(p.Variants, v)
	}
	return p
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// UniqueName returns prefix with a random suffix, for values that must not
// collide across parallel tests (place names, filenames).
func UniqueName(prefix string) string {
	return prefix + " " + uniqueSuffix()
}
