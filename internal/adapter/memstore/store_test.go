package memstore_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/treecleaner/internal/adapter/memstore"
	"github.com/heartmarshall/treecleaner/internal/domain"
)

func id(v int64) *int64 { return &v }

// fixture: persons 1-4, family 10 (1+2, child 3), relationship 1->4, event 20
// on person 1, note 30 on person 1, asset 40 with links 41 and 42 on person 1.
func fixture(t *testing.T) *memstore.Store {
	t.Helper()
	s := memstore.New()
	err := s.Load(memstore.Dataset{
		Snapshot: domain.Snapshot{
			Persons: []domain.Person{
				{ID: 1, Given: "John", Surname: "Smith", BirthPlace: "New York"},
				{ID: 2, Given: "Mary", Surname: "Smith"},
				{ID: 3, Given: "Tom", Surname: "Smith"},
				{ID: 4, Given: "Ann", Surname: "Smith"},
			},
			Families:      []domain.Family{{ID: 10, HusbandID: id(1), WifeID: id(2), ChildIDs: []int64{3}}},
			Relationships: []domain.Relationship{{ParentID: 1, ChildID: 4}},
			Events:        []domain.Event{{ID: 20, EventType: domain.EventBirth, PersonID: id(1), PlaceRaw: " New York "}},
			MediaAssets:   []domain.MediaAsset{{ID: 40, Path: "a.jpg"}},
			MediaLinks: []domain.MediaLink{
				{ID: 41, AssetID: 40, PersonID: id(1)},
				{ID: 42, AssetID: 40, PersonID: id(1)},
			},
		},
		Notes: []domain.Note{{ID: 30, PersonID: id(1), Text: "n"}},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

// ---------------------------------------------------------------------------
// Transactions
// ---------------------------------------------------------------------------

func TestRunInTx_RollbackOnError(t *testing.T) {
	t.Parallel()
	s := fixture(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.RunInTx(ctx, func(ctx context.Context) error {
		p, err := s.Persons().GetByIDForUpdate(ctx, 1)
		if err != nil {
			return err
		}
		p.Given = "Changed"
		if err := s.Persons().Update(ctx, p); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunInTx error = %v, want boom", err)
	}
	p, _ := s.Persons().GetByID(ctx, 1)
	if p.Given != "John" {
		t.Errorf("rolled back write leaked: Given = %q", p.Given)
	}
}

func TestRunInTx_Commit(t *testing.T) {
	t.Parallel()
	s := fixture(t)
	ctx := context.Background()

	err := s.RunInTx(ctx, func(ctx context.Context) error {
		return s.Fields().Set(ctx, domain.FieldRef{EntityType: domain.EntityPerson, EntityID: 2, Field: "birth_date"}, "1850")
	})
	if err != nil {
		t.Fatalf("RunInTx: %v", err)
	}
	p, _ := s.Persons().GetByID(ctx, 2)
	if p.BirthDate != "1850" {
		t.Errorf("committed write missing: BirthDate = %q", p.BirthDate)
	}
}

func TestRunReadOnly_RejectsWrites(t *testing.T) {
	t.Parallel()
	s := fixture(t)

	err := s.RunReadOnly(context.Background(), func(ctx context.Context) error {
		return s.Persons().Delete(ctx, 4)
	})
	if !errors.Is(err, memstore.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
}

func TestRunInTx_NestedJoinsOuter(t *testing.T) {
	t.Parallel()
	s := fixture(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.RunInTx(ctx, func(ctx context.Context) error {
			p, err := s.Persons().GetByIDForUpdate(ctx, 4)
			if err != nil {
				return err
			}
			p.Given = "Anne"
			return s.Persons().Update(ctx, p)
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if p, _ := s.Persons().GetByID(ctx, 4); p.Given != "Ann" {
		t.Fatalf("inner write survived outer rollback: given = %q", p.Given)
	}

	err = s.RunReadOnly(ctx, func(ctx context.Context) error {
		return s.RunInTx(ctx, func(context.Context) error { return nil })
	})
	if !errors.Is(err, memstore.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly for write tx inside read-only, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

func TestPersons_DeleteReferenced(t *testing.T) {
	t.Parallel()
	s := fixture(t)

	err := s.Persons().Delete(context.Background(), 1)
	if !errors.Is(err, domain.ErrIntegrityViolation) {
		t.Fatalf("expected ErrIntegrityViolation, got %v", err)
	}
}

func TestFamilies_ChildIDsDerived(t *testing.T) {
	t.Parallel()
	s := fixture(t)

	f, err := s.Families().GetByID(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !slices.Equal(f.ChildIDs, []int64{3}) {
		t.Errorf("ChildIDs = %v, want [3]", f.ChildIDs)
	}
}

func TestRefs_ListAndRepoint(t *testing.T) {
	t.Parallel()
	s := fixture(t)
	ctx := context.Background()

	refs, err := s.Refs().ListRefs(ctx, domain.EntityPerson, 1)
	if err != nil {
		t.Fatalf("ListRefs: %v", err)
	}
	wantKinds := []domain.RefKind{
		domain.RefEventPerson, domain.RefNotePerson,
		domain.RefMediaLinkPerson, domain.RefMediaLinkPerson,
		domain.RefFamilyHusband, domain.RefRelationshipParent,
	}
	var gotKinds []domain.RefKind
	for _, r := range refs {
		gotKinds = append(gotKinds, r.Kind)
	}
	if !slices.Equal(gotKinds, wantKinds) {
		t.Fatalf("kinds = %v, want %v", gotKinds, wantKinds)
	}

	// Pointing John's parent row at Ann would make her her own parent.
	rel := refs[len(refs)-1]
	moved, err := s.Refs().Repoint(ctx, rel, 4)
	if err != nil || moved {
		t.Fatalf("Repoint self-loop: moved=%v err=%v", moved, err)
	}
	if err := s.Refs().Insert(ctx, rel); err != nil {
		t.Fatalf("Insert: %v", err)
	}
}

func TestRefs_RepointSpouseOntoSpouse(t *testing.T) {
	t.Parallel()
	s := fixture(t)
	ctx := context.Background()

	ref := domain.Ref{Kind: domain.RefFamilyHusband, RowID: 10, Target: 1}
	if _, err := s.Refs().Repoint(ctx, ref, 2); !errors.Is(err, domain.ErrIntegrityViolation) {
		t.Fatalf("expected ErrIntegrityViolation, got %v", err)
	}
}

func TestRefs_RepointStale(t *testing.T) {
	t.Parallel()
	s := fixture(t)

	ref := domain.Ref{Kind: domain.RefNotePerson, RowID: 30, Target: 2}
	if _, err := s.Refs().Repoint(context.Background(), ref, 3); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestFields_FindPlaceValues(t *testing.T) {
	t.Parallel()
	s := fixture(t)

	got, err := s.Fields().FindPlaceValues(context.Background(), []string{"New York"})
	if err != nil {
		t.Fatalf("FindPlaceValues: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("matches = %d, want 2", len(got))
	}
	if got[0].Ref.Field != "birth_place" || got[1].Ref.EntityType != domain.EntityEvent {
		t.Errorf("unexpected order: %+v", got)
	}
	if got[1].Value != " New York " {
		t.Errorf("value must be returned untrimmed, got %q", got[1].Value)
	}
}

func TestExport_RoundTrip(t *testing.T) {
	t.Parallel()
	s := fixture(t)

	ds := s.Export()
	again := memstore.New()
	if err := again.Load(ds); err != nil {
		t.Fatalf("Load: %v", err)
	}
	back := again.Export()
	if len(back.Persons) != 4 || len(back.Notes) != 1 || len(back.MediaLinks) != 2 {
		t.Errorf("export lost records: %+v", back)
	}
	if !slices.Equal(back.Families[0].ChildIDs, []int64{3}) {
		t.Errorf("children lost: %v", back.Families[0].ChildIDs)
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tree.json")
	data := `{"persons":[{"id":7,"given":"Ada","surname":"Byron"}],
		"families":[{"id":8,"husband_id":7,"child_ids":[9]}],
		"notes":[{"id":3,"person_id":7,"text":"n"}]}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	s := memstore.New()
	if err := s.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	ds := s.Export()
	if len(ds.Persons) != 1 || ds.Persons[0].Surname != "Byron" {
		t.Errorf("persons = %+v", ds.Persons)
	}
	if !slices.Equal(ds.Families[0].ChildIDs, []int64{9}) {
		t.Errorf("children = %v", ds.Families[0].ChildIDs)
	}

	if err := memstore.New().LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Data-quality tables
// ---------------------------------------------------------------------------

func TestIssues_ResolveRequiresAllIDs(t *testing.T) {
	t.Parallel()
	s := memstore.New()
	ctx := context.Background()
	is := &domain.Issue{ID: uuid.New(), IssueType: domain.IssueOrphanEvent, DedupKey: "k", Status: domain.IssueStatusOpen}
	if err := s.Issues().Create(ctx, is); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := s.Issues().Resolve(ctx, []uuid.UUID{is.ID, uuid.New()}, time.Now()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	flipped, err := s.Issues().Resolve(ctx, []uuid.UUID{is.ID, is.ID}, time.Now())
	if err != nil || len(flipped) != 1 {
		t.Fatalf("Resolve: %v %v", flipped, err)
	}
	dup := &domain.Issue{ID: uuid.New(), DedupKey: "k"}
	if err := s.Issues().Create(ctx, dup); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestDateNorms_Supersede(t *testing.T) {
	t.Parallel()
	s := memstore.New()
	ctx := context.Background()
	rec := domain.DateNormalizationRecord{EntityType: domain.EntityPerson, EntityID: 1, Field: "birth_date", Raw: "1843"}

	if _, err := s.DateNorms().Record(ctx, []domain.DateNormalizationRecord{rec}, time.Now()); err != nil {
		t.Fatalf("Record: %v", err)
	}
	rec.Raw = "1844"
	if _, err := s.DateNorms().Record(ctx, []domain.DateNormalizationRecord{rec}, time.Now()); err != nil {
		t.Fatalf("Record: %v", err)
	}

	current, _ := s.DateNorms().ListCurrent(ctx)
	if len(current) != 1 || current[0].Raw != "1844" {
		t.Errorf("current = %+v", current)
	}
	history, _ := s.DateNorms().ListForField(ctx, rec.Key())
	if len(history) != 2 {
		t.Errorf("history rows = %d, want 2", len(history))
	}
}

func TestActions_MarkRevertedOnce(t *testing.T) {
	t.Parallel()
	s := memstore.New()
	ctx := context.Background()
	a := &domain.ActionLogEntry{ID: uuid.New(), ActionType: domain.ActionMergePeople, CreatedAt: time.Now()}
	u := &domain.ActionLogEntry{ID: uuid.New(), ActionType: domain.ActionUndo, CreatedAt: time.Now()}
	for _, e := range []*domain.ActionLogEntry{a, u} {
		if err := s.Actions().Create(ctx, e); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	if err := s.Actions().MarkReverted(ctx, a.ID, u.ID); err != nil {
		t.Fatalf("MarkReverted: %v", err)
	}
	if err := s.Actions().MarkReverted(ctx, a.ID, u.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}
