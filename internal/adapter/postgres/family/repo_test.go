package family_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartmarshall/treecleaner/internal/adapter/postgres/family"
	"github.com/heartmarshall/treecleaner/internal/adapter/postgres/testhelper"
	"github.com/heartmarshall/treecleaner/internal/domain"
)

func newRepo(t *testing.T) (*family.Repo, *pgxpool.Pool) {
	t.Helper()
	pool := testhelper.SetupTestDB(t)
	return family.New(pool), pool
}

func TestRepo_GetByID_WithChildren(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	h := testhelper.SeedPerson(t, pool, "Husband")
	w := testhelper.SeedPerson(t, pool, "Wife")
	c2 := testhelper.SeedPerson(t, pool, "Second")
	c1 := testhelper.SeedPerson(t, pool, "First")
	f := testhelper.SeedFamily(t, pool, h.ID, w.ID, c2.ID, c1.ID)

	got, err := repo.GetByID(context.Background(), f.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.HusbandID == nil || *got.HusbandID != h.ID {
		t.Errorf("HusbandID: got %v, want %d", got.HusbandID, h.ID)
	}
	if got.WifeID == nil || *got.WifeID != w.ID {
		t.Errorf("WifeID: got %v, want %d", got.WifeID, w.ID)
	}
	want := []int64{c2.ID, c1.ID}
	slices.Sort(want)
	if !slices.Equal(got.ChildIDs, want) {
		t.Errorf("ChildIDs: got %v, want %v", got.ChildIDs, want)
	}
}

func TestRepo_Update_ClearsSpouse(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	ctx := context.Background()
	h := testhelper.SeedPerson(t, pool, "Husband")
	f := testhelper.SeedFamily(t, pool, h.ID, 0)

	f.HusbandID = nil
	f.MarriageDate = "1870"
	if err := repo.Update(ctx, &f); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := repo.GetByID(ctx, f.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.HusbandID != nil || got.MarriageDate != "1870" {
		t.Errorf("update not persisted: %+v", got)
	}
}

func TestRepo_Update_SameSpouseTwice(t *testing.T) {
	t.Parallel()
	repo, pool := newRepo(t)
	h := testhelper.SeedPerson(t, pool, "Husband")
	f := testhelper.SeedFamily(t, pool, h.ID, 0)

	f.WifeID = &h.ID
	err := repo.Update(context.Background(), &f)
	if !errors.Is(err, domain.ErrIntegrityViolation) {
		t.Fatalf("expected ErrIntegrityViolation, got %v", err)
	}
}

func TestRepo_GetByID_NotFound(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo(t)

	if _, err := repo.GetByID(context.Background(), -1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
