package placerule_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/treecleaner/internal/adapter/postgres/placerule"
	"github.com/heartmarshall/treecleaner/internal/adapter/postgres/testhelper"
	"github.com/heartmarshall/treecleaner/internal/domain"
)

func newRule(approved bool) *domain.PlaceNormalizationRule {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.PlaceNormalizationRule{
		ID:        uuid.New(),
		Canonical: testhelper.UniqueName("New York"),
		Variants:  []string{"NYC", "New York City"},
		Approved:  approved,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestRepo_CreateGetApprove(t *testing.T) {
	t.Parallel()
	repo := placerule.New(testhelper.SetupTestDB(t))
	ctx := context.Background()
	rule := newRule(false)

	if err := repo.Create(ctx, rule); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := repo.GetByID(ctx, rule.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Canonical != rule.Canonical || !slices.Equal(got.Variants, rule.Variants) || got.Approved {
		t.Errorf("rule mismatch: %+v", got)
	}

	if err := repo.SetApproved(ctx, rule.ID, true, time.Now()); err != nil {
		t.Fatalf("SetApproved: %v", err)
	}
	approved, err := repo.ListApproved(ctx)
	if err != nil {
		t.Fatalf("ListApproved: %v", err)
	}
	if !slices.ContainsFunc(approved, func(r domain.PlaceNormalizationRule) bool { return r.ID == rule.ID }) {
		t.Error("approved rule missing from ListApproved")
	}
}

func TestRepo_ListApproved_ExcludesPending(t *testing.T) {
	t.Parallel()
	repo := placerule.New(testhelper.SetupTestDB(t))
	ctx := context.Background()
	pending := newRule(false)
	if err := repo.Create(ctx, pending); err != nil {
		t.Fatalf("Create: %v", err)
	}

	approved, err := repo.ListApproved(ctx)
	if err != nil {
		t.Fatalf("ListApproved: %v", err)
	}
	for _, r := range approved {
		if r.ID == pending.ID {
			t.Fatal("pending rule listed as approved")
		}
	}
	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !slices.ContainsFunc(all, func(r domain.PlaceNormalizationRule) bool { return r.ID == pending.ID }) {
		t.Error("pending rule missing from List")
	}
}

func TestRepo_SetApproved_NotFound(t *testing.T) {
	t.Parallel()
	repo := placerule.New(testhelper.SetupTestDB(t))

	if err := repo.SetApproved(context.Background(), uuid.New(), true, time.Now()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
