package testhelper

import (
	"context"
	"testing"
)

func TestSetupTestDB_SeedsAndMigrates(t *testing.T) {
	pool := SetupTestDB(t)
	ctx := context.Background()

	husband := SeedPerson(t, pool, "John", WithBirth("1843", "Boston"))
	wife := SeedPerson(t, pool, "Mary", WithDeath("ABT 1901", "Salem"))
	child := SeedPerson(t, pool, "Ann")
	fam := SeedFamily(t, pool, husband.ID, wife.ID, child.ID)

	var surname, birth string
	if err := pool.QueryRow(ctx, `SELECT surname, birth_date FROM persons WHERE id = $1`, husband.ID).
		Scan(&surname, &birth); err != nil {
		t.Fatalf("select person: %v", err)
	}
	if surname != husband.Surname || birth != "1843" {
		t.Errorf("person row = %q %q", surname, birth)
	}

	var children int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM family_children WHERE family_id = $1`, fam.ID).
		Scan(&children); err != nil {
		t.Fatalf("count children: %v", err)
	}
	if children != 1 {
		t.Errorf("children = %d, want 1", children)
	}

	var issues int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM dq_issues WHERE false`).Scan(&issues); err != nil {
		t.Errorf("dq_issues missing after migrate: %v", err)
	}
}
