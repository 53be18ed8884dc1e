package detector

import (
	"testing"

	"github.com/heartmarshall/treecleaner/internal/domain"
)

func TestPersonDuplicates_JohnJonSmith(t *testing.T) {
	t.Parallel()

	snap := &domain.Snapshot{Persons: []domain.Person{
		{ID: 2, Given: "Jon", Surname: "Smith", BirthDate: "1843", BirthPlace: "Boston"},
		{ID: 1, Given: "John", Surname: "Smith", BirthDate: "1843"},
	}}

	got := PersonDuplicates{}.Detect(snap)
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	c := got[0]
	if c.DedupKey != "duplicate_person:1:2" {
		t.Errorf("DedupKey = %q", c.DedupKey)
	}
	if c.EntityIDs[0] != 1 || c.EntityIDs[1] != 2 {
		t.Errorf("EntityIDs = %v, want [1 2]", c.EntityIDs)
	}
	if c.Severity != domain.SeverityWarning {
		t.Errorf("Severity = %s", c.Severity)
	}
	expl, ok := c.Explanation.(domain.DuplicatePersonExplanation)
	if !ok {
		t.Fatalf("unexpected explanation %T", c.Explanation)
	}
	if expl.NameSimilarity < PersonNameFloor {
		t.Errorf("NameSimilarity = %v, below floor", expl.NameSimilarity)
	}
	if expl.BirthDelta == nil || *expl.BirthDelta != 0 {
		t.Errorf("BirthDelta = %v, want 0", expl.BirthDelta)
	}
	if expl.Score < 0.93 {
		t.Errorf("Score = %v, want >= 0.93", expl.Score)
	}
	if c.Confidence != 1 {
		t.Errorf("Confidence = %v, want clamped to 1", c.Confidence)
	}
}

func TestScorePersons(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		a, b      domain.Person
		wantOK    bool
		wantScore float64
	}{
		{
			name:   "name below floor even with matching dates",
			a:      domain.Person{ID: 1, Given: "John", Surname: "Smith", BirthDate: "1843"},
			b:      domain.Person{ID: 2, Given: "Mary", Surname: "Smith", BirthDate: "1843"},
			wantOK: false,
		},
		{
			name:      "name only",
			a:         domain.Person{ID: 1, Given: "John", Surname: "Smith"},
			b:         domain.Person{ID: 2, Given: "John", Surname: "Smith"},
			wantOK:    true,
			wantScore: 1,
		},
		{
			name:      "birth year off by two gets no bonus",
			a:         domain.Person{ID: 1, Given: "John", Surname: "Smith", BirthDate: "1843"},
			b:         domain.Person{ID: 2, Given: "Jon", Surname: "Smith", BirthDate: "1845"},
			wantOK:    true,
			wantScore: 18.0 / 19.0,
		},
		{
			name:      "all bonuses",
			a:         domain.Person{ID: 1, Given: "John", Surname: "Smith", BirthDate: "1843", DeathDate: "1900", BirthPlace: "Boston, MA"},
			b:         domain.Person{ID: 2, Given: "Jon", Surname: "Smith", BirthDate: "1844", DeathDate: "1900", BirthPlace: "boston ma"},
			wantOK:    true,
			wantScore: 18.0/19.0 + PersonBirthYearBonus + PersonDeathYearBonus + PersonBirthPlaceBonus,
		},
		{
			name:      "canonical date preferred over raw",
			a:         domain.Person{ID: 1, Given: "John", Surname: "Smith", BirthDate: "bad", BirthDateCanonical: "1843-01-02"},
			b:         domain.Person{ID: 2, Given: "John", Surname: "Smith", BirthDate: "1843"},
			wantOK:    true,
			wantScore: 1 + PersonBirthYearBonus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, ok := ScorePersons(&tt.a, &tt.b)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !almostEqual(s.Score, tt.wantScore) {
				t.Errorf("Score = %v, want %v", s.Score, tt.wantScore)
			}
		})
	}
}

func TestScorePersons_Symmetric(t *testing.T) {
	t.Parallel()

	a := domain.Person{ID: 7, Given: "Katherine", Surname: "Howard", BirthDate: "1523", BirthPlace: "Lambeth"}
	b := domain.Person{ID: 3, Given: "Catherine", Surname: "Howard", BirthDate: "1524"}

	ab, okAB := ScorePersons(&a, &b)
	ba, okBA := ScorePersons(&b, &a)
	if okAB != okBA || !almostEqual(ab.Score, ba.Score) || !almostEqual(ab.NameSimilarity, ba.NameSimilarity) {
		t.Errorf("ScorePersons not symmetric: %+v/%v vs %+v/%v", ab, okAB, ba, okBA)
	}
}

func TestPersonDuplicates_Buckets(t *testing.T) {
	t.Parallel()

	snap := &domain.Snapshot{Persons: []domain.Person{
		{ID: 1, Given: "John", Surname: "Smith"},
		{ID: 2, Given: "John", Surname: "Smyth"},
		{ID: 3, Given: "John"},
		{ID: 4, Given: "John"},
	}}

	if got := (PersonDuplicates{}).Detect(snap); len(got) != 0 {
		t.Errorf("expected no candidates across surname buckets or without surnames, got %d", len(got))
	}
}
