package domain

import "testing"

func TestPairKey_Unordered(t *testing.T) {
	t.Parallel()

	if a, b := PairKey(IssueDuplicatePerson, 9, 2), PairKey(IssueDuplicatePerson, 2, 9); a != b || a != "duplicate_person:2:9" {
		t.Errorf("PairKey = %q / %q", a, b)
	}
	if got := IDsKey(IssueDuplicateMediaLink, 3, 1, 2); got != "duplicate_media_link:1:2:3" {
		t.Errorf("IDsKey = %q", got)
	}
}

func TestIssue_SameFindings(t *testing.T) {
	t.Parallel()

	base := Candidate{
		IssueType:   IssueDuplicatePerson,
		Severity:    SeverityWarning,
		EntityIDs:   []int64{1, 2},
		Confidence:  0.9,
		ImpactScore: 1,
		Explanation: DuplicatePersonExplanation{Score: 0.9},
	}
	issue := Issue{
		Severity:    base.Severity,
		EntityIDs:   []int64{1, 2},
		Confidence:  base.Confidence,
		ImpactScore: base.ImpactScore,
		Explanation: base.Explanation,
	}

	tests := []struct {
		name   string
		mutate func(c *Candidate)
		want   bool
	}{
		{"identical", func(*Candidate) {}, true},
		{"confidence changed", func(c *Candidate) { c.Confidence = 0.8 }, false},
		{"severity changed", func(c *Candidate) { c.Severity = SeverityError }, false},
		{"ids changed", func(c *Candidate) { c.EntityIDs = []int64{1, 3} }, false},
		{"explanation changed", func(c *Candidate) { c.Explanation = DuplicatePersonExplanation{Score: 0.95} }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base
			c.EntityIDs = append([]int64(nil), base.EntityIDs...)
			tt.mutate(&c)
			if got := issue.SameFindings(c); got != tt.want {
				t.Errorf("SameFindings() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRefKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind   RefKind
		join   bool
		target EntityType
	}{
		{RefEventPerson, false, EntityPerson},
		{RefEventFamily, false, EntityFamily},
		{RefMediaLinkAsset, false, EntityMediaAsset},
		{RefFamilyChild, true, EntityPerson},
		{RefChildOfFamily, true, EntityFamily},
		{RefRelationshipParent, true, EntityPerson},
	}
	for _, tt := range tests {
		if got := tt.kind.IsJoinRow(); got != tt.join {
			t.Errorf("%s.IsJoinRow() = %v", tt.kind, got)
		}
		if got := tt.kind.TargetType(); got != tt.target {
			t.Errorf("%s.TargetType() = %s", tt.kind, got)
		}
	}

	r := Ref{Kind: RefEventPerson, RowID: 4, Target: 1}
	if moved := r.Retarget(2); moved.Target != 2 || r.Target != 1 {
		t.Error("Retarget must return a modified copy")
	}
}

func TestLookupDateField(t *testing.T) {
	t.Parallel()

	df, ok := LookupDateField(EntityEvent, "date")
	if !ok || df.Canonical != "date_canonical" || df.Raw != "date_raw" {
		t.Errorf("LookupDateField(event, date) = %+v, %v", df, ok)
	}
	if _, ok := LookupDateField(EntityPerson, "surname"); ok {
		t.Error("surname is not a date field")
	}
}
