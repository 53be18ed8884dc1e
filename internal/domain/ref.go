package domain

import "fmt"

// RefKind identifies one column or join-table row that points at a record.
type RefKind string

const (
	RefEventPerson     RefKind = "event.person_id"
	RefEventFamily     RefKind = "event.family_id"
	RefNotePerson      RefKind = "note.person_id"
	RefNoteFamily      RefKind = "note.family_id"
	RefMediaLinkPerson RefKind = "media_link.person_id"
	RefMediaLinkFamily RefKind = "media_link.family_id"
	RefMediaLinkAsset  RefKind = "media_link.asset_id"
	RefFamilyHusband   RefKind = "family.husband_id"
	RefFamilyWife      RefKind = "family.wife_id"

	// Join-table rows. RowID is the other side of the row.
	RefFamilyChild        RefKind = "family_children.child_id"  // RowID = family id
	RefChildOfFamily      RefKind = "family_children.family_id" // RowID = child id
	RefRelationshipParent RefKind = "relationships.parent_id"   // RowID = child id
	RefRelationshipChild  RefKind = "relationships.child_id"    // RowID = parent id
)

// IsJoinRow reports whether the reference lives in a join table, where
// repointing can collide with an existing row.
func (k RefKind) IsJoinRow() bool {
	switch k {
	case RefFamilyChild, RefChildOfFamily, RefRelationshipParent, RefRelationshipChild:
		return true
	}
	return false
}

// TargetType is the kind of record the reference points at.
func (k RefKind) TargetType() EntityType {
	switch k {
	case RefEventFamily, RefNoteFamily, RefMediaLinkFamily, RefChildOfFamily:
		return EntityFamily
	case RefMediaLinkAsset:
		return EntityMediaAsset
	default:
		return EntityPerson
	}
}

// Ref is a single pointer from a row to a target record.
// For column refs RowID is the primary key of the owning row.
type Ref struct {
	Kind    RefKind `json:"kind"`
	RowID   int64   `json:"row_id"`
	Target  int64   `json:"target"`
	RelType string  `json:"rel_type,omitempty"`
}

// Retarget returns a copy of r pointing at id.
func (r Ref) Retarget(id int64) Ref {
	r.Target = id
	return r
}

func (r Ref) String() string {
	return fmt.Sprintf("%s[%d]->%d", r.Kind, r.RowID, r.Target)
}

// FieldRef addresses a single scalar column of a record.
type FieldRef struct {
	EntityType EntityType `json:"entity_type"`
	EntityID   int64      `json:"entity_id"`
	Field      string     `json:"field"`
}

func (f FieldRef) String() string {
	return fmt.Sprintf("%s:%d:%s", f.EntityType, f.EntityID, f.Field)
}

// FieldValue is a FieldRef together with its current value.
type FieldValue struct {
	Ref   FieldRef `json:"ref"`
	Value string   `json:"value"`
}

// FieldChange records one rewritten column.
type FieldChange struct {
	Ref    FieldRef `json:"ref"`
	Before string   `json:"before"`
	After  string   `json:"after"`
}

// PlaceFields lists the columns holding free-text place names.
var PlaceFields = []FieldRef{
	{EntityType: EntityPerson, Field: "birth_place"},
	{EntityType: EntityPerson, Field: "death_place"},
	{EntityType: EntityEvent, Field: "place_raw"},
	{EntityType: EntityFamily, Field: "marriage_place"},
}

// DateField pairs a raw date column with the column its normalized value is written to.
type DateField struct {
	EntityType EntityType
	Field      string
	Raw        string
	Canonical  string
}

// DateFields lists every normalizable date. Field is the name used in
// requests and issues.
var DateFields = []DateField{
	{EntityType: EntityPerson, Field: "birth_date", Raw: "birth_date", Canonical: "birth_date_canonical"},
	{EntityType: EntityPerson, Field: "death_date", Raw: "death_date", Canonical: "death_date_canonical"},
	{EntityType: EntityEvent, Field: "date", Raw: "date_raw", Canonical: "date_canonical"},
	{EntityType: EntityFamily, Field: "marriage_date", Raw: "marriage_date", Canonical: "marriage_date_canonical"},
}

// LookupDateField finds the date column pair for entity and field.
func LookupDateField(entity EntityType, field string) (DateField, bool) {
	for _, df := range DateFields {
		if df.EntityType == entity && df.Field == field {
			return df, true
		}
	}
	return DateField{}, false
}
