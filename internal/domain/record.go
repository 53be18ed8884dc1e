package domain

import "time"

// Person is an individual from the imported tree.
// Raw date fields are preserved verbatim; *Canonical fields hold normalized values.
type Person struct {
	ID                 int64     `json:"id"`
	Xref               string    `json:"xref"`
	Given              string    `json:"given"`
	Surname            string    `json:"surname"`
	Sex                string    `json:"sex"`
	BirthDate          string    `json:"birth_date"`
	BirthPlace         string    `json:"birth_place"`
	DeathDate          string    `json:"death_date"`
	DeathPlace         string    `json:"death_place"`
	BirthDateCanonical string    `json:"birth_date_canonical"`
	DeathDateCanonical string    `json:"death_date_canonical"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// FullName returns "given surname" with blanks omitted.
func (p *Person) FullName() string {
	switch {
	case p.Given == "":
		return p.Surname
	case p.Surname == "":
		return p.Given
	default:
		return p.Given + " " + p.Surname
	}
}

// BirthDateValue returns the canonical birth date when present, otherwise the raw one.
func (p *Person) BirthDateValue() string {
	if p.BirthDateCanonical != "" {
		return p.BirthDateCanonical
	}
	return p.BirthDate
}

// DeathDateValue returns the canonical death date when present, otherwise the raw one.
func (p *Person) DeathDateValue() string {
	if p.DeathDateCanonical != "" {
		return p.DeathDateCanonical
	}
	return p.DeathDate
}

// Family groups two spouses and their children.
type Family struct {
	ID                    int64     `json:"id"`
	Xref                  string    `json:"xref"`
	HusbandID             *int64    `json:"husband_id,omitempty"`
	WifeID                *int64    `json:"wife_id,omitempty"`
	MarriageDate          string    `json:"marriage_date"`
	MarriagePlace         string    `json:"marriage_place"`
	MarriageDateCanonical string    `json:"marriage_date_canonical"`
	ChildIDs              []int64   `json:"child_ids,omitempty"` // loaded from family_children, ascending
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// MarriageDateValue returns the canonical marriage date when present, otherwise the raw one.
func (f *Family) MarriageDateValue() string {
	if f.MarriageDateCanonical != "" {
		return f.MarriageDateCanonical
	}
	return f.MarriageDate
}

// SpouseIDs returns the non-nil spouse ids, husband first.
func (f *Family) SpouseIDs() []int64 {
	ids := make([]int64, 0, 2)
	if f.HusbandID != nil {
		ids = append(ids, *f.HusbandID)
	}
	if f.WifeID != nil {
		ids = append(ids, *f.WifeID)
	}
	return ids
}

// Relationship is a direct parent-child link outside of a family record.
type Relationship struct {
	ParentID int64  `json:"parent_id"`
	ChildID  int64  `json:"child_id"`
	RelType  string `json:"rel_type"`
}

// Event is a dated fact attached to a person or a family.
type Event struct {
	ID            int64     `json:"id"`
	EventType     EventType `json:"event_type"`
	PersonID      *int64    `json:"person_id,omitempty"`
	FamilyID      *int64    `json:"family_id,omitempty"`
	DateRaw       string    `json:"date_raw"`
	PlaceRaw      string    `json:"place_raw"`
	DateCanonical string    `json:"date_canonical"`
	PlaceID       *int64    `json:"place_id,omitempty"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"created_at"`
}

// DateValue returns the canonical date when present, otherwise the raw one.
func (e *Event) DateValue() string {
	if e.DateCanonical != "" {
		return e.DateCanonical
	}
	return e.DateRaw
}

// Place is a registered canonical place name.
type Place struct {
	ID            int64    `json:"id"`
	CanonicalName string   `json:"canonical_name"`
	Variants      []string `json:"variants,omitempty"`
}

// MediaAsset is a stored media file.
type MediaAsset struct {
	ID               int64     `json:"id"`
	Path             string    `json:"path"`
	SHA256           string    `json:"sha256"`
	OriginalFilename string    `json:"original_filename"`
	MimeType         string    `json:"mime_type"`
	SizeBytes        *int64    `json:"size_bytes,omitempty"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

// MediaLink attaches an asset to a person or a family.
type MediaLink struct {
	ID          int64     `json:"id"`
	AssetID     int64     `json:"asset_id"`
	PersonID    *int64    `json:"person_id,omitempty"`
	FamilyID    *int64    `json:"family_id,omitempty"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Note is free text attached to a person or a family.
type Note struct {
	ID        int64     `json:"id"`
	PersonID  *int64    `json:"person_id,omitempty"`
	FamilyID  *int64    `json:"family_id,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is a consistent read of every record the detectors need.
type Snapshot struct {
	Persons       []Person       `json:"persons,omitempty"`
	Families      []Family       `json:"families,omitempty"`
	Relationships []Relationship `json:"relationships,omitempty"`
	Events        []Event        `json:"events,omitempty"`
	Places        []Place        `json:"places,omitempty"`
	MediaAssets   []MediaAsset   `json:"media_assets,omitempty"`
	MediaLinks    []MediaLink    `json:"media_links,omitempty"`
}

// PersonIndex returns the persons keyed by id.
func (s *Snapshot) PersonIndex() map[int64]*Person {
	idx := make(map[int64]*Person, len(s.Persons))
	for i := range s.Persons {
		idx[s.Persons[i].ID] = &s.Persons[i]
	}
	return idx
}
