package domain

import (
	"encoding/json"
	"fmt"
)

// Explanation is the scoring rationale attached to an issue. The concrete
// type is selected by the issue type.
type Explanation interface {
	explanation()
}

// DuplicatePersonExplanation backs duplicate_person.
type DuplicatePersonExplanation struct {
	Names           [2]string `json:"names"`
	NameSimilarity  float64   `json:"name_similarity"`
	BirthDates      [2]string `json:"birth_dates"`
	BirthDelta      *int      `json:"birth_delta"`
	DeathDelta      *int      `json:"death_delta"`
	BirthPlaces     [2]string `json:"birth_places"`
	BirthPlaceMatch bool      `json:"birth_place_match"`
	Score           float64   `json:"score"`
}

// DuplicateFamilyExplanation backs duplicate_family and duplicate_family_spouse_swap.
type DuplicateFamilyExplanation struct {
	SpouseNames      [2][2]string `json:"spouse_names"`
	MarriageDates    [2]string    `json:"marriage_dates"`
	MarriagePlaces   [2]string    `json:"marriage_places"`
	SpouseSimilarity float64      `json:"spouse_similarity"`
	DateAgreement    float64      `json:"date_agreement"`
	PlaceAgreement   float64      `json:"place_agreement"`
	Swapped          bool         `json:"swapped"`
	Score            float64      `json:"score"`
}

// DuplicateMediaLinkExplanation backs duplicate_media_link.
type DuplicateMediaLinkExplanation struct {
	AssetID  int64   `json:"asset_id"`
	PersonID *int64  `json:"person_id,omitempty"`
	FamilyID *int64  `json:"family_id,omitempty"`
	LinkIDs  []int64 `json:"link_ids"`
}

// DuplicateMediaAssetExplanation backs duplicate_media_asset.
type DuplicateMediaAssetExplanation struct {
	Filenames          [2]string `json:"filenames"`
	FilenameSimilarity float64   `json:"filename_similarity"`
	Sizes              [2]*int64 `json:"sizes"`
	SizeMatch          bool      `json:"size_match"`
	SizeBump           float64   `json:"size_bump"`
}

// PlaceVariantCount is one literal spelling and how often it occurs.
type PlaceVariantCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// PlaceExplanation backs place_cluster and place_similarity.
type PlaceExplanation struct {
	Keys                []string            `json:"keys"`
	Variants            []PlaceVariantCount `json:"variants"`
	CanonicalSuggestion string              `json:"canonical_suggestion"`
	Similarity          float64             `json:"similarity,omitempty"`
	Pair                []string            `json:"pair,omitempty"`
	RegisteredCanonical string              `json:"registered_canonical,omitempty"`
}

// DateExplanation backs date_normalization.
type DateExplanation struct {
	OwnerType  EntityType    `json:"owner_type"`
	OwnerID    int64         `json:"owner_id"`
	Field      string        `json:"field"`
	Raw        string        `json:"raw"`
	Canonical  string        `json:"canonical"`
	Normalized string        `json:"normalized"`
	Precision  DatePrecision `json:"precision"`
	Qualifier  DateQualifier `json:"qualifier"`
	Confidence float64       `json:"confidence"`
	Ambiguous  bool          `json:"ambiguous"`
	Reason     string        `json:"reason"`
}

// IntegrityExplanation backs every integrity rule. Only the fields the rule
// looked at are populated.
type IntegrityExplanation struct {
	Rule        string `json:"rule"`
	Message     string `json:"message"`
	PersonName  string `json:"person_name,omitempty"`
	RelatedName string `json:"related_name,omitempty"`
	BirthYear   *int   `json:"birth_year,omitempty"`
	DeathYear   *int   `json:"death_year,omitempty"`
	OtherYear   *int   `json:"other_year,omitempty"`
	EventType   string `json:"event_type,omitempty"`
	Token       string `json:"token,omitempty"`
}

// RawExplanation keeps payloads of issue types this build does not know.
type RawExplanation struct {
	IssueType IssueType
	Data      json.RawMessage
}

func (RawExplanation) explanation()                 {}
func (DuplicatePersonExplanation) explanation()     {}
func (DuplicateFamilyExplanation) explanation()     {}
func (DuplicateMediaLinkExplanation) explanation()  {}
func (DuplicateMediaAssetExplanation) explanation() {}
func (PlaceExplanation) explanation()               {}
func (DateExplanation) explanation()                {}
func (IntegrityExplanation) explanation()           {}

// MarshalJSON emits the stored payload unchanged.
func (r RawExplanation) MarshalJSON() ([]byte, error) {
	if len(r.Data) == 0 {
		return []byte("null"), nil
	}
	return r.Data, nil
}

// EncodeExplanation serializes an explanation for storage.
func EncodeExplanation(e Explanation) ([]byte, error) {
	if e == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(e)
}

// DecodeExplanation restores the typed explanation for an issue type.
// Unknown types come back as RawExplanation.
func DecodeExplanation(t IssueType, data []byte) (Explanation, error) {
	var (
		target Explanation
		err    error
	)
	switch {
	case t == IssueDuplicatePerson:
		var e DuplicatePersonExplanation
		err = json.Unmarshal(data, &e)
		target = e
	case t == IssueDuplicateFamily || t == IssueDuplicateFamilySpouseSwap:
		var e DuplicateFamilyExplanation
		err = json.Unmarshal(data, &e)
		target = e
	case t == IssueDuplicateMediaLink:
		var e DuplicateMediaLinkExplanation
		err = json.Unmarshal(data, &e)
		target = e
	case t == IssueDuplicateMediaAsset:
		var e DuplicateMediaAssetExplanation
		err = json.Unmarshal(data, &e)
		target = e
	case t.IsPlace():
		var e PlaceExplanation
		err = json.Unmarshal(data, &e)
		target = e
	case t == IssueDateNormalization:
		var e DateExplanation
		err = json.Unmarshal(data, &e)
		target = e
	case t.IsIntegrity():
		var e IntegrityExplanation
		err = json.Unmarshal(data, &e)
		target = e
	default:
		return RawExplanation{IssueType: t, Data: append(json.RawMessage(nil), data...)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s explanation: %w", t, err)
	}
	return target, nil
}
