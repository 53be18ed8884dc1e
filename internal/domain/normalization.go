package domain

import (
	"time"

	"github.com/google/uuid"
)

// DateNormalizationRecord is one observed parse of a raw date. Rows are keyed
// by (entity_type, entity_id, field, raw); Raw is never rewritten.
type DateNormalizationRecord struct {
	EntityType   EntityType
	EntityID     int64
	Field        string
	Raw          string
	Normalized   string
	Precision    DatePrecision
	Qualifier    DateQualifier
	Confidence   float64
	Ambiguous    bool
	ObservedAt   time.Time
	SupersededAt *time.Time
}

// Key identifies the observed field irrespective of its raw value.
func (r DateNormalizationRecord) Key() FieldRef {
	return FieldRef{EntityType: r.EntityType, EntityID: r.EntityID, Field: r.Field}
}

// PlaceNormalizationRule is an operator-approved canonical spelling for a
// set of variants, replayable after a re-import.
type PlaceNormalizationRule struct {
	ID        uuid.UUID
	Canonical string
	Variants  []string
	Approved  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
