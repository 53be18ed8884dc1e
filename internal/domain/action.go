package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActionLogEntry is one applied remediation. Entries are append-only except
// for RevertedBy, which is stamped once when the entry is undone.
type ActionLogEntry struct {
	ID               uuid.UUID
	ActionType       ActionType
	Payload          json.RawMessage
	UndoPayload      json.RawMessage
	AppliedBy        string
	CreatedAt        time.Time
	RevertedBy       *uuid.UUID
	ResolvedIssueIDs []uuid.UUID
}

// ---------------------------------------------------------------------------
// Forward payloads (stored verbatim in ActionLogEntry.Payload)
// ---------------------------------------------------------------------------

type MergePeoplePayload struct {
	FromID      int64       `json:"from_id"`
	IntoID      int64       `json:"into_id"`
	FillMissing bool        `json:"fill_missing"`
	IssueIDs    []uuid.UUID `json:"issue_ids,omitempty"`
}

type MergeFamiliesPayload struct {
	FromID      int64       `json:"from_id"`
	IntoID      int64       `json:"into_id"`
	FillMissing bool        `json:"fill_missing"`
	IssueIDs    []uuid.UUID `json:"issue_ids,omitempty"`
}

type DedupeMediaLinksPayload struct {
	LinkIDs  []int64     `json:"link_ids"`
	KeepID   int64       `json:"keep_id"`
	IssueIDs []uuid.UUID `json:"issue_ids,omitempty"`
}

type MergeMediaAssetsPayload struct {
	FromID   int64       `json:"from_id"`
	IntoID   int64       `json:"into_id"`
	IssueIDs []uuid.UUID `json:"issue_ids,omitempty"`
}

type NormalizePlacesPayload struct {
	Canonical string      `json:"canonical"`
	Variants  []string    `json:"variants"`
	SaveRule  bool        `json:"save_rule,omitempty"`
	RuleID    *uuid.UUID  `json:"rule_id,omitempty"`
	IssueIDs  []uuid.UUID `json:"issue_ids,omitempty"`
}

// DateNormalizationItem is one requested date rewrite.
type DateNormalizationItem struct {
	EntityType EntityType `json:"entity_type"`
	EntityID   int64      `json:"entity_id"`
	Field      string     `json:"field"`
	Raw        string     `json:"raw"`
	Normalized string     `json:"normalized"`
}

type NormalizeDatesPayload struct {
	Items    []DateNormalizationItem `json:"items"`
	IssueIDs []uuid.UUID             `json:"issue_ids,omitempty"`
}

type UndoPayload struct {
	ActionID uuid.UUID `json:"action_id"`
}

// ---------------------------------------------------------------------------
// Undo data (prior-state snapshots captured before mutating)
// ---------------------------------------------------------------------------

// MergePeopleUndo holds both persons exactly as they were, the state the
// merge left "into" in, and every reference it moved or dropped.
type MergePeopleUndo struct {
	IntoBefore  Person `json:"into_before"`
	IntoAfter   Person `json:"into_after"`
	From        Person `json:"from"`
	MovedRefs   []Ref  `json:"moved_refs"`   // as they point after the merge
	DroppedRefs []Ref  `json:"dropped_refs"` // as they pointed before the merge
}

type MergeFamiliesUndo struct {
	IntoBefore  Family `json:"into_before"`
	IntoAfter   Family `json:"into_after"`
	From        Family `json:"from"`
	MovedRefs   []Ref  `json:"moved_refs"`
	DroppedRefs []Ref  `json:"dropped_refs"`
}

type DedupeMediaLinksUndo struct {
	Removed []MediaLink `json:"removed"`
}

type MergeMediaAssetsUndo struct {
	From      MediaAsset `json:"from"`
	MovedRefs []Ref      `json:"moved_refs"`
}

// FieldChangesUndo backs normalizePlaces and normalizeDates.
type FieldChangesUndo struct {
	Changes []FieldChange `json:"changes"`
}

// UndoOp says whether applying an UndoPlan reverses an action or re-runs it.
type UndoOp string

const (
	UndoOpRevert  UndoOp = "revert"
	UndoOpReapply UndoOp = "reapply"
)

// UndoPlan is what ActionLogEntry.UndoPayload holds. Applying a plan always
// yields its inverse, which becomes the undo payload of the new undo entry.
type UndoPlan struct {
	Op         UndoOp          `json:"op"`
	ActionType ActionType      `json:"action_type"`
	Payload    json.RawMessage `json:"payload"`
	Data       json.RawMessage `json:"data,omitempty"`
	IssueIDs   []uuid.UUID     `json:"issue_ids,omitempty"`
}
