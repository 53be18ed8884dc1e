package domain

// IssueType enumerates the kinds of problems the detectors report.
type IssueType string

const (
	IssueDuplicatePerson           IssueType = "duplicate_person"
	IssueDuplicateFamily           IssueType = "duplicate_family"
	IssueDuplicateFamilySpouseSwap IssueType = "duplicate_family_spouse_swap"
	IssueDuplicateMediaLink        IssueType = "duplicate_media_link"
	IssueDuplicateMediaAsset       IssueType = "duplicate_media_asset"
	IssuePlaceCluster              IssueType = "place_cluster"
	IssuePlaceSimilarity           IssueType = "place_similarity"
	IssueDateNormalization         IssueType = "date_normalization"
	IssueImpossibleTimeline        IssueType = "impossible_timeline"
	IssueOrphanEvent               IssueType = "orphan_event"
	IssueOrphanFamily              IssueType = "orphan_family"
	IssueParentChildAge            IssueType = "parent_child_age"
	IssueParentChildDeath          IssueType = "parent_child_death"
	IssueMarriageTooEarly          IssueType = "marriage_too_early"
	IssueMarriageAfterDeath        IssueType = "marriage_after_death"
	IssuePlaceholderName           IssueType = "placeholder_name"
)

// AllIssueTypes lists every known issue type in detector order.
var AllIssueTypes = []IssueType{
	IssueDuplicatePerson,
	IssueDuplicateFamily,
	IssueDuplicateFamilySpouseSwap,
	IssueDuplicateMediaLink,
	IssueDuplicateMediaAsset,
	IssuePlaceCluster,
	IssuePlaceSimilarity,
	IssueDateNormalization,
	IssueImpossibleTimeline,
	IssueOrphanEvent,
	IssueOrphanFamily,
	IssueParentChildAge,
	IssueParentChildDeath,
	IssueMarriageTooEarly,
	IssueMarriageAfterDeath,
	IssuePlaceholderName,
}

func (t IssueType) String() string { return string(t) }

func (t IssueType) IsValid() bool {
	for _, known := range AllIssueTypes {
		if t == known {
			return true
		}
	}
	return false
}

// IsDuplicate reports whether the type belongs to the duplicate family of detectors.
func (t IssueType) IsDuplicate() bool {
	switch t {
	case IssueDuplicatePerson, IssueDuplicateFamily, IssueDuplicateFamilySpouseSwap,
		IssueDuplicateMediaLink, IssueDuplicateMediaAsset:
		return true
	}
	return false
}

// IsIntegrity reports whether the type is produced by the integrity rule set.
func (t IssueType) IsIntegrity() bool {
	switch t {
	case IssueImpossibleTimeline, IssueOrphanEvent, IssueOrphanFamily,
		IssueParentChildAge, IssueParentChildDeath, IssueMarriageTooEarly,
		IssueMarriageAfterDeath, IssuePlaceholderName:
		return true
	}
	return false
}

// IsPlace reports whether the type is a place standardization suggestion.
func (t IssueType) IsPlace() bool {
	return t == IssuePlaceCluster || t == IssuePlaceSimilarity
}

// IssueStatus is the review state of an issue.
type IssueStatus string

const (
	IssueStatusOpen     IssueStatus = "open"
	IssueStatusResolved IssueStatus = "resolved"
	IssueStatusIgnored  IssueStatus = "ignored"
)

func (s IssueStatus) String() string { return string(s) }

func (s IssueStatus) IsValid() bool {
	switch s {
	case IssueStatusOpen, IssueStatusResolved, IssueStatusIgnored:
		return true
	}
	return false
}

// Severity grades how urgently an issue needs attention.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

func (s Severity) String() string { return string(s) }

// EntityType names the kind of record an issue or reference points at.
type EntityType string

const (
	EntityPerson     EntityType = "person"
	EntityFamily     EntityType = "family"
	EntityEvent      EntityType = "event"
	EntityMediaLink  EntityType = "media_link"
	EntityMediaAsset EntityType = "media_asset"
	EntityPlace      EntityType = "place"
	EntityDate       EntityType = "date"
	EntityNote       EntityType = "note"
)

func (e EntityType) String() string { return string(e) }

func (e EntityType) IsValid() bool {
	switch e {
	case EntityPerson, EntityFamily, EntityEvent, EntityMediaLink,
		EntityMediaAsset, EntityPlace, EntityDate, EntityNote:
		return true
	}
	return false
}

// ActionType identifies an applied remediation in the action log.
type ActionType string

const (
	ActionMergePeople      ActionType = "mergePeople"
	ActionMergeFamilies    ActionType = "mergeFamilies"
	ActionDedupeMediaLinks ActionType = "dedupeMediaLinks"
	ActionMergeMediaAssets ActionType = "mergeMediaAssets"
	ActionNormalizePlaces  ActionType = "normalizePlaces"
	ActionNormalizeDates   ActionType = "normalizeDates"
	ActionUndo             ActionType = "undo"
)

func (a ActionType) String() string { return string(a) }

func (a ActionType) IsValid() bool {
	switch a {
	case ActionMergePeople, ActionMergeFamilies, ActionDedupeMediaLinks,
		ActionMergeMediaAssets, ActionNormalizePlaces, ActionNormalizeDates, ActionUndo:
		return true
	}
	return false
}

// DatePrecision is the granularity a parsed date was recognised at.
type DatePrecision string

const (
	PrecisionDay     DatePrecision = "day"
	PrecisionMonth   DatePrecision = "month"
	PrecisionYear    DatePrecision = "year"
	PrecisionRange   DatePrecision = "range"
	PrecisionUnknown DatePrecision = "unknown"
)

// DateQualifier is a modifier that blocks automatic normalization.
type DateQualifier string

const (
	QualifierNone       DateQualifier = "none"
	QualifierAbout      DateQualifier = "about"
	QualifierBefore     DateQualifier = "before"
	QualifierAfter      DateQualifier = "after"
	QualifierEstimated  DateQualifier = "estimated"
	QualifierCalculated DateQualifier = "calculated"
)

// IsSet reports whether a real qualifier is present.
func (q DateQualifier) IsSet() bool {
	return q != "" && q != QualifierNone
}

// EventType mirrors the record store's event kinds.
type EventType string

const (
	EventBirth          EventType = "birth"
	EventDeath          EventType = "death"
	EventMarriage       EventType = "marriage"
	EventDivorce        EventType = "divorce"
	EventCensus         EventType = "census"
	EventResidence      EventType = "residence"
	EventOccupation     EventType = "occupation"
	EventImmigration    EventType = "immigration"
	EventEmigration     EventType = "emigration"
	EventNaturalization EventType = "naturalization"
	EventOther          EventType = "other"
)
