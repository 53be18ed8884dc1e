package rest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/treecleaner/internal/domain"
	"github.com/heartmarshall/treecleaner/internal/service/issue"
	"github.com/heartmarshall/treecleaner/internal/service/remediation"
)

type listResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func toIssueList(list *issue.IssueList) (listResponse[issueResponse], error) {
	resp := listResponse[issueResponse]{Items: make([]issueResponse, 0, len(list.Items)), Total: list.Total}
	for _, is := range list.Items {
		item, err := toIssueResponse(is)
		if err != nil {
			return resp, fmt.Errorf("encode issue %s: %w", is.ID, err)
		}
		resp.Items = append(resp.Items, item)
	}
	return resp, nil
}

func toActionLogList(list *issue.ActionLogList) listResponse[actionLogResponse] {
	resp := listResponse[actionLogResponse]{Items: make([]actionLogResponse, 0, len(list.Items)), Total: list.Total}
	for _, e := range list.Items {
		resp.Items = append(resp.Items, toActionLogResponse(e))
	}
	return resp
}

func toActionList(results []*remediation.ActionResult) listResponse[actionResponse] {
	resp := listResponse[actionResponse]{Items: make([]actionResponse, 0, len(results)), Total: len(results)}
	for _, res := range results {
		resp.Items = append(resp.Items, toActionResponse(res))
	}
	return resp
}

func toRuleList(rules []domain.PlaceNormalizationRule) listResponse[ruleResponse] {
	resp := listResponse[ruleResponse]{Items: make([]ruleResponse, 0, len(rules)), Total: len(rules)}
	for _, rule := range rules {
		resp.Items = append(resp.Items, toRuleResponse(rule))
	}
	return resp
}

type issueResponse struct {
	ID          uuid.UUID       `json:"id"`
	IssueType   string          `json:"issue_type"`
	Severity    string          `json:"severity"`
	EntityType  string          `json:"entity_type"`
	EntityIDs   []int64         `json:"entity_ids"`
	Status      string          `json:"status"`
	Confidence  float64         `json:"confidence"`
	ImpactScore float64         `json:"impact_score"`
	Explanation json.RawMessage `json:"explanation"`
	DetectedAt  time.Time       `json:"detected_at"`
	ResolvedAt  *time.Time      `json:"resolved_at,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func toIssueResponse(is domain.Issue) (issueResponse, error) {
	expl, err := domain.EncodeExplanation(is.Explanation)
	if err != nil {
		return issueResponse{}, err
	}
	return issueResponse{
		ID:          is.ID,
		IssueType:   string(is.IssueType),
		Severity:    string(is.Severity),
		EntityType:  string(is.EntityType),
		EntityIDs:   is.EntityIDs,
		Status:      string(is.Status),
		Confidence:  is.Confidence,
		ImpactScore: is.ImpactScore,
		Explanation: expl,
		DetectedAt:  is.DetectedAt,
		ResolvedAt:  is.ResolvedAt,
		UpdatedAt:   is.UpdatedAt,
	}, nil
}

type actionLogResponse struct {
	ID               uuid.UUID       `json:"id"`
	ActionType       string          `json:"action_type"`
	Payload          json.RawMessage `json:"payload"`
	UndoPayload      json.RawMessage `json:"undo_payload"`
	AppliedBy        string          `json:"applied_by"`
	CreatedAt        time.Time       `json:"created_at"`
	RevertedBy       *uuid.UUID      `json:"reverted_by,omitempty"`
	ResolvedIssueIDs []uuid.UUID     `json:"resolved_issue_ids,omitempty"`
}

func toActionLogResponse(e domain.ActionLogEntry) actionLogResponse {
	return actionLogResponse{
		ID:               e.ID,
		ActionType:       string(e.ActionType),
		Payload:          e.Payload,
		UndoPayload:      e.UndoPayload,
		AppliedBy:        e.AppliedBy,
		CreatedAt:        e.CreatedAt,
		RevertedBy:       e.RevertedBy,
		ResolvedIssueIDs: e.ResolvedIssueIDs,
	}
}

type actionResponse struct {
	ActionID         uuid.UUID            `json:"action_id"`
	ActionType       string               `json:"action_type"`
	ResolvedIssueIDs []uuid.UUID          `json:"resolved_issue_ids"`
	ReopenedIssueIDs []uuid.UUID          `json:"reopened_issue_ids,omitempty"`
	Person           *domain.Person       `json:"person,omitempty"`
	Family           *domain.Family       `json:"family,omitempty"`
	Asset            *domain.MediaAsset   `json:"asset,omitempty"`
	Link             *domain.MediaLink    `json:"link,omitempty"`
	Changes          []domain.FieldChange `json:"changes,omitempty"`
	Rule             *ruleResponse        `json:"rule,omitempty"`
}

func toActionResponse(res *remediation.ActionResult) actionResponse {
	out := actionResponse{
		ActionID:         res.ActionID,
		ActionType:       string(res.ActionType),
		ResolvedIssueIDs: res.ResolvedIssueIDs,
		ReopenedIssueIDs: res.ReopenedIssueIDs,
		Person:           res.Person,
		Family:           res.Family,
		Asset:            res.Asset,
		Link:             res.Link,
		Changes:          res.Changes,
	}
	if out.ResolvedIssueIDs == nil {
		out.ResolvedIssueIDs = []uuid.UUID{}
	}
	if res.Rule != nil {
		rule := toRuleResponse(*res.Rule)
		out.Rule = &rule
	}
	return out
}

type ruleResponse struct {
	ID        uuid.UUID `json:"id"`
	Canonical string    `json:"canonical"`
	Variants  []string  `json:"variants"`
	Approved  bool      `json:"approved"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toRuleResponse(r domain.PlaceNormalizationRule) ruleResponse {
	return ruleResponse{
		ID:        r.ID,
		Canonical: r.Canonical,
		Variants:  r.Variants,
		Approved:  r.Approved,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type scanResponse struct {
	Incremental bool           `json:"incremental"`
	Counts      map[string]int `json:"counts"`
	Created     int            `json:"created"`
	Updated     int            `json:"updated"`
	Reopened    int            `json:"reopened"`
	Resolved    int            `json:"resolved"`
	StartedAt   time.Time      `json:"started_at"`
	DurationMS  int64          `json:"duration_ms"`
}

func toScanResponse(r domain.ScanResult) scanResponse {
	counts := make(map[string]int, len(r.Counts))
	for t, n := range r.Counts {
		counts[string(t)] = n
	}
	return scanResponse{
		Incremental: r.Incremental,
		Counts:      counts,
		Created:     r.Created,
		Updated:     r.Updated,
		Reopened:    r.Reopened,
		Resolved:    r.Resolved,
		StartedAt:   r.StartedAt,
		DurationMS:  r.Duration.Milliseconds(),
	}
}

type summaryResponse struct {
	DataQualityScore           float64 `json:"data_quality_score"`
	StandardizedDatesPct       float64 `json:"standardized_dates_pct"`
	UnresolvedDuplicates       int     `json:"unresolved_duplicates"`
	PlaceClusters              int     `json:"place_clusters"`
	IntegrityWarnings          int     `json:"integrity_warnings"`
	StandardizationSuggestions int     `json:"standardization_suggestions"`
}

func toSummaryResponse(s domain.Summary) summaryResponse {
	return summaryResponse(s)
}
