package rest

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/heartmarshall/treecleaner/internal/domain"
	"github.com/heartmarshall/treecleaner/internal/service/remediation"
)

type ruleService interface {
	ListRules(ctx context.Context) ([]domain.PlaceNormalizationRule, error)
	SaveRule(ctx context.Context, input remediation.SaveRuleInput) (*domain.PlaceNormalizationRule, error)
	ApproveRule(ctx context.Context, id uuid.UUID, approved bool, operator string) (*domain.PlaceNormalizationRule, error)
	ApplyRule(ctx context.Context, id uuid.UUID, issueIDs []uuid.UUID, user string) (*remediation.ActionResult, error)
	ReplayApprovedRules(ctx context.Context, user string) ([]*remediation.ActionResult, error)
}

// RuleHandler serves place normalization rules.
type RuleHandler struct {
	svc ruleService
	log *slog.Logger
}

// NewRuleHandler creates a RuleHandler.
func NewRuleHandler(svc ruleService, logger *slog.Logger) *RuleHandler {
	return &RuleHandler{svc: svc, log: logger.With("handler", "place_rule")}
}

type saveRuleRequest struct {
	Canonical string   `json:"canonical"`
	Variants  []string `json:"variants"`
}

type approveRuleRequest struct {
	Approved  *bool  `json:"approved"`
	AppliedBy string `json:"applied_by"`
}

type applyRuleRequest struct {
	IssueIDs  []uuid.UUID `json:"issue_ids"`
	AppliedBy string      `json:"applied_by"`
}

// List handles GET /api/dq/place-rules.
func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	rules, err := h.svc.ListRules(r.Context())
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleList(rules))
}

// Save handles POST /api/dq/place-rules. New rules await approval.
func (h *RuleHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req saveRuleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(h.log, w, r, err)
		return
	}
	rule, err := h.svc.SaveRule(r.Context(), remediation.SaveRuleInput{
		Canonical: req.Canonical,
		Variants:  req.Variants,
	})
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRuleResponse(*rule))
}

// Approve handles POST /api/dq/place-rules/{id}/approve. The body may send
// "approved": false to withdraw approval.
func (h *RuleHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	var req approveRuleRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		handleError(h.log, w, r, err)
		return
	}
	approved := req.Approved == nil || *req.Approved

	rule, err := h.svc.ApproveRule(r.Context(), id, approved, operatorFor(r, req.AppliedBy))
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleResponse(*rule))
}

// Apply handles POST /api/dq/place-rules/{id}/apply.
func (h *RuleHandler) Apply(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	var req applyRuleRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		handleError(h.log, w, r, err)
		return
	}

	res, err := h.svc.ApplyRule(r.Context(), id, req.IssueIDs, operatorFor(r, req.AppliedBy))
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toActionResponse(res))
}

// Replay handles POST /api/dq/place-rules/replay. A failure part way through
// keeps the actions already applied and reports them alongside the error.
func (h *RuleHandler) Replay(w http.ResponseWriter, r *http.Request) {
	var req undoRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		handleError(h.log, w, r, err)
		return
	}

	results, err := h.svc.ReplayApprovedRules(r.Context(), operatorFor(r, req.AppliedBy))
	if err != nil && len(results) == 0 {
		handleError(h.log, w, r, err)
		return
	}
	resp := toActionList(results)
	if err != nil {
		h.log.WarnContext(r.Context(), "place rule replay stopped", slog.String("error", err.Error()))
		code, msg := domain.ErrorCode(err), err.Error()
		if code == domain.CodeInternal {
			msg = "internal server error"
		}
		writeJSON(w, http.StatusMultiStatus, struct {
			listResponse[actionResponse]
			Error errorResponse `json:"error"`
		}{resp, errorResponse{ErrorCode: code, Message: msg}})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
