package rest

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/heartmarshall/treecleaner/internal/domain"
	"github.com/heartmarshall/treecleaner/internal/service/remediation"
)

type remediationService interface {
	MergePeople(ctx context.Context, input remediation.MergeInput) (*remediation.ActionResult, error)
	MergeFamilies(ctx context.Context, input remediation.MergeInput) (*remediation.ActionResult, error)
	DedupeMediaLinks(ctx context.Context, input remediation.DedupeMediaLinksInput) (*remediation.ActionResult, error)
	MergeMediaAssets(ctx context.Context, input remediation.MergeInput) (*remediation.ActionResult, error)
	NormalizePlaces(ctx context.Context, input remediation.NormalizePlacesInput) (*remediation.ActionResult, error)
	NormalizeDates(ctx context.Context, input remediation.NormalizeDatesInput) (*remediation.ActionResult, error)
	Undo(ctx context.Context, actionID uuid.UUID, user string) (*remediation.ActionResult, error)
}

// ActionHandler serves the remediation actions and undo.
type ActionHandler struct {
	svc remediationService
	log *slog.Logger
}

// NewActionHandler creates an ActionHandler.
func NewActionHandler(svc remediationService, logger *slog.Logger) *ActionHandler {
	return &ActionHandler{svc: svc, log: logger.With("handler", "action")}
}

type mergeRequest struct {
	FromID      int64       `json:"from_id"`
	IntoID      int64       `json:"into_id"`
	FillMissing bool        `json:"fill_missing"`
	IssueIDs    []uuid.UUID `json:"issue_ids"`
	AppliedBy   string      `json:"applied_by"`
}

type dedupeLinksRequest struct {
	LinkIDs   []int64     `json:"link_ids"`
	KeepID    int64       `json:"keep_id"`
	IssueIDs  []uuid.UUID `json:"issue_ids"`
	AppliedBy string      `json:"applied_by"`
}

type normalizePlacesRequest struct {
	Canonical string      `json:"canonical"`
	Variants  []string    `json:"variants"`
	SaveRule  bool        `json:"save_rule"`
	IssueIDs  []uuid.UUID `json:"issue_ids"`
	AppliedBy string      `json:"applied_by"`
}

type normalizeDatesRequest struct {
	Items     []domain.DateNormalizationItem `json:"items"`
	IssueIDs  []uuid.UUID                    `json:"issue_ids"`
	AppliedBy string                         `json:"applied_by"`
}

type undoRequest struct {
	AppliedBy string `json:"applied_by"`
}

func (req mergeRequest) input(r *http.Request) remediation.MergeInput {
	return remediation.MergeInput{
		FromID:      req.FromID,
		IntoID:      req.IntoID,
		FillMissing: req.FillMissing,
		IssueIDs:    req.IssueIDs,
		AppliedBy:   operatorFor(r, req.AppliedBy),
	}
}

// MergePeople handles POST /api/dq/actions/merge-people.
func (h *ActionHandler) MergePeople(w http.ResponseWriter, r *http.Request) {
	h.merge(w, r, h.svc.MergePeople)
}

// MergeFamilies handles POST /api/dq/actions/merge-families.
func (h *ActionHandler) MergeFamilies(w http.ResponseWriter, r *http.Request) {
	h.merge(w, r, h.svc.MergeFamilies)
}

// MergeMediaAssets handles POST /api/dq/actions/merge-media-assets.
func (h *ActionHandler) MergeMediaAssets(w http.ResponseWriter, r *http.Request) {
	h.merge(w, r, h.svc.MergeMediaAssets)
}

func (h *ActionHandler) merge(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, input remediation.MergeInput) (*remediation.ActionResult, error),
) {
	var req mergeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(h.log, w, r, err)
		return
	}
	h.respond(w, r)(fn(r.Context(), req.input(r)))
}

// DedupeMediaLinks handles POST /api/dq/actions/dedupe-media-links.
func (h *ActionHandler) DedupeMediaLinks(w http.ResponseWriter, r *http.Request) {
	var req dedupeLinksRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(h.log, w, r, err)
		return
	}
	h.respond(w, r)(h.svc.DedupeMediaLinks(r.Context(), remediation.DedupeMediaLinksInput{
		LinkIDs:   req.LinkIDs,
		KeepID:    req.KeepID,
		IssueIDs:  req.IssueIDs,
		AppliedBy: operatorFor(r, req.AppliedBy),
	}))
}

// NormalizePlaces handles POST /api/dq/actions/normalize-places.
func (h *ActionHandler) NormalizePlaces(w http.ResponseWriter, r *http.Request) {
	var req normalizePlacesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(h.log, w, r, err)
		return
	}
	h.respond(w, r)(h.svc.NormalizePlaces(r.Context(), remediation.NormalizePlacesInput{
		Canonical: req.Canonical,
		Variants:  req.Variants,
		SaveRule:  req.SaveRule,
		IssueIDs:  req.IssueIDs,
		AppliedBy: operatorFor(r, req.AppliedBy),
	}))
}

// NormalizeDates handles POST /api/dq/actions/normalize-dates.
func (h *ActionHandler) NormalizeDates(w http.ResponseWriter, r *http.Request) {
	var req normalizeDatesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(h.log, w, r, err)
		return
	}
	h.respond(w, r)(h.svc.NormalizeDates(r.Context(), remediation.NormalizeDatesInput{
		Items:     req.Items,
		IssueIDs:  req.IssueIDs,
		AppliedBy: operatorFor(r, req.AppliedBy),
	}))
}

// Undo handles POST /api/dq/actions/{id}/undo.
func (h *ActionHandler) Undo(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	var req undoRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		handleError(h.log, w, r, err)
		return
	}
	h.respond(w, r)(h.svc.Undo(r.Context(), id, operatorFor(r, req.AppliedBy)))
}

func (h *ActionHandler) respond(w http.ResponseWriter, r *http.Request) func(*remediation.ActionResult, error) {
	return func(res *remediation.ActionResult, err error) {
		if err != nil {
			handleError(h.log, w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toActionResponse(res))
	}
}
