package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/heartmarshall/treecleaner/internal/domain"
	"github.com/heartmarshall/treecleaner/internal/service/issue"
)

type issueService interface {
	ListIssues(ctx context.Context, input issue.ListIssuesInput) (*issue.IssueList, error)
	ListActionLog(ctx context.Context, input issue.ListActionLogInput) (*issue.ActionLogList, error)
	IgnoreIssue(ctx context.Context, id uuid.UUID, operator string) (*domain.Issue, error)
	ReopenIssue(ctx context.Context, id uuid.UUID, operator string) (*domain.Issue, error)
}

// IssueHandler serves issue listing, triage and the action log.
type IssueHandler struct {
	svc issueService
	log *slog.Logger
}

// NewIssueHandler creates an IssueHandler.
func NewIssueHandler(svc issueService, logger *slog.Logger) *IssueHandler {
	return &IssueHandler{svc: svc, log: logger.With("handler", "issue")}
}

type triageRequest struct {
	AppliedBy string `json:"applied_by"`
}

func readPage(r *http.Request) (issue.Page, error) {
	page, err := queryInt(r, "page")
	if err != nil {
		return issue.Page{}, err
	}
	perPage, err := queryInt(r, "per_page")
	if err != nil {
		return issue.Page{}, err
	}
	return issue.Page{Page: page, PerPage: perPage}, nil
}

// List handles GET /api/dq/issues?type=&status=&page=&per_page=.
func (h *IssueHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := readPage(r)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	q := r.URL.Query()
	list, err := h.svc.ListIssues(r.Context(), issue.ListIssuesInput{
		Type:   domain.IssueType(q.Get("type")),
		Status: domain.IssueStatus(q.Get("status")),
		Page:   page,
	})
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}

	resp, err := toIssueList(list)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Ignore handles POST /api/dq/issues/{id}/ignore.
func (h *IssueHandler) Ignore(w http.ResponseWriter, r *http.Request) {
	h.triage(w, r, h.svc.IgnoreIssue)
}

// Reopen handles POST /api/dq/issues/{id}/reopen.
func (h *IssueHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	h.triage(w, r, h.svc.ReopenIssue)
}

func (h *IssueHandler) triage(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, id uuid.UUID, operator string) (*domain.Issue, error),
) {
	id, err := pathUUID(r, "id")
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	var req triageRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		handleError(h.log, w, r, err)
		return
	}

	is, err := fn(r.Context(), id, operatorFor(r, req.AppliedBy))
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	resp, err := toIssueResponse(*is)
	if err != nil {
		handleError(h.log, w, r, fmt.Errorf("encode issue %s: %w", is.ID, err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ActionLog handles GET /api/dq/actions?page=&per_page=.
func (h *IssueHandler) ActionLog(w http.ResponseWriter, r *http.Request) {
	page, err := readPage(r)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	list, err := h.svc.ListActionLog(r.Context(), issue.ListActionLogInput{Page: page})
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toActionLogList(list))
}
