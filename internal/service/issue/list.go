package issue

import (
	"context"
	"fmt"

	"github.com/heartmarshall/treecleaner/internal/domain"
)

// IssueList is one page of issues plus the total matching the filter.
type IssueList struct {
	Items []domain.Issue
	Total int
}

// ActionLogList is one page of the action log, newest first.
type ActionLogList struct {
	Items []domain.ActionLogEntry
	Total int
}

// ListIssues returns issues newest first.
func (s *Service) ListIssues(ctx context.Context, input ListIssuesInput) (*IssueList, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	limit, offset := input.limitOffset()

	items, total, err := s.issues.List(ctx, domain.IssueFilter{
		Type:   input.Type,
		Status: input.Status,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	return &IssueList{Items: items, Total: total}, nil
}

// ListActionLog returns applied actions newest first.
func (s *Service) ListActionLog(ctx context.Context, input ListActionLogInput) (*ActionLogList, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	limit, offset := input.limitOffset()

	items, total, err := s.actions.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list action log: %w", err)
	}
	return &ActionLogList{Items: items, Total: total}, nil
}
