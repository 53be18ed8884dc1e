package rest

import (
	"github.com/heartmarshall/treecleaner/internal/domain"
	"github.com/heartmarshall/treecleaner/internal/service/issue"
	"github.com/heartmarshall/treecleaner/internal/service/remediation"
)

// The functions below return the JSON bodies the API serves, for callers
// that print results outside an HTTP response (dqctl).

// ScanView is the body of POST /api/dq/scan.
func ScanView(r domain.ScanResult) any { return toScanResponse(r) }

// SummaryView is the body of GET /api/dq/summary.
func SummaryView(s domain.Summary) any { return toSummaryResponse(s) }

// IssuesView is the body of GET /api/dq/issues.
func IssuesView(list *issue.IssueList) (any, error) { return toIssueList(list) }

// ActionLogView is the body of GET /api/dq/actions.
func ActionLogView(list *issue.ActionLogList) any { return toActionLogList(list) }

// ActionView is the body returned by every remediation endpoint.
func ActionView(res *remediation.ActionResult) any { return toActionResponse(res) }

// ActionsView lists several action results, as place-rule replay does.
func ActionsView(results []*remediation.ActionResult) any { return toActionList(results) }

// RulesView is the body of GET /api/dq/place-rules.
func RulesView(rules []domain.PlaceNormalizationRule) any { return toRuleList(rules) }
