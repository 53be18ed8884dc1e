package rest

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/heartmarshall/treecleaner/internal/transport/middleware"
)

// Handlers groups every handler the router mounts.
type Handlers struct {
	Health  *HealthHandler
	Scan    *ScanHandler
	Issues  *IssueHandler
	Actions *ActionHandler
	Rules   *RuleHandler
}

// RouterConfig selects the optional parts of the route table.
type RouterConfig struct {
	// MetricsPath mounts the Prometheus handler; empty disables it.
	MetricsPath string
	// Mutate wraps every route that changes data, e.g. RequireOperator.
	Mutate middleware.Middleware
	// Action additionally wraps remediation actions and undo, e.g. a rate limit.
	Action middleware.Middleware
}

// NewRouter builds the route table. Cross-cutting middleware (recovery,
// request id, CORS, auth, logging) is applied by the caller around it.
func NewRouter(cfg RouterConfig, h Handlers) *http.ServeMux {
	write := func(fn http.HandlerFunc) http.Handler { return middleware.Chain(cfg.Mutate)(fn) }
	act := func(fn http.HandlerFunc) http.Handler { return middleware.Chain(cfg.Mutate, cfg.Action)(fn) }

	mux := http.NewServeMux()

	mux.HandleFunc("GET /live", h.Health.Live)
	mux.HandleFunc("GET /ready", h.Health.Ready)
	mux.HandleFunc("GET /health", h.Health.Health)
	if cfg.MetricsPath != "" {
		mux.Handle("GET "+cfg.MetricsPath, promhttp.Handler())
	}

	mux.Handle("POST /api/dq/scan", write(h.Scan.Scan))
	mux.HandleFunc("GET /api/dq/summary", h.Scan.Summary)

	mux.HandleFunc("GET /api/dq/issues", h.Issues.List)
	mux.Handle("POST /api/dq/issues/{id}/ignore", write(h.Issues.Ignore))
	mux.Handle("POST /api/dq/issues/{id}/reopen", write(h.Issues.Reopen))
	mux.HandleFunc("GET /api/dq/actions", h.Issues.ActionLog)

	mux.Handle("POST /api/dq/actions/merge-people", act(h.Actions.MergePeople))
	mux.Handle("POST /api/dq/actions/merge-families", act(h.Actions.MergeFamilies))
	mux.Handle("POST /api/dq/actions/dedupe-media-links", act(h.Actions.DedupeMediaLinks))
	mux.Handle("POST /api/dq/actions/merge-media-assets", act(h.Actions.MergeMediaAssets))
	mux.Handle("POST /api/dq/actions/normalize-places", act(h.Actions.NormalizePlaces))
	mux.Handle("POST /api/dq/actions/normalize-dates", act(h.Actions.NormalizeDates))
	mux.Handle("POST /api/dq/actions/{id}/undo", act(h.Actions.Undo))

	mux.HandleFunc("GET /api/dq/place-rules", h.Rules.List)
	mux.Handle("POST /api/dq/place-rules", write(h.Rules.Save))
	mux.Handle("POST /api/dq/place-rules/replay", act(h.Rules.Replay))
	mux.Handle("POST /api/dq/place-rules/{id}/approve", write(h.Rules.Approve))
	mux.Handle("POST /api/dq/place-rules/{id}/apply", act(h.Rules.Apply))

	return mux
}
