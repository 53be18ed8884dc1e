package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// httpRequests counts served requests.
	// Labels: method, route (mux pattern, "unmatched" for 404s), status
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "treecleaner",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status",
	}, []string{"method", "route", "status"})

	// httpDuration measures handler latency.
	// Labels: route
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "treecleaner",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP handler latency in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	// rateLimited counts requests rejected by RateLimiter.
	rateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "treecleaner",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the action rate limit",
	})
)

// Metrics records request counts and latency per route. The route label is
// the ServeMux pattern that matched, which keeps ids out of label values, so
// Metrics must wrap the mux rather than sit inside a handler.
func Metrics() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
			httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		})
	}
}
