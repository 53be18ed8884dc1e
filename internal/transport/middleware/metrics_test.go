package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

func TestMetrics_LabelsByPattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/dq/issues/{id}/ignore", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	h := Metrics()(mux)

	for _, path := range []string{"/api/dq/issues/1b4e28ba-2fa1-11d2-883f-0016d3cca427/ignore", "/api/dq/nowhere"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, path, nil))
	}

	body := scrape(t)
	for _, want := range []string{
		`treecleaner_http_requests_total{method="POST",route="POST /api/dq/issues/{id}/ignore",status="409"}`,
		`treecleaner_http_requests_total{method="POST",route="unmatched",status="404"}`,
		`treecleaner_http_request_duration_seconds_count{route="POST /api/dq/issues/{id}/ignore"}`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %s", want)
		}
	}
	if strings.Contains(body, "1b4e28ba") {
		t.Error("issue id leaked into a label")
	}
}

func TestRateLimiter_CountsRejections(t *testing.T) {
	rl := NewRateLimiter(time.Minute)
	t.Cleanup(rl.Stop)
	h := rl.Limit(1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for range 2 {
		req := httptest.NewRequest(http.MethodPost, "/api/dq/actions/merge-people", nil)
		req.RemoteAddr = "203.0.113.9:5000"
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	if !strings.Contains(scrape(t), "treecleaner_http_rate_limited_total") {
		t.Error("rate_limited_total not exported")
	}
}
