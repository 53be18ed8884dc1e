package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/heartmarshall/treecleaner/internal/config"
)

func TestCORS(t *testing.T) {
	console := config.CORSConfig{
		AllowedOrigins:   "https://review.example, https://staging.review.example",
		AllowedMethods:   "GET,POST",
		AllowedHeaders:   "Authorization,Content-Type,X-Request-Id",
		AllowCredentials: true,
		MaxAge:           600,
	}
	open := config.CORSConfig{AllowedOrigins: "*", AllowedMethods: "GET", MaxAge: 60}

	cases := []struct {
		name        string
		cfg         config.CORSConfig
		method      string
		origin      string
		preflight   bool
		wantStatus  int
		wantOrigin  string
		wantCreds   string
		wantMethods string
		wantHandler bool
	}{
		{"preflight allowed", console, http.MethodOptions, "https://review.example", true,
			http.StatusNoContent, "https://review.example", "true", "GET,POST", false},
		{"preflight second origin", console, http.MethodOptions, "https://staging.review.example", true,
			http.StatusNoContent, "https://staging.review.example", "true", "GET,POST", false},
		{"preflight disallowed", console, http.MethodOptions, "https://evil.example", true,
			http.StatusNoContent, "", "", "", false},
		{"plain OPTIONS reaches router", console, http.MethodOptions, "https://review.example", false,
			http.StatusOK, "https://review.example", "true", "", true},
		{"simple request allowed", console, http.MethodGet, "https://review.example", false,
			http.StatusOK, "https://review.example", "true", "", true},
		{"simple request disallowed", console, http.MethodPost, "https://evil.example", false,
			http.StatusOK, "", "", "", true},
		{"no origin", console, http.MethodGet, "", false,
			http.StatusOK, "", "", "", true},
		{"wildcard echoes origin without credentials", open, http.MethodGet, "https://any.example", false,
			http.StatusOK, "https://any.example", "", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			h := CORS(tc.cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tc.method, "/api/dq/issues", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			if tc.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if called != tc.wantHandler {
				t.Errorf("handler called = %v, want %v", called, tc.wantHandler)
			}
			hdr := rec.Header()
			if got := hdr.Get("Access-Control-Allow-Origin"); got != tc.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tc.wantOrigin)
			}
			if got := hdr.Get("Access-Control-Allow-Credentials"); got != tc.wantCreds {
				t.Errorf("Allow-Credentials = %q, want %q", got, tc.wantCreds)
			}
			if got := hdr.Get("Access-Control-Allow-Methods"); got != tc.wantMethods {
				t.Errorf("Allow-Methods = %q, want %q", got, tc.wantMethods)
			}
			if got := hdr.Get("Vary"); got != "Origin" {
				t.Errorf("Vary = %q, want Origin", got)
			}
		})
	}
}

func TestCORS_PreflightMaxAge(t *testing.T) {
	h := CORS(config.CORSConfig{AllowedOrigins: "https://review.example", AllowedHeaders: "Authorization", MaxAge: 600})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodOptions, "/api/dq/scan", nil)
	req.Header.Set("Origin", "https://review.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Max-Age"); got != "600" {
		t.Errorf("Max-Age = %q, want 600", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "Authorization" {
		t.Errorf("Allow-Headers = %q, want Authorization", got)
	}
}
