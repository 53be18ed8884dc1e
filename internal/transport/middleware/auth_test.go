package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/heartmarshall/treecleaner/pkg/ctxutil"
)

// fakeValidator maps known tokens to operators and counts lookups.
type fakeValidator struct {
	operators map[string]string
	calls     int
}

func (f *fakeValidator) ValidateToken(_ context.Context, token string) (string, error) {
	f.calls++
	if op, ok := f.operators[token]; ok {
		return op, nil
	}
	return "", errors.New("invalid token")
}

func TestAuth_Token(t *testing.T) {
	validator := &fakeValidator{operators: map[string]string{"tok-alice": "alice"}}

	cases := []struct {
		name       string
		header     string
		wantStatus int
		wantOp     string
	}{
		{"valid token", "Bearer tok-alice", http.StatusOK, "alice"},
		{"lowercase scheme", "bearer tok-alice", http.StatusOK, "alice"},
		{"unknown token", "Bearer tok-mallory", http.StatusUnauthorized, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var gotOp string
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotOp, _ = ctxutil.OperatorFromCtx(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPost, "/api/dq/scan", nil)
			req.Header.Set("Authorization", tc.header)
			rec := httptest.NewRecorder()
			Auth(validator)(handler).ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if gotOp != tc.wantOp {
				t.Errorf("operator = %q, want %q", gotOp, tc.wantOp)
			}
			if tc.wantStatus == http.StatusUnauthorized && !strings.Contains(rec.Body.String(), `"error_code":"unauthorized"`) {
				t.Errorf("body = %q, want unauthorized envelope", rec.Body.String())
			}
		})
	}
}

func TestAuth_AnonymousPassesThrough(t *testing.T) {
	cases := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"empty bearer", "Bearer "},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			validator := &fakeValidator{}
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if _, ok := ctxutil.OperatorFromCtx(r.Context()); ok {
					t.Error("expected no operator in context")
				}
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()

			Auth(validator)(handler).ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
			}
			if validator.calls > 0 {
				t.Error("ValidateToken should not be called for anonymous request")
			}
		})
	}
}

func TestRequireOperator(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("anonymous rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		RequireOperator()(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
		}
	})

	t.Run("operator allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req = req.WithContext(ctxutil.WithOperator(req.Context(), "alice"))
		rec := httptest.NewRecorder()
		RequireOperator()(ok).ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Errorf("expected status %d, got %d", http.StatusNoContent, rec.Code)
		}
	})
}

func TestExtractBearerToken_Cases(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   string
	}{
		{"empty header", "", ""},
		{"bearer with token", "Bearer valid-token", "valid-token"},
		{"bearer lowercase", "bearer valid-token", "valid-token"},
		{"bearer mixed case", "BEARER valid-token", "valid-token"},
		{"basic auth", "Basic dXNlcjpwYXNz", ""},
		{"bearer no space", "Bearertoken", ""},
		{"bearer empty token", "Bearer ", ""},
		{"just bearer", "Bearer", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			got := extractBearerToken(req)
			if got != tc.want {
				t.Errorf("extractBearerToken(%q) = %q, want %q", tc.header, got, tc.want)
			}
		})
	}
}
