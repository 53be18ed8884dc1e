package middleware

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/heartmarshall/treecleaner/pkg/ctxutil"
)

func TestRecovery(t *testing.T) {
	cases := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
		wantLog    []string
	}{
		{
			name:       "no panic",
			handler:    func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusAccepted) },
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "string panic",
			handler:    func(w http.ResponseWriter, r *http.Request) { panic("merge plan corrupted") },
			wantStatus: http.StatusInternalServerError,
			wantLog:    []string{"panic recovered", "merge plan corrupted", "request_id=req-7", "/api/dq/actions/merge-people"},
		},
		{
			name:       "error panic",
			handler:    func(w http.ResponseWriter, r *http.Request) { panic(errors.New("nil snapshot")) },
			wantStatus: http.StatusInternalServerError,
			wantLog:    []string{"nil snapshot", "stack="},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			req := httptest.NewRequest(http.MethodPost, "/api/dq/actions/merge-people", nil)
			req = req.WithContext(ctxutil.WithRequestID(req.Context(), "req-7"))
			rec := httptest.NewRecorder()
			Recovery(logger)(tc.handler).ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if tc.wantStatus == http.StatusInternalServerError &&
				!strings.Contains(rec.Body.String(), `"error_code":"internal_error"`) {
				t.Errorf("body = %q, want internal_error envelope", rec.Body.String())
			}
			for _, want := range tc.wantLog {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("log missing %q:\n%s", want, buf.String())
				}
			}
			if tc.wantLog == nil && buf.Len() > 0 {
				t.Errorf("unexpected log output: %s", buf.String())
			}
		})
	}
}

func TestRecovery_AbortHandlerPropagates(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Errorf("recovered %v, want http.ErrAbortHandler", rec)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	t.Error("ServeHTTP returned normally")
}
