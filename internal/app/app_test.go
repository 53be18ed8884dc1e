package app

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/treecleaner/internal/auth"
	"github.com/heartmarshall/treecleaner/internal/config"
	"github.com/heartmarshall/treecleaner/internal/transport/middleware"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dataset := filepath.Join(t.TempDir(), "tree.json")
	require.NoError(t, os.WriteFile(dataset, []byte(`{"persons":[
		{"id":1,"given":"John","surname":"Smith","birth_date":"1843"},
		{"id":2,"given":"Jon","surname":"Smith","birth_date":"1843"}]}`), 0o600))

	return &config.Config{
		Server:   config.ServerConfig{ActionRateLimit: 2},
		Database: config.DatabaseConfig{Driver: config.DriverMemory, Dataset: dataset},
		Auth:     config.AuthConfig{OperatorSecret: testSecret, Issuer: "treecleaner", Required: true},
		DQ:       config.DQConfig{MediaSizeBump: 0.05, MaxMergeRefs: 100, MaxNormalizeItems: 100},
		Metrics:  config.MetricsConfig{Enabled: true, Path: "/metrics"},
		CORS:     config.CORSConfig{AllowedOrigins: "https://review.example", AllowedMethods: "GET,POST"},
	}
}

func testHandler(t *testing.T, cfg *config.Config) (http.Handler, *Backend) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	backend, err := OpenBackend(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(backend.Close)

	limiter := middleware.NewRateLimiter(time.Minute)
	t.Cleanup(limiter.Stop)
	return NewHandler(cfg, backend, limiter, log), backend
}

func serve(h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestOpenBackend_Memory(t *testing.T) {
	t.Parallel()
	_, backend := testHandler(t, testConfig(t))

	assert.Equal(t, config.DriverMemory, backend.Component)
	require.NotNil(t, backend.Memory)
	assert.Len(t, backend.Memory.Export().Persons, 2)
}

func TestOpenBackend_Errors(t *testing.T) {
	t.Parallel()
	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	cfg := testConfig(t)
	cfg.Database.Driver = "sqlite"
	_, err := OpenBackend(context.Background(), cfg, log)
	assert.ErrorContains(t, err, "unknown database driver")

	cfg = testConfig(t)
	cfg.Database.Dataset = filepath.Join(t.TempDir(), "missing.json")
	_, err = OpenBackend(context.Background(), cfg, log)
	assert.Error(t, err)

	_, err = Migrate(context.Background(), config.DatabaseConfig{Driver: config.DriverMemory})
	assert.ErrorContains(t, err, "postgres")
}

func TestNewHandler_AuthAndRoutes(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	h, _ := testHandler(t, cfg)

	token, err := auth.NewOperatorTokens(testSecret, "treecleaner").Issue("alice", time.Hour)
	require.NoError(t, err)

	rec := serve(h, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"memory"`)

	assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodPost, "/api/dq/scan", "", "").Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/api/dq/scan", token, "").Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/api/dq/summary", "", "").Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/metrics", "", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/api/dq/nothing", "", "").Code)
}

func TestNewHandler_ActionRateLimit(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	h, _ := testHandler(t, cfg)
	token, err := auth.NewOperatorTokens(testSecret, "treecleaner").Issue("alice", time.Hour)
	require.NoError(t, err)

	body := `{"from_id":2,"into_id":1}`
	assert.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/api/dq/actions/merge-people", token, body).Code)
	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodPost, "/api/dq/actions/merge-people", token, body).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, http.MethodPost, "/api/dq/actions/merge-people", token, body).Code)

	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/api/dq/actions", "", "").Code, "reads are not limited")
}

func TestNewHandler_CORSAndMetricsOff(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Metrics.Enabled = false
	cfg.Auth = config.AuthConfig{Required: false}
	h, _ := testHandler(t, cfg)

	req := httptest.NewRequest(http.MethodOptions, "/api/dq/scan", nil)
	req.Header.Set("Origin", "https://review.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://review.example", rec.Header().Get("Access-Control-Allow-Origin"))

	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/metrics", "", "").Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/api/dq/scan", "", "").Code, "auth not required")
}
