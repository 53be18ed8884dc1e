package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/treecleaner/internal/adapter/memstore"
	"github.com/heartmarshall/treecleaner/internal/auth"
	"github.com/heartmarshall/treecleaner/internal/detector"
	"github.com/heartmarshall/treecleaner/internal/domain"
	"github.com/heartmarshall/treecleaner/internal/service/issue"
	"github.com/heartmarshall/treecleaner/internal/service/remediation"
	"github.com/heartmarshall/treecleaner/internal/service/scan"
	"github.com/heartmarshall/treecleaner/internal/transport/middleware"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// twoSmiths holds one duplicated person plus a place spelled two ways.
func twoSmiths() memstore.Dataset {
	return memstore.Dataset{
		Snapshot: domain.Snapshot{
			Persons: []domain.Person{
				{ID: 1, Given: "John", Surname: "Smith", BirthDate: "1843", BirthPlace: "Boston"},
				{ID: 2, Given: "Jon", Surname: "Smith", BirthDate: "1843", BirthPlace: "Boston"},
				{ID: 3, Given: "Ann", Surname: "Lee", BirthPlace: "Boston, MA"},
			},
		},
	}
}

type testServer struct {
	t       *testing.T
	handler http.Handler
	store   *memstore.Store
	token   string
}

func newTestServer(t *testing.T, requireOperator bool) *testServer {
	t.Helper()
	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	store := memstore.New()
	require.NoError(t, store.Load(twoSmiths()))

	scanSvc := scan.NewService(log, store.Snapshots(), store.Issues(), store.DateNorms(), store.Actions(), store, detector.DefaultConfig())
	issueSvc := issue.NewService(log, store.Issues(), store.Actions(), store)
	remSvc := remediation.NewService(log, remediation.Repos{
		Persons:   store.Persons(),
		Families:  store.Families(),
		Media:     store.Media(),
		Refs:      store.Refs(),
		Fields:    store.Fields(),
		Issues:    store.Issues(),
		Actions:   store.Actions(),
		Rules:     store.PlaceRules(),
		DateNorms: store.DateNorms(),
	}, store, remediation.DefaultConfig())

	cfg := RouterConfig{MetricsPath: "/metrics"}
	if requireOperator {
		cfg.Mutate = middleware.RequireOperator()
	}
	mux := NewRouter(cfg, Handlers{
		Health:  NewHealthHandler(store, "memory", "test"),
		Scan:    NewScanHandler(scanSvc, log),
		Issues:  NewIssueHandler(issueSvc, log),
		Actions: NewActionHandler(remSvc, log),
		Rules:   NewRuleHandler(remSvc, log),
	})

	tokens := auth.NewOperatorTokens(testSecret, "treecleaner")
	token, err := tokens.Issue("alice", time.Hour)
	require.NoError(t, err)

	return &testServer{
		t:       t,
		handler: middleware.Chain(middleware.RequestID(), middleware.Auth(tokens))(mux),
		store:   store,
		token:   token,
	}
}

func (s *testServer) do(method, path string, body any, withToken bool) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(s.t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	if withToken {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRouter_ScanMergeUndo(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)

	rec := s.do(http.MethodPost, "/api/dq/scan", nil, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	scanned := decode[scanResponse](t, rec)
	assert.Equal(t, 1, scanned.Counts[string(domain.IssueDuplicatePerson)])
	assert.False(t, scanned.Incremental)

	rec = s.do(http.MethodGet, "/api/dq/issues?type=duplicate_person", nil, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	issues := decode[listResponse[issueResponse]](t, rec)
	require.Len(t, issues.Items, 1)
	dup := issues.Items[0]
	assert.Equal(t, []int64{1, 2}, dup.EntityIDs)
	assert.Contains(t, string(dup.Explanation), "name_similarity")

	rec = s.do(http.MethodPost, "/api/dq/actions/merge-people", mergeRequest{
		FromID: 2, IntoID: 1, IssueIDs: []uuid.UUID{dup.ID}, AppliedBy: "alice",
	}, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	merged := decode[actionResponse](t, rec)
	assert.Equal(t, string(domain.ActionMergePeople), merged.ActionType)
	assert.Equal(t, []uuid.UUID{dup.ID}, merged.ResolvedIssueIDs)
	require.NotNil(t, merged.Person)
	assert.Equal(t, int64(1), merged.Person.ID)

	rec = s.do(http.MethodGet, "/api/dq/issues?status=resolved", nil, false)
	assert.Equal(t, 1, decode[listResponse[issueResponse]](t, rec).Total)

	rec = s.do(http.MethodGet, "/api/dq/actions", nil, false)
	log := decode[listResponse[actionLogResponse]](t, rec)
	require.Equal(t, 1, log.Total)
	assert.Equal(t, "alice", log.Items[0].AppliedBy)
	assert.Contains(t, string(log.Items[0].Payload), `"from_id":2`)

	rec = s.do(http.MethodPost, "/api/dq/actions/"+merged.ActionID.String()+"/undo", map[string]string{"applied_by": "alice"}, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	undone := decode[actionResponse](t, rec)
	assert.Equal(t, string(domain.ActionUndo), undone.ActionType)
	assert.Equal(t, []uuid.UUID{dup.ID}, undone.ReopenedIssueIDs)

	rec = s.do(http.MethodPost, "/api/dq/actions/"+merged.ActionID.String()+"/undo", map[string]string{"applied_by": "alice"}, false)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, domain.CodeConflict, decode[errorResponse](t, rec).ErrorCode)

	p, err := s.store.Persons().GetByID(t.Context(), 2)
	require.NoError(t, err)
	assert.Equal(t, "Jon", p.Given)
}

func TestRouter_SummaryAndIncrementalScan(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)

	rec := s.do(http.MethodPost, "/api/dq/scan?incremental=true", nil, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[scanResponse](t, rec).Incremental)

	rec = s.do(http.MethodGet, "/api/dq/summary", nil, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sum := decode[summaryResponse](t, rec)
	assert.Equal(t, 1, sum.UnresolvedDuplicates)
	assert.InDelta(t, 0.0, sum.StandardizedDatesPct, 0.01)

	rec = s.do(http.MethodPost, "/api/dq/scan?incremental=maybe", nil, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_Errors(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)

	cases := []struct {
		name     string
		method   string
		path     string
		body     any
		wantCode int
		wantErr  string
		wantFld  string
	}{
		{"unknown field", http.MethodPost, "/api/dq/actions/merge-people", `{"from_id":1,"bogus":true}`, http.StatusBadRequest, domain.CodeValidation, "body"},
		{"missing body", http.MethodPost, "/api/dq/actions/merge-families", nil, http.StatusBadRequest, domain.CodeValidation, "body"},
		{"merge into itself", http.MethodPost, "/api/dq/actions/merge-people", mergeRequest{FromID: 1, IntoID: 1, AppliedBy: "alice"}, http.StatusBadRequest, domain.CodeValidation, "into_id"},
		{"missing operator", http.MethodPost, "/api/dq/actions/merge-people", mergeRequest{FromID: 2, IntoID: 1}, http.StatusBadRequest, domain.CodeValidation, "applied_by"},
		{"unknown person", http.MethodPost, "/api/dq/actions/merge-people", mergeRequest{FromID: 99, IntoID: 1, AppliedBy: "alice"}, http.StatusNotFound, domain.CodeNotFound, ""},
		{"bad action id", http.MethodPost, "/api/dq/actions/not-a-uuid/undo", nil, http.StatusBadRequest, domain.CodeValidation, "id"},
		{"unknown action", http.MethodPost, "/api/dq/actions/" + uuid.NewString() + "/undo", map[string]string{"applied_by": "alice"}, http.StatusNotFound, domain.CodeNotFound, ""},
		{"bad issue filter", http.MethodGet, "/api/dq/issues?status=closed", nil, http.StatusBadRequest, domain.CodeValidation, "status"},
		{"bad page", http.MethodGet, "/api/dq/actions?page=two", nil, http.StatusBadRequest, domain.CodeValidation, "page"},
		{"ignore unknown issue", http.MethodPost, "/api/dq/issues/" + uuid.NewString() + "/ignore", nil, http.StatusNotFound, domain.CodeNotFound, ""},
		{"qualified date", http.MethodPost, "/api/dq/actions/normalize-dates", normalizeDatesRequest{
			Items:     []domain.DateNormalizationItem{{EntityType: domain.EntityPerson, EntityID: 1, Field: "birth_date", Raw: "Abt 1843", Normalized: "1843"}},
			AppliedBy: "alice",
		}, http.StatusBadRequest, domain.CodeValidation, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(tc.method, tc.path, tc.body, false)
			require.Equal(t, tc.wantCode, rec.Code, rec.Body.String())
			resp := decode[errorResponse](t, rec)
			assert.Equal(t, tc.wantErr, resp.ErrorCode)
			if tc.wantFld != "" {
				var fields []string
				for _, f := range resp.Fields {
					fields = append(fields, f.Field)
				}
				assert.Contains(t, fields, tc.wantFld)
			}
		})
	}

	rec := s.do(http.MethodGet, "/api/dq/actions", nil, false)
	assert.Equal(t, 0, decode[listResponse[actionLogResponse]](t, rec).Total, "failed actions must not be logged")
}

func TestRouter_OperatorRequired(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, true)

	rec := s.do(http.MethodPost, "/api/dq/scan", nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, domain.CodeUnauthorized, decode[errorResponse](t, rec).ErrorCode)

	rec = s.do(http.MethodGet, "/api/dq/summary", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code, "reads stay open")

	rec = s.do(http.MethodPost, "/api/dq/actions/merge-people", mergeRequest{FromID: 2, IntoID: 1, AppliedBy: "mallory"}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/dq/actions", nil, false)
	log := decode[listResponse[actionLogResponse]](t, rec)
	require.Len(t, log.Items, 1)
	assert.Equal(t, "alice", log.Items[0].AppliedBy, "token operator wins over body")

	req := httptest.NewRequest(http.MethodPost, "/api/dq/scan", nil)
	req.Header.Set("Authorization", "Bearer forged")
	bad := httptest.NewRecorder()
	s.handler.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusUnauthorized, bad.Code)
}

func TestRouter_IgnoreReopen(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/dq/scan", nil, false).Code)

	issues := decode[listResponse[issueResponse]](t, s.do(http.MethodGet, "/api/dq/issues?type=duplicate_person", nil, false))
	require.Len(t, issues.Items, 1)
	id := issues.Items[0].ID.String()

	rec := s.do(http.MethodPost, "/api/dq/issues/"+id+"/ignore", map[string]string{"applied_by": "alice"}, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, string(domain.IssueStatusIgnored), decode[issueResponse](t, rec).Status)

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/dq/scan", nil, false).Code)
	rec = s.do(http.MethodGet, "/api/dq/issues?status=ignored", nil, false)
	assert.Equal(t, 1, decode[listResponse[issueResponse]](t, rec).Total, "scan keeps ignored issues ignored")

	rec = s.do(http.MethodPost, "/api/dq/issues/"+id+"/reopen", nil, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, string(domain.IssueStatusOpen), decode[issueResponse](t, rec).Status)
}

func TestRouter_PlaceRules(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)

	rec := s.do(http.MethodPost, "/api/dq/place-rules", saveRuleRequest{Canonical: "Boston, Massachusetts", Variants: []string{"Boston", "Boston, MA"}}, false)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rule := decode[ruleResponse](t, rec)
	assert.False(t, rule.Approved)

	apply := fmt.Sprintf("/api/dq/place-rules/%s/apply", rule.ID)
	rec = s.do(http.MethodPost, apply, map[string]string{"applied_by": "alice"}, false)
	assert.Equal(t, http.StatusConflict, rec.Code, "unapproved rules cannot be applied")

	rec = s.do(http.MethodPost, fmt.Sprintf("/api/dq/place-rules/%s/approve", rule.ID), nil, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[ruleResponse](t, rec).Approved)

	rec = s.do(http.MethodPost, apply, map[string]string{"applied_by": "alice"}, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	applied := decode[actionResponse](t, rec)
	assert.Equal(t, string(domain.ActionNormalizePlaces), applied.ActionType)
	assert.Len(t, applied.Changes, 3)
	require.NotNil(t, applied.Rule)
	assert.Equal(t, rule.ID, applied.Rule.ID)

	rec = s.do(http.MethodPost, "/api/dq/place-rules/replay", map[string]string{"applied_by": "alice"}, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 0, decode[listResponse[actionResponse]](t, rec).Total, "nothing left to rewrite")

	rec = s.do(http.MethodGet, "/api/dq/place-rules", nil, false)
	assert.Equal(t, 1, decode[listResponse[ruleResponse]](t, rec).Total)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, true)

	for _, path := range []string{"/live", "/ready", "/health", "/metrics"} {
		rec := s.do(http.MethodGet, path, nil, false)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
	rec := s.do(http.MethodGet, "/live", nil, false)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}
