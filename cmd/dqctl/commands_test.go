package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/treecleaner/internal/auth"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeDataset(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tree.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"persons":[
		{"id":1,"given":"John","surname":"Smith","birth_date":"1843","birth_place":"Boston"},
		{"id":2,"given":"Jon","surname":"Smith","birth_date":"1843","birth_place":"Boston"},
		{"id":3,"given":"Ann","surname":"Lee","birth_date":"1850","birth_place":"Boston, MA"}]}`), 0o600))
	return path
}

// run executes dqctl with args and returns what it printed to stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "off")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func decodeOutput[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestScan_Dataset(t *testing.T) {
	out, err := run(t, "--file", writeDataset(t), "scan")
	require.NoError(t, err)

	res := decodeOutput[struct {
		Incremental bool           `json:"incremental"`
		Counts      map[string]int `json:"counts"`
		Created     int            `json:"created"`
	}](t, out)
	assert.False(t, res.Incremental)
	assert.Equal(t, 1, res.Counts["duplicate_person"])
	assert.Positive(t, res.Created)
}

func TestIssues_Dataset(t *testing.T) {
	out, err := run(t, "--file", writeDataset(t), "issues", "--type", "duplicate_person", "--status", "open")
	require.NoError(t, err)

	list := decodeOutput[struct {
		Items []struct {
			IssueType string  `json:"issue_type"`
			EntityIDs []int64 `json:"entity_ids"`
			Status    string  `json:"status"`
		} `json:"items"`
		Total int `json:"total"`
	}](t, out)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "duplicate_person", list.Items[0].IssueType)
	assert.ElementsMatch(t, []int64{1, 2}, list.Items[0].EntityIDs)
	assert.Equal(t, "open", list.Items[0].Status)
}

func TestIssues_InvalidFilter(t *testing.T) {
	_, err := run(t, "--file", writeDataset(t), "issues", "--type", "bogus")
	assert.Error(t, err)
}

func TestSummary_Dataset(t *testing.T) {
	out, err := run(t, "--file", writeDataset(t), "summary")
	require.NoError(t, err)

	s := decodeOutput[map[string]float64](t, out)
	assert.Equal(t, 1.0, s["unresolved_duplicates"])
	assert.InDelta(t, 0.0, s["standardized_dates_pct"], 0.01, "no record carries a canonical date yet")
	assert.Less(t, s["data_quality_score"], 100.0)
}

func TestActions_EmptyLog(t *testing.T) {
	out, err := run(t, "--file", writeDataset(t), "actions", "--per-page", "10")
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[],"total":0}`, out)
}

func TestUndo_Errors(t *testing.T) {
	dataset := writeDataset(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing user", []string{"undo", "0b1c4f7e-2d4a-4e55-9c7e-3c1f5a9d2b10"}, `"user" not set`},
		{"bad id", []string{"undo", "nope", "--user", "alice"}, "action id"},
		{"unknown action", []string{"undo", "0b1c4f7e-2d4a-4e55-9c7e-3c1f5a9d2b10", "--user", "alice"}, "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, append([]string{"--file", dataset}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRules_ListEmpty(t *testing.T) {
	out, err := run(t, "--file", writeDataset(t), "rules", "list")
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[],"total":0}`, out)
}

func TestRules_ReplayNothingApproved(t *testing.T) {
	out, err := run(t, "--file", writeDataset(t), "rules", "replay", "--user", "alice")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMigrate_NeedsPostgres(t *testing.T) {
	_, err := run(t, "--file", writeDataset(t), "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrate needs the postgres driver")
}

func TestTokenIssue(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://u:p@localhost:5432/tree")
	t.Setenv("AUTH_OPERATOR_SECRET", testSecret)
	t.Setenv("AUTH_ISSUER", "treecleaner")
	t.Setenv("CONFIG_PATH", "")
	t.Chdir(t.TempDir())

	out, err := run(t, "token", "issue", "--operator", "alice", "--ttl", "1h")
	require.NoError(t, err)

	operator, err := auth.NewOperatorTokens(testSecret, "treecleaner").ValidateToken(context.Background(), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "alice", operator)
}

func TestTokenIssue_RejectsDataset(t *testing.T) {
	_, err := run(t, "--file", writeDataset(t), "token", "issue", "--operator", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drop --file")
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(out))
}
