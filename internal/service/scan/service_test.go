package scan

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/treecleaner/internal/adapter/memstore"
	"github.com/heartmarshall/treecleaner/internal/detector"
	"github.com/heartmarshall/treecleaner/internal/domain"
	"github.com/heartmarshall/treecleaner/internal/service/remediation"
)

func newTestService(t *testing.T, ds memstore.Dataset) (*Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	require.NoError(t, store.Load(ds))
	svc := NewService(slog.Default(), store.Snapshots(), store.Issues(), store.DateNorms(), store.Actions(), store, detector.DefaultConfig())
	return svc, store
}

func smithDataset() memstore.Dataset {
	return memstore.Dataset{Snapshot: domain.Snapshot{
		Persons: []domain.Person{
			{ID: 1, Given: "John", Surname: "Smith", BirthDate: "1843"},
			{ID: 2, Given: "Jon", Surname: "Smith", BirthDate: "1843", BirthPlace: "Boston"},
			{ID: 3, Given: "Mary", Surname: "Jones", BirthDate: "Abt 1850"},
		},
	}}
}

func issuesOfType(t *testing.T, store *memstore.Store, it domain.IssueType) []domain.Issue {
	t.Helper()
	items, _, err := store.Issues().List(context.Background(), domain.IssueFilter{Type: it, Limit: 500})
	require.NoError(t, err)
	return items
}

func allIssues(t *testing.T, store *memstore.Store) []domain.Issue {
	t.Helper()
	items, _, err := store.Issues().List(context.Background(), domain.IssueFilter{Limit: 500})
	require.NoError(t, err)
	return items
}

// ---------------------------------------------------------------------------
// Scan
// ---------------------------------------------------------------------------

func TestScan_CreatesIssues(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t, smithDataset())

	res, err := svc.Scan(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Counts[domain.IssueDuplicatePerson])
	assert.Equal(t, 0, res.Counts[domain.IssueOrphanEvent])
	assert.Len(t, res.Counts, len(domain.AllIssueTypes))
	assert.Equal(t, res.Created, len(allIssues(t, store)))

	dups := issuesOfType(t, store, domain.IssueDuplicatePerson)
	require.Len(t, dups, 1)
	assert.Equal(t, []int64{1, 2}, dups[0].EntityIDs)
	assert.Equal(t, domain.IssueStatusOpen, dups[0].Status)
	assert.GreaterOrEqual(t, dups[0].Confidence, 0.93)
}

func TestScan_RecordsDateObservations(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t, smithDataset())

	_, err := svc.Scan(context.Background(), false)
	require.NoError(t, err)

	recs, err := store.DateNorms().ListCurrent(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 3)

	var about *domain.DateNormalizationRecord
	for i := range recs {
		if recs[i].Raw == "Abt 1850" {
			about = &recs[i]
		}
	}
	require.NotNil(t, about)
	assert.Equal(t, domain.QualifierAbout, about.Qualifier)
	assert.Equal(t, domain.PrecisionYear, about.Precision)
	assert.False(t, about.Ambiguous)
}

func TestScan_TwiceIsStable(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t, smithDataset())
	ctx := context.Background()

	_, err := svc.Scan(ctx, false)
	require.NoError(t, err)
	first := allIssues(t, store)

	res, err := svc.Scan(ctx, false)
	require.NoError(t, err)
	second := allIssues(t, store)

	assert.Zero(t, res.Created)
	assert.Zero(t, res.Updated)
	assert.Zero(t, res.Reopened)
	assert.Zero(t, res.Resolved)
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Confidence, second[i].Confidence)
		assert.Equal(t, first[i].UpdatedAt, second[i].UpdatedAt)
	}
}

func TestScan_IncrementalMatchesFull(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fullSvc, fullStore := newTestService(t, smithDataset())
	_, err := fullSvc.Scan(ctx, false)
	require.NoError(t, err)
	_, err = fullSvc.Scan(ctx, false)
	require.NoError(t, err)

	incSvc, incStore := newTestService(t, smithDataset())
	_, err = incSvc.Scan(ctx, false)
	require.NoError(t, err)
	res, err := incSvc.Scan(ctx, true)
	require.NoError(t, err)
	assert.True(t, res.Incremental)
	assert.Zero(t, res.Created+res.Updated+res.Reopened+res.Resolved)

	full, inc := allIssues(t, fullStore), allIssues(t, incStore)
	byKey := func(a, b domain.Issue) int { return strings.Compare(a.DedupKey, b.DedupKey) }
	slices.SortFunc(full, byKey)
	slices.SortFunc(inc, byKey)
	require.Len(t, inc, len(full))
	for i := range full {
		assert.Equal(t, full[i].DedupKey, inc[i].DedupKey)
		assert.Equal(t, full[i].Confidence, inc[i].Confidence)
		assert.Equal(t, full[i].Explanation, inc[i].Explanation)
	}
}

func TestScan_ResolvesAndReopens(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t, smithDataset())
	ctx := context.Background()

	_, err := svc.Scan(ctx, false)
	require.NoError(t, err)
	original := issuesOfType(t, store, domain.IssueDuplicatePerson)[0]

	jon, err := store.Persons().GetByID(ctx, 2)
	require.NoError(t, err)
	jon.Given = "Bartholomew"
	require.NoError(t, store.Persons().Update(ctx, jon))

	res, err := svc.Scan(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Resolved)
	gone := issuesOfType(t, store, domain.IssueDuplicatePerson)[0]
	assert.Equal(t, domain.IssueStatusResolved, gone.Status)
	assert.NotNil(t, gone.ResolvedAt)

	jon.Given = "Jon"
	require.NoError(t, store.Persons().Update(ctx, jon))

	res, err = svc.Scan(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Reopened)
	back := issuesOfType(t, store, domain.IssueDuplicatePerson)
	require.Len(t, back, 1)
	assert.Equal(t, original.ID, back[0].ID)
	assert.Equal(t, domain.IssueStatusOpen, back[0].Status)
	assert.Nil(t, back[0].ResolvedAt)
}

func TestScan_IgnoredStaysIgnored(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t, smithDataset())
	ctx := context.Background()

	_, err := svc.Scan(ctx, false)
	require.NoError(t, err)
	is := issuesOfType(t, store, domain.IssueDuplicatePerson)[0]
	is.Status = domain.IssueStatusIgnored
	require.NoError(t, store.Issues().Update(ctx, &is))

	_, err = svc.Scan(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, domain.IssueStatusIgnored, issuesOfType(t, store, domain.IssueDuplicatePerson)[0].Status)

	jon, err := store.Persons().GetByID(ctx, 2)
	require.NoError(t, err)
	jon.Given = "Bartholomew"
	require.NoError(t, store.Persons().Update(ctx, jon))

	res, err := svc.Scan(ctx, false)
	require.NoError(t, err)
	assert.Zero(t, res.Resolved)
	assert.Equal(t, domain.IssueStatusIgnored, issuesOfType(t, store, domain.IssueDuplicatePerson)[0].Status)
}

type failingTx struct{ err error }

func (f failingTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return f.err
}

func (f failingTx) RunReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return f.err
}

func TestScan_SnapshotError(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	boom := errors.New("connection reset")
	svc := NewService(slog.Default(), store.Snapshots(), store.Issues(), store.DateNorms(), store.Actions(), failingTx{boom}, detector.DefaultConfig())

	_, err := svc.Scan(context.Background(), false)
	require.ErrorIs(t, err, boom)
}

func TestScan_CancelledContext(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t, smithDataset())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Scan(ctx, false)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, allIssues(t, store))
}

// interleavingLoader calls between after every snapshot it hands out. between
// runs outside the scan's transactions, like a concurrent request would.
type interleavingLoader struct {
	memstore.Snapshots
	loads   int
	between func(load int)
}

func (l *interleavingLoader) Load(ctx context.Context) (*domain.Snapshot, error) {
	snap, err := l.Snapshots.Load(ctx)
	if err != nil {
		return nil, err
	}
	l.loads++
	if l.between != nil {
		l.between(l.loads)
	}
	return snap, nil
}

func newInterleavedService(t *testing.T, ds memstore.Dataset) (*Service, *memstore.Store, *interleavingLoader) {
	t.Helper()
	store := memstore.New()
	require.NoError(t, store.Load(ds))
	loader := &interleavingLoader{Snapshots: store.Snapshots()}
	svc := NewService(slog.Default(), loader, store.Issues(), store.DateNorms(), store.Actions(), store, detector.DefaultConfig())
	return svc, store, loader
}

func TestScan_ActionCommitsMidScan(t *testing.T) {
	t.Parallel()
	svc, store, loader := newInterleavedService(t, smithDataset())
	ctx := context.Background()

	_, err := svc.Scan(ctx, false)
	require.NoError(t, err)
	dupID := issuesOfType(t, store, domain.IssueDuplicatePerson)[0].ID

	remediator := remediation.NewService(slog.Default(), remediation.Repos{
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

	merged := false
	loader.between = func(int) {
		if merged {
			return
		}
		merged = true
		_, err := remediator.MergePeople(ctx, remediation.MergeInput{
			FromID: 2, IntoID: 1, IssueIDs: []uuid.UUID{dupID}, AppliedBy: "alice",
		})
		require.NoError(t, err)
	}

	_, err = svc.Scan(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 3, loader.loads, "the stale snapshot is discarded and retaken")

	_, err = store.Persons().GetByID(ctx, 2)
	require.ErrorIs(t, err, domain.ErrNotFound)

	dup, err := store.Issues().GetByID(ctx, dupID)
	require.NoError(t, err)
	assert.Equal(t, domain.IssueStatusResolved, dup.Status)
	for _, is := range allIssues(t, store) {
		if is.Status == domain.IssueStatusOpen {
			assert.NotContains(t, is.EntityIDs, int64(2), "open %s issue names merged person", is.IssueType)
		}
	}
}

func TestScan_GivesUpWhenActionsKeepLanding(t *testing.T) {
	t.Parallel()
	svc, store, loader := newInterleavedService(t, smithDataset())
	ctx := context.Background()

	loader.between = func(int) {
		require.NoError(t, store.Actions().Create(ctx, &domain.ActionLogEntry{
			ID:          uuid.New(),
			ActionType:  domain.ActionMergePeople,
			Payload:     []byte(`{}`),
			UndoPayload: []byte(`{}`),
			AppliedBy:   "bob",
			CreatedAt:   time.Now().UTC(),
		}))
	}

	_, err := svc.Scan(ctx, false)
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, maxScanAttempts, loader.loads)
	assert.Empty(t, allIssues(t, store), "no attempt may commit its findings")
}

// ---------------------------------------------------------------------------
// Summary
// ---------------------------------------------------------------------------

func TestSummary_EmptyTree(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t, memstore.Dataset{})

	sum, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100.0, sum.DataQualityScore)
	assert.Equal(t, 100.0, sum.StandardizedDatesPct)
	assert.Zero(t, sum.UnresolvedDuplicates)
}

func TestSummary_AfterScan(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t, smithDataset())
	ctx := context.Background()

	_, err := svc.Scan(ctx, false)
	require.NoError(t, err)
	sum, err := svc.Summary(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.UnresolvedDuplicates)
	assert.Zero(t, sum.StandardizedDatesPct)
	assert.Less(t, sum.DataQualityScore, 100.0)
}

func TestBuildSummary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		open  map[domain.IssueType]int
		stats domain.DateStats
		want  domain.Summary
	}{
		{
			name:  "clean tree",
			open:  map[domain.IssueType]int{},
			stats: domain.DateStats{Total: 10, Standardized: 10},
			want:  domain.Summary{DataQualityScore: 100, StandardizedDatesPct: 100},
		},
		{
			name: "mixed",
			open: map[domain.IssueType]int{
				domain.IssueDuplicatePerson:   1,
				domain.IssuePlaceCluster:      1,
				domain.IssuePlaceSimilarity:   2,
				domain.IssueDateNormalization: 3,
				domain.IssueOrphanEvent:       1,
			},
			stats: domain.DateStats{Total: 4, Standardized: 1},
			// 0.4*0.25 + 0.3/2 + 0.2/2 + 0.1/2 = 0.4
			want: domain.Summary{
				DataQualityScore:           40,
				StandardizedDatesPct:       25,
				UnresolvedDuplicates:       1,
				PlaceClusters:              1,
				IntegrityWarnings:          1,
				StandardizationSuggestions: 6,
			},
		},
		{
			name:  "percentages round to one decimal",
			open:  map[domain.IssueType]int{},
			stats: domain.DateStats{Total: 3, Standardized: 1},
			// 0.4*0.333 + 0.6 = 0.7332
			want: domain.Summary{DataQualityScore: 73.3, StandardizedDatesPct: 33.3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, buildSummary(tt.open, tt.stats))
		})
	}
}
