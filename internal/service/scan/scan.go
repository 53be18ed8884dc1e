package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/heartmarshall/treecleaner/internal/detector"
	"github.com/heartmarshall/treecleaner/internal/domain"
)

// maxScanAttempts bounds how often Scan retakes its snapshot when actions
// keep committing between detection and reconcile.
const maxScanAttempts = 3

// errStaleSnapshot reports that an action committed after the snapshot the
// detectors ran on was taken.
var errStaleSnapshot = errors.New("records changed during scan")

// detection is the detector output for one snapshot.
type detection struct {
	version    int64
	candidates []domain.Candidate
	dates      *detector.Dates
}

// Scan runs every detector and reconciles the findings with stored issues.
//
// New findings become open issues. Stored issues are matched by dedup key:
// open ones get refreshed findings, resolved ones reopen under the same id,
// ignored ones keep their status. Open issues no detector reported any more
// are resolved. In incremental mode stored date observations are reused for
// raw values that have not changed; the resulting issue set is the same.
//
// Reconcile only commits if no action was logged since the snapshot was
// taken; otherwise the scan starts over, up to maxScanAttempts times.
func (s *Service) Scan(ctx context.Context, incremental bool) (result domain.ScanResult, err error) {
	started := s.now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		scanDuration.WithLabelValues(modeLabel(incremental), status).Observe(time.Since(started).Seconds())
	}()

	var (
		det      *detection
		recorded int
	)
	for attempt := 1; ; attempt++ {
		det, err = s.detect(ctx, incremental)
		if err != nil {
			return domain.ScanResult{}, err
		}

		err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
			result = newResult(incremental, started)
			if recErr := s.reconcile(txCtx, det.candidates, &result); recErr != nil {
				return recErr
			}
			version, recErr := s.changes.VersionForUpdate(txCtx)
			if recErr != nil {
				return fmt.Errorf("lock change stamp: %w", recErr)
			}
			if version != det.version {
				return errStaleSnapshot
			}
			recorded, recErr = s.dates.Record(txCtx, det.dates.Observations(), s.now())
			if recErr != nil {
				return fmt.Errorf("record date observations: %w", recErr)
			}
			return nil
		})
		if !errors.Is(err, errStaleSnapshot) {
			break
		}
		if attempt == maxScanAttempts {
			return domain.ScanResult{}, fmt.Errorf("scan: %w after %d attempts: %w", errStaleSnapshot, attempt, domain.ErrConflict)
		}
		s.log.InfoContext(ctx, "records changed during scan, retrying", slog.Int("attempt", attempt))
	}
	if err != nil {
		return domain.ScanResult{}, err
	}
	result.Duration = time.Since(started)

	issueTransitions.WithLabelValues("created").Add(float64(result.Created))
	issueTransitions.WithLabelValues("updated").Add(float64(result.Updated))
	issueTransitions.WithLabelValues("reopened").Add(float64(result.Reopened))
	issueTransitions.WithLabelValues("resolved").Add(float64(result.Resolved))
	s.refreshOpenGauge(ctx)

	s.log.InfoContext(ctx, "scan finished",
		slog.Bool("incremental", incremental),
		slog.Int("candidates", len(det.candidates)),
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
		slog.Int("reopened", result.Reopened),
		slog.Int("resolved", result.Resolved),
		slog.Int("date_parses_reused", det.dates.Reused()),
		slog.Int("date_observations_recorded", recorded),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

func newResult(incremental bool, started time.Time) domain.ScanResult {
	result := domain.ScanResult{
		Incremental: incremental,
		Counts:      make(map[domain.IssueType]int, len(domain.AllIssueTypes)),
		StartedAt:   started,
	}
	for _, t := range domain.AllIssueTypes {
		result.Counts[t] = 0
	}
	return result
}

// detect loads a snapshot together with the change stamp it reflects and
// runs the detectors over it.
func (s *Service) detect(ctx context.Context, incremental bool) (*detection, error) {
	var (
		snap    *domain.Snapshot
		known   []domain.DateNormalizationRecord
		version int64
	)
	err := s.tx.RunReadOnly(ctx, func(txCtx context.Context) error {
		var loadErr error
		version, loadErr = s.changes.Version(txCtx)
		if loadErr != nil {
			return fmt.Errorf("read change stamp: %w", loadErr)
		}
		snap, loadErr = s.snapshots.Load(txCtx)
		if loadErr != nil {
			return fmt.Errorf("load snapshot: %w", loadErr)
		}
		if incremental {
			known, loadErr = s.dates.ListCurrent(txCtx)
			if loadErr != nil {
				return fmt.Errorf("list date observations: %w", loadErr)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	dates := detector.NewDates(known)
	candidates, err := runDetectors(ctx, snap, detector.All(s.cfg, dates))
	if err != nil {
		return nil, err
	}
	return &detection{version: version, candidates: candidates, dates: dates}, nil
}

// runDetectors runs each detector in its own goroutine and concatenates the
// results in detector order.
func runDetectors(ctx context.Context, snap *domain.Snapshot, detectors []detector.Detector) ([]domain.Candidate, error) {
	results := make([][]domain.Candidate, len(detectors))

	g, gctx := errgroup.WithContext(ctx)
	for i, d := range detectors {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			results[i] = d.Detect(snap)
			detectorDuration.WithLabelValues(d.Name()).Observe(time.Since(start).Seconds())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("run detectors: %w", err)
	}

	var out []domain.Candidate
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func (s *Service) reconcile(ctx context.Context, candidates []domain.Candidate, result *domain.ScanResult) error {
	stored, err := s.issues.ListAllForUpdate(ctx)
	if err != nil {
		return fmt.Errorf("list issues: %w", err)
	}
	byKey := make(map[string]*domain.Issue, len(stored))
	for i := range stored {
		byKey[stored[i].DedupKey] = &stored[i]
	}

	now := s.now()
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c.DedupKey]; dup {
			continue
		}
		seen[c.DedupKey] = struct{}{}
		result.Counts[c.IssueType]++

		existing, ok := byKey[c.DedupKey]
		if !ok {
			is := &domain.Issue{
				ID:         uuid.New(),
				IssueType:  c.IssueType,
				DedupKey:   c.DedupKey,
				Status:     domain.IssueStatusOpen,
				DetectedAt: now,
			}
			applyFindings(is, c, now)
			if err := s.issues.Create(ctx, is); err != nil {
				return fmt.Errorf("create issue %s: %w", c.DedupKey, err)
			}
			result.Created++
			continue
		}

		switch existing.Status {
		case domain.IssueStatusResolved:
			applyFindings(existing, c, now)
			existing.Status = domain.IssueStatusOpen
			existing.ResolvedAt = nil
			result.Reopened++
		case domain.IssueStatusOpen:
			if existing.SameFindings(c) {
				continue
			}
			applyFindings(existing, c, now)
			result.Updated++
		default:
			if existing.SameFindings(c) {
				continue
			}
			applyFindings(existing, c, now)
		}
		if err := s.issues.Update(ctx, existing); err != nil {
			return fmt.Errorf("update issue %s: %w", existing.ID, err)
		}
	}

	for i := range stored {
		is := &stored[i]
		if _, ok := seen[is.DedupKey]; ok || is.Status != domain.IssueStatusOpen {
			continue
		}
		is.Status = domain.IssueStatusResolved
		is.ResolvedAt = &now
		is.UpdatedAt = now
		if err := s.issues.Update(ctx, is); err != nil {
			return fmt.Errorf("resolve vanished issue %s: %w", is.ID, err)
		}
		result.Resolved++
	}
	return nil
}

func applyFindings(is *domain.Issue, c domain.Candidate, now time.Time) {
	is.Severity = c.Severity
	is.EntityType = c.EntityType
	is.EntityIDs = append([]int64(nil), c.EntityIDs...)
	is.Confidence = c.Confidence
	is.ImpactScore = c.ImpactScore
	is.Explanation = c.Explanation
	is.UpdatedAt = now
}

func (s *Service) refreshOpenGauge(ctx context.Context) {
	counts, err := s.issues.CountOpenByType(ctx)
	if err != nil {
		s.log.WarnContext(ctx, "count open issues for metrics", slog.String("error", err.Error()))
		return
	}
	for _, t := range domain.AllIssueTypes {
		openIssues.WithLabelValues(string(t)).Set(float64(counts[t]))
	}
}
