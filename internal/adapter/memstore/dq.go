package memstore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/treecleaner/internal/domain"
)

const (
	defaultIssueLimit = 50
	maxIssueLimit     = 500
)

// ---------------------------------------------------------------------------
// Issues
// ---------------------------------------------------------------------------

// Issues is the issue store view of a Store.
type Issues struct{ s *Store }

// Issues returns the issue store.
func (s *Store) Issues() Issues { return Issues{s} }

func cloneIssue(is domain.Issue) domain.Issue {
	is.EntityIDs = slices.Clone(is.EntityIDs)
	if is.ResolvedAt != nil {
		at := *is.ResolvedAt
		is.ResolvedAt = &at
	}
	return is
}

func (r Issues) GetByID(ctx context.Context, id uuid.UUID) (*domain.Issue, error) {
	var out *domain.Issue
	err := r.s.read(ctx, func(st *state) error {
		is, ok := st.issues[id]
		if !ok {
			return notFound("issue", id)
		}
		is = cloneIssue(is)
		out = &is
		return nil
	})
	return out, err
}

func (r Issues) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Issue, error) {
	return r.GetByID(ctx, id)
}

// List returns a page of issues matching the filter, most recently detected
// first, and the total match count.
func (r Issues) List(ctx context.Context, f domain.IssueFilter) ([]domain.Issue, int, error) {
	var (
		out   []domain.Issue
		total int
	)
	err := r.s.read(ctx, func(st *state) error {
		var matched []domain.Issue
		for _, is := range st.issues {
			if f.Type != "" && is.IssueType != f.Type {
				continue
			}
			if f.Status != "" && is.Status != f.Status {
				continue
			}
			matched = append(matched, is)
		}
		slices.SortFunc(matched, func(a, b domain.Issue) int {
			if c := b.DetectedAt.Compare(a.DetectedAt); c != 0 {
				return c
			}
			return strings.Compare(a.ID.String(), b.ID.String())
		})
		total = len(matched)

		limit := f.Limit
		switch {
		case limit <= 0:
			limit = defaultIssueLimit
		case limit > maxIssueLimit:
			limit = maxIssueLimit
		}
		offset := min(max(f.Offset, 0), len(matched))
		end := min(offset+limit, len(matched))
		for _, is := range matched[offset:end] {
			out = append(out, cloneIssue(is))
		}
		return nil
	})
	return out, total, err
}

// ListAllForUpdate returns every issue ordered by dedup key.
func (r Issues) ListAllForUpdate(ctx context.Context) ([]domain.Issue, error) {
	var out []domain.Issue
	err := r.s.read(ctx, func(st *state) error {
		for _, is := range st.issues {
			out = append(out, cloneIssue(is))
		}
		slices.SortFunc(out, func(a, b domain.Issue) int { return strings.Compare(a.DedupKey, b.DedupKey) })
		return nil
	})
	return out, err
}

func (r Issues) CountOpenByType(ctx context.Context) (map[domain.IssueType]int, error) {
	out := make(map[domain.IssueType]int)
	err := r.s.read(ctx, func(st *state) error {
		for _, is := range st.issues {
			if is.Status == domain.IssueStatusOpen {
				out[is.IssueType]++
			}
		}
		return nil
	})
	return out, err
}

func (r Issues) Create(ctx context.Context, is *domain.Issue) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.issues[is.ID]; ok {
			return alreadyExists("issue", is.ID)
		}
		for _, other := range st.issues {
			if other.DedupKey == is.DedupKey {
				return alreadyExists("issue", is.DedupKey)
			}
		}
		st.issues[is.ID] = cloneIssue(*is)
		return nil
	})
}

func (r Issues) Update(ctx context.Context, is *domain.Issue) error {
	return r.s.write(ctx, func(st *state) error {
		prev, ok := st.issues[is.ID]
		if !ok {
			return notFound("issue", is.ID)
		}
		next := cloneIssue(*is)
		next.IssueType = prev.IssueType
		next.DedupKey = prev.DedupKey
		next.DetectedAt = prev.DetectedAt
		st.issues[is.ID] = next
		return nil
	})
}

// Resolve marks the open issues among ids as resolved and returns the ids it
// changed. Every id must exist.
func (r Issues) Resolve(ctx context.Context, ids []uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []uuid.UUID
	err := r.s.write(ctx, func(st *state) error {
		for _, id := range ids {
			if _, ok := st.issues[id]; !ok {
				return fmt.Errorf("issue ids %v: %w", ids, domain.ErrNotFound)
			}
		}
		seen := make(map[uuid.UUID]bool, len(ids))
		for _, id := range ids {
			is := st.issues[id]
			if seen[id] || is.Status != domain.IssueStatusOpen {
				continue
			}
			seen[id] = true
			is.Status = domain.IssueStatusResolved
			is.ResolvedAt = &at
			is.UpdatedAt = at
			st.issues[id] = is
			out = append(out, id)
		}
		return nil
	})
	return out, err
}

// Reopen moves resolved issues among ids back to open. Ignored issues stay ignored.
func (r Issues) Reopen(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.s.write(ctx, func(st *state) error {
		for _, id := range ids {
			is, ok := st.issues[id]
			if !ok || is.Status != domain.IssueStatusResolved {
				continue
			}
			is.Status = domain.IssueStatusOpen
			is.ResolvedAt = nil
			is.UpdatedAt = at
			st.issues[id] = is
		}
		return nil
	})
}

// ---------------------------------------------------------------------------
// Action log
// ---------------------------------------------------------------------------

// Actions is the action log view of a Store.
type Actions struct{ s *Store }

// Actions returns the action log.
func (s *Store) Actions() Actions { return Actions{s} }

func cloneEntry(e domain.ActionLogEntry) domain.ActionLogEntry {
	e.Payload = slices.Clone(e.Payload)
	e.UndoPayload = slices.Clone(e.UndoPayload)
	e.ResolvedIssueIDs = slices.Clone(e.ResolvedIssueIDs)
	if e.RevertedBy != nil {
		by := *e.RevertedBy
		e.RevertedBy = &by
	}
	return e
}

func (r Actions) Create(ctx context.Context, e *domain.ActionLogEntry) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.actions[e.ID]; ok {
			return alreadyExists("action", e.ID)
		}
		st.actions[e.ID] = cloneEntry(*e)
		return nil
	})
}

func (r Actions) GetByID(ctx context.Context, id uuid.UUID) (*domain.ActionLogEntry, error) {
	var out *domain.ActionLogEntry
	err := r.s.read(ctx, func(st *state) error {
		e, ok := st.actions[id]
		if !ok {
			return notFound("action", id)
		}
		e = cloneEntry(e)
		out = &e
		return nil
	})
	return out, err
}

func (r Actions) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.ActionLogEntry, error) {
	return r.GetByID(ctx, id)
}

// Version returns the number of logged actions. Entries are never removed,
// so the count changes whenever an action commits.
func (r Actions) Version(ctx context.Context) (int64, error) {
	var v int64
	err := r.s.read(ctx, func(st *state) error {
		v = int64(len(st.actions))
		return nil
	})
	return v, err
}

// VersionForUpdate is Version; the store serializes writers already.
func (r Actions) VersionForUpdate(ctx context.Context) (int64, error) {
	return r.Version(ctx)
}

// MarkReverted stamps the entry as undone by another entry.
func (r Actions) MarkReverted(ctx context.Context, id, by uuid.UUID) error {
	return r.s.write(ctx, func(st *state) error {
		e, ok := st.actions[id]
		if !ok || e.RevertedBy != nil {
			return fmt.Errorf("action %s: already reverted or missing: %w", id, domain.ErrConflict)
		}
		if _, ok := st.actions[by]; !ok {
			return missingParent("action", by)
		}
		e.RevertedBy = &by
		st.actions[id] = e
		return nil
	})
}

// List returns a page of entries, newest first, and the total count.
func (r Actions) List(ctx context.Context, limit, offset int) ([]domain.ActionLogEntry, int, error) {
	var (
		out   []domain.ActionLogEntry
		total int
	)
	err := r.s.read(ctx, func(st *state) error {
		all := make([]domain.ActionLogEntry, 0, len(st.actions))
		for _, e := range st.actions {
			all = append(all, e)
		}
		slices.SortFunc(all, func(a, b domain.ActionLogEntry) int {
			if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
				return c
			}
			return strings.Compare(a.ID.String(), b.ID.String())
		})
		total = len(all)
		start := min(max(offset, 0), len(all))
		end := min(start+max(limit, 0), len(all))
		for _, e := range all[start:end] {
			out = append(out, cloneEntry(e))
		}
		return nil
	})
	return out, total, err
}

// ---------------------------------------------------------------------------
// Date normalizations
// ---------------------------------------------------------------------------

// DateNorms is the date observation view of a Store.
type DateNorms struct{ s *Store }

// DateNorms returns the date observation store.
func (s *Store) DateNorms() DateNorms { return DateNorms{s} }

func sortRecords(recs []domain.DateNormalizationRecord) {
	slices.SortFunc(recs, func(a, b domain.DateNormalizationRecord) int {
		if c := strings.Compare(string(a.EntityType), string(b.EntityType)); c != 0 {
			return c
		}
		if c := cmpInt(a.EntityID, b.EntityID); c != 0 {
			return c
		}
		if c := strings.Compare(a.Field, b.Field); c != 0 {
			return c
		}
		if c := a.ObservedAt.Compare(b.ObservedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Raw, b.Raw)
	})
}

func (r DateNorms) ListCurrent(ctx context.Context) ([]domain.DateNormalizationRecord, error) {
	var out []domain.DateNormalizationRecord
	err := r.s.read(ctx, func(st *state) error {
		for _, rec := range st.dateNorms {
			if rec.SupersededAt == nil {
				out = append(out, rec)
			}
		}
		sortRecords(out)
		return nil
	})
	return out, err
}

// ListForField returns the full history of one field, oldest first.
func (r DateNorms) ListForField(ctx context.Context, ref domain.FieldRef) ([]domain.DateNormalizationRecord, error) {
	var out []domain.DateNormalizationRecord
	err := r.s.read(ctx, func(st *state) error {
		for k, rec := range st.dateNorms {
			if k.ref == ref {
				out = append(out, rec)
			}
		}
		sortRecords(out)
		return nil
	})
	return out, err
}

// Record stores the given observations, superseding any current row of the
// same field that holds a different raw value.
func (r DateNorms) Record(ctx context.Context, recs []domain.DateNormalizationRecord, at time.Time) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	err := r.s.write(ctx, func(st *state) error {
		for _, rec := range recs {
			ref := rec.Key()
			for k, old := range st.dateNorms {
				if k.ref == ref && k.raw != rec.Raw && old.SupersededAt == nil {
					old.SupersededAt = &at
					st.dateNorms[k] = old
				}
			}
			rec.SupersededAt = nil
			st.dateNorms[dateKey{ref: ref, raw: rec.Raw}] = rec
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

// ---------------------------------------------------------------------------
// Place rules
// ---------------------------------------------------------------------------

// PlaceRules is the place rule view of a Store.
type PlaceRules struct{ s *Store }

// PlaceRules returns the place rule store.
func (s *Store) PlaceRules() PlaceRules { return PlaceRules{s} }

func cloneRule(rule domain.PlaceNormalizationRule) domain.PlaceNormalizationRule {
	rule.Variants = slices.Clone(rule.Variants)
	return rule
}

func (r PlaceRules) Create(ctx context.Context, rule *domain.PlaceNormalizationRule) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.rules[rule.ID]; ok {
			return alreadyExists("place rule", rule.ID)
		}
		st.rules[rule.ID] = cloneRule(*rule)
		return nil
	})
}

func (r PlaceRules) GetByID(ctx context.Context, id uuid.UUID) (*domain.PlaceNormalizationRule, error) {
	var out *domain.PlaceNormalizationRule
	err := r.s.read(ctx, func(st *state) error {
		rule, ok := st.rules[id]
		if !ok {
			return notFound("place rule", id)
		}
		rule = cloneRule(rule)
		out = &rule
		return nil
	})
	return out, err
}

func (r PlaceRules) SetApproved(ctx context.Context, id uuid.UUID, approved bool, at time.Time) error {
	return r.s.write(ctx, func(st *state) error {
		rule, ok := st.rules[id]
		if !ok {
			return notFound("place rule", id)
		}
		rule.Approved = approved
		rule.UpdatedAt = at
		st.rules[id] = rule
		return nil
	})
}

func (r PlaceRules) List(ctx context.Context) ([]domain.PlaceNormalizationRule, error) {
	return r.list(ctx, false)
}

func (r PlaceRules) ListApproved(ctx context.Context) ([]domain.PlaceNormalizationRule, error) {
	return r.list(ctx, true)
}

func (r PlaceRules) list(ctx context.Context, approvedOnly bool) ([]domain.PlaceNormalizationRule, error) {
	var out []domain.PlaceNormalizationRule
	err := r.s.read(ctx, func(st *state) error {
		for _, rule := range st.rules {
			if approvedOnly && !rule.Approved {
				continue
			}
			out = append(out, cloneRule(rule))
		}
		slices.SortFunc(out, func(a, b domain.PlaceNormalizationRule) int {
			if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
				return c
			}
			return strings.Compare(a.ID.String(), b.ID.String())
		})
		return nil
	})
	return out, err
}
