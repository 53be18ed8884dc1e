// Package memstore is an in-memory record and data-quality store. It mirrors
// the PostgreSQL repositories method for method so services run unchanged
// against either backend. Writers are serialized; a transaction works on a
// private copy of the state that replaces the live state on commit.
package memstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/heartmarshall/treecleaner/internal/domain"
)

// ErrReadOnly is returned when a write is attempted inside RunReadOnly.
var ErrReadOnly = errors.New("memstore: write in read-only transaction")

type pair [2]int64

type dateKey struct {
	ref domain.FieldRef
	raw string
}

type state struct {
	persons       map[int64]domain.Person
	families      map[int64]domain.Family // ChildIDs always nil; see children
	children      map[pair]struct{}       // family id, child id
	relationships map[pair]string         // parent id, child id -> rel type
	events        map[int64]domain.Event
	notes         map[int64]domain.Note
	places        map[int64]domain.Place
	assets        map[int64]domain.MediaAsset
	links         map[int64]domain.MediaLink

	issues    map[uuid.UUID]domain.Issue
	actions   map[uuid.UUID]domain.ActionLogEntry
	dateNorms map[dateKey]domain.DateNormalizationRecord
	rules     map[uuid.UUID]domain.PlaceNormalizationRule
}

func newState() state {
	return state{
		persons:       map[int64]domain.Person{},
		families:      map[int64]domain.Family{},
		children:      map[pair]struct{}{},
		relationships: map[pair]string{},
		events:        map[int64]domain.Event{},
		notes:         map[int64]domain.Note{},
		places:        map[int64]domain.Place{},
		assets:        map[int64]domain.MediaAsset{},
		links:         map[int64]domain.MediaLink{},
		issues:        map[uuid.UUID]domain.Issue{},
		actions:       map[uuid.UUID]domain.ActionLogEntry{},
		dateNorms:     map[dateKey]domain.DateNormalizationRecord{},
		rules:         map[uuid.UUID]domain.PlaceNormalizationRule{},
	}
}

// clone copies every map. Slice fields are treated as immutable once stored:
// every write path stores a fresh copy and every read path returns one.
func (s *state) clone() state {
	return state{
		persons:       maps.Clone(s.persons),
		families:      maps.Clone(s.families),
		children:      maps.Clone(s.children),
		relationships: maps.Clone(s.relationships),
		events:        maps.Clone(s.events),
		notes:         maps.Clone(s.notes),
		places:        maps.Clone(s.places),
		assets:        maps.Clone(s.assets),
		links:         maps.Clone(s.links),
		issues:        maps.Clone(s.issues),
		actions:       maps.Clone(s.actions),
		dateNorms:     maps.Clone(s.dateNorms),
		rules:         maps.Clone(s.rules),
	}
}

// Store is the in-memory backend. The zero value is not usable; call New.
type Store struct {
	mu    sync.RWMutex
	state state
}

// New returns an empty store.
func New() *Store {
	return &Store{state: newState()}
}

// ---------------------------------------------------------------------------
// Transactions
// ---------------------------------------------------------------------------

type txCtxKey struct{}

type tx struct {
	state    *state
	readOnly bool
}

func txFromCtx(ctx context.Context) (*tx, bool) {
	t, ok := ctx.Value(txCtxKey{}).(*tx)
	return t, ok
}

// RunInTx executes fn against a private copy of the state and commits it
// when fn returns nil. A nested call joins the outer transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if t, ok := txFromCtx(ctx); ok {
		if t.readOnly {
			return ErrReadOnly
		}
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(context.WithValue(ctx, txCtxKey{}, &tx{state: &working})); err != nil {
		return err
	}
	s.state = working
	return nil
}

// RunReadOnly executes fn against a stable view of the state. Writes fail
// with ErrReadOnly.
func (s *Store) RunReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFromCtx(ctx); ok {
		return fn(ctx)
	}

	s.mu.RLock()
	view := s.state.clone()
	s.mu.RUnlock()

	return fn(context.WithValue(ctx, txCtxKey{}, &tx{state: &view, readOnly: true}))
}

// read runs fn against the transaction state or, outside a transaction,
// against the live state under a read lock.
func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if t, ok := txFromCtx(ctx); ok {
		return fn(t.state)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&s.state)
}

// write runs fn against the transaction state or, outside a transaction, as
// its own single-statement transaction.
func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	if t, ok := txFromCtx(ctx); ok {
		if t.readOnly {
			return ErrReadOnly
		}
		return fn(t.state)
	}
	return s.RunInTx(ctx, func(ctx context.Context) error {
		t, _ := txFromCtx(ctx)
		return fn(t.state)
	})
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Dataset is the serialisable form of the record store.
type Dataset struct {
	domain.Snapshot
	Notes []domain.Note `json:"notes,omitempty"`
}

// Load adds every record of ds under its own id. Family children are taken
// from Family.ChildIDs. Existing records with the same ids are replaced.
func (s *Store) Load(ds Dataset) error {
	return s.RunInTx(context.Background(), func(ctx context.Context) error {
		t, _ := txFromCtx(ctx)
		st := t.state
		for _, p := range ds.Persons {
			st.persons[p.ID] = p
		}
		for _, f := range ds.Families {
			for _, c := range f.ChildIDs {
				st.children[pair{f.ID, c}] = struct{}{}
			}
			f.ChildIDs = nil
			st.families[f.ID] = f
		}
		for _, r := range ds.Relationships {
			if r.ParentID == r.ChildID {
				return domain.NewValidationError("relationships", fmt.Sprintf("person %d cannot be their own parent", r.ParentID))
			}
			st.relationships[pair{r.ParentID, r.ChildID}] = relTypeOrDefault(r.RelType)
		}
		for _, e := range ds.Events {
			st.events[e.ID] = e
		}
		for _, n := range ds.Notes {
			st.notes[n.ID] = n
		}
		for _, p := range ds.Places {
			p.Variants = slices.Clone(p.Variants)
			st.places[p.ID] = p
		}
		for _, a := range ds.MediaAssets {
			st.assets[a.ID] = a
		}
		for _, l := range ds.MediaLinks {
			st.links[l.ID] = l
		}
		return nil
	})
}

// LoadFile reads a JSON Dataset from path and loads it.
func (s *Store) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read dataset: %w", err)
	}
	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return fmt.Errorf("decode dataset %s: %w", path, err)
	}
	return s.Load(ds)
}

// Ping reports whether the store can serve requests. It always can.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Export returns the current records as a Dataset, every slice in id order.
func (s *Store) Export() Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := snapshotOf(&s.state)
	notes := sortedValues(s.state.notes, func(n domain.Note) int64 { return n.ID })
	return Dataset{Snapshot: *snap, Notes: notes}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func sortedValues[K comparable, V any](m map[K]V, id func(V) int64) []V {
	out := make([]V, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b V) int { return cmpInt(id(a), id(b)) })
	return out
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func relTypeOrDefault(t string) string {
	if t == "" {
		return "biological"
	}
	return t
}

func notFound(entity string, id any) error {
	return fmt.Errorf("%s %v: %w", entity, id, domain.ErrNotFound)
}

func alreadyExists(entity string, id any) error {
	return fmt.Errorf("%s %v: %w", entity, id, domain.ErrAlreadyExists)
}

func stillReferenced(entity string, id any, by string) error {
	return fmt.Errorf("%s %v is still referenced by %s: %w", entity, id, by, domain.ErrIntegrityViolation)
}

func missingParent(entity string, id any) error {
	return fmt.Errorf("%s %v does not exist: %w", entity, id, domain.ErrIntegrityViolation)
}
