// Package docstore is an in-process concorsi.Store. It evaluates plans by
// scanning every document, which suits tests, seed data and small deployments.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/concoro-it/concoro/concorsi"
)

// Option configures a Store.
type Option func(*Store)

// WithLatency delays every query, for exercising timeouts and deduplication.
func WithLatency(d time.Duration) Option {
	return func(s *Store) {
		s.latency.Store(int64(d))
	}
}

// Store keeps documents in memory. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	docs    map[string]concorsi.Concorso
	queries atomic.Int64
	latency atomic.Int64
	failErr atomic.Pointer[error]
}

// New returns a Store seeded with docs.
func New(docs []concorsi.Concorso, opts ...Option) *Store {
	s := &Store{docs: make(map[string]concorsi.Concorso, len(docs))}
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadJSON reads a JSON array of concorsi, fills missing keyword indexes and
// returns a seeded Store.
func LoadJSON(r io.Reader, opts ...Option) (*Store, error) {
	var docs []concorsi.Concorso
	if err := json.NewDecoder(r).Decode(&docs); err != nil {
		return nil, fmt.Errorf("docstore: decode seed: %w", err)
	}
	for i := range docs {
		if len(docs[i].Keywords) == 0 {
			docs[i].Keywords = concorsi.BuildKeywords(docs[i])
		}
	}
	return New(docs, opts...), nil
}

// Fail makes every following call return err wrapped in
// concorsi.ErrStoreUnavailable. A nil err restores normal operation.
func (s *Store) Fail(err error) {
	if err == nil {
		s.failErr.Store(nil)
		return
	}
	s.failErr.Store(&err)
}

// SetLatency changes the delay applied to every call.
func (s *Store) SetLatency(d time.Duration) {
	s.latency.Store(int64(d))
}

// Queries returns the number of Query and Count calls served.
func (s *Store) Queries() int64 {
	return s.queries.Load()
}

func (s *Store) enter(ctx context.Context) error {
	if d := time.Duration(s.latency.Load()); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	if p := s.failErr.Load(); p != nil {
		return fmt.Errorf("%w: %w", concorsi.ErrStoreUnavailable, *p)
	}
	return nil
}

// Query implements concorsi.Store.
func (s *Store) Query(ctx context.Context, plan concorsi.Plan) ([]concorsi.Concorso, error) {
	s.queries.Add(1)
	if err := s.enter(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.matching(plan)

	if plan.StartAfter != "" {
		cursor, ok := s.docs[plan.StartAfter]
		if !ok {
			return nil, fmt.Errorf("%w: %q", concorsi.ErrInvalidCursor, plan.StartAfter)
		}
		idx := len(matched)
		for i, c := range matched {
			if plan.Compare(c, cursor) > 0 {
				idx = i
				break
			}
		}
		matched = matched[idx:]
	}

	if plan.Offset > 0 {
		if plan.Offset >= len(matched) {
			return []concorsi.Concorso{}, nil
		}
		matched = matched[plan.Offset:]
	}
	if plan.Limit > 0 && len(matched) > plan.Limit {
		matched = matched[:plan.Limit]
	}

	out := make([]concorsi.Concorso, len(matched))
	for i, c := range matched {
		out[i] = c.Normalize()
	}
	return out, nil
}

// Count implements concorsi.Counter.
func (s *Store) Count(ctx context.Context, plan concorsi.Plan) (int, error) {
	s.queries.Add(1)
	if err := s.enter(ctx); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matching(plan)), nil
}

// matching returns the documents satisfying plan in plan order. Callers hold mu.
func (s *Store) matching(plan concorsi.Plan) []concorsi.Concorso {
	matched := make([]concorsi.Concorso, 0)
	for _, c := range s.docs {
		if plan.Matches(c) {
			matched = append(matched, c)
		}
	}
	slices.SortFunc(matched, plan.Compare)
	return matched
}

// Get implements concorsi.Store.
func (s *Store) Get(ctx context.Context, id string) (concorsi.Concorso, error) {
	if err := s.enter(ctx); err != nil {
		return concorsi.Concorso{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.docs[id]
	if !ok {
		return concorsi.Concorso{}, fmt.Errorf("%w: %q", concorsi.ErrNotFound, id)
	}
	return c.Normalize(), nil
}

// Put implements concorsi.Store.
func (s *Store) Put(ctx context.Context, c concorsi.Concorso) error {
	if err := s.enter(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[c.ID] = c.Normalize()
	return nil
}

// Delete implements concorsi.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.enter(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return fmt.Errorf("%w: %q", concorsi.ErrNotFound, id)
	}
	delete(s.docs, id)
	return nil
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

var (
	_ concorsi.Store   = (*Store)(nil)
	_ concorsi.Counter = (*Store)(nil)
)
