// Package cache is the client-side query store. Queries are registered under
// tags; invalidating a tag refetches every subscribed query it matches.
// Data only ever enters the store through a fetch.
package cache

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Tag groups cached queries. An ID of zero addresses the whole category.
type Tag struct {
	Type string
	ID   int64
}

// Category returns the category tag for typ.
func Category(typ string) Tag {
	return Tag{Type: typ}
}

// Matches reports whether invalidating t must invalidate a query tagged with other.
func (t Tag) Matches(other Tag) bool {
	if t.Type != other.Type {
		return false
	}
	return t.ID == 0 || t.ID == other.ID
}

// Fetcher loads the current server state for one query.
type Fetcher func(ctx context.Context) (any, error)

// Change is one query state transition. Settled is set when a fetch finished.
type Change struct {
	Key      string
	Snapshot Snapshot
	Settled  bool
}

// Listener observes query state transitions.
type Listener func(Change)

type Store struct {
	mu        sync.Mutex
	queries   map[string]*Query
	listeners []Listener
	logger    *zerolog.Logger
}

func New(logger *zerolog.Logger) *Store {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "cache").Logger()
	return &Store{
		queries: make(map[string]*Query),
		logger:  &l,
	}
}

// Subscribe registers a query under key, or returns the one already registered.
func (s *Store) Subscribe(key string, tags []Tag, fetch Fetcher) *Query {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q, ok := s.queries[key]; ok {
		return q
	}
	q := &Query{
		key:   key,
		tags:  append([]Tag(nil), tags...),
		fetch: fetch,
		store: s,
	}
	s.queries[key] = q
	s.logger.Debug().Str("key", key).Msg("query subscribed")
	return q
}

// Lookup returns the query registered under key.
func (s *Store) Lookup(key string) (*Query, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queries[key]
	return q, ok
}

// Keys lists the registered query keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.queries))
	for k := range s.queries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) OnChange(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Invalidate refetches every subscribed query matched by any of tags and
// waits for all of them. Refetches run concurrently; each completion
// overwrites its own query, so the last one to finish is what readers see.
// The first refetch error is returned after all have finished.
func (s *Store) Invalidate(ctx context.Context, tags ...Tag) error {
	matched := s.matching(tags)
	if len(matched) == 0 {
		return nil
	}
	s.logger.Debug().Int("queries", len(matched)).Interface("tags", tags).Msg("invalidating")

	var g errgroup.Group
	for _, q := range matched {
		g.Go(func() error {
			return q.Refetch(ctx)
		})
	}
	return g.Wait()
}

func (s *Store) matching(tags []Tag) []*Query {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Query
	for _, q := range s.queries {
		if q.matches(tags) {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

func (s *Store) remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queries, key)
}

func (s *Store) notify(ch Change) {
	s.mu.Lock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(ch)
	}
}
