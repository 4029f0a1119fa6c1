package cache

import (
	"context"
	"sync"
)

type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time copy of a query's state. Data keeps the last
// successful result even when a later refetch failed.
type Snapshot struct {
	Status   Status
	Data     any
	Err      error
	Fetching bool
	Fetches  int
}

// Query is one subscribed remote read.
type Query struct {
	key   string
	tags  []Tag
	fetch Fetcher
	store *Store

	mu       sync.Mutex
	status   Status
	data     any
	err      error
	inflight int
	fetches  int
	removed  bool
}

func (q *Query) Key() string {
	return q.key
}

// Load fetches the query unless it already has a result or a fetch in flight.
func (q *Query) Load(ctx context.Context) error {
	q.mu.Lock()
	if q.status != StatusIdle {
		err := q.err
		q.mu.Unlock()
		return err
	}
	q.mu.Unlock()
	return q.Refetch(ctx)
}

// Refetch always issues a new fetch.
func (q *Query) Refetch(ctx context.Context) error {
	q.mu.Lock()
	if q.removed {
		q.mu.Unlock()
		return nil
	}
	if q.status == StatusIdle {
		q.status = StatusLoading
	}
	q.inflight++
	q.fetches++
	snap := q.snapshotLocked()
	q.mu.Unlock()
	q.store.notify(Change{Key: q.key, Snapshot: snap})

	data, err := q.fetch(ctx)

	q.mu.Lock()
	q.inflight--
	if err != nil {
		q.status = StatusError
		q.err = err
	} else {
		q.status = StatusSuccess
		q.data = data
		q.err = nil
	}
	snap = q.snapshotLocked()
	q.mu.Unlock()
	q.store.notify(Change{Key: q.key, Snapshot: snap, Settled: true})

	if err != nil {
		q.store.logger.Error().Err(err).Str("key", q.key).Msg("query fetch failed")
	}
	return err
}

func (q *Query) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

// Unsubscribe drops the query from its store; later invalidations skip it.
func (q *Query) Unsubscribe() {
	q.mu.Lock()
	q.removed = true
	q.mu.Unlock()
	q.store.remove(q.key)
}

func (q *Query) snapshotLocked() Snapshot {
	return Snapshot{
		Status:   q.status,
		Data:     q.data,
		Err:      q.err,
		Fetching: q.inflight > 0,
		Fetches:  q.fetches,
	}
}

func (q *Query) matches(tags []Tag) bool {
	for _, inv := range tags {
		for _, own := range q.tags {
			if inv.Matches(own) {
				return true
			}
		}
	}
	return false
}

// Data extracts a typed payload from a snapshot.
func Data[T any](snap Snapshot) (T, bool) {
	v, ok := snap.Data.(T)
	return v, ok
}
