// Package cache keeps query results keyed by endpoint and arguments, tagged
// so that mutations can mark them stale, and patchable in place for
// optimistic updates.
package cache

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// DefaultKeepUnusedFor is how long an entry survives without being read.
const DefaultKeepUnusedFor = 60 * time.Second

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

type entry struct {
	key        Key
	value      any
	raw        []byte // snapshot payload not yet decoded
	tags       []Tag
	stale      bool
	fetchedAt  time.Time
	lastUsed   time.Time
	generation uint64
}

func (e *entry) hasTag(tags []Tag) bool {
	for _, have := range e.tags {
		for _, want := range tags {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Store is the process-wide query cache. Every method is safe for concurrent use.
type Store struct {
	mu            sync.Mutex
	entries       map[string]*entry
	generation    uint64
	keepUnusedFor time.Duration
	snap          Snapshotter
	now           func() time.Time
	logger        *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithSnapshotter persists every entry change and restores entries on start.
func WithSnapshotter(s Snapshotter) Option {
	return func(st *Store) { st.snap = s }
}

// WithKeepUnusedFor sets the eviction window. Zero or negative disables eviction.
func WithKeepUnusedFor(d time.Duration) Option {
	return func(st *Store) { st.keepUnusedFor = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(st *Store) { st.now = now }
}

// WithLogger sets the logger for snapshot failures and cache decisions.
func WithLogger(l *slog.Logger) Option {
	return func(st *Store) { st.logger = l }
}

// NewStore creates a store, restoring the snapshot when one is configured.
func NewStore(opts ...Option) (*Store, error) {
	s := &Store{
		entries:       make(map[string]*entry),
		keepUnusedFor: DefaultKeepUnusedFor,
		now:           time.Now,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.snap != nil {
		records, err := s.snap.Load()
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			s.generation++
			s.entries[r.Key.String()] = &entry{
				key:        r.Key,
				raw:        r.Payload,
				tags:       r.Tags,
				stale:      r.Stale,
				fetchedAt:  r.FetchedAt,
				lastUsed:   r.LastUsed,
				generation: s.generation,
			}
		}
		s.logger.Debug("cache restored", slog.Int("entries", len(records)))
	}
	return s, nil
}

// Close releases the snapshotter.
func (s *Store) Close() error {
	if s.snap == nil {
		return nil
	}
	return s.snap.Close()
}

// QueryDef describes one cacheable read.
type QueryDef[T any] struct {
	Endpoint string
	Args     any
	Fetch    func(ctx context.Context) (T, error)
	Tags     func(result T) []Tag
}

// Query returns the cached value for q when it is present and not stale;
// otherwise it fetches, stores and returns a fresh value. A failed fetch
// leaves the existing entry untouched.
func Query[T any](ctx context.Context, s *Store, q QueryDef[T]) (T, error) {
	key := NewKey(q.Endpoint, q.Args)
	s.EvictUnused()

	if v, ok := lookup[T](s, key, true); ok {
		return v, nil
	}

	result, err := q.Fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	var tags []Tag
	if q.Tags != nil {
		tags = q.Tags(result)
	}
	s.set(key, result, tags)
	return result, nil
}

// Peek returns the cached value for key whether or not it is stale.
func Peek[T any](s *Store, key Key) (T, bool) {
	return lookup[T](s, key, false)
}

// IsStale reports whether key is cached and marked stale.
func (s *Store) IsStale(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key.String()]
	return ok && e.stale
}

// Has reports whether key is cached.
func (s *Store) Has(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key.String()]
	return ok
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Invalidate marks every entry holding any of tags as stale. It returns how
// many entries were affected.
func (s *Store) Invalidate(tags ...Tag) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.entries {
		if e.stale || !e.hasTag(tags) {
			continue
		}
		e.stale = true
		s.persistLocked(e)
		n++
	}
	s.logger.Debug("cache invalidated", slog.Any("tags", tagStrings(tags)), slog.Int("entries", n))
	return n
}

// EvictUnused drops entries that have not been read within the keep window.
func (s *Store) EvictUnused() int {
	if s.keepUnusedFor <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.keepUnusedFor)
	n := 0
	for k, e := range s.entries {
		if e.lastUsed.Before(cutoff) {
			delete(s.entries, k)
			s.deleteSnapshotLocked(e.key)
			n++
		}
	}
	return n
}

func lookup[T any](s *Store, key Key, freshOnly bool) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	e, ok := s.entries[key.String()]
	if !ok || (freshOnly && e.stale) {
		return zero, false
	}
	v, ok := decodeLocked[T](e)
	if !ok {
		return zero, false
	}
	e.lastUsed = s.now()
	return v, true
}

// decodeLocked returns the entry's value as T, decoding a restored snapshot
// payload on first access.
func decodeLocked[T any](e *entry) (T, bool) {
	var zero T
	if e.value == nil && e.raw != nil {
		var v T
		if err := codec.Unmarshal(e.raw, &v); err != nil {
			return zero, false
		}
		e.value = v
		e.raw = nil
	}
	v, ok := e.value.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

func (s *Store) set(key Key, value any, tags []Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.generation++
	e := &entry{
		key:        key,
		value:      value,
		tags:       tags,
		fetchedAt:  now,
		lastUsed:   now,
		generation: s.generation,
	}
	s.entries[key.String()] = e
	s.persistLocked(e)
}

// sortedLocked returns the entries of endpoint in key order.
func (s *Store) sortedLocked(endpoint string) []*entry {
	var out []*entry
	for _, e := range s.entries {
		if e.key.Endpoint == endpoint {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key.String() < out[j].key.String() })
	return out
}

func (s *Store) persistLocked(e *entry) {
	if s.snap == nil {
		return
	}
	payload := e.raw
	if e.value != nil {
		var err error
		if payload, err = codec.Marshal(e.value); err != nil {
			s.logger.Warn("cache snapshot encode failed", slog.String("key", e.key.String()), slog.Any("error", err))
			return
		}
	}
	rec := Record{
		Key:       e.key,
		Tags:      e.tags,
		Payload:   payload,
		Stale:     e.stale,
		FetchedAt: e.fetchedAt,
		LastUsed:  e.lastUsed,
	}
	if err := s.snap.Save(rec); err != nil {
		s.logger.Warn("cache snapshot save failed", slog.String("key", e.key.String()), slog.Any("error", err))
	}
}

func (s *Store) deleteSnapshotLocked(key Key) {
	if s.snap == nil {
		return
	}
	if err := s.snap.Delete(key); err != nil {
		s.logger.Warn("cache snapshot delete failed", slog.String("key", key.String()), slog.Any("error", err))
	}
}
