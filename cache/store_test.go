package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type book struct {
	ID        string `json:"_id"`
	Available int    `json:"availableCopies"`
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T, opts ...Option) (*Store, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(c.now), WithLogger(quietLogger())}, opts...)
	s, err := NewStore(opts...)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, c
}

func listTags(books []book) []Tag {
	tags := []Tag{{Type: "Books", ID: "LIST"}}
	for _, b := range books {
		tags = append(tags, Tag{Type: "Books", ID: b.ID})
	}
	return tags
}

func listQuery(limit int, calls *int, data func() []book) QueryDef[[]book] {
	return QueryDef[[]book]{
		Endpoint: "books.list",
		Args:     map[string]int{"limit": limit},
		Fetch: func(context.Context) ([]book, error) {
			*calls++
			return data(), nil
		},
		Tags: listTags,
	}
}

// takeOne decrements availability of id and returns the matching inverse.
func takeOne(id string) Recipe[[]book] {
	return func(cur []book) ([]book, func([]book) []book, bool) {
		next := make([]book, len(cur))
		copy(next, cur)
		for i := range next {
			if next[i].ID == id {
				next[i].Available--
				inverse := func(v []book) []book {
					out := make([]book, len(v))
					copy(out, v)
					for j := range out {
						if out[j].ID == id {
							out[j].Available++
						}
					}
					return out
				}
				return next, inverse, true
			}
		}
		return cur, nil, false
	}
}

func TestQueryServesCacheUntilInvalidated(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	calls := 0
	data := func() []book { return []book{{ID: "a", Available: 3}} }

	for i := 0; i < 3; i++ {
		if _, err := Query(ctx, s, listQuery(10, &calls, data)); err != nil {
			t.Fatalf("query: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("want 1 fetch, got %d", calls)
	}

	if n := s.Invalidate(Tag{Type: "Books", ID: "a"}); n != 1 {
		t.Fatalf("want 1 invalidated entry, got %d", n)
	}
	key := NewKey("books.list", map[string]int{"limit": 10})
	if !s.IsStale(key) {
		t.Fatalf("entry should be stale")
	}

	if _, err := Query(ctx, s, listQuery(10, &calls, data)); err != nil {
		t.Fatalf("query: %v", err)
	}
	if calls != 2 {
		t.Fatalf("want refetch after invalidation, got %d fetches", calls)
	}
	if s.IsStale(key) {
		t.Fatalf("refetched entry should be fresh")
	}
}

func TestQueryKeysByArguments(t *testing.T) {
	s, _ := newStore(t)
	calls := 0
	data := func() []book { return nil }

	Query(context.Background(), s, listQuery(10, &calls, data))
	Query(context.Background(), s, listQuery(20, &calls, data))
	if calls != 2 || s.Len() != 2 {
		t.Fatalf("want two entries and two fetches, got %d entries %d fetches", s.Len(), calls)
	}
}

func TestInvalidateIgnoresUnrelatedTags(t *testing.T) {
	s, _ := newStore(t)
	calls := 0
	Query(context.Background(), s, listQuery(10, &calls, func() []book { return []book{{ID: "a"}} }))

	if n := s.Invalidate(Tag{Type: "Borrows", ID: "SUMMARY"}, Tag{Type: "Books", ID: "zzz"}); n != 0 {
		t.Fatalf("want no invalidation, got %d", n)
	}
}

func TestFailedFetchKeepsEntry(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	calls := 0
	Query(ctx, s, listQuery(10, &calls, func() []book { return []book{{ID: "a", Available: 2}} }))
	s.Invalidate(Tag{Type: "Books", ID: "LIST"})

	boom := errors.New("boom")
	_, err := Query(ctx, s, QueryDef[[]book]{
		Endpoint: "books.list",
		Args:     map[string]int{"limit": 10},
		Fetch:    func(context.Context) ([]book, error) { return nil, boom },
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want fetch error, got %v", err)
	}

	got, ok := Peek[[]book](s, NewKey("books.list", map[string]int{"limit": 10}))
	if !ok || len(got) != 1 || got[0].Available != 2 {
		t.Fatalf("stale entry should survive a failed fetch, got %v %v", got, ok)
	}
}

func TestUpdateQueryDataPatchesEveryMatchingEntry(t *testing.T) {
	s, _ := newStore(t)
	calls := 0
	Query(context.Background(), s, listQuery(10, &calls, func() []book { return []book{{ID: "a", Available: 3}, {ID: "b", Available: 1}} }))
	Query(context.Background(), s, listQuery(20, &calls, func() []book { return []book{{ID: "a", Available: 3}} }))

	patch := UpdateQueryData(s, "books.list", takeOne("a"))
	if patch.Applied() != 2 {
		t.Fatalf("want 2 patched entries, got %d", patch.Applied())
	}
	for _, limit := range []int{10, 20} {
		got, _ := Peek[[]book](s, NewKey("books.list", map[string]int{"limit": limit}))
		if got[0].Available != 2 {
			t.Fatalf("limit %d: want 2 available, got %d", limit, got[0].Available)
		}
	}

	if n := patch.Undo(); n != 2 {
		t.Fatalf("want 2 reverted entries, got %d", n)
	}
	if n := patch.Undo(); n != 0 {
		t.Fatalf("second undo must be a no-op, got %d", n)
	}
	got, _ := Peek[[]book](s, NewKey("books.list", map[string]int{"limit": 10}))
	if got[0].Available != 3 || got[1].Available != 1 {
		t.Fatalf("undo should restore the original values, got %+v", got)
	}
}

func TestUpdateQueryDataWithoutCacheIsNoop(t *testing.T) {
	s, _ := newStore(t)
	patch := UpdateQueryData(s, "books.list", takeOne("a"))
	if patch.Applied() != 0 || patch.Undo() != 0 {
		t.Fatalf("nothing cached, nothing patched")
	}
}

func TestUndoIsPerPatch(t *testing.T) {
	s, _ := newStore(t)
	calls := 0
	Query(context.Background(), s, listQuery(10, &calls, func() []book { return []book{{ID: "a", Available: 3}} }))

	first := UpdateQueryData(s, "books.list", takeOne("a"))
	second := UpdateQueryData(s, "books.list", takeOne("a"))
	first.Undo()

	got, _ := Peek[[]book](s, NewKey("books.list", map[string]int{"limit": 10}))
	if got[0].Available != 2 {
		t.Fatalf("reverting one patch must keep the other, got %d", got[0].Available)
	}
	second.Undo()
	got, _ = Peek[[]book](s, NewKey("books.list", map[string]int{"limit": 10}))
	if got[0].Available != 3 {
		t.Fatalf("want 3 after both undos, got %d", got[0].Available)
	}
}

func TestUndoSkipsRefetchedEntries(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	calls := 0
	server := []book{{ID: "a", Available: 3}}
	data := func() []book { return append([]book(nil), server...) }
	Query(ctx, s, listQuery(10, &calls, data))

	patch := UpdateQueryData(s, "books.list", takeOne("a"))
	server[0].Available = 7
	s.Invalidate(Tag{Type: "Books", ID: "LIST"})
	Query(ctx, s, listQuery(10, &calls, data))

	if n := patch.Undo(); n != 0 {
		t.Fatalf("refetched entry must not be reverted, got %d", n)
	}
	got, _ := Peek[[]book](s, NewKey("books.list", map[string]int{"limit": 10}))
	if got[0].Available != 7 {
		t.Fatalf("want server value 7, got %d", got[0].Available)
	}
}

func TestEvictUnused(t *testing.T) {
	s, c := newStore(t, WithKeepUnusedFor(time.Minute))
	calls := 0
	data := func() []book { return nil }
	Query(context.Background(), s, listQuery(10, &calls, data))

	c.advance(30 * time.Second)
	Query(context.Background(), s, listQuery(10, &calls, data))
	c.advance(45 * time.Second)
	if n := s.EvictUnused(); n != 0 {
		t.Fatalf("entry read 45s ago must survive, evicted %d", n)
	}

	c.advance(30 * time.Second)
	if n := s.EvictUnused(); n != 1 {
		t.Fatalf("want eviction after the keep window, got %d", n)
	}
	if s.Len() != 0 {
		t.Fatalf("store should be empty")
	}
}

func TestSnapshotRestoresEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()
	calls := 0

	snap, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s, _ := newStore(t, WithSnapshotter(snap))
	Query(ctx, s, listQuery(10, &calls, func() []book { return []book{{ID: "a", Available: 3}} }))
	UpdateQueryData(s, "books.list", takeOne("a"))
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	snap, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	restored, _ := newStore(t, WithSnapshotter(snap))
	got, err := Query(ctx, restored, listQuery(10, &calls, func() []book { return nil }))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if calls != 1 {
		t.Fatalf("restored entry should be served without fetching, got %d fetches", calls)
	}
	if len(got) != 1 || got[0].Available != 2 {
		t.Fatalf("want patched value restored, got %+v", got)
	}

	restored.Invalidate(Tag{Type: "Books", ID: "a"})
	if !restored.IsStale(NewKey("books.list", map[string]int{"limit": 10})) {
		t.Fatalf("restored tags should still drive invalidation")
	}
}

func TestParseTag(t *testing.T) {
	tag, ok := ParseTag("Borrows:SUMMARY")
	if !ok || tag != (Tag{Type: "Borrows", ID: "SUMMARY"}) {
		t.Fatalf("parse: %+v %v", tag, ok)
	}
	if _, ok := ParseTag("nocolon"); ok {
		t.Fatalf("want failure without a colon")
	}
}
