package cache

import (
	"log/slog"

	"github.com/google/uuid"
)

// Recipe transforms a cached value for an optimistic update. It must not
// mutate its argument: it returns the next value, the inverse delta that
// reverts exactly this change, and whether anything changed.
type Recipe[T any] func(current T) (next T, inverse func(T) T, changed bool)

type appliedPatch struct {
	key        string
	generation uint64
	undo       func(any) (any, bool)
}

// PatchResult records the entries an optimistic update touched so the update
// can be reverted in one step.
type PatchResult struct {
	ID      string
	store   *Store
	patches []appliedPatch
	undone  bool
}

// Applied returns how many cached entries were patched.
func (p *PatchResult) Applied() int { return len(p.patches) }

// UpdateQueryData synchronously applies recipe to every cached entry of
// endpoint. Entries that are not cached are simply not patched.
func UpdateQueryData[T any](s *Store, endpoint string, recipe Recipe[T]) *PatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := &PatchResult{ID: uuid.NewString(), store: s}
	for _, e := range s.sortedLocked(endpoint) {
		cur, ok := decodeLocked[T](e)
		if !ok {
			continue
		}
		next, inverse, changed := recipe(cur)
		if !changed {
			continue
		}
		e.value = next
		s.persistLocked(e)

		res.patches = append(res.patches, appliedPatch{
			key:        e.key.String(),
			generation: e.generation,
			undo: func(v any) (any, bool) {
				typed, ok := v.(T)
				if !ok {
					return nil, false
				}
				return inverse(typed), true
			},
		})
	}

	s.logger.Debug("optimistic patch applied",
		slog.String("patch_id", res.ID),
		slog.String("endpoint", endpoint),
		slog.Int("entries", len(res.patches)))
	return res
}

// Undo applies the inverse of every recorded patch once. Entries that were
// refetched or evicted since the patch are left alone: the server's data
// already supersedes it. It returns how many entries were reverted.
func (p *PatchResult) Undo() int {
	s := p.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.undone {
		return 0
	}
	p.undone = true

	n := 0
	for _, ap := range p.patches {
		e, ok := s.entries[ap.key]
		if !ok || e.generation != ap.generation {
			continue
		}
		next, ok := ap.undo(e.value)
		if !ok {
			continue
		}
		e.value = next
		s.persistLocked(e)
		n++
	}

	s.logger.Debug("optimistic patch reverted", slog.String("patch_id", p.ID), slog.Int("entries", n))
	return n
}
