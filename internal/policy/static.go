package policy

import (
	"context"
	"fmt"
	"sync"

	"github.com/famomatic/ytmirror/internal/store"
)

// KeyPriority is the persisted stream priority list.
const KeyPriority = "tube_api_priority"

// Static is the user-ordered priority list, persisted as a JSON array.
type Static struct {
	store store.Store
	known []string

	mu    sync.RWMutex
	order []string
}

// NewStatic loads the persisted list through LoadPriority.
func NewStatic(ctx context.Context, st store.Store, known []string) *Static {
	if st == nil {
		st = store.NewMemory()
	}
	s := &Static{store: st, known: append([]string(nil), known...)}
	var raw []string
	store.GetJSON(ctx, st, KeyPriority, &raw)
	s.order = LoadPriority(raw, s.known)
	return s
}

// Order returns the current list.
func (s *Static) Order() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Known returns the backends this list may contain, in default order.
func (s *Static) Known() []string { return append([]string(nil), s.known...) }

// Set replaces the list. The stored value is the merged list.
func (s *Static) Set(ctx context.Context, order []string) ([]string, error) {
	merged := LoadPriority(order, s.known)
	if err := store.SetJSON(ctx, s.store, KeyPriority, merged); err != nil {
		return nil, fmt.Errorf("save priority: %w", err)
	}
	s.mu.Lock()
	s.order = merged
	s.mu.Unlock()
	return append([]string(nil), merged...), nil
}

// Move shifts id by delta positions (negative is up), clamped to the list.
func (s *Static) Move(ctx context.Context, id string, delta int) ([]string, error) {
	order := s.Order()
	from := indexOf(order, id)
	if from < 0 {
		return order, fmt.Errorf("unknown backend %q", id)
	}
	return s.Reorder(ctx, from, from+delta)
}

// Reorder moves the entry at index from to index to, as a drag would.
func (s *Static) Reorder(ctx context.Context, from, to int) ([]string, error) {
	order := s.Order()
	if from < 0 || from >= len(order) {
		return order, fmt.Errorf("index %d out of range", from)
	}
	if to < 0 {
		to = 0
	}
	if to >= len(order) {
		to = len(order) - 1
	}
	if from == to {
		return order, nil
	}
	id := order[from]
	order = append(order[:from], order[from+1:]...)
	order = append(order[:to], append([]string{id}, order[to:]...)...)
	return s.Set(ctx, order)
}

// Reset removes the persisted list and restores the defaults.
func (s *Static) Reset(ctx context.Context) ([]string, error) {
	if err := s.store.Delete(ctx, KeyPriority); err != nil {
		return nil, fmt.Errorf("reset priority: %w", err)
	}
	s.mu.Lock()
	s.order = append([]string(nil), s.known...)
	s.mu.Unlock()
	return s.Order(), nil
}

func indexOf(list []string, id string) int {
	for i, v := range list {
		if v == id {
			return i
		}
	}
	return -1
}
