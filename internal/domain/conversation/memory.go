package conversation

import (
	"context"
	"sync"
)

// MemoryRepository keeps history for the process lifetime.
type MemoryRepository struct {
	mu    sync.RWMutex
	turns map[string][]Turn
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{turns: make(map[string][]Turn)}
}

func (r *MemoryRepository) Load(_ context.Context, id string) ([]Turn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.turns[id]
	out := make([]Turn, len(src))
	copy(out, src)
	return out, nil
}

func (r *MemoryRepository) Append(_ context.Context, id string, turns []Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns[id] = append(r.turns[id], turns...)
	return nil
}

func (r *MemoryRepository) Clear(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.turns, id)
	return nil
}
