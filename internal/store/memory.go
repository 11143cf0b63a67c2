package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store. Entities are copied on the way in and out.
type Memory[T any, P Entity[T]] struct {
	mu    sync.RWMutex
	items map[uuid.UUID]T
	order []uuid.UUID
	now   func() time.Time
}

// NewMemory returns an empty memory store.
func NewMemory[T any, P Entity[T]]() *Memory[T, P] {
	return &Memory[T, P]{items: make(map[uuid.UUID]T), now: time.Now}
}

// Read returns the matching entities in insertion order.
func (m *Memory[T, P]) Read(ctx context.Context, f Filter) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]T, 0)
	for _, id := range m.order {
		v := m.items[id]
		ok, err := matches(P(&v), f)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// Add stores v under a fresh id and writes the id back into v.
func (m *Memory[T, P]) Add(ctx context.Context, v *T) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	id := uuid.New()
	P(v).SetKey(id)
	stampCreated(v, m.now())
	m.mu.Lock()
	m.items[id] = *v
	m.order = append(m.order, id)
	m.mu.Unlock()
	return id, nil
}

// Update replaces the stored entity with the same key.
func (m *Memory[T, P]) Update(ctx context.Context, v *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id := P(v).Key()
	stampUpdated(v, m.now())
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	m.items[id] = *v
	return nil
}

// Len returns the number of stored entities.
func (m *Memory[T, P]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func matches[P interface{ FieldValue(string) (string, bool) }](v P, f Filter) (bool, error) {
	for k, want := range f {
		got, ok := v.FieldValue(k)
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrUnknownField, k)
		}
		if got != want {
			return false, nil
		}
	}
	return true, nil
}

type createdStamper interface{ StampCreated(time.Time) }
type updatedStamper interface{ StampUpdated(time.Time) }

func stampCreated(v any, t time.Time) {
	if s, ok := v.(createdStamper); ok {
		s.StampCreated(t)
	}
}

func stampUpdated(v any, t time.Time) {
	if s, ok := v.(updatedStamper); ok {
		s.StampUpdated(t)
	}
}
