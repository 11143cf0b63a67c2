// Package store defines the record store abstraction used by the pipeline and the ingestion endpoint.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by Update when no entity has the given key.
	ErrNotFound = errors.New("not found")
	// ErrUnknownField is returned when a filter names a field the store cannot match on.
	ErrUnknownField = errors.New("unknown filter field")
)

// Filter is an exact-match conjunction over named fields. An empty filter matches everything.
type Filter map[string]string

// Store persists entities of type T.
type Store[T any] interface {
	Read(ctx context.Context, f Filter) ([]T, error)
	Add(ctx context.Context, v *T) (uuid.UUID, error)
	Update(ctx context.Context, v *T) error
}

// Entity is implemented by pointer types that a Memory store can hold.
type Entity[T any] interface {
	*T
	Key() uuid.UUID
	SetKey(uuid.UUID)
	FieldValue(name string) (string, bool)
}
