// Package storage declares persistence for platform API items.
//
// Every table served by the platform API, generic or ontology, is a set of
// Items keyed by (Table, Key) whose Payload is a JSON object.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/captify/captify/internal/services/platform/filter"
)

var (
	// ErrNotFound indicates a missing item.
	ErrNotFound = errors.New("item not found")
	// ErrAlreadyExists indicates a create over an existing key.
	ErrAlreadyExists = errors.New("item already exists")
)

// Item is one stored record.
type Item struct {
	Table     string
	Key       string
	OwnerID   string
	Payload   []byte
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Query selects items from one table.
type Query struct {
	Table   string
	Where   filter.Condition
	OrderBy string
	Limit   int
}

// MutateFunc derives the next state of an existing item.
type MutateFunc func(current Item) (Item, error)

// Store persists items.
type Store interface {
	Get(ctx context.Context, table, key string) (Item, bool, error)
	// Create inserts a new item at version 1.
	Create(ctx context.Context, item Item) (Item, error)
	// Put inserts or replaces an item, bumping its version.
	Put(ctx context.Context, item Item) (Item, error)
	// Mutate reads, transforms and writes one item atomically, bumping its
	// version. It returns ErrNotFound when the item does not exist.
	Mutate(ctx context.Context, table, key string, fn MutateFunc) (Item, error)
	// Delete removes an item and reports whether it existed.
	Delete(ctx context.Context, table, key string) (bool, error)
	Query(ctx context.Context, q Query) ([]Item, error)
	Close() error
}
