package storage

import (
	"context"
	"time"
)

// CacheEntry stores one session-scoped payload and its lifetime.
//
// Scope groups the entries of one web session so they can be dropped
// together when the session ends.
type CacheEntry struct {
	CacheKey     string
	Scope        string
	UserID       string
	PayloadBytes []byte
	RefreshedAt  time.Time
	ExpiresAt    time.Time
}

// Expired reports whether the entry has a lifetime that ended before now.
func (e CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// SessionRecord is the persisted identity of one web session context.
type SessionRecord struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store is the contract for web session persistence.
type Store interface {
	Close() error
	GetCacheEntry(ctx context.Context, cacheKey string) (CacheEntry, bool, error)
	PutCacheEntry(ctx context.Context, entry CacheEntry) error
	DeleteCacheEntry(ctx context.Context, cacheKey string) error
	DeleteScope(ctx context.Context, scope string) error
	DeleteExpiredEntries(ctx context.Context, now time.Time) (int64, error)
	SaveSession(ctx context.Context, record SessionRecord) error
	LoadSession(ctx context.Context, sessionID string) (SessionRecord, bool, error)
	DeleteSession(ctx context.Context, sessionID string) error
}
