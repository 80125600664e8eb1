package sessioncache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	webstorage "github.com/captify/captify/internal/services/web/storage"
)

// SlotKey is the fixed key the snapshot is persisted under.
const SlotKey = "captify-cache"

// Slot persists one serialized snapshot.
type Slot interface {
	Load(ctx context.Context) ([]byte, bool, error)
	Save(ctx context.Context, payload []byte) error
	Clear(ctx context.Context) error
}

// MemorySlot keeps the snapshot in process memory.
type MemorySlot struct {
	mu      sync.Mutex
	payload []byte
	present bool
}

// NewMemorySlot returns an empty memory slot.
func NewMemorySlot() *MemorySlot {
	return &MemorySlot{}
}

// Load returns a copy of the stored payload.
func (s *MemorySlot) Load(context.Context) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.present {
		return nil, false, nil
	}
	return append([]byte(nil), s.payload...), true, nil
}

// Save replaces the stored payload.
func (s *MemorySlot) Save(_ context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload = append([]byte(nil), payload...)
	s.present = true
	return nil
}

// Clear drops the stored payload.
func (s *MemorySlot) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload = nil
	s.present = false
	return nil
}

// StoreSlotConfig configures a StoreSlot.
type StoreSlotConfig struct {
	// Scope is the owning session ID.
	Scope  string
	UserID string
	// ExpiresAt is when the persisted row stops being readable, normally the
	// session expiry. Zero keeps it until cleared.
	ExpiresAt time.Time
	Clock     func() time.Time
}

// StoreSlot persists the snapshot as one web storage cache entry.
type StoreSlot struct {
	store     webstorage.Store
	key       string
	scope     string
	userID    string
	expiresAt time.Time
	clock     func() time.Time
}

// NewStoreSlot builds a slot keyed by the session scope.
func NewStoreSlot(store webstorage.Store, cfg StoreSlotConfig) (*StoreSlot, error) {
	if store == nil {
		return nil, errors.New("web storage is required")
	}
	scope := strings.TrimSpace(cfg.Scope)
	if scope == "" {
		return nil, errors.New("cache slot scope is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &StoreSlot{
		store:     store,
		key:       scope + "/" + SlotKey,
		scope:     scope,
		userID:    cfg.UserID,
		expiresAt: cfg.ExpiresAt.UTC(),
		clock:     clock,
	}, nil
}

// Key returns the cache entry key.
func (s *StoreSlot) Key() string {
	return s.key
}

// Load reads the entry. Expired entries read as missing.
func (s *StoreSlot) Load(ctx context.Context) ([]byte, bool, error) {
	entry, found, err := s.store.GetCacheEntry(ctx, s.key)
	if err != nil || !found {
		return nil, false, err
	}
	if entry.Expired(s.clock()) {
		return nil, false, nil
	}
	return entry.PayloadBytes, true, nil
}

// Save writes the entry.
func (s *StoreSlot) Save(ctx context.Context, payload []byte) error {
	now := s.clock().UTC()
	entry := webstorage.CacheEntry{
		CacheKey:     s.key,
		Scope:        s.scope,
		UserID:       s.userID,
		PayloadBytes: payload,
		RefreshedAt:  now,
		ExpiresAt:    s.expiresAt,
	}
	return s.store.PutCacheEntry(ctx, entry)
}

// Clear deletes the entry.
func (s *StoreSlot) Clear(ctx context.Context) error {
	return s.store.DeleteCacheEntry(ctx, s.key)
}
