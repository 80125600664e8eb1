// Package session owns the per-session contexts of the web service. Each
// context pairs one session cache with one entity store for a single user.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/captify/captify/internal/platform/id"
	"github.com/captify/captify/internal/services/shared/apiclient"
	"github.com/captify/captify/internal/services/web/ontology"
	"github.com/captify/captify/internal/services/web/sessioncache"
	webstorage "github.com/captify/captify/internal/services/web/storage"
)

// DefaultTTL bounds a session context without a shorter token expiry.
const DefaultTTL = 12 * time.Hour

var (
	// ErrRunnerRequired indicates a registry without a platform runner.
	ErrRunnerRequired = errors.New("api runner is required")
	// ErrUserRequired indicates Open without a user ID.
	ErrUserRequired = errors.New("user id is required")
)

// Context is one authenticated session.
type Context struct {
	ID        string
	UserID    string
	Cache     *sessioncache.Cache
	Store     *ontology.Store
	CreatedAt time.Time
	ExpiresAt time.Time

	source sessioncache.Source
}

// Refresh reloads the cache snapshot of the session user.
func (c *Context) Refresh(ctx context.Context) error {
	return c.Cache.Refresh(ctx, c.UserID, c.source)
}

// Expired reports whether the context lifetime ended before now.
func (c *Context) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Config controls registry behavior.
type Config struct {
	Runner apiclient.Runner
	// Storage persists session records and cache snapshots. Nil keeps
	// everything in memory.
	Storage  webstorage.Store
	TTL      time.Duration
	FreshTTL time.Duration
	Clock    func() time.Time
	NewID    func() (string, error)
	Logger   *zap.Logger
}

// Registry tracks the live session contexts.
type Registry struct {
	runner   apiclient.Runner
	source   sessioncache.Source
	storage  webstorage.Store
	ttl      time.Duration
	freshTTL time.Duration
	clock    func() time.Time
	newID    func() (string, error)
	logger   *zap.Logger

	mu       sync.Mutex
	contexts map[string]*Context
}

// NewRegistry builds a registry.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Runner == nil {
		return nil, ErrRunnerRequired
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = id.NewID
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		runner:   cfg.Runner,
		source:   sessioncache.NewRemoteSource(cfg.Runner),
		storage:  cfg.Storage,
		ttl:      ttl,
		freshTTL: cfg.FreshTTL,
		clock:    clock,
		newID:    newID,
		logger:   logger,
		contexts: make(map[string]*Context),
	}, nil
}

// Open creates a context for userID and initializes its cache. A non-zero
// notAfter shortens the lifetime to the credential expiry.
func (r *Registry) Open(ctx context.Context, userID string, notAfter time.Time) (*Context, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserRequired
	}
	sessionID, err := r.newID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	now := r.clock().UTC()
	expiresAt := now.Add(r.ttl)
	if !notAfter.IsZero() && notAfter.Before(expiresAt) {
		expiresAt = notAfter.UTC()
	}

	record := webstorage.SessionRecord{
		ID:        sessionID,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
	if r.storage != nil {
		if err := r.storage.SaveSession(ctx, record); err != nil {
			return nil, fmt.Errorf("save session: %w", err)
		}
	}
	sc, err := r.build(record)
	if err != nil {
		return nil, err
	}
	sc.Cache.Initialize(ctx, userID, r.source)

	r.mu.Lock()
	r.contexts[sessionID] = sc
	r.mu.Unlock()
	r.logger.Info("session opened", zap.String("session_id", sessionID), zap.String("user_id", userID))
	return sc, nil
}

// Get returns the live context for sessionID. A context known only to
// storage is rebuilt, adopting its persisted snapshot when still fresh.
// Expired contexts are closed and reported as missing.
func (r *Registry) Get(ctx context.Context, sessionID string) (*Context, bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, false, nil
	}
	now := r.clock()

	r.mu.Lock()
	sc, ok := r.contexts[sessionID]
	r.mu.Unlock()
	if ok {
		if sc.Expired(now) {
			return nil, false, r.Close(ctx, sessionID)
		}
		return sc, true, nil
	}

	if r.storage == nil {
		return nil, false, nil
	}
	record, found, err := r.storage.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, false, fmt.Errorf("load session: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	if !now.Before(record.ExpiresAt) {
		return nil, false, r.discard(ctx, sessionID)
	}
	sc, err = r.build(record)
	if err != nil {
		return nil, false, err
	}
	sc.Cache.Initialize(ctx, record.UserID, r.source)

	r.mu.Lock()
	if existing, raced := r.contexts[sessionID]; raced {
		sc = existing
	} else {
		r.contexts[sessionID] = sc
	}
	r.mu.Unlock()
	r.logger.Debug("session restored", zap.String("session_id", sessionID))
	return sc, true, nil
}

// Close ends the session: its cache is cleared, its store reset, and its
// persisted record removed. Closing an unknown session is a no-op.
func (r *Registry) Close(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	sc, ok := r.contexts[sessionID]
	delete(r.contexts, sessionID)
	r.mu.Unlock()
	if ok {
		sc.Cache.Clear(ctx)
		sc.Store.Reset()
		r.logger.Info("session closed", zap.String("session_id", sessionID))
	}
	return r.discard(ctx, sessionID)
}

// CloseAll releases every live context on shutdown. With persistent storage
// the records and snapshots stay so sessions survive a restart; without it
// every context is closed.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	contexts := r.contexts
	r.contexts = make(map[string]*Context)
	r.mu.Unlock()

	if r.storage != nil {
		return nil
	}
	for _, sc := range contexts {
		sc.Cache.Clear(ctx)
		sc.Store.Reset()
	}
	return nil
}

// Sweep closes every expired live context and returns how many it closed.
func (r *Registry) Sweep(ctx context.Context) (int, error) {
	now := r.clock()
	r.mu.Lock()
	var expired []string
	for sessionID, sc := range r.contexts {
		if sc.Expired(now) {
			expired = append(expired, sessionID)
		}
	}
	r.mu.Unlock()

	var errs []error
	for _, sessionID := range expired {
		if err := r.Close(ctx, sessionID); err != nil {
			errs = append(errs, err)
		}
	}
	return len(expired), errors.Join(errs...)
}

// Len returns the number of live contexts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.contexts)
}

func (r *Registry) build(record webstorage.SessionRecord) (*Context, error) {
	var slot sessioncache.Slot = sessioncache.NewMemorySlot()
	if r.storage != nil {
		storeSlot, err := sessioncache.NewStoreSlot(r.storage, sessioncache.StoreSlotConfig{
			Scope:     record.ID,
			UserID:    record.UserID,
			ExpiresAt: record.ExpiresAt,
			Clock:     r.clock,
		})
		if err != nil {
			return nil, fmt.Errorf("build cache slot: %w", err)
		}
		slot = storeSlot
	}
	logger := r.logger.With(zap.String("session_id", record.ID))
	return &Context{
		ID:     record.ID,
		UserID: record.UserID,
		Cache: sessioncache.New(slot, sessioncache.Config{
			FreshTTL: r.freshTTL,
			Clock:    r.clock,
			Logger:   logger,
		}),
		Store:     ontology.New(r.runner, ontology.Config{Logger: logger}),
		CreatedAt: record.CreatedAt,
		ExpiresAt: record.ExpiresAt,
		source:    r.source,
	}, nil
}

func (r *Registry) discard(ctx context.Context, sessionID string) error {
	if r.storage == nil {
		return nil
	}
	if err := r.storage.DeleteScope(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session cache: %w", err)
	}
	if err := r.storage.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
