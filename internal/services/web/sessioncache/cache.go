// Package sessioncache keeps a per-user snapshot of the users, applications
// and user-state collections with a persisted copy, a freshness window and
// change notification.
package sessioncache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/captify/captify/internal/platform/otel"
	"github.com/captify/captify/internal/platform/timeouts"
)

// DefaultFreshTTL is how long a snapshot stays fresh after it was built.
const DefaultFreshTTL = 5 * time.Minute

// ErrSourceRequired indicates a refresh without a data source.
var ErrSourceRequired = errors.New("cache source is required")

// Config controls cache behavior.
type Config struct {
	FreshTTL time.Duration
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Stats summarizes the loaded snapshot.
type Stats struct {
	UserID       string        `json:"userId"`
	Users        int           `json:"users"`
	Applications int           `json:"applications"`
	UserState    int           `json:"userState"`
	LastUpdated  time.Time     `json:"lastUpdated"`
	Age          time.Duration `json:"age"`
	Expired      bool          `json:"expired"`
}

// Cache is the session cache of one session context. Reads never block on
// remote calls; mutations notify listeners after internal locks are released.
type Cache struct {
	slot     Slot
	freshTTL time.Duration
	clock    func() time.Time
	logger   *zap.Logger
	tracer   trace.Tracer

	// initMu sequences Initialize calls.
	initMu sync.Mutex
	// persistMu orders slot writes so the slot ends with the latest state.
	persistMu sync.Mutex

	mu          sync.RWMutex
	state       *State
	initialized bool
	appOrder    insertionOrder

	listeners *listenerSet
}

// New builds a cache persisting into slot. A nil slot keeps the snapshot in
// memory only.
func New(slot Slot, cfg Config) *Cache {
	if slot == nil {
		slot = NewMemorySlot()
	}
	freshTTL := cfg.FreshTTL
	if freshTTL <= 0 {
		freshTTL = DefaultFreshTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		slot:      slot,
		freshTTL:  freshTTL,
		clock:     clock,
		logger:    logger,
		tracer:    otel.Tracer("captify/web/sessioncache"),
		listeners: newListenerSet(),
	}
}

// Initialize loads the snapshot for userID. It is a no-op when the cache is
// already initialized for userID. A fresh persisted snapshot for the same user
// is adopted as is; anything else triggers Refresh, and a failed refresh
// leaves an empty snapshot for userID. cache-ready fires once per call that
// does work.
func (c *Cache) Initialize(ctx context.Context, userID string, source Source) {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	c.mu.RLock()
	current := c.initialized && c.state != nil && c.state.UserID == userID
	c.mu.RUnlock()
	if current {
		return
	}

	ctx, span := c.tracer.Start(ctx, "sessioncache.Initialize")
	defer span.End()
	span.SetAttributes(attribute.String("captify.user_id", userID))

	if state, ok := c.loadPersisted(ctx, userID); ok {
		span.SetAttributes(attribute.Bool("captify.cache_hit", true))
		c.mu.Lock()
		c.appOrder.reset()
		c.appOrder.sort(state.Applications)
		c.state = &state
		c.initialized = true
		c.mu.Unlock()
		c.logger.Debug("cache snapshot adopted", zap.String("user_id", userID))
		c.emitReady()
		return
	}

	if err := c.Refresh(ctx, userID, source); err != nil {
		c.logger.Warn("cache refresh failed, starting empty", zap.String("user_id", userID), zap.Error(err))
		c.mu.Lock()
		c.appOrder.reset()
		c.state = &State{
			Users:        []Item{},
			Applications: []Item{},
			UserState:    []Item{},
			LastUpdated:  c.clock().UTC(),
			UserID:       userID,
		}
		c.mu.Unlock()
	}
	c.mu.Lock()
	c.initialized = true
	c.mu.Unlock()
	c.emitReady()
}

// Refresh rebuilds the whole snapshot from source. The three fetches run
// concurrently; a failed fetch degrades its collection to empty. Refresh
// returns an error only when ctx ends before the snapshot is committed, in
// which case nothing changes.
func (c *Cache) Refresh(ctx context.Context, userID string, source Source) error {
	if source == nil {
		return ErrSourceRequired
	}
	ctx, span := c.tracer.Start(ctx, "sessioncache.Refresh")
	defer span.End()
	span.SetAttributes(attribute.String("captify.user_id", userID))

	var users, applications, userState []Item
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		users = c.fetch(groupCtx, "users", source.ListUsers)
		return nil
	})
	group.Go(func() error {
		applications = c.fetch(groupCtx, "applications", source.ListApplications)
		return nil
	})
	group.Go(func() error {
		userState = c.fetch(groupCtx, "user-state", func(ctx context.Context) ([]Item, error) {
			return source.ListUserState(ctx, userID)
		})
		return nil
	})
	_ = group.Wait()

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("refresh cache: %w", err)
	}

	state := State{
		Users:        users,
		Applications: applications,
		UserState:    userState,
		LastUpdated:  c.clock().UTC(),
		UserID:       userID,
	}
	c.mu.Lock()
	c.appOrder.reset()
	c.appOrder.sort(state.Applications)
	c.state = &state
	applications = cloneItems(state.Applications)
	users = cloneItems(state.Users)
	c.mu.Unlock()

	c.persist(ctx)
	c.emit(Event{Type: EventApplicationsUpdated, Data: applications})
	c.emit(Event{Type: EventUsersUpdated, Data: users})
	return nil
}

func (c *Cache) fetch(ctx context.Context, collection string, list func(context.Context) ([]Item, error)) []Item {
	items, err := list(ctx)
	if err != nil {
		c.logger.Warn("cache fetch failed", zap.String("collection", collection), zap.Error(err))
		return []Item{}
	}
	// Later duplicates replace earlier ones so IDs stay unique.
	out := make([]Item, 0, len(items))
	for _, item := range items {
		out = upsert(out, item.clone())
	}
	return out
}

// UpdateApplication inserts or replaces an application by ID and keeps the
// collection sorted. It is a no-op while no snapshot is loaded.
func (c *Cache) UpdateApplication(ctx context.Context, item Item) error {
	if err := item.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.state == nil {
		c.mu.Unlock()
		return nil
	}
	c.state.Applications = upsert(c.state.Applications, item.clone())
	c.appOrder.sort(c.state.Applications)
	applications := cloneItems(c.state.Applications)
	c.mu.Unlock()

	c.persist(ctx)
	c.emit(Event{Type: EventApplicationsUpdated, Data: applications})
	return nil
}

// UpdateUser inserts or replaces a user by ID. It is a no-op while no
// snapshot is loaded.
func (c *Cache) UpdateUser(ctx context.Context, item Item) error {
	if err := item.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.state == nil {
		c.mu.Unlock()
		return nil
	}
	c.state.Users = upsert(c.state.Users, item.clone())
	users := cloneItems(c.state.Users)
	c.mu.Unlock()

	c.persist(ctx)
	c.emit(Event{Type: EventUsersUpdated, Data: users})
	return nil
}

// RemoveApplication drops an application by ID and reports whether it was
// present. Nothing is persisted or emitted when nothing matched.
func (c *Cache) RemoveApplication(ctx context.Context, id string) bool {
	c.mu.Lock()
	if c.state == nil {
		c.mu.Unlock()
		return false
	}
	next, removed := remove(c.state.Applications, id)
	if !removed {
		c.mu.Unlock()
		return false
	}
	c.appOrder.forget(id)
	c.state.Applications = next
	applications := cloneItems(next)
	c.mu.Unlock()

	c.persist(ctx)
	c.emit(Event{Type: EventApplicationsUpdated, Data: applications})
	return true
}

// RemoveUser drops a user by ID and reports whether it was present.
func (c *Cache) RemoveUser(ctx context.Context, id string) bool {
	c.mu.Lock()
	if c.state == nil {
		c.mu.Unlock()
		return false
	}
	next, removed := remove(c.state.Users, id)
	if !removed {
		c.mu.Unlock()
		return false
	}
	c.state.Users = next
	users := cloneItems(next)
	c.mu.Unlock()

	c.persist(ctx)
	c.emit(Event{Type: EventUsersUpdated, Data: users})
	return true
}

// Applications returns the cached applications in order.
func (c *Cache) Applications() []Item {
	return c.read(func(s *State) []Item { return s.Applications })
}

// Users returns the cached users.
func (c *Cache) Users() []Item {
	return c.read(func(s *State) []Item { return s.Users })
}

// UserState returns the cached user-state entries.
func (c *Cache) UserState() []Item {
	return c.read(func(s *State) []Item { return s.UserState })
}

func (c *Cache) read(pick func(*State) []Item) []Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == nil {
		return []Item{}
	}
	return cloneItems(pick(c.state))
}

// FindApplication looks up an application by ID.
func (c *Cache) FindApplication(id string) (Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == nil {
		return Item{}, false
	}
	return find(c.state.Applications, id)
}

// FindUser looks up a user by ID.
func (c *Cache) FindUser(id string) (Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == nil {
		return Item{}, false
	}
	return find(c.state.Users, id)
}

// Snapshot returns a copy of the loaded state.
func (c *Cache) Snapshot() (State, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == nil {
		return State{}, false
	}
	return c.state.clone(), true
}

// Clear drops the snapshot and its persisted copy and marks the cache
// uninitialized. Calling it again is harmless.
func (c *Cache) Clear(ctx context.Context) {
	c.persistMu.Lock()
	c.mu.Lock()
	c.state = nil
	c.initialized = false
	c.appOrder.reset()
	c.mu.Unlock()
	if err := c.slot.Clear(ctx); err != nil {
		c.logger.Warn("clear cache slot", zap.Error(err))
	}
	c.persistMu.Unlock()

	c.emit(Event{Type: EventCleared})
}

// IsReady reports whether the cache is initialized and holds a snapshot.
func (c *Cache) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized && c.state != nil
}

// Stats reports counts and freshness. It returns false when not ready.
func (c *Cache) Stats() (Stats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.initialized || c.state == nil {
		return Stats{}, false
	}
	age := c.clock().Sub(c.state.LastUpdated)
	return Stats{
		UserID:       c.state.UserID,
		Users:        len(c.state.Users),
		Applications: len(c.state.Applications),
		UserState:    len(c.state.UserState),
		LastUpdated:  c.state.LastUpdated,
		Age:          age,
		Expired:      age >= c.freshTTL,
	}, true
}

// On registers listener for eventType. Registering the same comparable
// listener again returns a handle to the existing registration.
func (c *Cache) On(eventType EventType, listener Listener) Subscription {
	if listener == nil {
		return Subscription{}
	}
	return c.listeners.add(eventType, listener)
}

// OnFunc registers fn for eventType. Every call is a separate registration.
func (c *Cache) OnFunc(eventType EventType, fn func(Event)) Subscription {
	if fn == nil {
		return Subscription{}
	}
	return c.listeners.add(eventType, ListenerFunc(fn))
}

// ListenerCount returns the number of registered listeners.
func (c *Cache) ListenerCount() int {
	return c.listeners.count()
}

func (c *Cache) loadPersisted(ctx context.Context, userID string) (State, bool) {
	payload, found, err := c.slot.Load(ctx)
	if err != nil {
		c.logger.Warn("load cache slot", zap.Error(err))
		return State{}, false
	}
	if !found {
		return State{}, false
	}
	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		c.logger.Debug("discard unreadable cache snapshot", zap.Error(err))
		if err := c.slot.Clear(ctx); err != nil {
			c.logger.Warn("clear cache slot", zap.Error(err))
		}
		return State{}, false
	}
	if state.UserID != userID {
		c.logger.Debug("cache snapshot belongs to another user",
			zap.String("user_id", userID),
			zap.String("snapshot_user_id", state.UserID),
		)
		return State{}, false
	}
	if c.clock().Sub(state.LastUpdated) >= c.freshTTL {
		c.logger.Debug("cache snapshot is stale", zap.String("user_id", userID), zap.Time("last_updated", state.LastUpdated))
		return State{}, false
	}
	return state, true
}

// persist writes the current state. Failures are logged and the in-memory
// snapshot stays authoritative.
func (c *Cache) persist(ctx context.Context) {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.RLock()
	if c.state == nil {
		c.mu.RUnlock()
		return
	}
	payload, err := json.Marshal(*c.state)
	c.mu.RUnlock()
	if err != nil {
		c.logger.Warn("encode cache snapshot", zap.Error(err))
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.Persist)
	defer cancel()
	if err := c.slot.Save(saveCtx, payload); err != nil {
		c.logger.Warn("persist cache snapshot", zap.Error(err))
	}
}

func (c *Cache) emitReady() {
	stats, _ := c.Stats()
	c.emit(Event{Type: EventReady, Data: stats})
}

// emit delivers event synchronously in registration order. A panicking
// listener is logged and skipped.
func (c *Cache) emit(event Event) {
	for _, listener := range c.listeners.snapshot(event.Type) {
		c.deliver(listener, event)
	}
}

func (c *Cache) deliver(listener Listener, event Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("cache listener panicked",
				zap.String("event", string(event.Type)),
				zap.Any("panic", r),
			)
		}
	}()
	listener.HandleCacheEvent(event)
}
