package sessioncache

import (
	"reflect"
	"sync"
)

// EventType names a cache notification.
type EventType string

const (
	EventApplicationsUpdated EventType = "applications-updated"
	EventUsersUpdated        EventType = "users-updated"
	EventReady               EventType = "cache-ready"
	EventCleared             EventType = "cache-cleared"
)

// Event is one notification. Data carries a copy of the changed collection for
// update events and the cache Stats for cache-ready.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data,omitempty"`
}

// Listener receives cache events.
type Listener interface {
	HandleCacheEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

// HandleCacheEvent implements Listener.
func (fn ListenerFunc) HandleCacheEvent(event Event) {
	fn(event)
}

// Subscription removes a listener registration.
type Subscription struct {
	once    *sync.Once
	dispose func()
}

// Unsubscribe removes the registration. Only the first call has an effect.
func (s Subscription) Unsubscribe() {
	if s.once == nil || s.dispose == nil {
		return
	}
	s.once.Do(s.dispose)
}

type registration struct {
	id       uint64
	listener Listener
}

// listenerSet keeps listeners per event type in registration order.
type listenerSet struct {
	mu     sync.Mutex
	nextID uint64
	byType map[EventType][]registration
}

func newListenerSet() *listenerSet {
	return &listenerSet{byType: make(map[EventType][]registration)}
}

func (s *listenerSet) add(eventType EventType, listener Listener) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, reg := range s.byType[eventType] {
		if sameListener(reg.listener, listener) {
			return s.subscription(eventType, reg.id)
		}
	}
	s.nextID++
	s.byType[eventType] = append(s.byType[eventType], registration{id: s.nextID, listener: listener})
	return s.subscription(eventType, s.nextID)
}

func (s *listenerSet) subscription(eventType EventType, id uint64) Subscription {
	return Subscription{
		once: &sync.Once{},
		dispose: func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			regs := s.byType[eventType]
			for i, reg := range regs {
				if reg.id == id {
					s.byType[eventType] = append(regs[:i:i], regs[i+1:]...)
					return
				}
			}
		},
	}
}

func (s *listenerSet) snapshot(eventType EventType) []Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	regs := s.byType[eventType]
	out := make([]Listener, len(regs))
	for i, reg := range regs {
		out[i] = reg.listener
	}
	return out
}

func (s *listenerSet) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, regs := range s.byType {
		total += len(regs)
	}
	return total
}

// sameListener compares listeners whose dynamic type is comparable. Funcs
// never compare equal, so each func registration is distinct.
func sameListener(a, b Listener) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || ta == nil || !ta.Comparable() {
		return false
	}
	return a == b
}
