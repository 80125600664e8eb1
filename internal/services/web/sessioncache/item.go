package sessioncache

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"
)

// ErrItemIDRequired indicates an item without an identity.
var ErrItemIDRequired = errors.New("cache item id is required")

// Item is a lightweight reference to a user, application or user-state entry.
type Item struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Order   *int   `json:"order,omitempty"`
	Icon    string `json:"icon,omitempty"`
	Package string `json:"package,omitempty"`
}

// Validate checks the item identity.
func (i Item) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return ErrItemIDRequired
	}
	return nil
}

// SortOrder is the order value used for sorting. Unset sorts as zero.
func (i Item) SortOrder() int {
	if i.Order == nil {
		return 0
	}
	return *i.Order
}

func (i Item) clone() Item {
	if i.Order != nil {
		order := *i.Order
		i.Order = &order
	}
	return i
}

// State is the snapshot cached for one user.
type State struct {
	Users        []Item
	Applications []Item
	UserState    []Item
	LastUpdated  time.Time
	UserID       string
}

type stateJSON struct {
	Users        []Item `json:"users"`
	Applications []Item `json:"applications"`
	UserState    []Item `json:"userState"`
	LastUpdated  int64  `json:"lastUpdated"`
	UserID       string `json:"userId"`
}

// MarshalJSON encodes LastUpdated as Unix milliseconds.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(stateJSON{
		Users:        nonNil(s.Users),
		Applications: nonNil(s.Applications),
		UserState:    nonNil(s.UserState),
		LastUpdated:  s.LastUpdated.UnixMilli(),
		UserID:       s.UserID,
	})
}

// UnmarshalJSON decodes the persisted snapshot form.
func (s *State) UnmarshalJSON(data []byte) error {
	var raw stateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = State{
		Users:        nonNil(raw.Users),
		Applications: nonNil(raw.Applications),
		UserState:    nonNil(raw.UserState),
		LastUpdated:  time.UnixMilli(raw.LastUpdated).UTC(),
		UserID:       raw.UserID,
	}
	return nil
}

func (s State) clone() State {
	s.Users = cloneItems(s.Users)
	s.Applications = cloneItems(s.Applications)
	s.UserState = cloneItems(s.UserState)
	return s
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	for i, item := range items {
		out[i] = item.clone()
	}
	return out
}

func nonNil(items []Item) []Item {
	if items == nil {
		return []Item{}
	}
	return items
}

// insertionOrder remembers when each application ID first entered the
// collection. Applications sort by order, then by that sequence.
type insertionOrder struct {
	next uint64
	seq  map[string]uint64
}

func (o *insertionOrder) reset() {
	o.next = 0
	o.seq = nil
}

func (o *insertionOrder) forget(id string) {
	delete(o.seq, id)
}

// sort assigns sequences to unseen IDs in slice order and sorts items.
func (o *insertionOrder) sort(items []Item) {
	if o.seq == nil {
		o.seq = make(map[string]uint64, len(items))
	}
	for _, item := range items {
		if _, ok := o.seq[item.ID]; !ok {
			o.next++
			o.seq[item.ID] = o.next
		}
	}
	sort.SliceStable(items, func(a, b int) bool {
		oa, ob := items[a].SortOrder(), items[b].SortOrder()
		if oa != ob {
			return oa < ob
		}
		return o.seq[items[a].ID] < o.seq[items[b].ID]
	})
}

// upsert replaces the item with the same ID in place or appends it.
func upsert(items []Item, item Item) []Item {
	for i := range items {
		if items[i].ID == item.ID {
			items[i] = item
			return items
		}
	}
	return append(items, item)
}

// remove filters out id and reports whether anything matched.
func remove(items []Item, id string) ([]Item, bool) {
	out := make([]Item, 0, len(items))
	removed := false
	for _, item := range items {
		if item.ID == id {
			removed = true
			continue
		}
		out = append(out, item)
	}
	if !removed {
		return items, false
	}
	return out, true
}

func find(items []Item, id string) (Item, bool) {
	for _, item := range items {
		if item.ID == id {
			return item.clone(), true
		}
	}
	return Item{}, false
}
