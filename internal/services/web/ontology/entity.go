package ontology

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Collection names one entity collection.
type Collection string

const (
	Objects Collection = "objects"
	Links   Collection = "links"
	Actions Collection = "actions"
)

// Collections lists every collection in load order.
var Collections = []Collection{Objects, Links, Actions}

var (
	// ErrUnknownCollection indicates a collection outside Collections.
	ErrUnknownCollection = errors.New("unknown ontology collection")
	// ErrSlugRequired indicates an entity without a slug.
	ErrSlugRequired = errors.New("entity slug is required")
)

// ParseCollection validates a collection name.
func ParseCollection(raw string) (Collection, error) {
	c := Collection(strings.ToLower(strings.TrimSpace(raw)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCollection, raw)
	}
	return c, nil
}

// Valid reports whether c is a known collection.
func (c Collection) Valid() bool {
	switch c {
	case Objects, Links, Actions:
		return true
	default:
		return false
	}
}

const (
	keySlug      = "slug"
	keyVersion   = "version"
	keyCreatedAt = "createdAt"
	keyUpdatedAt = "updatedAt"
)

// Entity is one ontology record. Its JSON form is flat: the identity fields
// sit next to the attributes.
type Entity struct {
	Slug       string
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Attributes map[string]any
}

// Validate checks the entity identity.
func (e Entity) Validate() error {
	if strings.TrimSpace(e.Slug) == "" {
		return ErrSlugRequired
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (e Entity) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(e.Attributes)+4)
	for key, value := range e.Attributes {
		flat[key] = value
	}
	flat[keySlug] = e.Slug
	flat[keyVersion] = e.Version
	if !e.CreatedAt.IsZero() {
		flat[keyCreatedAt] = e.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if !e.UpdatedAt.IsZero() {
		flat[keyUpdatedAt] = e.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(flat)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Entity) UnmarshalJSON(data []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	var out Entity
	out.Slug, _ = flat[keySlug].(string)
	if version, ok := flat[keyVersion].(float64); ok {
		out.Version = int64(version)
	}
	var err error
	if out.CreatedAt, err = parseTime(flat[keyCreatedAt]); err != nil {
		return fmt.Errorf("entity %s: %w", keyCreatedAt, err)
	}
	if out.UpdatedAt, err = parseTime(flat[keyUpdatedAt]); err != nil {
		return fmt.Errorf("entity %s: %w", keyUpdatedAt, err)
	}
	out.Attributes = make(map[string]any, len(flat))
	for key, value := range flat {
		if !reserved(key) {
			out.Attributes[key] = value
		}
	}
	*e = out
	return nil
}

func parseTime(raw any) (time.Time, error) {
	value, _ := raw.(string)
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func reserved(key string) bool {
	switch key {
	case keySlug, keyVersion, keyCreatedAt, keyUpdatedAt:
		return true
	default:
		return false
	}
}

func (e Entity) clone() Entity {
	e.Attributes = cloneMap(e.Attributes)
	return e
}

// merge applies updates to the attributes. Identity fields are ignored.
func (e Entity) merge(updates map[string]any) Entity {
	e = e.clone()
	if e.Attributes == nil {
		e.Attributes = make(map[string]any, len(updates))
	}
	for key, value := range updates {
		if !reserved(key) {
			e.Attributes[key] = cloneValue(value)
		}
	}
	return e
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return cloneMap(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

func cloneEntities(in []Entity) []Entity {
	out := make([]Entity, len(in))
	for i, entity := range in {
		out[i] = entity.clone()
	}
	return out
}

func indexOf(entities []Entity, slug string) int {
	for i, entity := range entities {
		if entity.Slug == slug {
			return i
		}
	}
	return -1
}
