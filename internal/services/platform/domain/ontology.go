package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	apperrors "github.com/captify/captify/internal/platform/errors"
	"github.com/captify/captify/internal/services/platform/storage"
	"github.com/captify/captify/internal/services/shared/apiclient"
)

// Ontology operations over the objects, links and actions collections.
const (
	OpList   = "list"
	OpCreate = "create"
	OpUpdate = "update"
)

// Ontology collection tables.
const (
	TableObjects = "objects"
	TableLinks   = "links"
	TableActions = "actions"
)

// Entity fields owned by the server. Client payloads cannot overwrite them.
const (
	fieldSlug      = "slug"
	fieldVersion   = "version"
	fieldCreatedAt = "createdAt"
	fieldUpdatedAt = "updatedAt"
)

var reservedFields = map[string]bool{
	fieldSlug:      true,
	fieldVersion:   true,
	fieldCreatedAt: true,
	fieldUpdatedAt: true,
}

type entityEnvelope struct {
	Item map[string]any `json:"Item"`
}

type entitiesEnvelope struct {
	Items []map[string]any `json:"Items"`
}

type slugEnvelope struct {
	Slug string `json:"slug"`
}

func ontologyTable(table string) bool {
	switch table {
	case TableObjects, TableLinks, TableActions:
		return true
	default:
		return false
	}
}

func (s *Service) runOntology(ctx context.Context, req apiclient.Request) (any, error) {
	table := strings.TrimSpace(req.Table)
	if !ontologyTable(table) {
		return nil, apperrors.WithMetadata(apperrors.CodeUnsupportedTable,
			fmt.Sprintf("unsupported ontology table %q", req.Table),
			map[string]string{"table": req.Table})
	}

	switch req.Operation {
	case OpList:
		items, err := s.store.Query(ctx, storage.Query{Table: table})
		if err != nil {
			return nil, storageFault("list entities", err)
		}
		out := entitiesEnvelope{Items: make([]map[string]any, 0, len(items))}
		for _, item := range items {
			entity, err := entityFromItem(item)
			if err != nil {
				return nil, storageFault("decode entity", err)
			}
			out.Items = append(out.Items, entity)
		}
		return out, nil

	case OpCreate:
		raw, ok := req.Data["item"].(map[string]any)
		if !ok {
			return nil, apperrors.New(apperrors.CodeInvalidArgument, "item is required")
		}
		return s.createEntity(ctx, table, raw)

	case OpUpdate:
		slug, err := requiredString(req.Data, fieldSlug)
		if err != nil {
			return nil, err
		}
		updates, ok := req.Data["updates"].(map[string]any)
		if !ok {
			return nil, apperrors.New(apperrors.CodeInvalidArgument, "updates are required")
		}
		item, err := s.store.Mutate(ctx, table, slug, func(current storage.Item) (storage.Item, error) {
			attrs, err := decodeAttributes(current.Payload)
			if err != nil {
				return storage.Item{}, err
			}
			for key, value := range updates {
				if reservedFields[key] {
					continue
				}
				attrs[key] = value
			}
			current.Payload, err = json.Marshal(attrs)
			return current, err
		})
		if isNotFound(err) {
			return nil, notFound(table, slug)
		}
		if err != nil {
			return nil, storageFault("update entity", err)
		}
		entity, err := entityFromItem(item)
		if err != nil {
			return nil, storageFault("decode entity", err)
		}
		return entityEnvelope{Item: entity}, nil

	case OpDelete:
		slug, err := requiredString(req.Data, fieldSlug)
		if err != nil {
			return nil, err
		}
		deleted, err := s.store.Delete(ctx, table, slug)
		if err != nil {
			return nil, storageFault("delete entity", err)
		}
		if !deleted {
			return nil, notFound(table, slug)
		}
		s.logger.Info("entity deleted", zap.String("table", table), zap.String("slug", slug))
		return slugEnvelope{Slug: slug}, nil

	default:
		return nil, unsupportedOperation(req)
	}
}

// createEntity stores a new entity. An explicit slug must be free. A slug
// derived from the name gets an id suffix when taken, and entities without
// either get a generated id.
func (s *Service) createEntity(ctx context.Context, table string, raw map[string]any) (any, error) {
	attrs := make(map[string]any, len(raw))
	for key, value := range raw {
		if !reservedFields[key] {
			attrs[key] = value
		}
	}
	payload, err := json.Marshal(attrs)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidArgument, fmt.Sprintf("encode entity: %v", err), err)
	}

	explicit, _ := raw[fieldSlug].(string)
	explicit = strings.TrimSpace(explicit)
	slug := explicit
	if slug == "" {
		name, _ := raw["name"].(string)
		slug = Slugify(name)
	}
	if slug == "" {
		if slug, err = s.newID(); err != nil {
			return nil, fmt.Errorf("generate slug: %w", err)
		}
	}

	item, err := s.store.Create(ctx, storage.Item{Table: table, Key: slug, Payload: payload})
	if errors.Is(err, storage.ErrAlreadyExists) && explicit == "" {
		suffix, idErr := s.newID()
		if idErr != nil {
			return nil, fmt.Errorf("generate slug: %w", idErr)
		}
		suffix = suffix[:min(8, len(suffix))]
		item, err = s.store.Create(ctx, storage.Item{Table: table, Key: slug + "-" + suffix, Payload: payload})
	}
	if errors.Is(err, storage.ErrAlreadyExists) {
		return nil, apperrors.WithMetadata(apperrors.CodeAlreadyExists,
			fmt.Sprintf("%s %q already exists", table, slug),
			map[string]string{"table": table, "slug": slug})
	}
	if err != nil {
		return nil, storageFault("create entity", err)
	}

	entity, err := entityFromItem(item)
	if err != nil {
		return nil, storageFault("decode entity", err)
	}
	s.logger.Info("entity created", zap.String("table", table), zap.String("slug", item.Key))
	return entityEnvelope{Item: entity}, nil
}

func decodeAttributes(payload []byte) (map[string]any, error) {
	attrs := map[string]any{}
	if len(payload) == 0 {
		return attrs, nil
	}
	if err := json.Unmarshal(payload, &attrs); err != nil {
		return nil, err
	}
	if attrs == nil {
		attrs = map[string]any{}
	}
	return attrs, nil
}

func entityFromItem(item storage.Item) (map[string]any, error) {
	entity, err := decodeAttributes(item.Payload)
	if err != nil {
		return nil, err
	}
	entity[fieldSlug] = item.Key
	entity[fieldVersion] = item.Version
	entity[fieldCreatedAt] = item.CreatedAt.UTC().Format(time.RFC3339Nano)
	entity[fieldUpdatedAt] = item.UpdatedAt.UTC().Format(time.RFC3339Nano)
	return entity, nil
}

// Slugify folds diacritics, lowercases name and joins its letter and digit
// runs with dashes. Letters without a base form, such as Cyrillic, are kept.
func Slugify(name string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(folder, name); err == nil {
		name = folded
	}
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}
