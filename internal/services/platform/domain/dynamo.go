package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/captify/captify/internal/platform/errors"
	"github.com/captify/captify/internal/services/platform/filter"
	"github.com/captify/captify/internal/services/platform/storage"
	"github.com/captify/captify/internal/services/shared/apiclient"
)

// Generic table operations. Items are JSON objects keyed by their "id".
const (
	OpGet    = "get"
	OpScan   = "scan"
	OpQuery  = "query"
	OpPut    = "put"
	OpDelete = "delete"
)

type itemEnvelope struct {
	Item json.RawMessage `json:"Item"`
}

type itemsEnvelope struct {
	Items []json.RawMessage `json:"Items"`
	Count int               `json:"Count"`
}

type deleteEnvelope struct {
	Deleted bool `json:"Deleted"`
}

func (s *Service) runDynamo(ctx context.Context, req apiclient.Request) (any, error) {
	table := strings.TrimSpace(req.Table)
	if table == "" {
		return nil, apperrors.New(apperrors.CodeUnsupportedTable, "table is required for "+req.String())
	}

	switch req.Operation {
	case OpGet:
		key, err := requiredString(req.Data, "key")
		if err != nil {
			return nil, err
		}
		item, found, err := s.store.Get(ctx, table, key)
		if err != nil {
			return nil, storageFault("get item", err)
		}
		if !found {
			return nil, notFound(table, key)
		}
		return itemEnvelope{Item: item.Payload}, nil

	case OpScan, OpQuery:
		q := storage.Query{Table: table}
		var err error
		if q.Limit, err = s.limit(req.Data); err != nil {
			return nil, err
		}
		if q.OrderBy, err = orderBy(req.Data); err != nil {
			return nil, err
		}
		if req.Operation == OpQuery {
			expr, _ := req.Data["filter"].(string)
			if q.Where, err = filter.Parse(expr); err != nil {
				return nil, apperrors.Wrap(apperrors.CodeInvalidFilter, err.Error(), err)
			}
		}
		items, err := s.store.Query(ctx, q)
		if err != nil {
			return nil, storageFault("query items", err)
		}
		out := itemsEnvelope{Items: make([]json.RawMessage, 0, len(items)), Count: len(items)}
		for _, item := range items {
			out.Items = append(out.Items, item.Payload)
		}
		return out, nil

	case OpPut:
		raw, ok := req.Data["item"].(map[string]any)
		if !ok {
			return nil, apperrors.New(apperrors.CodeInvalidArgument, "item is required")
		}
		key, err := requiredString(raw, "id")
		if err != nil {
			return nil, err
		}
		owner, _ := req.Data["userId"].(string)
		if owner == "" {
			owner, _ = raw["ownerId"].(string)
		}
		payload, err := json.Marshal(raw)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInvalidArgument, fmt.Sprintf("encode item: %v", err), err)
		}
		stored, err := s.store.Put(ctx, storage.Item{Table: table, Key: key, OwnerID: owner, Payload: payload})
		if err != nil {
			return nil, storageFault("put item", err)
		}
		s.logger.Debug("item stored", zap.String("table", table), zap.String("key", key), zap.Int64("version", stored.Version))
		return itemEnvelope{Item: stored.Payload}, nil

	case OpDelete:
		key, err := requiredString(req.Data, "key")
		if err != nil {
			return nil, err
		}
		deleted, err := s.store.Delete(ctx, table, key)
		if err != nil {
			return nil, storageFault("delete item", err)
		}
		return deleteEnvelope{Deleted: deleted}, nil

	default:
		return nil, unsupportedOperation(req)
	}
}

func requiredString(data map[string]any, field string) (string, error) {
	value, _ := data[field].(string)
	value = strings.TrimSpace(value)
	if value == "" {
		return "", apperrors.WithMetadata(apperrors.CodeInvalidArgument,
			field+" is required",
			map[string]string{"field": field})
	}
	return value, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
