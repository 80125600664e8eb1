// Package pagination normalizes list sizes and orderings for storage reads.
package pagination

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PageSizeConfig configures page size normalization.
type PageSizeConfig struct {
	Default int
	Max     int
}

// OrderByConfig configures order_by validation.
type OrderByConfig struct {
	Default string
	Allowed []string
}

// ClampPageSize applies defaults and limits for page sizes.
func ClampPageSize(value int32, cfg PageSizeConfig) int {
	pageSize := int(value)
	if pageSize <= 0 {
		pageSize = cfg.Default
	}
	if cfg.Max > 0 && pageSize > cfg.Max {
		pageSize = cfg.Max
	}
	if pageSize <= 0 {
		pageSize = 1
	}
	return pageSize
}

// ClampLimit normalizes a loosely typed limit taken from a request payload.
// Missing values use the default; numbers, numeric strings and JSON floats
// are accepted.
func ClampLimit(raw any, cfg PageSizeConfig) (int, error) {
	var value int64
	switch v := raw.(type) {
	case nil:
		value = 0
	case int:
		value = int64(v)
	case int32:
		value = int64(v)
	case int64:
		value = v
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("limit must be an integer: %v", v)
		}
		value = int64(v)
	case string:
		if strings.TrimSpace(v) == "" {
			break
		}
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("limit must be an integer: %q", v)
		}
		value = parsed
	default:
		return 0, fmt.Errorf("limit must be an integer, got %T", raw)
	}
	if value > math.MaxInt32 {
		value = math.MaxInt32
	}
	if value < 0 {
		value = 0
	}
	return ClampPageSize(int32(value), cfg), nil
}

// NormalizeOrderBy validates order_by and applies defaults. A trailing
// " desc" is allowed on any permitted field.
func NormalizeOrderBy(orderBy string, cfg OrderByConfig) (string, error) {
	orderBy = strings.TrimSpace(orderBy)
	if orderBy == "" {
		return cfg.Default, nil
	}
	field := orderBy
	if trimmed, ok := strings.CutSuffix(strings.ToLower(orderBy), " desc"); ok {
		field = strings.TrimSpace(trimmed)
	}
	for _, allowed := range cfg.Allowed {
		if field == allowed {
			return orderBy, nil
		}
	}
	return "", fmt.Errorf("invalid order_by: %s", orderBy)
}
