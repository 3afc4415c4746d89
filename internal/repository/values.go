package repository

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/simp-lee/attendance/internal/domain"
	"gorm.io/gorm/schema"
)

var (
	numericListPattern = regexp.MustCompile(`^\d+(,\d+)*$`)
	errUnsupported     = errors.New("unsupported value type")
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// toInt64 converts integral Go values, integral JSON numbers, and digit
// strings to int64.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), n <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	case domain.Lifecycle:
		return int64(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || n > math.MaxInt64 || n < math.MinInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return toInt64(float64(n))
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return parsed, err == nil
	}
	if i, ok := toInt64(v); ok && (i == 0 || i == 1) {
		return i == 1, true
	}
	return false, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// coerce converts a payload value to the Go type stored for a column of type t.
func coerce(t schema.DataType, v any) (any, error) {
	switch t {
	case schema.Int:
		if b, ok := v.(bool); ok {
			return boolToInt(b), nil
		}
		if i, ok := toInt64(v); ok {
			return i, nil
		}
		return nil, fmt.Errorf("expected integer, got %T", v)
	case schema.Uint:
		if i, ok := toInt64(v); ok && i >= 0 {
			return i, nil
		}
		return nil, fmt.Errorf("expected non-negative integer, got %v", v)
	case schema.Float:
		if f, ok := toFloat64(v); ok {
			return f, nil
		}
		return nil, fmt.Errorf("expected number, got %T", v)
	case schema.Bool:
		if b, ok := toBool(v); ok {
			return b, nil
		}
		return nil, fmt.Errorf("expected boolean, got %v", v)
	case schema.String:
		switch s := v.(type) {
		case string:
			return s, nil
		case float64:
			return strconv.FormatFloat(s, 'f', -1, 64), nil
		case json.Number:
			return s.String(), nil
		}
		if i, ok := toInt64(v); ok {
			return strconv.FormatInt(i, 10), nil
		}
		return nil, fmt.Errorf("expected string, got %T", v)
	case schema.Time:
		if tm, ok := toTime(v); ok {
			return tm, nil
		}
		return nil, fmt.Errorf("expected timestamp, got %v", v)
	case schema.Bytes:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			decoded, err := base64.StdEncoding.DecodeString(b)
			if err != nil {
				return nil, fmt.Errorf("expected base64: %w", err)
			}
			return decoded, nil
		}
		return nil, fmt.Errorf("expected bytes, got %T", v)
	}
	return nil, errUnsupported
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// filterScalar converts a non-string filter value for comparison against a
// column of type t. ok is false when the value cannot be coerced.
func filterScalar(t schema.DataType, v any) (any, bool) {
	switch v.(type) {
	case nil, map[string]any, []any:
		return nil, false
	}
	switch t {
	case schema.Int, schema.Uint:
		if b, ok := v.(bool); ok {
			return boolToInt(b), true
		}
		return toInt64(v)
	case schema.Float:
		return toFloat64(v)
	case schema.Bool:
		return toBool(v)
	case schema.String:
		if s, ok := v.(string); ok {
			return s, true
		}
		if _, isBool := v.(bool); isBool {
			return nil, false
		}
		out, err := coerce(schema.String, v)
		return out, err == nil
	case schema.Time:
		return toTime(v)
	}
	return nil, false
}

// filterList flattens supported slice types into []any.
func filterList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		return toAnySlice(l), true
	case []int:
		return toAnySlice(l), true
	case []int64:
		return toAnySlice(l), true
	case []uint:
		return toAnySlice(l), true
	case []float64:
		return toAnySlice(l), true
	}
	return nil, false
}

func toAnySlice[E any](in []E) []any {
	out := make([]any, len(in))
	for i, e := range in {
		out[i] = e
	}
	return out
}
