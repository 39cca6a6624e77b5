package record

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"constellation"
	"constellation/document"
)

// Attributes is the loosely typed input accepted by Fill, as it arrives
// from a form or a decoded request body.
type Attributes map[string]any

// setter applies one attribute value to a record.
type setter[T any] func(rec T, value any) error

// fill walks attrs in sorted key order and applies the matching setter.
// Keys without a setter go to fallback, which may be nil. Every bad value is
// reported; good values are still applied.
func fill[T any](rec T, attrs Attributes, setters map[string]setter[T], fallback func(rec T, key string, value any) error) error {
	verr := &constellation.ValidationError{}
	for _, key := range constellation.Criteria(attrs).Fields() {
		value := attrs[key]
		if set, ok := setters[key]; ok {
			if err := set(rec, value); err != nil {
				verr.Add("invalid_"+key, err.Error())
			}
			continue
		}
		if fallback != nil {
			if err := fallback(rec, key, value); err != nil {
				verr.Add("invalid_"+key, err.Error())
			}
		}
	}
	return verr.Err()
}

func asString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(t), nil
	case fmt.Stringer:
		return t.String(), nil
	case document.Value:
		if t.Kind() == document.KindList || t.Kind() == document.KindMap {
			break
		}
		return t.Text(), nil
	}
	return "", fmt.Errorf("expected text, got %T", v)
}

// textField trims surrounding whitespace and collapses line breaks, the way
// single-line form input is cleaned.
func textField(v any) (string, error) {
	s, err := asString(v)
	if err != nil {
		return "", err
	}
	s = strings.Join(strings.Fields(s), " ")
	return s, nil
}

// textArea trims surrounding whitespace but keeps line breaks.
func textArea(v any) (string, error) {
	s, err := asString(v)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

func asInt64(v any) (int64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint32:
		return int64(t), nil
	case float32:
		return int64(t), nil
	case float64:
		return int64(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		return int64(f), err
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, nil
		}
		return strconv.ParseInt(s, 10, 64)
	case document.Value:
		if i, ok := t.AsInt(); ok {
			return i, nil
		}
	}
	return 0, fmt.Errorf("expected integer, got %T", v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
