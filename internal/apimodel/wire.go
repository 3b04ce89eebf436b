package apimodel

import (
	"encoding/json"
	"fmt"
	"math"
)

// Wire is the snake_case map form of a body as decoded from, or sent to, OpenBao.
type Wire = map[string]any

type converter[T any] func(any) (T, bool)

// readField maps one wire key. A value of the wrong JSON type cannot be held
// by Field[T], so the field stays absent and the mismatch is reported.
func readField[T any](w Wire, key string, conv converter[T]) (Field[T], error) {
	raw, ok := w[key]
	if !ok {
		return Absent[T](), nil
	}
	if raw == nil {
		return Null[T](), nil
	}
	v, ok := conv(raw)
	if !ok {
		var zero T
		return Absent[T](), fmt.Errorf("field %q: cannot use %T as %T", key, raw, zero)
	}
	return Value(v), nil
}

func writeField[T any](w Wire, key string, f Field[T]) {
	switch {
	case f.IsNull():
		w[key] = nil
	case f.IsPresent():
		w[key] = f.value
	}
}

func asString(raw any) (string, bool) {
	s, ok := raw.(string)
	return s, ok
}

func asInt64(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}
