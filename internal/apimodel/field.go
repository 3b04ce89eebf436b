// Package apimodel holds the request and response bodies the console exchanges
// with OpenBao. Every optional member is a Field so that a key missing from the
// wire, a key set to null, and a key set to a value stay distinguishable.
package apimodel

import (
	"bytes"
	"encoding/json"

	"k8s.io/utils/ptr"
)

type fieldState uint8

const (
	stateAbsent fieldState = iota
	stateNull
	statePresent
)

// Field is a three-valued optional: absent, null, or present with a value.
// The zero Field is absent.
type Field[T any] struct {
	state fieldState
	value T
}

// Absent returns an unset field.
func Absent[T any]() Field[T] { return Field[T]{} }

// Null returns a field explicitly set to null.
func Null[T any]() Field[T] { return Field[T]{state: stateNull} }

// Value returns a field holding v.
func Value[T any](v T) Field[T] { return Field[T]{state: statePresent, value: v} }

// FromPtr maps nil to Null and a non-nil pointer to its value.
func FromPtr[T any](p *T) Field[T] {
	if p == nil {
		return Null[T]()
	}
	return Value(*p)
}

func (f Field[T]) IsAbsent() bool  { return f.state == stateAbsent }
func (f Field[T]) IsNull() bool    { return f.state == stateNull }
func (f Field[T]) IsPresent() bool { return f.state == statePresent }

// IsZero reports absence; it drives the omitzero struct tag.
func (f Field[T]) IsZero() bool { return f.IsAbsent() }

// Get returns the value and whether one is present.
func (f Field[T]) Get() (T, bool) {
	return f.value, f.state == statePresent
}

// Ptr returns a pointer to the value, or nil when absent or null.
func (f Field[T]) Ptr() *T {
	if f.state != statePresent {
		return nil
	}
	return ptr.To(f.value)
}

func (f Field[T]) String() string {
	switch f.state {
	case stateNull:
		return "null"
	case statePresent:
		b, err := json.Marshal(f.value)
		if err != nil {
			return "<invalid>"
		}
		return string(b)
	default:
		return "<absent>"
	}
}

// MarshalJSON writes null for both null and absent fields; struct members
// tagged omitzero never reach here while absent.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if f.state != statePresent {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}

// UnmarshalJSON is only called for keys present in the document.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = Null[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Value(v)
	return nil
}
