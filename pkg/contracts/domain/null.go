package domain

import (
	"encoding/json"
)

// Null wraps a value that may be missing in the source data.
type Null[T any] struct {
	Value T
	Valid bool
}

// Some returns a present value.
func Some[T any](v T) Null[T] {
	return Null[T]{Value: v, Valid: true}
}

// None returns a missing value.
func None[T any]() Null[T] {
	return Null[T]{}
}

// IsNull reports whether the value is missing.
func (n Null[T]) IsNull() bool {
	return !n.Valid
}

// Or returns the value, or fallback when missing.
func (n Null[T]) Or(fallback T) T {
	if !n.Valid {
		return fallback
	}
	return n.Value
}

// MarshalJSON encodes a missing value as JSON null.
func (n Null[T]) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// UnmarshalJSON decodes JSON null as a missing value.
func (n *Null[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = Null[T]{}
		return nil
	}
	if err := json.Unmarshal(data, &n.Value); err != nil {
		return err
	}
	n.Valid = true
	return nil
}
