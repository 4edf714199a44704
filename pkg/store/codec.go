package store

import (
	"encoding/json"
	"fmt"
)

// Codec converts symbols to and from the text stored in the database.
// Encode must be deterministic: equal symbols must produce equal text.
type Codec[T any] interface {
	Encode(T) (string, error)
	Decode(string) (T, error)
}

// StringCodec stores string symbols as they are.
type StringCodec struct{}

// Encode returns s.
func (StringCodec) Encode(s string) (string, error) { return s, nil }

// Decode returns s.
func (StringCodec) Decode(s string) (string, error) { return s, nil }

// JSONCodec stores symbols as their JSON encoding.
type JSONCodec[T any] struct{}

// Encode marshals v to JSON.
func (JSONCodec[T]) Encode(v T) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("could not encode symbol: %w", err)
	}
	return string(b), nil
}

// Decode unmarshals s from JSON.
func (JSONCodec[T]) Decode(s string) (T, error) {
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return v, fmt.Errorf("could not decode symbol %q: %w", s, err)
	}
	return v, nil
}
