// Package models mirrors the types of the remote market-data GraphQL schema.
//
// Nullable fields are pointers (or nil slices), list fields are slices and
// monetary String scalars decode into decimal.Decimal. Values are plain data
// and are never mutated after decoding except by Sanitize.
package models

import (
	"bytes"
	"encoding/json"
)

// Void is the result of mutations that return nothing.
type Void struct{}

func (Void) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

func (*Void) UnmarshalJSON([]byte) error { return nil }

// JSON carries the JSON scalar untouched.
type JSON = json.RawMessage

// FieldSet is the federation join__FieldSet scalar.
type FieldSet = string

// LinkImport is the federation link__Import scalar. It is either a string or
// an object with name/as keys, so it is kept raw.
type LinkImport = json.RawMessage

// Ptr returns a pointer to v. Optional input fields use it.
func Ptr[T any](v T) *T {
	return &v
}

// Deref returns *p or the zero value when p is nil.
func Deref[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

// IsNull reports whether a JSON scalar is absent or null.
func IsNull(raw JSON) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
