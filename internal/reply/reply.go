// Package reply models command replies as values. Wire framing is the
// responsibility of the serving layer; commands build these trees and tests
// assert on them directly.
package reply

import "github.com/kailas-cloud/shardsearch/internal/doc"

// Value is a reply node: one of SimpleString, BulkString, Long, Double,
// Null, Error, Array, Map or Set.
type Value any

// SimpleString is a status reply (+OK).
type SimpleString string

// BulkString is a binary-safe string reply.
type BulkString string

// Long is an integer reply.
type Long int64

// Double is a floating point reply.
type Double float64

// Null is the null reply.
type Null struct{}

// Error is an error reply with an optional kind classification.
type Error struct {
	Message string
	Kind    string
}

// Array is an ordered multi-value reply.
type Array []Value

// KV is one entry of a Map reply.
type KV struct {
	Key Value
	Val Value
}

// Map is an ordered key-value reply.
type Map []KV

// Set is an unordered-collection reply (wire-level set marker).
type Set []Value

// Error kinds.
const (
	KindSyntax = "syntax"
	KindSearch = "search"
)

// OK is the +OK status.
func OK() Value { return SimpleString("OK") }

// Err builds a plain error reply.
func Err(msg string) Value { return Error{Message: msg} }

// SyntaxErr builds a syntax-classified error reply.
func SyntaxErr(msg string) Value { return Error{Message: msg, Kind: KindSyntax} }

// SearchErr builds a search-classified error reply.
func SearchErr(msg string) Value { return Error{Message: msg, Kind: KindSearch} }

// Sortable converts an evaluator value into its reply form.
func Sortable(v doc.Value) Value {
	switch tv := v.(type) {
	case nil:
		return Null{}
	case float64:
		return Double(tv)
	case string:
		return BulkString(tv)
	}
	return Null{}
}

// IsError reports whether a value is an error reply.
func IsError(v Value) bool {
	_, ok := v.(Error)
	return ok
}
