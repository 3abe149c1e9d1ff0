// Package ir provides the typed value model shared by the query compiler,
// the stores and the validation layer.
//
// Raw query parameters arrive as strings. Once a caster or an operator has
// interpreted them they become IRValue instances, which keep their type
// across every backend (in-memory matching, SQLite parameters, BSON).
//
// This package contains value types and pure helpers only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - IRValue is sealed: only the types in this package implement it
//   - Object keys are ordered by UTF-16 code units wherever order is observable
//   - Canonical JSON (MarshalCanonical) is the only encoding used for fingerprints
package ir
