package queryir

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind categorizes errors raised before any store call is made.
type ErrorKind string

const (
	// KindParser indicates input that cannot be compiled: malformed filter
	// blobs, unparsable numbers, failing casters, excessive populate nesting.
	KindParser ErrorKind = "queryParserError"

	// KindUnsupportedType indicates an unrecognized qType.
	KindUnsupportedType ErrorKind = "notSupportedQueryType"

	// KindUnsupportedTree indicates a tree qType on a model without a
	// hierarchical builder.
	KindUnsupportedTree ErrorKind = "notSupportedTreeModel"

	// KindValidation indicates the compiled query failed the caller's schema.
	KindValidation ErrorKind = "queryValidationError"
)

// Violation is a single schema failure. Property is a root-relative dotted
// path such as "@.sort.createdAt".
type Violation struct {
	Property string `json:"property"`
	Message  string `json:"message"`
}

// Error is the structured error returned by the compiler and dispatcher.
//
// Store failures are never wrapped in an Error; they propagate as returned
// by the driver.
type Error struct {
	// Kind identifies the error category.
	Kind ErrorKind

	// Message is a human-readable description.
	Message string

	// Field names the offending raw key when one is known.
	Field string

	// Violations is set for KindValidation, ordered by property.
	Violations []Violation

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	if e.Field != "" {
		fmt.Fprintf(&b, "%s: ", e.Field)
	}
	b.WriteString(e.Message)
	if len(e.Violations) > 0 {
		parts := make([]string, len(e.Violations))
		for i, v := range e.Violations {
			parts[i] = v.Property + " " + v.Message
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, "; "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// MarshalJSON renders the error in the caller-facing form
//
//	{"type": "queryValidationError", "message": [{"property": ..., "message": ...}]}
//
// For every other kind message is a string.
func (e *Error) MarshalJSON() ([]byte, error) {
	var message any = e.Message
	if e.Kind == KindValidation {
		list := e.Violations
		if list == nil {
			list = []Violation{}
		}
		message = list
	} else if e.Err != nil {
		message = e.Message + ": " + e.Err.Error()
	}
	return json.Marshal(struct {
		Type    ErrorKind `json:"type"`
		Field   string    `json:"field,omitempty"`
		Message any       `json:"message"`
	}{Type: e.Kind, Field: e.Field, Message: message})
}

// ParserError returns a KindParser error for a raw key.
func ParserError(field, format string, args ...any) *Error {
	return &Error{Kind: KindParser, Field: field, Message: fmt.Sprintf(format, args...)}
}

// WrapParserError returns a KindParser error wrapping cause.
func WrapParserError(field string, cause error, format string, args ...any) *Error {
	return &Error{Kind: KindParser, Field: field, Message: fmt.Sprintf(format, args...), Err: cause}
}

// UnsupportedTypeError reports an unrecognized qType.
func UnsupportedTypeError(t QueryType) *Error {
	return &Error{Kind: KindUnsupportedType, Field: KeyQType, Message: fmt.Sprintf("query type %q is not supported", t)}
}

// UnsupportedTreeError reports a tree qType on a model without a builder.
func UnsupportedTreeError(model string, t QueryType) *Error {
	return &Error{Kind: KindUnsupportedTree, Field: KeyQType, Message: fmt.Sprintf("model %q does not support %s queries", model, t)}
}

// ValidationError reports schema violations.
func ValidationError(violations []Violation) *Error {
	return &Error{Kind: KindValidation, Message: "query failed schema validation", Violations: violations}
}

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind == kind
	}
	return false
}

// IsParserError returns true if the error is a queryParserError.
func IsParserError(err error) bool {
	return IsKind(err, KindParser)
}

// IsValidationError returns true if the error is a queryValidationError.
func IsValidationError(err error) bool {
	return IsKind(err, KindValidation)
}
