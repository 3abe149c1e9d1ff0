package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf16"
)

// IRValue is a sealed interface representing typed predicate values.
// Only IRNull, IRString, IRInt, IRFloat, IRBool, IRTime, IRRegex, IRArray
// and IRObject implement it.
type IRValue interface {
	irValue() // Sealed - only these types implement it
}

// IRNull represents a JSON null value.
// Using an explicit type ensures all IRValues satisfy the sealed interface.
type IRNull struct{}

func (IRNull) irValue() {}

// MarshalJSON implements json.Marshaler for IRNull.
func (IRNull) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// IRString represents a string value.
type IRString string

func (IRString) irValue() {}

// IRInt represents an integer value. Always int64.
type IRInt int64

func (IRInt) irValue() {}

// IRFloat represents a floating point value.
// Produced only by the float caster or by non-integral JSON numbers.
type IRFloat float64

func (IRFloat) irValue() {}

// IRBool represents a boolean value.
type IRBool bool

func (IRBool) irValue() {}

// IRTime represents an instant. Stored in UTC.
type IRTime time.Time

func (IRTime) irValue() {}

// Time returns the value as a time.Time.
func (t IRTime) Time() time.Time {
	return time.Time(t)
}

// MarshalJSON encodes the instant as an RFC 3339 string.
func (t IRTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).UTC().Format(time.RFC3339Nano))
}

// IRRegex represents a regular expression predicate value.
// Flags use the /pattern/flags letters: i, m, s.
type IRRegex struct {
	Pattern string
	Flags   string
}

func (IRRegex) irValue() {}

// String renders the regex in /pattern/flags form.
func (r IRRegex) String() string {
	return "/" + r.Pattern + "/" + r.Flags
}

// MarshalJSON encodes the regex in /pattern/flags form.
func (r IRRegex) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// Compile returns the Go regexp equivalent, translating flags into an
// inline group.
func (r IRRegex) Compile() (*regexp.Regexp, error) {
	if r.Flags == "" {
		return regexp.Compile(r.Pattern)
	}
	return regexp.Compile("(?" + r.Flags + ")" + r.Pattern)
}

// ValidRegexFlags lists the accepted /pattern/flags letters.
const ValidRegexFlags = "ims"

// NewIRRegex validates flags and pattern and returns an IRRegex.
func NewIRRegex(pattern, flags string) (IRRegex, error) {
	for _, f := range flags {
		if !strings.ContainsRune(ValidRegexFlags, f) {
			return IRRegex{}, fmt.Errorf("unsupported regex flag %q", f)
		}
	}
	r := IRRegex{Pattern: pattern, Flags: flags}
	if _, err := r.Compile(); err != nil {
		return IRRegex{}, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}
	return r, nil
}

// IRArray represents an array of IRValue elements.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject represents a map of string keys to IRValue elements.
// Use SortedKeys() for deterministic iteration.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// NewIRString creates an IRString value.
func NewIRString(s string) IRString {
	return IRString(s)
}

// NewIRTime creates an IRTime value normalized to UTC.
func NewIRTime(t time.Time) IRTime {
	return IRTime(t.UTC())
}

// NewIRArray creates an IRArray from values.
func NewIRArray(vals ...IRValue) IRArray {
	return IRArray(vals)
}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
// Go's sort.Strings uses UTF-8 bytes, which orders some keys differently.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, CompareKeys)
	return keys
}

// CompareKeys compares strings by UTF-16 code units as required by RFC 8785.
func CompareKeys(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// MarshalJSON implements json.Marshaler for IRObject with sorted keys.
// This is not canonical marshaling; use MarshalCanonical for fingerprints.
func (obj IRObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalIRValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalIRValue marshals an IRValue to JSON bytes.
func MarshalIRValue(v IRValue) ([]byte, error) {
	switch val := v.(type) {
	case nil, IRNull:
		return []byte("null"), nil
	case IRString:
		return json.Marshal(string(val))
	case IRInt:
		return json.Marshal(int64(val))
	case IRFloat:
		return json.Marshal(float64(val))
	case IRBool:
		return json.Marshal(bool(val))
	case IRTime:
		return val.MarshalJSON()
	case IRRegex:
		return val.MarshalJSON()
	case IRArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			elemBytes, err := MarshalIRValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			buf.Write(elemBytes)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case IRObject:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown IRValue type: %T", v)
	}
}

// TypeName returns a short lowercase name for the value's type, used in
// error messages and schema documents.
func TypeName(v IRValue) string {
	switch v.(type) {
	case nil, IRNull:
		return "null"
	case IRString:
		return "string"
	case IRInt:
		return "int"
	case IRFloat:
		return "float"
	case IRBool:
		return "bool"
	case IRTime:
		return "time"
	case IRRegex:
		return "regex"
	case IRArray:
		return "array"
	case IRObject:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
