package caster

import (
	"fmt"
	"maps"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/docquery/internal/ir"
)

// Func converts a caster argument into a typed value. It must be pure and
// total: either a value or an error, never a silent default.
type Func func(arg string) (ir.IRValue, error)

// invocation matches name(argument). The argument may contain anything,
// including parentheses; only the outermost pair delimits it.
var invocation = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\((.*)\)$`)

// Split parses a name(argument) invocation.
func Split(raw string) (name, arg string, ok bool) {
	m := invocation.FindStringSubmatch(raw)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// Registry maps caster names to functions.
//
// Register is meant for setup; lookups are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	casters map[string]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{casters: make(map[string]Func)}
}

// Default returns a new registry holding the built-in casters.
func Default() *Registry {
	r := NewRegistry()
	for name, fn := range builtins {
		r.casters[name] = fn
	}
	return r
}

// Clone returns an independent copy that can be extended without
// affecting r.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &Registry{casters: maps.Clone(r.casters)}
}

// Register adds or replaces a caster.
func (r *Registry) Register(name string, fn Func) error {
	if !invocation.MatchString(name + "()") {
		return fmt.Errorf("invalid caster name %q", name)
	}
	if fn == nil {
		return fmt.Errorf("caster %q: nil function", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.casters[name] = fn
	return nil
}

// Lookup returns the caster registered under name.
func (r *Registry) Lookup(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.casters[name]
	return fn, ok
}

// Names returns the registered caster names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.casters))
}

// Resolve applies the caster named by a name(argument) raw value.
//
// ok is false when raw is not an invocation of a registered caster; the
// caller then treats raw as a literal. A caster failure is returned as an
// error naming the caster.
func (r *Registry) Resolve(raw string) (v ir.IRValue, ok bool, err error) {
	name, arg, isCall := Split(raw)
	if !isCall {
		return nil, false, nil
	}
	fn, found := r.Lookup(name)
	if !found {
		return nil, false, nil
	}
	v, err = fn(arg)
	if err != nil {
		return nil, true, fmt.Errorf("caster %s(%s): %w", name, arg, err)
	}
	return v, true, nil
}

var builtins = map[string]Func{
	"lowercase": Lowercase,
	"uppercase": Uppercase,
	"int":       Int,
	"float":     Float,
	"bool":      Bool,
	"date":      Date,
	"string":    String,
	"starts":    Starts,
	"ends":      Ends,
	"contains":  Contains,
}

// Lowercase applies Unicode case folding.
func Lowercase(arg string) (ir.IRValue, error) {
	// Casers keep state between calls and must not be shared.
	return ir.IRString(cases.Fold().String(arg)), nil
}

// Uppercase converts to upper case using language-neutral rules.
func Uppercase(arg string) (ir.IRValue, error) {
	return ir.IRString(cases.Upper(language.Und).String(arg)), nil
}

// Int parses a base-10 integer.
func Int(arg string) (ir.IRValue, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("not a base-10 integer: %q", arg)
	}
	return ir.IRInt(n), nil
}

// Float parses a finite decimal number.
func Float(arg string) (ir.IRValue, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(arg), 64)
	if err != nil {
		return nil, fmt.Errorf("not a number: %q", arg)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("not a finite number: %q", arg)
	}
	return ir.IRFloat(f), nil
}

// Bool parses true/false (and the other strconv.ParseBool spellings).
func Bool(arg string) (ir.IRValue, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(arg))
	if err != nil {
		return nil, fmt.Errorf("not a boolean: %q", arg)
	}
	return ir.IRBool(b), nil
}

// dateLayouts are tried in order.
var dateLayouts = []string{time.RFC3339Nano, time.DateOnly}

// Date parses an RFC 3339 timestamp or a YYYY-MM-DD date (UTC midnight).
func Date(arg string) (ir.IRValue, error) {
	s := strings.TrimSpace(arg)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return ir.NewIRTime(t), nil
		}
	}
	return nil, fmt.Errorf("not a date: %q", arg)
}

// String returns the argument unchanged. Useful to force a literal that
// would otherwise be read as an operator or another caster.
func String(arg string) (ir.IRValue, error) {
	return ir.IRString(arg), nil
}

// Starts matches values beginning with arg, case-insensitively.
func Starts(arg string) (ir.IRValue, error) {
	return ir.IRRegex{Pattern: "^" + regexp.QuoteMeta(arg), Flags: "i"}, nil
}

// Ends matches values ending with arg, case-insensitively.
func Ends(arg string) (ir.IRValue, error) {
	return ir.IRRegex{Pattern: regexp.QuoteMeta(arg) + "$", Flags: "i"}, nil
}

// Contains matches values containing arg, case-insensitively.
func Contains(arg string) (ir.IRValue, error) {
	return ir.IRRegex{Pattern: regexp.QuoteMeta(arg), Flags: "i"}, nil
}
