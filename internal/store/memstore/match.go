package memstore

import (
	"fmt"
	"regexp"

	"github.com/roach88/docquery/internal/ir"
	"github.com/roach88/docquery/internal/queryir"
	"github.com/roach88/docquery/internal/store"
)

// matcher evaluates predicates against documents. Compiled regexes are
// cached for the lifetime of one read.
type matcher struct {
	regexes map[ir.IRRegex]*regexp.Regexp
}

func newMatcher() *matcher {
	return &matcher{regexes: make(map[ir.IRRegex]*regexp.Regexp)}
}

// match reports whether d satisfies p. Semantics follow document stores:
// a comparison against an array field matches when any element does, and
// a missing field equals null.
func (m *matcher) match(d store.Document, p queryir.Predicate) (bool, error) {
	switch pred := p.(type) {
	case nil:
		return true, nil
	case queryir.And:
		return m.all(d, pred.Predicates)
	case *queryir.And:
		return m.all(d, pred.Predicates)
	case queryir.Or:
		return m.any(d, pred.Predicates)
	case *queryir.Or:
		return m.any(d, pred.Predicates)
	case queryir.Nor:
		ok, err := m.any(d, pred.Predicates)
		return !ok, err
	case *queryir.Nor:
		ok, err := m.any(d, pred.Predicates)
		return !ok, err
	case queryir.Compare:
		return m.compare(d, pred)
	case *queryir.Compare:
		return m.compare(d, *pred)
	default:
		return false, fmt.Errorf("unsupported predicate %T", p)
	}
}

func (m *matcher) all(d store.Document, preds []queryir.Predicate) (bool, error) {
	for _, p := range preds {
		ok, err := m.match(d, p)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (m *matcher) any(d store.Document, preds []queryir.Predicate) (bool, error) {
	for _, p := range preds {
		ok, err := m.match(d, p)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (m *matcher) compare(d store.Document, c queryir.Compare) (bool, error) {
	raw, present := store.Lookup(d, c.Field)

	if c.Op == queryir.OpExists {
		want, _ := c.Value.(ir.IRBool)
		return present == bool(want), nil
	}

	v, err := ir.FromNative(raw)
	if err != nil {
		return false, fmt.Errorf("field %q: %w", c.Field, err)
	}

	switch c.Op {
	case queryir.OpEq:
		return equals(v, c.Value), nil
	case queryir.OpNe:
		return !equals(v, c.Value), nil
	case queryir.OpIn, queryir.OpNin:
		set, _ := c.Value.(ir.IRArray)
		found := false
		for _, want := range set {
			if equals(v, want) {
				found = true
				break
			}
		}
		return found == (c.Op == queryir.OpIn), nil
	case queryir.OpGt, queryir.OpGte, queryir.OpLt, queryir.OpLte:
		return anyElement(v, func(elem ir.IRValue) bool {
			if !present {
				return false
			}
			n, ok := ir.Compare(elem, c.Value)
			if !ok {
				return false
			}
			switch c.Op {
			case queryir.OpGt:
				return n > 0
			case queryir.OpGte:
				return n >= 0
			case queryir.OpLt:
				return n < 0
			default:
				return n <= 0
			}
		}), nil
	case queryir.OpRegex:
		pattern, ok := c.Value.(ir.IRRegex)
		if !ok {
			return false, fmt.Errorf("field %q: regex operand is %s", c.Field, ir.TypeName(c.Value))
		}
		re, err := m.regex(pattern)
		if err != nil {
			return false, fmt.Errorf("field %q: %w", c.Field, err)
		}
		return anyElement(v, func(elem ir.IRValue) bool {
			s, ok := elem.(ir.IRString)
			return ok && re.MatchString(string(s))
		}), nil
	default:
		return false, fmt.Errorf("field %q: unsupported operator %q", c.Field, c.Op)
	}
}

// equals matches a field value against an operand. Regex operands match
// strings; array fields match on the whole array or any element.
func equals(v, want ir.IRValue) bool {
	if re, ok := want.(ir.IRRegex); ok {
		compiled, err := re.Compile()
		if err != nil {
			return false
		}
		return anyElement(v, func(elem ir.IRValue) bool {
			s, ok := elem.(ir.IRString)
			return ok && compiled.MatchString(string(s))
		})
	}
	if ir.Equal(v, want) {
		return true
	}
	if arr, ok := v.(ir.IRArray); ok {
		for _, elem := range arr {
			if ir.Equal(elem, want) {
				return true
			}
		}
	}
	return false
}

func anyElement(v ir.IRValue, fn func(ir.IRValue) bool) bool {
	if arr, ok := v.(ir.IRArray); ok {
		for _, elem := range arr {
			if fn(elem) {
				return true
			}
		}
		return false
	}
	return fn(v)
}

func (m *matcher) regex(r ir.IRRegex) (*regexp.Regexp, error) {
	if re, ok := m.regexes[r]; ok {
		return re, nil
	}
	re, err := r.Compile()
	if err != nil {
		return nil, err
	}
	m.regexes[r] = re
	return re, nil
}
