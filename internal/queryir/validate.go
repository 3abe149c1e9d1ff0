package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/docquery/internal/ir"
)

// ValidationResult contains the structural problems found in a compiled
// query.
type ValidationResult struct {
	// IsValid indicates the query satisfies every structural invariant.
	IsValid bool

	// Problems lists each violated invariant. Empty when IsValid is true.
	Problems []string
}

// Err converts the result into a queryParserError, or nil when valid.
func (r ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	return ParserError("", "invalid compiled query: %s", strings.Join(r.Problems, "; "))
}

// Validate checks the structural invariants of a compiled query:
//  1. No reserved control key appears as a filter field
//  2. 1 <= Limit <= LimitCap(Type), Skip >= 0
//  3. Operators carry values of the right shape (in/nin arrays,
//     exists bools, regex patterns that compile)
//  4. Sort directions are 1 or -1 and sort fields are non-empty
//  5. Populate trees stay within maxDepth
//
// Unknown query types are not a structural problem; the dispatcher rejects
// them. Validate is a pure function with no side effects.
func Validate(q *CompiledQuery, maxDepth int) ValidationResult {
	v := &validator{
		problems: []string{},
	}
	if q == nil {
		v.addProblem("nil query")
	} else {
		v.validateQuery(q, maxDepth)
	}

	return ValidationResult{
		IsValid:  len(v.problems) == 0,
		Problems: v.problems,
	}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

// addProblem appends a problem message.
func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q *CompiledQuery, maxDepth int) {
	if limitCap := LimitCap(q.Type); q.Limit < 1 || q.Limit > limitCap {
		v.addProblem("limit %d outside [1, %d] for %s", q.Limit, limitCap, q.Type)
	}
	if q.Skip < 0 {
		v.addProblem("negative skip %d", q.Skip)
	}

	v.validatePredicate(q.Filter, "filter")
	v.validateSort(q.Sort, "sort")

	if maxDepth > 0 {
		for _, p := range q.Populate {
			if d := p.Depth(); d > maxDepth {
				v.addProblem("populate %q nests %d levels, maximum is %d", p.Path, d, maxDepth)
			}
		}
	}
	for _, p := range q.Populate {
		v.validatePopulate(p)
	}
}

func (v *validator) validateSort(keys []SortKey, where string) {
	for _, k := range keys {
		if k.Field == "" {
			v.addProblem("%s: empty field name", where)
		}
		if k.Dir != 1 && k.Dir != -1 {
			v.addProblem("%s: field '%s' has direction %d, want 1 or -1", where, k.Field, k.Dir)
		}
	}
}

func (v *validator) validatePopulate(p PopulateSpec) {
	if p.Path == "" {
		return
	}
	v.validatePredicate(p.Match, "populate "+p.Path)
	v.validateSort(p.Options.Sort, "populate "+p.Path+" sort")
	for _, child := range p.Populate {
		v.validatePopulate(child)
	}
}

// validatePredicate recursively validates a predicate node.
func (v *validator) validatePredicate(p Predicate, where string) {
	if p == nil {
		return
	}

	switch pred := p.(type) {
	case Compare:
		v.validateCompare(pred, where)
	case *Compare:
		v.validateCompare(*pred, where)
	case And:
		v.validateChildren(pred.Predicates, where)
	case *And:
		v.validateChildren(pred.Predicates, where)
	case Or:
		v.validateChildren(pred.Predicates, where)
	case *Or:
		v.validateChildren(pred.Predicates, where)
	case Nor:
		v.validateChildren(pred.Predicates, where)
	case *Nor:
		v.validateChildren(pred.Predicates, where)
	default:
		v.addProblem("%s: unknown predicate type %T", where, p)
	}
}

func (v *validator) validateChildren(preds []Predicate, where string) {
	for _, c := range preds {
		v.validatePredicate(c, where)
	}
}

func (v *validator) validateCompare(c Compare, where string) {
	if c.Field == "" {
		v.addProblem("%s: empty field name", where)
	}
	if IsReserved(c.Field) {
		v.addProblem("%s: reserved key '%s' used as a filter field", where, c.Field)
	}
	if c.Value == nil {
		v.addProblem("%s: field '%s' has no value", where, c.Field)
		return
	}

	switch c.Op {
	case OpIn, OpNin:
		if _, ok := c.Value.(ir.IRArray); !ok {
			v.addProblem("%s: field '%s' operator %s requires an array, got %s", where, c.Field, c.Op, ir.TypeName(c.Value))
		}
	case OpExists:
		if _, ok := c.Value.(ir.IRBool); !ok {
			v.addProblem("%s: field '%s' operator exists requires a bool, got %s", where, c.Field, ir.TypeName(c.Value))
		}
	case OpRegex:
		re, ok := c.Value.(ir.IRRegex)
		if !ok {
			v.addProblem("%s: field '%s' operator regex requires a regex, got %s", where, c.Field, ir.TypeName(c.Value))
			return
		}
		if _, err := re.Compile(); err != nil {
			v.addProblem("%s: field '%s' regex does not compile: %v", where, c.Field, err)
		}
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
	default:
		v.addProblem("%s: field '%s' has unknown operator %q", where, c.Field, c.Op)
	}
}

// String returns a human-readable summary.
func (r ValidationResult) String() string {
	if r.IsValid {
		return "valid"
	}
	return fmt.Sprintf("invalid (%d problems): %s", len(r.Problems), strings.Join(r.Problems, "; "))
}
