package queryir

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/docquery/internal/ir"
)

// Op is a comparison operator in a Compare predicate.
type Op string

const (
	OpEq     Op = "eq"
	OpNe     Op = "ne"
	OpGt     Op = "gt"
	OpGte    Op = "gte"
	OpLt     Op = "lt"
	OpLte    Op = "lte"
	OpIn     Op = "in"
	OpNin    Op = "nin"
	OpExists Op = "exists"
	OpRegex  Op = "regex"
)

// Ops lists every operator in a stable order.
var Ops = []Op{OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpNin, OpExists, OpRegex}

// ParseOp accepts an operator name with or without the store-style "$"
// prefix ("gt" and "$gt" are equivalent).
func ParseOp(s string) (Op, bool) {
	name := strings.TrimPrefix(s, "$")
	for _, op := range Ops {
		if string(op) == name {
			return op, true
		}
	}
	return "", false
}

// Operator returns the store-style spelling of the operator ("$gt").
func (o Op) Operator() string {
	return "$" + string(o)
}

// IsSetOp reports whether the operator takes an array value.
func (o Op) IsSetOp() bool {
	return o == OpIn || o == OpNin
}

// Predicate represents a filter condition.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - Compare: field <op> value
//   - And: all predicates must be true (empty = always true)
//   - Or: at least one predicate must be true
//   - Nor: no predicate may be true
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Compare represents a single field comparison.
//
// Semantics follow document-store conventions:
//   - eq against an array field matches when any element is equal
//   - eq null matches null and missing fields
//   - ne and nin match missing fields
//   - exists takes an IRBool
//   - regex takes an IRRegex and only matches string fields
//   - in/nin take an IRArray
type Compare struct {
	Field string
	Op    Op
	Value ir.IRValue
}

func (Compare) predicateNode() {}

// And represents a conjunction of predicates.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or represents a disjunction of predicates.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// Nor is true when none of its predicates are true.
type Nor struct {
	Predicates []Predicate
}

func (Nor) predicateNode() {}

// Eq is shorthand for an equality Compare.
func Eq(field string, v ir.IRValue) Compare {
	return Compare{Field: field, Op: OpEq, Value: v}
}

// Conjoin merges predicates into a single And, flattening nested Ands
// and dropping nils.
func Conjoin(preds ...Predicate) And {
	out := And{}
	for _, p := range preds {
		switch pred := p.(type) {
		case nil:
			continue
		case And:
			out.Predicates = append(out.Predicates, Conjoin(pred.Predicates...).Predicates...)
		case *And:
			if pred != nil {
				out.Predicates = append(out.Predicates, Conjoin(pred.Predicates...).Predicates...)
			}
		default:
			out.Predicates = append(out.Predicates, pred)
		}
	}
	return out
}

// IsEmpty reports whether the conjunction has no predicates.
func (a And) IsEmpty() bool {
	return len(a.Predicates) == 0
}

// Fields returns every field referenced by the predicate, sorted and
// deduplicated.
func Fields(p Predicate) []string {
	seen := make(map[string]bool)
	walkFields(p, seen)
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func walkFields(p Predicate, seen map[string]bool) {
	switch pred := p.(type) {
	case Compare:
		seen[pred.Field] = true
	case *Compare:
		seen[pred.Field] = true
	case And:
		for _, c := range pred.Predicates {
			walkFields(c, seen)
		}
	case *And:
		for _, c := range pred.Predicates {
			walkFields(c, seen)
		}
	case Or:
		for _, c := range pred.Predicates {
			walkFields(c, seen)
		}
	case Nor:
		for _, c := range pred.Predicates {
			walkFields(c, seen)
		}
	}
}

// Document renders a predicate in store-style document form:
//
//	{"name": "x", "age": {"$gt": 5}, "$or": [{...}, {...}]}
//
// Equality on a field with no other operators renders as the bare value.
// Values are converted with ir.ToNative. Used by the validation layer, the
// CLI and fingerprints.
func Document(p Predicate) map[string]any {
	doc := make(map[string]any)
	var extra []any // predicates that cannot merge into doc

	var add func(p Predicate)
	add = func(p Predicate) {
		switch pred := p.(type) {
		case nil:
		case And:
			for _, c := range pred.Predicates {
				add(c)
			}
		case *And:
			for _, c := range pred.Predicates {
				add(c)
			}
		case Or:
			extra = appendLogical(extra, "$or", pred.Predicates)
		case *Or:
			extra = appendLogical(extra, "$or", pred.Predicates)
		case Nor:
			extra = appendLogical(extra, "$nor", pred.Predicates)
		case *Nor:
			extra = appendLogical(extra, "$nor", pred.Predicates)
		case Compare:
			if !mergeCompare(doc, pred) {
				extra = append(extra, map[string]any{pred.Field: compareDoc(pred)})
			}
		case *Compare:
			if !mergeCompare(doc, *pred) {
				extra = append(extra, map[string]any{pred.Field: compareDoc(*pred)})
			}
		}
	}
	add(p)

	if len(extra) == 1 {
		if m, ok := extra[0].(map[string]any); ok {
			for k, v := range m {
				if _, taken := doc[k]; !taken {
					doc[k] = v
					return doc
				}
			}
		}
	}
	if len(extra) > 0 {
		doc["$and"] = extra
	}
	return doc
}

func appendLogical(extra []any, key string, preds []Predicate) []any {
	list := make([]any, 0, len(preds))
	for _, c := range preds {
		list = append(list, Document(c))
	}
	return append(extra, map[string]any{key: list})
}

// mergeCompare folds a comparison into doc. Returns false when the field
// already holds a conflicting entry for the same operator.
func mergeCompare(doc map[string]any, c Compare) bool {
	existing, ok := doc[c.Field]
	if !ok {
		doc[c.Field] = compareDoc(c)
		return true
	}

	ops, isOps := existing.(map[string]any)
	if !isOps || !isOperatorDoc(ops) {
		// Existing bare equality: promote to {"$eq": v}.
		ops = map[string]any{OpEq.Operator(): existing}
	}
	if _, dup := ops[c.Op.Operator()]; dup {
		return false
	}
	ops[c.Op.Operator()] = ir.ToNative(c.Value)
	doc[c.Field] = ops
	return true
}

func compareDoc(c Compare) any {
	if c.Op == OpEq {
		if _, isObj := c.Value.(ir.IRObject); !isObj {
			return ir.ToNative(c.Value)
		}
	}
	return map[string]any{c.Op.Operator(): ir.ToNative(c.Value)}
}

func isOperatorDoc(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

// String renders a predicate for logs and error messages.
func String(p Predicate) string {
	switch pred := p.(type) {
	case nil:
		return "true"
	case Compare:
		return fmt.Sprintf("%s %s %s", pred.Field, pred.Op, valueString(pred.Value))
	case *Compare:
		return String(*pred)
	case And:
		return joinPredicates("AND", pred.Predicates)
	case *And:
		return joinPredicates("AND", pred.Predicates)
	case Or:
		return joinPredicates("OR", pred.Predicates)
	case *Or:
		return joinPredicates("OR", pred.Predicates)
	case Nor:
		return "NOT " + joinPredicates("OR", pred.Predicates)
	case *Nor:
		return "NOT " + joinPredicates("OR", pred.Predicates)
	default:
		return fmt.Sprintf("<%T>", p)
	}
}

func joinPredicates(sep string, preds []Predicate) string {
	if len(preds) == 0 {
		return "true"
	}
	parts := make([]string, len(preds))
	for i, p := range preds {
		parts[i] = String(p)
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " "+sep+" ") + ")"
}

func valueString(v ir.IRValue) string {
	b, err := ir.MarshalIRValue(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
