// Package querysql compiles store plans to parameterized SQLite SQL over
// a table of JSON documents.
//
// Documents live in one table with a JSON body column. Field access goes
// through json_extract/json_each with the JSON path passed as a parameter,
// so neither values nor field names are ever interpolated into SQL text.
// Comparisons are type-bracketed like a document store: a numeric operand
// only matches numbers, a string operand only matches text.
package querysql

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/roach88/docquery/internal/ir"
	"github.com/roach88/docquery/internal/queryir"
	"github.com/roach88/docquery/internal/store"
)

// DefaultTable is the document table created by sqlstore.
const DefaultTable = "documents"

// SQLCompiler compiles plans against a document table with columns
// seq (insertion order), collection, id and body (JSON).
//
// Every SELECT ends with "seq ASC" so results are deterministic.
type SQLCompiler struct {
	Table string
	sq    squirrel.StatementBuilderType
}

// NewSQLCompiler creates a compiler for DefaultTable.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{
		Table: DefaultTable,
		sq:    squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}
}

// Compile converts a find or findOne plan to a SELECT of document bodies.
// Projection and populate are applied by the caller after decoding.
func (c *SQLCompiler) Compile(p store.Plan) (string, []any, error) {
	q, err := c.selectBase(p, "body")
	if err != nil {
		return "", nil, err
	}
	return q.ToSql()
}

// CompileCount converts a plan to a COUNT query. Skip and limit bound the
// count when set.
func (c *SQLCompiler) CompileCount(p store.Plan) (string, []any, error) {
	p.Sort = nil
	if p.Skip == 0 && p.Limit == 0 {
		where, err := c.Where(p.Filter)
		if err != nil {
			return "", nil, err
		}
		return c.sq.Select("COUNT(*)").From(c.Table).
			Where(squirrel.Eq{"collection": p.Collection}).
			Where(where).
			ToSql()
	}

	inner, err := c.selectBase(p, "1")
	if err != nil {
		return "", nil, err
	}
	return c.sq.Select("COUNT(*)").FromSelect(inner, "windowed").ToSql()
}

func (c *SQLCompiler) selectBase(p store.Plan, column string) (squirrel.SelectBuilder, error) {
	if p.Collection == "" {
		return squirrel.SelectBuilder{}, fmt.Errorf("plan has no collection")
	}
	where, err := c.Where(p.Filter)
	if err != nil {
		return squirrel.SelectBuilder{}, fmt.Errorf("compile filter: %w", err)
	}

	q := c.sq.Select(column).From(c.Table).
		Where(squirrel.Eq{"collection": p.Collection}).
		Where(where)

	for _, k := range p.Sort {
		path, err := jsonPath(k.Field)
		if err != nil {
			return squirrel.SelectBuilder{}, fmt.Errorf("sort: %w", err)
		}
		dir := "ASC"
		if k.Dir < 0 {
			dir = "DESC"
		}
		q = q.OrderByClause("json_extract(body, ?) "+dir, path)
	}
	q = q.OrderBy("seq ASC")

	switch {
	case p.Limit > 0:
		q = q.Limit(uint64(p.Limit))
	case p.Skip > 0:
		// SQLite only accepts OFFSET after LIMIT.
		q = q.Limit(math.MaxInt64)
	}
	if p.Skip > 0 {
		q = q.Offset(uint64(p.Skip))
	}
	return q, nil
}

// Where compiles a predicate to a WHERE fragment. An empty conjunction is
// always true.
func (c *SQLCompiler) Where(p queryir.Predicate) (squirrel.Sqlizer, error) {
	switch pred := p.(type) {
	case nil:
		return squirrel.Expr("1 = 1"), nil
	case queryir.And:
		return c.conjunction(pred.Predicates)
	case *queryir.And:
		return c.conjunction(pred.Predicates)
	case queryir.Or:
		return c.disjunction(pred.Predicates, false)
	case *queryir.Or:
		return c.disjunction(pred.Predicates, false)
	case queryir.Nor:
		return c.disjunction(pred.Predicates, true)
	case *queryir.Nor:
		return c.disjunction(pred.Predicates, true)
	case queryir.Compare:
		return compileCompare(pred)
	case *queryir.Compare:
		return compileCompare(*pred)
	default:
		return nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (c *SQLCompiler) conjunction(preds []queryir.Predicate) (squirrel.Sqlizer, error) {
	if len(preds) == 0 {
		return squirrel.Expr("1 = 1"), nil
	}
	and := squirrel.And{}
	for _, p := range preds {
		part, err := c.Where(p)
		if err != nil {
			return nil, err
		}
		and = append(and, part)
	}
	return and, nil
}

func (c *SQLCompiler) disjunction(preds []queryir.Predicate, negate bool) (squirrel.Sqlizer, error) {
	if len(preds) == 0 {
		return nil, fmt.Errorf("empty logical operator")
	}
	or := squirrel.Or{}
	for _, p := range preds {
		part, err := c.Where(p)
		if err != nil {
			return nil, err
		}
		or = append(or, part)
	}
	if negate {
		return not{or}, nil
	}
	return or, nil
}

// not negates a fragment.
type not struct {
	inner squirrel.Sqlizer
}

func (n not) ToSql() (string, []any, error) {
	sql, args, err := n.inner.ToSql()
	if err != nil {
		return "", nil, err
	}
	return "NOT (" + sql + ")", args, nil
}

func compileCompare(c queryir.Compare) (squirrel.Sqlizer, error) {
	path, err := jsonPath(c.Field)
	if err != nil {
		return nil, err
	}

	switch c.Op {
	case queryir.OpEq:
		return equals(path, c.Value)
	case queryir.OpNe:
		eq, err := equals(path, c.Value)
		if err != nil {
			return nil, err
		}
		return not{eq}, nil
	case queryir.OpIn, queryir.OpNin:
		in, err := member(path, c.Value)
		if err != nil {
			return nil, err
		}
		if c.Op == queryir.OpNin {
			return not{in}, nil
		}
		return in, nil
	case queryir.OpGt, queryir.OpGte, queryir.OpLt, queryir.OpLte:
		return ordered(path, c.Op, c.Value)
	case queryir.OpExists:
		b, ok := c.Value.(ir.IRBool)
		if !ok {
			return nil, fmt.Errorf("%s: $exists requires a boolean", c.Field)
		}
		if b {
			return squirrel.Expr("json_type(body, ?) IS NOT NULL", path), nil
		}
		return squirrel.Expr("json_type(body, ?) IS NULL", path), nil
	case queryir.OpRegex:
		re, ok := c.Value.(ir.IRRegex)
		if !ok {
			return nil, fmt.Errorf("%s: $regex requires a pattern", c.Field)
		}
		return regex(path, re), nil
	default:
		return nil, fmt.Errorf("%s: unsupported operator %q", c.Field, c.Op)
	}
}

// element matches when the value at path, or any element of the array at
// path, satisfies cond. json_each yields a single row for a scalar.
func element(path, cond string, args ...any) squirrel.Sqlizer {
	return squirrel.Expr(
		"EXISTS (SELECT 1 FROM json_each(body, ?) AS e WHERE "+cond+")",
		append([]any{path}, args...)...)
}

func equals(path string, v ir.IRValue) (squirrel.Sqlizer, error) {
	switch val := v.(type) {
	case nil, ir.IRNull:
		return squirrel.Expr("(json_type(body, ?) IS NULL OR json_type(body, ?) = 'null')", path, path), nil
	case ir.IRRegex:
		return regex(path, val), nil
	case ir.IRArray, ir.IRObject:
		text, err := jsonText(val)
		if err != nil {
			return nil, err
		}
		return squirrel.Expr("json_extract(body, ?) = json(?)", path, text), nil
	}

	guard, param, err := scalar(v)
	if err != nil {
		return nil, err
	}
	return element(path, guard+" AND e.value = ?", param), nil
}

func member(path string, v ir.IRValue) (squirrel.Sqlizer, error) {
	set, ok := v.(ir.IRArray)
	if !ok {
		return nil, fmt.Errorf("set operator requires an array, got %s", ir.TypeName(v))
	}
	if len(set) == 0 {
		return squirrel.Expr("1 = 0"), nil
	}
	or := squirrel.Or{}
	for _, elem := range set {
		eq, err := equals(path, elem)
		if err != nil {
			return nil, err
		}
		or = append(or, eq)
	}
	return or, nil
}

func ordered(path string, op queryir.Op, v ir.IRValue) (squirrel.Sqlizer, error) {
	guard, param, err := scalar(v)
	if err != nil {
		return nil, err
	}
	var sym string
	switch op {
	case queryir.OpGt:
		sym = ">"
	case queryir.OpGte:
		sym = ">="
	case queryir.OpLt:
		sym = "<"
	default:
		sym = "<="
	}
	return element(path, guard+" AND e.value "+sym+" ?", param), nil
}

func regex(path string, re ir.IRRegex) squirrel.Sqlizer {
	return element(path, "e.type = 'text' AND e.value REGEXP ?", goPattern(re))
}

// goPattern renders a regex with its flags inline, the form the
// registered REGEXP function compiles.
func goPattern(re ir.IRRegex) string {
	if re.Flags == "" {
		return re.Pattern
	}
	return "(?" + re.Flags + ")" + re.Pattern
}

// scalar returns the json_each type guard and SQL parameter for v.
func scalar(v ir.IRValue) (string, any, error) {
	switch val := v.(type) {
	case ir.IRString:
		return "e.type = 'text'", string(val), nil
	case ir.IRInt:
		return "e.type IN ('integer', 'real')", int64(val), nil
	case ir.IRFloat:
		return "e.type IN ('integer', 'real')", float64(val), nil
	case ir.IRBool:
		return "e.type IN ('true', 'false')", bool(val), nil
	case ir.IRTime:
		return "e.type = 'text'", FormatTime(val.Time()), nil
	default:
		return "", nil, fmt.Errorf("unsupported value type for comparison: %s", ir.TypeName(v))
	}
}

// FormatTime renders times the way documents store them, so text
// comparison orders them chronologically.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

func jsonText(v ir.IRValue) (string, error) {
	data, err := json.Marshal(ir.ToNative(v))
	if err != nil {
		return "", fmt.Errorf("encode operand: %w", err)
	}
	return string(data), nil
}

// jsonPath renders a dotted field as a quoted SQLite JSON path:
// "meta.author" → $."meta"."author".
func jsonPath(field string) (string, error) {
	if field == "" {
		return "", fmt.Errorf("empty field name")
	}
	if strings.ContainsAny(field, `"\`) {
		return "", fmt.Errorf("field %q contains a quote or backslash", field)
	}
	var b strings.Builder
	b.WriteString("$")
	for _, seg := range strings.Split(field, ".") {
		if seg == "" {
			return "", fmt.Errorf("field %q has an empty path segment", field)
		}
		b.WriteString(`."`)
		b.WriteString(seg)
		b.WriteString(`"`)
	}
	return b.String(), nil
}
