package parser

import (
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/docquery/internal/caster"
	"github.com/roach88/docquery/internal/ir"
	"github.com/roach88/docquery/internal/queryir"
)

// splitKey separates "field[op]" into its parts. A bracket that does not
// name an operator is part of the field name. "field[]" is the plain field.
func splitKey(key string) (field string, op queryir.Op, hasOp bool) {
	if strings.HasSuffix(key, "]") {
		if open := strings.LastIndexByte(key, '['); open > 0 {
			name := key[open+1 : len(key)-1]
			if name == "" {
				return key[:open], "", false
			}
			if parsed, ok := queryir.ParseOp(name); ok {
				return key[:open], parsed, true
			}
		}
	}
	return key, "", false
}

// parseField converts one non-reserved raw key into predicates.
func (p *Parser) parseField(key string, v any) ([]queryir.Predicate, error) {
	if strings.HasPrefix(key, "!") && len(key) > 1 {
		field, _, _ := splitKey(key[1:])
		return []queryir.Predicate{queryir.Compare{Field: field, Op: queryir.OpExists, Value: ir.IRBool(false)}}, nil
	}

	field, op, hasOp := splitKey(key)
	if queryir.IsReserved(field) {
		return nil, queryir.ParserError(key, "reserved key cannot be used with an operator")
	}

	switch val := v.(type) {
	case string:
		c, err := p.parseString(key, field, op, hasOp, val)
		if err != nil {
			return nil, err
		}
		return []queryir.Predicate{c}, nil

	case []string:
		return p.parseRepeated(key, field, op, hasOp, val)

	case []any:
		strs, allStrings := stringsOf(val)
		if allStrings {
			return p.parseRepeated(key, field, op, hasOp, strs)
		}
		arr, err := ir.FromNative(val)
		if err != nil {
			return nil, queryir.WrapParserError(key, err, "unsupported value")
		}
		return []queryir.Predicate{setOrEquality(field, op, hasOp, arr.(ir.IRArray))}, nil

	case map[string]any:
		if isOperatorDoc(val) {
			if hasOp {
				return nil, queryir.ParserError(key, "operator document cannot follow a bracket operator")
			}
			return parseOperatorDoc(key, field, val)
		}
		obj, err := ir.FromNative(val)
		if err != nil {
			return nil, queryir.WrapParserError(key, err, "unsupported value")
		}
		return []queryir.Predicate{compareOrEq(field, op, hasOp, obj)}, nil

	default:
		value, err := ir.FromNative(v)
		if err != nil {
			return nil, queryir.WrapParserError(key, err, "unsupported value")
		}
		if hasOp && op == queryir.OpExists {
			if _, ok := value.(ir.IRBool); !ok {
				return nil, queryir.ParserError(key, "exists requires true or false, got %s", describe(v))
			}
		}
		return []queryir.Predicate{compareOrEq(field, op, hasOp, value)}, nil
	}
}

func compareOrEq(field string, op queryir.Op, hasOp bool, v ir.IRValue) queryir.Compare {
	if !hasOp {
		op = queryir.OpEq
	}
	return queryir.Compare{Field: field, Op: op, Value: v}
}

// setOrEquality turns a repeated value into a set membership test.
func setOrEquality(field string, op queryir.Op, hasOp bool, arr ir.IRArray) queryir.Compare {
	switch {
	case !hasOp || op == queryir.OpEq || op == queryir.OpIn:
		return queryir.Compare{Field: field, Op: queryir.OpIn, Value: arr}
	case op == queryir.OpNe || op == queryir.OpNin:
		return queryir.Compare{Field: field, Op: queryir.OpNin, Value: arr}
	default:
		return queryir.Compare{Field: field, Op: op, Value: arr}
	}
}

// parseRepeated handles key=a&key=b. Set operators get one array; other
// operators get one predicate per value.
func (p *Parser) parseRepeated(key, field string, op queryir.Op, hasOp bool, vals []string) ([]queryir.Predicate, error) {
	if len(vals) == 1 {
		return p.parseField(key, vals[0])
	}

	if !hasOp || op == queryir.OpEq || op.IsSetOp() || op == queryir.OpNe {
		arr := make(ir.IRArray, 0, len(vals))
		for _, s := range vals {
			v, err := p.scalar(key, s)
			if err != nil {
				return nil, err
			}
			if _, isRegex := v.(ir.IRRegex); isRegex {
				return nil, queryir.ParserError(key, "regex values cannot be combined into a set")
			}
			arr = append(arr, v)
		}
		return []queryir.Predicate{setOrEquality(field, op, hasOp, arr)}, nil
	}

	preds := make([]queryir.Predicate, 0, len(vals))
	for _, s := range vals {
		c, err := p.parseString(key, field, op, hasOp, s)
		if err != nil {
			return nil, err
		}
		preds = append(preds, c)
	}
	return preds, nil
}

// parseString interprets a single string value.
func (p *Parser) parseString(key, field string, op queryir.Op, hasOp bool, s string) (queryir.Compare, error) {
	if !hasOp {
		// Operator function syntax: gt(5), in(a,b), exists(true).
		if name, arg, ok := caster.Split(s); ok {
			if fnOp, isOp := queryir.ParseOp(name); isOp {
				return p.operand(key, field, fnOp, arg)
			}
		}
		op = queryir.OpEq
	}
	return p.operand(key, field, op, s)
}

// operand builds a Compare for op from its raw argument.
func (p *Parser) operand(key, field string, op queryir.Op, arg string) (queryir.Compare, error) {
	switch op {
	case queryir.OpIn, queryir.OpNin:
		arr := ir.IRArray{}
		for _, part := range splitList(arg) {
			v, err := p.scalar(key, part)
			if err != nil {
				return queryir.Compare{}, err
			}
			if _, isRegex := v.(ir.IRRegex); isRegex {
				return queryir.Compare{}, queryir.ParserError(key, "regex values cannot be combined into a set")
			}
			arr = append(arr, v)
		}
		return queryir.Compare{Field: field, Op: op, Value: arr}, nil

	case queryir.OpExists:
		b := true
		if s := strings.TrimSpace(arg); s != "" {
			parsed, err := strconv.ParseBool(s)
			if err != nil {
				return queryir.Compare{}, queryir.ParserError(key, "exists requires true or false, got %q", arg)
			}
			b = parsed
		}
		return queryir.Compare{Field: field, Op: op, Value: ir.IRBool(b)}, nil

	case queryir.OpRegex:
		re, err := regexLiteral(arg)
		if err != nil {
			return queryir.Compare{}, queryir.WrapParserError(key, err, "invalid regex")
		}
		if re == nil {
			plain, err := ir.NewIRRegex(arg, "")
			if err != nil {
				return queryir.Compare{}, queryir.WrapParserError(key, err, "invalid regex")
			}
			re = &plain
		}
		return queryir.Compare{Field: field, Op: op, Value: *re}, nil
	}

	v, err := p.scalar(key, arg)
	if err != nil {
		return queryir.Compare{}, err
	}
	if re, isRegex := v.(ir.IRRegex); isRegex {
		if op != queryir.OpEq {
			return queryir.Compare{}, queryir.ParserError(key, "regex values only support equality, not %s", op)
		}
		return queryir.Compare{Field: field, Op: queryir.OpRegex, Value: re}, nil
	}
	if isRangeOp(op) && v == ir.IRString(arg) {
		v = rangeOperand(arg)
	}
	return queryir.Compare{Field: field, Op: op, Value: v}, nil
}

func isRangeOp(op queryir.Op) bool {
	switch op {
	case queryir.OpGt, queryir.OpGte, queryir.OpLt, queryir.OpLte:
		return true
	}
	return false
}

// rangeOperand reads a bare decimal literal as a number. Ordering a
// number against a string never matches, so "3" in rank[gt]=3 means 3.
// string(...) keeps the text.
func rangeOperand(s string) ir.IRValue {
	text := strings.TrimSpace(s)
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return ir.IRInt(i)
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) && isDecimal(text) {
		return ir.IRFloat(f)
	}
	return ir.IRString(s)
}

// isDecimal rejects forms ParseFloat accepts that are not plain decimals,
// such as "Inf", "0x1p3" or "1_000".
func isDecimal(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-', r == '+', r == 'e', r == 'E':
		default:
			return false
		}
	}
	return true
}

// scalar resolves a raw string: regex literal, caster invocation or the
// string itself. Only range operators read bare numbers, in operand.
func (p *Parser) scalar(key, s string) (ir.IRValue, error) {
	re, err := regexLiteral(s)
	if err != nil {
		return nil, queryir.WrapParserError(key, err, "invalid regex")
	}
	if re != nil {
		return *re, nil
	}

	v, ok, err := p.casters.Resolve(s)
	if err != nil {
		return nil, queryir.WrapParserError(key, err, "cannot cast %q", s)
	}
	if ok {
		return v, nil
	}
	return ir.IRString(s), nil
}

// regexLiteral parses "/pattern/flags". Returns nil, nil when s is not
// in that form.
func regexLiteral(s string) (*ir.IRRegex, error) {
	if len(s) < 2 || s[0] != '/' {
		return nil, nil
	}
	end := strings.LastIndexByte(s, '/')
	if end == 0 {
		return nil, nil
	}
	flags := s[end+1:]
	for _, f := range flags {
		if !strings.ContainsRune(ir.ValidRegexFlags, f) {
			// Not a regex literal, e.g. a path like /a/b.
			return nil, nil
		}
	}
	re, err := ir.NewIRRegex(s[1:end], flags)
	if err != nil {
		return nil, err
	}
	return &re, nil
}

func stringsOf(vals []any) ([]string, bool) {
	out := make([]string, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		out[i] = s
	}
	return out, true
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

// parseOperatorDoc reads {"$gt": 5, "$lt": 9} for one field. Keys are
// processed in sorted order and operands keep their decoded JSON types.
func parseOperatorDoc(key, field string, doc map[string]any) ([]queryir.Predicate, error) {
	var preds []queryir.Predicate
	options, hasOptions := doc["$options"]
	for _, opKey := range slices.Sorted(maps.Keys(doc)) {
		if opKey == "$options" {
			continue
		}
		op, ok := queryir.ParseOp(opKey)
		if !ok {
			return nil, queryir.ParserError(key, "unknown operator %q", opKey)
		}
		c, err := typedOperand(key, field, op, doc[opKey], options, hasOptions)
		if err != nil {
			return nil, err
		}
		preds = append(preds, c)
	}
	if hasOptions {
		if _, hasRegex := doc["$regex"]; !hasRegex {
			return nil, queryir.ParserError(key, "$options requires $regex")
		}
	}
	return preds, nil
}

// typedOperand builds a Compare from a decoded JSON operand.
func typedOperand(key, field string, op queryir.Op, v any, options any, hasOptions bool) (queryir.Compare, error) {
	switch op {
	case queryir.OpRegex:
		pattern, ok := v.(string)
		if !ok {
			return queryir.Compare{}, queryir.ParserError(key, "$regex requires a string pattern")
		}
		flags := ""
		if hasOptions {
			f, ok := options.(string)
			if !ok {
				return queryir.Compare{}, queryir.ParserError(key, "$options must be a string")
			}
			flags = f
		} else if re, err := regexLiteral(pattern); err == nil && re != nil {
			return queryir.Compare{Field: field, Op: op, Value: *re}, nil
		}
		re, err := ir.NewIRRegex(pattern, flags)
		if err != nil {
			return queryir.Compare{}, queryir.WrapParserError(key, err, "invalid regex")
		}
		return queryir.Compare{Field: field, Op: op, Value: re}, nil

	case queryir.OpExists:
		switch b := v.(type) {
		case bool:
			return queryir.Compare{Field: field, Op: op, Value: ir.IRBool(b)}, nil
		default:
			if n, ok := asInt(v); ok && (n == 0 || n == 1) {
				return queryir.Compare{Field: field, Op: op, Value: ir.IRBool(n == 1)}, nil
			}
		}
		return queryir.Compare{}, queryir.ParserError(key, "$exists requires a boolean, got %s", describe(v))

	case queryir.OpIn, queryir.OpNin:
		value, err := ir.FromNative(v)
		if err != nil {
			return queryir.Compare{}, queryir.WrapParserError(key, err, "unsupported value")
		}
		arr, ok := value.(ir.IRArray)
		if !ok {
			return queryir.Compare{}, queryir.ParserError(key, "%s requires an array", op.Operator())
		}
		return queryir.Compare{Field: field, Op: op, Value: arr}, nil
	}

	value, err := ir.FromNative(v)
	if err != nil {
		return queryir.Compare{}, queryir.WrapParserError(key, err, "unsupported value")
	}
	return queryir.Compare{Field: field, Op: op, Value: value}, nil
}
