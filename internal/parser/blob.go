package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/docquery/internal/ir"
	"github.com/roach88/docquery/internal/queryir"
)

// parseBlob reads the filter control. A string starting with "{" is a
// JSON document; any other string is a URL query string read with the
// flat rules. An already-decoded object is treated as a JSON document.
func (p *Parser) parseBlob(v any) ([]queryir.Predicate, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil, nil
		}
		if strings.HasPrefix(s, "{") {
			doc, err := decodeJSONObject(s)
			if err != nil {
				return nil, queryir.WrapParserError(queryir.KeyFilter, err, "malformed JSON filter")
			}
			return p.parseDocument(doc, 0)
		}
		raw, err := queryir.ParseRaw(s)
		if err != nil {
			return nil, queryir.WrapParserError(queryir.KeyFilter, err, "malformed filter query string")
		}
		and, err := p.ParseFilter(raw)
		if err != nil {
			return nil, err
		}
		return and.Predicates, nil
	case []string:
		// Repeated filter blobs are AND-ed in order.
		var preds []queryir.Predicate
		for _, s := range val {
			more, err := p.parseBlob(s)
			if err != nil {
				return nil, err
			}
			preds = append(preds, more...)
		}
		return preds, nil
	case map[string]any:
		return p.parseDocument(val, 0)
	default:
		return nil, queryir.ParserError(queryir.KeyFilter, "unsupported filter value of type %T", v)
	}
}

// decodeJSONObject decodes s keeping integers exact.
func decodeJSONObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON object")
	}
	return doc, nil
}

// parseDocument reads a store-style filter document:
//
//	{"name": "x", "age": {"$gte": 18}, "$or": [{...}, {...}]}
//
// Values keep their JSON types; casters are not applied.
func (p *Parser) parseDocument(doc map[string]any, depth int) ([]queryir.Predicate, error) {
	if depth > p.maxBlobDepth {
		return nil, queryir.ParserError(queryir.KeyFilter, "filter nests deeper than %d levels", p.maxBlobDepth)
	}

	var preds []queryir.Predicate
	for _, key := range slices.Sorted(maps.Keys(doc)) {
		v := doc[key]
		switch key {
		case "$and", "$or", "$nor":
			children, err := p.parseLogical(key, v, depth)
			if err != nil {
				return nil, err
			}
			switch key {
			case "$and":
				preds = append(preds, queryir.Conjoin(children...))
			case "$or":
				preds = append(preds, queryir.Or{Predicates: children})
			case "$nor":
				preds = append(preds, queryir.Nor{Predicates: children})
			}
			continue
		}

		if strings.HasPrefix(key, "$") {
			return nil, queryir.ParserError(queryir.KeyFilter, "unknown top-level operator %q", key)
		}
		if queryir.IsReserved(key) {
			return nil, queryir.ParserError(queryir.KeyFilter, "reserved key %q is not allowed in a filter", key)
		}

		if m, ok := v.(map[string]any); ok && isOperatorDoc(m) {
			fieldPreds, err := parseOperatorDoc(queryir.KeyFilter, key, m)
			if err != nil {
				return nil, err
			}
			preds = append(preds, fieldPreds...)
			continue
		}

		value, err := ir.FromNative(v)
		if err != nil {
			return nil, queryir.WrapParserError(queryir.KeyFilter, err, "unsupported value for %q", key)
		}
		preds = append(preds, queryir.Eq(key, value))
	}
	return preds, nil
}

// parseLogical reads the array operand of $and/$or/$nor. Each element is a
// sub-document that becomes one predicate.
func (p *Parser) parseLogical(op string, v any, depth int) ([]queryir.Predicate, error) {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return nil, queryir.ParserError(queryir.KeyFilter, "%s requires a non-empty array", op)
	}
	children := make([]queryir.Predicate, 0, len(list))
	for i, elem := range list {
		sub, ok := elem.(map[string]any)
		if !ok {
			return nil, queryir.ParserError(queryir.KeyFilter, "%s[%d] must be an object", op, i)
		}
		preds, err := p.parseDocument(sub, depth+1)
		if err != nil {
			return nil, err
		}
		children = append(children, queryir.Conjoin(preds...))
	}
	return children, nil
}
