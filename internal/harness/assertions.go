package harness

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/docquery/internal/engine"
	"github.com/roach88/docquery/internal/ir"
	"github.com/roach88/docquery/internal/queryir"
	"github.com/roach88/docquery/internal/store"
)

// checkExpect returns one message per failed expectation. data is the
// normalized payload of res.
func checkExpect(exp Expect, res *engine.Result, data any, err error) []string {
	if err != nil {
		if exp.Error == "" {
			return []string{fmt.Sprintf("unexpected error: %v", err)}
		}
		if !queryir.IsKind(err, queryir.ErrorKind(exp.Error)) && !strings.Contains(err.Error(), exp.Error) {
			return []string{fmt.Sprintf("expected error %q, got %v", exp.Error, err)}
		}
		return nil
	}
	if exp.Error != "" {
		return []string{fmt.Sprintf("expected error %q, got none", exp.Error)}
	}

	var failures []string
	fail := func(format string, args ...any) {
		failures = append(failures, fmt.Sprintf(format, args...))
	}

	if exp.Type != "" && exp.Type != string(res.Type) {
		fail("type: expected %s, got %s", exp.Type, res.Type)
	}
	if exp.Shape != "" && exp.Shape != string(res.Shape) {
		fail("shape: expected %s, got %s", exp.Shape, res.Shape)
	}

	items := listItems(res.Shape, data)

	if exp.Count != nil {
		n, ok := size(res.Shape, data, items)
		switch {
		case !ok:
			fail("count: %s result has no size", res.Shape)
		case n != *exp.Count:
			fail("count: expected %d, got %d", *exp.Count, n)
		}
	}

	if exp.Total != nil {
		if res.Shape != engine.ShapeTotal && res.Shape != engine.ShapeRowsTotal {
			fail("total: %s result has no total", res.Shape)
		} else if res.Total != *exp.Total {
			fail("total: expected %d, got %d", *exp.Total, res.Total)
		}
	}

	for field, want := range exp.Pluck {
		got := make([]any, len(items))
		for i, it := range items {
			got[i], _ = store.Lookup(it, field)
		}
		if !valuesEqual(got, want) {
			fail("pluck %s: expected %v, got %v", field, want, got)
		}
	}

	if exp.Rows != nil {
		if len(items) != len(exp.Rows) {
			fail("rows: expected %d, got %d", len(exp.Rows), len(items))
		} else {
			for i, want := range exp.Rows {
				if !matchSubset(items[i], want) {
					fail("rows[%d]: expected %v to contain %v", i, items[i], want)
				}
			}
		}
	}

	if exp.Doc != nil {
		doc, _ := data.(map[string]any)
		if res.Shape != engine.ShapeDocument || !matchSubset(doc, exp.Doc) {
			fail("doc: expected %v to contain %v", data, exp.Doc)
		}
	}

	if exp.Null && (res.Shape != engine.ShapeDocument || data != nil) {
		fail("expected no document, got %v", data)
	}

	if exp.Value != nil && !valuesEqual(data, exp.Value) {
		fail("value: expected %v, got %v", exp.Value, data)
	}

	return failures
}

// listItems returns the rows or roots of a normalized payload.
func listItems(shape engine.Shape, data any) []map[string]any {
	var list []any
	switch shape {
	case engine.ShapeRows, engine.ShapeRoots:
		list, _ = data.([]any)
	case engine.ShapeRowsTotal:
		if m, ok := data.(map[string]any); ok {
			list, _ = m["rows"].([]any)
		}
	}
	out := make([]map[string]any, 0, len(list))
	for _, v := range list {
		m, _ := v.(map[string]any)
		out = append(out, m)
	}
	return out
}

func size(shape engine.Shape, data any, items []map[string]any) (int, bool) {
	switch shape {
	case engine.ShapeRows, engine.ShapeRoots, engine.ShapeRowsTotal:
		return len(items), true
	case engine.ShapeTree:
		m, _ := data.(map[string]any)
		return len(m), true
	}
	return 0, false
}

// matchSubset checks if actual contains every key of expected. Nested
// objects are matched the same way; everything else must be equal.
func matchSubset(actual, expected map[string]any) bool {
	if actual == nil {
		return len(expected) == 0
	}
	for key, want := range expected {
		got, exists := actual[key]
		if !exists {
			return false
		}
		wantMap, wantIsMap := want.(map[string]any)
		gotMap, gotIsMap := got.(map[string]any)
		if wantIsMap && gotIsMap {
			if !matchSubset(gotMap, wantMap) {
				return false
			}
			continue
		}
		if !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// valuesEqual compares two values by their IR form, so int and int64 (or
// a YAML and a JSON rendering of the same value) are equal.
func valuesEqual(actual, expected any) bool {
	a, errA := ir.FromNative(actual)
	b, errB := ir.FromNative(expected)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(actual, expected)
	}
	return ir.Equal(a, b)
}
