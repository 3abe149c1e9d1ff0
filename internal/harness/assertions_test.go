package harness

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/docquery/internal/engine"
	"github.com/roach88/docquery/internal/queryir"
)

func TestMatchSubset(t *testing.T) {
	actual := map[string]any{
		"name": "Project Title 2",
		"rank": int64(1),
		"ref":  map[string]any{"name": "Project Title 1", "rank": int64(3)},
	}

	assert.True(t, matchSubset(actual, map[string]any{"name": "Project Title 2"}))
	assert.True(t, matchSubset(actual, map[string]any{"rank": 1}))
	assert.True(t, matchSubset(actual, map[string]any{"ref": map[string]any{"name": "Project Title 1"}}))
	assert.False(t, matchSubset(actual, map[string]any{"missing": nil}))
	assert.False(t, matchSubset(actual, map[string]any{"rank": 2}))
	assert.False(t, matchSubset(nil, map[string]any{"rank": 1}))
	assert.True(t, matchSubset(nil, nil))
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, valuesEqual(int64(5), 5))
	assert.True(t, valuesEqual(float64(5), 5))
	assert.True(t, valuesEqual([]any{"a", int64(1)}, []any{"a", 1}))
	assert.True(t, valuesEqual(nil, nil))
	assert.False(t, valuesEqual("5", 5))
	assert.False(t, valuesEqual([]any{"a"}, []any{"a", "b"}))
}

func TestCheckExpect_Errors(t *testing.T) {
	kindErr := queryir.UnsupportedTypeError("bogus")

	assert.Empty(t, checkExpect(Expect{Error: "notSupportedQueryType"}, nil, nil, kindErr))
	assert.Empty(t, checkExpect(Expect{Error: "connection"}, nil, nil, errors.New("connection reset")))
	assert.NotEmpty(t, checkExpect(Expect{Error: "queryParserError"}, nil, nil, kindErr))
	assert.NotEmpty(t, checkExpect(Expect{}, nil, nil, kindErr))
}

func TestCheckExpect_Shapes(t *testing.T) {
	count := 2
	total := int64(7)

	res := &engine.Result{Type: queryir.TypeAllTotal, Shape: engine.ShapeRowsTotal, Total: 7}
	data := map[string]any{
		"rows":  []any{map[string]any{"name": "a"}, map[string]any{"name": "b"}},
		"total": int64(7),
	}
	assert.Empty(t, checkExpect(Expect{
		Type:  "allTotal",
		Shape: "rowsTotal",
		Count: &count,
		Total: &total,
		Pluck: map[string][]any{"name": {"a", "b"}},
		Rows:  []map[string]any{{"name": "a"}, {"name": "b"}},
	}, res, data, nil))

	failures := checkExpect(Expect{Shape: "rows", Pluck: map[string][]any{"name": {"b", "a"}}}, res, data, nil)
	assert.Len(t, failures, 2)

	doc := &engine.Result{Type: queryir.TypeOne, Shape: engine.ShapeDocument}
	assert.Empty(t, checkExpect(Expect{Null: true}, doc, nil, nil))
	assert.NotEmpty(t, checkExpect(Expect{Count: &count}, doc, nil, nil))
	assert.NotEmpty(t, checkExpect(Expect{Total: &total}, doc, nil, nil))
}
