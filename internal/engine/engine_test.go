package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/docquery/internal/compiler"
	"github.com/roach88/docquery/internal/ir"
	"github.com/roach88/docquery/internal/model"
	"github.com/roach88/docquery/internal/queryir"
	"github.com/roach88/docquery/internal/schema"
	"github.com/roach88/docquery/internal/store"
	"github.com/roach88/docquery/internal/store/memstore"
	"github.com/roach88/docquery/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func nameIs(name string) queryir.And {
	return queryir.Conjoin(queryir.Eq("name", ir.NewIRString(name)))
}

// testModel mirrors the fixture model used across the package tests.
func testModel() *model.Model {
	return model.New("test",
		model.WithQuery("overrideLimitSkip", func(base store.Query, _ *queryir.CompiledQuery) store.Query {
			return base.Skip(1).Limit(2)
		}),
		model.WithQuery("overrideQuery", func(base store.Query, _ *queryir.CompiledQuery) store.Query {
			return base.Find(nameIs("Project Title 3"))
		}),
		model.WithQuery("overrideQueryOne", func(base store.Query, _ *queryir.CompiledQuery) store.Query {
			return base.FindOne(nameIs("Project Title 3"))
		}),
		model.WithQuery("overrideQueryTotal", func(base store.Query, _ *queryir.CompiledQuery) store.Query {
			return base.Count(nameIs("Project Title 3"))
		}),
		model.WithQuery("overrideQueryAllTotal", func(base store.Query, _ *queryir.CompiledQuery) store.Query {
			slugs := ir.NewIRArray(
				ir.NewIRString("project-title-1"),
				ir.NewIRString("project-title-2"),
				ir.NewIRString("project-title-3"),
			)
			return base.
				Find(queryir.Conjoin(queryir.Compare{Field: "slug", Op: queryir.OpIn, Value: slugs})).
				Sort([]queryir.SortKey{{Field: "name", Dir: 1}})
		}),
		model.WithStatic("staticsTest", func(_ context.Context, coll store.Collection, _ *queryir.CompiledQuery, _ compiler.Options) (any, error) {
			return coll.FindOne(nameIs("Project Title 5")), nil
		}),
		model.WithStatic("staticsTestData", func(context.Context, store.Collection, *queryir.CompiledQuery, compiler.Options) (any, error) {
			return map[string]any{"a": 1}, nil
		}),
	)
}

func categoryModel() *model.Model {
	return model.New("category", model.WithTree(store.MaterializedTree{}))
}

func setupTestEngine(t *testing.T) *Engine {
	t.Helper()
	db := memstore.New()
	testutil.DefineRefs(db.Refs())
	testutil.Seed(t, db)

	e := New(WithSource(db))
	require.NoError(t, e.Register(testModel(), categoryModel()))
	return e
}

func run(t *testing.T, e *Engine, name string, raw queryir.Raw) *Result {
	t.Helper()
	res, err := e.Run(context.Background(), name, raw, compiler.Options{})
	require.NoError(t, err)
	return res
}

func docNames(docs []store.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i], _ = d["name"].(string)
	}
	return out
}

var allTitles = []string{"Project Title 1", "Project Title 2", "Project Title 3", "Project Title 4", "Project Title 5"}

func TestRun_All(t *testing.T) {
	e := setupTestEngine(t)

	res := run(t, e, "test", queryir.Raw{})

	assert.Equal(t, queryir.TypeAll, res.Type)
	assert.Equal(t, ShapeRows, res.Shape)
	assert.Equal(t, allTitles, docNames(res.Rows))
}

func TestRun_One(t *testing.T) {
	e := setupTestEngine(t)

	res := run(t, e, "test", queryir.Raw{"qType": "one"})

	require.Equal(t, ShapeDocument, res.Shape)
	assert.Equal(t, "Project Title 1", res.Doc["name"])
	assert.Equal(t, "project-title-1", res.Doc["slug"])
}

func TestRun_OneNoMatch(t *testing.T) {
	e := setupTestEngine(t)

	res := run(t, e, "test", queryir.Raw{"qType": "one", "name": "nobody"})

	assert.Equal(t, ShapeDocument, res.Shape)
	assert.Nil(t, res.Data())
}

func TestRun_Total(t *testing.T) {
	e := setupTestEngine(t)

	res := run(t, e, "test", queryir.Raw{"qType": "total"})

	assert.Equal(t, ShapeTotal, res.Shape)
	assert.Equal(t, int64(5), res.Total)
}

func TestRun_AllTotal(t *testing.T) {
	e := setupTestEngine(t)

	res := run(t, e, "test", queryir.Raw{"qType": "allTotal"})

	assert.Equal(t, ShapeRowsTotal, res.Shape)
	assert.Len(t, res.Rows, 5)
	assert.Equal(t, int64(5), res.Total)
}

func TestRun_AllTotalWindowNeverBoundsTotal(t *testing.T) {
	e := setupTestEngine(t)

	res := run(t, e, "test", queryir.Raw{"qType": "allTotal", "skip": "4", "limit": "2"})

	assert.Equal(t, []string{"Project Title 5"}, docNames(res.Rows))
	assert.Equal(t, int64(5), res.Total)
}

func TestRun_CasterFilter(t *testing.T) {
	e := setupTestEngine(t)

	res := run(t, e, "test", queryir.Raw{"name": "ends(title 3)"})

	assert.Equal(t, []string{"Project Title 3"}, docNames(res.Rows))
}

func TestRun_BareRangeOperand(t *testing.T) {
	e := setupTestEngine(t)

	bracket := run(t, e, "test", queryir.Raw{"rank[gt]": "3", "sort": "rank"})
	casted := run(t, e, "test", queryir.Raw{"rank": "gt(int(3))", "sort": "rank"})

	assert.Equal(t, []string{"Project Title 5", "Project Title 3"}, docNames(bracket.Rows))
	assert.Equal(t, docNames(casted.Rows), docNames(bracket.Rows))
}

func TestRun_LimitCapped(t *testing.T) {
	e := setupTestEngine(t)

	q, err := e.Compiler().Compile(queryir.Raw{"limit": "5000"}, compiler.Options{})
	require.NoError(t, err)
	assert.Equal(t, queryir.MaxLimit, q.Limit)

	res, err := e.Dispatch(context.Background(), testModel(), q, compiler.Options{})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 5)
}

func TestRun_Populate(t *testing.T) {
	e := setupTestEngine(t)

	res := run(t, e, "test", queryir.Raw{"name": "Project Title 2", "populate": "testRef"})

	require.Len(t, res.Rows, 1)
	ref, ok := res.Rows[0]["testRef"].(map[string]any)
	require.True(t, ok, "testRef should be populated, got %T", res.Rows[0]["testRef"])
	assert.Equal(t, "Project Title 1", ref["name"])
}

func TestOverride_QueryHooks(t *testing.T) {
	tests := []struct {
		name  string
		raw   queryir.Raw
		check func(t *testing.T, res *Result)
	}{
		{
			name: "limit and skip",
			raw:  queryir.Raw{"qName": "overrideLimitSkip"},
			check: func(t *testing.T, res *Result) {
				assert.Equal(t, []string{"Project Title 2", "Project Title 3"}, docNames(res.Rows))
			},
		},
		{
			name: "find",
			raw:  queryir.Raw{"qName": "overrideQuery"},
			check: func(t *testing.T, res *Result) {
				assert.Equal(t, []string{"Project Title 3"}, docNames(res.Rows))
			},
		},
		{
			name: "findOne",
			raw:  queryir.Raw{"qType": "one", "qName": "overrideQueryOne"},
			check: func(t *testing.T, res *Result) {
				require.Equal(t, ShapeDocument, res.Shape)
				assert.Equal(t, "Project Title 3", res.Doc["name"])
			},
		},
		{
			name: "count",
			raw:  queryir.Raw{"qType": "total", "qName": "overrideQueryTotal"},
			check: func(t *testing.T, res *Result) {
				assert.Equal(t, int64(1), res.Total)
			},
		},
		{
			name: "allTotal applies hook to both legs",
			raw:  queryir.Raw{"qType": "allTotal", "qName": "overrideQueryAllTotal"},
			check: func(t *testing.T, res *Result) {
				assert.Equal(t, []string{"Project Title 1", "Project Title 2", "Project Title 3"}, docNames(res.Rows))
				assert.Equal(t, int64(3), res.Total)
			},
		},
		{
			name: "allTotal with switched findOne",
			raw:  queryir.Raw{"qType": "allTotal", "qName": "overrideQueryOne"},
			check: func(t *testing.T, res *Result) {
				assert.Equal(t, []string{"Project Title 3"}, docNames(res.Rows))
				assert.Equal(t, int64(1), res.Total)
			},
		},
		{
			name: "unknown name runs default",
			raw:  queryir.Raw{"qName": "noSuchHook"},
			check: func(t *testing.T, res *Result) {
				assert.Equal(t, allTitles, docNames(res.Rows))
			},
		},
	}

	e := setupTestEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, run(t, e, "test", tt.raw))
		})
	}
}

func TestOverride_QueryHookScopedToOp(t *testing.T) {
	db := memstore.New()
	testutil.Seed(t, db)
	third := func(base store.Query, _ *queryir.CompiledQuery) store.Query {
		return base.Where(queryir.Eq("name", ir.NewIRString("Project Title 3")))
	}
	m := model.New("test", model.WithQuery("third", third, store.OpFind))
	e := New(WithSource(db))
	require.NoError(t, e.Register(m))

	rows := run(t, e, "test", queryir.Raw{"qName": "third"})
	assert.Equal(t, []string{"Project Title 3"}, docNames(rows.Rows))

	total := run(t, e, "test", queryir.Raw{"qName": "third", "qType": "total"})
	assert.Equal(t, int64(5), total.Total, "a find hook does not run under count")

	one := run(t, e, "test", queryir.Raw{"qName": "third", "qType": "one"})
	assert.Equal(t, "Project Title 1", one.Doc["name"])

	// allTotal's rows leg is a find, and the count leg reuses its hook.
	both := run(t, e, "test", queryir.Raw{"qName": "third", "qType": "allTotal"})
	assert.Equal(t, []string{"Project Title 3"}, docNames(both.Rows))
	assert.Equal(t, int64(1), both.Total)
}

func TestOverride_CollectionHookForcesAll(t *testing.T) {
	e := setupTestEngine(t)

	res := run(t, e, "test", queryir.Raw{"qType": "total", "qName": "staticsTest"})

	assert.Equal(t, queryir.TypeAll, res.Type)
	assert.Equal(t, queryir.TypeTotal, res.Requested)
	require.Equal(t, ShapeDocument, res.Shape)
	assert.Equal(t, "Project Title 5", res.Doc["name"])
}

func TestOverride_CollectionHookValue(t *testing.T) {
	e := setupTestEngine(t)

	res := run(t, e, "test", queryir.Raw{"qType": "allTotal", "qName": "staticsTestData"})

	assert.Equal(t, queryir.TypeAll, res.Type)
	assert.Equal(t, ShapeValue, res.Shape)
	assert.Equal(t, map[string]any{"a": 1}, res.Data())
}

func TestOverride_CollectionHookBeatsQueryHook(t *testing.T) {
	m := model.New("test",
		model.WithStatic("both", func(context.Context, store.Collection, *queryir.CompiledQuery, compiler.Options) (any, error) {
			return "static", nil
		}),
		model.WithQuery("both", func(base store.Query, _ *queryir.CompiledQuery) store.Query {
			return base.Limit(1)
		}),
	)
	e := setupTestEngine(t)

	res, err := e.Execute(context.Background(), m, queryir.Raw{"qName": "both"}, compiler.Options{})
	require.NoError(t, err)
	assert.Equal(t, "static", res.Value)
}

func TestOverride_CollectionHookError(t *testing.T) {
	boom := errors.New("boom")
	m := model.New("test", model.WithStatic("fail", func(context.Context, store.Collection, *queryir.CompiledQuery, compiler.Options) (any, error) {
		return nil, boom
	}))
	e := setupTestEngine(t)

	_, err := e.Execute(context.Background(), m, queryir.Raw{"qName": "fail"}, compiler.Options{})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "test.fail")
}

func TestTree(t *testing.T) {
	e := setupTestEngine(t)

	res := run(t, e, "category", queryir.Raw{"qType": "tree"})

	require.Equal(t, ShapeTree, res.Shape)
	require.Len(t, res.Tree, 3)
	children, ok := res.Tree["c1"][store.ChildrenField].(map[string]any)
	require.True(t, ok)
	assert.Len(t, children, 3)
	assert.Contains(t, children, "c1.2")
}

func TestArrayTree(t *testing.T) {
	e := setupTestEngine(t)

	res := run(t, e, "category", queryir.Raw{
		"qType":     "arrayTree",
		"childOpts": `{"sort":"-name"}`,
	})

	require.Equal(t, ShapeRoots, res.Shape)
	assert.Equal(t, []string{"Category 3", "Category 2", "Category 1"}, docNames(res.Roots))
	children, ok := res.Roots[0][store.ChildrenField].([]any)
	require.True(t, ok)
	require.Len(t, children, 3)
	assert.Equal(t, "Category 3.3", children[0].(map[string]any)["name"])
}

func TestTree_FilterScopesNodes(t *testing.T) {
	e := setupTestEngine(t)

	res := run(t, e, "category", queryir.Raw{"qType": "arrayTree", "parentId": "c2"})

	// Without their parent in the matched set the children become roots.
	assert.Equal(t, []string{"Category 2.1", "Category 2.2", "Category 2.3"}, docNames(res.Roots))
}

func TestDispatch_Errors(t *testing.T) {
	e := setupTestEngine(t)
	ctx := context.Background()

	t.Run("unsupported type", func(t *testing.T) {
		_, err := e.Run(ctx, "test", queryir.Raw{"qType": "bogus"}, compiler.Options{})
		assert.True(t, queryir.IsKind(err, queryir.KindUnsupportedType))
	})

	t.Run("unsupported type checked before store lookup", func(t *testing.T) {
		_, err := New().Execute(ctx, testModel(), queryir.Raw{"qType": "bogus"}, compiler.Options{})
		assert.True(t, queryir.IsKind(err, queryir.KindUnsupportedType))
	})

	t.Run("tree without builder", func(t *testing.T) {
		_, err := e.Run(ctx, "test", queryir.Raw{"qType": "tree"}, compiler.Options{})
		assert.True(t, queryir.IsKind(err, queryir.KindUnsupportedTree))
	})

	t.Run("parser error", func(t *testing.T) {
		_, err := e.Run(ctx, "test", queryir.Raw{"limit": "ten"}, compiler.Options{})
		assert.True(t, queryir.IsParserError(err))
	})

	t.Run("unknown model", func(t *testing.T) {
		_, err := e.Run(ctx, "nope", queryir.Raw{}, compiler.Options{})
		assert.ErrorIs(t, err, ErrUnknownModel)
	})

	t.Run("no store", func(t *testing.T) {
		_, err := New().Execute(ctx, testModel(), queryir.Raw{}, compiler.Options{})
		assert.ErrorIs(t, err, ErrNoStore)
	})
}

func TestDispatch_ModelSourceWins(t *testing.T) {
	own := memstore.New()
	_, err := own.Insert(context.Background(), "tests", store.Document{"_id": "x", "name": "Own"})
	require.NoError(t, err)

	e := setupTestEngine(t)
	m := model.New("test", model.WithSource(own))

	res, err := e.Execute(context.Background(), m, queryir.Raw{}, compiler.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Own"}, docNames(res.Rows))
}

// countingExec records store calls and fails on demand.
type countingExec struct {
	calls   atomic.Int64
	findErr error
}

func (c *countingExec) Find(ctx context.Context, _ store.Plan) ([]store.Document, error) {
	c.calls.Add(1)
	if c.findErr != nil {
		return nil, c.findErr
	}
	return nil, nil
}

func (c *countingExec) FindOne(context.Context, store.Plan) (store.Document, error) {
	c.calls.Add(1)
	return nil, nil
}

// Count blocks until the sibling leg's failure cancels it.
func (c *countingExec) Count(ctx context.Context, _ store.Plan) (int64, error) {
	c.calls.Add(1)
	if c.findErr != nil {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return 0, nil
}

type execSource struct{ exec store.Executor }

func (s execSource) Collection(name string) store.Collection {
	return store.NewCollection(s.exec, name)
}

func TestAllTotal_FailFast(t *testing.T) {
	boom := errors.New("connection reset")
	exec := &countingExec{findErr: boom}
	e := New(WithSource(execSource{exec}))

	res, err := e.Execute(context.Background(), testModel(), queryir.Raw{"qType": "allTotal"}, compiler.Options{})
	require.ErrorIs(t, err, boom)
	assert.Nil(t, res)
	assert.Equal(t, int64(2), exec.calls.Load())
}

func TestAllTotal_EmptyRowsNotNil(t *testing.T) {
	e := New(WithSource(execSource{&countingExec{}}))

	res, err := e.Execute(context.Background(), testModel(), queryir.Raw{"qType": "allTotal"}, compiler.Options{})
	require.NoError(t, err)
	assert.NotNil(t, res.Rows)
	assert.Empty(t, res.Rows)
}

func TestValidation_NoStoreCall(t *testing.T) {
	s, err := schema.Compile("list.cue", `limit: int & <=20`)
	require.NoError(t, err)
	exec := &countingExec{}
	e := New(WithSource(execSource{exec}))

	_, err = e.Execute(context.Background(), testModel(), queryir.Raw{"limit": "50"}, compiler.Options{Schema: s})
	assert.True(t, queryir.IsValidationError(err))
	assert.Zero(t, exec.calls.Load())
}

func TestShapeError(t *testing.T) {
	m := model.New("test", model.WithQuery("bad", func(base store.Query, _ *queryir.CompiledQuery) store.Query {
		return base.Count(queryir.And{})
	}))
	e := setupTestEngine(t)

	_, err := e.Execute(context.Background(), m, queryir.Raw{"qType": "allTotal", "qName": "bad"}, compiler.Options{})
	require.Error(t, err)
	assert.True(t, IsShapeError(err))
}

func TestResult_MarshalJSON(t *testing.T) {
	e := setupTestEngine(t)

	res := run(t, e, "test", queryir.Raw{"qType": "allTotal", "limit": "1", "fields": "name,-_id"})

	b, err := res.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"rows":[{"name":"Project Title 1"}],"total":5}`, string(b))
}

func TestRun_Concurrent(t *testing.T) {
	e := setupTestEngine(t)
	ctx := context.Background()

	const n = 20
	errs := make(chan error, n)
	for range n {
		go func() {
			res, err := e.Run(ctx, "test", queryir.Raw{"qType": "allTotal"}, compiler.Options{})
			if err == nil && res.Total != 5 {
				err = errors.New("wrong total")
			}
			errs <- err
		}()
	}
	for range n {
		require.NoError(t, <-errs)
	}
}
