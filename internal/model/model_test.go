package model_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docquery/internal/compiler"
	"github.com/roach88/docquery/internal/model"
	"github.com/roach88/docquery/internal/queryir"
	"github.com/roach88/docquery/internal/store"
	"github.com/roach88/docquery/internal/store/memstore"
)

func TestCollectionName(t *testing.T) {
	tests := map[string]string{
		"test":        "tests",
		"Category":    "categories",
		"ProjectItem": "project_items",
		"person":      "people",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, model.CollectionName(in))
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	m := model.New("Category")
	assert.Equal(t, "Category", m.Name())
	assert.Equal(t, "categories", m.CollectionName())
	assert.Nil(t, m.Source())

	_, ok := m.Tree()
	assert.False(t, ok)

	_, err := m.Collection()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no store bound")
}

func TestHooks(t *testing.T) {
	static := func(context.Context, store.Collection, *queryir.CompiledQuery, compiler.Options) (any, error) {
		return map[string]any{"a": 1}, nil
	}
	query := func(base store.Query, _ *queryir.CompiledQuery) store.Query { return base.Limit(2) }

	m := model.New("test",
		model.WithCollection("projects"),
		model.WithStatic("staticsTestData", static),
		model.WithQuery("overrideLimitSkip", query),
		model.WithTree(store.MaterializedTree{}),
	)
	assert.Equal(t, "projects", m.CollectionName())

	_, ok := m.Static("staticsTestData")
	assert.True(t, ok)
	_, ok = m.Static("overrideLimitSkip")
	assert.False(t, ok, "query hooks are not statics")
	_, ok = m.Query("overrideLimitSkip", store.OpCount)
	assert.True(t, ok, "a hook without ops answers to every operation")
	_, ok = m.Query("", store.OpFind)
	assert.False(t, ok)
	_, ok = m.Tree()
	assert.True(t, ok)

	statics, queries := m.HookNames()
	assert.Equal(t, []string{"staticsTestData"}, statics)
	assert.Equal(t, []string{"overrideLimitSkip"}, queries)
}

func TestQueryHookOps(t *testing.T) {
	limit := func(n int) model.QueryHook {
		return func(base store.Query, _ *queryir.CompiledQuery) store.Query { return base.Limit(n) }
	}
	m := model.New("test",
		model.WithQuery("rowsOnly", limit(1), store.OpFind),
		model.WithQuery("split", limit(2)),
		model.WithQuery("split", limit(3), store.OpFindOne, store.OpCount),
	)
	coll := memstore.New().Collection("tests")
	limitOf := func(h model.QueryHook) int {
		return h(coll.Find(queryir.And{}), &queryir.CompiledQuery{}).(store.Chain).Plan().Limit
	}

	h, ok := m.Query("rowsOnly", store.OpFind)
	require.True(t, ok)
	assert.Equal(t, 1, limitOf(h))
	_, ok = m.Query("rowsOnly", store.OpCount)
	assert.False(t, ok)
	_, ok = m.Query("rowsOnly", store.OpFindOne)
	assert.False(t, ok)

	h, ok = m.Query("split", store.OpFind)
	require.True(t, ok)
	assert.Equal(t, 2, limitOf(h))
	h, ok = m.Query("split", store.OpCount)
	require.True(t, ok)
	assert.Equal(t, 3, limitOf(h))

	_, queries := m.HookNames()
	assert.Equal(t, []string{"rowsOnly", "split"}, queries)
}

func TestBind(t *testing.T) {
	first := memstore.New()
	second := memstore.New()

	m := model.New("test")
	assert.Same(t, first, m.Bind(first))
	assert.Same(t, first, m.Bind(second), "an existing binding wins")

	coll, err := m.Collection()
	require.NoError(t, err)
	assert.Equal(t, "tests", coll.Name())

	bound := model.New("test", model.WithSource(second))
	assert.Same(t, second, bound.Bind(first))
}

func TestRegistry(t *testing.T) {
	r := model.NewRegistry()
	require.NoError(t, r.Register(model.New("test"), model.New("category")))

	m, ok := r.Lookup("test")
	require.True(t, ok)
	assert.Equal(t, "tests", m.CollectionName())

	_, ok = r.Lookup("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"category", "test"}, r.Names())

	err := r.Register(model.New("test"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate model")

	assert.Error(t, r.Register(model.New("")))
}

func TestRegistry_ConcurrentLookups(t *testing.T) {
	r := model.NewRegistry()
	require.NoError(t, r.Register(model.New("test")))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := r.Lookup("test")
			assert.True(t, ok)
			_ = r.Names()
		}()
	}
	wg.Wait()
}
