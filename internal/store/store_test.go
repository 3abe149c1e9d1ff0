package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docquery/internal/ir"
	"github.com/roach88/docquery/internal/queryir"
	"github.com/roach88/docquery/internal/store"
	"github.com/roach88/docquery/internal/store/memstore"
	"github.com/roach88/docquery/internal/testutil"
)

// recorder captures the plans it is asked to run.
type recorder struct {
	plans []store.Plan
	err   error
}

func (r *recorder) Find(_ context.Context, p store.Plan) ([]store.Document, error) {
	r.plans = append(r.plans, p)
	return []store.Document{{"_id": "a"}}, r.err
}

func (r *recorder) FindOne(_ context.Context, p store.Plan) (store.Document, error) {
	r.plans = append(r.plans, p)
	return store.Document{"_id": "a"}, r.err
}

func (r *recorder) Count(_ context.Context, p store.Plan) (int64, error) {
	r.plans = append(r.plans, p)
	return 7, r.err
}

func TestChain_Immutable(t *testing.T) {
	rec := &recorder{}
	base := store.NewChain(rec, "tests")

	limited := base.Limit(5).Skip(2)
	sorted := limited.Sort([]queryir.SortKey{{Field: "name", Dir: 1}})

	assert.Equal(t, 0, base.Plan().Limit)
	assert.Equal(t, 5, limited.(store.Chain).Plan().Limit)
	assert.Empty(t, limited.(store.Chain).Plan().Sort)
	assert.Equal(t, []queryir.SortKey{{Field: "name", Dir: 1}}, sorted.(store.Chain).Plan().Sort)
}

func TestChain_SwitchOpMergesFilter(t *testing.T) {
	rec := &recorder{}
	q := store.NewCollection(rec, "tests").
		Find(queryir.Conjoin(queryir.Eq("a", ir.IRInt(1)))).
		Count(queryir.Conjoin(queryir.Eq("b", ir.IRInt(2))))

	assert.Equal(t, store.OpCount, q.Op())
	res, err := q.Exec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), res)

	require.Len(t, rec.plans, 1)
	assert.Equal(t, []string{"a", "b"}, queryir.Fields(rec.plans[0].Filter))
	assert.Equal(t, "tests", rec.plans[0].Collection)
}

func TestChain_ExecDispatchesByOp(t *testing.T) {
	rec := &recorder{}
	coll := store.NewCollection(rec, "tests")
	ctx := context.Background()

	res, err := coll.Find(queryir.And{}).Exec(ctx)
	require.NoError(t, err)
	assert.IsType(t, []store.Document{}, res)

	res, err = coll.FindOne(queryir.And{}).Exec(ctx)
	require.NoError(t, err)
	assert.IsType(t, store.Document{}, res)

	res, err = coll.Count(queryir.And{}).Exec(ctx)
	require.NoError(t, err)
	assert.IsType(t, int64(0), res)
}

func TestChain_ErrorsKeepCause(t *testing.T) {
	cause := errors.New("disk on fire")
	rec := &recorder{err: cause}

	_, err := store.NewCollection(rec, "tests").Find(queryir.And{}).Exec(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "find tests")
}

func TestChain_WhereAndPopulateAppend(t *testing.T) {
	rec := &recorder{}
	q := store.NewChain(rec, "tests").
		Where(queryir.Eq("a", ir.IRInt(1))).
		Where(queryir.Eq("b", ir.IRInt(2))).
		Populate([]queryir.PopulateSpec{{Path: "x"}}).
		Populate([]queryir.PopulateSpec{{Path: "y"}})

	plan := q.(store.Chain).Plan()
	assert.Equal(t, []string{"a", "b"}, queryir.Fields(plan.Filter))
	assert.Len(t, plan.Filter.Predicates, 2)
	assert.Equal(t, []queryir.PopulateSpec{{Path: "x"}, {Path: "y"}}, plan.Populate)
}

func TestProject(t *testing.T) {
	doc := store.Document{
		"_id":  "1",
		"name": "n",
		"meta": map[string]any{"a": int64(1), "b": int64(2)},
	}

	tests := []struct {
		name string
		proj queryir.Projection
		want store.Document
	}{
		{"empty keeps all", queryir.Projection{}, doc},
		{"include", queryir.Projection{Fields: []string{"name"}}, store.Document{"_id": "1", "name": "n"}},
		{"include without id", queryir.Projection{Fields: []string{"name", "-_id"}}, store.Document{"name": "n"}},
		{"include dotted", queryir.Projection{Fields: []string{"meta.a"}}, store.Document{"_id": "1", "meta": map[string]any{"a": int64(1)}}},
		{"exclude", queryir.Projection{Fields: []string{"meta"}, Exclude: true}, store.Document{"_id": "1", "name": "n"}},
		{"exclude dotted", queryir.Projection{Fields: []string{"meta.b", "_id"}, Exclude: true},
			store.Document{"name": "n", "meta": map[string]any{"a": int64(1)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, store.Project(doc, tt.proj))
		})
	}
	assert.Equal(t, map[string]any{"a": int64(1), "b": int64(2)}, doc["meta"], "source untouched")
}

func TestLookup(t *testing.T) {
	doc := map[string]any{"a": map[string]any{"b": map[string]any{"c": "deep"}}, "x.y": "flat"}

	v, ok := store.Lookup(doc, "a.b.c")
	assert.True(t, ok)
	assert.Equal(t, "deep", v)

	v, ok = store.Lookup(doc, "x.y")
	assert.True(t, ok)
	assert.Equal(t, "flat", v)

	_, ok = store.Lookup(doc, "a.z")
	assert.False(t, ok)
}

func TestRefs(t *testing.T) {
	refs := store.NewRefs()
	refs.Define("tests", "owner", "users")

	target, ok := refs.Target("tests", "owner")
	assert.True(t, ok)
	assert.Equal(t, "users", target)

	_, ok = refs.Target("tests", "other")
	assert.False(t, ok)

	var nilRefs *store.Refs
	_, ok = nilRefs.Target("tests", "owner")
	assert.False(t, ok)
}

func setupCategories(t *testing.T) store.Collection {
	t.Helper()
	db := memstore.New()
	testutil.Seed(t, db)
	return db.Collection(testutil.CategoriesCollection)
}

func childNames(t *testing.T, children any) []string {
	t.Helper()
	list, ok := children.([]any)
	require.True(t, ok, "children is %T", children)
	out := make([]string, len(list))
	for i, c := range list {
		out[i] = c.(map[string]any)["name"].(string)
	}
	return out
}

func TestMaterializedTree_ArrayTree(t *testing.T) {
	coll := setupCategories(t)

	roots, err := store.MaterializedTree{}.ArrayTree(context.Background(), coll, queryir.And{}, nil)
	require.NoError(t, err)
	require.Len(t, roots, 3)
	assert.Equal(t, "Category 1", roots[0]["name"])
	assert.Equal(t, []string{"Category 1.1", "Category 1.2", "Category 1.3"}, childNames(t, roots[0]["children"]))
	assert.Equal(t, []string{"Category 3.1", "Category 3.2", "Category 3.3"}, childNames(t, roots[2]["children"]))
}

func TestMaterializedTree_ChildOpts(t *testing.T) {
	coll := setupCategories(t)

	roots, err := store.MaterializedTree{}.ArrayTree(context.Background(), coll, queryir.And{},
		map[string]any{"sort": "-name", "fields": "name,-_id"})
	require.NoError(t, err)
	require.Len(t, roots, 3)
	assert.Equal(t, "Category 3", roots[0]["name"])
	assert.NotContains(t, roots[0], "_id")
	assert.NotContains(t, roots[0], "parentId")
	assert.Equal(t, []string{"Category 3.3", "Category 3.2", "Category 3.1"}, childNames(t, roots[0]["children"]))
}

func TestMaterializedTree_Tree(t *testing.T) {
	coll := setupCategories(t)

	tree, err := store.MaterializedTree{}.Tree(context.Background(), coll, queryir.And{}, nil)
	require.NoError(t, err)
	require.Len(t, tree, 3)

	c2, ok := tree["c2"]
	require.True(t, ok)
	children, ok := c2["children"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, children, 3)
	assert.Equal(t, "Category 2.2", children["c2.2"].(map[string]any)["name"])
}

func TestMaterializedTree_FilteredSubtree(t *testing.T) {
	coll := setupCategories(t)

	// Children whose parent is filtered out become roots.
	roots, err := store.MaterializedTree{}.ArrayTree(context.Background(), coll,
		queryir.Conjoin(queryir.Eq("parentId", ir.IRString("c1"))), nil)
	require.NoError(t, err)
	require.Len(t, roots, 3)
	assert.Equal(t, "Category 1.1", roots[0]["name"])
	assert.Empty(t, roots[0]["children"])
}

func TestMaterializedTree_BadChildOpts(t *testing.T) {
	coll := setupCategories(t)

	_, err := store.MaterializedTree{}.Tree(context.Background(), coll, queryir.And{},
		map[string]any{"fields": "a,-b"})
	require.Error(t, err)
	assert.True(t, queryir.IsParserError(err))
}

func TestMaterializedTree_ParentCycle(t *testing.T) {
	ctx := context.Background()
	db := memstore.New()
	_, err := db.Insert(ctx, "nodes",
		store.Document{"_id": "a", "name": "A", "parentId": "b"},
		store.Document{"_id": "b", "name": "B", "parentId": "a"},
		store.Document{"_id": "c", "name": "C"},
	)
	require.NoError(t, err)
	coll := db.Collection("nodes")
	opts := map[string]any{"sort": "name"}

	roots, err := store.MaterializedTree{}.ArrayTree(ctx, coll, queryir.And{}, opts)
	require.NoError(t, err)
	require.Len(t, roots, 2)
	assert.Equal(t, "C", roots[0]["name"])
	assert.Equal(t, "A", roots[1]["name"])
	assert.Equal(t, []string{"B"}, childNames(t, roots[1]["children"]))
	b := roots[1]["children"].([]any)[0].(map[string]any)
	assert.Empty(t, b["children"])

	tree, err := store.MaterializedTree{}.Tree(ctx, coll, queryir.And{}, opts)
	require.NoError(t, err)
	require.Len(t, tree, 2)
	require.Contains(t, tree, "a")
	assert.Contains(t, tree["a"]["children"], "b")
	assert.Contains(t, tree, "c")
}
