package engine

import (
	"context"

	"github.com/roach88/docquery/internal/model"
	"github.com/roach88/docquery/internal/queryir"
	"github.com/roach88/docquery/internal/store"
)

// defaultQuery builds the lazy query for a non-tree type.
//
//	all, allTotal  find     sort skip limit select populate
//	one            findOne  sort skip select populate
//	total          count    filter only
func defaultQuery(coll store.Collection, q *queryir.CompiledQuery) (store.Query, error) {
	switch q.Type {
	case queryir.TypeAll, queryir.TypeAllTotal:
		return coll.Find(q.Filter).
			Sort(q.Sort).
			Skip(q.Skip).
			Limit(q.Limit).
			Select(q.Projection).
			Populate(q.Populate), nil
	case queryir.TypeOne:
		return coll.FindOne(q.Filter).
			Sort(q.Sort).
			Skip(q.Skip).
			Select(q.Projection).
			Populate(q.Populate), nil
	case queryir.TypeTotal:
		return coll.Count(q.Filter), nil
	default:
		return nil, queryir.UnsupportedTypeError(q.Type)
	}
}

// buildTree hands filter and childOpts to the model's tree builder.
// Override hooks do not apply to tree types.
func (e *Engine) buildTree(ctx context.Context, m *model.Model, coll store.Collection, q *queryir.CompiledQuery) (*Result, error) {
	builder, ok := m.Tree()
	if !ok {
		return nil, queryir.UnsupportedTreeError(m.Name(), q.Type)
	}

	if q.Type == queryir.TypeTree {
		tree, err := builder.Tree(ctx, coll, q.Filter, q.ChildOpts)
		if err != nil {
			return nil, err
		}
		return &Result{Type: q.Type, Requested: q.Type, Shape: ShapeTree, Tree: tree}, nil
	}

	roots, err := builder.ArrayTree(ctx, coll, q.Filter, q.ChildOpts)
	if err != nil {
		return nil, err
	}
	if roots == nil {
		roots = []store.Document{}
	}
	return &Result{Type: q.Type, Requested: q.Type, Shape: ShapeRoots, Roots: roots}, nil
}
