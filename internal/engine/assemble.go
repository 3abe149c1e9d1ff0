package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/docquery/internal/compiler"
	"github.com/roach88/docquery/internal/model"
	"github.com/roach88/docquery/internal/queryir"
	"github.com/roach88/docquery/internal/store"
)

// Shape names which Result field carries the data.
type Shape string

const (
	ShapeRows      Shape = "rows"
	ShapeDocument  Shape = "document"
	ShapeTotal     Shape = "total"
	ShapeRowsTotal Shape = "rowsTotal"
	ShapeTree      Shape = "tree"
	ShapeRoots     Shape = "roots"
	ShapeValue     Shape = "value"
)

// Result is the outcome of one query.
type Result struct {
	// Type is the effective query type; a collection hook forces all.
	Type queryir.QueryType

	// Requested is the query type the caller asked for.
	Requested queryir.QueryType

	Shape Shape
	Rows  []store.Document
	Doc   store.Document
	Total int64
	Tree  map[string]store.Document
	Roots []store.Document
	Value any
}

// RowsTotal is the allTotal payload.
type RowsTotal struct {
	Rows  []store.Document `json:"rows"`
	Total int64            `json:"total"`
}

// Data returns the payload in its natural shape: []Document, Document
// (nil when nothing matched), int64, RowsTotal, a tree map, a root slice
// or a hook's value.
func (r *Result) Data() any {
	switch r.Shape {
	case ShapeRows:
		return r.Rows
	case ShapeDocument:
		if r.Doc == nil {
			return nil
		}
		return r.Doc
	case ShapeTotal:
		return r.Total
	case ShapeRowsTotal:
		return RowsTotal{Rows: r.Rows, Total: r.Total}
	case ShapeTree:
		return r.Tree
	case ShapeRoots:
		return r.Roots
	default:
		return r.Value
	}
}

// MarshalJSON renders the payload only.
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Data())
}

// runQuery resolves overrides and executes a non-tree query.
func (e *Engine) runQuery(ctx context.Context, m *model.Model, coll store.Collection, q *queryir.CompiledQuery, opts compiler.Options) (*Result, error) {
	base, err := defaultQuery(coll, q)
	if err != nil {
		return nil, err
	}
	res, err := resolve(ctx, m, coll, q, opts, base)
	if err != nil {
		return nil, err
	}

	if res.typ == queryir.TypeAllTotal {
		return runAllTotal(ctx, coll, q, res)
	}

	out := &Result{Type: res.typ, Requested: q.Type}
	v := res.value
	if res.query != nil {
		if v, err = res.query.Exec(ctx); err != nil {
			return nil, err
		}
	}
	fill(out, v)
	return out, nil
}

// fill stores v in the field its type selects.
func fill(r *Result, v any) {
	switch val := v.(type) {
	case []store.Document:
		if val == nil {
			val = []store.Document{}
		}
		r.Shape, r.Rows = ShapeRows, val
	case store.Document:
		r.Shape, r.Doc = ShapeDocument, val
	case int64:
		r.Shape, r.Total = ShapeTotal, val
	default:
		r.Shape, r.Value = ShapeValue, v
	}
}

// runAllTotal runs the rows and count legs concurrently. The first error
// cancels the other leg and is returned; there is no partial result.
func runAllTotal(ctx context.Context, coll store.Collection, q *queryir.CompiledQuery, res resolution) (*Result, error) {
	var (
		rows  []store.Document
		total int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := res.query.Exec(gctx)
		if err != nil {
			return err
		}
		rows, err = asRows(v)
		return err
	})
	g.Go(func() error {
		v, err := countQuery(coll, q, res.hook).Exec(gctx)
		if err != nil {
			return err
		}
		n, ok := v.(int64)
		if !ok {
			return &ShapeError{Leg: "total", Got: fmt.Sprintf("%T", v)}
		}
		total = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Result{
		Type:      queryir.TypeAllTotal,
		Requested: q.Type,
		Shape:     ShapeRowsTotal,
		Rows:      rows,
		Total:     total,
	}, nil
}

// asRows accepts a find result, or a findOne result from a hook that
// switched the operation.
func asRows(v any) ([]store.Document, error) {
	switch val := v.(type) {
	case []store.Document:
		if val == nil {
			return []store.Document{}, nil
		}
		return val, nil
	case store.Document:
		if val == nil {
			return []store.Document{}, nil
		}
		return []store.Document{val}, nil
	default:
		return nil, &ShapeError{Leg: "rows", Got: fmt.Sprintf("%T", v)}
	}
}
