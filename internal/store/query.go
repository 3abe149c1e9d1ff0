package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/docquery/internal/queryir"
)

// Op is the terminal read a Query performs.
type Op string

const (
	OpFind    Op = "find"
	OpFindOne Op = "findOne"
	OpCount   Op = "count"
)

// Query is a lazy read against one collection. Methods never modify the
// receiver; they return the extended query. Nothing touches the store
// until Exec.
//
// Exec returns []Document for OpFind, Document (nil when nothing matched)
// for OpFindOne and int64 for OpCount.
type Query interface {
	Op() Op

	// Find, FindOne and Count switch the terminal read and AND filter
	// into the existing conditions.
	Find(filter queryir.And) Query
	FindOne(filter queryir.And) Query
	Count(filter queryir.And) Query

	Where(preds ...queryir.Predicate) Query
	Sort(keys []queryir.SortKey) Query
	Skip(n int) Query
	Limit(n int) Query
	Select(p queryir.Projection) Query
	Populate(specs []queryir.PopulateSpec) Query

	Exec(ctx context.Context) (any, error)
}

// Collection is the entry point for reads against one collection.
type Collection interface {
	Name() string
	Find(filter queryir.And) Query
	FindOne(filter queryir.And) Query
	Count(filter queryir.And) Query
}

// Plan is the fully built read handed to an Executor.
type Plan struct {
	Collection string
	Op         Op
	Filter     queryir.And
	Sort       []queryir.SortKey
	Skip       int
	// Limit of 0 means no limit.
	Limit      int
	Projection queryir.Projection
	Populate   []queryir.PopulateSpec
}

// Executor runs plans. Backends implement it; Chain adapts it to Query.
type Executor interface {
	Find(ctx context.Context, p Plan) ([]Document, error)
	FindOne(ctx context.Context, p Plan) (Document, error)
	Count(ctx context.Context, p Plan) (int64, error)
}

// Chain is the Query implementation shared by every backend.
type Chain struct {
	exec Executor
	plan Plan
}

// NewChain starts a find query against collection.
func NewChain(exec Executor, collection string) Chain {
	return Chain{exec: exec, plan: Plan{Collection: collection, Op: OpFind}}
}

// Plan returns a copy of the plan built so far.
func (c Chain) Plan() Plan {
	return c.plan.clone()
}

func (p Plan) clone() Plan {
	p.Filter = queryir.And{Predicates: slices.Clone(p.Filter.Predicates)}
	p.Sort = slices.Clone(p.Sort)
	p.Projection.Fields = slices.Clone(p.Projection.Fields)
	p.Populate = slices.Clone(p.Populate)
	return p
}

func (c Chain) with(fn func(p *Plan)) Chain {
	next := Chain{exec: c.exec, plan: c.plan.clone()}
	fn(&next.plan)
	return next
}

func (c Chain) Op() Op { return c.plan.Op }

func (c Chain) Find(filter queryir.And) Query    { return c.switchOp(OpFind, filter) }
func (c Chain) FindOne(filter queryir.And) Query { return c.switchOp(OpFindOne, filter) }
func (c Chain) Count(filter queryir.And) Query   { return c.switchOp(OpCount, filter) }

func (c Chain) switchOp(op Op, filter queryir.And) Query {
	return c.with(func(p *Plan) {
		p.Op = op
		p.Filter = queryir.Conjoin(p.Filter, filter)
	})
}

func (c Chain) Where(preds ...queryir.Predicate) Query {
	return c.with(func(p *Plan) {
		p.Filter = queryir.Conjoin(append([]queryir.Predicate{p.Filter}, preds...)...)
	})
}

// Sort replaces the sort order.
func (c Chain) Sort(keys []queryir.SortKey) Query {
	return c.with(func(p *Plan) { p.Sort = slices.Clone(keys) })
}

func (c Chain) Skip(n int) Query {
	return c.with(func(p *Plan) { p.Skip = max(n, 0) })
}

func (c Chain) Limit(n int) Query {
	return c.with(func(p *Plan) { p.Limit = max(n, 0) })
}

func (c Chain) Select(proj queryir.Projection) Query {
	return c.with(func(p *Plan) { p.Projection = proj })
}

// Populate appends relation specs.
func (c Chain) Populate(specs []queryir.PopulateSpec) Query {
	return c.with(func(p *Plan) { p.Populate = append(p.Populate, specs...) })
}

// Exec runs the plan. Backend errors are returned with the collection and
// operation as context.
func (c Chain) Exec(ctx context.Context) (any, error) {
	if c.exec == nil {
		return nil, fmt.Errorf("%s %s: no executor", c.plan.Op, c.plan.Collection)
	}
	plan := c.plan.clone()
	switch plan.Op {
	case OpFind:
		docs, err := c.exec.Find(ctx, plan)
		if err != nil {
			return nil, fmt.Errorf("find %s: %w", plan.Collection, err)
		}
		return docs, nil
	case OpFindOne:
		doc, err := c.exec.FindOne(ctx, plan)
		if err != nil {
			return nil, fmt.Errorf("findOne %s: %w", plan.Collection, err)
		}
		return doc, nil
	case OpCount:
		n, err := c.exec.Count(ctx, plan)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", plan.Collection, err)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("%s: unknown operation %q", plan.Collection, plan.Op)
	}
}

// ChainCollection adapts an Executor to Collection.
type ChainCollection struct {
	exec Executor
	name string
}

// NewCollection returns the Collection named name backed by exec.
func NewCollection(exec Executor, name string) ChainCollection {
	return ChainCollection{exec: exec, name: name}
}

func (c ChainCollection) Name() string { return c.name }

func (c ChainCollection) Find(filter queryir.And) Query {
	return NewChain(c.exec, c.name).Find(filter)
}

func (c ChainCollection) FindOne(filter queryir.And) Query {
	return NewChain(c.exec, c.name).FindOne(filter)
}

func (c ChainCollection) Count(filter queryir.And) Query {
	return NewChain(c.exec, c.name).Count(filter)
}
