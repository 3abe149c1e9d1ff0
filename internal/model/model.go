// Package model holds the per-model capabilities the engine consults at
// query time: the backing collection, named override hooks and an optional
// tree builder.
//
// Models are configured once at setup. Lookups are read-only afterwards
// and safe for concurrent use.
package model

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/go-openapi/inflect"

	"github.com/roach88/docquery/internal/compiler"
	"github.com/roach88/docquery/internal/queryir"
	"github.com/roach88/docquery/internal/store"
)

// CollectionHook is a collection-level override. It receives the model's
// collection and the compiled query and returns a resolved value. A
// store.Query return value is executed by the engine; anything else is
// returned as-is.
type CollectionHook func(ctx context.Context, coll store.Collection, q *queryir.CompiledQuery, opts compiler.Options) (any, error)

// QueryHook is a query-level override. It receives the default lazy query
// and returns a replacement chained from it.
type QueryHook func(base store.Query, q *queryir.CompiledQuery) store.Query

// TreeBuilder materializes parent/child hierarchies.
type TreeBuilder interface {
	Tree(ctx context.Context, coll store.Collection, filter queryir.And, childOpts map[string]any) (map[string]store.Document, error)
	ArrayTree(ctx context.Context, coll store.Collection, filter queryir.And, childOpts map[string]any) ([]store.Document, error)
}

// Source hands out collections by name. Every store backend implements it.
type Source interface {
	Collection(name string) store.Collection
}

// Model describes one queryable document type.
type Model struct {
	name       string
	collection string
	source     Source

	mu      sync.RWMutex
	statics map[string]CollectionHook
	queries map[string]map[store.Op]QueryHook
	tree    TreeBuilder
}

// Option configures a Model.
type Option func(*Model)

// WithCollection overrides the collection name derived from the model name.
func WithCollection(name string) Option {
	return func(m *Model) {
		m.collection = name
	}
}

// WithSource binds the model to a store.
func WithSource(s Source) Option {
	return func(m *Model) {
		m.source = s
	}
}

// WithStatic registers a collection-level hook.
func WithStatic(name string, hook CollectionHook) Option {
	return func(m *Model) {
		m.statics[name] = hook
	}
}

// anyOp keys a query hook that answers to every store operation.
const anyOp store.Op = ""

// WithQuery registers a query-level hook for the given store operations,
// or for every operation when ops is empty. One name may carry a
// different hook per operation.
func WithQuery(name string, hook QueryHook, ops ...store.Op) Option {
	return func(m *Model) {
		byOp, ok := m.queries[name]
		if !ok {
			byOp = make(map[store.Op]QueryHook)
			m.queries[name] = byOp
		}
		if len(ops) == 0 {
			byOp[anyOp] = hook
			return
		}
		for _, op := range ops {
			byOp[op] = hook
		}
	}
}

// WithTree enables the tree and arrayTree query types.
func WithTree(b TreeBuilder) Option {
	return func(m *Model) {
		m.tree = b
	}
}

// New creates a model. The collection defaults to the pluralized,
// underscored model name: "Category" → "categories".
func New(name string, opts ...Option) *Model {
	m := &Model{
		name:       name,
		collection: CollectionName(name),
		statics:    make(map[string]CollectionHook),
		queries:    make(map[string]map[store.Op]QueryHook),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CollectionName derives the default collection name for a model.
func CollectionName(model string) string {
	return inflect.Pluralize(strings.ToLower(inflect.Underscore(model)))
}

// Name returns the model name.
func (m *Model) Name() string {
	return m.name
}

// CollectionName returns the backing collection's name.
func (m *Model) CollectionName() string {
	return m.collection
}

// Source returns the bound store, or nil.
func (m *Model) Source() Source {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.source
}

// Bind sets the store when none is bound yet and reports the store in use.
func (m *Model) Bind(s Source) Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.source == nil {
		m.source = s
	}
	return m.source
}

// Collection returns the backing collection on the bound store.
func (m *Model) Collection() (store.Collection, error) {
	src := m.Source()
	if src == nil {
		return nil, fmt.Errorf("model %s: no store bound", m.name)
	}
	return src.Collection(m.collection), nil
}

// Static returns the collection-level hook registered under name.
func (m *Model) Static(name string) (CollectionHook, bool) {
	if name == "" {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.statics[name]
	return h, ok
}

// Query returns the query-level hook registered under name for op. A hook
// registered for op wins over one registered for every operation.
func (m *Model) Query(name string, op store.Op) (QueryHook, bool) {
	if name == "" {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	byOp := m.queries[name]
	if h, ok := byOp[op]; ok {
		return h, true
	}
	h, ok := byOp[anyOp]
	return h, ok
}

// Tree returns the model's tree builder.
func (m *Model) Tree() (TreeBuilder, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree, m.tree != nil
}

// HookNames lists registered hook names, statics first, each group sorted.
func (m *Model) HookNames() (statics, queries []string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for n := range m.statics {
		statics = append(statics, n)
	}
	for n := range m.queries {
		queries = append(queries, n)
	}
	slices.Sort(statics)
	slices.Sort(queries)
	return statics, queries
}
