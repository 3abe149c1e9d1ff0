package model

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/docquery/internal/compiler"
	"github.com/roach88/docquery/internal/parser"
	"github.com/roach88/docquery/internal/queryir"
	"github.com/roach88/docquery/internal/store"
)

// Spec is a declarative model definition, read from scenario files and
// CLI configuration.
//
//	name: test
//	refs: {testRef: tests}
//	queries:
//	  titleThree: {op: find, filter: {name: "Project Title 3"}}
//	  firstTwo: {on: [find], limit: 2}
//	statics:
//	  constant: {value: {a: 1}}
type Spec struct {
	Name       string              `yaml:"name" mapstructure:"name"`
	Collection string              `yaml:"collection,omitempty" mapstructure:"collection"`
	Refs       map[string]string   `yaml:"refs,omitempty" mapstructure:"refs"`
	Tree       *TreeSpec           `yaml:"tree,omitempty" mapstructure:"tree"`
	Queries    map[string]HookSpec `yaml:"queries,omitempty" mapstructure:"queries"`
	Statics    map[string]HookSpec `yaml:"statics,omitempty" mapstructure:"statics"`
}

// TreeSpec enables tree and arrayTree queries.
type TreeSpec struct {
	ParentField string `yaml:"parentField,omitempty" mapstructure:"parentField"`
}

// HookSpec describes an override hook as data.
//
// For a query hook, Op switches the default query's operation and Filter
// is ANDed into it; an empty Op keeps the operation. On limits the hook to
// default queries with those operations; empty means all. For a collection
// hook a non-nil Value is returned as-is, otherwise a fresh query is built.
type HookSpec struct {
	Op     string         `yaml:"op,omitempty" mapstructure:"op"`
	On     []string       `yaml:"on,omitempty" mapstructure:"on"`
	Filter map[string]any `yaml:"filter,omitempty" mapstructure:"filter"`
	Sort   any            `yaml:"sort,omitempty" mapstructure:"sort"`
	Skip   *int           `yaml:"skip,omitempty" mapstructure:"skip"`
	Limit  *int           `yaml:"limit,omitempty" mapstructure:"limit"`
	Value  any            `yaml:"value,omitempty" mapstructure:"value"`
}

// hook is a HookSpec with its filter and sort parsed.
type hook struct {
	op     store.Op
	on     []store.Op
	filter queryir.And
	sort   []queryir.SortKey
	skip   *int
	limit  *int
	value  any
}

// Build creates a Model from s. Filters are parsed with p so hook filters
// accept the same syntax as query parameters.
func (s Spec) Build(p *parser.Parser, opts ...Option) (*Model, error) {
	if s.Name == "" {
		return nil, fmt.Errorf("model spec: name is required")
	}

	var all []Option
	if s.Collection != "" {
		all = append(all, WithCollection(s.Collection))
	}
	if s.Tree != nil {
		all = append(all, WithTree(store.MaterializedTree{ParentField: s.Tree.ParentField}))
	}

	for _, name := range slices.Sorted(maps.Keys(s.Queries)) {
		h, err := s.Queries[name].parse(p)
		if err != nil {
			return nil, fmt.Errorf("model %s: query hook %s: %w", s.Name, name, err)
		}
		all = append(all, WithQuery(name, h.query, h.on...))
	}
	for _, name := range slices.Sorted(maps.Keys(s.Statics)) {
		spec := s.Statics[name]
		if len(spec.On) > 0 {
			return nil, fmt.Errorf("model %s: collection hook %s: on applies to query hooks only", s.Name, name)
		}
		h, err := spec.parse(p)
		if err != nil {
			return nil, fmt.Errorf("model %s: collection hook %s: %w", s.Name, name, err)
		}
		all = append(all, WithStatic(name, h.static))
	}

	return New(s.Name, append(all, opts...)...), nil
}

// DefineRefs registers the spec's relations on refs, keyed by the model's
// collection.
func (s Spec) DefineRefs(refs *store.Refs) {
	coll := s.Collection
	if coll == "" {
		coll = CollectionName(s.Name)
	}
	for path, target := range s.Refs {
		refs.Define(coll, path, target)
	}
}

func (h HookSpec) parse(p *parser.Parser) (hook, error) {
	out := hook{skip: h.Skip, limit: h.Limit, value: h.Value}

	if h.Op != "" {
		op, err := parseOp(h.Op)
		if err != nil {
			return hook{}, err
		}
		out.op = op
	}
	for _, name := range h.On {
		op, err := parseOp(name)
		if err != nil {
			return hook{}, fmt.Errorf("on: %w", err)
		}
		out.on = append(out.on, op)
	}

	if len(h.Filter) > 0 {
		f, err := p.ParseFilter(queryir.Raw(h.Filter))
		if err != nil {
			return hook{}, err
		}
		out.filter = f
	}
	if h.Sort != nil {
		keys, err := parser.ParseSort(h.Sort)
		if err != nil {
			return hook{}, err
		}
		out.sort = keys
	}
	return out, nil
}

func parseOp(name string) (store.Op, error) {
	switch op := store.Op(name); op {
	case store.OpFind, store.OpFindOne, store.OpCount:
		return op, nil
	}
	return "", fmt.Errorf("unknown op %q", name)
}

func (h hook) apply(q store.Query) store.Query {
	switch h.op {
	case store.OpFind:
		q = q.Find(h.filter)
	case store.OpFindOne:
		q = q.FindOne(h.filter)
	case store.OpCount:
		q = q.Count(h.filter)
	default:
		q = q.Where(h.filter.Predicates...)
	}
	if h.sort != nil {
		q = q.Sort(h.sort)
	}
	if h.skip != nil {
		q = q.Skip(*h.skip)
	}
	if h.limit != nil {
		q = q.Limit(*h.limit)
	}
	return q
}

func (h hook) query(base store.Query, _ *queryir.CompiledQuery) store.Query {
	return h.apply(base)
}

func (h hook) static(_ context.Context, coll store.Collection, _ *queryir.CompiledQuery, _ compiler.Options) (any, error) {
	if h.value != nil {
		return h.value, nil
	}
	return h.apply(coll.Find(queryir.And{})), nil
}
