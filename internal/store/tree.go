package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/docquery/internal/parser"
	"github.com/roach88/docquery/internal/queryir"
)

// DefaultParentField links a document to its parent in a materialized tree.
const DefaultParentField = "parentId"

// ChildrenField holds a node's children in tree results.
const ChildrenField = "children"

// MaterializedTree builds hierarchies from documents that store their
// parent's id. Documents whose parent is absent from the matched set are
// roots. A parent cycle has no natural root, so its first member in sort
// order becomes one.
//
// Child options:
//
//	sort    order of roots and siblings ("name", "-createdAt")
//	fields  projection applied to every node (alias: select)
type MaterializedTree struct {
	// ParentField defaults to DefaultParentField.
	ParentField string
}

type node struct {
	doc      Document
	children []*node
}

// Tree returns the matched documents as a map from root id to node. Each
// node carries its children under "children" as a map keyed by id.
func (t MaterializedTree) Tree(ctx context.Context, coll Collection, filter queryir.And, childOpts map[string]any) (map[string]Document, error) {
	roots, proj, err := t.build(ctx, coll, filter, childOpts)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Document, len(roots))
	for _, r := range roots {
		out[r.doc.ID()] = r.keyed(proj)
	}
	return out, nil
}

// ArrayTree returns the root nodes in order. Each node carries its
// children under "children" as an ordered array.
func (t MaterializedTree) ArrayTree(ctx context.Context, coll Collection, filter queryir.And, childOpts map[string]any) ([]Document, error) {
	roots, proj, err := t.build(ctx, coll, filter, childOpts)
	if err != nil {
		return nil, err
	}
	out := make([]Document, len(roots))
	for i, r := range roots {
		out[i] = r.ordered(proj)
	}
	return out, nil
}

func (t MaterializedTree) parentField() string {
	if t.ParentField == "" {
		return DefaultParentField
	}
	return t.ParentField
}

func (t MaterializedTree) build(ctx context.Context, coll Collection, filter queryir.And, childOpts map[string]any) ([]*node, queryir.Projection, error) {
	sortKeys, proj, err := treeOptions(childOpts)
	if err != nil {
		return nil, queryir.Projection{}, err
	}

	res, err := coll.Find(filter).Sort(sortKeys).Exec(ctx)
	if err != nil {
		return nil, queryir.Projection{}, err
	}
	docs, ok := res.([]Document)
	if !ok {
		return nil, queryir.Projection{}, fmt.Errorf("tree %s: unexpected find result %T", coll.Name(), res)
	}

	nodes := make(map[string]*node, len(docs))
	ordered := make([]*node, 0, len(docs))
	for _, d := range docs {
		n := &node{doc: d}
		nodes[d.ID()] = n
		ordered = append(ordered, n)
	}

	parentField := t.parentField()
	var roots []*node
	parents := make(map[*node]*node, len(ordered))
	for _, n := range ordered {
		parent, ok := nodes[IDString(n.doc[parentField])]
		if !ok || parent == n {
			roots = append(roots, n)
			continue
		}
		parents[n] = parent
		parent.children = append(parent.children, n)
	}

	reached := make(map[*node]bool, len(ordered))
	for _, r := range roots {
		r.mark(reached)
	}
	for _, n := range ordered {
		if reached[n] {
			continue
		}
		parents[n].detach(n)
		roots = append(roots, n)
		n.mark(reached)
	}
	return roots, proj, nil
}

func (n *node) mark(reached map[*node]bool) {
	if reached[n] {
		return
	}
	reached[n] = true
	for _, c := range n.children {
		c.mark(reached)
	}
}

func (n *node) detach(child *node) {
	n.children = slices.DeleteFunc(n.children, func(c *node) bool { return c == child })
}

func (n *node) keyed(proj queryir.Projection) Document {
	return n.render(proj, make(map[*node]bool), true)
}

func (n *node) ordered(proj queryir.Projection) Document {
	return n.render(proj, make(map[*node]bool), false)
}

// render guards against parent cycles with visited.
func (n *node) render(proj queryir.Projection, visited map[*node]bool, keyed bool) Document {
	visited[n] = true
	out := Project(n.doc.Clone(), proj)
	if keyed {
		children := make(map[string]any, len(n.children))
		for _, c := range n.children {
			if !visited[c] {
				children[c.doc.ID()] = map[string]any(c.render(proj, visited, keyed))
			}
		}
		out[ChildrenField] = children
		return out
	}
	children := make([]any, 0, len(n.children))
	for _, c := range n.children {
		if !visited[c] {
			children = append(children, map[string]any(c.render(proj, visited, keyed)))
		}
	}
	out[ChildrenField] = children
	return out
}

func treeOptions(childOpts map[string]any) ([]queryir.SortKey, queryir.Projection, error) {
	var sortKeys []queryir.SortKey
	if v, ok := childOpts[queryir.KeySort]; ok {
		keys, err := parser.ParseSort(v)
		if err != nil {
			return nil, queryir.Projection{}, err
		}
		sortKeys = keys
	}

	key := queryir.KeyFields
	v, ok := childOpts[queryir.KeyFields]
	if !ok {
		key = queryir.KeySelect
		v, ok = childOpts[queryir.KeySelect]
	}
	var proj queryir.Projection
	if ok {
		p, err := parser.ParseProjection(key, v)
		if err != nil {
			return nil, queryir.Projection{}, err
		}
		proj = p
	}
	return sortKeys, proj, nil
}
