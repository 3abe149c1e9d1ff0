package queryir

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/docquery/internal/ir"
)

// QueryType selects how a compiled query is dispatched against a store.
type QueryType string

const (
	TypeAll       QueryType = "all"
	TypeOne       QueryType = "one"
	TypeTotal     QueryType = "total"
	TypeAllTotal  QueryType = "allTotal"
	TypeTree      QueryType = "tree"
	TypeArrayTree QueryType = "arrayTree"
)

// QueryTypes lists every supported query type.
var QueryTypes = []QueryType{TypeAll, TypeOne, TypeTotal, TypeAllTotal, TypeTree, TypeArrayTree}

// Known reports whether t is one of the supported query types.
func (t QueryType) Known() bool {
	return slices.Contains(QueryTypes, t)
}

// IsTree reports whether t is dispatched to a hierarchical builder.
func (t QueryType) IsTree() bool {
	return t == TypeTree || t == TypeArrayTree
}

// Pagination defaults and caps.
const (
	DefaultLimit     = 10
	MaxLimit         = 1000
	DefaultMaxDepth  = 8
	DefaultQueryType = TypeAll
)

// LimitCap returns the largest limit a query of type t may carry.
// A single-document read never needs more than one row.
func LimitCap(t QueryType) int {
	if t == TypeOne {
		return 1
	}
	return MaxLimit
}

// Reserved control keys. None of them may appear as a filter field.
const (
	KeyQType     = "qType"
	KeyQName     = "qName"
	KeySort      = "sort"
	KeyLimit     = "limit"
	KeySkip      = "skip"
	KeyFields    = "fields"
	KeySelect    = "select"
	KeyFilter    = "filter"
	KeyPopulate  = "populate"
	KeyChildOpts = "childOpts"
)

var reservedKeys = map[string]bool{
	KeyQType:     true,
	KeyQName:     true,
	KeySort:      true,
	KeyLimit:     true,
	KeySkip:      true,
	KeyFields:    true,
	KeySelect:    true,
	KeyFilter:    true,
	KeyPopulate:  true,
	KeyChildOpts: true,
}

// IsReserved reports whether key is a reserved control key.
func IsReserved(key string) bool {
	return reservedKeys[key]
}

// SortKey is one entry of an ordered sort. Dir is 1 (ascending) or -1.
type SortKey struct {
	Field string `json:"field"`
	Dir   int    `json:"dir"`
}

// SortMap renders the sort as field → direction. Order is lost; use the
// slice when order matters.
func SortMap(keys []SortKey) map[string]any {
	if len(keys) == 0 {
		return nil
	}
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		out[k.Field] = int64(k.Dir)
	}
	return out
}

// Projection selects returned fields. Exclude inverts the selection.
// An empty Fields slice selects the whole document.
type Projection struct {
	Fields  []string `json:"fields,omitempty"`
	Exclude bool     `json:"exclude,omitempty"`
}

// IsEmpty reports whether the projection keeps the whole document.
func (p Projection) IsEmpty() bool {
	return len(p.Fields) == 0
}

// AsMap renders the projection as field → 0|1.
//
// An inclusion projection may still exclude _id; that case is carried as
// "-_id" in Fields and renders as _id → 0.
func (p Projection) AsMap() map[string]any {
	if p.IsEmpty() {
		return nil
	}
	out := make(map[string]any, len(p.Fields))
	for _, f := range p.Fields {
		switch {
		case f == "-_id":
			out["_id"] = int64(0)
		case p.Exclude:
			out[f] = int64(0)
		default:
			out[f] = int64(1)
		}
	}
	return out
}

// PopulateOptions are the cursor controls applied to a populated relation.
// A nil Limit means no limit was requested.
type PopulateOptions struct {
	Sort  []SortKey `json:"sort,omitempty"`
	Limit *int      `json:"limit,omitempty"`
	Skip  int       `json:"skip,omitempty"`
}

// PopulateSpec describes one relation to resolve and embed.
//
// Entries with an empty Path carry the caller's original value in Raw and
// are skipped by stores.
type PopulateSpec struct {
	Path     string          `json:"path,omitempty"`
	Match    And             `json:"-"`
	Select   Projection      `json:"select,omitzero"`
	Options  PopulateOptions `json:"options,omitzero"`
	Populate []PopulateSpec  `json:"populate,omitempty"`
	Raw      map[string]any  `json:"raw,omitempty"`
}

// Depth returns the nesting depth of the spec (1 for a leaf).
func (p PopulateSpec) Depth() int {
	depth := 0
	for _, child := range p.Populate {
		depth = max(depth, child.Depth())
	}
	return depth + 1
}

// Document renders the spec in store-style form for fingerprints and
// schema checks.
func (p PopulateSpec) Document() map[string]any {
	if p.Path == "" {
		return maps.Clone(p.Raw)
	}
	doc := map[string]any{"path": p.Path}
	if !p.Match.IsEmpty() {
		doc["match"] = Document(p.Match)
	}
	if sel := p.Select.AsMap(); sel != nil {
		doc["select"] = sel
	}
	opts := map[string]any{}
	if s := SortMap(p.Options.Sort); s != nil {
		opts["sort"] = s
	}
	if p.Options.Limit != nil {
		opts["limit"] = int64(*p.Options.Limit)
	}
	if p.Options.Skip > 0 {
		opts["skip"] = int64(p.Options.Skip)
	}
	if len(opts) > 0 {
		doc["options"] = opts
	}
	if len(p.Populate) > 0 {
		doc["populate"] = populateDocuments(p.Populate)
	}
	return doc
}

func populateDocuments(specs []PopulateSpec) []any {
	out := make([]any, len(specs))
	for i, s := range specs {
		out[i] = s.Document()
	}
	return out
}

// CompiledQuery is the output of the compiler and the only input the
// dispatcher and stores accept. Each invocation owns its own value.
type CompiledQuery struct {
	Filter     And
	Sort       []SortKey
	Limit      int
	Skip       int
	Projection Projection
	Type       QueryType
	Name       string
	Populate   []PopulateSpec
	ChildOpts  map[string]any
}

// Clone returns a copy safe to modify without affecting q.
func (q *CompiledQuery) Clone() *CompiledQuery {
	c := *q
	c.Filter = And{Predicates: slices.Clone(q.Filter.Predicates)}
	c.Sort = slices.Clone(q.Sort)
	c.Projection.Fields = slices.Clone(q.Projection.Fields)
	c.Populate = slices.Clone(q.Populate)
	c.ChildOpts = maps.Clone(q.ChildOpts)
	return &c
}

// Document renders the query as a plain document:
//
//	{filter, sort, limit, skip, fields, qType, qName, populate, childOpts}
//
// Empty sections are omitted. The validation layer and the CLI both consume
// this shape.
func (q *CompiledQuery) Document() map[string]any {
	doc := map[string]any{
		"filter": Document(q.Filter),
		"limit":  int64(q.Limit),
		"skip":   int64(q.Skip),
		"qType":  string(q.Type),
	}
	if s := SortMap(q.Sort); s != nil {
		doc["sort"] = s
	}
	if f := q.Projection.AsMap(); f != nil {
		doc["fields"] = f
	}
	if q.Name != "" {
		doc["qName"] = q.Name
	}
	if len(q.Populate) > 0 {
		doc["populate"] = populateDocuments(q.Populate)
	}
	if len(q.ChildOpts) > 0 {
		doc["childOpts"] = q.ChildOpts
	}
	return doc
}

// Fingerprint returns a stable identity for the query. Sort order is part
// of the identity, so the sort is rendered as an ordered list here.
func (q *CompiledQuery) Fingerprint() (string, error) {
	doc := q.Document()
	if len(q.Sort) > 0 {
		sortList := make([]any, len(q.Sort))
		for i, k := range q.Sort {
			sortList[i] = []any{k.Field, int64(k.Dir)}
		}
		doc["sort"] = sortList
	}
	fp, err := ir.Fingerprint(ir.DomainQuery, doc)
	if err != nil {
		return "", fmt.Errorf("query fingerprint: %w", err)
	}
	return fp, nil
}
