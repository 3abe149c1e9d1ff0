// Package populate expands populate specifications into relation-fetch
// specs. Each level's embedded query is compiled independently by the
// parameter parser.
package populate

import (
	"bytes"
	"encoding/json"
	"maps"
	"strings"

	"github.com/roach88/docquery/internal/parser"
	"github.com/roach88/docquery/internal/queryir"
)

// Resolver turns populate values into []queryir.PopulateSpec.
// A Resolver is immutable and safe for concurrent use.
type Resolver struct {
	parser   *parser.Parser
	maxDepth int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxDepth bounds populate nesting. Values below 1 are ignored.
func WithMaxDepth(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxDepth = n
		}
	}
}

// New creates a Resolver that parses embedded queries with p.
func New(p *parser.Parser, opts ...Option) *Resolver {
	r := &Resolver{parser: p, maxDepth: queryir.DefaultMaxDepth}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MaxDepth returns the nesting bound.
func (r *Resolver) MaxDepth() int {
	return r.maxDepth
}

// Resolve accepts:
//
//	"owner,tags"                          one spec per path
//	`{"path":"owner","query":"..."}`      JSON object or array
//	map[string]any{"path": ..., ...}      entry object
//	[]any / []string                      list of the above
//	[]queryir.PopulateSpec                already resolved, passed through
//
// An entry object may carry path, query (raw query string or object),
// select, match, options ({sort, limit, skip}) and populate. Entries
// without a path are kept verbatim in PopulateSpec.Raw.
func (r *Resolver) Resolve(v any) ([]queryir.PopulateSpec, error) {
	return r.resolve(v, 1)
}

func (r *Resolver) resolve(v any, depth int) ([]queryir.PopulateSpec, error) {
	if depth > r.maxDepth {
		return nil, queryir.ParserError(queryir.KeyPopulate, "populate nests deeper than %d levels", r.maxDepth)
	}

	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return r.resolveString(val, depth)
	case []string:
		var specs []queryir.PopulateSpec
		for _, s := range val {
			more, err := r.resolveString(s, depth)
			if err != nil {
				return nil, err
			}
			specs = append(specs, more...)
		}
		return specs, nil
	case []any:
		var specs []queryir.PopulateSpec
		for _, elem := range val {
			more, err := r.resolve(elem, depth)
			if err != nil {
				return nil, err
			}
			specs = append(specs, more...)
		}
		return specs, nil
	case map[string]any:
		spec, err := r.resolveEntry(val, depth)
		if err != nil {
			return nil, err
		}
		return []queryir.PopulateSpec{spec}, nil
	case queryir.PopulateSpec:
		return r.checkResolved([]queryir.PopulateSpec{val}, depth)
	case []queryir.PopulateSpec:
		return r.checkResolved(val, depth)
	default:
		return nil, queryir.ParserError(queryir.KeyPopulate, "unsupported populate value of type %T", v)
	}
}

// checkResolved enforces the depth bound on specs built by callers.
func (r *Resolver) checkResolved(specs []queryir.PopulateSpec, depth int) ([]queryir.PopulateSpec, error) {
	for _, s := range specs {
		if depth+s.Depth()-1 > r.maxDepth {
			return nil, queryir.ParserError(queryir.KeyPopulate, "populate nests deeper than %d levels", r.maxDepth)
		}
	}
	return specs, nil
}

func (r *Resolver) resolveString(s string, depth int) ([]queryir.PopulateSpec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		dec := json.NewDecoder(bytes.NewReader([]byte(s)))
		dec.UseNumber()
		var decoded any
		if err := dec.Decode(&decoded); err != nil {
			return nil, queryir.WrapParserError(queryir.KeyPopulate, err, "malformed JSON populate")
		}
		return r.resolve(decoded, depth)
	}

	// Paths separated by commas or spaces.
	fields := strings.FieldsFunc(s, func(c rune) bool { return c == ',' || c == ' ' })
	specs := make([]queryir.PopulateSpec, 0, len(fields))
	for _, path := range fields {
		specs = append(specs, queryir.PopulateSpec{Path: path})
	}
	return specs, nil
}

func (r *Resolver) resolveEntry(entry map[string]any, depth int) (queryir.PopulateSpec, error) {
	path, _ := entry["path"].(string)
	path = strings.TrimSpace(path)
	if path == "" {
		return queryir.PopulateSpec{Raw: maps.Clone(entry)}, nil
	}

	spec := queryir.PopulateSpec{Path: path}
	nested, hasNested := entry["populate"]

	if q, ok := entry["query"]; ok {
		parsed, err := r.parseQuery(path, q)
		if err != nil {
			return queryir.PopulateSpec{}, err
		}
		spec.Match = parsed.Filter
		spec.Select = parsed.Projection
		spec.Options.Sort = parsed.Sort
		spec.Options.Skip = parsed.Skip
		if parsed.Given(queryir.KeyLimit) {
			limit := parsed.Limit
			spec.Options.Limit = &limit
		}
		if !hasNested {
			nested, hasNested = parsed.Rest[queryir.KeyPopulate]
		}
	}

	if m, ok := entry["match"]; ok {
		parsed, err := r.parseQuery(path, map[string]any{queryir.KeyFilter: m})
		if err != nil {
			return queryir.PopulateSpec{}, err
		}
		spec.Match = queryir.Conjoin(spec.Match, parsed.Filter)
	}

	if sel, ok := entry["select"]; ok {
		proj, err := parser.ParseProjection(queryir.KeySelect, sel)
		if err != nil {
			return queryir.PopulateSpec{}, err
		}
		spec.Select = proj
	}

	if opts, ok := entry["options"]; ok {
		if err := r.applyOptions(&spec, opts); err != nil {
			return queryir.PopulateSpec{}, err
		}
	}

	if hasNested {
		children, err := r.resolve(nested, depth+1)
		if err != nil {
			return queryir.PopulateSpec{}, err
		}
		spec.Populate = children
	}
	return spec, nil
}

// parseQuery runs an embedded query through the parser.
func (r *Resolver) parseQuery(path string, q any) (*parser.Parsed, error) {
	var raw queryir.Raw
	switch val := q.(type) {
	case string:
		parsed, err := queryir.ParseRaw(val)
		if err != nil {
			return nil, queryir.WrapParserError(queryir.KeyPopulate, err, "populate %q: malformed query", path)
		}
		raw = parsed
	case map[string]any:
		raw = queryir.Raw(val)
	case queryir.Raw:
		raw = val
	default:
		return nil, queryir.ParserError(queryir.KeyPopulate, "populate %q: query must be a string or object, got %T", path, q)
	}
	return r.parser.Parse(raw)
}

func (r *Resolver) applyOptions(spec *queryir.PopulateSpec, v any) error {
	opts, ok := v.(map[string]any)
	if !ok {
		return queryir.ParserError(queryir.KeyPopulate, "populate %q: options must be an object", spec.Path)
	}
	if s, ok := opts[queryir.KeySort]; ok {
		keys, err := parser.ParseSort(s)
		if err != nil {
			return err
		}
		spec.Options.Sort = keys
	}
	if l, ok := opts[queryir.KeyLimit]; ok {
		n, err := parser.ParseCount(queryir.KeyLimit, l)
		if err != nil {
			return err
		}
		spec.Options.Limit = &n
	}
	if s, ok := opts[queryir.KeySkip]; ok {
		n, err := parser.ParseCount(queryir.KeySkip, s)
		if err != nil {
			return err
		}
		spec.Options.Skip = n
	}
	return nil
}
