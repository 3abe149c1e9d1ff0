// Package compiler turns raw parameters into a queryir.CompiledQuery.
//
// Compilation parses filter keys and controls, extracts the dispatch keys
// (qType, qName, childOpts), merges caller defaults, resolves populate
// specs, applies the per-type limit cap and optionally checks the result
// against a CUE schema. A query that leaves Compile satisfies every
// structural invariant checked by queryir.Validate.
package compiler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"maps"
	"strings"

	"github.com/roach88/docquery/internal/caster"
	"github.com/roach88/docquery/internal/parser"
	"github.com/roach88/docquery/internal/populate"
	"github.com/roach88/docquery/internal/queryir"
	"github.com/roach88/docquery/internal/schema"
)

// Options carries per-call defaults and the optional validation schema.
//
// Sort, Skip, Limit, Fields and Populate accept the same forms as the
// corresponding raw keys. A raw value always wins over the default.
type Options struct {
	Sort     any
	Skip     any
	Limit    any
	Fields   any
	Populate any

	// Schema, when set, sanitizes and validates the compiled query.
	Schema *schema.Schema
}

// Compiler is immutable after New and safe for concurrent use.
type Compiler struct {
	parser   *parser.Parser
	resolver *populate.Resolver
}

type config struct {
	casters      *caster.Registry
	defaultLimit int
	maxDepth     int
}

// Option configures a Compiler.
type Option func(*config)

// WithCasters sets the caster registry used for filter values.
func WithCasters(r *caster.Registry) Option {
	return func(c *config) {
		c.casters = r
	}
}

// WithDefaultLimit sets the limit applied when neither the raw query nor
// the options give one.
func WithDefaultLimit(n int) Option {
	return func(c *config) {
		c.defaultLimit = n
	}
}

// WithMaxPopulateDepth bounds populate nesting.
func WithMaxPopulateDepth(n int) Option {
	return func(c *config) {
		c.maxDepth = n
	}
}

// New creates a Compiler.
func New(opts ...Option) *Compiler {
	cfg := &config{
		casters:      caster.Default(),
		defaultLimit: queryir.DefaultLimit,
		maxDepth:     queryir.DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	p := parser.New(parser.WithCasters(cfg.casters), parser.WithDefaultLimit(cfg.defaultLimit))
	return &Compiler{
		parser:   p,
		resolver: populate.New(p, populate.WithMaxDepth(cfg.maxDepth)),
	}
}

// Parser returns the parser the compiler uses.
func (c *Compiler) Parser() *parser.Parser {
	return c.parser
}

// MaxPopulateDepth returns the populate nesting bound.
func (c *Compiler) MaxPopulateDepth() int {
	return c.resolver.MaxDepth()
}

// Compile builds a CompiledQuery from raw. raw is never modified.
//
// Errors are *queryir.Error values: queryParserError for unreadable input
// and queryValidationError when opts.Schema rejects the query. On error no
// query is returned. Unknown qType values compile; the dispatcher rejects
// them.
func (c *Compiler) Compile(raw queryir.Raw, opts Options) (*queryir.CompiledQuery, error) {
	parsed, err := c.parser.Parse(raw)
	if err != nil {
		return nil, err
	}

	q := &queryir.CompiledQuery{
		Filter:     parsed.Filter,
		Sort:       parsed.Sort,
		Limit:      parsed.Limit,
		Skip:       parsed.Skip,
		Projection: parsed.Projection,
		Type:       queryir.DefaultQueryType,
	}

	if t := lastString(parsed.Rest[queryir.KeyQType]); t != "" {
		q.Type = queryir.QueryType(t)
	}
	q.Name = lastString(parsed.Rest[queryir.KeyQName])

	if v, ok := parsed.Rest[queryir.KeyChildOpts]; ok {
		q.ChildOpts, err = parseChildOpts(v)
		if err != nil {
			return nil, err
		}
	}

	present := maps.Clone(parsed.Present)
	if err := mergeDefaults(q, present, opts); err != nil {
		return nil, err
	}

	popValue, ok := parsed.Rest[queryir.KeyPopulate]
	if !ok {
		popValue = opts.Populate
	}
	q.Populate, err = c.resolver.Resolve(popValue)
	if err != nil {
		return nil, err
	}

	if limitCap := queryir.LimitCap(q.Type); q.Limit > limitCap {
		q.Limit = limitCap
	}

	if opts.Schema != nil {
		q, err = opts.Schema.Check(q, present)
		if err != nil {
			slog.Debug("query rejected by schema", "schema", opts.Schema.Name(), "error", err)
			return nil, err
		}
	}

	if err := queryir.Validate(q, c.resolver.MaxDepth()).Err(); err != nil {
		return nil, err
	}

	slog.Debug("query compiled",
		"qType", q.Type,
		"qName", q.Name,
		"predicates", len(q.Filter.Predicates),
		"limit", q.Limit,
		"skip", q.Skip,
		"populate", len(q.Populate))
	return q, nil
}

// mergeDefaults fills controls the raw query left unset from opts and
// records them as present.
func mergeDefaults(q *queryir.CompiledQuery, present map[string]bool, opts Options) error {
	if !present[queryir.KeySort] && opts.Sort != nil {
		keys, err := parser.ParseSort(opts.Sort)
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			q.Sort = keys
			present[queryir.KeySort] = true
		}
	}
	if !present[queryir.KeyLimit] && opts.Limit != nil {
		n, err := parser.ParseCount(queryir.KeyLimit, opts.Limit)
		if err != nil {
			return err
		}
		if n > 0 {
			q.Limit = n
			present[queryir.KeyLimit] = true
		}
	}
	if !present[queryir.KeySkip] && opts.Skip != nil {
		n, err := parser.ParseCount(queryir.KeySkip, opts.Skip)
		if err != nil {
			return err
		}
		q.Skip = n
		present[queryir.KeySkip] = true
	}
	if !present[queryir.KeyFields] && opts.Fields != nil {
		proj, err := parser.ParseProjection(queryir.KeyFields, opts.Fields)
		if err != nil {
			return err
		}
		if !proj.IsEmpty() {
			q.Projection = proj
			present[queryir.KeyFields] = true
		}
	}
	return nil
}

// lastString reads a scalar dispatch key. Repeated values keep the last.
func lastString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case []string:
		if len(val) > 0 {
			return strings.TrimSpace(val[len(val)-1])
		}
	case []any:
		if len(val) > 0 {
			return lastString(val[len(val)-1])
		}
	}
	return ""
}

// parseChildOpts accepts an object, a JSON object string or a URL query
// string. The options are handed to tree builders untouched.
func parseChildOpts(v any) (map[string]any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return maps.Clone(val), nil
	case queryir.Raw:
		return maps.Clone(map[string]any(val)), nil
	case []string:
		if len(val) == 0 {
			return nil, nil
		}
		return parseChildOpts(val[len(val)-1])
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil, nil
		}
		if strings.HasPrefix(s, "{") {
			dec := json.NewDecoder(bytes.NewReader([]byte(s)))
			dec.UseNumber()
			var out map[string]any
			if err := dec.Decode(&out); err != nil {
				return nil, queryir.WrapParserError(queryir.KeyChildOpts, err, "malformed JSON child options")
			}
			return out, nil
		}
		raw, err := queryir.ParseRaw(s)
		if err != nil {
			return nil, err
		}
		return map[string]any(raw), nil
	default:
		return nil, queryir.ParserError(queryir.KeyChildOpts, "unsupported child options of type %T", v)
	}
}
