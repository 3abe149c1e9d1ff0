package parser

import (
	"maps"
	"slices"

	"github.com/roach88/docquery/internal/caster"
	"github.com/roach88/docquery/internal/queryir"
)

// Parsed is the parser output for one raw parameter set.
type Parsed struct {
	// Filter holds flat-key predicates in sorted field order, followed by
	// predicates from the filter blob.
	Filter queryir.And

	Sort       []queryir.SortKey
	Limit      int
	Skip       int
	Projection queryir.Projection

	// Present records which controls the caller actually supplied
	// (sort, limit, skip, fields). A limit of 0 counts as absent.
	Present map[string]bool

	// Rest holds compiler-owned reserved keys (qType, qName, childOpts,
	// populate) with their raw values.
	Rest map[string]any
}

// Given reports whether the control key was supplied.
func (p *Parsed) Given(key string) bool {
	return p.Present[key]
}

// compilerKeys are reserved keys the parser hands on untouched.
var compilerKeys = []string{queryir.KeyQType, queryir.KeyQName, queryir.KeyChildOpts, queryir.KeyPopulate}

// Parser converts raw parameters into a Parsed value. A Parser is
// immutable and safe for concurrent use.
type Parser struct {
	casters      *caster.Registry
	defaultLimit int
	maxBlobDepth int
}

// Option configures a Parser.
type Option func(*Parser)

// WithCasters sets the caster registry. Defaults to caster.Default().
func WithCasters(r *caster.Registry) Option {
	return func(p *Parser) {
		p.casters = r
	}
}

// WithDefaultLimit sets the limit used when none is supplied.
func WithDefaultLimit(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.defaultLimit = n
		}
	}
}

// New creates a Parser.
func New(opts ...Option) *Parser {
	p := &Parser{
		casters:      caster.Default(),
		defaultLimit: queryir.DefaultLimit,
		maxBlobDepth: 16,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DefaultLimit returns the limit applied when none is given.
func (p *Parser) DefaultLimit() int {
	return p.defaultLimit
}

// Parse interprets raw. It never modifies raw.
//
// Returns a queryParserError when a control cannot be read, a caster
// fails, or the filter blob is malformed. Unknown keys are not errors;
// they become equality predicates.
func (p *Parser) Parse(raw queryir.Raw) (*Parsed, error) {
	out := &Parsed{
		Limit:   p.defaultLimit,
		Present: make(map[string]bool),
		Rest:    make(map[string]any),
	}

	for _, key := range compilerKeys {
		if v, ok := raw[key]; ok {
			out.Rest[key] = v
		}
	}

	if err := p.parseControls(raw, out); err != nil {
		return nil, err
	}

	var preds []queryir.Predicate
	for _, key := range slices.Sorted(maps.Keys(raw)) {
		if queryir.IsReserved(key) {
			continue
		}
		fieldPreds, err := p.parseField(key, raw[key])
		if err != nil {
			return nil, err
		}
		preds = append(preds, fieldPreds...)
	}

	if blob, ok := raw[queryir.KeyFilter]; ok {
		blobPreds, err := p.parseBlob(blob)
		if err != nil {
			return nil, err
		}
		preds = append(preds, blobPreds...)
	}

	out.Filter = queryir.Conjoin(preds...)
	return out, nil
}

// ParseFilter interprets raw as filter keys only. Reserved keys are
// rejected. Used for nested populate matches and tree child options.
func (p *Parser) ParseFilter(raw queryir.Raw) (queryir.And, error) {
	var preds []queryir.Predicate
	for _, key := range slices.Sorted(maps.Keys(raw)) {
		if queryir.IsReserved(key) {
			return queryir.And{}, queryir.ParserError(key, "reserved key is not allowed in a filter")
		}
		fieldPreds, err := p.parseField(key, raw[key])
		if err != nil {
			return queryir.And{}, err
		}
		preds = append(preds, fieldPreds...)
	}
	return queryir.Conjoin(preds...), nil
}
