// Package schema validates compiled queries against a caller-supplied CUE
// schema.
//
// The query is rendered as a plain document
//
//	{filter, sort, limit, skip, fields, qType, qName}
//
// and unified with the schema. Controls the caller never set are left out
// so schema defaults can fill them in; the sanitized controls are written
// back onto a copy of the query.
//
// Example schema:
//
//	limit: *20 | (int & >=1 & <=100)
//	sort?: [string]: 1 | -1
//	sort?: createdAt?: -1
//	filter: status?: "draft" | "published"
package schema

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/docquery/internal/queryir"
)

// Schema is a compiled CUE schema. Safe for concurrent use.
type Schema struct {
	// cue.Value operations are not documented as goroutine safe, so every
	// Check holds the lock while it touches the runtime.
	mu    sync.Mutex
	ctx   *cue.Context
	value cue.Value
	name  string
}

// Compile parses a CUE schema. name is used in error positions.
func Compile(name, src string) (*Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(name))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return &Schema{ctx: ctx, value: v, name: name}, nil
}

// Name returns the schema's file name.
func (s *Schema) Name() string {
	return s.name
}

// controls are the query sections a schema may sanitize. A control missing
// from present is omitted so a schema default can apply.
var controls = []string{queryir.KeySort, queryir.KeyLimit, queryir.KeySkip, queryir.KeyFields}

// Check sanitizes q against the schema and validates the result.
//
// present names the controls the caller supplied (sort, limit, skip,
// fields). On success a sanitized copy of q is returned; q itself is
// never modified. On failure the error is a queryValidationError whose
// violations are sorted by property.
func (s *Schema) Check(q *queryir.CompiledQuery, present map[string]bool) (*queryir.CompiledQuery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	full := document(q)
	partial := make(map[string]any, len(full))
	for k, v := range full {
		if slices.Contains(controls, k) && !present[k] {
			continue
		}
		partial[k] = v
	}

	unified := s.value.Unify(s.ctx.Encode(partial))
	if err := unified.Err(); err != nil {
		return nil, queryir.ValidationError(violations(err))
	}

	// Controls the schema leaves open keep the compiler's value.
	fill := make(map[string]any)
	for _, key := range controls {
		v, ok := full[key]
		if !ok || present[key] {
			continue
		}
		if defaulted(unified.LookupPath(cue.ParsePath(key))) {
			continue
		}
		fill[key] = v
	}
	if len(fill) > 0 {
		unified = unified.Unify(s.ctx.Encode(fill))
	}

	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, queryir.ValidationError(violations(err))
	}

	out := q.Clone()
	if err := writeBack(unified, out); err != nil {
		return nil, err
	}
	return out, nil
}

// document renders the sections of q a schema sees.
func document(q *queryir.CompiledQuery) map[string]any {
	doc := q.Document()
	delete(doc, queryir.KeyPopulate)
	delete(doc, queryir.KeyChildOpts)
	return doc
}

func defaulted(v cue.Value) bool {
	if !v.Exists() {
		return false
	}
	d, _ := v.Default()
	return d.IsConcrete()
}

// writeBack copies sanitized controls onto q.
func writeBack(v cue.Value, q *queryir.CompiledQuery) error {
	if lv := lookup(v, queryir.KeyLimit); lv.Exists() {
		n, err := lv.Int64()
		if err != nil {
			return queryir.ValidationError([]queryir.Violation{{Property: "@.limit", Message: err.Error()}})
		}
		q.Limit = int(n)
	}
	if sv := lookup(v, queryir.KeySkip); sv.Exists() {
		n, err := sv.Int64()
		if err != nil {
			return queryir.ValidationError([]queryir.Violation{{Property: "@.skip", Message: err.Error()}})
		}
		q.Skip = int(n)
	}
	if sv := lookup(v, queryir.KeySort); sv.Exists() {
		dirs, err := intFields(sv)
		if err != nil {
			return queryir.ValidationError([]queryir.Violation{{Property: "@.sort", Message: err.Error()}})
		}
		q.Sort = mergeSort(q.Sort, dirs)
	}
	if fv := lookup(v, queryir.KeyFields); fv.Exists() {
		flags, err := intFields(fv)
		if err != nil {
			return queryir.ValidationError([]queryir.Violation{{Property: "@.fields", Message: err.Error()}})
		}
		q.Projection = projectionFrom(flags)
	}
	return nil
}

// lookup resolves key to its default when the schema gives one.
func lookup(v cue.Value, key string) cue.Value {
	lv := v.LookupPath(cue.ParsePath(key))
	if d, ok := lv.Default(); ok {
		return d
	}
	return lv
}

type field struct {
	name string
	n    int
}

func intFields(v cue.Value) ([]field, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, err
	}
	var out []field
	for iter.Next() {
		n, err := iter.Value().Int64()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", iter.Label(), err)
		}
		out = append(out, field{name: iter.Label(), n: int(n)})
	}
	return out, nil
}

// mergeSort keeps the original key order and appends keys the schema
// added, ordered by name.
func mergeSort(orig []queryir.SortKey, dirs []field) []queryir.SortKey {
	byName := make(map[string]int, len(dirs))
	for _, d := range dirs {
		byName[d.name] = d.n
	}
	var out []queryir.SortKey
	seen := make(map[string]bool)
	for _, k := range orig {
		if dir, ok := byName[k.Field]; ok {
			out = append(out, queryir.SortKey{Field: k.Field, Dir: dir})
			seen[k.Field] = true
		}
	}
	var added []string
	for name := range byName {
		if !seen[name] {
			added = append(added, name)
		}
	}
	sort.Strings(added)
	for _, name := range added {
		out = append(out, queryir.SortKey{Field: name, Dir: byName[name]})
	}
	return out
}

func projectionFrom(flags []field) queryir.Projection {
	var include, exclude []string
	excludeID := false
	for _, f := range flags {
		switch {
		case f.n != 0:
			include = append(include, f.name)
		case f.name == "_id":
			excludeID = true
		default:
			exclude = append(exclude, f.name)
		}
	}
	sort.Strings(include)
	sort.Strings(exclude)
	switch {
	case len(include) > 0:
		if excludeID {
			include = append(include, "-_id")
		}
		return queryir.Projection{Fields: include}
	case excludeID:
		return queryir.Projection{Fields: append(exclude, "_id"), Exclude: true}
	case len(exclude) > 0:
		return queryir.Projection{Fields: exclude, Exclude: true}
	}
	return queryir.Projection{}
}

// violations flattens a CUE error into sorted {property, message} pairs.
func violations(err error) []queryir.Violation {
	var out []queryir.Violation
	seen := make(map[queryir.Violation]bool)
	for _, e := range errors.Errors(err) {
		format, args := e.Msg()
		v := queryir.Violation{
			Property: "@." + strings.Join(e.Path(), "."),
			Message:  fmt.Sprintf(format, args...),
		}
		if len(e.Path()) == 0 {
			v.Property = "@"
		}
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Property < out[j].Property
	})
	return out
}

// CompileError is a schema source error with its position.
type CompileError struct {
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{Message: first.Error(), Pos: positions[0]}
	}
	return &CompileError{Message: first.Error()}
}
