package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/docquery/internal/queryir"
)

func (p *Parser) parseControls(raw queryir.Raw, out *Parsed) error {
	if v, ok := raw[queryir.KeySort]; ok {
		keys, err := ParseSort(v)
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			out.Sort = keys
			out.Present[queryir.KeySort] = true
		}
	}

	if v, ok := raw[queryir.KeyLimit]; ok {
		n, err := ParseCount(queryir.KeyLimit, v)
		if err != nil {
			return err
		}
		if n > 0 {
			out.Limit = n
			out.Present[queryir.KeyLimit] = true
		}
	}

	if v, ok := raw[queryir.KeySkip]; ok {
		n, err := ParseCount(queryir.KeySkip, v)
		if err != nil {
			return err
		}
		out.Skip = n
		out.Present[queryir.KeySkip] = true
	}

	fieldsKey := queryir.KeyFields
	v, ok := raw[queryir.KeyFields]
	if !ok {
		fieldsKey = queryir.KeySelect
		v, ok = raw[queryir.KeySelect]
	}
	if ok {
		proj, err := ParseProjection(fieldsKey, v)
		if err != nil {
			return err
		}
		if !proj.IsEmpty() {
			out.Projection = proj
			out.Present[queryir.KeyFields] = true
		}
	}
	return nil
}

// ParseSort reads a sort control. Accepted forms:
//
//	"-createdAt,name"            comma list, "-" descending, "+" ascending
//	[]string{"-a", "b"}          repeated values concatenate
//	{"createdAt": -1}            object with 1/-1 or "asc"/"desc"
//
// Object keys are ordered by name since maps carry no order. The first
// occurrence of a field wins.
func ParseSort(v any) ([]queryir.SortKey, error) {
	var keys []queryir.SortKey
	seen := make(map[string]bool)
	add := func(k queryir.SortKey) {
		if !seen[k.Field] {
			seen[k.Field] = true
			keys = append(keys, k)
		}
	}

	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return ParseSort([]string{val})
	case []string:
		for _, s := range val {
			parsed, err := parseSortList(s)
			if err != nil {
				return nil, err
			}
			for _, k := range parsed {
				add(k)
			}
		}
	case []any:
		strs := make([]string, 0, len(val))
		for _, elem := range val {
			s, ok := elem.(string)
			if !ok {
				return nil, queryir.ParserError(queryir.KeySort, "sort entries must be strings, got %T", elem)
			}
			strs = append(strs, s)
		}
		return ParseSort(strs)
	case map[string]any:
		for _, field := range slices.Sorted(maps.Keys(val)) {
			dir, err := sortDirection(field, val[field])
			if err != nil {
				return nil, err
			}
			add(queryir.SortKey{Field: field, Dir: dir})
		}
	default:
		return nil, queryir.ParserError(queryir.KeySort, "unsupported sort value of type %T", v)
	}
	return keys, nil
}

func parseSortList(s string) ([]queryir.SortKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var keys []queryir.SortKey
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		dir := 1
		switch {
		case strings.HasPrefix(part, "-"):
			dir = -1
			part = part[1:]
		case strings.HasPrefix(part, "+"):
			part = part[1:]
		}
		if part == "" {
			return nil, queryir.ParserError(queryir.KeySort, "empty field name in %q", s)
		}
		keys = append(keys, queryir.SortKey{Field: part, Dir: dir})
	}
	return keys, nil
}

func sortDirection(field string, v any) (int, error) {
	switch d := v.(type) {
	case string:
		switch strings.ToLower(d) {
		case "1", "asc", "ascending":
			return 1, nil
		case "-1", "desc", "descending":
			return -1, nil
		}
	default:
		if n, ok := asInt(v); ok && (n == 1 || n == -1) {
			return int(n), nil
		}
	}
	return 0, queryir.ParserError(queryir.KeySort, "field %q has invalid direction %v", field, v)
}

// ParseCount reads limit or skip: a non-negative base-10 integer given as
// a string or a JSON number. Values beyond math.MaxInt32 saturate; the
// compiler's limit cap takes it from there.
func ParseCount(key string, v any) (int, error) {
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, nil
		}
		n, err := strconv.ParseUint(s, 10, 64)
		if errors.Is(err, strconv.ErrRange) {
			return math.MaxInt32, nil
		}
		if err != nil {
			return 0, queryir.ParserError(key, "not a non-negative integer: %q", val)
		}
		return saturate(n), nil
	case []string:
		if len(val) == 0 {
			return 0, nil
		}
		// Repeated scalar control: last value wins, as in URL decoders.
		return ParseCount(key, val[len(val)-1])
	case float64:
		if val < 0 || val != math.Trunc(val) || math.IsInf(val, 0) {
			return 0, queryir.ParserError(key, "not a non-negative integer: %v", v)
		}
		if val > math.MaxInt32 {
			return math.MaxInt32, nil
		}
		return int(val), nil
	case json.Number:
		return ParseCount(key, val.String())
	case uint64:
		return saturate(val), nil
	}
	n, ok := asInt(v)
	if !ok || n < 0 {
		return 0, queryir.ParserError(key, "not a non-negative integer: %v", v)
	}
	return saturate(uint64(n)), nil
}

func saturate(n uint64) int {
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(n)
}

// asInt accepts integral Go and JSON numbers.
func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return int64(n), true
		}
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

// ParseProjection reads a fields/select control. Accepted forms are a
// comma list ("name,-_id" or "-body,-tags"), repeated values, or an object
// of field → 0|1.
//
// Mixing inclusion and exclusion is an error, except that _id may be
// excluded from an inclusion projection.
func ParseProjection(key string, v any) (queryir.Projection, error) {
	var entries []string
	switch val := v.(type) {
	case nil:
		return queryir.Projection{}, nil
	case string:
		entries = splitList(val)
	case []string:
		for _, s := range val {
			entries = append(entries, splitList(s)...)
		}
	case []any:
		for _, elem := range val {
			s, ok := elem.(string)
			if !ok {
				return queryir.Projection{}, queryir.ParserError(key, "projection entries must be strings, got %T", elem)
			}
			entries = append(entries, splitList(s)...)
		}
	case map[string]any:
		for _, field := range slices.Sorted(maps.Keys(val)) {
			on, err := projectionFlag(key, field, val[field])
			if err != nil {
				return queryir.Projection{}, err
			}
			if on {
				entries = append(entries, field)
			} else {
				entries = append(entries, "-"+field)
			}
		}
	default:
		return queryir.Projection{}, queryir.ParserError(key, "unsupported projection value of type %T", v)
	}
	return buildProjection(key, entries)
}

func buildProjection(key string, entries []string) (queryir.Projection, error) {
	var include, exclude []string
	excludeID := false
	seen := make(map[string]bool)
	for _, e := range entries {
		if seen[e] {
			continue
		}
		seen[e] = true
		switch {
		case e == "-_id":
			excludeID = true
		case strings.HasPrefix(e, "-"):
			if e == "-" {
				return queryir.Projection{}, queryir.ParserError(key, "empty field name")
			}
			exclude = append(exclude, e[1:])
		default:
			include = append(include, strings.TrimPrefix(e, "+"))
		}
	}

	switch {
	case len(include) > 0 && len(exclude) > 0:
		return queryir.Projection{}, queryir.ParserError(key, "cannot mix inclusion %v and exclusion %v", include, exclude)
	case len(include) > 0:
		if excludeID {
			include = append(include, "-_id")
		}
		return queryir.Projection{Fields: include}, nil
	case excludeID:
		return queryir.Projection{Fields: append(exclude, "_id"), Exclude: true}, nil
	case len(exclude) > 0:
		return queryir.Projection{Fields: exclude, Exclude: true}, nil
	}
	return queryir.Projection{}, nil
}

func projectionFlag(key, field string, v any) (bool, error) {
	switch f := v.(type) {
	case bool:
		return f, nil
	case string:
		switch f {
		case "1", "true":
			return true, nil
		case "0", "false":
			return false, nil
		}
	default:
		if n, ok := asInt(v); ok && (n == 0 || n == 1) {
			return n == 1, nil
		}
	}
	return false, queryir.ParserError(key, "field %q must be 0 or 1, got %v", field, v)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// describe renders a raw value for error messages.
func describe(v any) string {
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprintf("%v", v)
}
