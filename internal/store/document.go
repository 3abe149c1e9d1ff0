package store

import (
	"fmt"
	"maps"
	"strings"

	"github.com/roach88/docquery/internal/queryir"
)

// IDField is the primary key of every document.
const IDField = "_id"

// Document is a stored document. Values are native Go values as produced
// by ir.ToNative: string, int64, float64, bool, time.Time, nil, []any and
// map[string]any.
type Document map[string]any

// ID returns the document's primary key rendered as a string.
func (d Document) ID() string {
	return IDString(d[IDField])
}

// IDString renders an id value as a string. Empty for nil.
func IDString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case fmt.Stringer:
		return id.String()
	default:
		return fmt.Sprint(id)
	}
}

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(cloneMap(d))
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case Document:
		return val.Clone()
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	case []Document:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = elem.Clone()
		}
		return out
	default:
		return v
	}
}

// Lookup resolves a dotted path. Arrays along the path are not traversed.
func Lookup(d map[string]any, path string) (any, bool) {
	if v, ok := d[path]; ok {
		return v, true
	}
	head, rest, found := strings.Cut(path, ".")
	if !found {
		return nil, false
	}
	switch sub := d[head].(type) {
	case map[string]any:
		return Lookup(sub, rest)
	case Document:
		return Lookup(sub, rest)
	}
	return nil, false
}

func setPath(d map[string]any, path string, v any) {
	head, rest, found := strings.Cut(path, ".")
	if !found {
		d[path] = v
		return
	}
	sub, ok := d[head].(map[string]any)
	if !ok {
		sub = make(map[string]any)
		d[head] = sub
	}
	setPath(sub, rest, v)
}

func deletePath(d map[string]any, path string) {
	if _, ok := d[path]; ok {
		delete(d, path)
		return
	}
	head, rest, found := strings.Cut(path, ".")
	if !found {
		return
	}
	if sub, ok := d[head].(map[string]any); ok {
		sub = maps.Clone(sub)
		deletePath(sub, rest)
		d[head] = sub
	}
}

// Project applies a projection to d and returns a new document. An
// inclusion keeps _id unless "-_id" is listed.
func Project(d Document, p queryir.Projection) Document {
	if d == nil || p.IsEmpty() {
		return d
	}

	if p.Exclude {
		out := Document(maps.Clone(map[string]any(d)))
		for _, f := range p.Fields {
			deletePath(out, f)
		}
		return out
	}

	out := make(Document, len(p.Fields)+1)
	keepID := true
	for _, f := range p.Fields {
		if f == "-_id" {
			keepID = false
			continue
		}
		if v, ok := Lookup(d, f); ok {
			setPath(out, f, v)
		}
	}
	if keepID {
		if id, ok := d[IDField]; ok {
			out[IDField] = id
		}
	}
	return out
}

// ProjectAll applies p to every document.
func ProjectAll(docs []Document, p queryir.Projection) []Document {
	if p.IsEmpty() {
		return docs
	}
	out := make([]Document, len(docs))
	for i, d := range docs {
		out[i] = Project(d, p)
	}
	return out
}
