package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/docquery/internal/ir"
	"github.com/roach88/docquery/internal/queryir"
)

// ErrUnknownRelation is returned when a populate path has no registered
// target collection.
var ErrUnknownRelation = errors.New("unknown relation")

// ErrDuplicateID is returned when an insert reuses an _id within a
// collection.
var ErrDuplicateID = errors.New("duplicate _id")

// Refs records which collection a reference field points at.
// Safe for concurrent use.
type Refs struct {
	mu   sync.RWMutex
	refs map[string]map[string]string
}

// NewRefs creates an empty relation table.
func NewRefs() *Refs {
	return &Refs{refs: make(map[string]map[string]string)}
}

// Define declares that collection.path holds ids of documents in target.
func (r *Refs) Define(collection, path, target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refs[collection] == nil {
		r.refs[collection] = make(map[string]string)
	}
	r.refs[collection][path] = target
}

// Target returns the collection collection.path points at.
func (r *Refs) Target(collection, path string) (string, bool) {
	if r == nil {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	target, ok := r.refs[collection][path]
	return target, ok
}

// PopulateDocs replaces reference fields in docs with the documents they
// point at. docs must be owned by the caller; they are modified in place.
//
// A scalar reference becomes a document, or nil when the target is
// missing. An array of references becomes an array of the documents
// found. Without a sort, array results keep the order of the stored ids.
//
// Specs without skip or limit are fetched with one Find per spec; otherwise
// every document gets its own Find so skip and limit apply per document.
// Entries without a path are ignored.
func PopulateDocs(ctx context.Context, exec Executor, refs *Refs, collection string, docs []Document, specs []queryir.PopulateSpec) error {
	for _, spec := range specs {
		if spec.Path == "" {
			continue
		}
		target, ok := refs.Target(collection, spec.Path)
		if !ok {
			return fmt.Errorf("populate %s.%s: %w", collection, spec.Path, ErrUnknownRelation)
		}

		var err error
		if spec.Options.Limit != nil || spec.Options.Skip > 0 {
			err = populateEach(ctx, exec, target, docs, spec)
		} else {
			err = populateBatch(ctx, exec, target, docs, spec)
		}
		if err != nil {
			return fmt.Errorf("populate %s.%s: %w", collection, spec.Path, err)
		}
	}
	return nil
}

// refIDs returns the ids stored at path and whether the field is an array.
func refIDs(d Document, path string) ([]any, bool) {
	v, ok := Lookup(d, path)
	if !ok || v == nil {
		return nil, false
	}
	switch val := v.(type) {
	case []any:
		ids := make([]any, 0, len(val))
		for _, elem := range val {
			if id := refID(elem); id != nil {
				ids = append(ids, id)
			}
		}
		return ids, true
	default:
		if id := refID(val); id != nil {
			return []any{id}, false
		}
	}
	return nil, false
}

// refID accepts a raw id or an already embedded document.
func refID(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return val[IDField]
	case Document:
		return val[IDField]
	}
	return v
}

func idFilter(match queryir.And, ids []any) (queryir.And, error) {
	arr := make(ir.IRArray, 0, len(ids))
	for _, id := range ids {
		v, err := ir.FromNative(id)
		if err != nil {
			return queryir.And{}, fmt.Errorf("reference id: %w", err)
		}
		arr = append(arr, v)
	}
	return queryir.Conjoin(match, queryir.Compare{Field: IDField, Op: queryir.OpIn, Value: arr}), nil
}

// fetchPlan keeps _id in the projection so fetched documents can be
// linked; the spec's projection is applied again after linking.
func fetchPlan(target string, spec queryir.PopulateSpec, filter queryir.And) Plan {
	proj := spec.Select
	if !proj.IsEmpty() {
		fields := make([]string, 0, len(proj.Fields))
		for _, f := range proj.Fields {
			if f == "-_id" || (proj.Exclude && f == IDField) {
				continue
			}
			fields = append(fields, f)
		}
		proj.Fields = fields
	}
	plan := Plan{
		Collection: target,
		Op:         OpFind,
		Filter:     filter,
		Sort:       spec.Options.Sort,
		Skip:       spec.Options.Skip,
		Projection: proj,
		Populate:   spec.Populate,
	}
	if spec.Options.Limit != nil && *spec.Options.Limit > 0 {
		plan.Limit = *spec.Options.Limit
	}
	return plan
}

func populateBatch(ctx context.Context, exec Executor, target string, docs []Document, spec queryir.PopulateSpec) error {
	var all []any
	seen := make(map[string]bool)
	for _, d := range docs {
		ids, _ := refIDs(d, spec.Path)
		for _, id := range ids {
			if key := IDString(id); !seen[key] {
				seen[key] = true
				all = append(all, id)
			}
		}
	}
	if len(all) == 0 {
		return nil
	}

	filter, err := idFilter(spec.Match, all)
	if err != nil {
		return err
	}
	fetched, err := exec.Find(ctx, fetchPlan(target, spec, filter))
	if err != nil {
		return err
	}
	for _, d := range docs {
		link(d, spec, fetched)
	}
	return nil
}

func populateEach(ctx context.Context, exec Executor, target string, docs []Document, spec queryir.PopulateSpec) error {
	for _, d := range docs {
		ids, _ := refIDs(d, spec.Path)
		if len(ids) == 0 {
			continue
		}
		filter, err := idFilter(spec.Match, ids)
		if err != nil {
			return err
		}
		fetched, err := exec.Find(ctx, fetchPlan(target, spec, filter))
		if err != nil {
			return err
		}
		link(d, spec, fetched)
	}
	return nil
}

// link writes the fetched documents referenced by d into d.
func link(d Document, spec queryir.PopulateSpec, fetched []Document) {
	ids, isArray := refIDs(d, spec.Path)
	if len(ids) == 0 && !isArray {
		return
	}

	byID := make(map[string]Document, len(fetched))
	for _, f := range fetched {
		byID[f.ID()] = f
	}

	if !isArray {
		if found, ok := byID[IDString(ids[0])]; ok {
			setPath(d, spec.Path, map[string]any(Project(found.Clone(), spec.Select)))
		} else {
			setPath(d, spec.Path, nil)
		}
		return
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[IDString(id)] = true
	}
	out := make([]any, 0, len(ids))
	if len(spec.Options.Sort) > 0 {
		for _, f := range fetched {
			if wanted[f.ID()] {
				out = append(out, map[string]any(Project(f.Clone(), spec.Select)))
			}
		}
	} else {
		for _, id := range ids {
			if found, ok := byID[IDString(id)]; ok {
				out = append(out, map[string]any(Project(found.Clone(), spec.Select)))
			}
		}
	}
	setPath(d, spec.Path, out)
}
