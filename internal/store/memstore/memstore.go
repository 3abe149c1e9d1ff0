// Package memstore is an in-memory document store implementing
// store.Executor. It is the reference backend for tests and the scenario
// harness.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/docquery/internal/ir"
	"github.com/roach88/docquery/internal/queryir"
	"github.com/roach88/docquery/internal/store"
)

// DB holds collections of documents in insertion order.
// Safe for concurrent use.
type DB struct {
	mu          sync.RWMutex
	collections map[string][]store.Document
	ids         store.IDGenerator
	refs        *store.Refs
}

// Option configures a DB.
type Option func(*DB)

// WithIDGenerator sets the generator for missing _id values.
func WithIDGenerator(g store.IDGenerator) Option {
	return func(db *DB) {
		db.ids = g
	}
}

// WithRefs sets the relation table used by populate.
func WithRefs(r *store.Refs) Option {
	return func(db *DB) {
		db.refs = r
	}
}

// New creates an empty DB.
func New(opts ...Option) *DB {
	db := &DB{
		collections: make(map[string][]store.Document),
		ids:         store.UUIDv7Generator{},
		refs:        store.NewRefs(),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Refs returns the relation table.
func (db *DB) Refs() *store.Refs {
	return db.refs
}

// Collection returns a store.Collection over name. The collection need not
// exist yet.
func (db *DB) Collection(name string) store.Collection {
	return store.NewCollection(db, name)
}

// Insert stores docs in collection and returns the stored copies. Missing
// _id values are generated; values are normalized to the store's native
// types.
func (db *DB) Insert(ctx context.Context, collection string, docs ...store.Document) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stored := make([]store.Document, 0, len(docs))
	for i, d := range docs {
		norm, err := normalize(d)
		if err != nil {
			return nil, fmt.Errorf("insert %s[%d]: %w", collection, i, err)
		}
		if store.IDString(norm[store.IDField]) == "" {
			norm[store.IDField] = db.ids.Generate()
		}
		stored = append(stored, norm)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	existing := make(map[string]bool, len(db.collections[collection]))
	for _, d := range db.collections[collection] {
		existing[d.ID()] = true
	}
	for _, d := range stored {
		if existing[d.ID()] {
			return nil, fmt.Errorf("insert %s: %w %q", collection, store.ErrDuplicateID, d.ID())
		}
		existing[d.ID()] = true
	}
	db.collections[collection] = append(db.collections[collection], stored...)

	out := make([]store.Document, len(stored))
	for i, d := range stored {
		out[i] = d.Clone()
	}
	return out, nil
}

func normalize(d store.Document) (store.Document, error) {
	v, err := ir.FromNative(map[string]any(d))
	if err != nil {
		return nil, err
	}
	native, ok := ir.ToNative(v).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("document is not an object")
	}
	return store.Document(native), nil
}

// Drop removes a collection.
func (db *DB) Drop(collection string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.collections, collection)
}

// snapshot returns the collection's documents. The slice is shared; the
// documents must be cloned before modification.
func (db *DB) snapshot(collection string) []store.Document {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return slices.Clone(db.collections[collection])
}

// selectDocs applies filter, sort, skip and limit. Returned documents are
// clones owned by the caller.
func (db *DB) selectDocs(ctx context.Context, p store.Plan) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := newMatcher()
	var matched []store.Document
	for _, d := range db.snapshot(p.Collection) {
		ok, err := m.match(d, p.Filter)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, d)
		}
	}

	if len(p.Sort) > 0 {
		sortDocs(matched, p.Sort)
	}

	if p.Skip > 0 {
		if p.Skip >= len(matched) {
			matched = nil
		} else {
			matched = matched[p.Skip:]
		}
	}
	if p.Limit > 0 && len(matched) > p.Limit {
		matched = matched[:p.Limit]
	}

	out := make([]store.Document, len(matched))
	for i, d := range matched {
		out[i] = d.Clone()
	}
	return out, nil
}

// sortDocs orders by keys; the stable sort keeps insertion order for ties.
func sortDocs(docs []store.Document, keys []queryir.SortKey) {
	slices.SortStableFunc(docs, func(a, b store.Document) int {
		for _, k := range keys {
			av, _ := store.Lookup(a, k.Field)
			bv, _ := store.Lookup(b, k.Field)
			ai, errA := ir.FromNative(av)
			bi, errB := ir.FromNative(bv)
			if errA != nil || errB != nil {
				continue
			}
			if c := ir.SortCompare(ai, bi); c != 0 {
				return c * k.Dir
			}
		}
		return 0
	})
}

// Find implements store.Executor.
func (db *DB) Find(ctx context.Context, p store.Plan) ([]store.Document, error) {
	docs, err := db.selectDocs(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := store.PopulateDocs(ctx, db, db.refs, p.Collection, docs, p.Populate); err != nil {
		return nil, err
	}
	return store.ProjectAll(docs, p.Projection), nil
}

// FindOne implements store.Executor. Returns nil when nothing matches.
func (db *DB) FindOne(ctx context.Context, p store.Plan) (store.Document, error) {
	p.Limit = 1
	docs, err := db.Find(ctx, p)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

// Count implements store.Executor. Skip and limit bound the count when set.
func (db *DB) Count(ctx context.Context, p store.Plan) (int64, error) {
	p.Populate = nil
	docs, err := db.selectDocs(ctx, p)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}
