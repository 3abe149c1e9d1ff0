// Package mongostore runs store plans against MongoDB. Filters render
// directly to query documents; populate and the final projection reuse the
// shared store helpers so results match the other backends.
package mongostore

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/roach88/docquery/internal/store"
)

// Store executes plans against one MongoDB database.
type Store struct {
	db   *mongo.Database
	ids  store.IDGenerator
	refs *store.Refs
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator sets the generator for missing _id values.
func WithIDGenerator(g store.IDGenerator) Option {
	return func(s *Store) {
		s.ids = g
	}
}

// WithRefs sets the relation table used by populate.
func WithRefs(r *store.Refs) Option {
	return func(s *Store) {
		s.refs = r
	}
}

// Connect dials uri and returns a Store over database. The caller owns
// the client returned by Client.
func Connect(ctx context.Context, uri, database string, opts ...Option) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return New(client.Database(database), opts...), nil
}

// New wraps a database handle.
func New(db *mongo.Database, opts ...Option) *Store {
	s := &Store{
		db:   db,
		ids:  store.UUIDv7Generator{},
		refs: store.NewRefs(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Client returns the underlying client.
func (s *Store) Client() *mongo.Client {
	return s.db.Client()
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}

// Refs returns the relation table.
func (s *Store) Refs() *store.Refs {
	return s.refs
}

// Collection returns a store.Collection over name.
func (s *Store) Collection(name string) store.Collection {
	return store.NewCollection(s, name)
}

// Insert stores docs and returns them with their _id values. Missing ids
// are generated client side so every backend assigns string ids.
func (s *Store) Insert(ctx context.Context, collection string, docs ...store.Document) ([]store.Document, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	stored := make([]store.Document, len(docs))
	batch := make([]any, len(docs))
	for i, d := range docs {
		c := d.Clone()
		if store.IDString(c[store.IDField]) == "" {
			c[store.IDField] = s.ids.Generate()
		}
		stored[i] = c
		batch[i] = bson.M(c)
	}

	if _, err := s.db.Collection(collection).InsertMany(ctx, batch); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("insert %s: %w", collection, store.ErrDuplicateID)
		}
		return nil, fmt.Errorf("insert %s: %w", collection, err)
	}
	return stored, nil
}

// Find implements store.Executor.
func (s *Store) Find(ctx context.Context, p store.Plan) ([]store.Document, error) {
	filter, err := Filter(p.Filter)
	if err != nil {
		return nil, err
	}
	slog.Debug("mongostore find", "collection", p.Collection, "filter", filter)

	cur, err := s.db.Collection(p.Collection).Find(ctx, filter, FindOptions(p))
	if err != nil {
		return nil, err
	}
	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, err
	}

	docs := make([]store.Document, len(raw))
	for i, m := range raw {
		docs[i] = store.Document(nativeMap(m))
	}
	if err := store.PopulateDocs(ctx, s, s.refs, p.Collection, docs, p.Populate); err != nil {
		return nil, err
	}
	return store.ProjectAll(docs, p.Projection), nil
}

// FindOne implements store.Executor. Returns nil when nothing matches.
func (s *Store) FindOne(ctx context.Context, p store.Plan) (store.Document, error) {
	p.Limit = 1
	docs, err := s.Find(ctx, p)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

// Count implements store.Executor.
func (s *Store) Count(ctx context.Context, p store.Plan) (int64, error) {
	filter, err := Filter(p.Filter)
	if err != nil {
		return 0, err
	}
	return s.db.Collection(p.Collection).CountDocuments(ctx, filter, CountOptions(p))
}
