// Package sqlstore is a SQLite document store implementing store.Executor.
// Documents are JSON bodies in a single table; filters compile through
// querysql to JSON1 expressions.
package sqlstore

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Masterminds/squirrel"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/roach88/docquery/internal/ir"
	"github.com/roach88/docquery/internal/querysql"
	"github.com/roach88/docquery/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial documents table
// 1 - Added (collection, seq) index
const currentSchemaVersion = 1

// Store provides durable document storage.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db   *sql.DB
	sql  *querysql.SQLCompiler
	sq   squirrel.StatementBuilderType
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

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//
// Safe to call repeatedly on the same path.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return New(db, opts...), nil
}

// New wraps an already prepared database. The documents table must exist.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:   db,
		sql:  querysql.NewSQLCompiler(),
		sq:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		ids:  store.UUIDv7Generator{},
		refs: store.NewRefs(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Refs returns the relation table.
func (s *Store) Refs() *store.Refs {
	return s.refs
}

// Collection returns a store.Collection over name.
func (s *Store) Collection(name string) store.Collection {
	return store.NewCollection(s, name)
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateToV1 adds the collection scan index to databases created before
// schema.sql carried it.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_documents_collection_seq
		ON documents(collection, seq)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// Insert stores docs in collection within one transaction and returns the
// stored copies. Missing _id values are generated. Times are stored as
// UTC text so they compare chronologically.
func (s *Store) Insert(ctx context.Context, collection string, docs ...store.Document) ([]store.Document, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	ins := s.sq.Insert(s.sql.Table).Columns("collection", "id", "body")
	stored := make([]store.Document, 0, len(docs))
	for i, d := range docs {
		norm, err := normalize(d)
		if err != nil {
			return nil, fmt.Errorf("insert %s[%d]: %w", collection, i, err)
		}
		if store.IDString(norm[store.IDField]) == "" {
			norm[store.IDField] = s.ids.Generate()
		}
		body, err := json.Marshal(norm)
		if err != nil {
			return nil, fmt.Errorf("insert %s[%d]: encode: %w", collection, i, err)
		}
		ins = ins.Values(collection, norm.ID(), string(body))
		stored = append(stored, norm)
	}

	query, args, err := ins.ToSql()
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", collection, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("insert %s: begin: %w", collection, err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		_ = tx.Rollback()
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, fmt.Errorf("insert %s: %w", collection, store.ErrDuplicateID)
		}
		return nil, fmt.Errorf("insert %s: %w", collection, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("insert %s: commit: %w", collection, err)
	}
	return stored, nil
}

// Drop deletes every document of collection.
func (s *Store) Drop(ctx context.Context, collection string) error {
	query, args, err := s.sq.Delete(s.sql.Table).Where(squirrel.Eq{"collection": collection}).ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("drop %s: %w", collection, err)
	}
	return nil
}

// Find implements store.Executor.
func (s *Store) Find(ctx context.Context, p store.Plan) ([]store.Document, error) {
	query, args, err := s.sql.Compile(p)
	if err != nil {
		return nil, err
	}
	slog.Debug("sqlstore query", "collection", p.Collection, "sql", query)

	docs, err := s.queryDocs(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if err := store.PopulateDocs(ctx, s, s.refs, p.Collection, docs, p.Populate); err != nil {
		return nil, err
	}
	return store.ProjectAll(docs, p.Projection), nil
}

// queryDocs reads every row before returning; populate issues nested
// queries and the pool holds a single connection.
func (s *Store) queryDocs(ctx context.Context, query string, args []any) ([]store.Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []store.Document
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d, err := decode(body)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
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

// Count implements store.Executor. Skip and limit bound the count when set.
func (s *Store) Count(ctx context.Context, p store.Plan) (int64, error) {
	query, args, err := s.sql.CompileCount(p)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// normalize converts d to plain JSON-compatible values with times as text.
func normalize(d store.Document) (store.Document, error) {
	v, err := ir.FromNative(map[string]any(d))
	if err != nil {
		return nil, err
	}
	native, ok := textTimes(ir.ToNative(v)).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("document is not an object")
	}
	return store.Document(native), nil
}

func textTimes(v any) any {
	switch val := v.(type) {
	case time.Time:
		return querysql.FormatTime(val)
	case []any:
		for i, elem := range val {
			val[i] = textTimes(elem)
		}
	case map[string]any:
		for k, elem := range val {
			val[k] = textTimes(elem)
		}
	}
	return v
}

func decode(body string) (store.Document, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	v, err := ir.FromNative(raw)
	if err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return store.Document(ir.ToNative(v).(map[string]any)), nil
}
