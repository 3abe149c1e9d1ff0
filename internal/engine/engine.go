package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/docquery/internal/compiler"
	"github.com/roach88/docquery/internal/model"
	"github.com/roach88/docquery/internal/queryir"
	"github.com/roach88/docquery/internal/store"
)

// Engine compiles and runs queries for registered models.
//
// Thread-safety: Engine is immutable after New; Run may be called from
// any goroutine.
type Engine struct {
	compiler *compiler.Compiler
	models   *model.Registry
	source   model.Source
	logger   *slog.Logger
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithCompiler sets the compiler. Default: compiler.New().
func WithCompiler(c *compiler.Compiler) EngineOption {
	return func(e *Engine) {
		e.compiler = c
	}
}

// WithRegistry sets the model registry. Default: an empty registry.
func WithRegistry(r *model.Registry) EngineOption {
	return func(e *Engine) {
		e.models = r
	}
}

// WithSource sets the store used by models that are not bound to one.
func WithSource(s model.Source) EngineOption {
	return func(e *Engine) {
		e.source = s
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine.
func New(opts ...EngineOption) *Engine {
	e := &Engine{
		compiler: compiler.New(),
		models:   model.NewRegistry(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compiler returns the engine's compiler.
func (e *Engine) Compiler() *compiler.Compiler {
	return e.compiler
}

// Models returns the model registry.
func (e *Engine) Models() *model.Registry {
	return e.models
}

// Register adds models to the registry.
func (e *Engine) Register(models ...*model.Model) error {
	return e.models.Register(models...)
}

// Run compiles raw and executes it against the model registered as name.
func (e *Engine) Run(ctx context.Context, name string, raw queryir.Raw, opts compiler.Options) (*Result, error) {
	m, ok := e.models.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return e.Execute(ctx, m, raw, opts)
}

// Execute compiles raw and executes it against m.
func (e *Engine) Execute(ctx context.Context, m *model.Model, raw queryir.Raw, opts compiler.Options) (*Result, error) {
	q, err := e.compiler.Compile(raw, opts)
	if err != nil {
		return nil, err
	}
	return e.Dispatch(ctx, m, q, opts)
}

// Dispatch executes an already compiled query against m.
func (e *Engine) Dispatch(ctx context.Context, m *model.Model, q *queryir.CompiledQuery, opts compiler.Options) (*Result, error) {
	start := time.Now()

	if !q.Type.Known() {
		return nil, queryir.UnsupportedTypeError(q.Type)
	}
	coll, err := e.collection(m)
	if err != nil {
		return nil, err
	}

	var res *Result
	if q.Type.IsTree() {
		res, err = e.buildTree(ctx, m, coll, q)
	} else {
		res, err = e.runQuery(ctx, m, coll, q, opts)
	}
	if err != nil {
		e.logger.Debug("query failed",
			"model", m.Name(), "qType", q.Type, "qName", q.Name, "error", err)
		return nil, err
	}

	e.logger.Debug("query executed",
		"model", m.Name(),
		"qType", q.Type,
		"effective", res.Type,
		"qName", q.Name,
		"elapsed", time.Since(start))
	return res, nil
}

func (e *Engine) collection(m *model.Model) (store.Collection, error) {
	src := m.Source()
	if src == nil {
		src = e.source
	}
	if src == nil {
		return nil, fmt.Errorf("model %s: %w", m.Name(), ErrNoStore)
	}
	return src.Collection(m.CollectionName()), nil
}
