package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/docquery/internal/compiler"
	"github.com/roach88/docquery/internal/engine"
	"github.com/roach88/docquery/internal/ir"
	"github.com/roach88/docquery/internal/model"
	"github.com/roach88/docquery/internal/queryir"
	"github.com/roach88/docquery/internal/schema"
	"github.com/roach88/docquery/internal/store"
	"github.com/roach88/docquery/internal/store/memstore"
	"github.com/roach88/docquery/internal/store/sqlstore"
	"github.com/roach88/docquery/internal/testutil"
)

// backend is what a scenario needs from a store.
type backend interface {
	model.Source
	Insert(ctx context.Context, collection string, docs ...store.Document) ([]store.Document, error)
	Refs() *store.Refs
}

// Harness holds the per-scenario state.
type Harness struct {
	engine  *engine.Engine
	schemas map[string]*schema.Schema
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh store; ids generated for seed
// documents without _id are doc-1, doc-2, ...
//
// Execution flow:
//  1. Open the backend and register relations
//  2. Insert fixtures and documents
//  3. Build and register models, compile schemas
//  4. Run every step and check its expectations
//
// Setup failures are returned as errors; expectation failures are recorded
// on the result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, closeStore, err := openBackend(scenario.Backend)
	if err != nil {
		return nil, err
	}
	defer closeStore()

	for _, spec := range scenario.Models {
		spec.DefineRefs(st.Refs())
	}
	if err := seed(ctx, st, scenario); err != nil {
		return nil, fmt.Errorf("failed to seed store: %w", err)
	}

	c := compiler.New()
	eng := engine.New(
		engine.WithCompiler(c),
		engine.WithSource(st),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	for _, spec := range scenario.Models {
		m, err := spec.Build(c.Parser())
		if err != nil {
			return nil, err
		}
		if err := eng.Register(m); err != nil {
			return nil, err
		}
	}

	h := &Harness{engine: eng, schemas: make(map[string]*schema.Schema)}
	for _, name := range slices.Sorted(maps.Keys(scenario.Schemas)) {
		s, err := schema.Compile(name, scenario.Schemas[name])
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", name, err)
		}
		h.schemas[name] = s
	}

	result := NewResult()
	for _, step := range scenario.Steps {
		sr, failures := h.runStep(ctx, step)
		result.Steps = append(result.Steps, sr)
		for _, f := range failures {
			result.AddError(fmt.Sprintf("step %s: %s", step.Name, f))
		}
	}
	return result, nil
}

func openBackend(name string) (backend, func(), error) {
	ids := testutil.NewSequenceIDs("doc")
	switch name {
	case "", BackendMemory:
		return memstore.New(memstore.WithIDGenerator(ids)), func() {}, nil
	case BackendSQLite:
		st, err := sqlstore.Open(":memory:", sqlstore.WithIDGenerator(ids))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		return st, func() { st.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", name)
	}
}

func seed(ctx context.Context, st backend, s *Scenario) error {
	for _, f := range s.Fixtures {
		var (
			coll string
			docs []store.Document
		)
		switch f {
		case FixtureProjects:
			coll, docs = testutil.TestsCollection, testutil.Projects()
		case FixtureTags:
			coll, docs = testutil.TagsCollection, testutil.Tags()
		case FixtureCategories:
			coll, docs = testutil.CategoriesCollection, testutil.Categories()
		}
		if _, err := st.Insert(ctx, coll, docs...); err != nil {
			return err
		}
	}

	for _, coll := range slices.Sorted(maps.Keys(s.Documents)) {
		docs := make([]store.Document, len(s.Documents[coll]))
		for i, d := range s.Documents[coll] {
			docs[i] = store.Document(d)
		}
		if _, err := st.Insert(ctx, coll, docs...); err != nil {
			return err
		}
	}
	return nil
}

func (h *Harness) runStep(ctx context.Context, step Step) (StepResult, []string) {
	sr := StepResult{Name: step.Name, Model: step.Model}

	opts := compiler.Options{}
	if o := step.Options; o != nil {
		opts = compiler.Options{
			Sort:     o.Sort,
			Skip:     o.Skip,
			Limit:    o.Limit,
			Fields:   o.Fields,
			Populate: o.Populate,
			Schema:   h.schemas[o.Schema],
		}
	}

	res, err := h.engine.Run(ctx, step.Model, queryir.Raw(step.Query), opts)
	if err != nil {
		sr.Error = errorLabel(err)
		return sr, checkExpect(step.Expect, nil, nil, err)
	}

	sr.Type = string(res.Type)
	sr.Shape = string(res.Shape)
	data, err := normalize(res)
	if err != nil {
		sr.Error = err.Error()
		return sr, []string{err.Error()}
	}
	sr.Data = data
	return sr, checkExpect(step.Expect, res, data, nil)
}

// normalize converts a result payload to plain JSON values so every
// backend produces identical snapshots.
func normalize(res *engine.Result) (any, error) {
	b, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}
	irv, err := ir.FromNative(v)
	if err != nil {
		return nil, err
	}
	return ir.ToNative(irv), nil
}
