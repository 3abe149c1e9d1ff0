// Package docquery compiles flat, URL-style parameters into document store
// queries and runs them against a model.
//
//	res, err := docquery.Run(ctx, projects, docquery.Raw{
//		"qType": "allTotal",
//		"name":  "ends(title 3)",
//		"limit": "20",
//	}, docquery.Options{})
package docquery

import (
	"context"

	"github.com/roach88/docquery/internal/compiler"
	"github.com/roach88/docquery/internal/engine"
	"github.com/roach88/docquery/internal/model"
	"github.com/roach88/docquery/internal/queryir"
)

type (
	// Raw is the flat parameter set a query is compiled from.
	Raw = queryir.Raw

	// Options carries per-call defaults and the optional schema.
	Options = compiler.Options

	// Model is a queryable document type bound to a store.
	Model = model.Model

	// Result is the outcome of one query.
	Result = engine.Result

	// CompiledQuery is the validated query plan.
	CompiledQuery = queryir.CompiledQuery
)

var defaultEngine = engine.New()

// Compile turns raw into a query plan without touching any store.
func Compile(raw Raw, opts Options) (*CompiledQuery, error) {
	return defaultEngine.Compiler().Compile(raw, opts)
}

// Run compiles raw and executes it against m, which must be bound to a
// store.
func Run(ctx context.Context, m *Model, raw Raw, opts Options) (*Result, error) {
	return defaultEngine.Execute(ctx, m, raw, opts)
}
