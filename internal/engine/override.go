package engine

import (
	"context"
	"fmt"

	"github.com/roach88/docquery/internal/compiler"
	"github.com/roach88/docquery/internal/model"
	"github.com/roach88/docquery/internal/queryir"
	"github.com/roach88/docquery/internal/store"
)

// resolution is the outcome of override lookup.
type resolution struct {
	// typ is the effective query type.
	typ queryir.QueryType

	// query is the lazy query to execute. Nil when a collection hook
	// returned a plain value.
	query store.Query

	// value holds a collection hook's non-query return value.
	value any

	// static is set when a collection hook fired.
	static bool

	// hook is the query-level hook, reapplied by the allTotal count leg.
	hook model.QueryHook
}

// resolve applies override precedence: collection hook, then query hook,
// then the default query. An unknown qName is not an error.
func resolve(ctx context.Context, m *model.Model, coll store.Collection, q *queryir.CompiledQuery, opts compiler.Options, base store.Query) (resolution, error) {
	if hook, ok := m.Static(q.Name); ok {
		v, err := hook(ctx, coll, q, opts)
		if err != nil {
			return resolution{}, fmt.Errorf("%s.%s: %w", m.Name(), q.Name, err)
		}
		r := resolution{typ: queryir.TypeAll, static: true}
		if lazy, ok := v.(store.Query); ok {
			r.query = lazy
		} else {
			r.value = v
		}
		return r, nil
	}

	if hook, ok := m.Query(q.Name, base.Op()); ok {
		return resolution{typ: q.Type, query: hook(base, q), hook: hook}, nil
	}

	return resolution{typ: q.Type, query: base}, nil
}

// countQuery builds the allTotal count leg. It starts from a fresh find
// over the compiled filter and reapplies the query hook so both legs see
// the same semantics. The rows window never bounds the total.
func countQuery(coll store.Collection, q *queryir.CompiledQuery, hook model.QueryHook) store.Query {
	fresh := coll.Find(q.Filter)
	if hook != nil {
		fresh = hook(fresh, q)
	}
	return fresh.Skip(0).Limit(0).Count(queryir.And{})
}
