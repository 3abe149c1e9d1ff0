// Package queryir provides the compiled query intermediate representation
// (IR) shared by the compiler, the dispatcher and every store backend.
//
// ARCHITECTURE:
//
// The IR sits between the flat request parameters and the store drivers:
//
//	[raw params] → [parser + populate resolver] → [CompiledQuery] → [memstore]
//	                                                              → [sqlstore]
//	                                                              → [mongostore]
//
// A CompiledQuery carries a filter, an ordered sort, pagination, a
// projection, the populate tree and the reserved controls (query type,
// override name, tree child options). Backends only ever see the IR, never
// the raw parameters.
//
// SEALED INTERFACES:
//
// Predicate is a sealed interface using the marker method pattern. Only
// types in this package can implement it, which lets backends switch over
// predicates exhaustively:
//
//	switch p := pred.(type) {
//	case Compare:
//	    // field <op> value
//	case And, Or, Nor:
//	    // logical composition
//	default:
//	    // impossible
//	}
//
// INVARIANTS:
//
//   - Filter never contains a reserved control key (qType, qName, sort, ...)
//   - 1 <= Limit <= LimitCap(Type)
//   - Sort keeps request order; the first key is the primary sort
//   - Populate trees are bounded by the resolver's maximum depth
//
// Validate reports violations of these invariants without side effects.
package queryir
