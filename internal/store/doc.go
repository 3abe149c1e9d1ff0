// Package store defines the driver boundary between the query engine and
// document stores.
//
// A backend implements Executor: three terminal reads over a Plan. Chain
// turns an Executor into the lazy, chainable Query the engine and model
// hooks work with. Every Chain method returns a new value, so a Query can
// be shared, extended by a hook and executed more than once.
//
// The package also carries the helpers every backend shares:
//
//   - Project applies a field projection to a document
//   - PopulateDocs resolves relation paths through Refs
//   - MaterializedTree builds tree and arrayTree results from parentId links
//
// # Ordering
//
// Without a sort, backends return documents in insertion order. Sorted
// reads use the document comparison order of ir.SortCompare with
// insertion order as the tiebreaker.
package store
