// Package engine drives compiled queries against a model's store.
//
// A call flows through four stages:
//
//  1. Compile: raw parameters become a queryir.CompiledQuery (package
//     compiler). Compile errors end the call before any store access.
//  2. Dispatch: the query type selects the default lazy query, or the
//     model's tree builder for tree and arrayTree.
//  3. Override: a collection-level hook named by qName replaces the query
//     outright and forces the effective type to all; otherwise a
//     query-level hook rewrites the default query; otherwise the default
//     stands.
//  4. Assemble: the resolved query runs once, except for allTotal, whose
//     rows and count legs run concurrently and join fail-fast.
//
// Store errors pass through with context added by store.Chain and are
// never translated.
package engine
