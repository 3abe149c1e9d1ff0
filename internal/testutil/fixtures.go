// Package testutil provides deterministic ids and seed data shared by
// package tests and the scenario harness.
package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/docquery/internal/store"
)

// Collection names used by the fixtures.
const (
	TestsCollection      = "tests"
	CategoriesCollection = "categories"
	TagsCollection       = "tags"
)

// Inserter is implemented by every writable backend.
type Inserter interface {
	Insert(ctx context.Context, collection string, docs ...store.Document) ([]store.Document, error)
}

// Projects returns the five "Project Title N" documents. Project 2 and 3
// reference project 1 through testRef; project 1 carries two tags.
func Projects() []store.Document {
	return []store.Document{
		{"_id": "p1", "name": "Project Title 1", "slug": "project-title-1", "rank": int64(3), "tags": []any{"t1", "t2"}},
		{"_id": "p2", "name": "Project Title 2", "slug": "project-title-2", "rank": int64(1), "testRef": "p1"},
		{"_id": "p3", "name": "Project Title 3", "slug": "project-title-3", "rank": int64(5), "testRef": "p1"},
		{"_id": "p4", "name": "Project Title 4", "slug": "project-title-4", "rank": int64(2)},
		{"_id": "p5", "name": "Project Title 5", "slug": "project-title-5", "rank": int64(4)},
	}
}

// Tags returns the documents referenced by Projects' tags.
func Tags() []store.Document {
	return []store.Document{
		{"_id": "t1", "label": "go"},
		{"_id": "t2", "label": "query"},
	}
}

// Categories returns three root categories with three children each,
// linked by parentId.
func Categories() []store.Document {
	docs := []store.Document{}
	roots := []struct{ id, name string }{{"c1", "Category 1"}, {"c2", "Category 2"}, {"c3", "Category 3"}}
	for _, r := range roots {
		docs = append(docs, store.Document{"_id": r.id, "name": r.name})
		for _, n := range []string{"1", "2", "3"} {
			docs = append(docs, store.Document{
				"_id":      r.id + "." + n,
				"name":     r.name + "." + n,
				"parentId": r.id,
			})
		}
	}
	return docs
}

// DefineRefs registers the fixture relations.
func DefineRefs(refs *store.Refs) {
	refs.Define(TestsCollection, "testRef", TestsCollection)
	refs.Define(TestsCollection, "tags", TagsCollection)
}

// Seed inserts all fixtures into db.
func Seed(t testing.TB, db Inserter) {
	t.Helper()
	ctx := context.Background()
	_, err := db.Insert(ctx, TestsCollection, Projects()...)
	require.NoError(t, err)
	_, err = db.Insert(ctx, TagsCollection, Tags()...)
	require.NoError(t, err)
	_, err = db.Insert(ctx, CategoriesCollection, Categories()...)
	require.NoError(t, err)
}
