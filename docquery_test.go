package docquery_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docquery"
	"github.com/roach88/docquery/internal/engine"
	"github.com/roach88/docquery/internal/model"
	"github.com/roach88/docquery/internal/queryir"
	"github.com/roach88/docquery/internal/store/memstore"
	"github.com/roach88/docquery/internal/testutil"
)

func TestRun_ProjectsEndToEnd(t *testing.T) {
	db := memstore.New()
	testutil.DefineRefs(db.Refs())
	testutil.Seed(t, db)
	m := model.New("test", model.WithSource(db))
	ctx := context.Background()

	res, err := docquery.Run(ctx, m, docquery.Raw{}, docquery.Options{})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 5)

	res, err = docquery.Run(ctx, m, docquery.Raw{"qType": "total"}, docquery.Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Total)

	res, err = docquery.Run(ctx, m, docquery.Raw{"qType": "allTotal", "skip": "4", "limit": "2"}, docquery.Options{})
	require.NoError(t, err)
	assert.Equal(t, engine.ShapeRowsTotal, res.Shape)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "Project Title 5", res.Rows[0]["name"])
	assert.Equal(t, int64(5), res.Total)

	res, err = docquery.Run(ctx, m, docquery.Raw{"name": "ends(title 3)"}, docquery.Options{})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "Project Title 3", res.Rows[0]["name"])
}

func TestRun_UnboundModel(t *testing.T) {
	_, err := docquery.Run(context.Background(), model.New("test"), docquery.Raw{}, docquery.Options{})
	assert.ErrorIs(t, err, engine.ErrNoStore)
}

func TestCompile(t *testing.T) {
	q, err := docquery.Compile(docquery.Raw{"qType": "one", "limit": "50"}, docquery.Options{})
	require.NoError(t, err)
	assert.Equal(t, queryir.TypeOne, q.Type)
	assert.Equal(t, 1, q.Limit)
}
