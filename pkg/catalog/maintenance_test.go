package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopds/gopds/pkg/models"
)

func TestDuplicateAuthorGroups(t *testing.T) {
	tc := newTestContext(t)

	a1, err := tc.svc.UpsertAuthorByName(tc.ctx, "Asimov Isaac")
	require.NoError(t, err)
	_, err = tc.svc.UpsertAuthorByName(tc.ctx, "Tolkien John")
	require.NoError(t, err)

	// A second spelling with the same search form slips past the unique
	// full_name key.
	a2 := &models.Author{FullName: "ASIMOV ISAAC", SearchFullName: "ASIMOV ISAAC", LangClass: models.LangClassLatin}
	_, err = tc.db.NewInsert().Model(a2).Exec(tc.ctx)
	require.NoError(t, err)

	groups, err := tc.svc.DuplicateAuthorGroups(tc.ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Len(t, groups[0], 2)
	assert.Equal(t, a1.ID, groups[0][0].ID) // lowest id first
}

func TestMergeAuthors(t *testing.T) {
	tc := newTestContext(t)
	catalog := tc.createCatalog("books")

	target, err := tc.svc.UpsertAuthorByName(tc.ctx, "Asimov Isaac")
	require.NoError(t, err)
	source, err := tc.svc.UpsertAuthorByName(tc.ctx, "ASIMOV ISAAC")
	require.NoError(t, err)

	// One book links only the source, one links both spellings.
	only := tc.createBook(catalog.ID, "books", "only.fb2", &BookLinks{AuthorIDs: []int64{source.ID}})
	both := tc.createBook(catalog.ID, "books", "both.fb2", &BookLinks{AuthorIDs: []int64{target.ID, source.ID}})

	require.NoError(t, tc.svc.MergeAuthors(tc.ctx, target.ID, []int64{source.ID}))

	loaded, err := tc.svc.RetrieveBook(tc.ctx, only.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Authors, 1)
	assert.Equal(t, target.ID, loaded.Authors[0].ID)
	assert.Equal(t, models.AuthorKey([]int64{target.ID}), loaded.AuthorKey)

	loaded, err = tc.svc.RetrieveBook(tc.ctx, both.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Authors, 1)
	assert.Equal(t, models.AuthorKey([]int64{target.ID}), loaded.AuthorKey)

	// The source row is gone and the counter followed.
	var count int
	count, err = tc.db.NewSelect().Model((*models.Author)(nil)).Count(tc.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.EqualValues(t, 1, tc.counter(models.CounterAllAuthors))
}

func TestMergeSeries(t *testing.T) {
	tc := newTestContext(t)
	catalog := tc.createCatalog("books")

	target, err := tc.svc.UpsertSeriesByName(tc.ctx, "Foundation")
	require.NoError(t, err)
	source, err := tc.svc.UpsertSeriesByName(tc.ctx, "FOUNDATION")
	require.NoError(t, err)

	book := tc.createBook(catalog.ID, "books", "a.fb2", &BookLinks{SeriesID: &source.ID, SerNo: 3})

	require.NoError(t, tc.svc.MergeSeries(tc.ctx, target.ID, []int64{source.ID}))

	loaded, err := tc.svc.RetrieveBook(tc.ctx, book.ID)
	require.NoError(t, err)
	require.Len(t, loaded.BookSeries, 1)
	assert.Equal(t, target.ID, loaded.BookSeries[0].SeriesID)
	assert.Equal(t, 3, loaded.BookSeries[0].SerNo) // ordinal survives the merge
	assert.EqualValues(t, 1, tc.counter(models.CounterAllSeries))
}

func TestDuplicateSeriesGroups(t *testing.T) {
	tc := newTestContext(t)

	_, err := tc.svc.UpsertSeriesByName(tc.ctx, "Foundation")
	require.NoError(t, err)
	_, err = tc.svc.UpsertSeriesByName(tc.ctx, "FOUNDATION")
	require.NoError(t, err)
	_, err = tc.svc.UpsertSeriesByName(tc.ctx, "Discworld")
	require.NoError(t, err)

	groups, err := tc.svc.DuplicateSeriesGroups(tc.ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0], 2)
}
