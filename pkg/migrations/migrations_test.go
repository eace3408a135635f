package migrations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopds/gopds/pkg/config"
	"github.com/gopds/gopds/pkg/database"
	"github.com/gopds/gopds/pkg/models"
)

func TestBringUpToDate(t *testing.T) {
	ctx := context.Background()

	cfg := config.NewForTest()
	db, err := database.New(cfg)
	require.NoError(t, err)
	defer db.Close()

	group, err := BringUpToDate(ctx, db)
	require.NoError(t, err)
	require.NotNil(t, group)
	assert.Len(t, group.Migrations, 2)

	// Running again is a no-op.
	group, err = BringUpToDate(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, group.Migrations)

	// The schema accepts the core models.
	catalog := &models.Catalog{Path: "books", Name: "books", Kind: models.CatalogKindNormal}
	_, err = db.NewInsert().Model(catalog).Exec(ctx)
	require.NoError(t, err)
	require.NotZero(t, catalog.ID)

	book := &models.Book{
		CatalogID: catalog.ID,
		Filename:  "example.fb2",
		Format:    "fb2",
		Title:     "Example",
		Avail:     models.AvailConfirmed,
	}
	_, err = db.NewInsert().Model(book).Exec(ctx)
	require.NoError(t, err)

	// The book identity key is unique per catalog.
	dup := &models.Book{CatalogID: catalog.ID, Filename: "example.fb2", Format: "fb2", Title: "Example"}
	_, err = db.NewInsert().Model(dup).Exec(ctx)
	require.Error(t, err)

	// The genre taxonomy is seeded with translated codes.
	genre := &models.Genre{}
	err = db.NewSelect().Model(genre).Where("code = ?", "sf_fantasy").Scan(ctx)
	require.NoError(t, err)

	var name string
	err = db.NewSelect().
		Model((*models.GenreTranslation)(nil)).
		Column("name").
		Where("code = ? AND lang = ?", "sf_fantasy", "en").
		Scan(ctx, &name)
	require.NoError(t, err)
	assert.Equal(t, "Fantasy", name)
}
