package migrations

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"

	"github.com/gopds/gopds/pkg/models"
)

func init() {
	up := func(ctx context.Context, db *bun.DB) error {
		tables := []interface{}{
			(*models.Catalog)(nil),
			(*models.Book)(nil),
			(*models.Author)(nil),
			(*models.BookAuthor)(nil),
			(*models.Series)(nil),
			(*models.BookSeries)(nil),
			(*models.GenreSection)(nil),
			(*models.Genre)(nil),
			(*models.GenreTranslation)(nil),
			(*models.BookGenre)(nil),
			(*models.Counter)(nil),
		}
		for _, table := range tables {
			_, err := db.NewCreateTable().
				Model(table).
				WithForeignKeys().
				Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
		}

		// Natural keys the reconciler upserts against. The partial-path
		// identity of a book is (catalog, archive path, filename).
		type index struct {
			name    string
			model   interface{}
			columns []string
			unique  bool
		}
		indexes := []index{
			{"ux_catalogs_path", (*models.Catalog)(nil), []string{"path"}, true},
			{"ix_catalogs_parent_id", (*models.Catalog)(nil), []string{"parent_id"}, false},
			{"ux_books_catalog_path_filename", (*models.Book)(nil), []string{"catalog_id", "path", "filename"}, true},
			{"ix_books_avail", (*models.Book)(nil), []string{"avail"}, false},
			{"ix_books_search_title", (*models.Book)(nil), []string{"search_title"}, false},
			{"ix_books_author_key", (*models.Book)(nil), []string{"author_key"}, false},
			{"ux_authors_full_name", (*models.Author)(nil), []string{"full_name"}, true},
			{"ix_authors_search_full_name", (*models.Author)(nil), []string{"search_full_name"}, false},
			{"ux_series_ser_name", (*models.Series)(nil), []string{"ser_name"}, true},
			{"ux_book_authors_book_author", (*models.BookAuthor)(nil), []string{"book_id", "author_id"}, true},
			{"ux_book_series_book_series", (*models.BookSeries)(nil), []string{"book_id", "series_id"}, true},
			{"ux_book_genres_book_genre", (*models.BookGenre)(nil), []string{"book_id", "genre_id"}, true},
			{"ux_genres_code", (*models.Genre)(nil), []string{"code"}, true},
			{"ux_genre_sections_code", (*models.GenreSection)(nil), []string{"code"}, true},
			{"ux_genre_translations_lang_code", (*models.GenreTranslation)(nil), []string{"lang", "code"}, true},
		}
		for _, ix := range indexes {
			q := db.NewCreateIndex().Model(ix.model).Index(ix.name).Column(ix.columns...)
			if ix.unique {
				q = q.Unique()
			}
			if _, err := q.Exec(ctx); err != nil {
				return errors.WithStack(err)
			}
		}

		// Counter rows exist from the start; scans only ever update them.
		counters := []*models.Counter{
			{Name: models.CounterAllBooks},
			{Name: models.CounterAllCatalogs},
			{Name: models.CounterAllAuthors},
			{Name: models.CounterAllGenres},
			{Name: models.CounterAllSeries},
		}
		for _, counter := range counters {
			counter.UpdatedAt = time.Now()
		}
		if _, err := db.NewInsert().Model(&counters).Exec(ctx); err != nil {
			return errors.WithStack(err)
		}

		return nil
	}

	down := func(ctx context.Context, db *bun.DB) error {
		tables := []interface{}{
			(*models.Counter)(nil),
			(*models.BookGenre)(nil),
			(*models.GenreTranslation)(nil),
			(*models.Genre)(nil),
			(*models.GenreSection)(nil),
			(*models.BookSeries)(nil),
			(*models.Series)(nil),
			(*models.BookAuthor)(nil),
			(*models.Author)(nil),
			(*models.Book)(nil),
			(*models.Catalog)(nil),
		}
		for _, table := range tables {
			if _, err := db.NewDropTable().Model(table).IfExists().Exec(ctx); err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}

	Migrations.MustRegister(up, down)
}
