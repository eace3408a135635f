package catalog

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"

	"github.com/gopds/gopds/pkg/errcodes"
	"github.com/gopds/gopds/pkg/models"
)

// FindBookByPath looks a book up by its identity within the scan root:
// catalog path plus filename. Availability is not filtered, so a logically
// deleted book is found and can be resurrected.
func (svc *Service) FindBookByPath(ctx context.Context, path, filename string) (*models.Book, error) {
	book := &models.Book{}
	err := svc.db.
		NewSelect().
		Model(book).
		Where("b.path = ? AND b.filename = ?", path, filename).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Book")
		}
		return nil, errors.WithStack(err)
	}
	return book, nil
}

func (svc *Service) RetrieveBook(ctx context.Context, id int64) (*models.Book, error) {
	book := &models.Book{}
	err := svc.db.
		NewSelect().
		Model(book).
		Relation("Catalog").
		Relation("BookAuthors.Author").
		Relation("BookSeries.Series").
		Relation("BookGenres.Genre").
		Where("b.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Book")
		}
		return nil, errors.WithStack(err)
	}

	for _, ba := range book.BookAuthors {
		if ba.Author != nil {
			book.Authors = append(book.Authors, ba.Author)
		}
	}
	for _, bg := range book.BookGenres {
		if bg.Genre != nil {
			book.Genres = append(book.Genres, bg.Genre)
		}
	}
	return book, nil
}

// CreateBook inserts the book, its association rows, and the allbooks
// counter bump in one transaction. The book arrives as unverified; a later
// pass of the same scan promotes it if it is seen again.
func (svc *Service) CreateBook(ctx context.Context, book *models.Book, links *BookLinks) error {
	now := time.Now()
	if book.CreatedAt.IsZero() {
		book.CreatedAt = now
	}
	book.UpdatedAt = book.CreatedAt
	if book.Avail == 0 {
		book.Avail = models.AvailUnverified
	}
	if links != nil {
		book.AuthorKey = models.AuthorKey(links.AuthorIDs)
	}

	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(book).Exec(ctx); err != nil {
			return errors.WithStack(err)
		}
		if err := insertLinks(ctx, tx, book.ID, links); err != nil {
			return err
		}
		return incrementCounter(ctx, tx, models.CounterAllBooks, 1)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return errors.WithStack(errcodes.DuplicateKey(err.Error()))
		}
		return err
	}
	return nil
}

// UpdateBook writes the given columns and, when links is non-nil, replaces
// the association rows wholesale. The author key is recomputed with them so
// it never drifts from the junction table.
func (svc *Service) UpdateBook(ctx context.Context, book *models.Book, columns []string, links *BookLinks) error {
	book.UpdatedAt = time.Now()
	columns = append(columns, "updated_at")
	if links != nil {
		book.AuthorKey = models.AuthorKey(links.AuthorIDs)
		columns = append(columns, "author_key")
	}

	return svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewUpdate().
			Model(book).
			Column(columns...).
			WherePK().
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if links == nil {
			return nil
		}
		if err := deleteLinks(ctx, tx, book.ID); err != nil {
			return err
		}
		return insertLinks(ctx, tx, book.ID, links)
	})
}

func (svc *Service) SetBookAvail(ctx context.Context, bookID int64, avail int) error {
	_, err := svc.db.
		NewUpdate().
		Model((*models.Book)(nil)).
		Set("avail = ?", avail).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", bookID).
		Exec(ctx)
	return errors.WithStack(err)
}

// MarkAllBooksUnverified opens a scan: every available book drops to the
// unverified state and must be re-discovered to survive the closing sweep.
func (svc *Service) MarkAllBooksUnverified(ctx context.Context) (int, error) {
	result, err := svc.db.
		NewUpdate().
		Model((*models.Book)(nil)).
		Set("avail = ?", models.AvailUnverified).
		Where("avail = ?", models.AvailConfirmed).
		Exec(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// ConfirmCatalogBooks promotes every unverified book of a catalog. Used for
// archives skipped as unchanged, whose books were never walked this scan.
func (svc *Service) ConfirmCatalogBooks(ctx context.Context, catalogID int64) (int, error) {
	result, err := svc.db.
		NewUpdate().
		Model((*models.Book)(nil)).
		Set("avail = ?", models.AvailConfirmed).
		Where("catalog_id = ? AND avail = ?", catalogID, models.AvailUnverified).
		Exec(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// MarkUnverifiedBooksDeleted closes a scan: books nobody re-discovered are
// logically deleted.
func (svc *Service) MarkUnverifiedBooksDeleted(ctx context.Context) (int, error) {
	result, err := svc.db.
		NewUpdate().
		Model((*models.Book)(nil)).
		Set("avail = ?", models.AvailDeleted).
		Set("updated_at = ?", time.Now()).
		Where("avail = ?", models.AvailUnverified).
		Exec(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

func (svc *Service) ListUnavailableBookIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := svc.db.
		NewSelect().
		Model((*models.Book)(nil)).
		Column("id").
		Where("avail = ?", models.AvailDeleted).
		Scan(ctx, &ids)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return ids, nil
}

// PurgeUnavailableBooks physically removes logically deleted books together
// with their association rows. Only runs when logical deletion is disabled.
func (svc *Service) PurgeUnavailableBooks(ctx context.Context) (int, error) {
	purged := 0
	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var ids []int64
		err := tx.NewSelect().
			Model((*models.Book)(nil)).
			Column("id").
			Where("avail = ?", models.AvailDeleted).
			Scan(ctx, &ids)
		if err != nil {
			return errors.WithStack(err)
		}
		if len(ids) == 0 {
			return nil
		}

		for _, model := range []interface{}{
			(*models.BookAuthor)(nil),
			(*models.BookSeries)(nil),
			(*models.BookGenre)(nil),
		} {
			_, err = tx.NewDelete().
				Model(model).
				Where("book_id IN (?)", bun.In(ids)).
				Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
		}

		result, err := tx.NewDelete().
			Model((*models.Book)(nil)).
			Where("id IN (?)", bun.In(ids)).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		n, _ := result.RowsAffected()
		purged = int(n)
		return nil
	})
	return purged, err
}

func insertLinks(ctx context.Context, tx bun.Tx, bookID int64, links *BookLinks) error {
	if links == nil {
		return nil
	}
	for _, authorID := range links.AuthorIDs {
		ba := &models.BookAuthor{BookID: bookID, AuthorID: authorID}
		if _, err := tx.NewInsert().Model(ba).Exec(ctx); err != nil {
			return errors.WithStack(err)
		}
	}
	for _, genreID := range links.GenreIDs {
		bg := &models.BookGenre{BookID: bookID, GenreID: genreID}
		if _, err := tx.NewInsert().Model(bg).Exec(ctx); err != nil {
			return errors.WithStack(err)
		}
	}
	if links.SeriesID != nil {
		bs := &models.BookSeries{BookID: bookID, SeriesID: *links.SeriesID, SerNo: links.SerNo}
		if _, err := tx.NewInsert().Model(bs).Exec(ctx); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

func deleteLinks(ctx context.Context, tx bun.Tx, bookID int64) error {
	for _, model := range []interface{}{
		(*models.BookAuthor)(nil),
		(*models.BookSeries)(nil),
		(*models.BookGenre)(nil),
	} {
		_, err := tx.NewDelete().
			Model(model).
			Where("book_id = ?", bookID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}
