package catalog

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"

	"github.com/gopds/gopds/pkg/models"
)

// Duplicate detection groups names by their uppercased search form, so
// "Азимов Айзек" and "азимов айзек" land in the same group. Merging keeps
// the lowest id and relinks everything else onto it.

func (svc *Service) DuplicateAuthorGroups(ctx context.Context) ([][]*models.Author, error) {
	var authors []*models.Author
	err := svc.db.
		NewSelect().
		Model(&authors).
		Where("a.search_full_name IN (?)", svc.db.NewSelect().
			Model((*models.Author)(nil)).
			Column("search_full_name").
			Group("search_full_name").
			Having("COUNT(*) > 1")).
		Order("a.search_full_name ASC", "a.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var groups [][]*models.Author
	for _, author := range authors {
		n := len(groups)
		if n > 0 && groups[n-1][0].SearchFullName == author.SearchFullName {
			groups[n-1] = append(groups[n-1], author)
			continue
		}
		groups = append(groups, []*models.Author{author})
	}
	return groups, nil
}

func (svc *Service) DuplicateSeriesGroups(ctx context.Context) ([][]*models.Series, error) {
	var series []*models.Series
	err := svc.db.
		NewSelect().
		Model(&series).
		Where("s.search_ser IN (?)", svc.db.NewSelect().
			Model((*models.Series)(nil)).
			Column("search_ser").
			Group("search_ser").
			Having("COUNT(*) > 1")).
		Order("s.search_ser ASC", "s.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var groups [][]*models.Series
	for _, s := range series {
		n := len(groups)
		if n > 0 && groups[n-1][0].SearchName == s.SearchName {
			groups[n-1] = append(groups[n-1], s)
			continue
		}
		groups = append(groups, []*models.Series{s})
	}
	return groups, nil
}

// MergeAuthors relinks every book of the source authors onto the target,
// refreshes the affected books' author keys, and deletes the sources. A
// book already linked to both sides keeps a single link.
func (svc *Service) MergeAuthors(ctx context.Context, targetID int64, sourceIDs []int64) error {
	if len(sourceIDs) == 0 {
		return nil
	}
	return svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var bookIDs []int64
		err := tx.NewSelect().
			Model((*models.BookAuthor)(nil)).
			ColumnExpr("DISTINCT book_id").
			Where("author_id IN (?)", bun.In(sourceIDs)).
			Scan(ctx, &bookIDs)
		if err != nil {
			return errors.WithStack(err)
		}

		// Drop links that would collide with an existing target link, then
		// point the rest at the target.
		_, err = tx.NewDelete().
			Model((*models.BookAuthor)(nil)).
			Where("author_id IN (?)", bun.In(sourceIDs)).
			Where("book_id IN (SELECT book_id FROM book_authors WHERE author_id = ?)", targetID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = tx.NewUpdate().
			Model((*models.BookAuthor)(nil)).
			Set("author_id = ?", targetID).
			Where("author_id IN (?)", bun.In(sourceIDs)).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		result, err := tx.NewDelete().
			Model((*models.Author)(nil)).
			Where("id IN (?)", bun.In(sourceIDs)).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			if err := incrementCounter(ctx, tx, models.CounterAllAuthors, -n); err != nil {
				return err
			}
		}

		for _, bookID := range bookIDs {
			if err := refreshAuthorKey(ctx, tx, bookID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (svc *Service) MergeSeries(ctx context.Context, targetID int64, sourceIDs []int64) error {
	if len(sourceIDs) == 0 {
		return nil
	}
	return svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*models.BookSeries)(nil)).
			Where("series_id IN (?)", bun.In(sourceIDs)).
			Where("book_id IN (SELECT book_id FROM book_series WHERE series_id = ?)", targetID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = tx.NewUpdate().
			Model((*models.BookSeries)(nil)).
			Set("series_id = ?", targetID).
			Where("series_id IN (?)", bun.In(sourceIDs)).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		result, err := tx.NewDelete().
			Model((*models.Series)(nil)).
			Where("id IN (?)", bun.In(sourceIDs)).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			return incrementCounter(ctx, tx, models.CounterAllSeries, -n)
		}
		return nil
	})
}

// refreshAuthorKey recomputes a book's denormalized author key from its
// current junction rows.
func refreshAuthorKey(ctx context.Context, tx bun.Tx, bookID int64) error {
	var authorIDs []int64
	err := tx.NewSelect().
		Model((*models.BookAuthor)(nil)).
		Column("author_id").
		Where("book_id = ?", bookID).
		Scan(ctx, &authorIDs)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = tx.NewUpdate().
		Model((*models.Book)(nil)).
		Set("author_key = ?", models.AuthorKey(authorIDs)).
		Where("id = ?", bookID).
		Exec(ctx)
	return errors.WithStack(err)
}
