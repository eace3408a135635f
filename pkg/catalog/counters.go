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

// Counter rows are seeded by the initial migration, so every adjustment is
// an UPDATE; a zero-row result means the schema is broken, not that the
// counter needs creating.

func (svc *Service) IncrementCounter(ctx context.Context, name string, delta int64) error {
	return incrementCounter(ctx, svc.db, name, delta)
}

func incrementCounter(ctx context.Context, idb bun.IDB, name string, delta int64) error {
	result, err := idb.NewUpdate().
		Model((*models.Counter)(nil)).
		Set("value = value + ?", delta).
		Set("updated_at = ?", time.Now()).
		Where("name = ?", name).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errors.WithStack(errcodes.Persistence("counter row missing: " + name))
	}
	return nil
}

func (svc *Service) GetCounter(ctx context.Context, name string) (int64, error) {
	counter := &models.Counter{}
	err := svc.db.
		NewSelect().
		Model(counter).
		Where("cnt.name = ?", name).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errcodes.NotFound("Counter")
		}
		return 0, errors.WithStack(err)
	}
	return counter.Value, nil
}

// RecalculateCounters rebuilds every counter from the live tables. It runs
// at the end of each scan, replacing whatever the incremental bumps
// accumulated; allbooks only counts available books, and allgenres counts
// genres actually attached to at least one book.
func (svc *Service) RecalculateCounters(ctx context.Context) error {
	return svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		books, err := tx.NewSelect().
			Model((*models.Book)(nil)).
			Where("avail > ?", models.AvailDeleted).
			Count(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		catalogs, err := tx.NewSelect().Model((*models.Catalog)(nil)).Count(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		authors, err := tx.NewSelect().Model((*models.Author)(nil)).Count(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		series, err := tx.NewSelect().Model((*models.Series)(nil)).Count(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		var genres int
		err = tx.NewSelect().
			ColumnExpr("COUNT(DISTINCT genre_id)").
			Table("book_genres").
			Scan(ctx, &genres)
		if err != nil {
			return errors.WithStack(err)
		}

		values := map[string]int{
			models.CounterAllBooks:    books,
			models.CounterAllCatalogs: catalogs,
			models.CounterAllAuthors:  authors,
			models.CounterAllSeries:   series,
			models.CounterAllGenres:   genres,
		}
		for name, value := range values {
			_, err := tx.NewUpdate().
				Model((*models.Counter)(nil)).
				Set("value = ?", value).
				Set("updated_at = ?", time.Now()).
				Where("name = ?", name).
				Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	})
}
