package catalog

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"

	"github.com/gopds/gopds/pkg/bookmeta"
	"github.com/gopds/gopds/pkg/errcodes"
	"github.com/gopds/gopds/pkg/models"
)

// UpsertAuthorByName finds or creates the author row for a normalized full
// name. Concurrent workers routinely race on popular authors, so creation
// goes through an ignored insert followed by a re-select; the counter is
// bumped in the insert's transaction, and only when a row actually landed.
func (svc *Service) UpsertAuthorByName(ctx context.Context, fullName string) (*models.Author, error) {
	if fullName == "" {
		return nil, errors.WithStack(errcodes.Parse("empty author name"))
	}

	author, err := svc.findAuthorByName(ctx, fullName)
	if err == nil {
		return author, nil
	}
	if !errors.Is(err, errcodes.NotFound("Author")) {
		return nil, err
	}

	now := time.Now()
	author = &models.Author{
		CreatedAt:      now,
		UpdatedAt:      now,
		FullName:       fullName,
		SearchFullName: bookmeta.SearchTitle(fullName),
		LangClass:      bookmeta.DetectLangClass(fullName),
	}
	var inserted bool
	err = svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		result, err := tx.NewInsert().Model(author).Ignore().Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return nil
		}
		inserted = true
		return incrementCounter(ctx, tx, models.CounterAllAuthors, 1)
	})
	if err != nil {
		return nil, err
	}
	if !inserted {
		// Lost the race; the winner's row is there now.
		return svc.findAuthorByName(ctx, fullName)
	}
	return author, nil
}

func (svc *Service) findAuthorByName(ctx context.Context, fullName string) (*models.Author, error) {
	author := &models.Author{}
	err := svc.db.
		NewSelect().
		Model(author).
		Where("a.full_name = ?", fullName).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Author")
		}
		return nil, errors.WithStack(err)
	}
	return author, nil
}

// UpsertSeriesByName mirrors UpsertAuthorByName for series names.
func (svc *Service) UpsertSeriesByName(ctx context.Context, name string) (*models.Series, error) {
	if name == "" {
		return nil, errors.WithStack(errcodes.Parse("empty series name"))
	}

	series, err := svc.findSeriesByName(ctx, name)
	if err == nil {
		return series, nil
	}
	if !errors.Is(err, errcodes.NotFound("Series")) {
		return nil, err
	}

	now := time.Now()
	series = &models.Series{
		CreatedAt:  now,
		UpdatedAt:  now,
		Name:       name,
		SearchName: bookmeta.SearchTitle(name),
		LangClass:  bookmeta.DetectLangClass(name),
	}
	var inserted bool
	err = svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		result, err := tx.NewInsert().Model(series).Ignore().Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return nil
		}
		inserted = true
		return incrementCounter(ctx, tx, models.CounterAllSeries, 1)
	})
	if err != nil {
		return nil, err
	}
	if !inserted {
		return svc.findSeriesByName(ctx, name)
	}
	return series, nil
}

func (svc *Service) findSeriesByName(ctx context.Context, name string) (*models.Series, error) {
	series := &models.Series{}
	err := svc.db.
		NewSelect().
		Model(series).
		Where("s.ser_name = ?", name).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Series")
		}
		return nil, errors.WithStack(err)
	}
	return series, nil
}

// FindGenreByCode resolves a genre code from the seeded taxonomy. Unknown
// codes come back NotFound; the caller drops them rather than polluting the
// taxonomy with junk from book metadata.
func (svc *Service) FindGenreByCode(ctx context.Context, code string) (*models.Genre, error) {
	genre := &models.Genre{}
	err := svc.db.
		NewSelect().
		Model(genre).
		Where("g.code = ?", code).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Genre")
		}
		return nil, errors.WithStack(err)
	}
	return genre, nil
}
