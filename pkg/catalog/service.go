package catalog

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"

	"github.com/gopds/gopds/pkg/errcodes"
	"github.com/gopds/gopds/pkg/models"
)

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

var _ Repository = (*Service)(nil)

// UpsertCatalog creates the catalog row for the given path or refreshes the
// size, mod time, and kind of an existing one. The path is the natural key;
// catalog.ID is filled in either way.
func (svc *Service) UpsertCatalog(ctx context.Context, catalog *models.Catalog) error {
	existing, err := svc.FindCatalogByPath(ctx, catalog.Path)
	if err == nil {
		catalog.ID = existing.ID
		catalog.CreatedAt = existing.CreatedAt
		catalog.UpdatedAt = time.Now()
		_, err = svc.db.
			NewUpdate().
			Model(catalog).
			Column("name", "kind", "size", "mod_time", "parent_id", "updated_at").
			WherePK().
			Exec(ctx)
		return errors.WithStack(err)
	}
	if !errors.Is(err, errcodes.NotFound("Catalog")) {
		return err
	}

	now := time.Now()
	catalog.CreatedAt = now
	catalog.UpdatedAt = now
	_, err = svc.db.
		NewInsert().
		Model(catalog).
		Exec(ctx)
	if err != nil {
		// Two workers can race on the same new directory; the loser adopts
		// the winner's row.
		if isUniqueViolation(err) {
			existing, err = svc.FindCatalogByPath(ctx, catalog.Path)
			if err != nil {
				return err
			}
			catalog.ID = existing.ID
			return nil
		}
		return errors.WithStack(err)
	}
	return svc.IncrementCounter(ctx, models.CounterAllCatalogs, 1)
}

func (svc *Service) FindCatalogByPath(ctx context.Context, path string) (*models.Catalog, error) {
	catalog := &models.Catalog{}
	err := svc.db.
		NewSelect().
		Model(catalog).
		Where("c.path = ?", path).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Catalog")
		}
		return nil, errors.WithStack(err)
	}
	return catalog, nil
}

func (svc *Service) ListCatalogs(ctx context.Context) ([]*models.Catalog, error) {
	var catalogs []*models.Catalog
	err := svc.db.
		NewSelect().
		Model(&catalogs).
		Order("c.path ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return catalogs, nil
}

// DeleteEmptyCatalogs removes catalogs holding neither books nor child
// catalogs. It sweeps repeatedly so emptied parents go in the same call.
func (svc *Service) DeleteEmptyCatalogs(ctx context.Context) (int, error) {
	total := 0
	for {
		result, err := svc.db.
			NewDelete().
			Model((*models.Catalog)(nil)).
			Where("id NOT IN (SELECT catalog_id FROM books WHERE catalog_id IS NOT NULL)").
			Where("id NOT IN (SELECT parent_id FROM catalogs WHERE parent_id IS NOT NULL)").
			Exec(ctx)
		if err != nil {
			return total, errors.WithStack(err)
		}
		n, _ := result.RowsAffected()
		if n == 0 {
			return total, nil
		}
		total += int(n)
	}
}

// isUniqueViolation recognizes unique-constraint failures across the three
// supported backends.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range []string{
		"UNIQUE constraint",   // sqlite
		"duplicate key value", // postgres
		"Duplicate entry",     // mysql
		"constraint failed",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
