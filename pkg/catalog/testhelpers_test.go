package catalog

import (
	"context"
	"database/sql"
	"testing"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/gopds/gopds/pkg/migrations"
	"github.com/gopds/gopds/pkg/models"
)

// testContext holds the dependencies needed for testing the repository.
type testContext struct {
	t   *testing.T
	ctx context.Context
	db  *bun.DB
	svc *Service
}

// newTestContext creates a test context backed by a fresh in-memory SQLite
// database with all migrations applied.
func newTestContext(t *testing.T) *testContext {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}

	// Every pooled connection to :memory: would get its own database.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	if _, err := migrations.BringUpToDate(context.Background(), db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return &testContext{
		t:   t,
		ctx: context.Background(),
		db:  db,
		svc: NewService(db),
	}
}

// createCatalog upserts a catalog by path and returns it.
func (tc *testContext) createCatalog(path string) *models.Catalog {
	tc.t.Helper()

	catalog := &models.Catalog{Path: path, Name: path, Kind: models.CatalogKindNormal}
	if err := tc.svc.UpsertCatalog(tc.ctx, catalog); err != nil {
		tc.t.Fatalf("failed to upsert catalog: %v", err)
	}
	return catalog
}

// createBook inserts a confirmed book in the given catalog.
func (tc *testContext) createBook(catalogID int64, path, filename string, links *BookLinks) *models.Book {
	tc.t.Helper()

	book := &models.Book{
		CatalogID: catalogID,
		Path:      path,
		Filename:  filename,
		Format:    "fb2",
		Title:     filename,
		Avail:     models.AvailConfirmed,
	}
	if err := tc.svc.CreateBook(tc.ctx, book, links); err != nil {
		tc.t.Fatalf("failed to create book: %v", err)
	}
	return book
}

// counter reads a counter value directly.
func (tc *testContext) counter(name string) int64 {
	tc.t.Helper()

	value, err := tc.svc.GetCounter(tc.ctx, name)
	if err != nil {
		tc.t.Fatalf("failed to read counter %s: %v", name, err)
	}
	return value
}
