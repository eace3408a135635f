package catalog

import (
	"context"

	"github.com/gopds/gopds/pkg/models"
)

// BookLinks describes the association rows a book carries. Replacing links
// always removes stale junctions first, so none are orphaned.
type BookLinks struct {
	AuthorIDs []int64
	GenreIDs  []int64
	SeriesID  *int64
	SerNo     int
}

// Repository is the persistence boundary of the reconciler. The single bun
// implementation serves sqlite, postgres, and mysql; everything above it is
// backend-agnostic.
type Repository interface {
	UpsertCatalog(ctx context.Context, catalog *models.Catalog) error
	FindCatalogByPath(ctx context.Context, path string) (*models.Catalog, error)
	ListCatalogs(ctx context.Context) ([]*models.Catalog, error)
	DeleteEmptyCatalogs(ctx context.Context) (int, error)

	FindBookByPath(ctx context.Context, path, filename string) (*models.Book, error)
	RetrieveBook(ctx context.Context, id int64) (*models.Book, error)
	CreateBook(ctx context.Context, book *models.Book, links *BookLinks) error
	UpdateBook(ctx context.Context, book *models.Book, columns []string, links *BookLinks) error
	SetBookAvail(ctx context.Context, bookID int64, avail int) error
	MarkAllBooksUnverified(ctx context.Context) (int, error)
	ConfirmCatalogBooks(ctx context.Context, catalogID int64) (int, error)
	MarkUnverifiedBooksDeleted(ctx context.Context) (int, error)
	ListUnavailableBookIDs(ctx context.Context) ([]int64, error)
	PurgeUnavailableBooks(ctx context.Context) (int, error)

	UpsertAuthorByName(ctx context.Context, fullName string) (*models.Author, error)
	UpsertSeriesByName(ctx context.Context, name string) (*models.Series, error)
	FindGenreByCode(ctx context.Context, code string) (*models.Genre, error)

	IncrementCounter(ctx context.Context, name string, delta int64) error
	GetCounter(ctx context.Context, name string) (int64, error)
	RecalculateCounters(ctx context.Context) error

	DuplicateAuthorGroups(ctx context.Context) ([][]*models.Author, error)
	DuplicateSeriesGroups(ctx context.Context) ([][]*models.Series, error)
	MergeAuthors(ctx context.Context, targetID int64, sourceIDs []int64) error
	MergeSeries(ctx context.Context, targetID int64, sourceIDs []int64) error
}
