package models

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// Availability lifecycle. A book is created as unverified, promoted to
// confirmed when a scan re-discovers it, and demoted to deleted (never
// physically removed in logical-delete mode) when a scan no longer finds it.
const (
	AvailDeleted    = 0
	AvailUnverified = 1
	AvailConfirmed  = 2
)

// Coarse language classes derived from the first character of a string.
const (
	LangClassCyrillic = 1
	LangClassLatin    = 2
	LangClassDigit    = 3
	LangClassOther    = 9
)

type Book struct {
	bun.BaseModel `bun:"table:books,alias:b"`

	ID            int64     `bun:",pk,autoincrement" json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	CatalogID     int64     `bun:",nullzero" json:"catalog_id"`
	Catalog       *Catalog  `bun:"rel:belongs-to,join:catalog_id=id" json:"catalog,omitempty"`
	Filename      string    `bun:",nullzero" json:"filename"`
	Path          string    `json:"path"`
	Format        string    `bun:",nullzero" json:"format"`
	Title         string    `bun:",nullzero" json:"title"`
	SearchTitle   string    `bun:",nullzero" json:"search_title"`
	Annotation    string    `json:"annotation"`
	Docdate       string    `json:"docdate"`
	Lang          string    `json:"lang"`
	LangClass     int       `json:"lang_class"`
	Size          int64     `json:"size"`
	Avail         int       `json:"avail"`
	ContainerKind int       `json:"container_kind"`
	HasCover      bool      `json:"has_cover"`
	CoverType     string    `json:"cover_type"`
	AuthorKey     string    `json:"author_key"`

	BookAuthors []*BookAuthor `bun:"rel:has-many,join:id=book_id" json:"-"`
	BookSeries  []*BookSeries `bun:"rel:has-many,join:id=book_id" json:"-"`
	BookGenres  []*BookGenre  `bun:"rel:has-many,join:id=book_id" json:"-"`

	// Flattened from the junction rows by the repository when requested.
	Authors []*Author `bun:"-" json:"authors,omitempty"`
	Genres  []*Genre  `bun:"-" json:"genres,omitempty"`
}

// AuthorKey derives the denormalized duplicate-detection key for a book:
// its author ids sorted ascending and comma-joined. It must always match
// the book's current author links.
func AuthorKey(authorIDs []int64) string {
	ids := append([]int64(nil), authorIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}
