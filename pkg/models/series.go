package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Series struct {
	bun.BaseModel `bun:"table:series,alias:s"`

	ID         int64     `bun:",pk,autoincrement" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Name       string    `bun:"ser_name,nullzero" json:"name"`
	SearchName string    `bun:"search_ser,nullzero" json:"search_name"`
	LangClass  int       `json:"lang_class"`
}

// BookSeries carries the position-in-series ordinal, so it is modeled
// explicitly instead of through an m2m relation.
type BookSeries struct {
	bun.BaseModel `bun:"table:book_series,alias:bs"`

	ID       int64   `bun:",pk,autoincrement" json:"id"`
	BookID   int64   `bun:",nullzero" json:"book_id"`
	Book     *Book   `bun:"rel:belongs-to,join:book_id=id" json:"-"`
	SeriesID int64   `bun:",nullzero" json:"series_id"`
	Series   *Series `bun:"rel:belongs-to,join:series_id=id" json:"-"`
	SerNo    int     `json:"ser_no"`
}
