package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Counter names maintained as running aggregates alongside the rows they
// count, so the serving layer can paginate without full table scans.
const (
	CounterAllBooks    = "allbooks"
	CounterAllCatalogs = "allcatalogs"
	CounterAllAuthors  = "allauthors"
	CounterAllGenres   = "allgenres"
	CounterAllSeries   = "allseries"
)

type Counter struct {
	bun.BaseModel `bun:"table:counters,alias:cnt"`

	Name      string    `bun:",pk" json:"name"`
	Value     int64     `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
