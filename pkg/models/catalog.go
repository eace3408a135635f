package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Catalog kinds. The kind of a catalog determines how its children are
// discovered: directory listing, archive-entry listing, or index-line parsing.
const (
	CatalogKindNormal = 0
	CatalogKindZip    = 1
	CatalogKindInpx   = 2
	CatalogKindInp    = 3
)

type Catalog struct {
	bun.BaseModel `bun:"table:catalogs,alias:c"`

	ID        int64     `bun:",pk,autoincrement" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	Parent    *Catalog  `bun:"rel:belongs-to,join:parent_id=id" json:"-"`
	Path      string    `bun:",nullzero" json:"path"`
	Name      string    `bun:",nullzero" json:"name"`
	Kind      int       `json:"kind"`
	Size      int64     `json:"size"`
	ModTime   string    `json:"mod_time"`
}
