package models

import "github.com/uptrace/bun"

// The genre taxonomy is a fixed hierarchy seeded by migrations:
// sections (language-independent top-level codes) own genres, and
// translations supply per-language display names for both levels.
// The scanner only attaches existing genre codes, it never creates genres.

type GenreSection struct {
	bun.BaseModel `bun:"table:genre_sections,alias:gs"`

	ID   int64  `bun:",pk,autoincrement" json:"id"`
	Code string `bun:",nullzero" json:"code"`
}

type Genre struct {
	bun.BaseModel `bun:"table:genres,alias:g"`

	ID        int64         `bun:",pk,autoincrement" json:"id"`
	Code      string        `bun:",nullzero" json:"code"`
	SectionID int64         `bun:",nullzero" json:"section_id"`
	Section   *GenreSection `bun:"rel:belongs-to,join:section_id=id" json:"section,omitempty"`
}

type GenreTranslation struct {
	bun.BaseModel `bun:"table:genre_translations,alias:gt"`

	ID   int64  `bun:",pk,autoincrement" json:"id"`
	Lang string `bun:",nullzero" json:"lang"`
	Code string `bun:",nullzero" json:"code"`
	Name string `bun:",nullzero" json:"name"`
}

type BookGenre struct {
	bun.BaseModel `bun:"table:book_genres,alias:bg"`

	ID      int64  `bun:",pk,autoincrement" json:"id"`
	BookID  int64  `bun:",nullzero" json:"book_id"`
	Book    *Book  `bun:"rel:belongs-to,join:book_id=id" json:"-"`
	GenreID int64  `bun:",nullzero" json:"genre_id"`
	Genre   *Genre `bun:"rel:belongs-to,join:genre_id=id" json:"-"`
}
