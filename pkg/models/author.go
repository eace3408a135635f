package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Author struct {
	bun.BaseModel `bun:"table:authors,alias:a"`

	ID             int64     `bun:",pk,autoincrement" json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	FullName       string    `bun:",nullzero" json:"full_name"`
	SearchFullName string    `bun:",nullzero" json:"search_full_name"`
	LangClass      int       `json:"lang_class"`
}

type BookAuthor struct {
	bun.BaseModel `bun:"table:book_authors,alias:ba"`

	ID       int64   `bun:",pk,autoincrement" json:"id"`
	BookID   int64   `bun:",nullzero" json:"book_id"`
	Book     *Book   `bun:"rel:belongs-to,join:book_id=id" json:"-"`
	AuthorID int64   `bun:",nullzero" json:"author_id"`
	Author   *Author `bun:"rel:belongs-to,join:author_id=id" json:"-"`
}
