package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"

	"github.com/gopds/gopds/pkg/models"
)

// The genre taxonomy follows the FB2 genre list. Books reference genres by
// code; unknown codes found in files are ignored rather than invented.

type seedGenre struct {
	code string
	en   string
	ru   string
}

type seedSection struct {
	code   string
	en     string
	ru     string
	genres []seedGenre
}

var genreTaxonomy = []seedSection{
	{"sf", "Science Fiction & Fantasy", "Фантастика и фэнтези", []seedGenre{
		{"sf", "Science Fiction", "Научная фантастика"},
		{"sf_fantasy", "Fantasy", "Фэнтези"},
		{"sf_action", "Action SF", "Боевая фантастика"},
		{"sf_space", "Space SF", "Космическая фантастика"},
		{"sf_social", "Social SF", "Социальная фантастика"},
		{"sf_horror", "Horror & Mystic", "Ужасы и мистика"},
		{"sf_humor", "Humorous SF", "Юмористическая фантастика"},
		{"sf_cyberpunk", "Cyberpunk", "Киберпанк"},
	}},
	{"detective", "Detectives & Thrillers", "Детективы и триллеры", []seedGenre{
		{"detective", "Detective", "Детектив"},
		{"det_classic", "Classical Detective", "Классический детектив"},
		{"det_police", "Police Procedural", "Полицейский детектив"},
		{"det_irony", "Ironic Detective", "Иронический детектив"},
		{"thriller", "Thriller", "Триллер"},
		{"det_espionage", "Espionage", "Шпионский детектив"},
	}},
	{"prose", "Prose", "Проза", []seedGenre{
		{"prose_classic", "Classical Prose", "Классическая проза"},
		{"prose_contemporary", "Contemporary Prose", "Современная проза"},
		{"prose_history", "Historical Prose", "Историческая проза"},
		{"prose_counter", "Counterculture", "Контркультура"},
	}},
	{"love", "Romance", "Любовные романы", []seedGenre{
		{"love_contemporary", "Contemporary Romance", "Современные любовные романы"},
		{"love_history", "Historical Romance", "Исторические любовные романы"},
		{"love_detective", "Romantic Suspense", "Остросюжетные любовные романы"},
	}},
	{"adventure", "Adventure", "Приключения", []seedGenre{
		{"adventure", "Adventure", "Приключения"},
		{"adv_history", "Historical Adventure", "Исторические приключения"},
		{"adv_maritime", "Maritime Fiction", "Морские приключения"},
		{"adv_western", "Western", "Вестерн"},
	}},
	{"children", "Children's", "Детская литература", []seedGenre{
		{"children", "Children's Literature", "Детская литература"},
		{"child_tale", "Fairy Tales", "Сказки"},
		{"child_verse", "Children's Verses", "Детские стихи"},
		{"child_sf", "Children's SF", "Детская фантастика"},
	}},
	{"poetry", "Poetry & Drama", "Поэзия и драматургия", []seedGenre{
		{"poetry", "Poetry", "Поэзия"},
		{"dramaturgy", "Dramaturgy", "Драматургия"},
	}},
	{"antique", "Antique Literature", "Старинная литература", []seedGenre{
		{"antique", "Antique Literature", "Старинная литература"},
		{"antique_myths", "Myths & Legends", "Мифы, легенды, эпос"},
	}},
	{"science", "Science & Education", "Наука и образование", []seedGenre{
		{"science", "Science", "Научная литература"},
		{"sci_history", "History", "История"},
		{"sci_philosophy", "Philosophy", "Философия"},
		{"sci_linguistic", "Linguistics", "Языкознание"},
	}},
	{"computers", "Computers", "Компьютеры и интернет", []seedGenre{
		{"computers", "Computers", "Околокомпьютерная литература"},
		{"comp_programming", "Programming", "Программирование"},
		{"comp_db", "Databases", "Базы данных"},
	}},
	{"reference", "Reference", "Справочная литература", []seedGenre{
		{"reference", "Reference", "Справочная литература"},
		{"ref_encyc", "Encyclopedias", "Энциклопедии"},
		{"ref_dict", "Dictionaries", "Словари"},
	}},
	{"nonfiction", "Nonfiction", "Документальная литература", []seedGenre{
		{"nonfiction", "Nonfiction", "Документальная литература"},
		{"nonf_biography", "Biography & Memoirs", "Биографии и мемуары"},
		{"nonf_publicism", "Publicism", "Публицистика"},
	}},
	{"religion", "Religion", "Религия и духовность", []seedGenre{
		{"religion", "Religion", "Религия"},
		{"religion_esoterics", "Esoterics", "Эзотерика"},
	}},
	{"humor", "Humor", "Юмор", []seedGenre{
		{"humor", "Humor", "Юмор"},
		{"humor_prose", "Humorous Prose", "Юмористическая проза"},
		{"humor_anecdote", "Anecdotes", "Анекдоты"},
	}},
	{"home", "Home & Family", "Дом и семья", []seedGenre{
		{"home", "Home & Family", "Домоводство"},
		{"home_cooking", "Cooking", "Кулинария"},
		{"home_health", "Health", "Здоровье"},
		{"home_sport", "Sports", "Спорт"},
	}},
	{"other", "Other", "Прочее", []seedGenre{
		{"other", "Unclassified", "Неотсортированное"},
	}},
}

func init() {
	up := func(ctx context.Context, db *bun.DB) error {
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			// A section and its lead genre may share a code (e.g. "sf"), so
			// translations are deduplicated on code.
			seen := map[string]bool{}
			for _, sec := range genreTaxonomy {
				section := &models.GenreSection{Code: sec.code}
				if _, err := tx.NewInsert().Model(section).Exec(ctx); err != nil {
					return errors.WithStack(err)
				}

				translations := []*models.GenreTranslation{
					{Lang: "en", Code: sec.code, Name: sec.en},
					{Lang: "ru", Code: sec.code, Name: sec.ru},
				}
				seen[sec.code] = true

				genres := make([]*models.Genre, 0, len(sec.genres))
				for _, g := range sec.genres {
					genres = append(genres, &models.Genre{Code: g.code, SectionID: section.ID})
					if seen[g.code] {
						continue
					}
					seen[g.code] = true
					translations = append(translations,
						&models.GenreTranslation{Lang: "en", Code: g.code, Name: g.en},
						&models.GenreTranslation{Lang: "ru", Code: g.code, Name: g.ru},
					)
				}
				if _, err := tx.NewInsert().Model(&genres).Exec(ctx); err != nil {
					return errors.WithStack(err)
				}
				if _, err := tx.NewInsert().Model(&translations).Exec(ctx); err != nil {
					return errors.WithStack(err)
				}
			}
			return nil
		})
	}

	down := func(ctx context.Context, db *bun.DB) error {
		for _, model := range []interface{}{
			(*models.GenreTranslation)(nil),
			(*models.Genre)(nil),
			(*models.GenreSection)(nil),
		} {
			if _, err := db.NewDelete().Model(model).Where("1 = 1").Exec(ctx); err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}

	Migrations.MustRegister(up, down)
}
