package scanner

import (
	"context"
	"os"
	"path"
	"strings"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"

	"github.com/gopds/gopds/pkg/bookmeta"
	"github.com/gopds/gopds/pkg/catalog"
	"github.com/gopds/gopds/pkg/errcodes"
	"github.com/gopds/gopds/pkg/models"
	"github.com/gopds/gopds/pkg/walker"
)

// bookColumns are the metadata columns rewritten when a changed book is
// re-extracted.
var bookColumns = []string{
	"title", "search_title", "annotation", "docdate", "lang", "lang_class",
	"format", "size", "avail", "has_cover", "cover_type",
}

func (r *run) processBook(ctx context.Context, prefix string, b *walker.Book) {
	itemPath := path.Join(b.CatalogPath, b.Filename)

	cat, err := r.ensureCatalog(ctx, catalogPath(prefix, b.CatalogPath), b.CatalogKind)
	if err != nil {
		r.record(ctx, itemPath, err)
		return
	}

	existing, err := r.sc.repo.FindBookByPath(ctx, cat.Path, b.Filename)
	switch {
	case err == nil && existing.Avail != models.AvailDeleted && existing.Size == b.Size:
		// Same identity, same size: promote without re-extraction.
		if err := r.persist(ctx, func() error {
			return r.sc.repo.SetBookAvail(ctx, existing.ID, models.AvailConfirmed)
		}); err != nil {
			r.record(ctx, itemPath, err)
			return
		}
		r.count(func(s *Summary) { s.Unchanged++ })

	case err == nil:
		// Changed on disk, or coming back from the dead: re-extract.
		r.updateBook(ctx, itemPath, existing, b)

	case errors.Is(err, errcodes.NotFound("Book")):
		r.insertBook(ctx, itemPath, cat, b)

	default:
		r.record(ctx, itemPath, err)
	}
}

func (r *run) insertBook(ctx context.Context, itemPath string, cat *models.Catalog, b *walker.Book) {
	meta := r.metadataFor(ctx, itemPath, b)
	links := r.buildLinks(ctx, itemPath, meta)

	book := &models.Book{
		CatalogID:     cat.ID,
		Path:          cat.Path,
		Filename:      b.Filename,
		Format:        b.Format,
		Size:          b.Size,
		Avail:         models.AvailConfirmed,
		ContainerKind: b.CatalogKind,
	}
	applyMetadata(book, meta)

	err := r.persist(ctx, func() error {
		return r.sc.repo.CreateBook(ctx, book, links)
	})
	if err != nil {
		if errcodes.IsKind(err, errcodes.KindDuplicateKey) {
			// Another worker inserted the same book; it exists now, which is
			// all a scan needs.
			r.count(func(s *Summary) { s.Unchanged++ })
			return
		}
		r.record(ctx, itemPath, err)
		return
	}

	r.saveCover(ctx, itemPath, book, meta)
	r.count(func(s *Summary) { s.Inserted++ })
}

func (r *run) updateBook(ctx context.Context, itemPath string, book *models.Book, b *walker.Book) {
	meta := r.metadataFor(ctx, itemPath, b)
	links := r.buildLinks(ctx, itemPath, meta)

	book.Format = b.Format
	book.Size = b.Size
	book.Avail = models.AvailConfirmed
	applyMetadata(book, meta)

	err := r.persist(ctx, func() error {
		return r.sc.repo.UpdateBook(ctx, book, bookColumns, links)
	})
	if err != nil {
		r.record(ctx, itemPath, err)
		return
	}

	r.saveCover(ctx, itemPath, book, meta)
	r.count(func(s *Summary) { s.Updated++ })
}

func applyMetadata(book *models.Book, meta *bookmeta.Metadata) {
	book.Title = meta.Title
	book.SearchTitle = bookmeta.SearchTitle(meta.Title)
	book.LangClass = bookmeta.DetectLangClass(meta.Title)
	book.Annotation = meta.Annotation
	book.Docdate = meta.Docdate
	book.Lang = meta.Lang
	book.HasCover = len(meta.CoverData) > 0
	if book.HasCover {
		// Covers are re-encoded on disk regardless of source format.
		book.CoverType = "image/jpeg"
	} else {
		book.CoverType = ""
	}
}

// saveCover persists the extracted cover under the book id. A failure is a
// per-item error and flips the book back to coverless.
func (r *run) saveCover(ctx context.Context, itemPath string, book *models.Book, meta *bookmeta.Metadata) {
	if len(meta.CoverData) == 0 {
		return
	}
	if err := r.sc.covers.Save(book.ID, meta.CoverData); err != nil {
		r.record(ctx, itemPath, err)
		book.HasCover = false
		book.CoverType = ""
		if err := r.sc.repo.UpdateBook(ctx, book, []string{"has_cover", "cover_type"}, nil); err != nil {
			r.record(ctx, itemPath, err)
		}
	}
}

// persist retries transient persistence failures a bounded number of times.
// Duplicate-key conflicts are not transient and surface immediately.
func (r *run) persist(ctx context.Context, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(uint(r.sc.cfg.Scanner.PersistenceRetries)),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errcodes.IsKind(err, errcodes.KindDuplicateKey)
		}),
	)
}

// ensureCatalog get-or-creates the catalog row for a path, including its
// ancestor chain, without refreshing size or mod time. Only archive
// announcements refresh those.
func (r *run) ensureCatalog(ctx context.Context, catPath string, kind int) (*models.Catalog, error) {
	r.mu.Lock()
	cached := r.catalogs[catPath]
	r.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	existing, err := r.sc.repo.FindCatalogByPath(ctx, catPath)
	if err == nil {
		r.mu.Lock()
		r.catalogs[catPath] = existing
		r.mu.Unlock()
		return existing, nil
	}
	if !errors.Is(err, errcodes.NotFound("Catalog")) {
		return nil, err
	}

	cat := &models.Catalog{
		Path: catPath,
		Name: path.Base(catPath),
		Kind: kind,
	}
	if parent := r.parentFor(ctx, catPath); parent != nil {
		cat.ParentID = &parent.ID
	}
	if err := r.sc.repo.UpsertCatalog(ctx, cat); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.catalogs[catPath] = cat
	r.mu.Unlock()
	return cat, nil
}

// parentFor ensures the ancestor directory chain of a catalog path and
// returns the immediate parent, or nil at the top level.
func (r *run) parentFor(ctx context.Context, catPath string) *models.Catalog {
	dir := path.Dir(catPath)
	if dir == "." || dir == "/" || dir == catPath {
		return nil
	}
	parent, err := r.ensureCatalog(ctx, dir, models.CatalogKindNormal)
	if err != nil {
		r.record(ctx, dir, err)
		return nil
	}
	return parent
}

// buildLinks resolves the metadata's names into association ids. Failures
// on individual names are recorded and skipped; a book is always better
// stored with partial links than not at all.
func (r *run) buildLinks(ctx context.Context, itemPath string, meta *bookmeta.Metadata) *catalog.BookLinks {
	links := &catalog.BookLinks{}

	for _, name := range meta.Authors {
		author, err := r.sc.repo.UpsertAuthorByName(ctx, name)
		if err != nil {
			r.record(ctx, itemPath, err)
			continue
		}
		links.AuthorIDs = append(links.AuthorIDs, author.ID)
	}

	for _, code := range meta.Genres {
		genre, err := r.sc.repo.FindGenreByCode(ctx, code)
		if err != nil {
			// Unknown codes from book metadata are dropped silently.
			if errors.Is(err, errcodes.NotFound("Genre")) {
				continue
			}
			r.record(ctx, itemPath, err)
			continue
		}
		links.GenreIDs = append(links.GenreIDs, genre.ID)
	}

	if meta.SeriesTitle != "" {
		series, err := r.sc.repo.UpsertSeriesByName(ctx, meta.SeriesTitle)
		if err != nil {
			r.record(ctx, itemPath, err)
		} else {
			links.SeriesID = &series.ID
			links.SerNo = meta.SeriesIndex
		}
	}

	return links
}

// metadataFor produces metadata for a discovered book, falling back to the
// filename when extraction is impossible. It never fails: a book the walker
// found is always reconciled, however opaque its contents.
func (r *run) metadataFor(ctx context.Context, itemPath string, b *walker.Book) *bookmeta.Metadata {
	if b.Meta != nil {
		return withTitleFallback(b, b.Meta)
	}

	switch b.Format {
	case "pdf", "djvu":
		return r.externalMetadata(ctx, itemPath, b)
	}

	data, err := b.Data()
	if err != nil {
		r.record(ctx, itemPath, err)
		return fallbackMetadata(b)
	}
	meta, err := bookmeta.Extract(b.Format, data)
	if err != nil {
		r.record(ctx, itemPath, err)
		if meta == nil {
			return fallbackMetadata(b)
		}
	}

	// In-file author names arrive given-name first.
	for i, name := range meta.Authors {
		meta.Authors[i] = bookmeta.NormalizeAuthorName(name)
	}
	return withTitleFallback(b, meta)
}

// externalMetadata handles PDF and DjVu through the configured external
// tools. Without tools the book still gets filename-derived metadata.
func (r *run) externalMetadata(ctx context.Context, itemPath string, b *walker.Book) *bookmeta.Metadata {
	meta := fallbackMetadata(b)
	enabled := (b.Format == "pdf" && r.sc.cfg.Covers.PDFEnable) ||
		(b.Format == "djvu" && r.sc.cfg.Covers.DjvuEnable)
	if !enabled {
		return meta
	}

	inputPath, cleanup, err := r.materialize(b)
	if err != nil {
		r.record(ctx, itemPath, err)
		return meta
	}
	defer cleanup()

	if b.Format == "pdf" {
		info, err := r.sc.covers.DocumentInfo(ctx, inputPath)
		if err != nil {
			r.record(ctx, itemPath, err)
		} else {
			if title := bookmeta.StripMeta(info["Title"]); title != "" {
				meta.Title = title
			}
			if author := bookmeta.NormalizeAuthorName(info["Author"]); author != "" {
				meta.Authors = []string{author}
			}
		}
	}

	coverData, err := r.sc.covers.RenderFirstPage(ctx, inputPath)
	if err != nil {
		r.record(ctx, itemPath, err)
		return meta
	}
	meta.CoverData = coverData
	return meta
}

// materialize returns an on-disk path for the book, extracting archive
// entries to a temp file when needed.
func (r *run) materialize(b *walker.Book) (string, func(), error) {
	if b.AbsPath != "" {
		return b.AbsPath, func() {}, nil
	}
	if b.Data == nil {
		return "", nil, errors.WithStack(errcodes.IO("no data source for " + b.Filename))
	}
	data, err := b.Data()
	if err != nil {
		return "", nil, err
	}
	f, err := os.CreateTemp("", "gopds-*."+b.Format)
	if err != nil {
		return "", nil, errors.WithStack(err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, errors.WithStack(err)
	}
	f.Close()
	return f.Name(), func() { os.Remove(f.Name()) }, nil
}

func fallbackMetadata(b *walker.Book) *bookmeta.Metadata {
	return &bookmeta.Metadata{Title: titleFromFilename(b.Filename)}
}

func withTitleFallback(b *walker.Book, meta *bookmeta.Metadata) *bookmeta.Metadata {
	if meta.Title == "" {
		meta.Title = titleFromFilename(b.Filename)
	}
	return meta
}

// titleFromFilename derives a display title from a filename: extension off,
// separators to spaces.
func titleFromFilename(filename string) string {
	stem := strings.TrimSuffix(filename, path.Ext(filename))
	stem = strings.NewReplacer("_", " ", ".", " ").Replace(stem)
	return bookmeta.StripMeta(collapse(stem))
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (r *run) count(fn func(*Summary)) {
	r.mu.Lock()
	fn(&r.summary)
	r.mu.Unlock()
}
