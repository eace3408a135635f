package walker

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/gopds/gopds/pkg/bookmeta"
	"github.com/gopds/gopds/pkg/errcodes"
	"github.com/gopds/gopds/pkg/models"
)

// The walker discovers book candidates under a scan root without touching
// the database. Directories, ZIP archives, and INPX indexes all surface as
// the same Item stream; per-item failures are emitted as Err items and the
// walk continues.

// Book is one discovered book candidate.
type Book struct {
	// CatalogPath is the catalog the book belongs to, relative to the root:
	// the containing directory, the archive path, or the INPX folder entry.
	CatalogPath string
	CatalogKind int
	// ArchivePath is the archive the book came from, empty for loose files.
	ArchivePath string
	// AbsPath is the on-disk location of a loose file, empty for archive
	// entries. External tools need a real path to work on.
	AbsPath  string
	Filename string
	Format   string
	Size     int64
	// Data reads the book bytes. Nil for INPX records, whose metadata is
	// already parsed.
	Data func() ([]byte, error)
	// Meta short-circuits extraction for INPX records.
	Meta *bookmeta.Metadata
}

// Archive announces a container (ZIP or INPX) before its books are emitted,
// so the consumer can register the catalog row. Skipped archives produce an
// announcement and no books.
type Archive struct {
	Path    string
	Kind    int
	Size    int64
	ModTime time.Time
	Skipped bool
}

// Item is one element of the walk sequence. Exactly one field is set.
type Item struct {
	Book    *Book
	Archive *Archive
	// Err is a per-item failure; Path names the file it relates to.
	Err  error
	Path string
}

type Options struct {
	// Extensions is the set of recognized book file extensions, lowercase,
	// without dots.
	Extensions map[string]struct{}
	ScanZip    bool
	InpxEnable bool
	// SkipArchive, when set, is consulted before a ZIP or INPX archive is
	// enumerated. Returning true skips it as unchanged.
	SkipArchive func(relPath string, size int64) bool
}

// Walk produces a lazy sequence of discovered items under root. The
// returned channel is closed when the walk finishes or ctx is cancelled.
func Walk(ctx context.Context, root string, opts Options) <-chan Item {
	ch := make(chan Item)
	w := &walker{ctx: ctx, root: root, opts: opts, ch: ch, visited: map[string]bool{}}
	go func() {
		defer close(ch)
		w.run()
	}()
	return ch
}

type walker struct {
	ctx     context.Context
	root    string
	opts    Options
	ch      chan Item
	visited map[string]bool
	// inpxDirs are directories owned by an INPX index; their loose files
	// are described by the index and are not scanned directly.
	inpxDirs map[string]bool
}

// send delivers an item unless the walk has been cancelled.
func (w *walker) send(item Item) bool {
	select {
	case w.ch <- item:
		return true
	case <-w.ctx.Done():
		return false
	}
}

func (w *walker) run() {
	w.inpxDirs = map[string]bool{}
	if w.opts.InpxEnable {
		if !w.walkDir(w.root, "", w.handleInpxPass) {
			return
		}
		w.visited = map[string]bool{}
	}
	w.walkDir(w.root, "", w.handleFilePass)
}

// walkDir recurses depth-first, following symlinks with cycle detection on
// resolved directory paths.
func (w *walker) walkDir(absDir, relDir string, handle func(absPath, relDir string, entry os.DirEntry) bool) bool {
	real, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return w.send(Item{Err: errors.WithStack(errcodes.IO(err.Error())), Path: absDir})
	}
	if w.visited[real] {
		return w.send(Item{Err: errcodes.IO("symlink cycle at " + absDir), Path: absDir})
	}
	w.visited[real] = true

	entries, err := os.ReadDir(absDir)
	if err != nil {
		return w.send(Item{Err: errors.WithStack(errcodes.IO(err.Error())), Path: absDir})
	}

	for _, entry := range entries {
		if w.ctx.Err() != nil {
			return false
		}
		absPath := filepath.Join(absDir, entry.Name())
		if isDir(absPath, entry) {
			if !w.walkDir(absPath, path.Join(relDir, entry.Name()), handle) {
				return false
			}
			continue
		}
		if !handle(absPath, relDir, entry) {
			return false
		}
	}
	return true
}

// isDir resolves symlinked directories too.
func isDir(absPath string, entry os.DirEntry) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(absPath)
	return err == nil && info.IsDir()
}

// handleInpxPass collects INPX indexes and marks their directories.
func (w *walker) handleInpxPass(absPath, relDir string, entry os.DirEntry) bool {
	if !strings.EqualFold(fileExt(entry.Name()), "inpx") {
		return true
	}
	w.inpxDirs[relDir] = true
	return w.processInpx(absPath, path.Join(relDir, entry.Name()), relDir)
}

// handleFilePass emits loose books and ZIP archives, skipping directories
// owned by an INPX index.
func (w *walker) handleFilePass(absPath, relDir string, entry os.DirEntry) bool {
	if w.inpxDirs[relDir] {
		return true
	}
	ext := fileExt(entry.Name())

	if ext == "zip" && w.opts.ScanZip {
		return w.processZip(absPath, path.Join(relDir, entry.Name()))
	}

	if _, ok := w.opts.Extensions[ext]; !ok {
		return true
	}
	info, err := entry.Info()
	if err != nil {
		return w.send(Item{Err: errors.WithStack(errcodes.IO(err.Error())), Path: absPath})
	}
	return w.send(Item{Book: &Book{
		CatalogPath: relDir,
		CatalogKind: models.CatalogKindNormal,
		AbsPath:     absPath,
		Filename:    entry.Name(),
		Format:      ext,
		Size:        info.Size(),
		Data:        func() ([]byte, error) { return os.ReadFile(absPath) },
	}})
}

func (w *walker) processZip(absPath, relPath string) bool {
	info, err := os.Stat(absPath)
	if err != nil {
		return w.send(Item{Err: errors.WithStack(errcodes.IO(err.Error())), Path: absPath})
	}

	if w.opts.SkipArchive != nil && w.opts.SkipArchive(relPath, info.Size()) {
		return w.send(Item{Archive: &Archive{
			Path: relPath, Kind: models.CatalogKindZip, Size: info.Size(), ModTime: info.ModTime(), Skipped: true,
		}})
	}

	archive, err := zip.OpenReader(absPath)
	if err != nil {
		return w.send(Item{Err: errors.WithStack(errcodes.IO("unreadable zip: " + err.Error())), Path: absPath})
	}
	defer archive.Close()

	if !w.send(Item{Archive: &Archive{
		Path: relPath, Kind: models.CatalogKindZip, Size: info.Size(), ModTime: info.ModTime(),
	}}) {
		return false
	}

	for _, entry := range archive.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		ext := fileExt(entry.Name)
		if _, ok := w.opts.Extensions[ext]; !ok {
			continue
		}

		// The archive is open once for the whole enumeration; entry bytes
		// are read here so the consumer never re-opens it.
		data, err := readArchiveEntry(entry)
		if err != nil {
			if !w.send(Item{Err: errors.WithStack(errcodes.IO(err.Error())), Path: absPath + "!" + entry.Name}) {
				return false
			}
			continue
		}
		if !w.send(Item{Book: &Book{
			CatalogPath: relPath,
			CatalogKind: models.CatalogKindZip,
			ArchivePath: relPath,
			Filename:    path.Base(entry.Name),
			Format:      ext,
			Size:        int64(entry.UncompressedSize64),
			Data:        func() ([]byte, error) { return data, nil },
		}}) {
			return false
		}
	}
	return true
}

func (w *walker) processInpx(absPath, relPath, relDir string) bool {
	info, err := os.Stat(absPath)
	if err != nil {
		return w.send(Item{Err: errors.WithStack(errcodes.IO(err.Error())), Path: absPath})
	}

	if w.opts.SkipArchive != nil && w.opts.SkipArchive(relPath, info.Size()) {
		return w.send(Item{Archive: &Archive{
			Path: relPath, Kind: models.CatalogKindInpx, Size: info.Size(), ModTime: info.ModTime(), Skipped: true,
		}})
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return w.send(Item{Err: errors.WithStack(errcodes.IO(err.Error())), Path: absPath})
	}
	records, err := bookmeta.ParseINPX(data)
	if err != nil {
		return w.send(Item{Err: err, Path: absPath})
	}

	if !w.send(Item{Archive: &Archive{
		Path: relPath, Kind: models.CatalogKindInpx, Size: info.Size(), ModTime: info.ModTime(),
	}}) {
		return false
	}

	for _, record := range records {
		if !w.send(Item{Book: &Book{
			CatalogPath: path.Join(relDir, record.Folder),
			CatalogKind: models.CatalogKindInpx,
			ArchivePath: relPath,
			Filename:    record.Filename,
			Format:      record.Format,
			Size:        record.Size,
			Meta:        record.Meta,
		}}) {
			return false
		}
	}
	return true
}

func readArchiveEntry(entry *zip.File) ([]byte, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func fileExt(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}
