package scanner

import (
	"context"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"

	"github.com/gopds/gopds/pkg/catalog"
	"github.com/gopds/gopds/pkg/config"
	"github.com/gopds/gopds/pkg/covers"
	"github.com/gopds/gopds/pkg/models"
	"github.com/gopds/gopds/pkg/walker"
)

// Scanner reconciles the on-disk library with the database: it walks every
// configured root, upserts what it finds, and sweeps what it no longer sees.
type Scanner struct {
	cfg    *config.Config
	repo   catalog.Repository
	covers *covers.Store
	log    logger.Logger
}

func New(cfg *config.Config, repo catalog.Repository, coverStore *covers.Store) *Scanner {
	return &Scanner{
		cfg:    cfg,
		repo:   repo,
		covers: coverStore,
		log:    logger.New(),
	}
}

// run carries the state of one scan: the catalog cache, the skipped-archive
// list, and the summary being accumulated. Workers share it under mu.
type run struct {
	sc      *Scanner
	summary Summary

	mu       sync.Mutex
	catalogs map[string]*models.Catalog
	skipped  []int64
}

// Scan performs one full reconciliation pass. A cancelled context aborts
// before the deletion sweep, so an interrupted scan never deletes books it
// simply had no time to re-discover.
func (sc *Scanner) Scan(ctx context.Context) (*Summary, error) {
	r := &run{sc: sc, catalogs: map[string]*models.Catalog{}}
	r.summary.Started = time.Now()

	unverified, err := sc.repo.MarkAllBooksUnverified(ctx)
	if err != nil {
		return nil, err
	}
	sc.log.Info("scan started", logger.Data{"roots": len(sc.cfg.Library.RootPaths), "unverified": unverified})

	for _, root := range sc.cfg.Library.RootPaths {
		r.scanRoot(ctx, root)
		if ctx.Err() != nil {
			return &r.summary, errors.WithStack(ctx.Err())
		}
	}

	if err := r.finish(ctx); err != nil {
		return &r.summary, err
	}

	r.summary.Finished = time.Now()
	sc.log.Info("scan finished: " + r.summary.String())
	return &r.summary, nil
}

// scanRoot walks one root with a bounded pool of workers draining the item
// channel. Workers only share the run state; each book is independent.
func (r *run) scanRoot(ctx context.Context, root string) {
	prefix := r.rootPrefix(root)
	items := walker.Walk(ctx, root, walker.Options{
		Extensions:  r.sc.cfg.ExtensionSet(),
		ScanZip:     r.sc.cfg.Library.ScanZip,
		InpxEnable:  r.sc.cfg.Library.InpxEnable,
		SkipArchive: r.skipArchive(ctx, prefix),
	})

	var wg sync.WaitGroup
	for i := 0; i < r.sc.cfg.Scanner.WorkerProcesses; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range items {
				r.handleItem(ctx, prefix, item)
			}
		}()
	}
	wg.Wait()
}

// finish runs the closing sweep: exempt skipped archives, demote what was
// never re-discovered, purge if configured, drop empty catalogs, and rebuild
// the counters.
func (r *run) finish(ctx context.Context) error {
	for _, catalogID := range r.skipped {
		if _, err := r.sc.repo.ConfirmCatalogBooks(ctx, catalogID); err != nil {
			return err
		}
	}

	deleted, err := r.sc.repo.MarkUnverifiedBooksDeleted(ctx)
	if err != nil {
		return err
	}
	r.summary.Deleted = deleted

	if !r.sc.cfg.Scanner.DeleteLogical {
		ids, err := r.sc.repo.ListUnavailableBookIDs(ctx)
		if err != nil {
			return err
		}
		purged, err := r.sc.repo.PurgeUnavailableBooks(ctx)
		if err != nil {
			return err
		}
		r.summary.Purged = purged
		for _, id := range ids {
			if err := r.sc.covers.Delete(id); err != nil {
				r.record(ctx, "cover cleanup", err)
			}
		}

		emptied, err := r.sc.repo.DeleteEmptyCatalogs(ctx)
		if err != nil {
			return err
		}
		r.summary.EmptiedCatalogs = emptied
	}

	return r.sc.repo.RecalculateCounters(ctx)
}

// rootPrefix disambiguates catalog paths between multiple roots. With a
// single root, paths stay relative to it.
func (r *run) rootPrefix(root string) string {
	if len(r.sc.cfg.Library.RootPaths) <= 1 {
		return ""
	}
	return filepath.Base(filepath.Clean(root))
}

// catalogPath maps a walker-relative path into the stored catalog path.
// The root itself is the "." catalog.
func catalogPath(prefix, relPath string) string {
	p := path.Join(prefix, relPath)
	if p == "" {
		return "."
	}
	return p
}

// skipArchive answers the walker's is-this-archive-unchanged question: an
// archive whose catalog row exists with the same size is skipped, and its
// books are exempted from the closing sweep.
func (r *run) skipArchive(ctx context.Context, prefix string) func(relPath string, size int64) bool {
	return func(relPath string, size int64) bool {
		existing, err := r.sc.repo.FindCatalogByPath(ctx, catalogPath(prefix, relPath))
		if err != nil || existing.Size != size {
			return false
		}

		r.mu.Lock()
		r.skipped = append(r.skipped, existing.ID)
		r.summary.SkippedArchives++
		r.catalogs[existing.Path] = existing
		r.mu.Unlock()
		return true
	}
}

func (r *run) handleItem(ctx context.Context, prefix string, item walker.Item) {
	switch {
	case item.Err != nil:
		r.record(ctx, item.Path, item.Err)
	case item.Archive != nil && !item.Archive.Skipped:
		r.registerArchive(ctx, prefix, item.Archive)
	case item.Book != nil:
		r.mu.Lock()
		r.summary.Found++
		r.mu.Unlock()
		r.processBook(ctx, prefix, item.Book)
	}
}

// registerArchive upserts the catalog row of a walked archive, refreshing
// its size and mod time so the next scan can skip it when unchanged.
func (r *run) registerArchive(ctx context.Context, prefix string, archive *walker.Archive) {
	cat := &models.Catalog{
		Path:    catalogPath(prefix, archive.Path),
		Name:    path.Base(archive.Path),
		Kind:    archive.Kind,
		Size:    archive.Size,
		ModTime: archive.ModTime.UTC().Format(time.RFC3339),
	}
	if parent := r.parentFor(ctx, cat.Path); parent != nil {
		cat.ParentID = &parent.ID
	}
	if err := r.sc.repo.UpsertCatalog(ctx, cat); err != nil {
		r.record(ctx, archive.Path, err)
		return
	}

	r.mu.Lock()
	r.catalogs[cat.Path] = cat
	r.mu.Unlock()
}

// record notes a per-item failure: count it, keep a bounded sample, log it.
func (r *run) record(ctx context.Context, itemPath string, err error) {
	r.mu.Lock()
	r.summary.Errors++
	if len(r.summary.ErrorSamples) < r.sc.cfg.Scanner.ErrorSamples {
		r.summary.ErrorSamples = append(r.summary.ErrorSamples, itemPath+": "+err.Error())
	}
	r.mu.Unlock()

	logger.FromContext(ctx).Err(err).Warn("scan item error", logger.Data{"path": itemPath})
}
