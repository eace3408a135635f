package scanner

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/gopds/gopds/pkg/catalog"
	"github.com/gopds/gopds/pkg/config"
	"github.com/gopds/gopds/pkg/covers"
	"github.com/gopds/gopds/pkg/migrations"
	"github.com/gopds/gopds/pkg/models"
)

const fb2Doc = `<?xml version="1.0" encoding="utf-8"?>
<FictionBook>
<description>
 <title-info>
  <genre>sf</genre>
  <author><first-name>Isaac</first-name><last-name>Asimov</last-name></author>
  <book-title>Foundation</book-title>
  <lang>en</lang>
  <sequence name="Foundation" number="1"/>
 </title-info>
</description>
<body><p>text</p></body>
</FictionBook>`

// testContext wires a scanner against an in-memory database and a temp
// library root.
type testContext struct {
	t       *testing.T
	ctx     context.Context
	cfg     *config.Config
	db      *bun.DB
	repo    *catalog.Service
	scanner *Scanner
	root    string
}

func newTestContext(t *testing.T) *testContext {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	// Every pooled connection to :memory: would get its own database.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if _, err := migrations.BringUpToDate(context.Background(), db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})

	root := t.TempDir()
	cfg := config.NewForTest()
	cfg.Library.RootPaths = []string{root}
	cfg.Scanner.WorkerProcesses = 2
	cfg.Covers.Dir = t.TempDir()

	repo := catalog.NewService(db)
	return &testContext{
		t:       t,
		ctx:     context.Background(),
		cfg:     cfg,
		db:      db,
		repo:    repo,
		scanner: New(cfg, repo, covers.NewStore(cfg)),
		root:    root,
	}
}

func (tc *testContext) writeFile(relPath string, data []byte) {
	tc.t.Helper()

	full := filepath.Join(tc.root, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		tc.t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		tc.t.Fatalf("write: %v", err)
	}
}

func (tc *testContext) writeZip(relPath string, entries map[string][]byte) {
	tc.t.Helper()

	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)
	for name, data := range entries {
		f, err := w.Create(name)
		if err != nil {
			tc.t.Fatalf("zip create: %v", err)
		}
		if _, err := f.Write(data); err != nil {
			tc.t.Fatalf("zip write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		tc.t.Fatalf("zip close: %v", err)
	}
	tc.writeFile(relPath, buf.Bytes())
}

func (tc *testContext) scan() *Summary {
	tc.t.Helper()

	summary, err := tc.scanner.Scan(tc.ctx)
	if err != nil {
		tc.t.Fatalf("scan failed: %v", err)
	}
	return summary
}

func (tc *testContext) findBook(path, filename string) *models.Book {
	tc.t.Helper()

	book, err := tc.repo.FindBookByPath(tc.ctx, path, filename)
	if err != nil {
		tc.t.Fatalf("find book %s/%s: %v", path, filename, err)
	}
	return book
}

func (tc *testContext) counter(name string) int64 {
	tc.t.Helper()

	value, err := tc.repo.GetCounter(tc.ctx, name)
	if err != nil {
		tc.t.Fatalf("counter %s: %v", name, err)
	}
	return value
}
