package config

import (
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/gopds/gopds/pkg/errcodes"
)

type Config struct {
	DatabaseURL               string        `koanf:"database_url" default:"sqlite://gopds.db" validate:"required"`
	DatabaseDebug             bool          `koanf:"database_debug"`
	DatabaseMaxRetries        int           `koanf:"database_max_retries" default:"5" validate:"min=0"`
	DatabaseBusyTimeout       time.Duration `koanf:"database_busy_timeout" default:"5s"`
	DatabaseConnectRetryCount int           `koanf:"database_connect_retry_count" default:"5" validate:"min=1"`
	DatabaseConnectRetryDelay time.Duration `koanf:"database_connect_retry_delay" default:"2s"`

	Library LibraryConfig `koanf:"library"`
	Scanner ScannerConfig `koanf:"scanner"`
	Covers  CoversConfig  `koanf:"covers"`
}

type LibraryConfig struct {
	// RootPaths are the scan roots of the catalog tree.
	RootPaths []string `koanf:"root_paths" validate:"min=1,dive,required"`
	// BookExtensions are the recognized file extensions, without dots.
	// The default value is JSON, which is how creasty/defaults fills slices.
	BookExtensions []string `koanf:"book_extensions" default:"[\"fb2\",\"epub\",\"mobi\",\"pdf\",\"djvu\"]"`
	ScanZip        bool     `koanf:"scan_zip" default:"true"`
	InpxEnable     bool     `koanf:"inpx_enable" default:"true"`
}

type ScannerConfig struct {
	WorkerProcesses int `koanf:"worker_processes" default:"4" validate:"min=1"`
	// ScanSchedule is a cron expression for recurring scans; empty disables them.
	ScanSchedule string `koanf:"scan_schedule"`
	// DeleteLogical keeps rows of vanished books with avail=deleted instead of
	// removing them, preserving bookshelf and reading-position references.
	DeleteLogical bool `koanf:"delete_logical" default:"true"`
	// ErrorSamples caps how many error messages a scan summary retains.
	ErrorSamples int `koanf:"error_samples" default:"10" validate:"min=1"`
	// PersistenceRetries bounds retry attempts for failed per-book transactions.
	PersistenceRetries int `koanf:"persistence_retries" default:"3" validate:"min=1"`
}

type CoversConfig struct {
	Dir         string `koanf:"dir" default:"covers"`
	MaxWidth    int    `koanf:"max_width" default:"600" validate:"min=16"`
	MaxHeight   int    `koanf:"max_height" default:"900" validate:"min=16"`
	JpegQuality int    `koanf:"jpeg_quality" default:"85" validate:"min=1,max=100"`

	PDFEnable  bool   `koanf:"pdf_enable"`
	DjvuEnable bool   `koanf:"djvu_enable"`
	// RenderTool is invoked as `tool <input> -f 1 -l 1 <output-prefix>` to
	// rasterize page one of a PDF/DjVu file.
	RenderTool string `koanf:"render_tool" default:"pdftoppm"`
	// MetaTool, when present, prints `Key: Value` metadata lines for a PDF.
	MetaTool string `koanf:"meta_tool" default:"pdfinfo"`
}

const (
	configFileENV = "GOPDS_CONFIG"
	envPrefix     = "GOPDS_"
)

// New loads the YAML config file (path from GOPDS_CONFIG, default
// gopds.yml), overlays GOPDS_* environment variables, applies defaults, and
// validates. Any problem is a fatal configuration error.
func New() (*Config, error) {
	path := os.Getenv(configFileENV)
	if path == "" {
		path = "gopds.yml"
	}
	return Load(path)
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrap(errcodes.Configuration(err.Error()), "config file")
		}
	}

	// Double underscore separates nesting levels, e.g.
	// GOPDS_SCANNER__WORKER_PROCESSES=8 -> scanner.worker_processes.
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	}), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.Wrap(errcodes.Configuration(err.Error()), "config unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints and the scan schedule expression.
func (cfg *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return errors.WithStack(errcodes.Configuration(err.Error()))
	}

	if cfg.Scanner.ScanSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Scanner.ScanSchedule); err != nil {
			return errors.WithStack(errcodes.Configuration("invalid scan_schedule: " + err.Error()))
		}
	}

	for i, ext := range cfg.Library.BookExtensions {
		cfg.Library.BookExtensions[i] = strings.ToLower(strings.TrimPrefix(ext, "."))
	}

	return nil
}

// NewForTest returns a config with defaults applied, an in-memory sqlite
// database, and a placeholder root path, for use in tests.
func NewForTest() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		panic(err)
	}
	cfg.DatabaseURL = "sqlite://file::memory:?cache=shared"
	cfg.DatabaseConnectRetryCount = 1
	cfg.DatabaseConnectRetryDelay = 10 * time.Millisecond
	cfg.Library.RootPaths = []string{"."}
	return cfg
}

// ExtensionSet returns the recognized extensions as a lookup set.
func (cfg *Config) ExtensionSet() map[string]struct{} {
	set := make(map[string]struct{}, len(cfg.Library.BookExtensions))
	for _, ext := range cfg.Library.BookExtensions {
		set[ext] = struct{}{}
	}
	return set
}
