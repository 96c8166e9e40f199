package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/davecgh/go-spew/spew"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is the glue for all configuration sections.
// It is built once by Load and must not be changed afterwards.
type Config struct {
	Common   Common   `toml:"common"`
	Markdown Markdown `toml:"markdown"`
	Math     Math     `toml:"math"`
	Server   Server   `toml:"server"`
	Metrics  Metrics  `toml:"metrics"`
	Database Database `toml:"database"`
}

// Common is the data required for all commands
type Common struct {
	Debug  bool   `toml:"debug"`
	LogDir string `toml:"log_dir"`
}

type Markdown struct {
	HardWraps      bool   `toml:"hard_wraps"`
	Highlight      bool   `toml:"highlight"`
	HighlightStyle string `toml:"highlight_style"`
}

type Math struct {
	Enabled bool `toml:"enabled"`
	// Engine is "mathml", "latex2mathml" or "katex"
	Engine      string `toml:"engine"`
	KatexScript string `toml:"katex_script"`
	CacheSize   int64  `toml:"cache_size"`
	// LogSnippetLen caps, in runes, the LaTeX quoted in render warnings
	LogSnippetLen int `toml:"log_snippet_len"`
}

// Server is the render service
type Server struct {
	Address        string   `toml:"address"`
	MaxInputBytes  int64    `toml:"max_input_bytes"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

type Metrics struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
}

// Database is the data required to run the backfill against PostgreSQL
type Database struct {
	DSN       string  `toml:"dsn"`
	Workers   int     `toml:"workers"`
	BatchSize uint64  `toml:"batch_size"`
	Tables    []Table `toml:"tables"`
}

// Table describes where rendered content is stored
type Table struct {
	Name          string `toml:"name"`
	IDColumn      string `toml:"id_column"`
	SourceColumn  string `toml:"source_column"`
	HTMLColumn    string `toml:"html_column"`
	HasMathColumn string `toml:"has_math_column"`
}

func postsTable(name string) Table {
	return Table{
		Name:          name,
		IDColumn:      "id",
		SourceColumn:  "content_markdown",
		HTMLColumn:    "content_html",
		HasMathColumn: "has_math",
	}
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Markdown: Markdown{
			HardWraps:      true,
			Highlight:      true,
			HighlightStyle: "github",
		},
		Math: Math{
			Enabled:       true,
			Engine:        "mathml",
			CacheSize:     5000,
			LogSnippetLen: 80,
		},
		Server: Server{
			Address:        "127.0.0.1:3333",
			MaxInputBytes:  1 << 20,
			AllowedOrigins: []string{"*"},
		},
		Metrics: Metrics{
			Address: "127.0.0.1:8071",
		},
		Database: Database{
			Workers:   4,
			BatchSize: 100,
			Tables:    []Table{postsTable("blog.posts"), postsTable("blog.projects")},
		},
	}
}

// Load reads the TOML file at path on top of the defaults. A missing file is
// not an error. Variables from a .env file next to the working directory and
// INKPOST_* environment variables override the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Couldn't load .env file", slog.Any("err", err))
	}

	c := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, c)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Debug("Config file not found, using defaults", slog.String("path", path))
		case err != nil:
			return nil, fmt.Errorf("couldn't decode config: %w", err)
		default:
			if len(md.Undecoded()) > 0 {
				slog.Warn("NOTE: There were a few undecoded keys")
				spew.Dump(md.Undecoded())
			}
		}
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("INKPOST_DATABASE_DSN"); ok {
		c.Database.DSN = v
	}
	if v, ok := os.LookupEnv("INKPOST_LOG_DIR"); ok {
		c.Common.LogDir = v
	}
	if v, ok := os.LookupEnv("INKPOST_SERVER_ADDRESS"); ok {
		c.Server.Address = v
	}
	if v, ok := os.LookupEnv("INKPOST_DEBUG"); ok {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: INKPOST_DEBUG: %w", ErrInvalidConfig, err)
		}
		c.Common.Debug = debug
	}
	return nil
}

var identifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)

var identRules = []validation.Rule{validation.Required, validation.Match(identifier)}

func (m Math) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Engine, validation.In("", "mathml", "latex2mathml", "katex")),
		validation.Field(&m.KatexScript, validation.When(m.Enabled && m.Engine == "katex", validation.Required)),
		validation.Field(&m.CacheSize, validation.Min(int64(0))),
		validation.Field(&m.LogSnippetLen, validation.Min(0)),
	)
}

func (s Server) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.MaxInputBytes, validation.Required, validation.Min(int64(1))),
	)
}

func (t Table) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Name, identRules...),
		validation.Field(&t.IDColumn, identRules...),
		validation.Field(&t.SourceColumn, identRules...),
		validation.Field(&t.HTMLColumn, identRules...),
		validation.Field(&t.HasMathColumn, identRules...),
	)
}

func (d Database) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Workers, validation.Required, validation.Min(1)),
		validation.Field(&d.BatchSize, validation.Required),
		validation.Field(&d.Tables),
	)
}

// Validate checks values that would otherwise fail late, such as table names
// that end up in SQL.
func (c *Config) Validate() error {
	err := validation.Errors{
		"math":     c.Math.Validate(),
		"server":   c.Server.Validate(),
		"database": c.Database.Validate(),
	}.Filter()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Save writes c as TOML to path, creating parent directories.
func Save(path string, c *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(file).Encode(c); err != nil {
		file.Close() // We don't care if it errors out, the TOML is errored
		return err
	}
	return file.Close()
}

// Select returns the configured tables, or only those named in names.
func (d Database) Select(names []string) ([]Table, error) {
	if len(names) == 0 {
		return d.Tables, nil
	}
	var tables []Table
	for _, name := range names {
		found := false
		for _, t := range d.Tables {
			if strings.EqualFold(t.Name, name) {
				tables = append(tables, t)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: table %q is not configured", ErrInvalidConfig, name)
		}
	}
	return tables, nil
}
