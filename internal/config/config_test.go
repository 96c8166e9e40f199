package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load of a missing file failed: %v", err)
	}
	if !c.Math.Enabled || c.Math.Engine != "mathml" || c.Math.LogSnippetLen != 80 {
		t.Fatalf("Defaults not applied: %+v", c.Math)
	}
	if len(c.Database.Tables) != 2 || c.Database.Tables[0].Name != "blog.posts" {
		t.Fatalf("Unexpected default tables: %+v", c.Database.Tables)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inkpost.toml")
	data := `
[common]
debug = true

[math]
engine = "mathml"
log_snippet_len = 20

[server]
max_input_bytes = 2048

[[database.tables]]
name = "public.pages"
id_column = "page_id"
source_column = "body"
html_column = "body_html"
has_math_column = "math"
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !c.Common.Debug || c.Math.LogSnippetLen != 20 || c.Server.MaxInputBytes != 2048 {
		t.Fatalf("File values not applied: %+v", c)
	}
	// Untouched keys keep their defaults.
	if !c.Math.Enabled || c.Server.Address != "127.0.0.1:3333" {
		t.Fatalf("Defaults lost: %+v", c)
	}
	if len(c.Database.Tables) != 1 || c.Database.Tables[0].IDColumn != "page_id" {
		t.Fatalf("Tables not replaced: %+v", c.Database.Tables)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("INKPOST_DATABASE_DSN", "postgres://localhost/blog")
	t.Setenv("INKPOST_DEBUG", "true")
	t.Setenv("INKPOST_SERVER_ADDRESS", ":9999")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Database.DSN != "postgres://localhost/blog" || !c.Common.Debug || c.Server.Address != ":9999" {
		t.Fatalf("Env overrides not applied: %+v", c)
	}

	t.Setenv("INKPOST_DEBUG", "sometimes")
	if _, err := Load(""); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Expected ErrInvalidConfig for a bad bool, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		apply func(c *Config)
	}{
		{"unknown engine", func(c *Config) { c.Math.Engine = "mathjax" }},
		{"katex without script", func(c *Config) { c.Math.Engine = "katex" }},
		{"no workers", func(c *Config) { c.Database.Workers = 0 }},
		{"zero batch", func(c *Config) { c.Database.BatchSize = 0 }},
		{"injected table", func(c *Config) { c.Database.Tables[0].Name = "posts; DROP TABLE x" }},
		{"bad column", func(c *Config) { c.Database.Tables[1].HTMLColumn = "html\"" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.apply(c)
			if err := c.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("Defaults do not validate: %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "inkpost.toml")
	want := Default()
	want.Math.Engine = "katex"
	want.Math.KatexScript = "/opt/katex.min.js"
	if err := Save(path, want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load of saved config failed: %v", err)
	}
	if got.Math.KatexScript != want.Math.KatexScript || len(got.Database.Tables) != len(want.Database.Tables) {
		t.Fatalf("Saved config differs: %+v", got)
	}
}

func TestSelectTables(t *testing.T) {
	db := Default().Database
	tables, err := db.Select([]string{"blog.projects"})
	if err != nil || len(tables) != 1 || tables[0].Name != "blog.projects" {
		t.Fatalf("Select = %+v, %v", tables, err)
	}
	if _, err := db.Select([]string{"blog.nope"}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Expected ErrInvalidConfig for an unknown table, got %v", err)
	}
	if all, _ := db.Select(nil); len(all) != 2 {
		t.Fatalf("Select(nil) returned %d tables", len(all))
	}
}
