package mdrenderer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/inkpost/inkpost"
	"github.com/inkpost/inkpost/mdrenderer/mathscan"
	"github.com/inkpost/inkpost/mdrenderer/placeholder"
	"github.com/inkpost/inkpost/mdrenderer/sanitize"
	"github.com/inkpost/inkpost/mdrenderer/texrender"
	"github.com/inkpost/inkpost/metrics"

	chtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
)

var _ inkpost.ContentRenderer = &LocalRenderer{}

type Options struct {
	Math      bool
	HardWraps bool

	Highlight      bool
	HighlightStyle string

	// Strict panics when a math placeholder is not restored exactly once,
	// instead of logging and falling back to the span source.
	Strict bool

	Tex texrender.Options
}

// LocalRenderer turns author markdown into sanitized HTML, typesetting math
// found between $ and $$ delimiters. It is safe for concurrent use.
type LocalRenderer struct {
	md     goldmark.Markdown
	pol    *sanitize.Policy
	tex    *texrender.Renderer
	strict bool
}

func NewLocalRenderer(opts Options) (*LocalRenderer, error) {
	exts := []goldmark.Extender{extension.GFM}
	if opts.Highlight {
		style := opts.HighlightStyle
		if style == "" {
			style = "github"
		}
		exts = append(exts, highlighting.NewHighlighting(
			highlighting.WithStyle(style),
			highlighting.WithFormatOptions(
				chtml.TabWidth(4),
				chtml.WithClasses(true),
			),
		))
	}

	// Raw HTML is passed through; the sanitizer decides what stays.
	rendererOpts := []renderer.Option{html.WithXHTML(), html.WithUnsafe()}
	if opts.HardWraps {
		rendererOpts = append(rendererOpts, html.WithHardWraps())
	}

	r := &LocalRenderer{
		md: goldmark.New(
			goldmark.WithExtensions(exts...),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			goldmark.WithRendererOptions(rendererOpts...),
		),
		pol:    sanitize.NewPolicy(opts.Math),
		strict: opts.Strict,
	}
	if opts.Math {
		tex, err := texrender.New(opts.Tex)
		if err != nil {
			return nil, fmt.Errorf("couldn't initialize math renderer: %w", err)
		}
		r.tex = tex
	}
	return r, nil
}

// Render returns the sanitized HTML for src. Identical input always gives
// identical output.
func (r *LocalRenderer) Render(src string) string {
	if src == "" {
		return ""
	}
	start := time.Now()
	defer func() {
		metrics.Renders.Inc()
		metrics.RenderDuration.Observe(time.Since(start).Seconds())
	}()

	var doc *placeholder.Document
	if r.tex != nil {
		doc = placeholder.Extract(src)
	} else {
		doc = placeholder.ExtractSpans(src, nil)
	}

	var buf bytes.Buffer
	pctx := parser.NewContext(parser.WithIDs(newHeadingIDs(doc)))
	if err := r.md.Convert([]byte(doc.Text), &buf, parser.WithContext(pctx)); err != nil {
		slog.Error("Couldn't convert markdown", slog.Any("err", err))
	}

	out := buf.String()
	if len(doc.Spans) > 0 {
		restored, err := doc.Restore(out, r.tex.RenderSpan)
		if err != nil {
			r.violation(err, len(src))
			restored = doc.Scrub(restored)
		}
		out = restored
	}
	return r.pol.Sanitize(out)
}

func (r *LocalRenderer) violation(err error, size int) {
	metrics.PlaceholderViolations.Inc()
	if r.strict {
		panic(err)
	}
	slog.Error("Math placeholder was not restored", slog.Any("err", err), slog.Int("input_bytes", size))
}

// RenderNullable is Render for optional content; nil renders to "".
func (r *LocalRenderer) RenderNullable(src *string) string {
	if src == nil {
		return ""
	}
	return r.Render(*src)
}

// HasMath reports whether src contains math the renderer would typeset. It is
// always false when math support is disabled.
func (r *LocalRenderer) HasMath(src string) bool {
	if r.tex == nil {
		return false
	}
	return mathscan.HasMath(src)
}

func (r *LocalRenderer) HasMathNullable(src *string) bool {
	if src == nil {
		return false
	}
	return r.HasMath(*src)
}

// RenderContent never returns an error; it satisfies inkpost.ContentRenderer.
func (r *LocalRenderer) RenderContent(_ context.Context, src *string) (*inkpost.RenderedContent, error) {
	return &inkpost.RenderedContent{
		HTML:    r.RenderNullable(src),
		HasMath: r.HasMathNullable(src),
	}, nil
}

func (r *LocalRenderer) Close() {
	if r.tex != nil {
		r.tex.Close()
	}
}
