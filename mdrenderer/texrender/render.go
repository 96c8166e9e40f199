// Package texrender typesets LaTeX for the markdown renderer.
//
// Output is memoized per display mode. Input the engine rejects is never an
// error for the caller: it comes back as the delimited source with OK unset.
package texrender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Yiling-J/theine-go"
	"github.com/inkpost/inkpost"
	"github.com/inkpost/inkpost/metrics"
)

var (
	ErrUnknownEngine = errors.New("unknown math engine")
	ErrNoKatexScript = errors.New("katex engine needs math.katex_script")
	ErrInvalidMath   = errors.New("invalid math input")
)

const (
	EngineMathML       = "mathml"
	EngineLatex2MathML = "latex2mathml"
	EngineKatex        = "katex"

	defaultCacheSize  = 5000
	defaultSnippetLen = 80
)

// Engine turns LaTeX, without delimiters, into markup.
// Implementations must be safe for concurrent use.
type Engine interface {
	Render(latex string, display bool) (string, error)
}

type Options struct {
	// Engine is EngineMathML, EngineLatex2MathML or EngineKatex.
	// Empty means EngineMathML.
	Engine      string
	KatexScript string

	CacheSize     int64
	LogSnippetLen int
}

type Renderer struct {
	engine     Engine
	snippetLen int

	inlineCache  *theine.LoadingCache[string, inkpost.RenderedMath]
	displayCache *theine.LoadingCache[string, inkpost.RenderedMath]
}

// New builds the engine named in opts and wraps it in a Renderer.
func New(opts Options) (*Renderer, error) {
	var engine Engine
	switch opts.Engine {
	case "", EngineMathML:
		engine = MathML{}
	case EngineLatex2MathML:
		engine = &Latex2MathML{}
	case EngineKatex:
		k, err := NewKatex(opts.KatexScript)
		if err != nil {
			return nil, err
		}
		engine = k
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, opts.Engine)
	}
	return NewWithEngine(engine, opts)
}

func NewWithEngine(engine Engine, opts Options) (*Renderer, error) {
	r := &Renderer{engine: engine, snippetLen: opts.LogSnippetLen}
	if r.snippetLen <= 0 {
		r.snippetLen = defaultSnippetLen
	}
	size := opts.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}

	var err error
	r.inlineCache, err = theine.NewBuilder[string, inkpost.RenderedMath](size).BuildWithLoader(r.cacheLoader(false))
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize inline math cache: %w", err)
	}
	r.displayCache, err = theine.NewBuilder[string, inkpost.RenderedMath](size).BuildWithLoader(r.cacheLoader(true))
	if err != nil {
		r.inlineCache.Close()
		return nil, fmt.Errorf("couldn't initialize display math cache: %w", err)
	}
	return r, nil
}

func (r *Renderer) cacheLoader(display bool) func(ctx context.Context, key string) (theine.Loaded[inkpost.RenderedMath], error) {
	return func(ctx context.Context, key string) (theine.Loaded[inkpost.RenderedMath], error) {
		val := r.typeset(ctx, key, display)
		return theine.Loaded[inkpost.RenderedMath]{Value: val, Cost: 1, TTL: 0}, nil
	}
}

// typeset runs the engine once. Engine failures and panics are logged here, so
// a given bad input is reported once per cache lifetime.
func (r *Renderer) typeset(ctx context.Context, latex string, display bool) (val inkpost.RenderedMath) {
	defer func() {
		if p := recover(); p != nil {
			slog.WarnContext(ctx, "Math engine panicked", slog.Any("panic", p), slog.Bool("display", display), slog.String("latex", r.snippet(latex)))
			val = inkpost.RenderedMath{}
		}
	}()

	markup, err := r.engine.Render(latex, display)
	if err != nil {
		slog.WarnContext(ctx, "Couldn't render math", slog.Any("err", err), slog.Bool("display", display), slog.String("latex", r.snippet(latex)))
		return inkpost.RenderedMath{}
	}
	return inkpost.RenderedMath{Markup: markup, OK: true}
}

// Render typesets latex. On failure Markup holds the delimited source, $...$ or
// $$...$$ depending on display.
func (r *Renderer) Render(latex string, display bool) inkpost.RenderedMath {
	cache := r.inlineCache
	kind := inkpost.InlineMath
	if display {
		cache = r.displayCache
		kind = inkpost.BlockMath
	}

	val, err := cache.Get(context.Background(), latex)
	if err != nil {
		slog.Warn("Math cache failure", slog.Any("err", err))
		val = r.typeset(context.Background(), latex, display)
	}
	if !val.OK {
		metrics.MathSpans.WithLabelValues(kind.String(), "fallback").Inc()
		return inkpost.RenderedMath{Markup: delimit(latex, display), OK: false}
	}
	metrics.MathSpans.WithLabelValues(kind.String(), "ok").Inc()
	return val
}

// RenderSpan typesets span. On failure Markup holds span.Source exactly as the
// author wrote it.
func (r *Renderer) RenderSpan(span inkpost.MathSpan) inkpost.RenderedMath {
	val := r.Render(span.Latex, span.Display())
	if !val.OK {
		val.Markup = span.Source
	}
	return val
}

func (r *Renderer) Close() {
	r.inlineCache.Close()
	r.displayCache.Close()
}

func delimit(latex string, display bool) string {
	if display {
		return "$$" + latex + "$$"
	}
	return "$" + latex + "$"
}

// snippet cuts s to at most r.snippetLen runes.
func (r *Renderer) snippet(s string) string {
	n := 0
	for i := range s {
		if n == r.snippetLen {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
