// Package placeholder shields math spans from the markdown parser.
//
// Extract swaps every span for an opaque token made only of ASCII letters, which
// goldmark leaves untouched. Restore walks the generated HTML and swaps the
// tokens back: typeset markup in ordinary text, the literal source inside code
// and inside tags.
package placeholder

import (
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/inkpost/inkpost"
	"github.com/inkpost/inkpost/mdrenderer/mathscan"
	nethtml "golang.org/x/net/html"
)

// ErrPlaceholderLeak means a token was not restored exactly once.
var ErrPlaceholderLeak = errors.New("placeholder token not restored exactly once")

const (
	tokenOpen  = "zq"
	tokenSep   = 'q'
	tokenClose = 'z'
	markerLen  = 16
)

// RenderFunc typesets one span.
type RenderFunc func(span inkpost.MathSpan) inkpost.RenderedMath

// Document is markdown whose math spans were replaced by tokens.
// It is only valid for a single render.
type Document struct {
	// Text is the markdown handed to the parser.
	Text  string
	Spans []inkpost.MathSpan

	prefix string
}

// Extract finds the math spans in src and replaces each with a token.
func Extract(src string) *Document {
	return ExtractSpans(src, mathscan.Scan(src))
}

// ExtractSpans is Extract for spans that were already scanned from src.
func ExtractSpans(src string, spans []inkpost.MathSpan) *Document {
	doc := &Document{Text: src, Spans: spans}
	if len(spans) == 0 {
		return doc
	}

	doc.prefix = tokenOpen + newMarker(src) + string(tokenSep)

	var sb strings.Builder
	sb.Grow(len(src) + len(spans)*(len(doc.prefix)+4))
	last := 0
	for i, span := range spans {
		sb.WriteString(src[last:span.Start])
		sb.WriteString(doc.Token(i))
		last = span.End
	}
	sb.WriteString(src[last:])
	doc.Text = sb.String()
	return doc
}

// newMarker derives the token namespace from the input itself, so identical
// input always gets identical tokens. The marker is re-derived until it does
// not occur in src.
func newMarker(src string) string {
	for salt := uint64(0); ; salt++ {
		d := xxhash.New()
		d.WriteString(strconv.FormatUint(salt, 10))
		d.WriteString(src)
		marker := encodeLetters(d.Sum64(), markerLen)
		if !strings.Contains(src, tokenOpen+marker) {
			return marker
		}
	}
}

// encodeLetters writes v in base 16 using the letters a..p, most significant
// digit first. width pads with 'a'; zero width means no padding.
func encodeLetters(v uint64, width int) string {
	var buf [16]byte
	i := len(buf)
	for v > 0 || len(buf)-i < width || i == len(buf) {
		i--
		buf[i] = byte('a' + v&0xf)
		v >>= 4
	}
	return string(buf[i:])
}

func decodeLetters(s string) (int, bool) {
	if s == "" || len(s) > 15 {
		return 0, false
	}
	v := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 'a' || c > 'p' {
			return 0, false
		}
		v = v<<4 | int(c-'a')
	}
	return v, true
}

// Token returns the token standing for span i.
func (d *Document) Token(i int) string {
	return d.prefix + encodeLetters(uint64(i), 0) + string(tokenClose)
}

// Expand replaces tokens in s with the LaTeX of their spans.
func (d *Document) Expand(s string) string {
	if d.prefix == "" {
		return s
	}
	return d.replace(s, nil, func(span inkpost.MathSpan) string {
		return span.Latex
	})
}

// replace rewrites every token in s. counts, when not nil, records how many
// times each span was seen.
func (d *Document) replace(s string, counts []int, fn func(span inkpost.MathSpan) string) string {
	if !strings.Contains(s, d.prefix) {
		return s
	}

	var sb strings.Builder
	for {
		i := strings.Index(s, d.prefix)
		if i < 0 {
			break
		}
		rest := s[i+len(d.prefix):]
		end := strings.IndexByte(rest, tokenClose)
		idx, ok := 0, false
		if end >= 0 {
			idx, ok = decodeLetters(rest[:end])
		}
		if !ok || idx >= len(d.Spans) {
			// Not one of ours: keep the text, the leak check reports it.
			sb.WriteString(s[:i+len(d.prefix)])
			s = rest
			continue
		}
		sb.WriteString(s[:i])
		sb.WriteString(fn(d.Spans[idx]))
		if counts != nil {
			counts[idx]++
		}
		s = rest[end+1:]
	}
	sb.WriteString(s)
	return sb.String()
}

// elements whose text is shown verbatim
var literalElements = map[string]bool{
	"pre":      true,
	"code":     true,
	"script":   true,
	"style":    true,
	"textarea": true,
	"title":    true,
	"iframe":   true,
	"noscript": true,
	"noembed":  true,
	"noframes": true,
	"xmp":      true,
}

// Restore replaces the tokens in the parser output src. Tokens in text are
// rendered with render; tokens in code, tags and comments become the escaped
// source of their span.
//
// Every token may be typeset at most once. The parser may copy a token into
// attributes or code (a linkified URL, a reference link used twice); those
// copies are not counted. A token typeset twice, or a token that survives
// because the parser split it, yields ErrPlaceholderLeak together with the
// best-effort result.
func (d *Document) Restore(src string, render RenderFunc) (string, error) {
	if d.prefix == "" {
		return src, nil
	}

	counts := make([]int, len(d.Spans))
	literal := func(span inkpost.MathSpan) string {
		return html.EscapeString(span.Source)
	}
	typeset := func(span inkpost.MathSpan) string {
		rendered := render(span)
		if !rendered.OK {
			return html.EscapeString(rendered.Markup)
		}
		return rendered.Markup
	}

	var sb strings.Builder
	sb.Grow(len(src))
	z := nethtml.NewTokenizer(strings.NewReader(src))
	depth := 0
	for {
		tt := z.Next()
		if tt == nethtml.ErrorToken {
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return sb.String(), fmt.Errorf("couldn't tokenize rendered markdown: %w", err)
			}
			break
		}
		raw := string(z.Raw())

		switch tt {
		case nethtml.TextToken:
			if depth > 0 {
				sb.WriteString(d.replace(raw, nil, literal))
			} else {
				sb.WriteString(d.replace(raw, counts, typeset))
			}
			continue
		case nethtml.StartTagToken:
			if name, _ := z.TagName(); literalElements[string(name)] {
				depth++
			}
		case nethtml.EndTagToken:
			if name, _ := z.TagName(); literalElements[string(name)] && depth > 0 {
				depth--
			}
		}
		sb.WriteString(d.replace(raw, nil, literal))
	}

	out := sb.String()
	var errs []error
	for i, n := range counts {
		switch {
		case n > 1:
			errs = append(errs, fmt.Errorf("%w: span %d (%s) typeset %d times", ErrPlaceholderLeak, i, d.Spans[i].Kind, n))
		case n == 0:
			slog.Debug("Math span not typeset", slog.Int("span", i), slog.String("kind", d.Spans[i].Kind.String()))
		}
	}
	if strings.Contains(out, d.prefix) {
		errs = append(errs, fmt.Errorf("%w: token survived restoration", ErrPlaceholderLeak))
	}
	return out, errors.Join(errs...)
}

// Scrub replaces whatever is left of the tokens in s with the escaped span
// sources and drops unknown token fragments. Used to recover after Restore
// reported a leak.
func (d *Document) Scrub(s string) string {
	if d.prefix == "" {
		return s
	}
	s = d.replace(s, nil, func(span inkpost.MathSpan) string {
		return html.EscapeString(span.Source)
	})
	return strings.ReplaceAll(s, d.prefix, "")
}
