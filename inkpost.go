package inkpost

import "context"

const Version = "v0.3.0"

// SpanKind tells block math ($$...$$) apart from inline math ($...$).
type SpanKind int

const (
	InlineMath SpanKind = iota
	BlockMath
)

func (k SpanKind) String() string {
	if k == BlockMath {
		return "block"
	}
	return "inline"
}

// MathSpan is a piece of LaTeX found in author markdown.
// Start and End are byte offsets of Source inside the scanned text.
type MathSpan struct {
	Kind  SpanKind
	Latex string
	// Source is the delimited text as written by the author, kept for fallbacks.
	Source string

	Start int
	End   int
}

// Display reports whether the span should be typeset in display mode.
func (s MathSpan) Display() bool {
	return s.Kind == BlockMath
}

// RenderedMath is the typeset form of a span. OK is false when Markup is the
// verbatim Source because the engine could not typeset it.
type RenderedMath struct {
	Markup string
	OK     bool
}

// RenderedContent is what the content service stores next to the raw markdown.
type RenderedContent struct {
	HTML    string `json:"html"`
	HasMath bool   `json:"has_math"`
}

// ContentRenderer turns stored markdown into its embeddable form.
// A nil src is treated as empty content.
type ContentRenderer interface {
	RenderContent(ctx context.Context, src *string) (*RenderedContent, error)
}
