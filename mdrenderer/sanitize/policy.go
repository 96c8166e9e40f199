// Package sanitize holds the allowlist applied to every rendered document.
package sanitize

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

var (
	markdownElements = []string{
		"h1", "h2", "h3", "h4", "h5", "h6",
		"p", "br", "hr",
		"ul", "ol", "li",
		"strong", "em", "del", "code", "pre",
		"a", "img",
		"blockquote",
		"table", "thead", "tbody", "tr", "th", "td",
	}

	layoutElements = []string{"span", "div"}

	mathElements = []string{
		"math", "semantics", "mrow", "mi", "mo", "mn", "ms", "mtext", "mspace",
		"msup", "msub", "msubsup", "mfrac", "mroot", "msqrt",
		"mover", "munder", "munderover", "mtable", "mtr", "mtd", "mlabeledtr",
		"mstyle", "mpadded", "mphantom", "menclose", "mmultiscripts", "mprescripts", "none",
		"annotation", "annotation-xml",
	}

	// Presentation attributes written by the math engines.
	mathAttrs = []string{
		"mathvariant", "mathsize", "stretchy", "fence", "separator", "form",
		"accent", "accentunder", "largeop", "movablelimits", "symmetric",
		"lspace", "rspace", "width", "height", "depth", "voffset",
		"linethickness", "notation", "columnalign", "rowspacing", "columnspacing",
		"columnlines", "rowlines",
		"displaystyle", "scriptlevel",
	}
)

var (
	mathAttrValue = regexp.MustCompile(`^[a-zA-Z0-9 .%+\-]*$`)
	mathNamespace = regexp.MustCompile(`^http://www\.w3\.org/1998/Math/MathML$`)

	color     = regexp.MustCompile(`^(#[0-9a-f]{3,6}|rgba?\(.*)$`)
	length    = regexp.MustCompile(`^[\d.]+(em|px)$`)
	offset    = regexp.MustCompile(`^-?[\d.]+(em|px)$`)
	fontSize  = regexp.MustCompile(`^[\d.]+(em|px|%)$`)
	lineH     = regexp.MustCompile(`^[\d.]+(em|px)?$`)
	anything  = regexp.MustCompile(`.*`)
	verticalA = regexp.MustCompile(`^(-?[\d.]+(em|px)|top|middle|bottom|baseline|sub|super|text-top|text-bottom)$`)
)

// Policy is safe for concurrent use and must not be changed after NewPolicy.
type Policy struct {
	pol *bluemonday.Policy
}

// NewPolicy builds the document allowlist. The layout and MathML elements, and
// styles on span and div, are only allowed when math is true.
func NewPolicy(math bool) *Policy {
	p := bluemonday.NewPolicy()

	p.AllowNoAttrs().OnElements(markdownElements...)
	p.AllowAttrs("class", "id", "aria-hidden", "role").Globally()

	p.AllowAttrs("href", "title").OnElements("a")
	p.AllowAttrs("src", "alt", "title").OnElements("img")
	p.RequireParseableURLs(true)
	p.AllowRelativeURLs(true)
	p.AllowURLSchemes("http", "https", "mailto")

	if math {
		p.AllowNoAttrs().OnElements(layoutElements...)
		p.AllowNoAttrs().OnElements(mathElements...)

		p.AllowAttrs("xmlns").Matching(mathNamespace).OnElements("math")
		p.AllowAttrs("display").Matching(regexp.MustCompile(`^(block|inline)$`)).OnElements("math")
		p.AllowAttrs("encoding").Matching(regexp.MustCompile(`^[a-zA-Z0-9/+\-.]+$`)).OnElements("annotation", "annotation-xml")
		p.AllowAttrs(mathAttrs...).Matching(mathAttrValue).OnElements(mathElements...)

		p.AllowStyles("color", "background-color").Matching(color).OnElements(layoutElements...)
		p.AllowStyles("height", "width", "min-width", "padding-left", "padding-right", "border-bottom-width").
			Matching(length).OnElements(layoutElements...)
		p.AllowStyles("margin-left", "margin-right", "margin-top", "margin-bottom", "top", "left", "bottom", "right").
			Matching(offset).OnElements(layoutElements...)
		p.AllowStyles("font-size").Matching(fontSize).OnElements(layoutElements...)
		p.AllowStyles("line-height").Matching(lineH).OnElements(layoutElements...)
		p.AllowStyles("vertical-align").Matching(verticalA).OnElements(layoutElements...)
		p.AllowStyles("position").MatchingEnum("relative", "absolute").OnElements(layoutElements...)
		p.AllowStyles("display").MatchingEnum("inline-block", "block", "inline").OnElements(layoutElements...)
		// Fraction lines.
		p.AllowStyles("border-bottom").Matching(anything).OnElements(layoutElements...)
	}

	return &Policy{pol: p}
}

// Sanitize never fails; anything outside the allowlist is dropped.
func (p *Policy) Sanitize(raw string) string {
	return p.pol.Sanitize(raw)
}
