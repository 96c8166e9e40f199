package texrender

import (
	"errors"
	"io"
	"slices"
	"strings"

	"github.com/wyatt915/treeblood"
	"golang.org/x/net/html"
)

// MathML typesets with treeblood. The math element carries display="block" or
// display="inline".
type MathML struct {
	// Macros maps command names, without the backslash, to their expansion.
	Macros map[string]string
}

func (m MathML) Render(latex string, display bool) (string, error) {
	out, err := treeblood.TexToMML(latex, m.Macros, display, false)
	if err != nil {
		return "", err
	}
	// Unknown commands are reported inline instead of as an error.
	if strings.Contains(out, "<merror") {
		return "", ErrInvalidMath
	}
	return canonicalMarkup(out)
}

// token elements, whose whitespace is content
var textElements = map[string]bool{
	"mi":    true,
	"mn":    true,
	"mo":    true,
	"mtext": true,
	"ms":    true,
}

// canonicalMarkup re-serializes markup with attributes and style declarations
// sorted, and without whitespace-only text between elements. treeblood
// writes attributes in map order.
func canonicalMarkup(markup string) (string, error) {
	var sb strings.Builder
	sb.Grow(len(markup))
	z := html.NewTokenizer(strings.NewReader(markup))
	inText := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return "", err
			}
			return sb.String(), nil
		}

		tok := z.Token()
		switch tt {
		case html.TextToken:
			if inText == 0 && strings.TrimSpace(tok.Data) == "" {
				continue
			}
		case html.EndTagToken:
			if textElements[tok.Data] && inText > 0 {
				inText--
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			if tt == html.StartTagToken && textElements[tok.Data] {
				inText++
			}
			for i, attr := range tok.Attr {
				if attr.Key == "style" {
					tok.Attr[i].Val = sortDeclarations(attr.Val)
				}
			}
			slices.SortFunc(tok.Attr, func(a, b html.Attribute) int {
				return strings.Compare(a.Key, b.Key)
			})
		}
		sb.WriteString(tok.String())
	}
}

func sortDeclarations(style string) string {
	var decls []string
	for _, decl := range strings.Split(style, ";") {
		if decl = strings.TrimSpace(decl); decl != "" {
			decls = append(decls, decl)
		}
	}
	slices.Sort(decls)
	return strings.Join(decls, "; ")
}
