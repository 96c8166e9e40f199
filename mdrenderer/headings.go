package mdrenderer

import (
	"strconv"

	"github.com/gosimple/slug"
	"github.com/inkpost/inkpost/mdrenderer/placeholder"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
)

var _ parser.IDs = &headingIDs{}

// headingIDs slugs heading text for one render. Math placeholders are expanded
// back to their LaTeX first, so the id does not depend on the token namespace.
type headingIDs struct {
	doc  *placeholder.Document
	used map[string]bool
}

func newHeadingIDs(doc *placeholder.Document) *headingIDs {
	return &headingIDs{doc: doc, used: make(map[string]bool)}
}

func (ids *headingIDs) Generate(value []byte, kind ast.NodeKind) []byte {
	base := slug.Make(ids.doc.Expand(string(value)))
	if base == "" {
		base = "heading"
		if kind != ast.KindHeading {
			base = "id"
		}
	}

	id := base
	for i := 1; ids.used[id]; i++ {
		id = base + "-" + strconv.Itoa(i)
	}
	ids.used[id] = true
	return []byte(id)
}

func (ids *headingIDs) Put(value []byte) {
	ids.used[string(value)] = true
}
