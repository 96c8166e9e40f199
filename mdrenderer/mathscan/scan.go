// Package mathscan finds LaTeX spans delimited by $ and $$ in author markdown.
//
// Scanning is done in two linear passes with an explicit state machine. The
// first pass resolves $$...$$ blocks over the whole text, the second looks for
// $...$ spans in the gaps between blocks. A backslash escapes the next byte in
// every state, so \$ never opens or closes a span.
//
// An inline span whose content is only an amount such as 100 or 50.00 is read
// as currency and skipped. Any other inline content counts as math, "$abc$"
// included.
package mathscan

import (
	"strings"

	"github.com/inkpost/inkpost"
)

type scanState int

const (
	stateOutside scanState = iota
	stateBlock
	stateInline
)

// Scan returns every math span in text, in document order.
func Scan(text string) []inkpost.MathSpan {
	var spans []inkpost.MathSpan
	scan(text, func(span inkpost.MathSpan) bool {
		spans = append(spans, span)
		return true
	})
	return spans
}

// HasMath reports whether text contains at least one math span.
// It shares the scanner with Scan, so both always agree.
func HasMath(text string) bool {
	found := false
	scan(text, func(inkpost.MathSpan) bool {
		found = true
		return false
	})
	return found
}

// scan calls yield for each span in order until yield returns false.
// Inline spans are only looked for after all blocks are known, so spans are
// buffered per gap to keep the overall order.
func scan(text string, yield func(inkpost.MathSpan) bool) {
	if strings.IndexByte(text, '$') < 0 {
		return
	}

	blocks := scanBlocks(text)
	gapStart := 0
	for _, block := range blocks {
		if !scanInline(text, gapStart, block.Start, yield) {
			return
		}
		if !yield(block) {
			return
		}
		gapStart = block.End
	}
	scanInline(text, gapStart, len(text), yield)
}

// scanBlocks finds $$...$$ spans. Content must be at least one byte long and
// may contain newlines; the nearest unescaped $$ closes the span.
func scanBlocks(text string) []inkpost.MathSpan {
	var blocks []inkpost.MathSpan

	state := stateOutside
	escaped := false
	open := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			continue
		}
		if c != '$' || i+1 >= len(text) || text[i+1] != '$' {
			continue
		}

		switch state {
		case stateOutside:
			state = stateBlock
			open = i
			i++
		case stateBlock:
			// empty content: the first $ belongs to the content
			if i == open+2 {
				continue
			}
			content := text[open+2 : i]
			blocks = append(blocks, inkpost.MathSpan{
				Kind:   inkpost.BlockMath,
				Latex:  strings.TrimSpace(content),
				Source: text[open : i+2],
				Start:  open,
				End:    i + 2,
			})
			state = stateOutside
			i++
		}
	}
	// An unclosed opener stays literal text. Nothing after it can close a
	// block, so the remaining text is left to the inline pass.
	return blocks
}

// scanInline looks for $...$ spans inside text[start:end]. It returns false
// when yield asked to stop.
func scanInline(text string, start, end int, yield func(inkpost.MathSpan) bool) bool {
	state := stateOutside
	escaped := false
	open := 0
	for i := start; i < end; i++ {
		c := text[i]
		if escaped {
			escaped = false
			if c == '\n' {
				state = stateOutside
			}
			continue
		}

		switch state {
		case stateOutside:
			switch {
			case c == '\\':
				escaped = true
			case c == '$':
				if i+1 < end && text[i+1] == '$' {
					// "$$" never opens an inline span; the second $ may.
					continue
				}
				state = stateInline
				open = i
			}
		case stateInline:
			switch c {
			case '\\':
				escaped = true
			case '\n':
				// Inline math lives on one line. No unescaped $ was seen
				// since the opener, so scanning simply resumes here.
				state = stateOutside
			case '$':
				state = stateOutside
				content := text[open+1 : i]
				if isAmount(content) {
					continue
				}
				span := inkpost.MathSpan{
					Kind:   inkpost.InlineMath,
					Latex:  strings.TrimSpace(content),
					Source: text[open : i+1],
					Start:  open,
					End:    i + 1,
				}
				if !yield(span) {
					return false
				}
			}
		}
	}
	return true
}

// isAmount matches `^\d+([.,]\d+)?$`.
func isAmount(s string) bool {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	if i == 0 {
		return false
	}
	if i == len(s) {
		return true
	}
	if s[i] != '.' && s[i] != ',' {
		return false
	}
	i++
	frac := i
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return i > frac && i == len(s)
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}
