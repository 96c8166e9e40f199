package texrender

import (
	"fmt"
	"sync"

	"git.sr.ht/~mekyt/latex2mathml"
)

const mathMLNamespace = "http://www.w3.org/1998/Math/MathML"

// Latex2MathML typesets with latex2mathml. The library fills its symbol
// tables lazily and unguarded, so calls are serialized.
type Latex2MathML struct {
	mu sync.Mutex
}

func (l *Latex2MathML) Render(latex string, display bool) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Convert drops parse errors, so parse first.
	if _, err := latex2mathml.Walk(latex); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidMath, err)
	}
	mode := "inline"
	if display {
		mode = "block"
	}
	return canonicalMarkup(latex2mathml.Convert(latex, mathMLNamespace, mode, 0))
}
