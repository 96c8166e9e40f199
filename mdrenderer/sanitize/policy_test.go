package sanitize

import (
	"strings"
	"testing"
)

func TestSanitizeMath(t *testing.T) {
	pol := NewPolicy(true)
	tests := []struct {
		name    string
		in      string
		want    []string
		notWant []string
	}{
		{
			name:    "script",
			in:      `<p>hi</p><script>alert(1)</script>`,
			want:    []string{"<p>hi</p>"},
			notWant: []string{"<script", "alert"},
		},
		{
			name:    "event handler",
			in:      `<img src="a.png" onerror="alert(1)" alt="x"/>`,
			want:    []string{`src="a.png"`, `alt="x"`},
			notWant: []string{"onerror"},
		},
		{
			name:    "javascript link",
			in:      `<a href="javascript:alert(1)">x</a>`,
			notWant: []string{"javascript"},
		},
		{
			name: "relative and mailto links",
			in:   `<a href="/posts/1" title="t">a</a><a href="mailto:me@example.com">b</a>`,
			want: []string{`href="/posts/1"`, `title="t"`, `href="mailto:me@example.com"`},
		},
		{
			name: "table",
			in:   `<table><thead><tr><th>A</th></tr></thead><tbody><tr><td>B</td></tr></tbody></table>`,
			want: []string{"<table>", "<th>A</th>", "<td>B</td>"},
		},
		{
			name: "global attributes",
			in:   `<h2 id="intro" class="x" role="note" aria-hidden="true">t</h2>`,
			want: []string{`id="intro"`, `class="x"`, `role="note"`, `aria-hidden="true"`},
		},
		{
			name:    "mathml",
			in:      `<math xmlns="http://www.w3.org/1998/Math/MathML" display="block" style="font-feature-settings: 'dtls' off;"><semantics><mrow><msup><mi>x</mi><mn>2</mn></msup></mrow><annotation encoding="application/x-tex">x^2</annotation></semantics></math>`,
			want:    []string{`<math xmlns="http://www.w3.org/1998/Math/MathML" display="block">`, "<msup><mi>x</mi><mn>2</mn></msup>", `<annotation encoding="application/x-tex">`},
			notWant: []string{"font-feature-settings"},
		},
		{
			name:    "mathml attributes",
			in:      `<mo stretchy="false" lspace="0.1667em" onclick="x()">(</mo>`,
			want:    []string{`stretchy="false"`, `lspace="0.1667em"`},
			notWant: []string{"onclick"},
		},
		{
			name:    "allowed styles",
			in:      `<span style="height: 1.2em; vertical-align: -0.25em; position: relative; color: #ff0000; border-bottom: 0.04em solid">x</span>`,
			want:    []string{"height: 1.2em", "vertical-align: -0.25em", "position: relative", "color: #ff0000", "border-bottom: 0.04em solid"},
			notWant: []string{},
		},
		{
			name:    "rejected styles",
			in:      `<span style="position: fixed; background-image: url(x.png); height: calc(100vh); display: flex">x</span>`,
			want:    []string{"<span>x</span>"},
			notWant: []string{"fixed", "url(", "calc", "flex"},
		},
		{
			name:    "style only on layout elements",
			in:      `<p style="color: #fff">x</p>`,
			want:    []string{"<p>x</p>"},
			notWant: []string{"style"},
		},
		{
			name:    "unknown tags keep text",
			in:      `<iframe src="x"></iframe><font color="red">kept</font>`,
			want:    []string{"kept"},
			notWant: []string{"<iframe", "<font"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pol.Sanitize(tt.in)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("Sanitize(%q) = %q, missing %q", tt.in, got, w)
				}
			}
			for _, nw := range tt.notWant {
				if strings.Contains(got, nw) {
					t.Errorf("Sanitize(%q) = %q, should not contain %q", tt.in, got, nw)
				}
			}
		})
	}
}

func TestSanitizeWithoutMath(t *testing.T) {
	pol := NewPolicy(false)
	got := pol.Sanitize(`<p>a <math><mi>x</mi></math> <span style="color: #fff">b</span></p>`)
	for _, nw := range []string{"<math", "<mi", "style"} {
		if strings.Contains(got, nw) {
			t.Errorf("Sanitize without math = %q, should not contain %q", got, nw)
		}
	}
	if !strings.Contains(got, "x") || !strings.Contains(got, "b") {
		t.Errorf("Sanitize without math dropped text: %q", got)
	}
}

func TestSanitizeDeterministic(t *testing.T) {
	pol := NewPolicy(true)
	in := `<span style="top: 1em; left: 2em; height: 3em" class="a" aria-hidden="true">x</span>`
	first := pol.Sanitize(in)
	for range 20 {
		if got := pol.Sanitize(in); got != first {
			t.Fatalf("Sanitize is not deterministic: %q != %q", got, first)
		}
	}
}
