package texrender

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dop251/goja"
)

var renderToString = sync.OnceValue(func() *goja.Program { return goja.MustCompile("", "katex.renderToString(_EqSrc3120)", true) })
var displayRenderToString = sync.OnceValue(func() *goja.Program {
	return goja.MustCompile("", "katex.renderToString(_EqSrc3120, {displayMode: true})", true)
})

// Katex runs a KaTeX bundle inside goja. Display output is wrapped in an
// element with the katex-display class.
type Katex struct {
	program *goja.Program
	// A goja.Runtime must not be shared between goroutines.
	vms sync.Pool
}

// NewKatex compiles the KaTeX script at path and checks that it defines katex.
func NewKatex(path string) (*Katex, error) {
	if path == "" {
		return nil, ErrNoKatexScript
	}
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't read katex script: %w", err)
	}
	prog, err := goja.Compile(filepath.Base(path), string(code), true)
	if err != nil {
		return nil, fmt.Errorf("couldn't compile katex script: %w", err)
	}

	k := &Katex{program: prog}
	vm, err := k.newVM()
	if err != nil {
		return nil, err
	}
	k.vms.Put(vm)
	return k, nil
}

func (k *Katex) newVM() (*goja.Runtime, error) {
	vm := goja.New()
	if _, err := vm.RunProgram(k.program); err != nil {
		return nil, fmt.Errorf("couldn't load katex script: %w", err)
	}
	if v := vm.Get("katex"); v == nil || goja.IsUndefined(v) {
		return nil, fmt.Errorf("%w: script does not define katex", ErrNoKatexScript)
	}
	return vm, nil
}

func (k *Katex) Render(latex string, display bool) (string, error) {
	vm, ok := k.vms.Get().(*goja.Runtime)
	if !ok {
		var err error
		if vm, err = k.newVM(); err != nil {
			return "", err
		}
	}
	defer k.vms.Put(vm)

	if err := vm.Set("_EqSrc3120", latex); err != nil {
		return "", err
	}

	cmd := renderToString()
	if display {
		cmd = displayRenderToString()
	}
	val, err := vm.RunProgram(cmd)
	if err != nil {
		var exception *goja.Exception
		if errors.As(err, &exception) {
			msg := exception.Error()
			if v := exception.Value(); v != nil {
				msg = v.String()
			}
			return "", fmt.Errorf("%w: %s", ErrInvalidMath, strings.TrimPrefix(msg, "ParseError: "))
		}
		return "", err
	}
	return val.String(), nil
}
