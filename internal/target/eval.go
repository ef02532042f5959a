package target

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"go.starlark.net/starlark"

	"pointers/internal/analysis"
)

// Registers returns register values by name.
type Registers func() (map[string]uint64, error)

// Evaluator turns address expressions into numbers. Expressions may use
// symbol names, registers ($pc or pc), integer literals and arithmetic.
type Evaluator struct {
	symbols *Symbolizer
	regs    Registers

	once sync.Once
	env  starlark.StringDict
}

func NewEvaluator(symbols *Symbolizer, regs Registers) *Evaluator {
	return &Evaluator{symbols: symbols, regs: regs}
}

var reRegister = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)

// Eval evaluates expr to an address.
func (e *Evaluator) Eval(expr string) (uint64, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return 0, fmt.Errorf("%w: empty expression", analysis.ErrBadUsage)
	}
	if v, err := strconv.ParseUint(expr, 0, 64); err == nil {
		return v, nil
	}

	env := e.environment()
	if e.regs != nil {
		regs, err := e.regs()
		if err == nil {
			env = copyDict(env)
			for name, v := range regs {
				env[name] = starlark.MakeUint64(v)
			}
		}
	}

	src := reRegister.ReplaceAllString(expr, "$1")
	thread := &starlark.Thread{Name: "eval"}
	val, err := starlark.Eval(thread, "<expr>", src, env)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", analysis.ErrBadUsage, expr, err)
	}
	n, ok := val.(starlark.Int)
	if !ok {
		return 0, fmt.Errorf("%w: %s is a %s, not an address", analysis.ErrBadUsage, expr, val.Type())
	}
	v, ok := n.Uint64()
	if !ok {
		return 0, fmt.Errorf("%w: %s out of range", analysis.ErrBadUsage, n)
	}
	return v, nil
}

func (e *Evaluator) environment() starlark.StringDict {
	e.once.Do(func() {
		e.env = starlark.StringDict{}
		if e.symbols == nil {
			return
		}
		for _, name := range e.symbols.Names() {
			if addr, ok := e.symbols.Lookup(name); ok {
				e.env[name] = starlark.MakeUint64(addr)
			}
		}
	})
	return e.env
}

func copyDict(d starlark.StringDict) starlark.StringDict {
	out := make(starlark.StringDict, len(d)+8)
	for k, v := range d {
		out[k] = v
	}
	return out
}
