// Package target opens the programs pointers inspects, either an ELF image on
// disk or a live process, and answers symbol and memory queries about them.
package target

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"pointers/internal/analysis"
	"pointers/internal/elfx"
)

// Table is the symbol information of one loaded object, in link-time
// addresses.
type Table interface {
	SectionAt(va uint64) (elfx.Section, bool)
	SymbolAt(va uint64) (elfx.Sym, bool)
	Symbols() []elfx.Sym
}

// Module is one object mapped into the target.
type Module struct {
	Path       string
	Start, End uint64

	once   sync.Once
	load   func() (Table, uint64, error)
	table  Table
	bias   uint64
	closer io.Closer
}

// NewModule returns a module whose table is already loaded. bias is the
// difference between runtime and link-time addresses.
func NewModule(path string, start, end uint64, table Table, bias uint64) *Module {
	m := &Module{Path: path, Start: start, End: end, table: table, bias: bias}
	m.once.Do(func() {})
	return m
}

// LazyModule returns a module whose table is loaded on first use.
func LazyModule(path string, start, end uint64, load func() (Table, uint64, error)) *Module {
	return &Module{Path: path, Start: start, End: end, load: load}
}

func (m *Module) resolve() (Table, uint64, bool) {
	m.once.Do(func() {
		t, bias, err := m.load()
		if err != nil {
			slog.Warn("Could not load module symbols", "path", m.Path, "error", err)
			return
		}
		m.table, m.bias = t, bias
		if c, ok := t.(io.Closer); ok {
			m.closer = c
		}
	})
	return m.table, m.bias, m.table != nil
}

// Symbolizer answers "info symbol" queries in the format debuggers print:
//
//	main + 16 in section .text
//	puts in section .text of /lib/x86_64-linux-gnu/libc.so.6
//	0x404010 in section .bss
//	No symbol matches 0x7ffe0000.
//
// The main module is printed without the "of <module>" suffix.
type Symbolizer struct {
	modules []*Module
	main    string
	memo    *lru.Cache[uint64, string]

	namesOnce sync.Once
	names     map[string]uint64
}

func NewSymbolizer(main string, modules []*Module, cacheSize int) (*Symbolizer, error) {
	if cacheSize <= 0 {
		cacheSize = 1
	}
	memo, err := lru.New[uint64, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("symbol cache: %w", err)
	}
	mods := append([]*Module(nil), modules...)
	sort.Slice(mods, func(i, j int) bool { return mods[i].Start < mods[j].Start })
	return &Symbolizer{modules: mods, main: main, memo: memo}, nil
}

func (s *Symbolizer) DefaultModule() string { return s.main }

func (s *Symbolizer) moduleAt(addr uint64) *Module {
	i := sort.Search(len(s.modules), func(i int) bool {
		return addr < s.modules[i].Start
	})
	if i == 0 {
		return nil
	}
	m := s.modules[i-1]
	if addr >= m.End {
		return nil
	}
	return m
}

func (s *Symbolizer) InfoSymbol(addr uint64) (string, error) {
	if out, ok := s.memo.Get(addr); ok {
		return out, nil
	}
	out := s.infoSymbol(addr)
	s.memo.Add(addr, out)
	return out, nil
}

func (s *Symbolizer) infoSymbol(addr uint64) string {
	noMatch := fmt.Sprintf("%s %#x.", analysis.NoSymbolMatch, addr)

	m := s.moduleAt(addr)
	if m == nil {
		return noMatch
	}
	table, bias, ok := m.resolve()
	if !ok {
		return noMatch
	}
	va := addr - bias
	sec, ok := table.SectionAt(va)
	if !ok {
		return noMatch
	}

	suffix := ""
	if m.Path != s.main {
		suffix = " of " + m.Path
	}

	sym, ok := table.SymbolAt(va)
	if !ok {
		return fmt.Sprintf("%#x in section %s%s", addr, sec.Name, suffix)
	}
	name := analysis.CachedDemangle(sym.Name)
	if off := va - sym.Addr; off != 0 {
		name = fmt.Sprintf("%s + %d", name, off)
	}
	return fmt.Sprintf("%s in section %s%s", name, sec.Name, suffix)
}

var reIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Lookup returns the runtime address of a symbol. The main module wins when
// several modules define the same name.
func (s *Symbolizer) Lookup(name string) (uint64, bool) {
	s.namesOnce.Do(s.buildNames)
	addr, ok := s.names[name]
	return addr, ok
}

// Names returns every symbol usable in an expression, sorted.
func (s *Symbolizer) Names() []string {
	s.namesOnce.Do(s.buildNames)
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (s *Symbolizer) buildNames() {
	s.names = make(map[string]uint64)
	add := func(m *Module) {
		table, bias, ok := m.resolve()
		if !ok {
			return
		}
		for _, sym := range table.Symbols() {
			if !reIdent.MatchString(sym.Name) {
				continue
			}
			if _, dup := s.names[sym.Name]; !dup {
				s.names[sym.Name] = sym.Addr + bias
			}
		}
	}
	for _, m := range s.modules {
		if m.Path == s.main {
			add(m)
		}
	}
	for _, m := range s.modules {
		if m.Path != s.main {
			add(m)
		}
	}
	slog.Debug("Indexed symbol names", "count", len(s.names))
}

// Close releases every table the symbolizer opened.
func (s *Symbolizer) Close() error {
	var first error
	for _, m := range s.modules {
		if m.closer == nil {
			continue
		}
		if err := m.closer.Close(); err != nil && first == nil {
			first = err
		}
		m.closer = nil
	}
	return first
}
