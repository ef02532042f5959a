package target

import (
	"bytes"
	"debug/elf"
	"fmt"
	"log/slog"

	"pointers/internal/analysis"
	"pointers/internal/arch"
	"pointers/internal/elfx"
)

// Image is an ELF file inspected at its link-time addresses. Memory is the
// file contents of its PT_LOAD segments and the program counter is the entry
// point.
type Image struct {
	path    string
	im      *elfx.Image
	arch    arch.Architecture
	symbols *Symbolizer
}

func OpenImage(path string, opts Options) (*Image, error) {
	im, err := elfx.Open(path)
	if err != nil {
		return nil, err
	}
	a, err := arch.FromELF(im.File)
	if err == nil {
		a, err = a.Override(opts.PointerWidth, opts.Endian)
	}
	if err != nil {
		im.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var mods []*Module
	for _, l := range im.Loads {
		mods = append(mods, NewModule(path, l.Vaddr, l.Vaddr+l.Memsz, im, 0))
	}
	symbols, err := NewSymbolizer(path, mods, opts.CacheSize)
	if err != nil {
		im.Close()
		return nil, err
	}

	slog.Debug("Opened image", "path", path, "arch", a.String(), "symbols", len(im.Syms), "entry", fmt.Sprintf("%#x", im.Entry()))
	return &Image{path: path, im: im, arch: a, symbols: symbols}, nil
}

func (t *Image) ReadMemory(addr uint64, n int) ([]byte, error) {
	b, ok := t.im.ReadBytesVA(addr, n)
	if !ok {
		return nil, unreadable(addr, n)
	}
	return bytes.Clone(b), nil
}

func (t *Image) Mappings() ([]analysis.Segment, error) {
	segs := make([]analysis.Segment, 0, len(t.im.Loads))
	for _, l := range t.im.Loads {
		segs = append(segs, analysis.Segment{
			ScanRange: analysis.ScanRange{Start: l.Vaddr, End: l.Vaddr + l.Memsz},
			Perms:     perms(l.Flags),
			Path:      t.path,
		})
	}
	return segs, nil
}

func (t *Image) PC() (uint64, error) { return t.im.Entry(), nil }

func (t *Image) Registers() (map[string]uint64, error) {
	regs := make(map[string]uint64)
	for _, name := range t.arch.PCNames {
		regs[name] = t.im.Entry()
	}
	return regs, nil
}

func (t *Image) Symbols() *Symbolizer { return t.symbols }

func (t *Image) Arch() arch.Architecture { return t.arch }

func (t *Image) Close() error { return t.im.Close() }

func perms(f elf.ProgFlag) string {
	b := []byte("---p")
	if f&elf.PF_R != 0 {
		b[0] = 'r'
	}
	if f&elf.PF_W != 0 {
		b[1] = 'w'
	}
	if f&elf.PF_X != 0 {
		b[2] = 'x'
	}
	return string(b)
}
