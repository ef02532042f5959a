// Package elfx provides helpers for opening ELF binaries, locating sections and
// symbols by address, and mapping virtual addresses to file offsets.
package elfx

import (
	"debug/elf"
	"fmt"
	"os"
	"sort"
	"strings"
	"syscall"
)

type Image struct {
	Path     string
	File     *elf.File
	All      []byte
	Loads    []Seg
	Sections []Section
	Text     Section
	PLT      Section
	Syms     []Sym
	f        *os.File
}

type Seg struct {
	Vaddr, Off, Filesz, Memsz uint64
	Flags                     elf.ProgFlag
}

type Section struct {
	Name          string
	VA, Off, Size uint64
}

type Sym struct {
	Name  string
	Addr  uint64
	Size  uint64
	Func  bool
	IsPLT bool
}

func Open(path string) (*Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open elf: %w", err)
	}

	of, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open file: %w", err)
	}

	fi, err := of.Stat()
	if err != nil {
		of.Close()
		f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}

	var all []byte
	if fi.Size() > 0 {
		all, err = syscall.Mmap(int(of.Fd()), 0, int(fi.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
		if err != nil {
			of.Close()
			f.Close()
			return nil, fmt.Errorf("mmap file: %w", err)
		}
	}

	im := &Image{Path: path, File: f, All: all, f: of}
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		im.Loads = append(im.Loads, Seg{
			Vaddr:  p.Vaddr,
			Off:    p.Off,
			Filesz: p.Filesz,
			Memsz:  p.Memsz,
			Flags:  p.Flags,
		})
	}

	for _, s := range f.Sections {
		if s.Flags&elf.SHF_ALLOC == 0 || s.Addr == 0 || s.Size == 0 {
			continue
		}
		sec := Section{s.Name, s.Addr, s.Offset, s.Size}
		im.Sections = append(im.Sections, sec)
		switch s.Name {
		case ".text":
			im.Text = sec
		case ".plt":
			im.PLT = sec
		}
	}
	sort.Slice(im.Sections, func(i, j int) bool { return im.Sections[i].VA < im.Sections[j].VA })

	// Static symbols first; dynamic symbols fill in stripped binaries.
	im.loadSymbols(f.Symbols)
	im.loadSymbols(f.DynamicSymbols)
	im.loadPLTSymbols()
	im.sortSymbols()

	// Fallback if stripped of section headers.
	if im.Text.Size == 0 {
		for _, l := range im.Loads {
			if l.Flags&elf.PF_X != 0 && l.Filesz > 0 {
				im.Text = Section{"LOAD(exec)", l.Vaddr, l.Off, l.Filesz}
				break
			}
		}
	}
	return im, nil
}

// Close unmaps the memory and closes the underlying files.
func (im *Image) Close() error {
	var err1, err2 error
	if im.All != nil {
		err1 = syscall.Munmap(im.All)
		im.All = nil
	}
	if im.f != nil {
		err2 = im.f.Close()
		im.f = nil
	}
	if im.File != nil {
		err3 := im.File.Close()
		if err3 != nil && err2 == nil {
			err2 = err3
		}
		im.File = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

// Entry returns the entry point address.
func (im *Image) Entry() uint64 {
	if im.File == nil {
		return 0
	}
	return im.File.Entry
}

// VA2Off translates a virtual address into a file offset
// using PT_LOAD segments. It returns false if VA is unmapped.
func (im *Image) VA2Off(va uint64) (uint64, bool) {
	for _, l := range im.Loads {
		if va >= l.Vaddr && va < l.Vaddr+l.Filesz {
			return l.Off + (va - l.Vaddr), true
		}
	}
	return 0, false
}

// Off2VA translates a file offset into the virtual address it is loaded at.
func (im *Image) Off2VA(off uint64) (uint64, bool) {
	for _, l := range im.Loads {
		if off >= l.Off && off < l.Off+l.Filesz {
			return l.Vaddr + (off - l.Off), true
		}
	}
	return 0, false
}

// SliceVA returns a subslice of the mapped file corresponding to the virtual address range [va, va+size).
// It returns (nil, false) if the VA is unmapped or the range is out of bounds.
func (im *Image) SliceVA(va uint64, size uint64) ([]byte, bool) {
	off, ok := im.VA2Off(va)
	if !ok {
		return nil, false
	}
	if size == 0 {
		return []byte{}, true
	}
	end := off + size
	if end < off || end > uint64(len(im.All)) {
		return nil, false
	}
	// The range must not run past the segment it starts in.
	for _, l := range im.Loads {
		if va >= l.Vaddr && va < l.Vaddr+l.Filesz {
			if va+size > l.Vaddr+l.Filesz {
				return nil, false
			}
			break
		}
	}
	return im.All[off:end], true
}

// ReadBytesVA reads exactly size bytes from a virtual address.
// Returns false if VA is unmapped or size extends beyond file bounds.
func (im *Image) ReadBytesVA(va uint64, size int) ([]byte, bool) {
	if size <= 0 {
		return []byte{}, true
	}
	return im.SliceVA(va, uint64(size))
}

// SectionAt returns the allocated section containing va.
func (im *Image) SectionAt(va uint64) (Section, bool) {
	i := sort.Search(len(im.Sections), func(i int) bool {
		return va < im.Sections[i].VA
	})
	if i == 0 {
		return Section{}, false
	}
	s := im.Sections[i-1]
	if va >= s.VA+s.Size {
		return Section{}, false
	}
	return s, true
}

// SymbolAt returns the symbol containing va. Symbols without a size match
// only their exact address.
func (im *Image) SymbolAt(va uint64) (Sym, bool) {
	i := sort.Search(len(im.Syms), func(i int) bool {
		return va < im.Syms[i].Addr
	})
	for i--; i >= 0; i-- {
		s := im.Syms[i]
		if va == s.Addr || va < s.Addr+s.Size {
			return s, true
		}
		// Only look past zero-sized symbols sharing an address.
		if s.Size != 0 {
			break
		}
	}
	return Sym{}, false
}

// Symbols returns the symbol table sorted by address.
func (im *Image) Symbols() []Sym { return im.Syms }

func (im *Image) loadSymbols(read func() ([]elf.Symbol, error)) {
	syms, err := read()
	if err != nil {
		return // table not present or stripped
	}
	for _, sym := range syms {
		// Skip undefined and non-addressable symbols
		if sym.Value == 0 || sym.Name == "" || sym.Section == elf.SHN_UNDEF || sym.Section == elf.SHN_ABS {
			continue
		}
		typ := elf.ST_TYPE(sym.Info)
		if typ == elf.STT_SECTION || typ == elf.STT_FILE || typ == elf.STT_TLS {
			continue
		}
		name := sym.Name
		// Drop symbol versions such as memcpy@@GLIBC_2.14.
		if i := strings.Index(name, "@"); i > 0 {
			name = name[:i]
		}
		im.Syms = append(im.Syms, Sym{
			Name: name,
			Addr: sym.Value,
			Size: sym.Size,
			Func: typ == elf.STT_FUNC,
		})
	}
}

// sortSymbols orders by address and drops duplicates. When several symbols
// share an address the first loaded one wins, which prefers .symtab.
func (im *Image) sortSymbols() {
	sort.SliceStable(im.Syms, func(i, j int) bool { return im.Syms[i].Addr < im.Syms[j].Addr })
	out := im.Syms[:0]
	seen := make(map[uint64]bool)
	for _, s := range im.Syms {
		if seen[s.Addr] {
			continue
		}
		seen[s.Addr] = true
		out = append(out, s)
	}
	im.Syms = out
}
