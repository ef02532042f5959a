package elfx

import (
	"debug/elf"
)

// pltLayout describes where the first lazy-binding stub starts and how far
// apart consecutive stubs are.
type pltLayout struct {
	header, stride uint64
}

func (im *Image) layout() (pltLayout, bool) {
	switch im.File.Machine {
	case elf.EM_X86_64, elf.EM_386:
		return pltLayout{header: 16, stride: 16}, true
	case elf.EM_AARCH64:
		return pltLayout{header: 32, stride: 16}, true
	}
	return pltLayout{}, false
}

type pltReloc struct {
	GOT    uint64
	SymIdx uint32
}

// loadPLTSymbols names the procedure linkage stubs after the functions they
// call, the way debuggers print them: "puts@plt".
func (im *Image) loadPLTSymbols() {
	if im.File == nil {
		return
	}
	lay, ok := im.layout()
	if !ok {
		return
	}
	relocs := im.pltRelocations()
	if len(relocs) == 0 {
		return
	}
	dynsyms, err := im.File.DynamicSymbols()
	if err != nil {
		return
	}

	// IBT binaries keep the real stubs in .plt.sec without a header.
	stubs := im.PLT
	if s := im.File.Section(".plt.sec"); s != nil && s.Size > 0 {
		stubs = Section{s.Name, s.Addr, s.Offset, s.Size}
		lay.header = 0
	}
	if stubs.Size == 0 {
		return
	}

	for i, rel := range relocs {
		// Symbols are 1-indexed in relocations; DynamicSymbols drops entry 0.
		if rel.SymIdx == 0 || int(rel.SymIdx) > len(dynsyms) {
			continue
		}
		name := dynsyms[rel.SymIdx-1].Name
		if name == "" {
			continue
		}
		addr := stubs.VA + lay.header + uint64(i)*lay.stride
		if addr+lay.stride > stubs.VA+stubs.Size {
			break
		}
		im.Syms = append(im.Syms, Sym{
			Name:  name + "@plt",
			Addr:  addr,
			Size:  lay.stride,
			Func:  true,
			IsPLT: true,
		})
	}
}

// pltRelocations decodes .rela.plt or .rel.plt in either ELF class.
func (im *Image) pltRelocations() []pltReloc {
	rela := true
	section := im.File.Section(".rela.plt")
	if section == nil {
		rela = false
		if section = im.File.Section(".rel.plt"); section == nil {
			return nil
		}
	}
	data, err := section.Data()
	if err != nil {
		return nil
	}

	bo := im.File.ByteOrder
	is64 := im.File.Class == elf.ELFCLASS64

	var entrySize int
	switch {
	case is64 && rela:
		entrySize = 24 // r_offset, r_info, r_addend
	case is64:
		entrySize = 16
	case rela:
		entrySize = 12
	default:
		entrySize = 8
	}

	out := make([]pltReloc, 0, len(data)/entrySize)
	for off := 0; off+entrySize <= len(data); off += entrySize {
		e := data[off:]
		if is64 {
			info := bo.Uint64(e[8:])
			out = append(out, pltReloc{GOT: bo.Uint64(e), SymIdx: uint32(info >> 32)})
			continue
		}
		info := bo.Uint32(e[4:])
		out = append(out, pltReloc{GOT: uint64(bo.Uint32(e)), SymIdx: info >> 8})
	}
	return out
}
