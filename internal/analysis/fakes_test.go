package analysis

import (
	"fmt"

	"pointers/internal/disasm"
)

// fakeSymbols answers from a fixed table; unknown addresses get no match.
type fakeSymbols struct {
	answers map[uint64]string
	calls   int
}

func (f *fakeSymbols) InfoSymbol(addr uint64) (string, error) {
	f.calls++
	if out, ok := f.answers[addr]; ok {
		return out, nil
	}
	return fmt.Sprintf("%s %#x.", NoSymbolMatch, addr), nil
}

// fakeMemory maps region start addresses to their contents.
type fakeMemory map[uint64][]byte

func (m fakeMemory) ReadMemory(addr uint64, n int) ([]byte, error) {
	for base, data := range m {
		if addr >= base && addr+uint64(n) <= base+uint64(len(data)) {
			off := addr - base
			return data[off : off+uint64(n)], nil
		}
	}
	return nil, fmt.Errorf("%w: %#x", ErrUnreadableMemory, addr)
}

// fakeDisasm returns the same instruction texts for any range.
type fakeDisasm struct {
	texts []string
	calls int
}

func (f *fakeDisasm) Disassemble(start, end uint64) (disasm.Stream, error) {
	f.calls++
	s := make(disasm.Stream, 0, len(f.texts))
	for i, text := range f.texts {
		s = append(s, disasm.Inst{VA: start + uint64(i), Text: text})
	}
	return s, nil
}

type fakeMaps struct {
	segs []Segment
	pc   uint64
}

func (f fakeMaps) Mappings() ([]Segment, error) { return f.segs, nil }
func (f fakeMaps) PC() (uint64, error)          { return f.pc, nil }

func le64(v uint64) []byte {
	b := make([]byte, 8)
	for i := range b {
		b[i] = byte(v >> (8 * i))
	}
	return b
}
