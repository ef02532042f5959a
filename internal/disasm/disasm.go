// Package disasm defines a common instruction representation used
// across architecture-specific disassemblers, and walks a memory range
// producing gdb-like instruction text.
package disasm

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"

	"pointers/internal/arch"
)

// MaxRange caps how many bytes a single Disassemble call will read.
const MaxRange = 256 << 20

// readChunk is the size of each memory read while loading a range.
const readChunk = 64 << 10

// ErrRangeTooLarge is returned when a range exceeds MaxRange.
var ErrRangeTooLarge = errors.New("disassembly range too large")

// Inst is a simplified decoded instruction.
type Inst struct {
	VA    uint64 // virtual address of instruction
	Text  string // formatted disassembly string
	Op    string // mnemonic in lowercase
	Bytes []byte // raw encoding
}

// Stream is a linear sequence of instructions.
type Stream []Inst

// Reader reads target memory.
type Reader interface {
	ReadMemory(addr uint64, n int) ([]byte, error)
}

// Disassembler decodes target memory with the decoder of one architecture.
type Disassembler struct {
	arch arch.Architecture
	mem  Reader
}

func New(a arch.Architecture, mem Reader) *Disassembler {
	return &Disassembler{arch: a, mem: mem}
}

// Disassemble decodes [start, end). Bytes that do not decode are emitted as
// "(bad)" instructions so the stream always covers the whole range.
func (d *Disassembler) Disassemble(start, end uint64) (Stream, error) {
	if end <= start {
		return nil, fmt.Errorf("empty range %#x-%#x", start, end)
	}
	if end-start > MaxRange {
		return nil, fmt.Errorf("%w: %#x-%#x", ErrRangeTooLarge, start, end)
	}

	buf := make([]byte, 0, end-start)
	for va := start; va < end; {
		n := readChunk
		if rem := end - va; rem < uint64(n) {
			n = int(rem)
		}
		data, err := d.mem.ReadMemory(va, n)
		if err != nil {
			return nil, fmt.Errorf("read code at %#x: %w", va, err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("read code at %#x: no data", va)
		}
		buf = append(buf, data...)
		va += uint64(len(data))
	}

	var s Stream
	switch d.arch.Decoder {
	case arch.DecoderARM64:
		s = decodeARM64(buf, start)
	default:
		s = decodeX86(buf, start, d.arch.Mode)
	}
	slog.Debug("Disassembled range", "start", fmt.Sprintf("%#x", start), "end", fmt.Sprintf("%#x", end), "insts", len(s))
	return s, nil
}

func noSymbols(uint64) (string, uint64) { return "", 0 }

func decodeX86(buf []byte, start uint64, mode int) Stream {
	var s Stream
	for off := 0; off < len(buf); {
		pc := start + uint64(off)
		inst, err := x86asm.Decode(buf[off:], mode)
		if err != nil || inst.Len == 0 {
			s = append(s, badInst(pc, buf[off:off+1]))
			off++
			continue
		}

		text := x86asm.GNUSyntax(inst, pc, noSymbols)
		// gdb annotates RIP-relative operands with the absolute target.
		for _, a := range inst.Args {
			if m, ok := a.(x86asm.Mem); ok && m.Base == x86asm.RIP {
				target := pc + uint64(inst.Len) + uint64(m.Disp)
				text += fmt.Sprintf("        # %#x", target)
			}
		}

		s = append(s, Inst{
			VA:    pc,
			Text:  text,
			Op:    strings.ToLower(inst.Op.String()),
			Bytes: buf[off : off+inst.Len],
		})
		off += inst.Len
	}
	return s
}

func decodeARM64(buf []byte, start uint64) Stream {
	var s Stream
	off := 0
	for ; off+4 <= len(buf); off += 4 {
		pc := start + uint64(off)
		inst, err := arm64asm.Decode(buf[off : off+4])
		if err != nil {
			s = append(s, badInst(pc, buf[off:off+4]))
			continue
		}

		text := arm64asm.GNUSyntax(inst)
		for _, a := range inst.Args {
			if a == nil {
				break
			}
			rel, ok := a.(arm64asm.PCRel)
			if !ok {
				continue
			}
			target := uint64(int64(pc) + int64(rel))
			if inst.Op == arm64asm.ADRP {
				target = uint64(int64(pc&^0xfff) + int64(rel))
			}
			text = replaceFirst(text, rePCRel, fmt.Sprintf("%#x", target))
		}

		s = append(s, Inst{
			VA:    pc,
			Text:  text,
			Op:    strings.ToLower(inst.Op.String()),
			Bytes: buf[off : off+4],
		})
	}
	if off < len(buf) {
		s = append(s, badInst(start+uint64(off), buf[off:]))
	}
	return s
}

// rePCRel matches the ".+0x10" operand form arm64asm prints for PC-relative
// arguments.
var rePCRel = regexp.MustCompile(`\.[+-]?0x[0-9a-fA-F]+`)

// replaceFirst replaces the first match of re in s with repl.
func replaceFirst(s string, re *regexp.Regexp, repl string) string {
	loc := re.FindStringIndex(s)
	if loc == nil {
		return s
	}
	return s[:loc[0]] + repl + s[loc[1]:]
}

func badInst(pc uint64, raw []byte) Inst {
	return Inst{VA: pc, Text: "(bad)", Op: "(bad)", Bytes: raw}
}

// String formats the instruction the way gdb's disassemble command does.
func (i Inst) String() string {
	return fmt.Sprintf("%#x:\t%s", i.VA, i.Text)
}
