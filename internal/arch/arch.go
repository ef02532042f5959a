// Package arch describes the target architectures pointers can scan: how wide a
// pointer is, which byte order memory uses, and which decoder reads its code.
package arch

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"strings"
)

// Decoder selects the instruction decoder for an architecture.
type Decoder int

const (
	DecoderX86 Decoder = iota
	DecoderARM64
)

// Architecture defines the architecture-specific details of a target.
type Architecture struct {
	Name string
	// PointerSize is the size of a pointer, in bytes.
	PointerSize int
	// ByteOrder is the byte order for ints and pointers.
	ByteOrder binary.ByteOrder
	Decoder   Decoder
	// Mode is the x86 decoder mode (16, 32 or 64). Unused for other decoders.
	Mode int
	// PCNames and SPNames are the register spellings accepted in expressions.
	PCNames []string
	SPNames []string
}

var AMD64 = Architecture{
	Name:        "amd64",
	PointerSize: 8,
	ByteOrder:   binary.LittleEndian,
	Decoder:     DecoderX86,
	Mode:        64,
	PCNames:     []string{"pc", "rip"},
	SPNames:     []string{"sp", "rsp"},
}

var X86 = Architecture{
	Name:        "386",
	PointerSize: 4,
	ByteOrder:   binary.LittleEndian,
	Decoder:     DecoderX86,
	Mode:        32,
	PCNames:     []string{"pc", "eip"},
	SPNames:     []string{"sp", "esp"},
}

var ARM64 = Architecture{
	Name:        "arm64",
	PointerSize: 8,
	ByteOrder:   binary.LittleEndian,
	Decoder:     DecoderARM64,
	PCNames:     []string{"pc"},
	SPNames:     []string{"sp"},
}

// FromELF derives the architecture of an ELF file from its header. The pointer
// width follows the ELF class and the byte order follows the data encoding, so a
// big-endian arm64 image gets a big-endian layout.
func FromELF(f *elf.File) (Architecture, error) {
	var a Architecture
	switch f.Machine {
	case elf.EM_X86_64:
		a = AMD64
	case elf.EM_386:
		a = X86
	case elf.EM_AARCH64:
		a = ARM64
	default:
		return Architecture{}, fmt.Errorf("unsupported machine %v", f.Machine)
	}

	switch f.Class {
	case elf.ELFCLASS64:
		a.PointerSize = 8
	case elf.ELFCLASS32:
		a.PointerSize = 4
	default:
		return Architecture{}, fmt.Errorf("unknown ELF class %v", f.Class)
	}

	switch f.Data {
	case elf.ELFDATA2LSB:
		a.ByteOrder = binary.LittleEndian
	case elf.ELFDATA2MSB:
		a.ByteOrder = binary.BigEndian
	default:
		return Architecture{}, fmt.Errorf("unknown ELF data encoding %v", f.Data)
	}
	return a, nil
}

// ParseByteOrder accepts "little"/"le" and "big"/"be".
func ParseByteOrder(s string) (binary.ByteOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "little", "le", "little-endian":
		return binary.LittleEndian, nil
	case "big", "be", "big-endian":
		return binary.BigEndian, nil
	}
	return nil, fmt.Errorf("unknown byte order %q", s)
}

// Override returns a copy of a with the pointer width and byte order replaced
// when they are set. A zero width or empty order keeps the derived value.
func (a Architecture) Override(width int, order string) (Architecture, error) {
	if width != 0 {
		if width != 4 && width != 8 {
			return a, fmt.Errorf("pointer width must be 4 or 8, got %d", width)
		}
		a.PointerSize = width
	}
	if order != "" {
		bo, err := ParseByteOrder(order)
		if err != nil {
			return a, err
		}
		a.ByteOrder = bo
	}
	return a, nil
}

// Uintptr decodes a pointer stored in buf.
func (a Architecture) Uintptr(buf []byte) uint64 {
	if len(buf) != a.PointerSize {
		panic("bad PointerSize")
	}
	switch a.PointerSize {
	case 4:
		return uint64(a.ByteOrder.Uint32(buf[:4]))
	case 8:
		return a.ByteOrder.Uint64(buf[:8])
	}
	panic("no PointerSize")
}

func (a Architecture) String() string {
	return fmt.Sprintf("%s/%d-bit/%s", a.Name, a.PointerSize*8, a.ByteOrder)
}
