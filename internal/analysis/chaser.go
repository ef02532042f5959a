package analysis

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"pointers/internal/arch"
)

// MemoryReader reads target memory. Faulting reads return an error, usually
// wrapping ErrUnreadableMemory.
type MemoryReader interface {
	ReadMemory(addr uint64, n int) ([]byte, error)
}

// PointerChaser follows a resolved address one level through memory.
type PointerChaser struct {
	mem      MemoryReader
	resolver *AddressResolver
}

func NewPointerChaser(mem MemoryReader, resolver *AddressResolver) *PointerChaser {
	return &PointerChaser{mem: mem, resolver: resolver}
}

// Chase reads the pointer stored at rec.Address and, when that pointer itself
// dereferences, returns its resolved record. A nil record with a nil error
// means there is no chain: rec has no symbol, or one of the two reads faulted.
// The link is returned whether or not it names a symbol.
func (c *PointerChaser) Chase(rec AddressRecord, a arch.Architecture) (*AddressRecord, error) {
	if !rec.Named() {
		return nil, nil
	}
	width := a.PointerSize
	if width != 4 && width != 8 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedWidth, width)
	}

	buf, ok := c.read(rec.Address, width)
	if !ok {
		return nil, nil
	}
	target := a.Uintptr(buf)

	if _, ok := c.read(target, width); !ok {
		return nil, nil
	}

	link, err := c.resolver.Resolve(target)
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// read treats every failure, including short reads, as a fault.
func (c *PointerChaser) read(addr uint64, n int) ([]byte, bool) {
	buf, err := c.mem.ReadMemory(addr, n)
	if err != nil {
		slog.Debug("Read faulted", "addr", fmt.Sprintf("%#x", addr), "len", n, "error", err)
		return nil, false
	}
	if len(buf) < n {
		slog.Debug("Short read", "addr", fmt.Sprintf("%#x", addr), "len", n, "got", len(buf))
		return nil, false
	}
	return buf[:n], true
}

// decodeUint decodes up to eight bytes as an unsigned integer in order.
func decodeUint(b []byte, order binary.ByteOrder) uint64 {
	var tmp [8]byte
	if isLittle(order) {
		copy(tmp[:], b)
	} else {
		copy(tmp[8-len(b):], b)
	}
	return order.Uint64(tmp[:])
}

// lowOrder decodes the size low-order bytes of the word in b.
func lowOrder(b []byte, size int, order binary.ByteOrder) uint64 {
	if isLittle(order) {
		return decodeUint(b[:size], order)
	}
	return decodeUint(b[len(b)-size:], order)
}

func isLittle(order binary.ByteOrder) bool {
	var probe [2]byte
	order.PutUint16(probe[:], 1)
	return probe[0] == 1
}
