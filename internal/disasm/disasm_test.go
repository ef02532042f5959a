package disasm

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"pointers/internal/arch"
)

type memBytes struct {
	base uint64
	data []byte
}

func (m memBytes) ReadMemory(addr uint64, n int) ([]byte, error) {
	if addr < m.base || addr+uint64(n) > m.base+uint64(len(m.data)) {
		return nil, errors.New("fault")
	}
	off := addr - m.base
	return m.data[off : off+uint64(n)], nil
}

func TestDisassembleX86(t *testing.T) {
	code := []byte{
		0x48, 0xc7, 0xc0, 0x34, 0x12, 0x00, 0x00, // mov $0x1234, %rax
		0x8b, 0x05, 0x10, 0x00, 0x00, 0x00, // mov 0x10(%rip), %eax
		0xe8, 0x00, 0x00, 0x00, 0x00, // call next
		0xc3, // ret
	}
	base := uint64(0x401000)
	d := New(arch.AMD64, memBytes{base: base, data: code})

	s, err := d.Disassemble(base, base+uint64(len(code)))
	if err != nil {
		t.Fatalf("Disassemble failed: %v", err)
	}
	if len(s) != 4 {
		t.Fatalf("got %d instructions, want 4: %v", len(s), s)
	}

	if !strings.Contains(s[0].Text, "$0x1234") {
		t.Errorf("immediate not in GNU syntax: %q", s[0].Text)
	}

	ripTarget := fmt.Sprintf("# %#x", base+7+6+0x10)
	if !strings.Contains(s[1].Text, ripTarget) {
		t.Errorf("RIP-relative target missing: %q, want %q", s[1].Text, ripTarget)
	}

	callTarget := fmt.Sprintf("%#x", base+7+6+5)
	if !strings.Contains(s[2].Text, callTarget) {
		t.Errorf("call target missing: %q, want %q", s[2].Text, callTarget)
	}

	if s[3].Op != "ret" {
		t.Errorf("last op = %q, want ret", s[3].Op)
	}
	if s[3].VA != base+18 {
		t.Errorf("last VA = %#x, want %#x", s[3].VA, base+18)
	}
}

func TestDisassembleErrors(t *testing.T) {
	d := New(arch.AMD64, memBytes{base: 0x1000, data: make([]byte, 16)})

	if _, err := d.Disassemble(0x1000, 0x1000); err == nil {
		t.Error("expected error for empty range")
	}
	if _, err := d.Disassemble(0x2000, 0x2010); err == nil {
		t.Error("expected error for unreadable range")
	}
	if _, err := d.Disassemble(0, MaxRange+1); !errors.Is(err, ErrRangeTooLarge) {
		t.Errorf("expected ErrRangeTooLarge, got %v", err)
	}
}

func TestDisassembleARM64(t *testing.T) {
	code := []byte{
		0xc0, 0x03, 0x5f, 0xd6, // ret
		0x00, 0x00, // trailing half word
	}
	d := New(arch.ARM64, memBytes{base: 0x10000, data: code})

	s, err := d.Disassemble(0x10000, 0x10000+uint64(len(code)))
	if err != nil {
		t.Fatalf("Disassemble failed: %v", err)
	}
	if len(s) != 2 {
		t.Fatalf("got %d instructions, want 2", len(s))
	}
	if s[0].Op != "ret" {
		t.Errorf("first op = %q, want ret", s[0].Op)
	}
	if s[1].Text != "(bad)" || len(s[1].Bytes) != 2 {
		t.Errorf("trailing bytes not marked bad: %q %x", s[1].Text, s[1].Bytes)
	}
}

func TestDisassembleARM64PCRelative(t *testing.T) {
	code := []byte{
		0x00, 0x04, 0x00, 0x94, // bl .+0x1000
		0x10, 0x00, 0x00, 0x14, // b .+0x40
		0x00, 0x00, 0x00, 0x90, // adrp x0, .+0x0
	}
	base := uint64(0x400000)
	d := New(arch.ARM64, memBytes{base: base, data: code})

	s, err := d.Disassemble(base, base+uint64(len(code)))
	if err != nil {
		t.Fatalf("Disassemble failed: %v", err)
	}
	if len(s) != 3 {
		t.Fatalf("got %d instructions, want 3: %v", len(s), s)
	}

	tests := []struct {
		op     string
		target string
	}{
		{"bl", "0x401000"},
		{"b", "0x400044"},
		{"adrp", "0x400000"},
	}
	for i, tt := range tests {
		text := s[i].Text
		if s[i].Op != tt.op {
			t.Errorf("op %d = %q, want %q", i, s[i].Op, tt.op)
		}
		if !strings.Contains(text, tt.target) {
			t.Errorf("%q lacks absolute target %s", text, tt.target)
		}
		if strings.Contains(text, ".+") || strings.Contains(text, "//") {
			t.Errorf("%q still carries the relative operand", text)
		}
	}
}
