package analysis

import (
	"reflect"
	"testing"

	"pointers/internal/arch"
	"pointers/internal/disasm"
)

func TestScanText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []uint64
	}{
		{name: "immediate excluded", text: "mov $0x10, %rax", want: nil},
		{name: "negative offset excluded", text: "lea -0x20, %rbx", want: nil},
		{name: "segment qualified excluded", text: "mov %fs:0x30, %rax", want: nil},
		{name: "label qualified excluded", text: "jmp label:0x30", want: nil},
		{name: "absolute operand", text: "mov 0x40, %rax", want: []uint64{0x40}},
		{name: "end of text", text: "call 0x401136", want: []uint64{0x401136}},
		{name: "at start", text: "0x401000 nop", want: []uint64{0x401000}},
		{name: "indirect jump", text: "jmp *0x601040", want: []uint64{0x601040}},
		{name: "memory offset excluded", text: "mov 0x2edb(%rip), %eax", want: nil},
		{name: "rip target annotation", text: "mov 0x2edb(%rip), %eax        # 0x404018", want: []uint64{0x404018}},
		{name: "tab terminated", text: "movabs 0x1122334455667788\tx", want: []uint64{0x1122334455667788}},
		{name: "uppercase digits", text: "mov 0xDEADBEEF, %eax", want: []uint64{0xdeadbeef}},
		{name: "too wide", text: "mov 0x11223344556677889900, %rax", want: nil},
		{name: "several", text: "cmp 0x10, 0x20", want: []uint64{0x10, 0x20}},
		{name: "bad instruction", text: "(bad)", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScanText(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ScanText(%q) = %#x, want %#x", tt.text, got, tt.want)
			}
		})
	}
}

func TestScanDeduplicates(t *testing.T) {
	insts := disasm.Stream{
		{Text: "mov 0x1000, %rax"},
		{Text: "mov $0x10, %rbx"},
		{Text: "cmp 0x1000, %rax"},
		{Text: "call 0x1000"},
		{Text: "jmp 0x2000"},
	}

	var s PatternScanner
	first := s.Scan(insts)
	second := s.Scan(insts)

	if len(first) != 2 || !first.Has(0x1000) || !first.Has(0x2000) {
		t.Errorf("unexpected set %v", first.Sorted())
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("scans differ: %v vs %v", first.Sorted(), second.Sorted())
	}
	if first.Has(0x10) {
		t.Error("immediate leaked into the set")
	}
	if got := first.Sorted(); !reflect.DeepEqual(got, []uint64{0x1000, 0x2000}) {
		t.Errorf("Sorted() = %#x", got)
	}
}

func TestScanARM64Branches(t *testing.T) {
	code := []byte{
		0x00, 0x04, 0x00, 0x94, // bl .+0x1000
		0x10, 0x00, 0x00, 0x14, // b .+0x40
		0x00, 0x00, 0x00, 0x90, // adrp x0, .+0x0
	}
	d := disasm.New(arch.ARM64, fakeMemory{0x400000: code})
	insts, err := d.Disassemble(0x400000, 0x400000+uint64(len(code)))
	if err != nil {
		t.Fatal(err)
	}

	want := [][]uint64{{0x401000}, {0x400044}, {0x400000}}
	for i, inst := range insts {
		if got := ScanText(inst.Text); !reflect.DeepEqual(got, want[i]) {
			t.Errorf("ScanText(%q) = %#x, want %#x", inst.Text, got, want[i])
		}
	}
}
