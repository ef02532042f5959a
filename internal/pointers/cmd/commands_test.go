package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"pointers/internal/analysis"
	"pointers/internal/arch"
	"pointers/internal/disasm"
	"pointers/internal/pointers/styles"
)

type fakeSymbols map[uint64]string

func (f fakeSymbols) InfoSymbol(addr uint64) (string, error) {
	if out, ok := f[addr]; ok {
		return out, nil
	}
	return fmt.Sprintf("%s %#x.", analysis.NoSymbolMatch, addr), nil
}

type fakeMemory map[uint64][]byte

func (m fakeMemory) ReadMemory(addr uint64, n int) ([]byte, error) {
	for base, data := range m {
		if addr >= base && addr+uint64(n) <= base+uint64(len(data)) {
			off := addr - base
			return data[off : off+uint64(n)], nil
		}
	}
	return nil, fmt.Errorf("%w: %#x", analysis.ErrUnreadableMemory, addr)
}

type fakeDisasm []string

func (f fakeDisasm) Disassemble(start, end uint64) (disasm.Stream, error) {
	s := make(disasm.Stream, 0, len(f))
	for i, text := range f {
		s = append(s, disasm.Inst{VA: start + uint64(i), Text: text})
	}
	return s, nil
}

type fakeMaps struct{}

func (fakeMaps) Mappings() ([]analysis.Segment, error) {
	return []analysis.Segment{{
		ScanRange: analysis.ScanRange{Start: 0x401000, End: 0x402000},
		Perms:     "r-xp",
		Path:      "/usr/bin/a.out",
	}}, nil
}

func (fakeMaps) PC() (uint64, error) { return 0x401010, nil }

// fakeEval knows a few names and otherwise parses numbers.
type fakeEval map[string]uint64

func (f fakeEval) Eval(expr string) (uint64, error) {
	if v, ok := f[expr]; ok {
		return v, nil
	}
	v, err := strconv.ParseUint(expr, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", analysis.ErrBadUsage, expr)
	}
	return v, nil
}

var testCode = fakeDisasm{
	"mov 0x400000, %rax",
	"mov $0x10, %rbx",
	"call 0x500000",
	"cmp 0x400000, %rcx",
}

func le64(v uint64) []byte {
	b := make([]byte, 8)
	for i := range b {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

func newTestApp(symbols fakeSymbols) (*app, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	s := analysis.NewSession(analysis.Config{
		Disassembler: testCode,
		Symbols:      symbols,
		Memory:       fakeMemory{0x400000: le64(0x400010)},
		Maps:         fakeMaps{},
		Arch:         arch.AMD64,
	})
	return &app{
		session: s,
		eval:    fakeEval{"main": 0x401000, "main_end": 0x402000},
		out:     &out,
		errOut:  &errOut,
		style:   styles.NewOutput(false),
		names:   func() []string { return []string{"main", "malloc", "printf"} },
	}, &out, &errOut
}

var mainSymbols = fakeSymbols{0x400000: "main in section .text of a.out"}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		args    []string
		want    command
		wantErr bool
	}{
		{args: []string{"show"}, want: showCommand{}},
		{args: []string{"pointers", "show"}, want: showCommand{}},
		{args: []string{"show", "main", "main+0x20"}, want: showCommand{rng: rangeArgs{"main", "main+0x20"}}},
		{args: []string{"to", "0x10"}, want: toCommand{value: "0x10"}},
		{args: []string{"to", "0x10", "a", "b"}, want: toCommand{value: "0x10", rng: rangeArgs{"a", "b"}}},
		{args: nil, wantErr: true},
		{args: []string{"pointers"}, wantErr: true},
		{args: []string{"show", "a"}, wantErr: true},
		{args: []string{"to"}, wantErr: true},
		{args: []string{"to", "a", "b"}, wantErr: true},
		{args: []string{"list"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			got, err := parseCommand(tt.args)
			if tt.wantErr {
				if !errors.Is(err, analysis.ErrBadUsage) {
					t.Fatalf("err = %v, want bad usage", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestTokenize(t *testing.T) {
	got, err := tokenize(`show "main" main+0x20`)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(got, ",") != "show,main,main+0x20" {
		t.Errorf("tokenize = %q", got)
	}
	if _, err := tokenize("show | less"); !errors.Is(err, analysis.ErrBadUsage) {
		t.Errorf("pipe: err = %v, want bad usage", err)
	}
}

func TestShow(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{
			name: "explicit range",
			line: "show 0x401000 0x402000",
			want: "2 pointers found on 0x401000-0x402000:\n0x400000 <main>\n0x500000\n",
		},
		{
			name: "symbol range",
			line: "pointers show main main_end",
			want: "2 pointers found on 0x401000-0x402000:\n0x400000 <main>\n0x500000\n",
		},
		{
			name: "mapping of pc",
			line: "show",
			want: "2 pointers found on 0x401000-0x402000:\n0x400000 <main>\n0x500000\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, out, _ := newTestApp(mainSymbols)
			if err := a.execute(tt.line); err != nil {
				t.Fatal(err)
			}
			if out.String() != tt.want {
				t.Errorf("output:\n%s\nwant:\n%s", out, tt.want)
			}
		})
	}
}

func TestShowListing(t *testing.T) {
	a, out, _ := newTestApp(mainSymbols)
	a.listing = true
	if err := a.execute("show 0x401000 0x402000"); err != nil {
		t.Fatal(err)
	}
	want := "2 pointers found on 0x401000-0x402000:\n" +
		"0x400000 <main>\n" +
		"0x500000\n" +
		"0x401000:\tmov 0x400000, %rax\n" +
		"0x401002:\tcall 0x500000\n" +
		"0x401003:\tcmp 0x400000, %rcx\n"
	if out.String() != want {
		t.Errorf("output:\n%s\nwant:\n%s", out, want)
	}
}

func TestTo(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{line: "to 0x400010 0x401000 0x402000", want: "0x400000 <main>\n"},
		{line: "to 0x400010", want: "0x400000 <main>\n"},
		{line: "to 0x400020 0x401000 0x402000", want: ""},
		// evaluated, compared at its natural width
		{line: "to 4194320", want: "0x400000 <main>\n"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			a, out, _ := newTestApp(mainSymbols)
			if err := a.execute(tt.line); err != nil {
				t.Fatal(err)
			}
			if out.String() != tt.want {
				t.Errorf("output = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestUsage(t *testing.T) {
	for _, line := range []string{"show 0x1", "to", "list", "show nope 0x2", "to zz"} {
		t.Run(line, func(t *testing.T) {
			a, out, errOut := newTestApp(mainSymbols)
			if err := a.execute(line); err != nil {
				t.Fatalf("err = %v, want nil", err)
			}
			if out.String() != usage+"\n" {
				t.Errorf("output = %q, want usage", out)
			}
			if errOut.Len() != 0 {
				t.Errorf("unexpected error output %q", errOut)
			}
		})
	}
}

func TestCommandFailure(t *testing.T) {
	a, out, errOut := newTestApp(fakeSymbols{0x400000: "garbage"})
	err := a.execute("show 0x401000 0x402000")
	if !errors.Is(err, analysis.ErrMalformedResolverOutput) {
		t.Fatalf("err = %v, want malformed resolver output", err)
	}
	if out.Len() != 0 {
		t.Errorf("partial output %q", out)
	}

	a.report(err)
	if !strings.HasPrefix(errOut.String(), "Command failed: ") {
		t.Errorf("report = %q", errOut)
	}
}

func TestInvalidRange(t *testing.T) {
	a, _, _ := newTestApp(mainSymbols)
	if err := a.execute("show 0x402000 0x401000"); !errors.Is(err, analysis.ErrInvalidRange) {
		t.Errorf("err = %v, want invalid range", err)
	}
}

func TestStyledRecordKeepsText(t *testing.T) {
	a, out, _ := newTestApp(mainSymbols)
	a.style = styles.NewOutput(true)
	if err := a.execute("show 0x401000 0x402000"); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"0x400000", "<main>", "0x500000"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("styled output %q lacks %q", out, want)
		}
	}
}
