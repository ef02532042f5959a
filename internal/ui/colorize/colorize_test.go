package colorize

import (
	"strings"
	"testing"
)

func TestLineDisabled(t *testing.T) {
	t.Setenv("POINTERS_NO_COLOR", "1")
	line := "0x401000:\tmov 0x601000, %rdi"
	if got := Line(line, false); got != line {
		t.Errorf("Line() = %q with color disabled", got)
	}
}

func TestLineKeepsText(t *testing.T) {
	t.Setenv("POINTERS_NO_COLOR", "")
	tests := []struct {
		line string
		arm  bool
	}{
		{"0x401000:\tmov 0x601000, %rdi", false},
		{"0x401005:\tcall 0x401136", false},
		{"0x400000:\tldr x0, [x1]\t// 0x410000", true},
		{"garbage without address", false},
	}
	for _, tt := range tests {
		got := StripANSI(Line(tt.line, tt.arm))
		if strings.TrimSpace(got) != tt.line {
			t.Errorf("StripANSI(Line(%q)) = %q", tt.line, got)
		}
	}
}

func TestStripANSI(t *testing.T) {
	if got := StripANSI("\x1b[38;2;79;79;79m0x10\x1b[0m"); got != "0x10" {
		t.Errorf("StripANSI = %q", got)
	}
}
