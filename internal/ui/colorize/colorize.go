// Package colorize highlights disassembly listings for the terminal.
package colorize

import (
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// Disabled reports whether POINTERS_NO_COLOR turns highlighting off.
func Disabled() bool {
	return os.Getenv("POINTERS_NO_COLOR") != ""
}

// assemblyLexer returns the lexer for the listing syntax: GNU as for x86 and
// the arm64 decoder's GNU output, with fallbacks.
func assemblyLexer(arm bool) chroma.Lexer {
	candidates := []string{"gas", "GAS", "nasm"}
	if arm {
		candidates = []string{"armasm", "gas", "GAS"}
	}
	for _, name := range candidates {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

func listingStyle() *chroma.Style {
	for _, name := range []string{ListingDark.Name, "dracula", "monokai"} {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

func terminalFormatter() chroma.Formatter {
	for _, name := range []string{"terminal16m", "terminal256"} {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// Assembly highlights a block of assembly text. The input is returned
// unchanged when highlighting is disabled or no lexer is available.
func Assembly(code string, arm bool) (string, error) {
	if Disabled() {
		return code, nil
	}
	lexer := assemblyLexer(arm)
	if lexer == nil {
		return code, nil
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code, err
	}
	var buf strings.Builder
	if err := terminalFormatter().Format(&buf, listingStyle(), iterator); err != nil {
		return code, err
	}
	return buf.String(), nil
}

// Line highlights one "0xaddr:\tinstruction" listing line, keeping the
// address in a muted color.
func Line(line string, arm bool) string {
	if Disabled() {
		return line
	}
	addr, inst, ok := strings.Cut(line, ":\t")
	if !ok || !strings.HasPrefix(addr, "0x") {
		out, err := Assembly(line, arm)
		if err != nil {
			return line
		}
		return strings.TrimSuffix(out, "\n")
	}
	out, err := Assembly(inst, arm)
	if err != nil {
		return line
	}
	return "\033[38;2;79;79;79m" + addr + ":\033[0m\t" + strings.TrimSuffix(out, "\n")
}

// StripANSI removes ANSI escape sequences.
func StripANSI(s string) string {
	var b strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
