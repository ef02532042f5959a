package analysis

import (
	"regexp"
	"sort"
	"strconv"

	"pointers/internal/disasm"
)

var reHex = regexp.MustCompile(`0[xX][0-9a-fA-F]+`)

// AddressSet is a set of candidate addresses.
type AddressSet map[uint64]struct{}

func (s AddressSet) Add(addr uint64) {
	s[addr] = struct{}{}
}

func (s AddressSet) Has(addr uint64) bool {
	_, ok := s[addr]
	return ok
}

// Sorted returns the members in ascending order.
func (s AddressSet) Sorted() []uint64 {
	out := make([]uint64, 0, len(s))
	for a := range s {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PatternScanner extracts hex literals that may be addresses from
// instruction text.
type PatternScanner struct{}

// Scan returns the distinct candidates found across all instructions.
func (PatternScanner) Scan(insts disasm.Stream) AddressSet {
	set := make(AddressSet)
	for _, inst := range insts {
		for _, addr := range ScanText(inst.Text) {
			set.Add(addr)
		}
	}
	return set
}

// ScanText returns the candidates in one instruction's text, in order of
// appearance. A literal counts when it is not preceded by '$', '-' or ':'
// and is followed by a comma, whitespace or the end of the text.
func ScanText(text string) []uint64 {
	var out []uint64
	for _, loc := range reHex.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if start > 0 {
			switch text[start-1] {
			case '$', '-', ':':
				continue
			}
		}
		if end < len(text) && !isTerminator(text[end]) {
			continue
		}
		v, err := strconv.ParseUint(text[start+2:end], 16, 64)
		if err != nil {
			// wider than 64 bits
			continue
		}
		out = append(out, v)
	}
	return out
}

func isTerminator(c byte) bool {
	switch c {
	case ',', ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
