package analysis

import (
	"fmt"
	"strings"
)

// SymbolResolver answers "info symbol" queries in gdb's format:
//
//	No symbol matches 0x500000.
//	main + 16 in section .text of /usr/bin/a.out
//	0x404010 in section .bss of /usr/bin/a.out
//	main in section .text
type SymbolResolver interface {
	InfoSymbol(addr uint64) (string, error)
}

// DefaultModuler is implemented by resolvers that can name the module gdb
// leaves out for the main object file.
type DefaultModuler interface {
	DefaultModule() string
}

// AddressResolver turns addresses into AddressRecords.
type AddressResolver struct {
	symbols SymbolResolver
}

func NewAddressResolver(symbols SymbolResolver) *AddressResolver {
	return &AddressResolver{symbols: symbols}
}

// Resolve never fails for an unmapped address; it returns a NotFound record.
// Only transport errors and answers of unknown shape are returned as errors.
func (r *AddressResolver) Resolve(addr uint64) (AddressRecord, error) {
	out, err := r.symbols.InfoSymbol(addr)
	if err != nil {
		return AddressRecord{}, fmt.Errorf("info symbol %#x: %w", addr, err)
	}
	rec, err := parseInfoSymbol(addr, out)
	if err != nil {
		return AddressRecord{}, err
	}
	if rec.Resolved() && rec.Module == NotFound {
		if dm, ok := r.symbols.(DefaultModuler); ok && dm.DefaultModule() != "" {
			rec.Module = dm.DefaultModule()
		}
	}
	return rec, nil
}

func parseInfoSymbol(addr uint64, out string) (AddressRecord, error) {
	out = strings.TrimSpace(out)
	if strings.HasPrefix(out, NoSymbolMatch) {
		return unresolved(addr), nil
	}
	malformed := &ResolverOutputError{Address: addr, Output: out}

	tokens := strings.Fields(out)
	in := -1
	for i, tok := range tokens {
		if tok == "in" {
			in = i
			break
		}
	}
	if in < 1 {
		return AddressRecord{}, malformed
	}

	// section <name> [of <module>]
	loc := tokens[in+1:]
	if len(loc) < 2 || loc[0] != "section" {
		return AddressRecord{}, malformed
	}
	rec := AddressRecord{Address: addr, Section: loc[1], Module: NotFound}
	if len(loc) > 2 {
		if loc[2] != "of" || len(loc) < 4 {
			return AddressRecord{}, malformed
		}
		rec.Module = strings.Join(loc[3:], " ")
	}

	if in == 1 && strings.HasPrefix(tokens[0], "0x") {
		rec.Symbol = NotFound
	} else {
		rec.Symbol = strings.Join(tokens[:in], " ")
	}
	return rec, nil
}
