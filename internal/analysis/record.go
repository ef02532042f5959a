package analysis

import (
	"fmt"
	"sort"
)

// AddressRecord describes where an address lives.
type AddressRecord struct {
	Address uint64
	Symbol  string
	Section string
	Module  string
	// Chain is the record of the address stored at Address, set only when
	// Symbol is known and the stored value dereferences.
	Chain *AddressRecord
}

// unresolved returns a record for an address with no mapping at all.
func unresolved(addr uint64) AddressRecord {
	return AddressRecord{Address: addr, Symbol: NotFound, Section: NotFound, Module: NotFound}
}

// Hex returns the canonical textual form of the address.
func (r AddressRecord) Hex() string {
	return fmt.Sprintf("%#x", r.Address)
}

// Resolved reports whether the address lies in a known section.
func (r AddressRecord) Resolved() bool {
	return r.Section != NotFound
}

// Named reports whether the address resolved to a symbol.
func (r AddressRecord) Named() bool {
	return r.Symbol != NotFound
}

// WithoutChain returns a copy of r with the chain link dropped.
func (r AddressRecord) WithoutChain() AddressRecord {
	r.Chain = nil
	return r
}

// clone deep copies the chain so cached records cannot be mutated through it.
func (r AddressRecord) clone() AddressRecord {
	if r.Chain != nil {
		c := r.Chain.clone()
		r.Chain = &c
	}
	return r
}

func (r AddressRecord) String() string {
	switch {
	case !r.Resolved():
		return r.Hex()
	case !r.Named():
		return fmt.Sprintf("%s in section %s of %s", r.Hex(), r.Section, r.Module)
	case r.Chain != nil:
		return fmt.Sprintf("%s <%s> -> %s", r.Hex(), r.Symbol, r.Chain)
	default:
		return fmt.Sprintf("%s <%s>", r.Hex(), r.Symbol)
	}
}

func sortRecords(recs []AddressRecord) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].Address < recs[j].Address })
}

// ScanRange is a half-open address range [Start, End).
type ScanRange struct {
	Start, End uint64
}

func (r ScanRange) Validate() error {
	if r.Start >= r.End {
		return fmt.Errorf("%w: start %#x is not below end %#x", ErrInvalidRange, r.Start, r.End)
	}
	return nil
}

func (r ScanRange) Contains(addr uint64) bool {
	return addr >= r.Start && addr < r.End
}

func (r ScanRange) String() string {
	return fmt.Sprintf("%#x-%#x", r.Start, r.End)
}

// Segment is one mapping reported by the memory-map inspector.
type Segment struct {
	ScanRange
	Perms string
	Path  string
}

// FindSegment returns the range of the mapping containing pc.
func FindSegment(segs []Segment, pc uint64) (ScanRange, error) {
	for _, s := range segs {
		if s.Contains(pc) {
			return s.ScanRange, nil
		}
	}
	return ScanRange{}, fmt.Errorf("%w: pc %#x", ErrAmbiguousMemoryMap, pc)
}
