package analysis

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"pointers/internal/arch"
	"pointers/internal/disasm"
)

// Disassembler yields the instructions of [start, end) in address order.
type Disassembler interface {
	Disassemble(start, end uint64) (disasm.Stream, error)
}

// MemoryMap reports the mappings of the target and its current program counter.
type MemoryMap interface {
	Mappings() ([]Segment, error)
	PC() (uint64, error)
}

// Config wires a Session to its collaborators.
type Config struct {
	Disassembler Disassembler
	Symbols      SymbolResolver
	Memory       MemoryReader
	Maps         MemoryMap
	Arch         arch.Architecture
	// Cache is created when nil.
	Cache *ScanCache
}

// Session owns the scan cache of one debugging session and runs the show and
// find-pointers-to operations against a target.
type Session struct {
	dis      Disassembler
	mem      MemoryReader
	maps     MemoryMap
	arch     arch.Architecture
	cache    *ScanCache
	scanner  PatternScanner
	resolver *AddressResolver
	chaser   *PointerChaser
}

func NewSession(cfg Config) *Session {
	cache := cfg.Cache
	if cache == nil {
		cache = NewScanCache()
	}
	resolver := NewAddressResolver(cfg.Symbols)
	return &Session{
		dis:      cfg.Disassembler,
		mem:      cfg.Memory,
		maps:     cfg.Maps,
		arch:     cfg.Arch,
		cache:    cache,
		resolver: resolver,
		chaser:   NewPointerChaser(cfg.Memory, resolver),
	}
}

func (s *Session) Arch() arch.Architecture { return s.arch }

func (s *Session) Cache() *ScanCache { return s.cache }

// DefaultRange returns the mapping containing the current program counter.
func (s *Session) DefaultRange() (ScanRange, error) {
	pc, err := s.maps.PC()
	if err != nil {
		return ScanRange{}, fmt.Errorf("current pc: %w", err)
	}
	segs, err := s.maps.Mappings()
	if err != nil {
		return ScanRange{}, fmt.Errorf("memory mappings: %w", err)
	}
	return FindSegment(segs, pc)
}

// Candidates returns the resolved, chased candidates of r, computing them at
// most once per session.
func (s *Session) Candidates(r ScanRange) ([]AddressRecord, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return s.cache.GetOrCompute(r, func() ([]AddressRecord, error) {
		return s.scan(r)
	})
}

func (s *Session) scan(r ScanRange) ([]AddressRecord, error) {
	insts, err := s.dis.Disassemble(r.Start, r.End)
	if err != nil {
		return nil, err
	}
	set := s.scanner.Scan(insts)

	recs := make([]AddressRecord, 0, len(set))
	for _, addr := range set.Sorted() {
		rec, err := s.resolver.Resolve(addr)
		if err != nil {
			return nil, err
		}
		link, err := s.chaser.Chase(rec, s.arch)
		if err != nil {
			return nil, err
		}
		rec.Chain = link
		recs = append(recs, rec)
	}
	slog.Debug("Scanned range", "range", r.String(), "insts", len(insts), "candidates", len(recs))
	return recs, nil
}

// Show returns every candidate of r.
func (s *Session) Show(r ScanRange) ([]AddressRecord, error) {
	return s.Candidates(r)
}

// FindPointersTo returns the named candidates of r whose memory holds v.
// The match is on the raw content at the candidate address: the v.Size
// low-order bytes of the value stored there, in the target byte order. On
// big-endian targets a value narrower than a pointer is compared against the
// tail of the pointer-sized word. The stored value need not dereference.
// Records are returned without their chain link.
func (s *Session) FindPointersTo(v PointerValue, r ScanRange) ([]AddressRecord, error) {
	recs, err := s.Candidates(r)
	if err != nil {
		return nil, err
	}

	var out []AddressRecord
	for _, rec := range recs {
		if !rec.Named() {
			continue
		}
		n := v.Size
		if !isLittle(s.arch.ByteOrder) && n < s.arch.PointerSize {
			n = s.arch.PointerSize
		}
		buf, err := s.mem.ReadMemory(rec.Address, n)
		if err != nil || len(buf) < n {
			continue
		}
		if lowOrder(buf[:n], v.Size, s.arch.ByteOrder) == v.Value {
			out = append(out, rec.WithoutChain())
		}
	}
	return out, nil
}

// Listing returns the instructions of r that carry at least one candidate.
func (s *Session) Listing(r ScanRange) (disasm.Stream, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	insts, err := s.dis.Disassemble(r.Start, r.End)
	if err != nil {
		return nil, err
	}
	var out disasm.Stream
	for _, inst := range insts {
		if len(ScanText(inst.Text)) > 0 {
			out = append(out, inst)
		}
	}
	return out, nil
}

// PointerValue is the target of a content match.
type PointerValue struct {
	Value uint64
	// Size is the number of bytes compared.
	Size int
}

// ParsePointerValue parses a canonical hex value. The number of hex digits
// decides how many bytes are compared: two digits per byte, rounded up.
func ParsePointerValue(s string) (PointerValue, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if digits == "" {
		return PointerValue{}, fmt.Errorf("%w: empty value %q", ErrBadUsage, s)
	}
	v, err := strconv.ParseUint(digits, 16, 64)
	if err != nil {
		return PointerValue{}, fmt.Errorf("%w: value %q: %v", ErrBadUsage, s, err)
	}
	size := (len(digits) + 1) / 2
	if size > MaxValueSize {
		return PointerValue{}, fmt.Errorf("%w: value %q wider than %d bytes", ErrBadUsage, s, MaxValueSize)
	}
	return PointerValue{Value: v, Size: size}, nil
}

func (v PointerValue) String() string {
	return fmt.Sprintf("%#0*x", v.Size*2+2, v.Value)
}
