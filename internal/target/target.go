package target

import (
	"errors"
	"fmt"

	"pointers/internal/analysis"
	"pointers/internal/arch"
)

// Target is a program whose memory, mappings and symbols can be inspected.
type Target interface {
	ReadMemory(addr uint64, n int) ([]byte, error)
	Mappings() ([]analysis.Segment, error)
	PC() (uint64, error)
	Registers() (map[string]uint64, error)
	Symbols() *Symbolizer
	Arch() arch.Architecture
	Close() error
}

// Options selects and configures a target. Exactly one of PID and Exe is set.
type Options struct {
	PID int
	Exe string

	// PointerWidth and Endian override what the ELF header says.
	PointerWidth int
	Endian       string

	// CacheSize bounds the symbolizer memo.
	CacheSize int
}

var ErrNoTarget = errors.New("exactly one of --pid and --exe is required")

// Open opens the target described by opts.
func Open(opts Options) (Target, error) {
	switch {
	case opts.PID != 0 && opts.Exe != "":
		return nil, ErrNoTarget
	case opts.PID != 0:
		return OpenProcess(opts.PID, opts)
	case opts.Exe != "":
		im, err := OpenImage(opts.Exe, opts)
		if err != nil {
			return nil, err
		}
		return im, nil
	}
	return nil, ErrNoTarget
}

// WithPC returns t with its program counter replaced by pc.
func WithPC(t Target, pc uint64) Target {
	return &pinnedPC{Target: t, pc: pc}
}

type pinnedPC struct {
	Target
	pc uint64
}

func (p *pinnedPC) PC() (uint64, error) { return p.pc, nil }

func (p *pinnedPC) Registers() (map[string]uint64, error) {
	regs, err := p.Target.Registers()
	if err != nil {
		regs = map[string]uint64{}
	}
	for _, name := range p.Arch().PCNames {
		regs[name] = p.pc
	}
	return regs, nil
}

// Session builds the analysis session for t.
func Session(t Target, disassembler analysis.Disassembler) *analysis.Session {
	return analysis.NewSession(analysis.Config{
		Disassembler: disassembler,
		Symbols:      t.Symbols(),
		Memory:       t,
		Maps:         t,
		Arch:         t.Arch(),
	})
}

func unreadable(addr uint64, n int) error {
	return fmt.Errorf("%w: %d bytes at %#x", analysis.ErrUnreadableMemory, n, addr)
}
