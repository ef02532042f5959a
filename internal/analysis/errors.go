package analysis

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreadableMemory is wrapped by memory readers when a read faults.
	ErrUnreadableMemory = errors.New("unreadable memory")

	// ErrMalformedResolverOutput reports a resolver answer of unknown shape.
	ErrMalformedResolverOutput = errors.New("unparseable resolver output")

	// ErrAmbiguousMemoryMap reports a program counter outside every mapping.
	ErrAmbiguousMemoryMap = errors.New("address not found on memory mapping")

	ErrInvalidRange     = errors.New("invalid scan range")
	ErrUnsupportedWidth = errors.New("unsupported pointer width")
	ErrBadUsage         = errors.New("bad usage")
)

// ResolverOutputError carries the answer that could not be parsed.
type ResolverOutputError struct {
	Address uint64
	Output  string
}

func (e *ResolverOutputError) Error() string {
	return fmt.Sprintf("%v for %#x: %q", ErrMalformedResolverOutput, e.Address, e.Output)
}

func (e *ResolverOutputError) Is(target error) bool {
	return target == ErrMalformedResolverOutput
}
