// Package analysis finds pointer candidates in disassembled code, resolves
// them to symbols and follows them one level through memory.
package analysis

// Constants for analysis operations
const (
	// NotFound marks a symbol, section or module the resolver could not name.
	NotFound = "not-found"

	// NoSymbolMatch prefixes a resolver answer for an unmapped address.
	NoSymbolMatch = "No symbol matches"

	// MaxValueSize is the largest value, in bytes, the content filter compares.
	MaxValueSize = 8
)
