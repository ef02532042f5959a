package analysis

import (
	"sort"
	"sync"

	"github.com/ianlancetaylor/demangle"
)

// demangled remembers demangled names; shared libraries repeat the same
// mangled names and a session resolves them again on every scan.
var demangled = struct {
	sync.Mutex
	names map[string]string
	hits  map[string]int
}{
	names: make(map[string]string),
	hits:  make(map[string]int),
}

// CachedDemangle demangles a C++ or Rust symbol name, returning the name
// unchanged when it is not mangled.
func CachedDemangle(mangled string) string {
	demangled.Lock()
	if name, ok := demangled.names[mangled]; ok {
		demangled.hits[mangled]++
		demangled.Unlock()
		return name
	}
	demangled.Unlock()

	name := demangle.Filter(mangled, demangle.NoClones)

	demangled.Lock()
	demangled.names[mangled] = name
	demangled.Unlock()
	return name
}

// DemangleCacheStats returns the number of cached names, the total hits and
// up to five of the most requested names.
func DemangleCacheStats() (total int, hits int, top []string) {
	demangled.Lock()
	defer demangled.Unlock()

	type symbolHit struct {
		name  string
		count int
	}
	var syms []symbolHit
	for name, count := range demangled.hits {
		hits += count
		syms = append(syms, symbolHit{name, count})
	}
	sort.Slice(syms, func(i, j int) bool {
		if syms[i].count != syms[j].count {
			return syms[i].count > syms[j].count
		}
		return syms[i].name < syms[j].name
	})
	for i := 0; i < 5 && i < len(syms); i++ {
		top = append(top, syms[i].name)
	}
	return len(demangled.names), hits, top
}
