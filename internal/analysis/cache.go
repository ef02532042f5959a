package analysis

import (
	"log/slog"
	"sync"
)

// ScanCache memoizes the candidate records of a range for one session.
// Keys match exactly; overlapping ranges are cached independently and
// entries are never evicted or invalidated.
type ScanCache struct {
	mu      sync.Mutex
	entries map[ScanRange][]AddressRecord
}

func NewScanCache() *ScanCache {
	return &ScanCache{entries: make(map[ScanRange][]AddressRecord)}
}

// GetOrCompute returns the cached records for r, running compute on the first
// request. Failed computations are not stored. Callers get their own copy.
func (c *ScanCache) GetOrCompute(r ScanRange, compute func() ([]AddressRecord, error)) ([]AddressRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if recs, ok := c.entries[r]; ok {
		slog.Debug("Scan cache hit", "range", r.String(), "records", len(recs))
		return copyRecords(recs), nil
	}

	recs, err := compute()
	if err != nil {
		return nil, err
	}
	stored := copyRecords(recs)
	c.entries[r] = stored
	return copyRecords(stored), nil
}

// Len returns the number of cached ranges.
func (c *ScanCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func copyRecords(recs []AddressRecord) []AddressRecord {
	if recs == nil {
		return nil
	}
	out := make([]AddressRecord, len(recs))
	for i, r := range recs {
		out[i] = r.clone()
	}
	return out
}
