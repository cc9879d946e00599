package block

import (
	"iter"
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// Marker records which sectors of a device have been touched.
type Marker struct {
	bitset *bitset.BitSet
	mu     sync.RWMutex
}

func NewMarker(sectors uint64) *Marker {
	return &Marker{
		bitset: bitset.New(uint(sectors)),
	}
}

func (m *Marker) Mark(lba uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.bitset.Set(uint(lba))
}

func (m *Marker) IsMarked(lba uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.bitset.Test(uint(lba))
}

func (m *Marker) Count() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return uint64(m.bitset.Count())
}

// Marked yields the marked sectors in ascending order.
func (m *Marker) Marked() iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		for i, ok := m.bitset.NextSet(0); ok; i, ok = m.bitset.NextSet(i + 1) {
			if !yield(uint64(i)) {
				return
			}
		}
	}
}

func (m *Marker) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.bitset.ClearAll()
}
