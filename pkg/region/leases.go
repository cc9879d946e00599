package region

import (
	"fmt"
	"sync"
)

// OverlapError is returned when a region is requested over bytes that are
// already leased to another live region of the same backing stream.
type OverlapError struct {
	Start, Length         int64
	LiveStart, LiveLength int64
}

func (e OverlapError) Error() string {
	return fmt.Sprintf("region [%d, +%d) overlaps live region [%d, +%d)", e.Start, e.Length, e.LiveStart, e.LiveLength)
}

type lease struct {
	id     uint64
	start  int64
	length int64
}

func (l lease) overlaps(start, length int64) bool {
	if l.length == 0 || length == 0 {
		return false
	}

	return start < l.start+l.length && l.start < start+length
}

// Leases hands out regions of a single backing stream and keeps live regions
// from overlapping. A region's lease ends when the region is closed.
type Leases struct {
	backing Backing

	mu     sync.Mutex
	live   []lease
	nextID uint64
}

func NewLeases(b Backing) *Leases {
	return &Leases{backing: b}
}

// Acquire returns a region over [start, start+length) or OverlapError when a
// live region shares any byte with it.
func (l *Leases) Acquire(start, length int64) (*Region, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, live := range l.live {
		if live.overlaps(start, length) {
			return nil, OverlapError{
				Start:      start,
				Length:     length,
				LiveStart:  live.start,
				LiveLength: live.length,
			}
		}
	}

	r, err := New(l.backing, start, length)
	if err != nil {
		return nil, err
	}

	l.nextID++
	id := l.nextID

	l.live = append(l.live, lease{id: id, start: start, length: length})
	r.release = func() { l.release(id) }

	return r, nil
}

func (l *Leases) release(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, live := range l.live {
		if live.id == id {
			l.live = append(l.live[:i], l.live[i+1:]...)

			return
		}
	}
}

// Live returns the number of regions that have not been closed yet.
func (l *Leases) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.live)
}

// With runs fn with a region over [start, start+length) and closes the region
// when fn returns.
func (l *Leases) With(start, length int64, fn func(r *Region) error) (err error) {
	r, err := l.Acquire(start, length)
	if err != nil {
		return err
	}

	defer func() {
		closeErr := r.Close()
		if closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close region: %w", closeErr)
		}
	}()

	return fn(r)
}
