// Package partition writes and reads the GUID partition table that carves a
// block device into a single named data partition.
package partition

import (
	"fmt"
	"math"

	"github.com/e2b-dev/infra/packages/disk-image/pkg/block"
)

const (
	// HeadReservedSectors covers the protective MBR, the primary GPT header
	// and the 32 sectors of the primary entry array.
	HeadReservedSectors uint64 = 34
	// TailReservedSectors covers the backup entry array and the backup header.
	TailReservedSectors uint64 = 33

	DefaultSafetyMargin uint64 = 2048
	DefaultFloorSectors uint64 = 1024

	entryArraySectors uint64 = 32
)

// Layout is the sizing policy for the data partition.
type Layout struct {
	// SafetyMargin is the number of sectors left unallocated in addition to
	// the reserved head and tail.
	SafetyMargin uint64
	// Floor is the minimum size of the data partition in sectors.
	Floor uint64
}

func DefaultLayout() Layout {
	return Layout{
		SafetyMargin: DefaultSafetyMargin,
		Floor:        DefaultFloorSectors,
	}
}

// MinSectors is the smallest device the layout can be built on. It saturates
// at math.MaxUint64 for floors no device can hold.
func (l Layout) MinSectors() uint64 {
	return saturatingAdd(HeadReservedSectors+TailReservedSectors, l.Floor)
}

// Usable returns max(Floor, sectors-head-tail-margin), subtracting without
// wrapping below zero.
func (l Layout) Usable(sectors uint64) uint64 {
	reserved := saturatingAdd(HeadReservedSectors+TailReservedSectors, l.SafetyMargin)

	var computed uint64
	if sectors > reserved {
		computed = sectors - reserved
	}

	return max(l.Floor, computed)
}

// Plan computes the data partition extent for a device of the given number of
// sectors. Devices that cannot hold the reserved regions plus the floor fail
// with InsufficientCapacityError, so the extent never describes space past
// the last usable sector.
func Plan(sectors uint64, l Layout) (Extent, error) {
	if l.Floor == 0 {
		return Extent{}, fmt.Errorf("layout floor must be at least one sector")
	}

	if sectors < l.MinSectors() {
		return Extent{}, InsufficientCapacityError{
			Sectors:  sectors,
			Required: l.MinSectors(),
		}
	}

	usable := l.Usable(sectors)

	// sectors >= MinSectors, so the data area between the reserved regions
	// cannot underflow.
	if usable > sectors-HeadReservedSectors-TailReservedSectors {
		return Extent{}, InsufficientCapacityError{
			Sectors:  sectors,
			Required: l.MinSectors(),
		}
	}

	return Extent{
		FirstLBA: HeadReservedSectors,
		LastLBA:  HeadReservedSectors + usable - 1,
	}, nil
}

func saturatingAdd(a, b uint64) uint64 {
	if b > math.MaxUint64-a {
		return math.MaxUint64
	}

	return a + b
}

// PlanDevice is Plan for the sector count of d.
func PlanDevice(d block.Device, l Layout) (Extent, error) {
	return Plan(block.Sectors(d), l)
}
