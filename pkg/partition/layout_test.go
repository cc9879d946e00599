package partition

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlan(t *testing.T) {
	tests := []struct {
		name    string
		sectors uint64
		layout  Layout
		first   uint64
		last    uint64
		err     bool
	}{
		{
			name:    "64 MiB device",
			sectors: 64 << 20 / 512,
			layout:  DefaultLayout(),
			first:   34,
			last:    34 + (131072 - 34 - 33 - 2048) - 1,
		},
		{
			name:    "computed size below floor uses floor",
			sectors: 3000,
			layout:  DefaultLayout(),
			first:   34,
			last:    34 + 1024 - 1,
		},
		{
			name:    "exactly the minimum",
			sectors: 34 + 33 + 1024,
			layout:  DefaultLayout(),
			first:   34,
			last:    34 + 1024 - 1,
		},
		{
			name:    "one sector below the minimum",
			sectors: 34 + 33 + 1024 - 1,
			layout:  DefaultLayout(),
			err:     true,
		},
		{
			name:    "below the reserved regions",
			sectors: 34 + 33 - 1,
			layout:  DefaultLayout(),
			err:     true,
		},
		{
			name:    "empty device",
			sectors: 0,
			layout:  DefaultLayout(),
			err:     true,
		},
		{
			name:    "margin overflowing the reserved sum uses floor",
			sectors: 131072,
			layout:  Layout{SafetyMargin: math.MaxUint64 - 60, Floor: 1024},
			first:   34,
			last:    34 + 1024 - 1,
		},
		{
			name:    "maximum margin uses floor",
			sectors: 131072,
			layout:  Layout{SafetyMargin: math.MaxUint64, Floor: 1024},
			first:   34,
			last:    34 + 1024 - 1,
		},
		{
			name:    "floor overflowing the reserved sum",
			sectors: 131072,
			layout:  Layout{Floor: math.MaxUint64 - 10},
			err:     true,
		},
		{
			name:    "floor larger than any device",
			sectors: math.MaxUint64,
			layout:  Layout{Floor: math.MaxUint64},
			err:     true,
		},
		{
			name:    "no margin",
			sectors: 10_000,
			layout:  Layout{Floor: 1},
			first:   34,
			last:    10_000 - 33 - 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			extent, err := Plan(tt.sectors, tt.layout)
			if tt.err {
				var capErr InsufficientCapacityError
				require.ErrorAs(t, err, &capErr)
				assert.Equal(t, tt.sectors, capErr.Sectors)
				assert.Equal(t, tt.layout.MinSectors(), capErr.Required)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.first, extent.FirstLBA)
			assert.Equal(t, tt.last, extent.LastLBA)
			assert.Equal(t, tt.layout.Usable(tt.sectors), extent.Sectors())
			assert.LessOrEqual(t, extent.FirstLBA, extent.LastLBA)
			assert.Less(t, extent.LastLBA, tt.sectors-TailReservedSectors)
		})
	}
}

func TestPlan_ZeroFloor(t *testing.T) {
	_, err := Plan(1<<20, Layout{SafetyMargin: 10})
	require.Error(t, err)
}

func TestLayout_UsableSaturates(t *testing.T) {
	l := DefaultLayout()

	assert.Equal(t, DefaultFloorSectors, l.Usable(0))
	assert.Equal(t, DefaultFloorSectors, l.Usable(34+33+2048))
	assert.Equal(t, uint64(5000), l.Usable(34+33+2048+5000))

	huge := Layout{SafetyMargin: math.MaxUint64, Floor: math.MaxUint64}
	assert.Equal(t, uint64(math.MaxUint64), huge.MinSectors())
	assert.Equal(t, uint64(math.MaxUint64), huge.Usable(1<<30))
}
