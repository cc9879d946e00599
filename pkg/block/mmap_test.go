package block

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMmap_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")

	d, err := OpenMmap(path, WithCapacity(4<<20))
	require.NoError(t, err)

	assert.Equal(t, int64(4<<20), d.Size())

	in := sectorOf(0xab)
	require.NoError(t, d.WriteSector(42, in))

	out := make([]byte, SectorSize)
	require.NoError(t, d.ReadSector(42, out))
	assert.Equal(t, in, out)

	require.NoError(t, d.Close())

	// The mapped writes must be visible through the plain file device.
	f, err := OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.ReadSector(42, out))
	assert.Equal(t, in, out)
}

func TestMmap_Preconditions(t *testing.T) {
	d, err := OpenMmap(filepath.Join(t.TempDir(), "disk.img"))
	require.NoError(t, err)
	defer d.Close()

	var sizeErr InvalidBufferSizeError
	require.ErrorAs(t, d.WriteSector(0, make([]byte, 10)), &sizeErr)

	var rangeErr OutOfRangeError
	require.ErrorAs(t, d.ReadSector(Sectors(d), make([]byte, SectorSize)), &rangeErr)
}
