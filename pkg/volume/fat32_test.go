package volume

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e2b-dev/infra/packages/disk-image/pkg/block"
	"github.com/e2b-dev/infra/packages/disk-image/pkg/region"
)

func newRegion(t *testing.T, d *block.Memory, start, length int64) *region.Region {
	t.Helper()

	r, err := region.New(block.NewStream(d), start, length)
	require.NoError(t, err)

	t.Cleanup(func() { r.Close() })

	return r
}

func TestFAT32_FormatMountWriteRead(t *testing.T) {
	const (
		start  = 34 * 512
		length = 4 << 20
	)

	d := block.NewMemory(8 << 20)
	fs := NewFAT32("DATA")

	require.NoError(t, fs.Format(newRegion(t, d, start, length)))

	// Nothing outside of the region was written.
	for lba := range d.Written().Marked() {
		require.GreaterOrEqual(t, block.Offset(lba), int64(start))
		require.Less(t, block.Offset(lba), int64(start+length))
	}

	h, err := fs.Mount(newRegion(t, d, start, length))
	require.NoError(t, err)
	assert.Equal(t, "DATA", h.Label())

	require.NoError(t, WriteFile(h, "HELLO.TXT", []byte("Hello from Oxide!\n")))
	require.NoError(t, h.Mkdir("logs"))
	require.NoError(t, WriteFile(h, "logs/boot.log", []byte("ok\n")))

	// A fresh mount sees the files.
	h, err = fs.Mount(newRegion(t, d, start, length))
	require.NoError(t, err)

	data, err := ReadFile(h, "HELLO.TXT")
	require.NoError(t, err)
	assert.Equal(t, []byte("Hello from Oxide!\n"), data)

	data, err = ReadFile(h, "/logs/boot.log")
	require.NoError(t, err)
	assert.Equal(t, []byte("ok\n"), data)

	entries, err := h.ReadDir("/")
	require.NoError(t, err)

	var found []string
	for _, e := range entries {
		found = append(found, e.Name())
	}
	assert.Contains(t, found, "HELLO.TXT")
	assert.Contains(t, found, "logs")

	_, err = h.OpenFile("missing.txt")
	require.Error(t, err)
}

func TestFAT32_MultiClusterFile(t *testing.T) {
	d := block.NewMemory(4 << 20)
	fs := NewFAT32("BIG")

	r := newRegion(t, d, 0, d.Size())
	require.NoError(t, fs.Format(r))

	h, err := fs.Mount(r)
	require.NoError(t, err)

	content := make([]byte, 100_000)
	for i := range content {
		content[i] = byte(i % 251)
	}

	require.NoError(t, WriteFile(h, "blob.bin", content))

	data, err := ReadFile(h, "blob.bin")
	require.NoError(t, err)
	assert.Equal(t, content, data)

	// Rewriting truncates.
	require.NoError(t, WriteFile(h, "blob.bin", []byte("short")))

	data, err = ReadFile(h, "blob.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte("short"), data)
}

func TestFAT32_TooSmall(t *testing.T) {
	d := block.NewMemory(1 << 20)
	fs := NewFAT32("DATA")

	r := newRegion(t, d, 0, FAT32MinSize-block.SectorSize)

	var tooSmall VolumeTooSmallError

	err := fs.Format(r)
	require.ErrorAs(t, err, &tooSmall)
	assert.Equal(t, FAT32MinSize, tooSmall.MinSize)
	assert.Equal(t, FAT32MinSize-block.SectorSize, tooSmall.Size)
	assert.Equal(t, uint64(0), d.Written().Count())

	_, err = fs.Mount(r)
	require.ErrorAs(t, err, &tooSmall)
}

func TestFAT32_AtMinimumSize(t *testing.T) {
	d := block.NewMemory(1 << 20)
	fs := NewFAT32("MIN")

	r := newRegion(t, d, 0, FAT32MinSize)
	require.NoError(t, fs.Format(r))

	h, err := fs.Mount(r)
	require.NoError(t, err)

	require.NoError(t, WriteFile(h, "a.txt", []byte("a")))

	data, err := ReadFile(h, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), data)
}

func TestFAT32_MountUnformatted(t *testing.T) {
	d := block.NewMemory(1 << 20)

	_, err := NewFAT32("DATA").Mount(newRegion(t, d, 0, d.Size()))
	require.Error(t, err)
}

var errMedium = errors.New("medium error")

// brokenDevice fails every write with errMedium.
type brokenDevice struct {
	Device
}

func (b brokenDevice) WriteAt([]byte, int64) (int, error) {
	return 0, errMedium
}

func TestFAT32_PropagatesDeviceErrors(t *testing.T) {
	d := block.NewMemory(1 << 20)

	err := NewFAT32("DATA").Format(brokenDevice{Device: newRegion(t, d, 0, d.Size())})
	require.ErrorIs(t, err, errMedium)
}
