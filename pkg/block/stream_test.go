package block

import (
	"bytes"
	"io"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStream_UnalignedWriteReadsModifiesWrites(t *testing.T) {
	d := NewMemory(8 * SectorSize)
	require.NoError(t, d.WriteSector(1, sectorOf(0xff)))
	d.Written().Reset()

	s := NewStream(d)

	data := []byte("hello across a sector boundary")
	off := 2*SectorSize - 5

	n, err := s.WriteAt(data, off)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	// Only the two touched sectors were rewritten.
	assert.Equal(t, []uint64{1, 2}, slices.Collect(d.Written().Marked()))

	raw := d.Bytes()
	assert.Equal(t, data, raw[off:off+int64(len(data))])
	// The rest of sector 1 kept its previous content.
	assert.Equal(t, bytes.Repeat([]byte{0xff}, int(SectorSize-5)), raw[SectorSize:2*SectorSize-5])

	out := make([]byte, len(data))
	n, err = s.ReadAt(out, off)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, out)
}

func TestStream_AlignedWriteSkipsRead(t *testing.T) {
	d := NewMemory(8 * SectorSize)
	s := NewStream(d)

	data := bytes.Repeat([]byte{0x5a}, int(3*SectorSize))
	n, err := s.WriteAt(data, SectorSize)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	assert.Equal(t, []uint64{1, 2, 3}, slices.Collect(d.Written().Marked()))
}

func TestStream_EndOfDevice(t *testing.T) {
	d := NewMemory(4 * SectorSize)
	s := NewStream(d)

	out := make([]byte, 100)
	n, err := s.ReadAt(out, 4*SectorSize-40)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 40, n)

	n, err = s.ReadAt(out, 4*SectorSize)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 0, n)

	n, err = s.WriteAt(make([]byte, 100), 4*SectorSize-40)
	var rangeErr OutOfRangeError
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, 40, n)

	_, err = s.WriteAt([]byte{1}, -1)
	assert.ErrorIs(t, err, errNegativeOffset)
}

func TestStream_Seek(t *testing.T) {
	d := NewMemory(4 * SectorSize)
	s := NewStream(d)

	pos, err := s.Seek(10, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(10), pos)

	n, err := s.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	pos, err = s.Seek(-3, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(10), pos)

	out := make([]byte, 3)
	_, err = io.ReadFull(s, out)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), out)

	pos, err = s.Seek(-1, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, 4*SectorSize-1, pos)

	_, err = s.Seek(-1, io.SeekStart)
	assert.ErrorIs(t, err, errNegativeOffset)

	_, err = s.Seek(0, 42)
	assert.Error(t, err)
}
