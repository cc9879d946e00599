package block

import "sync"

// Memory is a Device kept in a byte slice. Every written sector is marked,
// which lets tests assert exactly which sectors a layer touched.
type Memory struct {
	data    []byte
	written *Marker
	mu      sync.RWMutex
}

var _ Device = (*Memory)(nil)

// NewMemory creates a zeroed device. The size is rounded down to whole sectors.
func NewMemory(size int64) *Memory {
	size = alignDown(size)

	return &Memory{
		data:    make([]byte, size),
		written: NewMarker(uint64(size / SectorSize)),
	}
}

func (m *Memory) Size() int64 {
	return int64(len(m.data))
}

func (m *Memory) ReadSector(lba uint64, p []byte) error {
	err := checkSector(uint64(len(m.data))/uint64(SectorSize), lba, p)
	if err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	off := Offset(lba)
	copy(p, m.data[off:off+SectorSize])

	return nil
}

func (m *Memory) WriteSector(lba uint64, p []byte) error {
	err := checkSector(uint64(len(m.data))/uint64(SectorSize), lba, p)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	off := Offset(lba)
	copy(m.data[off:off+SectorSize], p)
	m.written.Mark(lba)

	return nil
}

// Written returns the marker of sectors written since creation or the last Reset.
func (m *Memory) Written() *Marker {
	return m.written
}

// Bytes exposes the raw content. It must not be modified while the device is in use.
func (m *Memory) Bytes() []byte {
	return m.data
}

func (m *Memory) Close() error {
	return nil
}
