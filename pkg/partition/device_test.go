package partition

import (
	"errors"
	"sync"

	"github.com/e2b-dev/infra/packages/disk-image/pkg/block"
)

// sparseDevice is an in-memory device that only stores written sectors, so
// tests can use devices far larger than the memory available.
type sparseDevice struct {
	mu      sync.Mutex
	size    int64
	sectors map[uint64][]byte
}

var _ block.Device = (*sparseDevice)(nil)

func newSparseDevice(size int64) *sparseDevice {
	return &sparseDevice{
		size:    size,
		sectors: make(map[uint64][]byte),
	}
}

func (d *sparseDevice) Size() int64 {
	return d.size
}

func (d *sparseDevice) check(lba uint64, p []byte) error {
	if int64(len(p)) != block.SectorSize {
		return block.InvalidBufferSizeError{Size: len(p)}
	}

	if lba >= block.Sectors(d) {
		return block.OutOfRangeError{LBA: lba, Sectors: block.Sectors(d)}
	}

	return nil
}

func (d *sparseDevice) ReadSector(lba uint64, p []byte) error {
	if err := d.check(lba, p); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sectors[lba]
	if !ok {
		clear(p)

		return nil
	}

	copy(p, s)

	return nil
}

func (d *sparseDevice) WriteSector(lba uint64, p []byte) error {
	if err := d.check(lba, p); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.sectors[lba] = append([]byte(nil), p...)

	return nil
}

func (d *sparseDevice) Close() error {
	return nil
}

var errInjected = errors.New("injected write failure")

// failingDevice fails every write at or after failFrom.
type failingDevice struct {
	*block.Memory

	failFrom uint64
}

func (d *failingDevice) WriteSector(lba uint64, p []byte) error {
	if lba >= d.failFrom {
		return errInjected
	}

	return d.Memory.WriteSector(lba, p)
}
