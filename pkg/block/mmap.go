package block

import (
	"errors"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// Mmap is a Device backed by a memory mapped file.
type Mmap struct {
	file *os.File
	mmap mmap.MMap
	path string
	size int64
}

var (
	_ Device            = (*Mmap)(nil)
	_ MultiSectorWriter = (*Mmap)(nil)
)

func OpenMmap(path string, opts ...Option) (*Mmap, error) {
	o := newOptions(opts)

	f, size, err := openBacking(path, o)
	if err != nil {
		return nil, err
	}

	if size == 0 {
		return nil, errors.Join(fmt.Errorf("cannot map empty device file %s", path), f.Close())
	}

	prot := mmap.RDWR
	if o.readOnly {
		prot = mmap.RDONLY
	}

	mm, err := mmap.MapRegion(f, int(size), prot, 0, 0)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("error mapping file: %w", err), f.Close())
	}

	return &Mmap{
		file: f,
		mmap: mm,
		path: path,
		size: size,
	}, nil
}

func (m *Mmap) Path() string {
	return m.path
}

func (m *Mmap) Size() int64 {
	return m.size
}

func (m *Mmap) ReadSector(lba uint64, p []byte) error {
	err := checkSector(uint64(m.size/SectorSize), lba, p)
	if err != nil {
		return err
	}

	off := Offset(lba)
	copy(p, m.mmap[off:off+SectorSize])

	return nil
}

func (m *Mmap) WriteSector(lba uint64, p []byte) error {
	err := checkSector(uint64(m.size/SectorSize), lba, p)
	if err != nil {
		return err
	}

	off := Offset(lba)
	copy(m.mmap[off:off+SectorSize], p)

	err = m.mmap.Flush()
	if err != nil {
		return fmt.Errorf("failed to flush sector %d: %w", lba, err)
	}

	return nil
}

func (m *Mmap) WriteSectors(lba uint64, p []byte) error {
	err := checkSectors(uint64(m.size/SectorSize), lba, p)
	if err != nil {
		return err
	}

	off := Offset(lba)
	copy(m.mmap[off:off+int64(len(p))], p)

	err = m.mmap.Flush()
	if err != nil {
		return fmt.Errorf("failed to flush sectors %d+%d: %w", lba, int64(len(p))/SectorSize, err)
	}

	return nil
}

func (m *Mmap) Close() error {
	flushErr := m.mmap.Flush()
	mmapErr := m.mmap.Unmap()
	closeErr := m.file.Close()

	return errors.Join(flushErr, mmapErr, closeErr)
}
