package block

import (
	"fmt"
	"io"
)

const (
	// SectorSize is the only unit of I/O a Device accepts.
	SectorSize int64 = 512

	// DefaultCapacity is the size an empty backing file is grown to on open.
	DefaultCapacity int64 = 1 << 20 // 1 MiB
)

type InvalidBufferSizeError struct {
	Size int
}

func (e InvalidBufferSizeError) Error() string {
	return fmt.Sprintf("sector buffer must be %d bytes, got %d", SectorSize, e.Size)
}

type OutOfRangeError struct {
	LBA     uint64
	Sectors uint64
}

func (e OutOfRangeError) Error() string {
	return fmt.Sprintf("lba %d is outside of the device (%d sectors)", e.LBA, e.Sectors)
}

// Device is a fixed size random access device addressed in whole sectors.
// WriteSector must not return before the sector is durable.
type Device interface {
	io.Closer
	// Size returns the device capacity in bytes, always a multiple of SectorSize.
	Size() int64
	ReadSector(lba uint64, p []byte) error
	WriteSector(lba uint64, p []byte) error
}

// MultiSectorWriter is implemented by devices that can write a run of whole
// sectors with a single flush. The whole run is durable once WriteSectors
// returns.
type MultiSectorWriter interface {
	WriteSectors(lba uint64, p []byte) error
}

// Sectors returns the number of addressable sectors of the device.
func Sectors(d Device) uint64 {
	return uint64(d.Size() / SectorSize)
}

// Offset returns the byte offset of the sector.
func Offset(lba uint64) int64 {
	return int64(lba) * SectorSize
}

func checkSector(sectors, lba uint64, p []byte) error {
	if int64(len(p)) != SectorSize {
		return InvalidBufferSizeError{Size: len(p)}
	}

	if lba >= sectors {
		return OutOfRangeError{LBA: lba, Sectors: sectors}
	}

	return nil
}

func checkSectors(sectors, lba uint64, p []byte) error {
	if len(p) == 0 || int64(len(p))%SectorSize != 0 {
		return InvalidBufferSizeError{Size: len(p)}
	}

	count := uint64(int64(len(p)) / SectorSize)
	if lba >= sectors || count > sectors-lba {
		return OutOfRangeError{LBA: lba + count - 1, Sectors: sectors}
	}

	return nil
}

func alignDown(size int64) int64 {
	return size - size%SectorSize
}
