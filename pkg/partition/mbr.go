package partition

import (
	"encoding/binary"
	"fmt"

	"github.com/e2b-dev/infra/packages/disk-image/pkg/block"
)

const (
	mbrEntriesOffset = 446
	mbrEntrySize     = 16
	mbrEntriesCount  = 4
	mbrSignature     = 0xaa55

	protectiveType = 0xee
	maxMBRSectors  = 0xffffffff
)

// protectiveSectors is the sector count recorded in the protective entry,
// saturated to the largest value the legacy 32 bit field can hold.
func protectiveSectors(sectors uint64) uint32 {
	if sectors == 0 {
		return 0
	}

	return uint32(min(sectors-1, maxMBRSectors))
}

// WriteProtectiveMBR writes a protective MBR into sector 0 of d: a single
// partition of type 0xEE starting at LBA 1 and covering the rest of the
// device. The boot code area in front of the partition entries is preserved.
func WriteProtectiveMBR(d block.Device) error {
	sectors := block.Sectors(d)
	if sectors < 2 {
		return InsufficientCapacityError{Sectors: sectors, Required: 2}
	}

	sector := make([]byte, block.SectorSize)

	err := d.ReadSector(0, sector)
	if err != nil {
		return fmt.Errorf("failed to read boot sector: %w", err)
	}

	clear(sector[mbrEntriesOffset:])

	entry := sector[mbrEntriesOffset : mbrEntriesOffset+mbrEntrySize]
	// Not bootable, CHS fields left zero.
	entry[0] = 0x00
	entry[4] = protectiveType
	binary.LittleEndian.PutUint32(entry[8:12], 1)
	binary.LittleEndian.PutUint32(entry[12:16], protectiveSectors(sectors))

	binary.LittleEndian.PutUint16(sector[510:512], mbrSignature)

	err = d.WriteSector(0, sector)
	if err != nil {
		return fmt.Errorf("failed to write protective MBR: %w", err)
	}

	return nil
}

// checkProtectiveMBR reports whether the boot signature is present and
// whether sector holds a well formed protective MBR for a device of the given
// size.
func checkProtectiveMBR(sector []byte, sectors uint64) (signed, protective bool) {
	if binary.LittleEndian.Uint16(sector[510:512]) != mbrSignature {
		return false, false
	}

	entries := sector[mbrEntriesOffset : mbrEntriesOffset+mbrEntrySize*mbrEntriesCount]
	for i := 1; i < mbrEntriesCount; i++ {
		for _, b := range entries[i*mbrEntrySize : (i+1)*mbrEntrySize] {
			if b != 0 {
				return true, false
			}
		}
	}

	entry := entries[:mbrEntrySize]

	return true, entry[4] == protectiveType &&
		binary.LittleEndian.Uint32(entry[8:12]) == 1 &&
		binary.LittleEndian.Uint32(entry[12:16]) == protectiveSectors(sectors)
}
