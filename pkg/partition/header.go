package partition

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/e2b-dev/infra/packages/disk-image/pkg/block"
)

const headerSize = 92

var efiSignature = []byte("EFI PART")

// header holds the GPT header fields checked when cross validating the
// primary and backup copies.
type header struct {
	myLBA        uint64
	alternateLBA uint64
	firstUsable  uint64
	lastUsable   uint64
	diskGUID     [16]byte
	entriesLBA   uint64
	entryCount   uint32
	entrySize    uint32
	entriesCRC   uint32
}

func parseHeader(sector []byte) (header, error) {
	if !bytes.Equal(sector[0:8], efiSignature) {
		return header{}, fmt.Errorf("missing EFI signature")
	}

	if size := binary.LittleEndian.Uint32(sector[12:16]); size != headerSize {
		return header{}, fmt.Errorf("unexpected header size %d", size)
	}

	stored := binary.LittleEndian.Uint32(sector[16:20])

	b := bytes.Clone(sector[:headerSize])
	clear(b[16:20])

	if sum := crc32.ChecksumIEEE(b); sum != stored {
		return header{}, fmt.Errorf("header checksum %#08x does not match stored %#08x", sum, stored)
	}

	h := header{
		myLBA:        binary.LittleEndian.Uint64(sector[24:32]),
		alternateLBA: binary.LittleEndian.Uint64(sector[32:40]),
		firstUsable:  binary.LittleEndian.Uint64(sector[40:48]),
		lastUsable:   binary.LittleEndian.Uint64(sector[48:56]),
		entriesLBA:   binary.LittleEndian.Uint64(sector[72:80]),
		entryCount:   binary.LittleEndian.Uint32(sector[80:84]),
		entrySize:    binary.LittleEndian.Uint32(sector[84:88]),
		entriesCRC:   binary.LittleEndian.Uint32(sector[88:92]),
	}
	copy(h.diskGUID[:], sector[56:72])

	return h, nil
}

func readHeader(d block.Device, lba uint64) (header, error) {
	sector := make([]byte, block.SectorSize)

	err := d.ReadSector(lba, sector)
	if err != nil {
		return header{}, fmt.Errorf("failed to read GPT header at LBA %d: %w", lba, err)
	}

	h, err := parseHeader(sector)
	if err != nil {
		return header{}, corrupt("GPT header at LBA %d: %v", lba, err)
	}

	return h, nil
}

// entriesChecksum computes the CRC32 of the entry array occupying
// entryArraySectors sectors from lba.
func entriesChecksum(d block.Device, lba uint64) (uint32, error) {
	sum := crc32.NewIEEE()
	sector := make([]byte, block.SectorSize)

	for i := range entryArraySectors {
		err := d.ReadSector(lba+i, sector)
		if err != nil {
			return 0, err
		}

		sum.Write(sector)
	}

	return sum.Sum32(), nil
}

// verifyBackup checks the backup header at the last sector of the device and
// the backup entry array in front of it against the primary header.
func verifyBackup(d block.Device, sectors uint64) error {
	primary, err := readHeader(d, 1)
	if err != nil {
		return err
	}

	last := sectors - 1

	if primary.myLBA != 1 || primary.alternateLBA != last {
		return corrupt("primary header locates backup at LBA %d, device ends at LBA %d", primary.alternateLBA, last)
	}

	if uint64(primary.entryCount)*uint64(primary.entrySize) != entryArraySectors*uint64(block.SectorSize) {
		return corrupt("unsupported entry array of %d entries of %d bytes", primary.entryCount, primary.entrySize)
	}

	backup, err := readHeader(d, last)
	if err != nil {
		return err
	}

	if backup.myLBA != last || backup.alternateLBA != 1 {
		return corrupt("backup header at LBA %d claims LBA %d", last, backup.myLBA)
	}

	if backup.diskGUID != primary.diskGUID ||
		backup.firstUsable != primary.firstUsable ||
		backup.lastUsable != primary.lastUsable ||
		backup.entriesCRC != primary.entriesCRC {
		return corrupt("backup header does not match primary header")
	}

	sum, err := entriesChecksum(d, last-entryArraySectors)
	if err != nil {
		return fmt.Errorf("failed to read backup entry array: %w", err)
	}

	if sum != backup.entriesCRC {
		return corrupt("backup entry array checksum %#08x does not match stored %#08x", sum, backup.entriesCRC)
	}

	return nil
}
