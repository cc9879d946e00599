package partition

import (
	"fmt"

	"github.com/diskfs/go-diskfs/partition/gpt"

	"github.com/e2b-dev/infra/packages/disk-image/pkg/block"
)

// Extent is a partition as an inclusive range of sectors.
type Extent struct {
	Name     string
	GUID     string
	Type     gpt.Type
	FirstLBA uint64
	LastLBA  uint64
}

func (e Extent) Sectors() uint64 {
	return e.LastLBA - e.FirstLBA + 1
}

// Offset is the byte offset of the first sector on the device.
func (e Extent) Offset() int64 {
	return block.Offset(e.FirstLBA)
}

// Length is the partition size in bytes.
func (e Extent) Length() int64 {
	return int64(e.Sectors()) * block.SectorSize
}

// Entry is a used slot of the entry array. Index counts used entries from 1.
type Entry struct {
	Index int
	Extent
}

type Table struct {
	DiskGUID      string
	Sectors       uint64
	ProtectiveMBR bool
	Entries       []Entry
}

// Find returns the first entry called name.
func (t *Table) Find(name string) (Extent, error) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e.Extent, nil
		}
	}

	return Extent{}, PartitionNotFoundError{Name: name}
}

// Read parses and validates the partition table of d.
//
// Both GPT copies must be intact: the primary header and entry array, the
// backup header and entry array, and the boot signature of the MBR. Any
// mismatch, including a table whose write was interrupted, is reported as
// TableCorruptError. Device errors are returned as they are.
func Read(d block.Device) (*Table, error) {
	sectors := block.Sectors(d)
	if sectors < HeadReservedSectors+TailReservedSectors {
		return nil, corrupt("device of %d sectors cannot hold a partition table", sectors)
	}

	mbr := make([]byte, block.SectorSize)

	err := d.ReadSector(0, mbr)
	if err != nil {
		return nil, fmt.Errorf("failed to read boot sector: %w", err)
	}

	signed, protective := checkProtectiveMBR(mbr, sectors)
	if !signed {
		return nil, corrupt("missing boot signature")
	}

	s := newDeviceStream(d)

	t, err := gpt.Read(s, int(block.SectorSize), int(block.SectorSize))
	if s.err != nil {
		return nil, fmt.Errorf("failed to read partition table: %w", s.err)
	}

	if err != nil {
		return nil, TableCorruptError{Reason: "primary table", Err: err}
	}

	err = verifyBackup(d, sectors)
	if err != nil {
		return nil, err
	}

	table := &Table{
		DiskGUID:      t.GUID,
		Sectors:       sectors,
		ProtectiveMBR: protective,
		Entries:       make([]Entry, 0, len(t.Partitions)),
	}

	for i, p := range t.Partitions {
		if p.Start > p.End || p.End >= sectors {
			return nil, corrupt("entry %d spans LBA %d to %d on a device of %d sectors", i+1, p.Start, p.End, sectors)
		}

		table.Entries = append(table.Entries, Entry{
			Index: i + 1,
			Extent: Extent{
				Name:     p.Name,
				GUID:     p.GUID,
				Type:     p.Type,
				FirstLBA: p.Start,
				LastLBA:  p.End,
			},
		})
	}

	return table, nil
}

// Resolve reads the table of d and looks up the partition called name.
func Resolve(d block.Device, name string) (Extent, error) {
	t, err := Read(d)
	if err != nil {
		return Extent{}, err
	}

	return t.Find(name)
}
