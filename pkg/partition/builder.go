package partition

import (
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/diskfs/go-diskfs/partition/gpt"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/e2b-dev/infra/packages/disk-image/pkg/block"
)

const DefaultName = "data"

// DefaultType is the GPT type of a generic data partition.
const DefaultType = gpt.MicrosoftBasicData

type Builder struct {
	name     string
	typ      gpt.Type
	layout   Layout
	diskGUID uuid.UUID
	logger   *zap.Logger
}

type Option func(*Builder)

func WithName(name string) Option {
	return func(b *Builder) {
		b.name = name
	}
}

func WithType(typ gpt.Type) Option {
	return func(b *Builder) {
		b.typ = typ
	}
}

func WithLayout(l Layout) Option {
	return func(b *Builder) {
		b.layout = l
	}
}

// WithDiskGUID fixes the disk GUID. The partition GUID is derived from the
// disk GUID and the partition name, so a fixed disk GUID makes rebuilt tables
// byte identical.
func WithDiskGUID(id uuid.UUID) Option {
	return func(b *Builder) {
		b.diskGUID = id
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		name:   DefaultName,
		typ:    DefaultType,
		layout: DefaultLayout(),
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

func validateName(name string) error {
	units := len(utf16.Encode([]rune(name)))
	if units == 0 || units > MaxNameLength {
		return InvalidNameError{Name: name, Units: units}
	}

	return nil
}

// Build writes a protective MBR and a GPT with a single data partition to d and
// returns the extent of that partition.
//
// The name and the device capacity are validated before anything is written.
// A failed write leaves the table in a state Read reports as corrupt; the
// caller is expected to rebuild it from scratch.
func (b *Builder) Build(d block.Device) (Extent, error) {
	err := validateName(b.name)
	if err != nil {
		return Extent{}, err
	}

	sectors := block.Sectors(d)

	extent, err := Plan(sectors, b.layout)
	if err != nil {
		return Extent{}, err
	}

	diskGUID := b.diskGUID
	if diskGUID == uuid.Nil {
		diskGUID, err = uuid.NewRandom()
		if err != nil {
			return Extent{}, fmt.Errorf("failed to generate disk GUID: %w", err)
		}
	}

	extent.Name = b.name
	extent.Type = b.typ
	extent.GUID = partitionGUID(diskGUID, b.name)

	err = WriteProtectiveMBR(d)
	if err != nil {
		return Extent{}, err
	}

	table := &gpt.Table{
		LogicalSectorSize:  int(block.SectorSize),
		PhysicalSectorSize: int(block.SectorSize),
		GUID:               diskGUID.String(),
		// The protective MBR is already in place, go-diskfs does not saturate
		// the sector count of large devices.
		ProtectiveMBR: false,
		Partitions: []*gpt.Partition{
			{
				Start: extent.FirstLBA,
				End:   extent.LastLBA,
				Type:  extent.Type,
				Name:  extent.Name,
				GUID:  extent.GUID,
			},
		},
	}

	s := newDeviceStream(d)

	err = table.Write(s, int64(sectors)*block.SectorSize)
	if s.err != nil {
		return Extent{}, fmt.Errorf("failed to write partition table: %w", s.err)
	}

	if err != nil {
		return Extent{}, fmt.Errorf("failed to write partition table: %w", err)
	}

	b.logger.Debug("partition table written",
		zap.String("disk_guid", diskGUID.String()),
		zap.String("partition", extent.Name),
		zap.Uint64("first_lba", extent.FirstLBA),
		zap.Uint64("last_lba", extent.LastLBA),
		zap.Uint64("device_sectors", sectors),
	)

	return extent, nil
}

// partitionGUID is upper case, the way go-diskfs reports GUIDs read from disk.
func partitionGUID(disk uuid.UUID, name string) string {
	return strings.ToUpper(uuid.NewSHA1(disk, []byte(name)).String())
}
