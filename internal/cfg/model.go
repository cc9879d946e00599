package cfg

import (
	"fmt"
	"math"
	"reflect"

	"github.com/caarlos0/env/v11"
	"github.com/dustin/go-humanize"
)

// Backend selects the block device implementation.
type Backend string

const (
	BackendFile Backend = "file"
	BackendMmap Backend = "mmap"
)

// MaxSectors is the sector count of the largest device an int64 byte size
// can describe. Layout values above it can never fit on a device.
const MaxSectors = math.MaxInt64 / 512

// ByteSize is a size in bytes, parsed from values like "64MiB" or "67108864".
type ByteSize int64

func (s ByteSize) String() string {
	return humanize.IBytes(uint64(s))
}

func parseByteSize(v string) (any, error) {
	n, err := humanize.ParseBytes(v)
	if err != nil {
		return nil, fmt.Errorf("invalid size %q: %w", v, err)
	}

	return ByteSize(n), nil
}

type Config struct {
	DiskPath    string   `env:"DISK_PATH"    envDefault:"disk.img"`
	DiskSize    ByteSize `env:"DISK_SIZE"    envDefault:"64MiB"`
	DiskBackend Backend  `env:"DISK_BACKEND" envDefault:"file"`
	DiskLock    bool     `env:"DISK_LOCK"    envDefault:"true"`
	// DiskPreallocate reserves the blocks of a newly created image file.
	DiskPreallocate bool `env:"DISK_PREALLOCATE"`

	PartitionName         string `env:"PARTITION_NAME"          envDefault:"data"`
	PartitionSafetyMargin uint64 `env:"PARTITION_SAFETY_MARGIN" envDefault:"2048"`
	PartitionFloor        uint64 `env:"PARTITION_FLOOR"         envDefault:"1024"`

	VolumeLabel string `env:"VOLUME_LABEL" envDefault:"DATA"`

	LogDebug bool `env:"LOG_DEBUG"`
	// LogExportOTEL also sends logs to the global OpenTelemetry logger provider.
	LogExportOTEL bool `env:"LOG_EXPORT_OTEL"`
}

func Parse() (Config, error) {
	config, err := env.ParseAsWithOptions[Config](env.Options{
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(ByteSize(0)): parseByteSize,
		},
	})
	if err != nil {
		return Config{}, err
	}

	err = config.Validate()
	if err != nil {
		return Config{}, err
	}

	return config, nil
}

func (c Config) Validate() error {
	switch c.DiskBackend {
	case BackendFile, BackendMmap:
	default:
		return fmt.Errorf("unknown disk backend %q", c.DiskBackend)
	}

	if c.DiskSize <= 0 {
		return fmt.Errorf("disk size must be positive, got %d", c.DiskSize)
	}

	if c.PartitionFloor == 0 {
		return fmt.Errorf("partition floor must be at least one sector")
	}

	if c.PartitionFloor > MaxSectors {
		return fmt.Errorf("partition floor %d exceeds %d sectors", c.PartitionFloor, uint64(MaxSectors))
	}

	if c.PartitionSafetyMargin > MaxSectors {
		return fmt.Errorf("partition safety margin %d exceeds %d sectors", c.PartitionSafetyMargin, uint64(MaxSectors))
	}

	if len(c.VolumeLabel) > 11 {
		return fmt.Errorf("volume label %q is longer than 11 characters", c.VolumeLabel)
	}

	return nil
}
