package logger

import (
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

const (
	DiskPathKey      = "disk.path"
	PartitionNameKey = "partition.name"
)

func WithDiskPath(path string) zap.Field {
	return zap.String(DiskPathKey, path)
}

func WithPartitionName(name string) zap.Field {
	return zap.String(PartitionNameKey, name)
}

// WithSize logs a byte count both raw and in a human readable form.
func WithSize(key string, bytes int64) zap.Field {
	return zap.Dict(key,
		zap.Int64("bytes", bytes),
		zap.String("human", humanize.IBytes(uint64(bytes))),
	)
}
