// Package imager drives the disk image pipeline: open the device, write the
// partition table, then format, populate and read the data volume through a
// bounded region.
package imager

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/e2b-dev/infra/packages/disk-image/internal/cfg"
	"github.com/e2b-dev/infra/packages/disk-image/internal/logger"
	"github.com/e2b-dev/infra/packages/disk-image/internal/telemetry"
	"github.com/e2b-dev/infra/packages/disk-image/pkg/block"
	"github.com/e2b-dev/infra/packages/disk-image/pkg/partition"
	"github.com/e2b-dev/infra/packages/disk-image/pkg/region"
	"github.com/e2b-dev/infra/packages/disk-image/pkg/volume"
)

var tracer = otel.Tracer("github.com/e2b-dev/infra/packages/disk-image/internal/imager")

type Imager struct {
	config  cfg.Config
	logger  *zap.Logger
	fs      volume.Filesystem
	meters  metric.MeterProvider
	metrics *Metrics
}

type Option func(*Imager)

// WithFilesystem replaces the FAT32 volume format.
func WithFilesystem(fs volume.Filesystem) Option {
	return func(i *Imager) {
		i.fs = fs
	}
}

// WithMeterProvider records the device metrics with mp instead of the global
// meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(i *Imager) {
		i.meters = mp
	}
}

func New(config cfg.Config, logger *zap.Logger, opts ...Option) *Imager {
	if logger == nil {
		logger = zap.NewNop()
	}

	i := &Imager{
		config: config,
		logger: logger,
		fs:     volume.NewFAT32(config.VolumeLabel),
		meters: otel.GetMeterProvider(),
	}

	for _, opt := range opts {
		opt(i)
	}

	metrics, err := NewMetrics(i.meters)
	if err != nil {
		logger.Warn("failed to create metrics, not recording them", zap.Error(err))

		metrics, _ = NewMetrics(noop.NewMeterProvider())
	}

	i.metrics = metrics

	return i
}

// session is one open device and the regions leased on it.
type session struct {
	dev    block.Device
	leases *region.Leases
}

func (i *Imager) open(readOnly bool) (block.Device, error) {
	opts := []block.Option{block.WithCapacity(int64(i.config.DiskSize))}

	if i.config.DiskLock {
		opts = append(opts, block.WithExclusiveLock())
	}

	if i.config.DiskPreallocate {
		opts = append(opts, block.WithPreallocation())
	}

	if readOnly {
		opts = append(opts, block.WithReadOnly())
	}

	switch i.config.DiskBackend {
	case cfg.BackendMmap:
		return block.OpenMmap(i.config.DiskPath, opts...)
	case cfg.BackendFile, "":
		return block.OpenFile(i.config.DiskPath, opts...)
	default:
		return nil, fmt.Errorf("unknown disk backend %q", i.config.DiskBackend)
	}
}

// withSession opens the device, runs fn and closes the device again. The
// device is never left open between pipeline steps.
func (i *Imager) withSession(ctx context.Context, readOnly bool, fn func(s *session) error) (e error) {
	dev, err := i.open(readOnly)
	if err != nil {
		return fmt.Errorf("failed to open device: %w", err)
	}

	defer func() {
		closeErr := dev.Close()
		if closeErr != nil {
			e = errors.Join(e, fmt.Errorf("failed to close device: %w", closeErr))
		}
	}()

	telemetry.SetAttributes(ctx,
		attribute.String("disk.path", i.config.DiskPath),
		attribute.Int64("disk.size", dev.Size()),
		attribute.String("disk.backend", string(i.config.DiskBackend)),
	)

	var d block.Device = dev
	if !readOnly {
		d = i.metrics.countWrites(ctx, dev, i.config.DiskPath)
	}

	return fn(&session{
		dev:    d,
		leases: region.NewLeases(block.NewStream(d)),
	})
}

// withVolume resolves the configured partition and runs fn with a region
// over it. The region is closed when fn returns.
func (i *Imager) withVolume(ctx context.Context, s *session, fn func(r *region.Region) error) error {
	extent, err := partition.Resolve(s.dev, i.config.PartitionName)
	if err != nil {
		return fmt.Errorf("failed to resolve partition: %w", err)
	}

	telemetry.ReportEvent(ctx, "resolved partition",
		attribute.String("partition.name", extent.Name),
		attribute.Int64("partition.first_lba", int64(extent.FirstLBA)),
		attribute.Int64("partition.last_lba", int64(extent.LastLBA)),
	)

	return s.leases.With(extent.Offset(), extent.Length(), func(r *region.Region) error {
		i.metrics.RecordRegionLeased(ctx, extent.Name)

		return fn(r)
	})
}

func (i *Imager) builder() *partition.Builder {
	return partition.NewBuilder(
		partition.WithName(i.config.PartitionName),
		partition.WithLayout(partition.Layout{
			SafetyMargin: i.config.PartitionSafetyMargin,
			Floor:        i.config.PartitionFloor,
		}),
		partition.WithLogger(i.logger),
	)
}

// Create writes a fresh partition table and formats the data partition.
// Any failure leaves the device in an undefined state, rerunning Create
// rebuilds it from the boot record.
func (i *Imager) Create(ctx context.Context) (partition.Extent, error) {
	ctx, span := tracer.Start(ctx, "create-disk")
	defer span.End()

	var extent partition.Extent

	err := i.withSession(ctx, false, func(s *session) error {
		built, err := i.builder().Build(s.dev)
		if err != nil {
			return fmt.Errorf("failed to build partition table: %w", err)
		}

		telemetry.ReportEvent(ctx, "built partition table")

		resolved, err := partition.Resolve(s.dev, i.config.PartitionName)
		if err != nil {
			return fmt.Errorf("failed to read back partition table: %w", err)
		}

		if resolved.FirstLBA != built.FirstLBA || resolved.LastLBA != built.LastLBA {
			return fmt.Errorf("partition read back as LBA %d-%d, built as %d-%d", resolved.FirstLBA, resolved.LastLBA, built.FirstLBA, built.LastLBA)
		}

		extent = resolved

		return i.format(ctx, s)
	})
	if err != nil {
		telemetry.ReportCriticalError(ctx, "failed to create disk", err, attribute.String("disk.path", i.config.DiskPath))

		return partition.Extent{}, err
	}

	i.logger.Info("disk created",
		logger.WithDiskPath(i.config.DiskPath),
		logger.WithPartitionName(extent.Name),
		zap.Uint64("first_lba", extent.FirstLBA),
		zap.Uint64("last_lba", extent.LastLBA),
		logger.WithSize("volume_size", extent.Length()),
	)

	return extent, nil
}

// Format formats the data partition of an already partitioned device.
func (i *Imager) Format(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "format-volume")
	defer span.End()

	err := i.withSession(ctx, false, func(s *session) error {
		return i.format(ctx, s)
	})
	if err != nil {
		telemetry.ReportCriticalError(ctx, "failed to format volume", err)

		return err
	}

	return nil
}

func (i *Imager) format(ctx context.Context, s *session) error {
	return i.withVolume(ctx, s, func(r *region.Region) error {
		err := i.fs.Format(r)
		if err != nil {
			return fmt.Errorf("failed to format %s volume: %w", i.fs.Name(), err)
		}

		i.logger.Debug("volume formatted",
			zap.String("filesystem", i.fs.Name()),
			logger.WithSize("volume_size", r.Size()),
		)

		return nil
	})
}

// WriteFiles mounts the data volume and writes every file, in name order.
func (i *Imager) WriteFiles(ctx context.Context, files map[string][]byte) error {
	ctx, span := tracer.Start(ctx, "write-files")
	defer span.End()

	span.SetAttributes(attribute.Int("files.count", len(files)))

	err := i.withSession(ctx, false, func(s *session) error {
		return i.withVolume(ctx, s, func(r *region.Region) error {
			h, err := i.fs.Mount(r)
			if err != nil {
				return fmt.Errorf("failed to mount volume: %w", err)
			}

			for _, name := range slices.Sorted(maps.Keys(files)) {
				err := volume.WriteFile(h, name, files[name])
				if err != nil {
					return err
				}

				i.logger.Debug("file written",
					zap.String("file", name),
					logger.WithSize("file_size", int64(len(files[name]))),
				)
			}

			return nil
		})
	})
	if err != nil {
		telemetry.ReportCriticalError(ctx, "failed to write files", err)

		return err
	}

	return nil
}

// ReadFile reopens the device read only and reads name from the data volume.
func (i *Imager) ReadFile(ctx context.Context, name string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "read-file")
	defer span.End()

	var data []byte

	err := i.withSession(ctx, true, func(s *session) error {
		return i.withVolume(ctx, s, func(r *region.Region) error {
			h, err := i.fs.Mount(r)
			if err != nil {
				return fmt.Errorf("failed to mount volume: %w", err)
			}

			data, err = volume.ReadFile(h, name)

			return err
		})
	})
	if err != nil {
		telemetry.ReportCriticalError(ctx, "failed to read file", err, attribute.String("file", name))

		return nil, err
	}

	return data, nil
}

// Report describes a disk image.
type Report struct {
	Table *partition.Table
	// Label and Files describe the configured partition's volume.
	Label string
	Files []os.FileInfo
}

// Inspect reads the partition table and lists the root of the data volume.
func (i *Imager) Inspect(ctx context.Context) (*Report, error) {
	ctx, span := tracer.Start(ctx, "inspect-disk")
	defer span.End()

	report := &Report{}

	err := i.withSession(ctx, true, func(s *session) error {
		table, err := partition.Read(s.dev)
		if err != nil {
			return fmt.Errorf("failed to read partition table: %w", err)
		}

		report.Table = table

		return i.withVolume(ctx, s, func(r *region.Region) error {
			h, err := i.fs.Mount(r)
			if err != nil {
				return fmt.Errorf("failed to mount volume: %w", err)
			}

			report.Label = h.Label()

			report.Files, err = h.ReadDir("/")

			return err
		})
	})
	if err != nil {
		telemetry.ReportCriticalError(ctx, "failed to inspect disk", err)

		return nil, err
	}

	return report, nil
}

// Smoke reads sector 0, writes it back unchanged and checks that the device
// returns the same bytes.
func (i *Imager) Smoke(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "smoke-check")
	defer span.End()

	err := i.withSession(ctx, false, func(s *session) error {
		before := make([]byte, block.SectorSize)

		err := s.dev.ReadSector(0, before)
		if err != nil {
			return err
		}

		err = s.dev.WriteSector(0, before)
		if err != nil {
			return err
		}

		after := make([]byte, block.SectorSize)

		err = s.dev.ReadSector(0, after)
		if err != nil {
			return err
		}

		if !slices.Equal(before, after) {
			return errors.New("sector 0 changed after being written back")
		}

		return nil
	})
	if err != nil {
		telemetry.ReportCriticalError(ctx, "smoke check failed", err)

		return err
	}

	return nil
}
