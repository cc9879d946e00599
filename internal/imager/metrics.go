package imager

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/e2b-dev/infra/packages/disk-image/internal/telemetry"
	"github.com/e2b-dev/infra/packages/disk-image/pkg/block"
)

const meterName = "github.com/e2b-dev/infra/packages/disk-image/internal/imager"

type Metrics struct {
	sectorsWritten metric.Int64Counter
	regionsLeased  metric.Int64Counter
}

func NewMetrics(meterProvider metric.MeterProvider) (*Metrics, error) {
	meter := meterProvider.Meter(meterName)

	sectorsWritten, err := telemetry.GetCounter(meter, telemetry.SectorsWrittenCounterName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sectors written counter: %w", err)
	}

	regionsLeased, err := telemetry.GetCounter(meter, telemetry.RegionsLeasedCounterName)
	if err != nil {
		return nil, fmt.Errorf("failed to create regions leased counter: %w", err)
	}

	return &Metrics{
		sectorsWritten: sectorsWritten,
		regionsLeased:  regionsLeased,
	}, nil
}

func (m *Metrics) RecordRegionLeased(ctx context.Context, partition string) {
	m.regionsLeased.Add(ctx, 1, metric.WithAttributes(
		attribute.String("partition.name", partition),
	))
}

// countingDevice reports every successfully written sector.
type countingDevice struct {
	block.Device

	ctx     context.Context //nolint:containedctx // the device is scoped to one pipeline step
	metrics *Metrics
	attrs   metric.MeasurementOption
}

var (
	_ block.Device            = (*countingDevice)(nil)
	_ block.MultiSectorWriter = (*countingDevice)(nil)
)

func (m *Metrics) countWrites(ctx context.Context, d block.Device, path string) *countingDevice {
	return &countingDevice{
		Device:  d,
		ctx:     ctx,
		metrics: m,
		attrs:   metric.WithAttributes(attribute.String("disk.path", path)),
	}
}

func (d *countingDevice) WriteSector(lba uint64, p []byte) error {
	err := d.Device.WriteSector(lba, p)
	if err != nil {
		return err
	}

	d.metrics.sectorsWritten.Add(d.ctx, 1, d.attrs)

	return nil
}

func (d *countingDevice) WriteSectors(lba uint64, p []byte) error {
	w, ok := d.Device.(block.MultiSectorWriter)
	if !ok {
		if len(p) == 0 || int64(len(p))%block.SectorSize != 0 {
			return block.InvalidBufferSizeError{Size: len(p)}
		}

		for off := int64(0); off < int64(len(p)); off += block.SectorSize {
			err := d.WriteSector(lba+uint64(off/block.SectorSize), p[off:off+block.SectorSize])
			if err != nil {
				return err
			}
		}

		return nil
	}

	err := w.WriteSectors(lba, p)
	if err != nil {
		return err
	}

	d.metrics.sectorsWritten.Add(d.ctx, int64(len(p))/block.SectorSize, d.attrs)

	return nil
}
