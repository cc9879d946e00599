package imager

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/e2b-dev/infra/packages/disk-image/pkg/block"
)

func TestCountingDevice(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	metrics, err := NewMetrics(mp)
	require.NoError(t, err)

	mem := block.NewMemory(16 * block.SectorSize)
	d := metrics.countWrites(context.Background(), mem, "memory")

	require.NoError(t, d.WriteSector(0, bytes.Repeat([]byte{1}, int(block.SectorSize))))
	// Memory has no multi-sector path, the run is written sector by sector.
	require.NoError(t, d.WriteSectors(4, bytes.Repeat([]byte{2}, int(3*block.SectorSize))))

	var sizeErr block.InvalidBufferSizeError
	require.ErrorAs(t, d.WriteSectors(8, make([]byte, block.SectorSize+1)), &sizeErr)
	require.ErrorAs(t, d.WriteSectors(8, nil), &sizeErr)

	var rangeErr block.OutOfRangeError
	require.ErrorAs(t, d.WriteSector(16, make([]byte, block.SectorSize)), &rangeErr)

	assert.Equal(t, uint64(4), mem.Written().Count())
	assert.Equal(t, int64(4), counterValue(t, reader, "disk_image.device.sectors.written"))
}
