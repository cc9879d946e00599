package telemetry

import "go.opentelemetry.io/otel/metric"

type CounterType string

const (
	SectorsWrittenCounterName CounterType = "disk_image.device.sectors.written"
	RegionsLeasedCounterName  CounterType = "disk_image.region.leased"
)

var counterDesc = map[CounterType]string{
	SectorsWrittenCounterName: "Number of sectors written to the disk image.",
	RegionsLeasedCounterName:  "Number of partition regions leased on the disk image.",
}

var counterUnits = map[CounterType]string{
	SectorsWrittenCounterName: "{sector}",
	RegionsLeasedCounterName:  "{region}",
}

func GetCounter(meter metric.Meter, name CounterType) (metric.Int64Counter, error) {
	desc := counterDesc[name]
	unit := counterUnits[name]

	return meter.Int64Counter(string(name),
		metric.WithDescription(desc),
		metric.WithUnit(unit),
	)
}
