package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/e2b-dev/infra/packages/disk-image/internal/cfg"
	"github.com/e2b-dev/infra/packages/disk-image/internal/imager"
	"github.com/e2b-dev/infra/packages/disk-image/internal/logger"
	"github.com/e2b-dev/infra/packages/disk-image/pkg/block"
)

func main() {
	config, err := cfg.Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %s", err)
	}

	path := flag.String("path", config.DiskPath, "disk image path")
	name := flag.String("name", config.PartitionName, "data partition name")
	debug := flag.Bool("debug", config.LogDebug, "enable debug logging")
	exportOTEL := flag.Bool("otel", config.LogExportOTEL, "also send logs to the OpenTelemetry logger provider")

	flag.Parse()

	config.DiskPath = *path
	config.PartitionName = *name

	l := logger.NewLogger(logger.LoggerConfig{
		ServiceName: "inspect-disk",
		Console:     true,
		Debug:       *debug,
		DiskPath:    config.DiskPath,
		ExportOTEL:  *exportOTEL,
	})
	defer func() { _ = l.Sync() }()

	zap.ReplaceGlobals(l)

	report, err := imager.New(config, l).Inspect(context.Background())
	if err != nil {
		l.Error("failed to inspect disk", zap.Error(err))
		_ = l.Sync()

		os.Exit(1)
	}

	fmt.Printf("\nPARTITION TABLE\n")
	fmt.Printf("===============\n")
	fmt.Printf("Image              %s\n", config.DiskPath)
	fmt.Printf("Disk GUID          %s\n", report.Table.DiskGUID)
	fmt.Printf("Size               %d sectors (%s)\n", report.Table.Sectors, humanize.IBytes(report.Table.Sectors*uint64(block.SectorSize)))
	fmt.Printf("Protective MBR     %t\n", report.Table.ProtectiveMBR)

	for _, e := range report.Table.Entries {
		fmt.Printf("\n#%d %-16s LBA %d-%d  %s\n", e.Index, e.Name, e.FirstLBA, e.LastLBA, humanize.IBytes(uint64(e.Length())))
		fmt.Printf("   type %s\n   guid %s\n", e.Type, e.GUID)
	}

	fmt.Printf("\nVOLUME %q\n", report.Label)
	fmt.Printf("==========\n")

	for _, f := range report.Files {
		size := humanize.IBytes(uint64(f.Size()))
		if f.IsDir() {
			size = "<dir>"
		}

		fmt.Printf("%-16s %10s\n", f.Name(), size)
	}
}
