package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/e2b-dev/infra/packages/disk-image/internal/cfg"
	"github.com/e2b-dev/infra/packages/disk-image/internal/imager"
	"github.com/e2b-dev/infra/packages/disk-image/internal/logger"
)

const (
	defaultFileName    = "HELLO.TXT"
	defaultFileContent = "Hello from Oxide!\n"
)

// fileFlags collects repeated -file name=path arguments.
type fileFlags map[string]string

func (f fileFlags) String() string {
	pairs := make([]string, 0, len(f))
	for name, path := range f {
		pairs = append(pairs, name+"="+path)
	}

	return strings.Join(pairs, ",")
}

func (f fileFlags) Set(v string) error {
	name, path, ok := strings.Cut(v, "=")
	if !ok || name == "" || path == "" {
		return fmt.Errorf("expected name=path, got %q", v)
	}

	f[name] = path

	return nil
}

func main() {
	config, err := cfg.Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %s", err)
	}

	files := fileFlags{}

	path := flag.String("path", config.DiskPath, "disk image path")
	size := flag.String("size", config.DiskSize.String(), "size of a newly created image, e.g. 64MiB")
	backend := flag.String("backend", string(config.DiskBackend), "'file' or 'mmap'")
	name := flag.String("name", config.PartitionName, "data partition name")
	label := flag.String("label", config.VolumeLabel, "volume label")
	smoke := flag.Bool("smoke", false, "only check that sector 0 can be read and written back")
	preallocate := flag.Bool("preallocate", config.DiskPreallocate, "reserve the blocks of a newly created image")
	debug := flag.Bool("debug", config.LogDebug, "enable debug logging")
	exportOTEL := flag.Bool("otel", config.LogExportOTEL, "also send logs to the OpenTelemetry logger provider")
	flag.Var(files, "file", "file to copy into the volume as name=path, can be repeated")

	flag.Parse()

	parsedSize, err := humanize.ParseBytes(*size)
	if err != nil {
		log.Fatalf("invalid size %q: %s", *size, err)
	}

	config.DiskPath = *path
	config.DiskSize = cfg.ByteSize(parsedSize)
	config.DiskBackend = cfg.Backend(*backend)
	config.PartitionName = *name
	config.VolumeLabel = *label
	config.DiskPreallocate = *preallocate
	config.LogDebug = *debug
	config.LogExportOTEL = *exportOTEL

	err = config.Validate()
	if err != nil {
		log.Fatalf("invalid config: %s", err)
	}

	l := logger.NewLogger(logger.LoggerConfig{
		ServiceName: "build-disk",
		Console:     true,
		Debug:       config.LogDebug,
		DiskPath:    config.DiskPath,
		ExportOTEL:  config.LogExportOTEL,
	})
	defer func() { _ = l.Sync() }()

	zap.ReplaceGlobals(l)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	err = run(ctx, imager.New(config, l), config, files, *smoke)
	if err != nil {
		l.Error("failed to build disk", zap.Error(err))
		_ = l.Sync()

		os.Exit(1)
	}
}

func run(ctx context.Context, im *imager.Imager, config cfg.Config, files fileFlags, smoke bool) error {
	if smoke {
		err := im.Smoke(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("sector 0 of %s reads back unchanged\n", config.DiskPath)

		return nil
	}

	contents := map[string][]byte{}
	if len(files) == 0 {
		contents[defaultFileName] = []byte(defaultFileContent)
	}

	for name, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		contents[name] = data
	}

	extent, err := im.Create(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("partition %q at LBA %d-%d (%s)\n",
		extent.Name, extent.FirstLBA, extent.LastLBA, humanize.IBytes(uint64(extent.Length())))

	err = im.WriteFiles(ctx, contents)
	if err != nil {
		return err
	}

	for name, data := range contents {
		readBack, err := im.ReadFile(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to read back %s: %w", name, err)
		}

		if string(readBack) != string(data) {
			return fmt.Errorf("%s read back as %d bytes, wrote %d", name, len(readBack), len(data))
		}

		fmt.Printf("wrote %s (%s)\n", name, humanize.IBytes(uint64(len(data))))
	}

	return nil
}
