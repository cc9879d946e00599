package volume

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/diskfs/go-diskfs/filesystem"
	"github.com/diskfs/go-diskfs/filesystem/fat32"
)

const (
	// FAT32MinSize is the smallest region FAT32 is formatted into.
	FAT32MinSize int64 = 256 << 10

	fatSectorSize int64 = 512
)

// FAT32 formats and mounts FAT32 volumes with go-diskfs.
type FAT32 struct {
	label string
}

var _ Filesystem = (*FAT32)(nil)

// NewFAT32 returns a FAT32 filesystem with the given volume label. Labels
// are limited to 11 characters, longer ones are truncated.
func NewFAT32(label string) *FAT32 {
	return &FAT32{label: label}
}

func (f *FAT32) Name() string {
	return "fat32"
}

func (f *FAT32) MinSize() int64 {
	return FAT32MinSize
}

func (f *FAT32) Format(d Device) error {
	err := CheckSize(f, d)
	if err != nil {
		return err
	}

	rec := &recordingDevice{Device: d}

	_, err = fat32.Create(rec, d.Size(), 0, fatSectorSize, f.label)
	err = rec.wrap(err)
	if err != nil {
		return fmt.Errorf("failed to format fat32: %w", err)
	}

	err = d.Sync()
	if err != nil {
		return fmt.Errorf("failed to sync fat32: %w", err)
	}

	return nil
}

func (f *FAT32) Mount(d Device) (Handle, error) {
	err := CheckSize(f, d)
	if err != nil {
		return nil, err
	}

	rec := &recordingDevice{Device: d}

	fs, err := fat32.Read(rec, d.Size(), 0, fatSectorSize)
	err = rec.wrap(err)
	if err != nil {
		return nil, fmt.Errorf("failed to mount fat32: %w", err)
	}

	return &fatHandle{fs: fs, dev: rec}, nil
}

// recordingDevice keeps the first I/O error of the region. go-diskfs formats
// the errors it gets with %v, the recorded one is returned instead so callers
// can still match it.
type recordingDevice struct {
	Device

	err error
}

func (r *recordingDevice) record(err error) {
	if err != nil && r.err == nil && !errors.Is(err, io.EOF) {
		r.err = err
	}
}

func (r *recordingDevice) ReadAt(p []byte, off int64) (int, error) {
	n, err := r.Device.ReadAt(p, off)
	r.record(err)

	return n, err
}

func (r *recordingDevice) WriteAt(p []byte, off int64) (int, error) {
	n, err := r.Device.WriteAt(p, off)
	r.record(err)

	return n, err
}

// wrap prefers the recorded device error over err.
func (r *recordingDevice) wrap(err error) error {
	if r.err != nil {
		recorded := r.err
		r.err = nil

		return recorded
	}

	return err
}

type fatHandle struct {
	fs  *fat32.FileSystem
	dev *recordingDevice
}

var _ Handle = (*fatHandle)(nil)

func absolute(name string) string {
	return path.Join("/", name)
}

func (h *fatHandle) open(name string, flag int) (File, error) {
	f, err := h.fs.OpenFile(absolute(name), flag)
	err = h.dev.wrap(err)
	if err != nil {
		return nil, err
	}

	return &fatFile{File: f, dev: h.dev}, nil
}

func (h *fatHandle) CreateFile(name string) (File, error) {
	return h.open(name, os.O_CREATE|os.O_RDWR|os.O_TRUNC)
}

func (h *fatHandle) OpenFile(name string) (File, error) {
	return h.open(name, os.O_RDWR)
}

func (h *fatHandle) ReadDir(dir string) ([]os.FileInfo, error) {
	entries, err := h.fs.ReadDir(absolute(dir))
	err = h.dev.wrap(err)
	if err != nil {
		return nil, err
	}

	return entries, nil
}

func (h *fatHandle) Mkdir(dir string) error {
	return h.dev.wrap(h.fs.Mkdir(absolute(dir)))
}

func (h *fatHandle) Label() string {
	return strings.TrimSpace(h.fs.Label())
}

type fatFile struct {
	filesystem.File

	dev *recordingDevice
}

func (f *fatFile) Read(p []byte) (int, error) {
	n, err := f.File.Read(p)

	return n, f.dev.wrap(err)
}

func (f *fatFile) Write(p []byte) (int, error) {
	n, err := f.File.Write(p)

	return n, f.dev.wrap(err)
}

// Close flushes the region; go-diskfs writes through on every call.
func (f *fatFile) Close() error {
	var errs []error

	if c, ok := f.File.(io.Closer); ok {
		errs = append(errs, c.Close())
	}

	errs = append(errs, f.dev.Sync())

	return errors.Join(errs...)
}
