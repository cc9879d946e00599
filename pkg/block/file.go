package block

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

type LockedError struct {
	Path string
}

func (e LockedError) Error() string {
	return fmt.Sprintf("device %s is locked by another process", e.Path)
}

type options struct {
	capacity    int64
	lock        bool
	readOnly    bool
	preallocate bool
}

type Option func(*options)

// WithCapacity sets the size an empty backing file is grown to.
func WithCapacity(size int64) Option {
	return func(o *options) {
		o.capacity = size
	}
}

// WithExclusiveLock takes a non-blocking exclusive flock on the backing file
// for the lifetime of the device.
func WithExclusiveLock() Option {
	return func(o *options) {
		o.lock = true
	}
}

func WithReadOnly() Option {
	return func(o *options) {
		o.readOnly = true
	}
}

// WithPreallocation reserves the blocks of a newly grown file instead of
// leaving it sparse.
func WithPreallocation() Option {
	return func(o *options) {
		o.preallocate = true
	}
}

func newOptions(opts []Option) options {
	o := options{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// File is a Device backed by a regular file.
type File struct {
	f    *os.File
	path string
	size int64
}

var (
	_ Device            = (*File)(nil)
	_ MultiSectorWriter = (*File)(nil)
)

func OpenFile(path string, opts ...Option) (*File, error) {
	o := newOptions(opts)

	f, size, err := openBacking(path, o)
	if err != nil {
		return nil, err
	}

	return &File{
		f:    f,
		path: path,
		size: size,
	}, nil
}

// openBacking opens or creates the backing file, locks it when requested and
// grows it to the configured capacity when it is empty.
func openBacking(path string, o options) (*os.File, int64, error) {
	flag := os.O_RDWR | os.O_CREATE
	if o.readOnly {
		flag = os.O_RDONLY
	}

	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open device file: %w", err)
	}

	if o.lock {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, 0, errors.Join(LockedError{Path: path}, f.Close())
		}

		if err != nil {
			return nil, 0, errors.Join(fmt.Errorf("failed to lock device file: %w", err), f.Close())
		}
	}

	info, err := f.Stat()
	if err != nil {
		return nil, 0, errors.Join(fmt.Errorf("failed to get device file info: %w", err), f.Close())
	}

	size := info.Size()
	if size == 0 && !o.readOnly {
		size = alignDown(o.capacity)

		err = grow(f, size, o.preallocate)
		if err != nil {
			return nil, 0, errors.Join(err, f.Close())
		}
	}

	return f, alignDown(size), nil
}

func grow(f *os.File, size int64, preallocate bool) error {
	if preallocate {
		err := fallocate(f, size)
		if err != nil {
			return fmt.Errorf("failed to preallocate device file: %w", err)
		}
	}

	err := f.Truncate(size)
	if err != nil {
		return fmt.Errorf("failed to grow device file: %w", err)
	}

	return nil
}

func (d *File) Path() string {
	return d.path
}

func (d *File) Size() int64 {
	return d.size
}

func (d *File) ReadSector(lba uint64, p []byte) error {
	err := checkSector(uint64(d.size/SectorSize), lba, p)
	if err != nil {
		return err
	}

	_, err = d.f.ReadAt(p, Offset(lba))
	if err != nil {
		return fmt.Errorf("failed to read sector %d: %w", lba, err)
	}

	return nil
}

func (d *File) WriteSector(lba uint64, p []byte) error {
	err := checkSector(uint64(d.size/SectorSize), lba, p)
	if err != nil {
		return err
	}

	_, err = d.f.WriteAt(p, Offset(lba))
	if err != nil {
		return fmt.Errorf("failed to write sector %d: %w", lba, err)
	}

	err = d.f.Sync()
	if err != nil {
		return fmt.Errorf("failed to sync sector %d: %w", lba, err)
	}

	return nil
}

// WriteSectors writes len(p)/SectorSize consecutive sectors starting at lba
// and syncs the file once.
func (d *File) WriteSectors(lba uint64, p []byte) error {
	err := checkSectors(uint64(d.size/SectorSize), lba, p)
	if err != nil {
		return err
	}

	_, err = d.f.WriteAt(p, Offset(lba))
	if err != nil {
		return fmt.Errorf("failed to write sectors %d+%d: %w", lba, int64(len(p))/SectorSize, err)
	}

	err = d.f.Sync()
	if err != nil {
		return fmt.Errorf("failed to sync sectors %d+%d: %w", lba, int64(len(p))/SectorSize, err)
	}

	return nil
}

// Close releases the lock, if any, together with the file descriptor.
func (d *File) Close() error {
	err := d.f.Close()
	if err != nil {
		return fmt.Errorf("error closing device file: %w", err)
	}

	return nil
}
