// Package volume formats and mounts a filesystem inside a bounded byte range,
// usually a region.Region over a partition.
package volume

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Device is the byte range a filesystem lives in. Offsets are relative to
// the start of the range.
type Device interface {
	io.ReaderAt
	io.WriterAt
	io.Seeker
	Size() int64
	Sync() error
}

type File interface {
	io.ReadWriteSeeker
	io.Closer
}

// Handle is a mounted filesystem.
type Handle interface {
	// CreateFile creates name, truncating it if it exists, and opens it for
	// reading and writing.
	CreateFile(name string) (File, error)
	OpenFile(name string) (File, error)
	ReadDir(dir string) ([]os.FileInfo, error)
	Mkdir(dir string) error
	Label() string
}

// Filesystem is the formatter and mounter of one on-disk format.
type Filesystem interface {
	Name() string
	// MinSize is the smallest Device the filesystem can be formatted into.
	MinSize() int64
	Format(d Device) error
	Mount(d Device) (Handle, error)
}

type VolumeTooSmallError struct {
	Filesystem string
	Size       int64
	MinSize    int64
}

func (e VolumeTooSmallError) Error() string {
	return fmt.Sprintf("%s needs at least %d bytes, region has %d", e.Filesystem, e.MinSize, e.Size)
}

// CheckSize returns VolumeTooSmallError when d cannot hold fs.
func CheckSize(fs Filesystem, d Device) error {
	if d.Size() < fs.MinSize() {
		return VolumeTooSmallError{
			Filesystem: fs.Name(),
			Size:       d.Size(),
			MinSize:    fs.MinSize(),
		}
	}

	return nil
}

// WriteFile creates name on h and writes data to it.
func WriteFile(h Handle, name string, data []byte) (e error) {
	f, err := h.CreateFile(name)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}

	defer func() {
		closeErr := f.Close()
		if closeErr != nil {
			e = errors.Join(e, fmt.Errorf("failed to close %s: %w", name, closeErr))
		}
	}()

	for len(data) > 0 {
		n, err := f.Write(data)
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}

		if n == 0 {
			return fmt.Errorf("failed to write %s: %w", name, io.ErrShortWrite)
		}

		data = data[n:]
	}

	return nil
}

// readChunk is a multiple of every FAT cluster size.
const readChunk = 64 << 10

// ReadFile reads the whole content of name from h.
func ReadFile(h Handle, name string) ([]byte, error) {
	f, err := h.OpenFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	var out []byte
	buf := make([]byte, readChunk)

	for {
		n, err := f.Read(buf)
		out = append(out, buf[:n]...)

		if errors.Is(err, io.EOF) {
			return out, nil
		}

		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}

		if n == 0 {
			return out, nil
		}
	}
}
