// Package region restricts a random access byte stream to a contiguous
// [start, start+length) window.
//
// Positions are region relative. Seeks are clamped to [0, length] instead of
// failing, and reads and writes are clipped at the window boundary, so a
// filesystem driver given a Region cannot touch bytes of the backing stream
// outside of it.
package region

import (
	"errors"
	"fmt"
	"io"
	"math"
)

var ErrClosed = errors.New("region is closed")

// Backing is the stream a Region is carved from.
type Backing interface {
	io.ReadWriteSeeker
	io.ReaderAt
	io.WriterAt
	Sync() error
}

type Region struct {
	backing Backing
	start   int64
	length  int64
	cursor  int64
	closed  bool

	release func()
}

var (
	_ io.ReadWriteSeeker = (*Region)(nil)
	_ io.ReaderAt        = (*Region)(nil)
	_ io.WriterAt        = (*Region)(nil)
)

// New creates a region over [start, start+length) of the backing stream and
// positions the backing stream at start. The caller must not use the backing
// stream directly while the region is open.
func New(b Backing, start, length int64) (*Region, error) {
	if start < 0 || length < 0 {
		return nil, fmt.Errorf("invalid region [%d, +%d)", start, length)
	}

	if length > math.MaxInt64-start {
		return nil, fmt.Errorf("region [%d, +%d) overflows", start, length)
	}

	_, err := b.Seek(start, io.SeekStart)
	if err != nil {
		return nil, fmt.Errorf("failed to seek to region start: %w", err)
	}

	return &Region{
		backing: b,
		start:   start,
		length:  length,
	}, nil
}

func (r *Region) Start() int64 {
	return r.start
}

// Size returns the region length in bytes.
func (r *Region) Size() int64 {
	return r.length
}

// Position returns the region relative cursor.
func (r *Region) Position() int64 {
	return r.cursor
}

func (r *Region) remaining() int64 {
	return r.length - r.cursor
}

// Seek moves the cursor. The target is computed with saturating arithmetic and
// clamped to [0, Size()]; seeking outside the region never fails.
func (r *Region) Seek(offset int64, whence int) (int64, error) {
	if r.closed {
		return 0, ErrClosed
	}

	var base int64

	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = r.cursor
	case io.SeekEnd:
		base = r.length
	default:
		return r.cursor, fmt.Errorf("invalid whence %d", whence)
	}

	pos := min(saturatingAdd(base, offset), r.length)

	_, err := r.backing.Seek(r.start+pos, io.SeekStart)
	if err != nil {
		return r.cursor, fmt.Errorf("failed to seek backing stream: %w", err)
	}

	r.cursor = pos

	return pos, nil
}

// saturatingAdd returns base+offset limited to [0, math.MaxInt64].
// base is never negative.
func saturatingAdd(base, offset int64) int64 {
	if offset >= 0 {
		if offset > math.MaxInt64-base {
			return math.MaxInt64
		}

		return base + offset
	}

	if -offset >= base || offset == math.MinInt64 {
		return 0
	}

	return base + offset
}

// Read reads at most min(len(p), Size()-Position()) bytes. At the end of the
// region it returns 0, io.EOF.
func (r *Region) Read(p []byte) (int, error) {
	if r.closed {
		return 0, ErrClosed
	}

	remaining := r.remaining()
	if remaining == 0 {
		return 0, io.EOF
	}

	if int64(len(p)) > remaining {
		p = p[:remaining]
	}

	n, err := r.backing.ReadAt(p, r.start+r.cursor)

	return n, r.advance(n, err)
}

// Write writes at most min(len(p), Size()-Position()) bytes. A clipped write
// returns io.ErrShortWrite together with the number of bytes that fit, which
// is 0 once the cursor reached the end of the region.
func (r *Region) Write(p []byte) (int, error) {
	if r.closed {
		return 0, ErrClosed
	}

	if len(p) == 0 {
		return 0, nil
	}

	remaining := r.remaining()
	if remaining == 0 {
		return 0, io.ErrShortWrite
	}

	clipped := int64(len(p)) > remaining
	if clipped {
		p = p[:remaining]
	}

	n, err := r.backing.WriteAt(p, r.start+r.cursor)
	if err == nil && clipped {
		err = io.ErrShortWrite
	}

	return n, r.advance(n, err)
}

// advance moves the cursor past n transferred bytes and keeps the backing
// stream positioned at the cursor. I/O goes through ReadAt and WriteAt, so
// other regions of the same backing cannot move it under us.
func (r *Region) advance(n int, err error) error {
	r.cursor += int64(n)

	_, seekErr := r.backing.Seek(r.start+r.cursor, io.SeekStart)
	if seekErr != nil {
		return errors.Join(err, fmt.Errorf("failed to seek backing stream: %w", seekErr))
	}

	return err
}

// ReadAt reads region relative without moving the cursor. Reads crossing the
// end of the region are short and return io.EOF.
func (r *Region) ReadAt(p []byte, off int64) (int, error) {
	if r.closed {
		return 0, ErrClosed
	}

	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}

	if off >= r.length {
		return 0, io.EOF
	}

	short := int64(len(p)) > r.length-off
	if short {
		p = p[:r.length-off]
	}

	n, err := r.backing.ReadAt(p, r.start+off)
	if err == nil && short {
		err = io.EOF
	}

	return n, err
}

// WriteAt writes region relative without moving the cursor. Writes crossing
// the end of the region are short and return io.ErrShortWrite.
func (r *Region) WriteAt(p []byte, off int64) (int, error) {
	if r.closed {
		return 0, ErrClosed
	}

	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}

	if off >= r.length {
		return 0, io.ErrShortWrite
	}

	clipped := int64(len(p)) > r.length-off
	if clipped {
		p = p[:r.length-off]
	}

	n, err := r.backing.WriteAt(p, r.start+off)
	if err == nil && clipped {
		err = io.ErrShortWrite
	}

	return n, err
}

// Flush forwards the durability request to the backing stream.
func (r *Region) Flush() error {
	if r.closed {
		return ErrClosed
	}

	err := r.backing.Sync()
	if err != nil {
		return fmt.Errorf("failed to sync backing stream: %w", err)
	}

	return nil
}

func (r *Region) Sync() error {
	return r.Flush()
}

// Close flushes the region and gives the backing stream back to its owner.
// Closing twice is a no-op.
func (r *Region) Close() error {
	if r.closed {
		return nil
	}

	err := r.Flush()

	r.closed = true
	if r.release != nil {
		r.release()
	}

	return err
}
