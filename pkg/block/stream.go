package block

import (
	"errors"
	"fmt"
	"io"
)

var errNegativeOffset = errors.New("negative offset")

// Stream exposes a Device as a random access byte stream.
// Writes that do not cover whole sectors read the affected sectors first.
// Every sector write goes through Device.WriteSector, so a returned write is durable.
type Stream struct {
	dev     Device
	size    int64
	pos     int64
	scratch []byte
}

var (
	_ io.ReadWriteSeeker = (*Stream)(nil)
	_ io.ReaderAt        = (*Stream)(nil)
	_ io.WriterAt        = (*Stream)(nil)
)

func NewStream(d Device) *Stream {
	return &Stream{
		dev:     d,
		size:    d.Size(),
		scratch: make([]byte, SectorSize),
	}
}

func (s *Stream) Device() Device {
	return s.dev
}

func (s *Stream) Size() int64 {
	return s.size
}

// ReadAt reads up to len(p) bytes. Reads past the end of the device are short
// and return io.EOF.
func (s *Stream) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("read at %d: %w", off, errNegativeOffset)
	}

	if off >= s.size {
		return 0, io.EOF
	}

	n := int64(len(p))
	short := n > s.size-off
	if short {
		n = s.size - off
	}

	var done int64
	for done < n {
		cur := off + done
		lba := uint64(cur / SectorSize)
		inSector := cur % SectorSize
		chunk := min(n-done, SectorSize-inSector)

		if inSector == 0 && chunk == SectorSize {
			err := s.dev.ReadSector(lba, p[done:done+SectorSize])
			if err != nil {
				return int(done), err
			}
		} else {
			err := s.dev.ReadSector(lba, s.scratch)
			if err != nil {
				return int(done), err
			}

			copy(p[done:done+chunk], s.scratch[inSector:inSector+chunk])
		}

		done += chunk
	}

	if short {
		return int(done), io.EOF
	}

	return int(done), nil
}

// WriteAt writes up to len(p) bytes. Writes crossing the end of the device
// are short and return OutOfRangeError.
func (s *Stream) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("write at %d: %w", off, errNegativeOffset)
	}

	sectors := uint64(s.size / SectorSize)
	if off >= s.size {
		return 0, OutOfRangeError{LBA: uint64(off / SectorSize), Sectors: sectors}
	}

	n := int64(len(p))
	short := n > s.size-off
	if short {
		n = s.size - off
	}

	var done int64
	for done < n {
		cur := off + done
		lba := uint64(cur / SectorSize)
		inSector := cur % SectorSize
		chunk := min(n-done, SectorSize-inSector)

		if inSector == 0 && chunk == SectorSize {
			run := (n - done) / SectorSize * SectorSize

			err := s.writeSectors(lba, p[done:done+run])
			if err != nil {
				return int(done), err
			}

			chunk = run
		} else {
			err := s.dev.ReadSector(lba, s.scratch)
			if err != nil {
				return int(done), err
			}

			copy(s.scratch[inSector:inSector+chunk], p[done:done+chunk])

			err = s.dev.WriteSector(lba, s.scratch)
			if err != nil {
				return int(done), err
			}
		}

		done += chunk
	}

	if short {
		return int(done), OutOfRangeError{LBA: uint64((off + done) / SectorSize), Sectors: sectors}
	}

	return int(done), nil
}

// writeSectors writes a run of whole sectors, in one call when the device
// supports it.
func (s *Stream) writeSectors(lba uint64, p []byte) error {
	if w, ok := s.dev.(MultiSectorWriter); ok {
		return w.WriteSectors(lba, p)
	}

	for i := int64(0); i < int64(len(p)); i += SectorSize {
		err := s.dev.WriteSector(lba+uint64(i/SectorSize), p[i:i+SectorSize])
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.ReadAt(p, s.pos)
	s.pos += int64(n)

	return n, err
}

func (s *Stream) Write(p []byte) (int, error) {
	n, err := s.WriteAt(p, s.pos)
	s.pos += int64(n)

	return n, err
}

func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	var pos int64

	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = s.pos + offset
	case io.SeekEnd:
		pos = s.size + offset
	default:
		return s.pos, fmt.Errorf("invalid whence %d", whence)
	}

	if pos < 0 {
		return s.pos, fmt.Errorf("seek to %d: %w", pos, errNegativeOffset)
	}

	s.pos = pos

	return pos, nil
}

// Sync is a no-op, every sector write is already durable.
func (s *Stream) Sync() error {
	return nil
}
