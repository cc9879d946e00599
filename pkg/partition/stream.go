package partition

import (
	"errors"
	"io"

	"github.com/e2b-dev/infra/packages/disk-image/pkg/block"
)

// deviceStream is the byte stream handed to go-diskfs. go-diskfs formats the
// errors it gets with %v, so the first device error is kept here and returned
// to the caller unchanged.
type deviceStream struct {
	*block.Stream

	err error
}

func newDeviceStream(d block.Device) *deviceStream {
	return &deviceStream{Stream: block.NewStream(d)}
}

func (s *deviceStream) record(err error) {
	if err != nil && s.err == nil && !errors.Is(err, io.EOF) {
		s.err = err
	}
}

func (s *deviceStream) ReadAt(p []byte, off int64) (int, error) {
	n, err := s.Stream.ReadAt(p, off)
	s.record(err)

	return n, err
}

func (s *deviceStream) WriteAt(p []byte, off int64) (int, error) {
	n, err := s.Stream.WriteAt(p, off)
	s.record(err)

	return n, err
}
