package archive

import (
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// inflateState tracks where the inflater is between steps.
type inflateState uint8

const (
	// stateNeedInput means the input window is empty and must be refilled
	// before the codec can make progress.
	stateNeedInput inflateState = iota
	// stateHaveOutputRoom means input is buffered and the codec can step.
	stateHaveOutputRoom
	// stateDone means the codec reached the end of the zlib stream.
	stateDone
	// stateFailed is terminal until reset.
	stateFailed
)

func (s inflateState) String() string {
	switch s {
	case stateNeedInput:
		return "need-input"
	case stateHaveOutputRoom:
		return "have-output-room"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("inflateState(%d)", uint8(s))
	}
}

// inflater decompresses one entry incrementally. It owns a fixed input
// window that it refills from the archive handle with exactly
// min(window, stored size - consumed) bytes, so the codec never reads past
// the end of the entry. The zlib codec pulls from the window through the
// inflater's Read and ReadByte methods.
type inflater struct {
	src    *countingReader
	limit  int64 // stored size of the entry
	window []byte
	in     []byte // unread part of window
	zr     io.ReadCloser
	stale  bool // zr must be reset before the next step
	state  inflateState
	err    error
	ioErr  error // refill failure, reported in place of the codec's error
}

func newInflater(src io.Reader, storedSize int64, windowSize int) *inflater {
	return &inflater{
		src:    &countingReader{R: src},
		limit:  storedSize,
		window: make([]byte, windowSize),
		state:  stateNeedInput,
	}
}

// consumed returns the number of compressed bytes pulled from the archive.
func (z *inflater) consumed() int64 {
	return z.src.N
}

// Read serves the codec from the input window.
func (z *inflater) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(z.in) == 0 {
		if err := z.refill(); err != nil {
			return 0, err
		}
	}
	n := copy(p, z.in)
	z.in = z.in[n:]
	return n, nil
}

// ReadByte serves the codec one byte at a time. Implementing io.ByteReader
// stops the codec from wrapping the inflater in its own read-ahead buffer.
func (z *inflater) ReadByte() (byte, error) {
	if len(z.in) == 0 {
		if err := z.refill(); err != nil {
			return 0, err
		}
	}
	c := z.in[0]
	z.in = z.in[1:]
	return c, nil
}

func (z *inflater) refill() error {
	z.state = stateNeedInput
	n := min(int64(len(z.window)), z.limit-z.consumed())
	if n <= 0 {
		return io.EOF
	}
	if _, err := io.ReadFull(z.src, z.window[:n]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		z.ioErr = fmt.Errorf("refill at compressed offset %d: %w", z.consumed(), err)
		return z.ioErr
	}
	z.in = z.window[:n]
	z.state = stateHaveOutputRoom
	return nil
}

// fill inflates exactly len(p) bytes into p. Running out of compressed
// input or reaching the end of the zlib stream before p is full is an error.
func (z *inflater) fill(p []byte) error {
	for len(p) > 0 {
		switch z.state {
		case stateFailed:
			return z.err
		case stateDone:
			return z.fail(fmt.Errorf("%w: stream ended with %d bytes outstanding", ErrCodec, len(p)))
		}
		if err := z.prepare(); err != nil {
			return z.fail(fmt.Errorf("%w: %w", ErrCodec, err))
		}

		n, err := z.zr.Read(p)
		p = p[n:]
		switch {
		case errors.Is(err, io.EOF):
			z.state = stateDone
		case err != nil:
			if z.ioErr != nil {
				return z.fail(z.ioErr)
			}
			return z.fail(fmt.Errorf("%w: %w", ErrCodec, err))
		}
	}
	return nil
}

// prepare initializes the codec on first use and after a reset. The zlib
// header is read here, so it consumes input like any other step.
func (z *inflater) prepare() error {
	if z.zr != nil && !z.stale {
		return nil
	}
	if z.zr == nil {
		zr, err := zlib.NewReader(z)
		if err != nil {
			return err
		}
		z.zr = zr
	} else {
		resetter, ok := z.zr.(zlib.Resetter)
		if !ok {
			return errors.New("zlib reader cannot be reset")
		}
		if err := resetter.Reset(z, nil); err != nil {
			return err
		}
	}
	z.stale = false
	return nil
}

func (z *inflater) fail(err error) error {
	z.state = stateFailed
	z.err = err
	return err
}

// reset returns the inflater to its initial state. The caller must
// reposition the source at the start of the entry.
func (z *inflater) reset() {
	z.src.N = 0
	z.in = nil
	z.state = stateNeedInput
	z.err = nil
	z.ioErr = nil
	z.stale = z.zr != nil
}

// close finalizes the codec. Failures already reported by fill are not
// repeated.
func (z *inflater) close() error {
	if z.zr == nil {
		return nil
	}
	err := z.zr.Close()
	z.zr = nil
	if z.state == stateFailed {
		return nil
	}
	return err
}
