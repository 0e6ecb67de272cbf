package archive

import (
	"errors"
	"io"
)

// errOverflow indicates a counter exceeded its maximum value.
var errOverflow = errors.New("counter overflow")

// countingReader wraps a reader and counts bytes read.
type countingReader struct {
	R io.Reader
	N int64
}

// Read implements io.Reader.
func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.R.Read(p)
	if n > 0 {
		if cr.N > (1<<63-1)-int64(n) {
			return n, errOverflow
		}
		cr.N += int64(n)
	}
	return n, err
}
