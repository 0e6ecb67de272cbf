package datfs

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-git/go-billy/v5"
	"github.com/klauspost/compress/gzip"

	"github.com/meigma/datfs/internal/fmode"
)

var gzipMagic = []byte{0x1f, 0x8b}

// gzipBackend reads a gzip-compressed host file. Positions are in
// decompressed bytes; seeking backwards restarts decompression.
type gzipBackend struct {
	f  billy.File
	zr *gzip.Reader
	r  textReader
}

func newGzipBackend(f billy.File, mode fmode.Mode) (*gzipBackend, error) {
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCodec, err)
	}
	return &gzipBackend{f: f, zr: zr, r: newTextReader(zr, mode.Text)}, nil
}

func (b *gzipBackend) readByte() (byte, error)           { return b.r.readByte() }
func (b *gzipBackend) unreadByte() error                 { return b.r.unreadByte() }
func (b *gzipBackend) readLine(size int) (string, error) { return b.r.readLine(size) }
func (b *gzipBackend) read(p []byte) (int, error)        { return b.r.read(p) }
func (b *gzipBackend) tell() (int64, error)              { return b.r.n, nil }
func (b *gzipBackend) eof() bool                         { return b.r.eof }

// size is always zero; the decompressed length is unknown without reading
// the whole stream.
func (b *gzipBackend) size() (int64, error) { return 0, nil }

func (b *gzipBackend) write([]byte) (int, error) {
	return 0, fmt.Errorf("%w: gzip files are read-only", ErrUnsupported)
}

func (b *gzipBackend) seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = b.r.n + offset
	case io.SeekEnd:
		return b.r.n, fmt.Errorf("%w: gzip files cannot seek from the end", ErrUnsupported)
	default:
		return b.r.n, fmt.Errorf("datfs: Seek: invalid whence %d", whence)
	}
	if target < 0 {
		return b.r.n, fmt.Errorf("datfs: Seek: negative position %d", target)
	}
	if target < b.r.n {
		if err := b.rewind(); err != nil {
			return 0, err
		}
	}
	_, err := b.r.skip(int(target - b.r.n))
	if errors.Is(err, io.EOF) {
		b.r.eof = true
		return b.r.n, nil
	}
	return b.r.n, err
}

func (b *gzipBackend) rewind() error {
	if _, err := b.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := b.zr.Reset(b.f); err != nil {
		return fmt.Errorf("%w: %w", ErrCodec, err)
	}
	b.r.reset(b.zr)
	return nil
}

func (b *gzipBackend) close() error {
	return errors.Join(b.zr.Close(), b.f.Close())
}
