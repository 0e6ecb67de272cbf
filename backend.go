package datfs

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/meigma/datfs/internal/archive"
)

// Backend identifies what a File reads from.
type Backend uint8

const (
	// BackendPlain is a host file.
	BackendPlain Backend = iota
	// BackendArchive is an archive entry.
	BackendArchive
	// BackendGzip is a gzip-compressed host file.
	BackendGzip
)

func (b Backend) String() string {
	switch b {
	case BackendPlain:
		return "plain"
	case BackendArchive:
		return "archive"
	case BackendGzip:
		return "gzip"
	default:
		return fmt.Sprintf("Backend(%d)", uint8(b))
	}
}

// backend is implemented by the three stream kinds a File dispatches to.
type backend interface {
	readByte() (byte, error)
	unreadByte() error
	readLine(size int) (string, error)
	// read fills p unless the stream ends first. It returns io.EOF only
	// when no bytes were read.
	read(p []byte) (int, error)
	write(p []byte) (int, error)
	seek(offset int64, whence int) (int64, error)
	tell() (int64, error)
	rewind() error
	eof() bool
	size() (int64, error)
	close() error
}

// entryBackend reads an archive entry.
type entryBackend struct {
	s *archive.Stream
}

func (b *entryBackend) readByte() (byte, error)           { return b.s.ReadByte() }
func (b *entryBackend) unreadByte() error                 { return b.s.UnreadByte() }
func (b *entryBackend) readLine(size int) (string, error) { return b.s.ReadLine(size) }
func (b *entryBackend) read(p []byte) (int, error)        { return b.s.Read(p) }
func (b *entryBackend) write(p []byte) (int, error)       { return b.s.Write(p) }
func (b *entryBackend) tell() (int64, error)              { return b.s.Tell(), nil }
func (b *entryBackend) rewind() error                     { return b.s.Rewind() }
func (b *entryBackend) eof() bool                         { return b.s.EOF() }
func (b *entryBackend) size() (int64, error)              { return b.s.Size(), nil }
func (b *entryBackend) close() error                      { return b.s.Close() }

func (b *entryBackend) seek(offset int64, whence int) (int64, error) {
	return b.s.Seek(offset, whence)
}

// textReader is the buffered read side shared by plain and gzip files.
// In text mode "\r\n" is returned as '\n'. Line reads always turn a
// trailing "\r\n" into '\n'.
//
// Pushed-back bytes live in a one-byte slot rather than in the
// bufio.Reader, whose UnreadByte is invalidated by the text-mode Peek.
type textReader struct {
	br    *bufio.Reader
	text  bool
	eof   bool
	n     int64 // logical bytes consumed since the last reset
	last  int   // byte returned by the latest readByte, -1 if none
	ungot int   // pushed-back byte, -1 if none
}

func newTextReader(src io.Reader, text bool) textReader {
	return textReader{br: bufio.NewReader(src), text: text, last: -1, ungot: -1}
}

func (r *textReader) reset(src io.Reader) {
	r.br.Reset(src)
	r.eof = false
	r.n = 0
	r.last = -1
	r.ungot = -1
}

// pending returns the number of bytes held in the unget slot.
func (r *textReader) pending() int64 {
	if r.ungot >= 0 {
		return 1
	}
	return 0
}

// dropPending forgets a pushed-back byte.
func (r *textReader) dropPending() {
	r.ungot = -1
	r.last = -1
}

func (r *textReader) readByte() (byte, error) {
	if r.ungot >= 0 {
		c := byte(r.ungot)
		r.ungot = -1
		r.last = int(c)
		r.n++
		return c, nil
	}
	c, err := r.br.ReadByte()
	if err != nil {
		r.last = -1
		if errors.Is(err, io.EOF) {
			r.eof = true
		}
		return 0, err
	}
	r.n++
	if c == '\r' && r.text {
		if next, err := r.br.Peek(1); err == nil && next[0] == '\n' {
			_, _ = r.br.ReadByte()
			r.n++
			c = '\n'
		}
	}
	r.last = int(c)
	return c, nil
}

func (r *textReader) unreadByte() error {
	if r.last < 0 {
		return bufio.ErrInvalidUnreadByte
	}
	r.ungot = r.last
	r.last = -1
	r.n--
	r.eof = false
	return nil
}

// skip discards up to n bytes and returns how many were discarded.
func (r *textReader) skip(n int) (int, error) {
	skipped := 0
	if n > 0 && r.ungot >= 0 {
		r.ungot = -1
		r.n++
		n--
		skipped++
	}
	r.last = -1
	d, err := r.br.Discard(n)
	r.n += int64(d)
	return skipped + d, err
}

func (r *textReader) readLine(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("datfs: ReadLine: invalid size %d", size)
	}
	line := make([]byte, 0, min(size, 256))
	for len(line) < size-1 {
		c, err := r.readByte()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		line = append(line, c)
		if c == '\n' {
			break
		}
	}
	if len(line) == 0 {
		return "", io.EOF
	}
	if n := len(line); n >= 2 && line[n-2] == '\r' && line[n-1] == '\n' {
		line = append(line[:n-2], '\n')
	}
	return string(line), nil
}

func (r *textReader) read(p []byte) (int, error) {
	r.last = -1
	off := 0
	if r.ungot >= 0 && len(p) > 0 {
		p[0] = byte(r.ungot)
		r.ungot = -1
		r.n++
		off = 1
	}
	n, err := io.ReadFull(r.br, p[off:])
	r.n += int64(n)
	n += off
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		r.eof = true
		if n == 0 {
			return 0, io.EOF
		}
		return n, nil
	}
	return n, err
}
