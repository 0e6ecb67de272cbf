package archive

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/go-git/go-billy/v5"

	"github.com/meigma/datfs/internal/fmode"
	"github.com/meigma/datfs/internal/sizing"
)

// ErrUnsupported is returned for writes and for seeks that text streams
// cannot honor.
var ErrUnsupported = errors.ErrUnsupported

type streamFlag uint8

const (
	flagEOF streamFlag = 1 << iota
	flagError
	flagText
	// flagUnget marks a byte pushed back by the caller.
	flagUnget
	// flagLookahead marks a decompressed byte read ahead while collapsing
	// "\r\n" and not yet delivered.
	flagLookahead
)

type streamState uint8

const (
	streamOpen streamState = iota
	// streamForced means the archive closed the stream; the owner's first
	// Close still succeeds.
	streamForced
	streamClosed
)

// Stream reads a single archive entry.
//
// Position counts bytes of the entry's uncompressed data consumed, so in
// text mode a collapsed "\r\n" advances it by two. A Stream is not safe for
// concurrent use.
type Stream struct {
	archive *Archive
	entry   *Entry
	raw     billy.File
	br      *bufio.Reader // uncompressed entries only
	inf     *inflater     // compressed entries only

	flags     streamFlag
	ungotten  byte
	lookahead byte
	last      byte
	hasLast   bool
	position  int64
	err       error
	state     streamState
}

// OpenStream opens the entry name for reading. mode must be a read-only
// mode string; a 't' in it enables "\r\n" collapsing.
func (a *Archive) OpenStream(name, mode string) (*Stream, error) {
	m, err := fmode.Parse(mode)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	if !m.ReadOnly() {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fmt.Errorf("%w: archive entries are read-only", ErrUnsupported)}
	}
	entry, ok := a.Lookup(name)
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}

	raw, err := a.fsys.Open(a.path)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	s := &Stream{archive: a, entry: entry, raw: raw}
	if m.Text {
		s.flags |= flagText
	}
	if _, err := raw.Seek(s.dataStart(), io.SeekStart); err != nil {
		raw.Close()
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	if entry.Compressed {
		s.inf = newInflater(raw, entry.StoredSize, a.refillSize)
	} else {
		s.br = bufio.NewReaderSize(raw, a.refillSize)
	}
	if err := a.link(s); err != nil {
		raw.Close()
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return s, nil
}

func (s *Stream) dataStart() int64 {
	return s.archive.dataBase + s.entry.Offset
}

// Entry returns the index record the stream reads.
func (s *Stream) Entry() Entry {
	return *s.entry
}

// Archive returns the archive the stream was opened from.
func (s *Stream) Archive() *Archive {
	return s.archive
}

// Size returns the uncompressed size of the entry.
func (s *Stream) Size() int64 {
	return s.entry.Size
}

// EOF reports whether a read has hit the end of the entry.
func (s *Stream) EOF() bool {
	return s.flags&flagEOF != 0
}

// Err returns the sticky error that put the stream in the failed state.
func (s *Stream) Err() error {
	if s.flags&flagError == 0 {
		return nil
	}
	return s.err
}

// Text reports whether the stream collapses "\r\n".
func (s *Stream) Text() bool {
	return s.flags&flagText != 0
}

// Tell returns the logical position. A pushed-back byte counts as unread.
func (s *Stream) Tell() int64 {
	if s.flags&flagUnget != 0 {
		return s.position - 1
	}
	return s.position
}

// CompressedOffset returns the number of stored bytes consumed so far.
// It equals Tell for uncompressed entries.
func (s *Stream) CompressedOffset() int64 {
	if s.inf != nil {
		return s.inf.consumed()
	}
	return s.position
}

func (s *Stream) readable() error {
	switch {
	case s.state != streamOpen:
		return fs.ErrClosed
	case s.flags&flagError != 0:
		return s.err
	case s.flags&flagEOF != 0:
		return io.EOF
	}
	return nil
}

// failed records err. io.EOF sets the end-of-entry flag; anything else
// sets the error flag, which only Rewind clears.
func (s *Stream) failed(err error) error {
	if errors.Is(err, io.EOF) {
		s.flags |= flagEOF
		return io.EOF
	}
	s.flags |= flagError
	s.err = err
	return err
}

// ReadByte returns the next logical byte.
func (s *Stream) ReadByte() (byte, error) {
	if err := s.readable(); err != nil {
		return 0, err
	}
	if s.flags&flagUnget != 0 {
		s.flags &^= flagUnget
		s.last, s.hasLast = s.ungotten, true
		return s.ungotten, nil
	}
	c, err := s.readChar()
	if err != nil {
		return 0, s.failed(err)
	}
	s.last, s.hasLast = c, true
	return c, nil
}

// UnreadByte pushes back the byte most recently returned by ReadByte.
func (s *Stream) UnreadByte() error {
	if !s.hasLast {
		return errors.New("archive: UnreadByte: no byte to unread")
	}
	return s.Unget(s.last)
}

// Unget pushes c back so the next read returns it. Only one byte can be
// pending. Unget clears the end-of-entry flag.
func (s *Stream) Unget(c byte) error {
	if s.state != streamOpen {
		return fs.ErrClosed
	}
	if s.flags&flagUnget != 0 {
		return errors.New("archive: Unget: a byte is already pending")
	}
	s.ungotten = c
	s.flags |= flagUnget
	s.flags &^= flagEOF
	s.hasLast = false
	return nil
}

func (s *Stream) readChar() (byte, error) {
	if s.inf != nil {
		return s.readCharCompressed()
	}
	return s.readCharRaw()
}

func (s *Stream) readCharCompressed() (byte, error) {
	if s.position >= s.entry.Size {
		return 0, io.EOF
	}
	var b [1]byte
	if err := s.inflate(b[:]); err != nil {
		return 0, err
	}
	c := b[0]
	if c == '\r' && s.Text() && s.position < s.entry.Size {
		if err := s.inflate(b[:]); err == nil {
			if b[0] == '\n' {
				return '\n', nil
			}
			s.lookahead = b[0]
			s.flags |= flagLookahead
			s.position--
		}
	}
	return c, nil
}

func (s *Stream) readCharRaw() (byte, error) {
	if s.position >= s.entry.Size {
		return 0, io.EOF
	}
	c, err := s.br.ReadByte()
	if err != nil {
		return 0, truncated(err)
	}
	s.position++
	if c == '\r' && s.Text() && s.position < s.entry.Size {
		next, err := s.br.ReadByte()
		if err == nil {
			if next == '\n' {
				s.position++
				return '\n', nil
			}
			_ = s.br.UnreadByte()
		}
	}
	return c, nil
}

// inflate decompresses exactly len(p) bytes, draining the lookahead first.
func (s *Stream) inflate(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if s.flags&flagLookahead != 0 {
		p[0] = s.lookahead
		s.flags &^= flagLookahead
		s.position++
		p = p[1:]
	}
	if err := s.inf.fill(p); err != nil {
		return err
	}
	s.position += int64(len(p))
	return nil
}

// truncated maps a premature end of the archive file to io.ErrUnexpectedEOF
// so it is reported as a failure rather than as the end of the entry.
func truncated(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// ReadLine reads up to size-1 bytes, stopping after a '\n' which is kept.
// It returns io.EOF when no bytes could be read.
func (s *Stream) ReadLine(size int) (string, error) {
	if err := s.readable(); err != nil {
		return "", err
	}
	if size <= 0 {
		return "", fmt.Errorf("archive: ReadLine: invalid size %d", size)
	}
	if size == 1 {
		// No room for a byte. The stream position, including a pending
		// unget, is left alone.
		return "", io.EOF
	}
	line := make([]byte, 0, min(size, 256))
	if s.flags&flagUnget != 0 {
		s.flags &^= flagUnget
		line = append(line, s.ungotten)
		size--
	}
	for range size - 1 {
		c, err := s.readChar()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return "", s.failed(err)
			}
			s.flags |= flagEOF
			break
		}
		line = append(line, c)
		if c == '\n' {
			break
		}
	}
	s.hasLast = false
	if len(line) == 0 {
		return "", s.failed(io.EOF)
	}
	return string(line), nil
}

// ReadItems reads up to count items of size bytes each into p and returns
// the number of whole items read. A request that runs past the end of the
// entry is clamped, sets EOF and still returns the bytes that were
// available; a trailing partial item is consumed but not counted.
func (s *Stream) ReadItems(p []byte, size, count int) (int, error) {
	if err := s.readable(); err != nil {
		return 0, err
	}
	if size <= 0 || count <= 0 {
		return 0, nil
	}
	want, ok := sizing.MulInt(size, count)
	if !ok || want > len(p) {
		return 0, io.ErrShortBuffer
	}

	remaining := s.entry.Size - s.position
	if s.flags&flagUnget != 0 {
		remaining++
	}
	if int64(want) > remaining {
		want = int(remaining)
		s.flags |= flagEOF
	}
	s.hasLast = false

	served := 0
	if want > 0 && s.flags&flagUnget != 0 {
		p[0] = s.ungotten
		s.flags &^= flagUnget
		served = 1
	}
	if want > served {
		buf := p[served:want]
		if s.inf != nil {
			if err := s.inflate(buf); err != nil {
				return 0, s.failed(err)
			}
			served = want
		} else {
			n, err := io.ReadFull(s.br, buf)
			s.position += int64(n)
			served += n
			if err != nil {
				return served / size, s.failed(truncated(err))
			}
		}
	}
	if served == 0 {
		return 0, io.EOF
	}
	return served / size, nil
}

// Read implements io.Reader.
func (s *Stream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return s.ReadItems(p, 1, len(p))
}

// Seek moves to a new logical position. Text streams accept only
// Seek(0, io.SeekStart) and Seek(0, io.SeekCurrent). Seeking a compressed
// entry backwards restarts inflation from the beginning of the entry and
// discards output up to the target.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	if s.state != streamOpen {
		return 0, fs.ErrClosed
	}
	if s.Text() && (offset != 0 || whence == io.SeekEnd) {
		return s.Tell(), fmt.Errorf("%w: text streams only seek to the start or current position", ErrUnsupported)
	}

	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = s.Tell() + offset
	case io.SeekEnd:
		target = s.entry.Size + offset
	default:
		return s.Tell(), fmt.Errorf("archive: Seek: invalid whence %d", whence)
	}
	if target < 0 || target > s.entry.Size {
		return s.Tell(), fmt.Errorf("archive: Seek: offset %d outside entry of %d bytes", target, s.entry.Size)
	}

	if err := s.seekTo(target); err != nil {
		return s.Tell(), s.failed(err)
	}
	return s.position, nil
}

func (s *Stream) seekTo(target int64) error {
	s.flags &^= flagEOF
	s.hasLast = false
	if target == s.position {
		s.flags &^= flagUnget
		return nil
	}
	s.flags &^= flagUnget

	if s.inf == nil {
		if _, err := s.raw.Seek(s.dataStart()+target, io.SeekStart); err != nil {
			return err
		}
		s.br.Reset(s.raw)
		s.position = target
		return nil
	}

	if target < s.position {
		if err := s.rewind(); err != nil {
			return err
		}
	}
	return s.discard(target - s.position)
}

func (s *Stream) rewind() error {
	if _, err := s.raw.Seek(s.dataStart(), io.SeekStart); err != nil {
		return err
	}
	if s.inf != nil {
		s.inf.reset()
	} else {
		s.br.Reset(s.raw)
	}
	s.position = 0
	s.hasLast = false
	s.flags &^= flagEOF | flagUnget | flagLookahead
	return nil
}

func (s *Stream) discard(n int64) error {
	var scratch [512]byte
	for n > 0 {
		k := min(n, int64(len(scratch)))
		if err := s.inflate(scratch[:k]); err != nil {
			return err
		}
		n -= k
	}
	return nil
}

// Rewind moves to the start of the entry and clears both the EOF and
// error flags.
func (s *Stream) Rewind() error {
	if s.state != streamOpen {
		return fs.ErrClosed
	}
	if err := s.rewind(); err != nil {
		return s.failed(err)
	}
	s.flags &^= flagError
	s.err = nil
	return nil
}

// Write always fails; archive entries are read-only.
func (s *Stream) Write([]byte) (int, error) {
	return 0, fmt.Errorf("archive: write %s: %w", s.entry.Path, ErrUnsupported)
}

// Close releases the stream and detaches it from its archive.
func (s *Stream) Close() error {
	switch s.state {
	case streamClosed:
		return fs.ErrClosed
	case streamForced:
		s.state = streamClosed
		return nil
	}
	s.archive.unlink(s)
	return s.release()
}

func (s *Stream) release() error {
	if s.state == streamOpen {
		s.state = streamClosed
	}
	var errs []error
	if s.inf != nil {
		errs = append(errs, s.inf.close())
	}
	errs = append(errs, s.raw.Close())
	return errors.Join(errs...)
}
