package datfs

import (
	"io"

	"github.com/go-git/go-billy/v5"

	"github.com/meigma/datfs/internal/fmode"
)

// plainBackend reads and writes a host file.
type plainBackend struct {
	f billy.File
	r textReader
}

func newPlainBackend(f billy.File, mode fmode.Mode) *plainBackend {
	return &plainBackend{f: f, r: newTextReader(f, mode.Text)}
}

// lag is how far the file offset runs ahead of the logical position.
func (b *plainBackend) lag() int64 {
	return int64(b.r.br.Buffered()) + b.r.pending()
}

// sync discards read-ahead so the file offset matches the logical position.
func (b *plainBackend) sync() error {
	if lag := b.lag(); lag > 0 {
		if _, err := b.f.Seek(-lag, io.SeekCurrent); err != nil {
			return err
		}
	}
	b.r.br.Reset(b.f)
	b.r.dropPending()
	return nil
}

func (b *plainBackend) readByte() (byte, error)           { return b.r.readByte() }
func (b *plainBackend) unreadByte() error                 { return b.r.unreadByte() }
func (b *plainBackend) readLine(size int) (string, error) { return b.r.readLine(size) }
func (b *plainBackend) read(p []byte) (int, error)        { return b.r.read(p) }
func (b *plainBackend) eof() bool                         { return b.r.eof }
func (b *plainBackend) close() error                      { return b.f.Close() }

func (b *plainBackend) write(p []byte) (int, error) {
	if err := b.sync(); err != nil {
		return 0, err
	}
	return b.f.Write(p)
}

func (b *plainBackend) seek(offset int64, whence int) (int64, error) {
	if whence == io.SeekCurrent {
		offset -= b.lag()
	}
	pos, err := b.f.Seek(offset, whence)
	if err != nil {
		return 0, err
	}
	b.r.reset(b.f)
	return pos, nil
}

func (b *plainBackend) tell() (int64, error) {
	pos, err := b.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	return pos - b.lag(), nil
}

func (b *plainBackend) rewind() error {
	_, err := b.seek(0, io.SeekStart)
	return err
}

func (b *plainBackend) size() (int64, error) {
	if err := b.sync(); err != nil {
		return 0, err
	}
	cur, err := b.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := b.f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := b.f.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}
	return end, nil
}
