package datfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/datfs/internal/archive"
	"github.com/meigma/datfs/internal/fmode"
	"github.com/meigma/datfs/internal/pathutil"
	"github.com/meigma/datfs/internal/sizing"
)

// Interface compliance.
var (
	_ fs.File            = (*File)(nil)
	_ io.ReadWriteSeeker = (*File)(nil)
	_ io.ByteScanner     = (*File)(nil)
	_ io.ByteWriter      = (*File)(nil)
	_ io.StringWriter    = (*File)(nil)
)

// File is an open file from any backend.
//
// A File is not safe for concurrent use.
type File struct {
	vfs    *VFS
	name   string
	mode   fmode.Mode
	kind   Backend
	b      backend
	closed bool
}

func newFile(v *VFS, name string, mode fmode.Mode, kind Backend, b backend) *File {
	return &File{vfs: v, name: name, mode: mode, kind: kind, b: b}
}

// Name returns the name the file was opened with.
func (f *File) Name() string {
	return f.name
}

// Backend reports what the file reads from.
func (f *File) Backend() Backend {
	return f.kind
}

// Mode returns the mode string the file was opened with.
func (f *File) Mode() string {
	return f.mode.String()
}

func (f *File) pathError(op string, err error) error {
	return &fs.PathError{Op: op, Path: f.name, Err: err}
}

func (f *File) checkRead(op string) error {
	if f.closed {
		return f.pathError(op, fs.ErrClosed)
	}
	if !f.mode.Readable() {
		return f.pathError(op, fs.ErrPermission)
	}
	return nil
}

func (f *File) checkWrite(op string) error {
	if f.closed {
		return f.pathError(op, fs.ErrClosed)
	}
	if !f.mode.Writable() {
		return f.pathError(op, fs.ErrPermission)
	}
	return nil
}

// ReadByte reads one byte. Text-mode files return "\r\n" as '\n'.
func (f *File) ReadByte() (byte, error) {
	if err := f.checkRead("read"); err != nil {
		return 0, err
	}
	return f.b.readByte()
}

// UnreadByte pushes back the byte most recently returned by ReadByte.
func (f *File) UnreadByte() error {
	if err := f.checkRead("unread"); err != nil {
		return err
	}
	return f.b.unreadByte()
}

// ReadLine reads at most size-1 bytes, stopping after a newline, which is
// kept. A line ending in "\r\n" is returned ending in '\n'. It returns
// io.EOF when nothing could be read.
func (f *File) ReadLine(size int) (string, error) {
	if err := f.checkRead("read"); err != nil {
		return "", err
	}
	return f.b.readLine(size)
}

// Read implements io.Reader.
func (f *File) Read(p []byte) (int, error) {
	if err := f.checkRead("read"); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	return f.read(p)
}

// read passes p to the backend, splitting it at progress chunk boundaries.
func (f *File) read(p []byte) (int, error) {
	pr := f.vfs.progress
	if pr == nil {
		return f.b.read(p)
	}
	total := 0
	for len(p) > 0 {
		k := min(len(p), pr.budget())
		n, err := f.b.read(p[:k])
		pr.add(f.name, n)
		total += n
		if err != nil {
			if total > 0 && errors.Is(err, io.EOF) {
				return total, nil
			}
			return total, err
		}
		if n < k {
			break
		}
		p = p[n:]
	}
	return total, nil
}

// ReadItems reads count items of size bytes into p and returns the number
// of whole items read. It returns io.EOF only when nothing was read.
func (f *File) ReadItems(p []byte, size, count int) (int, error) {
	if err := f.checkRead("read"); err != nil {
		return 0, err
	}
	if size <= 0 || count <= 0 {
		return 0, nil
	}
	want, ok := sizing.MulInt(size, count)
	if !ok || want > len(p) {
		return 0, f.pathError("read", io.ErrShortBuffer)
	}
	n, err := f.read(p[:want])
	return n / size, err
}

// Write implements io.Writer. Archive entries and gzip files reject writes.
func (f *File) Write(p []byte) (int, error) {
	if err := f.checkWrite("write"); err != nil {
		return 0, err
	}
	return f.b.write(p)
}

// WriteByte writes a single byte.
func (f *File) WriteByte(c byte) error {
	_, err := f.Write([]byte{c})
	return err
}

// WriteString writes s.
func (f *File) WriteString(s string) (int, error) {
	return f.Write([]byte(s))
}

// WriteItems writes count items of size bytes from p and returns the
// number of whole items written.
func (f *File) WriteItems(p []byte, size, count int) (int, error) {
	if size <= 0 || count <= 0 {
		return 0, nil
	}
	want, ok := sizing.MulInt(size, count)
	if !ok || want > len(p) {
		return 0, f.pathError("write", io.ErrShortBuffer)
	}
	n, err := f.Write(p[:want])
	return n / size, err
}

// Printf writes formatted output.
func (f *File) Printf(format string, args ...any) (int, error) {
	return fmt.Fprintf(f, format, args...)
}

// Seek implements io.Seeker. Text-mode archive entries accept only
// rewinds and Seek(0, io.SeekCurrent); gzip files cannot seek from the end.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, f.pathError("seek", fs.ErrClosed)
	}
	return f.b.seek(offset, whence)
}

// Tell returns the current position.
func (f *File) Tell() (int64, error) {
	if f.closed {
		return 0, f.pathError("tell", fs.ErrClosed)
	}
	return f.b.tell()
}

// Rewind seeks to the start and clears the end-of-file and error state.
func (f *File) Rewind() error {
	if f.closed {
		return f.pathError("rewind", fs.ErrClosed)
	}
	return f.b.rewind()
}

// EOF reports whether a read has reached the end of the file.
func (f *File) EOF() bool {
	return !f.closed && f.b.eof()
}

// Size returns the file size: the uncompressed size for archive entries,
// the current length for host files and zero for gzip files.
func (f *File) Size() (int64, error) {
	if f.closed {
		return 0, f.pathError("size", fs.ErrClosed)
	}
	return f.b.size()
}

// Stat implements fs.File.
func (f *File) Stat() (fs.FileInfo, error) {
	size, err := f.Size()
	if err != nil {
		return nil, err
	}
	return &fileInfo{name: pathutil.Base(f.name), size: size}, nil
}

// Close releases the file. Closing twice returns an error wrapping
// fs.ErrClosed.
func (f *File) Close() error {
	if f.closed {
		return f.pathError("close", fs.ErrClosed)
	}
	f.closed = true
	return f.b.close()
}

// cacheKey returns the cache key for compressed archive entries.
func (f *File) cacheKey() (digest.Digest, int64, bool) {
	eb, ok := f.b.(*entryBackend)
	if !ok {
		return "", 0, false
	}
	entry := eb.s.Entry()
	if !entry.Compressed {
		return "", 0, false
	}
	return entryCacheKey(eb.s.Archive(), entry.Path), entry.Size, true
}

// entryCacheKey identifies the decompressed content of an archive entry.
func entryCacheKey(a *archive.Archive, path string) digest.Digest {
	return digest.FromString(a.SourceID() + "\x00" + pathutil.Key(path))
}

type fileInfo struct {
	name string
	size int64
}

func (fi *fileInfo) Name() string       { return fi.name }
func (fi *fileInfo) Size() int64        { return fi.size }
func (fi *fileInfo) Mode() fs.FileMode  { return 0o444 }
func (fi *fileInfo) ModTime() time.Time { return time.Time{} }
func (fi *fileInfo) IsDir() bool        { return false }
func (fi *fileInfo) Sys() any           { return nil }
