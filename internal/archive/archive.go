package archive

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/meigma/datfs/internal/pathutil"
	"github.com/meigma/datfs/internal/sizing"
)

// Sentinel errors.
var (
	// ErrFormat is returned when the footer or entry table is malformed or
	// does not fit inside the file.
	ErrFormat = errors.New("malformed archive")

	// ErrCodec is returned when compressed entry data cannot be inflated.
	ErrCodec = errors.New("inflate failed")
)

const (
	footerSize = 8

	// DefaultRefillBufferSize is the default size of the compressed input buffer.
	DefaultRefillBufferSize = 1 << 10

	minRefillBufferSize = 16

	// Smallest possible entry record: empty path, flag and three sizes.
	minRecordSize = 4 + 1 + 4 + 4 + 4
)

// Entry describes one file stored in an archive.
type Entry struct {
	// Path is the path as stored, typically backslash-separated.
	Path string

	// Compressed reports whether the stored data is a zlib stream.
	Compressed bool

	// Size is the uncompressed size in bytes.
	Size int64

	// StoredSize is the number of bytes the entry occupies in the data section.
	StoredSize int64

	// Offset is the position of the stored data relative to the data section.
	Offset int64
}

// Archive is an opened archive index.
//
// The entry table is immutable after Open and may be read concurrently.
// Streams opened from the archive are tracked so Close can release them.
type Archive struct {
	fsys       billy.Filesystem
	path       string
	size       int64
	modTime    time.Time
	dataBase   int64
	entries    []Entry  // on-disk order
	sorted     []int    // entries indexes ordered by key
	keys       []string // keys[i] is the lookup key of entries[sorted[i]]
	refillSize int
	logger     *slog.Logger

	mu      sync.Mutex
	streams []*Stream // most recently opened first
	closed  bool
}

// Open reads the footer and entry table of the archive at path on fsys.
// It fails without side effects when the file is missing, too small or
// malformed.
func Open(fsys billy.Filesystem, path string, opts ...Option) (*Archive, error) {
	a := &Archive{
		fsys:       fsys,
		path:       path,
		refillSize: DefaultRefillBufferSize,
	}
	for _, opt := range opts {
		opt(a)
	}

	info, err := fsys.Stat(path)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: path, Err: err}
	}
	if info.IsDir() {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fmt.Errorf("%w: is a directory", ErrFormat)}
	}

	f, err := fsys.Open(path)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	if err := a.load(f, info.Size()); err != nil {
		a.log().Debug("archive rejected", "path", path, "error", err)
		return nil, &fs.PathError{Op: "open", Path: path, Err: err}
	}
	a.size = info.Size()
	a.modTime = info.ModTime()
	a.log().Debug("archive opened", "path", path, "entries", len(a.entries), "data_base", a.dataBase)
	return a, nil
}

func (a *Archive) load(r io.ReaderAt, size int64) error {
	if size < footerSize {
		return fmt.Errorf("%w: file is %d bytes", ErrFormat, size)
	}

	var footer [footerSize]byte
	if err := readFullAt(r, footer[:], size-footerSize); err != nil {
		return err
	}
	tableSize := int64(int32(binary.LittleEndian.Uint32(footer[0:4])))   //nolint:gosec // on-disk field is signed
	contentSize := int64(int32(binary.LittleEndian.Uint32(footer[4:8]))) //nolint:gosec // on-disk field is signed

	if tableSize < 4 || tableSize > size-footerSize {
		return fmt.Errorf("%w: entry table size %d does not fit in %d bytes", ErrFormat, tableSize, size)
	}
	if contentSize < tableSize+footerSize || contentSize > size {
		return fmt.Errorf("%w: content size %d out of range", ErrFormat, contentSize)
	}

	n, err := sizing.ToInt(tableSize, ErrFormat)
	if err != nil {
		return err
	}
	table := make([]byte, n)
	if err := readFullAt(r, table, size-footerSize-tableSize); err != nil {
		return err
	}

	entries, err := parseEntries(table)
	if err != nil {
		return err
	}

	dataBase := size - contentSize
	for i := range entries {
		e := &entries[i]
		span := e.StoredSize
		if !e.Compressed {
			span = e.Size
		}
		if !sizing.Within(dataBase+e.Offset, span, size) {
			return fmt.Errorf("%w: entry %q data [%d, +%d) exceeds file size %d", ErrFormat, e.Path, dataBase+e.Offset, span, size)
		}
	}

	a.dataBase = dataBase
	a.entries = entries
	a.buildIndex()
	return nil
}

func readFullAt(r io.ReaderAt, p []byte, off int64) error {
	n, err := r.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: read %d bytes at offset %d: %w", ErrFormat, len(p), off, err)
}

func parseEntries(table []byte) ([]Entry, error) {
	d := decoder{buf: table}
	count := d.int32()
	if d.err != nil {
		return nil, d.err
	}
	if count < 0 || int64(count) > int64(len(table)/minRecordSize) {
		return nil, fmt.Errorf("%w: entry count %d does not fit in %d-byte table", ErrFormat, count, len(table))
	}

	entries := make([]Entry, 0, count)
	for i := range int(count) {
		pathLen := d.int32()
		if d.err == nil && pathLen < 0 {
			return nil, fmt.Errorf("%w: entry %d has negative path length", ErrFormat, i)
		}
		path := d.bytes(int(pathLen))
		flag := d.uint8()
		size := d.int32()
		stored := d.int32()
		offset := d.int32()
		if d.err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, d.err)
		}
		if flag > 1 {
			return nil, fmt.Errorf("%w: entry %d has compression flag %d", ErrFormat, i, flag)
		}
		if size < 0 || stored < 0 || offset < 0 {
			return nil, fmt.Errorf("%w: entry %d has negative size or offset", ErrFormat, i)
		}
		entries = append(entries, Entry{
			Path:       string(path),
			Compressed: flag == 1,
			Size:       int64(size),
			StoredSize: int64(stored),
			Offset:     int64(offset),
		})
	}
	return entries, nil
}

// decoder reads little-endian fields from the entry table. The first
// short read is sticky.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) need(n int) bool {
	if d.err != nil {
		return false
	}
	if n > len(d.buf)-d.off {
		d.err = fmt.Errorf("%w: entry table truncated at byte %d", ErrFormat, d.off)
		return false
	}
	return true
}

func (d *decoder) int32() int32 {
	if !d.need(4) {
		return 0
	}
	v := int32(binary.LittleEndian.Uint32(d.buf[d.off:])) //nolint:gosec // on-disk field is signed
	d.off += 4
	return v
}

func (d *decoder) uint8() uint8 {
	if !d.need(1) {
		return 0
	}
	v := d.buf[d.off]
	d.off++
	return v
}

func (d *decoder) bytes(n int) []byte {
	if !d.need(n) {
		return nil
	}
	v := d.buf[d.off : d.off+n]
	d.off += n
	return v
}

func (a *Archive) buildIndex() {
	a.sorted = make([]int, len(a.entries))
	for i := range a.sorted {
		a.sorted[i] = i
	}
	keys := make([]string, len(a.entries))
	for i := range a.entries {
		keys[i] = pathutil.Key(a.entries[i].Path)
	}
	// Stable so that duplicate paths resolve to the first record on disk.
	slices.SortStableFunc(a.sorted, func(x, y int) int {
		return strings.Compare(keys[x], keys[y])
	})
	a.keys = make([]string, len(a.sorted))
	for i, idx := range a.sorted {
		a.keys[i] = keys[idx]
	}
}

// Lookup finds the entry for name, ignoring ASCII case and separator style.
func (a *Archive) Lookup(name string) (*Entry, bool) {
	key := pathutil.Key(name)
	i := sort.SearchStrings(a.keys, key)
	if i < len(a.keys) && a.keys[i] == key {
		return &a.entries[a.sorted[i]], true
	}
	return nil, false
}

// Entries returns an iterator over all entries in on-disk order.
func (a *Archive) Entries() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, e := range a.entries {
			if !yield(e) {
				return
			}
		}
	}
}

// Len returns the number of entries.
func (a *Archive) Len() int {
	return len(a.entries)
}

// Path returns the host path the archive was opened from.
func (a *Archive) Path() string {
	return a.path
}

// DataBase returns the absolute offset of the data section.
func (a *Archive) DataBase() int64 {
	return a.dataBase
}

// SourceID identifies the archive file contents for cache keys. It changes
// when the file is replaced with one of a different size or modification time.
func (a *Archive) SourceID() string {
	return fmt.Sprintf("file:%s:%d:%d", a.path, a.size, a.modTime.UnixNano())
}

// OpenStreams returns the number of streams that have not been closed.
func (a *Archive) OpenStreams() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.streams)
}

// Close releases every stream still open on the archive, most recently
// opened first. Later operations on those streams fail with fs.ErrClosed.
// Closing an already closed archive is a no-op.
func (a *Archive) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	streams := a.streams
	a.streams = nil
	a.mu.Unlock()

	if len(streams) > 0 {
		a.log().Debug("closing open streams", "path", a.path, "count", len(streams))
	}
	var errs []error
	for _, s := range streams {
		s.state = streamForced
		if err := s.release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *Archive) link(s *Stream) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fs.ErrClosed
	}
	a.streams = slices.Insert(a.streams, 0, s)
	return nil
}

func (a *Archive) unlink(s *Stream) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i := slices.Index(a.streams, s); i >= 0 {
		a.streams = slices.Delete(a.streams, i, i+1)
	}
}

func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.logger
}
