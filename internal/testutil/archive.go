package testutil

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// ArchiveEntry holds data for one file in a test archive.
type ArchiveEntry struct {
	Path       string
	Data       []byte
	Compressed bool
}

// EncodeArchive writes entries in the on-disk archive layout: prefix, the
// data section, the entry table and the 8-byte footer. A non-empty prefix
// gives the data section a non-zero base, as in archives appended to other
// files.
func EncodeArchive(w io.Writer, prefix []byte, entries []ArchiveEntry) error {
	var data bytes.Buffer
	var table bytes.Buffer

	le := binary.LittleEndian
	_ = binary.Write(&table, le, int32(len(entries))) //nolint:gosec // test sizes are small
	for _, e := range entries {
		payload := e.Data
		if e.Compressed {
			var err error
			payload, err = deflate(e.Data)
			if err != nil {
				return err
			}
		}
		offset := data.Len()
		data.Write(payload)

		_ = binary.Write(&table, le, int32(len(e.Path))) //nolint:gosec // test sizes are small
		table.WriteString(e.Path)
		var flag uint8
		if e.Compressed {
			flag = 1
		}
		table.WriteByte(flag)
		_ = binary.Write(&table, le, int32(len(e.Data)))  //nolint:gosec // test sizes are small
		_ = binary.Write(&table, le, int32(len(payload))) //nolint:gosec // test sizes are small
		_ = binary.Write(&table, le, int32(offset))       //nolint:gosec // test sizes are small
	}

	var footer [8]byte
	le.PutUint32(footer[0:4], uint32(table.Len()))                        //nolint:gosec // test sizes are small
	le.PutUint32(footer[4:8], uint32(data.Len()+table.Len()+len(footer))) //nolint:gosec // test sizes are small

	for _, chunk := range [][]byte{prefix, data.Bytes(), table.Bytes(), footer[:]} {
		if _, err := w.Write(chunk); err != nil {
			return err
		}
	}
	return nil
}

// BuildArchive encodes entries into an in-memory archive.
func BuildArchive(tb testing.TB, entries []ArchiveEntry) []byte {
	tb.Helper()
	return BuildArchiveWithPrefix(tb, nil, entries)
}

// BuildArchiveWithPrefix encodes entries after prefix.
func BuildArchiveWithPrefix(tb testing.TB, prefix []byte, entries []ArchiveEntry) []byte {
	tb.Helper()
	var buf bytes.Buffer
	if err := EncodeArchive(&buf, prefix, entries); err != nil {
		tb.Fatalf("EncodeArchive() error = %v", err)
	}
	return buf.Bytes()
}

// WriteFile writes data to path on fsys, creating parent directories.
func WriteFile(tb testing.TB, fsys billy.Filesystem, path string, data []byte) {
	tb.Helper()
	if dir := fsys.Join(path, ".."); dir != "." {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			tb.Fatalf("MkdirAll(%q) error = %v", dir, err)
		}
	}
	if err := util.WriteFile(fsys, path, data, 0o644); err != nil {
		tb.Fatalf("WriteFile(%q) error = %v", path, err)
	}
}

// WriteArchive builds an archive from entries and writes it to path on fsys.
func WriteArchive(tb testing.TB, fsys billy.Filesystem, path string, entries []ArchiveEntry) []byte {
	tb.Helper()
	data := BuildArchiveWithPrefix(tb, []byte("MZ-prefix"), entries)
	WriteFile(tb, fsys, path, data)
	return data
}

// Deflate returns the zlib encoding of data.
func Deflate(tb testing.TB, data []byte) []byte {
	tb.Helper()
	out, err := deflate(data)
	if err != nil {
		tb.Fatalf("deflate error = %v", err)
	}
	return out
}

// Gzip returns the gzip encoding of data.
func Gzip(tb testing.TB, data []byte) []byte {
	tb.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		tb.Fatalf("gzip write error = %v", err)
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("gzip close error = %v", err)
	}
	return buf.Bytes()
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
