package archive

import (
	"encoding/binary"
	"errors"
	"io"
	"io/fs"
	"slices"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/datfs/internal/testutil"
)

func openTestArchive(t *testing.T, entries []testutil.ArchiveEntry, opts ...Option) *Archive {
	t.Helper()
	fsys := memfs.New()
	testutil.WriteArchive(t, fsys, "master.dat", entries)
	a, err := Open(fsys, "master.dat", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

// tableOf returns the entry table slice of an encoded archive.
func tableOf(data []byte) []byte {
	footer := data[len(data)-footerSize:]
	tableSize := int(binary.LittleEndian.Uint32(footer[0:4]))
	start := len(data) - footerSize - tableSize
	return data[start : len(data)-footerSize]
}

func TestOpenAndLookup(t *testing.T) {
	t.Parallel()

	a := openTestArchive(t, []testutil.ArchiveEntry{
		{Path: `TEXT\ENGLISH\GAME\MISC.MSG`, Data: []byte("{100}{}{Hello}\r\n"), Compressed: true},
		{Path: `ART\INTRFACE\IFACE.FRM`, Data: []byte("raw bytes")},
		{Path: "readme.txt", Data: nil},
	})

	assert.Equal(t, 3, a.Len())
	assert.Equal(t, "master.dat", a.Path())
	assert.Equal(t, int64(len("MZ-prefix")), a.DataBase())

	e, ok := a.Lookup("text/english/game/misc.msg")
	require.True(t, ok)
	assert.Equal(t, `TEXT\ENGLISH\GAME\MISC.MSG`, e.Path)
	assert.True(t, e.Compressed)
	assert.Equal(t, int64(len("{100}{}{Hello}\r\n")), e.Size)

	e, ok = a.Lookup(`art\intrface\iface.frm`)
	require.True(t, ok)
	assert.False(t, e.Compressed)
	assert.Equal(t, e.Size, e.StoredSize)

	_, ok = a.Lookup("missing.txt")
	assert.False(t, ok)

	var paths []string
	for e := range a.Entries() {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{`TEXT\ENGLISH\GAME\MISC.MSG`, `ART\INTRFACE\IFACE.FRM`, "readme.txt"}, paths)
	assert.NotEmpty(t, a.SourceID())
}

func TestOpenDuplicatePathsResolveToFirst(t *testing.T) {
	t.Parallel()

	a := openTestArchive(t, []testutil.ArchiveEntry{
		{Path: "dup.txt", Data: []byte("first")},
		{Path: "DUP.TXT", Data: []byte("second!")},
	})
	e, ok := a.Lookup("dup.txt")
	require.True(t, ok)
	assert.Equal(t, int64(5), e.Size)
}

func TestOpenEmptyArchive(t *testing.T) {
	t.Parallel()

	a := openTestArchive(t, nil)
	assert.Zero(t, a.Len())
	_, ok := a.Lookup("anything")
	assert.False(t, ok)
}

func TestOpenRejectsMalformed(t *testing.T) {
	t.Parallel()

	valid := testutil.BuildArchive(t, []testutil.ArchiveEntry{
		{Path: "a.txt", Data: []byte("alpha")},
	})

	patch := func(fn func(data []byte)) []byte {
		data := slices.Clone(valid)
		fn(data)
		return data
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"too small", []byte{1, 2, 3}},
		{"table larger than file", patch(func(d []byte) {
			binary.LittleEndian.PutUint32(d[len(d)-8:], 1<<20)
		})},
		{"negative table size", patch(func(d []byte) {
			binary.LittleEndian.PutUint32(d[len(d)-8:], 0xFFFFFFFF)
		})},
		{"content size beyond file", patch(func(d []byte) {
			binary.LittleEndian.PutUint32(d[len(d)-4:], uint32(len(d)+1)) //nolint:gosec // test size
		})},
		{"entry count overruns table", patch(func(d []byte) {
			binary.LittleEndian.PutUint32(tableOf(d)[0:4], 2)
		})},
		{"entry data beyond file", patch(func(d []byte) {
			table := tableOf(d)
			binary.LittleEndian.PutUint32(table[len(table)-4:], 1<<20)
		})},
		{"bad compression flag", patch(func(d []byte) {
			table := tableOf(d)
			table[4+4+len("a.txt")] = 7
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fsys := memfs.New()
			testutil.WriteFile(t, fsys, "bad.dat", tt.data)
			_, err := Open(fsys, "bad.dat")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrFormat)

			var pathErr *fs.PathError
			require.ErrorAs(t, err, &pathErr)
			assert.Equal(t, "bad.dat", pathErr.Path)
		})
	}
}

func TestOpenMissingAndDirectory(t *testing.T) {
	t.Parallel()

	fsys := memfs.New()
	_, err := Open(fsys, "nope.dat")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	require.NoError(t, fsys.MkdirAll("data", 0o755))
	_, err = Open(fsys, "data")
	assert.ErrorIs(t, err, ErrFormat)
}

func TestCloseReleasesStreams(t *testing.T) {
	t.Parallel()

	a := openTestArchive(t, []testutil.ArchiveEntry{
		{Path: "one.txt", Data: []byte("1"), Compressed: true},
		{Path: "two.txt", Data: []byte("2")},
		{Path: "three.txt", Data: []byte("3"), Compressed: true},
	})

	s1, err := a.OpenStream("one.txt", "rb")
	require.NoError(t, err)
	s2, err := a.OpenStream("two.txt", "rb")
	require.NoError(t, err)
	s3, err := a.OpenStream("three.txt", "rb")
	require.NoError(t, err)
	assert.Equal(t, 3, a.OpenStreams())

	require.NoError(t, s2.Close())
	assert.Equal(t, 2, a.OpenStreams())
	assert.ErrorIs(t, s2.Close(), fs.ErrClosed)

	require.NoError(t, a.Close())
	assert.Zero(t, a.OpenStreams())

	_, err = s1.ReadByte()
	assert.ErrorIs(t, err, fs.ErrClosed)
	assert.NoError(t, s1.Close(), "owner close after archive close")
	assert.ErrorIs(t, s1.Close(), fs.ErrClosed)
	assert.NoError(t, s3.Close())

	_, err = a.OpenStream("one.txt", "rb")
	assert.ErrorIs(t, err, fs.ErrClosed)
	assert.NoError(t, a.Close(), "second close is a no-op")
}

func TestFind(t *testing.T) {
	t.Parallel()

	a := openTestArchive(t, []testutil.ArchiveEntry{
		{Path: `MAPS\ARTEMPLE.MAP`, Data: []byte("m1")},
		{Path: `MAPS\ARCAVES.MAP`, Data: []byte("m2")},
		{Path: `MAPS\ARTEMPLE.GAM`, Data: []byte("g1")},
		{Path: `TEXT\MISC.MSG`, Data: []byte("t1")},
	})

	f, ok := a.FindFirst("maps/*.map")
	require.True(t, ok)
	assert.Equal(t, `MAPS\ARTEMPLE.MAP`, f.Name())
	assert.Equal(t, "maps/*.map", f.Pattern())
	require.True(t, f.Next())
	assert.Equal(t, `MAPS\ARCAVES.MAP`, f.Name())
	assert.False(t, f.Next())
	assert.Empty(t, f.Name())

	_, ok = a.FindFirst("*.sav")
	assert.False(t, ok)

	var names []string
	for e := range a.Match("*.GAM") {
		names = append(names, e.Path)
	}
	assert.Equal(t, []string{`MAPS\ARTEMPLE.GAM`}, names)

	count := 0
	for range a.Match("*") {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestOpenStreamModes(t *testing.T) {
	t.Parallel()

	a := openTestArchive(t, []testutil.ArchiveEntry{{Path: "a.txt", Data: []byte("alpha")}})

	for _, mode := range []string{"w", "rb+", "a"} {
		_, err := a.OpenStream("a.txt", mode)
		assert.ErrorIs(t, err, errors.ErrUnsupported, "mode %q", mode)
	}
	_, err := a.OpenStream("a.txt", "q")
	assert.Error(t, err)

	_, err = a.OpenStream("b.txt", "rb")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	s, err := a.OpenStream("A.TXT", "rt")
	require.NoError(t, err)
	defer s.Close()
	assert.True(t, s.Text())

	data, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))
}
