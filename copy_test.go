package datfs

import (
	"bytes"
	"io"
	"io/fs"
	"testing"

	"github.com/go-git/go-billy/v5/util"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/datfs/internal/testutil"
)

func TestCopyCompressedRoundTrip(t *testing.T) {
	t.Parallel()

	content := bytes.Repeat([]byte("save game state "), 64)
	v, fsys := newTestVFS(t)
	testutil.WriteFile(t, fsys, "save/slot01.sav", content)

	require.NoError(t, v.CopyCompressed("save/slot01.sav", "backup/slot01.sav"))

	raw, err := util.ReadFile(fsys, "backup/slot01.sav")
	require.NoError(t, err)
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	require.NoError(t, err)
	unpacked, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, content, unpacked)

	// Open decompresses the copy transparently.
	f := openFile(t, v, "backup/slot01.sav", "rb")
	assert.Equal(t, BackendGzip, f.Backend())

	require.NoError(t, v.CopyDecompressed("backup/slot01.sav", "restore/slot01.sav"))
	restored, err := util.ReadFile(fsys, "restore/slot01.sav")
	require.NoError(t, err)
	assert.Equal(t, content, restored)
}

func TestCopyCompressedKeepsGzipSource(t *testing.T) {
	t.Parallel()

	v, fsys := newTestVFS(t)
	packed := testutil.Gzip(t, []byte("already packed"))
	testutil.WriteFile(t, fsys, "in.gz", packed)

	require.NoError(t, v.CopyCompressed("in.gz", "out.gz"))

	got, err := util.ReadFile(fsys, "out.gz")
	require.NoError(t, err)
	assert.Equal(t, packed, got)
}

func TestCopyDecompressedPlainSource(t *testing.T) {
	t.Parallel()

	v, fsys := newTestVFS(t)
	testutil.WriteFile(t, fsys, "in.txt", []byte("plain"))

	require.NoError(t, v.CopyDecompressed("in.txt", "out.txt"))

	got, err := util.ReadFile(fsys, "out.txt")
	require.NoError(t, err)
	assert.Equal(t, "plain", string(got))
}

func TestCopyOverwrite(t *testing.T) {
	t.Parallel()

	v, fsys := newTestVFS(t)
	testutil.WriteFile(t, fsys, "in.txt", []byte("new"))
	testutil.WriteFile(t, fsys, "out.txt", []byte("old"))

	err := v.CopyDecompressed("in.txt", "out.txt", CopyWithOverwrite(false))
	require.ErrorIs(t, err, fs.ErrExist)
	got, err := util.ReadFile(fsys, "out.txt")
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))

	require.NoError(t, v.CopyDecompressed("in.txt", "out.txt"))
	got, err = util.ReadFile(fsys, "out.txt")
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestCopyMissingSource(t *testing.T) {
	t.Parallel()

	v, fsys := newTestVFS(t)

	err := v.CopyCompressed("missing.sav", "out.sav")
	require.ErrorIs(t, err, fs.ErrNotExist)
	_, err = fsys.Stat("out.sav")
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestCopyBypassesMounts(t *testing.T) {
	t.Parallel()

	v, fsys := newTestVFS(t)
	testutil.WriteArchive(t, fsys, "master.dat", gameArchive)
	require.NoError(t, v.Mount("master.dat"))

	err := v.CopyDecompressed("maps/arcaves.map", "out.map")
	require.ErrorIs(t, err, fs.ErrNotExist)
}
