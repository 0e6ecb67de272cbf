package datfs

import (
	"io"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/datfs/internal/testutil"
)

func TestOpenResolutionOrder(t *testing.T) {
	t.Parallel()

	v, fsys := newTestVFS(t)
	testutil.WriteArchive(t, fsys, "master.dat", []testutil.ArchiveEntry{
		{Path: `TEXT\MSG.TXT`, Data: []byte("from archive"), Compressed: true},
	})
	testutil.WriteFile(t, fsys, "patch/text/msg.txt", []byte("from patch"))

	tests := []struct {
		name    string
		chain   string
		want    string
		backend Backend
	}{
		{name: "directory first", chain: "master.dat;patch", want: "from patch", backend: BackendPlain},
		{name: "archive first", chain: "patch;master.dat", want: "from archive", backend: BackendArchive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, v.ReopenAll(tt.chain))

			f := openFile(t, v, "text/msg.txt", "rb")
			assert.Equal(t, tt.backend, f.Backend())
			got, err := io.ReadAll(f)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestOpenFallsBackToWorkingDirectory(t *testing.T) {
	t.Parallel()

	v, fsys := newTestVFS(t)
	testutil.WriteArchive(t, fsys, "master.dat", gameArchive)
	testutil.WriteFile(t, fsys, "loose.txt", []byte("loose"))
	require.NoError(t, v.Mount("master.dat"))

	f := openFile(t, v, "loose.txt", "rb")
	assert.Equal(t, BackendPlain, f.Backend())
	assert.Equal(t, "loose", readAll(t, v, "loose.txt"))
}

func TestOpenAbsoluteBypassesMounts(t *testing.T) {
	t.Parallel()

	v, fsys := newTestVFS(t)
	testutil.WriteArchive(t, fsys, "master.dat", []testutil.ArchiveEntry{
		{Path: "x.txt", Data: []byte("archive")},
	})
	testutil.WriteFile(t, fsys, "x.txt", []byte("host"))
	require.NoError(t, v.Mount("master.dat"))

	assert.Equal(t, "archive", readAll(t, v, "x.txt"))
	assert.Equal(t, "host", readAll(t, v, "./x.txt"))
	assert.Equal(t, "host", readAll(t, v, "/x.txt"))
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()

	v, fsys := newTestVFS(t)
	testutil.WriteArchive(t, fsys, "master.dat", gameArchive)
	require.NoError(t, v.Mount("master.dat"))

	tests := []struct {
		name    string
		path    string
		mode    string
		wantErr error
	}{
		{name: "missing", path: "nope.txt", mode: "rb", wantErr: fs.ErrNotExist},
		{name: "invalid mode", path: "maps/arcaves.map", mode: "x", wantErr: ErrInvalidMode},
		{name: "empty name", path: "", mode: "rb", wantErr: fs.ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := v.Open(tt.path, tt.mode)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestOpenWriteCreatesInHeadDirectory(t *testing.T) {
	t.Parallel()

	v, fsys := newTestVFS(t)
	testutil.WriteArchive(t, fsys, "master.dat", gameArchive)
	require.NoError(t, v.ReopenAll("master.dat;data"))

	f, err := v.Open("save/slot.sav", "wb")
	require.NoError(t, err)
	_, err = f.WriteString("saved")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = fsys.Stat("data/save/slot.sav")
	require.NoError(t, err)
	assert.Equal(t, "saved", readAll(t, v, "save/slot.sav"))
}

func TestOpenGzip(t *testing.T) {
	t.Parallel()

	v, fsys := newTestVFS(t)
	testutil.WriteFile(t, fsys, "data/save.gz", testutil.Gzip(t, []byte("hello\r\nworld\n")))
	require.NoError(t, v.Mount("data"))

	f := openFile(t, v, "save.gz", "rb")
	assert.Equal(t, BackendGzip, f.Backend())

	line, err := f.ReadLine(64)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", line)

	pos, err := f.Tell()
	require.NoError(t, err)
	assert.Equal(t, int64(7), pos)

	size, err := f.Size()
	require.NoError(t, err)
	assert.Zero(t, size)

	// Seeking backwards restarts decompression.
	_, err = f.Seek(2, io.SeekStart)
	require.NoError(t, err)
	c, err := f.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('l'), c)

	_, err = f.Seek(0, io.SeekEnd)
	require.ErrorIs(t, err, ErrUnsupported)

	_, err = f.Write([]byte("x"))
	require.ErrorIs(t, err, fs.ErrPermission)
}

func TestOpenGzipWritable(t *testing.T) {
	t.Parallel()

	v, fsys := newTestVFS(t)
	testutil.WriteFile(t, fsys, "save.gz", testutil.Gzip(t, []byte("hello")))

	_, err := v.Open("save.gz", "r+b")
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestOpenShortFileIsPlain(t *testing.T) {
	t.Parallel()

	v, fsys := newTestVFS(t)
	testutil.WriteFile(t, fsys, "one.bin", []byte{0x1f})

	f := openFile(t, v, "one.bin", "rb")
	assert.Equal(t, BackendPlain, f.Backend())
	c, err := f.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0x1f), c)
}

func TestOpenCorruptGzip(t *testing.T) {
	t.Parallel()

	v, fsys := newTestVFS(t)
	testutil.WriteFile(t, fsys, "bad.gz", []byte{0x1f, 0x8b, 0x00})

	_, err := v.Open("bad.gz", "rb")
	require.ErrorIs(t, err, ErrCodec)
}
