package datfs

import (
	"io"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/datfs/internal/testutil"
)

func TestFS(t *testing.T) {
	t.Parallel()

	v, fsys := newTestVFS(t)
	testutil.WriteArchive(t, fsys, "master.dat", gameArchive)
	testutil.WriteFile(t, fsys, "loose.txt", []byte("loose"))
	require.NoError(t, v.Mount("master.dat"))
	fsv := v.FS()

	got, err := fs.ReadFile(fsv, "maps/artemple.map")
	require.NoError(t, err)
	assert.Equal(t, "temple map data", string(got))

	info, err := fs.Stat(fsv, "loose.txt")
	require.NoError(t, err)
	assert.Equal(t, "loose.txt", info.Name())
	assert.Equal(t, int64(5), info.Size())

	f, err := fsv.Open("maps/arcaves.map")
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "caves map data", string(data))
}

func TestFSInvalidPath(t *testing.T) {
	t.Parallel()

	v, _ := newTestVFS(t)
	fsv := v.FS()

	for _, name := range []string{"../x", "/abs", "a//b", ""} {
		_, err := fsv.Open(name)
		require.ErrorIs(t, err, fs.ErrInvalid, name)
		_, err = fs.ReadFile(fsv, name)
		require.ErrorIs(t, err, fs.ErrInvalid, name)
	}
}

func TestFSMissing(t *testing.T) {
	t.Parallel()

	v, _ := newTestVFS(t)

	f, err := v.FS().Open("nope.txt")
	require.ErrorIs(t, err, fs.ErrNotExist)
	assert.Nil(t, f)
}
