package datfs

import (
	"io"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/require"

	"github.com/meigma/datfs/internal/testutil"
)

// newTestVFS returns a VFS over an empty in-memory host filesystem.
func newTestVFS(t *testing.T, opts ...Option) (*VFS, billy.Filesystem) {
	t.Helper()
	fsys := memfs.New()
	v := New(append([]Option{WithFilesystem(fsys)}, opts...)...)
	t.Cleanup(func() { _ = v.Close() })
	return v, fsys
}

func openFile(t *testing.T, v *VFS, name, mode string) *File {
	t.Helper()
	f, err := v.Open(name, mode)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func readAll(t *testing.T, v *VFS, name string) string {
	t.Helper()
	f, err := v.Open(name, "rb")
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	return string(data)
}

// gameArchive is a small archive used across tests.
var gameArchive = []testutil.ArchiveEntry{
	{Path: `TEXT\ENGLISH\GAME\MISC.MSG`, Data: []byte("{100}{}{Welcome}\r\n{101}{}{Bye}\r\n"), Compressed: true},
	{Path: `MAPS\ARTEMPLE.MAP`, Data: []byte("temple map data"), Compressed: true},
	{Path: `MAPS\ARCAVES.MAP`, Data: []byte("caves map data")},
	{Path: `DATA\VAULT13.GAM`, Data: []byte{0, 0, 0, 7, 0xFF, 0xFE, 0x3F, 0xC0, 0, 0}},
}
