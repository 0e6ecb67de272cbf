package datfs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/datfs/internal/testutil"
)

func TestExtract(t *testing.T) {
	t.Parallel()

	v, fsys := newTestVFS(t)
	testutil.WriteArchive(t, fsys, "master.dat", gameArchive)
	require.NoError(t, v.Mount("master.dat"))

	n, err := v.Extract(context.Background(), "maps/*", "out")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := util.ReadFile(fsys, "out/MAPS/ARTEMPLE.MAP")
	require.NoError(t, err)
	assert.Equal(t, "temple map data", string(got))
	got, err = util.ReadFile(fsys, "out/MAPS/ARCAVES.MAP")
	require.NoError(t, err)
	assert.Equal(t, "caves map data", string(got))

	// No temporary files are left behind.
	infos, err := fsys.ReadDir("out/MAPS")
	require.NoError(t, err)
	assert.Len(t, infos, 2)
}

func TestExtractShadowedEntries(t *testing.T) {
	t.Parallel()

	v, fsys := newTestVFS(t)
	testutil.WriteArchive(t, fsys, "base.dat", []testutil.ArchiveEntry{
		{Path: `MAPS\ARTEMPLE.MAP`, Data: []byte("old temple"), Compressed: true},
		{Path: `MAPS\DEN.MAP`, Data: []byte("den")},
	})
	testutil.WriteArchive(t, fsys, "patch.dat", []testutil.ArchiveEntry{
		{Path: `maps\artemple.map`, Data: []byte("new temple")},
	})
	require.NoError(t, v.ReopenAll("base.dat;patch.dat"))

	n, err := v.Extract(context.Background(), "*", "out")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := util.ReadFile(fsys, "out/maps/artemple.map")
	require.NoError(t, err)
	assert.Equal(t, "new temple", string(got))
	assert.Equal(t, "new temple", readAll(t, v, "MAPS/ARTEMPLE.MAP"))
}

func TestExtractOverwrite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    []CopyOption
		wantN   int
		wantOld string
	}{
		{name: "default replaces", wantN: 2, wantOld: "caves map data"},
		{name: "disabled skips", opts: []CopyOption{CopyWithOverwrite(false)}, wantN: 1, wantOld: "keep"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			v, fsys := newTestVFS(t)
			testutil.WriteArchive(t, fsys, "master.dat", gameArchive)
			testutil.WriteFile(t, fsys, "out/MAPS/ARCAVES.MAP", []byte("keep"))
			require.NoError(t, v.Mount("master.dat"))

			n, err := v.Extract(context.Background(), "maps/*.map", "out", tt.opts...)
			require.NoError(t, err)
			assert.Equal(t, tt.wantN, n)

			got, err := util.ReadFile(fsys, "out/MAPS/ARCAVES.MAP")
			require.NoError(t, err)
			assert.Equal(t, tt.wantOld, string(got))
		})
	}
}

func TestExtractWorkers(t *testing.T) {
	t.Parallel()

	entries := make([]testutil.ArchiveEntry, 0, 32)
	for i := range 32 {
		entries = append(entries, testutil.ArchiveEntry{
			Path:       fmt.Sprintf(`ART\TILES\T%03d.FRM`, i),
			Data:       []byte(fmt.Sprintf("tile %03d", i)),
			Compressed: i%2 == 0,
		})
	}

	for _, workers := range []int{-1, 0, 4, 64} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			t.Parallel()

			// Parallel extraction writes concurrently; memfs is not safe for that.
			fsys := osfs.New(t.TempDir())
			v := New(WithFilesystem(fsys))
			t.Cleanup(func() { _ = v.Close() })
			testutil.WriteArchive(t, fsys, "art.dat", entries)
			require.NoError(t, v.Mount("art.dat"))

			n, err := v.Extract(context.Background(), "art/tiles/*.frm", "out", CopyWithWorkers(workers))
			require.NoError(t, err)
			assert.Equal(t, len(entries), n)

			for i := range entries {
				got, err := util.ReadFile(fsys, fmt.Sprintf("out/ART/TILES/T%03d.FRM", i))
				require.NoError(t, err)
				assert.Equal(t, fmt.Sprintf("tile %03d", i), string(got))
			}
		})
	}
}

func TestExtractStaysInsideDestination(t *testing.T) {
	t.Parallel()

	v, fsys := newTestVFS(t)
	testutil.WriteArchive(t, fsys, "evil.dat", []testutil.ArchiveEntry{
		{Path: `..\..\ESCAPE.TXT`, Data: []byte("gotcha")},
	})
	require.NoError(t, v.Mount("evil.dat"))

	n, err := v.Extract(context.Background(), "*", "out")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := util.ReadFile(fsys, "out/ESCAPE.TXT")
	require.NoError(t, err)
	assert.Equal(t, "gotcha", string(got))
	_, err = fsys.Stat("ESCAPE.TXT")
	assert.Error(t, err)
}

func TestExtractSkipsDirectoryMounts(t *testing.T) {
	t.Parallel()

	v, fsys := newTestVFS(t)
	testutil.WriteFile(t, fsys, "data/maps/den.map", []byte("den"))
	require.NoError(t, v.Mount("data"))

	n, err := v.Extract(context.Background(), "*", "out")
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = fsys.Stat("out")
	assert.Error(t, err)
}

func TestExtractCanceled(t *testing.T) {
	t.Parallel()

	v, fsys := newTestVFS(t)
	testutil.WriteArchive(t, fsys, "master.dat", gameArchive)
	require.NoError(t, v.Mount("master.dat"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := v.Extract(ctx, "*", "out")
	assert.Zero(t, n)
	assert.True(t, errors.Is(err, context.Canceled), "err = %v", err)
}
