package datfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/datfs/internal/testutil"
)

func TestPrefetch(t *testing.T) {
	t.Parallel()

	mc := testutil.NewMockCache()
	v, fsys := newTestVFS(t, WithCache(mc), WithPrefetchWorkers(2))
	testutil.WriteArchive(t, fsys, "master.dat", gameArchive)
	require.NoError(t, v.Mount("master.dat"))

	// Only the two compressed entries are cached.
	n, err := v.Prefetch(context.Background(), "*")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, mc.Len())

	got, err := v.ReadFile("maps/artemple.map")
	require.NoError(t, err)
	assert.Equal(t, "temple map data", string(got))
	assert.Equal(t, 2, mc.Puts(), "ReadFile should be served from the cache")

	n, err = v.Prefetch(context.Background(), "*")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPrefetchPattern(t *testing.T) {
	t.Parallel()

	mc := testutil.NewMockCache()
	v, fsys := newTestVFS(t, WithCache(mc))
	testutil.WriteArchive(t, fsys, "master.dat", gameArchive)
	require.NoError(t, v.Mount("master.dat"))

	n, err := v.Prefetch(context.Background(), "text/*")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f := openFile(t, v, `TEXT\ENGLISH\GAME\MISC.MSG`, "rb")
	key, _, ok := f.cacheKey()
	require.True(t, ok)
	cf, hit := mc.Get(key)
	require.True(t, hit)
	require.NoError(t, cf.Close())
}

func TestPrefetchWithoutCache(t *testing.T) {
	t.Parallel()

	v, fsys := newTestVFS(t)
	testutil.WriteArchive(t, fsys, "master.dat", gameArchive)
	require.NoError(t, v.Mount("master.dat"))

	_, err := v.Prefetch(context.Background(), "*")
	assert.ErrorIs(t, err, ErrNoCache)
}
