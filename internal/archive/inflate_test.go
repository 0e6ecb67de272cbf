package archive

import (
	"bytes"
	"io"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/datfs/internal/testutil"
)

func TestInflaterStopsAtStoredSize(t *testing.T) {
	t.Parallel()

	payload := patterned(3_000)
	deflated := testutil.Deflate(t, payload)
	trailer := []byte("next entry's bytes")
	src := bytes.NewReader(append(slices.Clone(deflated), trailer...))

	z := newInflater(src, int64(len(deflated)), 16)
	assert.Equal(t, stateNeedInput, z.state)

	out := make([]byte, len(payload))
	require.NoError(t, z.fill(out))
	assert.Equal(t, payload, out)

	err := z.fill(make([]byte, 1))
	require.ErrorIs(t, err, ErrCodec)
	assert.Equal(t, stateFailed, z.state)
	assert.Equal(t, int64(len(deflated)), z.consumed())
	assert.Equal(t, len(trailer), src.Len(), "input past the stored size is never read")

	z.reset()
	_, err = src.Seek(0, io.SeekStart)
	require.NoError(t, err)
	require.NoError(t, z.fill(out[:100]))
	assert.Equal(t, payload[:100], out[:100])
	_ = z.close()
}

func TestInflaterTruncatedSource(t *testing.T) {
	t.Parallel()

	deflated := testutil.Deflate(t, patterned(3_000))
	src := bytes.NewReader(deflated[:len(deflated)/2])

	z := newInflater(src, int64(len(deflated)), 64)
	err := z.fill(make([]byte, 3_000))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.NotErrorIs(t, err, ErrCodec)
	assert.Equal(t, stateFailed, z.state)
	assert.NoError(t, z.close(), "failures are not reported twice")
}
