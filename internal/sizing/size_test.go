package sizing

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errOverflow = errors.New("overflow")

func TestToInt(t *testing.T) {
	t.Parallel()

	n, err := ToInt(42, errOverflow)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = ToInt(-1, errOverflow)
	assert.ErrorIs(t, err, errOverflow)
}

func TestAddInt64(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b int64
		want int64
		ok   bool
	}{
		{"small", 1, 2, 3, true},
		{"zero", 0, 0, 0, true},
		{"overflow", math.MaxInt64, 1, 0, false},
		{"negative operand", -1, 5, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := AddInt64(tt.a, tt.b)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMulInt(t *testing.T) {
	t.Parallel()

	got, ok := MulInt(4, 3)
	assert.True(t, ok)
	assert.Equal(t, 12, got)

	got, ok = MulInt(0, math.MaxInt)
	assert.True(t, ok)
	assert.Zero(t, got)

	_, ok = MulInt(math.MaxInt, 2)
	assert.False(t, ok)
}

func TestWithin(t *testing.T) {
	t.Parallel()

	assert.True(t, Within(0, 10, 10))
	assert.True(t, Within(5, 0, 5))
	assert.False(t, Within(5, 6, 10))
	assert.False(t, Within(math.MaxInt64, 1, math.MaxInt64))
	assert.False(t, Within(-1, 1, 10))
}
