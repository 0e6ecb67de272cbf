// Package sizing provides overflow-checked size arithmetic for archive index validation.
package sizing

import "math"

// ToInt converts a non-negative int64 to int, returning overflowErr if it doesn't fit.
func ToInt(size int64, overflowErr error) (int, error) {
	if size < 0 || uint64(size) > uint64(math.MaxInt) {
		return 0, overflowErr
	}
	return int(size), nil
}

// AddInt64 adds two non-negative int64 values, returning (result, false) on
// overflow or when either operand is negative.
func AddInt64(a, b int64) (int64, bool) {
	if a < 0 || b < 0 {
		return 0, false
	}
	if a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}

// MulInt multiplies two non-negative ints, returning (result, false) on overflow.
func MulInt(a, b int) (int, bool) {
	if a < 0 || b < 0 {
		return 0, false
	}
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxInt/b {
		return 0, false
	}
	return a * b, true
}

// Within reports whether the range [off, off+n) lies inside [0, limit].
func Within(off, n, limit int64) bool {
	end, ok := AddInt64(off, n)
	if !ok {
		return false
	}
	return end <= limit
}
