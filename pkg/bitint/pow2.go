// Package bitint provides the power-of-two helpers used when sizing FFT
// chunks. All functions are allocation free.
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 >= size, or 1 for
// non-positive sizes. Subtracting 1 first keeps exact powers unchanged.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of 2. Powers of 2 have a
// single bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// IsAligned reports whether n is a positive multiple of align, which must be
// a power of 2.
func IsAligned(n, align int) bool {
	return n > 0 && n&(align-1) == 0
}
