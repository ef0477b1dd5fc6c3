/*
Package bitint provides the power-of-2 helpers used to size and validate
FFT transforms.

A spectral transform only accepts power-of-2 sizes, so the transform and
configuration validation call IsPowerOfTwo, and validation suggests the
size NextPowerOfTwo rounds an invalid request up to:

	size := bitint.NextPowerOfTwo(1000) // 1024
	ok := bitint.IsPowerOfTwo(size)     // true

NextPowerOfTwo subtracts one before taking the bit length so that values
that are already a power of 2 map onto themselves (8 -> 8, not 16).
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 that is >= size.
// Non-positive sizes return 1.
func NextPowerOfTwo(size int) int {
	if size <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of 2.
//
//	Input  Output  Binary
//	8      true    1000 & 0111 = 0000
//	7      false   0111 & 0110 = 0110
//	0      false   Not positive
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
