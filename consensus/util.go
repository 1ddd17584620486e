package consensus

import (
	"fmt"
	"math"
)

// maxIntAsUint64 returns the maximum value representable by the built-in int type, expressed as a uint64.
func maxIntAsUint64() uint64 {
	return uint64(^uint(0) >> 1)
}

// If v is greater than maxIntAsUint64() it returns an error formatted "parse: <name> overflows usize".
func toIntLen(v uint64, name string) (int, error) {
	if v > maxIntAsUint64() {
		return 0, fmt.Errorf("parse: %s overflows usize", name)
	}
	// #nosec G115 -- v is bounded to int by maxIntAsUint64 above.
	return int(v), nil
}

// addInt64 returns a+b for non-negative operands, or an error on overflow.
func addInt64(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, fmt.Errorf("negative operand")
	}
	if b > math.MaxInt64-a {
		return 0, fmt.Errorf("int64 overflow")
	}
	return a + b, nil
}

// saturatingSub returns a-b, or 0 when b > a.
func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
