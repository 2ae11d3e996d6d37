// Package convert narrows configuration ints into the fixed-width types
// that pgx and gobreaker expect, clamping instead of wrapping.
package convert

import "math"

// IntToInt32Clamped converts v to int32, saturating at the int32 bounds.
func IntToInt32Clamped(v int) int32 {
	return int32(min(max(v, math.MinInt32), math.MaxInt32))
}

// IntToUint32Clamped converts v to uint32. Negative values become 0.
func IntToUint32Clamped(v int) uint32 {
	if v <= 0 {
		return 0
	}
	return uint32(min(uint64(v), math.MaxUint32))
}
