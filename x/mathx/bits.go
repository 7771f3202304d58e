package mathx

import "golang.org/x/exp/constraints"

// FullScale returns 2^bits - 1. bits above 32 saturate.
func FullScale(bits uint8) uint32 {
	if bits >= 32 {
		return ^uint32(0)
	}
	return (uint32(1) << bits) - 1
}

// Rescale maps v from [0..fromMax] onto [0..toMax] with 64-bit intermediates.
// v above fromMax is clamped first.
func Rescale[T constraints.Unsigned](v, fromMax, toMax T) T {
	if fromMax == 0 {
		return 0
	}
	v = Min(v, fromMax)
	return T(uint64(v) * uint64(toMax) / uint64(fromMax))
}
