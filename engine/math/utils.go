package math

import "golang.org/x/exp/constraints"

// Clamp returns the value `f` clamped to the range [low, high].
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// ClampCount clamps a requested count into [low, high] where a zero high
// means there is no upper bound, as with swapchain image counts.
func ClampCount[T constraints.Unsigned](requested, low, high T) T {
	if requested < low {
		requested = low
	}
	if high > 0 && requested > high {
		requested = high
	}
	return requested
}
