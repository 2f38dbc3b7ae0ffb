package score

import "math"

// Adjust moves base toward 1 (direction > 0) or toward 0 (direction < 0)
// in proportion to confidence. Zero confidence or zero direction returns base.
//
//	d >= 0: base + c·d·(1 - base)
//	d <  0: base + c·d·base
//
// base and confidence are clamped into [0,1], direction into [-1,1].
func Adjust(base, direction, confidence float64) float64 {
	base = clamp(base, 0, 1)
	direction = clamp(direction, -1, 1)
	confidence = clamp(confidence, 0, 1)

	if direction >= 0 {
		return base + confidence*direction*(1-base)
	}
	return base + confidence*direction*base
}

// clamp limits x to [lo, hi]; NaN maps to lo
func clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) || x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
