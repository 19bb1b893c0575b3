// Package dice provides the randomness abstraction shared by combat math,
// emergence HP rolls, and room selection.
package dice

// Source is the randomness provider for every roll the engine makes.
//
// Implementations MUST be safe for concurrent use.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}

// Between returns a uniformly distributed int in [lo, hi].
//
// Precondition: src must be non-nil.
// Postcondition: lo <= result <= hi; returns lo when hi <= lo.
func Between(src Source, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + src.Intn(hi-lo+1)
}

// Percent returns an int in [lo, hi] used as a percentage multiplier.
//
// Precondition: src must be non-nil; 0 <= lo <= hi.
func Percent(src Source, lo, hi int) int {
	return Between(src, lo, hi)
}

// Chance reports whether an event with probability p in [0, 1] occurs.
// The roll is made at 1/10000 resolution.
//
// Precondition: src must be non-nil.
// Postcondition: p <= 0 always returns false; p >= 1 always returns true.
func Chance(src Source, p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return src.Intn(10000) < int(p*10000)
}
