package generic

import "golang.org/x/exp/constraints"

func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}

	return b
}

// Filter returns a new slice with the elements for which the predicate holds,
// preserving their relative order.
func Filter[T any](sl []T, pred func(T) bool) []T {
	out := make([]T, 0, len(sl))

	for _, val := range sl {
		if pred(val) {
			out = append(out, val)
		}
	}

	return out
}
