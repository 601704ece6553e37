package solver

import "math"

// Variant decomposes index into one choice per clause. radices[i] is the
// number of equations of clause i; clause 0 is the least significant digit.
// The function is pure so that variants can be solved independently.
func Variant(index int, radices []int) []int {
	choices := make([]int, len(radices))
	for i, r := range radices {
		if r <= 0 {
			continue
		}
		choices[i] = index % r
		index /= r
	}
	return choices
}

// NumberOfVariants returns the product of radices. ok is false when the
// product does not fit into an int.
func NumberOfVariants(radices []int) (int, bool) {
	total := 1
	for _, r := range radices {
		if r <= 0 {
			return 0, true
		}
		if total > math.MaxInt/r {
			return math.MaxInt, false
		}
		total *= r
	}
	return total, true
}

// Budget bounds the number of variants a solver may try. Zero means no bound.
type Budget struct {
	MaxVariants int
}

// Limit returns how many of total variants may be tried and whether the
// budget truncates the search.
func (b Budget) Limit(total int) (int, bool) {
	if b.MaxVariants <= 0 || total <= b.MaxVariants {
		return total, false
	}
	return b.MaxVariants, true
}
