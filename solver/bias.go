package solver

import (
	"fmt"
	"sort"
)

// Bias is the obligatoriness of a constraint, from Soft (0) to Hard (100).
type Bias int

const (
	Soft Bias = 0
	Hard Bias = 100
)

// NewBias validates 0 <= v <= 100.
func NewBias(v int) (Bias, error) {
	if v < int(Soft) || v > int(Hard) {
		return Soft, fmt.Errorf("bias must be within [%d,%d], got %d", Soft, Hard, v)
	}
	return Bias(v), nil
}

// IsHard reports whether the constraint must always hold.
func (b Bias) IsHard() bool {
	return b == Hard
}

// BiasedConstraints groups constraints by bias.
type BiasedConstraints[T any] struct {
	tiers map[Bias][]T
}

// NewBiasedConstraints creates an empty histogram.
func NewBiasedConstraints[T any]() *BiasedConstraints[T] {
	return &BiasedConstraints[T]{tiers: make(map[Bias][]T)}
}

// Add records c under bias b.
func (h *BiasedConstraints[T]) Add(b Bias, c T) {
	h.tiers[b] = append(h.tiers[b], c)
}

// Histogram returns the number of constraints per bias.
func (h *BiasedConstraints[T]) Histogram() map[Bias]int {
	counts := make(map[Bias]int, len(h.tiers))
	for b, cs := range h.tiers {
		counts[b] = len(cs)
	}
	return counts
}

// Biases returns the present biases, hardest first.
func (h *BiasedConstraints[T]) Biases() []Bias {
	biases := make([]Bias, 0, len(h.tiers))
	for b, cs := range h.tiers {
		if len(cs) > 0 {
			biases = append(biases, b)
		}
	}
	sort.Slice(biases, func(i, j int) bool { return biases[i] > biases[j] })
	return biases
}

// Constraints returns every constraint, hardest first.
func (h *BiasedConstraints[T]) Constraints() []T {
	var out []T
	for _, b := range h.Biases() {
		out = append(out, h.tiers[b]...)
	}
	return out
}

// Len returns the number of constraints.
func (h *BiasedConstraints[T]) Len() int {
	n := 0
	for _, cs := range h.tiers {
		n += len(cs)
	}
	return n
}

// Relax drops the softest tier that is not hard. It returns false when only
// hard constraints remain.
func (h *BiasedConstraints[T]) Relax() bool {
	biases := h.Biases()
	for i := len(biases) - 1; i >= 0; i-- {
		if !biases[i].IsHard() {
			delete(h.tiers, biases[i])
			return true
		}
	}
	return false
}
