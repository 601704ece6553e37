package integer

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
)

// ErrInvalidRange is returned when a range is constructed with min > max.
var ErrInvalidRange = errors.New("invalid range")

// Range is the closed interval [min, max]. A Range is immutable.
type Range struct {
	min *big.Int
	max *big.Int
}

// NewRange creates [min, max].
func NewRange(min, max *big.Int) (Range, error) {
	if min == nil || max == nil {
		return Range{}, fmt.Errorf("%w: nil bound", ErrInvalidRange)
	}
	if min.Cmp(max) > 0 {
		return Range{}, fmt.Errorf("%w: min %s is greater than max %s", ErrInvalidRange, min, max)
	}
	return Range{min: new(big.Int).Set(min), max: new(big.Int).Set(max)}, nil
}

// NewRangeInt64 is NewRange for small bounds.
func NewRangeInt64(min, max int64) (Range, error) {
	return NewRange(big.NewInt(min), big.NewInt(max))
}

// MustRange panics on invalid bounds; intended for literals.
func MustRange(min, max int64) Range {
	r, err := NewRangeInt64(min, max)
	if err != nil {
		panic(err)
	}
	return r
}

// PointRange is the single value range [v, v].
func PointRange(v *big.Int) Range {
	return Range{min: new(big.Int).Set(v), max: new(big.Int).Set(v)}
}

// Min returns a copy of the lower bound.
func (r Range) Min() *big.Int { return new(big.Int).Set(r.min) }

// Max returns a copy of the upper bound.
func (r Range) Max() *big.Int { return new(big.Int).Set(r.max) }

// Size returns max - min + 1.
func (r Range) Size() *big.Int {
	size := new(big.Int).Sub(r.max, r.min)
	return size.Add(size, one)
}

// Equal reports whether both ranges have the same bounds.
func (r Range) Equal(o Range) bool {
	return r.min.Cmp(o.min) == 0 && r.max.Cmp(o.max) == 0
}

// Overlaps reports whether the ranges share at least one value.
func (r Range) Overlaps(o Range) bool {
	return r.min.Cmp(o.max) <= 0 && o.min.Cmp(r.max) <= 0
}

// Contains reports whether o lies inside r.
func (r Range) Contains(o Range) bool {
	return r.min.Cmp(o.min) <= 0 && o.max.Cmp(r.max) <= 0
}

// ContainsValue reports whether v lies inside r.
func (r Range) ContainsValue(v *big.Int) bool {
	return r.min.Cmp(v) <= 0 && v.Cmp(r.max) <= 0
}

// Intersect returns the common part; ok is false for disjoint ranges.
func (r Range) Intersect(o Range) (Range, bool) {
	if !r.Overlaps(o) {
		return Range{}, false
	}
	return Range{min: maxInt(r.min, o.min), max: minInt(r.max, o.max)}, true
}

// Merge returns the hull of overlapping ranges; ok is false for disjoint ones.
func (r Range) Merge(o Range) (Range, bool) {
	if !r.Overlaps(o) {
		return Range{}, false
	}
	return Range{min: minInt(r.min, o.min), max: maxInt(r.max, o.max)}, true
}

// Minus returns r without the values of o: zero, one or two ranges.
func (r Range) Minus(o Range) []Range {
	if !r.Overlaps(o) {
		return []Range{r}
	}
	var result []Range
	if r.min.Cmp(o.min) < 0 {
		result = append(result, Range{min: new(big.Int).Set(r.min), max: new(big.Int).Sub(o.min, one)})
	}
	if o.max.Cmp(r.max) < 0 {
		result = append(result, Range{min: new(big.Int).Add(o.max, one), max: new(big.Int).Set(r.max)})
	}
	return result
}

func (r Range) String() string {
	return fmt.Sprintf("[%s, %s]", r.min, r.max)
}

// SortRanges orders ranges by min, then by max.
func SortRanges(ranges []Range) {
	sort.SliceStable(ranges, func(i, j int) bool {
		if c := ranges[i].min.Cmp(ranges[j].min); c != 0 {
			return c < 0
		}
		return ranges[i].max.Cmp(ranges[j].max) < 0
	})
}

type boundKind int

const (
	boundMin boundKind = 1 << iota
	boundMax
)

type bound struct {
	value *big.Int
	kind  boundKind
	// depth change applied after the value: +starts for mins, -ends for maxes.
	starts int
	ends   int
}

// Divide splits possibly overlapping ranges into the minimal set of disjoint
// ranges that keeps every input boundary. Values covered by no input are not
// returned.
func Divide(ranges []Range) []Range {
	if len(ranges) == 0 {
		return nil
	}

	index := make(map[string]*bound)
	for _, r := range ranges {
		for _, side := range []struct {
			v    *big.Int
			kind boundKind
		}{{r.min, boundMin}, {r.max, boundMax}} {
			key := side.v.String()
			b, ok := index[key]
			if !ok {
				b = &bound{value: side.v}
				index[key] = b
			}
			b.kind |= side.kind
			if side.kind == boundMin {
				b.starts++
			} else {
				b.ends++
			}
		}
	}

	bounds := make([]*bound, 0, len(index))
	for _, b := range index {
		bounds = append(bounds, b)
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i].value.Cmp(bounds[j].value) < 0 })

	var result []Range
	depth := 0
	var start *big.Int
	for _, b := range bounds {
		v := b.value
		if b.kind&boundMin != 0 {
			if start != nil && depth > 0 && start.Cmp(v) < 0 {
				result = append(result, Range{min: start, max: new(big.Int).Sub(v, one)})
			}
			start = new(big.Int).Set(v)
			depth += b.starts
		}
		if b.kind&boundMax != 0 {
			if start != nil && depth > 0 {
				result = append(result, Range{min: start, max: new(big.Int).Set(v)})
			}
			depth -= b.ends
			start = nil
			if depth > 0 {
				start = new(big.Int).Add(v, one)
			}
		}
	}
	return result
}

// Union merges overlapping ranges into a sorted disjoint list.
func Union(ranges []Range) []Range {
	if len(ranges) == 0 {
		return nil
	}
	sorted := append([]Range(nil), ranges...)
	SortRanges(sorted)
	result := []Range{sorted[0]}
	for _, r := range sorted[1:] {
		last := result[len(result)-1]
		if merged, ok := last.Merge(r); ok {
			result[len(result)-1] = merged
			continue
		}
		result = append(result, r)
	}
	return result
}

var one = big.NewInt(1)

func minInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

func maxInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
