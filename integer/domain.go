package integer

import (
	"fmt"
	"math/big"
	"math/rand"
	"strings"
)

// Domain is a set of integers stored as disjoint ranges in ascending order.
type Domain struct {
	ranges []Range
}

// NewDomain creates the domain [min, max].
func NewDomain(min, max *big.Int) (*Domain, error) {
	r, err := NewRange(min, max)
	if err != nil {
		return nil, err
	}
	return &Domain{ranges: []Range{r}}, nil
}

// NewValueDomain creates the single value domain {v}.
func NewValueDomain(v *big.Int) *Domain {
	return &Domain{ranges: []Range{PointRange(v)}}
}

// NewWidthDomain creates [0, 2^width - 1].
func NewWidthDomain(width int) *Domain {
	return &Domain{ranges: []Range{WidthRange(width)}}
}

// NewRangesDomain builds a domain from arbitrary ranges.
func NewRangesDomain(ranges ...Range) *Domain {
	return &Domain{ranges: Union(ranges)}
}

// EmptyDomain returns a domain with no values.
func EmptyDomain() *Domain {
	return &Domain{}
}

// WidthRange returns [0, 2^width - 1].
func WidthRange(width int) Range {
	max := new(big.Int).Lsh(one, uint(width))
	max.Sub(max, one)
	return Range{min: new(big.Int), max: max}
}

// Clone returns an independent copy.
func (d *Domain) Clone() *Domain {
	if d == nil {
		return nil
	}
	return &Domain{ranges: append([]Range(nil), d.ranges...)}
}

// Ranges returns the normalized ranges.
func (d *Domain) Ranges() []Range {
	return append([]Range(nil), d.ranges...)
}

// Size returns the number of values.
func (d *Domain) Size() *big.Int {
	size := new(big.Int)
	for _, r := range d.ranges {
		size.Add(size, r.Size())
	}
	return size
}

// IsEmpty reports whether the domain has no values.
func (d *Domain) IsEmpty() bool {
	return len(d.ranges) == 0
}

// IsSingular reports whether the domain has exactly one value.
func (d *Domain) IsSingular() bool {
	return len(d.ranges) == 1 && d.ranges[0].min.Cmp(d.ranges[0].max) == 0
}

// First returns the smallest value; ok is false for an empty domain.
func (d *Domain) First() (*big.Int, bool) {
	if d.IsEmpty() {
		return nil, false
	}
	return d.ranges[0].Min(), true
}

// Contains reports whether v belongs to the domain.
func (d *Domain) Contains(v *big.Int) bool {
	for _, r := range d.ranges {
		if r.ContainsValue(v) {
			return true
		}
		if r.min.Cmp(v) > 0 {
			return false
		}
	}
	return false
}

// Overlaps reports whether both domains share at least one value.
func (d *Domain) Overlaps(o *Domain) bool {
	i, j := 0, 0
	for i < len(d.ranges) && j < len(o.ranges) {
		a, b := d.ranges[i], o.ranges[j]
		if a.Overlaps(b) {
			return true
		}
		if a.max.Cmp(b.max) < 0 {
			i++
		} else {
			j++
		}
	}
	return false
}

// Set replaces the contents with a copy of o.
func (d *Domain) Set(o *Domain) {
	d.ranges = append(d.ranges[:0:0], o.ranges...)
}

// Include adds the values of r.
func (d *Domain) Include(r Range) {
	result := make([]Range, 0, len(d.ranges)+1)
	inserted := false
	current := r
	for _, existing := range d.ranges {
		if merged, ok := existing.Merge(current); ok {
			current = merged
			continue
		}
		if !inserted && current.max.Cmp(existing.min) < 0 {
			result = append(result, current)
			inserted = true
		}
		result = append(result, existing)
	}
	if !inserted {
		result = append(result, current)
	}
	d.ranges = result
}

// Exclude removes the values of r.
func (d *Domain) Exclude(r Range) {
	result := make([]Range, 0, len(d.ranges)+1)
	for _, existing := range d.ranges {
		result = append(result, existing.Minus(r)...)
	}
	d.ranges = result
}

// ExcludeValue removes a single value.
func (d *Domain) ExcludeValue(v *big.Int) {
	d.Exclude(PointRange(v))
}

// Intersect keeps only the values of r.
func (d *Domain) Intersect(r Range) {
	result := make([]Range, 0, len(d.ranges))
	for _, existing := range d.ranges {
		if common, ok := existing.Intersect(r); ok {
			result = append(result, common)
		}
	}
	d.ranges = result
}

// IncludeDomain adds every value of o.
func (d *Domain) IncludeDomain(o *Domain) {
	for _, r := range o.ranges {
		d.Include(r)
	}
}

// ExcludeDomain removes every value of o.
func (d *Domain) ExcludeDomain(o *Domain) {
	for _, r := range o.ranges {
		d.Exclude(r)
	}
}

// IntersectDomain keeps only values that also belong to o.
func (d *Domain) IntersectDomain(o *Domain) {
	result := make([]Range, 0, len(d.ranges))
	i, j := 0, 0
	for i < len(d.ranges) && j < len(o.ranges) {
		a, b := d.ranges[i], o.ranges[j]
		if common, ok := a.Intersect(b); ok {
			result = append(result, common)
		}
		if a.max.Cmp(b.max) < 0 {
			i++
		} else {
			j++
		}
	}
	d.ranges = result
}

// Values returns an iterator over the domain in ascending order.
func (d *Domain) Values() *ValueIterator {
	return &ValueIterator{ranges: d.Ranges()}
}

// Sample picks a uniformly distributed value; ok is false for an empty domain.
func (d *Domain) Sample(rnd *rand.Rand) (*big.Int, bool) {
	if d.IsEmpty() {
		return nil, false
	}
	size := d.Size()
	offset := new(big.Int).Rand(rnd, size)
	for _, r := range d.ranges {
		rs := r.Size()
		if offset.Cmp(rs) < 0 {
			return offset.Add(offset, r.min), true
		}
		offset.Sub(offset, rs)
	}
	return d.ranges[len(d.ranges)-1].Max(), true
}

func (d *Domain) String() string {
	parts := make([]string, len(d.ranges))
	for i, r := range d.ranges {
		parts[i] = r.String()
	}
	return fmt.Sprintf("{%s}", strings.Join(parts, ", "))
}

// ValueIterator walks the values of a domain.
type ValueIterator struct {
	ranges []Range
	index  int
	next   *big.Int
}

// Next returns the following value; ok is false once exhausted.
func (it *ValueIterator) Next() (*big.Int, bool) {
	for it.index < len(it.ranges) {
		r := it.ranges[it.index]
		if it.next == nil {
			it.next = r.Min()
		}
		if it.next.Cmp(r.max) <= 0 {
			v := new(big.Int).Set(it.next)
			it.next.Add(it.next, one)
			return v, true
		}
		it.index++
		it.next = nil
	}
	return nil, false
}
