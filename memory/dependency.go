package memory

import (
	"sort"
	"strings"

	"golang.org/x/exp/maps"

	"github.com/Readm/mmu_sim/mmu"
)

// Dependency is the set of hazards between one pair of accesses.
type Dependency struct {
	hazards []Hazard
}

// NewDependency copies hazards, dropping duplicates.
func NewDependency(hazards ...Hazard) *Dependency {
	d := &Dependency{}
	for _, h := range hazards {
		d.Add(h)
	}
	return d
}

// Add inserts h unless present.
func (d *Dependency) Add(h Hazard) {
	for _, o := range d.hazards {
		if o == h {
			return
		}
	}
	d.hazards = append(d.hazards, h)
}

// With returns a copy of d extended by h.
func (d *Dependency) With(h Hazard) *Dependency {
	c := NewDependency(d.Hazards()...)
	c.Add(h)
	return c
}

// Hazards returns the hazards in insertion order.
func (d *Dependency) Hazards() []Hazard {
	if d == nil {
		return nil
	}
	return append([]Hazard(nil), d.hazards...)
}

// IsEmpty reports whether no hazard is asserted.
func (d *Dependency) IsEmpty() bool { return d == nil || len(d.hazards) == 0 }

// Hazard returns the hazard over a target, if any.
func (d *Dependency) Hazard(t Target) (Hazard, bool) {
	if d == nil {
		return Hazard{}, false
	}
	for _, h := range d.hazards {
		if h.Target == t {
			return h, true
		}
	}
	return Hazard{}, false
}

// Has reports whether a hazard of type t over buffer b is asserted.
func (d *Dependency) Has(t HazardType, b mmu.BufferID) bool {
	if d == nil {
		return false
	}
	for _, h := range d.hazards {
		if h.Type == t && h.Target.Buffer == b {
			return true
		}
	}
	return false
}

func (d *Dependency) String() string {
	if d.IsEmpty() {
		return "[]"
	}
	names := make([]string, len(d.hazards))
	for i, h := range d.hazards {
		names[i] = h.FullName()
	}
	return "[" + strings.Join(names, ", ") + "]"
}

// IndexSet is a set of access indices.
type IndexSet map[int]struct{}

// NewIndexSet creates a set holding indices.
func NewIndexSet(indices ...int) IndexSet {
	s := make(IndexSet, len(indices))
	for _, i := range indices {
		s[i] = struct{}{}
	}
	return s
}

// Add inserts i.
func (s IndexSet) Add(i int) { s[i] = struct{}{} }

// Has reports whether i is in the set.
func (s IndexSet) Has(i int) bool {
	_, ok := s[i]
	return ok
}

// Union returns a new set with the elements of s and o.
func (s IndexSet) Union(o IndexSet) IndexSet {
	out := maps.Clone(s)
	if out == nil {
		out = make(IndexSet, len(o))
	}
	for i := range o {
		out[i] = struct{}{}
	}
	return out
}

// Sorted returns the elements in ascending order.
func (s IndexSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for i := range s {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
