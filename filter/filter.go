// Package filter prunes access structures that cannot be realized. Filters
// are pure predicates; a structure is accepted only if every filter accepts
// it, and rejection is an expected outcome rather than an error.
package filter

import (
	"github.com/Readm/mmu_sim/memory"
	"github.com/Readm/mmu_sim/mmu"
)

// AccessFilter checks one access.
type AccessFilter func(spec *mmu.Spec, a memory.Access) bool

// HazardFilter checks one hazard of the dependency of b on a.
type HazardFilter func(spec *mmu.Spec, a, b memory.Access, h memory.Hazard) bool

// DependencyFilter checks the dependency of b on a.
type DependencyFilter func(spec *mmu.Spec, a, b memory.Access, d *memory.Dependency) bool

// UnitedHazardFilter checks one united hazard of an access.
type UnitedHazardFilter func(spec *mmu.Spec, a memory.Access, u *memory.UnitedHazard) bool

// UnitedDependencyFilter checks the united dependency of an access.
type UnitedDependencyFilter func(spec *mmu.Spec, a memory.Access, u *memory.UnitedDependency) bool

// StructureFilter checks a whole structure.
type StructureFilter func(spec *mmu.Spec, s *memory.Structure) bool

type named[F any] struct {
	name string
	fn   F
}

// Builder collects filters of every level.
type Builder struct {
	access           []named[AccessFilter]
	hazard           []named[HazardFilter]
	dependency       []named[DependencyFilter]
	unitedHazard     []named[UnitedHazardFilter]
	unitedDependency []named[UnitedDependencyFilter]
	structure        []named[StructureFilter]
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) AddAccessFilter(name string, f AccessFilter) *Builder {
	if f != nil {
		b.access = append(b.access, named[AccessFilter]{name, f})
	}
	return b
}

func (b *Builder) AddHazardFilter(name string, f HazardFilter) *Builder {
	if f != nil {
		b.hazard = append(b.hazard, named[HazardFilter]{name, f})
	}
	return b
}

func (b *Builder) AddDependencyFilter(name string, f DependencyFilter) *Builder {
	if f != nil {
		b.dependency = append(b.dependency, named[DependencyFilter]{name, f})
	}
	return b
}

func (b *Builder) AddUnitedHazardFilter(name string, f UnitedHazardFilter) *Builder {
	if f != nil {
		b.unitedHazard = append(b.unitedHazard, named[UnitedHazardFilter]{name, f})
	}
	return b
}

func (b *Builder) AddUnitedDependencyFilter(name string, f UnitedDependencyFilter) *Builder {
	if f != nil {
		b.unitedDependency = append(b.unitedDependency, named[UnitedDependencyFilter]{name, f})
	}
	return b
}

func (b *Builder) AddStructureFilter(name string, f StructureFilter) *Builder {
	if f != nil {
		b.structure = append(b.structure, named[StructureFilter]{name, f})
	}
	return b
}

// AddBuilder appends every filter of o.
func (b *Builder) AddBuilder(o *Builder) *Builder {
	if o == nil {
		return b
	}
	b.access = append(b.access, o.access...)
	b.hazard = append(b.hazard, o.hazard...)
	b.dependency = append(b.dependency, o.dependency...)
	b.unitedHazard = append(b.unitedHazard, o.unitedHazard...)
	b.unitedDependency = append(b.unitedDependency, o.unitedDependency...)
	b.structure = append(b.structure, o.structure...)
	return b
}

// Clone returns an independent copy.
func (b *Builder) Clone() *Builder {
	return NewBuilder().AddBuilder(b)
}

// Names returns the filter names in evaluation order.
func (b *Builder) Names() []string {
	var names []string
	for _, f := range b.structure {
		names = append(names, f.name)
	}
	for _, f := range b.access {
		names = append(names, f.name)
	}
	for _, f := range b.dependency {
		names = append(names, f.name)
	}
	for _, f := range b.hazard {
		names = append(names, f.name)
	}
	for _, f := range b.unitedDependency {
		names = append(names, f.name)
	}
	for _, f := range b.unitedHazard {
		names = append(names, f.name)
	}
	return names
}

type check func(spec *mmu.Spec, s *memory.Structure) string

// Composite is the conjunction of all filters of a builder.
type Composite struct {
	checks []check
}

// Build lifts hazard filters into a dependency filter and united hazard
// filters into a united dependency filter, then AND-s the structure filters
// with a per-access check of the lower levels.
func (b *Builder) Build() *Composite {
	c := b.Clone()
	dependency := append(c.dependency, named[DependencyFilter]{"", nil})
	united := append(c.unitedDependency, named[UnitedDependencyFilter]{"", nil})

	var checks []check
	for _, f := range c.structure {
		checks = append(checks, func(spec *mmu.Spec, s *memory.Structure) string {
			if !f.fn(spec, s) {
				return f.name
			}
			return ""
		})
	}
	checks = append(checks, func(spec *mmu.Spec, s *memory.Structure) string {
		for j := 0; j < s.Len(); j++ {
			a := s.Access(j)
			for _, f := range c.access {
				if !f.fn(spec, a) {
					return f.name
				}
			}
			for i := 0; i < j; i++ {
				d := s.Dependency(i, j)
				for _, f := range dependency {
					if f.fn == nil {
						if name := checkHazards(spec, c.hazard, s.Access(i), a, d); name != "" {
							return name
						}
						continue
					}
					if !f.fn(spec, s.Access(i), a, d) {
						return f.name
					}
				}
			}
			u := s.UnitedDependency(j)
			for _, f := range united {
				if f.fn == nil {
					if name := checkUnitedHazards(spec, c.unitedHazard, a, u); name != "" {
						return name
					}
					continue
				}
				if !f.fn(spec, a, u) {
					return f.name
				}
			}
		}
		return ""
	})
	return &Composite{checks: checks}
}

func checkHazards(spec *mmu.Spec, filters []named[HazardFilter], a, b memory.Access, d *memory.Dependency) string {
	for _, h := range d.Hazards() {
		for _, f := range filters {
			if !f.fn(spec, a, b, h) {
				return f.name
			}
		}
	}
	return ""
}

func checkUnitedHazards(spec *mmu.Spec, filters []named[UnitedHazardFilter], a memory.Access, u *memory.UnitedDependency) string {
	for _, uh := range u.Hazards() {
		for _, f := range filters {
			if !f.fn(spec, a, uh) {
				return f.name
			}
		}
	}
	return ""
}

// Test reports whether every filter accepts s.
func (c *Composite) Test(s *memory.Structure) bool {
	_, ok := c.Explain(s)
	return ok
}

// Explain returns the name of the first filter rejecting s.
func (c *Composite) Explain(s *memory.Structure) (string, bool) {
	for _, chk := range c.checks {
		if name := chk(s.Spec(), s); name != "" {
			return name, false
		}
	}
	return "", true
}
