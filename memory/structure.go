package memory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Readm/mmu_sim/mmu"
)

// Pair identifies two accesses of a structure, I < J.
type Pair struct {
	I, J int
}

// Structure is a sequence of accesses together with the dependencies of
// their pairs. It is read-only once created.
type Structure struct {
	spec     *mmu.Spec
	accesses []Access
	deps     map[Pair]*Dependency
	united   []*UnitedDependency
}

// NewStructure validates the pairs and unites the dependencies of every
// access.
func NewStructure(spec *mmu.Spec, accesses []Access, deps map[Pair]*Dependency) (*Structure, error) {
	s := &Structure{
		spec:     spec,
		accesses: append([]Access(nil), accesses...),
		deps:     make(map[Pair]*Dependency, len(deps)),
	}
	for p, d := range deps {
		if p.I < 0 || p.I >= p.J || p.J >= len(accesses) {
			return nil, fmt.Errorf("dependency (%d,%d) is outside a structure of %d accesses", p.I, p.J, len(accesses))
		}
		if d.IsEmpty() {
			continue
		}
		for _, h := range d.Hazards() {
			if h.Target.IsBuffer() && (!accesses[p.I].Path.Contains(h.Target.Buffer) || !accesses[p.J].Path.Contains(h.Target.Buffer)) {
				return nil, fmt.Errorf("hazard %s of (%d,%d) is on a buffer one access does not use", h, p.I, p.J)
			}
		}
		s.deps[p] = d
	}
	s.unite()
	return s, nil
}

func (s *Structure) unite() {
	s.united = make([]*UnitedDependency, len(s.accesses))
	for j := range s.accesses {
		deps := make(map[int]*Dependency)
		for i := 0; i < j; i++ {
			if d, ok := s.deps[Pair{i, j}]; ok {
				deps[i] = d
			}
		}
		s.united[j] = NewUnitedDependency(s.spec, deps)
	}
}

// Spec returns the memory subsystem of the structure.
func (s *Structure) Spec() *mmu.Spec { return s.spec }

// Len returns the number of accesses.
func (s *Structure) Len() int { return len(s.accesses) }

// Access returns access i.
func (s *Structure) Access(i int) Access { return s.accesses[i] }

// Accesses returns every access in order.
func (s *Structure) Accesses() []Access {
	return append([]Access(nil), s.accesses...)
}

// Dependency returns the dependency of access j on access i, or nil.
func (s *Structure) Dependency(i, j int) *Dependency {
	return s.deps[Pair{i, j}]
}

// UnitedDependency returns the united dependency of access j.
func (s *Structure) UnitedDependency(j int) *UnitedDependency {
	return s.united[j]
}

// Pairs returns the pairs with a non-empty dependency, ordered by J then I.
func (s *Structure) Pairs() []Pair {
	pairs := make([]Pair, 0, len(s.deps))
	for p := range s.deps {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a].J != pairs[b].J {
			return pairs[a].J < pairs[b].J
		}
		return pairs[a].I < pairs[b].I
	})
	return pairs
}

func (s *Structure) String() string {
	var sb strings.Builder
	for i, a := range s.accesses {
		fmt.Fprintf(&sb, "%d: %s\n", i, a.Format(s.spec))
	}
	for _, p := range s.Pairs() {
		fmt.Fprintf(&sb, "(%d,%d): %s\n", p.I, p.J, s.deps[p])
	}
	return sb.String()
}
