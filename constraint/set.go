package constraint

import (
	"fmt"
	"math/big"
	"math/rand"

	"github.com/Readm/mmu_sim/filter"
	"github.com/Readm/mmu_sim/integer"
	"github.com/Readm/mmu_sim/memory"
	"github.com/Readm/mmu_sim/mmu"
	"github.com/Readm/mmu_sim/solver"
)

// Set is a resolved group of constraints. Relax mutates it; generation works
// on a Clone.
type Set struct {
	spec      *mmu.Spec
	variables *solver.BiasedConstraints[VariableConstraint]
	events    []BufferEventConstraint
}

// Empty returns a set without constraints.
func Empty(spec *mmu.Spec) *Set {
	return &Set{spec: spec, variables: solver.NewBiasedConstraints[VariableConstraint]()}
}

// Spec returns the subsystem the set was resolved against.
func (s *Set) Spec() *mmu.Spec { return s.spec }

// Clone returns an independent copy.
func (s *Set) Clone() *Set {
	c := Empty(s.spec)
	for _, vc := range s.variables.Constraints() {
		c.variables.Add(vc.Bias, vc)
	}
	c.events = append(c.events, s.events...)
	return c
}

// Constraints returns the variable constraints, hardest first.
func (s *Set) Constraints() []VariableConstraint {
	return s.variables.Constraints()
}

// Events returns the buffer event constraints.
func (s *Set) Events() []BufferEventConstraint {
	return append([]BufferEventConstraint(nil), s.events...)
}

// Histogram counts the variable constraints per bias.
func (s *Set) Histogram() map[solver.Bias]int {
	return s.variables.Histogram()
}

// Relax drops the softest tier of variable constraints.
func (s *Set) Relax() bool {
	return s.variables.Relax()
}

// Filters returns the event constraints as access filters.
func (s *Set) Filters() *filter.Builder {
	b := filter.NewBuilder()
	for _, c := range s.events {
		b.AddAccessFilter(fmt.Sprintf("BufferEvent(%s)", s.spec.BufferByID(c.Buffer).Name), c.Filter)
	}
	return b
}

// Variables returns the instances of every subsystem variable for n accesses.
func (s *Set) Variables(n int) []integer.Variable {
	vars := make([]integer.Variable, 0, n*len(s.spec.Variables()))
	for i := 0; i < n; i++ {
		for _, v := range s.spec.Variables() {
			vars = append(vars, Instance(v, i))
		}
	}
	return vars
}

func (s *Set) instances(c VariableConstraint, n int) ([]int, error) {
	if c.Access == AllAccesses {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out, nil
	}
	if c.Access >= n {
		return nil, fmt.Errorf("constraint %s targets access %d of %d", c, c.Access, n)
	}
	return []int{c.Access}, nil
}

// Formula translates the hazards of st into field clauses: every hazard
// condition becomes a conjunction relating the instances of the two
// accesses. Variable constraints with a single value are added as equations.
func (s *Set) Formula(st *memory.Structure) ([]solver.FieldClause, error) {
	var clauses []solver.FieldClause
	for _, p := range st.Pairs() {
		for _, h := range st.Dependency(p.I, p.J).Hazards() {
			var eqs []solver.FieldEquation
			for _, atom := range h.Condition(s.spec) {
				lhs, rhs := InstanceField(atom.Field, p.I), InstanceField(atom.Field, p.J)
				if atom.Equal {
					eqs = append(eqs, solver.FieldEq(lhs, rhs))
				} else {
					eqs = append(eqs, solver.FieldNe(lhs, rhs))
				}
			}
			if len(eqs) > 0 {
				clauses = append(clauses, solver.FieldClause{Type: solver.And, Equations: eqs})
			}
		}
	}
	for _, c := range s.Constraints() {
		single, ok := c.Distribution.(integer.Single)
		if !ok {
			continue
		}
		indices, err := s.instances(c, st.Len())
		if err != nil {
			return nil, err
		}
		for _, i := range indices {
			clauses = append(clauses, solver.FieldClause{Type: solver.And, Equations: []solver.FieldEquation{
				solver.FieldEqValue(InstanceField(c.Field, i), single.Value),
			}})
		}
	}
	return clauses, nil
}

// Domains returns the restrictions of instances whose whole variable is
// constrained.
func (s *Set) Domains(n int) (map[string]*integer.Domain, error) {
	domains := make(map[string]*integer.Domain)
	for _, c := range s.Constraints() {
		if c.Field.Lo != 0 || c.Field.Hi != c.Field.Var.Width-1 {
			continue
		}
		indices, err := s.instances(c, n)
		if err != nil {
			return nil, err
		}
		for _, i := range indices {
			name := Instance(c.Field.Var, i).Name
			if d, ok := domains[name]; ok {
				d.IntersectDomain(c.Domain())
				continue
			}
			domains[name] = c.Domain()
		}
	}
	return domains, nil
}

// Initializer draws a value for every instance of n accesses: uniform over
// the variable width, with constrained fields drawn from their distribution.
func (s *Set) Initializer(rnd *rand.Rand, n int) (map[string]*big.Int, error) {
	values := make(map[string]*big.Int)
	for _, v := range s.Variables(n) {
		value, _ := v.Domain().Sample(rnd)
		values[v.Name] = value
	}
	for _, c := range s.Constraints() {
		indices, err := s.instances(c, n)
		if err != nil {
			return nil, err
		}
		for _, i := range indices {
			name := Instance(c.Field.Var, i).Name
			values[name] = InstanceField(c.Field, i).Insert(values[name], c.Variate(rnd))
		}
	}
	return values, nil
}

// Check returns the first constraint violated by a solution of n accesses.
func (s *Set) Check(values map[string]*big.Int, n int) (VariableConstraint, bool) {
	for _, c := range s.Constraints() {
		indices, err := s.instances(c, n)
		if err != nil {
			return c, false
		}
		for _, i := range indices {
			value, ok := values[Instance(c.Field.Var, i).Name]
			if !ok || !c.Holds(value) {
				return c, false
			}
		}
	}
	return VariableConstraint{}, true
}
