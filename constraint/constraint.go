// Package constraint translates access structures and user constraints into
// field equations over per-access instances of the subsystem variables.
package constraint

import (
	"fmt"
	"math/big"
	"math/rand"

	"github.com/Readm/mmu_sim/integer"
	"github.com/Readm/mmu_sim/memory"
	"github.com/Readm/mmu_sim/mmu"
	"github.com/Readm/mmu_sim/solver"
)

// AllAccesses makes a variable constraint apply to every access.
const AllAccesses = -1

// Instance returns the copy of v used by access i.
func Instance(v integer.Variable, i int) integer.Variable {
	return integer.Variable{Name: fmt.Sprintf("%s@%d", v.Name, i), Width: v.Width}
}

// InstanceField returns f over the copy of its variable used by access i.
func InstanceField(f integer.Field, i int) integer.Field {
	return integer.Field{Var: Instance(f.Var, i), Lo: f.Lo, Hi: f.Hi}
}

// VariableConstraint restricts a field of the accesses to a distribution.
type VariableConstraint struct {
	Access       int
	Field        integer.Field
	Distribution integer.Distribution
	Bias         solver.Bias
}

// Domain returns the values the field may take.
func (c VariableConstraint) Domain() *integer.Domain {
	return c.Distribution.Domain()
}

// Variate draws a value for the field.
func (c VariableConstraint) Variate(rnd *rand.Rand) *big.Int {
	return c.Distribution.Sample(rnd)
}

// Applies reports whether the constraint covers access i.
func (c VariableConstraint) Applies(i int) bool {
	return c.Access == AllAccesses || c.Access == i
}

// Holds reports whether value satisfies the constraint.
func (c VariableConstraint) Holds(value *big.Int) bool {
	return c.Domain().Contains(c.Field.Extract(value))
}

func (c VariableConstraint) String() string {
	target := "*"
	if c.Access != AllAccesses {
		target = fmt.Sprint(c.Access)
	}
	return fmt.Sprintf("%s@%s in %s (bias %d)", c.Field, target, c.Domain(), c.Bias)
}

// BufferEventConstraint restricts the events an access may report in a buffer.
type BufferEventConstraint struct {
	Buffer mmu.BufferID
	Events []memory.Event
}

// Allows reports whether a satisfies the constraint. Accesses that do not
// look the buffer up are allowed.
func (c BufferEventConstraint) Allows(a memory.Access) bool {
	e, ok := a.Path.Event(c.Buffer)
	if !ok {
		return true
	}
	for _, allowed := range c.Events {
		if e == allowed {
			return true
		}
	}
	return false
}

// Filter adapts the constraint to an access filter.
func (c BufferEventConstraint) Filter(_ *mmu.Spec, a memory.Access) bool {
	return c.Allows(a)
}
