package solver

import (
	"fmt"
	"math/big"

	"github.com/Readm/mmu_sim/integer"
)

// Equation is lhs == rhs or lhs != rhs, where rhs is a variable or a value.
type Equation struct {
	LHS   integer.Variable
	Equal bool
	RHS   *integer.Variable
	Value *big.Int
}

// Eq builds lhs == rhs.
func Eq(lhs, rhs integer.Variable) Equation {
	return Equation{LHS: lhs, Equal: true, RHS: &rhs}
}

// Ne builds lhs != rhs.
func Ne(lhs, rhs integer.Variable) Equation {
	return Equation{LHS: lhs, Equal: false, RHS: &rhs}
}

// EqValue builds lhs == value.
func EqValue(lhs integer.Variable, value *big.Int) Equation {
	return Equation{LHS: lhs, Equal: true, Value: new(big.Int).Set(value)}
}

// NeValue builds lhs != value.
func NeValue(lhs integer.Variable, value *big.Int) Equation {
	return Equation{LHS: lhs, Equal: false, Value: new(big.Int).Set(value)}
}

// IsValue reports whether the right-hand side is a constant.
func (e Equation) IsValue() bool {
	return e.RHS == nil
}

// Negate flips == and !=.
func (e Equation) Negate() Equation {
	e.Equal = !e.Equal
	return e
}

// Contradicts reports whether e and o cannot hold together. Only equations
// sharing the left-hand side are compared. Two value equations are compared
// numerically, two variable equations by the right-hand variable, and a value
// equation never contradicts a variable equation.
func (e Equation) Contradicts(o Equation) bool {
	if e.LHS.Name != o.LHS.Name {
		return false
	}
	switch {
	case e.IsValue() && o.IsValue():
		same := e.Value.Cmp(o.Value) == 0
		if e.Equal && o.Equal {
			return !same
		}
		if e.Equal != o.Equal {
			return same
		}
		return false
	case !e.IsValue() && !o.IsValue():
		return e.Equal != o.Equal && e.RHS.Name == o.RHS.Name
	default:
		return false
	}
}

// StrongerThan reports whether e implies o.
func (e Equation) StrongerThan(o Equation) bool {
	if e.LHS.Name != o.LHS.Name {
		return false
	}
	switch {
	case e.IsValue() && o.IsValue():
		same := e.Value.Cmp(o.Value) == 0
		if e.Equal == o.Equal {
			return same
		}
		return e.Equal && !same
	case !e.IsValue() && !o.IsValue():
		return e.Equal == o.Equal && e.RHS.Name == o.RHS.Name
	default:
		return false
	}
}

// Key identifies the equation for set membership.
func (e Equation) Key() string {
	return e.String()
}

// Variables lists the variables referenced by e.
func (e Equation) Variables() []integer.Variable {
	if e.IsValue() {
		return []integer.Variable{e.LHS}
	}
	return []integer.Variable{e.LHS, *e.RHS}
}

func (e Equation) String() string {
	op := "!="
	if e.Equal {
		op = "=="
	}
	if e.IsValue() {
		return fmt.Sprintf("%s %s %s", e.LHS.Name, op, e.Value)
	}
	return fmt.Sprintf("%s %s %s", e.LHS.Name, op, e.RHS.Name)
}
