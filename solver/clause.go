package solver

import (
	"strings"

	"github.com/Readm/mmu_sim/integer"
)

// ClauseType tells how the equations of a clause are joined.
type ClauseType int

const (
	And ClauseType = iota
	Or
)

func (t ClauseType) String() string {
	if t == Or {
		return "OR"
	}
	return "AND"
}

// Clause is an ordered list of equations joined by AND or OR.
type Clause struct {
	typ       ClauseType
	equations []Equation
}

// NewClause builds a clause of the given type.
func NewClause(typ ClauseType, equations ...Equation) Clause {
	return Clause{typ: typ, equations: append([]Equation(nil), equations...)}
}

// Type returns AND or OR.
func (c Clause) Type() ClauseType { return c.typ }

// Size returns the number of equations.
func (c Clause) Size() int { return len(c.equations) }

// IsEmpty reports whether the clause has no equations.
func (c Clause) IsEmpty() bool { return len(c.equations) == 0 }

// Equations returns a copy of the equations.
func (c Clause) Equations() []Equation {
	return append([]Equation(nil), c.equations...)
}

// Variables lists the referenced variables in order of first use.
func (c Clause) Variables() []integer.Variable {
	seen := make(map[string]bool)
	var vars []integer.Variable
	for _, eq := range c.equations {
		for _, v := range eq.Variables() {
			if !seen[v.Name] {
				seen[v.Name] = true
				vars = append(vars, v)
			}
		}
	}
	return vars
}

// ContradictsTo reports whether the clause rules out eq: for AND any equation
// must contradict it, for OR every equation must.
func (c Clause) ContradictsTo(eq Equation) bool {
	for _, own := range c.equations {
		if own.Contradicts(eq) {
			if c.typ == And {
				return true
			}
		} else if c.typ == Or {
			return false
		}
	}
	return c.typ == Or
}

// StrongerThan reports whether the clause implies eq.
func (c Clause) StrongerThan(eq Equation) bool {
	for _, own := range c.equations {
		if own.StrongerThan(eq) {
			if c.typ == And {
				return true
			}
		} else if c.typ == Or {
			return false
		}
	}
	return c.typ == Or
}

// StrongerThanClause reports whether c implies o. Both clauses must have the
// same type: an AND clause is stronger when it contains o's equations, an OR
// clause when its equations are contained in o.
func (c Clause) StrongerThanClause(o Clause) bool {
	if c.typ != o.typ {
		return false
	}
	outer, inner := c.equations, o.equations
	if c.typ == Or {
		outer, inner = o.equations, c.equations
	}
	index := make(map[string]bool, len(outer))
	for _, eq := range outer {
		index[eq.Key()] = true
	}
	for _, eq := range inner {
		if !index[eq.Key()] {
			return false
		}
	}
	return true
}

func (c Clause) String() string {
	parts := make([]string, len(c.equations))
	for i, eq := range c.equations {
		parts[i] = eq.String()
	}
	sep := " && "
	if c.typ == Or {
		sep = " || "
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// ClauseBuilder accumulates equations of one clause.
type ClauseBuilder struct {
	typ       ClauseType
	equations []Equation
}

// NewClauseBuilder starts a clause of the given type.
func NewClauseBuilder(typ ClauseType) *ClauseBuilder {
	return &ClauseBuilder{typ: typ}
}

// Add appends equations.
func (b *ClauseBuilder) Add(eqs ...Equation) *ClauseBuilder {
	b.equations = append(b.equations, eqs...)
	return b
}

// Size returns the number of equations added so far.
func (b *ClauseBuilder) Size() int {
	return len(b.equations)
}

// Build returns the clause.
func (b *ClauseBuilder) Build() Clause {
	return NewClause(b.typ, b.equations...)
}
