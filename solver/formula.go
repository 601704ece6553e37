package solver

import (
	"strings"

	"github.com/Readm/mmu_sim/integer"
)

// Formula is a conjunction of clauses.
type Formula struct {
	clauses []Clause
}

// Clauses returns a copy of the clauses.
func (f *Formula) Clauses() []Clause {
	if f == nil {
		return nil
	}
	return append([]Clause(nil), f.clauses...)
}

// Size returns the number of clauses.
func (f *Formula) Size() int {
	if f == nil {
		return 0
	}
	return len(f.clauses)
}

// Variables lists the referenced variables in order of first use.
func (f *Formula) Variables() []integer.Variable {
	seen := make(map[string]bool)
	var vars []integer.Variable
	for _, c := range f.Clauses() {
		for _, v := range c.Variables() {
			if !seen[v.Name] {
				seen[v.Name] = true
				vars = append(vars, v)
			}
		}
	}
	return vars
}

func (f *Formula) String() string {
	parts := make([]string, 0, f.Size())
	for _, c := range f.Clauses() {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, " && ")
}

// FormulaBuilder accumulates clauses. AND clauses and single equation OR
// clauses are split into singleton clauses so that the kernel is explicit.
type FormulaBuilder struct {
	clauses []Clause
}

// NewFormulaBuilder creates an empty builder.
func NewFormulaBuilder() *FormulaBuilder {
	return &FormulaBuilder{}
}

// AddEquation appends a singleton clause.
func (b *FormulaBuilder) AddEquation(eq Equation) *FormulaBuilder {
	b.clauses = append(b.clauses, NewClause(And, eq))
	return b
}

// AddClause appends c, splitting it when it has no real choice.
func (b *FormulaBuilder) AddClause(c Clause) *FormulaBuilder {
	if c.IsEmpty() {
		b.clauses = append(b.clauses, c)
		return b
	}
	if c.Type() == And || c.Size() == 1 {
		for _, eq := range c.equations {
			b.AddEquation(eq)
		}
		return b
	}
	b.clauses = append(b.clauses, c)
	return b
}

// AddFormula appends every clause of f.
func (b *FormulaBuilder) AddFormula(f *Formula) *FormulaBuilder {
	for _, c := range f.Clauses() {
		b.AddClause(c)
	}
	return b
}

// Build returns the formula.
func (b *FormulaBuilder) Build() *Formula {
	return &Formula{clauses: append([]Clause(nil), b.clauses...)}
}
