package solver

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/Readm/mmu_sim/integer"
)

// FieldEquation relates a bit field to another field of the same width or to
// a constant.
type FieldEquation struct {
	LHS   integer.Field
	Equal bool
	RHS   *integer.Field
	Value *big.Int
}

// FieldEq builds lhs == rhs.
func FieldEq(lhs, rhs integer.Field) FieldEquation {
	return FieldEquation{LHS: lhs, Equal: true, RHS: &rhs}
}

// FieldNe builds lhs != rhs.
func FieldNe(lhs, rhs integer.Field) FieldEquation {
	return FieldEquation{LHS: lhs, Equal: false, RHS: &rhs}
}

// FieldEqValue builds lhs == value.
func FieldEqValue(lhs integer.Field, value *big.Int) FieldEquation {
	return FieldEquation{LHS: lhs, Equal: true, Value: new(big.Int).Set(value)}
}

// FieldNeValue builds lhs != value.
func FieldNeValue(lhs integer.Field, value *big.Int) FieldEquation {
	return FieldEquation{LHS: lhs, Equal: false, Value: new(big.Int).Set(value)}
}

func (e FieldEquation) String() string {
	op := "!="
	if e.Equal {
		op = "=="
	}
	if e.RHS == nil {
		return fmt.Sprintf("%s %s %s", e.LHS, op, e.Value)
	}
	return fmt.Sprintf("%s %s %s", e.LHS, op, e.RHS)
}

// FieldClause joins field equations by AND or OR.
type FieldClause struct {
	Type      ClauseType
	Equations []FieldEquation
}

// MaxExpansion bounds the clauses produced when an OR of field equations is
// rewritten into conjunctive form.
const MaxExpansion = 1 << 12

// FieldSolver solves equations over bit fields. Every variable is cut into the
// pieces given by integer.Divide over all field boundaries (propagated across
// linked fields), equations are rewritten over the pieces, and the piece
// values are merged back.
type FieldSolver struct {
	vars        []integer.Variable
	clauses     []FieldClause
	initializer map[string]*big.Int
	domains     map[string]*integer.Domain
	opts        []Option

	pieces map[string][]integer.Range
}

// NewFieldSolver validates the field widths.
func NewFieldSolver(vars []integer.Variable, clauses []FieldClause, opts ...Option) (*FieldSolver, error) {
	if vars == nil {
		return nil, errors.New("variables cannot be nil")
	}
	known := make(map[string]integer.Variable, len(vars))
	for _, v := range vars {
		known[v.Name] = v
	}
	for _, c := range clauses {
		for _, eq := range c.Equations {
			if _, ok := known[eq.LHS.Var.Name]; !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownVariable, eq.LHS.Var.Name)
			}
			if eq.RHS == nil {
				if eq.Value == nil {
					return nil, fmt.Errorf("equation %s has no right-hand side", eq.LHS)
				}
				continue
			}
			if _, ok := known[eq.RHS.Var.Name]; !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownVariable, eq.RHS.Var.Name)
			}
			if eq.LHS.Width() != eq.RHS.Width() {
				return nil, fmt.Errorf("%w: %s and %s differ in width", integer.ErrMalformedField, eq.LHS, *eq.RHS)
			}
		}
	}
	return &FieldSolver{vars: vars, clauses: clauses, opts: opts}, nil
}

// SetInitializer provides the values of bits not touched by any equation.
func (s *FieldSolver) SetInitializer(values map[string]*big.Int) {
	s.initializer = values
}

// SetDomains restricts whole variables. A variable cut into several pieces
// gets the projection of its domain onto each piece, which may admit values
// outside the domain, so callers must check such solutions.
func (s *FieldSolver) SetDomains(domains map[string]*integer.Domain) {
	s.domains = domains
}

// Solve returns whole-variable values in the solution.
func (s *FieldSolver) Solve(ctx context.Context) (Result, error) {
	s.pieces = s.divide()

	var pieceVars []integer.Variable
	for _, v := range s.vars {
		for _, r := range s.pieces[v.Name] {
			pieceVars = append(pieceVars, pieceVariable(v, r))
		}
	}

	fb := NewFormulaBuilder()
	used := make(map[string]bool)
	for _, c := range s.clauses {
		clauses, err := s.lowerClause(c, used)
		if err != nil {
			return Result{}, err
		}
		for _, lowered := range clauses {
			fb.AddClause(lowered)
		}
	}

	opts := s.opts
	if pieceDomains := s.pieceDomains(); len(pieceDomains) > 0 {
		for name := range pieceDomains {
			used[name] = true
		}
		opts = append(append([]Option(nil), opts...), WithDomains(pieceDomains))
	}
	fs, err := NewFormulaSolver(pieceVars, fb.Build(), opts...)
	if err != nil {
		return Result{}, err
	}
	r, err := fs.Solve(ctx)
	if err != nil || !r.IsSAT() {
		return r, err
	}

	solution := make(map[string]*big.Int, len(s.vars))
	for _, v := range s.vars {
		value := new(big.Int)
		if init, ok := s.initializer[v.Name]; ok && init != nil {
			value.Set(init)
		}
		for _, piece := range s.pieces[v.Name] {
			name := pieceVariable(v, piece).Name
			if !used[name] {
				continue
			}
			field := integer.Field{Var: v, Lo: int(piece.Min().Int64()), Hi: int(piece.Max().Int64())}
			value = field.Insert(value, r.Solution[name])
		}
		solution[v.Name] = value
	}
	return Result{Status: StatusSAT, Solution: solution, Message: r.Message}, nil
}

func (s *FieldSolver) pieceDomains() map[string]*integer.Domain {
	out := make(map[string]*integer.Domain)
	for _, v := range s.vars {
		d, ok := s.domains[v.Name]
		if !ok || d == nil {
			continue
		}
		pieces := s.pieces[v.Name]
		if len(pieces) == 1 {
			out[pieceVariable(v, pieces[0]).Name] = d
			continue
		}
		for _, p := range pieces {
			out[pieceVariable(v, p).Name] = project(d, int(p.Min().Int64()), int(p.Max().Int64()))
		}
	}
	return out
}

// project returns a superset of the values bits [lo, hi] take over d.
func project(d *integer.Domain, lo, hi int) *integer.Domain {
	size := new(big.Int).Lsh(big.NewInt(1), uint(hi-lo+1))
	last := new(big.Int).Sub(size, big.NewInt(1))
	out := integer.EmptyDomain()
	include := func(min, max *big.Int) {
		if r, err := integer.NewRange(min, max); err == nil {
			out.Include(r)
		}
	}
	for _, r := range d.Ranges() {
		l := new(big.Int).Rsh(r.Min(), uint(lo))
		h := new(big.Int).Rsh(r.Max(), uint(lo))
		count := new(big.Int).Sub(h, l)
		count.Add(count, big.NewInt(1))
		if count.Cmp(size) >= 0 {
			include(new(big.Int), last)
			continue
		}
		l.Mod(l, size)
		h.Mod(h, size)
		if l.Cmp(h) <= 0 {
			include(l, h)
			continue
		}
		include(new(big.Int), h)
		include(l, last)
	}
	return out
}

func pieceVariable(v integer.Variable, r integer.Range) integer.Variable {
	return integer.Variable{Name: fmt.Sprintf("%s$%s", v.Name, r), Width: int(r.Size().Int64())}
}

// divide computes the pieces of every variable. Boundaries of a field are
// mirrored onto every field linked to it by an equation until no new
// boundary appears.
func (s *FieldSolver) divide() map[string][]integer.Range {
	ranges := make(map[string][]integer.Range)
	for _, v := range s.vars {
		ranges[v.Name] = []integer.Range{integer.MustRange(0, int64(v.Width-1))}
	}
	var links [][2]integer.Field
	for _, c := range s.clauses {
		for _, eq := range c.Equations {
			ranges[eq.LHS.Var.Name] = append(ranges[eq.LHS.Var.Name], eq.LHS.Bits())
			if eq.RHS != nil {
				ranges[eq.RHS.Var.Name] = append(ranges[eq.RHS.Var.Name], eq.RHS.Bits())
				links = append(links, [2]integer.Field{eq.LHS, *eq.RHS})
			}
		}
	}

	pieces := make(map[string][]integer.Range)
	for name, rs := range ranges {
		pieces[name] = integer.Divide(rs)
	}
	for changed := true; changed; {
		changed = false
		for _, link := range links {
			for _, dir := range [][2]integer.Field{{link[0], link[1]}, {link[1], link[0]}} {
				from, to := dir[0], dir[1]
				for _, p := range pieces[from.Var.Name] {
					part, ok := p.Intersect(from.Bits())
					if !ok {
						continue
					}
					shift := int64(to.Lo - from.Lo)
					mirrored := integer.MustRange(part.Min().Int64()+shift, part.Max().Int64()+shift)
					if hasBoundaries(pieces[to.Var.Name], mirrored) {
						continue
					}
					ranges[to.Var.Name] = append(ranges[to.Var.Name], mirrored)
					pieces[to.Var.Name] = integer.Divide(ranges[to.Var.Name])
					changed = true
				}
			}
		}
	}
	return pieces
}

func hasBoundaries(pieces []integer.Range, r integer.Range) bool {
	startOK, endOK := false, false
	for _, p := range pieces {
		if p.Min().Cmp(r.Min()) == 0 {
			startOK = true
		}
		if p.Max().Cmp(r.Max()) == 0 {
			endOK = true
		}
	}
	return startOK && endOK
}

// fieldPieces returns the pieces of f in ascending bit order.
func (s *FieldSolver) fieldPieces(f integer.Field) []integer.Range {
	var out []integer.Range
	for _, p := range s.pieces[f.Var.Name] {
		if f.Bits().Contains(p) {
			out = append(out, p)
		}
	}
	return out
}

// lowerEquation rewrites eq over pieces. The returned equations are joined by
// AND for == and by OR for !=.
func (s *FieldSolver) lowerEquation(eq FieldEquation, used map[string]bool) []Equation {
	lhs := s.fieldPieces(eq.LHS)
	var out []Equation
	if eq.RHS == nil {
		for _, p := range lhs {
			pv := pieceVariable(eq.LHS.Var, p)
			used[pv.Name] = true
			bits := integer.Field{
				Var: integer.Variable{Name: "const", Width: eq.LHS.Width()},
				Lo:  int(p.Min().Int64()) - eq.LHS.Lo,
				Hi:  int(p.Max().Int64()) - eq.LHS.Lo,
			}.Extract(eq.Value)
			out = append(out, Equation{LHS: pv, Equal: eq.Equal, Value: bits})
		}
		return out
	}
	rhs := s.fieldPieces(*eq.RHS)
	for i := range lhs {
		lv := pieceVariable(eq.LHS.Var, lhs[i])
		rv := pieceVariable(eq.RHS.Var, rhs[i])
		used[lv.Name] = true
		used[rv.Name] = true
		if lv.Name == rv.Name {
			if !eq.Equal {
				out = append(out, Ne(lv, lv))
			}
			continue
		}
		out = append(out, Equation{LHS: lv, Equal: eq.Equal, RHS: &rv})
	}
	return out
}

// lowerClause returns solver clauses whose conjunction is equivalent to c.
func (s *FieldSolver) lowerClause(c FieldClause, used map[string]bool) ([]Clause, error) {
	if len(c.Equations) == 0 {
		return []Clause{NewClause(c.Type)}, nil
	}
	if c.Type == And {
		var out []Clause
		for _, eq := range c.Equations {
			lowered := s.lowerEquation(eq, used)
			if len(lowered) == 0 {
				continue
			}
			if eq.Equal {
				out = append(out, NewClause(And, lowered...))
			} else {
				out = append(out, NewClause(Or, lowered...))
			}
		}
		return out, nil
	}

	// OR of field equations: disequalities are already disjunctions, equalities
	// are conjunctions and are distributed over the rest.
	var flat []Equation
	var conjunctions [][]Equation
	for _, eq := range c.Equations {
		lowered := s.lowerEquation(eq, used)
		if !eq.Equal {
			flat = append(flat, lowered...)
			continue
		}
		if len(lowered) == 0 {
			// A field equal to itself always holds.
			return nil, nil
		}
		conjunctions = append(conjunctions, lowered)
	}
	radices := make([]int, len(conjunctions))
	for i, conj := range conjunctions {
		radices[i] = len(conj)
	}
	total, ok := NumberOfVariants(radices)
	if !ok || total > MaxExpansion {
		return nil, fmt.Errorf("disjunction %v expands into too many clauses", c.Equations)
	}
	out := make([]Clause, 0, total)
	for index := 0; index < total; index++ {
		b := NewClauseBuilder(Or).Add(flat...)
		for i, choice := range Variant(index, radices) {
			b.Add(conjunctions[i][choice])
		}
		out = append(out, b.Build())
	}
	return out, nil
}
