package solver

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/Readm/mmu_sim/integer"
)

// Status is the outcome of a solver run.
type Status int

const (
	StatusUNSAT Status = iota
	StatusSAT
	// StatusBudget means the variant budget ran out before an answer.
	StatusBudget
)

func (s Status) String() string {
	switch s {
	case StatusSAT:
		return "SAT"
	case StatusBudget:
		return "BUDGET"
	default:
		return "UNSAT"
	}
}

// Mode selects whether a solution is built.
type Mode int

const (
	// ModeSAT only decides satisfiability.
	ModeSAT Mode = iota
	// ModeMAP also returns an assignment.
	ModeMAP
)

// Result is a solver answer. UNSAT is a normal result, not an error.
type Result struct {
	Status   Status
	Solution map[string]*big.Int
	Message  string
}

// IsSAT reports a satisfiable result.
func (r Result) IsSAT() bool {
	return r.Status == StatusSAT
}

func unsat(format string, args ...any) Result {
	return Result{Status: StatusUNSAT, Message: fmt.Sprintf(format, args...)}
}

// ErrUnknownVariable is returned when an equation uses an undeclared variable.
var ErrUnknownVariable = errors.New("unknown variable")

// ClauseSolver decides a single clause over variable domains.
type ClauseSolver struct {
	vars    []integer.Variable
	clause  Clause
	domains map[string]*integer.Domain
	mode    Mode
}

// NewClauseSolver validates that every equation refers to vars.
func NewClauseSolver(vars []integer.Variable, clause Clause, domains map[string]*integer.Domain, mode Mode) (*ClauseSolver, error) {
	if vars == nil {
		return nil, errors.New("variables cannot be nil")
	}
	known := make(map[string]integer.Variable, len(vars))
	for _, v := range vars {
		known[v.Name] = v
	}
	for _, eq := range clause.equations {
		for _, v := range eq.Variables() {
			if _, ok := known[v.Name]; !ok {
				return nil, fmt.Errorf("%w: %s in %s", ErrUnknownVariable, v.Name, eq)
			}
		}
	}
	return &ClauseSolver{vars: vars, clause: clause, domains: domains, mode: mode}, nil
}

// Solve decides the clause.
func (s *ClauseSolver) Solve() Result {
	if s.clause.typ == Or {
		if s.clause.IsEmpty() {
			return unsat("empty OR clause")
		}
		for _, eq := range s.clause.equations {
			if r := s.solveAnd([]Equation{eq}); r.IsSAT() {
				return r
			}
		}
		return unsat("no equation of %s is satisfiable", s.clause)
	}
	return s.solveAnd(s.clause.equations)
}

type classState struct {
	root    string
	members []string
	domain  *integer.Domain
	value   *big.Int
}

func (s *ClauseSolver) solveAnd(equations []Equation) Result {
	domains := make(map[string]*integer.Domain, len(s.vars))
	for _, v := range s.vars {
		d := v.Domain()
		if restrict, ok := s.domains[v.Name]; ok && restrict != nil {
			d.IntersectDomain(restrict)
		}
		domains[v.Name] = d
	}

	uf := newUnionFind()
	type pair struct{ a, b string }
	var notEqual []pair

	for _, eq := range equations {
		lhs := eq.LHS.Name
		if eq.IsValue() {
			if eq.Equal {
				domains[lhs].Intersect(integer.PointRange(eq.Value))
			} else {
				domains[lhs].ExcludeValue(eq.Value)
			}
			continue
		}
		rhs := eq.RHS.Name
		if eq.Equal {
			uf.union(lhs, rhs)
			continue
		}
		if lhs == rhs {
			return unsat("%s is never satisfied", eq)
		}
		notEqual = append(notEqual, pair{lhs, rhs})
	}

	for _, v := range s.vars {
		if domains[v.Name].IsEmpty() {
			return unsat("domain of %s is empty", v.Name)
		}
	}

	classes := make(map[string]*classState)
	var order []string
	for _, v := range s.vars {
		root := uf.find(v.Name)
		c, ok := classes[root]
		if !ok {
			c = &classState{root: root, domain: domains[v.Name].Clone()}
			classes[root] = c
			order = append(order, root)
		} else {
			c.domain.IntersectDomain(domains[v.Name])
		}
		c.members = append(c.members, v.Name)
		if c.domain.IsEmpty() {
			return unsat("equal variables %v have no common value", c.members)
		}
	}

	neighbours := make(map[string]map[string]bool)
	for _, p := range notEqual {
		ra, rb := uf.find(p.a), uf.find(p.b)
		if ra == rb {
			return unsat("%s and %s are both equal and not equal", p.a, p.b)
		}
		if !classes[ra].domain.Overlaps(classes[rb].domain) {
			continue
		}
		if neighbours[ra] == nil {
			neighbours[ra] = make(map[string]bool)
		}
		if neighbours[rb] == nil {
			neighbours[rb] = make(map[string]bool)
		}
		neighbours[ra][rb] = true
		neighbours[rb][ra] = true
	}

	if !assignClasses(order, classes, neighbours) {
		return unsat("inequalities cannot be satisfied")
	}

	result := Result{Status: StatusSAT}
	if s.mode == ModeMAP {
		result.Solution = make(map[string]*big.Int, len(s.vars))
		for _, c := range classes {
			for _, name := range c.members {
				result.Solution[name] = new(big.Int).Set(c.value)
			}
		}
	}
	return result
}

// assignClasses picks one value per equality class so that classes joined by
// a disequality differ. Classes whose domain is not larger than their number
// of constrained neighbours are branched on; the rest are assigned greedily.
func assignClasses(order []string, classes map[string]*classState, neighbours map[string]map[string]bool) bool {
	var tight []string
	for _, root := range order {
		c := classes[root]
		if c.value != nil {
			continue
		}
		degree := 0
		for n := range neighbours[root] {
			if classes[n].value == nil {
				degree++
			}
		}
		if c.domain.Size().Cmp(big.NewInt(int64(degree))) <= 0 {
			tight = append(tight, root)
		}
	}

	if len(tight) == 0 {
		for _, root := range order {
			c := classes[root]
			if c.value != nil {
				continue
			}
			used := make(map[string]bool)
			for n := range neighbours[root] {
				if v := classes[n].value; v != nil {
					used[v.String()] = true
				}
			}
			it := c.domain.Values()
			for v, ok := it.Next(); ok; v, ok = it.Next() {
				if !used[v.String()] {
					c.value = v
					break
				}
			}
			if c.value == nil {
				return false
			}
		}
		return true
	}

	sort.SliceStable(tight, func(i, j int) bool {
		return classes[tight[i]].domain.Size().Cmp(classes[tight[j]].domain.Size()) < 0
	})
	root := tight[0]
	c := classes[root]
	it := c.domain.Values()
	for v, ok := it.Next(); ok; v, ok = it.Next() {
		conflict := false
		for n := range neighbours[root] {
			if nv := classes[n].value; nv != nil && nv.Cmp(v) == 0 {
				conflict = true
				break
			}
		}
		if conflict {
			continue
		}
		saved := snapshotClasses(classes)
		c.value = v
		for n := range neighbours[root] {
			if classes[n].value == nil {
				classes[n].domain.ExcludeValue(v)
			}
		}
		if !anyEmpty(classes) && assignClasses(order, classes, neighbours) {
			return true
		}
		restoreClasses(classes, saved)
	}
	return false
}

type classSnapshot struct {
	domain *integer.Domain
	value  *big.Int
}

func snapshotClasses(classes map[string]*classState) map[string]classSnapshot {
	saved := make(map[string]classSnapshot, len(classes))
	for root, c := range classes {
		saved[root] = classSnapshot{domain: c.domain.Clone(), value: c.value}
	}
	return saved
}

func restoreClasses(classes map[string]*classState, saved map[string]classSnapshot) {
	for root, snap := range saved {
		classes[root].domain = snap.domain
		classes[root].value = snap.value
	}
}

func anyEmpty(classes map[string]*classState) bool {
	for _, c := range classes {
		if c.value == nil && c.domain.IsEmpty() {
			return true
		}
	}
	return false
}

type unionFind struct {
	parent map[string]string
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string)}
}

func (u *unionFind) find(x string) string {
	p, ok := u.parent[x]
	if !ok || p == x {
		return x
	}
	root := u.find(p)
	u.parent[x] = root
	return root
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}
