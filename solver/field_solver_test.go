package solver

import (
	"context"
	"math/big"
	"testing"

	"github.com/Readm/mmu_sim/integer"
)

func field(t *testing.T, v integer.Variable, hi, lo int) integer.Field {
	t.Helper()
	f, err := integer.NewField(v, lo, hi)
	if err != nil {
		t.Fatalf("NewField %s[%d:%d]: %v", v.Name, hi, lo, err)
	}
	return f
}

func solveFields(t *testing.T, vars []integer.Variable, clauses []FieldClause, init map[string]*big.Int) Result {
	t.Helper()
	s, err := NewFieldSolver(vars, clauses)
	if err != nil {
		t.Fatalf("NewFieldSolver: %v", err)
	}
	s.SetInitializer(init)
	r, err := s.Solve(context.Background())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	return r
}

func TestFieldSolverKeepsInitializerBits(t *testing.T) {
	a := integer.Variable{Name: "a", Width: 8}
	b := integer.Variable{Name: "b", Width: 8}
	clauses := []FieldClause{{Type: And, Equations: []FieldEquation{
		FieldEq(field(t, a, 3, 0), field(t, b, 7, 4)),
		FieldEqValue(field(t, a, 7, 4), big.NewInt(5)),
	}}}
	r := solveFields(t, []integer.Variable{a, b}, clauses, map[string]*big.Int{"b": big.NewInt(0x0F)})
	if !r.IsSAT() {
		t.Fatalf("expected SAT, got %s: %s", r.Status, r.Message)
	}
	av, bv := r.Solution["a"], r.Solution["b"]
	if got := field(t, a, 7, 4).Extract(av).Int64(); got != 5 {
		t.Fatalf("expected a[7:4]=5, got %d", got)
	}
	if field(t, a, 3, 0).Extract(av).Cmp(field(t, b, 7, 4).Extract(bv)) != 0 {
		t.Fatalf("a[3:0] and b[7:4] differ: a=%#x b=%#x", av, bv)
	}
	if got := field(t, b, 3, 0).Extract(bv).Int64(); got != 0xF {
		t.Fatalf("expected untouched b[3:0]=0xf, got %#x", got)
	}
}

func TestFieldSolverMisalignedLinks(t *testing.T) {
	a := integer.Variable{Name: "a", Width: 8}
	b := integer.Variable{Name: "b", Width: 4}
	clauses := []FieldClause{{Type: And, Equations: []FieldEquation{
		FieldEq(field(t, a, 5, 2), b.Field()),
		FieldEqValue(field(t, a, 3, 0), big.NewInt(3)),
	}}}
	r := solveFields(t, []integer.Variable{a, b}, clauses, nil)
	if !r.IsSAT() {
		t.Fatalf("expected SAT, got %s: %s", r.Status, r.Message)
	}
	av, bv := r.Solution["a"], r.Solution["b"]
	if field(t, a, 5, 2).Extract(av).Cmp(bv) != 0 {
		t.Fatalf("a[5:2] and b differ: a=%#x b=%#x", av, bv)
	}
	if got := field(t, a, 3, 0).Extract(av).Int64(); got != 3 {
		t.Fatalf("expected a[3:0]=3, got %d", got)
	}
}

func TestFieldSolverDisequality(t *testing.T) {
	a := integer.Variable{Name: "a", Width: 2}
	b := integer.Variable{Name: "b", Width: 2}
	clauses := []FieldClause{
		{Type: And, Equations: []FieldEquation{
			FieldNe(a.Field(), b.Field()),
			FieldEqValue(field(t, a, 0, 0), big.NewInt(1)),
			FieldEqValue(field(t, a, 1, 1), big.NewInt(0)),
			FieldEqValue(field(t, b, 0, 0), big.NewInt(1)),
		}},
	}
	r := solveFields(t, []integer.Variable{a, b}, clauses, nil)
	if !r.IsSAT() {
		t.Fatalf("expected SAT, got %s: %s", r.Status, r.Message)
	}
	if r.Solution["a"].Int64() != 1 || r.Solution["b"].Int64() != 3 {
		t.Fatalf("expected a=1 b=3, got %v", r.Solution)
	}

	clauses[0].Equations = append(clauses[0].Equations, FieldEqValue(field(t, b, 1, 1), big.NewInt(0)))
	if r := solveFields(t, []integer.Variable{a, b}, clauses, nil); r.Status != StatusUNSAT {
		t.Fatalf("expected UNSAT, got %s", r.Status)
	}
}

func TestFieldSolverDisjunction(t *testing.T) {
	a := integer.Variable{Name: "a", Width: 8}
	clauses := []FieldClause{
		{Type: Or, Equations: []FieldEquation{
			FieldEqValue(a.Field(), big.NewInt(0x12)),
			FieldEqValue(a.Field(), big.NewInt(0x34)),
		}},
		{Type: And, Equations: []FieldEquation{
			FieldNeValue(field(t, a, 7, 4), big.NewInt(1)),
		}},
	}
	r := solveFields(t, []integer.Variable{a}, clauses, nil)
	if !r.IsSAT() || r.Solution["a"].Int64() != 0x34 {
		t.Fatalf("expected a=0x34, got %s %v", r.Status, r.Solution)
	}
}

func TestFieldSolverRejectsWidthMismatch(t *testing.T) {
	a := integer.Variable{Name: "a", Width: 8}
	b := integer.Variable{Name: "b", Width: 8}
	clauses := []FieldClause{{Type: And, Equations: []FieldEquation{
		FieldEq(field(t, a, 3, 0), field(t, b, 4, 0)),
	}}}
	if _, err := NewFieldSolver([]integer.Variable{a, b}, clauses); err == nil {
		t.Fatalf("expected width mismatch error")
	}
	clauses[0].Equations[0] = FieldEq(field(t, a, 3, 0), field(t, integer.Variable{Name: "c", Width: 4}, 3, 0))
	if _, err := NewFieldSolver([]integer.Variable{a, b}, clauses); err == nil {
		t.Fatalf("expected unknown variable error")
	}
}

func TestFieldSolverDomains(t *testing.T) {
	a := integer.Variable{Name: "a", Width: 8}
	b := integer.Variable{Name: "b", Width: 8}
	clauses := []FieldClause{{Type: And, Equations: []FieldEquation{
		FieldNe(a.Field(), b.Field()),
	}}}
	s, err := NewFieldSolver([]integer.Variable{a, b}, clauses)
	if err != nil {
		t.Fatalf("NewFieldSolver: %v", err)
	}
	s.SetDomains(map[string]*integer.Domain{
		"a": integer.NewRangesDomain(integer.MustRange(7, 7)),
		"b": integer.NewRangesDomain(integer.MustRange(7, 8)),
	})
	r, err := s.Solve(context.Background())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !r.IsSAT() || r.Solution["a"].Int64() != 7 || r.Solution["b"].Int64() != 8 {
		t.Fatalf("expected a=7 b=8, got %s %v", r.Status, r.Solution)
	}
}

func TestFieldSolverProjectsDomains(t *testing.T) {
	a := integer.Variable{Name: "a", Width: 8}
	domain := integer.EmptyDomain()
	domain.Include(integer.MustRange(0x12, 0x12))
	domain.Include(integer.MustRange(0x34, 0x34))
	lo := field(t, a, 3, 0)
	for _, tc := range []struct {
		excluded []int64
		want     Status
	}{
		{[]int64{2}, StatusSAT},
		{[]int64{2, 4}, StatusUNSAT},
	} {
		var eqs []FieldEquation
		for _, v := range tc.excluded {
			eqs = append(eqs, FieldNeValue(lo, big.NewInt(v)))
		}
		s, err := NewFieldSolver([]integer.Variable{a}, []FieldClause{{Type: And, Equations: eqs}})
		if err != nil {
			t.Fatalf("NewFieldSolver: %v", err)
		}
		s.SetDomains(map[string]*integer.Domain{"a": domain})
		r, err := s.Solve(context.Background())
		if err != nil {
			t.Fatalf("Solve: %v", err)
		}
		if r.Status != tc.want {
			t.Fatalf("excluding %v: expected %s, got %s", tc.excluded, tc.want, r.Status)
		}
		if r.IsSAT() && lo.Extract(r.Solution["a"]).Int64() != 4 {
			t.Fatalf("expected a[3:0]=4, got %#x", r.Solution["a"])
		}
	}
}

func TestFieldSolverProjectsIntervals(t *testing.T) {
	a := integer.Variable{Name: "a", Width: 16}
	b := integer.Variable{Name: "b", Width: 16}
	clauses := []FieldClause{{Type: And, Equations: []FieldEquation{
		FieldEq(field(t, a, 7, 4), field(t, b, 7, 4)),
	}}}
	s, err := NewFieldSolver([]integer.Variable{a, b}, clauses)
	if err != nil {
		t.Fatalf("NewFieldSolver: %v", err)
	}
	s.SetDomains(map[string]*integer.Domain{"a": integer.NewRangesDomain(integer.MustRange(0x4000, 0x4fff))})
	r, err := s.Solve(context.Background())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !r.IsSAT() || r.Solution["a"].Int64() != 0x4000 {
		t.Fatalf("expected a=0x4000, got %s %v", r.Status, r.Solution)
	}
}
