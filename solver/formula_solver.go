package solver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Readm/mmu_sim/integer"
)

// Option configures a FormulaSolver.
type Option func(*options)

type options struct {
	domains map[string]*integer.Domain
	mode    Mode
	budget  Budget
	workers int
}

// WithDomains restricts variables to the given domains.
func WithDomains(domains map[string]*integer.Domain) Option {
	return func(o *options) { o.domains = domains }
}

// WithMode selects SAT-only or assignment mode.
func WithMode(mode Mode) Option {
	return func(o *options) { o.mode = mode }
}

// WithBudget bounds the variant enumeration.
func WithBudget(b Budget) Option {
	return func(o *options) { o.budget = b }
}

// WithWorkers solves variants on n goroutines. Values below 2 solve sequentially.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

func buildOptions(opts []Option) options {
	o := options{mode: ModeMAP}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// FormulaSolver decides a formula by solving its kernel of singleton clauses
// and then enumerating one equation per disjunctive clause.
type FormulaSolver struct {
	vars    []integer.Variable
	formula *Formula
	opts    options

	// Variants counts the variants actually solved by the last Solve call.
	Variants int
}

// NewFormulaSolver checks preconditions: variables and formula must be set.
func NewFormulaSolver(vars []integer.Variable, formula *Formula, opts ...Option) (*FormulaSolver, error) {
	if vars == nil {
		return nil, errors.New("variables cannot be nil")
	}
	if formula == nil {
		return nil, errors.New("formula cannot be nil")
	}
	return &FormulaSolver{vars: vars, formula: formula, opts: buildOptions(opts)}, nil
}

// Solve runs the search. The error is non-nil only for precondition
// violations and context cancellation.
func (s *FormulaSolver) Solve(ctx context.Context) (Result, error) {
	s.Variants = 0
	kernel := NewClauseBuilder(And)
	var disjunctions []Clause
	for _, c := range s.formula.clauses {
		if c.IsEmpty() {
			return unsat("formula contains an empty clause"), nil
		}
		if c.typ == And {
			kernel.Add(c.equations...)
			continue
		}
		if c.Size() == 1 {
			kernel.Add(c.equations[0])
			continue
		}
		disjunctions = append(disjunctions, c)
	}
	kernelClause := kernel.Build()

	mode := s.opts.mode
	if len(disjunctions) > 0 {
		mode = ModeSAT
	}
	kernelResult, err := s.solveClause(kernelClause, mode)
	if err != nil {
		return Result{}, err
	}
	s.Variants = 1
	if !kernelResult.IsSAT() || len(disjunctions) == 0 {
		return kernelResult, nil
	}

	simplified, ok := simplify(kernelClause, disjunctions)
	if !ok {
		return unsat("a disjunction contradicts the kernel"), nil
	}
	if len(simplified) == 0 {
		if s.opts.mode == ModeSAT {
			return kernelResult, nil
		}
		return s.solveClause(kernelClause, s.opts.mode)
	}

	radices := make([]int, len(simplified))
	for i, c := range simplified {
		radices[i] = c.Size()
	}
	total, fits := NumberOfVariants(radices)
	limit, truncated := s.opts.budget.Limit(total)
	truncated = truncated || !fits

	var found Result
	var foundIndex int
	if s.opts.workers > 1 {
		found, foundIndex, err = s.solveParallel(ctx, kernelClause, simplified, radices, limit)
	} else {
		found, foundIndex, err = s.solveSequential(ctx, kernelClause, simplified, radices, limit)
	}
	if err != nil {
		return Result{}, err
	}
	if foundIndex >= 0 {
		return found, nil
	}
	if truncated {
		return Result{Status: StatusBudget, Message: fmt.Sprintf("variant budget exhausted after %d of %d variants", limit, total)}, nil
	}
	return unsat("SAT variant not found"), nil
}

func (s *FormulaSolver) solveClause(c Clause, mode Mode) (Result, error) {
	cs, err := NewClauseSolver(s.vars, c, s.opts.domains, mode)
	if err != nil {
		return Result{}, err
	}
	return cs.Solve(), nil
}

func variantClause(kernel Clause, clauses []Clause, choices []int) Clause {
	b := NewClauseBuilder(And).Add(kernel.equations...)
	for i, c := range clauses {
		b.Add(c.equations[choices[i]])
	}
	return b.Build()
}

func (s *FormulaSolver) solveSequential(ctx context.Context, kernel Clause, clauses []Clause, radices []int, limit int) (Result, int, error) {
	for index := 0; index < limit; index++ {
		if err := ctx.Err(); err != nil {
			return Result{}, -1, err
		}
		s.Variants++
		r, err := s.solveClause(variantClause(kernel, clauses, Variant(index, radices)), s.opts.mode)
		if err != nil {
			return Result{}, -1, err
		}
		if r.IsSAT() {
			return r, index, nil
		}
	}
	return Result{}, -1, nil
}

// solveParallel shards variants over workers; the lowest satisfiable index
// wins so the answer matches the sequential search.
func (s *FormulaSolver) solveParallel(ctx context.Context, kernel Clause, clauses []Clause, radices []int, limit int) (Result, int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.workers)

	var mu sync.Mutex
	best := -1
	var bestResult Result
	solved := 0

	for index := 0; index < limit; index++ {
		mu.Lock()
		stop := best >= 0 && best < index
		mu.Unlock()
		if stop {
			break
		}
		if gctx.Err() != nil {
			break
		}
		index := index
		g.Go(func() error {
			mu.Lock()
			skip := best >= 0 && best < index
			mu.Unlock()
			if skip {
				return nil
			}
			r, err := s.solveClause(variantClause(kernel, clauses, Variant(index, radices)), s.opts.mode)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			solved++
			if r.IsSAT() && (best < 0 || index < best) {
				best = index
				bestResult = r
			}
			return nil
		})
	}
	err := g.Wait()
	s.Variants += solved
	if err != nil {
		return Result{}, -1, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil && best < 0 {
		return Result{}, -1, ctxErr
	}
	return bestResult, best, nil
}

// simplify removes equations contradicting the kernel, clauses implied by the
// kernel and clauses weaker than another clause. ok is false when some clause
// loses every equation.
func simplify(kernel Clause, clauses []Clause) ([]Clause, bool) {
	var reduced []Clause
	for _, c := range clauses {
		b := NewClauseBuilder(Or)
		implied := false
		for _, eq := range c.equations {
			if kernel.StrongerThan(eq) {
				implied = true
				break
			}
			if !kernel.ContradictsTo(eq) {
				b.Add(eq)
			}
		}
		if implied {
			continue
		}
		if b.Size() == 0 {
			return nil, false
		}
		reduced = append(reduced, b.Build())
	}

	var result []Clause
	for i, c := range reduced {
		redundant := false
		for j, o := range reduced {
			if i == j || !o.StrongerThanClause(c) {
				continue
			}
			// Of two identical clauses keep the first one.
			if c.StrongerThanClause(o) && j > i {
				continue
			}
			redundant = true
			break
		}
		if !redundant {
			result = append(result, c)
		}
	}
	return result, true
}
