// Package engine drives test generation: it enumerates the structures of a
// template, prunes them with filters, solves their equations and replays the
// solution on a model of the memory subsystem.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Readm/mmu_sim/constraint"
	"github.com/Readm/mmu_sim/filter"
	"github.com/Readm/mmu_sim/hooks"
	"github.com/Readm/mmu_sim/integer"
	"github.com/Readm/mmu_sim/logger"
	"github.com/Readm/mmu_sim/memory"
	"github.com/Readm/mmu_sim/mmu"
	"github.com/Readm/mmu_sim/policy"
	"github.com/Readm/mmu_sim/solver"
)

// Template is an ordered access sequence with its constraints.
type Template struct {
	Accesses    []memory.Access
	Constraints *constraint.Set
}

// Engine generates test situations for one memory subsystem. It is safe for
// concurrent use once configured.
type Engine struct {
	spec    *mmu.Spec
	filters *filter.Builder
	factory policy.Factory
	broker  *hooks.PluginBroker
	log     *logger.Logger
	tracer  trace.Tracer
	budget  Budget
	workers int
	seed    int64
}

// New creates an engine with the standard filters.
func New(spec *mmu.Spec, opts ...Option) (*Engine, error) {
	if spec == nil {
		return nil, errors.New("memory subsystem cannot be nil")
	}
	e := &Engine{
		spec:    spec,
		filters: filter.Standard(),
		factory: policy.NewFactory(),
		log:     logger.Default(),
		tracer:  defaultTracer(),
		budget:  Budget{}.withDefaults(),
		workers: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// Spec returns the memory subsystem.
func (e *Engine) Spec() *mmu.Spec { return e.spec }

// outcome is the result of one structure.
type outcome struct {
	index    int
	accesses []AccessResult
	found    bool
	stats    Stats
}

// Generate searches the structures of tpl for one that can be realized.
// Exhausting the budget is not an error: the result has Found unset. When no
// structure works, the softest constraints are relaxed and the search is
// repeated.
func (e *Engine) Generate(ctx context.Context, tpl Template) (*Result, error) {
	attempt := uuid.New().String()
	ctx, span := e.tracer.Start(ctx, "engine.Generate",
		trace.WithAttributes(
			attribute.String("attempt", attempt),
			attribute.Int("accesses", len(tpl.Accesses)),
		),
	)
	defer span.End()

	res, err := e.generate(ctx, attempt, tpl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return nil, err
	}
	span.SetAttributes(
		attribute.Bool("found", res.Found),
		attribute.Int("considered", res.Stats.Considered),
		attribute.Int("filtered", res.Stats.Filtered),
		attribute.Int("relaxed", res.Stats.Relaxed),
	)
	return res, nil
}

func (e *Engine) generate(ctx context.Context, attempt string, tpl Template) (*Result, error) {
	set := tpl.Constraints
	if set == nil {
		set = constraint.Empty(e.spec)
	}
	if set.Spec() != e.spec {
		return nil, errors.New("constraints belong to another memory subsystem")
	}
	set = set.Clone()

	it, err := memory.NewStructureIterator(e.spec, tpl.Accesses, solver.Budget{MaxVariants: e.budget.MaxStructures})
	if err != nil {
		return nil, err
	}
	res := &Result{Attempt: attempt, Index: -1}
	res.Stats.Truncated = it.Truncated()
	e.log.Debugf("attempt %s: %d structures of %d accesses, limit %d", attempt, it.Total(), len(tpl.Accesses), it.Limit())

	for {
		composite := e.filters.Clone().AddBuilder(set.Filters()).Build()
		out, err := e.search(ctx, attempt, it, set, composite)
		if err != nil {
			return nil, err
		}
		res.Stats.add(out.stats)
		if out.found {
			res.Found = true
			res.Index = out.index
			if res.Structure, err = it.Structure(out.index); err != nil {
				return nil, err
			}
			res.Accesses = out.accesses
			e.log.Infof("attempt %s: structure %d realized after %d considered", attempt, out.index, res.Stats.Considered)
			return res, nil
		}
		if !set.Relax() {
			e.log.Infof("attempt %s: no structure realized (%d considered, %d filtered)", attempt, res.Stats.Considered, res.Stats.Filtered)
			return res, nil
		}
		res.Stats.Relaxed++
		e.log.Debugf("attempt %s: relaxing constraints, %d left", attempt, len(set.Constraints()))
	}
}

func (e *Engine) search(ctx context.Context, attempt string, it *memory.StructureIterator, set *constraint.Set, composite *filter.Composite) (outcome, error) {
	if e.workers <= 1 {
		var stats Stats
		for index := 0; index < it.Limit(); index++ {
			if err := ctx.Err(); err != nil {
				return outcome{}, err
			}
			st, err := it.Structure(index)
			if err != nil {
				return outcome{}, err
			}
			out, err := e.try(ctx, attempt, index, st, set, composite)
			if err != nil {
				return outcome{}, err
			}
			stats.add(out.stats)
			if out.found {
				out.stats = stats
				return out, nil
			}
		}
		return outcome{stats: stats}, nil
	}

	// Shards keep the lowest realized index so that the answer does not
	// depend on the number of workers.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	var mu sync.Mutex
	best := outcome{index: -1}
	var stats Stats
	for index := 0; index < it.Limit(); index++ {
		mu.Lock()
		stop := best.found && best.index < index
		mu.Unlock()
		if stop || gctx.Err() != nil {
			break
		}
		index := index
		g.Go(func() error {
			st, err := it.Structure(index)
			if err != nil {
				return err
			}
			out, err := e.try(gctx, attempt, index, st, set, composite)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			stats.add(out.stats)
			if out.found && (!best.found || index < best.index) {
				best = out
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return outcome{}, err
	}
	if err := ctx.Err(); err != nil && !best.found {
		return outcome{}, err
	}
	best.stats = stats
	return best, nil
}

// try filters, solves and realizes one structure.
func (e *Engine) try(ctx context.Context, attempt string, index int, st *memory.Structure, set *constraint.Set, composite *filter.Composite) (outcome, error) {
	out := outcome{index: index, stats: Stats{Considered: 1}}
	sctx := hooks.StructureContext{Attempt: attempt, Index: index, Structure: st}
	if err := e.broker.EmitConsidered(&sctx); err != nil {
		return out, err
	}
	if name, ok := composite.Explain(st); !ok {
		out.stats.Filtered++
		out.stats.reject(name)
		return out, e.broker.EmitFiltered(&hooks.FilterContext{StructureContext: sctx, Filter: name})
	}

	clauses, err := set.Formula(st)
	if err != nil {
		return out, err
	}
	solve := hooks.SolveContext{StructureContext: sctx, Clauses: clauses}
	if err := e.broker.EmitBeforeSolve(&solve); err != nil {
		return out, err
	}
	domains, err := set.Domains(st.Len())
	if err != nil {
		return out, err
	}

	rnd := rand.New(rand.NewSource(e.seed + int64(index)*7919))
	for round := 0; round <= e.budget.Retries; round++ {
		r, ok, err := e.solve(ctx, st, set, solve.Clauses, domains, rnd)
		if err != nil {
			return out, err
		}
		solve.Result = r
		if err := e.broker.EmitAfterSolve(&solve); err != nil {
			return out, err
		}
		if !r.IsSAT() {
			out.stats.Unsolved++
			return out, nil
		}
		if !ok {
			out.stats.Mismatched++
			continue
		}
		accesses, mismatch, err := realize(e.spec, e.factory, st, r.Solution)
		if err != nil {
			return out, err
		}
		if err := e.broker.EmitRealized(&hooks.RealizeContext{StructureContext: sctx, Values: r.Solution, Mismatch: mismatch}); err != nil {
			return out, err
		}
		if mismatch != "" {
			e.log.Debugf("attempt %s: structure %d: %s", attempt, index, mismatch)
			out.stats.Mismatched++
			continue
		}
		out.found = true
		out.accesses = accesses
		return out, nil
	}
	return out, nil
}

// solve samples an initializer and solves the clauses. ok is false when the
// solution violates a sampled constraint the solver could not express.
func (e *Engine) solve(ctx context.Context, st *memory.Structure, set *constraint.Set, clauses []solver.FieldClause, domains map[string]*integer.Domain, rnd *rand.Rand) (solver.Result, bool, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Solve")
	defer span.End()

	fs, err := solver.NewFieldSolver(set.Variables(st.Len()), clauses, solver.WithBudget(solver.Budget{MaxVariants: e.budget.MaxVariants}))
	if err != nil {
		return solver.Result{}, false, fmt.Errorf("solver setup: %w", err)
	}
	init, err := set.Initializer(rnd, st.Len())
	if err != nil {
		return solver.Result{}, false, err
	}
	fs.SetInitializer(init)
	fs.SetDomains(domains)
	r, err := fs.Solve(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "solver failed")
		return r, false, err
	}
	span.SetAttributes(attribute.String("status", r.Status.String()))
	if !r.IsSAT() {
		return r, false, nil
	}
	_, ok := set.Check(r.Solution, st.Len())
	return r, ok, nil
}
