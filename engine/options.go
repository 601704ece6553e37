package engine

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/Readm/mmu_sim/filter"
	"github.com/Readm/mmu_sim/hooks"
	"github.com/Readm/mmu_sim/logger"
	"github.com/Readm/mmu_sim/policy"
)

// Budget bounds a generation. Zero values select the defaults; negative
// Retries disables resampling.
type Budget struct {
	// MaxStructures bounds the structures enumerated per relaxation round.
	MaxStructures int
	// MaxVariants bounds the disjunction variants tried per structure.
	MaxVariants int
	// Retries is the number of extra samplings per solvable structure.
	Retries int
}

const (
	DefaultMaxStructures = 1 << 16
	DefaultMaxVariants   = 1 << 12
	DefaultRetries       = 3
)

func (b Budget) withDefaults() Budget {
	if b.MaxStructures <= 0 {
		b.MaxStructures = DefaultMaxStructures
	}
	if b.MaxVariants <= 0 {
		b.MaxVariants = DefaultMaxVariants
	}
	switch {
	case b.Retries == 0:
		b.Retries = DefaultRetries
	case b.Retries < 0:
		b.Retries = 0
	}
	return b
}

// Option configures an Engine.
type Option func(*Engine)

// WithFilters replaces the standard filters.
func WithFilters(b *filter.Builder) Option {
	return func(e *Engine) {
		if b != nil {
			e.filters = b.Clone()
		}
	}
}

// WithPolicyFactory selects the replacement policy source of the model used
// to replay solutions.
func WithPolicyFactory(f policy.Factory) Option {
	return func(e *Engine) { e.factory = f }
}

// WithBroker injects the hook broker.
func WithBroker(b *hooks.PluginBroker) Option {
	return func(e *Engine) { e.broker = b }
}

// WithLogger injects the logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithTracer replaces the global otel tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithBudget bounds the search.
func WithBudget(b Budget) Option {
	return func(e *Engine) { e.budget = b.withDefaults() }
}

// WithWorkers filters and solves structures on n goroutines.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// WithSeed makes the sampled addresses reproducible.
func WithSeed(seed int64) Option {
	return func(e *Engine) { e.seed = seed }
}

func defaultTracer() trace.Tracer {
	return otel.Tracer("github.com/Readm/mmu_sim/engine")
}
