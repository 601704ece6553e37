package hooks

import (
	"math/big"
	"sync"

	"github.com/Readm/mmu_sim/memory"
	"github.com/Readm/mmu_sim/solver"
)

// PluginCategory represents the high-level role of a plugin.
type PluginCategory string

const (
	// PluginCategoryFilter covers plugins that veto structures.
	PluginCategoryFilter PluginCategory = "filter"
	// PluginCategorySolver covers plugins that add or inspect equations.
	PluginCategorySolver PluginCategory = "solver"
	// PluginCategoryVisualization covers the inspector and other monitors.
	PluginCategoryVisualization PluginCategory = "visualization"
	// PluginCategoryInstrumentation covers metrics, tracing, and diagnostics.
	PluginCategoryInstrumentation PluginCategory = "instrumentation"
)

// PluginDescriptor describes a plugin registered with the broker.
type PluginDescriptor struct {
	Name        string
	Category    PluginCategory
	Description string
}

// HookBundle groups multiple hook handlers that belong to one plugin.
type HookBundle struct {
	Considered  []ConsideredHook
	Filtered    []FilteredHook
	BeforeSolve []BeforeSolveHook
	AfterSolve  []AfterSolveHook
	Realized    []RealizedHook
}

// StructureContext identifies a structure of a generation attempt.
type StructureContext struct {
	Attempt   string
	Index     int
	Structure *memory.Structure
}

// FilterContext reports a structure rejected by the named filter.
type FilterContext struct {
	StructureContext
	Filter string
}

// SolveContext carries the equations of a structure. BeforeSolve hooks may
// append clauses; AfterSolve hooks see the result.
type SolveContext struct {
	StructureContext
	Clauses []solver.FieldClause
	Result  solver.Result
}

// RealizeContext reports the replay of a solution against the buffer model.
// Mismatch is empty when every access behaved as requested.
type RealizeContext struct {
	StructureContext
	Values   map[string]*big.Int
	Mismatch string
}

// ConsideredHook runs for every structure before filtering. Returning an
// error aborts the generation.
type ConsideredHook func(ctx *StructureContext) error

// FilteredHook runs when a structure is rejected.
type FilteredHook func(ctx *FilterContext) error

// BeforeSolveHook runs before the equations of a structure are solved.
type BeforeSolveHook func(ctx *SolveContext) error

// AfterSolveHook runs once the solver returns.
type AfterSolveHook func(ctx *SolveContext) error

// RealizedHook runs after a solution has been replayed.
type RealizedHook func(ctx *RealizeContext) error

// PluginBroker coordinates hook registration and triggering.
type PluginBroker struct {
	mu sync.RWMutex

	consideredHooks  []ConsideredHook
	filteredHooks    []FilteredHook
	beforeSolveHooks []BeforeSolveHook
	afterSolveHooks  []AfterSolveHook
	realizedHooks    []RealizedHook

	pluginCatalog map[PluginCategory][]PluginDescriptor
	pluginIndex   map[string]PluginDescriptor
}

// NewPluginBroker creates an empty broker instance.
func NewPluginBroker() *PluginBroker {
	return &PluginBroker{
		pluginCatalog: make(map[PluginCategory][]PluginDescriptor),
		pluginIndex:   make(map[string]PluginDescriptor),
	}
}

func register[H any](p *PluginBroker, hooks *[]H, h H, isNil bool) {
	if p == nil || isNil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	*hooks = append(*hooks, h)
}

func emit[C any, H ~func(*C) error](p *PluginBroker, hooks *[]H, ctx *C) error {
	if p == nil || ctx == nil {
		return nil
	}
	p.mu.RLock()
	handlers := make([]H, len(*hooks))
	copy(handlers, *hooks)
	p.mu.RUnlock()
	for _, handler := range handlers {
		if err := handler(ctx); err != nil {
			return err
		}
	}
	return nil
}

// RegisterConsidered adds a hook executed for every enumerated structure.
func (p *PluginBroker) RegisterConsidered(h ConsideredHook) {
	if p != nil {
		register(p, &p.consideredHooks, h, h == nil)
	}
}

// RegisterFiltered adds a hook executed for every rejected structure.
func (p *PluginBroker) RegisterFiltered(h FilteredHook) {
	if p != nil {
		register(p, &p.filteredHooks, h, h == nil)
	}
}

// RegisterBeforeSolve adds a hook executed before solving.
func (p *PluginBroker) RegisterBeforeSolve(h BeforeSolveHook) {
	if p != nil {
		register(p, &p.beforeSolveHooks, h, h == nil)
	}
}

// RegisterAfterSolve adds a hook executed after solving.
func (p *PluginBroker) RegisterAfterSolve(h AfterSolveHook) {
	if p != nil {
		register(p, &p.afterSolveHooks, h, h == nil)
	}
}

// RegisterRealized adds a hook executed after replaying a solution.
func (p *PluginBroker) RegisterRealized(h RealizedHook) {
	if p != nil {
		register(p, &p.realizedHooks, h, h == nil)
	}
}

// EmitConsidered triggers Considered hooks.
func (p *PluginBroker) EmitConsidered(ctx *StructureContext) error {
	if p == nil {
		return nil
	}
	return emit(p, &p.consideredHooks, ctx)
}

// EmitFiltered triggers Filtered hooks.
func (p *PluginBroker) EmitFiltered(ctx *FilterContext) error {
	if p == nil {
		return nil
	}
	return emit(p, &p.filteredHooks, ctx)
}

// EmitBeforeSolve triggers BeforeSolve hooks.
func (p *PluginBroker) EmitBeforeSolve(ctx *SolveContext) error {
	if p == nil {
		return nil
	}
	return emit(p, &p.beforeSolveHooks, ctx)
}

// EmitAfterSolve triggers AfterSolve hooks.
func (p *PluginBroker) EmitAfterSolve(ctx *SolveContext) error {
	if p == nil {
		return nil
	}
	return emit(p, &p.afterSolveHooks, ctx)
}

// EmitRealized triggers Realized hooks.
func (p *PluginBroker) EmitRealized(ctx *RealizeContext) error {
	if p == nil {
		return nil
	}
	return emit(p, &p.realizedHooks, ctx)
}

// RegisterBundle registers a plugin descriptor together with all hook handlers.
func (p *PluginBroker) RegisterBundle(desc PluginDescriptor, bundle HookBundle) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.registerDescriptorLocked(desc)

	p.consideredHooks = append(p.consideredHooks, bundle.Considered...)
	p.filteredHooks = append(p.filteredHooks, bundle.Filtered...)
	p.beforeSolveHooks = append(p.beforeSolveHooks, bundle.BeforeSolve...)
	p.afterSolveHooks = append(p.afterSolveHooks, bundle.AfterSolve...)
	p.realizedHooks = append(p.realizedHooks, bundle.Realized...)
}

// RegisterPluginMetadata stores plugin metadata without registering hooks.
func (p *PluginBroker) RegisterPluginMetadata(desc PluginDescriptor) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registerDescriptorLocked(desc)
}

// ListPlugins returns descriptors for plugins in the requested category.
func (p *PluginBroker) ListPlugins(category PluginCategory) []PluginDescriptor {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	catalog := p.pluginCatalog[category]
	if len(catalog) == 0 {
		return nil
	}
	out := make([]PluginDescriptor, len(catalog))
	copy(out, catalog)
	return out
}

// ListAllPlugins returns descriptors of every registered plugin.
func (p *PluginBroker) ListAllPlugins() []PluginDescriptor {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]PluginDescriptor, 0, len(p.pluginIndex))
	for _, desc := range p.pluginIndex {
		out = append(out, desc)
	}
	return out
}

func (p *PluginBroker) registerDescriptorLocked(desc PluginDescriptor) {
	if desc.Name == "" {
		return
	}
	if _, exists := p.pluginIndex[desc.Name]; exists {
		return
	}
	p.pluginIndex[desc.Name] = desc
	category := desc.Category
	p.pluginCatalog[category] = append(p.pluginCatalog[category], desc)
}
