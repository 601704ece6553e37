package hooks

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Readm/mmu_sim/mmu"
)

// Scope tells whether a plugin observes the whole generation or one buffer.
type Scope int

const (
	ScopeGlobal Scope = iota
	ScopeBuffer
)

func (s Scope) String() string {
	if s == ScopeBuffer {
		return "buffer"
	}
	return "global"
}

// GlobalPluginFactory installs hooks that observe every structure.
type GlobalPluginFactory func(broker *PluginBroker) error

// BufferPluginFactory installs hooks scoped to one buffer of the subsystem.
type BufferPluginFactory func(buf *mmu.BufferSpec, broker *PluginBroker) error

type plugin struct {
	desc   PluginDescriptor
	global GlobalPluginFactory
	buffer BufferPluginFactory
}

func (p plugin) scope() Scope {
	if p.buffer != nil {
		return ScopeBuffer
	}
	return ScopeGlobal
}

// Selection names the plugins to activate: global ones by name, buffer ones
// by buffer name.
type Selection struct {
	Global  []string
	Buffers map[string][]string
}

// Registry keeps the plugin factories available for one memory subsystem.
// Buffer plugins can only be loaded on buffers of that subsystem.
type Registry struct {
	mu     sync.RWMutex
	spec   *mmu.Spec
	broker *PluginBroker

	plugins map[string]plugin
	global  map[string]bool
	active  map[mmu.BufferID][]string
}

// NewRegistry creates an empty registry for spec bound to a broker.
func NewRegistry(spec *mmu.Spec, broker *PluginBroker) *Registry {
	if broker == nil {
		broker = NewPluginBroker()
	}
	return &Registry{
		spec:    spec,
		broker:  broker,
		plugins: make(map[string]plugin),
		global:  make(map[string]bool),
		active:  make(map[mmu.BufferID][]string),
	}
}

// Broker returns the broker the plugins install their hooks into.
func (r *Registry) Broker() *PluginBroker {
	if r == nil {
		return nil
	}
	return r.broker
}

// Spec returns the memory subsystem the registry serves.
func (r *Registry) Spec() *mmu.Spec {
	if r == nil {
		return nil
	}
	return r.spec
}

// RegisterGlobal makes a global plugin available under desc.Name.
func (r *Registry) RegisterGlobal(desc PluginDescriptor, factory GlobalPluginFactory) error {
	if factory == nil {
		return fmt.Errorf("plugin factory cannot be nil")
	}
	return r.add(plugin{desc: desc, global: factory})
}

// RegisterBuffer makes a buffer plugin available under desc.Name.
func (r *Registry) RegisterBuffer(desc PluginDescriptor, factory BufferPluginFactory) error {
	if factory == nil {
		return fmt.Errorf("plugin factory cannot be nil")
	}
	return r.add(plugin{desc: desc, buffer: factory})
}

func (r *Registry) add(p plugin) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	if p.desc.Name == "" {
		return fmt.Errorf("plugin name cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, exists := r.plugins[p.desc.Name]; exists {
		return fmt.Errorf("plugin %s already registered as a %s plugin", p.desc.Name, prev.scope())
	}
	r.plugins[p.desc.Name] = p
	return nil
}

// LoadGlobal activates global plugins. Loading a plugin twice is an error.
func (r *Registry) LoadGlobal(names ...string) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	for _, name := range names {
		p, err := r.lookup(name, ScopeGlobal)
		if err != nil {
			return err
		}
		r.mu.Lock()
		loaded := r.global[name]
		r.global[name] = true
		r.mu.Unlock()
		if loaded {
			return fmt.Errorf("global plugin %s already loaded", name)
		}
		if err := p.global(r.broker); err != nil {
			return fmt.Errorf("global plugin %s failed: %w", name, err)
		}
		r.broker.RegisterPluginMetadata(p.desc)
	}
	return nil
}

// LoadForBuffer activates buffer plugins on the named buffer. The buffer
// must belong to the registry's subsystem.
func (r *Registry) LoadForBuffer(buffer string, names ...string) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	if r.spec == nil {
		return fmt.Errorf("buffer plugins need a memory subsystem")
	}
	buf, err := r.spec.Buffer(buffer)
	if err != nil {
		return fmt.Errorf("%w: %v", mmu.ErrConfig, err)
	}
	for _, name := range names {
		p, err := r.lookup(name, ScopeBuffer)
		if err != nil {
			return err
		}
		if !r.activate(buf.ID, name) {
			return fmt.Errorf("buffer plugin %s already loaded on %s", name, buf.Name)
		}
		if err := p.buffer(buf, r.broker); err != nil {
			return fmt.Errorf("buffer plugin %s on %s failed: %w", name, buf.Name, err)
		}
		r.broker.RegisterPluginMetadata(p.desc)
	}
	return nil
}

// Load activates a selection. Buffers are visited by name; every failure is
// reported.
func (r *Registry) Load(sel Selection) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	var errs []error
	if err := r.LoadGlobal(sel.Global...); err != nil {
		errs = append(errs, err)
	}
	buffers := make([]string, 0, len(sel.Buffers))
	for name := range sel.Buffers {
		buffers = append(buffers, name)
	}
	sort.Strings(buffers)
	for _, name := range buffers {
		if err := r.LoadForBuffer(name, sel.Buffers[name]...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Active lists the plugins loaded on a buffer in load order.
func (r *Registry) Active(id mmu.BufferID) []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.active[id]...)
}

// Descriptor returns metadata registered under the provided name.
func (r *Registry) Descriptor(name string) (PluginDescriptor, bool) {
	if r == nil {
		return PluginDescriptor{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p.desc, ok
}

func (r *Registry) lookup(name string, scope Scope) (plugin, error) {
	r.mu.RLock()
	p, ok := r.plugins[name]
	r.mu.RUnlock()
	if !ok {
		return plugin{}, fmt.Errorf("%s plugin not found: %s", scope, name)
	}
	if p.scope() != scope {
		return plugin{}, fmt.Errorf("plugin %s is a %s plugin, not a %s one", name, p.scope(), scope)
	}
	return p, nil
}

func (r *Registry) activate(id mmu.BufferID, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, loaded := range r.active[id] {
		if loaded == name {
			return false
		}
	}
	r.active[id] = append(r.active[id], name)
	return true
}
