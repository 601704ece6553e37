// Package visualization streams engine hook events to monitors such as the
// inspector's WebSocket hub.
package visualization

import (
	"fmt"
	"sort"

	"github.com/Readm/mmu_sim/hooks"
)

// Event is one hook event as seen by a monitor.
type Event struct {
	Kind      string            `json:"kind"`
	Attempt   string            `json:"attempt"`
	Index     int               `json:"index"`
	Structure string            `json:"structure,omitempty"`
	Filter    string            `json:"filter,omitempty"`
	Status    string            `json:"status,omitempty"`
	Mismatch  string            `json:"mismatch,omitempty"`
	Values    map[string]string `json:"values,omitempty"`
}

// Event kinds.
const (
	KindConsidered = "considered"
	KindFiltered   = "filtered"
	KindSolved     = "solved"
	KindRealized   = "realized"
)

// Sink receives events. It is called from engine goroutines and must not
// block for long.
type Sink func(Event)

// Options configure visualization plugin registration. Verbose also streams
// every considered structure.
type Options struct {
	Sinks   map[string]Sink
	Verbose bool
}

// Register registers one visualization plugin per sink.
func Register(reg *hooks.Registry, opts Options) error {
	if reg == nil {
		return fmt.Errorf("registry is nil")
	}
	modes := make([]string, 0, len(opts.Sinks))
	for mode := range opts.Sinks {
		modes = append(modes, mode)
	}
	sort.Strings(modes)
	for _, mode := range modes {
		sink := opts.Sinks[mode]
		if sink == nil {
			continue
		}
		desc := hooks.PluginDescriptor{
			Name:        PluginName(mode),
			Category:    hooks.PluginCategoryVisualization,
			Description: fmt.Sprintf("%s event stream", mode),
		}
		verbose := opts.Verbose
		if err := reg.RegisterGlobal(desc, func(b *hooks.PluginBroker) error {
			if b == nil {
				return fmt.Errorf("plugin broker is nil")
			}
			b.RegisterBundle(desc, Bundle(sink, verbose))
			return nil
		}); err != nil {
			return err
		}
		reg.Broker().RegisterPluginMetadata(desc)
	}
	return nil
}

// Bundle converts hook calls into events for sink.
func Bundle(sink Sink, verbose bool) hooks.HookBundle {
	var bundle hooks.HookBundle
	if verbose {
		bundle.Considered = append(bundle.Considered, func(ctx *hooks.StructureContext) error {
			e := base(KindConsidered, ctx)
			if ctx.Structure != nil {
				e.Structure = ctx.Structure.String()
			}
			sink(e)
			return nil
		})
	}
	bundle.Filtered = append(bundle.Filtered, func(ctx *hooks.FilterContext) error {
		e := base(KindFiltered, &ctx.StructureContext)
		e.Filter = ctx.Filter
		sink(e)
		return nil
	})
	bundle.AfterSolve = append(bundle.AfterSolve, func(ctx *hooks.SolveContext) error {
		e := base(KindSolved, &ctx.StructureContext)
		e.Status = ctx.Result.Status.String()
		sink(e)
		return nil
	})
	bundle.Realized = append(bundle.Realized, func(ctx *hooks.RealizeContext) error {
		e := base(KindRealized, &ctx.StructureContext)
		e.Mismatch = ctx.Mismatch
		e.Values = make(map[string]string, len(ctx.Values))
		for name, v := range ctx.Values {
			e.Values[name] = fmt.Sprintf("%#x", v)
		}
		sink(e)
		return nil
	})
	return bundle
}

func base(kind string, ctx *hooks.StructureContext) Event {
	return Event{Kind: kind, Attempt: ctx.Attempt, Index: ctx.Index}
}

// PluginName is the registry name of the plugin for a mode.
func PluginName(mode string) string {
	return "visualization/" + mode
}
