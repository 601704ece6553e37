// Package instrumentation counts engine hook events and watches the hazards
// of individual buffers.
package instrumentation

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Readm/mmu_sim/hooks"
	"github.com/Readm/mmu_sim/logger"
	"github.com/Readm/mmu_sim/memory"
	"github.com/Readm/mmu_sim/mmu"
	"github.com/Readm/mmu_sim/solver"
)

// CountersPlugin is the registry name of the event counters.
const CountersPlugin = "instrumentation/counters"

// WatchPlugin is the registry name of the per-buffer hazard watcher.
const WatchPlugin = "instrumentation/watch"

// Snapshot is a copy of the counters.
type Snapshot struct {
	Considered int            `json:"considered"`
	Filtered   int            `json:"filtered"`
	Solved     int            `json:"solved"`
	Unsolved   int            `json:"unsolved"`
	Realized   int            `json:"realized"`
	Mismatched int            `json:"mismatched"`
	ByFilter   map[string]int `json:"by_filter"`
}

// Counters tallies hook events and logs the structure throughput every
// interval. It is safe for concurrent use.
type Counters struct {
	mu         sync.Mutex
	log        *logger.Logger
	interval   time.Duration
	snap       Snapshot
	window     int
	lastReport time.Time
}

// NewCounters creates counters reporting to log. A zero interval disables
// the throughput report.
func NewCounters(log *logger.Logger, interval time.Duration) *Counters {
	return &Counters{
		log:        log,
		interval:   interval,
		snap:       Snapshot{ByFilter: make(map[string]int)},
		lastReport: time.Now(),
	}
}

// Snapshot returns a copy of the current counts.
func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.snap
	out.ByFilter = make(map[string]int, len(c.snap.ByFilter))
	for name, n := range c.snap.ByFilter {
		out.ByFilter[name] = n
	}
	return out
}

// Bundle returns the hooks updating c.
func (c *Counters) Bundle() hooks.HookBundle {
	return hooks.HookBundle{
		Considered: []hooks.ConsideredHook{func(*hooks.StructureContext) error {
			c.mu.Lock()
			c.snap.Considered++
			c.window++
			c.emitIfNeeded()
			c.mu.Unlock()
			return nil
		}},
		Filtered: []hooks.FilteredHook{func(ctx *hooks.FilterContext) error {
			c.mu.Lock()
			c.snap.Filtered++
			c.snap.ByFilter[ctx.Filter]++
			c.mu.Unlock()
			return nil
		}},
		AfterSolve: []hooks.AfterSolveHook{func(ctx *hooks.SolveContext) error {
			c.mu.Lock()
			if ctx.Result.Status == solver.StatusSAT {
				c.snap.Solved++
			} else {
				c.snap.Unsolved++
			}
			c.mu.Unlock()
			return nil
		}},
		Realized: []hooks.RealizedHook{func(ctx *hooks.RealizeContext) error {
			c.mu.Lock()
			if ctx.Mismatch == "" {
				c.snap.Realized++
			} else {
				c.snap.Mismatched++
			}
			c.mu.Unlock()
			return nil
		}},
	}
}

func (c *Counters) emitIfNeeded() {
	if c.interval <= 0 {
		return
	}
	now := time.Now()
	elapsed := now.Sub(c.lastReport)
	if elapsed < c.interval {
		return
	}
	c.log.Infof("Throughput %.0f structures/s, %d filtered so far", float64(c.window)/elapsed.Seconds(), c.snap.Filtered)
	c.window = 0
	c.lastReport = now
}

// Register registers the counters as a global plugin and the hazard watcher
// as a buffer plugin.
func Register(reg *hooks.Registry, counters *Counters, log *logger.Logger) error {
	if reg == nil {
		return fmt.Errorf("registry is nil")
	}
	if counters == nil {
		return fmt.Errorf("counters are nil")
	}
	desc := hooks.PluginDescriptor{
		Name:        CountersPlugin,
		Category:    hooks.PluginCategoryInstrumentation,
		Description: "structure, solver and realization counters",
	}
	if err := reg.RegisterGlobal(desc, func(b *hooks.PluginBroker) error {
		if b == nil {
			return fmt.Errorf("plugin broker is nil")
		}
		b.RegisterBundle(desc, counters.Bundle())
		return nil
	}); err != nil {
		return err
	}
	reg.Broker().RegisterPluginMetadata(desc)

	watch := hooks.PluginDescriptor{
		Name:        WatchPlugin,
		Category:    hooks.PluginCategoryInstrumentation,
		Description: "logs the hazards of one buffer for every considered structure",
	}
	if err := reg.RegisterBuffer(watch, func(buf *mmu.BufferSpec, b *hooks.PluginBroker) error {
		if b == nil {
			return fmt.Errorf("plugin broker is nil")
		}
		b.RegisterConsidered(func(ctx *hooks.StructureContext) error {
			if line := Hazards(ctx.Structure, buf.ID); line != "" {
				log.Debugf("attempt %s structure %d %s: %s", ctx.Attempt, ctx.Index, buf.Name, line)
			}
			return nil
		})
		return nil
	}); err != nil {
		return err
	}
	reg.Broker().RegisterPluginMetadata(watch)
	return nil
}

// Hazards lists the hazards of st on buffer id as "(i,j):TYPE".
func Hazards(st *memory.Structure, id mmu.BufferID) string {
	if st == nil {
		return ""
	}
	var parts []string
	for _, p := range st.Pairs() {
		for _, h := range st.Dependency(p.I, p.J).Hazards() {
			if h.Target.IsBuffer() && h.Target.Buffer == id {
				parts = append(parts, fmt.Sprintf("(%d,%d):%s", p.I, p.J, h.Type))
			}
		}
	}
	return strings.Join(parts, " ")
}
