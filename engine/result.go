package engine

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/Readm/mmu_sim/memory"
)

// BufferStep is one lookup of an access.
type BufferStep struct {
	Buffer    string   `json:"buffer"`
	Set       uint64   `json:"set"`
	Way       int      `json:"way"`
	Hit       bool     `json:"hit"`
	Preloaded bool     `json:"preloaded,omitempty"`
	Evicted   *big.Int `json:"evicted,omitempty"`
}

func (s BufferStep) String() string {
	event := "MISS"
	if s.Hit {
		event = "HIT"
	}
	out := fmt.Sprintf("%s:%s set=%d way=%d", s.Buffer, event, s.Set, s.Way)
	if s.Preloaded {
		out += " preloaded"
	}
	if s.Evicted != nil {
		out += fmt.Sprintf(" evict=%#x", s.Evicted)
	}
	return out
}

// AccessResult is a realized access: one address per family and the
// buffer lookups it caused.
type AccessResult struct {
	Op        string              `json:"op"`
	Addresses map[string]*big.Int `json:"addresses"`
	Trace     []BufferStep        `json:"trace"`
}

func (a AccessResult) String() string {
	names := make([]string, 0, len(a.Addresses))
	for name := range a.Addresses {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names)+len(a.Trace))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%#x", name, a.Addresses[name]))
	}
	for _, step := range a.Trace {
		parts = append(parts, step.String())
	}
	return a.Op + " " + strings.Join(parts, " ")
}

// Stats counts what happened to the enumerated structures.
type Stats struct {
	Considered int            `json:"considered"`
	Filtered   int            `json:"filtered"`
	Unsolved   int            `json:"unsolved"`
	Mismatched int            `json:"mismatched"`
	Relaxed    int            `json:"relaxed"`
	Truncated  bool           `json:"truncated"`
	Rejections map[string]int `json:"rejections"`
}

func (s *Stats) reject(name string) {
	if s.Rejections == nil {
		s.Rejections = make(map[string]int)
	}
	s.Rejections[name]++
}

func (s *Stats) add(o Stats) {
	s.Considered += o.Considered
	s.Filtered += o.Filtered
	s.Unsolved += o.Unsolved
	s.Mismatched += o.Mismatched
	for name, n := range o.Rejections {
		if s.Rejections == nil {
			s.Rejections = make(map[string]int)
		}
		s.Rejections[name] += n
	}
}

// Result is the outcome of a generation. Found is false when the budget is
// exhausted without a realizable structure.
type Result struct {
	Attempt   string            `json:"attempt"`
	Found     bool              `json:"found"`
	Index     int               `json:"index"`
	Structure *memory.Structure `json:"-"`
	Accesses  []AccessResult    `json:"accesses,omitempty"`
	Stats     Stats             `json:"stats"`
}
