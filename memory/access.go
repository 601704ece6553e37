// Package memory models memory accesses and the hazards between them.
package memory

import (
	"fmt"
	"strings"

	"github.com/Readm/mmu_sim/mmu"
)

// Event is the outcome of a buffer lookup.
type Event int

const (
	Hit Event = iota
	Miss
)

func (e Event) String() string {
	if e == Hit {
		return "HIT"
	}
	return "MISS"
}

// ParseEvent accepts "HIT" and "MISS" in any case.
func ParseEvent(name string) (Event, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "HIT":
		return Hit, nil
	case "MISS":
		return Miss, nil
	}
	return Hit, fmt.Errorf("unknown buffer event %q", name)
}

// Operation is the kind of a memory access.
type Operation int

const (
	Load Operation = iota
	Store
)

func (o Operation) String() string {
	if o == Store {
		return "STORE"
	}
	return "LOAD"
}

// ParseOperation accepts "LOAD"/"READ" and "STORE"/"WRITE".
func ParseOperation(name string) (Operation, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "LOAD", "READ":
		return Load, nil
	case "STORE", "WRITE":
		return Store, nil
	}
	return Load, fmt.Errorf("unknown memory operation %q", name)
}

// PathEntry is one buffer lookup of a path.
type PathEntry struct {
	Buffer mmu.BufferID
	Event  Event
}

// Path is the ordered list of buffer lookups performed by an access.
type Path struct {
	entries []PathEntry
}

// NewPath rejects a buffer listed twice.
func NewPath(entries ...PathEntry) (Path, error) {
	seen := make(map[mmu.BufferID]bool, len(entries))
	for _, e := range entries {
		if seen[e.Buffer] {
			return Path{}, fmt.Errorf("buffer %d appears twice in a path", e.Buffer)
		}
		seen[e.Buffer] = true
	}
	return Path{entries: append([]PathEntry(nil), entries...)}, nil
}

// Entries returns the lookups in order.
func (p Path) Entries() []PathEntry {
	return append([]PathEntry(nil), p.entries...)
}

// Event returns the event of a buffer; ok is false if the path skips it.
func (p Path) Event(b mmu.BufferID) (Event, bool) {
	for _, e := range p.entries {
		if e.Buffer == b {
			return e.Event, true
		}
	}
	return Hit, false
}

// Contains reports whether the path looks b up.
func (p Path) Contains(b mmu.BufferID) bool {
	_, ok := p.Event(b)
	return ok
}

// Access is one memory access of a structure.
type Access struct {
	Op   Operation
	Path Path
}

// Format renders the access with buffer names.
func (a Access) Format(spec *mmu.Spec) string {
	parts := make([]string, 0, len(a.Path.entries))
	for _, e := range a.Path.entries {
		parts = append(parts, fmt.Sprintf("%s=%s", spec.BufferByID(e.Buffer).Name, e.Event))
	}
	return fmt.Sprintf("%s(%s)", a.Op, strings.Join(parts, ", "))
}
