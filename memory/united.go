package memory

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/exp/maps"

	"github.com/Readm/mmu_sim/mmu"
)

// UnitedHazard aggregates, for one access and one target, the indices of the
// earlier accesses related to it by each hazard type.
type UnitedHazard struct {
	Target    Target
	relations map[HazardType]IndexSet
}

func newUnitedHazard(t Target) *UnitedHazard {
	return &UnitedHazard{Target: t, relations: make(map[HazardType]IndexSet)}
}

func (u *UnitedHazard) add(t HazardType, index int) {
	set, ok := u.relations[t]
	if !ok {
		set = make(IndexSet)
		u.relations[t] = set
	}
	set.Add(index)
}

// Relation returns the indices related by hazard type t.
func (u *UnitedHazard) Relation(t HazardType) IndexSet {
	if u == nil {
		return IndexSet{}
	}
	return maps.Clone(u.relations[t])
}

// Relations returns a copy of every relation.
func (u *UnitedHazard) Relations() map[HazardType]IndexSet {
	out := make(map[HazardType]IndexSet, len(u.relations))
	for t, set := range u.relations {
		out[t] = maps.Clone(set)
	}
	return out
}

// Types returns the hazard types present, in declaration order.
func (u *UnitedHazard) Types() []HazardType {
	types := make([]HazardType, 0, len(u.relations))
	for t, set := range u.relations {
		if len(set) > 0 {
			types = append(types, t)
		}
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func (u *UnitedHazard) String() string {
	parts := make([]string, 0, len(u.relations))
	for _, t := range u.Types() {
		parts = append(parts, fmt.Sprintf("%s.%s=%v", u.Target.Name, t, u.relations[t].Sorted()))
	}
	return strings.Join(parts, ", ")
}

// UnitedDependency aggregates the hazards between one access and every
// access it depends on, keyed by buffer and by address family. Buffer
// entries include the relations of their address family.
type UnitedDependency struct {
	spec      *mmu.Spec
	buffers   map[mmu.BufferID]*UnitedHazard
	addresses map[mmu.AddressID]*UnitedHazard
}

// NewUnitedDependency unites the dependencies of one access; keys of deps
// are the indices of the accesses depended on.
func NewUnitedDependency(spec *mmu.Spec, deps map[int]*Dependency) *UnitedDependency {
	u := &UnitedDependency{
		spec:      spec,
		buffers:   make(map[mmu.BufferID]*UnitedHazard),
		addresses: make(map[mmu.AddressID]*UnitedHazard),
	}
	for index, dep := range deps {
		for _, h := range dep.Hazards() {
			if h.Target.IsBuffer() {
				uh, ok := u.buffers[h.Target.Buffer]
				if !ok {
					uh = newUnitedHazard(h.Target)
					u.buffers[h.Target.Buffer] = uh
				}
				uh.add(h.Type, index)
				continue
			}
			uh, ok := u.addresses[h.Target.Address]
			if !ok {
				uh = newUnitedHazard(h.Target)
				u.addresses[h.Target.Address] = uh
			}
			uh.add(h.Type, index)
		}
	}
	for _, uh := range u.buffers {
		family, ok := u.addresses[uh.Target.Address]
		if !ok {
			continue
		}
		for t, set := range family.relations {
			uh.relations[t] = uh.relations[t].Union(set)
		}
	}
	return u
}

// Buffer returns the united hazard of a buffer, or nil.
func (u *UnitedDependency) Buffer(b mmu.BufferID) *UnitedHazard { return u.buffers[b] }

// Address returns the united hazard of an address family, or nil.
func (u *UnitedDependency) Address(a mmu.AddressID) *UnitedHazard { return u.addresses[a] }

// Buffers returns the buffers with hazards, in ascending handle order.
func (u *UnitedDependency) Buffers() []mmu.BufferID {
	ids := make([]mmu.BufferID, 0, len(u.buffers))
	for id := range u.buffers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Addresses returns the address families with hazards, in ascending order.
func (u *UnitedDependency) Addresses() []mmu.AddressID {
	ids := make([]mmu.AddressID, 0, len(u.addresses))
	for id := range u.addresses {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Hazards returns every united hazard, addresses first.
func (u *UnitedDependency) Hazards() []*UnitedHazard {
	out := make([]*UnitedHazard, 0, len(u.buffers)+len(u.addresses))
	for _, id := range u.Addresses() {
		out = append(out, u.addresses[id])
	}
	for _, id := range u.Buffers() {
		out = append(out, u.buffers[id])
	}
	return out
}

// AddrEqualRelation returns the accesses with an equal address of family a.
func (u *UnitedDependency) AddrEqualRelation(a mmu.AddressID) IndexSet {
	return u.addresses[a].Relation(AddrEqual)
}

// IndexEqualRelation returns the accesses mapped to the same set of b.
func (u *UnitedDependency) IndexEqualRelation(b mmu.BufferID) IndexSet {
	uh := u.buffers[b]
	out := IndexSet{}
	for _, t := range Implying(IndexEqual) {
		out = out.Union(uh.Relation(t))
	}
	return out
}

// TagEqualRelation returns the accesses with the same tag in b or in any
// view of b.
func (u *UnitedDependency) TagEqualRelation(b mmu.BufferID) IndexSet {
	uh := u.buffers[b]
	out := IndexSet{}
	for _, t := range Implying(TagEqual) {
		out = out.Union(uh.Relation(t))
	}
	for _, child := range u.spec.Children(b) {
		out = out.Union(u.TagEqualRelation(child))
	}
	return out
}

// TagReplacedRelation returns the accesses whose tag in b is replaced.
func (u *UnitedDependency) TagReplacedRelation(b mmu.BufferID) IndexSet {
	return u.buffers[b].Relation(TagReplaced)
}

func (u *UnitedDependency) String() string {
	parts := make([]string, 0, len(u.buffers)+len(u.addresses))
	for _, uh := range u.Hazards() {
		if s := uh.String(); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}
