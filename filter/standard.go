package filter

import (
	"github.com/Readm/mmu_sim/memory"
	"github.com/Readm/mmu_sim/mmu"
	"github.com/Readm/mmu_sim/policy"
)

// Filter names used in explanations.
const (
	NameAccessThenMiss              = "AccessThenMiss"
	NameHitAndTagReplaced           = "HitAndTagReplaced"
	NameUnitedHitAndTagReplaced     = "UnitedHitAndTagReplaced"
	NameTagEqualTagReplaced         = "TagEqualTagReplaced"
	NameMultipleTagReplaced         = "MultipleTagReplaced"
	NameMultipleTagReplacedEx       = "MultipleTagReplacedEx"
	NameNonReplaceableTagEqual      = "NonReplaceableTagEqual"
	NameParentMissChildHitOrReplace = "ParentMissChildHitOrReplace"
	NameUnclosedEqualRelations      = "UnclosedEqualRelations"
)

// Basic returns the filters that apply to structures of any length.
func Basic() *Builder {
	return NewBuilder().
		AddHazardFilter(NameNonReplaceableTagEqual, NonReplaceableTagEqual).
		AddHazardFilter(NameHitAndTagReplaced, HitAndTagReplaced).
		AddUnitedHazardFilter(NameUnitedHitAndTagReplaced, UnitedHitAndTagReplaced).
		AddUnitedHazardFilter(NameTagEqualTagReplaced, TagEqualTagReplaced).
		AddUnitedHazardFilter(NameMultipleTagReplaced, MultipleTagReplaced).
		AddUnitedDependencyFilter(NameParentMissChildHitOrReplace, ParentMissChildHitOrReplace).
		AddUnitedDependencyFilter(NameMultipleTagReplacedEx, MultipleTagReplacedEx).
		AddStructureFilter(NameUnclosedEqualRelations, UnclosedEqualRelations)
}

// Standard returns the basic filters plus the ones that need the whole
// access sequence.
func Standard() *Builder {
	return Basic().AddUnitedDependencyFilter(NameAccessThenMiss, AccessThenMiss)
}

// NonReplaceableTagEqual rejects equal tags in a non-replaceable buffer (or
// the non-replaceable parent of a view) when the two events differ: such a
// buffer never loses an entry.
func NonReplaceableTagEqual(spec *mmu.Spec, a, b memory.Access, h memory.Hazard) bool {
	if h.Type != memory.TagEqual || !h.Target.IsBuffer() {
		return true
	}
	buf := spec.BufferByID(h.Target.Buffer)
	if !buf.Replaceable && !sameEvent(a, b, buf.ID) {
		return false
	}
	if buf.IsView() && !spec.BufferByID(buf.Parent).Replaceable && !sameEvent(a, b, buf.Parent) {
		return false
	}
	return true
}

func sameEvent(a, b memory.Access, id mmu.BufferID) bool {
	ea, okA := a.Path.Event(id)
	eb, okB := b.Path.Event(id)
	return !okA || !okB || ea == eb
}

// HitAndTagReplaced rejects a pair where b hits the buffer in which it is
// said to replace the tag of a.
func HitAndTagReplaced(_ *mmu.Spec, _, b memory.Access, h memory.Hazard) bool {
	if h.Type != memory.TagReplaced {
		return true
	}
	e, ok := b.Path.Event(h.Target.Buffer)
	return !ok || e != memory.Hit
}

// UnitedHitAndTagReplaced is HitAndTagReplaced over every earlier access.
func UnitedHitAndTagReplaced(_ *mmu.Spec, a memory.Access, u *memory.UnitedHazard) bool {
	if !u.Target.IsBuffer() || len(u.Relation(memory.TagReplaced)) == 0 {
		return true
	}
	e, ok := a.Path.Event(u.Target.Buffer)
	return !ok || e != memory.Hit
}

// TagEqualTagReplaced rejects an access whose tag both equals and replaces
// the tag of the same earlier access.
func TagEqualTagReplaced(_ *mmu.Spec, _ memory.Access, u *memory.UnitedHazard) bool {
	equal := u.Relation(memory.TagEqual)
	for i := range u.Relation(memory.TagReplaced) {
		if equal.Has(i) {
			return false
		}
	}
	return true
}

// MultipleTagReplaced rejects an access replacing two tags of one buffer.
func MultipleTagReplaced(_ *mmu.Spec, _ memory.Access, u *memory.UnitedHazard) bool {
	return len(u.Relation(memory.TagReplaced)) <= 1
}

// MultipleTagReplacedEx rejects an access replacing more than one tag over
// the buffers of one address family.
func MultipleTagReplacedEx(spec *mmu.Spec, _ memory.Access, u *memory.UnitedDependency) bool {
	replaced := make(map[mmu.AddressID]int)
	for _, id := range u.Buffers() {
		n := len(u.TagReplacedRelation(id))
		if n == 0 {
			continue
		}
		family := spec.BufferByID(id).Address
		replaced[family] += n
		if replaced[family] > 1 {
			return false
		}
	}
	return true
}

// ParentMissChildHitOrReplace rejects a view that hits, or replaces a tag,
// while its parent misses.
func ParentMissChildHitOrReplace(spec *mmu.Spec, a memory.Access, u *memory.UnitedDependency) bool {
	for _, e := range a.Path.Entries() {
		buf := spec.BufferByID(e.Buffer)
		if !buf.IsView() {
			continue
		}
		parent, ok := a.Path.Event(buf.Parent)
		if !ok || parent != memory.Miss {
			continue
		}
		if e.Event == memory.Hit || len(u.TagReplacedRelation(buf.ID)) > 0 {
			return false
		}
	}
	return true
}

// AccessThenMiss rejects a miss in a replaceable buffer after an access with
// the same tag when too few accesses to the same set come in between to
// evict it.
func AccessThenMiss(spec *mmu.Spec, a memory.Access, u *memory.UnitedDependency) bool {
	for _, e := range a.Path.Entries() {
		buf := spec.BufferByID(e.Buffer)
		if e.Event != memory.Miss || !buf.Replaceable {
			continue
		}
		equal := u.TagEqualRelation(buf.ID)
		if len(equal) == 0 {
			continue
		}
		last := -1
		for i := range equal {
			if i > last {
				last = i
			}
		}
		between := 0
		for i := range u.IndexEqualRelation(buf.ID) {
			if i > last {
				between++
			}
		}
		if between < minEvictions(buf) {
			return false
		}
	}
	return true
}

// minEvictions is the number of same-set accesses that can evict an entry.
func minEvictions(buf *mmu.BufferSpec) int {
	if buf.Policy == policy.Random {
		return 1
	}
	return buf.Ways
}

// relationGraph holds the edges of one hazard, keyed by source access.
type relationGraph struct {
	directed bool
	edges    map[int]*bitmap
}

func (g *relationGraph) adjacent(i int) *bitmap {
	b, ok := g.edges[i]
	if !ok {
		b = &bitmap{}
		g.edges[i] = b
	}
	return b
}

func (g *relationGraph) link(i, j int) {
	g.adjacent(i).set(j)
	if !g.directed {
		g.adjacent(j).set(i)
	}
}

func (g *relationGraph) linked(i, j int) bool {
	b, ok := g.edges[i]
	return ok && b.has(j)
}

// closed reports whether the relation is transitive.
func (g *relationGraph) closed() bool {
	for m, out := range g.edges {
		if g.directed {
			for _, k := range out.indices() {
				for i, in := range g.edges {
					if in.has(m) && i != k && !g.linked(i, k) {
						return false
					}
				}
			}
			continue
		}
		neighbors := out.indices()
		for x := 0; x < len(neighbors); x++ {
			for y := x + 1; y < len(neighbors); y++ {
				if !g.linked(neighbors[x], neighbors[y]) {
					return false
				}
			}
		}
	}
	return true
}

// UnclosedEqualRelations rejects structures whose equality hazards are not
// transitive: if i relates to m and m to k by the same equality hazard, i
// must relate to k as well.
func UnclosedEqualRelations(_ *mmu.Spec, s *memory.Structure) bool {
	graphs := make(map[string]*relationGraph)
	for _, p := range s.Pairs() {
		for _, h := range s.Dependency(p.I, p.J).Hazards() {
			if !h.Type.IsEquality() || (h.Target.IsBuffer() && h.Type.OnAddress()) {
				continue
			}
			name := h.FullName()
			g, ok := graphs[name]
			if !ok {
				g = &relationGraph{directed: h.Type == memory.TagReplaced, edges: make(map[int]*bitmap)}
				graphs[name] = g
			}
			g.link(p.I, p.J)
		}
	}
	for _, g := range graphs {
		if !g.closed() {
			return false
		}
	}
	return indexClosed(s)
}

// indexClosed rejects a pair said to map to different sets of a buffer when
// the tag relations of other pairs place both accesses in one set.
func indexClosed(s *memory.Structure) bool {
	sets := make(map[mmu.BufferID]*components)
	var apart []memory.Hazard
	var apartPairs []memory.Pair
	for _, p := range s.Pairs() {
		for _, h := range s.Dependency(p.I, p.J).Hazards() {
			if !h.Target.IsBuffer() {
				continue
			}
			if h.Type == memory.IndexNotEqual {
				apart = append(apart, h)
				apartPairs = append(apartPairs, p)
				continue
			}
			if !h.Type.Implies(memory.IndexEqual) {
				continue
			}
			c, ok := sets[h.Target.Buffer]
			if !ok {
				c = newComponents(s.Len())
				sets[h.Target.Buffer] = c
			}
			c.union(p.I, p.J)
		}
	}
	for n, h := range apart {
		c, ok := sets[h.Target.Buffer]
		if ok && c.find(apartPairs[n].I) == c.find(apartPairs[n].J) {
			return false
		}
	}
	return true
}

// components is a union-find over access indices.
type components struct {
	parent []int
}

func newComponents(n int) *components {
	c := &components{parent: make([]int, n)}
	for i := range c.parent {
		c.parent[i] = i
	}
	return c
}

func (c *components) find(i int) int {
	for c.parent[i] != i {
		c.parent[i] = c.parent[c.parent[i]]
		i = c.parent[i]
	}
	return i
}

func (c *components) union(i, j int) {
	c.parent[c.find(i)] = c.find(j)
}
