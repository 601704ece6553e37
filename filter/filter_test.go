package filter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Readm/mmu_sim/memory"
	"github.com/Readm/mmu_sim/mmu"
)

func testSpec(t *testing.T) *mmu.Spec {
	t.Helper()
	s, err := mmu.NewBuilder().
		Variable("va", 16).
		Variable("pa", 16).
		Address("VA", "va").
		Address("PA", "pa").
		Buffer(mmu.BufferConfig{Name: "JTLB", Address: "VA", Ways: 4, Sets: 1, Policy: "LRU", Tag: "va[15:8]"}).
		Buffer(mmu.BufferConfig{Name: "DTLB", Address: "VA", Ways: 2, Sets: 1, Policy: "FIFO", Replaceable: true, Parent: "JTLB", Tag: "va[15:8]"}).
		Buffer(mmu.BufferConfig{Name: "L1", Address: "PA", Ways: 4, Sets: 16, Policy: "LRU", Replaceable: true, Tag: "pa[15:8]", Index: "pa[7:4]", Offset: "pa[3:0]"}).
		Build()
	require.NoError(t, err)
	return s
}

type fixture struct {
	t    *testing.T
	spec *mmu.Spec
}

func newFixture(t *testing.T) fixture {
	return fixture{t: t, spec: testSpec(t)}
}

func (f fixture) buffer(name string) *mmu.BufferSpec {
	f.t.Helper()
	b, err := f.spec.Buffer(name)
	require.NoError(f.t, err)
	return b
}

// access builds a load with the given event per buffer name.
func (f fixture) access(events map[string]memory.Event) memory.Access {
	f.t.Helper()
	var entries []memory.PathEntry
	for _, name := range []string{"DTLB", "JTLB", "L1"} {
		if e, ok := events[name]; ok {
			entries = append(entries, memory.PathEntry{Buffer: f.buffer(name).ID, Event: e})
		}
	}
	p, err := memory.NewPath(entries...)
	require.NoError(f.t, err)
	return memory.Access{Op: memory.Load, Path: p}
}

func (f fixture) hazard(typ memory.HazardType, name string) memory.Hazard {
	f.t.Helper()
	h, err := memory.NewBufferHazard(typ, f.buffer(name))
	require.NoError(f.t, err)
	return h
}

func (f fixture) structure(accesses []memory.Access, deps map[memory.Pair]*memory.Dependency) *memory.Structure {
	f.t.Helper()
	s, err := memory.NewStructure(f.spec, accesses, deps)
	require.NoError(f.t, err)
	return s
}

func l1(e memory.Event) map[string]memory.Event {
	return map[string]memory.Event{"L1": e}
}

func TestMissThenHitWithEqualTags(t *testing.T) {
	f := newFixture(t)
	accesses := []memory.Access{f.access(l1(memory.Miss)), f.access(l1(memory.Hit))}
	composite := Standard().Build()

	s := f.structure(accesses, map[memory.Pair]*memory.Dependency{
		{I: 0, J: 1}: memory.NewDependency(f.hazard(memory.TagEqual, "L1")),
	})
	name, ok := composite.Explain(s)
	require.True(t, ok, "rejected by %s", name)

	s = f.structure(accesses, map[memory.Pair]*memory.Dependency{
		{I: 0, J: 1}: memory.NewDependency(f.hazard(memory.TagEqual, "L1"), f.hazard(memory.TagReplaced, "L1")),
	})
	name, ok = composite.Explain(s)
	require.False(t, ok)
	require.Equal(t, NameHitAndTagReplaced, name)
	require.False(t, composite.Test(s))
}

func TestUnclosedEqualRelations(t *testing.T) {
	f := newFixture(t)
	accesses := []memory.Access{f.access(l1(memory.Hit)), f.access(l1(memory.Hit)), f.access(l1(memory.Hit))}
	tagEqual := func() *memory.Dependency { return memory.NewDependency(f.hazard(memory.TagEqual, "L1")) }

	s := f.structure(accesses, map[memory.Pair]*memory.Dependency{
		{I: 0, J: 1}: tagEqual(),
		{I: 1, J: 2}: tagEqual(),
	})
	name, ok := Basic().Build().Explain(s)
	require.False(t, ok)
	require.Equal(t, NameUnclosedEqualRelations, name)

	s = f.structure(accesses, map[memory.Pair]*memory.Dependency{
		{I: 0, J: 1}: tagEqual(),
		{I: 1, J: 2}: tagEqual(),
		{I: 0, J: 2}: tagEqual(),
	})
	require.True(t, UnclosedEqualRelations(f.spec, s))
	require.True(t, Basic().Build().Test(s))
}

func TestUnclosedReplacementChain(t *testing.T) {
	f := newFixture(t)
	accesses := []memory.Access{f.access(l1(memory.Miss)), f.access(l1(memory.Miss)), f.access(l1(memory.Miss))}
	replaced := func() *memory.Dependency { return memory.NewDependency(f.hazard(memory.TagReplaced, "L1")) }

	s := f.structure(accesses, map[memory.Pair]*memory.Dependency{
		{I: 0, J: 1}: replaced(),
		{I: 1, J: 2}: replaced(),
	})
	require.False(t, UnclosedEqualRelations(f.spec, s))

	// Disequalities do not need to be closed.
	notEqual := func() *memory.Dependency { return memory.NewDependency(f.hazard(memory.TagNotReplaced, "L1")) }
	s = f.structure(accesses, map[memory.Pair]*memory.Dependency{
		{I: 0, J: 1}: notEqual(),
		{I: 1, J: 2}: notEqual(),
	})
	require.True(t, UnclosedEqualRelations(f.spec, s))
}

func TestUnclosedImpliedIndex(t *testing.T) {
	f := newFixture(t)
	accesses := []memory.Access{f.access(l1(memory.Miss)), f.access(l1(memory.Miss)), f.access(l1(memory.Hit))}
	dep := func(typ memory.HazardType) *memory.Dependency { return memory.NewDependency(f.hazard(typ, "L1")) }

	s := f.structure(accesses, map[memory.Pair]*memory.Dependency{
		{I: 0, J: 1}: dep(memory.IndexNotEqual),
		{I: 0, J: 2}: dep(memory.TagEqual),
		{I: 1, J: 2}: dep(memory.TagNotReplaced),
	})
	require.False(t, UnclosedEqualRelations(f.spec, s))
	name, ok := Basic().Build().Explain(s)
	require.False(t, ok)
	require.Equal(t, NameUnclosedEqualRelations, name)

	s = f.structure(accesses, map[memory.Pair]*memory.Dependency{
		{I: 0, J: 1}: dep(memory.TagNotReplaced),
		{I: 0, J: 2}: dep(memory.TagEqual),
		{I: 1, J: 2}: dep(memory.TagNotReplaced),
	})
	require.True(t, UnclosedEqualRelations(f.spec, s))
}

func TestAccessThenMiss(t *testing.T) {
	f := newFixture(t)
	accesses := []memory.Access{f.access(l1(memory.Miss)), f.access(l1(memory.Miss))}
	s := f.structure(accesses, map[memory.Pair]*memory.Dependency{
		{I: 0, J: 1}: memory.NewDependency(f.hazard(memory.TagEqual, "L1")),
	})
	require.True(t, Basic().Build().Test(s))
	name, ok := Standard().Build().Explain(s)
	require.False(t, ok)
	require.Equal(t, NameAccessThenMiss, name)

	// The tag of access 0 survives until four other lines share its set.
	for _, between := range []int{3, 4} {
		accesses := []memory.Access{f.access(l1(memory.Miss))}
		deps := map[memory.Pair]*memory.Dependency{}
		for k := 1; k <= between; k++ {
			accesses = append(accesses, f.access(l1(memory.Miss)))
			deps[memory.Pair{I: k, J: between + 1}] = memory.NewDependency(f.hazard(memory.TagNotReplaced, "L1"))
		}
		last := between + 1
		accesses = append(accesses, f.access(l1(memory.Miss)))
		deps[memory.Pair{I: 0, J: last}] = memory.NewDependency(f.hazard(memory.TagEqual, "L1"))
		s := f.structure(accesses, deps)
		require.Equal(t, between >= 4, AccessThenMiss(f.spec, s.Access(last), s.UnitedDependency(last)), "%d accesses in between", between)
	}
}

func TestParentMissChildHit(t *testing.T) {
	f := newFixture(t)
	s := f.structure([]memory.Access{
		f.access(map[string]memory.Event{"DTLB": memory.Hit, "JTLB": memory.Miss}),
	}, nil)
	name, ok := Basic().Build().Explain(s)
	require.False(t, ok)
	require.Equal(t, NameParentMissChildHitOrReplace, name)

	s = f.structure([]memory.Access{
		f.access(map[string]memory.Event{"DTLB": memory.Miss, "JTLB": memory.Miss}),
	}, nil)
	require.True(t, Basic().Build().Test(s))
}

func TestNonReplaceableTagEqual(t *testing.T) {
	f := newFixture(t)
	a := f.access(map[string]memory.Event{"JTLB": memory.Miss})
	b := f.access(map[string]memory.Event{"JTLB": memory.Hit})
	require.False(t, NonReplaceableTagEqual(f.spec, a, b, f.hazard(memory.TagEqual, "JTLB")))
	require.True(t, NonReplaceableTagEqual(f.spec, a, a, f.hazard(memory.TagEqual, "JTLB")))

	a = f.access(map[string]memory.Event{"DTLB": memory.Miss, "JTLB": memory.Miss})
	b = f.access(map[string]memory.Event{"DTLB": memory.Miss, "JTLB": memory.Hit})
	require.False(t, NonReplaceableTagEqual(f.spec, a, b, f.hazard(memory.TagEqual, "DTLB")))
	require.True(t, NonReplaceableTagEqual(f.spec, a, b, f.hazard(memory.TagNotReplaced, "DTLB")))
}

func TestTagReplacedCounts(t *testing.T) {
	f := newFixture(t)
	accesses := []memory.Access{f.access(l1(memory.Miss)), f.access(l1(memory.Miss)), f.access(l1(memory.Miss))}
	s := f.structure(accesses, map[memory.Pair]*memory.Dependency{
		{I: 0, J: 2}: memory.NewDependency(f.hazard(memory.TagReplaced, "L1")),
		{I: 1, J: 2}: memory.NewDependency(f.hazard(memory.TagReplaced, "L1")),
	})
	u := s.UnitedDependency(2)
	id := f.buffer("L1").ID
	require.False(t, MultipleTagReplaced(f.spec, s.Access(2), u.Buffer(id)))
	require.False(t, MultipleTagReplacedEx(f.spec, s.Access(2), u))
	require.True(t, MultipleTagReplaced(f.spec, s.Access(1), s.UnitedDependency(1).Buffer(id)))

	s = f.structure(accesses[:2], map[memory.Pair]*memory.Dependency{
		{I: 0, J: 1}: memory.NewDependency(f.hazard(memory.TagEqual, "L1"), f.hazard(memory.TagReplaced, "L1")),
	})
	require.False(t, TagEqualTagReplaced(f.spec, s.Access(1), s.UnitedDependency(1).Buffer(id)))
	require.False(t, UnitedHitAndTagReplaced(f.spec, f.access(l1(memory.Hit)), s.UnitedDependency(1).Buffer(id)))
}

func TestBuilder(t *testing.T) {
	f := newFixture(t)
	stores := func(_ *mmu.Spec, a memory.Access) bool { return a.Op != memory.Store }
	b := NewBuilder().
		AddAccessFilter("NoStores", stores).
		AddHazardFilter("ignored", nil)
	c := b.Clone().AddBuilder(Basic())
	require.Equal(t, []string{"NoStores"}, b.Names())
	require.Equal(t, NameUnclosedEqualRelations, c.Names()[0])
	require.Contains(t, c.Names(), NameHitAndTagReplaced)

	store := f.access(l1(memory.Miss))
	store.Op = memory.Store
	s := f.structure([]memory.Access{store}, nil)
	name, ok := c.Build().Explain(s)
	require.False(t, ok)
	require.Equal(t, "NoStores", name)
	require.True(t, NewBuilder().Build().Test(s))
}
