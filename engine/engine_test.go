package engine

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Readm/mmu_sim/constraint"
	"github.com/Readm/mmu_sim/filter"
	"github.com/Readm/mmu_sim/hooks"
	"github.com/Readm/mmu_sim/integer"
	"github.com/Readm/mmu_sim/logger"
	"github.com/Readm/mmu_sim/memory"
	"github.com/Readm/mmu_sim/mmu"
	"github.com/Readm/mmu_sim/policy"
)

func l1Spec(t *testing.T) *mmu.Spec {
	t.Helper()
	s, err := mmu.NewBuilder().
		Variable("pa", 16).
		Address("PA", "pa").
		Buffer(mmu.BufferConfig{Name: "L1", Address: "PA", Ways: 4, Sets: 16, Policy: "LRU", Replaceable: true, Tag: "pa[15:8]", Index: "pa[7:4]", Offset: "pa[3:0]"}).
		Build()
	require.NoError(t, err)
	return s
}

func accesses(t *testing.T, spec *mmu.Spec, buffer string, events ...memory.Event) []memory.Access {
	t.Helper()
	b, err := spec.Buffer(buffer)
	require.NoError(t, err)
	out := make([]memory.Access, 0, len(events))
	for _, e := range events {
		p, err := memory.NewPath(memory.PathEntry{Buffer: b.ID, Event: e})
		require.NoError(t, err)
		out = append(out, memory.Access{Op: memory.Load, Path: p})
	}
	return out
}

func quietEngine(t *testing.T, spec *mmu.Spec, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithLogger(logger.New(logger.LevelError, ""))}, opts...)
	e, err := New(spec, opts...)
	require.NoError(t, err)
	return e
}

func TestMissThenHitIsRealized(t *testing.T) {
	spec := l1Spec(t)
	e := quietEngine(t, spec)

	res, err := e.Generate(context.Background(), Template{Accesses: accesses(t, spec, "L1", memory.Miss, memory.Hit)})
	require.NoError(t, err)
	require.True(t, res.Found)
	require.Equal(t, 0, res.Index)
	require.NotEmpty(t, res.Attempt)
	require.Len(t, res.Accesses, 2)
	require.False(t, res.Accesses[0].Trace[0].Hit)
	require.True(t, res.Accesses[1].Trace[0].Hit)
	require.Zero(t, res.Accesses[0].Addresses["PA"].Cmp(res.Accesses[1].Addresses["PA"]))
	require.Equal(t, "[PA.ADDR_EQUAL, L1.TAG_EQUAL]", res.Structure.Dependency(0, 1).String())
}

func TestFilteredStructuresAreSkipped(t *testing.T) {
	spec := l1Spec(t)
	broker := hooks.NewPluginBroker()
	considered, filtered := 0, 0
	broker.RegisterConsidered(func(*hooks.StructureContext) error { considered++; return nil })
	broker.RegisterFiltered(func(*hooks.FilterContext) error { filtered++; return nil })
	e := quietEngine(t, spec, WithBroker(broker))

	res, err := e.Generate(context.Background(), Template{Accesses: accesses(t, spec, "L1", memory.Miss, memory.Miss, memory.Hit)})
	require.NoError(t, err)
	require.True(t, res.Found)
	require.Positive(t, res.Index)
	require.Positive(t, res.Stats.Rejections[filter.NameAccessThenMiss])
	require.Equal(t, res.Stats.Considered, considered)
	require.Equal(t, res.Stats.Filtered, filtered)

	events := []bool{false, false, true}
	for i, a := range res.Accesses {
		require.Equal(t, events[i], a.Trace[0].Hit, "access %d", i)
	}
}

func TestParallelSearchMatchesSequential(t *testing.T) {
	spec := l1Spec(t)
	tpl := Template{Accesses: accesses(t, spec, "L1", memory.Miss, memory.Miss, memory.Hit)}

	seq, err := quietEngine(t, spec, WithSeed(3)).Generate(context.Background(), tpl)
	require.NoError(t, err)
	par, err := quietEngine(t, spec, WithSeed(3), WithWorkers(4)).Generate(context.Background(), tpl)
	require.NoError(t, err)
	require.True(t, seq.Found)
	require.True(t, par.Found)
	require.Equal(t, seq.Index, par.Index)
	for i := range seq.Accesses {
		require.Equal(t, seq.Accesses[i].String(), par.Accesses[i].String())
	}
}

func TestColdHitIsNotRealizable(t *testing.T) {
	spec := l1Spec(t)
	e := quietEngine(t, spec)

	res, err := e.Generate(context.Background(), Template{Accesses: accesses(t, spec, "L1", memory.Hit)})
	require.NoError(t, err)
	require.False(t, res.Found)
	require.Equal(t, 1, res.Stats.Considered)
	require.Equal(t, DefaultRetries+1, res.Stats.Mismatched)
}

func TestConstraintsShapeAddresses(t *testing.T) {
	spec := l1Spec(t)
	set, err := constraint.NewBuilder(spec).
		Variable(constraint.AllAccesses, "pa", integer.Interval{Range: integer.MustRange(0x4000, 0x4fff)}, 100).
		Variable(1, "pa[3:0]", integer.Single{Value: big.NewInt(8)}, 100).
		Build()
	require.NoError(t, err)
	e := quietEngine(t, spec)

	res, err := e.Generate(context.Background(), Template{
		Accesses:    accesses(t, spec, "L1", memory.Miss, memory.Hit),
		Constraints: set,
	})
	require.NoError(t, err)
	require.True(t, res.Found)
	for i, a := range res.Accesses {
		pa := a.Addresses["PA"].Int64()
		require.GreaterOrEqual(t, pa, int64(0x4000), "access %d", i)
		require.LessOrEqual(t, pa, int64(0x4fff), "access %d", i)
	}
	require.Equal(t, int64(8), res.Accesses[1].Addresses["PA"].Int64()&0xf)
}

func TestRelaxationDropsSoftConstraints(t *testing.T) {
	spec := l1Spec(t)
	set, err := constraint.NewBuilder(spec).
		Variable(0, "pa", integer.Single{Value: big.NewInt(0x1234)}, 10).
		Variable(1, "pa", integer.Single{Value: big.NewInt(0x5678)}, 10).
		Build()
	require.NoError(t, err)
	e := quietEngine(t, spec)

	res, err := e.Generate(context.Background(), Template{
		Accesses:    accesses(t, spec, "L1", memory.Miss, memory.Hit),
		Constraints: set,
	})
	require.NoError(t, err)
	require.True(t, res.Found)
	require.Equal(t, 1, res.Stats.Relaxed)
	require.Len(t, set.Constraints(), 2)
}

func TestRealizeChecksReplacement(t *testing.T) {
	spec, err := mmu.NewBuilder().
		Variable("pa", 16).
		Address("PA", "pa").
		Buffer(mmu.BufferConfig{Name: "C", Address: "PA", Ways: 2, Sets: 1, Policy: "LRU", Replaceable: true, Tag: "pa[15:4]"}).
		Build()
	require.NoError(t, err)
	c, err := spec.Buffer("C")
	require.NoError(t, err)
	hazard := func(typ memory.HazardType) *memory.Dependency {
		h, err := memory.NewBufferHazard(typ, c)
		require.NoError(t, err)
		return memory.NewDependency(h)
	}
	values := map[string]*big.Int{"pa@0": big.NewInt(0x10), "pa@1": big.NewInt(0x20), "pa@2": big.NewInt(0x30)}
	misses := accesses(t, spec, "C", memory.Miss, memory.Miss, memory.Miss)

	st, err := memory.NewStructure(spec, misses, map[memory.Pair]*memory.Dependency{
		{I: 0, J: 1}: hazard(memory.TagNotReplaced),
		{I: 0, J: 2}: hazard(memory.TagReplaced),
		{I: 1, J: 2}: hazard(memory.TagNotReplaced),
	})
	require.NoError(t, err)
	trace, mismatch, err := realize(spec, policy.NewFactory(), st, values)
	require.NoError(t, err)
	require.Empty(t, mismatch)
	require.Equal(t, "C:MISS set=0 way=0 evict=0x1", trace[2].Trace[0].String())

	st, err = memory.NewStructure(spec, misses, map[memory.Pair]*memory.Dependency{
		{I: 0, J: 1}: hazard(memory.TagNotReplaced),
		{I: 0, J: 2}: hazard(memory.TagNotReplaced),
		{I: 1, J: 2}: hazard(memory.TagReplaced),
	})
	require.NoError(t, err)
	_, mismatch, err = realize(spec, policy.NewFactory(), st, values)
	require.NoError(t, err)
	require.Equal(t, "access 2: C evicts the tag of access 0", mismatch)
}

func TestNilSpec(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestNonReplaceableHitIsPreloaded(t *testing.T) {
	spec, err := mmu.NewBuilder().
		Variable("va", 16).
		Address("VA", "va").
		Buffer(mmu.BufferConfig{Name: "TLB", Address: "VA", Ways: 2, Sets: 1, Policy: "LRU", Tag: "va[15:8]"}).
		Build()
	require.NoError(t, err)
	e := quietEngine(t, spec)

	res, err := e.Generate(context.Background(), Template{Accesses: accesses(t, spec, "TLB", memory.Hit, memory.Hit)})
	require.NoError(t, err)
	require.True(t, res.Found)
	require.True(t, res.Accesses[0].Trace[0].Preloaded)
	require.Contains(t, res.Accesses[0].Trace[0].String(), "preloaded")
}
