package template

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Readm/mmu_sim/engine"
	"github.com/Readm/mmu_sim/logger"
	"github.com/Readm/mmu_sim/memory"
	"github.com/Readm/mmu_sim/mmu"
	"github.com/Readm/mmu_sim/policy"
	"github.com/Readm/mmu_sim/solver"
)

const subsystem = `
variable { name = "va", width = 16 }
variable { name = "pa", width = 16 }
address  { name = "VA", variable = "va" }
address  { name = "PA", variable = "pa" }
buffer { name = "JTLB", address = "VA", ways = 4, policy = "PLRU", tag = "va[15:8]" }
buffer { name = "DTLB", address = "VA", ways = 2, policy = "FIFO", replaceable = true,
         parent = "JTLB", tag = "va[15:8]" }
for _, level in ipairs({ "L1" }) do
  buffer { name = level, address = "PA", ways = 4, sets = 16, policy = "lru", replaceable = true,
           tag = "pa[15:8]", index = "pa[7:4]", offset = "pa[3:0]" }
end
`

func loadSubsystem(t *testing.T) *mmu.Spec {
	t.Helper()
	spec, err := LoadSpec(subsystem)
	require.NoError(t, err)
	return spec
}

func TestLoadSpec(t *testing.T) {
	spec := loadSubsystem(t)
	require.Len(t, spec.Buffers(), 3)

	dtlb, err := spec.Buffer("DTLB")
	require.NoError(t, err)
	jtlb, err := spec.Buffer("JTLB")
	require.NoError(t, err)
	require.Equal(t, jtlb.ID, dtlb.Parent)
	require.Equal(t, policy.FIFO, dtlb.Policy)
	require.True(t, dtlb.Replaceable)
	require.False(t, jtlb.Replaceable)

	l1, err := spec.Buffer("L1")
	require.NoError(t, err)
	require.Equal(t, policy.LRU, l1.Policy)
	require.Equal(t, uint64(16), l1.Sets)
	require.Equal(t, "pa[7:4]", l1.IndexField.String())
}

func TestLoadSpecReportsEveryProblem(t *testing.T) {
	_, err := LoadSpec(`
variable { name = "pa", width = 16 }
address  { name = "PA", variable = "qa" }
buffer   { name = "L1", address = "PA", ways = 0, policy = "LRU", tag = "pa[15:8]" }
buffer   { name = "L2", address = "PA", ways = 2, policy = "MRU", tag = "pa[15:8]" }
`)
	require.ErrorIs(t, err, mmu.ErrConfig)
	require.ErrorContains(t, err, "qa")
	require.ErrorContains(t, err, "MRU")
}

func TestLoadSpecScriptErrors(t *testing.T) {
	for name, src := range map[string]string{
		"missing width": `variable { name = "pa" }`,
		"wrong type":    `variable { name = 1, width = 16 }`,
		"fractional":    `variable { name = "pa", width = 1.5 }`,
		"syntax":        `variable {`,
		"no files":      `dofile("/etc/passwd")`,
	} {
		_, err := LoadSpec(src)
		require.Error(t, err, name)
		require.ErrorContains(t, err, "subsystem script", name)
	}
}

func TestLoadTemplate(t *testing.T) {
	spec := loadSubsystem(t)
	tpl, err := LoadTemplate(`
access { op = "LOAD", path = { "JTLB:HIT", "DTLB:MISS", "L1:MISS" } }
access { op = "store", path = { { buffer = "L1", event = "HIT" } }, count = 2 }
constrain { field = "pa", range = { 0x4000, "0x4fff" } }
constrain { access = 1, field = "pa[3:0]", value = 8, bias = 50 }
constrain { access = 2, field = "va", values = { 1, { 16, 31 } }, bias = 0 }
constrain { access = 0, field = "va[7:0]", weighted = { { weight = 1, value = 3 }, { weight = 3, range = { 4, 7 } } } }
events { buffer = "DTLB", allow = "MISS" }
`, spec)
	require.NoError(t, err)
	require.Len(t, tpl.Accesses, 3)
	require.Equal(t, memory.Load, tpl.Accesses[0].Op)
	require.Equal(t, memory.Store, tpl.Accesses[2].Op)
	require.Equal(t, "LOAD(JTLB=HIT, DTLB=MISS, L1=MISS)", tpl.Accesses[0].Format(spec))
	require.Equal(t, "STORE(L1=HIT)", tpl.Accesses[1].Format(spec))

	h := tpl.Constraints.Histogram()
	require.Equal(t, 2, h[solver.Hard])
	require.Equal(t, 1, h[solver.Bias(50)])
	require.Equal(t, 1, h[solver.Soft])
	require.Len(t, tpl.Constraints.Events(), 1)
	require.Same(t, spec, tpl.Constraints.Spec())
}

func TestLoadTemplateResolvesNames(t *testing.T) {
	spec := loadSubsystem(t)
	_, err := LoadTemplate(`
access { op = "LOAD", path = { "L3:HIT", "L1:SOMETIMES" } }
constrain { field = "xa", value = 1 }
events { buffer = "L9", allow = { "HIT" } }
`, spec)
	require.Error(t, err)
	for _, want := range []string{`"L3"`, "SOMETIMES", "xa", `"L9"`} {
		require.ErrorContains(t, err, want)
	}

	_, err = LoadTemplate(`
access { op = "LOAD", path = { "L1:MISS" } }
constrain { access = 4, field = "pa", value = 1 }
`, spec)
	require.ErrorContains(t, err, "access 4 of 1")

	_, err = LoadTemplate(`constrain { field = "pa", value = 1, range = { 1, 2 } }`, spec)
	require.ErrorContains(t, err, "exactly one")

	_, err = LoadTemplate(`constrain { field = "pa", range = { 9, 2 } }`, spec)
	require.ErrorContains(t, err, "template script")

	_, err = LoadTemplate(`access { op = "LOAD", path = { "L1" } }`, spec)
	require.ErrorContains(t, err, "buffer:event")

	_, err = LoadTemplate(``, nil)
	require.Error(t, err)
}

func TestLoadTemplateStopsOnCancel(t *testing.T) {
	spec := loadSubsystem(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := LoadTemplateContext(ctx, `while true do end`, spec)
	require.Error(t, err)
}

func TestLoadedTemplateIsGenerated(t *testing.T) {
	spec := loadSubsystem(t)
	tpl, err := LoadTemplate(`
access { op = "LOAD", path = { "L1:MISS" } }
access { op = "LOAD", path = { "L1:HIT" } }
constrain { field = "pa", range = { 0x4000, 0x4fff } }
`, spec)
	require.NoError(t, err)

	e, err := engine.New(spec, engine.WithLogger(logger.New(logger.LevelError, "")))
	require.NoError(t, err)
	res, err := e.Generate(context.Background(), tpl)
	require.NoError(t, err)
	require.True(t, res.Found)
	require.Len(t, res.Accesses, 2)
	for _, a := range res.Accesses {
		pa := a.Addresses["PA"].Int64()
		require.GreaterOrEqual(t, pa, int64(0x4000))
		require.LessOrEqual(t, pa, int64(0x4fff))
	}
}
