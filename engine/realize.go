package engine

import (
	"fmt"
	"math/big"

	"github.com/Readm/mmu_sim/constraint"
	"github.com/Readm/mmu_sim/memory"
	"github.com/Readm/mmu_sim/mmu"
	"github.com/Readm/mmu_sim/policy"
)

// addresses returns the address of every family used by access i.
func addresses(spec *mmu.Spec, values map[string]*big.Int, i int) map[string]*big.Int {
	out := make(map[string]*big.Int, len(spec.Addresses()))
	for _, family := range spec.Addresses() {
		if v, ok := values[constraint.Instance(family.Var, i).Name]; ok {
			out[family.Name] = v
		}
	}
	return out
}

// realize replays the accesses of st on a cold model. The mismatch is empty
// when every lookup reports the requested event and every TAG_REPLACED
// hazard evicts the tag of the access it names. A requested hit in a
// non-replaceable buffer that misses the model is preloaded.
func realize(spec *mmu.Spec, factory policy.Factory, st *memory.Structure, values map[string]*big.Int) ([]AccessResult, string, error) {
	model, err := mmu.NewModel(spec, factory)
	if err != nil {
		return nil, "", err
	}
	results := make([]AccessResult, st.Len())
	for j := 0; j < st.Len(); j++ {
		a := st.Access(j)
		addrs := addresses(spec, values, j)
		results[j] = AccessResult{Op: a.Op.String(), Addresses: addrs}
		for _, e := range a.Path.Entries() {
			buf := spec.BufferByID(e.Buffer)
			addr := addrs[spec.AddressByID(buf.Address).Name]
			if addr == nil {
				return nil, "", fmt.Errorf("access %d has no %s address", j, spec.AddressByID(buf.Address).Name)
			}
			out, err := model.Access(e.Buffer, addr)
			if err != nil {
				return nil, "", err
			}
			step := BufferStep{Buffer: buf.Name, Set: out.Set, Way: out.Way, Hit: out.Hit}
			if out.HasEvicted {
				step.Evicted = buf.Tag(out.Evicted)
			}
			// Entries of a non-replaceable buffer come from test preparation.
			if !out.Hit && e.Event == memory.Hit && !buf.Replaceable {
				step.Hit, step.Preloaded, step.Evicted = true, true, nil
			}
			results[j].Trace = append(results[j].Trace, step)

			if step.Hit != (e.Event == memory.Hit) {
				return results, fmt.Sprintf("access %d: %s expected %s", j, buf.Name, e.Event), nil
			}
			if !buf.Replaceable {
				continue
			}
			if mismatch := checkEvictions(spec, st, values, j, buf, step); mismatch != "" {
				return results, mismatch, nil
			}
		}
	}
	return results, "", nil
}

func checkEvictions(spec *mmu.Spec, st *memory.Structure, values map[string]*big.Int, j int, buf *mmu.BufferSpec, step BufferStep) string {
	family := spec.AddressByID(buf.Address)
	for i := 0; i < j; i++ {
		d := st.Dependency(i, j)
		replaced, kept := d.Has(memory.TagReplaced, buf.ID), d.Has(memory.TagNotReplaced, buf.ID)
		if !replaced && !kept {
			continue
		}
		tag := buf.Tag(values[constraint.Instance(family.Var, i).Name])
		evicted := step.Evicted != nil && step.Evicted.Cmp(tag) == 0
		if replaced && !evicted {
			return fmt.Sprintf("access %d: %s does not evict the tag of access %d", j, buf.Name, i)
		}
		if kept && evicted {
			return fmt.Sprintf("access %d: %s evicts the tag of access %d", j, buf.Name, i)
		}
	}
	return ""
}
