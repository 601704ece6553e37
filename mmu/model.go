package mmu

import (
	"math/big"

	"github.com/Readm/mmu_sim/buffer"
	"github.com/Readm/mmu_sim/policy"
)

// Model instantiates one cache per buffer of a Spec. Entries are the
// addresses themselves.
type Model struct {
	spec   *Spec
	caches []*buffer.Cache[*big.Int, *big.Int]
}

// NewModel creates empty caches using factory for the policies.
func NewModel(spec *Spec, factory policy.Factory) (*Model, error) {
	m := &Model{spec: spec, caches: make([]*buffer.Cache[*big.Int, *big.Int], len(spec.buffers))}
	for i := range spec.buffers {
		b := &spec.buffers[i]
		matcher := buffer.MatcherFunc[*big.Int, *big.Int](func(data, addr *big.Int) bool {
			return b.Tag(data).Cmp(b.Tag(addr)) == 0 && b.Index(data).Cmp(b.Index(addr)) == 0
		})
		indexer := buffer.IndexerFunc[*big.Int](func(addr *big.Int) uint64 {
			return b.Index(addr).Uint64()
		})
		c, err := buffer.NewCache[*big.Int, *big.Int](b.Sets, b.Ways, b.Policy, factory, indexer, matcher)
		if err != nil {
			return nil, err
		}
		m.caches[i] = c
	}
	return m, nil
}

// Spec returns the described subsystem.
func (m *Model) Spec() *Spec { return m.spec }

// Cache returns the cache of a buffer.
func (m *Model) Cache(id BufferID) *buffer.Cache[*big.Int, *big.Int] {
	return m.caches[id]
}

// Access looks addr up in a buffer, filling it on a miss.
func (m *Model) Access(id BufferID, addr *big.Int) (buffer.Outcome[*big.Int], error) {
	return m.caches[id].Access(addr, new(big.Int).Set(addr))
}

// Reset empties every cache.
func (m *Model) Reset() {
	for _, c := range m.caches {
		c.Reset()
	}
}
