package buffer

import (
	"fmt"
	"sort"

	"github.com/Readm/mmu_sim/policy"
)

// Cache maps addresses to sets through an indexer. Sets are allocated on
// first use.
type Cache[D, A any] struct {
	length  uint64
	ways    int
	kind    policy.Kind
	factory policy.Factory
	indexer Indexer[A]
	matcher Matcher[D, A]

	sets map[uint64]*Set[D, A]
}

// NewCache validates the geometry. length is the number of sets.
func NewCache[D, A any](length uint64, ways int, kind policy.Kind, factory policy.Factory, indexer Indexer[A], matcher Matcher[D, A]) (*Cache[D, A], error) {
	if length == 0 {
		return nil, fmt.Errorf("cache must have at least one set")
	}
	if indexer == nil || matcher == nil {
		return nil, fmt.Errorf("cache requires an indexer and a matcher")
	}
	if _, err := factory.New(kind, ways); err != nil {
		return nil, err
	}
	return &Cache[D, A]{
		length:  length,
		ways:    ways,
		kind:    kind,
		factory: factory,
		indexer: indexer,
		matcher: matcher,
		sets:    make(map[uint64]*Set[D, A]),
	}, nil
}

// Length returns the number of sets.
func (c *Cache[D, A]) Length() uint64 { return c.length }

// Associativity returns the number of lines per set.
func (c *Cache[D, A]) Associativity() int { return c.ways }

// Index returns the set index of addr.
func (c *Cache[D, A]) Index(addr A) uint64 {
	return c.indexer.Index(addr) % c.length
}

// Set returns the set at index, allocating it when asked to.
func (c *Cache[D, A]) Set(index uint64, alloc bool) (*Set[D, A], error) {
	if s, ok := c.sets[index]; ok || !alloc {
		return s, nil
	}
	s, err := NewSet(c.ways, c.kind, c.factory, c.matcher)
	if err != nil {
		return nil, err
	}
	c.sets[index] = s
	return s, nil
}

func (c *Cache[D, A]) IsHit(addr A) (bool, error) {
	s, _ := c.Set(c.Index(addr), false)
	if s == nil {
		return false, nil
	}
	return s.IsHit(addr)
}

func (c *Cache[D, A]) Data(addr A) (D, bool, error) {
	s, _ := c.Set(c.Index(addr), false)
	if s == nil {
		var zero D
		return zero, false, nil
	}
	return s.Data(addr)
}

func (c *Cache[D, A]) SetData(addr A, data D) (D, bool, error) {
	s, err := c.Set(c.Index(addr), true)
	if err != nil {
		var zero D
		return zero, false, err
	}
	return s.SetData(addr, data)
}

// Access reads addr, filling data on a miss, and reports the outcome.
func (c *Cache[D, A]) Access(addr A, data D) (Outcome[D], error) {
	index := c.Index(addr)
	s, err := c.Set(index, true)
	if err != nil {
		return Outcome[D]{}, err
	}
	out, err := s.Access(addr, data)
	out.Set = index
	return out, err
}

// Indices returns the allocated set indices in ascending order.
func (c *Cache[D, A]) Indices() []uint64 {
	out := make([]uint64, 0, len(c.sets))
	for index := range c.sets {
		out = append(out, index)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Reset drops every set.
func (c *Cache[D, A]) Reset() {
	c.sets = make(map[uint64]*Set[D, A])
}

// CacheSnapshot is the saved state of a cache.
type CacheSnapshot[D any] struct {
	sets map[uint64]SetSnapshot[D]
}

// Snapshot saves every allocated set.
func (c *Cache[D, A]) Snapshot() CacheSnapshot[D] {
	snap := CacheSnapshot[D]{sets: make(map[uint64]SetSnapshot[D], len(c.sets))}
	for index, s := range c.sets {
		snap.sets[index] = s.Snapshot()
	}
	return snap
}

// Restore returns the cache to a snapshot. Sets allocated after the snapshot
// are dropped.
func (c *Cache[D, A]) Restore(snap CacheSnapshot[D]) error {
	sets := make(map[uint64]*Set[D, A], len(snap.sets))
	for index, saved := range snap.sets {
		s, err := NewSet(c.ways, c.kind, c.factory, c.matcher)
		if err != nil {
			return err
		}
		s.Restore(saved)
		sets[index] = s
	}
	c.sets = sets
	return nil
}
