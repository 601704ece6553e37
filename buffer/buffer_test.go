package buffer_test

import (
	"errors"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Readm/mmu_sim/buffer"
	"github.com/Readm/mmu_sim/policy"
)

const blockSize = 64

var sameBlock = buffer.MatcherFunc[uint64, uint64](func(data, addr uint64) bool {
	return data/blockSize == addr/blockSize
})

func blockIndexer(sets uint64) buffer.IndexerFunc[uint64] {
	return func(addr uint64) uint64 { return addr / blockSize % sets }
}

var _ = Describe("Line", func() {
	It("should hit only when occupied and matching", func() {
		l := buffer.NewLine[uint64, uint64](sameBlock)
		hit, _ := l.IsHit(0x40)
		Expect(hit).To(BeFalse())

		_, had, _ := l.SetData(0x40, 0x40)
		Expect(had).To(BeFalse())
		hit, _ = l.IsHit(0x7f)
		Expect(hit).To(BeTrue())

		old, had, _ := l.SetData(0x80, 0x80)
		Expect(had).To(BeTrue())
		Expect(old).To(Equal(uint64(0x40)))
	})
})

var _ = Describe("Set", func() {
	var s *buffer.Set[uint64, uint64]

	BeforeEach(func() {
		var err error
		s, err = buffer.NewSet[uint64, uint64](2, policy.LRU, policy.NewFactory(), sameBlock)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should miss on a cold set and hit afterwards", func() {
		out, err := s.Access(0x100, 0x100)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Hit).To(BeFalse())
		Expect(out.HasEvicted).To(BeFalse())

		out, err = s.Access(0x108, 0x108)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Hit).To(BeTrue())
		Expect(out.Way).To(Equal(0))
	})

	It("should evict the least recently used entry", func() {
		s.Access(0x000, 0x000)
		s.Access(0x040, 0x040)
		s.Access(0x000, 0x000)
		out, err := s.Access(0x080, 0x080)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.HasEvicted).To(BeTrue())
		Expect(out.Evicted).To(Equal(uint64(0x040)))
		Expect(out.Way).To(Equal(1))
	})

	It("should report a lookup hitting two lines", func() {
		lax := false
		matcher := buffer.MatcherFunc[uint64, uint64](func(data, addr uint64) bool {
			return lax || data == addr
		})
		s, err := buffer.NewSet[uint64, uint64](2, policy.FIFO, policy.NewFactory(), matcher)
		Expect(err).NotTo(HaveOccurred())
		s.SetData(1, 1)
		s.SetData(2, 2)

		lax = true
		_, err = s.IsHit(1)
		Expect(errors.Is(err, buffer.ErrInconsistent)).To(BeTrue())
		var inconsistency *buffer.InconsistencyError
		Expect(errors.As(err, &inconsistency)).To(BeTrue())
		Expect(inconsistency.Ways).To(Equal([]int{0, 1}))
	})

	It("should restore a snapshot", func() {
		s.Access(0x000, 0x000)
		snap := s.Snapshot()
		s.Access(0x040, 0x040)
		s.Access(0x080, 0x080)

		s.Restore(snap)
		Expect(s.Entries()).To(Equal(map[int]uint64{0: 0x000}))
		out, _ := s.Access(0x040, 0x040)
		Expect(out.Hit).To(BeFalse())
		Expect(out.Way).To(Equal(1))
	})

	It("should empty on reset", func() {
		s.Access(0x000, 0x000)
		s.Reset()
		Expect(s.Entries()).To(BeEmpty())
	})
})

var _ = Describe("Random set snapshots", func() {
	victims := func(snapshots bool) []int {
		factory := policy.WithSeed(policy.NewFactory(), 7)
		s, err := buffer.NewSet[uint64, uint64](8, policy.Random, factory, sameBlock)
		Expect(err).NotTo(HaveOccurred())
		var ways []int
		for i := uint64(0); i < 30; i++ {
			if snapshots {
				s.Snapshot()
			}
			out, err := s.Access(i*blockSize, i*blockSize)
			Expect(err).NotTo(HaveOccurred())
			ways = append(ways, out.Way)
		}
		return ways
	}

	It("should not change the victims of a seeded run", func() {
		Expect(victims(true)).To(Equal(victims(false)))
	})

	It("should replay the saved stream after a restore", func() {
		factory := policy.WithSeed(policy.NewFactory(), 7)
		s, err := buffer.NewSet[uint64, uint64](8, policy.Random, factory, sameBlock)
		Expect(err).NotTo(HaveOccurred())
		for i := uint64(0); i < 8; i++ {
			s.Access(i*blockSize, i*blockSize)
		}
		snap := s.Snapshot()
		var first, second []int
		for i := uint64(8); i < 20; i++ {
			out, _ := s.Access(i*blockSize, i*blockSize)
			first = append(first, out.Way)
		}
		s.Restore(snap)
		for i := uint64(8); i < 20; i++ {
			out, _ := s.Access(i*blockSize, i*blockSize)
			second = append(second, out.Way)
		}
		Expect(second).To(Equal(first))
	})
})

var _ = Describe("Cache", func() {
	It("should allocate sets lazily", func() {
		c, err := buffer.NewCache[uint64, uint64](1024, 4, policy.PLRU, policy.NewFactory(), blockIndexer(1024), sameBlock)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Indices()).To(BeEmpty())

		hit, err := c.IsHit(0x12340)
		Expect(err).NotTo(HaveOccurred())
		Expect(hit).To(BeFalse())
		Expect(c.Indices()).To(BeEmpty())

		out, err := c.Access(0x12340, 0x12340)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Set).To(Equal(uint64(0x12340 / blockSize % 1024)))
		Expect(c.Indices()).To(HaveLen(1))

		data, ok, err := c.Data(0x12348)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(data).To(Equal(uint64(0x12340)))
	})

	It("should reject an invalid geometry", func() {
		_, err := buffer.NewCache[uint64, uint64](0, 4, policy.LRU, policy.NewFactory(), blockIndexer(1), sameBlock)
		Expect(err).To(HaveOccurred())
		_, err = buffer.NewCache[uint64, uint64](4, 64, policy.PLRU, policy.NewFactory(), blockIndexer(4), sameBlock)
		Expect(errors.Is(err, policy.ErrAssociativity)).To(BeTrue())
	})

	It("should drop sets allocated after a snapshot", func() {
		c, _ := buffer.NewCache[uint64, uint64](8, 2, policy.FIFO, policy.NewFactory(), blockIndexer(8), sameBlock)
		c.Access(0x000, 0x000)
		snap := c.Snapshot()
		c.Access(0x040, 0x040)
		Expect(c.Indices()).To(HaveLen(2))
		Expect(c.Restore(snap)).To(Succeed())
		Expect(c.Indices()).To(Equal([]uint64{0}))
	})
})

var _ = Describe("Reference", func() {
	It("should agree with the LRU cache on a random trace", func() {
		const sets, ways = 4, 2
		c, err := buffer.NewCache[uint64, uint64](sets, ways, policy.LRU, policy.NewFactory(), blockIndexer(sets), sameBlock)
		Expect(err).NotTo(HaveOccurred())
		ref := buffer.NewReference(sets, ways, blockSize)

		rnd := rand.New(rand.NewSource(3))
		for i := 0; i < 2000; i++ {
			addr := uint64(rnd.Intn(32)) * blockSize
			wantHit, _ := ref.IsHit(addr)
			refEvicted, refHad, _ := ref.SetData(addr, addr)

			out, err := c.Access(addr, addr)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Hit).To(Equal(wantHit), "access %d to %#x", i, addr)
			Expect(out.HasEvicted).To(Equal(refHad), "access %d to %#x", i, addr)
			if refHad {
				Expect(out.Evicted).To(Equal(refEvicted), "access %d to %#x", i, addr)
			}
		}
	})
})
