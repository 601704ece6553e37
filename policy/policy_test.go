package policy_test

import (
	"errors"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Readm/mmu_sim/policy"
)

func victims(p policy.Policy, trace []int) []int {
	var out []int
	for _, line := range trace {
		Expect(p.AccessLine(line)).To(Succeed())
		out = append(out, p.ChooseVictim())
	}
	return out
}

var _ = Describe("Factory", func() {
	var factory policy.Factory

	BeforeEach(func() {
		factory = policy.NewFactory()
	})

	It("should reject a non-positive associativity", func() {
		_, err := factory.New(policy.LRU, 0)
		Expect(errors.Is(err, policy.ErrAssociativity)).To(BeTrue())
	})

	It("should reject PLRU wider than a word", func() {
		_, err := factory.New(policy.PLRU, 33)
		Expect(errors.Is(err, policy.ErrAssociativity)).To(BeTrue())

		p, err := factory.New(policy.PLRU, 32)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Kind()).To(Equal(policy.PLRU))
	})

	It("should parse template names", func() {
		for _, name := range []string{"random", "FIFO", "Lru", "plru"} {
			kind, err := policy.ParseKind(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(kind.String()).To(Equal(map[string]string{
				"random": "RANDOM", "FIFO": "FIFO", "Lru": "LRU", "plru": "PLRU",
			}[name]))
		}
		_, err := policy.ParseKind("MRU")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("FIFO", func() {
	var p policy.Policy

	BeforeEach(func() {
		var err error
		p, err = policy.NewFactory().New(policy.FIFO, 4)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should evict in insertion order", func() {
		Expect(p.ChooseVictim()).To(Equal(0))
		Expect(victims(p, []int{0, 1})).To(Equal([]int{1, 2}))
	})

	It("should fail on an untracked line", func() {
		err := p.AccessLine(7)
		Expect(errors.Is(err, policy.ErrUntrackedLine)).To(BeTrue())
	})

	It("should restore the initial order on reset", func() {
		victims(p, []int{0, 1, 2})
		p.Reset()
		Expect(p.ChooseVictim()).To(Equal(0))
	})
})

var _ = Describe("LRU", func() {
	It("should evict the least recently used line", func() {
		p, err := policy.NewFactory().New(policy.LRU, 4)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.ChooseVictim()).To(Equal(0))
		Expect(victims(p, []int{0, 1, 2, 3, 0, 2})).To(Equal([]int{1, 2, 3, 0, 1, 1}))
	})

	It("should not share state with a clone", func() {
		p, _ := policy.NewFactory().New(policy.LRU, 2)
		Expect(p.AccessLine(0)).To(Succeed())
		c := p.Clone()
		Expect(c.AccessLine(1)).To(Succeed())
		Expect(c.AccessLine(0)).To(Succeed())
		Expect(p.ChooseVictim()).To(Equal(1))
		Expect(c.ChooseVictim()).To(Equal(1))
		Expect(p.AccessLine(1)).To(Succeed())
		Expect(p.ChooseVictim()).To(Equal(0))
		Expect(c.ChooseVictim()).To(Equal(1))
	})
})

var _ = Describe("PLRU", func() {
	var p policy.Policy

	BeforeEach(func() {
		var err error
		p, err = policy.NewFactory().New(policy.PLRU, 4)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should pick the only line never used", func() {
		for _, line := range []int{0, 1, 2} {
			Expect(p.AccessLine(line)).To(Succeed())
		}
		Expect(p.ChooseVictim()).To(Equal(3))
	})

	It("should keep only the last bit when all lines are used", func() {
		for _, line := range []int{0, 1, 2, 3} {
			Expect(p.AccessLine(line)).To(Succeed())
		}
		Expect(p.(*policy.PLRUPolicy).Bits()).To(Equal(uint32(1 << 3)))
		Expect(p.ChooseVictim()).To(Equal(0))
	})

	It("should scan forward from the last accessed line", func() {
		Expect(p.ChooseVictim()).To(Equal(0))
		Expect(p.AccessLine(1)).To(Succeed())
		Expect(p.ChooseVictim()).To(Equal(2))
		Expect(p.AccessLine(3)).To(Succeed())
		Expect(p.ChooseVictim()).To(Equal(0))
	})
})

var _ = Describe("Determinism", func() {
	trace := []int{0, 3, 1, 1, 2, 0, 3, 2, 2, 1}

	for _, kind := range []policy.Kind{policy.FIFO, policy.LRU, policy.PLRU, policy.Random} {
		It("should repeat the victim sequence for "+kind.String(), func() {
			factory := policy.WithSeed(policy.NewFactory(), 42)
			a, err := factory.New(kind, 4)
			Expect(err).NotTo(HaveOccurred())
			b, err := factory.New(kind, 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(victims(a, trace)).To(Equal(victims(b, trace)))
		})
	}
})

var _ = Describe("Random", func() {
	It("should choose victims uniformly", func() {
		factory := policy.WithSource(policy.NewFactory(), func() rand.Source { return rand.NewSource(7) })
		p, err := factory.New(policy.Random, 4)
		Expect(err).NotTo(HaveOccurred())

		const trials = 40000
		counts := make([]int, 4)
		for i := 0; i < trials; i++ {
			v := p.ChooseVictim()
			Expect(v).To(BeNumerically(">=", 0))
			Expect(v).To(BeNumerically("<", 4))
			counts[v]++
		}
		for _, c := range counts {
			Expect(c).To(BeNumerically("~", trials/4, trials/40))
		}
	})

	It("should clone without disturbing the stream", func() {
		factory := policy.WithSeed(policy.NewFactory(), 7)
		a, err := factory.New(policy.Random, 8)
		Expect(err).NotTo(HaveOccurred())
		b, err := factory.New(policy.Random, 8)
		Expect(err).NotTo(HaveOccurred())

		for i := 0; i < 20; i++ {
			c := b.Clone()
			want := a.ChooseVictim()
			Expect(b.ChooseVictim()).To(Equal(want))
			Expect(c.ChooseVictim()).To(Equal(want))
		}
	})
})
