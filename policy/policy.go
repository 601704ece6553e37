package policy

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

// Kind enumerates the replacement policies.
type Kind int

const (
	Random Kind = iota
	FIFO
	LRU
	PLRU
)

// MaxPLRUAssociativity is the number of lines a PLRU bitmask can track.
const MaxPLRUAssociativity = 32

// ErrUntrackedLine is returned when a line index is outside the policy state.
var ErrUntrackedLine = errors.New("line is not tracked by the policy")

// ErrAssociativity is returned for an unsupported associativity.
var ErrAssociativity = errors.New("unsupported associativity")

func (k Kind) String() string {
	switch k {
	case Random:
		return "RANDOM"
	case FIFO:
		return "FIFO"
	case LRU:
		return "LRU"
	case PLRU:
		return "PLRU"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind accepts the policy names used by templates, ignoring case.
func ParseKind(name string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "RANDOM":
		return Random, nil
	case "FIFO":
		return FIFO, nil
	case "LRU":
		return LRU, nil
	case "PLRU":
		return PLRU, nil
	}
	return Random, fmt.Errorf("unknown replacement policy %q", name)
}

// Policy picks the line to replace in one set. A policy belongs to exactly
// one set and is not safe for concurrent use.
type Policy interface {
	Kind() Kind
	Associativity() int
	// AccessLine records a hit or an insertion at line i.
	AccessLine(i int) error
	// ChooseVictim returns the line to replace on a miss.
	ChooseVictim() int
	Reset()
	Clone() Policy

	policy()
}

// Factory creates policies with injected dependencies.
type Factory struct {
	source func() rand.Source
}

// NewFactory returns a factory whose random policies start from seed 0.
func NewFactory() Factory {
	return WithSeed(Factory{}, 0)
}

// WithSeed returns a copy of f whose random policies are seeded with seed.
func WithSeed(f Factory, seed int64) Factory {
	f.source = func() rand.Source { return rand.NewSource(seed) }
	return f
}

// WithSource returns a copy of f using fn to create one source per policy.
func WithSource(f Factory, fn func() rand.Source) Factory {
	f.source = fn
	return f
}

// New validates associativity and creates a fresh policy of the given kind.
func (f Factory) New(kind Kind, associativity int) (Policy, error) {
	if associativity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrAssociativity, associativity)
	}
	switch kind {
	case Random:
		src := f.source
		if src == nil {
			src = func() rand.Source { return rand.NewSource(0) }
		}
		return &RandomPolicy{ways: associativity, source: src, rnd: rand.New(src())}, nil
	case FIFO:
		p := &FIFOPolicy{ways: associativity}
		p.Reset()
		return p, nil
	case LRU:
		p := &LRUPolicy{stamps: make([]uint64, associativity)}
		p.Reset()
		return p, nil
	case PLRU:
		if associativity > MaxPLRUAssociativity {
			return nil, fmt.Errorf("%w: PLRU supports at most %d lines, got %d", ErrAssociativity, MaxPLRUAssociativity, associativity)
		}
		p := &PLRUPolicy{ways: associativity}
		p.Reset()
		return p, nil
	}
	return nil, fmt.Errorf("unknown replacement policy %s", kind)
}

func checkLine(i, ways int) error {
	if i < 0 || i >= ways {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrUntrackedLine, i, ways)
	}
	return nil
}

// RandomPolicy chooses a uniform victim on every miss. It counts its draws
// so that a copy can continue the same stream.
type RandomPolicy struct {
	ways   int
	source func() rand.Source
	rnd    *rand.Rand
	draws  int
}

func (p *RandomPolicy) Kind() Kind         { return Random }
func (p *RandomPolicy) Associativity() int { return p.ways }
func (p *RandomPolicy) AccessLine(i int) error {
	return checkLine(i, p.ways)
}
func (p *RandomPolicy) Reset()            {}
func (*RandomPolicy) policy()             {}

func (p *RandomPolicy) ChooseVictim() int {
	p.draws++
	return p.rnd.Intn(p.ways)
}

// Clone replays the draws of p on a fresh source; p is left untouched.
func (p *RandomPolicy) Clone() Policy {
	c := &RandomPolicy{ways: p.ways, source: p.source, rnd: rand.New(p.source())}
	for c.draws < p.draws {
		c.ChooseVictim()
	}
	return c
}

// FIFOPolicy evicts in insertion order. Accessing a line moves it to the back.
type FIFOPolicy struct {
	ways  int
	queue []int
}

func (p *FIFOPolicy) Kind() Kind         { return FIFO }
func (p *FIFOPolicy) Associativity() int { return p.ways }
func (*FIFOPolicy) policy()              {}

func (p *FIFOPolicy) AccessLine(i int) error {
	for pos, line := range p.queue {
		if line == i {
			p.queue = append(p.queue[:pos], p.queue[pos+1:]...)
			p.queue = append(p.queue, i)
			return nil
		}
	}
	return fmt.Errorf("%w: %d", ErrUntrackedLine, i)
}

func (p *FIFOPolicy) ChooseVictim() int {
	return p.queue[0]
}

func (p *FIFOPolicy) Reset() {
	p.queue = make([]int, p.ways)
	for i := range p.queue {
		p.queue[i] = i
	}
}

func (p *FIFOPolicy) Clone() Policy {
	return &FIFOPolicy{ways: p.ways, queue: append([]int(nil), p.queue...)}
}

// LRUPolicy evicts the line with the oldest logical timestamp.
type LRUPolicy struct {
	stamps []uint64
	clock  uint64
}

func (p *LRUPolicy) Kind() Kind         { return LRU }
func (p *LRUPolicy) Associativity() int { return len(p.stamps) }
func (*LRUPolicy) policy()              {}

func (p *LRUPolicy) AccessLine(i int) error {
	if err := checkLine(i, len(p.stamps)); err != nil {
		return err
	}
	p.clock++
	p.stamps[i] = p.clock
	return nil
}

func (p *LRUPolicy) ChooseVictim() int {
	victim := 0
	for i, stamp := range p.stamps {
		if stamp < p.stamps[victim] {
			victim = i
		}
	}
	return victim
}

func (p *LRUPolicy) Reset() {
	for i := range p.stamps {
		p.stamps[i] = 0
	}
	p.clock = 0
}

func (p *LRUPolicy) Clone() Policy {
	return &LRUPolicy{stamps: append([]uint64(nil), p.stamps...), clock: p.clock}
}

// PLRUPolicy keeps one recently-used bit per line and the last accessed line.
type PLRUPolicy struct {
	ways int
	bits uint32
	last int
}

func (p *PLRUPolicy) Kind() Kind         { return PLRU }
func (p *PLRUPolicy) Associativity() int { return p.ways }
func (*PLRUPolicy) policy()              {}

// Bits returns the recently-used mask.
func (p *PLRUPolicy) Bits() uint32 { return p.bits }

func (p *PLRUPolicy) AccessLine(i int) error {
	if err := checkLine(i, p.ways); err != nil {
		return err
	}
	mask := uint32(1) << uint(i)
	full := uint32(uint64(1)<<uint(p.ways) - 1)
	p.bits |= mask
	if p.bits == full {
		p.bits = mask
	}
	p.last = i
	return nil
}

func (p *PLRUPolicy) ChooseVictim() int {
	for step := 1; step <= p.ways; step++ {
		i := (p.last + step) % p.ways
		if p.bits&(uint32(1)<<uint(i)) == 0 {
			return i
		}
	}
	return p.last
}

// Reset clears every bit; the next scan starts at line 0.
func (p *PLRUPolicy) Reset() {
	p.bits = 0
	p.last = p.ways - 1
}

func (p *PLRUPolicy) Clone() Policy {
	c := *p
	return &c
}
