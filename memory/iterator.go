package memory

import (
	"errors"
	"fmt"

	"github.com/Readm/mmu_sim/mmu"
	"github.com/Readm/mmu_sim/solver"
)

// bufferHazards lists the hazard types a pair may assert over b.
func bufferHazards(b *mmu.BufferSpec) []HazardType {
	var types []HazardType
	if b.HasIndex() {
		types = append(types, IndexNotEqual)
	}
	if b.Replaceable {
		types = append(types, TagNotReplaced, TagReplaced)
	} else {
		types = append(types, TagNotEqual)
	}
	return append(types, TagEqual)
}

// HazardChoices enumerates the alternative dependencies of access b on
// access a: one hazard per shared address family and per shared buffer.
// Equal addresses force equal tags in every buffer of the family.
func HazardChoices(spec *mmu.Spec, a, b Access) []*Dependency {
	var shared []*mmu.BufferSpec
	var families []mmu.AddressID
	seen := make(map[mmu.AddressID]bool)
	for _, e := range a.Path.Entries() {
		if !b.Path.Contains(e.Buffer) {
			continue
		}
		buf := spec.BufferByID(e.Buffer)
		shared = append(shared, buf)
		if !seen[buf.Address] {
			seen[buf.Address] = true
			families = append(families, buf.Address)
		}
	}

	choices := []*Dependency{NewDependency()}
	for _, id := range families {
		family := spec.AddressByID(id)
		var next []*Dependency
		for _, d := range choices {
			for _, t := range []HazardType{AddrEqual, AddrNotEqual} {
				h, _ := NewAddressHazard(t, family)
				next = append(next, d.With(h))
			}
		}
		choices = next
	}
	for _, buf := range shared {
		var next []*Dependency
		for _, d := range choices {
			ah, ok := d.Hazard(AddressTarget(spec.AddressByID(buf.Address)))
			addrEqual := ok && ah.Type == AddrEqual
			for _, t := range bufferHazards(buf) {
				if addrEqual && !AddrEqual.Implies(t) {
					continue
				}
				h, err := NewBufferHazard(t, buf)
				if err != nil {
					continue
				}
				next = append(next, d.With(h))
			}
		}
		choices = next
	}
	return choices
}

// StructureIterator enumerates the structures of a fixed access sequence,
// one dependency choice per pair, by mixed-radix index.
type StructureIterator struct {
	spec     *mmu.Spec
	accesses []Access
	pairs    []Pair
	choices  [][]*Dependency
	radices  []int

	total     int
	limit     int
	truncated bool
	next      int
	err       error
}

// NewStructureIterator prepares the choices of every pair. budget bounds the
// number of structures produced.
func NewStructureIterator(spec *mmu.Spec, accesses []Access, budget solver.Budget) (*StructureIterator, error) {
	if spec == nil {
		return nil, errors.New("memory subsystem cannot be nil")
	}
	if len(accesses) == 0 {
		return nil, errors.New("structure needs at least one access")
	}
	it := &StructureIterator{spec: spec, accesses: append([]Access(nil), accesses...)}
	for j := range accesses {
		for i := 0; i < j; i++ {
			it.pairs = append(it.pairs, Pair{i, j})
			c := HazardChoices(spec, accesses[i], accesses[j])
			it.choices = append(it.choices, c)
			it.radices = append(it.radices, len(c))
		}
	}
	total, fits := solver.NumberOfVariants(it.radices)
	it.total = total
	it.limit, it.truncated = budget.Limit(total)
	it.truncated = it.truncated || !fits
	return it, nil
}

// Total returns the number of structures and whether it fits into an int.
func (it *StructureIterator) Total() int { return it.total }

// Limit returns how many structures the budget allows.
func (it *StructureIterator) Limit() int { return it.limit }

// Truncated reports whether the budget cuts the enumeration.
func (it *StructureIterator) Truncated() bool { return it.truncated }

// Structure builds the structure of an index in [0, Total()).
func (it *StructureIterator) Structure(index int) (*Structure, error) {
	if index < 0 || index >= it.total {
		return nil, fmt.Errorf("structure %d outside [0,%d)", index, it.total)
	}
	deps := make(map[Pair]*Dependency, len(it.pairs))
	for k, choice := range solver.Variant(index, it.radices) {
		deps[it.pairs[k]] = it.choices[k][choice]
	}
	s, err := NewStructure(it.spec, it.accesses, deps)
	if err != nil {
		return nil, fmt.Errorf("structure %d: %w", index, err)
	}
	return s, nil
}

// Next returns the next structure within the budget. It returns false at
// the end or on the first failure, which Err reports.
func (it *StructureIterator) Next() (*Structure, int, bool) {
	if it.err != nil || it.next >= it.limit {
		return nil, it.next, false
	}
	index := it.next
	it.next++
	s, err := it.Structure(index)
	if err != nil {
		it.err = err
		return nil, index, false
	}
	return s, index, true
}

// Err returns the failure that stopped Next, if any.
func (it *StructureIterator) Err() error { return it.err }

// Reset restarts the enumeration.
func (it *StructureIterator) Reset() { it.next, it.err = 0, nil }
