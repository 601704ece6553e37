package memory

import (
	"fmt"

	"github.com/Readm/mmu_sim/integer"
	"github.com/Readm/mmu_sim/mmu"
)

// HazardType is the relation asserted between two accesses.
type HazardType int

const (
	AddrEqual HazardType = iota
	AddrNotEqual
	IndexEqual
	IndexNotEqual
	TagEqual
	TagNotEqual
	TagReplaced
	TagNotReplaced
)

var hazardNames = [...]string{
	AddrEqual:      "ADDR_EQUAL",
	AddrNotEqual:   "ADDR_NOT_EQUAL",
	IndexEqual:     "INDEX_EQUAL",
	IndexNotEqual:  "INDEX_NOT_EQUAL",
	TagEqual:       "TAG_EQUAL",
	TagNotEqual:    "TAG_NOT_EQUAL",
	TagReplaced:    "TAG_REPLACED",
	TagNotReplaced: "TAG_NOT_REPLACED",
}

func (t HazardType) String() string {
	if t < 0 || int(t) >= len(hazardNames) {
		return fmt.Sprintf("HazardType(%d)", int(t))
	}
	return hazardNames[t]
}

// ParseHazardType accepts the names printed by String.
func ParseHazardType(name string) (HazardType, error) {
	for t, n := range hazardNames {
		if n == name {
			return HazardType(t), nil
		}
	}
	return AddrEqual, fmt.Errorf("unknown hazard %q", name)
}

// IsEquality reports whether the relation is an equivalence or, for
// TAG_REPLACED, a directed relation that must be closed.
func (t HazardType) IsEquality() bool {
	switch t {
	case AddrEqual, IndexEqual, TagEqual, TagReplaced:
		return true
	}
	return false
}

// OnAddress reports whether the type relates address families.
func (t HazardType) OnAddress() bool {
	return t == AddrEqual || t == AddrNotEqual
}

// implies holds the direct implications; Implied closes over them.
var implies = map[HazardType][]HazardType{
	AddrEqual:      {TagEqual},
	TagEqual:       {IndexEqual},
	TagNotEqual:    {IndexEqual},
	TagReplaced:    {IndexEqual},
	TagNotReplaced: {IndexEqual},
}

// Implied returns every hazard type implied by t, transitively, in
// declaration order: ADDR_EQUAL implies TAG_EQUAL, and every tag relation
// places both accesses in the same set.
func (t HazardType) Implied() []HazardType {
	seen := make(map[HazardType]bool)
	stack := append([]HazardType(nil), implies[t]...)
	for len(stack) > 0 {
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[next] {
			continue
		}
		seen[next] = true
		stack = append(stack, implies[next]...)
	}
	out := make([]HazardType, 0, len(seen))
	for u := range hazardNames {
		if seen[HazardType(u)] {
			out = append(out, HazardType(u))
		}
	}
	return out
}

// Implies reports whether t is u or implies it.
func (t HazardType) Implies(u HazardType) bool {
	if t == u {
		return true
	}
	for _, v := range t.Implied() {
		if v == u {
			return true
		}
	}
	return false
}

// Implying returns the hazard types that are t or imply it.
func Implying(t HazardType) []HazardType {
	var out []HazardType
	for u := range hazardNames {
		if HazardType(u).Implies(t) {
			out = append(out, HazardType(u))
		}
	}
	return out
}

// Target is the buffer or address family a hazard refers to.
type Target struct {
	Name    string
	Buffer  mmu.BufferID
	Address mmu.AddressID
}

// BufferTarget refers to a buffer.
func BufferTarget(b *mmu.BufferSpec) Target {
	return Target{Name: b.Name, Buffer: b.ID, Address: b.Address}
}

// AddressTarget refers to an address family.
func AddressTarget(a *mmu.AddressFamily) Target {
	return Target{Name: a.Name, Buffer: mmu.NoBuffer, Address: a.ID}
}

// IsBuffer reports whether the target is a buffer.
func (t Target) IsBuffer() bool { return t.Buffer != mmu.NoBuffer }

// Hazard is a typed relation over one target.
type Hazard struct {
	Type   HazardType
	Target Target
}

// NewBufferHazard validates that t applies to buffers.
func NewBufferHazard(t HazardType, b *mmu.BufferSpec) (Hazard, error) {
	if t.OnAddress() {
		return Hazard{}, fmt.Errorf("hazard %s does not apply to buffer %s", t, b.Name)
	}
	if (t == TagReplaced || t == TagNotReplaced) && !b.Replaceable {
		return Hazard{}, fmt.Errorf("hazard %s needs a replaceable buffer, %s is not", t, b.Name)
	}
	if t == IndexNotEqual && !b.HasIndex() {
		return Hazard{}, fmt.Errorf("hazard %s needs several sets, %s has one", t, b.Name)
	}
	return Hazard{Type: t, Target: BufferTarget(b)}, nil
}

// NewAddressHazard validates that t applies to address families.
func NewAddressHazard(t HazardType, a *mmu.AddressFamily) (Hazard, error) {
	if !t.OnAddress() {
		return Hazard{}, fmt.Errorf("hazard %s does not apply to address %s", t, a.Name)
	}
	return Hazard{Type: t, Target: AddressTarget(a)}, nil
}

// FullName is "<target>.<TYPE>".
func (h Hazard) FullName() string {
	return h.Target.Name + "." + h.Type.String()
}

func (h Hazard) String() string { return h.FullName() }

// Atom states that a field has (or does not have) the same value in both
// accesses of a pair.
type Atom struct {
	Field integer.Field
	Equal bool
}

func (a Atom) String() string {
	if a.Equal {
		return a.Field.String() + "=="
	}
	return a.Field.String() + "!="
}

// Condition returns the field relations the hazard imposes, joined by AND.
// The index is compared only when the buffer has several sets.
func (h Hazard) Condition(spec *mmu.Spec) []Atom {
	if !h.Target.IsBuffer() {
		field := spec.AddressByID(h.Target.Address).Var.Field()
		return []Atom{{Field: field, Equal: h.Type == AddrEqual}}
	}
	b := spec.BufferByID(h.Target.Buffer)
	var atoms []Atom
	switch h.Type {
	case IndexEqual:
		if b.HasIndex() {
			atoms = append(atoms, Atom{Field: b.IndexField, Equal: true})
		}
	case IndexNotEqual:
		if b.HasIndex() {
			atoms = append(atoms, Atom{Field: b.IndexField, Equal: false})
		}
	case TagEqual, TagNotEqual, TagReplaced, TagNotReplaced:
		if b.HasIndex() {
			atoms = append(atoms, Atom{Field: b.IndexField, Equal: true})
		}
		atoms = append(atoms, Atom{Field: b.TagField, Equal: h.Type == TagEqual})
	}
	return atoms
}
