// Package mmu describes a memory subsystem: address variables, address
// families and the buffers indexed by them. Buffers and families live in an
// arena and refer to each other by handle.
package mmu

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/Readm/mmu_sim/integer"
	"github.com/Readm/mmu_sim/policy"
)

// ErrConfig marks an invalid memory subsystem description.
var ErrConfig = errors.New("invalid memory subsystem")

// AddressID is the handle of an address family.
type AddressID int

// BufferID is the handle of a buffer.
type BufferID int

// NoBuffer is the parent of a buffer that is not a view.
const NoBuffer BufferID = -1

// AddressFamily is an address space, e.g. virtual or physical addresses.
type AddressFamily struct {
	ID   AddressID
	Name string
	Var  integer.Variable
}

// BufferSpec describes one buffer. Index is meaningful only when Sets > 1
// and Offset only when HasOffset is set.
type BufferSpec struct {
	ID          BufferID
	Name        string
	Address     AddressID
	Ways        int
	Sets        uint64
	Policy      policy.Kind
	Replaceable bool
	Parent      BufferID
	TagField    integer.Field
	IndexField  integer.Field
	OffsetField integer.Field
	HasOffset   bool
}

// HasIndex reports whether the buffer has more than one set.
func (b *BufferSpec) HasIndex() bool { return b.Sets > 1 }

// IsView reports whether the buffer is a view of a parent buffer.
func (b *BufferSpec) IsView() bool { return b.Parent != NoBuffer }

// Tag returns the tag bits of addr.
func (b *BufferSpec) Tag(addr *big.Int) *big.Int { return b.TagField.Extract(addr) }

// Index returns the set index of addr; zero for single-set buffers.
func (b *BufferSpec) Index(addr *big.Int) *big.Int {
	if !b.HasIndex() {
		return new(big.Int)
	}
	return b.IndexField.Extract(addr)
}

// Offset returns the offset bits of addr.
func (b *BufferSpec) Offset(addr *big.Int) *big.Int {
	if !b.HasOffset {
		return new(big.Int)
	}
	return b.OffsetField.Extract(addr)
}

func (b *BufferSpec) String() string {
	return b.Name
}

// Spec is the arena of a memory subsystem. It is immutable once built.
type Spec struct {
	vars      []integer.Variable
	addresses []AddressFamily
	buffers   []BufferSpec
	children  [][]BufferID

	varByName     map[string]int
	addressByName map[string]AddressID
	bufferByName  map[string]BufferID
}

// Variables returns the declared variables in declaration order.
func (s *Spec) Variables() []integer.Variable {
	return append([]integer.Variable(nil), s.vars...)
}

// Variable looks a variable up by name.
func (s *Spec) Variable(name string) (integer.Variable, error) {
	i, ok := s.varByName[name]
	if !ok {
		return integer.Variable{}, fmt.Errorf("unknown variable %q", name)
	}
	return s.vars[i], nil
}

// Addresses returns the address families in declaration order.
func (s *Spec) Addresses() []AddressFamily {
	return append([]AddressFamily(nil), s.addresses...)
}

// Address looks an address family up by name.
func (s *Spec) Address(name string) (*AddressFamily, error) {
	id, ok := s.addressByName[name]
	if !ok {
		return nil, fmt.Errorf("unknown address %q", name)
	}
	return &s.addresses[id], nil
}

// AddressByID resolves a handle.
func (s *Spec) AddressByID(id AddressID) *AddressFamily {
	return &s.addresses[id]
}

// Buffers returns the buffer handles in declaration order.
func (s *Spec) Buffers() []BufferID {
	ids := make([]BufferID, len(s.buffers))
	for i := range s.buffers {
		ids[i] = BufferID(i)
	}
	return ids
}

// Buffer looks a buffer up by name.
func (s *Spec) Buffer(name string) (*BufferSpec, error) {
	id, ok := s.bufferByName[name]
	if !ok {
		return nil, fmt.Errorf("unknown buffer %q", name)
	}
	return &s.buffers[id], nil
}

// BufferByID resolves a handle.
func (s *Spec) BufferByID(id BufferID) *BufferSpec {
	return &s.buffers[id]
}

// Children returns the views whose parent is id.
func (s *Spec) Children(id BufferID) []BufferID {
	return append([]BufferID(nil), s.children[id]...)
}

// BuffersOf returns the buffers indexed by an address family.
func (s *Spec) BuffersOf(id AddressID) []BufferID {
	var out []BufferID
	for i := range s.buffers {
		if s.buffers[i].Address == id {
			out = append(out, BufferID(i))
		}
	}
	return out
}

func (s *Spec) String() string {
	var sb strings.Builder
	for _, a := range s.addresses {
		fmt.Fprintf(&sb, "address %s: %s\n", a.Name, a.Var)
	}
	for i := range s.buffers {
		b := &s.buffers[i]
		fmt.Fprintf(&sb, "buffer %s: %s ways=%d sets=%d policy=%s replaceable=%t tag=%s",
			b.Name, s.addresses[b.Address].Name, b.Ways, b.Sets, b.Policy, b.Replaceable, b.TagField)
		if b.HasIndex() {
			fmt.Fprintf(&sb, " index=%s", b.IndexField)
		}
		if b.HasOffset {
			fmt.Fprintf(&sb, " offset=%s", b.OffsetField)
		}
		if b.IsView() {
			fmt.Fprintf(&sb, " parent=%s", s.buffers[b.Parent].Name)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
