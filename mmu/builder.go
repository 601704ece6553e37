package mmu

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/Readm/mmu_sim/integer"
	"github.com/Readm/mmu_sim/policy"
)

// BufferConfig is the textual description of a buffer. Field expressions use
// the template syntax, e.g. "pa[11:6]".
type BufferConfig struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	Ways        int    `json:"ways"`
	Sets        uint64 `json:"sets"`
	Policy      string `json:"policy"`
	Replaceable bool   `json:"replaceable"`
	Parent      string `json:"parent,omitempty"`
	Tag         string `json:"tag"`
	Index       string `json:"index,omitempty"`
	Offset      string `json:"offset,omitempty"`
}

// Builder collects declarations; Build validates them all at once.
type Builder struct {
	vars      []integer.Variable
	addresses []addressDecl
	buffers   []BufferConfig
}

type addressDecl struct {
	name     string
	variable string
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Variable declares an address variable.
func (b *Builder) Variable(name string, width int) *Builder {
	b.vars = append(b.vars, integer.Variable{Name: name, Width: width})
	return b
}

// Address declares an address family over a variable.
func (b *Builder) Address(name, variable string) *Builder {
	b.addresses = append(b.addresses, addressDecl{name: name, variable: variable})
	return b
}

// Buffer declares a buffer.
func (b *Builder) Buffer(cfg BufferConfig) *Builder {
	b.buffers = append(b.buffers, cfg)
	return b
}

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// Build validates the declarations and returns the arena. Every problem
// found is reported in the joined error.
func (b *Builder) Build() (*Spec, error) {
	s := &Spec{
		varByName:     make(map[string]int),
		addressByName: make(map[string]AddressID),
		bufferByName:  make(map[string]BufferID),
	}
	var errs []error

	for _, v := range b.vars {
		if _, err := integer.NewVariable(v.Name, v.Width); err != nil {
			errs = append(errs, configErr("%v", err))
			continue
		}
		if _, dup := s.varByName[v.Name]; dup {
			errs = append(errs, configErr("duplicate variable %q", v.Name))
			continue
		}
		s.varByName[v.Name] = len(s.vars)
		s.vars = append(s.vars, v)
	}

	for _, a := range b.addresses {
		if _, dup := s.addressByName[a.name]; dup {
			errs = append(errs, configErr("duplicate address %q", a.name))
			continue
		}
		v, err := s.Variable(a.variable)
		if err != nil {
			errs = append(errs, configErr("address %s: %v", a.name, err))
			continue
		}
		id := AddressID(len(s.addresses))
		s.addressByName[a.name] = id
		s.addresses = append(s.addresses, AddressFamily{ID: id, Name: a.name, Var: v})
	}

	parents := make([]string, 0, len(b.buffers))
	for _, cfg := range b.buffers {
		buf, err := s.buildBuffer(cfg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		buf.ID = BufferID(len(s.buffers))
		s.bufferByName[buf.Name] = buf.ID
		s.buffers = append(s.buffers, buf)
		parents = append(parents, cfg.Parent)
	}

	s.children = make([][]BufferID, len(s.buffers))
	for i, name := range parents {
		if name == "" {
			continue
		}
		parent, ok := s.bufferByName[name]
		if !ok {
			errs = append(errs, configErr("buffer %s: unknown parent %q", s.buffers[i].Name, name))
			continue
		}
		if s.buffers[parent].Address != s.buffers[i].Address {
			errs = append(errs, configErr("buffer %s: parent %s uses another address", s.buffers[i].Name, name))
			continue
		}
		s.buffers[i].Parent = parent
		s.children[parent] = append(s.children[parent], BufferID(i))
	}
	errs = append(errs, s.checkCycles()...)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Spec) buildBuffer(cfg BufferConfig) (BufferSpec, error) {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, configErr("buffer %s: %s", cfg.Name, fmt.Sprintf(format, args...)))
	}
	buf := BufferSpec{Name: cfg.Name, Ways: cfg.Ways, Sets: cfg.Sets, Replaceable: cfg.Replaceable, Parent: NoBuffer}

	if cfg.Name == "" {
		fail("name is empty")
	}
	if _, dup := s.bufferByName[cfg.Name]; dup {
		fail("duplicate buffer")
	}
	addr, err := s.Address(cfg.Address)
	if err != nil {
		fail("%v", err)
	} else {
		buf.Address = addr.ID
	}

	kind, err := policy.ParseKind(cfg.Policy)
	if err != nil {
		fail("%v", err)
	}
	buf.Policy = kind
	if cfg.Ways <= 0 {
		fail("associativity must be positive, got %d", cfg.Ways)
	} else if kind == policy.PLRU && cfg.Ways > policy.MaxPLRUAssociativity {
		fail("PLRU supports at most %d ways, got %d", policy.MaxPLRUAssociativity, cfg.Ways)
	}
	if cfg.Sets == 0 || bits.OnesCount64(cfg.Sets) != 1 {
		fail("sets must be a power of two, got %d", cfg.Sets)
	}

	lookup := func(name string) (integer.Variable, error) {
		if addr != nil && name != addr.Var.Name {
			return integer.Variable{}, fmt.Errorf("field of %q in a buffer of address %s", name, addr.Name)
		}
		return s.Variable(name)
	}
	if cfg.Tag == "" {
		fail("tag field is missing")
	} else if buf.TagField, err = integer.ParseField(cfg.Tag, lookup); err != nil {
		fail("tag: %v", err)
	}
	if cfg.Index != "" {
		if buf.IndexField, err = integer.ParseField(cfg.Index, lookup); err != nil {
			fail("index: %v", err)
		} else if cfg.Sets != 0 && uint64(1)<<uint(buf.IndexField.Width()) != cfg.Sets {
			fail("index %s selects %d sets, not %d", cfg.Index, uint64(1)<<uint(buf.IndexField.Width()), cfg.Sets)
		}
	} else if cfg.Sets > 1 {
		fail("%d sets need an index field", cfg.Sets)
	}
	if cfg.Offset != "" {
		if buf.OffsetField, err = integer.ParseField(cfg.Offset, lookup); err != nil {
			fail("offset: %v", err)
		}
		buf.HasOffset = err == nil
	}
	return buf, errors.Join(errs...)
}

func (s *Spec) checkCycles() []error {
	var errs []error
	for i := range s.buffers {
		seen := map[BufferID]bool{BufferID(i): true}
		for p := s.buffers[i].Parent; p != NoBuffer; p = s.buffers[p].Parent {
			if seen[p] {
				errs = append(errs, configErr("buffer %s: parent chain forms a cycle", s.buffers[i].Name))
				break
			}
			seen[p] = true
		}
	}
	return errs
}
