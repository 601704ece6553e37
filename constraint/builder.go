package constraint

import (
	"errors"
	"fmt"

	"github.com/Readm/mmu_sim/integer"
	"github.com/Readm/mmu_sim/memory"
	"github.com/Readm/mmu_sim/mmu"
	"github.com/Readm/mmu_sim/solver"
)

// Builder resolves constraints given by name against a subsystem.
type Builder struct {
	spec      *mmu.Spec
	variables []VariableConstraint
	events    []BufferEventConstraint
	errs      []error
}

// NewBuilder creates a builder for spec.
func NewBuilder(spec *mmu.Spec) *Builder {
	return &Builder{spec: spec}
}

// Variable constrains a field, given as "va" or "va[11:0]", of one access
// (or AllAccesses).
func (b *Builder) Variable(access int, field string, d integer.Distribution, bias int) *Builder {
	if access < AllAccesses {
		b.errs = append(b.errs, fmt.Errorf("constraint on %s: invalid access %d", field, access))
		return b
	}
	if d == nil {
		b.errs = append(b.errs, fmt.Errorf("constraint on %s: no distribution", field))
		return b
	}
	f, err := integer.ParseField(field, b.spec.Variable)
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("constraint on %s: %w", field, err))
		return b
	}
	bb, err := solver.NewBias(bias)
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("constraint on %s: %w", field, err))
		return b
	}
	if d.Domain().IsEmpty() {
		b.errs = append(b.errs, fmt.Errorf("constraint on %s: empty distribution", field))
		return b
	}
	b.variables = append(b.variables, VariableConstraint{Access: access, Field: f, Distribution: d, Bias: bb})
	return b
}

// Events restricts the events of a buffer, given by name.
func (b *Builder) Events(buffer string, events ...string) *Builder {
	buf, err := b.spec.Buffer(buffer)
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	c := BufferEventConstraint{Buffer: buf.ID}
	for _, name := range events {
		e, err := memory.ParseEvent(name)
		if err != nil {
			b.errs = append(b.errs, fmt.Errorf("events of %s: %w", buffer, err))
			continue
		}
		c.Events = append(c.Events, e)
	}
	if len(c.Events) == 0 {
		b.errs = append(b.errs, fmt.Errorf("events of %s: none allowed", buffer))
		return b
	}
	b.events = append(b.events, c)
	return b
}

// Build returns the constraint set or every resolution error joined.
func (b *Builder) Build() (*Set, error) {
	if err := errors.Join(b.errs...); err != nil {
		return nil, err
	}
	s := &Set{spec: b.spec, variables: solver.NewBiasedConstraints[VariableConstraint]()}
	for _, c := range b.variables {
		s.variables.Add(c.Bias, c)
	}
	s.events = append(s.events, b.events...)
	return s, nil
}
