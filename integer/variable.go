package integer

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
)

// ErrMalformedField is returned for bit ranges outside the variable.
var ErrMalformedField = errors.New("malformed bit field")

// Variable is a named integer of a fixed bit width. Equality is by name.
type Variable struct {
	Name  string
	Width int
}

// NewVariable validates the width.
func NewVariable(name string, width int) (Variable, error) {
	if name == "" {
		return Variable{}, errors.New("variable name cannot be empty")
	}
	if width <= 0 {
		return Variable{}, fmt.Errorf("variable %s: width must be positive, got %d", name, width)
	}
	return Variable{Name: name, Width: width}, nil
}

// Domain returns the full value domain of the variable.
func (v Variable) Domain() *Domain {
	return NewWidthDomain(v.Width)
}

// Field returns the whole variable as a field.
func (v Variable) Field() Field {
	return Field{Var: v, Lo: 0, Hi: v.Width - 1}
}

func (v Variable) String() string {
	return v.Name
}

// Field is the bit range [Lo, Hi] of a variable.
type Field struct {
	Var Variable
	Lo  int
	Hi  int
}

// NewField validates 0 <= lo <= hi < width.
func NewField(v Variable, lo, hi int) (Field, error) {
	if lo < 0 || hi < lo || hi >= v.Width {
		return Field{}, fmt.Errorf("%w: %s[%d:%d] with width %d", ErrMalformedField, v.Name, hi, lo, v.Width)
	}
	return Field{Var: v, Lo: lo, Hi: hi}, nil
}

// Width returns hi - lo + 1.
func (f Field) Width() int {
	return f.Hi - f.Lo + 1
}

// Bits returns the bit range as an integer range.
func (f Field) Bits() Range {
	return MustRange(int64(f.Lo), int64(f.Hi))
}

// Extract returns the field bits of value.
func (f Field) Extract(value *big.Int) *big.Int {
	mask := new(big.Int).Lsh(one, uint(f.Width()))
	mask.Sub(mask, one)
	out := new(big.Int).Rsh(value, uint(f.Lo))
	return out.And(out, mask)
}

// Insert returns value with the field bits replaced by bits.
func (f Field) Insert(value, bits *big.Int) *big.Int {
	mask := new(big.Int).Lsh(one, uint(f.Width()))
	mask.Sub(mask, one)
	clean := new(big.Int).Lsh(mask, uint(f.Lo))
	out := new(big.Int).AndNot(value, clean)
	part := new(big.Int).And(bits, mask)
	part.Lsh(part, uint(f.Lo))
	return out.Or(out, part)
}

func (f Field) String() string {
	if f.Lo == 0 && f.Hi == f.Var.Width-1 {
		return f.Var.Name
	}
	return fmt.Sprintf("%s[%d:%d]", f.Var.Name, f.Hi, f.Lo)
}

var fieldPattern = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_.$]*)\s*(?:\[\s*(\d+)\s*(?::\s*(\d+)\s*)?\])?\s*$`)

// ParseField parses "name", "name[bit]" or "name[hi:lo]" and resolves the
// variable with lookup.
func ParseField(text string, lookup func(name string) (Variable, error)) (Field, error) {
	m := fieldPattern.FindStringSubmatch(text)
	if m == nil {
		return Field{}, fmt.Errorf("%w: cannot parse %q", ErrMalformedField, text)
	}
	v, err := lookup(m[1])
	if err != nil {
		return Field{}, err
	}
	if m[2] == "" {
		return v.Field(), nil
	}
	hi, _ := strconv.Atoi(m[2])
	lo := hi
	if m[3] != "" {
		lo, _ = strconv.Atoi(m[3])
	}
	return NewField(v, lo, hi)
}

// FieldTracker keeps the bit ranges of a variable that are not yet used.
type FieldTracker struct {
	variable  Variable
	available *Domain
}

// NewFieldTracker starts with every bit of v available.
func NewFieldTracker(v Variable) *FieldTracker {
	return &FieldTracker{
		variable:  v,
		available: &Domain{ranges: []Range{MustRange(0, int64(v.Width-1))}},
	}
}

// Variable returns the tracked variable.
func (t *FieldTracker) Variable() Variable {
	return t.variable
}

// Exclude marks bits [lo, hi] as used.
func (t *FieldTracker) Exclude(lo, hi int) error {
	if _, err := NewField(t.variable, lo, hi); err != nil {
		return err
	}
	t.available.Exclude(MustRange(int64(lo), int64(hi)))
	return nil
}

// ExcludeField marks the bits of f as used.
func (t *FieldTracker) ExcludeField(f Field) error {
	if f.Var.Name != t.variable.Name {
		return fmt.Errorf("field %s does not belong to %s", f, t.variable.Name)
	}
	return t.Exclude(f.Lo, f.Hi)
}

// Available returns the unused sub-fields in ascending order.
func (t *FieldTracker) Available() []Field {
	fields := make([]Field, 0, len(t.available.ranges))
	for _, r := range t.available.ranges {
		fields = append(fields, Field{Var: t.variable, Lo: int(r.min.Int64()), Hi: int(r.max.Int64())})
	}
	return fields
}

// IsFull reports whether every bit has been excluded.
func (t *FieldTracker) IsFull() bool {
	return t.available.IsEmpty()
}
