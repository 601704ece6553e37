package buffer

import (
	"github.com/Readm/mmu_sim/policy"
)

// Set is an associative set of lines sharing one replacement policy.
type Set[D, A any] struct {
	lines   []*Line[D, A]
	policy  policy.Policy
	matcher Matcher[D, A]
}

// NewSet creates an empty set whose policy is built by factory.
func NewSet[D, A any](ways int, kind policy.Kind, factory policy.Factory, matcher Matcher[D, A]) (*Set[D, A], error) {
	p, err := factory.New(kind, ways)
	if err != nil {
		return nil, err
	}
	s := &Set[D, A]{lines: make([]*Line[D, A], ways), policy: p, matcher: matcher}
	for i := range s.lines {
		s.lines[i] = NewLine(matcher)
	}
	return s, nil
}

// Associativity returns the number of lines.
func (s *Set[D, A]) Associativity() int { return len(s.lines) }

// Policy returns the replacement policy of the set.
func (s *Set[D, A]) Policy() policy.Policy { return s.policy }

// Way returns the line holding addr, or -1. More than one matching line is an
// inconsistency of the matcher.
func (s *Set[D, A]) Way(addr A) (int, error) {
	var hits []int
	for i, l := range s.lines {
		if hit, _ := l.IsHit(addr); hit {
			hits = append(hits, i)
		}
	}
	switch len(hits) {
	case 0:
		return -1, nil
	case 1:
		return hits[0], nil
	}
	return -1, &InconsistencyError{Op: "lookup", Addr: addr, Ways: hits}
}

func (s *Set[D, A]) IsHit(addr A) (bool, error) {
	way, err := s.Way(addr)
	return way >= 0, err
}

// Data reads addr. A hit counts as an access for the policy.
func (s *Set[D, A]) Data(addr A) (D, bool, error) {
	var zero D
	way, err := s.Way(addr)
	if err != nil || way < 0 {
		return zero, false, err
	}
	if err := s.touch(way, addr); err != nil {
		return zero, false, err
	}
	return s.lines[way].data, true, nil
}

// SetData writes addr, allocating a victim line on a miss.
func (s *Set[D, A]) SetData(addr A, data D) (D, bool, error) {
	out, err := s.write(addr, data, true)
	return out.Evicted, out.HasEvicted, err
}

// Access reads addr and fills data on a miss.
func (s *Set[D, A]) Access(addr A, data D) (Outcome[D], error) {
	return s.write(addr, data, false)
}

func (s *Set[D, A]) write(addr A, data D, overwrite bool) (Outcome[D], error) {
	way, err := s.Way(addr)
	if err != nil {
		return Outcome[D]{}, err
	}
	if way >= 0 {
		if overwrite {
			s.lines[way].data = data
		}
		return Outcome[D]{Hit: true, Way: way}, s.touch(way, addr)
	}
	way = s.policy.ChooseVictim()
	out := Outcome[D]{Way: way}
	out.Evicted, out.HasEvicted, _ = s.lines[way].SetData(addr, data)
	return out, s.touch(way, addr)
}

func (s *Set[D, A]) touch(way int, addr A) error {
	if err := s.policy.AccessLine(way); err != nil {
		return &InconsistencyError{Op: "access", Addr: addr, Err: err}
	}
	return nil
}

// Entries returns the valid entries by way.
func (s *Set[D, A]) Entries() map[int]D {
	out := make(map[int]D)
	for i, l := range s.lines {
		if l.valid {
			out[i] = l.data
		}
	}
	return out
}

// Reset empties every line and resets the policy.
func (s *Set[D, A]) Reset() {
	for _, l := range s.lines {
		l.Invalidate()
	}
	s.policy.Reset()
}

// SetSnapshot is the saved state of a set.
type SetSnapshot[D any] struct {
	data   []D
	valid  []bool
	policy policy.Policy
}

// Snapshot saves the lines and the policy state.
func (s *Set[D, A]) Snapshot() SetSnapshot[D] {
	snap := SetSnapshot[D]{
		data:   make([]D, len(s.lines)),
		valid:  make([]bool, len(s.lines)),
		policy: s.policy.Clone(),
	}
	for i, l := range s.lines {
		snap.data[i], snap.valid[i] = l.data, l.valid
	}
	return snap
}

// Restore returns the set to a snapshot taken from it.
func (s *Set[D, A]) Restore(snap SetSnapshot[D]) {
	for i, l := range s.lines {
		l.data, l.valid = snap.data[i], snap.valid[i]
	}
	s.policy = snap.policy.Clone()
}
