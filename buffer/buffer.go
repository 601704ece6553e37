// Package buffer models hit/miss-testable storage: single lines, associative
// sets with a replacement policy and sparse set-indexed caches.
package buffer

import (
	"errors"
	"fmt"
)

// Buffer is the contract consumed by anything replaying accesses against
// modeled memory.
type Buffer[D, A any] interface {
	IsHit(addr A) (bool, error)
	// Data returns the stored data for addr; ok is false on a miss.
	Data(addr A) (data D, ok bool, err error)
	// SetData stores data for addr and returns the evicted occupant, if any.
	SetData(addr A, data D) (evicted D, ok bool, err error)
}

// Matcher decides whether stored data belongs to an address.
type Matcher[D, A any] interface {
	AreMatching(data D, addr A) bool
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc[D, A any] func(data D, addr A) bool

func (f MatcherFunc[D, A]) AreMatching(data D, addr A) bool { return f(data, addr) }

// Indexer computes the set index of an address.
type Indexer[A any] interface {
	Index(addr A) uint64
}

// IndexerFunc adapts a function to Indexer.
type IndexerFunc[A any] func(addr A) uint64

func (f IndexerFunc[A]) Index(addr A) uint64 { return f(addr) }

// ErrInconsistent marks a violated cache model invariant. It is fatal and is
// never retried.
var ErrInconsistent = errors.New("structural inconsistency")

// InconsistencyError reports which set and lines broke the invariant.
type InconsistencyError struct {
	Op   string
	Addr any
	Ways []int
	Err  error
}

func (e *InconsistencyError) Error() string {
	msg := fmt.Sprintf("%s: %s of %v", ErrInconsistent, e.Op, e.Addr)
	if len(e.Ways) > 0 {
		msg += fmt.Sprintf(" hits lines %v", e.Ways)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InconsistencyError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInconsistent}
	}
	return []error{ErrInconsistent, e.Err}
}

// Outcome describes one access: whether it hit, where the data lives and
// what it replaced.
type Outcome[D any] struct {
	Hit        bool
	Set        uint64
	Way        int
	Evicted    D
	HasEvicted bool
}

func (o Outcome[D]) String() string {
	event := "MISS"
	if o.Hit {
		event = "HIT"
	}
	if o.HasEvicted {
		return fmt.Sprintf("%s set=%d way=%d evict=%v", event, o.Set, o.Way, o.Evicted)
	}
	return fmt.Sprintf("%s set=%d way=%d", event, o.Set, o.Way)
}
