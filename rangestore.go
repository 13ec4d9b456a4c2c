package cfrealip

import "sync/atomic"

// RangeProvider supplies the range set to use for a single decision.
//
// Implementations must return a complete snapshot; callers hold on to the
// returned value for the whole decision.
type RangeProvider interface {
	Ranges() *RangeSet
}

// RangeProviderFunc adapts a function to the RangeProvider interface.
type RangeProviderFunc func() *RangeSet

// Ranges implements RangeProvider.
func (f RangeProviderFunc) Ranges() *RangeSet {
	if f == nil {
		return Empty()
	}
	return f()
}

// RangeStore publishes range sets to concurrent readers.
//
// Replacement is a single pointer swap: readers see either the previous or the
// new set, never a mix. RangeStore is safe for concurrent use.
type RangeStore struct {
	current atomic.Pointer[RangeSet]
}

// NewRangeStore returns a store holding initial, or Empty() when initial is
// nil.
func NewRangeStore(initial *RangeSet) *RangeStore {
	store := &RangeStore{}
	store.Store(initial)
	return store
}

// Load returns the current set. It never returns nil.
func (s *RangeStore) Load() *RangeSet {
	if s == nil {
		return Empty()
	}
	if set := s.current.Load(); set != nil {
		return set
	}
	return Empty()
}

// Store replaces the current set. A nil set is stored as Empty().
func (s *RangeStore) Store(set *RangeSet) {
	if set == nil {
		set = Empty()
	}
	s.current.Store(set)
}

// Swap replaces the current set and returns the previous one.
func (s *RangeStore) Swap(set *RangeSet) *RangeSet {
	if set == nil {
		set = Empty()
	}
	if old := s.current.Swap(set); old != nil {
		return old
	}
	return Empty()
}

// Ranges implements RangeProvider.
func (s *RangeStore) Ranges() *RangeSet {
	return s.Load()
}
