package crdt

import (
	"cmp"
	"encoding/json"
	"slices"
)

// GSet is a grow-only set. Elements can be added but never removed;
// merge is set union.
type GSet[T cmp.Ordered] struct {
	elems map[T]struct{}
}

// NewGSet returns an empty set, optionally seeded with elements.
func NewGSet[T cmp.Ordered](elems ...T) GSet[T] {
	s := GSet[T]{elems: make(map[T]struct{}, len(elems))}
	for _, e := range elems {
		s.elems[e] = struct{}{}
	}
	return s
}

// Add returns a new set containing elem.
func (s GSet[T]) Add(elem T) GSet[T] {
	if _, ok := s.elems[elem]; ok {
		return s
	}
	next := s.clone()
	next.elems[elem] = struct{}{}
	return next
}

// Contains reports whether elem is in the set.
func (s GSet[T]) Contains(elem T) bool {
	_, ok := s.elems[elem]
	return ok
}

// Elements returns the members in sorted order.
func (s GSet[T]) Elements() []T {
	out := make([]T, 0, len(s.elems))
	for e := range s.elems {
		out = append(out, e)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of elements.
func (s GSet[T]) Len() int {
	return len(s.elems)
}

// Merge returns the union of both sets.
func (s GSet[T]) Merge(other GSet[T]) GSet[T] {
	merged := s.clone()
	for e := range other.elems {
		merged.elems[e] = struct{}{}
	}
	return merged
}

func (s GSet[T]) clone() GSet[T] {
	elems := make(map[T]struct{}, len(s.elems))
	for e := range s.elems {
		elems[e] = struct{}{}
	}
	return GSet[T]{elems: elems}
}

// MarshalJSON implements json.Marshaler. Elements serialize as a sorted
// array so equal sets are byte-identical.
func (s GSet[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Elements())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *GSet[T]) UnmarshalJSON(data []byte) error {
	var elems []T
	if err := json.Unmarshal(data, &elems); err != nil {
		return err
	}
	*s = NewGSet(elems...)
	return nil
}

// TwoPhaseSet supports removal at the cost of permanence: a removed
// element can never become visible again, even if re-added afterwards or
// concurrently. Use ORSet when remove-then-re-add must work.
type TwoPhaseSet[T cmp.Ordered] struct {
	added   GSet[T]
	removed GSet[T]
}

// NewTwoPhaseSet returns an empty set.
func NewTwoPhaseSet[T cmp.Ordered]() TwoPhaseSet[T] {
	return TwoPhaseSet[T]{added: NewGSet[T](), removed: NewGSet[T]()}
}

// Add returns a new set containing elem. Adding an element that was ever
// removed is a defined no-op on visibility: the removal is permanent.
func (s TwoPhaseSet[T]) Add(elem T) TwoPhaseSet[T] {
	return TwoPhaseSet[T]{added: s.added.Add(elem), removed: s.removed}
}

// Remove returns a new set with elem tombstoned. Removing an element that
// was never added is a no-op.
func (s TwoPhaseSet[T]) Remove(elem T) TwoPhaseSet[T] {
	if !s.added.Contains(elem) {
		return s
	}
	return TwoPhaseSet[T]{added: s.added, removed: s.removed.Add(elem)}
}

// Contains reports whether elem is visible: added and never removed.
func (s TwoPhaseSet[T]) Contains(elem T) bool {
	return s.added.Contains(elem) && !s.removed.Contains(elem)
}

// Elements returns the visible members in sorted order.
func (s TwoPhaseSet[T]) Elements() []T {
	var out []T
	for _, e := range s.added.Elements() {
		if !s.removed.Contains(e) {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of visible elements.
func (s TwoPhaseSet[T]) Len() int {
	return len(s.Elements())
}

// Merge unions both phases independently.
func (s TwoPhaseSet[T]) Merge(other TwoPhaseSet[T]) TwoPhaseSet[T] {
	return TwoPhaseSet[T]{
		added:   s.added.Merge(other.added),
		removed: s.removed.Merge(other.removed),
	}
}

type twoPhaseWire[T cmp.Ordered] struct {
	Added   GSet[T] `json:"added"`
	Removed GSet[T] `json:"removed"`
}

// MarshalJSON implements json.Marshaler.
func (s TwoPhaseSet[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(twoPhaseWire[T]{Added: s.added, Removed: s.removed})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *TwoPhaseSet[T]) UnmarshalJSON(data []byte) error {
	var wire twoPhaseWire[T]
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Added.elems == nil {
		wire.Added = NewGSet[T]()
	}
	if wire.Removed.elems == nil {
		wire.Removed = NewGSet[T]()
	}
	s.added = wire.Added
	s.removed = wire.Removed
	return nil
}
