package crdt

import (
	"cmp"
	"encoding/json"
	"slices"

	"github.com/hivemindlabs/hivemind-go-sdk/clock"
)

// LWWRegister holds a single value where the latest write wins. Ties on
// timestamp break toward the lexicographically greater node ID, so every
// instance resolves the same winner.
type LWWRegister[T any] struct {
	value     T
	timestamp int64
	node      clock.NodeID
	written   bool
}

// NewLWWRegister returns an empty register.
func NewLWWRegister[T any]() LWWRegister[T] {
	return LWWRegister[T]{}
}

// Set returns the register after applying a write. The write takes effect
// only if it wins against the current value: strictly greater timestamp,
// or equal timestamp from a greater node.
func (r LWWRegister[T]) Set(value T, timestamp int64, node clock.NodeID) LWWRegister[T] {
	candidate := LWWRegister[T]{value: value, timestamp: timestamp, node: node, written: true}
	if candidate.beats(r) {
		return candidate
	}
	return r
}

// Value returns the current value and whether the register was ever set.
func (r LWWRegister[T]) Value() (T, bool) {
	return r.value, r.written
}

// Timestamp returns the winning write's timestamp.
func (r LWWRegister[T]) Timestamp() int64 {
	return r.timestamp
}

// Node returns the winning write's instance.
func (r LWWRegister[T]) Node() clock.NodeID {
	return r.node
}

// Merge returns whichever register holds the winning write.
func (r LWWRegister[T]) Merge(other LWWRegister[T]) LWWRegister[T] {
	if other.beats(r) {
		return other
	}
	return r
}

func (r LWWRegister[T]) beats(other LWWRegister[T]) bool {
	if !r.written {
		return false
	}
	if !other.written {
		return true
	}
	if r.timestamp != other.timestamp {
		return r.timestamp > other.timestamp
	}
	return r.node > other.node
}

type lwwRegisterWire[T any] struct {
	Value     T            `json:"value"`
	Timestamp int64        `json:"timestamp"`
	NodeID    clock.NodeID `json:"nodeId"`
	Written   bool         `json:"written"`
}

// MarshalJSON implements json.Marshaler.
func (r LWWRegister[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(lwwRegisterWire[T]{
		Value:     r.value,
		Timestamp: r.timestamp,
		NodeID:    r.node,
		Written:   r.written,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *LWWRegister[T]) UnmarshalJSON(data []byte) error {
	var wire lwwRegisterWire[T]
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	r.value = wire.Value
	r.timestamp = wire.Timestamp
	r.node = wire.NodeID
	r.written = wire.Written
	return nil
}

type elementTimes struct {
	AddTime    int64
	RemoveTime int64
	Added      bool
	Removed    bool
}

func (t elementTimes) visible() bool {
	if !t.Added {
		return false
	}
	if !t.Removed {
		return true
	}
	return t.AddTime > t.RemoveTime
}

// LWWElementSet decides membership per element by comparing its latest
// add and remove times. An element is visible when it was added and
// either never removed or its add time is strictly greater than its
// remove time; equal times bias toward removal. Presence is tracked
// separately from the timestamps, so an add at time zero still counts.
type LWWElementSet[T cmp.Ordered] struct {
	times map[T]elementTimes
}

// NewLWWElementSet returns an empty set.
func NewLWWElementSet[T cmp.Ordered]() LWWElementSet[T] {
	return LWWElementSet[T]{times: map[T]elementTimes{}}
}

// Add returns a new set recording an add of elem at timestamp. Older
// timestamps than the recorded add are absorbed (max), keeping Add
// idempotent and order-insensitive.
func (s LWWElementSet[T]) Add(elem T, timestamp int64) LWWElementSet[T] {
	next := s.clone()
	t := next.times[elem]
	if !t.Added || timestamp > t.AddTime {
		t.AddTime = timestamp
	}
	t.Added = true
	next.times[elem] = t
	return next
}

// Remove returns a new set recording a removal of elem at timestamp.
func (s LWWElementSet[T]) Remove(elem T, timestamp int64) LWWElementSet[T] {
	next := s.clone()
	t := next.times[elem]
	if !t.Removed || timestamp > t.RemoveTime {
		t.RemoveTime = timestamp
	}
	t.Removed = true
	next.times[elem] = t
	return next
}

// Contains reports whether elem is currently visible.
func (s LWWElementSet[T]) Contains(elem T) bool {
	return s.times[elem].visible()
}

// Elements returns the visible members in sorted order.
func (s LWWElementSet[T]) Elements() []T {
	var out []T
	for e, t := range s.times {
		if t.visible() {
			out = append(out, e)
		}
	}
	slices.Sort(out)
	return out
}

// Merge takes the per-element maximum of add and remove times.
func (s LWWElementSet[T]) Merge(other LWWElementSet[T]) LWWElementSet[T] {
	merged := s.clone()
	for e, ot := range other.times {
		t := merged.times[e]
		if ot.Added && (!t.Added || ot.AddTime > t.AddTime) {
			t.AddTime = ot.AddTime
			t.Added = true
		}
		if ot.Removed && (!t.Removed || ot.RemoveTime > t.RemoveTime) {
			t.RemoveTime = ot.RemoveTime
			t.Removed = true
		}
		merged.times[e] = t
	}
	return merged
}

func (s LWWElementSet[T]) clone() LWWElementSet[T] {
	times := make(map[T]elementTimes, len(s.times))
	for e, t := range s.times {
		times[e] = t
	}
	return LWWElementSet[T]{times: times}
}

type lwwElementWire[T cmp.Ordered] struct {
	Element    T      `json:"element"`
	AddTime    *int64 `json:"addTime,omitempty"`
	RemoveTime *int64 `json:"removeTime,omitempty"`
}

// MarshalJSON implements json.Marshaler. Entries serialize sorted by
// element so equal sets are byte-identical. A time that never happened
// is omitted rather than sent as zero.
func (s LWWElementSet[T]) MarshalJSON() ([]byte, error) {
	entries := make([]lwwElementWire[T], 0, len(s.times))
	for e, t := range s.times {
		w := lwwElementWire[T]{Element: e}
		if t.Added {
			at := t.AddTime
			w.AddTime = &at
		}
		if t.Removed {
			rt := t.RemoveTime
			w.RemoveTime = &rt
		}
		entries = append(entries, w)
	}
	slices.SortFunc(entries, func(a, b lwwElementWire[T]) int {
		return cmp.Compare(a.Element, b.Element)
	})
	return json.Marshal(entries)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *LWWElementSet[T]) UnmarshalJSON(data []byte) error {
	var entries []lwwElementWire[T]
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	times := make(map[T]elementTimes, len(entries))
	for _, e := range entries {
		var t elementTimes
		if e.AddTime != nil {
			t.AddTime = *e.AddTime
			t.Added = true
		}
		if e.RemoveTime != nil {
			t.RemoveTime = *e.RemoveTime
			t.Removed = true
		}
		times[e.Element] = t
	}
	s.times = times
	return nil
}
