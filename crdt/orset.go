package crdt

import (
	"cmp"
	"encoding/json"
	"slices"

	"github.com/google/uuid"
)

// ORSet is an observed-remove set. Every add attaches a unique tag to the
// element; a remove tombstones only the tags observed at removal time.
// A later add mints a fresh tag no tombstone covers, so remove-then-add
// restores visibility - the behavior TwoPhaseSet deliberately forbids.
type ORSet[T cmp.Ordered] struct {
	tags       map[T]map[string]struct{}
	tombstones map[string]struct{}
}

// NewORSet returns an empty set.
func NewORSet[T cmp.Ordered]() ORSet[T] {
	return ORSet[T]{
		tags:       map[T]map[string]struct{}{},
		tombstones: map[string]struct{}{},
	}
}

// Add returns a new set containing elem under a freshly minted tag.
func (s ORSet[T]) Add(elem T) ORSet[T] {
	return s.AddTagged(elem, uuid.NewString())
}

// AddTagged returns a new set containing elem under the given tag.
// Callers normally use Add; explicit tags exist for replaying recorded
// operations. An already-tombstoned tag stays dead.
func (s ORSet[T]) AddTagged(elem T, tag string) ORSet[T] {
	if _, dead := s.tombstones[tag]; dead {
		return s
	}
	next := s.clone()
	live, ok := next.tags[elem]
	if !ok {
		live = map[string]struct{}{}
		next.tags[elem] = live
	}
	live[tag] = struct{}{}
	return next
}

// Remove returns a new set with every currently observed tag of elem
// tombstoned. Tags added concurrently elsewhere are unaffected and will
// keep the element alive after a merge.
func (s ORSet[T]) Remove(elem T) ORSet[T] {
	live, ok := s.tags[elem]
	if !ok {
		return s
	}
	next := s.clone()
	for tag := range live {
		next.tombstones[tag] = struct{}{}
	}
	delete(next.tags, elem)
	return next
}

// Contains reports whether elem has at least one live tag.
func (s ORSet[T]) Contains(elem T) bool {
	return len(s.tags[elem]) > 0
}

// Elements returns the visible members in sorted order.
func (s ORSet[T]) Elements() []T {
	out := make([]T, 0, len(s.tags))
	for e, live := range s.tags {
		if len(live) > 0 {
			out = append(out, e)
		}
	}
	slices.Sort(out)
	return out
}

// Len returns the number of visible elements.
func (s ORSet[T]) Len() int {
	return len(s.Elements())
}

// Tags returns the live tags for elem, sorted. Used when recording a
// removal for replay on another instance.
func (s ORSet[T]) Tags(elem T) []string {
	live := s.tags[elem]
	out := make([]string, 0, len(live))
	for tag := range live {
		out = append(out, tag)
	}
	slices.Sort(out)
	return out
}

// Merge unions live tags and tombstones from both sets, then strips any
// tag a tombstone covers.
func (s ORSet[T]) Merge(other ORSet[T]) ORSet[T] {
	merged := s.clone()
	for e, live := range other.tags {
		dst, ok := merged.tags[e]
		if !ok {
			dst = map[string]struct{}{}
			merged.tags[e] = dst
		}
		for tag := range live {
			dst[tag] = struct{}{}
		}
	}
	for tag := range other.tombstones {
		merged.tombstones[tag] = struct{}{}
	}
	for e, live := range merged.tags {
		for tag := range live {
			if _, dead := merged.tombstones[tag]; dead {
				delete(live, tag)
			}
		}
		if len(live) == 0 {
			delete(merged.tags, e)
		}
	}
	return merged
}

func (s ORSet[T]) clone() ORSet[T] {
	tags := make(map[T]map[string]struct{}, len(s.tags))
	for e, live := range s.tags {
		copied := make(map[string]struct{}, len(live))
		for tag := range live {
			copied[tag] = struct{}{}
		}
		tags[e] = copied
	}
	tombstones := make(map[string]struct{}, len(s.tombstones))
	for tag := range s.tombstones {
		tombstones[tag] = struct{}{}
	}
	return ORSet[T]{tags: tags, tombstones: tombstones}
}

type orsetElementWire[T cmp.Ordered] struct {
	Value T        `json:"value"`
	Tags  []string `json:"tags"`
}

type orsetWire[T cmp.Ordered] struct {
	Elements   []orsetElementWire[T] `json:"elements"`
	Tombstones []string              `json:"tombstones"`
}

// MarshalJSON implements json.Marshaler. Elements and tags serialize
// sorted so equal sets are byte-identical.
func (s ORSet[T]) MarshalJSON() ([]byte, error) {
	wire := orsetWire[T]{Tombstones: make([]string, 0, len(s.tombstones))}
	for _, e := range s.Elements() {
		wire.Elements = append(wire.Elements, orsetElementWire[T]{Value: e, Tags: s.Tags(e)})
	}
	for tag := range s.tombstones {
		wire.Tombstones = append(wire.Tombstones, tag)
	}
	slices.Sort(wire.Tombstones)
	return json.Marshal(wire)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *ORSet[T]) UnmarshalJSON(data []byte) error {
	var wire orsetWire[T]
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	restored := NewORSet[T]()
	for _, e := range wire.Elements {
		live := make(map[string]struct{}, len(e.Tags))
		for _, tag := range e.Tags {
			live[tag] = struct{}{}
		}
		restored.tags[e.Value] = live
	}
	for _, tag := range wire.Tombstones {
		restored.tombstones[tag] = struct{}{}
	}
	*s = restored
	return nil
}
