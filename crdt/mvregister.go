package crdt

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/hivemindlabs/hivemind-go-sdk/clock"
)

// MVEntry is one surviving write in a multi-value register.
type MVEntry[T any] struct {
	Value T                 `json:"value"`
	Clock clock.VectorClock `json:"clock"`
}

// MVRegister keeps every write not causally dominated by another. A
// causally newer write replaces the writes it dominates; concurrent
// writes all survive and are surfaced together. The register never picks
// a winner among concurrent values - that resolution belongs to the
// caller, which can apply domain policy (newest wall clock, ask a human).
type MVRegister[T any] struct {
	entries []MVEntry[T]
}

// NewMVRegister returns an empty register.
func NewMVRegister[T any]() MVRegister[T] {
	return MVRegister[T]{}
}

// Set returns the register after a write stamped with the given clock.
// The write replaces every entry it dominates and is discarded if an
// existing entry dominates or equals it.
func (r MVRegister[T]) Set(value T, vc clock.VectorClock) MVRegister[T] {
	candidate := MVEntry[T]{Value: value, Clock: vc.Clone()}
	kept := make([]MVEntry[T], 0, len(r.entries)+1)
	for _, e := range r.entries {
		switch vc.Compare(e.Clock) {
		case clock.Before, clock.Equal:
			// Dominated (or duplicate) write: keep state as is.
			return r
		case clock.After:
			// Existing entry is superseded.
		default:
			kept = append(kept, e)
		}
	}
	kept = append(kept, candidate)
	return MVRegister[T]{entries: canonical(kept)}
}

// Values returns every surviving value. More than one value means the
// writes were concurrent and the caller must resolve.
func (r MVRegister[T]) Values() []T {
	out := make([]T, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Value
	}
	return out
}

// Entries returns the surviving writes with their clocks.
func (r MVRegister[T]) Entries() []MVEntry[T] {
	return slices.Clone(r.entries)
}

// Conflicted reports whether concurrent writes are awaiting resolution.
func (r MVRegister[T]) Conflicted() bool {
	return len(r.entries) > 1
}

// Merge combines both registers, keeping only entries no entry from
// either side dominates.
func (r MVRegister[T]) Merge(other MVRegister[T]) MVRegister[T] {
	combined := append(slices.Clone(r.entries), other.entries...)
	var kept []MVEntry[T]
	for i, e := range combined {
		dominated := false
		for j, o := range combined {
			if i == j {
				continue
			}
			switch e.Clock.Compare(o.Clock) {
			case clock.Before:
				dominated = true
			case clock.Equal:
				// Keep a single copy of duplicated writes.
				if j < i && reflect.DeepEqual(e.Value, o.Value) {
					dominated = true
				}
			}
			if dominated {
				break
			}
		}
		if !dominated {
			kept = append(kept, e)
		}
	}
	return MVRegister[T]{entries: canonical(kept)}
}

// canonical sorts entries by clock coordinates (then value rendering) so
// identical registers produced by different merge orders are deeply equal
// and serialize byte-identically.
func canonical[T any](entries []MVEntry[T]) []MVEntry[T] {
	slices.SortFunc(entries, func(a, b MVEntry[T]) int {
		return strings.Compare(entryKey(a), entryKey(b))
	})
	return entries
}

func entryKey[T any](e MVEntry[T]) string {
	nodes := make([]string, 0, len(e.Clock))
	for node := range e.Clock {
		nodes = append(nodes, string(node))
	}
	slices.Sort(nodes)
	var b strings.Builder
	for _, node := range nodes {
		fmt.Fprintf(&b, "%s=%d;", node, e.Clock[clock.NodeID(node)])
	}
	fmt.Fprintf(&b, "|%v", e.Value)
	return b.String()
}

// MarshalJSON implements json.Marshaler.
func (r MVRegister[T]) MarshalJSON() ([]byte, error) {
	if r.entries == nil {
		return json.Marshal([]MVEntry[T]{})
	}
	return json.Marshal(r.entries)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *MVRegister[T]) UnmarshalJSON(data []byte) error {
	var entries []MVEntry[T]
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	if len(entries) == 0 {
		entries = nil
	}
	r.entries = canonical(entries)
	return nil
}
