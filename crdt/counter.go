package crdt

import (
	"encoding/json"

	"github.com/hivemindlabs/hivemind-go-sdk/clock"
)

// GCounter is a grow-only counter: each instance increments its own slot
// and the total is the sum over all slots. Merge takes the per-slot
// maximum, so re-applying stale state never double-counts.
type GCounter struct {
	counts map[clock.NodeID]uint64
}

// NewGCounter returns a zero counter.
func NewGCounter() GCounter {
	return GCounter{counts: map[clock.NodeID]uint64{}}
}

// Increment returns a new counter with node's slot advanced by one.
func (c GCounter) Increment(node clock.NodeID) GCounter {
	return c.IncrementBy(node, 1)
}

// IncrementBy returns a new counter with node's slot advanced by amount.
// Negative amounts return the receiver unchanged; decrements are not a
// thing a grow-only counter can express.
func (c GCounter) IncrementBy(node clock.NodeID, amount int64) GCounter {
	if amount < 0 {
		return c
	}
	next := c.clone()
	next.counts[node] += uint64(amount)
	return next
}

// Value returns the total across all instances.
func (c GCounter) Value() uint64 {
	var total uint64
	for _, n := range c.counts {
		total += n
	}
	return total
}

// NodeValue returns the count contributed by a single instance.
func (c GCounter) NodeValue(node clock.NodeID) uint64 {
	return c.counts[node]
}

// Merge returns the per-slot maximum of both counters.
func (c GCounter) Merge(other GCounter) GCounter {
	merged := c.clone()
	for node, n := range other.counts {
		if n > merged.counts[node] {
			merged.counts[node] = n
		}
	}
	return merged
}

func (c GCounter) clone() GCounter {
	counts := make(map[clock.NodeID]uint64, len(c.counts))
	for node, n := range c.counts {
		counts[node] = n
	}
	return GCounter{counts: counts}
}

type gcounterWire struct {
	Counts map[clock.NodeID]uint64 `json:"counts"`
}

// MarshalJSON implements json.Marshaler.
func (c GCounter) MarshalJSON() ([]byte, error) {
	return json.Marshal(gcounterWire{Counts: c.counts})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *GCounter) UnmarshalJSON(data []byte) error {
	var wire gcounterWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Counts == nil {
		wire.Counts = map[clock.NodeID]uint64{}
	}
	c.counts = wire.Counts
	return nil
}

// PNCounter is a counter supporting both increments and decrements,
// implemented as a pair of grow-only counters.
type PNCounter struct {
	inc GCounter
	dec GCounter
}

// NewPNCounter returns a zero counter.
func NewPNCounter() PNCounter {
	return PNCounter{inc: NewGCounter(), dec: NewGCounter()}
}

// Increment returns a new counter advanced by one for node.
func (c PNCounter) Increment(node clock.NodeID) PNCounter {
	return c.IncrementBy(node, 1)
}

// IncrementBy returns a new counter advanced by amount for node. A
// negative amount is a silent no-op, not an error: negative adjustments
// must go through Decrement so both halves stay grow-only.
func (c PNCounter) IncrementBy(node clock.NodeID, amount int64) PNCounter {
	if amount < 0 {
		return c
	}
	return PNCounter{inc: c.inc.IncrementBy(node, amount), dec: c.dec}
}

// Decrement returns a new counter decreased by one for node.
func (c PNCounter) Decrement(node clock.NodeID) PNCounter {
	return c.DecrementBy(node, 1)
}

// DecrementBy returns a new counter decreased by amount for node.
// Negative amounts are a silent no-op, mirroring IncrementBy.
func (c PNCounter) DecrementBy(node clock.NodeID, amount int64) PNCounter {
	if amount < 0 {
		return c
	}
	return PNCounter{inc: c.inc, dec: c.dec.IncrementBy(node, amount)}
}

// Value returns increments minus decrements across all instances.
func (c PNCounter) Value() int64 {
	return int64(c.inc.Value()) - int64(c.dec.Value())
}

// Merge merges both halves independently.
func (c PNCounter) Merge(other PNCounter) PNCounter {
	return PNCounter{
		inc: c.inc.Merge(other.inc),
		dec: c.dec.Merge(other.dec),
	}
}

type pncounterWire struct {
	Increments GCounter `json:"increments"`
	Decrements GCounter `json:"decrements"`
}

// MarshalJSON implements json.Marshaler.
func (c PNCounter) MarshalJSON() ([]byte, error) {
	return json.Marshal(pncounterWire{Increments: c.inc, Decrements: c.dec})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *PNCounter) UnmarshalJSON(data []byte) error {
	var wire pncounterWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Increments.counts == nil {
		wire.Increments = NewGCounter()
	}
	if wire.Decrements.counts == nil {
		wire.Decrements = NewGCounter()
	}
	c.inc = wire.Increments
	c.dec = wire.Decrements
	return nil
}
