package clock

// NodeID identifies a single agent instance in a vector clock.
type NodeID string

// Ordering is the result of comparing two vector clocks.
type Ordering int

const (
	// Before means the receiver causally precedes the other clock.
	Before Ordering = iota
	// After means the receiver causally follows the other clock.
	After
	// Concurrent means neither clock precedes the other.
	Concurrent
	// Equal means every coordinate matches.
	Equal
)

func (o Ordering) String() string {
	switch o {
	case Before:
		return "before"
	case After:
		return "after"
	case Concurrent:
		return "concurrent"
	case Equal:
		return "equal"
	}
	return "unknown"
}

// VectorClock maps each known instance to its local event counter.
// The zero value (nil map) is a valid empty clock.
type VectorClock map[NodeID]uint64

// NewVectorClock returns an empty clock.
func NewVectorClock() VectorClock {
	return VectorClock{}
}

// Get returns the counter for node, zero if the node is unknown.
func (v VectorClock) Get(node NodeID) uint64 {
	return v[node]
}

// Tick returns a copy of the clock with node's counter advanced by one.
func (v VectorClock) Tick(node NodeID) VectorClock {
	next := v.Clone()
	next[node]++
	return next
}

// Merge returns the per-coordinate maximum of both clocks.
func (v VectorClock) Merge(other VectorClock) VectorClock {
	merged := v.Clone()
	for node, count := range other {
		if count > merged[node] {
			merged[node] = count
		}
	}
	return merged
}

// Compare reports the causal relationship between two clocks. Coordinates
// missing from either side count as zero, so clocks over different node
// sets still compare correctly.
func (v VectorClock) Compare(other VectorClock) Ordering {
	less, greater := false, false

	for node, count := range v {
		if oc := other[node]; count < oc {
			less = true
		} else if count > oc {
			greater = true
		}
	}
	for node, count := range other {
		if _, seen := v[node]; !seen && count > 0 {
			less = true
		}
	}

	switch {
	case less && greater:
		return Concurrent
	case less:
		return Before
	case greater:
		return After
	}
	return Equal
}

// Concurrent reports whether neither clock dominates the other.
func (v VectorClock) Concurrent(other VectorClock) bool {
	return v.Compare(other) == Concurrent
}

// Clone returns an independent copy of the clock.
func (v VectorClock) Clone() VectorClock {
	copied := make(VectorClock, len(v))
	for node, count := range v {
		copied[node] = count
	}
	return copied
}
