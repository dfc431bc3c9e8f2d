package clock

import "time"

// LogicalTime is the full causal stamp attached to a single event: a
// Lamport scalar for total ordering, a vector clock for happens-before
// detection, and a wall-clock reading for human consumption only.
type LogicalTime struct {
	Lamport    uint64      `json:"lamport"`
	Vector     VectorClock `json:"vector"`
	WallClock  int64       `json:"wallClock"`
	OriginNode NodeID      `json:"originNode"`
}

// HappenedBefore reports whether t causally precedes other.
func (t LogicalTime) HappenedBefore(other LogicalTime) bool {
	return t.Vector.Compare(other.Vector) == Before
}

// Merge combines two stamps: per-coordinate vector maximum and the larger
// Lamport value. The origin node and wall clock of the receiver are kept.
func (t LogicalTime) Merge(other LogicalTime) LogicalTime {
	merged := t
	merged.Vector = t.Vector.Merge(other.Vector)
	if other.Lamport > merged.Lamport {
		merged.Lamport = other.Lamport
	}
	if other.WallClock > merged.WallClock {
		merged.WallClock = other.WallClock
	}
	return merged
}

// State is the clock state owned by one agent instance. It stamps local
// events and folds in remote stamps. A State belongs to a single writer;
// callers needing concurrent access must serialize externally.
type State struct {
	node    NodeID
	lamport uint64
	vector  VectorClock
}

// NewState creates clock state for the given instance.
func NewState(node NodeID) *State {
	return &State{
		node:   node,
		vector: NewVectorClock(),
	}
}

// Node returns the owning instance's identifier.
func (s *State) Node() NodeID {
	return s.node
}

// Tick records a local event: the instance's own vector coordinate and the
// Lamport scalar both advance, and the resulting stamp is returned.
func (s *State) Tick() LogicalTime {
	s.lamport++
	s.vector = s.vector.Tick(s.node)
	return s.Snapshot()
}

// Observe folds a remote stamp into local state. The Lamport clock jumps
// to max(local, incoming)+1 and the vector merges per-coordinate.
func (s *State) Observe(remote LogicalTime) LogicalTime {
	if remote.Lamport > s.lamport {
		s.lamport = remote.Lamport
	}
	s.lamport++
	s.vector = s.vector.Merge(remote.Vector)
	return s.Snapshot()
}

// Snapshot returns the current stamp without advancing anything.
func (s *State) Snapshot() LogicalTime {
	return LogicalTime{
		Lamport:    s.lamport,
		Vector:     s.vector.Clone(),
		WallClock:  time.Now().UnixMilli(),
		OriginNode: s.node,
	}
}

// Vector returns a copy of the current vector clock.
func (s *State) Vector() VectorClock {
	return s.vector.Clone()
}
