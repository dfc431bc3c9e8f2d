// Package clock provides the logical-time primitives used to order events
// across agent instances: Lamport scalar clocks for a causality-consistent
// total order and vector clocks for happens-before detection.
//
// All types are pure values. Mutating operations return a new value and
// never modify the receiver, so callers can safely retain old clocks for
// comparison. The only stateful type is State, which a single instance owns
// to stamp its local events; it is not safe for concurrent use.
//
// Vector clock comparison yields exactly one of Before, After, Concurrent,
// or Equal. Two clocks are Concurrent when each has at least one coordinate
// the other lacks or exceeds - this is the signal that two instances
// diverged and a reconciling merge is needed rather than a fast-forward.
package clock
