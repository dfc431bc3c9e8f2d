// Package crdt provides conflict-free replicated data types: counters,
// sets, and registers whose Merge operation is commutative, associative,
// and idempotent. Two instances that apply each other's state in any
// order, any number of times, converge to the same value.
//
// Every type is an immutable value: mutators (Add, Remove, Increment,
// Set) return a new value and leave the receiver untouched, so callers
// can keep pre-mutation copies for comparison or rollback. No operation
// requires coordination with other instances.
//
// Set-like types constrain elements to cmp.Ordered so serialized forms
// are canonical (sorted), making equal states byte-identical regardless
// of the order updates or merges arrived in.
//
// Choosing between the set types:
//   - GSet: add-only, the cheapest; use when removal never happens.
//   - TwoPhaseSet: supports removal, but removal is permanent - a removed
//     element can never come back, even if re-added.
//   - LWWElementSet: add/remove decided by timestamps; later write wins.
//   - ORSet: remove-then-add restores visibility; adds are tagged so a
//     concurrent add always survives a remove it wasn't observed by.
//
// MVRegister is the one type that surfaces conflicts instead of resolving
// them: concurrent writes all remain visible until the caller picks one.
package crdt
