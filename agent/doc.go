// Package agent provides the per-agent experience aggregates exchanged
// between instances: a skill accumulator whose proficiencies only improve,
// a bounded episode log ranked by importance, and the composite AgentState
// that binds both to a vector clock.
//
// AgentState is the unit two instances actually exchange. Each local
// mutation (Tick, UpdateSkill, AddEpisode) advances the instance's own
// vector-clock coordinate, so every observable change is causally stamped.
// Merge is commutative, associative, and idempotent: any set of instances
// that eventually exchange state converge to identical bytes regardless of
// delivery order or repetition.
//
// All types are immutable values; see the package-level note in crdt.
// A long-lived AgentState held by one process is still replaced over time
// (local ops, merges with remote snapshots) - serialize those writers with
// a mutex or a single owning goroutine.
package agent
