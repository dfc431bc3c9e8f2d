// Package memory implements fingerprinted, tiered memory entries for
// agent experience.
//
// Every entry is identified by a two-stage SHA-384 fingerprint over its
// content and type metadata, so identical observations made on different
// instances collapse into one entry. Entries live in one of four tiers:
// working (short-lived, TTL-bounded), episodic (summarized experience),
// semantic (converged facts) and procedural (learned procedures).
// Transitions are one-directional; an entry never moves back down.
//
// The Manager owns a single instance's entries and logical clock. It is
// safe for concurrent use. Embedding and similarity search are pluggable
// through the Embedder and Index interfaces; both are optional, and a
// Manager without them simply skips recall by similarity.
package memory
