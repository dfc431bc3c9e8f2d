package memory

import (
	"github.com/hivemindlabs/hivemind-go-sdk/clock"
	"github.com/hivemindlabs/hivemind-go-sdk/crdt"
)

// Entry is a single unit of agent memory. Its ID is the combined
// fingerprint hash, so two instances that record the same observation
// produce the same entry and replication deduplicates for free.
//
// Entry is a value type; mutating methods return a new Entry.
type Entry struct {
	ID          string            `json:"id"`
	Fingerprint Fingerprint       `json:"fingerprint"`
	Content     string            `json:"content"`
	Summary     string            `json:"summary,omitempty"`
	Type        string            `json:"type"`
	Source      string            `json:"source,omitempty"`
	Tier        Tier              `json:"tier"`
	Importance  float64           `json:"importance"`
	LogicalTime clock.LogicalTime `json:"logicalTime"`
	UpdatedAt   int64             `json:"updatedAt"`
	ExpiresAt   int64             `json:"expiresAt,omitempty"`

	Causality Causality          `json:"causality"`
	Tags      crdt.ORSet[string] `json:"tags"`
	Access    crdt.GCounter      `json:"access"`
	Embedding []float32          `json:"embedding,omitempty"`

	CRDT        *CRDTMeta    `json:"crdt,omitempty"`
	Gossip      *GossipMeta  `json:"gossip,omitempty"`
	Validation  *Validation  `json:"validation,omitempty"`
	Convergence *Convergence `json:"convergence,omitempty"`
}

// Expired reports whether a working-tier entry's TTL has passed at the
// given wall-clock time (milliseconds). Entries in other tiers never
// expire.
func (e Entry) Expired(now int64) bool {
	return e.Tier == TierWorking && e.ExpiresAt > 0 && now >= e.ExpiresAt
}

// Touch records a read on node and returns the updated entry.
func (e Entry) Touch(node clock.NodeID) Entry {
	out := e
	out.Access = e.Access.Increment(node)
	return out
}

// Merge combines two replicas of the same entry. Scalar fields follow
// last-writer-wins on UpdatedAt, links and tags union, counters merge
// per node, and the optional metadata blocks merge field-wise. Merging
// replicas with different IDs returns the receiver unchanged.
func (e Entry) Merge(other Entry) Entry {
	if e.ID != other.ID {
		return e
	}
	out := e
	if other.UpdatedAt > e.UpdatedAt {
		out.Content = other.Content
		out.Summary = other.Summary
		out.Source = other.Source
		out.Embedding = other.Embedding
		out.UpdatedAt = other.UpdatedAt
	}
	// A replica that promoted further wins the tier; promotion is
	// one-directional so the higher tier is always the newer fact.
	if tierRank(other.Tier) > tierRank(e.Tier) {
		out.Tier = other.Tier
		out.ExpiresAt = other.ExpiresAt
	}
	if other.Importance > out.Importance {
		out.Importance = other.Importance
	}
	out.LogicalTime = e.LogicalTime.Merge(other.LogicalTime)
	out.Causality = e.Causality.Merge(other.Causality)
	out.Tags = e.Tags.Merge(other.Tags)
	out.Access = e.Access.Merge(other.Access)
	out.CRDT = mergeCRDTMeta(e.CRDT, other.CRDT)
	out.Gossip = mergeGossipMeta(e.Gossip, other.Gossip)
	out.Validation = mergeValidation(e.Validation, other.Validation)
	out.Convergence = mergeConvergence(e.Convergence, other.Convergence)
	return out
}

// tierRank orders tiers by lifecycle stage. Semantic and procedural are
// peers; neither outranks the other.
func tierRank(t Tier) int {
	switch t {
	case TierWorking:
		return 0
	case TierEpisodic:
		return 1
	case TierSemantic, TierProcedural:
		return 2
	}
	return -1
}

func mergeCRDTMeta(a, b *CRDTMeta) *CRDTMeta {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	m := a.Merge(*b)
	return &m
}

func mergeGossipMeta(a, b *GossipMeta) *GossipMeta {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	m := a.Merge(*b)
	return &m
}

func mergeValidation(a, b *Validation) *Validation {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	m := a.Merge(*b)
	return &m
}

func mergeConvergence(a, b *Convergence) *Convergence {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	m := a.Merge(*b)
	return &m
}
