package memory

import (
	"sort"

	"github.com/hivemindlabs/hivemind-go-sdk/clock"
	"github.com/hivemindlabs/hivemind-go-sdk/crdt"
)

// Causality links an entry to the entries that produced it and the
// entries it produced. Links are grow-only sets of entry IDs, so merging
// two replicas of the same entry unions their causal history.
type Causality struct {
	Parents  crdt.GSet[string] `json:"parents"`
	Children crdt.GSet[string] `json:"children"`
	Related  crdt.GSet[string] `json:"related"`
}

// NewCausality builds causality metadata with the given parent IDs.
func NewCausality(parents ...string) Causality {
	return Causality{
		Parents:  crdt.NewGSet(parents...),
		Children: crdt.NewGSet[string](),
		Related:  crdt.NewGSet[string](),
	}
}

// Merge unions both causal histories.
func (c Causality) Merge(other Causality) Causality {
	return Causality{
		Parents:  c.Parents.Merge(other.Parents),
		Children: c.Children.Merge(other.Children),
		Related:  c.Related.Merge(other.Related),
	}
}

// CRDTMeta records replication bookkeeping for an entry.
type CRDTMeta struct {
	AddedBy      crdt.GSet[string] `json:"addedBy"`
	FirstAdded   int64             `json:"firstAdded"`
	LastModified int64             `json:"lastModified"`
	Version      uint64            `json:"version"`
}

// NewCRDTMeta builds replication metadata for an entry created on node
// at wall-clock time now (milliseconds).
func NewCRDTMeta(node clock.NodeID, now int64) CRDTMeta {
	return CRDTMeta{
		AddedBy:      crdt.NewGSet(string(node)),
		FirstAdded:   now,
		LastModified: now,
		Version:      1,
	}
}

// Merge combines the bookkeeping of two replicas: the union of adders,
// the earliest creation time and the latest modification.
func (m CRDTMeta) Merge(other CRDTMeta) CRDTMeta {
	out := CRDTMeta{
		AddedBy:      m.AddedBy.Merge(other.AddedBy),
		FirstAdded:   m.FirstAdded,
		LastModified: m.LastModified,
		Version:      m.Version,
	}
	if other.FirstAdded > 0 && (out.FirstAdded == 0 || other.FirstAdded < out.FirstAdded) {
		out.FirstAdded = other.FirstAdded
	}
	if other.LastModified > out.LastModified {
		out.LastModified = other.LastModified
	}
	if other.Version > out.Version {
		out.Version = other.Version
	}
	return out
}

// GossipMeta tracks how far an entry has spread through the cluster.
type GossipMeta struct {
	Origin     clock.NodeID      `json:"origin"`
	SeenBy     crdt.GSet[string] `json:"seenBy"`
	Fanout     int               `json:"fanout"`
	Round      int               `json:"round"`
	LastGossip int64             `json:"lastGossip,omitempty"`
}

// NewGossipMeta builds gossip metadata for an entry originating on node.
func NewGossipMeta(node clock.NodeID, fanout int) GossipMeta {
	return GossipMeta{
		Origin: node,
		SeenBy: crdt.NewGSet(string(node)),
		Fanout: fanout,
	}
}

// MarkSeen records that node has observed the entry during round.
func (g GossipMeta) MarkSeen(node clock.NodeID, round int, now int64) GossipMeta {
	out := g
	out.SeenBy = g.SeenBy.Merge(crdt.NewGSet(string(node)))
	if round > out.Round {
		out.Round = round
	}
	if now > out.LastGossip {
		out.LastGossip = now
	}
	return out
}

// CoveragePercent reports what fraction of a cluster of the given size
// has seen the entry, as a percentage.
func (g GossipMeta) CoveragePercent(clusterSize int) float64 {
	if clusterSize <= 0 {
		return 0
	}
	return float64(g.SeenBy.Len()) / float64(clusterSize) * 100
}

// Merge combines spread tracking from two replicas.
func (g GossipMeta) Merge(other GossipMeta) GossipMeta {
	out := GossipMeta{
		Origin:     g.Origin,
		SeenBy:     g.SeenBy.Merge(other.SeenBy),
		Fanout:     g.Fanout,
		Round:      g.Round,
		LastGossip: g.LastGossip,
	}
	if out.Origin == "" {
		out.Origin = other.Origin
	}
	if other.Fanout > out.Fanout {
		out.Fanout = other.Fanout
	}
	if other.Round > out.Round {
		out.Round = other.Round
	}
	if other.LastGossip > out.LastGossip {
		out.LastGossip = other.LastGossip
	}
	return out
}

// Validation carries the vote state a cluster-level consensus layer
// attaches to an entry before it is accepted as shared truth. The core
// never runs the vote itself; it only keeps the record mergeable and the
// aggregate statistics current.
type Validation struct {
	VerifiedBy       []string  `json:"verifiedBy"`
	ConfidenceScores []float64 `json:"confidenceScores"`
	TrimmedMean      float64   `json:"trimmedMean"`
	Median           float64   `json:"median"`
	Threshold        bool      `json:"threshold"`
	RequiredVotes    int       `json:"requiredVotes"`
}

// NewValidation builds a validation record self-verified by the creating
// node with full confidence.
func NewValidation(node clock.NodeID, requiredVotes int) Validation {
	v := Validation{
		VerifiedBy:       []string{string(node)},
		ConfidenceScores: []float64{1.0},
		RequiredVotes:    requiredVotes,
	}
	return v.recompute()
}

// AddVote records a verification vote from node with the given
// confidence and recomputes the aggregate statistics. A node votes at
// most once; repeated votes are ignored.
func (v Validation) AddVote(node clock.NodeID, confidence float64) Validation {
	for _, seen := range v.VerifiedBy {
		if seen == string(node) {
			return v
		}
	}
	out := v
	out.VerifiedBy = append(append([]string(nil), v.VerifiedBy...), string(node))
	out.ConfidenceScores = append(append([]float64(nil), v.ConfidenceScores...), confidence)
	return out.recompute()
}

// Merge unions the votes of two replicas, keeping the first confidence
// seen for each voter, and recomputes the aggregates.
func (v Validation) Merge(other Validation) Validation {
	out := v
	out.VerifiedBy = append([]string(nil), v.VerifiedBy...)
	out.ConfidenceScores = append([]float64(nil), v.ConfidenceScores...)
	if other.RequiredVotes > out.RequiredVotes {
		out.RequiredVotes = other.RequiredVotes
	}
	for i, voter := range other.VerifiedBy {
		known := false
		for _, seen := range out.VerifiedBy {
			if seen == voter {
				known = true
				break
			}
		}
		if !known && i < len(other.ConfidenceScores) {
			out.VerifiedBy = append(out.VerifiedBy, voter)
			out.ConfidenceScores = append(out.ConfidenceScores, other.ConfidenceScores[i])
		}
	}
	return out.recompute()
}

func (v Validation) recompute() Validation {
	// Voter order must not affect the aggregates, so sort votes by
	// voter before computing them.
	type vote struct {
		voter string
		score float64
	}
	votes := make([]vote, 0, len(v.VerifiedBy))
	for i, voter := range v.VerifiedBy {
		if i < len(v.ConfidenceScores) {
			votes = append(votes, vote{voter, v.ConfidenceScores[i]})
		}
	}
	sort.Slice(votes, func(i, j int) bool { return votes[i].voter < votes[j].voter })
	v.VerifiedBy = make([]string, len(votes))
	scores := make([]float64, len(votes))
	for i, w := range votes {
		v.VerifiedBy[i] = w.voter
		scores[i] = w.score
	}
	v.ConfidenceScores = scores

	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	v.TrimmedMean = trimmedMean(sorted, 0.2)
	v.Median = median(sorted)
	v.Threshold = len(v.VerifiedBy) >= v.RequiredVotes && v.TrimmedMean >= 0.5
	return v
}

// trimmedMean averages the sorted scores after dropping the given
// fraction from each end. With too few scores to trim it falls back to a
// plain mean.
func trimmedMean(sorted []float64, trim float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	k := int(float64(len(sorted)) * trim)
	kept := sorted[k : len(sorted)-k]
	if len(kept) == 0 {
		kept = sorted
	}
	var sum float64
	for _, s := range kept {
		sum += s
	}
	return sum / float64(len(kept))
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Convergence tracks how a semantic fact settled into its canonical
// form. Repeated observations of the same fact on any instance bump the
// verification count and confidence instead of creating duplicates.
type Convergence struct {
	CanonicalForm       string            `json:"canonicalForm"`
	Sources             crdt.GSet[string] `json:"sources"`
	VerificationCount   uint64            `json:"verificationCount"`
	Confidence          float64           `json:"confidence"`
	Iterations          int               `json:"iterations"`
	Converged           bool              `json:"converged"`
	SimilarityThreshold float64           `json:"similarityThreshold"`
}

// NewConvergence starts convergence tracking for a fact first observed
// in the entry with the given source ID.
func NewConvergence(canonical, sourceID string, initialConfidence, similarityThreshold float64) Convergence {
	return Convergence{
		CanonicalForm:       canonical,
		Sources:             crdt.NewGSet(sourceID),
		VerificationCount:   1,
		Confidence:          initialConfidence,
		SimilarityThreshold: similarityThreshold,
	}
}

// Reinforce records another observation of the same fact from sourceID,
// raising confidence by step up to a cap of 1.0.
func (c Convergence) Reinforce(sourceID string, step float64) Convergence {
	out := c
	out.Sources = c.Sources.Merge(crdt.NewGSet(sourceID))
	out.VerificationCount++
	out.Confidence += step
	if out.Confidence > 1.0 {
		out.Confidence = 1.0
	}
	out.Iterations++
	out.Converged = out.Confidence >= 1.0
	return out
}

// Merge combines convergence tracking from two replicas of the same
// fact.
func (c Convergence) Merge(other Convergence) Convergence {
	out := c
	out.Sources = c.Sources.Merge(other.Sources)
	if other.VerificationCount > out.VerificationCount {
		out.VerificationCount = other.VerificationCount
	}
	if other.Confidence > out.Confidence {
		out.Confidence = other.Confidence
	}
	if other.Iterations > out.Iterations {
		out.Iterations = other.Iterations
	}
	out.Converged = out.Converged || other.Converged
	if other.SimilarityThreshold > out.SimilarityThreshold {
		out.SimilarityThreshold = other.SimilarityThreshold
	}
	if out.CanonicalForm == "" {
		out.CanonicalForm = other.CanonicalForm
	}
	return out
}
