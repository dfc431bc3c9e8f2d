package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCausalityMergeUnions(t *testing.T) {
	a := NewCausality("p1")
	b := NewCausality("p2")
	b.Children = b.Children.Add("c1")

	for _, merged := range []Causality{a.Merge(b), b.Merge(a)} {
		assert.ElementsMatch(t, []string{"p1", "p2"}, merged.Parents.Elements())
		assert.Equal(t, []string{"c1"}, merged.Children.Elements())
	}
}

func TestCRDTMetaMerge(t *testing.T) {
	a := NewCRDTMeta("node-a", 100)
	b := NewCRDTMeta("node-b", 50)
	b.LastModified = 300

	merged := a.Merge(b)

	assert.ElementsMatch(t, []string{"node-a", "node-b"}, merged.AddedBy.Elements())
	assert.Equal(t, int64(50), merged.FirstAdded, "earliest creation wins")
	assert.Equal(t, int64(300), merged.LastModified, "latest modification wins")
}

func TestGossipMetaCoverage(t *testing.T) {
	g := NewGossipMeta("node-a", 3)
	g = g.MarkSeen("node-b", 1, 100)
	g = g.MarkSeen("node-c", 2, 200)
	g = g.MarkSeen("node-b", 1, 100)

	assert.Equal(t, 3, g.SeenBy.Len())
	assert.Equal(t, 2, g.Round)
	assert.InDelta(t, 75.0, g.CoveragePercent(4), 1e-9)
	assert.Equal(t, 0.0, g.CoveragePercent(0))
}

func TestGossipMetaMerge(t *testing.T) {
	a := NewGossipMeta("node-a", 3).MarkSeen("node-b", 1, 100)
	b := NewGossipMeta("node-a", 3).MarkSeen("node-c", 2, 200)

	for _, merged := range []GossipMeta{a.Merge(b), b.Merge(a)} {
		assert.Equal(t, 3, merged.SeenBy.Len())
		assert.Equal(t, 2, merged.Round)
		assert.Equal(t, int64(200), merged.LastGossip)
	}
}

func TestNewValidationSelfVerified(t *testing.T) {
	v := NewValidation("node-a", 3)

	assert.Equal(t, []string{"node-a"}, v.VerifiedBy)
	assert.Equal(t, []float64{1.0}, v.ConfidenceScores)
	assert.Equal(t, 1.0, v.Median)
	assert.False(t, v.Threshold, "one vote cannot meet a three-vote requirement")
}

func TestValidationAddVote(t *testing.T) {
	v := NewValidation("node-a", 3).
		AddVote("node-b", 0.8).
		AddVote("node-c", 0.9)

	assert.Len(t, v.VerifiedBy, 3)
	assert.True(t, v.Threshold)
	assert.InDelta(t, 0.9, v.Median, 1e-9)

	// A repeated vote is ignored.
	again := v.AddVote("node-b", 0.1)
	assert.Equal(t, v, again)
}

func TestValidationAggregatesOrderIndependent(t *testing.T) {
	a := NewValidation("node-a", 2).AddVote("node-b", 0.8).AddVote("node-c", 0.6)
	b := NewValidation("node-a", 2).AddVote("node-c", 0.6).AddVote("node-b", 0.8)

	assert.Equal(t, a, b)
}

func TestValidationMergeUnionsVotes(t *testing.T) {
	base := NewValidation("node-a", 3)
	left := base.AddVote("node-b", 0.8)
	right := base.AddVote("node-c", 0.4)

	for _, merged := range []Validation{left.Merge(right), right.Merge(left)} {
		require.Len(t, merged.VerifiedBy, 3)
		assert.InDelta(t, 0.8, merged.Median, 1e-9)
		assert.True(t, merged.Threshold)
	}
}

func TestValidationLowConfidenceFailsThreshold(t *testing.T) {
	v := Validation{RequiredVotes: 2}.
		AddVote("node-a", 0.2).
		AddVote("node-b", 0.1)

	assert.Len(t, v.VerifiedBy, 2)
	assert.False(t, v.Threshold, "enough votes but the trimmed mean is too low")
}

func TestTrimmedMean(t *testing.T) {
	// 20% trim on five scores drops one from each end.
	sorted := []float64{0.0, 0.5, 0.6, 0.7, 1.0}
	assert.InDelta(t, 0.6, trimmedMean(sorted, 0.2), 1e-9)

	// Too few scores to trim falls back to a plain mean.
	assert.InDelta(t, 0.5, trimmedMean([]float64{0.4, 0.6}, 0.2), 1e-9)
	assert.Equal(t, 0.0, trimmedMean(nil, 0.2))
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.5, median([]float64{0.1, 0.5, 0.9}))
	assert.InDelta(t, 0.45, median([]float64{0.2, 0.3, 0.6, 0.9}), 1e-9)
	assert.Equal(t, 0.0, median(nil))
}

func TestConvergenceReinforce(t *testing.T) {
	c := NewConvergence("water boils at 100c", "entry-1", 0.5, 0.85)
	c = c.Reinforce("entry-2", 0.1)
	c = c.Reinforce("entry-3", 0.1)

	assert.Equal(t, uint64(3), c.VerificationCount)
	assert.InDelta(t, 0.7, c.Confidence, 1e-9)
	assert.Equal(t, 3, c.Sources.Len())
	assert.False(t, c.Converged)
}

func TestConvergenceConfidenceCapped(t *testing.T) {
	c := NewConvergence("fact", "e1", 0.9, 0.85)
	c = c.Reinforce("e2", 0.3)

	assert.Equal(t, 1.0, c.Confidence)
	assert.True(t, c.Converged)

	c = c.Reinforce("e3", 0.3)
	assert.Equal(t, 1.0, c.Confidence)
}

func TestConvergenceMerge(t *testing.T) {
	base := NewConvergence("fact", "e1", 0.5, 0.85)
	left := base.Reinforce("e2", 0.1)
	right := base.Reinforce("e3", 0.1)

	for _, merged := range []Convergence{left.Merge(right), right.Merge(left)} {
		assert.Equal(t, 3, merged.Sources.Len())
		assert.InDelta(t, 0.6, merged.Confidence, 1e-9)
		assert.Equal(t, "fact", merged.CanonicalForm)
	}
}
