package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivemindlabs/hivemind-go-sdk/clock"
	"github.com/hivemindlabs/hivemind-go-sdk/memory/embedder/mock"
)

// fakeIndex records stored entries and returns everything on query.
type fakeIndex struct {
	stored  []string
	failing bool
}

func (f *fakeIndex) Store(ctx context.Context, entry Entry) error {
	if f.failing {
		return errors.New("index unavailable")
	}
	f.stored = append(f.stored, entry.ID)
	return nil
}

func (f *fakeIndex) Query(ctx context.Context, embedding []float32, limit int) ([]IndexResult, error) {
	out := make([]IndexResult, 0, len(f.stored))
	for _, id := range f.stored {
		out = append(out, IndexResult{ID: id, Similarity: 1.0})
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeIndex) Delete(ctx context.Context, id string) error { return nil }
func (f *fakeIndex) Close() error                                { return nil }

// blockingEmbedder stalls inside Embed until released, to observe what
// else the manager can do mid-embed.
type blockingEmbedder struct {
	entered chan struct{}
	release chan struct{}
}

func (e *blockingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.entered <- struct{}{}
	<-e.release
	return []float32{1, 0}, nil
}

func (e *blockingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *blockingEmbedder) Dimensions() int { return 2 }

func newTestManager(t *testing.T, node clock.NodeID, opts ...Option) *Manager {
	t.Helper()
	m, err := NewManager(node, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestRecordCreatesWorkingEntry(t *testing.T) {
	m := newTestManager(t, "node-a")

	entry, err := m.Record("the build is green", "observation", nil, 0.5)
	require.NoError(t, err)

	assert.Equal(t, TierWorking, entry.Tier)
	assert.Equal(t, entry.Fingerprint.Hash, entry.ID)
	assert.Greater(t, entry.ExpiresAt, entry.UpdatedAt)
	assert.Equal(t, clock.NodeID("node-a"), entry.LogicalTime.OriginNode)
	assert.Equal(t, 1, m.Len())
}

func TestRecordEmptyContentRejected(t *testing.T) {
	m := newTestManager(t, "node-a")

	_, err := m.Record("   ", "observation", nil, 0.5)
	assert.Error(t, err)
}

func TestRecordSameContentTwiceIsOneEntry(t *testing.T) {
	m := newTestManager(t, "node-a")

	first, err := m.Record("duplicate fact", "observation", nil, 0.5)
	require.NoError(t, err)
	second, err := m.Record("duplicate fact", "observation", nil, 0.5)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, uint64(1), second.Access.Value(), "re-record counts as a read")
}

func TestRecordDuplicateThenGetKeepsAccessMonotonic(t *testing.T) {
	m := newTestManager(t, "node-a")

	first, err := m.Record("same observation twice", "observation", nil, 0.5)
	require.NoError(t, err)
	m.cache.Wait()

	second, err := m.Record("same observation twice", "observation", nil, 0.5)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, uint64(1), second.Access.Value())
	m.cache.Wait()

	// A read served from the cache must not rewind the access count to
	// what it was when the entry was first cached.
	got, ok := m.Get(first.ID)
	require.True(t, ok)
	assert.Equal(t, uint64(2), got.Access.Value())

	canonical := m.Entries()
	require.Len(t, canonical, 1)
	assert.Equal(t, uint64(2), canonical[0].Access.Value())
}

func TestGetAfterTagKeepsTag(t *testing.T) {
	m := newTestManager(t, "node-a")

	entry, err := m.Record("note to keep", "observation", nil, 0.5)
	require.NoError(t, err)
	m.cache.Wait()

	_, err = m.Tag(entry.ID, "deploy")
	require.NoError(t, err)

	got, ok := m.Get(entry.ID)
	require.True(t, ok)
	assert.True(t, got.Tags.Contains("deploy"), "a cached pre-tag copy must not shadow the tag")
}

func TestRecordLinksParents(t *testing.T) {
	m := newTestManager(t, "node-a")

	parent, err := m.Record("saw the failure", "observation", nil, 0.5)
	require.NoError(t, err)
	child, err := m.Record("root cause found", "thought", nil, 0.7, parent.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{parent.ID}, child.Causality.Parents.Elements())
	got, ok := m.Get(parent.ID)
	require.True(t, ok)
	assert.Equal(t, []string{child.ID}, got.Causality.Children.Elements())
}

func TestGetExpiredEntryAbsent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WorkingTTL = -time.Second
	m := newTestManager(t, "node-a", WithConfig(cfg))

	entry, err := m.Record("already stale", "observation", nil, 0.5)
	require.NoError(t, err)

	_, ok := m.Get(entry.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestPromoteToEpisodic(t *testing.T) {
	m := newTestManager(t, "node-a")

	entry, err := m.Record("deployed the fix and the alerts cleared", "observation", nil, 0.8)
	require.NoError(t, err)

	promoted, err := m.Promote(context.Background(), entry.ID, TierEpisodic)
	require.NoError(t, err)

	assert.Equal(t, TierEpisodic, promoted.Tier)
	assert.Equal(t, entry.Content, promoted.Content)
	assert.Equal(t, entry.Fingerprint, promoted.Fingerprint, "promotion keeps identity")
	assert.Equal(t, int64(0), promoted.ExpiresAt)
	assert.NotEmpty(t, promoted.Summary)
	require.NotNil(t, promoted.CRDT)
	require.NotNil(t, promoted.Gossip)
	require.NotNil(t, promoted.Validation)
	assert.Equal(t, []string{"node-a"}, promoted.Validation.VerifiedBy)
	assert.Equal(t, []float64{1.0}, promoted.Validation.ConfidenceScores)
}

func TestPromoteSummaryTruncated(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SummaryLength = 10
	m := newTestManager(t, "node-a", WithConfig(cfg))

	entry, err := m.Record("a very long description of what happened today", "observation", nil, 0.5)
	require.NoError(t, err)

	promoted, err := m.Promote(context.Background(), entry.ID, TierEpisodic)
	require.NoError(t, err)
	assert.Equal(t, "a very lon...", promoted.Summary)
}

func TestPromoteInvalidTransitions(t *testing.T) {
	m := newTestManager(t, "node-a")

	entry, err := m.Record("skip a tier", "observation", nil, 0.5)
	require.NoError(t, err)

	_, err = m.Promote(context.Background(), entry.ID, TierSemantic)
	assert.Error(t, err, "working cannot skip to semantic")

	_, err = m.Promote(context.Background(), entry.ID, Tier("archived"))
	assert.Error(t, err)

	_, err = m.Promote(context.Background(), "missing", TierEpisodic)
	assert.Error(t, err)
}

func TestPromoteToSemantic(t *testing.T) {
	m := newTestManager(t, "node-a")

	entry, err := m.Record("water boils at 100c", "knowledge", nil, 0.9)
	require.NoError(t, err)
	_, err = m.Promote(context.Background(), entry.ID, TierEpisodic)
	require.NoError(t, err)

	fact, err := m.Promote(context.Background(), entry.ID, TierSemantic)
	require.NoError(t, err)

	assert.Equal(t, TierSemantic, fact.Tier)
	require.NotNil(t, fact.Convergence)
	assert.Equal(t, uint64(1), fact.Convergence.VerificationCount)
	assert.Equal(t, DefaultConfig().InitialConfidence, fact.Convergence.Confidence)
}

func TestPromoteMatchingFactReinforcesInsteadOfDuplicating(t *testing.T) {
	m := newTestManager(t, "node-a")
	ctx := context.Background()

	first, err := m.Record("Water Boils At 100C", "knowledge", nil, 0.9)
	require.NoError(t, err)
	_, err = m.Promote(ctx, first.ID, TierEpisodic)
	require.NoError(t, err)
	fact, err := m.Promote(ctx, first.ID, TierSemantic)
	require.NoError(t, err)

	// The same fact in different casing is a different entry by
	// fingerprint but the same fact by content.
	second, err := m.Record("water boils at 100c", "knowledge", nil, 0.9)
	require.NoError(t, err)
	_, err = m.Promote(ctx, second.ID, TierEpisodic)
	require.NoError(t, err)
	reinforced, err := m.Promote(ctx, second.ID, TierSemantic)
	require.NoError(t, err)

	assert.Equal(t, fact.ID, reinforced.ID, "no duplicate semantic entry")
	assert.Equal(t, uint64(2), reinforced.Convergence.VerificationCount)
	assert.InDelta(t, 0.6, reinforced.Convergence.Confidence, 1e-9)
	assert.Contains(t, reinforced.Causality.Related.Elements(), second.ID)

	// The candidate stays episodic.
	candidate, ok := m.Get(second.ID)
	require.True(t, ok)
	assert.Equal(t, TierEpisodic, candidate.Tier)
}

func TestPromoteToProcedural(t *testing.T) {
	m := newTestManager(t, "node-a")
	ctx := context.Background()

	entry, err := m.Record("restart the worker before redeploying", "knowledge", nil, 0.8)
	require.NoError(t, err)
	_, err = m.Promote(ctx, entry.ID, TierEpisodic)
	require.NoError(t, err)

	proc, err := m.Promote(ctx, entry.ID, TierProcedural)
	require.NoError(t, err)
	assert.Equal(t, TierProcedural, proc.Tier)
	assert.Nil(t, proc.Convergence)
}

func TestPromoteIndexFailureKeepsPromotion(t *testing.T) {
	idx := &fakeIndex{failing: true}
	m := newTestManager(t, "node-a", WithEmbedder(mock.New(8)), WithIndex(idx))
	ctx := context.Background()

	entry, err := m.Record("important episode", "observation", nil, 0.8)
	require.NoError(t, err)

	promoted, err := m.Promote(ctx, entry.ID, TierEpisodic)
	assert.Error(t, err)
	assert.Equal(t, TierEpisodic, promoted.Tier)

	// The promotion stands and can be reindexed once the index heals.
	got, ok := m.Get(entry.ID)
	require.True(t, ok)
	assert.Equal(t, TierEpisodic, got.Tier)

	idx.failing = false
	require.NoError(t, m.Reindex(ctx, entry.ID))
	assert.Equal(t, []string{entry.ID}, idx.stored)
}

func TestPromoteEmbedsWithoutBlockingReads(t *testing.T) {
	emb := &blockingEmbedder{entered: make(chan struct{}), release: make(chan struct{})}
	idx := &fakeIndex{}
	m := newTestManager(t, "node-a", WithEmbedder(emb), WithIndex(idx))
	ctx := context.Background()

	entry, err := m.Record("slow to embed", "observation", nil, 0.5)
	require.NoError(t, err)

	type result struct {
		entry Entry
		err   error
	}
	done := make(chan result, 1)
	go func() {
		promoted, perr := m.Promote(ctx, entry.ID, TierEpisodic)
		done <- result{promoted, perr}
	}()

	<-emb.entered

	// The tier change is committed and other operations proceed while
	// the embedder is still working.
	got, ok := m.Get(entry.ID)
	require.True(t, ok)
	assert.Equal(t, TierEpisodic, got.Tier)
	_, err = m.Record("unrelated note", "observation", nil, 0.5)
	require.NoError(t, err)

	close(emb.release)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, TierEpisodic, res.entry.Tier)
	assert.Equal(t, []string{entry.ID}, idx.stored)

	// The computed embedding lands on the canonical entry.
	final, ok := m.Get(entry.ID)
	require.True(t, ok)
	assert.NotEmpty(t, final.Embedding)
}

func TestValidateAddsVote(t *testing.T) {
	m := newTestManager(t, "node-a")
	ctx := context.Background()

	entry, err := m.Record("needs consensus", "observation", nil, 0.5)
	require.NoError(t, err)
	_, err = m.Promote(ctx, entry.ID, TierEpisodic)
	require.NoError(t, err)

	voted, err := m.Validate(entry.ID, "node-b", 0.8)
	require.NoError(t, err)
	assert.Len(t, voted.Validation.VerifiedBy, 2)

	// Working entries carry no validation record yet.
	raw, err := m.Record("unvalidated", "observation", nil, 0.5)
	require.NoError(t, err)
	_, err = m.Validate(raw.ID, "node-b", 0.8)
	assert.Error(t, err)
}

func TestMergeRemoteConverges(t *testing.T) {
	a := newTestManager(t, "node-a")
	b := newTestManager(t, "node-b")
	ctx := context.Background()

	ea, err := a.Record("seen by a", "observation", nil, 0.5)
	require.NoError(t, err)
	_, err = a.Promote(ctx, ea.ID, TierEpisodic)
	require.NoError(t, err)

	eb, err := b.Record("seen by b", "observation", nil, 0.5)
	require.NoError(t, err)
	_, err = b.Promote(ctx, eb.ID, TierEpisodic)
	require.NoError(t, err)

	changedB := b.MergeRemote(a.Entries())
	changedA := a.MergeRemote(b.Entries())

	assert.Positive(t, changedA)
	assert.Positive(t, changedB)
	assert.Equal(t, a.Len(), b.Len())

	// Both sides now hold both entries and dominate each other's clock.
	_, ok := a.Get(eb.ID)
	assert.True(t, ok)
	_, ok = b.Get(ea.ID)
	assert.True(t, ok)
	assert.NotEqual(t, clock.Concurrent, a.Vector().Compare(b.Vector()))
}

func TestMergeRemoteIdempotent(t *testing.T) {
	a := newTestManager(t, "node-a")
	b := newTestManager(t, "node-b")
	ctx := context.Background()

	ea, err := a.Record("shared once", "observation", nil, 0.5)
	require.NoError(t, err)
	_, err = a.Promote(ctx, ea.ID, TierEpisodic)
	require.NoError(t, err)

	snapshot := a.Entries()
	first := b.MergeRemote(snapshot)
	second := b.MergeRemote(snapshot)

	assert.Positive(t, first)
	assert.Zero(t, second, "replaying the same batch changes nothing")
}

func TestMergeRemoteCountsMetadataOnlyChange(t *testing.T) {
	a := newTestManager(t, "node-a")
	b := newTestManager(t, "node-b")

	ea, err := a.Record("shared note", "observation", nil, 0.5)
	require.NoError(t, err)
	require.Positive(t, b.MergeRemote(a.Entries()))

	// A tag leaves the timestamps and tier alone but is still a change
	// the merge must report.
	_, err = a.Tag(ea.ID, "deploy")
	require.NoError(t, err)

	assert.Equal(t, 1, b.MergeRemote(a.Entries()))
	got, ok := b.Get(ea.ID)
	require.True(t, ok)
	assert.True(t, got.Tags.Contains("deploy"))
}

func TestMergeRemoteRejectsTamperedEntry(t *testing.T) {
	a := newTestManager(t, "node-a")
	b := newTestManager(t, "node-b")

	ea, err := a.Record("authentic", "observation", nil, 0.5)
	require.NoError(t, err)

	tampered := ea
	tampered.Content = "forged"
	tampered.Fingerprint = ComputeFingerprint("forged", "observation", nil)
	// ID no longer matches the recomputed fingerprint hash.
	assert.Zero(t, b.MergeRemote([]Entry{tampered}))
}

func TestRecallRequiresEmbedderAndIndex(t *testing.T) {
	m := newTestManager(t, "node-a")

	_, err := m.Recall(context.Background(), "anything", 5)
	assert.Error(t, err)
}

func TestRecallReturnsPromotedEntries(t *testing.T) {
	idx := &fakeIndex{}
	m := newTestManager(t, "node-a", WithEmbedder(mock.New(8)), WithIndex(idx))
	ctx := context.Background()

	entry, err := m.Record("the deploy failed on friday", "observation", nil, 0.8)
	require.NoError(t, err)
	_, err = m.Promote(ctx, entry.ID, TierEpisodic)
	require.NoError(t, err)

	results, err := m.Recall(ctx, "what happened with the deploy", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, entry.ID, results[0].ID)
}

func TestTagEntry(t *testing.T) {
	m := newTestManager(t, "node-a")

	entry, err := m.Record("tag me", "observation", nil, 0.5)
	require.NoError(t, err)

	tagged, err := m.Tag(entry.ID, "deploy")
	require.NoError(t, err)
	assert.True(t, tagged.Tags.Contains("deploy"))
}
