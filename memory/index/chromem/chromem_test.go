package chromem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivemindlabs/hivemind-go-sdk/clock"
	"github.com/hivemindlabs/hivemind-go-sdk/memory"
	"github.com/hivemindlabs/hivemind-go-sdk/memory/embedder/mock"
)

func indexedEntry(t *testing.T, embedder memory.Embedder, content string, tier memory.Tier) memory.Entry {
	t.Helper()
	embedding, err := embedder.Embed(context.Background(), content)
	require.NoError(t, err)
	fp := memory.ComputeFingerprint(content, "observation", nil)
	return memory.Entry{
		ID:          fp.Hash,
		Fingerprint: fp,
		Content:     content,
		Type:        "observation",
		Tier:        tier,
		Embedding:   embedding,
		LogicalTime: clock.LogicalTime{Lamport: 1, OriginNode: "node-a"},
	}
}

func TestStoreAndQuery(t *testing.T) {
	idx, err := New()
	require.NoError(t, err)
	defer idx.Close()

	embedder := mock.New(0)
	ctx := context.Background()

	deploy := indexedEntry(t, embedder, "the deploy failed on friday", memory.TierEpisodic)
	lunch := indexedEntry(t, embedder, "had soup for lunch", memory.TierEpisodic)
	require.NoError(t, idx.Store(ctx, deploy))
	require.NoError(t, idx.Store(ctx, lunch))

	// The mock embedder is deterministic, so querying with an entry's
	// own embedding must rank that entry first.
	results, err := idx.Query(ctx, deploy.Embedding, 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, deploy.ID, results[0].ID)
}

func TestQueryAcrossTiers(t *testing.T) {
	idx, err := New()
	require.NoError(t, err)
	defer idx.Close()

	embedder := mock.New(0)
	ctx := context.Background()

	episodic := indexedEntry(t, embedder, "watched the failover complete", memory.TierEpisodic)
	semantic := indexedEntry(t, embedder, "failover takes ninety seconds", memory.TierSemantic)
	require.NoError(t, idx.Store(ctx, episodic))
	require.NoError(t, idx.Store(ctx, semantic))

	results, err := idx.Query(ctx, semantic.Embedding, 5)
	require.NoError(t, err)

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	assert.Contains(t, ids, episodic.ID)
	assert.Contains(t, ids, semantic.ID)
	assert.Equal(t, semantic.ID, ids[0])
}

func TestQueryEmptyIndex(t *testing.T) {
	idx, err := New()
	require.NoError(t, err)
	defer idx.Close()

	results, err := idx.Query(context.Background(), []float32{0.1, 0.2}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQueryLimitLargerThanCollection(t *testing.T) {
	idx, err := New()
	require.NoError(t, err)
	defer idx.Close()

	embedder := mock.New(0)
	ctx := context.Background()

	only := indexedEntry(t, embedder, "a single memory", memory.TierEpisodic)
	require.NoError(t, idx.Store(ctx, only))

	results, err := idx.Query(ctx, only.Embedding, 50)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, only.ID, results[0].ID)
}

func TestManagerRecallThroughChromem(t *testing.T) {
	idx, err := New()
	require.NoError(t, err)

	m, err := memory.NewManager("node-a",
		memory.WithEmbedder(mock.New(0)),
		memory.WithIndex(idx),
	)
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	entry, err := m.Record("the deploy failed on friday", "observation", nil, 0.8)
	require.NoError(t, err)
	_, err = m.Promote(ctx, entry.ID, memory.TierEpisodic)
	require.NoError(t, err)

	results, err := m.Recall(ctx, "the deploy failed on friday", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, entry.ID, results[0].ID)
}

func TestStoreRequiresEmbedding(t *testing.T) {
	idx, err := New()
	require.NoError(t, err)
	defer idx.Close()

	entry := memory.Entry{ID: "no-embedding", Tier: memory.TierEpisodic}
	assert.Error(t, idx.Store(context.Background(), entry))
}
