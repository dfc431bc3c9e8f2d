// Package chromem backs the memory index with chromem-go, a pure Go
// embedded vector database. Entries are partitioned into one collection
// per tier so recall can stay inside a lifecycle stage.
package chromem

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/hivemindlabs/hivemind-go-sdk/memory"
)

// Index implements memory.Index on top of chromem-go.
type Index struct {
	db          *chromem.DB
	collections map[memory.Tier]*chromem.Collection
	mu          sync.RWMutex
}

// New creates an in-memory chromem index.
func New() (*Index, error) {
	return &Index{
		db:          chromem.NewDB(),
		collections: make(map[memory.Tier]*chromem.Collection),
	}, nil
}

func (x *Index) getOrCreateCollection(tier memory.Tier) (*chromem.Collection, error) {
	x.mu.RLock()
	col, exists := x.collections[tier]
	x.mu.RUnlock()
	if exists {
		return col, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if col, exists := x.collections[tier]; exists {
		return col, nil
	}

	// Embeddings are provided by the caller, so no embedding func;
	// default cosine distance.
	col, err := x.db.CreateCollection(fmt.Sprintf("tier_%s", tier), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	x.collections[tier] = col
	return col, nil
}

// Store saves an entry's embedding, keyed by its fingerprint hash.
func (x *Index) Store(ctx context.Context, entry memory.Entry) error {
	if len(entry.Embedding) == 0 {
		return fmt.Errorf("entry %s has no embedding", entry.ID)
	}
	col, err := x.getOrCreateCollection(entry.Tier)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        entry.ID,
		Content:   entry.Content,
		Embedding: entry.Embedding,
		Metadata: map[string]string{
			"tier":   string(entry.Tier),
			"type":   entry.Type,
			"origin": string(entry.LogicalTime.OriginNode),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	log.Printf("[CHROMEM] indexed entry %s (tier=%s)", shortID(entry.ID), entry.Tier)
	return nil
}

// Query searches every tier's collection and returns the best matches
// across all of them, most similar first.
func (x *Index) Query(ctx context.Context, embedding []float32, limit int) ([]memory.IndexResult, error) {
	if limit <= 0 {
		limit = 10
	}

	x.mu.RLock()
	cols := make([]*chromem.Collection, 0, len(x.collections))
	for _, col := range x.collections {
		cols = append(cols, col)
	}
	x.mu.RUnlock()

	var all []memory.IndexResult
	for _, col := range cols {
		results, err := queryCollection(ctx, col, embedding, limit)
		if err != nil {
			return nil, err
		}
		for _, res := range results {
			all = append(all, memory.IndexResult{ID: res.ID, Similarity: res.Similarity})
		}
	}

	// Best match first across tiers.
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && all[j].Similarity > all[j-1].Similarity; j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// queryCollection queries one collection, shrinking the result count
// until it fits the collection size. chromem-go rejects nResults larger
// than the number of stored documents.
func queryCollection(ctx context.Context, col *chromem.Collection, embedding []float32, limit int) ([]chromem.Result, error) {
	for currentLimit := limit; currentLimit >= 1; currentLimit-- {
		results, err := col.QueryEmbedding(ctx, embedding, currentLimit, nil, nil)
		if err == nil {
			return results, nil
		}
		if isInsufficientDocsError(err) {
			if currentLimit == 1 {
				return nil, nil
			}
			continue
		}
		return nil, fmt.Errorf("chromem query: %w", err)
	}
	return nil, nil
}

// Delete removes an entry from whichever collection holds it.
func (x *Index) Delete(ctx context.Context, id string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	for _, col := range x.collections {
		if err := col.Delete(ctx, nil, nil, id); err != nil {
			return fmt.Errorf("chromem delete: %w", err)
		}
	}
	return nil
}

// Close releases resources. chromem-go keeps everything in memory, so
// there is nothing to flush.
func (x *Index) Close() error {
	return nil
}

func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
