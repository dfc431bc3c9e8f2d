package memory

import "context"

// IndexResult is a single similarity search hit.
type IndexResult struct {
	ID         string
	Similarity float32
}

// Index stores entry embeddings and answers nearest-neighbor queries.
// The Manager writes to the index when entries are promoted out of
// working memory and reads from it during recall. Implementations must
// be safe for concurrent use.
type Index interface {
	// Store adds or updates an entry's embedding in the index.
	Store(ctx context.Context, entry Entry) error

	// Query returns the IDs of the entries most similar to the given
	// embedding, best match first, up to limit results.
	Query(ctx context.Context, embedding []float32, limit int) ([]IndexResult, error)

	// Delete removes an entry from the index. Deleting an absent entry
	// is not an error.
	Delete(ctx context.Context, id string) error

	// Close releases any resources held by the index.
	Close() error
}
