package memory

import "context"

// Embedder converts text into vector embeddings for similarity search.
//
// Implementations must be safe for concurrent use. The SDK ships a
// deterministic mock for tests and an ONNX-backed implementation for
// local models; any service that produces fixed-size vectors can slot
// in behind this interface.
type Embedder interface {
	// Embed generates an embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the size of the vectors this embedder produces.
	Dimensions() int
}
