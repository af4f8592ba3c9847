package ingest

import (
	"context"

	"github.com/kailas-cloud/lexrag/internal/chunking"
	domchunk "github.com/kailas-cloud/lexrag/internal/domain/chunk"
)

// Chunker splits document text into retrieval chunks.
type Chunker interface {
	Chunk(in chunking.Input) []domchunk.Chunk
}

// ChunkRepository persists a document's chunk set and answers ownership checks.
type ChunkRepository interface {
	OwnsDocument(ctx context.Context, tenantID, documentID string) (bool, error)
	Save(ctx context.Context, documentID string, chunks []domchunk.Chunk) ([]domchunk.Chunk, error)
}

// EmbeddingWriter stores chunk vectors with tenant verification.
type EmbeddingWriter interface {
	StoreEmbeddings(ctx context.Context, chunkIDs []string, vectors [][]float32, model, tenantID string) (int, error)
}
