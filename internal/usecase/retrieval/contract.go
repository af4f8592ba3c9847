package retrieval

import (
	"context"

	"github.com/kailas-cloud/lexrag/internal/domain"
	domchunk "github.com/kailas-cloud/lexrag/internal/domain/chunk"
)

// Repository defines the storage contract for embedding writes, reads and search.
type Repository interface {
	OwnedChunkIDs(ctx context.Context, tenantID string, ids []string) ([]string, error)
	OwnsDocument(ctx context.Context, tenantID, documentID string) (bool, error)
	UpdateEmbeddings(ctx context.Context, tenantID string, embs []domchunk.Embedding) (int, error)
	DocumentEmbeddings(ctx context.Context, tenantID, documentID string) ([]domchunk.Embedding, error)
	List(ctx context.Context, documentID string) ([]domchunk.Chunk, error)
	Search(ctx context.Context, q domchunk.Query) ([]domchunk.Hit, error)
}

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
