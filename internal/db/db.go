package db

import (
	"context"
	"time"
)

// VectorStore is the relational vector store facade combining all sub-interfaces.
//
//nolint:interfacebloat // facade by design -- consumers use narrow sub-interfaces (ISP)
type VectorStore interface {
	Pinger
	Migrator
	CatalogStore
	ChunkStore
	OwnershipChecker
	EmbeddingStore
	VectorSearcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Migrator applies pending schema migrations.
type Migrator interface {
	Migrate(ctx context.Context) error
}

// CatalogStore writes the tenant hierarchy (matters, claims, documents).
type CatalogStore interface {
	UpsertMatter(ctx context.Context, m Matter) error
	UpsertClaim(ctx context.Context, c Claim) error
	UpsertDocument(ctx context.Context, d Document) error
}

// ChunkStore persists chunk rows. ReplaceChunks swaps a document's whole chunk set
// in one transaction.
type ChunkStore interface {
	ReplaceChunks(ctx context.Context, documentID string, chunks []ChunkRow) error
	ListChunks(ctx context.Context, documentID string) ([]ChunkRow, error)
}

// OwnershipChecker resolves chunk and document ownership through the
// document -> matter|claim -> company chain.
type OwnershipChecker interface {
	OwnedChunkIDs(ctx context.Context, tenantID string, chunkIDs []string) ([]string, error)
	OwnsDocument(ctx context.Context, tenantID, documentID string) (bool, error)
}

// EmbeddingStore reads and writes chunk vectors.
type EmbeddingStore interface {
	// UpdateEmbeddings writes all vectors in one transaction. Each row is constrained
	// to chunks owned by tenantID; if any row does not match, nothing is written and
	// ErrPartialWrite is returned.
	UpdateEmbeddings(ctx context.Context, tenantID string, rows []EmbeddingRow) (int, error)
	DocumentEmbeddings(ctx context.Context, tenantID, documentID string) ([]ChunkEmbedding, error)
}

// VectorSearcher runs tenant-scoped nearest neighbour queries.
type VectorSearcher interface {
	SearchKNN(ctx context.Context, q *KNNQuery) ([]SearchHit, error)
}

// KVStore provides simple key-value operations with expiry.
type KVStore interface {
	Pinger
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Close()
}
