package chunk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kailas-cloud/lexrag/internal/db"
	"github.com/kailas-cloud/lexrag/internal/domain"
	domchunk "github.com/kailas-cloud/lexrag/internal/domain/chunk"
)

// store is the consumer interface for chunks and their vectors (ISP).
type store interface {
	ReplaceChunks(ctx context.Context, documentID string, chunks []db.ChunkRow) error
	ListChunks(ctx context.Context, documentID string) ([]db.ChunkRow, error)
	OwnedChunkIDs(ctx context.Context, tenantID string, chunkIDs []string) ([]string, error)
	OwnsDocument(ctx context.Context, tenantID, documentID string) (bool, error)
	UpdateEmbeddings(ctx context.Context, tenantID string, rows []db.EmbeddingRow) (int, error)
	DocumentEmbeddings(ctx context.Context, tenantID, documentID string) ([]db.ChunkEmbedding, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) ([]db.SearchHit, error)
}

// Repo implements the chunk and vector repositories of the retrieval and ingest usecases.
type Repo struct {
	store store
	newID func() string
}

// New creates a chunk repository.
func New(s store) *Repo {
	return &Repo{store: s, newID: uuid.NewString}
}

// Save replaces a document's chunks. Chunks without an ID get a fresh UUID.
// Returns the chunks as stored.
func (r *Repo) Save(ctx context.Context, documentID string, chunks []domchunk.Chunk) ([]domchunk.Chunk, error) {
	out := make([]domchunk.Chunk, len(chunks))
	rows := make([]db.ChunkRow, len(chunks))
	for i, c := range chunks {
		if c.ID == "" {
			c.ID = r.newID()
		}
		c.DocumentID = documentID
		md, err := json.Marshal(c.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata of chunk %d: %w", c.Index, err)
		}
		rows[i] = db.ChunkRow{
			ID:         c.ID,
			DocumentID: documentID,
			Index:      c.Index,
			Content:    c.Content,
			TokenCount: c.TokenCount,
			CharCount:  c.CharCount,
			StartChar:  c.StartChar,
			EndChar:    c.EndChar,
			Metadata:   md,
		}
		out[i] = c
	}

	if err := r.store.ReplaceChunks(ctx, documentID, rows); err != nil {
		return nil, storeErr("replace chunks", err)
	}
	return out, nil
}

// List returns a document's chunks ordered by index.
func (r *Repo) List(ctx context.Context, documentID string) ([]domchunk.Chunk, error) {
	rows, err := r.store.ListChunks(ctx, documentID)
	if err != nil {
		return nil, storeErr("list chunks", err)
	}
	out := make([]domchunk.Chunk, 0, len(rows))
	for _, row := range rows {
		c := domchunk.Chunk{
			ID:         row.ID,
			DocumentID: row.DocumentID,
			Index:      row.Index,
			Content:    row.Content,
			TokenCount: row.TokenCount,
			CharCount:  row.CharCount,
			StartChar:  row.StartChar,
			EndChar:    row.EndChar,
		}
		if len(row.Metadata) > 0 {
			if err := json.Unmarshal(row.Metadata, &c.Metadata); err != nil {
				return nil, fmt.Errorf("parse metadata of chunk %s: %w", row.ID, err)
			}
		}
		out = append(out, c)
	}
	return out, nil
}

// OwnedChunkIDs returns the subset of ids owned by tenantID.
func (r *Repo) OwnedChunkIDs(ctx context.Context, tenantID string, ids []string) ([]string, error) {
	owned, err := r.store.OwnedChunkIDs(ctx, tenantID, ids)
	if err != nil {
		return nil, storeErr("resolve chunk ownership", err)
	}
	return owned, nil
}

// OwnsDocument reports whether tenantID owns the document.
func (r *Repo) OwnsDocument(ctx context.Context, tenantID, documentID string) (bool, error) {
	ok, err := r.store.OwnsDocument(ctx, tenantID, documentID)
	if err != nil {
		return false, storeErr("resolve document ownership", err)
	}
	return ok, nil
}

// UpdateEmbeddings writes all vectors or none.
func (r *Repo) UpdateEmbeddings(ctx context.Context, tenantID string, embs []domchunk.Embedding) (int, error) {
	rows := make([]db.EmbeddingRow, len(embs))
	for i, e := range embs {
		rows[i] = db.EmbeddingRow{ChunkID: e.ChunkID, Vector: e.Vector, Model: e.Model}
	}
	n, err := r.store.UpdateEmbeddings(ctx, tenantID, rows)
	if err != nil {
		if errors.Is(err, db.ErrPartialWrite) {
			// Ownership changed between verification and write.
			return 0, fmt.Errorf("update embeddings: %w: %w", domain.ErrOwnership, err)
		}
		return 0, storeErr("update embeddings", err)
	}
	return n, nil
}

// DocumentEmbeddings returns the stored vectors of a tenant-owned document, by chunk index.
func (r *Repo) DocumentEmbeddings(ctx context.Context, tenantID, documentID string) ([]domchunk.Embedding, error) {
	rows, err := r.store.DocumentEmbeddings(ctx, tenantID, documentID)
	if err != nil {
		return nil, storeErr("get embeddings", err)
	}
	out := make([]domchunk.Embedding, len(rows))
	for i, row := range rows {
		out[i] = domchunk.Embedding{ChunkID: row.ChunkID, Vector: row.Vector, Model: row.Model}
	}
	return out, nil
}

// Search runs a nearest neighbour query and converts distances to similarities.
func (r *Repo) Search(ctx context.Context, q domchunk.Query) ([]domchunk.Hit, error) {
	hits, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		TenantID:    q.TenantID,
		ScopeID:     q.ScopeID,
		Vector:      q.Vector,
		Model:       q.Model,
		MaxDistance: q.MaxDistance,
		Limit:       q.Limit,
	})
	if err != nil {
		return nil, storeErr("similarity search", err)
	}
	out := make([]domchunk.Hit, len(hits))
	for i, h := range hits {
		out[i] = domchunk.Hit{
			ChunkID:    h.ChunkID,
			DocumentID: h.DocumentID,
			Content:    h.Content,
			Index:      h.Index,
			Distance:   h.Distance,
			Similarity: domain.SimilarityFromDistance(h.Distance),
		}
	}
	return out, nil
}

// storeErr classifies a backend failure. Missing documents and dimension mismatches
// are caller errors; everything else is a retriable store failure.
func storeErr(op string, err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrDocumentNotFound, err)
	}
	if errors.Is(err, db.ErrDimMismatch) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrVectorDimMismatch, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
