package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/lexrag/internal/db"
)

// OwnedChunkIDs returns the subset of chunkIDs whose document belongs to tenantID.
func (s *Store) OwnedChunkIDs(ctx context.Context, tenantID string, chunkIDs []string) ([]string, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id FROM document_chunks c`+ownershipJoin+`
		WHERE c.id = ANY($1) AND COALESCE(m.company_id, cl.company_id) = $2`,
		pq.Array(chunkIDs), tenantID)
	if err != nil {
		return nil, &db.Error{Op: db.OpOwnedChunks, Err: err}
	}
	defer rows.Close()

	owned := make([]string, 0, len(chunkIDs))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &db.Error{Op: db.OpOwnedChunks, Err: fmt.Errorf("scan id: %w", err)}
		}
		owned = append(owned, id)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpOwnedChunks, Err: err}
	}
	return owned, nil
}

// OwnsDocument reports whether the document exists and belongs to tenantID.
func (s *Store) OwnsDocument(ctx context.Context, tenantID, documentID string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var ok bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM documents d
			LEFT JOIN matters m ON m.id = d.matter_id
			LEFT JOIN claims cl ON cl.id = d.claim_id
			WHERE d.id = $1 AND COALESCE(m.company_id, cl.company_id) = $2
		)`, documentID, tenantID).Scan(&ok)
	if err != nil {
		return false, &db.Error{Op: db.OpOwnsDocument, Err: err}
	}
	return ok, nil
}

// UpdateEmbeddings writes every vector or none. Each UPDATE re-checks ownership
// inside the transaction, so a concurrent re-parenting cannot leak a write.
func (s *Store) UpdateEmbeddings(ctx context.Context, tenantID string, rows []db.EmbeddingRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	for _, r := range rows {
		if len(r.Vector) != s.dimensions {
			return 0, &db.Error{Op: db.OpUpdateEmbeddings, Err: fmt.Errorf(
				"chunk %s: got %d, want %d: %w", r.ChunkID, len(r.Vector), s.dimensions, db.ErrDimMismatch)}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &db.Error{Op: db.OpUpdateEmbeddings, Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE document_chunks c SET embedding = $1, embedding_model = $2
		FROM documents d
		LEFT JOIN matters m ON m.id = d.matter_id
		LEFT JOIN claims cl ON cl.id = d.claim_id
		WHERE c.id = $3 AND d.id = c.document_id
		  AND COALESCE(m.company_id, cl.company_id) = $4`)
	if err != nil {
		return 0, &db.Error{Op: db.OpUpdateEmbeddings, Err: fmt.Errorf("prepare: %w", err)}
	}
	defer stmt.Close()

	updated := 0
	for _, r := range rows {
		res, err := stmt.ExecContext(ctx, pgvector.NewVector(r.Vector), r.Model, r.ChunkID, tenantID)
		if err != nil {
			return 0, &db.Error{Op: db.OpUpdateEmbeddings, Err: fmt.Errorf("update chunk %s: %w", r.ChunkID, err)}
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, &db.Error{Op: db.OpUpdateEmbeddings, Err: err}
		}
		updated += int(n)
	}
	if updated != len(rows) {
		return 0, &db.Error{Op: db.OpUpdateEmbeddings, Err: fmt.Errorf(
			"updated %d of %d rows: %w", updated, len(rows), db.ErrPartialWrite)}
	}

	if err := tx.Commit(); err != nil {
		return 0, &db.Error{Op: db.OpUpdateEmbeddings, Err: fmt.Errorf("commit: %w", err)}
	}
	return updated, nil
}

// DocumentEmbeddings returns the stored vectors of a tenant-owned document, by chunk index.
// Chunks without an embedding are omitted.
func (s *Store) DocumentEmbeddings(ctx context.Context, tenantID, documentID string) ([]db.ChunkEmbedding, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.chunk_index, c.embedding, COALESCE(c.embedding_model, '')
		FROM document_chunks c`+ownershipJoin+`
		WHERE c.document_id = $1 AND c.embedding IS NOT NULL
		  AND COALESCE(m.company_id, cl.company_id) = $2
		ORDER BY c.chunk_index`, documentID, tenantID)
	if err != nil {
		return nil, &db.Error{Op: db.OpDocumentEmbeddings, Err: err}
	}
	defer rows.Close()

	var out []db.ChunkEmbedding
	for rows.Next() {
		var (
			e   db.ChunkEmbedding
			vec pgvector.Vector
		)
		if err := rows.Scan(&e.ChunkID, &e.Index, &vec, &e.Model); err != nil {
			return nil, &db.Error{Op: db.OpDocumentEmbeddings, Err: fmt.Errorf("scan embedding: %w", err)}
		}
		e.Vector = vec.Slice()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpDocumentEmbeddings, Err: err}
	}
	return out, nil
}
