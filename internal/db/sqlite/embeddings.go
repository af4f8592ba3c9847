package sqlite

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kailas-cloud/lexrag/internal/db"
	"github.com/kailas-cloud/lexrag/internal/domain"
)

// OwnedChunkIDs returns the subset of chunkIDs whose document belongs to tenantID.
func (s *Store) OwnedChunkIDs(ctx context.Context, tenantID string, chunkIDs []string) ([]string, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunkIDs)), ",")
	args := make([]any, 0, len(chunkIDs)+1)
	for _, id := range chunkIDs {
		args = append(args, id)
	}
	args = append(args, tenantID)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM document_chunks
		WHERE id IN (`+placeholders+`)
		  AND document_id IN (`+ownedDocuments+`)`, args...)
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

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM (`+ownedDocuments+` AND d.id = ?)`, tenantID, documentID).Scan(&n)
	if err != nil {
		return false, &db.Error{Op: db.OpOwnsDocument, Err: err}
	}
	return n > 0, nil
}

// UpdateEmbeddings writes every vector or none, re-checking ownership per row.
func (s *Store) UpdateEmbeddings(ctx context.Context, tenantID string, rows []db.EmbeddingRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	for _, r := range rows {
		if len(r.Vector) != s.dimensions {
			return 0, &db.Error{Op: db.OpUpdateEmbeddings, Err: fmt.Errorf(
				"chunk %s: got %d, want %d: %w", r.ChunkID, len(r.Vector), s.dimensions, db.ErrDimMismatch)}
		}
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &db.Error{Op: db.OpUpdateEmbeddings, Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE document_chunks SET embedding = ?, embedding_model = ?
		WHERE id = ? AND document_id IN (`+ownedDocuments+`)`)
	if err != nil {
		return 0, &db.Error{Op: db.OpUpdateEmbeddings, Err: fmt.Errorf("prepare: %w", err)}
	}
	defer stmt.Close()

	updated := 0
	for _, r := range rows {
		res, err := stmt.ExecContext(ctx, db.EncodeVector(r.Vector), r.Model, r.ChunkID, tenantID)
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
func (s *Store) DocumentEmbeddings(ctx context.Context, tenantID, documentID string) ([]db.ChunkEmbedding, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chunk_index, embedding, COALESCE(embedding_model, '')
		FROM document_chunks
		WHERE document_id = ? AND embedding IS NOT NULL
		  AND document_id IN (`+ownedDocuments+`)
		ORDER BY chunk_index`, documentID, tenantID)
	if err != nil {
		return nil, &db.Error{Op: db.OpDocumentEmbeddings, Err: err}
	}
	defer rows.Close()

	var out []db.ChunkEmbedding
	for rows.Next() {
		var (
			e    db.ChunkEmbedding
			blob []byte
		)
		if err := rows.Scan(&e.ChunkID, &e.Index, &blob, &e.Model); err != nil {
			return nil, &db.Error{Op: db.OpDocumentEmbeddings, Err: fmt.Errorf("scan embedding: %w", err)}
		}
		if e.Vector, err = db.DecodeVector(blob); err != nil {
			return nil, &db.Error{Op: db.OpDocumentEmbeddings, Err: err}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpDocumentEmbeddings, Err: err}
	}
	return out, nil
}

// SearchKNN filters candidates by tenant, scope and model in SQL, then ranks them
// by cosine distance in process.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) ([]db.SearchHit, error) {
	if len(q.Vector) != s.dimensions {
		return nil, &db.Error{Op: db.OpSearchKNN, Err: fmt.Errorf(
			"got %d, want %d: %w", len(q.Vector), s.dimensions, db.ErrDimMismatch)}
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.content, c.chunk_index, c.embedding
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		LEFT JOIN matters m ON m.id = d.matter_id
		LEFT JOIN claims cl ON cl.id = d.claim_id
		WHERE c.embedding IS NOT NULL
		  AND COALESCE(m.company_id, cl.company_id) = ?
		  AND (? = '' OR d.matter_id = ? OR d.claim_id = ?)
		  AND (? = '' OR c.embedding_model = ?)`,
		q.TenantID, q.ScopeID, q.ScopeID, q.ScopeID, q.Model, q.Model)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearchKNN, Err: err}
	}
	defer rows.Close()

	var hits []db.SearchHit
	for rows.Next() {
		var (
			h    db.SearchHit
			blob []byte
		)
		if err := rows.Scan(&h.ChunkID, &h.DocumentID, &h.Content, &h.Index, &blob); err != nil {
			return nil, &db.Error{Op: db.OpSearchKNN, Err: fmt.Errorf("scan hit: %w", err)}
		}
		vec, err := db.DecodeVector(blob)
		if err != nil {
			return nil, &db.Error{Op: db.OpSearchKNN, Err: err}
		}
		if len(vec) != len(q.Vector) {
			continue // written under a different dimension
		}
		h.Distance = domain.CosineDistance(q.Vector, vec)
		if h.Distance <= q.MaxDistance {
			hits = append(hits, h)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpSearchKNN, Err: err}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	if hits == nil {
		hits = []db.SearchHit{}
	}
	return hits, nil
}
