package postgres

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/lexrag/internal/db"
)

// SearchKNN returns the closest embedded chunks owned by q.TenantID with cosine
// distance <= q.MaxDistance, nearest first. A non-empty q.ScopeID narrows the
// search to one matter or claim.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) ([]db.SearchHit, error) {
	if len(q.Vector) != s.dimensions {
		return nil, &db.Error{Op: db.OpSearchKNN, Err: fmt.Errorf(
			"got %d, want %d: %w", len(q.Vector), s.dimensions, db.ErrDimMismatch)}
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.content, c.chunk_index, c.embedding <=> $1 AS distance
		FROM document_chunks c`+ownershipJoin+`
		WHERE c.embedding IS NOT NULL
		  AND COALESCE(m.company_id, cl.company_id) = $2
		  AND ($3::text = '' OR d.matter_id = $3::text OR d.claim_id = $3::text)
		  AND ($4::text = '' OR c.embedding_model = $4::text)
		  AND c.embedding <=> $1 <= $5
		ORDER BY c.embedding <=> $1
		LIMIT $6`,
		pgvector.NewVector(q.Vector), q.TenantID, q.ScopeID, q.Model, q.MaxDistance, q.Limit)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearchKNN, Err: err}
	}
	defer rows.Close()

	hits := make([]db.SearchHit, 0, q.Limit)
	for rows.Next() {
		var h db.SearchHit
		if err := rows.Scan(&h.ChunkID, &h.DocumentID, &h.Content, &h.Index, &h.Distance); err != nil {
			return nil, &db.Error{Op: db.OpSearchKNN, Err: fmt.Errorf("scan hit: %w", err)}
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpSearchKNN, Err: err}
	}
	return hits, nil
}
