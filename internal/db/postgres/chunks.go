package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kailas-cloud/lexrag/internal/db"
)

// ReplaceChunks deletes a document's chunks and inserts the new set in one transaction.
// New chunks carry no embedding.
func (s *Store) ReplaceChunks(ctx context.Context, documentID string, chunks []db.ChunkRow) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &db.Error{Op: db.OpReplaceChunks, Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE id = $1`, documentID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return &db.Error{Op: db.OpReplaceChunks, Err: fmt.Errorf("document %s: %w", documentID, db.ErrNotFound)}
	}
	if err != nil {
		return &db.Error{Op: db.OpReplaceChunks, Err: fmt.Errorf("lookup document: %w", err)}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return &db.Error{Op: db.OpReplaceChunks, Err: fmt.Errorf("delete chunks: %w", err)}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO document_chunks
			(id, document_id, chunk_index, content, metadata, token_count, char_count, start_char, end_char)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9)`)
	if err != nil {
		return &db.Error{Op: db.OpReplaceChunks, Err: fmt.Errorf("prepare: %w", err)}
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx,
			c.ID, documentID, c.Index, c.Content, string(c.Metadata),
			c.TokenCount, c.CharCount, c.StartChar, c.EndChar,
		); err != nil {
			return &db.Error{Op: db.OpReplaceChunks, Err: fmt.Errorf("insert chunk %d: %w", c.Index, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &db.Error{Op: db.OpReplaceChunks, Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

// ListChunks returns a document's chunks ordered by index.
func (s *Store) ListChunks(ctx context.Context, documentID string) ([]db.ChunkRow, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, chunk_index, content, metadata, token_count, char_count,
		       start_char, end_char, embedding_model, embedding IS NOT NULL, created_at
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, &db.Error{Op: db.OpListChunks, Err: err}
	}
	defer rows.Close()

	var out []db.ChunkRow
	for rows.Next() {
		var (
			c     db.ChunkRow
			model sql.NullString
		)
		if err := rows.Scan(
			&c.ID, &c.DocumentID, &c.Index, &c.Content, &c.Metadata, &c.TokenCount, &c.CharCount,
			&c.StartChar, &c.EndChar, &model, &c.HasEmbedding, &c.CreatedAt,
		); err != nil {
			return nil, &db.Error{Op: db.OpListChunks, Err: fmt.Errorf("scan chunk: %w", err)}
		}
		c.EmbeddingModel = model.String
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpListChunks, Err: err}
	}
	return out, nil
}
