package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kailas-cloud/lexrag/internal/db"
)

// UpsertMatter inserts or renames a matter.
func (s *Store) UpsertMatter(ctx context.Context, m db.Matter) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO matters (id, company_id, name) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		m.ID, m.CompanyID, m.Name); err != nil {
		return &db.Error{Op: db.OpUpsertMatter, Err: err}
	}
	return nil
}

// UpsertClaim inserts or renames a claim.
func (s *Store) UpsertClaim(ctx context.Context, c db.Claim) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO claims (id, company_id, name) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		c.ID, c.CompanyID, c.Name); err != nil {
		return &db.Error{Op: db.OpUpsertClaim, Err: err}
	}
	return nil
}

// UpsertDocument inserts or retitles a document.
func (s *Store) UpsertDocument(ctx context.Context, d db.Document) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, matter_id, claim_id, title) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title`,
		d.ID, nullString(d.MatterID), nullString(d.ClaimID), d.Title); err != nil {
		return &db.Error{Op: db.OpUpsertDocument, Err: err}
	}
	return nil
}

// ReplaceChunks deletes a document's chunks and inserts the new set in one transaction.
func (s *Store) ReplaceChunks(ctx context.Context, documentID string, chunks []db.ChunkRow) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &db.Error{Op: db.OpReplaceChunks, Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE id = ?`, documentID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return &db.Error{Op: db.OpReplaceChunks, Err: fmt.Errorf("document %s: %w", documentID, db.ErrNotFound)}
	}
	if err != nil {
		return &db.Error{Op: db.OpReplaceChunks, Err: fmt.Errorf("lookup document: %w", err)}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = ?`, documentID); err != nil {
		return &db.Error{Op: db.OpReplaceChunks, Err: fmt.Errorf("delete chunks: %w", err)}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO document_chunks
			(id, document_id, chunk_index, content, metadata, token_count, char_count, start_char, end_char)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
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
		WHERE document_id = ?
		ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, &db.Error{Op: db.OpListChunks, Err: err}
	}
	defer rows.Close()

	var out []db.ChunkRow
	for rows.Next() {
		var (
			c         db.ChunkRow
			metadata  string
			model     sql.NullString
			createdAt sql.NullTime
		)
		if err := rows.Scan(
			&c.ID, &c.DocumentID, &c.Index, &c.Content, &metadata, &c.TokenCount, &c.CharCount,
			&c.StartChar, &c.EndChar, &model, &c.HasEmbedding, &createdAt,
		); err != nil {
			return nil, &db.Error{Op: db.OpListChunks, Err: fmt.Errorf("scan chunk: %w", err)}
		}
		c.Metadata = []byte(metadata)
		c.EmbeddingModel = model.String
		if createdAt.Valid {
			c.CreatedAt = createdAt.Time
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpListChunks, Err: err}
	}
	return out, nil
}
