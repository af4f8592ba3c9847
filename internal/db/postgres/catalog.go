package postgres

import (
	"context"

	"github.com/kailas-cloud/lexrag/internal/db"
)

// UpsertMatter inserts or renames a matter.
func (s *Store) UpsertMatter(ctx context.Context, m db.Matter) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO matters (id, company_id, name) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		m.ID, m.CompanyID, m.Name)
	if err != nil {
		return &db.Error{Op: db.OpUpsertMatter, Err: err}
	}
	return nil
}

// UpsertClaim inserts or renames a claim.
func (s *Store) UpsertClaim(ctx context.Context, c db.Claim) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO claims (id, company_id, name) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		c.ID, c.CompanyID, c.Name)
	if err != nil {
		return &db.Error{Op: db.OpUpsertClaim, Err: err}
	}
	return nil
}

// UpsertDocument inserts or retitles a document. The parent is fixed at creation.
func (s *Store) UpsertDocument(ctx context.Context, d db.Document) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, matter_id, claim_id, title) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title`,
		d.ID, nullString(d.MatterID), nullString(d.ClaimID), d.Title)
	if err != nil {
		return &db.Error{Op: db.OpUpsertDocument, Err: err}
	}
	return nil
}
