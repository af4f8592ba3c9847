package catalog

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/lexrag/internal/db"
	"github.com/kailas-cloud/lexrag/internal/domain"
)

// store is the consumer interface for the tenant hierarchy (ISP).
type store interface {
	UpsertMatter(ctx context.Context, m db.Matter) error
	UpsertClaim(ctx context.Context, c db.Claim) error
	UpsertDocument(ctx context.Context, d db.Document) error
}

// Repo registers matters, claims and documents.
type Repo struct {
	store store
}

// New creates a catalog repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// UpsertMatter creates or renames a matter.
func (r *Repo) UpsertMatter(ctx context.Context, m domain.Matter) error {
	if m.ID == "" || m.CompanyID == "" {
		return domain.Validationf("matter id and company id are required")
	}
	if err := r.store.UpsertMatter(ctx, db.Matter{ID: m.ID, CompanyID: m.CompanyID, Name: m.Name}); err != nil {
		return fmt.Errorf("upsert matter %s: %w: %w", m.ID, domain.ErrStoreUnavailable, err)
	}
	return nil
}

// UpsertClaim creates or renames a claim.
func (r *Repo) UpsertClaim(ctx context.Context, c domain.Claim) error {
	if c.ID == "" || c.CompanyID == "" {
		return domain.Validationf("claim id and company id are required")
	}
	if err := r.store.UpsertClaim(ctx, db.Claim{ID: c.ID, CompanyID: c.CompanyID, Name: c.Name}); err != nil {
		return fmt.Errorf("upsert claim %s: %w: %w", c.ID, domain.ErrStoreUnavailable, err)
	}
	return nil
}

// UpsertDocument creates or retitles a document.
func (r *Repo) UpsertDocument(ctx context.Context, d domain.Document) error {
	if err := d.Validate(); err != nil {
		return err
	}
	row := db.Document{ID: d.ID, MatterID: d.MatterID, ClaimID: d.ClaimID, Title: d.Title}
	if err := r.store.UpsertDocument(ctx, row); err != nil {
		return fmt.Errorf("upsert document %s: %w: %w", d.ID, domain.ErrStoreUnavailable, err)
	}
	return nil
}
