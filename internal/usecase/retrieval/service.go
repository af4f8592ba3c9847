// Package retrieval stores chunk embeddings and answers similarity queries,
// enforcing tenant isolation on every call.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexrag/internal/domain"
	domchunk "github.com/kailas-cloud/lexrag/internal/domain/chunk"
	"github.com/kailas-cloud/lexrag/internal/metrics"
)

const (
	opStore  = "store_embeddings"
	opGet    = "get_embeddings"
	opSearch = "similarity_search"
	opList   = "list_chunks"

	securityEvent = "tenant_isolation_violation"
)

// Options configure a Service for one deployment.
type Options struct {
	// Model is the deployment embedding model. Empty disables model checks.
	Model string
	// Dimensions is the fixed vector size. Zero disables the dimension guard.
	Dimensions int
	// StrictModel rejects writes from other models and restricts search to Model.
	StrictModel  bool
	DefaultLimit int
	MaxLimit     int
}

// DefaultOptions returns options for the default vector configuration.
func DefaultOptions() Options {
	vc := domain.DefaultVectorConfig()
	return Options{
		Model:        vc.Model,
		Dimensions:   vc.Dimensions,
		StrictModel:  true,
		DefaultLimit: 5,
		MaxLimit:     100,
	}
}

// SearchRequest is a tenant-scoped similarity query.
type SearchRequest struct {
	TenantID  string
	ScopeID   string // optional matter or claim id
	Vector    []float32
	Limit     int     // 0 uses the default
	Threshold float64 // minimum similarity in [0,1]
}

// Service implements store_embeddings, get_embeddings, list_chunks and similarity_search.
type Service struct {
	repo   Repository
	embed  Embedder
	opts   Options
	logger *zap.Logger
}

// New creates a retrieval service. embed may be nil when SearchText is unused.
func New(repo Repository, embed Embedder, opts Options, logger *zap.Logger) *Service {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 5
	}
	if opts.MaxLimit < opts.DefaultLimit {
		opts.MaxLimit = opts.DefaultLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, embed: embed, opts: opts, logger: logger}
}

// StoreEmbeddings writes one vector per chunk. Every chunk must belong to tenantID;
// a single foreign or unknown chunk rejects the whole batch before anything is written.
// Re-storing the same vectors is idempotent.
func (s *Service) StoreEmbeddings(
	ctx context.Context, chunkIDs []string, vectors [][]float32, model, tenantID string,
) (n int, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOp(opStore, start, err) }()

	if err = s.validateStore(chunkIDs, vectors, model, tenantID); err != nil {
		return 0, err
	}

	owned, err := s.repo.OwnedChunkIDs(ctx, tenantID, chunkIDs)
	if err != nil {
		return 0, fmt.Errorf("verify ownership: %w", err)
	}
	if rejected := missing(chunkIDs, owned); len(rejected) > 0 {
		s.reportViolation(opStore, tenantID, len(chunkIDs), rejected)
		return 0, domain.NewOwnershipError(tenantID, rejected)
	}

	embs := make([]domchunk.Embedding, len(chunkIDs))
	for i, id := range chunkIDs {
		embs[i] = domchunk.Embedding{ChunkID: id, Vector: vectors[i], Model: model}
	}

	n, err = s.repo.UpdateEmbeddings(ctx, tenantID, embs)
	if err != nil {
		return 0, fmt.Errorf("store embeddings: %w", err)
	}

	s.logger.Debug("Embeddings stored",
		zap.String("tenant_id", tenantID),
		zap.String("model", model),
		zap.Int("count", n),
		zap.Duration("duration", time.Since(start)),
	)
	return n, nil
}

func (s *Service) validateStore(chunkIDs []string, vectors [][]float32, model, tenantID string) error {
	if tenantID == "" {
		return domain.Validationf("tenant id is required")
	}
	if len(chunkIDs) != len(vectors) {
		return domain.Validationf("got %d chunk ids and %d embeddings", len(chunkIDs), len(vectors))
	}
	if len(chunkIDs) == 0 {
		return domain.Validationf("no embeddings to store")
	}
	if strings.TrimSpace(model) == "" {
		return domain.Validationf("embedding model is required")
	}
	if s.opts.StrictModel && s.opts.Model != "" && model != s.opts.Model {
		return fmt.Errorf("%w: got %q, deployment uses %q", domain.ErrModelMismatch, model, s.opts.Model)
	}

	seen := make(map[string]struct{}, len(chunkIDs))
	for i, id := range chunkIDs {
		if id == "" {
			return domain.Validationf("chunk id at position %d is empty", i)
		}
		if _, dup := seen[id]; dup {
			return domain.Validationf("duplicate chunk id %s", id)
		}
		seen[id] = struct{}{}
		if err := s.checkDimensions(vectors[i]); err != nil {
			return fmt.Errorf("embedding for chunk %s: %w", id, err)
		}
	}
	return nil
}

// GetEmbeddings returns the stored vectors of a document, ordered by chunk index.
// Chunks without a vector are omitted. A document outside the tenant is rejected
// with an ownership error whether or not it exists.
func (s *Service) GetEmbeddings(
	ctx context.Context, documentID, tenantID string,
) (embs []domchunk.Embedding, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOp(opGet, start, err) }()

	if tenantID == "" || documentID == "" {
		return nil, domain.Validationf("tenant id and document id are required")
	}

	ok, err := s.repo.OwnsDocument(ctx, tenantID, documentID)
	if err != nil {
		return nil, fmt.Errorf("verify ownership: %w", err)
	}
	if !ok {
		s.reportViolation(opGet, tenantID, 1, []string{documentID})
		return nil, domain.NewOwnershipError(tenantID, []string{documentID})
	}

	embs, err = s.repo.DocumentEmbeddings(ctx, tenantID, documentID)
	if err != nil {
		return nil, fmt.Errorf("get embeddings: %w", err)
	}
	return embs, nil
}

// ListChunks returns a tenant-owned document's chunks ordered by index, for citation display.
func (s *Service) ListChunks(
	ctx context.Context, documentID, tenantID string,
) (chunks []domchunk.Chunk, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOp(opList, start, err) }()

	if tenantID == "" || documentID == "" {
		return nil, domain.Validationf("tenant id and document id are required")
	}

	ok, err := s.repo.OwnsDocument(ctx, tenantID, documentID)
	if err != nil {
		return nil, fmt.Errorf("verify ownership: %w", err)
	}
	if !ok {
		s.reportViolation(opList, tenantID, 1, []string{documentID})
		return nil, domain.NewOwnershipError(tenantID, []string{documentID})
	}

	chunks, err = s.repo.List(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	return chunks, nil
}

// SimilaritySearch returns the tenant's chunks nearest to the query vector whose
// similarity is at least the threshold, by ascending distance. No match is an
// empty result, not an error.
func (s *Service) SimilaritySearch(ctx context.Context, req SearchRequest) (hits []domchunk.Hit, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOp(opSearch, start, err) }()

	q, err := s.buildQuery(req)
	if err != nil {
		return nil, err
	}

	hits, err = s.repo.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	metrics.SearchResults.Observe(float64(len(hits)))

	s.logger.Debug("Similarity search completed",
		zap.String("tenant_id", req.TenantID),
		zap.String("scope_id", req.ScopeID),
		zap.Int("limit", q.Limit),
		zap.Float64("max_distance", q.MaxDistance),
		zap.Int("hits", len(hits)),
		zap.Duration("duration", time.Since(start)),
	)
	return hits, nil
}

// SearchText embeds the query text and runs SimilaritySearch.
func (s *Service) SearchText(ctx context.Context, text string, req SearchRequest) ([]domchunk.Hit, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.Validationf("query text is empty")
	}
	if s.embed == nil {
		return nil, fmt.Errorf("search text: no query embedder configured")
	}

	res, err := s.embed.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}
	domain.UsageFromContext(ctx).AddTokens(res.TotalTokens)

	req.Vector = res.Embedding
	return s.SimilaritySearch(ctx, req)
}

func (s *Service) buildQuery(req SearchRequest) (domchunk.Query, error) {
	if req.TenantID == "" {
		return domchunk.Query{}, domain.Validationf("tenant id is required")
	}
	if len(req.Vector) == 0 {
		return domchunk.Query{}, domain.Validationf("query embedding is empty")
	}
	if err := s.checkDimensions(req.Vector); err != nil {
		return domchunk.Query{}, fmt.Errorf("query embedding: %w", err)
	}
	// Cosine distance is undefined for a zero vector.
	if isZeroVector(req.Vector) {
		return domchunk.Query{}, domain.Validationf("query embedding must not be all zeros")
	}
	if req.Threshold < 0 || req.Threshold > 1 {
		return domchunk.Query{}, domain.Validationf("similarity threshold %v outside [0,1]", req.Threshold)
	}

	limit := req.Limit
	switch {
	case limit == 0:
		limit = s.opts.DefaultLimit
	case limit < 0:
		return domchunk.Query{}, domain.Validationf("limit must be positive, got %d", limit)
	case limit > s.opts.MaxLimit:
		return domchunk.Query{}, domain.Validationf("limit %d exceeds maximum %d", limit, s.opts.MaxLimit)
	}

	q := domchunk.Query{
		TenantID:    req.TenantID,
		ScopeID:     req.ScopeID,
		Vector:      req.Vector,
		MaxDistance: domain.MaxDistanceForThreshold(req.Threshold),
		Limit:       limit,
	}
	if s.opts.StrictModel {
		q.Model = s.opts.Model
	}
	return q, nil
}

func (s *Service) checkDimensions(v []float32) error {
	if s.opts.Dimensions > 0 && len(v) != s.opts.Dimensions {
		return fmt.Errorf("%w: got %d, expected %d", domain.ErrVectorDimMismatch, len(v), s.opts.Dimensions)
	}
	return nil
}

func (s *Service) reportViolation(op, tenantID string, requested int, rejected []string) {
	metrics.OwnershipRejectionsTotal.WithLabelValues(op).Inc()
	s.logger.Warn("Rejected cross-tenant access",
		zap.String("event", securityEvent),
		zap.String("op", op),
		zap.String("tenant_id", tenantID),
		zap.Int("requested", requested),
		zap.Int("rejected", len(rejected)),
		zap.Strings("rejected_ids", rejected),
	)
}

// missing returns the ids not present in owned, preserving request order.
func missing(ids, owned []string) []string {
	set := make(map[string]struct{}, len(owned))
	for _, id := range owned {
		set[id] = struct{}{}
	}
	var out []string
	for _, id := range ids {
		if _, ok := set[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func isZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
