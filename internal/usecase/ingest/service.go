// Package ingest runs the document pipeline: chunk, persist, embed, store vectors.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/lexrag/internal/chunking"
	"github.com/kailas-cloud/lexrag/internal/domain"
	domchunk "github.com/kailas-cloud/lexrag/internal/domain/chunk"
	"github.com/kailas-cloud/lexrag/internal/metrics"
)

const (
	// MaxBatchSize is the maximum number of documents per ProcessMany call.
	MaxBatchSize = 100
	// DefaultConcurrency bounds documents processed in parallel.
	DefaultConcurrency = 4
)

// Request is one document to (re)process.
type Request struct {
	TenantID   string
	DocumentID string
	Text       string
	Pages      []domchunk.PageBoundary
}

// Result reports the outcome for one document.
type Result struct {
	DocumentID string
	Chunks     int
	Embedded   int
	Tokens     int
	Err        error
}

// Service processes documents end to end.
type Service struct {
	chunker     Chunker
	repo        ChunkRepository
	embed       domain.Embedder
	vectors     EmbeddingWriter
	model       string
	maxBatch    int
	concurrency int
	logger      *zap.Logger
}

// New creates an ingest service. model is recorded on stored vectors when the
// provider does not report one.
func New(
	chunker Chunker, repo ChunkRepository, embed domain.Embedder,
	vectors EmbeddingWriter, model string, logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		chunker: chunker, repo: repo, embed: embed, vectors: vectors,
		model:       model,
		maxBatch:    MaxBatchSize,
		concurrency: DefaultConcurrency,
		logger:      logger,
	}
}

// WithMaxBatchSize configures the maximum batch size.
func (s *Service) WithMaxBatchSize(size int) *Service {
	if size > 0 {
		s.maxBatch = size
	}
	return s
}

// WithConcurrency configures how many documents ProcessMany handles at once.
func (s *Service) WithConcurrency(n int) *Service {
	if n > 0 {
		s.concurrency = n
	}
	return s
}

// ProcessDocument embeds the document's new chunks, then replaces the stored
// chunks and writes their vectors. A provider failure leaves the previous chunks
// and vectors untouched. A failure while storing vectors leaves the new chunks
// saved without embeddings; they are invisible to search until the document is
// processed again. A document with no text clears its old chunks and succeeds
// with zero chunks.
func (s *Service) ProcessDocument(ctx context.Context, req Request) (Result, error) {
	res := Result{DocumentID: req.DocumentID}
	start := time.Now()

	if req.TenantID == "" || req.DocumentID == "" {
		return res, domain.Validationf("tenant id and document id are required")
	}

	ok, err := s.repo.OwnsDocument(ctx, req.TenantID, req.DocumentID)
	if err != nil {
		return res, fmt.Errorf("verify ownership: %w", err)
	}
	if !ok {
		metrics.OwnershipRejectionsTotal.WithLabelValues("ingest").Inc()
		s.logger.Warn("Rejected cross-tenant ingest",
			zap.String("event", "tenant_isolation_violation"),
			zap.String("tenant_id", req.TenantID),
			zap.String("document_id", req.DocumentID),
		)
		return res, domain.NewOwnershipError(req.TenantID, []string{req.DocumentID})
	}

	chunks := s.chunker.Chunk(chunking.Input{
		DocumentID: req.DocumentID,
		Text:       req.Text,
		Pages:      req.Pages,
	})
	observeChunks(chunks)

	var (
		vectors [][]float32
		model   = s.model
	)
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Content
		}
		emb, err := domain.EmbedAll(ctx, s.embed, texts)
		if err != nil {
			return res, fmt.Errorf("embed chunks: %w", err)
		}
		if len(emb.Embeddings) != len(chunks) {
			return res, fmt.Errorf("%w: got %d embeddings for %d chunks",
				domain.ErrEmbeddingProviderError, len(emb.Embeddings), len(chunks))
		}
		vectors = emb.Embeddings
		res.Tokens = emb.TotalTokens
		domain.UsageFromContext(ctx).AddTokens(emb.TotalTokens)
		if emb.Model != "" {
			model = emb.Model
		}
	}

	saved, err := s.repo.Save(ctx, req.DocumentID, chunks)
	if err != nil {
		return res, fmt.Errorf("save chunks: %w", err)
	}
	res.Chunks = len(saved)
	if len(saved) == 0 {
		return res, nil
	}

	ids := make([]string, len(saved))
	for i, c := range saved {
		ids[i] = c.ID
	}

	n, err := s.vectors.StoreEmbeddings(ctx, ids, vectors, model, req.TenantID)
	if err != nil {
		return res, fmt.Errorf("store embeddings: %w", err)
	}
	res.Embedded = n

	s.logger.Debug("Document processed",
		zap.String("tenant_id", req.TenantID),
		zap.String("document_id", req.DocumentID),
		zap.Int("chunks", res.Chunks),
		zap.Int("embedded", res.Embedded),
		zap.Int("tokens", res.Tokens),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

// ProcessMany processes documents concurrently with per-document results in
// input order. One failing document does not stop the others.
func (s *Service) ProcessMany(ctx context.Context, reqs []Request) []Result {
	results := make([]Result, len(reqs))

	if len(reqs) > s.maxBatch {
		for i, r := range reqs {
			results[i] = Result{
				DocumentID: r.DocumentID,
				Err:        domain.Validationf("batch size exceeds %d", s.maxBatch),
			}
		}
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range reqs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = Result{DocumentID: reqs[i].DocumentID, Err: err}
				return nil
			}
			res, err := s.ProcessDocument(gctx, reqs[i])
			res.Err = err
			results[i] = res
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn("Document processing failed",
					zap.String("document_id", reqs[i].DocumentID),
					zap.Bool("retriable", domain.IsRetriable(err)),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait() // workers report through results

	return results
}

func observeChunks(chunks []domchunk.Chunk) {
	metrics.ChunksPerDocument.Observe(float64(len(chunks)))
	for _, c := range chunks {
		metrics.TokensPerChunk.Observe(float64(c.TokenCount))
	}
}
