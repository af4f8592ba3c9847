package ingest

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/kailas-cloud/lexrag/internal/chunking"
	"github.com/kailas-cloud/lexrag/internal/domain"
	domchunk "github.com/kailas-cloud/lexrag/internal/domain/chunk"
)

type mockRepo struct {
	mu      sync.Mutex
	docs    map[string]string // document id -> tenant
	saved   map[string][]domchunk.Chunk
	saveErr error
}

func (m *mockRepo) OwnsDocument(_ context.Context, tenantID, documentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[documentID] == tenantID, nil
}

func (m *mockRepo) Save(_ context.Context, documentID string, chunks []domchunk.Chunk) ([]domchunk.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	out := make([]domchunk.Chunk, len(chunks))
	for i, c := range chunks {
		c.ID = documentID + "-" + strconv.Itoa(i)
		c.DocumentID = documentID
		out[i] = c
	}
	m.saved[documentID] = out
	return out, nil
}

type mockEmbedder struct {
	mu    sync.Mutex
	err   error
	calls int
	model string
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: []float32{1, 0}}, m.err
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return domain.BatchEmbeddingResult{}, m.err
	}
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts)), Model: m.model}
	for i := range texts {
		out.Embeddings[i] = []float32{1, 0}
		out.TotalTokens += 2
	}
	return out, nil
}

type mockWriter struct {
	mu     sync.Mutex
	ids    []string
	models []string
	err    error
}

func (m *mockWriter) StoreEmbeddings(_ context.Context, ids []string, vectors [][]float32, model, _ string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.ids = append(m.ids, ids...)
	m.models = append(m.models, model)
	return len(vectors), nil
}

func newTestService(t *testing.T) (*Service, *mockRepo, *mockEmbedder, *mockWriter) {
	t.Helper()
	engine, err := chunking.New(chunking.DefaultConfig())
	if err != nil {
		t.Fatalf("chunking.New: %v", err)
	}
	repo := &mockRepo{
		docs:  map[string]string{"doc-1": "acme", "doc-2": "acme", "doc-x": "other"},
		saved: map[string][]domchunk.Chunk{},
	}
	emb := &mockEmbedder{}
	w := &mockWriter{}
	return New(engine, repo, emb, w, "default-model", nil), repo, emb, w
}
