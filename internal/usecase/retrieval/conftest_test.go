package retrieval

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexrag/internal/domain"
	domchunk "github.com/kailas-cloud/lexrag/internal/domain/chunk"
)

// mockRepo keeps chunk ownership and vectors in memory.
type mockRepo struct {
	owner   map[string]string // chunk id -> tenant
	docs    map[string]string // document id -> tenant
	vectors map[string]domchunk.Embedding

	ownedErr    error
	updateErr   error
	searchErr   error
	listErr     error
	searchHits  []domchunk.Hit
	lastQuery   domchunk.Query
	updateCalls int
	searchCalls int
	listCalls   int
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		owner:   map[string]string{},
		docs:    map[string]string{},
		vectors: map[string]domchunk.Embedding{},
	}
}

func (m *mockRepo) OwnedChunkIDs(_ context.Context, tenantID string, ids []string) ([]string, error) {
	if m.ownedErr != nil {
		return nil, m.ownedErr
	}
	var out []string
	for _, id := range ids {
		if m.owner[id] == tenantID {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *mockRepo) OwnsDocument(_ context.Context, tenantID, documentID string) (bool, error) {
	return m.docs[documentID] == tenantID, nil
}

func (m *mockRepo) UpdateEmbeddings(_ context.Context, _ string, embs []domchunk.Embedding) (int, error) {
	m.updateCalls++
	if m.updateErr != nil {
		return 0, m.updateErr
	}
	for _, e := range embs {
		m.vectors[e.ChunkID] = e
	}
	return len(embs), nil
}

func (m *mockRepo) DocumentEmbeddings(_ context.Context, _, _ string) ([]domchunk.Embedding, error) {
	return []domchunk.Embedding{{ChunkID: "c1", Vector: []float32{1, 0, 0}, Model: "m"}}, nil
}

func (m *mockRepo) List(_ context.Context, documentID string) ([]domchunk.Chunk, error) {
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	return []domchunk.Chunk{
		{ID: "a1", DocumentID: documentID, Index: 0, Content: "first"},
		{ID: "a2", DocumentID: documentID, Index: 1, Content: "second"},
	}, nil
}

func (m *mockRepo) Search(_ context.Context, q domchunk.Query) ([]domchunk.Hit, error) {
	m.searchCalls++
	m.lastQuery = q
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	out := []domchunk.Hit{}
	for _, h := range m.searchHits {
		if h.Distance <= q.MaxDistance {
			out = append(out, h)
		}
	}
	return out, nil
}

type mockEmbedder struct {
	vec  []float32
	err  error
	text string
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.text = text
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vec, Model: "m", TotalTokens: 7}, nil
}

func testOptions() Options {
	return Options{Model: "m", Dimensions: 3, StrictModel: true, DefaultLimit: 5, MaxLimit: 20}
}

func newTestService(t *testing.T) (*Service, *mockRepo, *mockEmbedder) {
	t.Helper()
	repo := newMockRepo()
	repo.owner["a1"] = "tenant-a"
	repo.owner["a2"] = "tenant-a"
	repo.owner["b1"] = "tenant-b"
	repo.docs["doc-a"] = "tenant-a"
	repo.docs["doc-b"] = "tenant-b"
	emb := &mockEmbedder{vec: []float32{1, 0, 0}}
	return New(repo, emb, testOptions(), zap.NewNop()), repo, emb
}
