package chunk

import (
	"context"
	"strconv"
	"testing"

	"github.com/kailas-cloud/lexrag/internal/db"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	replaceFn      func(ctx context.Context, documentID string, chunks []db.ChunkRow) error
	listFn         func(ctx context.Context, documentID string) ([]db.ChunkRow, error)
	ownedFn        func(ctx context.Context, tenantID string, ids []string) ([]string, error)
	ownsDocumentFn func(ctx context.Context, tenantID, documentID string) (bool, error)
	updateFn       func(ctx context.Context, tenantID string, rows []db.EmbeddingRow) (int, error)
	embeddingsFn   func(ctx context.Context, tenantID, documentID string) ([]db.ChunkEmbedding, error)
	searchFn       func(ctx context.Context, q *db.KNNQuery) ([]db.SearchHit, error)
}

func (m *mockStore) ReplaceChunks(ctx context.Context, documentID string, chunks []db.ChunkRow) error {
	if m.replaceFn != nil {
		return m.replaceFn(ctx, documentID, chunks)
	}
	return nil
}

func (m *mockStore) ListChunks(ctx context.Context, documentID string) ([]db.ChunkRow, error) {
	if m.listFn != nil {
		return m.listFn(ctx, documentID)
	}
	return nil, nil
}

func (m *mockStore) OwnedChunkIDs(ctx context.Context, tenantID string, ids []string) ([]string, error) {
	if m.ownedFn != nil {
		return m.ownedFn(ctx, tenantID, ids)
	}
	return ids, nil
}

func (m *mockStore) OwnsDocument(ctx context.Context, tenantID, documentID string) (bool, error) {
	if m.ownsDocumentFn != nil {
		return m.ownsDocumentFn(ctx, tenantID, documentID)
	}
	return true, nil
}

func (m *mockStore) UpdateEmbeddings(ctx context.Context, tenantID string, rows []db.EmbeddingRow) (int, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, tenantID, rows)
	}
	return len(rows), nil
}

func (m *mockStore) DocumentEmbeddings(ctx context.Context, tenantID, documentID string) ([]db.ChunkEmbedding, error) {
	if m.embeddingsFn != nil {
		return m.embeddingsFn(ctx, tenantID, documentID)
	}
	return nil, nil
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) ([]db.SearchHit, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, q)
	}
	return []db.SearchHit{}, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	r := New(ms)
	n := 0
	r.newID = func() string {
		n++
		return "gen-" + strconv.Itoa(n)
	}
	return r, ms
}
