package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/lexrag/internal/domain"
	domchunk "github.com/kailas-cloud/lexrag/internal/domain/chunk"
)

const contract = "ARTICLE I\n\n" +
	"This is the first clause of the agreement with sufficient words to pass minimum size threshold easily for testing purposes here now."

// --- ProcessDocument ---

func TestProcessDocument(t *testing.T) {
	svc, repo, emb, w := newTestService(t)
	ctx, usage := domain.NewContextWithUsage(context.Background())

	res, err := svc.ProcessDocument(ctx, Request{TenantID: "acme", DocumentID: "doc-1", Text: contract})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Chunks != 1 || res.Embedded != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(repo.saved["doc-1"]) != 1 {
		t.Errorf("expected chunks saved")
	}
	if emb.calls != 1 {
		t.Errorf("expected one batch embed call, got %d", emb.calls)
	}
	if len(w.ids) != 1 || w.ids[0] != "doc-1-0" {
		t.Errorf("unexpected stored ids: %v", w.ids)
	}
	if w.models[0] != "default-model" {
		t.Errorf("expected fallback model, got %q", w.models[0])
	}
	if usage.TotalTokens() != 2 {
		t.Errorf("expected 2 tokens recorded, got %d", usage.TotalTokens())
	}
}

func TestProcessDocument_ProviderModelWins(t *testing.T) {
	svc, _, emb, w := newTestService(t)
	emb.model = "provider-model"

	if _, err := svc.ProcessDocument(context.Background(),
		Request{TenantID: "acme", DocumentID: "doc-1", Text: contract}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.models[0] != "provider-model" {
		t.Errorf("expected provider model, got %q", w.models[0])
	}
}

func TestProcessDocument_EmptyText(t *testing.T) {
	svc, repo, emb, w := newTestService(t)

	res, err := svc.ProcessDocument(context.Background(), Request{TenantID: "acme", DocumentID: "doc-1", Text: "  \n\n "})
	if err != nil {
		t.Fatalf("empty document is not an error: %v", err)
	}
	if res.Chunks != 0 {
		t.Errorf("expected 0 chunks, got %d", res.Chunks)
	}
	if _, ok := repo.saved["doc-1"]; !ok {
		t.Error("old chunks must be superseded by the empty set")
	}
	if emb.calls != 0 || len(w.ids) != 0 {
		t.Error("nothing to embed")
	}
}

func TestProcessDocument_ForeignDocument(t *testing.T) {
	svc, repo, _, _ := newTestService(t)

	_, err := svc.ProcessDocument(context.Background(), Request{TenantID: "acme", DocumentID: "doc-x", Text: contract})
	if !errors.Is(err, domain.ErrOwnership) {
		t.Fatalf("expected ErrOwnership, got %v", err)
	}
	if len(repo.saved) != 0 {
		t.Error("foreign document must not be touched")
	}
}

func TestProcessDocument_Validation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.ProcessDocument(context.Background(), Request{DocumentID: "doc-1"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestProcessDocument_EmbedError(t *testing.T) {
	svc, repo, emb, w := newTestService(t)
	previous := []domchunk.Chunk{{ID: "old-0", DocumentID: "doc-1", Content: "old text"}}
	repo.saved["doc-1"] = previous
	emb.err = domain.ErrEmbeddingProviderError

	_, err := svc.ProcessDocument(context.Background(), Request{TenantID: "acme", DocumentID: "doc-1", Text: contract})
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if !domain.IsRetriable(err) {
		t.Error("provider failures are retriable")
	}
	if len(w.ids) != 0 {
		t.Error("no vectors may be stored")
	}
	if got := repo.saved["doc-1"]; len(got) != 1 || got[0].ID != "old-0" {
		t.Errorf("previous chunks must survive a provider failure, got %+v", got)
	}
}

func TestProcessDocument_SaveError(t *testing.T) {
	svc, repo, _, w := newTestService(t)
	repo.saveErr = domain.ErrStoreUnavailable

	_, err := svc.ProcessDocument(context.Background(), Request{TenantID: "acme", DocumentID: "doc-1", Text: contract})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if len(w.ids) != 0 {
		t.Error("no vectors may be stored after a failed save")
	}
}

// --- ProcessMany ---

func TestProcessMany(t *testing.T) {
	svc, _, _, w := newTestService(t)

	results := svc.WithConcurrency(2).ProcessMany(context.Background(), []Request{
		{TenantID: "acme", DocumentID: "doc-1", Text: contract},
		{TenantID: "acme", DocumentID: "doc-x", Text: contract},
		{TenantID: "acme", DocumentID: "doc-2", Text: contract},
	})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, want := range []string{"doc-1", "doc-x", "doc-2"} {
		if results[i].DocumentID != want {
			t.Errorf("result %d: got %s, want %s", i, results[i].DocumentID, want)
		}
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Errorf("unexpected errors: %v, %v", results[0].Err, results[2].Err)
	}
	if !errors.Is(results[1].Err, domain.ErrOwnership) {
		t.Errorf("expected ownership error for doc-x, got %v", results[1].Err)
	}
	if len(w.ids) != 2 {
		t.Errorf("expected 2 stored vectors, got %d", len(w.ids))
	}
}

func TestProcessMany_TooLarge(t *testing.T) {
	svc, _, emb, _ := newTestService(t)
	svc.WithMaxBatchSize(1)

	results := svc.ProcessMany(context.Background(), []Request{
		{TenantID: "acme", DocumentID: "doc-1"},
		{TenantID: "acme", DocumentID: "doc-2"},
	})
	for _, r := range results {
		if !errors.Is(r.Err, domain.ErrValidation) || !strings.Contains(r.Err.Error(), "batch size") {
			t.Errorf("expected batch size error, got %v", r.Err)
		}
	}
	if emb.calls != 0 {
		t.Error("nothing should be processed")
	}
}

func TestProcessMany_Cancelled(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := svc.ProcessMany(ctx, []Request{{TenantID: "acme", DocumentID: "doc-1", Text: contract}})
	if !errors.Is(results[0].Err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", results[0].Err)
	}
}
