// Package storetest holds the behavioural contract every db.VectorStore backend must pass.
package storetest

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/lexrag/internal/db"
	"github.com/kailas-cloud/lexrag/internal/domain"
)

// Dimensions is the vector size the suite writes. Factories must configure it.
const Dimensions = 3

// Factory returns a migrated, empty-or-shared store with Dimensions-sized vectors.
type Factory func(t *testing.T) db.VectorStore

// fixture is two tenants: A owns a matter with two chunks, B owns a claim with one.
type fixture struct {
	tenantA, tenantB string
	matterA, claimB  string
	docA, docB       string
	chunkA0, chunkA1 string
	chunkB0          string
}

func seed(t *testing.T, s db.VectorStore) fixture {
	t.Helper()
	ctx := context.Background()
	id := func(p string) string { return p + "-" + uuid.NewString() }

	f := fixture{
		tenantA: id("company-a"), tenantB: id("company-b"),
		matterA: id("matter"), claimB: id("claim"),
		docA: id("doc-a"), docB: id("doc-b"),
		chunkA0: id("chunk-a0"), chunkA1: id("chunk-a1"), chunkB0: id("chunk-b0"),
	}

	require.NoError(t, s.UpsertMatter(ctx, db.Matter{ID: f.matterA, CompanyID: f.tenantA, Name: "Acme v. Beta"}))
	require.NoError(t, s.UpsertClaim(ctx, db.Claim{ID: f.claimB, CompanyID: f.tenantB, Name: "Water damage"}))
	require.NoError(t, s.UpsertDocument(ctx, db.Document{ID: f.docA, MatterID: f.matterA, Title: "MSA"}))
	require.NoError(t, s.UpsertDocument(ctx, db.Document{ID: f.docB, ClaimID: f.claimB, Title: "Policy"}))

	require.NoError(t, s.ReplaceChunks(ctx, f.docA, []db.ChunkRow{
		row(f.chunkA0, 0, "ARTICLE I\n\nDefinitions."),
		row(f.chunkA1, 1, "ARTICLE II\n\nTerm."),
	}))
	require.NoError(t, s.ReplaceChunks(ctx, f.docB, []db.ChunkRow{
		row(f.chunkB0, 0, "Coverage A applies."),
	}))
	return f
}

func row(id string, index int, content string) db.ChunkRow {
	md, _ := json.Marshal(map[string]any{
		"start_page": 1, "end_page": 1, "section": nil, "paragraph_count": 1, "has_section_header": false,
	})
	return db.ChunkRow{
		ID: id, Index: index, Content: content, Metadata: md,
		TokenCount: len(content) / 4, CharCount: len(content), StartChar: index * 100, EndChar: index*100 + len(content),
	}
}

// Run executes the contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("MigrateIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Migrate(context.Background()))
	})

	t.Run("ListChunksOrdered", func(t *testing.T) {
		s := newStore(t)
		f := seed(t, s)
		rows, err := s.ListChunks(context.Background(), f.docA)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, f.chunkA0, rows[0].ID)
		assert.Equal(t, 1, rows[1].Index)
		assert.False(t, rows[0].HasEmbedding)
		assert.JSONEq(t, string(row("", 0, "").Metadata), string(rows[0].Metadata))
	})

	t.Run("ReplaceChunksSwapsWholeSet", func(t *testing.T) {
		s := newStore(t)
		f := seed(t, s)
		ctx := context.Background()

		_, err := s.UpdateEmbeddings(ctx, f.tenantA, []db.EmbeddingRow{
			{ChunkID: f.chunkA0, Vector: []float32{1, 0, 0}, Model: "m"},
		})
		require.NoError(t, err)

		replacement := uuid.NewString()
		require.NoError(t, s.ReplaceChunks(ctx, f.docA, []db.ChunkRow{row(replacement, 0, "Rewritten.")}))

		rows, err := s.ListChunks(ctx, f.docA)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, replacement, rows[0].ID)
		assert.False(t, rows[0].HasEmbedding)
	})

	t.Run("OwnedChunkIDs", func(t *testing.T) {
		s := newStore(t)
		f := seed(t, s)
		owned, err := s.OwnedChunkIDs(context.Background(), f.tenantA, []string{f.chunkA0, f.chunkB0, "missing"})
		require.NoError(t, err)
		assert.Equal(t, []string{f.chunkA0}, owned)
	})

	t.Run("OwnsDocument", func(t *testing.T) {
		s := newStore(t)
		f := seed(t, s)
		ctx := context.Background()

		ok, err := s.OwnsDocument(ctx, f.tenantA, f.docA)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.OwnsDocument(ctx, f.tenantA, f.docB)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.OwnsDocument(ctx, f.tenantB, f.docB)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.OwnsDocument(ctx, f.tenantA, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("UpdateEmbeddingsAllOrNothing", func(t *testing.T) {
		s := newStore(t)
		f := seed(t, s)
		ctx := context.Background()

		n, err := s.UpdateEmbeddings(ctx, f.tenantA, []db.EmbeddingRow{
			{ChunkID: f.chunkA0, Vector: []float32{1, 0, 0}, Model: "m"},
			{ChunkID: f.chunkB0, Vector: []float32{0, 1, 0}, Model: "m"},
		})
		require.ErrorIs(t, err, db.ErrPartialWrite)
		assert.Zero(t, n)

		embA, err := s.DocumentEmbeddings(ctx, f.tenantA, f.docA)
		require.NoError(t, err)
		assert.Empty(t, embA, "tenant A rows must be rolled back")

		embB, err := s.DocumentEmbeddings(ctx, f.tenantB, f.docB)
		require.NoError(t, err)
		assert.Empty(t, embB, "tenant B rows must be untouched")
	})

	t.Run("UpdateEmbeddingsRejectsDimension", func(t *testing.T) {
		s := newStore(t)
		f := seed(t, s)
		_, err := s.UpdateEmbeddings(context.Background(), f.tenantA, []db.EmbeddingRow{
			{ChunkID: f.chunkA0, Vector: []float32{1, 0}, Model: "m"},
		})
		require.ErrorIs(t, err, db.ErrDimMismatch)
	})

	t.Run("DocumentEmbeddingsRoundTrip", func(t *testing.T) {
		s := newStore(t)
		f := seed(t, s)
		ctx := context.Background()

		n, err := s.UpdateEmbeddings(ctx, f.tenantA, []db.EmbeddingRow{
			{ChunkID: f.chunkA1, Vector: []float32{0, 1, 0}, Model: "m"},
			{ChunkID: f.chunkA0, Vector: []float32{1, 0, 0}, Model: "m"},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		embs, err := s.DocumentEmbeddings(ctx, f.tenantA, f.docA)
		require.NoError(t, err)
		require.Len(t, embs, 2)
		assert.Equal(t, f.chunkA0, embs[0].ChunkID)
		assert.Equal(t, []float32{1, 0, 0}, embs[0].Vector)
		assert.Equal(t, "m", embs[1].Model)

		other, err := s.DocumentEmbeddings(ctx, f.tenantB, f.docA)
		require.NoError(t, err)
		assert.Empty(t, other, "foreign tenant must not read vectors")
	})

	t.Run("SearchKNN", func(t *testing.T) {
		s := newStore(t)
		f := seed(t, s)
		ctx := context.Background()
		embedAll(t, s, f)

		hits, err := s.SearchKNN(ctx, &db.KNNQuery{
			TenantID: f.tenantA, ScopeID: f.matterA, Vector: []float32{1, 0, 0},
			MaxDistance: 2, Limit: 5,
		})
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, f.chunkA0, hits[0].ChunkID)
		assert.InDelta(t, 0, hits[0].Distance, 1e-5)
		assert.InDelta(t, 1, hits[1].Distance, 1e-5)
		assert.LessOrEqual(t, hits[0].Distance, hits[1].Distance)

		limited, err := s.SearchKNN(ctx, &db.KNNQuery{
			TenantID: f.tenantA, ScopeID: f.matterA, Vector: []float32{1, 0, 0},
			MaxDistance: 2, Limit: 1,
		})
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("SearchKNNTenantIsolation", func(t *testing.T) {
		s := newStore(t)
		f := seed(t, s)
		embedAll(t, s, f)

		// B's chunk is identical to the query but lives under B's claim.
		hits, err := s.SearchKNN(context.Background(), &db.KNNQuery{
			TenantID: f.tenantA, ScopeID: f.claimB, Vector: []float32{1, 0, 0},
			MaxDistance: 2, Limit: 5,
		})
		require.NoError(t, err)
		assert.Empty(t, hits)

		hits, err = s.SearchKNN(context.Background(), &db.KNNQuery{
			TenantID: f.tenantB, ScopeID: f.matterA, Vector: []float32{1, 0, 0},
			MaxDistance: 2, Limit: 5,
		})
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("SearchKNNTenantWide", func(t *testing.T) {
		s := newStore(t)
		f := seed(t, s)
		embedAll(t, s, f)

		hits, err := s.SearchKNN(context.Background(), &db.KNNQuery{
			TenantID: f.tenantB, Vector: []float32{1, 0, 0}, MaxDistance: 2, Limit: 10,
		})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, f.chunkB0, hits[0].ChunkID)
		assert.Equal(t, f.docB, hits[0].DocumentID)
	})

	t.Run("SearchKNNThresholdYieldsEmpty", func(t *testing.T) {
		s := newStore(t)
		f := seed(t, s)
		embedAll(t, s, f)

		// cosine 0.7 against chunk A0 -> similarity 0.85; threshold 0.9 -> max distance 0.2.
		q := []float32{0.7, 0, float32(math.Sqrt(1 - 0.49))}
		hits, err := s.SearchKNN(context.Background(), &db.KNNQuery{
			TenantID: f.tenantA, ScopeID: f.matterA, Vector: q, MaxDistance: 0.2, Limit: 5,
		})
		require.NoError(t, err)
		assert.NotNil(t, hits)
		assert.Empty(t, hits)
	})

	t.Run("SearchKNNThresholdMonotonic", func(t *testing.T) {
		s := newStore(t)
		f := seed(t, s)
		embedAll(t, s, f)

		// Distances ~0.106 to A0 and ~0.553 to A1.
		q := []float32{1, 0.5, 0}
		prev := -1
		for _, threshold := range []float64{0, 0.5, 0.9, 1} {
			hits, err := s.SearchKNN(context.Background(), &db.KNNQuery{
				TenantID: f.tenantA, Vector: q,
				MaxDistance: domain.MaxDistanceForThreshold(threshold), Limit: 10,
			})
			require.NoError(t, err)
			if prev >= 0 {
				assert.LessOrEqual(t, len(hits), prev, "threshold %.1f returned more hits", threshold)
			}
			prev = len(hits)
			for i := 1; i < len(hits); i++ {
				assert.LessOrEqual(t, hits[i-1].Distance, hits[i].Distance, "threshold %.1f order", threshold)
			}
			switch threshold {
			case 0.5:
				assert.Len(t, hits, 2)
			case 0.9:
				require.Len(t, hits, 1)
				assert.Equal(t, f.chunkA0, hits[0].ChunkID)
			case 1:
				assert.Empty(t, hits)
			}
		}
	})

	t.Run("SearchKNNModelFilter", func(t *testing.T) {
		s := newStore(t)
		f := seed(t, s)
		embedAll(t, s, f)

		hits, err := s.SearchKNN(context.Background(), &db.KNNQuery{
			TenantID: f.tenantA, ScopeID: f.matterA, Vector: []float32{1, 0, 0},
			Model: "other-model", MaxDistance: 2, Limit: 5,
		})
		require.NoError(t, err)
		assert.Empty(t, hits)

		hits, err = s.SearchKNN(context.Background(), &db.KNNQuery{
			TenantID: f.tenantA, ScopeID: f.matterA, Vector: []float32{1, 0, 0},
			Model: "m", MaxDistance: 2, Limit: 5,
		})
		require.NoError(t, err)
		assert.Len(t, hits, 2)
	})
}

func embedAll(t *testing.T, s db.VectorStore, f fixture) {
	t.Helper()
	ctx := context.Background()
	_, err := s.UpdateEmbeddings(ctx, f.tenantA, []db.EmbeddingRow{
		{ChunkID: f.chunkA0, Vector: []float32{1, 0, 0}, Model: "m"},
		{ChunkID: f.chunkA1, Vector: []float32{0, 1, 0}, Model: "m"},
	})
	require.NoError(t, err)
	_, err = s.UpdateEmbeddings(ctx, f.tenantB, []db.EmbeddingRow{
		{ChunkID: f.chunkB0, Vector: []float32{1, 0, 0}, Model: "m"},
	})
	require.NoError(t, err)
}
