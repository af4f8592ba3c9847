package db

import "time"

// Matter is a legal matter owned by a company (tenant).
type Matter struct {
	ID        string
	CompanyID string
	Name      string
}

// Claim is an insurance claim owned by a company (tenant).
type Claim struct {
	ID        string
	CompanyID string
	Name      string
}

// Document belongs to exactly one of a matter or a claim.
type Document struct {
	ID       string
	MatterID string
	ClaimID  string
	Title    string
}

// ChunkRow is a persisted chunk. Metadata is the JSON-encoded citation metadata.
type ChunkRow struct {
	ID             string
	DocumentID     string
	Index          int
	Content        string
	TokenCount     int
	CharCount      int
	StartChar      int
	EndChar        int
	Metadata       []byte
	EmbeddingModel string
	HasEmbedding   bool
	CreatedAt      time.Time
}

// EmbeddingRow is one vector write.
type EmbeddingRow struct {
	ChunkID string
	Vector  []float32
	Model   string
}

// ChunkEmbedding is a stored vector with its chunk position.
type ChunkEmbedding struct {
	ChunkID string
	Index   int
	Vector  []float32
	Model   string
}

// KNNQuery is the input for tenant-scoped cosine search.
type KNNQuery struct {
	TenantID    string
	ScopeID     string // matter or claim id; empty searches the whole tenant
	Vector      []float32
	Model       string // empty means any model
	MaxDistance float64
	Limit       int
}

// SearchHit is a single row returned by SearchKNN, ordered by ascending distance.
type SearchHit struct {
	ChunkID    string
	DocumentID string
	Content    string
	Index      int
	Distance   float64
}
