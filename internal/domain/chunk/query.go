package chunk

// Query is a tenant-scoped nearest neighbour request in distance space.
type Query struct {
	TenantID    string
	ScopeID     string // optional matter or claim id
	Vector      []float32
	Model       string // optional; restricts to vectors written by this model
	MaxDistance float64
	Limit       int
}
