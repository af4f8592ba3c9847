package domain

// Matter is a legal matter owned by one company (the tenant).
type Matter struct {
	ID        string
	CompanyID string
	Name      string
}

// Claim is an insurance claim owned by one company (the tenant).
type Claim struct {
	ID        string
	CompanyID string
	Name      string
}

// Document is an uploaded file attached to exactly one matter or claim.
// Its tenant is the owner of that container.
type Document struct {
	ID       string
	MatterID string
	ClaimID  string
	Title    string
}

// ScopeID returns the id of the containing matter or claim.
func (d Document) ScopeID() string {
	if d.MatterID != "" {
		return d.MatterID
	}
	return d.ClaimID
}

// Validate checks the document has an id and exactly one container.
func (d Document) Validate() error {
	if d.ID == "" {
		return Validationf("document id is required")
	}
	if (d.MatterID == "") == (d.ClaimID == "") {
		return Validationf("document %s must belong to exactly one matter or claim", d.ID)
	}
	return nil
}
