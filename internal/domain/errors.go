package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation signals a malformed request (caller's fault, never retried).
	ErrValidation = errors.New("validation failed")
	// ErrOwnership signals a tenant isolation breach attempt.
	ErrOwnership = errors.New("tenant ownership check failed")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrStoreUnavailable signals a backing-store I/O failure (connection, timeout, constraint).
	ErrStoreUnavailable = errors.New("backing store unavailable")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrModelMismatch signals an embedding model that differs from the deployment model.
	ErrModelMismatch = errors.New("embedding model mismatch")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)

// OwnershipError wraps ErrOwnership with the chunk or document IDs that failed verification.
type OwnershipError struct {
	TenantID string
	Rejected []string
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("%s: tenant %q does not own %d resource(s): %s",
		ErrOwnership.Error(), e.TenantID, len(e.Rejected), strings.Join(e.Rejected, ","))
}

func (e *OwnershipError) Unwrap() error { return ErrOwnership }

// NewOwnershipError creates an ownership error for the given tenant.
func NewOwnershipError(tenantID string, rejected []string) error {
	return &OwnershipError{TenantID: tenantID, Rejected: rejected}
}

// Validationf builds an error wrapping ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsRetriable reports whether the caller may retry the failed operation.
// Only backing-store and provider failures qualify; validation and ownership never do.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrOwnership) {
		return false
	}
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrEmbeddingProviderError)
}
