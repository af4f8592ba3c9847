package db

import "errors"

// Sentinel errors for database operations.
var (
	ErrKeyNotFound  = errors.New("db: key not found")
	ErrNotFound     = errors.New("db: row not found")
	ErrPartialWrite = errors.New("db: not every row matched, transaction rolled back")
	ErrDimMismatch  = errors.New("db: vector dimension does not match column")
)

// Op constants name store operations for error context.
const (
	OpPing               = "PING"
	OpMigrate            = "MIGRATE"
	OpUpsertMatter       = "UPSERT_MATTER"
	OpUpsertClaim        = "UPSERT_CLAIM"
	OpUpsertDocument     = "UPSERT_DOCUMENT"
	OpReplaceChunks      = "REPLACE_CHUNKS"
	OpListChunks         = "LIST_CHUNKS"
	OpOwnedChunks        = "OWNED_CHUNKS"
	OpOwnsDocument       = "OWNS_DOCUMENT"
	OpUpdateEmbeddings   = "UPDATE_EMBEDDINGS"
	OpDocumentEmbeddings = "DOCUMENT_EMBEDDINGS"
	OpSearchKNN          = "SEARCH_KNN"
	OpGet                = "GET"
	OpSet                = "SET"
	OpDel                = "DEL"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
