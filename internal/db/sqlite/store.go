// Package sqlite implements db.VectorStore on an embedded SQLite file.
// Vectors are stored as little-endian float32 BLOBs and ranked in process,
// which suits single-tenant development and CLI use.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/kailas-cloud/lexrag/internal/db"
	"github.com/kailas-cloud/lexrag/internal/db/sqlite/migrations"
)

// Compile-time check: Store implements db.VectorStore.
var _ db.VectorStore = (*Store)(nil)

// Config holds the database location and vector shape.
type Config struct {
	Path           string
	Dimensions     int
	CommandTimeout time.Duration
}

// Store implements db.VectorStore via modernc.org/sqlite.
type Store struct {
	db         *sql.DB
	path       string
	dimensions int
	timeout    time.Duration
}

// NewStore opens (creating if needed) the database file at cfg.Path.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	conn, err := sql.Open("sqlite",
		cfg.Path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer at a time.
	conn.SetMaxOpenConns(1)

	return &Store{
		db:         conn,
		path:       cfg.Path,
		dimensions: cfg.Dimensions,
		timeout:    cfg.CommandTimeout,
	}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Ping checks the database is usable.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() {
	_ = s.db.Close()
}

// WaitForReady pings once; a local file is either usable or not.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.Ping(ctx)
}

// Migrate applies pending migrations, each in its own transaction.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return &db.Error{Op: db.OpMigrate, Err: fmt.Errorf("create schema_migrations: %w", err)}
	}

	var current int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return &db.Error{Op: db.OpMigrate, Err: fmt.Errorf("current version: %w", err)}
	}

	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return &db.Error{Op: db.OpMigrate, Err: fmt.Errorf("read migrations: %w", err)}
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}
		content, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return &db.Error{Op: db.OpMigrate, Err: fmt.Errorf("read migration %s: %w", name, err)}
		}
		if err := s.apply(ctx, version, name, string(content)); err != nil {
			return &db.Error{Op: db.OpMigrate, Err: err}
		}
	}
	return nil
}

func (s *Store) apply(ctx context.Context, version int, name, content string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, content); err != nil {
		return fmt.Errorf("execute migration %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	return tx.Commit()
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// ownedDocuments selects the ids of documents owned by the tenant bound to the next "?".
const ownedDocuments = `
	SELECT d.id FROM documents d
	LEFT JOIN matters m ON m.id = d.matter_id
	LEFT JOIN claims cl ON cl.id = d.claim_id
	WHERE COALESCE(m.company_id, cl.company_id) = ?`
