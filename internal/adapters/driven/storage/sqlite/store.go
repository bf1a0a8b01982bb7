package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/docdex/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/docdex/internal/core/domain"
	"github.com/custodia-labs/docdex/internal/core/ports/driven"
	"github.com/custodia-labs/docdex/internal/logger"
)

// dbFileName is the database file inside the store directory.
const dbFileName = "docdex.db"

// Store is the unified SQLite-backed persistence layer. A single
// connection owns the file; the pool is capped to one so writers never
// contend inside the process.
type Store struct {
	db       *sql.DB
	path     string
	readOnly bool

	migrateRetries int
	migrateDelay   time.Duration
}

var _ driven.DocumentStore = (*Store)(nil)

// Option configures the store.
type Option func(*Store)

// WithReadOnly forbids ingest operations.
func WithReadOnly(readOnly bool) Option {
	return func(s *Store) {
		s.readOnly = readOnly
	}
}

// WithMigrationRetry tunes the startup migration retry policy.
func WithMigrationRetry(maxRetries int, delay time.Duration) Option {
	return func(s *Store) {
		if maxRetries > 0 {
			s.migrateRetries = maxRetries
		}
		if delay > 0 {
			s.migrateDelay = delay
		}
	}
}

// NewStore opens (creating if needed) the database under dataDir.
// If dataDir is empty, defaults to ~/.docdex/data.
func NewStore(dataDir string, opts ...Option) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".docdex", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, dbFileName)

	// WAL mode for read concurrency, busy timeout for migration retry,
	// immediate-mode transactions so a migration takes the write lock up
	// front.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:             db,
		path:           dbPath,
		migrateRetries: 5,
		migrateDelay:   300 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.applyMigrations(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// JobStore returns the jobs persistence interface backed by this store.
func (s *Store) JobStore() driven.JobStore {
	return &jobStore{store: s}
}

// applyMigrations advances the schema, retrying on lock contention.
// Each migration file runs under an immediate-mode transaction.
func (s *Store) applyMigrations(fsys embed.FS) error {
	var lastErr error
	for attempt := 0; attempt <= s.migrateRetries; attempt++ {
		if attempt > 0 {
			logger.Warn("migration retry %d/%d: %v", attempt, s.migrateRetries, lastErr)
			time.Sleep(s.migrateDelay)
		}
		lastErr = s.migrateOnce(fsys)
		if lastErr == nil {
			return nil
		}
		if !isBusy(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// migrateOnce runs all pending migrations.
func (s *Store) migrateOnce(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}
		if version <= currentVersion {
			continue // Already applied
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.db.BeginTx(context.Background(), nil)
		if err != nil {
			return fmt.Errorf("beginning migration transaction: %w", err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
		logger.Info("applied migration %s", name)
	}

	return nil
}

// isBusy reports whether the error is lock contention worth retrying.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// ==================== Helper Functions ====================

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

// marshalJSON renders v as a JSON string for a TEXT column.
func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshalling json column: %w", err)
	}
	return string(b), nil
}

// unmarshalJSON parses a JSON TEXT column into v.
func unmarshalJSON(s string, v any) error {
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("unmarshalling json column: %w", err)
	}
	return nil
}

// chunkColumns is the select list shared by chunk scans.
const chunkColumns = "id, page_id, content, sort_order, section_level, section_path, types, embedding"

// scanChunkFields populates a chunk from a row scan.
func scanChunkFields(scan func(dest ...any) error) (*domain.Chunk, error) {
	var chunk domain.Chunk
	var pathJSON, typesJSON string
	var embedding []byte

	if err := scan(&chunk.ID, &chunk.PageID, &chunk.Content, &chunk.SortOrder,
		&chunk.Section.Level, &pathJSON, &typesJSON, &embedding); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}

	if err := json.Unmarshal([]byte(pathJSON), &chunk.Section.Path); err != nil {
		return nil, fmt.Errorf("unmarshalling section path: %w", err)
	}
	var names []string
	if err := json.Unmarshal([]byte(typesJSON), &names); err != nil {
		return nil, fmt.Errorf("unmarshalling chunk types: %w", err)
	}
	types, err := domain.ParseChunkTypes(names)
	if err != nil {
		return nil, err
	}
	chunk.Types = types
	chunk.Embedding = bytesToFloat32Slice(embedding)

	return &chunk, nil
}

// notStructuralOnly is the SQL predicate excluding scaffolding-only
// chunks from search results.
const notStructuralOnly = `NOT (types LIKE '%"structural"%' AND types NOT LIKE '%"content"%')`
