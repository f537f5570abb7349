// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Call log and document persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/drawbridge/internal/diagram"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed; ":memory:" is supported for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS calls (
			id          TEXT PRIMARY KEY,
			request_id  TEXT NOT NULL,
			method      TEXT NOT NULL,
			routed      TEXT NOT NULL,
			code        INTEGER NOT NULL,
			duration_us INTEGER NOT NULL,
			created_at  TEXT NOT NULL,

			CHECK (routed IN ('local', 'remote', 'fallback_local'))
		);

		CREATE INDEX IF NOT EXISTS idx_calls_method ON calls(method);
		CREATE INDEX IF NOT EXISTS idx_calls_created ON calls(created_at DESC);

		CREATE TABLE IF NOT EXISTS documents (
			name       TEXT PRIMARY KEY,
			body       BLOB NOT NULL,
			updated_at TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// Append records one dispatched call.
func (s *SQLiteStore) Append(ctx context.Context, record *CallRecord) error {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO calls (id, request_id, method, routed, code, duration_us, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.RequestID,
		record.Method,
		record.Routed,
		record.Code,
		record.Duration.Microseconds(),
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting call record: %w", err)
	}

	s.logger.Debug("recorded call", "id", record.ID, "method", record.Method, "routed", record.Routed, "code", record.Code)
	return nil
}

// ListCalls returns call records newest-first.
// If the filter limit is 0 or negative, a default limit of 100 is used.
func (s *SQLiteStore) ListCalls(ctx context.Context, filter CallFilter) ([]*CallRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	query := `
		SELECT id, request_id, method, routed, code, duration_us, created_at
		FROM calls
	`
	var args []any
	if filter.Method != "" {
		query += ` WHERE method = ?`
		args = append(args, filter.Method)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying calls: %w", err)
	}
	defer rows.Close()

	var records []*CallRecord
	for rows.Next() {
		var rec CallRecord
		var durationUS int64
		var createdAtStr string

		if err := rows.Scan(&rec.ID, &rec.RequestID, &rec.Method, &rec.Routed, &rec.Code, &durationUS, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning call row: %w", err)
		}

		rec.Duration = time.Duration(durationUS) * time.Microsecond
		rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating call rows: %w", err)
	}
	return records, nil
}

// PutDocument stores a document as a JSON blob keyed by name.
// Uses INSERT OR REPLACE to handle both insert and update cases.
func (s *SQLiteStore) PutDocument(ctx context.Context, name string, doc *diagram.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO documents (name, body, updated_at)
		VALUES (?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		name,
		body,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}

	s.logger.Debug("saved document", "name", name, "size", len(body))
	return nil
}

// GetDocument retrieves a named document.
// Returns ErrDocNotFound if no document exists under that name. The blob
// decodes through the model's validation, so a corrupted row cannot produce
// an invalid document.
func (s *SQLiteStore) GetDocument(ctx context.Context, name string) (*diagram.Document, error) {
	query := `SELECT body FROM documents WHERE name = ?`

	var body []byte
	err := s.db.QueryRowContext(ctx, query, name).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%q: %w", name, ErrDocNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying document: %w", err)
	}

	doc := &diagram.Document{}
	if err := json.Unmarshal(body, doc); err != nil {
		return nil, fmt.Errorf("decoding document %q: %w", name, err)
	}
	return doc, nil
}

// ListDocuments returns stored document names in lexical order.
func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM documents ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning document name: %w", err)
		}
		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document rows: %w", err)
	}
	return names, nil
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
