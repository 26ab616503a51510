// Package sqlite appends documents to a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/search-indexer/internal/indexer"
	"github.com/JakeFAU/search-indexer/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	body TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	crawl_timestamp TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	stored_at TEXT NOT NULL
)`

// Sink writes documents into the documents table.
type Sink struct {
	db      *sql.DB
	builder *storage.Builder
}

// Open opens (or creates) the database at path and prepares the schema.
func Open(ctx context.Context, path string, builder *storage.Builder) (*Sink, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create documents table: %w", err)
	}
	if builder == nil {
		builder = storage.NewBuilder(nil, nil)
	}
	return &Sink{db: db, builder: builder}, nil
}

// Store implements indexer.Sink. Redelivered documents are ignored.
func (s *Sink) Store(ctx context.Context, msg indexer.Message) error {
	doc, err := s.builder.Build(msg)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO documents (id, url, body, title, description, crawl_timestamp, status_code, stored_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID,
		doc.URL,
		doc.Text,
		doc.Metadata.Title,
		doc.Metadata.Description,
		doc.Metadata.Timestamp,
		int(doc.Metadata.StatusCode),
		doc.StoredAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// Count returns the number of stored documents.
func (s *Sink) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Sink) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite database: %w", err)
	}
	return nil
}
