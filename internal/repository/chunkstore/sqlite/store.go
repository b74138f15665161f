// Package sqlite is the default read-only chunk store driver.
// The offline ingestion job owns the schema and writes; the query
// path only ever scans.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/opencampus/tutordex/internal/domain"
)

// Store reads chunk rows from a SQLite knowledge base file.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens the knowledge base at path.
// WAL mode keeps concurrent request scans from blocking each other.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() {
	_ = s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w: %w", err, domain.ErrStoreUnavailable)
	}
	return nil
}

// WaitForReady polls Ping until the store responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// ScanEmbedded streams up to limit chunks that carry an embedding to
// fn, in id order. Rows without an embedding are filtered by the
// query itself — embedded-ness is decided on column length, without
// deserializing the vector — so they cost no scan budget.
func (s *Store) ScanEmbedded(ctx context.Context, limit int, fn func(domain.Chunk) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_kind, title, ordinal, content, url, embedding
		FROM chunks
		WHERE embedding IS NOT NULL AND length(embedding) > 0
		ORDER BY id
		LIMIT ?`, limit)
	if err != nil {
		return fmt.Errorf("query chunks: %w: %w", err, domain.ErrStoreUnavailable)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c      domain.Chunk
			source string
			title  sql.NullString
			url    sql.NullString
			raw    []byte
		)
		if err := rows.Scan(&c.ID, &source, &title, &c.Ordinal, &c.Content, &url, &raw); err != nil {
			return fmt.Errorf("scan chunk row: %w: %w", err, domain.ErrStoreUnavailable)
		}
		c.Source = domain.SourceKind(source)
		c.Title = title.String
		c.URL = url.String
		// The ingestion job stores the vector as a JSON float array.
		// A row whose vector fails to decode is yielded without an
		// embedding and the engine skips it.
		if err := json.Unmarshal(raw, &c.Embedding); err != nil {
			c.Embedding = nil
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate chunks: %w: %w", err, domain.ErrStoreUnavailable)
	}
	return nil
}

// Stats counts total and embedded chunks per source.
func (s *Store) Stats(ctx context.Context) (domain.CorpusStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_kind,
		       COUNT(*),
		       SUM(CASE WHEN embedding IS NOT NULL AND length(embedding) > 0 THEN 1 ELSE 0 END)
		FROM chunks
		GROUP BY source_kind`)
	if err != nil {
		return domain.CorpusStats{}, fmt.Errorf("count chunks: %w: %w", err, domain.ErrStoreUnavailable)
	}
	defer rows.Close()

	var stats domain.CorpusStats
	for rows.Next() {
		var (
			source          string
			total, embedded int
		)
		if err := rows.Scan(&source, &total, &embedded); err != nil {
			return domain.CorpusStats{}, fmt.Errorf("scan stats row: %w: %w", err, domain.ErrStoreUnavailable)
		}
		switch domain.SourceKind(source) {
		case domain.SourceDiscourse:
			stats.DiscourseChunks = total
			stats.DiscourseEmbedded = embedded
		case domain.SourceDocumentation:
			stats.DocumentationChunks = total
			stats.DocumentationEmbedded = embedded
		}
	}
	if err := rows.Err(); err != nil {
		return domain.CorpusStats{}, fmt.Errorf("iterate stats: %w: %w", err, domain.ErrStoreUnavailable)
	}
	return stats, nil
}
