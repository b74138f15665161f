package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/opencampus/tutordex/internal/domain"
)

const testSchema = `
CREATE TABLE chunks (
	id INTEGER PRIMARY KEY,
	source_kind TEXT NOT NULL,
	title TEXT,
	ordinal INTEGER NOT NULL DEFAULT 0,
	content TEXT NOT NULL,
	url TEXT,
	embedding TEXT
)`

func openTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "kb.db")
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)

	if _, err := store.db.Exec(testSchema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return store
}

func insertChunk(t *testing.T, s *Store, id int64, source domain.SourceKind, content, url string, vec []float32) {
	t.Helper()

	var emb any
	if vec != nil {
		data, err := json.Marshal(vec)
		if err != nil {
			t.Fatalf("marshal embedding: %v", err)
		}
		emb = string(data)
	}
	_, err := s.db.Exec(
		`INSERT INTO chunks (id, source_kind, title, ordinal, content, url, embedding) VALUES (?, ?, ?, 0, ?, ?, ?)`,
		id, string(source), "t", content, url, emb,
	)
	if err != nil {
		t.Fatalf("insert chunk %d: %v", id, err)
	}
}

func TestScanEmbedded_SkipsRowsWithoutEmbedding(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	insertChunk(t, store, 1, domain.SourceDiscourse, "a", "https://forum/1", []float32{1, 0})
	insertChunk(t, store, 2, domain.SourceDocumentation, "b", "https://docs/2", nil)
	insertChunk(t, store, 3, domain.SourceDocumentation, "c", "https://docs/3", []float32{0, 1})

	var seen []int64
	err := store.ScanEmbedded(ctx, 100, func(c domain.Chunk) error {
		if !c.Embedded() {
			t.Errorf("chunk %d yielded without embedding", c.ID)
		}
		seen = append(seen, c.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("ScanEmbedded: %v", err)
	}

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 3 {
		t.Fatalf("scanned ids = %v, want [1 3]", seen)
	}
}

func TestScanEmbedded_HonorsLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := int64(1); i <= 10; i++ {
		insertChunk(t, store, i, domain.SourceDiscourse, "c", "https://forum", []float32{float32(i)})
	}

	var count int
	err := store.ScanEmbedded(ctx, 4, func(domain.Chunk) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("ScanEmbedded: %v", err)
	}
	if count != 4 {
		t.Fatalf("scanned %d rows, want 4", count)
	}
}

func TestScanEmbedded_RowFields(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	insertChunk(t, store, 7, domain.SourceDocumentation, "body text", "https://docs/page", []float32{0.25, -0.5})

	var got domain.Chunk
	err := store.ScanEmbedded(ctx, 10, func(c domain.Chunk) error {
		got = c
		return nil
	})
	if err != nil {
		t.Fatalf("ScanEmbedded: %v", err)
	}

	if got.ID != 7 || got.Source != domain.SourceDocumentation {
		t.Errorf("identity mismatch: %+v", got)
	}
	if got.Content != "body text" || got.URL != "https://docs/page" {
		t.Errorf("content mismatch: %+v", got)
	}
	if len(got.Embedding) != 2 || got.Embedding[0] != 0.25 {
		t.Errorf("embedding mismatch: %v", got.Embedding)
	}
}

func TestStats(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	insertChunk(t, store, 1, domain.SourceDiscourse, "a", "", []float32{1})
	insertChunk(t, store, 2, domain.SourceDiscourse, "b", "", nil)
	insertChunk(t, store, 3, domain.SourceDocumentation, "c", "", []float32{1})

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}

	if stats.DiscourseChunks != 2 || stats.DiscourseEmbedded != 1 {
		t.Errorf("discourse stats = %+v", stats)
	}
	if stats.DocumentationChunks != 1 || stats.DocumentationEmbedded != 1 {
		t.Errorf("documentation stats = %+v", stats)
	}
	if stats.Total() != 3 {
		t.Errorf("total = %d, want 3", stats.Total())
	}
}

func TestScanEmbedded_NullHandling(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// NULL title/url rows must not fail the scan.
	data, _ := json.Marshal([]float32{1})
	if _, err := store.db.Exec(
		`INSERT INTO chunks (id, source_kind, title, ordinal, content, url, embedding) VALUES (1, 'discourse', NULL, 0, 'c', NULL, ?)`,
		string(data),
	); err != nil {
		t.Fatalf("insert: %v", err)
	}

	var got domain.Chunk
	if err := store.ScanEmbedded(ctx, 10, func(c domain.Chunk) error {
		got = c
		return nil
	}); err != nil {
		t.Fatalf("ScanEmbedded: %v", err)
	}
	if got.ID != 1 || got.Title != "" || got.URL != "" {
		t.Errorf("null columns mishandled: %+v", got)
	}
}
