package retrieval

import (
	"context"

	"github.com/opencampus/tutordex/internal/domain"
)

// ChunkStore is the read path into the persisted corpus.
// Implementations stream at most limit rows that carry an embedding,
// in stable scan order, and never mutate the corpus.
type ChunkStore interface {
	ScanEmbedded(ctx context.Context, limit int, fn func(domain.Chunk) error) error
}
