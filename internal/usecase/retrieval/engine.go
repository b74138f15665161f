// Package retrieval ranks corpus chunks against a query vector with a
// bounded linear scan. At the corpus's scale a scan under ScanLimit
// is cheaper than maintaining an index; if that assumption breaks,
// swap the Engine behind the same contract for an ANN-backed one.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/opencampus/tutordex/internal/domain"
	"github.com/opencampus/tutordex/internal/metrics"
)

// Policy is the fixed search configuration applied per request.
type Policy struct {
	// Threshold is the inclusive minimum cosine similarity.
	Threshold float64
	// MaxResults caps the ranked candidates retained.
	MaxResults int
	// ScanLimit is the hard ceiling on rows read per request.
	ScanLimit int
}

// Engine scans the chunk store and returns a ranked, thresholded
// subset. Read-only; safe for concurrent use.
type Engine struct {
	store  ChunkStore
	logger *zap.Logger
}

// NewEngine creates a similarity search engine.
func NewEngine(store ChunkStore, logger *zap.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// Search scores up to pol.ScanLimit embedded chunks against queryVec
// and returns candidates at or above pol.Threshold, ordered by score
// descending with ties keeping scan order, truncated to
// pol.MaxResults. An empty result is a normal outcome.
func (e *Engine) Search(ctx context.Context, queryVec []float32, pol Policy) (domain.RetrievalResult, error) {
	var (
		res        domain.RetrievalResult
		candidates []domain.ScoredChunk
	)

	err := e.store.ScanEmbedded(ctx, pol.ScanLimit, func(c domain.Chunk) error {
		res.Scanned++
		if !c.Embedded() {
			// Unembedded rows are filtered by the store; this guards
			// a driver that yields one anyway. Skipped, not scored.
			return nil
		}
		res.Evaluated++

		score := domain.CosineSimilarity(queryVec, c.Embedding)
		if score >= pol.Threshold {
			candidates = append(candidates, domain.ScoredChunk{Chunk: c, Score: score})
		}
		return nil
	})
	if err != nil {
		return domain.RetrievalResult{}, fmt.Errorf("scan chunks: %w", err)
	}

	// Stable: equal scores keep first-seen scan order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > pol.MaxResults {
		candidates = candidates[:pol.MaxResults]
	}
	res.Ranked = candidates

	metrics.ChunksScanned.Observe(float64(res.Scanned))
	outcome := "hit"
	if res.Empty() {
		outcome = "empty"
	}
	metrics.RetrievalResultsTotal.WithLabelValues(outcome).Inc()

	e.logger.Debug("similarity search",
		zap.Int("scanned", res.Scanned),
		zap.Int("evaluated", res.Evaluated),
		zap.Int("ranked", len(res.Ranked)),
		zap.Float64("threshold", pol.Threshold),
	)

	return res, nil
}
