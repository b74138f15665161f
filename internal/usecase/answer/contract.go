package answer

import (
	"context"

	"github.com/opencampus/tutordex/internal/domain"
	"github.com/opencampus/tutordex/internal/usecase/retrieval"
)

// Searcher runs the similarity search over the corpus.
type Searcher interface {
	Search(ctx context.Context, queryVec []float32, pol retrieval.Policy) (domain.RetrievalResult, error)
}

// Generator produces natural-language answers and image descriptions.
type Generator interface {
	Generate(ctx context.Context, question, contextText, imageDataURL string) (string, error)
	Describe(ctx context.Context, question, imageDataURL string) (string, error)
}
