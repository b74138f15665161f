// Package answer orchestrates one question/answer cycle: embed the
// question (through the cache), retrieve and rank evidence, assemble
// bounded context, and condition the generator on it.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/opencampus/tutordex/internal/domain"
	"github.com/opencampus/tutordex/internal/usecase/retrieval"
)

// ungroundedNote is appended when the answer was generated without
// retrieved context.
const ungroundedNote = "\n\n*Note: This answer is generated without specific course context as no matching information was found in the knowledge base.*"

// Config holds the assembly knobs applied per request.
type Config struct {
	Policy retrieval.Policy
	// MaxContextChunks is deliberately smaller than Policy.MaxResults
	// so the link list can show more sources than feed the model.
	MaxContextChunks int
	MaxCharsPerChunk int
}

// Service is the retrieval orchestrator. Each call is an independent
// request; the only shared mutable state lives inside the embedder's
// cache decorator.
type Service struct {
	embedder  domain.Embedder
	engine    Searcher
	generator Generator
	cfg       Config
	logger    *zap.Logger
}

// New creates an answer service.
func New(embedder domain.Embedder, engine Searcher, generator Generator, cfg Config, logger *zap.Logger) *Service {
	return &Service{
		embedder:  embedder,
		engine:    engine,
		generator: generator,
		cfg:       cfg,
		logger:    logger,
	}
}

// Ask runs one request through the pipeline. Empty retrieval falls
// back to ungrounded generation and an empty link list; every failure
// surfaces as an error carrying its taxonomy sentinel, never as a
// degraded success.
func (s *Service) Ask(ctx context.Context, q domain.Question) (domain.Answer, error) {
	if q.Blank() {
		return domain.Answer{}, fmt.Errorf("question must not be empty: %w", domain.ErrInvalidRequest)
	}

	question := strings.TrimSpace(q.Text)

	// An attached image is described by the vision model and the
	// description folded into the retrieval query. Description
	// failures degrade to text-only retrieval.
	queryText := question
	if q.Image != "" {
		desc, err := s.generator.Describe(ctx, question, q.Image)
		switch {
		case err != nil:
			s.logger.Warn("image description failed, retrieving text-only", zap.Error(err))
		case desc != "":
			queryText = question + "\nImage context: " + desc
		}
	}

	emb, err := s.embedder.Embed(ctx, queryText)
	if err != nil {
		return domain.Answer{}, wrapSentinel("embed question", err, domain.ErrEmbeddingUnavailable)
	}

	result, err := s.engine.Search(ctx, emb.Embedding, s.cfg.Policy)
	if err != nil {
		return domain.Answer{}, wrapSentinel("similarity search", err, domain.ErrStoreUnavailable)
	}

	contextText := ""
	links := []domain.Link{}
	if !result.Empty() {
		contextText = buildContext(result.Ranked, s.cfg.MaxContextChunks, s.cfg.MaxCharsPerChunk)
		links = buildLinks(result.Ranked)
	}

	text, err := s.generator.Generate(ctx, question, contextText, q.Image)
	if err != nil {
		return domain.Answer{}, wrapSentinel("generate answer", err, domain.ErrGenerationUnavailable)
	}

	if result.Empty() {
		text += ungroundedNote
	}

	s.logger.Info("answered question",
		zap.Int("scanned", result.Scanned),
		zap.Int("ranked", len(result.Ranked)),
		zap.Int("links", len(links)),
		zap.Bool("grounded", !result.Empty()),
		zap.Bool("image", q.Image != ""),
	)

	return domain.Answer{Text: text, Links: links}, nil
}

// wrapSentinel attaches the step's taxonomy sentinel unless the error
// already carries one of its own (rate limits pass through).
func wrapSentinel(op string, err error, sentinel error) error {
	if errors.Is(err, sentinel) || errors.Is(err, domain.ErrRateLimited) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, err, sentinel)
}
