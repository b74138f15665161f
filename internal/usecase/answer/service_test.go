package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/opencampus/tutordex/internal/domain"
	"github.com/opencampus/tutordex/internal/usecase/retrieval"
)

// --- Mocks ---

type mockEmbedder struct {
	vec    []float32
	err    error
	calls  int
	lastIn string
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.calls++
	m.lastIn = text
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vec}, nil
}

type mockEngine struct {
	result domain.RetrievalResult
	err    error
	called bool
}

func (m *mockEngine) Search(_ context.Context, _ []float32, _ retrieval.Policy) (domain.RetrievalResult, error) {
	m.called = true
	return m.result, m.err
}

type mockGenerator struct {
	answer       string
	genErr       error
	description  string
	descErr      error
	genCalled    bool
	descCalled   bool
	lastQuestion string
	lastContext  string
	lastImage    string
}

func (m *mockGenerator) Generate(_ context.Context, question, contextText, image string) (string, error) {
	m.genCalled = true
	m.lastQuestion = question
	m.lastContext = contextText
	m.lastImage = image
	return m.answer, m.genErr
}

func (m *mockGenerator) Describe(_ context.Context, _, _ string) (string, error) {
	m.descCalled = true
	return m.description, m.descErr
}

func testConfig() Config {
	return Config{
		Policy:           retrieval.Policy{Threshold: 0.4, MaxResults: 8, ScanLimit: 500},
		MaxContextChunks: 3,
		MaxCharsPerChunk: 3000,
	}
}

func scored(id int64, url, content string, score float64) domain.ScoredChunk {
	return domain.ScoredChunk{
		Chunk: domain.Chunk{
			ID:        id,
			Source:    domain.SourceDocumentation,
			Content:   content,
			URL:       url,
			Embedding: []float32{1},
		},
		Score: score,
	}
}

// --- Tests ---

func TestAsk_GroundedAnswer(t *testing.T) {
	embedder := &mockEmbedder{vec: []float32{1, 0}}
	engine := &mockEngine{result: domain.RetrievalResult{
		Ranked: []domain.ScoredChunk{
			scored(1, "https://docs/a", "alpha content", 0.9),
			scored(2, "https://docs/b", "beta content", 0.7),
		},
		Scanned:   2,
		Evaluated: 2,
	}}
	gen := &mockGenerator{answer: "grounded answer"}
	svc := New(embedder, engine, gen, testConfig(), zap.NewNop())

	got, err := svc.Ask(context.Background(), domain.Question{Text: "  what is alpha?  "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Text != "grounded answer" {
		t.Errorf("answer = %q", got.Text)
	}
	if strings.Contains(got.Text, "without specific course context") {
		t.Error("ungrounded note appended to a grounded answer")
	}
	if len(got.Links) != 2 || got.Links[0].URL != "https://docs/a" || got.Links[1].URL != "https://docs/b" {
		t.Errorf("links = %+v", got.Links)
	}
	if gen.lastQuestion != "what is alpha?" {
		t.Errorf("question not trimmed: %q", gen.lastQuestion)
	}
	if !strings.Contains(gen.lastContext, "alpha content") || !strings.Contains(gen.lastContext, "https://docs/a") {
		t.Errorf("context missing evidence: %q", gen.lastContext)
	}
	if gen.descCalled {
		t.Error("Describe called without an image")
	}
}

func TestAsk_BlankQuestionRejectedBeforeAnyCall(t *testing.T) {
	embedder := &mockEmbedder{vec: []float32{1}}
	engine := &mockEngine{}
	gen := &mockGenerator{}
	svc := New(embedder, engine, gen, testConfig(), zap.NewNop())

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := svc.Ask(context.Background(), domain.Question{Text: text})
		if !errors.Is(err, domain.ErrInvalidRequest) {
			t.Fatalf("error = %v, want ErrInvalidRequest for %q", err, text)
		}
	}
	if embedder.calls != 0 || engine.called || gen.genCalled {
		t.Error("blank question reached an external capability")
	}
}

func TestAsk_EmptyRetrievalFallsBackToUngrounded(t *testing.T) {
	embedder := &mockEmbedder{vec: []float32{1}}
	engine := &mockEngine{result: domain.RetrievalResult{Scanned: 40}}
	gen := &mockGenerator{answer: "general knowledge answer"}
	svc := New(embedder, engine, gen, testConfig(), zap.NewNop())

	got, err := svc.Ask(context.Background(), domain.Question{Text: "obscure question"})
	if err != nil {
		t.Fatalf("empty retrieval must not error: %v", err)
	}

	if !gen.genCalled {
		t.Fatal("generator not invoked on the fallback path")
	}
	if gen.lastContext != "" {
		t.Errorf("fallback generation received context: %q", gen.lastContext)
	}
	if !strings.Contains(got.Text, "general knowledge answer") || !strings.Contains(got.Text, "without specific course context") {
		t.Errorf("fallback answer = %q", got.Text)
	}
	if got.Links == nil || len(got.Links) != 0 {
		t.Errorf("links = %#v, want empty non-nil slice", got.Links)
	}
}

func TestAsk_EmbeddingFailure(t *testing.T) {
	embedder := &mockEmbedder{err: errors.New("connection reset")}
	engine := &mockEngine{}
	gen := &mockGenerator{}
	svc := New(embedder, engine, gen, testConfig(), zap.NewNop())

	_, err := svc.Ask(context.Background(), domain.Question{Text: "q"})
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("error = %v, want ErrEmbeddingUnavailable", err)
	}
	if engine.called || gen.genCalled {
		t.Error("pipeline continued past a failed embedding")
	}
}

func TestAsk_RateLimitPassesThrough(t *testing.T) {
	embedder := &mockEmbedder{err: domain.ErrRateLimited}
	svc := New(embedder, &mockEngine{}, &mockGenerator{}, testConfig(), zap.NewNop())

	_, err := svc.Ask(context.Background(), domain.Question{Text: "q"})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("error = %v, want ErrRateLimited", err)
	}
	if errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Error("rate limit should not be re-labelled as embedding unavailability")
	}
}

func TestAsk_StoreFailure(t *testing.T) {
	embedder := &mockEmbedder{vec: []float32{1}}
	engine := &mockEngine{err: errors.New("disk gone")}
	gen := &mockGenerator{}
	svc := New(embedder, engine, gen, testConfig(), zap.NewNop())

	_, err := svc.Ask(context.Background(), domain.Question{Text: "q"})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("error = %v, want ErrStoreUnavailable", err)
	}
	if gen.genCalled {
		t.Error("generation attempted after a store failure")
	}
}

func TestAsk_GenerationFailureIsNotMasked(t *testing.T) {
	embedder := &mockEmbedder{vec: []float32{1}}
	engine := &mockEngine{result: domain.RetrievalResult{
		Ranked: []domain.ScoredChunk{scored(1, "https://docs/a", "c", 0.9)},
	}}
	gen := &mockGenerator{genErr: errors.New("model overloaded")}
	svc := New(embedder, engine, gen, testConfig(), zap.NewNop())

	got, err := svc.Ask(context.Background(), domain.Question{Text: "q"})
	if !errors.Is(err, domain.ErrGenerationUnavailable) {
		t.Fatalf("error = %v, want ErrGenerationUnavailable", err)
	}
	if got.Text != "" || got.Links != nil {
		t.Errorf("partial response leaked: %+v", got)
	}
}

func TestAsk_ImageDescriptionAugmentsQuery(t *testing.T) {
	embedder := &mockEmbedder{vec: []float32{1}}
	engine := &mockEngine{}
	gen := &mockGenerator{answer: "a", description: "a pandas stack trace"}
	svc := New(embedder, engine, gen, testConfig(), zap.NewNop())

	img := "data:image/png;base64,AAAA"
	if _, err := svc.Ask(context.Background(), domain.Question{Text: "why this error?", Image: img}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !gen.descCalled {
		t.Fatal("Describe not called for an image question")
	}
	if !strings.Contains(embedder.lastIn, "Image context: a pandas stack trace") {
		t.Errorf("embedded text missing image context: %q", embedder.lastIn)
	}
	if gen.lastQuestion != "why this error?" {
		t.Errorf("generator should see the raw question, got %q", gen.lastQuestion)
	}
	if gen.lastImage != img {
		t.Errorf("image not forwarded to generation: %q", gen.lastImage)
	}
}

func TestAsk_DescribeFailureDegradesToTextOnly(t *testing.T) {
	embedder := &mockEmbedder{vec: []float32{1}}
	engine := &mockEngine{}
	gen := &mockGenerator{answer: "a", descErr: errors.New("vision down")}
	svc := New(embedder, engine, gen, testConfig(), zap.NewNop())

	if _, err := svc.Ask(context.Background(), domain.Question{Text: "q", Image: "data:image/png;base64,AA"}); err != nil {
		t.Fatalf("describe failure must not fail the request: %v", err)
	}
	if embedder.lastIn != "q" {
		t.Errorf("embedded text = %q, want the bare question", embedder.lastIn)
	}
}

// --- End to end through the real engine ---

type fakeStore struct {
	chunks []domain.Chunk
	scored map[int64]bool
}

func (f *fakeStore) ScanEmbedded(_ context.Context, limit int, fn func(domain.Chunk) error) error {
	for i, c := range f.chunks {
		if i >= limit {
			return nil
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

func TestAsk_EndToEndRetrievalExample(t *testing.T) {
	// A scores ~0.81 against the query, B 0.5, C carries no embedding.
	store := &fakeStore{chunks: []domain.Chunk{
		{ID: 1, Source: domain.SourceDiscourse, Content: "chunk A", URL: "https://forum/a", Embedding: []float32{0.81, 0.5858}},
		{ID: 2, Source: domain.SourceDocumentation, Content: "chunk B", URL: "https://docs/b", Embedding: []float32{0.5, 0.866}},
		{ID: 3, Source: domain.SourceDocumentation, Content: "chunk C", URL: "https://docs/c"},
	}}
	engine := retrieval.NewEngine(store, zap.NewNop())

	embedder := &mockEmbedder{vec: []float32{1, 0}}
	gen := &mockGenerator{answer: "grounded"}
	svc := New(embedder, engine, gen, testConfig(), zap.NewNop())

	got, err := svc.Ask(context.Background(), domain.Question{Text: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Both A and B clear the 0.4 threshold; fewer candidates than
	// max_context_chunks is fine.
	if len(got.Links) != 2 {
		t.Fatalf("links = %+v, want 2 entries", got.Links)
	}
	if got.Links[0].URL != "https://forum/a" || got.Links[1].URL != "https://docs/b" {
		t.Errorf("link order = [%s %s], want [A B]", got.Links[0].URL, got.Links[1].URL)
	}
	if !strings.Contains(gen.lastContext, "chunk A") || !strings.Contains(gen.lastContext, "chunk B") {
		t.Errorf("context = %q", gen.lastContext)
	}
	if strings.Contains(gen.lastContext, "chunk C") {
		t.Error("unembedded chunk C leaked into the context")
	}
}

func TestAsk_EndToEndStrictThresholdExcludesB(t *testing.T) {
	store := &fakeStore{chunks: []domain.Chunk{
		{ID: 1, Source: domain.SourceDiscourse, Content: "chunk A", URL: "https://forum/a", Embedding: []float32{0.81, 0.5858}},
		{ID: 2, Source: domain.SourceDocumentation, Content: "chunk B", URL: "https://docs/b", Embedding: []float32{0.5, 0.866}},
	}}
	engine := retrieval.NewEngine(store, zap.NewNop())

	cfg := testConfig()
	cfg.Policy.Threshold = 0.65
	gen := &mockGenerator{answer: "grounded"}
	svc := New(&mockEmbedder{vec: []float32{1, 0}}, engine, gen, cfg, zap.NewNop())

	got, err := svc.Ask(context.Background(), domain.Question{Text: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Links) != 1 || got.Links[0].URL != "https://forum/a" {
		t.Errorf("links = %+v, want only A under the 0.65 threshold", got.Links)
	}
}
