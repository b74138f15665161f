package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/opencampus/tutordex/internal/domain"
	"github.com/opencampus/tutordex/internal/metrics"
)

const (
	groundedPrompt = `You are a helpful Teaching Assistant for the Tools in Data Science course at IIT Madras.
Answer the following question using the provided context from course materials. Use the context as your primary source, but you can supplement with your general knowledge if needed to provide a complete answer.

Context:
%s

Question: %s

Please provide a clear, comprehensive answer. If the context is incomplete, use your knowledge to fill in gaps while noting what comes from the course materials.

Answer:`

	fallbackPrompt = `You are a helpful Teaching Assistant for the Tools in Data Science course at IIT Madras.
Answer the following question based on your general knowledge about data science, Python, and related tools.
If you're not confident about the answer, say so.

Question: %s

Please provide a helpful and accurate answer:`

	describePrompt = "Analyze this image and describe what you see in relation to this question: %s"

	fallbackTemperature = 0.7
	fallbackMaxTokens   = 1024
	describeMaxTokens   = 500
)

// Generator produces natural-language answers from a question plus
// retrieved context, with optional image input.
type Generator struct {
	client      *openai.Client
	chatModel   string
	visionModel string
	maxTokens   int
	temperature float32
	logger      *zap.Logger
}

// GeneratorConfig holds the generation provider settings.
type GeneratorConfig struct {
	APIKey      string
	BaseURL     string
	ChatModel   string
	VisionModel string
	MaxTokens   int
	Temperature float32
	Logger      *zap.Logger
}

// NewGenerator creates an OpenAI-compatible generation client.
func NewGenerator(cfg *GeneratorConfig) *Generator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	visionModel := cfg.VisionModel
	if visionModel == "" {
		visionModel = cfg.ChatModel
	}

	return &Generator{
		client:      openai.NewClientWithConfig(clientCfg),
		chatModel:   cfg.ChatModel,
		visionModel: visionModel,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      cfg.Logger,
	}
}

// Generate answers the question. With contextText it produces a
// grounded answer citing the course materials; with an empty context
// it answers from general knowledge — a first-class fallback path,
// not an error. imageDataURL, when non-empty, is attached as a vision
// part.
func (g *Generator) Generate(ctx context.Context, question, contextText, imageDataURL string) (string, error) {
	mode := "grounded"
	prompt := fmt.Sprintf(groundedPrompt, contextText, question)
	temperature := g.temperature
	maxTokens := g.maxTokens
	if contextText == "" {
		mode = "fallback"
		prompt = fmt.Sprintf(fallbackPrompt, question)
		temperature = fallbackTemperature
		maxTokens = fallbackMaxTokens
	}

	parts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: prompt},
	}
	if imageDataURL != "" {
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: imageDataURL},
		})
	}

	answer, err := g.complete(ctx, g.chatModel, mode, parts, temperature, maxTokens)
	if err != nil {
		return "", err
	}
	return answer, nil
}

// Describe asks the vision model what the image shows in relation to
// the question. The description augments the text used for retrieval.
func (g *Generator) Describe(ctx context.Context, question, imageDataURL string) (string, error) {
	parts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: fmt.Sprintf(describePrompt, question)},
		{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: imageDataURL}},
	}

	return g.complete(ctx, g.visionModel, "vision", parts, 0, describeMaxTokens)
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (g *Generator) HealthCheck(ctx context.Context) error {
	if _, err := g.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func (g *Generator) complete(
	ctx context.Context, model, mode string,
	parts []openai.ChatMessagePart, temperature float32, maxTokens int,
) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	start := time.Now()

	resp, err := g.client.CreateChatCompletion(ctx, req)

	duration := time.Since(start)

	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(model, mode, "error").Inc()
		return "", parseAPIError("generation", err, domain.ErrGenerationUnavailable)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		metrics.GenerationRequestsTotal.WithLabelValues(model, mode, "error").Inc()
		return "", fmt.Errorf("empty completion response: %w", domain.ErrGenerationUnavailable)
	}

	metrics.GenerationRequestsTotal.WithLabelValues(model, mode, "success").Inc()
	metrics.GenerationRequestDuration.WithLabelValues(model, mode).Observe(duration.Seconds())

	return resp.Choices[0].Message.Content, nil
}
