package intelligence

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"worker-ingest/config"
)

// client bundles the provider backends behind MediaIntelligence: Groq for
// transcription, OpenAI (via langchaingo) for text embeddings and captioning,
// and a CLIP-compatible embedding server for image vectors.
type client struct {
	transcriber   *groqTranscriber
	embedder      embeddings.Embedder
	captioner     llms.Model
	imageEmbedder *clipEmbedder
	textDim       int
	captionPrompt string
}

func New(cfg config.Intelligence) (MediaIntelligence, error) {
	embedLLM, err := openai.New(
		openai.WithToken(cfg.OpenAIAPIKey),
		openai.WithEmbeddingModel(cfg.TextEmbedModel),
	)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(embedLLM)
	if err != nil {
		return nil, fmt.Errorf("create openai embedder: %w", err)
	}

	captioner, err := openai.New(
		openai.WithToken(cfg.OpenAIAPIKey),
		openai.WithModel(cfg.CaptionModel),
	)
	if err != nil {
		return nil, fmt.Errorf("create caption client: %w", err)
	}

	return &client{
		transcriber:   newGroqTranscriber(cfg.GroqBaseURL, cfg.GroqAPIKey, cfg.TranscriptModel),
		embedder:      embedder,
		captioner:     captioner,
		imageEmbedder: newCLIPEmbedder(cfg.ImageEmbedURL, cfg.ImageEmbedModel, cfg.ImageEmbedDim),
		textDim:       cfg.TextEmbedDim,
		captionPrompt: cfg.CaptionPrompt,
	}, nil
}

func (c *client) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	return c.transcriber.Transcribe(ctx, audio, format)
}

func (c *client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vec, err := c.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, &ProviderError{Provider: "openai", Retriable: retriableCallErr(err), Err: err}
	}
	if c.textDim > 0 && len(vec) != c.textDim {
		return nil, &ProviderError{
			Provider:  "openai",
			Retriable: false,
			Err:       fmt.Errorf("embedding dimension %d, expected %d", len(vec), c.textDim),
		}
	}
	return vec, nil
}

func (c *client) EmbedImage(ctx context.Context, image []byte) ([]float32, error) {
	return c.imageEmbedder.Embed(ctx, image)
}

func (c *client) Caption(ctx context.Context, image []byte) (string, error) {
	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.BinaryPart("image/jpeg", image),
				llms.TextPart(c.captionPrompt),
			},
		},
	}

	resp, err := c.captioner.GenerateContent(ctx, content)
	if err != nil {
		return "", &ProviderError{Provider: "openai", Retriable: retriableCallErr(err), Err: err}
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return "", &ProviderError{Provider: "openai", Retriable: false, Err: errors.New("empty caption")}
	}

	return resp.Choices[0].Content, nil
}

// retriableCallErr classifies langchaingo call failures. Timeouts and
// provider hiccups are transient; a canceled context means the caller is
// shutting down and the unit should not be recorded as retriable work here.
func retriableCallErr(err error) bool {
	return !errors.Is(err, context.Canceled)
}
