package embedding

import (
	"context"
	"fmt"
	"strings"

	"smartdoc/internal/config"
	"smartdoc/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// NewEmbedder creates an embedder for the configured provider
func NewEmbedder(ctx context.Context, cfg *config.LLMConfig, batchSize int) (embeddings.Embedder, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":        cfg.Provider,
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.Model,
	}).Msg("Creating embedder")

	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init %s embedding client: %w", cfg.Provider, err)
	}

	opts := []embeddings.Option{}
	if batchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(batchSize))
	}
	embedder, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return embedder, nil
}

func newClient(ctx context.Context, cfg *config.LLMConfig) (embeddings.EmbedderClient, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithEmbeddingModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		return ollama.New(opts...)
	case "googleai":
		return googleai.New(ctx,
			googleai.WithAPIKey(cfg.Key),
			googleai.WithDefaultEmbeddingModel(cfg.Model),
		)
	case "hash":
		return NewHashClient(DefaultHashDimensions), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", cfg.Provider)
	}
}

// EmbedTexts embeds texts batch by batch and reports progress after each batch.
// It fails as a whole: either every text gets a vector or an error is returned.
func EmbedTexts(ctx context.Context, embedder embeddings.Embedder, texts []string, batchSize int, progress func(done, total int)) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, models.Fail(models.StageEmbed, models.ErrEmptyInput)
	}
	if batchSize <= 0 {
		batchSize = len(texts)
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		batch, err := embedder.EmbedDocuments(ctx, texts[start:end])
		if err != nil {
			return nil, models.Fail(models.StageEmbed, fmt.Errorf("embed batch %d-%d: %w", start, end, err))
		}
		if len(batch) != end-start {
			return nil, models.Fail(models.StageEmbed, fmt.Errorf("embed batch %d-%d: got %d vectors", start, end, len(batch)))
		}
		for i, v := range batch {
			if len(v) == 0 {
				return nil, models.Fail(models.StageEmbed, fmt.Errorf("empty vector for text %d", start+i))
			}
		}
		vectors = append(vectors, batch...)
		if progress != nil {
			progress(len(vectors), len(texts))
		}
	}
	log.Debug().Int("texts", len(texts)).Int("dimensions", len(vectors[0])).Msg("Generated embeddings")
	return vectors, nil
}
