package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"smartdoc/internal/config"
	"smartdoc/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// NewLLM creates the generative model client for the configured provider.
func NewLLM(ctx context.Context, llmConfig *config.LLMConfig) (llms.Model, error) {
	log.Debug().Str("provider", llmConfig.Provider).Str("model", llmConfig.Model).Str("base_url", llmConfig.BaseURL).Msg("Creating llm client")

	switch strings.ToLower(llmConfig.Provider) {
	case "openai":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithModel(llmConfig.Model),
		}
		if llmConfig.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
		}
		return openai.New(opts...)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(llmConfig.Model)}
		if llmConfig.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(llmConfig.BaseURL))
		}
		return ollama.New(opts...)
	case "googleai":
		return googleai.New(ctx,
			googleai.WithAPIKey(llmConfig.Key),
			googleai.WithDefaultModel(llmConfig.Model),
		)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %q", llmConfig.Provider)
	}
}

type ErrorType string

const (
	ErrorQuota     ErrorType = "quota"
	ErrorRate      ErrorType = "rate"
	ErrorTransient ErrorType = "transient"
	ErrorPermanent ErrorType = "permanent"
	ErrorContext   ErrorType = "context"
	ErrorCanceled  ErrorType = "canceled"
)

// ClassifyError sorts a provider error by what the caller can do about it.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, context.Canceled):
		return ErrorCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTransient
	}
	e := strings.ToLower(err.Error())
	switch {
	case containsAny(e, "quota", "credit", "resource_exhausted", "resource exhausted"):
		return ErrorQuota
	case containsAny(e, "rate limit", "rate_limit", "ratelimit", "rate-limit", "429", "too many requests"):
		return ErrorRate
	case containsAny(e, "context length", "context window", "context_length", "maximum context", "too long", "too many tokens"):
		return ErrorContext
	case containsAny(e, "timeout", "timed out", "temporarily", "unavailable"):
		return ErrorTransient
	default:
		return ErrorPermanent
	}
}

// GenerationError tags a provider error with the generate stage and its class.
func GenerationError(err error) error {
	if err == nil {
		return nil
	}
	return &models.StageError{Stage: models.StageGenerate, Kind: string(ClassifyError(err)), Err: err}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
