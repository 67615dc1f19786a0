package rag

import (
	"context"
	"strings"
	"unicode/utf8"

	"smartdoc/internal/config"
	"smartdoc/internal/llmservice"
	"smartdoc/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
	"github.com/tmc/langchaingo/schema"
)

const inputDocumentsKey = "input_documents"

type Result struct {
	Answer string               `json:"answer"`
	Docs   []models.ScoredChunk `json:"docs"`
}

// RAG answers questions from the chunks its retriever finds.
type RAG struct {
	retriever       *Retriever
	chain           chains.StuffDocuments
	temperature     float64
	maxContextChars int
}

func NewRAG(llm llms.Model, retriever *Retriever, cfg *config.Config) *RAG {
	prompt := prompts.NewPromptTemplate(models.AnswerPromptTemplate, []string{"context", "question"})
	chain := chains.NewStuffDocuments(chains.NewLLMChain(llm, prompt))
	chain.Separator = models.ContextSeparator

	return &RAG{
		retriever:       retriever,
		chain:           chain,
		temperature:     cfg.LLM.Temperature,
		maxContextChars: cfg.RAG.MaxContextChars,
	}
}

func (r *RAG) Retriever() *Retriever {
	return r.retriever
}

// Answer retrieves context for question and asks the model. When nothing is
// retrieved the model is not called and NoRelevantContent is answered.
func (r *RAG) Answer(ctx context.Context, question string) (Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Result{}, models.Fail(models.StageRetrieve, models.ErrEmptyQuestion)
	}

	hits, err := r.retriever.Retrieve(ctx, question)
	if err != nil {
		return Result{}, err
	}
	if len(hits) == 0 {
		log.Info().Str("question", question).Msg("No chunks retrieved")
		return Result{Answer: models.NoRelevantContent}, nil
	}

	docs, used := BoundContext(hits, r.maxContextChars)
	log.Debug().Int("retrieved", len(hits)).Int("in_context", len(used)).Msg("Built context")

	out, err := chains.Call(ctx, r.chain, map[string]any{
		inputDocumentsKey: docs,
		"question":        question,
	}, chains.WithTemperature(r.temperature))
	if err != nil {
		return Result{}, llmservice.GenerationError(err)
	}

	answer, _ := out[r.chain.LLMChain.OutputKey].(string)
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return Result{}, models.Fail(models.StageGenerate, models.ErrMalformedResponse)
	}
	return Result{Answer: answer, Docs: used}, nil
}

// BoundContext keeps hits in rank order while the joined context fits in
// maxChars runes. The first hit is truncated when it alone is too long. It
// returns the documents for the prompt and the chunks they came from.
func BoundContext(hits []models.ScoredChunk, maxChars int) ([]schema.Document, []models.ScoredChunk) {
	docs := make([]schema.Document, 0, len(hits))
	used := make([]models.ScoredChunk, 0, len(hits))
	total := 0
	for i, h := range hits {
		doc := ToDocument(h)
		n := utf8.RuneCountInString(doc.PageContent)
		if i > 0 {
			n += utf8.RuneCountInString(models.ContextSeparator)
		}
		if maxChars > 0 && total+n > maxChars {
			if i == 0 {
				doc.PageContent = string([]rune(doc.PageContent)[:maxChars])
				docs = append(docs, doc)
				used = append(used, h)
			}
			break
		}
		total += n
		docs = append(docs, doc)
		used = append(used, h)
	}
	return docs, used
}

// Summarizer condenses an answer with a one-step chain.
type Summarizer struct {
	chain *chains.LLMChain
}

func NewSummarizer(llm llms.Model) *Summarizer {
	prompt := prompts.NewPromptTemplate(models.SummaryPromptTemplate, []string{"input"})
	return &Summarizer{chain: chains.NewLLMChain(llm, prompt)}
}

func (s *Summarizer) Summarize(ctx context.Context, answer string) (string, error) {
	if strings.TrimSpace(answer) == "" {
		return "", models.Fail(models.StageGenerate, models.ErrEmptyInput)
	}
	summary, err := chains.Run(ctx, s.chain, answer)
	if err != nil {
		return "", llmservice.GenerationError(err)
	}
	return strings.TrimSpace(summary), nil
}
