package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"smartdoc/internal/chromemdb"
	"smartdoc/internal/config"
	"smartdoc/internal/embedding"
	"smartdoc/internal/models"
	"smartdoc/internal/parser"

	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
)

// fakeLLM records every prompt and replies with a fixed answer.
type fakeLLM struct {
	reply   string
	err     error
	prompts []string
	temps   []float64
}

func (f *fakeLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}
	f.temps = append(f.temps, opts.Temperature)

	var b strings.Builder
	for _, m := range messages {
		for _, p := range m.Parts {
			if t, ok := p.(llms.TextContent); ok {
				b.WriteString(t.Text)
			}
		}
	}
	f.prompts = append(f.prompts, b.String())

	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

type staticIndex struct {
	hits []models.ScoredChunk
}

func (s staticIndex) Query(_ context.Context, _ []float32, k int) ([]models.ScoredChunk, error) {
	return s.hits[:min(k, len(s.hits))], nil
}

func (s staticIndex) Len() int { return len(s.hits) }

func hashEmbedder(t *testing.T) embeddings.Embedder {
	t.Helper()
	e, err := embeddings.NewEmbedder(embedding.NewHashClient(embedding.DefaultHashDimensions))
	require.NoError(t, err)
	return e
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.LLM.Temperature = 0.3
	return cfg
}

func TestAnswerEndToEnd(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()

	filler := strings.Repeat("alpha beta gamma delta ", 200)
	page1 := filler[:598] + "zebra quantum lighthouse " + filler[598:1173]
	pages := []string{page1, filler[:480], filler[:1000]}
	path := filepath.Join(t.TempDir(), "manual.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(pages, "\f")), 0o644))

	chunks, err := parser.LoadChunks(ctx, path, cfg.RAG)
	require.NoError(t, err)
	want := 0
	for _, p := range pages {
		want += parser.ChunkCount(utf8.RuneCountInString(strings.TrimSpace(p)), cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	}
	require.Len(t, chunks, want)
	require.Contains(t, chunks[1].Content, "zebra quantum lighthouse")

	embedder := hashEmbedder(t)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := embedding.EmbedTexts(ctx, embedder, texts, cfg.RAG.BatchSize, nil)
	require.NoError(t, err)
	index, err := chromemdb.Build(ctx, chunks, vectors)
	require.NoError(t, err)

	llm := &fakeLLM{reply: "It is a zebra quantum lighthouse."}
	r := NewRAG(llm, NewRetriever(index, embedder, cfg.RAG.TopK), cfg)

	res, err := r.Answer(ctx, "Where is the zebra quantum lighthouse?")
	require.NoError(t, err)
	require.Equal(t, "It is a zebra quantum lighthouse.", res.Answer)
	require.NotEmpty(t, res.Docs)
	require.Equal(t, 2, res.Docs[0].Chunk.ChunkID)

	require.Len(t, llm.prompts, 1)
	require.Contains(t, llm.prompts[0], "zebra quantum lighthouse")
	require.Contains(t, llm.prompts[0], "Question: Where is the zebra quantum lighthouse?")
	require.Equal(t, []float64{0.3}, llm.temps)
}

func TestAnswerEmptyQuestion(t *testing.T) {
	llm := &fakeLLM{reply: "unused"}
	r := NewRAG(llm, NewRetriever(staticIndex{}, hashEmbedder(t), 4), testConfig())

	_, err := r.Answer(context.Background(), "   ")
	require.ErrorIs(t, err, models.ErrEmptyQuestion)
	require.Empty(t, llm.prompts)
}

func TestAnswerWithoutRetrievedChunks(t *testing.T) {
	llm := &fakeLLM{reply: "unused"}
	r := NewRAG(llm, NewRetriever(staticIndex{}, hashEmbedder(t), 4), testConfig())

	res, err := r.Answer(context.Background(), "anything there?")
	require.NoError(t, err)
	require.Equal(t, models.NoRelevantContent, res.Answer)
	require.Empty(t, res.Docs)
	require.Empty(t, llm.prompts)
}

func TestAnswerWithoutDocument(t *testing.T) {
	r := NewRAG(&fakeLLM{}, NewRetriever(nil, hashEmbedder(t), 4), testConfig())
	_, err := r.Answer(context.Background(), "hello?")
	require.ErrorIs(t, err, models.ErrNoDocument)
}

func TestAnswerWithTypedNilIndex(t *testing.T) {
	var index *chromemdb.Index
	r := NewRAG(&fakeLLM{}, NewRetriever(index, hashEmbedder(t), 4), testConfig())
	_, err := r.Answer(context.Background(), "hello?")
	require.ErrorIs(t, err, models.ErrNoDocument)
}

func TestAnswerProviderFailure(t *testing.T) {
	index := staticIndex{hits: []models.ScoredChunk{{Chunk: models.Chunk{ChunkID: 1, Content: "some text"}, Score: 0.9}}}
	llm := &fakeLLM{err: errors.New("429 rate limit exceeded")}
	r := NewRAG(llm, NewRetriever(index, hashEmbedder(t), 4), testConfig())

	_, err := r.Answer(context.Background(), "what?")
	var se *models.StageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, models.StageGenerate, se.Stage)
	require.Equal(t, "rate", se.Kind)
}

func TestAnswerBlankReply(t *testing.T) {
	index := staticIndex{hits: []models.ScoredChunk{{Chunk: models.Chunk{ChunkID: 1, Content: "some text"}}}}
	r := NewRAG(&fakeLLM{reply: " \n "}, NewRetriever(index, hashEmbedder(t), 4), testConfig())

	_, err := r.Answer(context.Background(), "what?")
	require.ErrorIs(t, err, models.ErrMalformedResponse)
}

func TestBoundContext(t *testing.T) {
	hits := []models.ScoredChunk{
		{Chunk: models.Chunk{ChunkID: 3, Content: strings.Repeat("a", 40)}},
		{Chunk: models.Chunk{ChunkID: 1, Content: strings.Repeat("b", 40)}},
		{Chunk: models.Chunk{ChunkID: 2, Content: strings.Repeat("c", 40)}},
	}

	docs, used := BoundContext(hits, 100)
	require.Len(t, docs, 2)
	require.Equal(t, []models.ScoredChunk{hits[0], hits[1]}, used)

	docs, used = BoundContext(hits, 25)
	require.Len(t, docs, 1)
	require.Equal(t, strings.Repeat("a", 25), docs[0].PageContent)
	require.Equal(t, hits[0], used[0])

	docs, _ = BoundContext(hits, 0)
	require.Len(t, docs, 3)
}

func TestGetRelevantDocuments(t *testing.T) {
	index := staticIndex{hits: []models.ScoredChunk{
		{Chunk: models.Chunk{ChunkID: 4, PageNumber: 2, Source: "a.pdf", Content: "four"}, Score: 0.8},
		{Chunk: models.Chunk{ChunkID: 1, PageNumber: 1, Source: "a.pdf", Content: "one"}, Score: 0.5},
	}}
	docs, err := NewRetriever(index, hashEmbedder(t), 1).GetRelevantDocuments(context.Background(), "four")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "four", docs[0].PageContent)
	require.Equal(t, 4, docs[0].Metadata[models.MetaChunkID])
	require.Equal(t, 2, docs[0].Metadata[models.MetaPage])
	require.Equal(t, float32(0.8), docs[0].Score)
}

func TestSummarize(t *testing.T) {
	llm := &fakeLLM{reply: "  short version  "}
	s := NewSummarizer(llm)

	out, err := s.Summarize(context.Background(), "a very long answer")
	require.NoError(t, err)
	require.Equal(t, "short version", out)
	require.Equal(t, "Summarize the following answer:\n\na very long answer", llm.prompts[0])

	_, err = s.Summarize(context.Background(), "")
	require.ErrorIs(t, err, models.ErrEmptyInput)
}
