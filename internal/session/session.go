package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"smartdoc/internal/chromemdb"
	"smartdoc/internal/config"
	"smartdoc/internal/db"
	"smartdoc/internal/embedding"
	"smartdoc/internal/graph"
	"smartdoc/internal/helper"
	"smartdoc/internal/models"
	"smartdoc/internal/parser"
	"smartdoc/internal/rag"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
)

// BuildFunc turns embedded chunks into a queryable index.
type BuildFunc func(ctx context.Context, chunks []models.Chunk, vectors [][]float32) (rag.VectorIndex, error)

// ChromemBackend builds a fresh in-memory index per document.
func ChromemBackend() BuildFunc {
	return func(ctx context.Context, chunks []models.Chunk, vectors [][]float32) (rag.VectorIndex, error) {
		idx, err := chromemdb.Build(ctx, chunks, vectors)
		if err != nil {
			return nil, err
		}
		return idx, nil
	}
}

// PGBackend replaces the rows of the store's index per document.
func PGBackend(store *db.Store) BuildFunc {
	return func(ctx context.Context, chunks []models.Chunk, vectors [][]float32) (rag.VectorIndex, error) {
		idx, err := store.Build(ctx, chunks, vectors)
		if err != nil {
			return nil, err
		}
		return idx, nil
	}
}

// Session owns one document's index, the pipeline answering from it and the
// questions asked so far. Operations are serialised.
type Session struct {
	mu sync.Mutex

	id         string
	cfg        *config.Config
	embedder   embeddings.Embedder
	llm        llms.Model
	build      BuildFunc
	summarizer *rag.Summarizer
	progress   func(done, total int)

	index   rag.VectorIndex
	flow    *graph.Flow
	source  string
	history []models.QARecord
}

func New(cfg *config.Config, embedder embeddings.Embedder, llm llms.Model, build BuildFunc) (*Session, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	if build == nil {
		build = ChromemBackend()
	}
	return &Session{
		id:         id,
		cfg:        cfg,
		embedder:   embedder,
		llm:        llm,
		build:      build,
		summarizer: rag.NewSummarizer(llm),
	}, nil
}

func (s *Session) ID() string {
	return s.id
}

// SetProgress registers a callback invoked after every embedded batch.
func (s *Session) SetProgress(fn func(done, total int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = fn
}

// LoadDocument ingests, embeds and indexes the document at path. On success it
// replaces the active document and clears the history; on failure the session
// is left as it was.
func (s *Session) LoadDocument(ctx context.Context, path string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunks, err := parser.LoadChunks(ctx, path, s.cfg.RAG)
	if err != nil {
		return 0, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := embedding.EmbedTexts(ctx, s.embedder, texts, s.cfg.RAG.BatchSize, s.progress)
	if err != nil {
		return 0, err
	}

	index, err := s.build(ctx, chunks, vectors)
	if err != nil {
		return 0, models.Fail(models.StageIndex, err)
	}
	if err := s.activate(index, filepath.Base(path)); err != nil {
		return 0, err
	}
	log.Info().Str("session", s.id).Str("source", s.source).Int("chunks", len(chunks)).Msg("Document loaded")
	return len(chunks), nil
}

// LoadIndex restores an index written by SaveIndex.
func (s *Session) LoadIndex(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := chromemdb.Load(ctx, path, s.cfg.RAG.EncryptionKey, s.embedder)
	if err != nil {
		return err
	}
	source := filepath.Base(path)
	if chunks, err := index.Chunks(ctx); err == nil && len(chunks) > 0 {
		source = chunks[0].Source
	}
	if err := s.activate(index, source); err != nil {
		return err
	}
	log.Info().Str("session", s.id).Str("path", path).Int("chunks", index.Len()).Msg("Index loaded")
	return nil
}

// Attach makes an already built index the active document.
func (s *Session) Attach(index rag.VectorIndex, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activate(index, source)
}

func (s *Session) activate(index rag.VectorIndex, source string) error {
	pipeline := rag.NewRAG(s.llm, rag.NewRetriever(index, s.embedder, s.cfg.RAG.TopK), s.cfg)
	flow, err := graph.Build(pipeline)
	if err != nil {
		return fmt.Errorf("build flow: %w", err)
	}
	s.index = index
	s.flow = flow
	s.source = source
	s.history = nil
	return nil
}

// SaveIndex writes the active in-memory index to path.
func (s *Session) SaveIndex(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index == nil {
		return models.Fail(models.StagePersist, models.ErrNoDocument)
	}
	idx, ok := s.index.(*chromemdb.Index)
	if !ok {
		return models.Fail(models.StagePersist, errors.New("only chromem indexes are saved to a file"))
	}
	return idx.Save(path, s.cfg.RAG.Compress, s.cfg.RAG.EncryptionKey)
}

// Ask answers question from the active document and records it in the history.
func (s *Session) Ask(ctx context.Context, question string) (models.QARecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.flow == nil {
		return models.QARecord{}, models.Fail(models.StageRetrieve, models.ErrNoDocument)
	}
	out, err := s.flow.Invoke(ctx, graph.State{Question: question})
	if err != nil {
		return models.QARecord{}, err
	}

	id, err := helper.GenerateUUID()
	if err != nil {
		return models.QARecord{}, err
	}
	record := models.QARecord{
		ID:       id,
		Question: out.Question,
		Answer:   out.Answer,
		AskedAt:  time.Now(),
	}
	for _, d := range out.Docs {
		record.Sources = append(record.Sources, d.Chunk)
	}
	s.history = append(s.history, record)
	return record, nil
}

// Summarize condenses an answer with the session's model.
func (s *Session) Summarize(ctx context.Context, answer string) (string, error) {
	return s.summarizer.Summarize(ctx, answer)
}

// History returns a copy of the answered questions, oldest first.
func (s *Session) History() []models.QARecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.QARecord, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flow != nil
}

func (s *Session) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Reset drops the active document and the history.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = nil
	s.flow = nil
	s.source = ""
	s.history = nil
}
