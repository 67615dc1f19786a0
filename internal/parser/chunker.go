package parser

import (
	"context"
	"fmt"
	"strconv"

	"smartdoc/internal/config"
	"smartdoc/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

// WindowSplitter cuts text into fixed windows of ChunkSize runes. Adjacent
// windows share exactly ChunkOverlap runes; only the last one may be shorter.
type WindowSplitter struct {
	ChunkSize    int
	ChunkOverlap int
}

var _ textsplitter.TextSplitter = (*WindowSplitter)(nil)

func NewWindowSplitter(chunkSize, chunkOverlap int) (*WindowSplitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", chunkSize, chunkOverlap)
	}
	return &WindowSplitter{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap}, nil
}

// SplitText implements textsplitter.TextSplitter.
func (s *WindowSplitter) SplitText(text string) ([]string, error) {
	step := s.ChunkSize - s.ChunkOverlap
	if s.ChunkSize <= 0 || step <= 0 {
		return nil, fmt.Errorf("invalid window %d/%d", s.ChunkSize, s.ChunkOverlap)
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	chunks := make([]string, 0, ChunkCount(len(runes), s.ChunkSize, s.ChunkOverlap))
	for start := 0; ; start += step {
		end := min(start+s.ChunkSize, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}

// ChunkCount is the number of windows WindowSplitter produces for a text of n runes.
func ChunkCount(n, chunkSize, chunkOverlap int) int {
	switch {
	case n <= 0:
		return 0
	case n <= chunkSize:
		return 1
	}
	step := chunkSize - chunkOverlap
	return 1 + (n-chunkSize+step-1)/step
}

// NewSplitter returns the splitter selected in the config. "recursive" keeps
// the separator-aware behaviour of langchain's RecursiveCharacterTextSplitter,
// which does not guarantee exact overlaps.
func NewSplitter(cfg config.RAGConfig) (textsplitter.TextSplitter, error) {
	switch cfg.Splitter {
	case "recursive":
		return textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		), nil
	case "window", "":
		return NewWindowSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	default:
		return nil, fmt.Errorf("unknown splitter %q", cfg.Splitter)
	}
}

// LoadChunks parses the document at filePath and splits it into numbered
// chunks. Nothing is returned unless the whole document was processed.
func LoadChunks(ctx context.Context, filePath string, cfg config.RAGConfig) ([]models.Chunk, error) {
	segments, err := Load(ctx, filePath)
	if err != nil {
		return nil, models.Fail(models.StageIngest, err)
	}

	splitter, err := NewSplitter(cfg)
	if err != nil {
		return nil, models.Fail(models.StageIngest, err)
	}
	docs, err := textsplitter.SplitDocuments(splitter, segments)
	if err != nil {
		return nil, models.Fail(models.StageIngest, fmt.Errorf("split %s: %w", filePath, err))
	}
	if len(docs) == 0 {
		return nil, models.Fail(models.StageIngest, models.ErrNoExtractableText)
	}

	chunks := ToChunks(docs)
	log.Info().Str("file", filePath).Int("pages", len(segments)).Int("chunks", len(chunks)).Msg("Chunked document")
	return chunks, nil
}

// ToChunks numbers split documents in order, starting at 1.
func ToChunks(docs []schema.Document) []models.Chunk {
	chunks := make([]models.Chunk, 0, len(docs))
	for i, d := range docs {
		chunks = append(chunks, models.Chunk{
			ChunkID:    i + 1,
			PageNumber: metaInt(d.Metadata, models.MetaPage, defaultPageNumber),
			Source:     metaString(d.Metadata, models.MetaSource),
			Content:    d.PageContent,
		})
	}
	return chunks
}

func metaInt(meta map[string]any, key string, fallback int) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func metaString(meta map[string]any, key string) string {
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}
