package rag

import (
	"context"
	"fmt"
	"reflect"

	"smartdoc/internal/models"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
)

// VectorIndex is a built index of one document's chunks.
type VectorIndex interface {
	Query(ctx context.Context, vector []float32, k int) ([]models.ScoredChunk, error)
	Len() int
}

// Retriever maps a question to the K chunks closest to it.
type Retriever struct {
	Index    VectorIndex
	Embedder embeddings.Embedder
	K        int
}

var _ schema.Retriever = (*Retriever)(nil)

// missing reports whether idx is unset, including a nil pointer stored in the
// interface.
func missing(idx VectorIndex) bool {
	if idx == nil {
		return true
	}
	v := reflect.ValueOf(idx)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

func NewRetriever(index VectorIndex, embedder embeddings.Embedder, k int) *Retriever {
	return &Retriever{Index: index, Embedder: embedder, K: k}
}

func (r *Retriever) Retrieve(ctx context.Context, query string) ([]models.ScoredChunk, error) {
	if missing(r.Index) {
		return nil, models.Fail(models.StageRetrieve, models.ErrNoDocument)
	}
	vector, err := r.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, models.Fail(models.StageRetrieve, fmt.Errorf("embed query: %w", err))
	}
	hits, err := r.Index.Query(ctx, vector, r.K)
	if err != nil {
		return nil, models.Fail(models.StageRetrieve, err)
	}
	return hits, nil
}

// GetRelevantDocuments implements schema.Retriever.
func (r *Retriever) GetRelevantDocuments(ctx context.Context, query string) ([]schema.Document, error) {
	hits, err := r.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}
	docs := make([]schema.Document, 0, len(hits))
	for _, h := range hits {
		docs = append(docs, ToDocument(h))
	}
	return docs, nil
}

func ToDocument(h models.ScoredChunk) schema.Document {
	return schema.Document{
		PageContent: h.Chunk.Content,
		Metadata: map[string]any{
			models.MetaChunkID: h.Chunk.ChunkID,
			models.MetaPage:    h.Chunk.PageNumber,
			models.MetaSource:  h.Chunk.Source,
		},
		Score: h.Score,
	}
}
