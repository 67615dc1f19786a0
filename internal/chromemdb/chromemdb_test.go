package chromemdb

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"smartdoc/internal/embedding"
	"smartdoc/internal/models"

	"github.com/stretchr/testify/require"
)

var texts = []string{
	"the lighthouse keeper logs every passing ship",
	"quarterly revenue grew by four percent",
	"zebras sleep standing up in the savanna",
	"a recipe for sourdough bread with rye flour",
	"the compiler rejects unused imports",
}

func buildIndex(t *testing.T) (*Index, []models.Chunk, [][]float32) {
	t.Helper()
	h := embedding.NewHashClient(embedding.DefaultHashDimensions)
	chunks := make([]models.Chunk, len(texts))
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		chunks[i] = models.Chunk{ChunkID: i + 1, PageNumber: i/2 + 1, Source: "doc.txt", Content: text}
		vectors[i] = h.Embed(text)
	}
	idx, err := Build(context.Background(), chunks, vectors)
	require.NoError(t, err)
	return idx, chunks, vectors
}

func TestSelfRetrieval(t *testing.T) {
	idx, chunks, vectors := buildIndex(t)
	require.Equal(t, len(chunks), idx.Len())

	for i, v := range vectors {
		hits, err := idx.Query(context.Background(), v, 2)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		require.Equal(t, chunks[i], hits[0].Chunk, "query %d", i)
		require.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
	}
}

func TestQueryClampsK(t *testing.T) {
	idx, chunks, vectors := buildIndex(t)
	hits, err := idx.Query(context.Background(), vectors[0], 50)
	require.NoError(t, err)
	require.Len(t, hits, len(chunks))

	hits, err = idx.Query(context.Background(), vectors[0], 0)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestQueryBreaksTiesByChunkID(t *testing.T) {
	h := embedding.NewHashClient(embedding.DefaultHashDimensions)
	chunks := make([]models.Chunk, 12)
	vectors := make([][]float32, len(chunks))
	for i := range chunks {
		chunks[i] = models.Chunk{ChunkID: i + 1, PageNumber: 1, Source: "dup.txt", Content: "same paragraph repeated"}
		vectors[i] = h.Embed(chunks[i].Content)
	}
	idx, err := Build(context.Background(), chunks, vectors)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		hits, err := idx.Query(context.Background(), vectors[0], 3)
		require.NoError(t, err)
		ids := make([]int, len(hits))
		for j, hit := range hits {
			ids[j] = hit.Chunk.ChunkID
		}
		require.Equal(t, []int{1, 2, 3}, ids, "attempt %d", i)
	}
}

func TestNilIndexIsEmpty(t *testing.T) {
	var idx *Index
	require.Zero(t, idx.Len())
}

func TestEmptyIndex(t *testing.T) {
	idx, err := Build(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Zero(t, idx.Len())

	hits, err := idx.Query(context.Background(), []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestBuildRejectsMismatch(t *testing.T) {
	_, err := Build(context.Background(), []models.Chunk{{ChunkID: 1, Content: "x"}}, nil)
	stage, ok := models.StageOf(err)
	require.True(t, ok)
	require.Equal(t, models.StageIndex, stage)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	tests := []struct {
		compress bool
		key      string
	}{
		{},
		{key: "0123456789abcdef0123456789abcdef"},
		{compress: true},
		{compress: true, key: "0123456789abcdef0123456789abcdef"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("compress=%v encrypted=%v", tt.compress, tt.key != ""), func(t *testing.T) {
			ctx := context.Background()
			idx, chunks, vectors := buildIndex(t)
			path := filepath.Join(t.TempDir(), "store", "index.gob")
			require.NoError(t, idx.Save(path, tt.compress, tt.key))

			loaded, err := Load(ctx, path, tt.key, nil)
			require.NoError(t, err)
			require.Equal(t, idx.Len(), loaded.Len())

			for _, v := range vectors {
				want, err := idx.Query(ctx, v, 3)
				require.NoError(t, err)
				got, err := loaded.Query(ctx, v, 3)
				require.NoError(t, err)
				require.Equal(t, want, got)
			}

			all, err := loaded.Chunks(ctx)
			require.NoError(t, err)
			require.Equal(t, chunks, all)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.gob"), "", nil)
	stage, ok := models.StageOf(err)
	require.True(t, ok)
	require.Equal(t, models.StagePersist, stage)
}
