package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"

	"smartdoc/internal/helper"
	"smartdoc/internal/models"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
)

// CollectionName is the single collection every index keeps its chunks in.
const CollectionName = "smartdoc"

// Index is an in-memory chromem collection holding the chunks of one document.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// EmbeddingFunc adapts a langchain embedder to chromem. Chunks are always added
// with precomputed vectors, so it only runs for text queries.
func EmbeddingFunc(embedder embeddings.Embedder) chromem.EmbeddingFunc {
	if embedder == nil {
		return func(context.Context, string) ([]float32, error) {
			return nil, errors.New("no embedder configured for text queries")
		}
	}
	return func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedQuery(ctx, text)
	}
}

// Build creates a fresh index from chunks and their vectors.
func Build(ctx context.Context, chunks []models.Chunk, vectors [][]float32) (*Index, error) {
	if len(chunks) != len(vectors) {
		return nil, models.Fail(models.StageIndex, fmt.Errorf("%d chunks but %d vectors", len(chunks), len(vectors)))
	}

	db := chromem.NewDB()
	c, err := db.CreateCollection(CollectionName, nil, EmbeddingFunc(nil))
	if err != nil {
		return nil, models.Fail(models.StageIndex, fmt.Errorf("failed to create collection: %w", err))
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for i, chunk := range chunks {
		docs = append(docs, chromem.Document{
			ID:        chunk.Key(),
			Content:   chunk.Content,
			Metadata:  metadata(chunk),
			Embedding: vectors[i],
		})
	}
	if len(docs) > 0 {
		if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return nil, models.Fail(models.StageIndex, fmt.Errorf("failed to add documents: %w", err))
		}
	}

	log.Debug().Int("documents", c.Count()).Msg("Built vector index")
	return &Index{db: db, collection: c}, nil
}

// Len is the number of chunks in the index.
func (idx *Index) Len() int {
	if idx == nil || idx.collection == nil {
		return 0
	}
	return idx.collection.Count()
}

// Query returns up to k chunks ranked by cosine similarity to vector. Ties are
// ordered by chunk id so that the same query always yields the same list.
func (idx *Index) Query(ctx context.Context, vector []float32, k int) ([]models.ScoredChunk, error) {
	total := idx.collection.Count()
	if k <= 0 || total == 0 {
		return nil, nil
	}

	// chromem picks among equal scores arbitrarily, so rank every candidate
	// before cutting to k.
	results, err := idx.collection.QueryEmbedding(ctx, vector, total, nil, nil)
	if err != nil {
		return nil, models.Fail(models.StageRetrieve, fmt.Errorf("failed to query by similarity: %w", err))
	}

	hits := make([]models.ScoredChunk, 0, len(results))
	for _, r := range results {
		chunk, err := fromResult(r)
		if err != nil {
			return nil, models.Fail(models.StageRetrieve, err)
		}
		hits = append(hits, models.ScoredChunk{Chunk: chunk, Score: r.Similarity})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Chunk.ChunkID < hits[j].Chunk.ChunkID
	})
	return hits[:min(k, len(hits))], nil
}

// Save exports the index to path. A non-empty key must be 32 bytes and
// encrypts the file.
func (idx *Index) Save(path string, compress bool, key string) error {
	if path == "" {
		return models.Fail(models.StagePersist, errors.New("vector store path is required"))
	}
	if err := helper.CreateFolder(filepath.Dir(path)); err != nil {
		return models.Fail(models.StagePersist, err)
	}

	log.Debug().Str("path", path).Bool("compress", compress).Bool("encrypted", key != "").Msg("Exporting vector index")
	if err := idx.db.ExportToFile(path, compress, key, CollectionName); err != nil {
		return models.Fail(models.StagePersist, fmt.Errorf("failed to export database: %w", err))
	}
	return nil
}

// Load reads an index written by Save. The embedder, if any, serves text queries.
func Load(ctx context.Context, path, key string, embedder embeddings.Embedder) (*Index, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	db := chromem.NewDB()
	if err := db.ImportFromFile(path, key, CollectionName); err != nil {
		return nil, models.Fail(models.StagePersist, fmt.Errorf("failed to import database: %w", err))
	}
	c := db.GetCollection(CollectionName, EmbeddingFunc(embedder))
	if c == nil {
		return nil, models.Fail(models.StagePersist, fmt.Errorf("collection %q not found in %s", CollectionName, path))
	}

	log.Debug().Str("path", path).Int("documents", c.Count()).Msg("Imported vector index")
	return &Index{db: db, collection: c}, nil
}

// Chunks returns every chunk of the index ordered by chunk id.
func (idx *Index) Chunks(ctx context.Context) ([]models.Chunk, error) {
	chunks := make([]models.Chunk, 0, idx.collection.Count())
	for id := 1; len(chunks) < idx.collection.Count(); id++ {
		doc, err := idx.collection.GetByID(ctx, strconv.Itoa(id))
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", id, err)
		}
		chunk, err := fromResult(chromem.Result{ID: doc.ID, Metadata: doc.Metadata, Content: doc.Content})
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func metadata(c models.Chunk) map[string]string {
	return map[string]string{
		models.MetaChunkID: strconv.Itoa(c.ChunkID),
		models.MetaPage:    strconv.Itoa(c.PageNumber),
		models.MetaSource:  c.Source,
	}
}

func fromResult(r chromem.Result) (models.Chunk, error) {
	id, err := strconv.Atoi(r.Metadata[models.MetaChunkID])
	if err != nil {
		return models.Chunk{}, fmt.Errorf("document %s has no chunk id: %w", r.ID, err)
	}
	page, _ := strconv.Atoi(r.Metadata[models.MetaPage])
	return models.Chunk{
		ChunkID:    id,
		PageNumber: page,
		Source:     r.Metadata[models.MetaSource],
		Content:    r.Content,
	}, nil
}
