package db

import (
	"context"
	"database/sql"
	"fmt"

	"smartdoc/internal/config"
	"smartdoc/internal/models"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

// Chunk is one row of the chunks table. Rows of several documents can live in
// the table side by side, separated by IndexName.
type Chunk struct {
	bun.BaseModel  `bun:"table:chunks,alias:c"`
	ID             int64           `bun:"id,pk,autoincrement"`
	IndexName      string          `bun:"index_name,notnull"`
	ChunkID        int             `bun:"chunk_id,notnull"`
	PageNumber     int             `bun:"page_number"`
	SourceFilename string          `bun:"source_filename"`
	Content        string          `bun:"content,notnull"`
	Embedding      pgvector.Vector `bun:"embedding,notnull,type:vector"`
	Score          float32         `bun:"score,scanonly"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens a lazy connection pool. Driver "pq" uses lib/pq, "pgx" the
// pgx stdlib adapter and anything else the bun pgdriver.
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	switch cfg.Driver {
	case "pq", "postgres":
		return sql.Open("postgres", cfg.DSN)
	case "pgx":
		return sql.Open("pgx", cfg.DSN)
	default:
		opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	}
}

func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*Chunk)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create chunks table: %w", err)
	}
	_, err := db.NewCreateIndex().
		Model((*Chunk)(nil)).
		Index("chunks_index_name_idx").
		Column("index_name", "chunk_id").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create chunks index: %w", err)
	}
	return nil
}

func DropChunks(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().Model((*Chunk)(nil)).IfExists().Exec(ctx)
	return err
}

// Store keeps the chunks of one named index in postgres.
type Store struct {
	db   *bun.DB
	name string
}

func NewStore(db *bun.DB, indexName string) *Store {
	return &Store{db: db, name: indexName}
}

// Build replaces every row of the store's index with chunks in one
// transaction, so a failed build leaves the previous document in place.
func (s *Store) Build(ctx context.Context, chunks []models.Chunk, vectors [][]float32) (*Index, error) {
	if len(chunks) != len(vectors) {
		return nil, models.Fail(models.StageIndex, fmt.Errorf("%d chunks but %d vectors", len(chunks), len(vectors)))
	}

	rows := make([]Chunk, 0, len(chunks))
	for i, c := range chunks {
		rows = append(rows, Chunk{
			IndexName:      s.name,
			ChunkID:        c.ChunkID,
			PageNumber:     c.PageNumber,
			SourceFilename: c.Source,
			Content:        c.Content,
			Embedding:      pgvector.NewVector(vectors[i]),
		})
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*Chunk)(nil)).Where("index_name = ?", s.name).Exec(ctx); err != nil {
			return fmt.Errorf("clear index %s: %w", s.name, err)
		}
		if len(rows) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, models.Fail(models.StageIndex, err)
	}

	log.Info().Str("index", s.name).Int("chunks", len(rows)).Msg("Stored chunks")
	return &Index{db: s.db, name: s.name, count: len(rows)}, nil
}

// Open attaches to rows stored by an earlier Build.
func (s *Store) Open(ctx context.Context) (*Index, error) {
	count, err := s.db.NewSelect().Model((*Chunk)(nil)).Where("index_name = ?", s.name).Count(ctx)
	if err != nil {
		return nil, models.Fail(models.StagePersist, fmt.Errorf("count chunks of %s: %w", s.name, err))
	}
	return &Index{db: s.db, name: s.name, count: count}, nil
}

// Index answers nearest neighbour queries against one named index.
type Index struct {
	db    bun.IDB
	name  string
	count int
}

func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return idx.count
}

// Query returns the k rows closest to vector by cosine distance.
func (idx *Index) Query(ctx context.Context, vector []float32, k int) ([]models.ScoredChunk, error) {
	if k <= 0 || idx.count == 0 {
		return nil, nil
	}

	var rows []Chunk
	if err := idx.selectQuery(vector, k, &rows).Scan(ctx); err != nil {
		return nil, models.Fail(models.StageRetrieve, fmt.Errorf("search chunks: %w", err))
	}

	hits := make([]models.ScoredChunk, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, models.ScoredChunk{
			Chunk: models.Chunk{
				ChunkID:    r.ChunkID,
				PageNumber: r.PageNumber,
				Source:     r.SourceFilename,
				Content:    r.Content,
			},
			Score: r.Score,
		})
	}
	return hits, nil
}

func (idx *Index) selectQuery(vector []float32, k int, dest *[]Chunk) *bun.SelectQuery {
	v := pgvector.NewVector(vector)
	return idx.db.NewSelect().
		Model(dest).
		Column("chunk_id", "page_number", "source_filename", "content").
		ColumnExpr("1 - (embedding <=> ?::vector) AS score", v).
		Where("index_name = ?", idx.name).
		OrderExpr("embedding <=> ?::vector", v).
		OrderExpr("chunk_id ASC").
		Limit(k)
}
