package models

import (
	"strconv"
	"time"
)

// Chunk represents a window of source text with its position in the document
type Chunk struct {
	ChunkID    int    `json:"chunk_id"`
	PageNumber int    `json:"page_number"`
	Source     string `json:"source"`
	Content    string `json:"content"`
}

// Key is the identifier used for the chunk inside a vector index
func (c Chunk) Key() string {
	return strconv.Itoa(c.ChunkID)
}

// ScoredChunk is a retrieval hit, higher score means more similar
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float32 `json:"score"`
}

// QARecord is one answered question of a session history
type QARecord struct {
	ID       string    `json:"id"`
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	Sources  []Chunk   `json:"sources,omitempty"`
	AskedAt  time.Time `json:"asked_at"`
}

// metadata keys shared by loaders, splitters and indexes
const (
	MetaSource     = "source"
	MetaPage       = "page"
	MetaTotalPages = "total_pages"
	MetaChunkID    = "chunk_id"
)
