package store

import (
	"context"

	"github.com/danielpatrickdp/scopedkb/internal/clearance"
)

// #region chunk
// Chunk is a single knowledge-base passage with its embedding and
// security level.
type Chunk struct {
	ID            string
	Source        string
	Content       string
	SecurityLevel clearance.Level
	Metadata      map[string]string
	Embedding     []float32
}

// #endregion chunk

// #region search-result
// ScoredChunk pairs a chunk with its similarity to the query embedding.
type ScoredChunk struct {
	Chunk Chunk
	Score float32
}

// SearchResult partitions the top-K candidates by clearance visibility.
// Redacted counts candidates that matched but sit above the caller's level.
type SearchResult struct {
	Matches  []ScoredChunk
	Redacted int
}

// #endregion search-result

// #region store-interface
// Store is the knowledge-base contract the retrieval coordinator queries.
// Implementations must restrict Matches to security_level <= level and
// report everything else in the candidate set as Redacted.
type Store interface {
	Add(ctx context.Context, chunks []Chunk) error
	Search(ctx context.Context, embedding []float32, level clearance.Level, topK int) (SearchResult, error)
	Close() error
}

// #endregion store-interface
