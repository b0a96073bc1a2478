// Package rerank rescores retrieved candidates against the original
// query and applies the quality cutoff.
package rerank

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/danielpatrickdp/scopedkb/internal/retrieval"
	"github.com/danielpatrickdp/scopedkb/internal/store"
)

// #region types
// Result is a candidate chunk with its rerank score.
type Result struct {
	Chunk    store.Chunk
	Score    float32
	Rank     int // original retrieval rank
	SubQuery int
}

// Config holds the reranker quality cutoff.
type Config struct {
	Threshold float32 // minimum rerank score to survive
}

// DefaultConfig returns the default quality cutoff.
func DefaultConfig() Config {
	return Config{Threshold: 0.5}
}

// #endregion types

// #region scorer
// Scorer scores candidates against the query. Implementations should
// return one score per candidate, in input order. On scorer failure the
// reranker falls back to the original retrieval scores.
type Scorer interface {
	Score(ctx context.Context, query string, candidates []retrieval.Candidate) ([]float32, error)
}

// #endregion scorer

// #region reranker
// Reranker reorders candidates by rerank score and drops everything
// below the threshold. Quality exhaustion is reported as a typed
// failure kind, never as an error.
type Reranker struct {
	scorer Scorer
	config Config
}

// NewReranker creates a Reranker with the given scorer and config.
func NewReranker(scorer Scorer, config Config) *Reranker {
	return &Reranker{scorer: scorer, config: config}
}

// #endregion reranker

// #region rerank
// Rerank scores candidates against queryText. The returned kind is
// empty on success, FailRerankerNoQuality for empty input, and
// FailLowQuality when every candidate scored below the threshold.
func (r *Reranker) Rerank(ctx context.Context, queryText string, candidates []retrieval.Candidate) ([]Result, retrieval.FailureKind) {
	if len(candidates) == 0 {
		return nil, retrieval.FailRerankerNoQuality
	}

	scores, err := r.scorer.Score(ctx, queryText, candidates)
	if err != nil || len(scores) != len(candidates) {
		// Degrade to the retrieval scores rather than dropping context.
		log.Printf("[RERANK] scorer unavailable (%v), falling back to retrieval scores", err)
		scores = make([]float32, len(candidates))
		for i, cand := range candidates {
			scores[i] = cand.Score
		}
	}

	results := make([]Result, len(candidates))
	for i, cand := range candidates {
		results[i] = Result{
			Chunk:    cand.Chunk,
			Score:    scores[i],
			Rank:     cand.Rank,
			SubQuery: cand.SubQuery,
		}
	}

	// Tie order: original retrieval rank, then producing sub-query.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Rank != results[j].Rank {
			return results[i].Rank < results[j].Rank
		}
		return results[i].SubQuery < results[j].SubQuery
	})
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	kept := results[:0]
	for _, res := range results {
		if res.Score >= r.config.Threshold {
			kept = append(kept, res)
		}
	}
	if len(kept) == 0 {
		return nil, retrieval.FailLowQuality
	}
	return kept, ""
}

// #endregion rerank

// #region embedding-scorer
// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingScorer scores candidates by cosine similarity between the
// whole query's embedding and each chunk's stored embedding. Cheap
// cross-check against the sub-query similarity that retrieved them.
type EmbeddingScorer struct {
	embedder Embedder
}

// NewEmbeddingScorer creates an embedding-based scorer.
func NewEmbeddingScorer(embedder Embedder) *EmbeddingScorer {
	return &EmbeddingScorer{embedder: embedder}
}

// Score embeds the query once and scores every candidate against it.
func (s *EmbeddingScorer) Score(ctx context.Context, query string, candidates []retrieval.Candidate) ([]float32, error) {
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	scores := make([]float32, len(candidates))
	for i, cand := range candidates {
		scores[i] = store.CosineSimilarity(queryVec, cand.Chunk.Embedding)
	}
	return scores, nil
}

// #endregion embedding-scorer
