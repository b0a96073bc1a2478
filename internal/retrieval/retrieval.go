// Package retrieval fans sub-queries out to the knowledge store under
// clearance filtering and fans the partial results back in.
package retrieval

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/danielpatrickdp/scopedkb/internal/clearance"
	"github.com/danielpatrickdp/scopedkb/internal/decompose"
	"github.com/danielpatrickdp/scopedkb/internal/store"
)

// #region embedder
// Embedder turns sub-query text into a vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// #endregion embedder

// #region coordinator
// Coordinator runs clearance-gated retrieval for every sub-query and
// aggregates the outcomes.
type Coordinator struct {
	embedder Embedder
	kb       store.Store
	config   Config
}

// NewCoordinator creates a Coordinator with the given collaborators.
func NewCoordinator(embedder Embedder, kb store.Store, config Config) *Coordinator {
	return &Coordinator{embedder: embedder, kb: kb, config: config}
}

// #endregion coordinator

// #region retrieve
// Retrieve embeds and searches each sub-query concurrently, waits for
// every outcome to settle, and folds them into an Aggregated context.
// Stage failures never escape as errors; they become typed outcomes.
func (c *Coordinator) Retrieve(ctx context.Context, subs []decompose.SubQuery, level clearance.Level) Aggregated {
	outcomes := make([]Outcome, len(subs))

	// No usable clearance at all: settle every outcome without
	// touching the store.
	if !level.Valid() {
		for i, sub := range subs {
			outcomes[i] = Outcome{Failure: &Failure{
				Kind:     FailNoClearance,
				SubQuery: sub.Index,
				Detail:   "requesting user holds no usable clearance",
			}}
		}
		return c.fold(outcomes)
	}

	limit := int64(len(subs))
	if c.config.MaxParallel > 0 && int64(c.config.MaxParallel) < limit {
		limit = int64(c.config.MaxParallel)
	}
	sem := semaphore.NewWeighted(limit)

	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub decompose.SubQuery) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				// Deadline elapsed before this sub-query started;
				// treat it like any other store failure.
				outcomes[i] = errorOutcome(sub.Index, fmt.Errorf("acquire slot: %w", err))
				return
			}
			defer sem.Release(1)
			if err := ctx.Err(); err != nil {
				// Deadline elapsed before this sub-query settled.
				outcomes[i] = errorOutcome(sub.Index, err)
				return
			}
			outcomes[i] = c.retrieveOne(ctx, sub, level)
		}(i, sub)
	}
	wg.Wait()

	return c.fold(outcomes)
}

// #endregion retrieve

// #region retrieve-one
// retrieveOne embeds one sub-query, searches the store at the caller's
// clearance, and classifies the outcome.
func (c *Coordinator) retrieveOne(ctx context.Context, sub decompose.SubQuery, level clearance.Level) Outcome {
	vec, err := c.embedder.Embed(ctx, sub.Text)
	if err != nil {
		return errorOutcome(sub.Index, fmt.Errorf("embed sub-query: %w", err))
	}

	res, err := c.kb.Search(ctx, vec, level, c.config.TopK)
	if err != nil {
		return errorOutcome(sub.Index, fmt.Errorf("search: %w", err))
	}

	switch {
	case len(res.Matches) == 0 && res.Redacted > 0:
		return Outcome{Failure: &Failure{
			Kind:     FailInsufficientClearance,
			SubQuery: sub.Index,
			Detail:   fmt.Sprintf("%d candidates redacted at clearance %s", res.Redacted, level),
		}}
	case len(res.Matches) == 0:
		return Outcome{Failure: &Failure{
			Kind:     FailNoDocuments,
			SubQuery: sub.Index,
			Detail:   "store returned no candidates",
		}}
	}

	var candidates []Candidate
	for rank, m := range res.Matches {
		if m.Score < c.config.MinSimilarity {
			continue
		}
		candidates = append(candidates, Candidate{
			Chunk:    m.Chunk,
			Score:    m.Score,
			Rank:     rank,
			SubQuery: sub.Index,
		})
	}
	if len(candidates) == 0 {
		return Outcome{Failure: &Failure{
			Kind:     FailNoRelevantDocuments,
			SubQuery: sub.Index,
			Detail:   fmt.Sprintf("%d candidates below similarity floor %.2f", len(res.Matches), c.config.MinSimilarity),
		}}
	}
	return Outcome{Candidates: candidates}
}

func errorOutcome(subIndex int, err error) Outcome {
	return Outcome{Failure: &Failure{
		Kind:     FailRetrievalError,
		SubQuery: subIndex,
		Detail:   err.Error(),
	}}
}

// #endregion retrieve-one

// #region fold
// fold aggregates settled outcomes: candidates deduplicated by source
// (higher score wins, first-seen rank kept), failures collected in
// sub-query order.
func (c *Coordinator) fold(outcomes []Outcome) Aggregated {
	var agg Aggregated
	succeeded := 0
	bySource := make(map[string]int) // source -> index in agg.Candidates

	for _, o := range outcomes {
		if o.Failure != nil {
			agg.Failures = append(agg.Failures, *o.Failure)
			continue
		}
		succeeded++
		for _, cand := range o.Candidates {
			if at, ok := bySource[cand.Chunk.Source]; ok {
				// Only the score is upgraded; the first-seen rank and
				// sub-query keep the dedupe stable for tie-breaking.
				if cand.Score > agg.Candidates[at].Score {
					agg.Candidates[at].Score = cand.Score
				}
				continue
			}
			bySource[cand.Chunk.Source] = len(agg.Candidates)
			agg.Candidates = append(agg.Candidates, cand)
		}
	}

	agg.Partial = succeeded > 0 && len(agg.Failures) > 0
	log.Printf("[RETRIEVE] settled %d sub-queries: %d candidates, %d failures, partial=%v",
		len(outcomes), len(agg.Candidates), len(agg.Failures), agg.Partial)
	return agg
}

// #endregion fold
