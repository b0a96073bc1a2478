package retrieval

import (
	"github.com/danielpatrickdp/scopedkb/internal/store"
)

// #region failure-kind
// FailureKind enumerates why a pipeline stage produced no usable
// passages. Retrieval raises the first five; the reranker raises the
// quality kinds through the same taxonomy so the audit mapping stays
// in one place.
type FailureKind string

const (
	FailInsufficientClearance FailureKind = "insufficient_clearance"
	FailNoClearance           FailureKind = "no_clearance"
	FailNoDocuments           FailureKind = "no_documents"
	FailNoRelevantDocuments   FailureKind = "no_relevant_documents"
	FailLowQuality            FailureKind = "low_quality_results"
	FailRerankerNoQuality     FailureKind = "reranker_no_quality"
	FailRetrievalError        FailureKind = "retrieval_error"
)

// Clearance reports whether the failure is an access denial rather than
// an empty or broken store.
func (k FailureKind) Clearance() bool {
	return k == FailInsufficientClearance || k == FailNoClearance
}

// severityRank orders failure kinds for the all-failed aggregation:
// clearance denials outrank upstream errors, which outrank empty stores.
func (k FailureKind) severityRank() int {
	switch {
	case k.Clearance():
		return 3
	case k == FailRetrievalError:
		return 2
	default:
		return 1
	}
}

// #endregion failure-kind

// #region failure
// Failure is a typed per-sub-query failure reason.
type Failure struct {
	Kind     FailureKind
	SubQuery int
	Detail   string
}

// #endregion failure

// #region candidate
// Candidate is a retrieved chunk with its similarity score, its rank
// within the producing sub-query's results, and that sub-query's index.
type Candidate struct {
	Chunk    store.Chunk
	Score    float32
	Rank     int
	SubQuery int
}

// #endregion candidate

// #region outcome
// Outcome is the settled result of one sub-query retrieval. Exactly one
// of Candidates or Failure is populated.
type Outcome struct {
	Candidates []Candidate
	Failure    *Failure
}

// #endregion outcome

// #region aggregated
// Aggregated is the fan-in of all sub-query outcomes. Candidates are
// deduplicated by source, keeping the higher score. Partial is set when
// outcomes were mixed.
type Aggregated struct {
	Candidates []Candidate
	Failures   []Failure
	Partial    bool
}

// AllFailed reports whether no sub-query produced candidates.
func (a Aggregated) AllFailed() bool {
	return len(a.Candidates) == 0 && len(a.Failures) > 0
}

// DecisiveFailure returns the most severe failure reason, ties broken
// by the first-occurring sub-query index. ok is false when there are no
// failures at all.
func (a Aggregated) DecisiveFailure() (Failure, bool) {
	if len(a.Failures) == 0 {
		return Failure{}, false
	}
	decisive := a.Failures[0]
	for _, f := range a.Failures[1:] {
		if f.Kind.severityRank() > decisive.Kind.severityRank() {
			decisive = f
		}
	}
	return decisive, true
}

// #endregion aggregated

// #region config
// Config holds thresholds and limits for the retrieval fan-out.
type Config struct {
	TopK          int     // max candidates per sub-query search
	MinSimilarity float32 // retrieval-side relevance floor
	MaxParallel   int     // fan-out degree; 0 means unbounded (capped by sub-query count)
}

// DefaultConfig returns sensible defaults for clearance-gated retrieval.
func DefaultConfig() Config {
	return Config{
		TopK:          5,
		MinSimilarity: 0.2,
		MaxParallel:   0,
	}
}

// #endregion config
