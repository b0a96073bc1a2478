package retrieval

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/danielpatrickdp/scopedkb/internal/clearance"
	"github.com/danielpatrickdp/scopedkb/internal/decompose"
	"github.com/danielpatrickdp/scopedkb/internal/store"
)

// #region mocks
type mockEmbedder struct {
	err error
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []float32{1, 0, 0}, nil
}

// mockStore scripts one SearchResult (or error) per sub-query text.
type mockStore struct {
	mu      sync.Mutex
	results map[string]store.SearchResult
	errs    map[string]error
	calls   int
}

func (m *mockStore) Add(_ context.Context, _ []store.Chunk) error { return nil }
func (m *mockStore) Close() error                                 { return nil }

func (m *mockStore) Search(_ context.Context, _ []float32, _ clearance.Level, _ int) (store.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	// Results are keyed by call order via the remaining map; tests with
	// multiple sub-queries use distinct embeddings instead, so a single
	// scripted result per store is enough here.
	for _, err := range m.errs {
		return store.SearchResult{}, err
	}
	for _, res := range m.results {
		return res, nil
	}
	return store.SearchResult{}, nil
}

func chunk(id, source string, level clearance.Level) store.Chunk {
	return store.Chunk{ID: id, Source: source, Content: "content of " + id, SecurityLevel: level, Embedding: []float32{1, 0, 0}}
}

// #endregion mocks

// #region single-sub-query
func TestRetrieve_Success(t *testing.T) {
	kb := &mockStore{results: map[string]store.SearchResult{
		"q": {Matches: []store.ScoredChunk{
			{Chunk: chunk("c1", "a.md", clearance.General), Score: 0.9},
			{Chunk: chunk("c2", "b.md", clearance.General), Score: 0.6},
		}},
	}}
	c := NewCoordinator(&mockEmbedder{}, kb, DefaultConfig())

	agg := c.Retrieve(context.Background(), decompose.Identity("q"), clearance.General)
	if agg.AllFailed() {
		t.Fatal("expected success")
	}
	if len(agg.Candidates) != 2 {
		t.Fatalf("candidates: got %d, want 2", len(agg.Candidates))
	}
	if agg.Partial {
		t.Error("single success must not be partial")
	}
	if agg.Candidates[0].Rank != 0 || agg.Candidates[1].Rank != 1 {
		t.Errorf("ranks: got %d, %d", agg.Candidates[0].Rank, agg.Candidates[1].Rank)
	}
}

func TestRetrieve_OutcomeClassification(t *testing.T) {
	tests := []struct {
		name     string
		result   store.SearchResult
		searchErr error
		embedErr  error
		wantKind  FailureKind
	}{
		{
			"all-redacted",
			store.SearchResult{Redacted: 3},
			nil, nil,
			FailInsufficientClearance,
		},
		{
			"empty-store",
			store.SearchResult{},
			nil, nil,
			FailNoDocuments,
		},
		{
			"below-similarity-floor",
			store.SearchResult{Matches: []store.ScoredChunk{
				{Chunk: chunk("c1", "a.md", clearance.General), Score: 0.05},
			}},
			nil, nil,
			FailNoRelevantDocuments,
		},
		{
			"store-error",
			store.SearchResult{},
			errors.New("connection reset"), nil,
			FailRetrievalError,
		},
		{
			"embed-error",
			store.SearchResult{},
			nil, errors.New("embedder down"),
			FailRetrievalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kb := &mockStore{results: map[string]store.SearchResult{"q": tt.result}}
			if tt.searchErr != nil {
				kb = &mockStore{errs: map[string]error{"q": tt.searchErr}}
			}
			c := NewCoordinator(&mockEmbedder{err: tt.embedErr}, kb, DefaultConfig())

			agg := c.Retrieve(context.Background(), decompose.Identity("q"), clearance.General)
			if !agg.AllFailed() {
				t.Fatal("expected failure")
			}
			decisive, ok := agg.DecisiveFailure()
			if !ok {
				t.Fatal("expected a decisive failure")
			}
			if decisive.Kind != tt.wantKind {
				t.Errorf("kind: got %s, want %s", decisive.Kind, tt.wantKind)
			}
		})
	}
}

// #endregion single-sub-query

// #region no-clearance
func TestRetrieve_InvalidClearanceSkipsStore(t *testing.T) {
	kb := &mockStore{}
	c := NewCoordinator(&mockEmbedder{}, kb, DefaultConfig())

	subs := []decompose.SubQuery{{Text: "a", Index: 0}, {Text: "b", Index: 1}}
	agg := c.Retrieve(context.Background(), subs, clearance.Unknown)

	if kb.calls != 0 {
		t.Errorf("store must not be queried without usable clearance, got %d calls", kb.calls)
	}
	if len(agg.Failures) != 2 {
		t.Fatalf("failures: got %d, want 2", len(agg.Failures))
	}
	for _, f := range agg.Failures {
		if f.Kind != FailNoClearance {
			t.Errorf("kind: got %s, want %s", f.Kind, FailNoClearance)
		}
	}
}

// #endregion no-clearance

// #region severity
func TestDecisiveFailure_ClearanceOutranksEverything(t *testing.T) {
	agg := Aggregated{Failures: []Failure{
		{Kind: FailNoDocuments, SubQuery: 0},
		{Kind: FailRetrievalError, SubQuery: 1},
		{Kind: FailInsufficientClearance, SubQuery: 2},
	}}
	decisive, ok := agg.DecisiveFailure()
	if !ok || decisive.Kind != FailInsufficientClearance {
		t.Errorf("decisive: got %+v", decisive)
	}
}

func TestDecisiveFailure_ErrorOutranksEmpty(t *testing.T) {
	agg := Aggregated{Failures: []Failure{
		{Kind: FailNoDocuments, SubQuery: 0},
		{Kind: FailRetrievalError, SubQuery: 1},
	}}
	decisive, _ := agg.DecisiveFailure()
	if decisive.Kind != FailRetrievalError {
		t.Errorf("decisive: got %s", decisive.Kind)
	}
}

func TestDecisiveFailure_TieKeepsFirstSubQuery(t *testing.T) {
	agg := Aggregated{Failures: []Failure{
		{Kind: FailNoClearance, SubQuery: 1},
		{Kind: FailInsufficientClearance, SubQuery: 3},
	}}
	decisive, _ := agg.DecisiveFailure()
	if decisive.SubQuery != 1 {
		t.Errorf("tie-break: got sub-query %d, want 1", decisive.SubQuery)
	}
}

// #endregion severity

// #region fold
func TestFold_DedupeKeepsHigherScore(t *testing.T) {
	c := NewCoordinator(&mockEmbedder{}, &mockStore{}, DefaultConfig())
	outcomes := []Outcome{
		{Candidates: []Candidate{
			{Chunk: chunk("c1", "shared.md", clearance.General), Score: 0.6, Rank: 2, SubQuery: 0},
		}},
		{Candidates: []Candidate{
			{Chunk: chunk("c1b", "shared.md", clearance.General), Score: 0.8, Rank: 0, SubQuery: 1},
			{Chunk: chunk("c2", "other.md", clearance.General), Score: 0.5, Rank: 1, SubQuery: 1},
		}},
	}

	agg := c.fold(outcomes)
	if len(agg.Candidates) != 2 {
		t.Fatalf("candidates: got %d, want 2", len(agg.Candidates))
	}
	shared := agg.Candidates[0]
	if shared.Chunk.Source != "shared.md" || shared.Score != 0.8 {
		t.Errorf("dedupe must retain the higher score, got %+v", shared)
	}
	if shared.Rank != 2 || shared.SubQuery != 0 {
		t.Errorf("dedupe must keep the first-seen rank and sub-query, got %+v", shared)
	}
}

func TestFold_PartialFlag(t *testing.T) {
	c := NewCoordinator(&mockEmbedder{}, &mockStore{}, DefaultConfig())

	mixed := c.fold([]Outcome{
		{Candidates: []Candidate{{Chunk: chunk("c1", "a.md", clearance.General), Score: 0.9}}},
		{Failure: &Failure{Kind: FailInsufficientClearance, SubQuery: 1}},
	})
	if !mixed.Partial {
		t.Error("mixed outcomes must set Partial")
	}

	allFailed := c.fold([]Outcome{
		{Failure: &Failure{Kind: FailNoDocuments, SubQuery: 0}},
		{Failure: &Failure{Kind: FailNoDocuments, SubQuery: 1}},
	})
	if allFailed.Partial {
		t.Error("all-failed must not set Partial")
	}
	if !allFailed.AllFailed() {
		t.Error("expected AllFailed")
	}
}

// #endregion fold

// #region cancellation
func TestRetrieve_CancelledContextSettlesAsError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	kb := &mockStore{results: map[string]store.SearchResult{
		"q": {Matches: []store.ScoredChunk{{Chunk: chunk("c1", "a.md", clearance.General), Score: 0.9}}},
	}}
	cfg := DefaultConfig()
	cfg.MaxParallel = 1
	c := NewCoordinator(&mockEmbedder{}, kb, cfg)

	agg := c.Retrieve(ctx, decompose.Identity("q"), clearance.General)
	if !agg.AllFailed() {
		t.Fatal("cancelled request should settle as failures")
	}
	decisive, _ := agg.DecisiveFailure()
	if decisive.Kind != FailRetrievalError {
		t.Errorf("kind: got %s, want %s", decisive.Kind, FailRetrievalError)
	}
}

// #endregion cancellation
