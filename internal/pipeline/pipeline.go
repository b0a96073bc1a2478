// Package pipeline sequences classification, decomposition, retrieval,
// reranking, and synthesis into the query-response contract, and owns
// the error taxonomy.
package pipeline

import (
	"context"
	"log"

	"github.com/danielpatrickdp/scopedkb/internal/audit"
	"github.com/danielpatrickdp/scopedkb/internal/classify"
	"github.com/danielpatrickdp/scopedkb/internal/clearance"
	"github.com/danielpatrickdp/scopedkb/internal/decompose"
	"github.com/danielpatrickdp/scopedkb/internal/rerank"
	"github.com/danielpatrickdp/scopedkb/internal/retrieval"
	"github.com/danielpatrickdp/scopedkb/internal/synth"
)

// #region pipeline-struct
// Pipeline is the top-level orchestrator. One instance serves
// concurrent requests; all mutable state is per-invocation.
type Pipeline struct {
	classifier  *classify.Classifier
	decomposer  *decompose.Decomposer
	coordinator *retrieval.Coordinator
	reranker    *rerank.Reranker
	synthesizer *synth.Synthesizer
	emitter     *audit.Emitter
	config      Config
}

// #endregion pipeline-struct

// #region constructor
// New creates a fully wired pipeline. classifier and decomposer may be
// nil when the corresponding stage is disabled in config.
func New(
	classifier *classify.Classifier,
	decomposer *decompose.Decomposer,
	coordinator *retrieval.Coordinator,
	reranker *rerank.Reranker,
	synthesizer *synth.Synthesizer,
	emitter *audit.Emitter,
	config Config,
) *Pipeline {
	return &Pipeline{
		classifier:  classifier,
		decomposer:  decomposer,
		coordinator: coordinator,
		reranker:    reranker,
		synthesizer: synthesizer,
		emitter:     emitter,
		config:      config,
	}
}

// #endregion constructor

// #region answer
// Answer runs the full pipeline for one query and always returns a
// FinalAnswer; pipeline failures surface as outcome kinds, never as
// raw errors or internal text.
func (p *Pipeline) Answer(ctx context.Context, queryText, userID string, level clearance.Level) FinalAnswer {
	state := StateReceived
	log.Printf("[PIPE] %s user=%s clearance=%s", state, userID, level)

	// Classification: decide direct answer vs retrieval. Fails closed:
	// any classifier problem sends the query into retrieval.
	if p.config.ClassifierEnabled && p.classifier != nil {
		verdict, err := p.classifier.Classify(ctx, queryText)
		state = transition(state, StateClassified)
		if err != nil {
			log.Printf("[PIPE] classifier failed, retrieving anyway: %v", err)
		} else if !verdict.RequiresRAG {
			state = transition(state, StateDirect)
			transition(state, StateDone)
			return FinalAnswer{Text: verdict.DirectResponse, Outcome: OutcomeAnswered}
		}
	}

	// Decomposition: always yields 1..5 sub-queries.
	subs := decompose.Identity(queryText)
	if p.config.DecomposerEnabled && p.decomposer != nil {
		var err error
		subs, err = p.decomposer.Decompose(ctx, queryText)
		if err != nil {
			log.Printf("[PIPE] decomposer degraded to identity: %v", err)
		}
	}
	state = transition(state, StateDecomposed)
	log.Printf("[PIPE] %d sub-queries", len(subs))

	// Clearance-gated fan-out retrieval.
	agg := p.coordinator.Retrieve(ctx, subs, level)
	state = transition(state, StateRetrieved)

	if agg.AllFailed() {
		decisive, _ := agg.DecisiveFailure()
		return p.exhausted(state, decisive, queryText, userID, level)
	}

	// Partial degradation is an access-relevant fact even when the
	// answer succeeds: one event per failed sub-query.
	for _, f := range agg.Failures {
		p.auditFailure(f, queryText, userID, level)
	}

	// Rerank against the original query.
	results, failKind := p.reranker.Rerank(ctx, queryText, agg.Candidates)
	state = transition(state, StateReranked)
	if failKind != "" {
		p.auditFailure(retrieval.Failure{Kind: failKind, Detail: "rerank quality cutoff"}, queryText, userID, level)
		transition(state, StateDone)
		return FinalAnswer{Text: p.config.NoContextMessage, Outcome: OutcomeFallbackNoContext}
	}

	// Synthesis.
	answer, err := p.synthesizer.Synthesize(ctx, queryText, results)
	if err != nil {
		transition(state, StateFailed)
		log.Printf("[PIPE] synthesis failed: %v", err)
		event := audit.NewEvent(userID,
			audit.Incident{Type: audit.IncidentSynthesisError, Severity: audit.SeverityCritical},
			"answer synthesis failed", queryText).
			WithLevels(level)
		p.emitter.Log(event)
		return FinalAnswer{Text: p.config.ErrorMessage, Outcome: OutcomeError}
	}
	state = transition(state, StateSynthesized)

	if !answer.Grounded {
		// The model judged the surviving passages insufficient.
		p.auditFailure(retrieval.Failure{Kind: retrieval.FailNoRelevantDocuments, Detail: "synthesis sentinel"}, queryText, userID, level)
		transition(state, StateDone)
		return FinalAnswer{Text: p.config.NoContextMessage, Outcome: OutcomeFallbackNoContext}
	}

	transition(state, StateDone)
	return FinalAnswer{Text: answer.Text, Sources: answer.Sources, Outcome: OutcomeAnswered}
}

// #endregion answer

// #region exhausted
// exhausted maps an all-sub-queries-failed aggregation to the final
// outcome and emits exactly one audit event for the decisive reason.
func (p *Pipeline) exhausted(state State, decisive retrieval.Failure, queryText, userID string, level clearance.Level) FinalAnswer {
	p.auditFailure(decisive, queryText, userID, level)

	switch {
	case decisive.Kind.Clearance():
		transition(state, StateDone)
		return FinalAnswer{Text: p.config.DeniedMessage, Outcome: OutcomeFallbackDenied}
	case decisive.Kind == retrieval.FailRetrievalError:
		transition(state, StateFailed)
		return FinalAnswer{Text: p.config.ErrorMessage, Outcome: OutcomeError}
	default:
		transition(state, StateDone)
		return FinalAnswer{Text: p.config.NoContextMessage, Outcome: OutcomeFallbackNoContext}
	}
}

// #endregion exhausted

// #region audit
// auditFailure emits one event for a failure reason, fire-and-forget.
func (p *Pipeline) auditFailure(f retrieval.Failure, queryText, userID string, level clearance.Level) {
	event := audit.NewEvent(userID, audit.Classify(f.Kind), f.Detail, queryText).
		WithDetails(map[string]interface{}{
			"kind":      string(f.Kind),
			"sub_query": f.SubQuery,
		}).
		WithLevels(level)
	p.emitter.Log(event)
}

// #endregion audit

// #region transition
func transition(from, to State) State {
	log.Printf("[PIPE] %s → %s", from, to)
	return to
}

// #endregion transition
