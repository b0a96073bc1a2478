// Package synth produces the final grounded answer text from the
// surviving passages.
package synth

import (
	"context"
	"fmt"
	"strings"

	"github.com/danielpatrickdp/scopedkb/internal/rerank"
)

// #region generator
// Generator is the model call the synthesizer depends on.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// #endregion generator

// #region sentinel
// Sentinel is the fixed phrase the model is told to emit when the
// provided context cannot answer the question. Detection matches on
// sentinelMarker so minor rephrasings still downgrade the outcome.
const Sentinel = "I don't have enough information to answer that based on the available documents."

const sentinelMarker = "don't have enough information"

// #endregion sentinel

// #region answer
// Answer is the synthesis result. Grounded is false when the model
// emitted the sentinel, meaning the passages could not support an
// answer even though retrieval nominally succeeded.
type Answer struct {
	Text     string
	Sources  []string
	Grounded bool
}

// #endregion answer

// #region synthesizer
// Synthesizer generates an answer from reranked passages.
type Synthesizer struct {
	generator Generator
}

// NewSynthesizer creates a Synthesizer backed by the given generator.
func NewSynthesizer(generator Generator) *Synthesizer {
	return &Synthesizer{generator: generator}
}

// #endregion synthesizer

// #region synthesize
// Synthesize answers queryText from the given passages. results must be
// non-empty; the orchestrator handles the zero-passage fallbacks.
func (s *Synthesizer) Synthesize(ctx context.Context, queryText string, results []rerank.Result) (Answer, error) {
	if len(results) == 0 {
		return Answer{}, fmt.Errorf("synthesize called with no passages")
	}

	text, err := s.generator.Generate(ctx, buildPrompt(queryText, results))
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	text = strings.TrimSpace(text)
	if strings.Contains(strings.ToLower(text), sentinelMarker) {
		return Answer{Text: text, Grounded: false}, nil
	}

	sources := make([]string, len(results))
	for i, r := range results {
		sources[i] = r.Chunk.ID
	}
	return Answer{Text: text, Sources: sources, Grounded: true}, nil
}

// #endregion synthesize

// #region prompt
// buildPrompt assembles the grounding prompt: instruction, labelled
// passages, then the question.
func buildPrompt(queryText string, results []rerank.Result) string {
	var sb strings.Builder
	sb.WriteString("You are a knowledge-base assistant. Answer the question using ONLY the provided context. ")
	sb.WriteString("Do not use outside knowledge. ")
	sb.WriteString("If the context does not contain the answer, reply exactly: ")
	sb.WriteString(Sentinel)
	sb.WriteString("\n\nContext:\n")
	for i, r := range results {
		sb.WriteString(fmt.Sprintf("[%d] (source: %s)\n", i+1, r.Chunk.Source))
		sb.WriteString(r.Chunk.Content)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(queryText)
	sb.WriteString("\n\nAnswer: ")
	return sb.String()
}

// #endregion prompt
