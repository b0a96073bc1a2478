package synth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/danielpatrickdp/scopedkb/internal/rerank"
	"github.com/danielpatrickdp/scopedkb/internal/store"
)

// #region mock
type mockGenerator struct {
	resp   string
	err    error
	prompt string
}

func (m *mockGenerator) Generate(_ context.Context, prompt string) (string, error) {
	m.prompt = prompt
	return m.resp, m.err
}

func passages() []rerank.Result {
	return []rerank.Result{
		{Chunk: store.Chunk{ID: "c1", Source: "policy.md", Content: "Refunds are processed within 14 days."}, Score: 0.9},
		{Chunk: store.Chunk{ID: "c2", Source: "faq.md", Content: "Contact billing for refund status."}, Score: 0.6},
	}
}

// #endregion mock

// #region tests
func TestSynthesize_GroundedAnswer(t *testing.T) {
	gen := &mockGenerator{resp: "Refunds take up to 14 days to process."}
	s := NewSynthesizer(gen)

	ans, err := s.Synthesize(context.Background(), "How long do refunds take?", passages())
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if !ans.Grounded {
		t.Error("expected grounded answer")
	}
	if len(ans.Sources) != 2 || ans.Sources[0] != "c1" || ans.Sources[1] != "c2" {
		t.Errorf("sources: got %v", ans.Sources)
	}

	// The prompt must carry the passages, their sources, the question,
	// and the sentinel instruction.
	for _, want := range []string{
		"Refunds are processed within 14 days.",
		"policy.md",
		"How long do refunds take?",
		Sentinel,
	} {
		if !strings.Contains(gen.prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestSynthesize_SentinelDowngrades(t *testing.T) {
	tests := []struct {
		name string
		resp string
	}{
		{"exact", Sentinel},
		{"rephrased", "Sorry, I don't have enough information to help with that."},
		{"mixed-case", "I DON'T HAVE ENOUGH INFORMATION here."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSynthesizer(&mockGenerator{resp: tt.resp})
			ans, err := s.Synthesize(context.Background(), "q", passages())
			if err != nil {
				t.Fatalf("synthesize: %v", err)
			}
			if ans.Grounded {
				t.Error("sentinel output must not be grounded")
			}
			if len(ans.Sources) != 0 {
				t.Errorf("sentinel output must cite no sources, got %v", ans.Sources)
			}
		})
	}
}

func TestSynthesize_GeneratorError(t *testing.T) {
	s := NewSynthesizer(&mockGenerator{err: errors.New("model down")})
	if _, err := s.Synthesize(context.Background(), "q", passages()); err == nil {
		t.Fatal("expected error")
	}
}

func TestSynthesize_NoPassagesIsMisuse(t *testing.T) {
	s := NewSynthesizer(&mockGenerator{})
	if _, err := s.Synthesize(context.Background(), "q", nil); err == nil {
		t.Fatal("expected error for empty passages")
	}
}

// #endregion tests
