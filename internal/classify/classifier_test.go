package classify

import (
	"context"
	"errors"
	"testing"
)

// #region mock
type mockCompletion struct {
	resp string
	err  error

	called bool
}

func (m *mockCompletion) Complete(_ context.Context, _, _ string) (string, error) {
	m.called = true
	return m.resp, m.err
}

// #endregion mock

// #region fast-path
func TestClassify_GreetingFastPath(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"hello", "hello"},
		{"hello-with-tail", "Hello there"},
		{"thanks", "thanks a lot"},
		{"mixed-case", "HI, how are you"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockCompletion{}
			c := NewClassifier(mock)

			got, err := c.Classify(context.Background(), tt.query)
			if err != nil {
				t.Fatalf("classify: %v", err)
			}
			if got.RequiresRAG {
				t.Error("greeting should not require retrieval")
			}
			if got.DirectResponse == "" {
				t.Error("greeting must carry a direct response")
			}
			if mock.called {
				t.Error("fast path should not call the model")
			}
		})
	}
}

// #endregion fast-path

// #region model-path
func TestClassify_ModelVerdict(t *testing.T) {
	tests := []struct {
		name        string
		resp        string
		wantRAG     bool
		wantDirect  string
		wantErr     bool
	}{
		{
			"direct",
			`{"requires_rag": false, "confidence": 0.95, "response": "We don't handle refunds via chat."}`,
			false, "We don't handle refunds via chat.", false,
		},
		{
			"needs-retrieval",
			`{"requires_rag": true, "confidence": 0.8, "response": ""}`,
			true, "", false,
		},
		{
			"fenced-json",
			"```json\n{\"requires_rag\": true, \"confidence\": 0.7, \"response\": \"\"}\n```",
			true, "", false,
		},
		{
			"prose-around-json",
			`Sure! {"requires_rag": false, "confidence": 0.9, "response": "42"} hope that helps`,
			false, "42", false,
		},
		// Fail-closed cases: the caller must treat these as requires_rag=true.
		{"no-json", "I think this needs retrieval", true, "", true},
		{"bad-json", `{"requires_rag": maybe}`, true, "", true},
		{"direct-without-response", `{"requires_rag": false, "confidence": 0.9, "response": ""}`, true, "", true},
		{"confidence-out-of-range", `{"requires_rag": true, "confidence": 1.5, "response": ""}`, true, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(&mockCompletion{resp: tt.resp})
			got, err := c.Classify(context.Background(), "What is the refund policy?")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err: got %v, wantErr %v", err, tt.wantErr)
			}
			if got.RequiresRAG != tt.wantRAG {
				t.Errorf("requires_rag: got %v, want %v", got.RequiresRAG, tt.wantRAG)
			}
			if got.DirectResponse != tt.wantDirect {
				t.Errorf("response: got %q, want %q", got.DirectResponse, tt.wantDirect)
			}
		})
	}
}

func TestClassify_UpstreamErrorFailsClosed(t *testing.T) {
	c := NewClassifier(&mockCompletion{err: errors.New("connection refused")})
	got, err := c.Classify(context.Background(), "What is the refund policy?")
	if err == nil {
		t.Fatal("expected error")
	}
	if !got.RequiresRAG {
		t.Error("upstream failure must fail closed to requires_rag=true")
	}
}

// #endregion model-path
