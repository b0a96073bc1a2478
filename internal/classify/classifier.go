// Package classify decides whether a query needs knowledge-base
// retrieval or can be answered directly.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// #region completion-client
// CompletionClient is the model call the classifier depends on.
type CompletionClient interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// #endregion completion-client

// #region keywords

// greetingPrefixes are turns that never need retrieval; each maps to a
// canned direct response so the model round-trip is skipped entirely.
var greetingPrefixes = map[string]string{
	"hello":        "Hello! Ask me anything about the knowledge base.",
	"hi":           "Hi there! What would you like to know?",
	"hey":          "Hey! What can I look up for you?",
	"good morning": "Good morning! What can I look up for you?",
	"thanks":       "You're welcome!",
	"thank you":    "You're welcome!",
	"bye":          "Goodbye!",
	"goodbye":      "Goodbye!",
}

// #endregion keywords

// #region system-prompt
const systemPrompt = `You are a query router for a knowledge-base assistant.
Decide whether the user's message needs documents retrieved to answer it.
Respond with ONLY a JSON object, no prose:
{"requires_rag": true|false, "confidence": 0.0-1.0, "response": "direct answer if no retrieval is needed, else empty"}
Set requires_rag to false only when you can fully answer without documents.`

// #endregion system-prompt

// #region classifier
// Classifier routes queries either to a direct response or into the
// retrieval pipeline. It fails closed: callers treat any error as
// "retrieval required".
type Classifier struct {
	client CompletionClient
}

// NewClassifier creates a classifier backed by the given completion client.
func NewClassifier(client CompletionClient) *Classifier {
	return &Classifier{client: client}
}

// #endregion classifier

// #region classify
// Classify returns the routing verdict for queryText. The keyword fast
// path handles obvious smalltalk without a model call.
func (c *Classifier) Classify(ctx context.Context, queryText string) (Result, error) {
	lower := strings.ToLower(strings.TrimSpace(queryText))
	for prefix, reply := range greetingPrefixes {
		if lower == prefix || strings.HasPrefix(lower, prefix+" ") || strings.HasPrefix(lower, prefix+",") {
			return Result{RequiresRAG: false, Confidence: 1.0, DirectResponse: reply}, nil
		}
	}

	raw, err := c.client.Complete(ctx, systemPrompt, queryText)
	if err != nil {
		return Result{RequiresRAG: true}, fmt.Errorf("classify completion: %w", err)
	}

	result, err := parseResult(raw)
	if err != nil {
		return Result{RequiresRAG: true}, fmt.Errorf("classify parse: %w", err)
	}
	return result, nil
}

// #endregion classify

// #region parse
// parseResult extracts the JSON verdict from model output, tolerating
// code fences and surrounding prose.
func parseResult(raw string) (Result, error) {
	body := extractJSON(raw)
	if body == "" {
		return Result{}, fmt.Errorf("no JSON object in %q", truncate(raw, 120))
	}

	var payload struct {
		RequiresRAG bool    `json:"requires_rag"`
		Confidence  float32 `json:"confidence"`
		Response    string  `json:"response"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return Result{}, fmt.Errorf("unmarshal verdict: %w", err)
	}

	if payload.Confidence < 0 || payload.Confidence > 1 {
		return Result{}, fmt.Errorf("confidence %.2f out of range", payload.Confidence)
	}
	// A direct verdict without a direct answer is unusable.
	if !payload.RequiresRAG && strings.TrimSpace(payload.Response) == "" {
		return Result{}, fmt.Errorf("direct verdict with empty response")
	}

	return Result{
		RequiresRAG:    payload.RequiresRAG,
		Confidence:     payload.Confidence,
		DirectResponse: payload.Response,
	}, nil
}

// extractJSON returns the first top-level {...} span in raw.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// #endregion parse
