// Package decompose splits a complex query into independently
// retrievable sub-queries.
package decompose

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// #region types
// SubQuery is one derived retrieval query.
type SubQuery struct {
	Text  string
	Index int
}

// MaxSubQueries caps how many sub-queries a single query may fan out to.
const MaxSubQueries = 5

// #endregion types

// #region completion-client
// CompletionClient is the model call the decomposer depends on.
type CompletionClient interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// #endregion completion-client

// #region system-prompt
const systemPrompt = `You split a question into independent search queries for a document store.
Respond with ONLY a JSON object, no prose:
{"queries": ["...", "..."]}
Return at most 5 queries. Return a single query when the question is already simple.`

// #endregion system-prompt

// #region decomposer
// Decomposer derives sub-queries from a query. Any failure degrades to
// the identity decomposition: the original query as the sole sub-query.
type Decomposer struct {
	client CompletionClient
}

// NewDecomposer creates a decomposer backed by the given completion client.
func NewDecomposer(client CompletionClient) *Decomposer {
	return &Decomposer{client: client}
}

// #endregion decomposer

// #region decompose
// Decompose returns 1..MaxSubQueries sub-queries for queryText. The
// returned slice is never empty, even when err is non-nil.
func (d *Decomposer) Decompose(ctx context.Context, queryText string) ([]SubQuery, error) {
	identity := Identity(queryText)

	raw, err := d.client.Complete(ctx, systemPrompt, queryText)
	if err != nil {
		return identity, fmt.Errorf("decompose completion: %w", err)
	}

	queries, err := parseQueries(raw)
	if err != nil {
		return identity, fmt.Errorf("decompose parse: %w", err)
	}
	if len(queries) == 0 {
		return identity, nil
	}

	subs := make([]SubQuery, 0, len(queries))
	for _, q := range queries {
		if len(subs) == MaxSubQueries {
			break
		}
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		subs = append(subs, SubQuery{Text: q, Index: len(subs)})
	}
	if len(subs) == 0 {
		return identity, nil
	}
	return subs, nil
}

// Identity returns the single-element decomposition of queryText.
func Identity(queryText string) []SubQuery {
	return []SubQuery{{Text: queryText, Index: 0}}
}

// #endregion decompose

// #region parse
func parseQueries(raw string) ([]string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in decomposer output")
	}

	var payload struct {
		Queries []string `json:"queries"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("unmarshal queries: %w", err)
	}
	return payload.Queries, nil
}

// #endregion parse
