// Package llm wraps the Ollama API behind the narrow capabilities the
// pipeline consumes: low-temperature completion, grounded generation,
// and text embedding.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
)

// #region config
// Config selects the models and bounds each call.
type Config struct {
	Model       string        // completion + generation model
	EmbedModel  string        // embedding model
	Timeout     time.Duration // per-call ceiling
	Temperature float32
	NumPredict  int
}

// DefaultConfig returns conservative defaults for grounded answering.
func DefaultConfig() Config {
	return Config{
		Model:       "llama3.1",
		EmbedModel:  "nomic-embed-text",
		Timeout:     30 * time.Second,
		Temperature: 0.1,
		NumPredict:  1024,
	}
}

// #endregion config

// #region client-struct
// Client is a thin wrapper over the Ollama HTTP API. One instance is
// safe for concurrent use; it holds no per-request state.
type Client struct {
	api    *api.Client
	config Config
}

// #endregion client-struct

// #region constructor
// NewClient builds a client against OLLAMA_HOST (envconfig resolves it).
func NewClient(config Config) *Client {
	return &Client{
		api:    api.NewClient(envconfig.Host(), http.DefaultClient),
		config: config,
	}
}

// NewClientWithAPI creates a Client with an injected api.Client.
// Used for testing without a live Ollama server.
func NewClientWithAPI(apiClient *api.Client, config Config) *Client {
	return &Client{api: apiClient, config: config}
}

// #endregion constructor

// #region complete
// Complete runs a system-prompted, low-temperature completion and
// returns the full response text.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	return c.generate(ctx, system, prompt)
}

// #endregion complete

// #region generate
// Generate produces free text for the given prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, "", prompt)
}

func (c *Client) generate(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req := api.GenerateRequest{
		Model:  c.config.Model,
		Prompt: prompt,
		System: system,
		Options: map[string]interface{}{
			"temperature": c.config.Temperature,
			"num_predict": c.config.NumPredict,
		},
	}

	var responseBuilder strings.Builder
	err := c.api.Generate(ctx, &req, func(resp api.GenerateResponse) error {
		_, err := responseBuilder.WriteString(resp.Response)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return responseBuilder.String(), nil
}

// #endregion generate

// #region embed
// Embed returns the embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.api.Embeddings(ctx, &api.EmbeddingRequest{
		Model:  c.config.EmbedModel,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	vec := make([]float32, len(resp.Embedding))
	for i, f := range resp.Embedding {
		vec[i] = float32(f)
	}
	return vec, nil
}

// #endregion embed
