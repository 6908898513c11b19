// Package llmprovider implements the LLM provider contract consumed by the
// consolidation engine, adapted from QuantumFlow's Ollama inference client
// (internal/inference/client.go) generalized to a provider-agnostic
// completion call plus token accounting.
package llmprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ProviderType selects the wire protocol a Config targets. Only "ollama" is
// implemented; others are accepted so callers can plug in a different
// Complete implementation behind the same interface without touching the
// consolidation engine.
type ProviderType string

const (
	ProviderOllama ProviderType = "ollama"
	ProviderOpenAI ProviderType = "openai_compatible"
)

// Config configures an LLM provider client.
type Config struct {
	ProviderType   ProviderType
	BaseURL        string
	APIKey         string // read from config, never logged
	DefaultModel   string
	Temperature    float64
	MaxTokens      int
	TimeoutSeconds int
	MaxRetries     int
}

// DefaultConfig mirrors QuantumFlow's Ollama defaults.
func DefaultConfig() *Config {
	return &Config{
		ProviderType:   ProviderOllama,
		BaseURL:        "http://localhost:11434",
		DefaultModel:   "qwen2.5-coder:7b",
		Temperature:    0.2,
		MaxTokens:      2048,
		TimeoutSeconds: 120,
		MaxRetries:     3,
	}
}

// SamplingParams overrides a Config's defaults for a single Complete call.
type SamplingParams struct {
	Model       string
	Temperature *float64
	MaxTokens   int
}

// TokenUsage reports token accounting for cost/metrics purposes.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionResult is the result of a single Complete call.
type CompletionResult struct {
	Text    string
	Model   string
	Usage   TokenUsage
	Latency time.Duration
}

// Provider is the contract the consolidation engine depends on.
type Provider interface {
	Complete(ctx context.Context, prompt string, sampling SamplingParams) (CompletionResult, error)
}

// Client is the Ollama-backed Provider implementation.
type Client struct {
	cfg        *Config
	httpClient *http.Client
}

// NewClient constructs a Client. A nil cfg falls back to DefaultConfig.
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

type generateRequest struct {
	Model       string                 `json:"model"`
	Prompt      string                 `json:"prompt"`
	Stream      bool                   `json:"stream"`
	Temperature float64                `json:"temperature,omitempty"`
	Options     map[string]interface{} `json:"options,omitempty"`
}

type generateResponse struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
}

// Complete performs a synchronous, non-streaming completion call.
func (c *Client) Complete(ctx context.Context, prompt string, sampling SamplingParams) (CompletionResult, error) {
	model := sampling.Model
	if model == "" {
		model = c.cfg.DefaultModel
	}
	temperature := c.cfg.Temperature
	if sampling.Temperature != nil {
		temperature = *sampling.Temperature
	}
	maxTokens := c.cfg.MaxTokens
	if sampling.MaxTokens > 0 {
		maxTokens = sampling.MaxTokens
	}

	req := generateRequest{
		Model:       model,
		Prompt:      prompt,
		Stream:      false,
		Temperature: temperature,
		Options: map[string]interface{}{
			"num_predict": maxTokens,
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("llmprovider: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return CompletionResult{}, fmt.Errorf("llmprovider: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("llmprovider: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return CompletionResult{}, fmt.Errorf("llmprovider: unexpected status %d: %s", resp.StatusCode, string(b))
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return CompletionResult{}, fmt.Errorf("llmprovider: decode response: %w", err)
	}

	return CompletionResult{
		Text:  genResp.Response,
		Model: model,
		Usage: TokenUsage{
			PromptTokens:     genResp.PromptEvalCount,
			CompletionTokens: genResp.EvalCount,
			TotalTokens:      genResp.PromptEvalCount + genResp.EvalCount,
		},
		Latency: time.Since(start),
	}, nil
}
