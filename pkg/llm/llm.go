// Package llm defines the text-generation collaborator used by the
// llm_generate step and an HTTP client for OpenAI-compatible chat-completion
// endpoints.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Request is one generation request.
type Request struct {
	// Model overrides the client's default model when set.
	Model string

	// Prompt is the fully rendered prompt text.
	Prompt string

	// MaxTokens caps the completion length; 0 leaves it to the endpoint.
	MaxTokens int
}

// Generator produces a completion for a prompt. Implementations must be safe
// for concurrent use: loop and parallel steps may generate from several
// goroutines at once.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// HTTPConfig configures an HTTPGenerator.
type HTTPConfig struct {
	// BaseURL is the endpoint root, e.g. "https://api.openai.com/v1".
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Model is the default model for requests that name none.
	Model string

	// Timeout bounds each HTTP round trip. Defaults to 60s.
	Timeout time.Duration
}

// ApplyDefaults fills in defaults for omitted optional fields.
func (c *HTTPConfig) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
}

// Validate checks the configuration.
func (c *HTTPConfig) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("llm: base URL cannot be empty")
	}
	return nil
}

// HTTPGenerator talks to an OpenAI-compatible chat-completions endpoint.
type HTTPGenerator struct {
	cfg    HTTPConfig
	client *http.Client
	logger *zap.Logger
}

// NewHTTPGenerator creates a generator for the configured endpoint.
func NewHTTPGenerator(cfg HTTPConfig, logger *zap.Logger) (*HTTPGenerator, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPGenerator{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate posts a single-message chat completion and returns the first
// choice's content.
func (g *HTTPGenerator) Generate(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = g.cfg.Model
	}
	if model == "" {
		return "", errors.New("llm: no model configured and none requested")
	}

	body := map[string]any{
		"model": model,
		"messages": []map[string]string{{
			"role":    "user",
			"content": req.Prompt,
		}},
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(g.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	start := time.Now()
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("llm endpoint http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("llm endpoint returned no choices")
	}

	g.logger.Debug("Generated completion",
		zap.String("model", model),
		zap.Int("promptBytes", len(req.Prompt)),
		zap.Int("completionBytes", len(parsed.Choices[0].Message.Content)),
		zap.Duration("duration", time.Since(start)))

	return parsed.Choices[0].Message.Content, nil
}
