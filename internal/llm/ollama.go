package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaClient implements the Client interface using Ollama's native chat API.
type OllamaClient struct {
	baseURL      string
	model        string
	systemPrompt string
	timeout      time.Duration
	httpClient   *http.Client
}

// OllamaConfig holds configuration for the Ollama client.
type OllamaConfig struct {
	BaseURL      string // e.g., "http://localhost:11434"
	Model        string // e.g., "llama2"
	SystemPrompt string // Optional custom system prompt
	SpokenStyle  bool   // append the spoken-reply guardrail to the system prompt
	Timeout      time.Duration
	HTTPClient   *http.Client
}

func (cfg OllamaConfig) withDefaults() OllamaConfig {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "llama2"
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.SpokenStyle {
		cfg.SystemPrompt = SpeakablePrompt(cfg.SystemPrompt)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return cfg
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	cfg = cfg.withDefaults()
	return &OllamaClient{
		baseURL:      cfg.BaseURL,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		timeout:      cfg.Timeout,
		httpClient:   cfg.HTTPClient,
	}
}

// Model returns the configured model name.
func (c *OllamaClient) Model() string { return c.model }

type ollamaChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type ollamaChatResponse struct {
	Model           string  `json:"model"`
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// Generate sends one non-streamed chat request.
func (c *OllamaClient) Generate(ctx context.Context, prompt string, history []Message) (Reply, error) {
	req := ollamaChatRequest{
		Model:    c.model,
		Messages: buildMessages(c.systemPrompt, history, prompt),
		Stream:   false,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Reply{}, c.classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		apiErr := fmt.Errorf("ollama API error: %s - %s", resp.Status, strings.TrimSpace(string(respBody)))
		if resp.StatusCode >= http.StatusInternalServerError {
			return Reply{}, &ModelUnavailableError{Model: c.model, Err: apiErr}
		}
		return Reply{}, apiErr
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return Reply{}, c.classify(ctx, fmt.Errorf("failed to decode response: %w", err))
	}

	model := chatResp.Model
	if model == "" {
		model = c.model
	}
	return Reply{
		Text:             strings.TrimSpace(chatResp.Message.Content),
		Model:            model,
		PromptTokens:     chatResp.PromptEvalCount,
		CompletionTokens: chatResp.EvalCount,
	}, nil
}

// Probe checks that the server answers and that the configured model has
// been pulled. It is a startup diagnostic; Generate does not depend on it.
func (c *OllamaClient) Probe(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return c.classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ModelUnavailableError{Model: c.model, Err: fmt.Errorf("ollama tags: %s", resp.Status)}
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("failed to decode tags: %w", err)
	}
	for _, m := range tags.Models {
		if sameModel(m.Name, c.model) || sameModel(m.Model, c.model) {
			return nil
		}
	}
	return fmt.Errorf("model %q is not pulled on %s", c.model, c.baseURL)
}

// classify maps a round-trip failure. Cancellation of the caller's context
// passes through untouched so shutdown is not reported as an outage.
func (c *OllamaClient) classify(parent context.Context, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("ollama request: %w", parent.Err())
	}
	if transportFailure(err) {
		return &ModelUnavailableError{Model: c.model, Err: err}
	}
	return err
}

// sameModel treats "llama2" and "llama2:latest" as the same tag.
func sameModel(have, want string) bool {
	if have == want {
		return true
	}
	if !strings.Contains(want, ":") {
		return have == want+":latest"
	}
	return false
}
