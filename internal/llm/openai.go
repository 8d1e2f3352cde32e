package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAICompatClient implements the Client interface against an
// OpenAI-compatible chat completions endpoint, by default the one Ollama
// serves under /v1.
type OpenAICompatClient struct {
	client       *openai.Client
	model        string
	systemPrompt string
	timeout      time.Duration
}

// OpenAICompatConfig holds configuration for the OpenAI-compatible client.
type OpenAICompatConfig struct {
	BaseURL      string // server root; "/v1" is appended
	APIKey       string // Ollama ignores it but the header must be present
	Model        string
	SystemPrompt string
	SpokenStyle  bool
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// NewOpenAICompatClient creates a new OpenAI-compatible client.
func NewOpenAICompatClient(cfg OpenAICompatConfig) *OpenAICompatClient {
	base := OllamaConfig{
		BaseURL:      cfg.BaseURL,
		Model:        cfg.Model,
		SystemPrompt: cfg.SystemPrompt,
		SpokenStyle:  cfg.SpokenStyle,
		Timeout:      cfg.Timeout,
		HTTPClient:   cfg.HTTPClient,
	}.withDefaults()

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "ollama"
	}
	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.BaseURL = base.BaseURL + "/v1"
	clientCfg.HTTPClient = base.HTTPClient

	return &OpenAICompatClient{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        base.Model,
		systemPrompt: base.SystemPrompt,
		timeout:      base.Timeout,
	}
}

// Model returns the configured model name.
func (c *OpenAICompatClient) Model() string { return c.model }

// Generate sends one non-streamed chat completion request.
func (c *OpenAICompatClient) Generate(ctx context.Context, prompt string, history []Message) (Reply, error) {
	msgs := buildMessages(c.systemPrompt, history, prompt)
	chatMsgs := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		chatMsgs = append(chatMsgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(reqCtx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: chatMsgs,
	})
	if err != nil {
		return Reply{}, c.classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return Reply{}, fmt.Errorf("no choices in response")
	}

	model := resp.Model
	if model == "" {
		model = c.model
	}
	return Reply{
		Text:             strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:            model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (c *OpenAICompatClient) classify(parent context.Context, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("chat completion: %w", parent.Err())
	}
	if transportFailure(err) || serverSide(err) {
		return &ModelUnavailableError{Model: c.model, Err: err}
	}
	return fmt.Errorf("chat completion: %w", err)
}

func serverSide(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	return false
}
