package llm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// Message roles understood by both providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a conversation message.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Reply is the model's answer to one prompt.
type Reply struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Client defines the interface for LLM providers.
type Client interface {
	// Generate sends prompt as the final user message after history and
	// returns the complete, non-streamed reply.
	Generate(ctx context.Context, prompt string, history []Message) (Reply, error)
}

// ModelUnavailableError means the model server could not be reached, timed
// out or failed on its side. The turn is abandoned; the loop keeps running.
type ModelUnavailableError struct {
	Model string
	Err   error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("llm: model %q unavailable: %v", e.Model, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

// transportFailure reports whether err came from the HTTP round trip
// itself (refused, DNS, reset) or from our own request deadline.
func transportFailure(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// buildMessages lays out system prompt, history and the user prompt. The
// prompt is sent exactly as given.
func buildMessages(systemPrompt string, history []Message, prompt string) []Message {
	msgs := make([]Message, 0, len(history)+2)
	if systemPrompt != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: systemPrompt})
	}
	msgs = append(msgs, history...)
	return append(msgs, Message{Role: RoleUser, Content: prompt})
}
