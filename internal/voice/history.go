package voice

import (
	"sync"

	"github.com/lukasbauer/vai0/internal/llm"
)

// History is the ordered record of completed exchanges. It only grows.
type History struct {
	mu   sync.RWMutex
	msgs []llm.Message
}

// Append records one user/assistant exchange.
func (h *History) Append(user, assistant string) {
	h.mu.Lock()
	h.msgs = append(h.msgs,
		llm.Message{Role: llm.RoleUser, Content: user},
		llm.Message{Role: llm.RoleAssistant, Content: assistant},
	)
	h.mu.Unlock()
}

// Messages returns a copy of the history.
func (h *History) Messages() []llm.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]llm.Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

// Len returns the number of exchanges.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.msgs) / 2
}
