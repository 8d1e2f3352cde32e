// Package costs provides cost calculation for API usage.
package costs

import "sync"

// Rates holds prices in cents per unit.
type Rates struct {
	// STTCentsPerMinute is the cost per minute of audio sent to recognition.
	STTCentsPerMinute float64
	// LLMInputCentsPer1K is the cost per 1K prompt tokens.
	LLMInputCentsPer1K float64
	// LLMOutputCentsPer1K is the cost per 1K completion tokens.
	LLMOutputCentsPer1K float64
	// TTSCentsPer1KChars is the cost per 1K characters sent to ElevenLabs.
	TTSCentsPer1KChars float64
}

// DefaultRates returns published Google Cloud Speech and ElevenLabs pricing
// ($0.024/min, $0.18/1K chars) and free local inference.
func DefaultRates() Rates {
	return Rates{
		STTCentsPerMinute:   2.4,
		LLMInputCentsPer1K:  0,
		LLMOutputCentsPer1K: 0,
		TTSCentsPer1KChars:  18,
	}
}

// Usage contains the raw metrics used for cost calculation.
type Usage struct {
	STTSeconds      float64 // Audio sent to recognition
	LLMInputTokens  int     // Tokens sent to LLM
	LLMOutputTokens int     // Tokens received from LLM
	TTSCharacters   int     // Characters sent to TTS
}

// Plus returns the element-wise sum.
func (u Usage) Plus(o Usage) Usage {
	return Usage{
		STTSeconds:      u.STTSeconds + o.STTSeconds,
		LLMInputTokens:  u.LLMInputTokens + o.LLMInputTokens,
		LLMOutputTokens: u.LLMOutputTokens + o.LLMOutputTokens,
		TTSCharacters:   u.TTSCharacters + o.TTSCharacters,
	}
}

// Costs contains the calculated costs in cents.
type Costs struct {
	STTCostCents   int
	LLMCostCents   int
	TTSCostCents   int
	TotalCostCents int
}

// Calculate computes the costs for the given usage.
func (r Rates) Calculate(u Usage) Costs {
	sttCents := (u.STTSeconds / 60.0) * r.STTCentsPerMinute

	// LLM costs: per 1K tokens
	llmInputCents := (float64(u.LLMInputTokens) / 1000.0) * r.LLMInputCentsPer1K
	llmOutputCents := (float64(u.LLMOutputTokens) / 1000.0) * r.LLMOutputCentsPer1K

	// TTS costs: per 1K characters
	ttsCents := (float64(u.TTSCharacters) / 1000.0) * r.TTSCentsPer1KChars

	costs := Costs{
		STTCostCents: roundToInt(sttCents),
		LLMCostCents: roundToInt(llmInputCents + llmOutputCents),
		TTSCostCents: roundToInt(ttsCents),
	}
	costs.TotalCostCents = costs.STTCostCents + costs.LLMCostCents + costs.TTSCostCents

	return costs
}

// Session accumulates usage across the turns of one run. Rounding happens
// on the totals, not per turn.
type Session struct {
	rates Rates

	mu    sync.Mutex
	usage Usage
	turns int
}

// NewSession creates an empty session priced at rates.
func NewSession(rates Rates) *Session {
	return &Session{rates: rates}
}

// Add records usage.
func (s *Session) Add(u Usage) {
	s.mu.Lock()
	s.usage = s.usage.Plus(u)
	s.mu.Unlock()
}

// CompleteTurn counts one completed turn.
func (s *Session) CompleteTurn() {
	s.mu.Lock()
	s.turns++
	s.mu.Unlock()
}

// Snapshot returns the usage and completed turn count so far.
func (s *Session) Snapshot() (Usage, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage, s.turns
}

// Costs returns the cost of everything recorded so far.
func (s *Session) Costs() Costs {
	u, _ := s.Snapshot()
	return s.rates.Calculate(u)
}

// roundToInt rounds a float to the nearest integer.
func roundToInt(f float64) int {
	if f < 0 {
		return int(f - 0.5)
	}
	return int(f + 0.5)
}
