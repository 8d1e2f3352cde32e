package costs

import (
	"sync"
	"testing"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		name  string
		usage Usage
		want  Costs
	}{
		{
			name: "typical short exchange",
			usage: Usage{
				STTSeconds:      30,
				LLMInputTokens:  500,
				LLMOutputTokens: 200,
				TTSCharacters:   400,
			},
			// STT: 0.5 * 2.4 = 1.2 -> 1 cent
			// LLM: local -> 0 cents
			// TTS: (400/1000)*18 = 7.2 -> 7 cents
			want: Costs{STTCostCents: 1, LLMCostCents: 0, TTSCostCents: 7, TotalCostCents: 8},
		},
		{
			name: "ten minutes of conversation",
			usage: Usage{
				STTSeconds:      600,
				LLMInputTokens:  5000,
				LLMOutputTokens: 2000,
				TTSCharacters:   4000,
			},
			// STT: 10 * 2.4 = 24 cents
			// TTS: (4000/1000)*18 = 72 cents
			want: Costs{STTCostCents: 24, LLMCostCents: 0, TTSCostCents: 72, TotalCostCents: 96},
		},
		{
			name:  "zero usage (edge case)",
			usage: Usage{},
			want:  Costs{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DefaultRates().Calculate(tt.usage)
			if got != tt.want {
				t.Errorf("Calculate(%+v) = %+v, want %+v", tt.usage, got, tt.want)
			}
		})
	}
}

func TestCalculate_HostedModelPricing(t *testing.T) {
	r := DefaultRates()
	r.LLMInputCentsPer1K = 0.015
	r.LLMOutputCentsPer1K = 0.06

	// (100000/1000)*0.015 + (50000/1000)*0.06 = 1.5 + 3 = 4.5 -> 5 cents
	got := r.Calculate(Usage{LLMInputTokens: 100000, LLMOutputTokens: 50000})
	if got.LLMCostCents != 5 {
		t.Errorf("LLMCostCents = %d, want 5", got.LLMCostCents)
	}
}

func TestSession_UsesItsRates(t *testing.T) {
	r := DefaultRates()
	r.STTCentsPerMinute = 100
	s := NewSession(r)
	s.Add(Usage{STTSeconds: 60})

	if got := s.Costs().STTCostCents; got != 100 {
		t.Errorf("STTCostCents = %d, want 100", got)
	}
	if got := NewSession(DefaultRates()).Costs(); got != (Costs{}) {
		t.Errorf("empty session costs = %+v", got)
	}
}

func TestSession(t *testing.T) {
	s := NewSession(DefaultRates())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Add(Usage{STTSeconds: 3, TTSCharacters: 40})
			s.CompleteTurn()
		}()
	}
	wg.Wait()

	usage, turns := s.Snapshot()
	if turns != 10 {
		t.Errorf("turns = %d, want 10", turns)
	}
	if usage.STTSeconds != 30 || usage.TTSCharacters != 400 {
		t.Errorf("usage = %+v", usage)
	}
	// rounded once on the totals: 1.2 + 7.2
	if got := s.Costs(); got.TotalCostCents != 8 {
		t.Errorf("TotalCostCents = %d, want 8", got.TotalCostCents)
	}
}

func TestRoundToInt(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{0.4, 0},
		{0.5, 1},
		{1.49, 1},
		{-0.5, -1},
	}
	for _, tt := range tests {
		if got := roundToInt(tt.in); got != tt.want {
			t.Errorf("roundToInt(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
