package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lukasbauer/vai0/internal/costs"
	"github.com/lukasbauer/vai0/internal/stt"
)

func TestGetenv(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{name: "set", value: "deepgram", want: "deepgram"},
		{name: "empty falls back", value: "", want: "google"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("STT_PROVIDER", tt.value)
			if got := getenv("STT_PROVIDER", "google"); got != tt.want {
				t.Errorf("getenv(STT_PROVIDER) = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetenvIntClamped(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int
	}{
		{name: "unset uses default device", value: "", want: -1},
		{name: "device index", value: "3", want: 3},
		{name: "below range", value: "-7", want: -1},
		{name: "above range", value: "999", want: 256},
		{name: "not a number", value: "usb", want: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MIC_DEVICE_INDEX", tt.value)
			if got := getenvIntClamped("MIC_DEVICE_INDEX", -1, -1, 256); got != tt.want {
				t.Errorf("getenvIntClamped(MIC_DEVICE_INDEX=%q) = %d, want %d", tt.value, got, tt.want)
			}
		})
	}
}

func TestGetenvFloatClamped(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  float64
	}{
		{name: "unset", value: "", want: 0.5},
		{name: "in range", value: "0.75", want: 0.75},
		{name: "below range", value: "-0.2", want: 0},
		{name: "above range", value: "1.7", want: 1},
		{name: "not a number", value: "high", want: 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TTS_STABILITY", tt.value)
			if got := getenvFloatClamped("TTS_STABILITY", 0.5, 0, 1); got != tt.want {
				t.Errorf("getenvFloatClamped(TTS_STABILITY=%q) = %f, want %f", tt.value, got, tt.want)
			}
		})
	}
}

// chdirTemp runs the test from an empty directory holding only a .env with
// the given contents.
func chdirTemp(t *testing.T, dotenv string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(dotenv), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

// unsetenv clears k for the test; godotenv does not override variables that
// are already present, even when empty.
func unsetenv(t *testing.T, k string) {
	t.Helper()
	t.Setenv(k, "")
	_ = os.Unsetenv(k)
}

func TestLoadConfigFromEnv_CostRatesFromDotenv(t *testing.T) {
	unsetenv(t, "COST_STT_CENTS_PER_MIN")
	unsetenv(t, "COST_ELEVENLABS_CENTS_PER_1K_CHARS")
	chdirTemp(t, "COST_STT_CENTS_PER_MIN=100\n")

	cfg := LoadConfigFromEnv()

	if cfg.CostRates.STTCentsPerMinute != 100 {
		t.Errorf("STTCentsPerMinute = %v, want 100 from .env", cfg.CostRates.STTCentsPerMinute)
	}
	if cfg.CostRates.TTSCentsPer1KChars != costs.DefaultRates().TTSCentsPer1KChars {
		t.Errorf("TTSCentsPer1KChars = %v, want default", cfg.CostRates.TTSCentsPer1KChars)
	}

	s := costs.NewSession(cfg.CostRates)
	s.Add(costs.Usage{STTSeconds: 60})
	if got := s.Costs().STTCostCents; got != 100 {
		t.Errorf("one minute of recognition = %d cents, want 100", got)
	}
}

func TestGetenvBoolAndDuration(t *testing.T) {
	t.Setenv("HISTORY_ENABLED", "true")
	t.Setenv("LLM_SPOKEN_STYLE", "maybe")
	t.Setenv("PAUSE_THRESHOLD", "250ms")
	t.Setenv("LISTEN_TIMEOUT", "-1s")
	t.Setenv("PHRASE_TIME_LIMIT", "soon")

	if !getenvBool("HISTORY_ENABLED", false) {
		t.Error("getenvBool(HISTORY_ENABLED=true) = false")
	}
	if !getenvBool("LLM_SPOKEN_STYLE", true) {
		t.Error("unparseable bool should fall back to default")
	}
	if got := getenvDuration("PAUSE_THRESHOLD", time.Second); got != 250*time.Millisecond {
		t.Errorf("getenvDuration(PAUSE_THRESHOLD) = %v, want 250ms", got)
	}
	if got := getenvDuration("LISTEN_TIMEOUT", 5*time.Second); got != 5*time.Second {
		t.Errorf("negative duration = %v, want default", got)
	}
	if got := getenvDuration("PHRASE_TIME_LIMIT", 15*time.Second); got != 15*time.Second {
		t.Errorf("junk duration = %v, want default", got)
	}
}

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("ELEVENLABS_API_KEY", "")
	t.Setenv("LLM_MODEL", "")
	t.Setenv("LANGUAGE", "")
	t.Setenv("VISUALIZER_ADDR", "")
	t.Setenv("AUTO_START", "")
	for _, k := range []string{"COST_STT_CENTS_PER_MIN", "COST_LLM_INPUT_CENTS_PER_1K", "COST_LLM_OUTPUT_CENTS_PER_1K", "COST_ELEVENLABS_CENTS_PER_1K_CHARS"} {
		t.Setenv(k, "")
	}

	cfg := LoadConfigFromEnv()

	if cfg.Language != stt.English {
		t.Errorf("Language = %q, want %q", cfg.Language, stt.English)
	}
	if cfg.STTProvider != "google" {
		t.Errorf("STTProvider = %q, want google", cfg.STTProvider)
	}
	if cfg.LLMModel != "llama2" {
		t.Errorf("LLMModel = %q, want llama2", cfg.LLMModel)
	}
	if cfg.LLMBaseURL != "http://localhost:11434" {
		t.Errorf("LLMBaseURL = %q", cfg.LLMBaseURL)
	}
	if cfg.LLMSystemPrompt != "Respond in English only." {
		t.Errorf("LLMSystemPrompt = %q", cfg.LLMSystemPrompt)
	}
	if cfg.LLMTimeout != 60*time.Second {
		t.Errorf("LLMTimeout = %v, want 60s", cfg.LLMTimeout)
	}
	if cfg.HistoryEnabled {
		t.Error("HistoryEnabled should default to false")
	}
	if cfg.TTSVoiceID != "EXAVITQu4vr4xnSDxMaL" {
		t.Errorf("TTSVoiceID = %q", cfg.TTSVoiceID)
	}
	if cfg.TTSStability != 0.5 || cfg.TTSSimilarity != 0.5 {
		t.Errorf("voice settings = %f/%f, want 0.5/0.5", cfg.TTSStability, cfg.TTSSimilarity)
	}
	if cfg.TTSMaxChars != 2500 || cfg.TTSOverflow != "truncate" {
		t.Errorf("TTS limits = %d/%q", cfg.TTSMaxChars, cfg.TTSOverflow)
	}
	if cfg.MicDeviceIndex != -1 {
		t.Errorf("MicDeviceIndex = %d, want -1", cfg.MicDeviceIndex)
	}
	if cfg.VisualizerAddr != "" {
		t.Errorf("VisualizerAddr = %q, want headless", cfg.VisualizerAddr)
	}
	if !cfg.AutoStart {
		t.Error("AutoStart should default to true")
	}
	if cfg.CostRates != costs.DefaultRates() {
		t.Errorf("CostRates = %+v, want defaults", cfg.CostRates)
	}
}

func TestLoadConfigFromEnvCustomValues(t *testing.T) {
	t.Setenv("ELEVENLABS_API_KEY", "  sk-live  ")
	t.Setenv("LANGUAGE", "id-ID")
	t.Setenv("LLM_PROVIDER", "OpenAI")
	t.Setenv("LLM_BASE_URL", "http://gpu-box:11434/")
	t.Setenv("HISTORY_ENABLED", "1")
	t.Setenv("TTS_STABILITY", "1.7")
	t.Setenv("SAMPLE_RATE", "96000")
	t.Setenv("PHRASE_TIME_LIMIT", "20s")

	cfg := LoadConfigFromEnv()

	if cfg.ElevenLabsAPIKey != "sk-live" {
		t.Errorf("ElevenLabsAPIKey = %q, want trimmed", cfg.ElevenLabsAPIKey)
	}
	if cfg.Language != stt.Indonesian {
		t.Errorf("Language = %q", cfg.Language)
	}
	if cfg.LLMProvider != "openai" {
		t.Errorf("LLMProvider = %q, want lowercased", cfg.LLMProvider)
	}
	if cfg.LLMBaseURL != "http://gpu-box:11434" {
		t.Errorf("LLMBaseURL = %q, want trailing slash removed", cfg.LLMBaseURL)
	}
	if !cfg.HistoryEnabled {
		t.Error("HistoryEnabled = false")
	}
	if cfg.TTSStability != 1 {
		t.Errorf("TTSStability = %f, want clamped to 1", cfg.TTSStability)
	}
	if cfg.SampleRate != 48000 {
		t.Errorf("SampleRate = %d, want clamped to 48000", cfg.SampleRate)
	}
	if cfg.PhraseTimeLimit != 20*time.Second {
		t.Errorf("PhraseTimeLimit = %v", cfg.PhraseTimeLimit)
	}
}

func validConfig() Config {
	return Config{
		Language:         stt.English,
		STTProvider:      "google",
		LLMProvider:      "ollama",
		LLMModel:         "llama2",
		ElevenLabsAPIKey: "sk-live",
		TTSVoiceID:       "EXAVITQu4vr4xnSDxMaL",
		TTSOverflow:      "truncate",
		ListenTimeout:    5 * time.Second,
		AutoStart:        true,
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing api key", mutate: func(c *Config) { c.ElevenLabsAPIKey = "" }, wantField: "ELEVENLABS_API_KEY"},
		{name: "placeholder api key", mutate: func(c *Config) { c.ElevenLabsAPIKey = APIKeyPlaceholder }, wantField: "ELEVENLABS_API_KEY"},
		{name: "unsupported language", mutate: func(c *Config) { c.Language = "fr-FR" }, wantField: "LANGUAGE"},
		{name: "unknown stt provider", mutate: func(c *Config) { c.STTProvider = "whisper" }, wantField: "STT_PROVIDER"},
		{name: "deepgram without key", mutate: func(c *Config) { c.STTProvider = "deepgram" }, wantField: "DEEPGRAM_API_KEY"},
		{name: "deepgram with key", mutate: func(c *Config) { c.STTProvider = "deepgram"; c.DeepgramAPIKey = "dg" }},
		{name: "empty model", mutate: func(c *Config) { c.LLMModel = "" }, wantField: "LLM_MODEL"},
		{name: "unknown llm provider", mutate: func(c *Config) { c.LLMProvider = "anthropic" }, wantField: "LLM_PROVIDER"},
		{name: "unknown overflow", mutate: func(c *Config) { c.TTSOverflow = "split" }, wantField: "TTS_OVERFLOW"},
		{name: "empty voice", mutate: func(c *Config) { c.TTSVoiceID = "" }, wantField: "TTS_VOICE_ID"},
		{name: "zero listen timeout", mutate: func(c *Config) { c.ListenTimeout = 0 }, wantField: "LISTEN_TIMEOUT"},
		{name: "manual start headless", mutate: func(c *Config) { c.AutoStart = false }, wantField: "AUTO_START"},
		{name: "manual start with visualizer", mutate: func(c *Config) { c.AutoStart = false; c.VisualizerAddr = ":8765" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() error = %v, want *ConfigError", err)
			}
			if cfgErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", cfgErr.Field, tt.wantField)
			}
		})
	}
}
