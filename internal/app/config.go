package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lukasbauer/vai0/internal/costs"
	"github.com/lukasbauer/vai0/internal/stt"
)

// APIKeyPlaceholder is the value shipped in .env.example. Startup refuses to
// run while it is still in place.
const APIKeyPlaceholder = "your_api_key_here"

// Config is loaded once at startup and passed by value to every component.
type Config struct {
	LogLevel    string
	Environment string
	SentryDSN   string

	// Speech recognition
	Language            stt.Language
	STTProvider         string // "google" or "deepgram"
	GoogleAPIKey        string // empty uses Application Default Credentials
	DeepgramAPIKey      string
	DeepgramModel       string
	MicDeviceIndex      int    // -1 selects the default input device
	SampleRate          int
	ListenTimeout       time.Duration // max wait for speech to start
	PhraseTimeLimit     time.Duration // max length of one utterance
	PauseThreshold      time.Duration // trailing silence that ends an utterance
	EnergyThreshold     float64
	CalibrationDuration time.Duration

	// Language model
	LLMProvider     string // "ollama" or "openai"
	LLMBaseURL      string
	LLMModel        string
	LLMSystemPrompt string
	LLMTimeout      time.Duration
	LLMSpokenStyle  bool // append the no-markdown guardrail to the system prompt
	HistoryEnabled  bool

	// Speech synthesis
	ElevenLabsAPIKey string
	TTSVoiceID       string
	TTSModelID       string
	TTSStability     float64
	TTSSimilarity    float64
	TTSMaxChars      int
	TTSOverflow      string // "truncate" or "reject"

	// Optional clip cache
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTSCacheTTL   time.Duration

	// Playback
	PlaybackAsync bool

	// Loop control; false waits in idle for a start command
	AutoStart bool

	// Spend estimates, COST_* overrides
	CostRates costs.Rates

	// Visualizer; empty runs headless
	VisualizerAddr string

	// Operator alerts; empty disables
	DiscordWebhookURL string
}

// ConfigError reports configuration that prevents startup.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// LoadConfigFromEnv reads .env (if present) and the process environment.
func LoadConfigFromEnv() Config {
	_ = godotenv.Load()

	return Config{
		LogLevel:    getenv("LOG_LEVEL", "info"),
		Environment: getenv("ENVIRONMENT", "development"),
		SentryDSN:   getenv("SENTRY_DSN", ""),

		Language:            stt.Language(getenv("LANGUAGE", string(stt.English))),
		STTProvider:         strings.ToLower(getenv("STT_PROVIDER", "google")),
		GoogleAPIKey:        getenv("GOOGLE_API_KEY", ""),
		DeepgramAPIKey:      getenv("DEEPGRAM_API_KEY", ""),
		DeepgramModel:       getenv("DEEPGRAM_MODEL", "nova-2"),
		MicDeviceIndex:      getenvIntClamped("MIC_DEVICE_INDEX", -1, -1, 256),
		SampleRate:          getenvIntClamped("SAMPLE_RATE", 16000, 8000, 48000),
		ListenTimeout:       getenvDuration("LISTEN_TIMEOUT", 5*time.Second),
		PhraseTimeLimit:     getenvDuration("PHRASE_TIME_LIMIT", 15*time.Second),
		PauseThreshold:      getenvDuration("PAUSE_THRESHOLD", 800*time.Millisecond),
		EnergyThreshold:     getenvFloatClamped("ENERGY_THRESHOLD", 300, 0, 32767),
		CalibrationDuration: getenvDuration("CALIBRATION_DURATION", time.Second),

		LLMProvider:     strings.ToLower(getenv("LLM_PROVIDER", "ollama")),
		LLMBaseURL:      strings.TrimRight(getenv("LLM_BASE_URL", "http://localhost:11434"), "/"),
		LLMModel:        getenv("LLM_MODEL", "llama2"),
		LLMSystemPrompt: getenv("LLM_SYSTEM_PROMPT", "Respond in English only."),
		LLMTimeout:      getenvDuration("LLM_TIMEOUT", 60*time.Second),
		LLMSpokenStyle:  getenvBool("LLM_SPOKEN_STYLE", false),
		HistoryEnabled:  getenvBool("HISTORY_ENABLED", false),

		ElevenLabsAPIKey: strings.TrimSpace(os.Getenv("ELEVENLABS_API_KEY")), // required, no fallback
		TTSVoiceID:       getenv("TTS_VOICE_ID", "EXAVITQu4vr4xnSDxMaL"),
		TTSModelID:       getenv("TTS_MODEL_ID", "eleven_monolingual_v1"),
		TTSStability:     getenvFloatClamped("TTS_STABILITY", 0.5, 0, 1),
		TTSSimilarity:    getenvFloatClamped("TTS_SIMILARITY", 0.5, 0, 1),
		TTSMaxChars:      getenvIntClamped("TTS_MAX_CHARS", 2500, 1, 40000),
		TTSOverflow:      strings.ToLower(getenv("TTS_OVERFLOW", "truncate")),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvIntClamped("REDIS_DB", 0, 0, 15),
		TTSCacheTTL:   getenvDuration("TTS_CACHE_TTL", 24*time.Hour),

		PlaybackAsync: getenvBool("PLAYBACK_ASYNC", false),

		AutoStart: getenvBool("AUTO_START", true),

		CostRates: loadCostRates(),

		VisualizerAddr: getenv("VISUALIZER_ADDR", ""),

		DiscordWebhookURL: getenv("DISCORD_WEBHOOK_URL", ""),
	}
}

// Validate fails fast on anything that would make every turn fail.
func (c Config) Validate() error {
	if c.ElevenLabsAPIKey == "" || c.ElevenLabsAPIKey == APIKeyPlaceholder {
		return &ConfigError{Field: "ELEVENLABS_API_KEY", Reason: "not set (still the placeholder?)"}
	}
	if !c.Language.Supported() {
		return &ConfigError{Field: "LANGUAGE", Reason: fmt.Sprintf("unsupported language %q", c.Language)}
	}
	switch c.STTProvider {
	case "google":
	case "deepgram":
		if c.DeepgramAPIKey == "" {
			return &ConfigError{Field: "DEEPGRAM_API_KEY", Reason: "required when STT_PROVIDER=deepgram"}
		}
	default:
		return &ConfigError{Field: "STT_PROVIDER", Reason: fmt.Sprintf("unknown provider %q", c.STTProvider)}
	}
	if c.LLMModel == "" {
		return &ConfigError{Field: "LLM_MODEL", Reason: "empty model name"}
	}
	switch c.LLMProvider {
	case "ollama", "openai":
	default:
		return &ConfigError{Field: "LLM_PROVIDER", Reason: fmt.Sprintf("unknown provider %q", c.LLMProvider)}
	}
	switch c.TTSOverflow {
	case "truncate", "reject":
	default:
		return &ConfigError{Field: "TTS_OVERFLOW", Reason: fmt.Sprintf("unknown policy %q", c.TTSOverflow)}
	}
	if c.TTSVoiceID == "" {
		return &ConfigError{Field: "TTS_VOICE_ID", Reason: "empty voice id"}
	}
	if c.ListenTimeout <= 0 {
		return &ConfigError{Field: "LISTEN_TIMEOUT", Reason: "must be positive"}
	}
	if !c.AutoStart && c.VisualizerAddr == "" {
		return &ConfigError{Field: "AUTO_START", Reason: "false needs VISUALIZER_ADDR to receive the start command"}
	}
	return nil
}

const maxCentsPerUnit = 1e6

func loadCostRates() costs.Rates {
	def := costs.DefaultRates()
	return costs.Rates{
		STTCentsPerMinute:   getenvFloatClamped("COST_STT_CENTS_PER_MIN", def.STTCentsPerMinute, 0, maxCentsPerUnit),
		LLMInputCentsPer1K:  getenvFloatClamped("COST_LLM_INPUT_CENTS_PER_1K", def.LLMInputCentsPer1K, 0, maxCentsPerUnit),
		LLMOutputCentsPer1K: getenvFloatClamped("COST_LLM_OUTPUT_CENTS_PER_1K", def.LLMOutputCentsPer1K, 0, maxCentsPerUnit),
		TTSCentsPer1KChars:  getenvFloatClamped("COST_ELEVENLABS_CENTS_PER_1K_CHARS", def.TTSCentsPer1KChars, 0, maxCentsPerUnit),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvBool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}

func getenvIntClamped(k string, def, min, max int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	if i < min {
		return min
	}
	if i > max {
		return max
	}
	return i
}

func getenvFloatClamped(k string, def, min, max float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	if f < min {
		return min
	}
	if f > max {
		return max
	}
	return f
}
