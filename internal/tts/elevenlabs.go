package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/lukasbauer/vai0/internal/audio"
)

const elevenLabsAPIURL = "https://api.elevenlabs.io"

// ElevenLabsClient implements the Client interface using ElevenLabs' API.
type ElevenLabsClient struct {
	baseURL    string
	apiKey     string
	voiceID    string
	modelID    string
	stability  float64
	similarity float64
	maxChars   int
	overflow   Overflow
	httpClient *http.Client
	logger     *zap.Logger
}

// ElevenLabsConfig holds configuration for the ElevenLabs client.
type ElevenLabsConfig struct {
	BaseURL    string // defaults to the public API
	APIKey     string
	VoiceID    string  // ElevenLabs voice ID
	ModelID    string  // e.g., "eleven_monolingual_v1"
	Stability  float64 // 0-1; negative selects the default
	Similarity float64 // 0-1; negative selects the default
	MaxChars   int     // 0 selects the default
	Overflow   Overflow
	HTTPClient *http.Client
}

// NewElevenLabsClient creates a new ElevenLabs client.
func NewElevenLabsClient(cfg ElevenLabsConfig, logger *zap.Logger) *ElevenLabsClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = elevenLabsAPIURL
	}
	modelID := cfg.ModelID
	if modelID == "" {
		modelID = "eleven_monolingual_v1"
	}
	voiceID := cfg.VoiceID
	if voiceID == "" {
		voiceID = "EXAVITQu4vr4xnSDxMaL" // Bella
	}
	stability := cfg.Stability
	if stability < 0 {
		stability = 0.5
	}
	similarity := cfg.Similarity
	if similarity < 0 {
		similarity = 0.5
	}
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = 2500
	}
	overflow := cfg.Overflow
	if overflow == "" {
		overflow = OverflowTruncate
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &ElevenLabsClient{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		voiceID:    voiceID,
		modelID:    modelID,
		stability:  stability,
		similarity: similarity,
		maxChars:   maxChars,
		overflow:   overflow,
		httpClient: httpClient,
		logger:     logger,
	}
}

// VoiceID returns the voice every clip is rendered with.
func (c *ElevenLabsClient) VoiceID() string { return c.voiceID }

// ModelID returns the synthesis model.
func (c *ElevenLabsClient) ModelID() string { return c.modelID }

// ttsRequest represents an ElevenLabs TTS request.
type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// errorResponse covers the object form of "detail"; validation errors use
// a list and plain failures a string, which are kept raw.
type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

type errorDetail struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Synthesize converts text to speech and returns an MP3 clip at 44.1 kHz.
func (c *ElevenLabsClient) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	text, truncated, err := FitText(strings.TrimSpace(text), c.maxChars, c.overflow)
	if err != nil {
		return audio.Clip{}, err
	}
	if text == "" {
		return audio.Clip{}, fmt.Errorf("tts: empty text")
	}
	if truncated {
		c.logger.Warn("tts: text truncated to provider limit", zap.Int("limit", c.maxChars))
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=mp3_44100_128", c.baseURL, c.voiceID)

	req := ttsRequest{
		Text:    text,
		ModelID: c.modelID,
		VoiceSettings: voiceSettings{
			Stability:       c.stability,
			SimilarityBoost: c.similarity,
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return audio.Clip{}, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")
	httpReq.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return audio.Clip{}, statusError(resp.StatusCode, resp.Status, respBody)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("failed to read audio: %w", err)
	}
	if len(data) == 0 {
		return audio.Clip{}, fmt.Errorf("ElevenLabs API returned no audio")
	}

	return audio.Clip{
		Data:       data,
		Encoding:   audio.EncodingMP3,
		SampleRate: 44100,
		Truncated:  truncated,
		Characters: utf8.RuneCountInString(text),
	}, nil
}

// statusError maps a non-200 response onto the error taxonomy.
func statusError(code int, status string, body []byte) error {
	detail, kind := parseDetail(body)

	switch {
	case code == http.StatusTooManyRequests:
		return &QuotaExceededError{Status: code, Detail: detail}
	case code == http.StatusUnauthorized && kind == "quota_exceeded":
		return &QuotaExceededError{Status: code, Detail: detail}
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &AuthError{Status: code, Detail: detail}
	default:
		return fmt.Errorf("ElevenLabs API error: %s - %s", status, detail)
	}
}

func parseDetail(body []byte) (message, kind string) {
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Detail) == 0 {
		return strings.TrimSpace(string(body)), ""
	}
	var d errorDetail
	if err := json.Unmarshal(resp.Detail, &d); err == nil {
		return d.Message, d.Status
	}
	var s string
	if err := json.Unmarshal(resp.Detail, &s); err == nil {
		return s, ""
	}
	return string(resp.Detail), ""
}
