package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/lukasbauer/vai0/internal/audio"
)

const deepgramBaseURL = "https://api.deepgram.com"

// DeepgramClient implements the Client interface using Deepgram's
// pre-recorded transcription API. Each utterance is one request.
type DeepgramClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

// DeepgramConfig holds configuration for the Deepgram client.
type DeepgramConfig struct {
	BaseURL    string
	APIKey     string
	Model      string // e.g., "nova-2"
	Punctuate  bool
	HTTPClient *http.Client
}

// deepgramResponse is the subset of the pre-recorded response we read.
type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// NewDeepgramClient creates a new Deepgram STT client.
func NewDeepgramClient(cfg DeepgramConfig, logger *zap.Logger) (*DeepgramClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("stt: deepgram api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = deepgramBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeepgramClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: cfg.HTTPClient,
		logger:     logger,
	}, nil
}

// deepgramLanguage maps our tags to the codes Deepgram accepts.
func deepgramLanguage(lang Language) string {
	if lang == Indonesian {
		return "id"
	}
	return string(lang)
}

// Transcribe posts the utterance as raw linear16 and returns the top
// alternative of the first channel.
func (c *DeepgramClient) Transcribe(ctx context.Context, utt audio.Utterance, lang Language) (Transcript, error) {
	if !lang.Supported() {
		return Transcript{}, fmt.Errorf("stt: unsupported language %q", lang)
	}
	if len(utt.Samples) == 0 {
		return Transcript{}, ErrNoSpeech
	}

	q := url.Values{}
	q.Set("model", c.model)
	q.Set("language", deepgramLanguage(lang))
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(utt.SampleRate))
	q.Set("channels", "1")
	q.Set("smart_format", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/listen?"+q.Encode(), bytes.NewReader(utt.PCM16LE()))
	if err != nil {
		return Transcript{}, fmt.Errorf("stt: build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Transcript{}, ctx.Err()
		}
		return Transcript{}, &RecognitionError{Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return Transcript{}, &RecognitionError{
			Err: fmt.Errorf("deepgram returned %s: %s", resp.Status, strings.TrimSpace(string(body))),
		}
	}

	var parsed deepgramResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Transcript{}, &RecognitionError{Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(parsed.Results.Channels) == 0 || len(parsed.Results.Channels[0].Alternatives) == 0 {
		return Transcript{}, ErrNoSpeech
	}

	alt := parsed.Results.Channels[0].Alternatives[0]
	text := strings.TrimSpace(alt.Transcript)
	if text == "" {
		return Transcript{}, ErrNoSpeech
	}

	c.logger.Debug("stt: recognized",
		zap.String("provider", "deepgram"),
		zap.String("language", string(lang)),
		zap.Float64("confidence", alt.Confidence))

	return Transcript{Text: text, Language: lang, Confidence: alt.Confidence}, nil
}

// Close is a no-op; connections belong to the shared HTTP client.
func (c *DeepgramClient) Close() error { return nil }
