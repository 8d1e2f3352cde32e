package stt

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/lukasbauer/vai0/internal/audio"
)

// recognizer is the subset of the Cloud Speech client used here.
type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)
	Close() error
}

type cloudRecognizer struct {
	c *speech.Client
}

func (r cloudRecognizer) Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
	return r.c.Recognize(ctx, req)
}

func (r cloudRecognizer) Close() error { return r.c.Close() }

// GoogleClient implements the Client interface using Google Cloud Speech
// synchronous recognition.
type GoogleClient struct {
	rec    recognizer
	logger *zap.Logger
}

// GoogleConfig holds configuration for the Google client.
type GoogleConfig struct {
	APIKey string // empty uses Application Default Credentials
}

// NewGoogleClient creates a new Cloud Speech client.
func NewGoogleClient(ctx context.Context, cfg GoogleConfig, logger *zap.Logger) (*GoogleClient, error) {
	var opts []option.ClientOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return &GoogleClient{rec: cloudRecognizer{c: c}, logger: logger}, nil
}

// Transcribe sends the utterance as LINEAR16 and joins the top alternative
// of every result. The transcript is always tagged with lang.
func (g *GoogleClient) Transcribe(ctx context.Context, utt audio.Utterance, lang Language) (Transcript, error) {
	if !lang.Supported() {
		return Transcript{}, fmt.Errorf("stt: unsupported language %q", lang)
	}
	if len(utt.Samples) == 0 {
		return Transcript{}, ErrNoSpeech
	}

	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz: int32(utt.SampleRate),
			LanguageCode:    string(lang),
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: utt.PCM16LE()},
		},
	}

	resp, err := g.rec.Recognize(ctx, req)
	if err != nil {
		return Transcript{}, &RecognitionError{Err: err}
	}

	var parts []string
	var confidence float64
	for i, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if text := strings.TrimSpace(alts[0].GetTranscript()); text != "" {
			parts = append(parts, text)
		}
		if i == 0 {
			confidence = float64(alts[0].GetConfidence())
		}
	}

	text := strings.Join(parts, " ")
	if text == "" {
		return Transcript{}, ErrNoSpeech
	}

	g.logger.Debug("stt: recognized",
		zap.String("language", string(lang)),
		zap.Float64("confidence", confidence),
		zap.Duration("audio", utt.Duration()))

	return Transcript{Text: text, Language: lang, Confidence: confidence}, nil
}

// Close closes the speech client connection.
func (g *GoogleClient) Close() error {
	if g.rec == nil {
		return nil
	}
	return g.rec.Close()
}
