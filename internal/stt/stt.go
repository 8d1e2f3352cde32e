package stt

import (
	"context"
	"errors"
	"fmt"

	"github.com/lukasbauer/vai0/internal/audio"
)

// Language is a BCP-47 tag accepted by the recognizer.
type Language string

const (
	English    Language = "en-US"
	Indonesian Language = "id-ID"
)

// Supported reports whether l is one of the two configured languages.
func (l Language) Supported() bool {
	return l == English || l == Indonesian
}

// Transcript is the recognized text of one utterance.
type Transcript struct {
	Text       string
	Language   Language
	Confidence float64 // 0-1, zero when the provider does not report it
}

// ErrNoSpeech means nothing intelligible was heard. The loop re-listens.
var ErrNoSpeech = errors.New("stt: no speech detected")

// RecognitionError wraps a failure of the recognition service itself.
type RecognitionError struct {
	Err error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("stt: recognition failed: %v", e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// Client defines the interface for speech-to-text providers.
type Client interface {
	// Transcribe sends one utterance and returns its transcript in lang.
	Transcribe(ctx context.Context, utt audio.Utterance, lang Language) (Transcript, error)

	// Close releases the underlying connection.
	Close() error
}
