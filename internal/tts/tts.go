package tts

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/lukasbauer/vai0/internal/audio"
)

// Client defines the interface for text-to-speech providers.
type Client interface {
	// Synthesize converts text to speech with the voice bound at
	// construction and returns one complete clip.
	Synthesize(ctx context.Context, text string) (audio.Clip, error)
}

// Overflow decides what happens to text longer than the provider limit.
type Overflow string

const (
	OverflowTruncate Overflow = "truncate"
	OverflowReject   Overflow = "reject"
)

// AuthError means the API key was refused. Nothing will succeed until the
// key is fixed, so the loop stops on it.
type AuthError struct {
	Status int
	Detail string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("tts: authentication failed (%d): %s", e.Status, e.Detail)
}

// QuotaExceededError means the account is out of characters or rate limited.
type QuotaExceededError struct {
	Status int
	Detail string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("tts: quota exceeded (%d): %s", e.Status, e.Detail)
}

// TextTooLongError is returned under OverflowReject.
type TextTooLongError struct {
	Length int
	Limit  int
}

func (e *TextTooLongError) Error() string {
	return fmt.Sprintf("tts: text is %d characters, limit is %d", e.Length, e.Limit)
}

// FitText applies the overflow policy to text. Truncation cuts at the last
// whitespace at or before limit, or hard at limit when there is none, and
// always yields the same result for the same input.
func FitText(text string, limit int, policy Overflow) (fitted string, truncated bool, err error) {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text, false, nil
	}
	if policy == OverflowReject {
		return "", false, &TextTooLongError{Length: len(runes), Limit: limit}
	}

	cut := limit
	for i := limit; i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	fitted = strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace)
	if fitted == "" {
		fitted = string(runes[:limit])
	}
	return fitted, true, nil
}
