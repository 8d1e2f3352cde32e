package llm

import "strings"

// DefaultSystemPrompt pins the reply language; speech synthesis uses an
// English voice model.
const DefaultSystemPrompt = "Respond in English only."

// SpokenStyleSuffix is appended by SpeakablePrompt. Replies are read aloud,
// so markdown and lists only turn into noise.
const SpokenStyleSuffix = "Keep answers short and conversational. Do not use markdown, lists or emoji."

// SpeakablePrompt returns base with the spoken-style guardrail appended,
// or base unchanged when it already mentions markdown.
func SpeakablePrompt(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return SpokenStyleSuffix
	}
	if strings.Contains(strings.ToLower(base), "markdown") {
		return base
	}
	return base + " " + SpokenStyleSuffix
}
