// Command test-tts synthesizes one sentence, saves it as output.mp3 and
// plays it.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/lukasbauer/vai0/internal/app"
	"github.com/lukasbauer/vai0/internal/playback"
	"github.com/lukasbauer/vai0/internal/tts"
)

const outputFile = "output.mp3"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg := app.LoadConfigFromEnv()
	logger, err := app.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	if cfg.ElevenLabsAPIKey == "" || cfg.ElevenLabsAPIKey == app.APIKeyPlaceholder {
		logger.Error("ELEVENLABS_API_KEY is not set")
		return 1
	}

	text := "Hello, I'm Elevenlabs here!"
	if len(args) > 0 {
		text = strings.Join(args, " ")
	}

	ctx := context.Background()
	client, cache := app.NewTTSClient(ctx, cfg, app.NewHTTPClient(), logger)
	if cache != nil {
		defer cache.Close()
	}

	clip, err := client.Synthesize(ctx, text)
	if err != nil {
		var authErr *tts.AuthError
		if errors.As(err, &authErr) {
			logger.Error("API key rejected", zap.Int("status", authErr.Status), zap.String("detail", authErr.Detail))
		} else {
			logger.Error("synthesis failed", zap.Error(err))
		}
		return 1
	}

	if err := os.WriteFile(outputFile, clip.Data, 0o644); err != nil {
		logger.Error("save clip", zap.Error(err))
		return 1
	}
	logger.Info("saved",
		zap.String("file", outputFile),
		zap.Int("bytes", len(clip.Data)),
		zap.String("encoding", clip.Encoding),
		zap.Bool("truncated", clip.Truncated))

	speaker := playback.NewSpeaker(playback.SpeakerConfig{}, logger, nil)
	defer speaker.Close()
	if err := speaker.Play(ctx, clip); err != nil {
		logger.Error("playback failed", zap.Error(err))
		return 1
	}
	logger.Info("played")
	return 0
}
