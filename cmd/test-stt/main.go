// Command test-stt records one utterance from the microphone, saves it as
// utterance.wav and prints the transcript.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"github.com/lukasbauer/vai0/internal/app"
	"github.com/lukasbauer/vai0/internal/audio"
	"github.com/lukasbauer/vai0/internal/stt"
)

const wavFile = "utterance.wav"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := app.LoadConfigFromEnv()
	logger, err := app.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client, err := app.NewSTTClient(ctx, cfg, app.NewHTTPClient(), logger)
	if err != nil {
		logger.Error("init speech client", zap.Error(err))
		return 1
	}
	defer client.Close()

	rec, src, err := app.OpenRecorder(cfg, logger, nil)
	if err != nil {
		logger.Error("open microphone", zap.Error(err))
		return 1
	}
	defer src.Close()

	fmt.Println("Say something...")
	utt, err := rec.Record(ctx)
	if err != nil {
		if errors.Is(err, stt.ErrNoSpeech) {
			fmt.Println("Heard nothing.")
			return 0
		}
		logger.Error("record", zap.Error(err))
		return 1
	}
	if err := saveWAV(utt); err != nil {
		logger.Warn("save wav", zap.Error(err))
	}

	transcript, err := client.Transcribe(ctx, utt, cfg.Language)
	var recErr *stt.RecognitionError
	switch {
	case errors.Is(err, stt.ErrNoSpeech):
		fmt.Println("Sorry, could not understand.")
	case errors.As(err, &recErr):
		logger.Error("speech service error", zap.Error(err))
		return 1
	case err != nil:
		logger.Error("transcribe", zap.Error(err))
		return 1
	default:
		fmt.Printf("You said: %s\n", transcript.Text)
		logger.Info("transcribed",
			zap.String("language", string(transcript.Language)),
			zap.Float64("confidence", transcript.Confidence),
			zap.Duration("audio", utt.Duration()))
	}
	return 0
}

func saveWAV(utt audio.Utterance) error {
	f, err := os.Create(wavFile)
	if err != nil {
		return err
	}
	if err := utt.WriteWAV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
