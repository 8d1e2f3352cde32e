package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/lukasbauer/vai0/internal/app"
	"github.com/lukasbauer/vai0/internal/tts"
	"github.com/lukasbauer/vai0/internal/voice"
)

const (
	exitOK     = 0
	exitInit   = 1
	exitHalted = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := app.LoadConfigFromEnv()

	logger, err := app.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		return exitInit
	}
	defer func() { _ = logger.Sync() }()

	// Initialize Sentry for error monitoring
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
		})
		if err != nil {
			logger.Warn("sentry init failed", zap.Error(err))
		} else {
			logger.Info("sentry initialized")
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		var cfgErr *app.ConfigError
		if !errors.As(err, &cfgErr) && cfg.SentryDSN != "" {
			sentry.CaptureException(err)
		}
		logger.Error("init app", zap.Error(err))
		return exitInit
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close app", zap.Error(err))
		}
	}()

	err = a.Run(ctx)
	c := a.Costs()
	logger.Info("stopped",
		zap.Int("stt_cents", c.STTCostCents),
		zap.Int("llm_cents", c.LLMCostCents),
		zap.Int("tts_cents", c.TTSCostCents),
		zap.Int("total_cents", c.TotalCostCents))

	// Turn errors were already logged in full on turn_failed.
	var (
		authErr *tts.AuthError
		capErr  *voice.CaptureError
	)
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &authErr):
		logger.Error("speech synthesis rejected the API key; check ELEVENLABS_API_KEY")
		return exitHalted
	case errors.As(err, &capErr):
		logger.Error("microphone failed; check MIC_DEVICE_INDEX", zap.Int("device", cfg.MicDeviceIndex))
		return exitInit
	default:
		logger.Error("voice loop halted", zap.Error(err))
		return exitInit
	}
}
