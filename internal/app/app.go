package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lukasbauer/vai0/internal/audio"
	"github.com/lukasbauer/vai0/internal/capture"
	"github.com/lukasbauer/vai0/internal/costs"
	"github.com/lukasbauer/vai0/internal/eventlog"
	"github.com/lukasbauer/vai0/internal/health"
	"github.com/lukasbauer/vai0/internal/llm"
	"github.com/lukasbauer/vai0/internal/notifications"
	"github.com/lukasbauer/vai0/internal/playback"
	"github.com/lukasbauer/vai0/internal/stt"
	"github.com/lukasbauer/vai0/internal/tts"
	"github.com/lukasbauer/vai0/internal/visualizer"
	"github.com/lukasbauer/vai0/internal/voice"
)

// App owns every long-lived component of the voice loop.
type App struct {
	cfg        Config
	logger     *zap.Logger
	httpClient *http.Client // shared by the LLM and TTS clients

	stt     stt.Client
	llm     llm.Client
	prober  health.Prober
	tts     tts.Client
	closers []io.Closer

	speaker *playback.Speaker
	bus     *voice.Bus
	usage   *costs.Session
	loop    *voice.Loop

	hub    *visualizer.Hub
	server *visualizer.Server

	notifier *notifications.Discord
}

// New builds the loop and, when VisualizerAddr is set, the visualizer.
// Device and client failures are returned as is; bad config as *ConfigError.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		cfg:        cfg,
		logger:     logger,
		httpClient: NewHTTPClient(),
		usage:      costs.NewSession(cfg.CostRates),
	}
	a.notifier = notifications.NewDiscord(cfg.DiscordWebhookURL, a.httpClient, logger)
	if cfg.VisualizerAddr != "" {
		a.bus = voice.NewBus(0)
	}

	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	var err error
	if a.stt, err = NewSTTClient(ctx, cfg, a.httpClient, logger); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.stt)

	a.llm, a.prober = NewLLMClient(cfg, a.httpClient)

	ttsClient, cache := NewTTSClient(ctx, cfg, a.httpClient, logger)
	a.tts = ttsClient
	if cache != nil {
		a.closers = append(a.closers, cache)
	}

	rec, src, err := OpenRecorder(cfg, logger, a.bus.Level)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, src)

	a.speaker = playback.NewSpeaker(playback.SpeakerConfig{Async: cfg.PlaybackAsync}, logger, a.bus.Level)
	a.closers = append(a.closers, a.speaker)

	deps := voice.Deps{
		Recorder: rec,
		STT:      a.stt,
		LLM:      a.llm,
		TTS:      a.tts,
		Player:   a.speaker,
		Bus:      a.bus,
		Events:   eventlog.New(logger),
		Usage:    a.usage,
		Logger:   logger,
	}
	if cfg.SentryDSN != "" {
		deps.Reporter = NewSentryReporter(nil, logger)
	}
	a.loop = voice.New(voice.Config{
		Language:       cfg.Language,
		HistoryEnabled: cfg.HistoryEnabled,
		Paused:         !cfg.AutoStart,
	}, deps)

	if cfg.VisualizerAddr != "" {
		a.hub = visualizer.NewHub(logger)
		a.server, err = visualizer.Listen(cfg.VisualizerAddr, visualizer.NewRouter(a.hub, a.status, a.loop), logger)
		if err != nil {
			return nil, err
		}
	}

	ok = true
	return a, nil
}

// NewHTTPClient returns the pooled client shared by the HTTP providers.
// It has no overall timeout; each request is bounded by its context.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// NewSTTClient builds the configured recognizer.
func NewSTTClient(ctx context.Context, cfg Config, httpClient *http.Client, logger *zap.Logger) (stt.Client, error) {
	switch cfg.STTProvider {
	case "deepgram":
		return stt.NewDeepgramClient(stt.DeepgramConfig{
			APIKey:     cfg.DeepgramAPIKey,
			Model:      cfg.DeepgramModel,
			HTTPClient: httpClient,
		}, logger)
	default:
		return stt.NewGoogleClient(ctx, stt.GoogleConfig{APIKey: cfg.GoogleAPIKey}, logger)
	}
}

// NewLLMClient builds the configured model client. The prober is nil when
// the server is not known to be Ollama.
func NewLLMClient(cfg Config, httpClient *http.Client) (llm.Client, health.Prober) {
	if cfg.LLMProvider == "openai" {
		return llm.NewOpenAICompatClient(llm.OpenAICompatConfig{
			BaseURL:      cfg.LLMBaseURL,
			Model:        cfg.LLMModel,
			SystemPrompt: cfg.LLMSystemPrompt,
			SpokenStyle:  cfg.LLMSpokenStyle,
			Timeout:      cfg.LLMTimeout,
			HTTPClient:   httpClient,
		}), nil
	}
	c := llm.NewOllamaClient(llm.OllamaConfig{
		BaseURL:      cfg.LLMBaseURL,
		Model:        cfg.LLMModel,
		SystemPrompt: cfg.LLMSystemPrompt,
		SpokenStyle:  cfg.LLMSpokenStyle,
		Timeout:      cfg.LLMTimeout,
		HTTPClient:   httpClient,
	})
	return c, c
}

// NewTTSClient builds the ElevenLabs client, wrapped in the Redis cache
// when RedisAddr is set and reachable. The returned cache is nil otherwise.
func NewTTSClient(ctx context.Context, cfg Config, httpClient *http.Client, logger *zap.Logger) (tts.Client, *tts.CachedClient) {
	el := tts.NewElevenLabsClient(tts.ElevenLabsConfig{
		APIKey:     cfg.ElevenLabsAPIKey,
		VoiceID:    cfg.TTSVoiceID,
		ModelID:    cfg.TTSModelID,
		Stability:  cfg.TTSStability,
		Similarity: cfg.TTSSimilarity,
		MaxChars:   cfg.TTSMaxChars,
		Overflow:   tts.Overflow(cfg.TTSOverflow),
		HTTPClient: httpClient,
	}, logger)

	if cfg.RedisAddr == "" {
		return el, nil
	}
	cache, err := tts.NewRedisCache(ctx, tts.CacheConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.TTSCacheTTL,
		VoiceID:  el.VoiceID(),
		ModelID:  el.ModelID(),
	}, el, logger)
	if err != nil {
		logger.Warn("tts cache disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		return el, nil
	}
	logger.Info("tts cache enabled", zap.String("addr", cfg.RedisAddr))
	return cache, cache
}

// OpenRecorder opens the configured microphone. The returned source must
// be closed by the caller.
func OpenRecorder(cfg Config, logger *zap.Logger, onLevel audio.LevelFunc) (*capture.Recorder, *capture.PortAudioSource, error) {
	src, err := capture.OpenPortAudio(cfg.MicDeviceIndex, cfg.SampleRate, capture.FrameSize(cfg.SampleRate))
	if err != nil {
		return nil, nil, fmt.Errorf("open microphone: %w", err)
	}
	rec := capture.NewRecorder(src, capture.RecorderConfig{
		SampleRate:          cfg.SampleRate,
		ListenTimeout:       cfg.ListenTimeout,
		PhraseTimeLimit:     cfg.PhraseTimeLimit,
		PauseThreshold:      cfg.PauseThreshold,
		EnergyThreshold:     cfg.EnergyThreshold,
		CalibrationDuration: cfg.CalibrationDuration,
	}, logger, onLevel)
	return rec, src, nil
}

// Run checks the environment, then runs the loop (and the visualizer) until
// ctx is done or the loop halts.
func (a *App) Run(ctx context.Context) error {
	health.Check(ctx, a.prober).Log(a.logger)

	g, gctx := errgroup.WithContext(ctx)
	if a.server != nil {
		g.Go(func() error {
			a.hub.Run(gctx, a.bus.Events())
			return nil
		})
		g.Go(func() error { return a.server.Serve(gctx) })
	}
	g.Go(func() error { return a.loop.Run(gctx) })
	err := g.Wait()

	_, turns := a.usage.Snapshot()
	if err != nil {
		a.notifier.NotifyHalted(context.Background(), err, turns)
	} else {
		a.notifier.NotifySessionEnded(context.Background(), turns, a.usage.Costs())
	}
	return err
}

// Costs returns the estimated spend so far.
func (a *App) Costs() costs.Costs { return a.usage.Costs() }

func (a *App) status() visualizer.Status {
	_, turns := a.usage.Snapshot()
	st := visualizer.Status{Turns: turns, EventsDropped: a.bus.Dropped()}
	if a.loop != nil {
		st.State = a.loop.State().String()
		st.Running = a.loop.Running()
	}
	return st
}

// Close releases devices and connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
