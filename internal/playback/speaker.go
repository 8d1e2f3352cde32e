package playback

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"

	"github.com/lukasbauer/vai0/internal/audio"
)

// sink plays stereo s16le PCM and returns when it has drained.
type sink func(ctx context.Context, pcm io.Reader, sampleRate int) error

// SpeakerConfig holds configuration for the Speaker.
type SpeakerConfig struct {
	// Async makes Play return once playback has started. A following Play
	// waits for the previous clip so audio never overlaps.
	Async bool
}

// Speaker plays clips through oto.
type Speaker struct {
	async   bool
	logger  *zap.Logger
	onLevel audio.LevelFunc
	sink    sink

	mu      sync.Mutex
	pending chan struct{}

	otoCtx  *oto.Context
	otoRate int
}

// NewSpeaker creates a Speaker. The output device is opened on the first
// clip, at that clip's sample rate. onLevel may be nil.
func NewSpeaker(cfg SpeakerConfig, logger *zap.Logger, onLevel audio.LevelFunc) *Speaker {
	s := newSpeaker(cfg, logger, onLevel, nil)
	s.sink = s.otoPlay
	return s
}

func newSpeaker(cfg SpeakerConfig, logger *zap.Logger, onLevel audio.LevelFunc, out sink) *Speaker {
	if onLevel == nil {
		onLevel = func(audio.Source, int) {}
	}
	return &Speaker{
		async:   cfg.Async,
		logger:  logger,
		onLevel: onLevel,
		sink:    out,
	}
}

// Play decodes clip and plays it.
func (s *Speaker) Play(ctx context.Context, clip audio.Clip) error {
	pcm, rate, err := decode(clip)
	if err != nil {
		return err
	}
	if err := s.wait(ctx); err != nil {
		return err
	}

	pcm = &levelReader{r: pcm, onLevel: s.onLevel}
	if !s.async {
		return s.play(ctx, pcm, rate)
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.pending = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		if err := s.play(ctx, pcm, rate); err != nil && ctx.Err() == nil {
			s.logger.Warn("playback: async clip failed", zap.Error(err))
		}
	}()
	return nil
}

// Wait blocks until any clip started asynchronously has finished.
func (s *Speaker) Wait(ctx context.Context) error {
	return s.wait(ctx)
}

// Close waits for pending playback.
func (s *Speaker) Close() error {
	return s.wait(context.Background())
}

func (s *Speaker) wait(ctx context.Context) error {
	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()
	if pending == nil {
		return nil
	}
	select {
	case <-pending:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Speaker) play(ctx context.Context, pcm io.Reader, rate int) error {
	err := s.sink(ctx, pcm, rate)
	s.onLevel(audio.Playback, 0)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &PlaybackError{Op: "play", Err: err}
	}
	return nil
}

func (s *Speaker) otoPlay(ctx context.Context, pcm io.Reader, rate int) error {
	otoCtx, err := s.device(rate)
	if err != nil {
		return err
	}

	p := otoCtx.NewPlayer(pcm)
	defer p.Close()
	p.Play()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for p.IsPlaying() {
		select {
		case <-ctx.Done():
			p.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return p.Err()
}

// device opens the process-wide oto context. oto allows one per process,
// so later clips must match the first clip's rate.
func (s *Speaker) device(rate int) (*oto.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.otoCtx != nil {
		if rate != s.otoRate {
			return nil, fmt.Errorf("clip sample rate %d differs from device rate %d", rate, s.otoRate)
		}
		return s.otoCtx, nil
	}

	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   rate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("open output device: %w", err)
	}
	<-ready

	s.logger.Info("playback: output device ready", zap.Int("sample_rate", rate))
	s.otoCtx = otoCtx
	s.otoRate = rate
	return otoCtx, nil
}
