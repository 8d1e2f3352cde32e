// Package capture records one utterance at a time from the microphone,
// bounded by a listen timeout, a trailing-silence pause and a phrase limit.
package capture

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lukasbauer/vai0/internal/audio"
	"github.com/lukasbauer/vai0/internal/stt"
)

const (
	defaultFrameDuration = 30 * time.Millisecond
	// ambient energy is scaled by this before it replaces the threshold
	dynamicEnergyRatio = 1.5
	preRollFrames      = 10
)

// RecorderConfig holds configuration for the Recorder.
type RecorderConfig struct {
	SampleRate          int
	FrameSize           int           // samples per frame; 0 derives 30ms from SampleRate
	ListenTimeout       time.Duration // max wait for speech to start
	PhraseTimeLimit     time.Duration // 0 means unbounded
	PauseThreshold      time.Duration
	EnergyThreshold     float64
	CalibrationDuration time.Duration // 0 disables ambient calibration
}

// Recorder turns a Source into utterances.
type Recorder struct {
	src        Source
	cfg        RecorderConfig
	logger     *zap.Logger
	onLevel    audio.LevelFunc
	threshold  float64
	calibrated bool
}

// NewRecorder creates a Recorder. onLevel may be nil.
func NewRecorder(src Source, cfg RecorderConfig, logger *zap.Logger, onLevel audio.LevelFunc) *Recorder {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = FrameSize(cfg.SampleRate)
	}
	if cfg.PauseThreshold <= 0 {
		cfg.PauseThreshold = 800 * time.Millisecond
	}
	if onLevel == nil {
		onLevel = func(audio.Source, int) {}
	}
	return &Recorder{
		src:       src,
		cfg:       cfg,
		logger:    logger,
		onLevel:   onLevel,
		threshold: cfg.EnergyThreshold,
	}
}

// FrameSize is the number of samples in a 30ms frame at sampleRate.
func FrameSize(sampleRate int) int {
	return int(int64(sampleRate) * int64(defaultFrameDuration) / int64(time.Second))
}

// Threshold returns the energy threshold currently in effect.
func (r *Recorder) Threshold() float64 { return r.threshold }

// Record captures one utterance. It returns stt.ErrNoSpeech when nothing
// rises above the energy threshold within the listen timeout.
func (r *Recorder) Record(ctx context.Context) (audio.Utterance, error) {
	if err := r.src.Start(); err != nil {
		return audio.Utterance{}, fmt.Errorf("capture: start: %w", err)
	}
	defer func() {
		if err := r.src.Stop(); err != nil {
			r.logger.Warn("capture: stop failed", zap.Error(err))
		}
	}()

	if !r.calibrated && r.cfg.CalibrationDuration > 0 {
		if err := r.calibrate(ctx); err != nil {
			return audio.Utterance{}, err
		}
	}

	frameDur := r.frameDuration()
	listenFrames := framesFor(r.cfg.ListenTimeout, frameDur)
	pauseFrames := framesFor(r.cfg.PauseThreshold, frameDur)
	phraseFrames := framesFor(r.cfg.PhraseTimeLimit, frameDur)

	var (
		preRoll  [][]int16
		samples  []int16
		waited   int
		spoken   int
		silent   int
		speaking bool
	)

	for {
		if err := ctx.Err(); err != nil {
			return audio.Utterance{}, err
		}

		frame, err := r.read()
		if err != nil {
			return audio.Utterance{}, err
		}
		r.onLevel(audio.Microphone, audio.Level(frame))
		loud := audio.RMS(frame) > r.threshold

		if !speaking {
			if !loud {
				waited++
				if listenFrames > 0 && waited >= listenFrames {
					return audio.Utterance{}, stt.ErrNoSpeech
				}
				preRoll = append(preRoll, frame)
				if len(preRoll) > preRollFrames {
					preRoll = preRoll[1:]
				}
				continue
			}
			speaking = true
			for _, f := range preRoll {
				samples = append(samples, f...)
			}
			preRoll = nil
		}

		samples = append(samples, frame...)
		spoken++
		if loud {
			silent = 0
		} else {
			silent++
		}

		if silent >= pauseFrames || (phraseFrames > 0 && spoken >= phraseFrames) {
			break
		}
	}

	utt := audio.Utterance{Samples: samples, SampleRate: r.cfg.SampleRate}
	r.logger.Debug("capture: utterance recorded",
		zap.Duration("duration", utt.Duration()),
		zap.Float64("threshold", r.threshold))
	return utt, nil
}

// calibrate raises the threshold above the ambient noise floor.
func (r *Recorder) calibrate(ctx context.Context) error {
	n := framesFor(r.cfg.CalibrationDuration, r.frameDuration())
	var total float64
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame, err := r.read()
		if err != nil {
			return err
		}
		total += audio.RMS(frame)
	}
	if n > 0 {
		if ambient := total / float64(n) * dynamicEnergyRatio; ambient > r.threshold {
			r.threshold = ambient
		}
	}
	r.calibrated = true
	r.logger.Info("capture: calibrated for ambient noise", zap.Float64("threshold", r.threshold))
	return nil
}

func (r *Recorder) read() ([]int16, error) {
	frame, err := r.src.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("capture: read: %w", err)
	}
	out := make([]int16, len(frame))
	copy(out, frame)
	return out, nil
}

func (r *Recorder) frameDuration() time.Duration {
	return time.Duration(r.cfg.FrameSize) * time.Second / time.Duration(r.cfg.SampleRate)
}

// framesFor rounds d up to a whole number of frames; 0 stays 0.
func framesFor(d, frame time.Duration) int {
	if d <= 0 || frame <= 0 {
		return 0
	}
	return int((d + frame - 1) / frame)
}
