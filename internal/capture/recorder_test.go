package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lukasbauer/vai0/internal/audio"
	"github.com/lukasbauer/vai0/internal/stt"
)

// scriptedSource plays back frames in order, then silence forever.
type scriptedSource struct {
	frames  [][]int16
	size    int
	reads   int
	starts  int
	stops   int
	readErr error
}

func (s *scriptedSource) Start() error { s.starts++; return nil }
func (s *scriptedSource) Stop() error  { s.stops++; return nil }
func (s *scriptedSource) Close() error { return nil }

func (s *scriptedSource) ReadFrame() ([]int16, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	s.reads++
	if len(s.frames) > 0 {
		f := s.frames[0]
		s.frames = s.frames[1:]
		return f, nil
	}
	return make([]int16, s.size), nil
}

func tone(amplitude int16, n int) []int16 {
	f := make([]int16, n)
	for i := range f {
		if i%2 == 0 {
			f[i] = amplitude
		} else {
			f[i] = -amplitude
		}
	}
	return f
}

func frames(amplitude int16, count int) [][]int16 {
	out := make([][]int16, count)
	for i := range out {
		out[i] = tone(amplitude, 10)
	}
	return out
}

// 1000 Hz with 10-sample frames gives 10ms per frame.
func testConfig() RecorderConfig {
	return RecorderConfig{
		SampleRate:      1000,
		FrameSize:       10,
		ListenTimeout:   100 * time.Millisecond,
		PauseThreshold:  30 * time.Millisecond,
		EnergyThreshold: 300,
	}
}

func TestRecord_SilenceTimesOut(t *testing.T) {
	src := &scriptedSource{size: 10}
	r := NewRecorder(src, testConfig(), zap.NewNop(), nil)

	_, err := r.Record(context.Background())
	require.ErrorIs(t, err, stt.ErrNoSpeech)
	assert.Equal(t, 10, src.reads)
	assert.Equal(t, 1, src.starts)
	assert.Equal(t, 1, src.stops)
}

func TestRecord_StopsAfterPause(t *testing.T) {
	script := append(frames(0, 2), frames(1000, 5)...)
	src := &scriptedSource{frames: script, size: 10}
	r := NewRecorder(src, testConfig(), zap.NewNop(), nil)

	utt, err := r.Record(context.Background())
	require.NoError(t, err)

	// 2 pre-roll + 5 speech + 3 trailing silence
	assert.Len(t, utt.Samples, 100)
	assert.Equal(t, 1000, utt.SampleRate)
	assert.Equal(t, 100*time.Millisecond, utt.Duration())
	assert.Equal(t, 1, src.stops)
}

func TestRecord_PhraseTimeLimit(t *testing.T) {
	cfg := testConfig()
	cfg.PhraseTimeLimit = 50 * time.Millisecond
	src := &scriptedSource{frames: frames(1000, 20), size: 10}
	r := NewRecorder(src, cfg, zap.NewNop(), nil)

	utt, err := r.Record(context.Background())
	require.NoError(t, err)
	assert.Len(t, utt.Samples, 50)
}

func TestRecord_ShortDipDoesNotEndUtterance(t *testing.T) {
	script := append(frames(1000, 2), frames(0, 2)...)
	script = append(script, frames(1000, 2)...)
	src := &scriptedSource{frames: script, size: 10}
	r := NewRecorder(src, testConfig(), zap.NewNop(), nil)

	utt, err := r.Record(context.Background())
	require.NoError(t, err)
	// 6 scripted frames + 3 trailing silence
	assert.Len(t, utt.Samples, 90)
}

func TestRecord_CalibrationRaisesThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.CalibrationDuration = 20 * time.Millisecond
	// ambient 400 -> threshold 600, so 500 is treated as silence
	script := append(frames(400, 2), frames(500, 20)...)
	src := &scriptedSource{frames: script, size: 10}
	r := NewRecorder(src, cfg, zap.NewNop(), nil)

	_, err := r.Record(context.Background())
	require.ErrorIs(t, err, stt.ErrNoSpeech)
	assert.InDelta(t, 600.0, r.Threshold(), 0.001)

	// calibration runs once per recorder
	src.frames = frames(1000, 1)
	utt, err := r.Record(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, utt.Samples)
}

func TestRecord_CalibrationNeverLowersThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.CalibrationDuration = 20 * time.Millisecond
	src := &scriptedSource{size: 10}
	r := NewRecorder(src, cfg, zap.NewNop(), nil)

	_, _ = r.Record(context.Background())
	assert.Equal(t, 300.0, r.Threshold())
}

func TestRecord_ReportsLevels(t *testing.T) {
	var levels []int
	src := &scriptedSource{frames: frames(1000, 1), size: 10}
	r := NewRecorder(src, testConfig(), zap.NewNop(), func(s audio.Source, level int) {
		assert.Equal(t, audio.Microphone, s)
		levels = append(levels, level)
	})

	_, err := r.Record(context.Background())
	require.NoError(t, err)
	require.Len(t, levels, 4)
	assert.Equal(t, 10, levels[0])
	assert.Equal(t, 0, levels[1])
}

func TestRecord_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &scriptedSource{size: 10}
	r := NewRecorder(src, testConfig(), zap.NewNop(), nil)

	_, err := r.Record(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, src.stops)
}

func TestRecord_ReadError(t *testing.T) {
	boom := errors.New("device unplugged")
	src := &scriptedSource{size: 10, readErr: boom}
	r := NewRecorder(src, testConfig(), zap.NewNop(), nil)

	_, err := r.Record(context.Background())
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, stt.ErrNoSpeech)
}

func TestFrameSize(t *testing.T) {
	assert.Equal(t, 480, FrameSize(16000))
	assert.Equal(t, 240, FrameSize(8000))
}

func TestFramesFor(t *testing.T) {
	assert.Equal(t, 0, framesFor(0, 10*time.Millisecond))
	assert.Equal(t, 3, framesFor(30*time.Millisecond, 10*time.Millisecond))
	assert.Equal(t, 4, framesFor(31*time.Millisecond, 10*time.Millisecond))
}
