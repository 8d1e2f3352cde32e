// Package playback decodes synthesized clips and plays them on the default
// output device.
package playback

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"

	"github.com/lukasbauer/vai0/internal/audio"
)

// Player plays one clip at a time.
type Player interface {
	// Play blocks until the clip has been played, unless the player runs
	// asynchronously, in which case it returns once playback has started.
	Play(ctx context.Context, clip audio.Clip) error
	Close() error
}

// PlaybackError wraps any failure to decode or output a clip. The turn
// still counts as completed.
type PlaybackError struct {
	Op  string // "decode" or "play"
	Err error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("playback: %s: %v", e.Op, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }

var (
	errEmptyClip = errors.New("empty clip")
	errEncoding  = errors.New("unsupported encoding")
)

// decode returns interleaved stereo signed 16-bit little-endian PCM and its
// sample rate, which is the layout the output device is opened with.
func decode(clip audio.Clip) (io.Reader, int, error) {
	if len(clip.Data) == 0 {
		return nil, 0, &PlaybackError{Op: "decode", Err: errEmptyClip}
	}

	switch clip.Encoding {
	case audio.EncodingMP3:
		d, err := mp3.NewDecoder(bytes.NewReader(clip.Data))
		if err != nil {
			return nil, 0, &PlaybackError{Op: "decode", Err: err}
		}
		return d, d.SampleRate(), nil
	case audio.EncodingPCM:
		if clip.SampleRate <= 0 {
			return nil, 0, &PlaybackError{Op: "decode", Err: fmt.Errorf("pcm clip without sample rate")}
		}
		return bytes.NewReader(monoToStereo(clip.Data)), clip.SampleRate, nil
	default:
		return nil, 0, &PlaybackError{Op: "decode", Err: fmt.Errorf("%w %q", errEncoding, clip.Encoding)}
	}
}

func monoToStereo(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, n*4)
	for i := 0; i < n; i++ {
		s := pcm[i*2 : i*2+2]
		copy(out[i*4:], s)
		copy(out[i*4+2:], s)
	}
	return out
}

// levelReader reports the level of every chunk the device pulls.
type levelReader struct {
	r       io.Reader
	onLevel audio.LevelFunc
}

func (l *levelReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	if n >= 2 {
		samples := make([]int16, n/2)
		for i := range samples {
			samples[i] = int16(binary.LittleEndian.Uint16(p[i*2:]))
		}
		l.onLevel(audio.Playback, audio.Level(samples))
	}
	return n, err
}
