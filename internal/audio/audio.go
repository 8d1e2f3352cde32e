// Package audio holds the buffers passed between the capture, recognition,
// synthesis and playback legs of a turn.
package audio

import (
	"encoding/binary"
	"time"
)

// Utterance is mono signed 16-bit PCM captured from the microphone.
type Utterance struct {
	Samples    []int16
	SampleRate int
}

// Duration is the playing time of the captured samples.
func (u Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.Samples)) * time.Second / time.Duration(u.SampleRate)
}

// PCM16LE returns the samples as little-endian bytes (LINEAR16).
func (u Utterance) PCM16LE() []byte {
	out := make([]byte, len(u.Samples)*2)
	for i, s := range u.Samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Encoding names used in Clip.Encoding.
const (
	EncodingMP3 = "mp3"
	EncodingPCM = "pcm_s16le"
)

// Clip is synthesized speech. It is played once and dropped.
type Clip struct {
	Data       []byte
	Encoding   string
	SampleRate int
	// Truncated is set when the reply text was cut to the provider limit.
	Truncated bool
	// Characters is the billed length of the text sent for synthesis; zero
	// when nothing was sent.
	Characters int
}

// Source identifies where a level sample came from.
type Source string

const (
	Microphone Source = "microphone"
	Playback   Source = "playback"
)

// LevelFunc receives level samples in the range 0-100. Implementations must
// not block.
type LevelFunc func(src Source, level int)
