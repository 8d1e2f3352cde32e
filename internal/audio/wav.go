package audio

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// IntBuffer converts the utterance to a go-audio buffer.
func (u Utterance) IntBuffer() *goaudio.IntBuffer {
	data := make([]int, len(u.Samples))
	for i, s := range u.Samples {
		data[i] = int(s)
	}
	return &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: u.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
}

// WriteWAV encodes the utterance as a 16-bit mono WAV file.
func (u Utterance) WriteWAV(w io.WriteSeeker) error {
	enc := wav.NewEncoder(w, u.SampleRate, 16, 1, 1)
	if err := enc.Write(u.IntBuffer()); err != nil {
		return fmt.Errorf("failed to write wav: %w", err)
	}
	return enc.Close()
}
