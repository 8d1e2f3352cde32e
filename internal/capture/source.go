package capture

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Source delivers fixed-size frames of mono PCM16 from an input device.
type Source interface {
	// Start begins capturing. Frames read before Start are undefined.
	Start() error
	// ReadFrame blocks until the next frame is available. The returned slice
	// is only valid until the next call.
	ReadFrame() ([]int16, error)
	// Stop pauses capturing so no audio is buffered between turns.
	Stop() error
	Close() error
}

// PortAudioSource reads from a PortAudio input device.
type PortAudioSource struct {
	stream *portaudio.Stream
	buf    []int16
}

// OpenPortAudio opens input device deviceIndex (-1 for the default device)
// as a mono stream at sampleRate with frameSize samples per read.
func OpenPortAudio(deviceIndex, sampleRate, frameSize int) (*PortAudioSource, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	dev, err := inputDevice(deviceIndex)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, err
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = frameSize

	buf := make([]int16, frameSize)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open input device %q: %w", dev.Name, err)
	}

	return &PortAudioSource{stream: stream, buf: buf}, nil
}

func inputDevice(index int) (*portaudio.DeviceInfo, error) {
	if index < 0 {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("no default input device: %w", err)
		}
		return dev, nil
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	if index >= len(devices) {
		return nil, fmt.Errorf("microphone index %d out of range (%d devices)", index, len(devices))
	}
	dev := devices[index]
	if dev.MaxInputChannels < 1 {
		return nil, fmt.Errorf("device %d (%s) has no input channels", index, dev.Name)
	}
	return dev, nil
}

func (s *PortAudioSource) Start() error { return s.stream.Start() }

func (s *PortAudioSource) ReadFrame() ([]int16, error) {
	if err := s.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return nil, err
	}
	return s.buf, nil
}

func (s *PortAudioSource) Stop() error { return s.stream.Stop() }

// Close closes the stream and terminates PortAudio.
func (s *PortAudioSource) Close() error {
	err := s.stream.Close()
	if terr := portaudio.Terminate(); err == nil {
		err = terr
	}
	return err
}
