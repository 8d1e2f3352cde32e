package voice

import (
	"sync/atomic"
	"time"

	"github.com/lukasbauer/vai0/internal/audio"
)

// State is the loop's position within a turn.
type State int

const (
	Idle State = iota
	Listening
	Transcribing
	Generating
	Synthesizing
	Playing
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Transcribing:
		return "transcribing"
	case Generating:
		return "generating"
	case Synthesizing:
		return "synthesizing"
	case Playing:
		return "playing"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Event is anything published to observers.
type Event interface {
	event()
}

// AmplitudeUpdate carries a 0-100 level from the microphone or playback.
type AmplitudeUpdate struct {
	Source audio.Source
	Level  int
	At     time.Time
}

// StateChanged is published on every transition.
type StateChanged struct {
	From State
	To   State
	At   time.Time
}

// TurnCompleted is published after a reply has been played (or its
// playback failed).
type TurnCompleted struct {
	Turn Turn
}

// TurnFailed is published when a turn is abandoned.
type TurnFailed struct {
	TurnID string
	Stage  State
	Err    error
	At     time.Time
}

func (AmplitudeUpdate) event() {}
func (StateChanged) event()    {}
func (TurnCompleted) event()   {}
func (TurnFailed) event()      {}

// Bus hands events to a single consumer over a bounded channel. Publish
// never blocks: when the buffer is full the event is dropped.
type Bus struct {
	ch      chan Event
	dropped atomic.Uint64
}

// NewBus creates a Bus buffering up to size events.
func NewBus(size int) *Bus {
	if size <= 0 {
		size = 256
	}
	return &Bus{ch: make(chan Event, size)}
}

// Publish offers ev to the consumer. A nil Bus discards everything.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	select {
	case b.ch <- ev:
	default:
		b.dropped.Add(1)
	}
}

// Level is an audio.LevelFunc that publishes AmplitudeUpdate events.
func (b *Bus) Level(src audio.Source, level int) {
	b.Publish(AmplitudeUpdate{Source: src, Level: level, At: time.Now()})
}

// Events returns the receive side. There must be at most one consumer.
func (b *Bus) Events() <-chan Event { return b.ch }

// Dropped reports how many events were discarded.
func (b *Bus) Dropped() uint64 {
	if b == nil {
		return 0
	}
	return b.dropped.Load()
}
