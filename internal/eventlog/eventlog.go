// Package eventlog writes one structured log line per turn event.
package eventlog

import (
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EventType represents the type of turn event
type EventType string

const (
	EventTurnStarted    EventType = "turn_started"
	EventSTTResult      EventType = "stt_result"
	EventLLMCompleted   EventType = "llm_completed"
	EventLLMError       EventType = "llm_error"
	EventTTSCompleted   EventType = "tts_completed"
	EventPlaybackError  EventType = "playback_error"
	EventTurnCompleted  EventType = "turn_completed"
	EventTurnFailed     EventType = "turn_failed"
	EventLoopHalted     EventType = "loop_halted"
	EventLoopPaused     EventType = "loop_paused"
	EventLoopResumed    EventType = "loop_resumed"
	EventSessionSummary EventType = "session_summary"
)

// Logger writes turn events through zap.
type Logger struct {
	logger *zap.Logger
}

// New creates a new event logger. A nil logger discards events.
func New(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger.Named("events")}
}

// Log writes an event. Keys of data become log fields in sorted order.
func (l *Logger) Log(turnID string, eventType EventType, data map[string]any) {
	if l == nil {
		return
	}

	fields := make([]zap.Field, 0, len(data)+2)
	fields = append(fields, zap.String("event", string(eventType)))
	if turnID != "" {
		fields = append(fields, zap.String("turn_id", turnID))
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, zap.Any(k, data[k]))
	}

	if ce := l.logger.Check(levelFor(eventType), string(eventType)); ce != nil {
		ce.Write(fields...)
	}
}

func levelFor(eventType EventType) zapcore.Level {
	switch eventType {
	case EventLLMError, EventPlaybackError, EventTurnFailed:
		return zapcore.WarnLevel
	case EventLoopHalted:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
