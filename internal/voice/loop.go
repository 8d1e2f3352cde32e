// Package voice runs the listen, transcribe, generate, synthesize and play
// cycle one turn at a time.
package voice

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lukasbauer/vai0/internal/audio"
	"github.com/lukasbauer/vai0/internal/costs"
	"github.com/lukasbauer/vai0/internal/eventlog"
	"github.com/lukasbauer/vai0/internal/llm"
	"github.com/lukasbauer/vai0/internal/playback"
	"github.com/lukasbauer/vai0/internal/stt"
	"github.com/lukasbauer/vai0/internal/tts"
)

// Recorder captures one utterance.
type Recorder interface {
	Record(ctx context.Context) (audio.Utterance, error)
}

// Reporter forwards turn errors to an external monitor.
type Reporter interface {
	Report(err error, tags map[string]string)
}

// CaptureError means the microphone itself failed. Unlike the other turn
// errors it stops the loop, since every following turn would fail the same way.
type CaptureError struct {
	Err error
}

func (e *CaptureError) Error() string { return fmt.Sprintf("capture: %v", e.Err) }

func (e *CaptureError) Unwrap() error { return e.Err }

// Turn is one completed exchange.
type Turn struct {
	ID          string
	Transcript  stt.Transcript
	Reply       llm.Reply
	Truncated   bool
	PlaybackErr error
	Started     time.Time
	Finished    time.Time
}

// Config holds the loop settings taken from the application config.
type Config struct {
	Language       stt.Language
	HistoryEnabled bool
	Paused         bool // wait in Idle for Start before the first turn
}

// Deps are the collaborators of a Loop. Bus, Events, Usage and Reporter
// are optional; without a Bus nothing is published.
type Deps struct {
	Recorder Recorder
	STT      stt.Client
	LLM      llm.Client
	TTS      tts.Client
	Player   playback.Player
	Bus      *Bus
	Events   *eventlog.Logger
	Usage    *costs.Session
	Reporter Reporter
	Logger   *zap.Logger
}

// Loop is the orchestration state machine. Run and Step must be called
// from one goroutine; State, History, Bus, Start, Stop and Running are safe
// to call from others.
type Loop struct {
	cfg      Config
	rec      Recorder
	stt      stt.Client
	llm      llm.Client
	tts      tts.Client
	player   playback.Player
	bus      *Bus
	events   *eventlog.Logger
	usage    *costs.Session
	reporter Reporter
	logger   *zap.Logger

	state   atomic.Int32
	history History
	ctl     *control
}

// waiter is implemented by players that return from Play before the clip
// has finished.
type waiter interface {
	Wait(ctx context.Context) error
}

// New creates a Loop in the Idle state.
func New(cfg Config, deps Deps) *Loop {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Events == nil {
		deps.Events = eventlog.New(deps.Logger)
	}
	if deps.Usage == nil {
		deps.Usage = costs.NewSession(costs.DefaultRates())
	}
	return &Loop{
		cfg:      cfg,
		rec:      deps.Recorder,
		stt:      deps.STT,
		llm:      deps.LLM,
		tts:      deps.TTS,
		player:   deps.Player,
		bus:      deps.Bus,
		events:   deps.Events,
		usage:    deps.Usage,
		reporter: deps.Reporter,
		logger:   deps.Logger,
		ctl:      newControl(!cfg.Paused),
	}
}

// State returns the current state.
func (l *Loop) State() State { return State(l.state.Load()) }

// History returns a copy of every exchange so far.
func (l *Loop) History() []llm.Message { return l.history.Messages() }

// Bus returns the event bus the loop publishes to, possibly nil.
func (l *Loop) Bus() *Bus { return l.bus }

// Run executes turns until ctx is cancelled (returns nil) or a halting
// error occurs: an authentication failure from synthesis or a microphone
// failure, which is returned. While stopped it waits in Idle.
func (l *Loop) Run(ctx context.Context) error {
	defer l.setState(Stopped)
	defer l.ctl.release()
	l.logger.Info("voice loop started",
		zap.String("language", string(l.cfg.Language)),
		zap.Bool("history", l.cfg.HistoryEnabled),
		zap.Bool("running", l.Running()))

	for {
		if ctx.Err() != nil {
			l.summarize()
			return nil
		}

		session, changed := l.ctl.acquire(ctx)
		if session == nil {
			l.setState(Idle)
			select {
			case <-ctx.Done():
			case <-changed:
			}
			continue
		}

		_, err := l.Step(session)
		if err == nil || errors.Is(err, stt.ErrNoSpeech) {
			continue
		}
		if ctx.Err() != nil {
			l.summarize()
			return nil
		}
		if session.Err() != nil {
			continue // stopped mid-turn
		}
		if halts(err) {
			l.events.Log("", eventlog.EventLoopHalted, map[string]any{"kind": errorKind(err)})
			l.summarize()
			return err
		}
	}
}

// Step runs exactly one turn. stt.ErrNoSpeech means nothing was heard and
// the loop stays in Listening; any other error has already been reported.
func (l *Loop) Step(ctx context.Context) (Turn, error) {
	turn := Turn{ID: uuid.NewString()}

	// The microphone must not pick up a reply that is still playing.
	if w, ok := l.player.(waiter); ok {
		if err := w.Wait(ctx); err != nil {
			return turn, err
		}
	}

	l.setState(Listening)
	utt, err := l.rec.Record(ctx)
	if err != nil {
		if errors.Is(err, stt.ErrNoSpeech) {
			return turn, err
		}
		return turn, l.fail(ctx, turn, Listening, &CaptureError{Err: err})
	}
	turn.Started = time.Now()
	l.events.Log(turn.ID, eventlog.EventTurnStarted, map[string]any{
		"audio_ms": utt.Duration().Milliseconds(),
	})

	l.setState(Transcribing)
	transcript, err := l.stt.Transcribe(ctx, utt, l.cfg.Language)
	l.usage.Add(costs.Usage{STTSeconds: utt.Duration().Seconds()})
	if err != nil {
		if errors.Is(err, stt.ErrNoSpeech) {
			l.events.Log(turn.ID, eventlog.EventSTTResult, map[string]any{"empty": true})
			l.setState(Listening)
			return turn, err
		}
		return turn, l.fail(ctx, turn, Transcribing, err)
	}
	turn.Transcript = transcript
	l.events.Log(turn.ID, eventlog.EventSTTResult, map[string]any{
		"text":       transcript.Text,
		"language":   string(transcript.Language),
		"confidence": transcript.Confidence,
	})

	l.setState(Generating)
	var history []llm.Message
	if l.cfg.HistoryEnabled {
		history = l.history.Messages()
	}
	started := time.Now()
	reply, err := l.llm.Generate(ctx, transcript.Text, history)
	if err != nil {
		if ctx.Err() == nil {
			l.events.Log(turn.ID, eventlog.EventLLMError, map[string]any{"error": err.Error()})
		}
		return turn, l.fail(ctx, turn, Generating, err)
	}
	turn.Reply = reply
	l.usage.Add(costs.Usage{LLMInputTokens: reply.PromptTokens, LLMOutputTokens: reply.CompletionTokens})
	l.events.Log(turn.ID, eventlog.EventLLMCompleted, map[string]any{
		"model":             reply.Model,
		"latency_ms":        time.Since(started).Milliseconds(),
		"prompt_tokens":     reply.PromptTokens,
		"completion_tokens": reply.CompletionTokens,
		"history_messages":  len(history),
	})

	l.setState(Synthesizing)
	clip, err := l.tts.Synthesize(ctx, reply.Text)
	if err != nil {
		return turn, l.fail(ctx, turn, Synthesizing, err)
	}
	turn.Truncated = clip.Truncated
	l.usage.Add(costs.Usage{TTSCharacters: clip.Characters})
	l.events.Log(turn.ID, eventlog.EventTTSCompleted, map[string]any{
		"bytes":      len(clip.Data),
		"characters": clip.Characters,
		"truncated":  clip.Truncated,
	})
	if clip.Truncated {
		l.logger.Warn("reply was truncated before synthesis", zap.String("turn_id", turn.ID))
	}

	l.setState(Playing)
	if err := l.player.Play(ctx, clip); err != nil {
		var pbErr *playback.PlaybackError
		if ctx.Err() != nil || !errors.As(err, &pbErr) {
			return turn, l.fail(ctx, turn, Playing, err)
		}
		turn.PlaybackErr = err
		l.events.Log(turn.ID, eventlog.EventPlaybackError, map[string]any{"error": err.Error()})
		l.report(err, turn.ID, Playing)
	}

	l.history.Append(transcript.Text, reply.Text)
	l.usage.CompleteTurn()
	turn.Finished = time.Now()
	l.events.Log(turn.ID, eventlog.EventTurnCompleted, map[string]any{
		"duration_ms": turn.Finished.Sub(turn.Started).Milliseconds(),
		"reply":       reply.Text,
	})
	l.bus.Publish(TurnCompleted{Turn: turn})
	l.setState(Idle)
	return turn, nil
}

// fail reports a turn error and returns the loop to Idle. Errors caused by
// shutdown are passed back without being reported.
func (l *Loop) fail(ctx context.Context, turn Turn, stage State, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	l.events.Log(turn.ID, eventlog.EventTurnFailed, map[string]any{
		"stage": stage.String(),
		"error": err.Error(),
		"kind":  errorKind(err),
	})
	l.report(err, turn.ID, stage)
	l.bus.Publish(TurnFailed{TurnID: turn.ID, Stage: stage, Err: err, At: time.Now()})
	l.setState(Idle)
	return err
}

func (l *Loop) report(err error, turnID string, stage State) {
	if l.reporter == nil {
		return
	}
	l.reporter.Report(err, map[string]string{
		"turn_id": turnID,
		"stage":   stage.String(),
		"kind":    errorKind(err),
	})
}

func (l *Loop) setState(s State) {
	prev := State(l.state.Swap(int32(s)))
	if prev == s {
		return
	}
	l.logger.Debug("state changed", zap.Stringer("from", prev), zap.Stringer("to", s))
	l.bus.Publish(StateChanged{From: prev, To: s, At: time.Now()})
}

func (l *Loop) summarize() {
	usage, turns := l.usage.Snapshot()
	c := l.usage.Costs()
	l.events.Log("", eventlog.EventSessionSummary, map[string]any{
		"turns":          turns,
		"history":        l.history.Len(),
		"stt_seconds":    usage.STTSeconds,
		"tts_characters": usage.TTSCharacters,
		"llm_tokens":     usage.LLMInputTokens + usage.LLMOutputTokens,
		"cost_cents":     c.TotalCostCents,
		"events_dropped": l.bus.Dropped(),
	})
}

// halts reports whether err should stop the loop.
func halts(err error) bool {
	var authErr *tts.AuthError
	var capErr *CaptureError
	return errors.As(err, &authErr) || errors.As(err, &capErr)
}

// errorKind names err's place in the error taxonomy.
func errorKind(err error) string {
	var (
		recErr   *stt.RecognitionError
		modelErr *llm.ModelUnavailableError
		quotaErr *tts.QuotaExceededError
		authErr  *tts.AuthError
		longErr  *tts.TextTooLongError
		pbErr    *playback.PlaybackError
		capErr   *CaptureError
	)
	switch {
	case errors.Is(err, stt.ErrNoSpeech):
		return "no_speech"
	case errors.As(err, &recErr):
		return "recognition"
	case errors.As(err, &modelErr):
		return "model_unavailable"
	case errors.As(err, &quotaErr):
		return "quota_exceeded"
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &longErr):
		return "text_too_long"
	case errors.As(err, &pbErr):
		return "playback"
	case errors.As(err, &capErr):
		return "capture"
	default:
		return "other"
	}
}
