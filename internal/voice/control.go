package voice

import (
	"context"
	"sync"

	"github.com/lukasbauer/vai0/internal/eventlog"
)

// control gates Run between turns. While running, turns share one session
// context that Stop cancels.
type control struct {
	mu      sync.Mutex
	running bool
	changed chan struct{} // closed and replaced on every change
	session context.Context
	cancel  context.CancelFunc
}

func newControl(running bool) *control {
	return &control{running: running, changed: make(chan struct{})}
}

// set reports whether the state changed.
func (c *control) set(running bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running == running {
		return false
	}
	c.running = running
	if !running {
		c.endSessionLocked()
	}
	close(c.changed)
	c.changed = make(chan struct{})
	return true
}

func (c *control) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// acquire returns the session context derived from parent while running.
// Otherwise it returns a nil context and a channel closed on the next change.
func (c *control) acquire(parent context.Context) (context.Context, <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil, c.changed
	}
	if c.session == nil {
		c.session, c.cancel = context.WithCancel(parent)
	}
	return c.session, nil
}

func (c *control) release() {
	c.mu.Lock()
	c.endSessionLocked()
	c.mu.Unlock()
}

func (c *control) endSessionLocked() {
	if c.cancel != nil {
		c.cancel()
	}
	c.session, c.cancel = nil, nil
}

// Start lets Run take turns. It does nothing while already running.
func (l *Loop) Start() {
	if l.ctl.set(true) {
		l.events.Log("", eventlog.EventLoopResumed, nil)
	}
}

// Stop abandons the turn in progress, including clips still playing
// asynchronously, and parks Run in Idle until Start. The microphone is not
// read while stopped.
func (l *Loop) Stop() {
	if l.ctl.set(false) {
		l.events.Log("", eventlog.EventLoopPaused, nil)
	}
}

// Running reports whether Run is taking turns rather than waiting for Start.
func (l *Loop) Running() bool { return l.ctl.isRunning() }
