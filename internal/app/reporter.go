package app

import (
	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

// SentryReporter sends turn errors to Sentry, tagged with the turn and stage.
type SentryReporter struct {
	hub    *sentry.Hub
	logger *zap.Logger
}

// NewSentryReporter reports through hub, or the global hub when nil.
func NewSentryReporter(hub *sentry.Hub, logger *zap.Logger) *SentryReporter {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &SentryReporter{hub: hub, logger: logger}
}

// Report captures err with tags on a fresh scope.
func (r *SentryReporter) Report(err error, tags map[string]string) {
	if err == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		if id := r.hub.CaptureException(err); id != nil {
			r.logger.Debug("reported to sentry", zap.String("event_id", string(*id)))
		}
	})
}
