package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/adminshell/adminshell/internal/logger"
)

// Operation names used in events.
const (
	OpLogin    = "login"
	OpCallback = "callback"
	OpLogout   = "logout"
	OpRenew    = "renew"
	OpExpired  = "expired"
)

// Event outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Event describes one step of the session lifecycle.
type Event struct {
	Op      string
	Outcome string
	Subject string
	Detail  string
}

// EventSink receives lifecycle events. Record must not block for long.
type EventSink interface {
	Record(ctx context.Context, ev Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, ev Event)

// Record calls f.
func (f EventSinkFunc) Record(ctx context.Context, ev Event) { f(ctx, ev) }

type options struct {
	reinit       ReinitPolicy
	renewFailure RenewFailurePolicy
	sinks        []EventSink
	now          func() time.Time
	log          zerolog.Logger
}

func defaultOptions() options {
	return options{
		reinit:       ReinitIgnore,
		renewFailure: RenewRelogin,
		now:          time.Now,
		log:          *logger.Component("session"),
	}
}

// Option configures a Manager.
type Option func(*options)

// WithReinitPolicy sets the behavior of a second Initialize call. Unknown values keep the default.
func WithReinitPolicy(p ReinitPolicy) Option {
	return func(o *options) {
		if p == ReinitIgnore || p == ReinitReplace {
			o.reinit = p
		}
	}
}

// WithRenewFailurePolicy sets the behavior after a failed silent renew. Unknown values keep the default.
func WithRenewFailurePolicy(p RenewFailurePolicy) Option {
	return func(o *options) {
		if p == RenewRelogin || p == RenewStale {
			o.renewFailure = p
		}
	}
}

// WithEventSink adds a receiver for lifecycle events.
func WithEventSink(sink EventSink) Option {
	return func(o *options) {
		if sink != nil {
			o.sinks = append(o.sinks, sink)
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}
