// Package metrics exposes the session lifecycle as prometheus metrics.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adminshell/adminshell/internal/session"
)

// Sessions counts session events and tracks the live session managers.
// It is a session.EventSink.
type Sessions struct {
	events   *prometheus.CounterVec
	managers prometheus.Gauge
}

var _ session.EventSink = (*Sessions)(nil)

// New registers the session metrics on reg.
func New(reg prometheus.Registerer, service string) *Sessions {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"service": service}

	return &Sessions{
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "session_events_total",
			Help:        "Number of session lifecycle events, by operation and outcome.",
			ConstLabels: labels,
		}, []string{"op", "outcome"}),
		managers: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "session_managers",
			Help:        "Number of browser session managers held in memory.",
			ConstLabels: labels,
		}),
	}
}

// Record implements session.EventSink.
func (s *Sessions) Record(_ context.Context, ev session.Event) {
	s.events.WithLabelValues(ev.Op, ev.Outcome).Inc()
}

// SetManagers sets the number of live session managers.
func (s *Sessions) SetManagers(n int) {
	s.managers.Set(float64(n))
}

// Handler serves the metrics of g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
