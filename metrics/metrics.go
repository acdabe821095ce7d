// Package metrics exposes session activity as Prometheus collectors.
//
// Sink implements session.ActivitySink. It registers its collectors on the
// Registerer it is given and never on the global registry.
package metrics

import (
	"context"
	"io"
	"net/http"

	session "github.com/goliatone/go-auth-session"
	goerrors "github.com/goliatone/go-errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

const namespace = "auth_session"

// Sink counts activity events by type and tracks the current state.
type Sink struct {
	events      *prometheus.CounterVec
	initRetries prometheus.Counter
	clears      *prometheus.CounterVec
	state       *prometheus.GaugeVec
}

var _ session.ActivitySink = (*Sink)(nil)

// NewSink creates the collectors and registers them on reg.
func NewSink(reg prometheus.Registerer) (*Sink, error) {
	s := &Sink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Session activity events by type.",
		}, []string{"event"}),
		initRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "init_retries_total",
			Help:      "Initialization attempts that failed with a server error and no cached profile.",
		}),
		clears: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clears_total",
			Help:      "Session clears by reason.",
		}, []string{"reason"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "1 for the current session state, 0 otherwise.",
		}, []string{"state"}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{s.events, s.initRetries, s.clears, s.state} {
			if err := reg.Register(c); err != nil {
				return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to register session metrics")
			}
		}
	}

	return s, nil
}

// Record implements session.ActivitySink.
func (s *Sink) Record(_ context.Context, event session.ActivityEvent) error {
	s.events.WithLabelValues(string(event.EventType)).Inc()

	switch event.EventType {
	case session.ActivityEventInitRetry:
		s.initRetries.Inc()
	case session.ActivityEventCleared:
		reason, _ := event.Metadata["reason"].(string)
		if reason == "" {
			reason = "unknown"
		}
		s.clears.WithLabelValues(reason).Inc()
	}

	if event.ToState != "" {
		s.setState(event.ToState)
	}
	return nil
}

func (s *Sink) setState(current session.State) {
	for _, st := range []session.State{
		session.StateUninitialized,
		session.StateInitializing,
		session.StateAuthenticated,
		session.StateAnonymous,
		session.StateDegradedCached,
	} {
		v := 0.0
		if st == current {
			v = 1
		}
		s.state.WithLabelValues(string(st)).Set(v)
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// WriteText writes the metrics gathered by g in the text exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to gather metrics")
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode metrics")
		}
	}
	return nil
}

// InitRetries exposes the retry counter, mostly for tests.
func (s *Sink) InitRetries() prometheus.Counter { return s.initRetries }

// StateGauge returns the gauge of one state label.
func (s *Sink) StateGauge(st session.State) prometheus.Gauge {
	return s.state.WithLabelValues(string(st))
}
