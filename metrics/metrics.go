// Package metrics holds the Prometheus collectors:
//
//	goldpair_events_total{kind}            events emitted by the engine
//	goldpair_admissions_total{result}      webhook entries by admission result
//	goldpair_webhook_requests_total{status} webhook responses by HTTP status
//	goldpair_broker_errors_total{op}       swallowed broker faults
//	goldpair_open_pairs                    pairs currently tracked
//	goldpair_frozen                        1 while the market is frozen
//	goldpair_atr                           latest 5m ATR
//	goldpair_tick_duration_seconds         time spent in one tick cycle
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rustyeddy/goldpair/events"
)

type Metrics struct {
	Events        *prometheus.CounterVec
	Admissions    *prometheus.CounterVec
	WebhookStatus *prometheus.CounterVec
	BrokerErrors  *prometheus.CounterVec
	OpenPairs     prometheus.Gauge
	Frozen        prometheus.Gauge
	ATR           prometheus.Gauge
	TickDuration  prometheus.Histogram
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goldpair_events_total",
			Help: "Events emitted by the engine",
		}, []string{"kind"}),
		Admissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goldpair_admissions_total",
			Help: "Entry signals by admission result",
		}, []string{"result"}),
		WebhookStatus: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goldpair_webhook_requests_total",
			Help: "Webhook responses by HTTP status",
		}, []string{"status"}),
		BrokerErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goldpair_broker_errors_total",
			Help: "Broker faults absorbed by the engine",
		}, []string{"op"}),
		OpenPairs: f.NewGauge(prometheus.GaugeOpts{
			Name: "goldpair_open_pairs",
			Help: "Pairs currently tracked",
		}),
		Frozen: f.NewGauge(prometheus.GaugeOpts{
			Name: "goldpair_frozen",
			Help: "1 while the market is frozen",
		}),
		ATR: f.NewGauge(prometheus.GaugeOpts{
			Name: "goldpair_atr",
			Help: "Latest ATR on the 5m series",
		}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "goldpair_tick_duration_seconds",
			Help:    "Time spent handling one price tick",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}),
	}
}

// Emit counts events; it makes Metrics an events.Sink.
func (m *Metrics) Emit(_ context.Context, e events.Event) {
	m.Events.WithLabelValues(string(e.Kind)).Inc()
	switch e.Kind {
	case events.MarketFrozen:
		m.Frozen.Set(1)
	case events.MarketResumed:
		m.Frozen.Set(0)
	}
}

// BrokerError matches pairs.WithBrokerErrorHook.
func (m *Metrics) BrokerError(op string, _ error) {
	m.BrokerErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) Admission(result string) {
	m.Admissions.WithLabelValues(result).Inc()
}

func (m *Metrics) Webhook(status int) {
	m.WebhookStatus.WithLabelValues(strconv.Itoa(status)).Inc()
}

func (m *Metrics) ObserveTick(start time.Time) {
	m.TickDuration.Observe(time.Since(start).Seconds())
}
