// Package metrics exports Prometheus collectors for sessions and
// capability invocations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hjlabs/hjmcpsse/protocol"
	"github.com/hjlabs/hjmcpsse/server"
	"github.com/hjlabs/hjmcpsse/session"
)

const namespace = "hjmcpsse"

// Collector records session and invocation metrics. It implements
// server.Observer and session.Observer.
type Collector struct {
	sessionsActive      prometheus.Gauge
	sessionsTotal       prometheus.Counter
	invocations         *prometheus.CounterVec
	invocationErrors    *prometheus.CounterVec
	invocationDurations *prometheus.HistogramVec
}

// New registers the collectors with registerer, or the default registerer
// when nil.
func New(registerer prometheus.Registerer) *Collector {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Collector{
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Current number of open sessions",
		}),
		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of sessions opened",
		}),
		invocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocations_total",
			Help:      "Total number of capability invocations",
		}, []string{"kind", "name", "status"}),
		invocationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocation_errors_total",
			Help:      "Failed capability invocations by error kind",
		}, []string{"kind", "error_kind"}),
		invocationDurations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invocation_duration_seconds",
			Help:      "Duration of capability invocations in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"kind"}),
	}
}

// ObserveInvocation records one dispatcher result. Names of unknown
// capabilities come from clients, so they are folded into one label.
func (c *Collector) ObserveInvocation(kind server.Kind, name string, status server.Status, errKind protocol.Kind, d time.Duration) {
	if errKind == protocol.KindUnknownCapability {
		name = "unknown"
	}
	c.invocations.WithLabelValues(string(kind), name, string(status)).Inc()
	if status == server.StatusError {
		c.invocationErrors.WithLabelValues(string(kind), string(errKind)).Inc()
	}
	c.invocationDurations.WithLabelValues(string(kind)).Observe(d.Seconds())
}

// SessionOpened records a new session.
func (c *Collector) SessionOpened() {
	c.sessionsTotal.Inc()
	c.sessionsActive.Inc()
}

// SessionClosed records a finished session.
func (c *Collector) SessionClosed() {
	c.sessionsActive.Dec()
}

var (
	_ server.Observer  = (*Collector)(nil)
	_ session.Observer = (*Collector)(nil)
)
