package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "enhancer"

// connectionStates lists every state label the state gauge reports.
var connectionStates = []string{"idle", "connecting", "open", "closing", "closed", "reconnecting"}

// Metrics holds the client's collectors. It satisfies connection.Observer
// and jobs.Observer.
type Metrics struct {
	registry prometheus.Gatherer

	state          *prometheus.GaugeVec
	reconnects     prometheus.Counter
	backoffDelay   prometheus.Gauge
	framesSent     prometheus.Counter
	bytesSent      prometheus.Counter
	framesReceived prometheus.Counter
	bytesReceived  prometheus.Counter
	decodeFailures prometheus.Counter
	transportErrs  prometheus.Counter

	jobsSubmitted *prometheus.CounterVec
	jobsFinished  *prometheus.CounterVec
	jobsResent    prometheus.Counter
	jobLatency    *prometheus.HistogramVec
}

// New creates and registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := newMetrics(reg)
	m.registry = reg
	return m
}

// NewWithRegisterer registers the collectors on reg.
func NewWithRegisterer(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := newMetrics(reg)
	m.registry = gatherer
	return m
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "state",
			Help:      "1 for the current connection state, 0 otherwise.",
		}, []string{"state"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnect attempts scheduled after a close.",
		}),
		backoffDelay: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "backoff_delay_seconds",
			Help:      "Most recently scheduled reconnect delay.",
		}),
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "frames_sent_total",
			Help:      "Frames written to the socket.",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "bytes_sent_total",
			Help:      "Bytes written to the socket.",
		}),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "frames_received_total",
			Help:      "Frames read from the socket.",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "bytes_received_total",
			Help:      "Bytes read from the socket.",
		}),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "decode_failures_total",
			Help:      "Inbound frames that were not valid JSON.",
		}),
		transportErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "transport_errors_total",
			Help:      "Socket errors reported by the transport.",
		}),
		jobsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "submitted_total",
			Help:      "Enhancement jobs submitted, by kind.",
		}, []string{"kind"}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "finished_total",
			Help:      "Enhancement jobs finished, by kind and status.",
		}, []string{"kind", "status"}),
		jobsResent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "resent_total",
			Help:      "Job frames re-sent after no response arrived.",
		}),
		jobLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "latency_seconds",
			Help:      "Time from submit to finish.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.state,
		m.reconnects,
		m.backoffDelay,
		m.framesSent,
		m.bytesSent,
		m.framesReceived,
		m.bytesReceived,
		m.decodeFailures,
		m.transportErrs,
		m.jobsSubmitted,
		m.jobsFinished,
		m.jobsResent,
		m.jobLatency,
	)

	m.StateChanged("idle")
	return m
}

// Handler serves the registered metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StateChanged sets the state gauge to state.
func (m *Metrics) StateChanged(state string) {
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.state.WithLabelValues(s).Set(v)
	}
}

func (m *Metrics) ReconnectScheduled(attempt int, delay time.Duration) {
	m.reconnects.Inc()
	m.backoffDelay.Set(delay.Seconds())
}

func (m *Metrics) FrameSent(bytes int) {
	m.framesSent.Inc()
	m.bytesSent.Add(float64(bytes))
}

func (m *Metrics) FrameReceived(bytes int) {
	m.framesReceived.Inc()
	m.bytesReceived.Add(float64(bytes))
}

func (m *Metrics) DecodeFailed() {
	m.decodeFailures.Inc()
}

func (m *Metrics) TransportError() {
	m.transportErrs.Inc()
}

func (m *Metrics) JobSubmitted(kind string) {
	m.jobsSubmitted.WithLabelValues(kind).Inc()
}

func (m *Metrics) JobResent(kind string) {
	m.jobsResent.Inc()
}

func (m *Metrics) JobFinished(kind, status string, latency time.Duration) {
	m.jobsFinished.WithLabelValues(kind, status).Inc()
	m.jobLatency.WithLabelValues(kind).Observe(latency.Seconds())
}
