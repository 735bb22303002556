package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the client.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ActiveCall       prometheus.Gauge
	StateTransitions *prometheus.CounterVec
	RemoteRequests   *prometheus.CounterVec
	RemoteLatency    *prometheus.HistogramVec
	Polls            *prometheus.CounterVec
	Playbacks        *prometheus.CounterVec
	RejectedInputs   *prometheus.CounterVec

	gatherer prometheus.Gatherer
	window   *latencyWindow
}

// NewMetrics registers the instruments on reg. A nil reg uses a private registry.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		ActiveCall: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_call",
			Help:      "1 while a call session is live, 0 otherwise.",
		}),
		StateTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Controller state transitions by source and target state.",
		}, []string{"from", "to"}),
		RemoteRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_requests_total",
			Help:      "Requests to the voice agent server by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		RemoteLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_request_latency_ms",
			Help:      "Voice agent request latency in milliseconds.",
			Buckets:   []float64{25, 50, 100, 200, 500, 1000, 2000, 5000, 10000},
		}, []string{"endpoint"}),
		Polls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handover_polls_total",
			Help:      "Handover poll results (audio, empty, failed).",
		}, []string{"result"}),
		Playbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playbacks_total",
			Help:      "Playback attempts by source and outcome.",
		}, []string{"source", "outcome"}),
		RejectedInputs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_inputs_total",
			Help:      "User actions refused by the controller, by action and state.",
		}, []string{"action", "state"}),
		gatherer: reg,
		window:   newLatencyWindow(256),
	}
}

func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.StateTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) SetActiveCall(active bool) {
	if m == nil {
		return
	}
	if active {
		m.ActiveCall.Set(1)
		return
	}
	m.ActiveCall.Set(0)
}

func (m *Metrics) ObserveRemote(endpoint, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	ms := float64(d.Microseconds()) / 1000
	m.RemoteRequests.WithLabelValues(endpoint, outcome).Inc()
	m.RemoteLatency.WithLabelValues(endpoint).Observe(ms)
	m.window.Observe(endpoint, ms)
}

func (m *Metrics) ObservePoll(result string) {
	if m == nil {
		return
	}
	m.Polls.WithLabelValues(result).Inc()
}

func (m *Metrics) ObservePlayback(source, outcome string) {
	if m == nil {
		return
	}
	m.Playbacks.WithLabelValues(source, outcome).Inc()
	m.window.ObserveIndicator("playback_" + outcome)
}

func (m *Metrics) ObserveRejectedInput(action, state string) {
	if m == nil {
		return
	}
	m.RejectedInputs.WithLabelValues(action, state).Inc()
}

// SnapshotLatency summarizes recent request latencies per endpoint.
func (m *Metrics) SnapshotLatency() LatencySnapshot {
	if m == nil {
		return LatencySnapshot{GeneratedAt: time.Now().UTC(), Endpoints: []LatencyStats{}}
	}
	return m.window.Snapshot()
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
