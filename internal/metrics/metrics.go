// Package metrics exposes Prometheus instrumentation for the reconciliation
// pipeline. A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "colinkwatch"

// Recorder holds every collector used by the service.
type Recorder struct {
	gatherer prometheus.Gatherer

	commits         *prometheus.CounterVec
	revision        prometheus.Gauge
	dropped         *prometheus.CounterVec
	pollCycles      *prometheus.CounterVec
	pollDuration    prometheus.Histogram
	pushMessages    *prometheus.CounterVec
	pushMalformed   prometheus.Counter
	reconnects      prometheus.Counter
	liveState       *prometheus.GaugeVec
	backendUp       prometheus.Gauge
	probeFailures   prometheus.Counter
	pools           prometheus.Gauge
	swaps           prometheus.Gauge
	viewSubscribers prometheus.Gauge
	hubClients      prometheus.Gauge
	mirrorErrors    prometheus.Counter
}

// New registers all collectors with reg. Passing nil uses a fresh registry,
// which keeps tests isolated from the default one.
func New(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Recorder{
		gatherer: reg,
		commits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "View model commits by source.",
		}, []string{"source"}),
		revision: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "view_revision",
			Help:      "Revision of the latest committed view.",
		}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Records rejected during normalization or merge, by kind.",
		}, []string{"kind"}),
		pollCycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Snapshot poll cycles by outcome (ok, partial, failed, discarded).",
		}, []string{"outcome"}),
		pollDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of snapshot poll cycles.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		pushMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_messages_total",
			Help:      "Live channel messages applied, by type.",
		}, []string{"type"}),
		pushMalformed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_malformed_total",
			Help:      "Live channel messages dropped as malformed.",
		}),
		reconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_reconnects_total",
			Help:      "Live channel reconnect attempts.",
		}),
		liveState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "push_state",
			Help:      "Live channel state, 1 for the current state.",
		}, []string{"state"}),
		backendUp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_up",
			Help:      "1 when the last health probe succeeded.",
		}),
		probeFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_failures_total",
			Help:      "Failed backend health probes.",
		}),
		pools: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pools",
			Help:      "Pools in the committed view.",
		}),
		swaps: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "swaps",
			Help:      "Swaps in the committed view.",
		}),
		viewSubscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "view_subscribers",
			Help:      "Active in-process view subscribers.",
		}),
		hubClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients",
			Help:      "Connected browser websocket clients.",
		}),
		mirrorErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_errors_total",
			Help:      "Failed publishes to the redis mirror.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

func (r *Recorder) Commit(source string, revision uint64, pools, swaps int) {
	if r == nil {
		return
	}
	r.commits.WithLabelValues(source).Inc()
	r.revision.Set(float64(revision))
	r.pools.Set(float64(pools))
	r.swaps.Set(float64(swaps))
}

func (r *Recorder) Dropped(kind string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.dropped.WithLabelValues(kind).Add(float64(n))
}

func (r *Recorder) PollCycle(outcome string, seconds float64) {
	if r == nil {
		return
	}
	r.pollCycles.WithLabelValues(outcome).Inc()
	r.pollDuration.Observe(seconds)
}

func (r *Recorder) PushMessage(kind string) {
	if r == nil {
		return
	}
	r.pushMessages.WithLabelValues(kind).Inc()
}

func (r *Recorder) PushMalformed() {
	if r == nil {
		return
	}
	r.pushMalformed.Inc()
}

func (r *Recorder) Reconnect() {
	if r == nil {
		return
	}
	r.reconnects.Inc()
}

// LiveState marks state as the current push channel state.
func (r *Recorder) LiveState(state string, all []string) {
	if r == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		r.liveState.WithLabelValues(s).Set(v)
	}
}

func (r *Recorder) Probe(ok bool) {
	if r == nil {
		return
	}
	if ok {
		r.backendUp.Set(1)
		return
	}
	r.backendUp.Set(0)
	r.probeFailures.Inc()
}

func (r *Recorder) Subscribers(n int) {
	if r == nil {
		return
	}
	r.viewSubscribers.Set(float64(n))
}

func (r *Recorder) HubClients(n int) {
	if r == nil {
		return
	}
	r.hubClients.Set(float64(n))
}

func (r *Recorder) MirrorError() {
	if r == nil {
		return
	}
	r.mirrorErrors.Inc()
}
