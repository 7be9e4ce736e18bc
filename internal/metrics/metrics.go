// Package metrics exposes Prometheus collectors for the daemon.
//
// Metrics are registered on a private registry so tests and multiple daemons
// in one process do not collide. All names carry the "popstash_" prefix:
//
//   - popstash_captures_total{trigger,result} - capture triggers by outcome
//   - popstash_resolver_stage_total{stage} - which resolver stage produced text
//   - popstash_external_captures_total{kind} - clipboard changes recorded
//   - popstash_history_items - current history size
//   - popstash_history_mutations_total{op} - committed history mutations
//   - popstash_history_save_failures_total - failed history writes
//   - popstash_history_save_seconds - history write latency
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.klb.dev/popstash/internal/history"
	"go.klb.dev/popstash/internal/hub"
	"go.klb.dev/popstash/internal/resolve"
)

// Metrics holds the daemon's collectors.
type Metrics struct {
	Registry *prometheus.Registry

	Captures         *prometheus.CounterVec
	ResolverStages   *prometheus.CounterVec
	ExternalCaptures *prometheus.CounterVec
	HistoryItems     prometheus.Gauge
	HistoryMutations *prometheus.CounterVec
	SaveFailures     prometheus.Counter
	SaveDuration     prometheus.Histogram
}

// New creates and registers the collectors, plus the Go runtime and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		Captures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "popstash_captures_total",
			Help: "Capture state machine outcomes",
		}, []string{"trigger", "result"}),
		ResolverStages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "popstash_resolver_stage_total",
			Help: "Resolutions by the stage that produced the text",
		}, []string{"stage"}),
		ExternalCaptures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "popstash_external_captures_total",
			Help: "External clipboard changes recorded in history",
		}, []string{"kind"}),
		HistoryItems: f.NewGauge(prometheus.GaugeOpts{
			Name: "popstash_history_items",
			Help: "Number of items in history",
		}),
		HistoryMutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "popstash_history_mutations_total",
			Help: "Committed history mutations",
		}, []string{"op"}),
		SaveFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "popstash_history_save_failures_total",
			Help: "History writes that failed",
		}),
		SaveDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "popstash_history_save_seconds",
			Help:    "Duration of history writes in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObserveStage counts a resolver stage. It fits resolve.WithObserver.
func (m *Metrics) ObserveStage(s resolve.Stage) {
	m.ResolverStages.WithLabelValues(string(s)).Inc()
}

// ObserveExternal counts an external capture recorded in history.
func (m *Metrics) ObserveExternal(c history.Content) {
	m.ExternalCaptures.WithLabelValues(c.Kind().String()).Inc()
}

// ID, Kinds and Send make Metrics a hub.Subscriber.
func (m *Metrics) ID() string { return "metrics" }

func (m *Metrics) Kinds() []hub.Kind { return []hub.Kind{hub.KindHistory, hub.KindCapture} }

func (m *Metrics) Send(e hub.Event) {
	switch {
	case e.History != nil:
		m.HistoryItems.Set(float64(e.History.Len))
		m.HistoryMutations.WithLabelValues(e.History.Op).Inc()
	case e.Capture != nil:
		c := e.Capture
		switch {
		case c.Err != "":
			m.Captures.WithLabelValues(c.Trigger, "error").Inc()
		case c.State == "committed" || c.State == "reverted" || c.State == "discarded":
			m.Captures.WithLabelValues(c.Trigger, c.State).Inc()
		}
	}
}

// Persister wraps a history.Persister with timing and failure counting.
type Persister struct {
	next history.Persister
	m    *Metrics
}

// WrapPersister instruments p.
func (m *Metrics) WrapPersister(p history.Persister) *Persister {
	return &Persister{next: p, m: m}
}

func (p *Persister) Save(items []history.Item) error {
	start := time.Now()
	err := p.next.Save(items)
	p.m.SaveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		p.m.SaveFailures.Inc()
	}
	return err
}
