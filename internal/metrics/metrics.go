// Package metrics exposes reconcile statistics as Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vk/hotsync/internal/fetcher"
	"github.com/vk/hotsync/internal/synchronizer"
)

// Collector holds the process metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	Runs                  *prometheus.CounterVec
	RunDuration           prometheus.Histogram
	Fetches               *prometheus.CounterVec
	WidgetCaptureFailures prometheus.Counter
	WidgetRestoreFailures prometheus.Counter
	Malformed             prometheus.Counter
	Queue                 prometheus.Gauge
	TerminalVersion       prometheus.GaugeFunc
}

var _ synchronizer.Recorder = (*Collector)(nil)

// NewCollector creates and registers all collectors under namespace.
// terminalVersion, when non-nil, is exported as a gauge.
func NewCollector(namespace string, terminalVersion func() uint64) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_runs_total",
			Help:      "Reconcile runs by result.",
		}, []string{"result"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_run_duration_seconds",
			Help:      "Duration of reconcile runs.",
			Buckets:   prometheus.DefBuckets,
		}),
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "definition_fetches_total",
			Help:      "Type definition fetches by outcome.",
		}, []string{"outcome"}),
		WidgetCaptureFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "widget_capture_failures_total",
			Help:      "Widgets whose serializer failed and whose raw value was captured.",
		}),
		WidgetRestoreFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "widget_restore_failures_total",
			Help:      "Widgets that could not be restored.",
		}),
		Malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_notifications_total",
			Help:      "Change notifications rejected as malformed.",
		}),
		Queue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reconcile_queue_depth",
			Help:      "Change sets waiting for the reconcile worker.",
		}),
	}

	c.registry.MustRegister(
		c.Runs,
		c.RunDuration,
		c.Fetches,
		c.WidgetCaptureFailures,
		c.WidgetRestoreFailures,
		c.Malformed,
		c.Queue,
	)
	if terminalVersion != nil {
		c.TerminalVersion = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "terminal_buffer_version",
			Help:      "Version counter of the terminal line buffer.",
		}, func() float64 { return float64(terminalVersion()) })
		c.registry.MustRegister(c.TerminalVersion)
	}
	return c
}

// Registry returns the registry the collectors live on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) RunFinished(result synchronizer.RunResult, elapsed time.Duration) {
	c.Runs.WithLabelValues(string(result)).Inc()
	c.RunDuration.Observe(elapsed.Seconds())
}

func (c *Collector) FetchFinished(outcome fetcher.Outcome) {
	c.Fetches.WithLabelValues(outcome.String()).Inc()
}

func (c *Collector) CaptureFailures(n int) {
	c.WidgetCaptureFailures.Add(float64(n))
}

func (c *Collector) RestoreFailures(n int) {
	c.WidgetRestoreFailures.Add(float64(n))
}

func (c *Collector) MalformedNotification() {
	c.Malformed.Inc()
}

func (c *Collector) QueueDepth(n int) {
	c.Queue.Set(float64(n))
}
