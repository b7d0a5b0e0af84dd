package stats

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/relloyd/retail-loader/constants"
)

// Metrics holds the Prometheus collectors for batch runs on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	batchesTotal     *prometheus.CounterVec
	rowsTotal        *prometheus.CounterVec
	batchDuration    prometheus.Histogram
	stageDuration    *prometheus.HistogramVec
	checkpointOffset prometheus.Gauge
	lastSuccess      prometheus.Gauge
}

const metricsNamespace = "retail_loader"

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		batchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "batches_total",
			Help:      "Batch runs by final status",
		}, []string{"status"}),
		rowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rows_total",
			Help:      "Source rows by outcome",
		}, []string{"outcome"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "batch_duration_seconds",
			Help:      "Time to run one batch",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each batch stage",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"stage"}),
		checkpointOffset: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "checkpoint_offset",
			Help:      "Last committed source row",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last committed batch",
		}),
	}
	registry.MustRegister(m.batchesTotal, m.rowsTotal, m.batchDuration, m.stageDuration, m.checkpointOffset, m.lastSuccess)
	registry.MustRegister(prometheus.NewGoCollector())
	return m
}

// Registry exposes the collectors to handlers and tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// BatchOutcome is what a finished batch reports to ObserveBatch.
type BatchOutcome struct {
	Status           string
	Duration         time.Duration
	Processed        int64
	Inserted         int64
	AlreadyPresent   int64
	Rejected         int64
	CheckpointOffset int64 // negative when unknown
}

func (m *Metrics) ObserveBatch(o BatchOutcome) {
	if m == nil {
		return
	}
	m.batchesTotal.WithLabelValues(o.Status).Inc()
	m.batchDuration.Observe(o.Duration.Seconds())
	m.rowsTotal.WithLabelValues("processed").Add(float64(o.Processed))
	m.rowsTotal.WithLabelValues("inserted").Add(float64(o.Inserted))
	m.rowsTotal.WithLabelValues("already_present").Add(float64(o.AlreadyPresent))
	m.rowsTotal.WithLabelValues("rejected").Add(float64(o.Rejected))
	if o.CheckpointOffset >= 0 {
		m.checkpointOffset.Set(float64(o.CheckpointOffset))
	}
	if o.Status == "COMMITTED" {
		m.lastSuccess.SetToCurrentTime()
	}
}

// ObserveStages records the elapsed time of every step that ran.
func (m *Metrics) ObserveStages(s StatsFetcher) {
	if m == nil || s == nil {
		return
	}
	for _, st := range s.GetStats() {
		if st.StatusText == "skipped" {
			continue
		}
		m.stageDuration.WithLabelValues(st.StepName).Observe(float64(st.ElapsedTimeMs) / 1000)
	}
}

// Push sends the current values to a Prometheus Pushgateway.
func (m *Metrics) Push(url string) error {
	if m == nil || url == "" {
		return nil
	}
	return push.New(url, constants.AppName).Gatherer(m.registry).Push()
}
