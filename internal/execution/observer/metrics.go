package observer

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "codeexec"

// MetricsRecorder exports execution counters and latency histograms.
type MetricsRecorder struct {
	registry      *prometheus.Registry
	executions    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	buildDuration *prometheus.HistogramVec
	outputBytes   *prometheus.HistogramVec
	memory        *prometheus.HistogramVec
}

// NewMetricsRecorder registers collectors on a private registry, including the
// Go runtime and process collectors.
func NewMetricsRecorder() *MetricsRecorder {
	reg := prometheus.NewRegistry()
	m := &MetricsRecorder{
		registry: reg,
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "executions_total",
			Help:      "Total number of executions by language and verdict",
		}, []string{"language", "verdict"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "execution_duration_seconds",
			Help:      "End-to-end execution latency including materialization and cleanup",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 15},
		}, []string{"language"}),
		buildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "build_duration_seconds",
			Help:      "Duration of build steps for transpiled languages",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"language"}),
		outputBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "output_bytes",
			Help:      "Bytes written to stdout and stderr by the run step",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"language"}),
		memory: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "peak_memory_kilobytes",
			Help:      "Peak resident memory of the run step",
			Buckets:   prometheus.ExponentialBuckets(1024, 2, 10),
		}, []string{"language"}),
	}
	reg.MustRegister(
		m.executions, m.duration, m.buildDuration, m.outputBytes, m.memory,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *MetricsRecorder) ObserveExecution(_ context.Context, rec Record) {
	m.executions.WithLabelValues(rec.Language, string(rec.Verdict)).Inc()
	m.duration.WithLabelValues(rec.Language).Observe(rec.Duration.Seconds())
	if rec.BuildDuration > 0 {
		m.buildDuration.WithLabelValues(rec.Language).Observe(rec.BuildDuration.Seconds())
	}
	if rec.OutputBytes > 0 {
		m.outputBytes.WithLabelValues(rec.Language).Observe(float64(rec.OutputBytes))
	}
	if rec.MemoryKB > 0 {
		m.memory.WithLabelValues(rec.Language).Observe(float64(rec.MemoryKB))
	}
}

// Registerer exposes the registry for collectors owned by other packages.
func (m *MetricsRecorder) Registerer() prometheus.Registerer {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *MetricsRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
