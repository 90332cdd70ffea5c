// Package metrics holds the Prometheus collectors for the pipeline and the
// optional HTTP endpoint that exposes them. A nil *Metrics is valid and
// records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "filerelay"

// Metrics holds Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	scans            prometheus.Counter
	filesDiscovered  prometheus.Counter
	messagesSent     *prometheus.CounterVec
	handlerOutcomes  *prometheus.CounterVec
	handlerDuration  *prometheus.HistogramVec
	uploadedBytes    prometheus.Counter
	brokerExceptions *prometheus.CounterVec
	inFlight         prometheus.Gauge
}

// New builds the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		scans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Directory scans performed by the producer",
		}),
		filesDiscovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_discovered_total",
			Help:      "Files found in the watched directory across all scans",
		}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Producer send attempts by result",
		}, []string{"result"}),
		handlerOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_handled_total",
			Help:      "Consumer handler invocations by outcome",
		}, []string{"outcome"}),
		handlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_duration_seconds",
			Help:      "Consumer handler latency by outcome",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		uploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Bytes written to the object store",
		}),
		brokerExceptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_exceptions_total",
			Help:      "Errors reported through the queue exception callback by action",
		}, []string{"action"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "handlers_in_flight",
			Help:      "Consumer handler invocations currently running",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.scans,
		m.filesDiscovered,
		m.messagesSent,
		m.handlerOutcomes,
		m.handlerDuration,
		m.uploadedBytes,
		m.brokerExceptions,
		m.inFlight,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveScan records one producer scan.
func (m *Metrics) ObserveScan(discovered, sent, failed int) {
	if m == nil {
		return
	}
	m.scans.Inc()
	m.filesDiscovered.Add(float64(discovered))
	m.messagesSent.WithLabelValues("sent").Add(float64(sent))
	m.messagesSent.WithLabelValues("failed").Add(float64(failed))
}

// HandlerStarted marks a consumer invocation as running.
func (m *Metrics) HandlerStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// HandlerFinished records the outcome and latency of an invocation started
// with HandlerStarted.
func (m *Metrics) HandlerFinished(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.handlerOutcomes.WithLabelValues(outcome).Inc()
	m.handlerDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// AddUploadedBytes counts bytes written to the object store.
func (m *Metrics) AddUploadedBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.uploadedBytes.Add(float64(n))
}

// ObserveException counts an exception callback invocation.
func (m *Metrics) ObserveException(action string) {
	if m == nil {
		return
	}
	m.brokerExceptions.WithLabelValues(action).Inc()
}
