package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"transferindex/internal/application"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "transferindex"

// Metrics exports indexer progress and HTTP traffic. It satisfies
// application.IndexerObserver.
type Metrics struct {
	registry *prometheus.Registry

	latestBlock     prometheus.Gauge
	ticksTotal      *prometheus.CounterVec
	tickDuration    prometheus.Histogram
	transfersTotal  *prometheus.CounterVec
	lastTickSuccess prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		latestBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "latest_block",
			Help:      "Number of the latest block seen on the node.",
		}),
		ticksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ticks_total",
			Help:      "Poll ticks by outcome.",
		}, []string{"status"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "tick_duration_seconds",
			Help:      "Duration of successful ticks.",
			Buckets:   prometheus.DefBuckets,
		}),
		transfersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "transfers_total",
			Help:      "EOA transfer candidates by outcome.",
		}, []string{"outcome"}),
		lastTickSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_tick_success_timestamp_seconds",
			Help:      "Unix time of the last successful tick.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests.",
		}, []string{"route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "Request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.latestBlock,
		m.ticksTotal,
		m.tickDuration,
		m.transfersTotal,
		m.lastTickSuccess,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) OnLatestBlock(block int64) {
	m.latestBlock.Set(float64(block))
}

func (m *Metrics) OnTick(result application.TickResult) {
	m.ticksTotal.WithLabelValues("ok").Inc()
	m.tickDuration.Observe(result.Duration.Seconds())
	m.transfersTotal.WithLabelValues("inserted").Add(float64(result.Inserted))
	m.transfersTotal.WithLabelValues("duplicate").Add(float64(result.Duplicates))
	m.transfersTotal.WithLabelValues("skipped").Add(float64(result.Skipped))
	m.transfersTotal.WithLabelValues("failed").Add(float64(result.Failed))
	m.lastTickSuccess.SetToCurrentTime()
}

func (m *Metrics) OnTickError(err error) {
	m.ticksTotal.WithLabelValues("error").Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// instrument records request count and latency under a fixed route label.
func (m *Metrics) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		m.httpRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
