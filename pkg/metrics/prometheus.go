// Package metrics provides Prometheus metrics for the hackcast broadcast engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the broadcast engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Ingest
	eventsNormalized *prometheus.CounterVec
	eventsDropped    *prometheus.CounterVec
	eventsDuplicate  prometheus.Counter
	feedMessages     *prometheus.CounterVec
	feedDecodeErrors prometheus.Counter

	// Queue and workers
	queueSize               prometheus.Gauge
	queueCapacity           prometheus.Gauge
	queueUtilization        prometheus.Gauge
	queueEnqueue            prometheus.Counter
	queueDequeue            prometheus.Counter
	queueEnqueueErrors      prometheus.Counter
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Broadcast
	hotness            *prometheus.GaugeVec
	phaseTransitions   *prometheus.CounterVec
	hackathonSwitches  *prometheus.CounterVec
	contentGenerations *prometheus.CounterVec
	contentLatency     *prometheus.HistogramVec
	narrationErrors    prometheus.Counter
	paused             prometheus.Gauge
	viewers            prometheus.Gauge
	websocketClients   prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "hackcast",
		subsystem:        "broadcast",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place to declare every metric
	auto := promauto.With(m.registry)

	m.eventsNormalized = m.counterVec("events_normalized_total",
		"Domain events produced by the normalizer", "kind", "priority")
	m.eventsDropped = m.counterVec("events_dropped_total",
		"Change notifications discarded by the normalizer", "reason")
	m.eventsDuplicate = m.counter("events_duplicate_total",
		"Change notifications discarded as redeliveries")
	m.feedMessages = m.counterVec("feed_messages_total",
		"Change feed messages received by table", "table")
	m.feedDecodeErrors = m.counter("feed_decode_errors_total",
		"Change feed messages that could not be decoded")

	m.queueSize = m.gauge("queue_size", "Current size of the change queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum change queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueue = m.counter("queue_enqueue_total", "Total number of changes enqueued")
	m.queueDequeue = m.counter("queue_dequeue_total", "Total number of changes dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of enqueue errors")
	m.workerCount = m.gauge("worker_count", "Current number of ingest workers")
	m.workerErrors = m.counter("worker_errors_total", "Total number of ingest worker errors")
	m.workerProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "worker_processing_latency_milliseconds",
		Help:    "Time to normalize and apply one change in milliseconds",
		Buckets: m.histogramBuckets,
	})

	m.hotness = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "hackathon_hotness",
		Help: "Effective hotness score per hackathon at the last evaluation",
	}, []string{"hackathon_id"})
	m.phaseTransitions = m.counterVec("phase_transitions_total",
		"Playback phase entries by phase", "phase")
	m.hackathonSwitches = m.counterVec("hackathon_switches_total",
		"Committed hackathon switches by trigger", "reason")
	m.contentGenerations = m.counterVec("content_generations_total",
		"Generated segments by source", "source")
	m.contentLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "content_generation_duration_milliseconds",
		Help:    "Segment generation latency in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"source"})
	m.narrationErrors = m.counter("narration_errors_total",
		"Narration calls that failed and tripped the template fallback")
	m.paused = m.gauge("paused", "1 while the broadcast clocks are suspended")
	m.viewers = m.gauge("viewers", "Current viewer count seen by the presence gate")
	m.websocketClients = m.gauge("websocket_clients", "Connected WebSocket renderers")

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "http_requests_total",
		Help: "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "http_request_duration_milliseconds",
		Help:    "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
}

// RecordEventNormalized counts a produced domain event.
func RecordEventNormalized(kind, priority string) {
	globalManager.eventsNormalized.WithLabelValues(kind, priority).Inc()
}

// RecordEventDropped counts a discarded change by reason.
func RecordEventDropped(reason string) {
	globalManager.eventsDropped.WithLabelValues(reason).Inc()
}

// RecordEventDuplicate increments the duplicate events counter.
func RecordEventDuplicate() {
	globalManager.eventsDuplicate.Inc()
}

// RecordFeedMessage counts a change feed message for table.
func RecordFeedMessage(table string) {
	globalManager.feedMessages.WithLabelValues(table).Inc()
}

// RecordFeedDecodeError counts an undecodable change feed message.
func RecordFeedDecodeError() {
	globalManager.feedDecodeErrors.Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueue.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeue.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// UpdateHotness sets the effective score gauge for one hackathon.
func UpdateHotness(hackathonID string, score float64) {
	globalManager.hotness.WithLabelValues(hackathonID).Set(score)
}

// RecordPhaseTransition counts entering phase.
func RecordPhaseTransition(phase string) {
	globalManager.phaseTransitions.WithLabelValues(phase).Inc()
}

// RecordHackathonSwitch counts a committed switch.
func RecordHackathonSwitch(reason string) {
	globalManager.hackathonSwitches.WithLabelValues(reason).Inc()
}

// RecordContentGeneration counts a generated segment and its latency.
func RecordContentGeneration(source string, latencyMs float64) {
	globalManager.contentGenerations.WithLabelValues(source).Inc()
	globalManager.contentLatency.WithLabelValues(source).Observe(latencyMs)
}

// RecordNarrationError increments the narration error counter.
func RecordNarrationError() {
	globalManager.narrationErrors.Inc()
}

// UpdatePaused sets the paused gauge.
func UpdatePaused(paused bool) {
	if paused {
		globalManager.paused.Set(1)
		return
	}
	globalManager.paused.Set(0)
}

// UpdateViewers sets the viewer gauge.
func UpdateViewers(count int) {
	globalManager.viewers.Set(float64(count))
}

// UpdateWebSocketClients sets the connected renderer gauge.
func UpdateWebSocketClients(count int) {
	globalManager.websocketClients.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
