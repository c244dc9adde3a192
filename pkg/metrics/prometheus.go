// Package metrics provides Prometheus metrics for the animator engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Latency buckets in milliseconds; routing and sends are expected well
// under a sixteenth note.
var defaultLatencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 25, 50, 100}

// Manager manages all Prometheus metrics for the engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Engine Metrics - routing outcomes
	eventsReceived  prometheus.Counter
	eventsDropped   *prometheus.CounterVec
	eventsForwarded *prometheus.CounterVec
	routingLatency  prometheus.Histogram

	// Timing Metrics - metronome and section state
	driftSeconds   prometheus.Gauge
	driftUpdates   prometheus.Counter
	sectionIndex   prometheus.Gauge
	sectionChanges prometheus.Counter
	barsPlayed     prometheus.Counter
	countIns       prometheus.Counter

	// Queue Metrics - dispatch and output lanes
	queueSize     *prometheus.GaugeVec
	queueCapacity *prometheus.GaugeVec
	queueEnqueued *prometheus.CounterVec
	queueDequeued *prometheus.CounterVec

	// Worker Metrics - pool supervision
	workerCount    *prometheus.GaugeVec
	workerRestarts *prometheus.CounterVec
	workerPanics   *prometheus.CounterVec

	// Output Metrics - device writes
	outputSent        prometheus.Counter
	outputRetries     prometheus.Counter
	outputFailures    prometheus.Counter
	outputSendLatency prometheus.Histogram
	deviceLost        prometheus.Counter

	// HTTP Metrics - ops endpoints
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "animator",
		subsystem:        "engine",
		histogramBuckets: defaultLatencyBuckets,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// name applies the configured metric prefix.
func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	constLabels := prometheus.Labels(m.customLabels)

	m.eventsReceived = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("events_received_total"),
		Help:        "Total number of MIDI events delivered by the input driver",
		ConstLabels: constLabels,
	})

	m.eventsDropped = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("events_dropped_total"),
			Help:        "Total number of events dropped, by reason",
			ConstLabels: constLabels,
		},
		[]string{"reason"},
	)

	m.eventsForwarded = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("events_forwarded_total"),
			Help:        "Total number of events forwarded to the output queue, by route",
			ConstLabels: constLabels,
		},
		[]string{"route"},
	)

	m.routingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("routing_latency_milliseconds"),
		Help:        "Time from driver arrival to routing decision in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: constLabels,
	})

	m.driftSeconds = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("drift_seconds"),
		Help:        "Latest metronome drift estimate in seconds (actual - expected)",
		ConstLabels: constLabels,
	})

	m.driftUpdates = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("drift_updates_total"),
		Help:        "Total number of drift estimate writes",
		ConstLabels: constLabels,
	})

	m.sectionIndex = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("section_index"),
		Help:        "Section index currently played by the section player",
		ConstLabels: constLabels,
	})

	m.sectionChanges = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("section_changes_total"),
		Help:        "Total number of section swaps applied at bar boundaries",
		ConstLabels: constLabels,
	})

	m.barsPlayed = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("bars_played_total"),
		Help:        "Total number of bars played by the section player",
		ConstLabels: constLabels,
	})

	m.countIns = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("count_ins_total"),
		Help:        "Total number of completed count-ins",
		ConstLabels: constLabels,
	})

	m.queueSize = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("queue_size"),
			Help:        "Current number of events buffered in a queue",
			ConstLabels: constLabels,
		},
		[]string{"queue"},
	)

	m.queueCapacity = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("queue_capacity"),
			Help:        "Maximum number of events a queue can buffer",
			ConstLabels: constLabels,
		},
		[]string{"queue"},
	)

	m.queueEnqueued = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("queue_enqueue_total"),
			Help:        "Total number of events enqueued",
			ConstLabels: constLabels,
		},
		[]string{"queue"},
	)

	m.queueDequeued = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("queue_dequeue_total"),
			Help:        "Total number of events dequeued",
			ConstLabels: constLabels,
		},
		[]string{"queue"},
	)

	m.workerCount = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("worker_count"),
			Help:        "Number of workers in a pool",
			ConstLabels: constLabels,
		},
		[]string{"pool"},
	)

	m.workerRestarts = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("worker_restarts_total"),
			Help:        "Total number of supervised worker restarts",
			ConstLabels: constLabels,
		},
		[]string{"pool"},
	)

	m.workerPanics = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("worker_panics_total"),
			Help:        "Total number of recovered panics while handling an event",
			ConstLabels: constLabels,
		},
		[]string{"pool"},
	)

	m.outputSent = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("output_sent_total"),
		Help:        "Total number of messages written to the output device",
		ConstLabels: constLabels,
	})

	m.outputRetries = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("output_retries_total"),
		Help:        "Total number of output send retries",
		ConstLabels: constLabels,
	})

	m.outputFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("output_failures_total"),
		Help:        "Total number of messages abandoned after exhausting retries",
		ConstLabels: constLabels,
	})

	m.outputSendLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("output_send_latency_milliseconds"),
		Help:        "Device write latency including lock wait in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: constLabels,
	})

	m.deviceLost = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("device_lost_total"),
		Help:        "Total number of output device losses",
		ConstLabels: constLabels,
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("http_requests_total"),
			Help:        "Total number of HTTP requests by endpoint and method",
			ConstLabels: constLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("http_request_duration_milliseconds"),
			Help:        "HTTP request duration in milliseconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("errors_by_component_total"),
			Help:        "Total number of errors by component",
			ConstLabels: constLabels,
		},
		[]string{"component", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_memory_usage_bytes"),
		Help:        "System memory usage in bytes",
		ConstLabels: constLabels,
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_goroutine_count"),
		Help:        "Number of goroutines",
		ConstLabels: constLabels,
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_gc_pause_time_milliseconds"),
		Help:        "GC pause time in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: constLabels,
	})
}

// Engine Metrics Functions.

// RecordEventReceived increments the received events counter.
func RecordEventReceived() {
	globalManager.eventsReceived.Inc()
}

// RecordEventDropped increments the dropped events counter for reason.
func RecordEventDropped(reason string) {
	globalManager.eventsDropped.WithLabelValues(reason).Inc()
}

// RecordEventForwarded increments the forwarded events counter for route.
func RecordEventForwarded(route string) {
	globalManager.eventsForwarded.WithLabelValues(route).Inc()
}

// RecordRoutingLatency records arrival-to-routing latency.
func RecordRoutingLatency(latencyMs float64) {
	globalManager.routingLatency.Observe(latencyMs)
}

// Timing Metrics Functions.

// UpdateDrift publishes a new drift estimate.
func UpdateDrift(seconds float64) {
	globalManager.driftSeconds.Set(seconds)
	globalManager.driftUpdates.Inc()
}

// UpdateSectionIndex sets the section currently played.
func UpdateSectionIndex(index int) {
	globalManager.sectionIndex.Set(float64(index))
}

// RecordSectionChange increments the section swap counter.
func RecordSectionChange() {
	globalManager.sectionChanges.Inc()
}

// RecordBarPlayed increments the bar counter.
func RecordBarPlayed() {
	globalManager.barsPlayed.Inc()
}

// RecordCountIn increments the completed count-in counter.
func RecordCountIn() {
	globalManager.countIns.Inc()
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current size of the named queue.
func UpdateQueueSize(queue string, size int) {
	globalManager.queueSize.WithLabelValues(queue).Set(float64(size))
}

// UpdateQueueCapacity sets the capacity of the named queue.
func UpdateQueueCapacity(queue string, capacity int) {
	globalManager.queueCapacity.WithLabelValues(queue).Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter of the named queue.
func RecordQueueEnqueue(queue string) {
	globalManager.queueEnqueued.WithLabelValues(queue).Inc()
}

// RecordQueueDequeue increments the dequeue counter of the named queue.
func RecordQueueDequeue(queue string) {
	globalManager.queueDequeued.WithLabelValues(queue).Inc()
}

// Worker Metrics Functions.

// UpdateWorkerCount sets the number of workers in pool.
func UpdateWorkerCount(pool string, count int) {
	globalManager.workerCount.WithLabelValues(pool).Set(float64(count))
}

// RecordWorkerRestart increments the restart counter for pool.
func RecordWorkerRestart(pool string) {
	globalManager.workerRestarts.WithLabelValues(pool).Inc()
}

// RecordWorkerPanic increments the recovered panic counter for pool.
func RecordWorkerPanic(pool string) {
	globalManager.workerPanics.WithLabelValues(pool).Inc()
}

// Output Metrics Functions.

// RecordOutputSent increments the sent messages counter.
func RecordOutputSent() {
	globalManager.outputSent.Inc()
}

// RecordOutputRetry increments the retry counter.
func RecordOutputRetry() {
	globalManager.outputRetries.Inc()
}

// RecordOutputFailure increments the abandoned message counter.
func RecordOutputFailure() {
	globalManager.outputFailures.Inc()
}

// RecordOutputSendLatency records device write latency.
func RecordOutputSendLatency(latencyMs float64) {
	globalManager.outputSendLatency.Observe(latencyMs)
}

// RecordDeviceLost increments the device loss counter.
func RecordDeviceLost() {
	globalManager.deviceLost.Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
