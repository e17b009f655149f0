// Package metrics provides Prometheus metrics for the pulse event stream.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector used by the service and the
// subscriber CLI.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Admission control
	admissionDecisions   *prometheus.CounterVec
	limiterActiveBuckets prometheus.Gauge
	limiterSwept         prometheus.Counter

	// Producer
	eventsGenerated prometheus.Counter
	batchesFlushed  prometheus.Counter
	batchSize       prometheus.Histogram
	producerPending prometheus.Gauge
	producerRate    prometheus.Gauge
	producerRunning prometheus.Gauge

	// Persistence pipeline
	persistBatches       *prometheus.CounterVec
	persistLatency       prometheus.Histogram
	persistDropped       prometheus.Counter
	queueSize            prometheus.Gauge
	queueCapacity        prometheus.Gauge
	workerActiveCount    prometheus.Gauge
	workerBatchesPerSecs prometheus.Gauge

	// Broadcast hub
	subscribers         prometheus.Gauge
	broadcastMessages   *prometheus.CounterVec
	broadcastDeliveries prometheus.Counter
	subscribersPruned   prometheus.Counter
	broadcastLatency    prometheus.Histogram

	// Subscriber side
	clientTransitions     *prometheus.CounterVec
	clientReconnects      prometheus.Counter
	clientMalformed       prometheus.Counter
	clientOutboundDropped prometheus.Counter
	clientThroughput      prometheus.Gauge
	clientStored          prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "pulse",
		subsystem:        "stream",
		histogramBuckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
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

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.admissionDecisions = m.counterVec("admission_decisions_total", "Admission checks by decision (allowed, denied)", "decision")
	m.limiterActiveBuckets = m.gauge("limiter_active_buckets", "Number of live token buckets")
	m.limiterSwept = m.counter("limiter_swept_total", "Idle token buckets removed by the sweep")

	m.eventsGenerated = m.counter("events_generated_total", "Events synthesized by the producer")
	m.batchesFlushed = m.counter("batches_flushed_total", "Batches flushed by the producer")
	m.batchSize = m.histogram("batch_size_events", "Events per flushed batch", []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000})
	m.producerPending = m.gauge("producer_pending_events", "Events waiting in the pending batch")
	m.producerRate = m.gauge("producer_rate_events_per_second", "Configured generation rate")
	m.producerRunning = m.gauge("producer_running", "1 while the producer is running")

	m.persistBatches = m.counterVec("persist_batches_total", "Batches written to the sink by result", "result")
	m.persistLatency = m.histogram("persist_latency_milliseconds", "Sink write latency", m.histogramBuckets)
	m.persistDropped = m.counter("persist_dropped_total", "Batches not persisted because the backlog was full")
	m.queueSize = m.gauge("persist_queue_size", "Batches waiting for a persistence worker")
	m.queueCapacity = m.gauge("persist_queue_capacity", "Capacity of the persistence backlog")
	m.workerActiveCount = m.gauge("persist_workers", "Persistence workers running")
	m.workerBatchesPerSecs = m.gauge("persist_batches_per_second", "Batches persisted per second")

	m.subscribers = m.gauge("subscribers", "Live subscribers in the hub")
	m.broadcastMessages = m.counterVec("broadcast_messages_total", "Envelopes broadcast by type", "type")
	m.broadcastDeliveries = m.counter("broadcast_deliveries_total", "Successful per-subscriber deliveries")
	m.subscribersPruned = m.counter("subscribers_pruned_total", "Subscribers removed after a failed or closed send")
	m.broadcastLatency = m.histogram("broadcast_latency_milliseconds", "Fan-out latency per broadcast", m.histogramBuckets)

	m.clientTransitions = m.counterVec("client_transitions_total", "Stream client state transitions by target state", "state")
	m.clientReconnects = m.counter("client_reconnects_total", "Reconnect attempts scheduled by the stream client")
	m.clientMalformed = m.counter("client_malformed_messages_total", "Inbound messages dropped as malformed")
	m.clientOutboundDropped = m.counter("client_outbound_dropped_total", "Outbound messages evicted while disconnected")
	m.clientThroughput = m.gauge("client_throughput_records_per_second", "Records ingested per second by the client buffer")
	m.clientStored = m.gauge("client_stored_records", "Records held in the client buffer")

	m.httpRequests = promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "http_requests_total",
		Help: "Total number of HTTP requests", ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "http_request_duration_milliseconds",
		Help: "HTTP request duration in milliseconds", ConstLabels: m.constLabels, Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "HTTP errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Admission control.

// RecordAdmission counts one admission decision.
func RecordAdmission(allowed bool) {
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	globalManager.admissionDecisions.WithLabelValues(decision).Inc()
}

// UpdateLimiterActiveBuckets sets the live bucket count.
func UpdateLimiterActiveBuckets(n int) {
	globalManager.limiterActiveBuckets.Set(float64(n))
}

// RecordLimiterSwept counts buckets removed by one sweep.
func RecordLimiterSwept(n int) {
	globalManager.limiterSwept.Add(float64(n))
}

// Producer.

// RecordEventGenerated counts one synthesized event.
func RecordEventGenerated() {
	globalManager.eventsGenerated.Inc()
}

// RecordBatchFlushed counts one flush of size events.
func RecordBatchFlushed(size int) {
	globalManager.batchesFlushed.Inc()
	globalManager.batchSize.Observe(float64(size))
}

// UpdateProducerPending sets the pending batch length.
func UpdateProducerPending(n int) {
	globalManager.producerPending.Set(float64(n))
}

// UpdateProducerRate sets the configured generation rate.
func UpdateProducerRate(rate int) {
	globalManager.producerRate.Set(float64(rate))
}

// UpdateProducerRunning records whether the producer is ticking.
func UpdateProducerRunning(running bool) {
	v := 0.0
	if running {
		v = 1
	}
	globalManager.producerRunning.Set(v)
}

// Persistence.

// RecordPersistResult counts one sink write by outcome.
func RecordPersistResult(ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	globalManager.persistBatches.WithLabelValues(result).Inc()
}

// RecordPersistLatency records a sink write latency.
func RecordPersistLatency(latencyMs float64) {
	globalManager.persistLatency.Observe(latencyMs)
}

// RecordPersistDropped counts a batch that never reached a worker.
func RecordPersistDropped() {
	globalManager.persistDropped.Inc()
}

// UpdateQueueSize sets the persistence backlog length.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the persistence backlog capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateWorkerActiveCount sets the number of running persistence workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerBatchesPerSecond sets the persistence throughput.
func UpdateWorkerBatchesPerSecond(rate float64) {
	globalManager.workerBatchesPerSecs.Set(rate)
}

// Broadcast.

// UpdateSubscribers sets the live subscriber count.
func UpdateSubscribers(n int) {
	globalManager.subscribers.Set(float64(n))
}

// RecordBroadcast counts one envelope fanned out to deliveries subscribers.
func RecordBroadcast(msgType string, deliveries int, latencyMs float64) {
	globalManager.broadcastMessages.WithLabelValues(msgType).Inc()
	globalManager.broadcastDeliveries.Add(float64(deliveries))
	globalManager.broadcastLatency.Observe(latencyMs)
}

// RecordSubscriberPruned counts a subscriber dropped during a broadcast.
func RecordSubscriberPruned() {
	globalManager.subscribersPruned.Inc()
}

// Subscriber side.

// RecordClientTransition counts a stream client entering state.
func RecordClientTransition(state string) {
	globalManager.clientTransitions.WithLabelValues(state).Inc()
}

// RecordClientReconnect counts a scheduled reconnect.
func RecordClientReconnect() {
	globalManager.clientReconnects.Inc()
}

// RecordClientMalformed counts a dropped inbound message.
func RecordClientMalformed() {
	globalManager.clientMalformed.Inc()
}

// RecordClientOutboundDropped counts an evicted outbound message.
func RecordClientOutboundDropped() {
	globalManager.clientOutboundDropped.Inc()
}

// UpdateClientThroughput sets the client buffer's ingest rate.
func UpdateClientThroughput(perSecond float64) {
	globalManager.clientThroughput.Set(perSecond)
}

// UpdateClientStored sets the number of records held by the client buffer.
func UpdateClientStored(n int) {
	globalManager.clientStored.Set(float64(n))
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System.

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
