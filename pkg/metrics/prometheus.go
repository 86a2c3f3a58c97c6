// Package metrics provides Prometheus metrics for the benchtrack service.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Verdict kinds accepted by RecordVerdict.
const (
	VerdictOk               = "ok"
	VerdictRegressed        = "regressed"
	VerdictInsufficientData = "insufficient_data"
)

// Manager owns every Prometheus collector exported by benchtrack.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Ingestion
	recordsIngested  prometheus.Counter
	recordsDuplicate prometheus.Counter
	recordsRejected  *prometheus.CounterVec
	batchesIngested  prometheus.Counter
	batchesDuplicate prometheus.Counter

	// Detection
	verdicts    *prometheus.CounterVec
	regressions prometheus.Counter
	lastFactor  prometheus.Gauge

	// History store
	seriesTotal   prometheus.Gauge
	recordsTotal  prometheus.Gauge
	watermark     prometheus.Gauge
	appendLatency prometheus.Histogram
	queryLatency  prometheus.Histogram
	rotations     prometheus.Counter

	// Snapshot feed
	snapshotPublishDuration prometheus.Histogram
	snapshotLastUnix        prometheus.Gauge
	snapshotCount           prometheus.Counter
	snapshotUnchanged       prometheus.Counter
	snapshotBytes           prometheus.Gauge

	// Journal
	journalWriteLatency  prometheus.Histogram
	journalReplayRecords prometheus.Counter

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueued          prometheus.Counter
	queueDequeued          prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerMessagesPerSecond prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByType      *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec
	errorLatency      *prometheus.HistogramVec

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

// NewManager creates a new metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "benchtrack",
		subsystem:        "history",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	if buckets == nil {
		buckets = m.histogramBuckets
	}
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.recordsIngested = auto.NewCounter(m.counterOpts("records_ingested_total", "Benchmark records appended to a history"))
	m.recordsDuplicate = auto.NewCounter(m.counterOpts("records_duplicate_total", "Benchmark records skipped because the commit was already recorded for the series"))
	m.recordsRejected = auto.NewCounterVec(m.counterOpts("records_rejected_total", "Raw measurements rejected at parse time"), []string{"reason"})
	m.batchesIngested = auto.NewCounter(m.counterOpts("batches_ingested_total", "CI result batches ingested"))
	m.batchesDuplicate = auto.NewCounter(m.counterOpts("batches_duplicate_total", "CI result batches short-circuited as retries"))

	m.verdicts = auto.NewCounterVec(m.counterOpts("verdicts_total", "Regression detector verdicts by kind"), []string{"kind"})
	m.regressions = auto.NewCounter(m.counterOpts("regressions_total", "Regressions flagged by the detector"))
	m.lastFactor = auto.NewGauge(m.gaugeOpts("last_regression_factor", "Slowdown factor of the most recent regression"))

	m.seriesTotal = auto.NewGauge(m.gaugeOpts("series_total", "Registered (suite, benchmark) series"))
	m.recordsTotal = auto.NewGauge(m.gaugeOpts("records_total", "Retained benchmark records across all series"))
	m.watermark = auto.NewGauge(m.gaugeOpts("last_update_unix_milliseconds", "Store watermark (max observed ingestion time)"))
	m.appendLatency = auto.NewHistogram(m.histogramOpts("append_latency_milliseconds", "History append latency in milliseconds", nil))
	m.queryLatency = auto.NewHistogram(m.histogramOpts("query_latency_milliseconds", "History query latency in milliseconds", nil))
	m.rotations = auto.NewCounter(m.counterOpts("rotations_total", "Whole-store rotations"))

	m.snapshotPublishDuration = auto.NewHistogram(m.histogramOpts("snapshot_publish_duration_milliseconds", "Time to emit and persist the snapshot feed", nil))
	m.snapshotLastUnix = auto.NewGauge(m.gaugeOpts("snapshot_last_unix", "Unix time of the last snapshot publish"))
	m.snapshotCount = auto.NewCounter(m.counterOpts("snapshot_count_total", "Snapshot feeds written"))
	m.snapshotUnchanged = auto.NewCounter(m.counterOpts("snapshot_unchanged_total", "Snapshot publishes skipped because the bytes did not change"))
	m.snapshotBytes = auto.NewGauge(m.gaugeOpts("snapshot_bytes", "Size of the last emitted snapshot feed"))

	m.journalWriteLatency = auto.NewHistogram(m.histogramOpts("journal_write_latency_milliseconds", "Journal append latency in milliseconds", nil))
	m.journalReplayRecords = auto.NewCounter(m.counterOpts("journal_replay_records_total", "Records replayed from the journal at startup"))

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current size of the ingestion queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum ingestion queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Queue utilization ratio (size / capacity)"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Batches enqueued"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Batches dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Enqueue failures (closed, full, cancelled)"))
	m.queueProcessingLatency = auto.NewHistogram(m.histogramOpts("queue_processing_latency_milliseconds", "Enqueue latency in milliseconds", nil))

	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Configured ingestion workers"))
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Workers currently applying a batch"))
	m.workerMessagesPerSecond = auto.NewGauge(m.gaugeOpts("worker_messages_per_second", "Batches applied per second"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds", "Batch apply latency in milliseconds", nil))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Batch apply failures"))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total", "HTTP requests by endpoint and method"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", nil), []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total", "Errors by component"), []string{"component", "error_type"})
	m.errorsByType = auto.NewCounterVec(m.counterOpts("errors_by_type_total", "Errors by type"), []string{"error_type", "severity"})
	m.errorsByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total", "Errors by endpoint"), []string{"endpoint", "method", "error_type"})
	m.errorLatency = auto.NewHistogramVec(m.histogramOpts("error_latency_milliseconds", "Latency of operations that resulted in errors", nil), []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds", "Average GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

// Ingestion.

// RecordRecordIngested increments the appended records counter.
func RecordRecordIngested() { globalManager.recordsIngested.Inc() }

// RecordRecordDuplicate increments the duplicate records counter.
func RecordRecordDuplicate() { globalManager.recordsDuplicate.Inc() }

// RecordRecordRejected counts a measurement rejected at parse time.
func RecordRecordRejected(reason string) {
	globalManager.recordsRejected.WithLabelValues(reason).Inc()
}

// RecordBatchIngested increments the ingested batches counter.
func RecordBatchIngested() { globalManager.batchesIngested.Inc() }

// RecordBatchDuplicate increments the retried batches counter.
func RecordBatchDuplicate() { globalManager.batchesDuplicate.Inc() }

// Detection.

// RecordVerdict counts a detector verdict. Kind must be one of the Verdict* constants.
func RecordVerdict(kind string) error {
	switch kind {
	case VerdictOk, VerdictInsufficientData:
	case VerdictRegressed:
		globalManager.regressions.Inc()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownVerdict, kind)
	}
	globalManager.verdicts.WithLabelValues(kind).Inc()
	return nil
}

// UpdateLastRegressionFactor records the slowdown factor of the latest regression.
func UpdateLastRegressionFactor(factor float64) { globalManager.lastFactor.Set(factor) }

// History store.

// UpdateSeriesTotal sets the number of registered series.
func UpdateSeriesTotal(count int) { globalManager.seriesTotal.Set(float64(count)) }

// UpdateRecordsTotal sets the number of retained records.
func UpdateRecordsTotal(count int) { globalManager.recordsTotal.Set(float64(count)) }

// UpdateWatermark sets the store watermark in epoch milliseconds.
func UpdateWatermark(ms int64) { globalManager.watermark.Set(float64(ms)) }

// RecordAppendLatency records history append latency.
func RecordAppendLatency(latencyMs float64) { globalManager.appendLatency.Observe(latencyMs) }

// RecordQueryLatency records history query latency.
func RecordQueryLatency(latencyMs float64) { globalManager.queryLatency.Observe(latencyMs) }

// RecordRotation counts a whole-store rotation.
func RecordRotation() { globalManager.rotations.Inc() }

// Snapshot feed.

// RecordSnapshotPublishDuration records how long emitting and persisting took.
func RecordSnapshotPublishDuration(ms float64) { globalManager.snapshotPublishDuration.Observe(ms) }

// UpdateSnapshotLastUnix sets the time of the last publish.
func UpdateSnapshotLastUnix(unix float64) { globalManager.snapshotLastUnix.Set(unix) }

// IncrementSnapshotCount counts a written snapshot.
func IncrementSnapshotCount() { globalManager.snapshotCount.Inc() }

// RecordSnapshotUnchanged counts a publish skipped by change detection.
func RecordSnapshotUnchanged() { globalManager.snapshotUnchanged.Inc() }

// UpdateSnapshotBytes sets the size of the last emitted feed.
func UpdateSnapshotBytes(n int) { globalManager.snapshotBytes.Set(float64(n)) }

// Journal.

// RecordJournalWriteLatency records journal append latency.
func RecordJournalWriteLatency(latencyMs float64) {
	globalManager.journalWriteLatency.Observe(latencyMs)
}

// RecordJournalReplay counts records replayed from the journal.
func RecordJournalReplay(n int) { globalManager.journalReplayRecords.Add(float64(n)) }

// Queue.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// RecordQueueProcessingLatency records enqueue latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Workers.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// AddWorkerActive adjusts the number of workers currently applying a batch.
func AddWorkerActive(delta int) { globalManager.workerActiveCount.Add(float64(delta)) }

// UpdateWorkerMessagesPerSecond sets the batch throughput.
func UpdateWorkerMessagesPerSecond(rate float64) { globalManager.workerMessagesPerSecond.Set(rate) }

// RecordWorkerProcessingLatency records batch apply latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

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
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorsByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System.

// UpdateSystemMemoryUsage sets the heap allocation in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
