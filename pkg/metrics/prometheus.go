package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the killpoints service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Scoring
	eventsScored     prometheus.Counter
	eventsExcluded   *prometheus.CounterVec
	degenerateScores *prometheus.CounterVec
	scoringLatency   prometheus.Histogram
	queryLatency     prometheus.Histogram
	chainsBuilt      prometheus.Counter

	// Rules
	ruleMisses    *prometheus.CounterVec
	ruleRefreshes *prometheus.CounterVec
	ruleEntries   *prometheus.GaugeVec

	// Upstream
	upstreamRequests *prometheus.CounterVec
	upstreamRetries  *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec

	// Caches
	cacheLookups *prometheus.CounterVec

	// Leaderboard
	leaderboardUpdates prometheus.Counter
	trackedEntities    prometheus.Gauge
	refreshErrors      prometheus.Counter

	// Repository
	repositoryUpdateLatency prometheus.Histogram
	repositoryQueryLatency  prometheus.Histogram

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorRateByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
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
		namespace:        "killpoints",
		subsystem:        "engine",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
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
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   m.histogramBuckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.eventsScored = m.counter("events_scored_total", "Total number of killmails scored")
	m.eventsExcluded = m.counterVec("events_excluded_total", "Killmails forced to zero by an exclusion rule", "reason")
	m.degenerateScores = m.counterVec("degenerate_scores_total", "Scores that fell back to zero", "reason")
	m.scoringLatency = m.histogram("scoring_latency_milliseconds", "Latency of scoring a single killmail")
	m.queryLatency = m.histogram("query_latency_milliseconds", "Latency of a full collated score query")
	m.chainsBuilt = m.counter("chains_built_total", "Total number of kill chains built")

	m.ruleMisses = m.counterVec("rule_misses_total", "Rule table lookups without a weight", "category")
	m.ruleRefreshes = m.counterVec("rule_refreshes_total", "Rule table refresh attempts", "outcome")
	m.ruleEntries = m.gaugeVec("rule_entries", "Number of weights per rule category", "category")

	m.upstreamRequests = m.counterVec("upstream_requests_total", "Upstream HTTP requests", "upstream", "outcome")
	m.upstreamRetries = m.counterVec("upstream_retries_total", "Upstream retries", "upstream", "reason")
	m.upstreamLatency = m.histogramVec("upstream_latency_milliseconds", "Upstream request latency", "upstream")

	m.cacheLookups = m.counterVec("cache_lookups_total", "Cache lookups", "cache", "result")

	m.leaderboardUpdates = m.counter("leaderboard_updates_total", "Total number of leaderboard updates")
	m.trackedEntities = m.gauge("tracked_entities", "Entities currently on the leaderboard")
	m.refreshErrors = m.counter("refresh_errors_total", "Failed background refreshes")

	m.repositoryUpdateLatency = m.histogram("repository_update_latency_milliseconds", "Repository update latency")
	m.repositoryQueryLatency = m.histogram("repository_query_latency_milliseconds", "Repository query latency")

	m.queueSize = m.gauge("queue_size", "Current size of the refresh queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum refresh queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of refresh jobs enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of refresh jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of enqueue errors")

	m.workerCount = m.gauge("worker_count", "Configured number of refresh workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Number of workers currently refreshing an entity")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Refresh job latency")
	m.workerErrorRate = m.counter("worker_errors_total", "Total number of worker errors")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration",
		"endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component",
		"component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Average GC pause")
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

// RecordEventScored increments the scored killmail counter.
func RecordEventScored() {
	globalManager.eventsScored.Inc()
}

// RecordEventExcluded counts a killmail forced to zero by an exclusion rule.
func RecordEventExcluded(reason string) {
	globalManager.eventsExcluded.WithLabelValues(reason).Inc()
}

// RecordDegenerateScore counts a score that collapsed to zero.
func RecordDegenerateScore(reason string) {
	globalManager.degenerateScores.WithLabelValues(reason).Inc()
}

// RecordScoringLatency records scoring latency in milliseconds.
func RecordScoringLatency(latencyMs float64) {
	globalManager.scoringLatency.Observe(latencyMs)
}

// RecordQueryLatency records the latency of a collated score query.
func RecordQueryLatency(latencyMs float64) {
	globalManager.queryLatency.Observe(latencyMs)
}

// RecordChainsBuilt adds n to the chain counter.
func RecordChainsBuilt(n int) {
	globalManager.chainsBuilt.Add(float64(n))
}

// RecordRuleMiss counts a lookup that found no weight.
func RecordRuleMiss(category string) {
	globalManager.ruleMisses.WithLabelValues(category).Inc()
}

// RecordRuleRefresh counts a rule refresh attempt by outcome (ok, partial, skipped, failed).
func RecordRuleRefresh(outcome string) {
	globalManager.ruleRefreshes.WithLabelValues(outcome).Inc()
}

// UpdateRuleEntries sets the number of weights loaded for a category.
func UpdateRuleEntries(category string, n int) {
	globalManager.ruleEntries.WithLabelValues(category).Set(float64(n))
}

// RecordUpstreamRequest counts an upstream request.
func RecordUpstreamRequest(upstream, outcome string) {
	globalManager.upstreamRequests.WithLabelValues(upstream, outcome).Inc()
}

// RecordUpstreamRetry counts an upstream retry.
func RecordUpstreamRetry(upstream, reason string) {
	globalManager.upstreamRetries.WithLabelValues(upstream, reason).Inc()
}

// RecordUpstreamLatency records upstream latency in milliseconds.
func RecordUpstreamLatency(upstream string, latencyMs float64) {
	globalManager.upstreamLatency.WithLabelValues(upstream).Observe(latencyMs)
}

// RecordCacheHit counts a cache hit.
func RecordCacheHit(cache string) {
	globalManager.cacheLookups.WithLabelValues(cache, "hit").Inc()
}

// RecordCacheMiss counts a cache miss.
func RecordCacheMiss(cache string) {
	globalManager.cacheLookups.WithLabelValues(cache, "miss").Inc()
}

// RecordLeaderboardUpdate increments the leaderboard updates counter.
func RecordLeaderboardUpdate() {
	globalManager.leaderboardUpdates.Inc()
}

// UpdateTrackedEntities sets the number of entities on the leaderboard.
func UpdateTrackedEntities(count int) {
	globalManager.trackedEntities.Set(float64(count))
}

// RecordRefreshError increments the background refresh error counter.
func RecordRefreshError() {
	globalManager.refreshErrors.Inc()
}

// RecordRepositoryUpdateLatency records repository update operation latency.
func RecordRepositoryUpdateLatency(latencyMs float64) {
	globalManager.repositoryUpdateLatency.Observe(latencyMs)
}

// RecordRepositoryQueryLatency records repository query operation latency.
func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
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
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

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

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// UpdateSystemMemoryUsage sets the allocated heap size.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records the average GC pause.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}
