package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Orchestrator metrics
	OrchestratorRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notesync_orchestrator_runs_total",
			Help: "Total number of orchestrator runs by outcome",
		},
		[]string{"outcome"}, // "done", "stopped", "failed"
	)

	OrchestratorStateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notesync_orchestrator_state_duration_seconds",
			Help:    "Time spent in each orchestrator state",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"state"},
	)

	// Auth metrics
	AuthAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notesync_auth_attempts_total",
			Help: "Total number of authentication attempts by scope and outcome",
		},
		[]string{"scope", "outcome"},
	)

	AuthCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notesync_auth_cache_hits_total",
			Help: "Total number of authentication requests served from cache",
		},
	)

	// Downloader metrics
	SyncChunksDownloadedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notesync_sync_chunks_downloaded_total",
			Help: "Total number of sync chunks downloaded by scope",
		},
		[]string{"scope"},
	)

	SyncChunkDownloadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notesync_sync_chunk_download_duration_seconds",
			Help:    "Time to download a single sync chunk",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"scope"},
	)

	// Processor metrics
	EntitiesAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notesync_entities_applied_total",
			Help: "Total number of entities applied from sync chunks by kind",
		},
		[]string{"scope", "kind"},
	)

	EntitiesExpungedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notesync_entities_expunged_total",
			Help: "Total number of entities expunged locally by kind",
		},
		[]string{"scope", "kind"},
	)

	ConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notesync_conflicts_total",
			Help: "Total number of conflicts resolved by kind",
		},
		[]string{"scope", "kind"},
	)

	// Full-data downloader metrics
	NotesDownloadedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notesync_notes_downloaded_total",
			Help: "Total number of full notes downloaded",
		},
		[]string{"scope"},
	)

	ResourcesDownloadedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notesync_resources_downloaded_total",
			Help: "Total number of full resources downloaded",
		},
		[]string{"scope"},
	)

	FullDataInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notesync_full_data_in_flight",
			Help: "Current number of in-flight full-data downloads by pool",
		},
		[]string{"pool"}, // "notes" or "resources"
	)

	// Sender metrics
	ItemsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notesync_items_sent_total",
			Help: "Total number of locally modified items sent to the server by kind and outcome",
		},
		[]string{"scope", "kind", "outcome"},
	)

	// Stop-sync metrics
	RateLimitHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notesync_rate_limit_hits_total",
			Help: "Total number of rate-limit stop-sync triggers observed",
		},
	)

	AuthExpiredHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notesync_auth_expired_hits_total",
			Help: "Total number of auth-expired stop-sync triggers observed",
		},
	)

	// RPC metrics
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notesync_rpc_requests_total",
			Help: "Total number of RPC requests by method and status",
		},
		[]string{"method", "status"},
	)

	RPCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notesync_rpc_request_duration_seconds",
			Help:    "RPC request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	trackedAccounts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notesync_tracked_accounts",
			Help: "Number of accounts with persisted sync state",
		},
	)

	trackedLinkedNotebooks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notesync_tracked_linked_notebooks",
			Help: "Number of linked notebooks with persisted sync state",
		},
	)

	pendingDeferredTags = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notesync_pending_deferred_tags",
			Help: "Tags still waiting on an unknown parent guid across all scopes",
		},
	)
)

func init() {
	prometheus.MustRegister(OrchestratorRunsTotal)
	prometheus.MustRegister(OrchestratorStateDuration)
	prometheus.MustRegister(AuthAttemptsTotal)
	prometheus.MustRegister(AuthCacheHitsTotal)
	prometheus.MustRegister(SyncChunksDownloadedTotal)
	prometheus.MustRegister(SyncChunkDownloadDuration)
	prometheus.MustRegister(EntitiesAppliedTotal)
	prometheus.MustRegister(EntitiesExpungedTotal)
	prometheus.MustRegister(ConflictsTotal)
	prometheus.MustRegister(NotesDownloadedTotal)
	prometheus.MustRegister(ResourcesDownloadedTotal)
	prometheus.MustRegister(FullDataInFlight)
	prometheus.MustRegister(ItemsSentTotal)
	prometheus.MustRegister(RateLimitHitsTotal)
	prometheus.MustRegister(AuthExpiredHitsTotal)
	prometheus.MustRegister(RPCRequestsTotal)
	prometheus.MustRegister(RPCRequestDuration)
	prometheus.MustRegister(trackedAccounts)
	prometheus.MustRegister(trackedLinkedNotebooks)
	prometheus.MustRegister(pendingDeferredTags)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
