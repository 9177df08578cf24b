/*
Package metrics provides Prometheus metrics collection and exposition for the
synchronization engine.

Metrics are grouped by the component that produces them: the orchestrator
(run outcomes, time spent per state), auth (attempts, cache hits), the
downloader (chunks paged per scope), the processor (entities applied,
expunged, conflicts), the full-data downloader (notes/resources fetched,
current in-flight count per pool), the sender (items sent per kind and
outcome), and the stop-sync controller (rate-limit and auth-expired trigger
counts). A small set of engine-wide gauges (tracked accounts, tracked
linked notebooks, pending deferred tags) is refreshed on a timer by the
Collector rather than updated inline, since nothing else naturally owns
that state.

# Usage

	import "github.com/quentier-go/notesync/pkg/metrics"

	timer := metrics.NewTimer()
	// ... download a chunk ...
	timer.ObserveDurationVec(metrics.SyncChunkDownloadDuration, scope.String())

	metrics.EntitiesAppliedTotal.WithLabelValues(scope.String(), "note").Inc()

	http.Handle("/metrics", metrics.Handler())

# Health

HealthChecker tracks a small set of named components (localstore, notestore,
authscope) independent of the Prometheus registry; RegisterComponent and
UpdateComponent feed it, and HealthHandler/ReadyHandler/LivenessHandler
expose it over HTTP for process supervisors.
*/
package metrics
