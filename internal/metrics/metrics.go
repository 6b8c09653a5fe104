// Package metrics provides Prometheus metrics for the player core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Listing / tree sync metrics
	listingRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queroaulas_listing_requests_total",
			Help: "Total number of folder listing requests",
		},
		[]string{"status"},
	)

	treeFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "queroaulas_tree_fetch_duration_seconds",
			Help:    "Time to fetch and assemble a full folder tree",
			Buckets: prometheus.DefBuckets,
		},
	)

	treeSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "queroaulas_tree_size",
			Help: "Number of nodes in the last fetched folder tree",
		},
	)

	// Download / cache metrics
	downloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queroaulas_downloads_total",
			Help: "Total number of video downloads",
		},
		[]string{"status"},
	)

	downloadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queroaulas_download_bytes_total",
			Help: "Total bytes downloaded from the content endpoint",
		},
	)

	cacheSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "queroaulas_cache_size_bytes",
			Help: "Total size of cached videos in bytes",
		},
	)

	cacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "queroaulas_cache_entries",
			Help: "Number of cached videos",
		},
	)

	cacheEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queroaulas_cache_evictions_total",
			Help: "Total number of cache evictions",
		},
	)

	// Progress store metrics
	progressWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queroaulas_progress_writes_total",
			Help: "Total number of progress envelope writes",
		},
		[]string{"status"},
	)
)

// RecordListing records a folder listing request outcome.
func RecordListing(ok bool) {
	if ok {
		listingRequestsTotal.WithLabelValues("ok").Inc()
	} else {
		listingRequestsTotal.WithLabelValues("error").Inc()
	}
}

// RecordTreeFetch records a completed tree fetch.
func RecordTreeFetch(seconds float64, nodes int) {
	treeFetchDuration.Observe(seconds)
	treeSize.Set(float64(nodes))
}

// RecordDownload records a download outcome.
func RecordDownload(ok bool) {
	if ok {
		downloadsTotal.WithLabelValues("ok").Inc()
	} else {
		downloadsTotal.WithLabelValues("error").Inc()
	}
}

// AddDownloadBytes adds to the downloaded byte counter.
func AddDownloadBytes(n int64) {
	downloadBytesTotal.Add(float64(n))
}

// SetCacheStats updates the cache gauges.
func SetCacheStats(sizeBytes int64, entries int) {
	cacheSizeBytes.Set(float64(sizeBytes))
	cacheEntries.Set(float64(entries))
}

// RecordEviction counts a cache eviction.
func RecordEviction() {
	cacheEvictionsTotal.Inc()
}

// RecordProgressWrite records a progress envelope write outcome.
func RecordProgressWrite(ok bool) {
	if ok {
		progressWritesTotal.WithLabelValues("ok").Inc()
	} else {
		progressWritesTotal.WithLabelValues("error").Inc()
	}
}

// Handler returns the HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
