// Package metrics provides Prometheus metrics for sync runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Run metrics
	syncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvassync_runs_total",
			Help: "Total number of sync runs",
		},
		[]string{"result"},
	)

	syncRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "canvassync_run_duration_seconds",
			Help:    "Duration of a full sync run",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	snapshotTreeSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "canvassync_snapshot_nodes",
			Help: "Number of nodes in the persisted snapshot",
		},
		[]string{"kind"},
	)

	// Task metrics
	directoriesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvassync_directories_total",
			Help: "Directory tasks applied",
		},
		[]string{"status"},
	)

	filesDownloaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvassync_file_downloads_total",
			Help: "File tasks applied",
		},
		[]string{"status"},
	)

	bytesDownloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "canvassync_bytes_downloaded_total",
			Help: "Total bytes written to the mirror",
		},
	)

	downloadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "canvassync_file_download_duration_seconds",
			Help:    "Time to fetch and write a single file",
			Buckets: prometheus.DefBuckets,
		},
	)

	ignoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvassync_ignored_total",
			Help: "Planned paths excluded by ignore rules",
		},
		[]string{"kind"},
	)

	// Remote metrics
	remoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvassync_remote_requests_total",
			Help: "Requests made to the remote tree and byte sources",
		},
		[]string{"operation", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordSyncRun records a finished sync run.
func RecordSyncRun(duration time.Duration, success bool) {
	syncRunsTotal.WithLabelValues(status(success)).Inc()
	syncRunDuration.Observe(duration.Seconds())
}

// SetSnapshotSize sets the current snapshot node counts.
func SetSnapshotSize(directories, files int) {
	snapshotTreeSize.WithLabelValues("directory").Set(float64(directories))
	snapshotTreeSize.WithLabelValues("file").Set(float64(files))
}

// RecordDirectory records a directory task.
func RecordDirectory(success bool) {
	directoriesCreated.WithLabelValues(status(success)).Inc()
}

// RecordDownload records a file task.
func RecordDownload(bytes int64, duration time.Duration, success bool) {
	filesDownloaded.WithLabelValues(status(success)).Inc()
	if success {
		bytesDownloaded.Add(float64(bytes))
		downloadDuration.Observe(duration.Seconds())
	}
}

// RecordIgnored records a path excluded during planning.
func RecordIgnored(isDir bool) {
	kind := "file"
	if isDir {
		kind = "directory"
	}
	ignoredTotal.WithLabelValues(kind).Inc()
}

// RecordRemoteRequest records a request to a remote collaborator.
func RecordRemoteRequest(operation string, success bool) {
	remoteRequestsTotal.WithLabelValues(operation, status(success)).Inc()
}
