// Package metrics exposes a Prometheus registry for the Drop Lifecycle
// Coordinator, the HTTP delivery layer, and the janitor: counters and
// histograms an operator can scrape directly, rather than a private
// in-process aggregate.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric name constants. Inc/Observe carry no label set beyond the metric
// name itself, so distinct states (e.g. download status classes) get
// distinct names rather than a label value.
const (
	DropsCreatedTotal        = "drops_created_total"
	DropsDeletedTotal        = "drops_deleted_total"
	DownloadsServed2xxTotal  = "downloads_served_2xx_total"
	DownloadsServed4xxTotal  = "downloads_served_4xx_total"
	DownloadsServed5xxTotal  = "downloads_served_5xx_total"
	BytesStreamedTotal       = "bytes_streamed_total"
	UploadBytesTotal         = "upload_bytes_total"
	SlugConflictsTotal       = "slug_conflicts_total"
	SweepCyclesTotal         = "sweep_cycles_total"
	OrphanBlobsDetectedTotal = "orphan_blobs_detected_total"
	StaleTempRemovedTotal    = "stale_temp_removed_total"
)

var (
	namedCounters = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teledrop_events_total",
			Help: "Monotonic event counters, partitioned by event name.",
		},
		[]string{"name"},
	)

	namedObservations = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "teledrop_observations",
			Help:    "Ad-hoc numeric observations (e.g. byte counts), partitioned by name.",
			Buckets: prometheus.ExponentialBuckets(64, 4, 12), // 64B .. 256MiB
		},
		[]string{"name"},
	)
)

func init() {
	prometheus.MustRegister(namedCounters)
	prometheus.MustRegister(namedObservations)
}

// Recorder implements the Inc/Observe interface both internal/app and
// internal/httpx depend on. It is safe for concurrent use: the underlying
// prometheus vectors handle their own locking.
type Recorder struct{}

// New returns a Recorder backed by the package's registered collectors.
func New() Recorder { return Recorder{} }

// Inc increments the named counter by delta. A non-positive delta is ignored;
// Prometheus counters may not decrease.
func (Recorder) Inc(name string, delta int64) {
	if delta <= 0 {
		return
	}
	namedCounters.WithLabelValues(name).Add(float64(delta))
}

// Observe records a single observation under name.
func (Recorder) Observe(name string, value int64) {
	namedObservations.WithLabelValues(name).Observe(float64(value))
}
