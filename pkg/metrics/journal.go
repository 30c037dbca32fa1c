package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	EntriesAppended = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "journal_entries_appended_total",
		Help: "Total number of entries appended to the journal",
	}, []string{"journal"})

	BytesAppended = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "journal_bytes_appended_total",
		Help: "Total number of framed bytes appended to the journal",
	}, []string{"journal"})

	AppendLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "journal_append_latency_seconds",
		Help:    "Histogram of append latency including rollover",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	}, []string{"journal"})

	Rollovers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "journal_segment_rollovers_total",
		Help: "Total number of segments sealed because they were full",
	}, []string{"journal"})

	Truncations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "journal_truncations_total",
		Help: "Total number of journal truncations",
	}, []string{"journal"})

	Compactions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "journal_compacted_segments_total",
		Help: "Total number of segments removed by compaction",
	}, []string{"journal"})

	Segments = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "journal_segments",
		Help: "Current number of segments held by the journal",
	}, []string{"journal"})

	InvalidFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "journal_invalid_frames_total",
		Help: "Frames inside a segment's written range that failed length or checksum validation",
	})

	RecoveryFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "journal_recovery_failures_total",
		Help: "Total number of journal opens refused because of inconsistent storage",
	}, []string{"journal"})
)

// ObserveAppend records one successful append of size framed bytes.
func ObserveAppend(journal string, size int, elapsedSeconds float64) {
	EntriesAppended.WithLabelValues(journal).Inc()
	BytesAppended.WithLabelValues(journal).Add(float64(size))
	AppendLatency.WithLabelValues(journal).Observe(elapsedSeconds)
}
