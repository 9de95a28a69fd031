package importer

// metrics.go exposes Prometheus instrumentation for the import engine.

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cartes",
		Subsystem: "import",
		Name:      "sessions_total",
		Help:      "Import sessions by terminal outcome.",
	}, []string{"outcome"})

	metricRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cartes",
		Subsystem: "import",
		Name:      "rows_total",
		Help:      "Processed rows by classification.",
	}, []string{"result"})

	metricBatchSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cartes",
		Subsystem: "import",
		Name:      "batch_duration_seconds",
		Help:      "Wall-clock duration of batch transactions.",
		Buckets:   prometheus.DefBuckets,
	})

	metricBatchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cartes",
		Subsystem: "import",
		Name:      "batch_errors_total",
		Help:      "Batches rolled back due to database errors or timeouts.",
	})
)

// observeRows records per-classification row counters for one batch.
func observeRows(r BatchResult) {
	metricRows.WithLabelValues("imported").Add(float64(r.Imported))
	metricRows.WithLabelValues("updated").Add(float64(r.Updated))
	metricRows.WithLabelValues("duplicate").Add(float64(r.Duplicates))
	metricRows.WithLabelValues("skipped").Add(float64(r.Skipped))
	metricRows.WithLabelValues("error").Add(float64(r.Errors))
}
