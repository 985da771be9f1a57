package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/user/tedshelf-go/internal/ingest"
)

// Metrics for Prometheus
var (
	talksTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tedshelf_talks_total",
		Help: "Total number of talks in the database",
	})

	catalogEntriesTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tedshelf_catalog_entries_total",
		Help: "Total number of catalog entries across all users",
	})

	ingestionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tedshelf_ingestions_total",
		Help: "Total number of talk submissions by outcome",
	}, []string{"outcome"})

	ingestDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tedshelf_ingest_duration_seconds",
		Help:    "Duration of talk submissions in seconds",
		Buckets: prometheus.DefBuckets,
	})

	errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tedshelf_errors_total",
		Help: "Total number of errors returned to callers by kind",
	}, []string{"kind"})

	storeInconsistenciesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tedshelf_store_inconsistencies_total",
		Help: "Catalog entries excluded because their talk is missing",
	})
)

func init() {
	prometheus.MustRegister(talksTotal)
	prometheus.MustRegister(catalogEntriesTotal)
	prometheus.MustRegister(ingestionsTotal)
	prometheus.MustRegister(ingestDurationSeconds)
	prometheus.MustRegister(errorsTotal)
	prometheus.MustRegister(storeInconsistenciesTotal)
}

// UpdateTalkCount updates the talks_total metric
func UpdateTalkCount(count int64) {
	talksTotal.Set(float64(count))
}

// UpdateCatalogEntryCount updates the catalog_entries_total metric
func UpdateCatalogEntryCount(count int64) {
	catalogEntriesTotal.Set(float64(count))
}

// RecordIngestion records a finished submission
func RecordIngestion(outcome string, duration time.Duration) {
	ingestionsTotal.WithLabelValues(outcome).Inc()
	ingestDurationSeconds.Observe(duration.Seconds())
}

// RecordError records an error metric
func RecordError(kind string) {
	errorsTotal.WithLabelValues(kind).Inc()
}

// RecordInconsistencies counts catalog rows excluded for missing talks
func RecordInconsistencies(count int) {
	storeInconsistenciesTotal.Add(float64(count))
}

// MetricsObserver feeds submission outcomes into the ingestion metrics
type MetricsObserver struct{}

// Observe records completed submissions
func (MetricsObserver) Observe(e ingest.Event) {
	if e.Stage != ingest.StageSubmit {
		return
	}
	RecordIngestion(e.Outcome, e.Duration)
}
