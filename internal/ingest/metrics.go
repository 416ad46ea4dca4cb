package ingest

import "github.com/prometheus/client_golang/prometheus"

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outagewatch_ingest_runs_total",
			Help: "Ingest runs by mode and result.",
		},
		[]string{"mode", "result"},
	)
	outagesRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outagewatch_ingest_outages_recorded_total",
			Help: "Raw outage rows written to the store.",
		},
	)
	rowsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outagewatch_ingest_rows_skipped_total",
			Help: "Input rows skipped, by reason.",
		},
		[]string{"reason"},
	)
	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "outagewatch_ingest_duration_seconds",
			Help:    "Wall time of ingest runs.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"mode"},
	)
)

func init() {
	prometheus.MustRegister(runsTotal)
	prometheus.MustRegister(outagesRecorded)
	prometheus.MustRegister(rowsSkipped)
	prometheus.MustRegister(runDuration)
}
