package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querybridge_queries_total",
			Help: "Total number of executed statements by engine and outcome.",
		},
		[]string{"engine", "outcome"},
	)
	rowsStreamedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querybridge_rows_streamed_total",
			Help: "Total number of rows pulled through the streaming pipeline.",
		},
		[]string{"engine"},
	)
	queryDurationMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querybridge_query_duration_ms",
			Help:    "Statement wall time in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000, 30000, 120000},
		},
		[]string{"engine"},
	)
	exportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querybridge_exports_total",
			Help: "Total number of export jobs by format and terminal state.",
		},
		[]string{"format", "state"},
	)
	exportBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querybridge_export_bytes_total",
			Help: "Total bytes written to export destinations.",
		},
		[]string{"format"},
	)
	poolWaitMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querybridge_pool_wait_ms",
			Help:    "Time spent waiting for a pooled session in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 500, 1000, 5000, 10000},
		},
		[]string{"engine"},
	)
)

func init() {
	prometheus.MustRegister(
		queriesTotal,
		rowsStreamedTotal,
		queryDurationMs,
		exportsTotal,
		exportBytesTotal,
		poolWaitMs,
	)
}

// RecordQuery counts one finished statement.
func RecordQuery(engine, outcome string, elapsed time.Duration) {
	queriesTotal.WithLabelValues(engine, outcome).Inc()
	queryDurationMs.WithLabelValues(engine).Observe(float64(elapsed.Milliseconds()))
}

// RecordRows counts rows delivered by the pipeline.
func RecordRows(engine string, rows int64) {
	rowsStreamedTotal.WithLabelValues(engine).Add(float64(rows))
}

// RecordExport counts one export job reaching a terminal state.
func RecordExport(format, state string, bytes int64) {
	exportsTotal.WithLabelValues(format, state).Inc()
	if bytes > 0 {
		exportBytesTotal.WithLabelValues(format).Add(float64(bytes))
	}
}

// RecordPoolWait tracks session acquisition latency.
func RecordPoolWait(engine string, elapsed time.Duration) {
	poolWaitMs.WithLabelValues(engine).Observe(float64(elapsed.Milliseconds()))
}
