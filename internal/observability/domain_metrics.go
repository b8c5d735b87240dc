package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	chatTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqltalk_chat_turns_total",
			Help: "Total number of chat turns by outcome.",
		},
		[]string{"outcome"},
	)
	chatTurnDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqltalk_chat_turn_duration_seconds",
			Help:    "End-to-end chat turn latency including model calls.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
	)
	translateDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqltalk_translate_duration_seconds",
			Help:    "Latency of natural-language to SQL translation.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)
	queryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqltalk_query_duration_seconds",
			Help:    "Latency of SQL execution against the target database.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		},
	)
	queryRowsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqltalk_query_rows_returned",
			Help:    "Row counts returned by executed queries.",
			Buckets: []float64{0, 1, 10, 50, 100, 200, 500, 1000},
		},
	)
	queryRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqltalk_query_rejected_total",
			Help: "Total number of statements rejected by the read-only guard.",
		},
	)
	exportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqltalk_exports_total",
			Help: "Total number of result exports by format.",
		},
		[]string{"format"},
	)
	exportBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqltalk_export_bytes_total",
			Help: "Total bytes uploaded by result exports.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		chatTurnsTotal,
		chatTurnDurationSeconds,
		translateDurationSeconds,
		queryDurationSeconds,
		queryRowsReturned,
		queryRejectedTotal,
		exportsTotal,
		exportBytesTotal,
	)
}

func ObserveChatTurn(outcome string, elapsed time.Duration) {
	chatTurnsTotal.WithLabelValues(outcome).Inc()
	chatTurnDurationSeconds.Observe(elapsed.Seconds())
}

func ObserveTranslate(elapsed time.Duration) {
	translateDurationSeconds.Observe(elapsed.Seconds())
}

func ObserveQuery(rows int, elapsed time.Duration) {
	queryDurationSeconds.Observe(elapsed.Seconds())
	queryRowsReturned.Observe(float64(rows))
}

func IncrementQueryRejected() {
	queryRejectedTotal.Inc()
}

func ObserveExport(format string, size int64) {
	exportsTotal.WithLabelValues(format).Inc()
	if size > 0 {
		exportBytesTotal.Add(float64(size))
	}
}
