package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Plugin delivery outcomes.
const (
	DeliveryOK       = "delivered"
	DeliveryRPCError = "rpc_error"
	DeliveryFailed   = "failed"
)

// Ingest outcomes.
const (
	OutcomeProcessed   = "processed"
	OutcomeDecodeError = "decode_error"
	OutcomeStoreError  = "store_error"
)

var (
	uploadsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sheetviz",
			Name:      "uploads_ingested_total",
			Help:      "Total number of spreadsheet uploads by ingestion outcome.",
		},
		[]string{"outcome"},
	)

	uploadRows = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sheetviz",
			Name:      "upload_rows",
			Help:      "Number of data rows per processed upload.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	pluginDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sheetviz",
			Name:      "plugin_deliveries_total",
			Help:      "Upload event deliveries to plugins by event and outcome.",
		},
		[]string{"event", "outcome"},
	)

	chartCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sheetviz",
			Name:      "chart_cache_lookups_total",
			Help:      "Chart data cache lookups by result.",
		},
		[]string{"result"},
	)
)

// ObserveIngest records one ingestion attempt. rows is only observed for
// processed uploads.
func ObserveIngest(outcome string, rows int) {
	uploadsIngested.WithLabelValues(outcome).Inc()
	if outcome == OutcomeProcessed {
		uploadRows.Observe(float64(rows))
	}
}

// ObserveChartCache records a chart cache hit or miss.
func ObserveChartCache(hit bool) {
	if hit {
		chartCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	chartCacheLookups.WithLabelValues("miss").Inc()
}

// ObservePluginDelivery records the final outcome of one event delivery.
func ObservePluginDelivery(event, outcome string) {
	pluginDeliveries.WithLabelValues(event, outcome).Inc()
}
