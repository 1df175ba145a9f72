package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg              *prometheus.Registry
	RowsRead         prometheus.Counter
	RowsAccepted     prometheus.Counter
	RowsQuarantined  *prometheus.CounterVec
	PartitionsOK     *prometheus.CounterVec
	PartitionsFailed *prometheus.CounterVec
	CommitLatencySec prometheus.Histogram
	LastRunRows      prometheus.Gauge
	QuarantineRatio  prometheus.Gauge
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	rowsRead := prometheus.NewCounter(prometheus.CounterOpts{Name: "etl_rows_read_total"})
	rowsAccepted := prometheus.NewCounter(prometheus.CounterOpts{Name: "etl_rows_accepted_total"})
	rowsQuarantined := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "etl_rows_quarantined_total"}, []string{"stage"})
	partsOK := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "etl_partitions_committed_total"}, []string{"dataset"})
	partsFailed := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "etl_partitions_failed_total"}, []string{"dataset"})
	commitLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "etl_partition_commit_latency_seconds",
		Buckets: prometheus.DefBuckets,
	})
	lastRunRows := prometheus.NewGauge(prometheus.GaugeOpts{Name: "etl_last_run_rows"})
	quarantineRatio := prometheus.NewGauge(prometheus.GaugeOpts{Name: "etl_quarantine_ratio"})

	r.MustRegister(rowsRead, rowsAccepted, rowsQuarantined, partsOK, partsFailed, commitLatency, lastRunRows, quarantineRatio)
	return &Registry{
		reg:              r,
		RowsRead:         rowsRead,
		RowsAccepted:     rowsAccepted,
		RowsQuarantined:  rowsQuarantined,
		PartitionsOK:     partsOK,
		PartitionsFailed: partsFailed,
		CommitLatencySec: commitLatency,
		LastRunRows:      lastRunRows,
		QuarantineRatio:  quarantineRatio,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
