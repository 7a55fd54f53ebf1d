// Package metrics exposes Prometheus counters for ledger writes, imports
// and snapshots.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/point-ledger/ledger"
)

// Collector owns its registry so tests can build as many as they like.
// It implements ledger.Recorder and backup.Recorder.
type Collector struct {
	registry   *prometheus.Registry
	writes     *prometheus.CounterVec
	rejections *prometheus.CounterVec
	snapshots  *prometheus.CounterVec
	imports    *prometheus.CounterVec
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "points_records_written_total",
			Help: "Records written by AddRecord, by outcome (created, updated).",
		}, []string{"status"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "points_ledger_rejections_total",
			Help: "Ledger writes rejected, by reason.",
		}, []string{"reason"}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "points_backup_snapshots_total",
			Help: "Backup snapshots attempted, by result.",
		}, []string{"result"}),
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "points_imports_total",
			Help: "CSV imports attempted, by result.",
		}, []string{"result"}),
	}
	c.registry.MustRegister(
		c.writes, c.rejections, c.snapshots, c.imports,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) RecordWrite(status ledger.WriteStatus) {
	c.writes.WithLabelValues(string(status)).Inc()
}

func (c *Collector) RecordRejection(reason string) {
	c.rejections.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordSnapshot(result string) {
	c.snapshots.WithLabelValues(result).Inc()
}

func (c *Collector) RecordImport(result string) {
	c.imports.WithLabelValues(result).Inc()
}

// Registry is exposed for tests (testutil) and extra collectors.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
