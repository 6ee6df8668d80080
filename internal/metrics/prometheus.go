package metrics

import "github.com/prometheus/client_golang/prometheus"

// PrometheusExporter mirrors a Snapshot onto prometheus gauges on demand.
// It is an additional export surface (SPEC_FULL.md §3 Domain Stack) and
// never sits on the hot path: Collect() takes a fresh Snapshot only when
// prometheus scrapes it.
type PrometheusExporter struct {
	m *Metrics

	totalRecords   prometheus.Gauge
	totalBytes     prometheus.Gauge
	droppedRecords prometheus.Gauge
	errorCount     prometheus.Gauge
	dropRate       prometheus.Gauge
	errorRate      prometheus.Gauge
	recordsPerSec  prometheus.Gauge
}

// NewPrometheusExporter builds an exporter wrapping m. Register it with
// a prometheus.Registerer to expose a scrape endpoint.
func NewPrometheusExporter(m *Metrics, namespace string) *PrometheusExporter {
	mk := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		})
	}
	return &PrometheusExporter{
		m:              m,
		totalRecords:   mk("records_total", "Total records accepted by the pipeline."),
		totalBytes:     mk("bytes_total", "Total bytes formatted."),
		droppedRecords: mk("records_dropped_total", "Total records dropped by any gate or sink."),
		errorCount:     mk("errors_total", "Total errors observed."),
		dropRate:       mk("drop_rate", "Fraction of processed records dropped."),
		errorRate:      mk("error_rate", "Fraction of processed records that errored."),
		recordsPerSec:  mk("records_per_second", "Observed throughput."),
	}
}

// Describe implements prometheus.Collector.
func (p *PrometheusExporter) Describe(ch chan<- *prometheus.Desc) {
	for _, g := range p.gauges() {
		ch <- g.Desc()
	}
}

// Collect implements prometheus.Collector, refreshing every gauge from
// a fresh Snapshot immediately before reporting it.
func (p *PrometheusExporter) Collect(ch chan<- prometheus.Metric) {
	snap := p.m.Get()
	p.totalRecords.Set(float64(snap.TotalRecords))
	p.totalBytes.Set(float64(snap.TotalBytes))
	p.droppedRecords.Set(float64(snap.DroppedRecords))
	p.errorCount.Set(float64(snap.ErrorCount))
	p.dropRate.Set(snap.DropRate)
	p.errorRate.Set(snap.ErrorRate)
	p.recordsPerSec.Set(snap.RecordsPerSec)
	for _, g := range p.gauges() {
		ch <- g
	}
}

func (p *PrometheusExporter) gauges() []prometheus.Gauge {
	return []prometheus.Gauge{
		p.totalRecords, p.totalBytes, p.droppedRecords,
		p.errorCount, p.dropRate, p.errorRate, p.recordsPerSec,
	}
}
