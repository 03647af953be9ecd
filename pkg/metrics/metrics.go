// Package metrics defines the Prometheus metric collectors used by a
// deduplication run and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	DocsHashedTotal      prometheus.Counter
	PipelineOutstanding  prometheus.Gauge
	SignatureCacheHits   *prometheus.CounterVec
	SignatureCacheMisses prometheus.Counter
	DocsBandedTotal      prometheus.Counter
	BandBuckets          prometheus.Gauge
	ClustersTotal        prometheus.Counter
	ClusterSize          prometheus.Histogram
	PivotsTotal          *prometheus.CounterVec
	StageDuration        *prometheus.HistogramVec
	SinkWritesTotal      *prometheus.CounterVec
}

// New creates all collectors and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		DocsHashedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kwikdedup_docs_hashed_total",
				Help: "Total documents turned into MinHash signatures.",
			},
		),
		PipelineOutstanding: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "kwikdedup_pipeline_outstanding_jobs",
				Help: "Hash jobs submitted but not yet collected.",
			},
		),
		SignatureCacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kwikdedup_signature_cache_hits_total",
				Help: "Signature cache hits by layer (lru, redis).",
			},
			[]string{"layer"},
		),
		SignatureCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kwikdedup_signature_cache_misses_total",
				Help: "Signatures computed because no cache layer had them.",
			},
		),
		DocsBandedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kwikdedup_docs_banded_total",
				Help: "Documents inserted into the banding index.",
			},
		),
		BandBuckets: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "kwikdedup_band_buckets",
				Help: "Non-empty buckets in the banding index.",
			},
		),
		ClustersTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kwikdedup_clusters_total",
				Help: "Clusters emitted by KwikCluster.",
			},
		),
		ClusterSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kwikdedup_cluster_size",
				Help:    "Number of documents per emitted cluster.",
				Buckets: []float64{1, 2, 3, 5, 10, 25, 50, 100, 500, 1000},
			},
		),
		PivotsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kwikdedup_pivots_total",
				Help: "Pivots chosen by source (queue, random).",
			},
			[]string{"source"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kwikdedup_stage_duration_seconds",
				Help:    "Wall time of each run stage.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"stage"},
		),
		SinkWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kwikdedup_sink_writes_total",
				Help: "Clustering writes by sink and status.",
			},
			[]string{"sink", "status"},
		),
	}

	m.registry.MustRegister(
		m.DocsHashedTotal,
		m.PipelineOutstanding,
		m.SignatureCacheHits,
		m.SignatureCacheMisses,
		m.DocsBandedTotal,
		m.BandBuckets,
		m.ClustersTotal,
		m.ClusterSize,
		m.PivotsTotal,
		m.StageDuration,
		m.SinkWritesTotal,
	)

	return m
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus scrape HTTP handler for m.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) DocHashed() {
	if m == nil {
		return
	}
	m.DocsHashedTotal.Inc()
}

func (m *Metrics) SetOutstanding(n int) {
	if m == nil {
		return
	}
	m.PipelineOutstanding.Set(float64(n))
}

func (m *Metrics) CacheHit(layer string) {
	if m == nil {
		return
	}
	m.SignatureCacheHits.WithLabelValues(layer).Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.SignatureCacheMisses.Inc()
}

func (m *Metrics) DocsBanded(n int, buckets int) {
	if m == nil {
		return
	}
	m.DocsBandedTotal.Add(float64(n))
	m.BandBuckets.Set(float64(buckets))
}

func (m *Metrics) ClusterFormed(size int, pivotSource string) {
	if m == nil {
		return
	}
	m.ClustersTotal.Inc()
	m.ClusterSize.Observe(float64(size))
	m.PivotsTotal.WithLabelValues(pivotSource).Inc()
}

func (m *Metrics) ObserveStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(seconds)
}

func (m *Metrics) SinkWrite(sink string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.SinkWritesTotal.WithLabelValues(sink, status).Inc()
}
