// Package metrics exports retrieval, ingestion and answer metrics in Prometheus format.
// All methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "grain"

// Metrics holds the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	searchLatency   prometheus.Histogram
	searchTotal     *prometheus.CounterVec
	searchRetained  prometheus.Histogram
	buildLatency    prometheus.Histogram
	corpusChunks    prometheus.Gauge
	snapshotLoads   *prometheus.CounterVec
	askTotal        *prometheus.CounterVec
	askLatency      prometheus.Histogram
	generationCalls *prometheus.CounterVec
	scrapedPages    *prometheus.CounterVec
}

// New creates collectors on a fresh registry, including Go runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	buckets := []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}

	m := &Metrics{registry: registry}
	m.searchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "retrieval",
		Name:      "search_latency_seconds",
		Help:      "Latency of corpus searches including query embedding",
		Buckets:   buckets,
	})
	m.searchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "retrieval",
		Name:      "searches_total",
		Help:      "Searches by outcome: above_threshold, fallback, empty or error",
	}, []string{"outcome"})
	m.searchRetained = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "retrieval",
		Name:      "retained_chunks",
		Help:      "Chunks kept by the relevance filter per search",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
	})
	m.buildLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "build_latency_seconds",
		Help:      "Time to embed a corpus and build its vector index",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})
	m.corpusChunks = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "corpus_chunks",
		Help:      "Number of chunks in the active corpus",
	})
	m.snapshotLoads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "snapshot_loads_total",
		Help:      "Snapshot load attempts by result: loaded, missing or error",
	}, []string{"result"})
	m.askTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "answer",
		Name:      "questions_total",
		Help:      "Questions answered, by answer kind",
	}, []string{"kind"})
	m.askLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "answer",
		Name:      "latency_seconds",
		Help:      "End-to-end question latency",
		Buckets:   buckets,
	})
	m.generationCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "answer",
		Name:      "generation_calls_total",
		Help:      "Calls to the text generator by status",
	}, []string{"status"})
	m.scrapedPages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "web_pages_total",
		Help:      "Scraped web pages by result: ok, skipped or error",
	}, []string{"result"})

	registry.MustRegister(
		m.searchLatency, m.searchTotal, m.searchRetained,
		m.buildLatency, m.corpusChunks, m.snapshotLoads,
		m.askTotal, m.askLatency, m.generationCalls,
		m.scrapedPages,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSearch records one search. kept is the number of chunks returned after filtering.
func (m *Metrics) ObserveSearch(d time.Duration, kept int, fallback bool, err error) {
	if m == nil {
		return
	}
	m.searchLatency.Observe(d.Seconds())
	outcome := "above_threshold"
	switch {
	case err != nil:
		outcome = "error"
	case kept == 0:
		outcome = "empty"
	case fallback:
		outcome = "fallback"
	}
	m.searchTotal.WithLabelValues(outcome).Inc()
	if err == nil {
		m.searchRetained.Observe(float64(kept))
	}
}

// ObserveBuild records a corpus build.
func (m *Metrics) ObserveBuild(d time.Duration, chunks int) {
	if m == nil {
		return
	}
	m.buildLatency.Observe(d.Seconds())
	m.corpusChunks.Set(float64(chunks))
}

// ObserveLoad records a snapshot load attempt. chunks is the corpus size when loaded.
func (m *Metrics) ObserveLoad(loaded bool, chunks int, err error) {
	if m == nil {
		return
	}
	switch {
	case err != nil:
		m.snapshotLoads.WithLabelValues("error").Inc()
	case !loaded:
		m.snapshotLoads.WithLabelValues("missing").Inc()
	default:
		m.snapshotLoads.WithLabelValues("loaded").Inc()
		m.corpusChunks.Set(float64(chunks))
	}
}

// ObserveAsk records an answered question.
func (m *Metrics) ObserveAsk(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.askTotal.WithLabelValues(kind).Inc()
	m.askLatency.Observe(d.Seconds())
}

// ObserveGeneration records one generator call with status ok, retry or error.
func (m *Metrics) ObserveGeneration(status string) {
	if m == nil {
		return
	}
	m.generationCalls.WithLabelValues(status).Inc()
}

// ObserveScrape records one scraped page with result ok, skipped or error.
func (m *Metrics) ObserveScrape(result string) {
	if m == nil {
		return
	}
	m.scrapedPages.WithLabelValues(result).Inc()
}
