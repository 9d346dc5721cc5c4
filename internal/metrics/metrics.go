// Package metrics defines the Prometheus instruments for topicidx.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every instrument. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	queriesTotal    *prometheus.CounterVec
	queryDuration   *prometheus.HistogramVec
	searchRequests  *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	documentsIngest *prometheus.CounterVec
	trainDuration   prometheus.Histogram
	modelDocuments  prometheus.Gauge
}

// New creates the instruments on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "topicidx_queries_total",
				Help: "Query engine operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "topicidx_query_duration_seconds",
				Help:    "Query engine operation latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
			},
			[]string{"operation"},
		),
		searchRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "topicidx_search_requests_total",
				Help: "Keyword search RPC requests served by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "topicidx_search_cache_lookups_total",
				Help: "Search cache lookups by result",
			},
			[]string{"result"},
		),
		documentsIngest: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "topicidx_ingested_documents_total",
				Help: "Ingestion records by outcome",
			},
			[]string{"outcome"},
		),
		trainDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "topicidx_train_duration_seconds",
				Help:    "Topic model fit duration in seconds",
				Buckets: prometheus.ExponentialBuckets(1, 2, 15),
			},
		),
		modelDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "topicidx_model_documents",
				Help: "Number of documents in the active topic model",
			},
		),
	}

	m.registry.MustRegister(
		m.queriesTotal,
		m.queryDuration,
		m.searchRequests,
		m.cacheLookups,
		m.documentsIngest,
		m.trainDuration,
		m.modelDocuments,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveQuery records one query engine operation.
func (m *Metrics) ObserveQuery(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.queriesTotal.WithLabelValues(operation, outcome(err)).Inc()
	m.queryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// SearchRequest records one RPC served by the search server.
func (m *Metrics) SearchRequest(method string, err error) {
	if m == nil {
		return
	}
	m.searchRequests.WithLabelValues(method, outcome(err)).Inc()
}

// CacheLookup records a cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Ingested records ingestion counts.
func (m *Metrics) Ingested(stored, skipped int) {
	if m == nil {
		return
	}
	m.documentsIngest.WithLabelValues("stored").Add(float64(stored))
	m.documentsIngest.WithLabelValues("skipped").Add(float64(skipped))
}

// Trained records a completed fit.
func (m *Metrics) Trained(d time.Duration, documents int) {
	if m == nil {
		return
	}
	m.trainDuration.Observe(d.Seconds())
	m.modelDocuments.Set(float64(documents))
}

// ModelLoaded records the size of a loaded model.
func (m *Metrics) ModelLoaded(documents int) {
	if m == nil {
		return
	}
	m.modelDocuments.Set(float64(documents))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics_listening", slog.String("address", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Start runs Serve in the background for the lifetime of a command. The
// returned func stops the endpoint and waits for it to exit.
func (m *Metrics) Start(ctx context.Context, addr string, logger *slog.Logger) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := m.Serve(ctx, addr, logger); err != nil {
			logger.Error("metrics_serve_failed",
				slog.String("address", addr),
				slog.String("error", err.Error()))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
