// Package metrics holds the Prometheus collectors for the lens service.
// Every Collector owns its registry, so tests can build as many as they
// like without duplicate-registration panics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application. All record
// methods are safe to call on a nil *Collector.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Reconciliation
	Reconciles        *prometheus.CounterVec
	ReconcileDuration prometheus.Histogram
	ElementsAdded     prometheus.Counter
	ElementsRemoved   prometheus.Counter

	// History
	HistoryOps   *prometheus.CounterVec
	HistoryDepth *prometheus.GaugeVec

	// Paths
	PathQueries  *prometheus.CounterVec
	PathDuration prometheus.Histogram
	PathsFound   prometheus.Histogram

	// Sessions, persistence, explanations
	Sessions     prometheus.Gauge
	Saves        *prometheus.CounterVec
	ExplainJobs  *prometheus.CounterVec
	FeedSnapshot *prometheus.CounterVec
}

// NewCollector creates a collector with the given namespace and a fresh
// registry. Go runtime and process collectors are registered alongside.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		Reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciles_total",
			Help:      "Snapshot reconciliations by merge mode and resulting layout mode",
		}, []string{"merge_mode", "layout_mode"}),
		ReconcileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_seconds",
			Help:      "Time spent reconciling one snapshot",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		ElementsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "elements_added_total",
			Help:      "Nodes and edges added by reconciliation",
		}),
		ElementsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "elements_removed_total",
			Help:      "Nodes and edges removed by reconciliation",
		}),
		HistoryOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_operations_total",
			Help:      "History pushes, undos and redos by action kind",
		}, []string{"op", "action"}),
		HistoryDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_depth",
			Help:      "Current undo/redo depth per session",
		}, []string{"session", "stack"}),
		PathQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "path_queries_total",
			Help:      "Path enumerations by strategy",
		}, []string{"strategy", "shared"}),
		PathDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "path_query_duration_seconds",
			Help:      "Time spent enumerating paths",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		PathsFound: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "paths_found",
			Help:      "Number of paths returned per query",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 500},
		}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Live sessions",
		}),
		Saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_saves_total",
			Help:      "Session persistence attempts",
		}, []string{"status"}),
		ExplainJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "explain_jobs_total",
			Help:      "Explanation jobs by final status",
		}, []string{"status"}),
		FeedSnapshot: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_snapshots_total",
			Help:      "Snapshots read from feeds",
		}, []string{"status"}),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.Reconciles,
		c.ReconcileDuration,
		c.ElementsAdded,
		c.ElementsRemoved,
		c.HistoryOps,
		c.HistoryDepth,
		c.PathQueries,
		c.PathDuration,
		c.PathsFound,
		c.Sessions,
		c.Saves,
		c.ExplainJobs,
		c.FeedSnapshot,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return c
}

// GetRegistry returns the Prometheus registry for this collector.
func (c *Collector) GetRegistry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ---- recording helpers ----

func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (c *Collector) ObserveReconcile(mergeMode, layoutMode string, added, removed int, d time.Duration) {
	if c == nil {
		return
	}
	c.Reconciles.WithLabelValues(mergeMode, layoutMode).Inc()
	c.ReconcileDuration.Observe(d.Seconds())
	c.ElementsAdded.Add(float64(added))
	c.ElementsRemoved.Add(float64(removed))
}

func (c *Collector) ObserveHistory(op, action string) {
	if c == nil {
		return
	}
	c.HistoryOps.WithLabelValues(op, action).Inc()
}

func (c *Collector) SetHistoryDepth(session string, undo, redo int) {
	if c == nil {
		return
	}
	c.HistoryDepth.WithLabelValues(session, "undo").Set(float64(undo))
	c.HistoryDepth.WithLabelValues(session, "redo").Set(float64(redo))
}

func (c *Collector) ForgetSession(session string) {
	if c == nil {
		return
	}
	c.HistoryDepth.DeleteLabelValues(session, "undo")
	c.HistoryDepth.DeleteLabelValues(session, "redo")
}

func (c *Collector) ObservePaths(strategy string, shared bool, found int, d time.Duration) {
	if c == nil {
		return
	}
	c.PathQueries.WithLabelValues(strategy, strconv.FormatBool(shared)).Inc()
	c.PathDuration.Observe(d.Seconds())
	c.PathsFound.Observe(float64(found))
}

func (c *Collector) SetSessions(n int) {
	if c == nil {
		return
	}
	c.Sessions.Set(float64(n))
}

func (c *Collector) ObserveSave(err error) {
	if c == nil {
		return
	}
	c.Saves.WithLabelValues(status(err)).Inc()
}

func (c *Collector) ObserveExplainJob(status string) {
	if c == nil {
		return
	}
	c.ExplainJobs.WithLabelValues(status).Inc()
}

func (c *Collector) ObserveFeedSnapshot(err error) {
	if c == nil {
		return
	}
	c.FeedSnapshot.WithLabelValues(status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
